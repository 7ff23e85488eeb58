package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kshedden/erchmm/erchmm"
	"github.com/kshedden/erchmm/erchmmsim"
)

func parseFloats(s string) ([]float64, error) {

	var x []float64
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		x = append(x, v)
	}

	return x, nil
}

func parseInts(s string) ([]int, error) {

	var x []int
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		x = append(x, v)
	}

	return x, nil
}

func fail(msg string) {
	_, _ = io.WriteString(os.Stderr, msg+"\n")
	os.Exit(1)
}

func main() {

	var orderS, initS, rateS, transS, outname string
	flag.StringVar(&orderS, "order", "2,1", "Erlang order of each branch")
	flag.StringVar(&initS, "init", "", "Initial branch probabilities (default uniform)")
	flag.StringVar(&rateS, "rate", "20,1", "Erlang rate of each branch")
	flag.StringVar(&transS, "trans", "0.7,0.3,0.4,0.6", "Row-major branch transition matrix")
	flag.StringVar(&outname, "outname", "", "Output file name")

	var n int
	var seed int64
	flag.IntVar(&n, "n", 1000, "Number of inter-arrival times")
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 uses the clock)")
	flag.Parse()

	if outname == "" {
		fail("'outname' is a required argument")
	}

	order, err := parseInts(orderS)
	if err != nil {
		fail(fmt.Sprintf("generate: order: %v", err))
	}
	rate, err := parseFloats(rateS)
	if err != nil {
		fail(fmt.Sprintf("generate: rate: %v", err))
	}
	trans, err := parseFloats(transS)
	if err != nil {
		fail(fmt.Sprintf("generate: trans: %v", err))
	}

	var init []float64
	if initS == "" {
		init = make([]float64, len(order))
		for i := range init {
			init[i] = 1 / float64(len(order))
		}
	} else if init, err = parseFloats(initS); err != nil {
		fail(fmt.Sprintf("generate: init: %v", err))
	}

	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	obs, branch, err := erchmmsim.Generate(order, init, rate, trans, n, rng)
	if err != nil {
		fail(err.Error())
	}

	ds := &erchmm.Dataset{
		Obs:    obs,
		Branch: branch,
		Order:  order,
		Init:   init,
		Rate:   rate,
		Trans:  trans,
	}

	if err := erchmm.WriteDataset(outname, ds); err != nil {
		fail(err.Error())
	}
}
