package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/kshedden/erchmm/erchmm"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
)

var (
	logger *log.Logger
)

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

func report(logger *log.Logger, hmm *erchmm.ErChmm, truth []int) {

	pbranch := hmm.ReconstructBranches()

	if len(truth) == 0 {
		counts := make([]int, hmm.NBranch)
		for _, b := range pbranch {
			counts[b]++
		}
		logger.Printf("Reconstructed branch counts: %v\n", counts)
		return
	}

	e, n, err := erchmm.CompareBranches(pbranch, truth)
	if err != nil {
		logger.Printf("Cannot compare branches: %v\n", err)
		return
	}
	logger.Printf("%d/%d reconstruction errors\n", e, n)
}

func main() {

	gobname := flag.String("gobfile", "", "The data file")
	logname := flag.String("logname", "erchmm", "Prefix of log files")
	orders := flag.String("order", "", "Override the Erlang orders in the data file")
	reconstruct := flag.Bool("reconstruct", true, "If false, do not reconstruct branches")

	cfg := erchmm.DefaultConfig()
	flag.IntVar(&cfg.MinIter, "miniter", cfg.MinIter, "Minimum number of iterations")
	flag.IntVar(&cfg.MaxIter, "maxiter", cfg.MaxIter, "Maximum number of iterations")
	flag.Float64Var(&cfg.Eps, "eps", cfg.Eps, "Minimum relative change in likelihood")
	flag.IntVar(&cfg.Levels, "levels", cfg.Levels, "Number of levels in the cascaded sums")
	flag.Float64Var(&cfg.MaxPhi, "maxphi", cfg.MaxPhi, "Carry threshold of the cascaded sums")
	flag.Parse()

	if *gobname == "" {
		_, _ = io.WriteString(os.Stderr, "'gobfile' is a required argument\n")
		os.Exit(1)
	}

	ds, err := erchmm.ReadDataset(*gobname)
	if err != nil {
		_, _ = io.WriteString(os.Stderr, err.Error()+"\n")
		os.Exit(1)
	}

	order := ds.Order
	if *orders != "" {
		if order, err = parseInts(*orders); err != nil {
			_, _ = io.WriteString(os.Stderr, fmt.Sprintf("estimate: order: %v\n", err))
			os.Exit(1)
		}
	}
	if len(order) == 0 {
		_, _ = io.WriteString(os.Stderr, "estimate: no Erlang orders given\n")
		os.Exit(1)
	}

	init, rate, trans := erchmm.StartParams(order, ds.Obs)
	hmm, err := erchmm.New(order, init, rate, trans, ds.Obs, cfg)
	if err != nil {
		_, _ = io.WriteString(os.Stderr, err.Error()+"\n")
		os.Exit(1)
	}

	if logger, err = hmm.SetLogger(*logname); err != nil {
		_, _ = io.WriteString(os.Stderr, err.Error()+"\n")
		os.Exit(1)
	}

	logger.Printf("%d inter-arrival times\n", hmm.NTime)
	logger.Printf("%d branches with orders %v\n", hmm.NBranch, order)

	bar := progressbar.New(cfg.MaxIter + 1)
	hmm.SetProgress(func(int, float64) {
		_ = bar.Add(1)
	})

	if _, err := hmm.ComputeLoglike(); err != nil {
		logger.Printf("Starting values: %v\n", err)
	}
	hmm.WriteSummary(nil, "Starting values:")

	err = hmm.Fit()
	_ = bar.Finish()
	if err != nil {
		logger.Printf("Fit failed: %v\n", err)
		if errors.Is(err, erchmm.ErrDegenerate) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	hmm.WriteSummary(nil, "Estimated parameters:")
	logger.Printf("Status: %s after %d iterations\n", hmm.Status(), hmm.Iterations())
	logger.Printf("Final log-likelihood: %f", hmm.Loglike())
	logger.Printf("Final AIC: %f", hmm.AIC())
	logger.Printf("Transition matrix:\n%.4f\n", mat.Formatted(hmm.TransMatrix()))

	if !*reconstruct {
		return
	}

	report(logger, hmm, ds.Branch)
}
