package erchmm

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
)

// StartParams returns starting values for the EM optimization: uniform
// initial branch probabilities, a transition matrix that favors staying in
// the same branch, and rates that spread the branch means around the
// sample mean of obs.
func StartParams(order []int, obs []float64) (init, rate, trans []float64) {

	nb := len(order)

	mn := floats.Sum(obs) / float64(len(obs))
	if !(mn > 0) || math.IsInf(mn, 1) {
		mn = 1
	}

	init = make([]float64, nb)
	for i := range init {
		init[i] = 1 / float64(nb)
	}

	// Branch i has mean mn * 2^(i - (nb-1)/2).
	rate = make([]float64, nb)
	for i := range rate {
		e := float64(i) - float64(nb-1)/2
		rate[i] = float64(order[i]) / (mn * math.Exp2(e))
	}

	trans = make([]float64, nb*nb)
	if nb == 1 {
		trans[0] = 1
		return init, rate, trans
	}
	for i := 0; i < nb; i++ {
		for j := 0; j < nb; j++ {
			if i == j {
				trans[i*nb+j] = 0.8
			} else {
				trans[i*nb+j] = 0.2 / float64(nb-1)
			}
		}
	}

	return init, rate, trans
}

// WriteSummary writes the model parameters to the parameter logger.
// The optional branch labels are used if provided.
func (hmm *ErChmm) WriteSummary(labels []string, title string) {

	hmm.parlogger.Print(title)
	hmm.parlogger.Printf("\n")

	hmm.parlogger.Printf("Erlang orders:\n")
	order := make([]float64, hmm.NBranch)
	for i, r := range hmm.order {
		order[i] = float64(r)
	}
	hmm.writeMatrix(order, hmm.NBranch, 1, labels, nil)
	hmm.parlogger.Printf("\n")

	hmm.parlogger.Printf("Initial branch distribution:\n")
	hmm.writeMatrix(hmm.init, hmm.NBranch, 1, labels, nil)
	hmm.parlogger.Printf("\n")

	hmm.parlogger.Printf("Rates:\n")
	hmm.writeMatrix(hmm.rate, hmm.NBranch, 1, labels, nil)
	hmm.parlogger.Printf("\n")

	hmm.parlogger.Printf("Transition matrix:\n")
	hmm.writeMatrix(hmm.trans, hmm.NBranch, hmm.NBranch, labels, labels)
	hmm.parlogger.Printf("\n")

	hmm.parlogger.Printf("Log-likelihood: %f\n", hmm.logli)
	hmm.parlogger.Printf("AIC: %f\n", hmm.AIC())
}

// writeMatrix writes a matrix in text format to the parameter logger.
func (hmm *ErChmm) writeMatrix(x []float64, nrow, ncol int, rowlabels, collabels []string) {

	var buf bytes.Buffer

	if rowlabels != nil && nrow != len(rowlabels) {
		hmm.msglogger.Printf("len(rowlabels) != nrow\n")
		rowlabels = nil
	}

	if collabels != nil && ncol != len(collabels) {
		hmm.msglogger.Printf("len(collabels) != ncol\n")
		collabels = nil
	}

	if collabels != nil {
		if rowlabels != nil {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%20s", ""))
		}
		for _, c := range collabels {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%20s", c))
		}
		hmm.parlogger.Print(buf.String())
	}

	for i := 0; i < nrow; i++ {

		buf.Reset()

		if rowlabels != nil {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%-20s", rowlabels[i]))
		}
		for j := 0; j < ncol; j++ {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%20.4f", x[i*ncol+j]))
		}

		hmm.parlogger.Print(buf.String())
	}
}
