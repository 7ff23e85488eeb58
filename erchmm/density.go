package erchmm

import (
	"math"
)

// ErlangDensity returns the density at x of the sum of order independent
// exponential variables with the given rate.  The factorial in the
// normalizing constant is built up one factor at a time, so no large
// intermediate value is formed.
func ErlangDensity(x, rate float64, order int) float64 {

	erl := rate
	for n := 1; n < order; n++ {
		erl *= rate * x / float64(n)
	}

	return math.Exp(-rate*x) * erl
}

// logErlangDensity returns the log of ErlangDensity, evaluated directly on
// the log scale.
func logErlangDensity(x, rate float64, order int) float64 {

	r := float64(order)
	lpr := r*math.Log(rate) - rate*x - lgamma(r)
	if order > 1 {
		lpr += (r - 1) * math.Log(x)
	}

	return lpr
}

// lgamma returns the log of the gamma function for a positive argument.
func lgamma(x float64) float64 {
	u, _ := math.Lgamma(x)
	return u
}

// densities fills fmat with the branch densities at every observation.
func (hmm *ErChmm) densities() {

	for k, x := range hmm.obs {
		row := hmm.fmat[k]
		for i := range row {
			row[i] = ErlangDensity(x, hmm.rate[i], hmm.order[i])
		}
	}
}
