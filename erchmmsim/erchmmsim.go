// Package erchmmsim simulates inter-arrival sequences from an ER-CHMM with
// known parameters.
package erchmmsim

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Generate draws n inter-arrival times.  The first branch is drawn from
// init, each later branch from the row of the row-major transition matrix
// trans belonging to the previous branch, and each inter-arrival time from
// the Erlang distribution of its branch.  The observations and the branch
// sequence are returned.
func Generate(order []int, init, rate, trans []float64, n int, rng *rand.Rand) ([]float64, []int, error) {

	nb := len(order)
	if len(init) != nb || len(rate) != nb || len(trans) != nb*nb {
		return nil, nil, fmt.Errorf("erchmmsim: inconsistent parameter lengths for %d branches", nb)
	}

	dists := make([]distuv.Gamma, nb)
	for i := range dists {
		if order[i] < 1 || !(rate[i] > 0) {
			return nil, nil, fmt.Errorf("erchmmsim: branch %d has order %d and rate %v", i, order[i], rate[i])
		}
		// The Erlang distribution is a gamma distribution with integer shape.
		dists[i] = distuv.Gamma{Alpha: float64(order[i]), Beta: rate[i]}
	}

	obs := make([]float64, n)
	branch := make([]int, n)

	row := init
	for k := 0; k < n; k++ {
		st := genDiscrete(row, rng)
		branch[k] = st
		obs[k] = dists[st].Quantile(rng.Float64())
		row = trans[st*nb : (st+1)*nb]
	}

	return obs, branch, nil
}

// Generate a discrete random variable from the given probability vector.
// Any probability mass missing from pr is assigned to the last value.
func genDiscrete(pr []float64, rng *rand.Rand) int {

	u := rng.Float64()
	p := 0.0
	for j := range pr {
		p += pr[j]
		if u < p {
			return j
		}
	}

	return len(pr) - 1
}
