package erchmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ReconstructBranches uses the Viterbi algorithm to predict the branch
// that produced each observation, under the current parameters.
func (hmm *ErChmm) ReconstructBranches() []int {

	lpr := makeFloatArray(hmm.NTime, hmm.NBranch)
	lpt := makeIntArray(hmm.NTime, hmm.NBranch)

	hmm.reconstructionProbs(lpr, lpt)

	return hmm.traceback(lpr, lpt)
}

func (hmm *ErChmm) reconstructionProbs(lpr [][]float64, lpt [][]int) {

	nb := hmm.NBranch
	wk := make([]float64, nb)

	lt := make([]float64, nb*nb)
	for j := range lt {
		lt[j] = math.Log(hmm.trans[j])
	}

	for t, x := range hmm.obs {
		for st2 := 0; st2 < nb; st2++ {
			lf := logErlangDensity(x, hmm.rate[st2], hmm.order[st2])

			// Beginning from initial conditions
			if t == 0 {
				lpr[t][st2] = math.Log(hmm.init[st2]) + lf
				continue // First row of lpt is not used
			}

			// From st1 to st2
			for st1 := 0; st1 < nb; st1++ {
				wk[st1] = lpr[t-1][st1] + lt[st1*nb+st2]
			}

			// The best previous branch
			jj := floats.MaxIdx(wk)
			lpt[t][st2] = jj
			lpr[t][st2] = wk[jj] + lf
		}
	}
}

func (hmm *ErChmm) traceback(lpr [][]float64, lpt [][]int) []int {

	y := make([]int, hmm.NTime)

	t := hmm.NTime - 1
	y[t] = floats.MaxIdx(lpr[t])
	for t--; t >= 0; t-- {
		y[t] = lpt[t+1][y[t+1]]
	}

	return y
}

// CompareBranches returns the number of positions where the branch
// sequences x and y disagree, and the number of positions compared.
func CompareBranches(x, y []int) (int, int, error) {

	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("branch sequences have lengths %d and %d", len(x), len(y))
	}

	var e int
	for t := range x {
		if x[t] != y[t] {
			e++
		}
	}

	return e, len(x), nil
}
