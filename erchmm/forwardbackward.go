package erchmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ForwardBackward evaluates the branch densities and calculates the
// scaled forward and backward vectors at the current parameters.
//
// Row k of the forward vectors is the joint probability of the first k+1
// observations and of the branch that produces observation k+1.  Row k of
// the backward vectors is the probability of observations k, ..., NTime-1
// given the branch that produces observation k.  Each row is stored
// divided by a power of two (ascale, bscale) so that its sum lies in
// (1/2, 1].
func (hmm *ErChmm) ForwardBackward() error {

	hmm.densities()

	if err := hmm.forward(); err != nil {
		hmm.Warnings.ForwardUnderflow++
		return err
	}

	if err := hmm.backward(); err != nil {
		hmm.Warnings.BackwardUnderflow++
		return err
	}

	return nil
}

func (hmm *ErChmm) forward() error {

	nb := hmm.NBranch
	prev := hmm.init
	scale := 0

	for k := 0; k < hmm.NTime; k++ {
		f := hmm.fmat[k]
		row := hmm.amat[k]

		// Transition from branch j at k to branch i at k+1.
		zero(row)
		for j := 0; j < nb; j++ {
			w := prev[j] * f[j]
			if w == 0 {
				continue
			}
			floats.AddScaled(row, w, hmm.trans[j*nb:(j+1)*nb])
		}

		e, err := rescale(row)
		if err != nil {
			return fmt.Errorf("forward vector at observation %d: %w", k, err)
		}
		scale += e
		hmm.ascale[k] = scale
		prev = row
	}

	return nil
}

func (hmm *ErChmm) backward() error {

	nb := hmm.NBranch
	scale := 0

	for k := hmm.NTime - 1; k >= 0; k-- {
		f := hmm.fmat[k]
		row := hmm.bmat[k]

		for j := 0; j < nb; j++ {
			tr := hmm.trans[j*nb : (j+1)*nb]
			if k == hmm.NTime-1 {
				row[j] = f[j] * floats.Sum(tr)
			} else {
				row[j] = f[j] * floats.Dot(tr, hmm.bmat[k+1])
			}
		}

		e, err := rescale(row)
		if err != nil {
			return fmt.Errorf("backward vector at observation %d: %w", k, err)
		}
		scale += e
		hmm.bscale[k] = scale
	}

	return nil
}

// rescale divides x by 2^e, where e = ceil(log2(sum(x))), and returns e.
func rescale(x []float64) (int, error) {

	s := floats.Sum(x)
	if !(s > 0) || math.IsInf(s, 1) {
		return 0, fmt.Errorf("%w: vector sum is %v", ErrDegenerate, s)
	}

	// ceil(log2(s)), exact at powers of two
	frac, e := math.Frexp(s)
	if frac == 0.5 {
		e--
	}
	for j := range x {
		x[j] = math.Ldexp(x[j], -e)
	}

	return e, nil
}

// likelihood sets the scaled likelihood from the backward vectors and
// returns the log-likelihood.
func (hmm *ErChmm) likelihood() (float64, error) {

	hmm.rawlik = floats.Dot(hmm.init, hmm.bmat[0])
	if !(hmm.rawlik > 0) || math.IsInf(hmm.rawlik, 1) {
		return math.Inf(-1), fmt.Errorf("%w: scaled likelihood is %v", ErrDegenerate, hmm.rawlik)
	}

	return math.Log(hmm.rawlik) + float64(hmm.bscale[0])*math.Ln2, nil
}

// ComputeLoglike runs the forward-backward recursion and returns the
// log-likelihood at the current parameters.
func (hmm *ErChmm) ComputeLoglike() (float64, error) {

	if err := hmm.ForwardBackward(); err != nil {
		return math.Inf(-1), err
	}

	llf, err := hmm.likelihood()
	if err != nil {
		return llf, err
	}
	hmm.logli = llf

	return llf, nil
}

// Posterior returns, for each observation, the posterior probability that
// it was produced by each branch, at the current parameters.
func (hmm *ErChmm) Posterior() ([][]float64, error) {

	if _, err := hmm.ComputeLoglike(); err != nil {
		return nil, err
	}

	pr := makeFloatArray(hmm.NTime, hmm.NBranch)
	for k := range pr {
		prev := hmm.init
		if k > 0 {
			prev = hmm.amat[k-1]
		}
		floats.MulTo(pr[k], prev, hmm.bmat[k])
		normalizeSum(pr[k], 1/float64(hmm.NBranch))
	}

	return pr, nil
}

// normalize the values in x to have a sum of 1.  If the sum is zero,
// every value is set to z.
func normalizeSum(x []float64, z float64) {
	scale := floats.Sum(x)
	if !(scale > 0) {
		for j := range x {
			x[j] = z
		}
		return
	}
	floats.Scale(1/scale, x)
}
