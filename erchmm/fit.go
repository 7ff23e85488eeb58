package erchmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Fit uses the EM algorithm to estimate the initial branch probabilities,
// the branch rates and the transition matrix.  Each iteration evaluates
// the log-likelihood at the current parameters, then tests for
// convergence, then re-estimates the parameters.  The parameters on
// return are those at which Loglike was evaluated.
//
// A degenerate forward or backward recursion ends the fit with an error
// wrapping ErrDegenerate; the parameters are then those of the last
// completed M-step and Loglike returns -Inf.
func (hmm *ErChmm) Fit() error {

	hmm.llf = hmm.llf[:0]
	hmm.niter = 0
	hmm.status = Running

	stop := math.Log1p(hmm.cfg.Eps)
	ologli := math.Inf(-1)

	hmm.msglogger.Printf("Estimating model parameters...\n")

	for iter := 0; iter <= hmm.cfg.MaxIter; iter++ {

		logli, err := hmm.ComputeLoglike()
		if err != nil {
			hmm.status = Failed
			hmm.logli = math.Inf(-1)
			hmm.msglogger.Printf("Iteration %d: %v\n", iter, err)
			return fmt.Errorf("iteration %d: %w", iter, err)
		}

		hmm.llf = append(hmm.llf, logli)
		hmm.msglogger.Printf("llf=%f\n", logli)
		if hmm.progress != nil {
			hmm.progress(iter, logli)
		}

		if iter > 0 && logli < ologli-1e-10 {
			hmm.msglogger.Printf("Log-likelihood decreased by %g\n", ologli-logli)
			hmm.Warnings.LogLikeDecreased++
		}

		if iter > hmm.cfg.MinIter+1 && logli-ologli < stop {
			hmm.msglogger.Printf("Converged at iteration %d\n", iter)
			hmm.status = Converged
			break
		}
		if iter == hmm.cfg.MaxIter {
			hmm.msglogger.Printf("Reached %d iterations without converging\n", iter)
			hmm.status = MaxIterReached
			break
		}

		hmm.estep()
		hmm.mstep()
		hmm.niter++
		ologli = logli
	}

	hmm.msglogger.Printf("%+v\n", hmm.Warnings)

	return nil
}

// estep accumulates the posterior branch occupancy, the time-weighted
// occupancy and the expected branch transitions over all observations.
// It requires the vectors produced by ComputeLoglike.
func (hmm *ErChmm) estep() {

	nb := hmm.NBranch
	illh := 1 / hmm.rawlik

	hmm.sumq.reset()
	hmm.sumxq.reset()
	hmm.sumtr.reset()

	for k, x := range hmm.obs {

		prev := hmm.init
		pscale := 0
		if k > 0 {
			prev = hmm.amat[k-1]
			pscale = hmm.ascale[k-1]
		}

		floats.MulTo(hmm.qcur, prev, hmm.bmat[k])

		// Transition from branch i at k to branch j at k+1.  The normalizer
		// restores the scale factors of the forward and backward vectors
		// relative to the likelihood.
		if k < hmm.NTime-1 {
			norm := math.Ldexp(illh, pscale+hmm.bscale[k+1]-hmm.bscale[0])
			f := hmm.fmat[k]
			bnext := hmm.bmat[k+1]
			for i := 0; i < nb; i++ {
				w := prev[i] * f[i] * norm
				if w == 0 {
					continue
				}
				tr := hmm.trans[i*nb : (i+1)*nb]
				for j := 0; j < nb; j++ {
					hmm.sumtr.add(i*nb+j, w*tr[j]*bnext[j])
				}
			}
		}

		qsum := floats.Sum(hmm.qcur)
		if !(qsum > 0) {
			hmm.Warnings.ZeroOccupancy++
			continue
		}
		for i, q := range hmm.qcur {
			q /= qsum
			hmm.sumq.add(i, q)
			hmm.sumxq.add(i, x*q)
		}
	}
}

// mstep overwrites the parameters with their new estimates.
func (hmm *ErChmm) mstep() {

	nb := hmm.NBranch
	sq := hmm.sumq.total()
	sxq := hmm.sumxq.total()
	str := hmm.sumtr.total()

	for i := 0; i < nb; i++ {

		if sxq[i] > 0 {
			hmm.rate[i] = float64(hmm.order[i]) * sq[i] / sxq[i]
		} else {
			hmm.msglogger.Printf("Branch %d has no time-weighted occupancy, rate not updated\n", i)
			hmm.Warnings.ZeroTimeWeight++
		}

		hmm.init[i] = sq[i] / float64(hmm.NTime)

		row := str[i*nb : (i+1)*nb]
		rs := floats.Sum(row)
		if rs > 0 {
			floats.ScaleTo(hmm.trans[i*nb:(i+1)*nb], 1/rs, row)
		} else {
			hmm.msglogger.Printf("Branch %d has no transition mass, transitions not updated\n", i)
			hmm.Warnings.ZeroTransRow++
		}
	}
}
