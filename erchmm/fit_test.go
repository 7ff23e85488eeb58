package erchmm

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/kshedden/erchmm/erchmmsim"
	"gonum.org/v1/gonum/floats"
)

type model struct {
	order []int
	init  []float64
	rate  []float64
	trans []float64
}

var models = []model{
	{
		order: []int{1},
		init:  []float64{1},
		rate:  []float64{2},
		trans: []float64{1},
	},
	{
		order: []int{2, 1},
		init:  []float64{4.0 / 7, 3.0 / 7},
		rate:  []float64{20, 1},
		trans: []float64{0.7, 0.3, 0.4, 0.6},
	},
	{
		order: []int{1, 2, 3},
		init:  []float64{1.0 / 3, 1.0 / 3, 1.0 / 3},
		rate:  []float64{0.5, 10, 60},
		trans: []float64{0.8, 0.1, 0.1, 0.2, 0.7, 0.1, 0.1, 0.2, 0.7},
	},
}

func gendat(t *testing.T, m model, n int, seed int64) ([]float64, []int) {

	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	obs, branch, err := erchmmsim.Generate(m.order, m.init, m.rate, m.trans, n, rng)
	if err != nil {
		t.Fatal(err)
	}

	return obs, branch
}

func checkRowSums(t *testing.T, hmm *ErChmm) {

	t.Helper()

	nb := hmm.NBranch
	trans := hmm.Trans()
	for i := 0; i < nb; i++ {
		s := floats.Sum(trans[i*nb : (i+1)*nb])
		if math.Abs(s-1) > 1e-5 {
			t.Errorf("transition row %d sums to %v", i, s)
		}
	}
}

// Confirm that the log-likelihood is non-decreasing over the EM iterations.
func TestLLFAscending(t *testing.T) {

	for mix, m := range models {
		for _, ntm := range []int{200, 2000} {
			for seed := int64(1); seed <= 3; seed++ {

				obs, _ := gendat(t, m, ntm, seed)
				init, rate, trans := StartParams(m.order, obs)

				cfg := DefaultConfig()
				cfg.MaxIter = 50
				hmm := newQuiet(t, m.order, init, rate, trans, obs, cfg)
				if err := hmm.Fit(); err != nil {
					t.Fatalf("model %d, ntm=%d, seed=%d: %v", mix, ntm, seed, err)
				}

				// The step that ends the fit at convergence may be a tiny decrease.
				llf := hmm.LLF()
				last := len(llf)
				if hmm.Status() == Converged {
					last--
				}
				for i := 1; i < last; i++ {
					if llf[i] < llf[i-1]-1e-3 {
						t.Errorf("model %d, ntm=%d, seed=%d, iter=%d: %f %f %f", mix, ntm, seed, i,
							llf[i-1], llf[i], llf[i-1]-llf[i])
					}
				}

				if llf[len(llf)-1] < llf[0]-1e-9 {
					t.Errorf("model %d, ntm=%d, seed=%d: final llf %f below initial %f", mix, ntm, seed,
						llf[len(llf)-1], llf[0])
				}
				if len(llf) != hmm.Iterations()+1 {
					t.Errorf("%d log-likelihood values for %d iterations", len(llf), hmm.Iterations())
				}
				checkRowSums(t, hmm)
			}
		}
	}
}

func TestExponentialRate(t *testing.T) {

	obs, _ := gendat(t, models[0], 1000, 11)

	hmm := newQuiet(t, []int{1}, []float64{1}, []float64{0.3}, []float64{1}, obs, DefaultConfig())
	if err := hmm.Fit(); err != nil {
		t.Fatal(err)
	}

	want := 1 / floats.Sum(obs) * float64(len(obs))
	got := hmm.Rate()[0]
	if math.Abs(got-want) > 0.05*want {
		t.Errorf("fitted rate %v, want %v", got, want)
	}
	if math.Abs(got-2) > 0.3 {
		t.Errorf("fitted rate %v is far from the generating rate 2", got)
	}
	if hmm.Status() != Converged {
		t.Errorf("status %v, want %v", hmm.Status(), Converged)
	}
}

func TestRecoverTwoBranch(t *testing.T) {

	m := models[1]
	obs, branch := gendat(t, m, 5000, 5)

	cfg := DefaultConfig()
	cfg.MaxIter = 1000
	cfg.Eps = 1e-10
	hmm := newQuiet(t, m.order, []float64{0.5, 0.5}, []float64{10, 2},
		[]float64{0.5, 0.5, 0.5, 0.5}, obs, cfg)

	if err := hmm.Fit(); err != nil {
		t.Fatal(err)
	}

	llf := hmm.LLF()
	if !(hmm.Loglike() > llf[0]) {
		t.Errorf("final log-likelihood %v does not exceed initial %v", hmm.Loglike(), llf[0])
	}

	rate := hmm.Rate()
	for i := range rate {
		if math.Abs(rate[i]-m.rate[i]) > 0.15*m.rate[i] {
			t.Errorf("rate %d is %v, generated with %v", i, rate[i], m.rate[i])
		}
	}

	if !floats.EqualApprox(hmm.Trans(), m.trans, 0.1) {
		t.Errorf("transitions %v, generated with %v", hmm.Trans(), m.trans)
	}
	if !floats.EqualApprox(hmm.Init(), m.init, 0.1) {
		t.Errorf("initial probabilities %v, stationary distribution %v", hmm.Init(), m.init)
	}
	checkRowSums(t, hmm)

	e, n, err := CompareBranches(hmm.ReconstructBranches(), branch)
	if err != nil {
		t.Fatal(err)
	}
	if float64(e) > 0.25*float64(n) {
		t.Errorf("%d/%d reconstruction errors", e, n)
	}
}

func TestSingleObservation(t *testing.T) {

	trans := []float64{0.9, 0.1, 0.3, 0.7}
	hmm := newQuiet(t, []int{2, 1}, []float64{0.5, 0.5}, []float64{3, 1}, trans,
		[]float64{0.7}, DefaultConfig())

	if err := hmm.Fit(); err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(hmm.Loglike()) || math.IsInf(hmm.Loglike(), 0) {
		t.Errorf("log-likelihood %v", hmm.Loglike())
	}

	// With one observation there are no transitions to count.
	if !floats.Equal(hmm.Trans(), trans) {
		t.Errorf("transitions changed to %v", hmm.Trans())
	}
	if hmm.Warnings.ZeroTransRow == 0 {
		t.Errorf("no ZeroTransRow warnings")
	}
	for i, r := range hmm.Rate() {
		if math.IsNaN(r) || !(r > 0) {
			t.Errorf("rate %d is %v", i, r)
		}
	}
}

func TestNoIterations(t *testing.T) {

	m := models[1]
	obs, _ := gendat(t, m, 100, 9)

	cfg := DefaultConfig()
	cfg.MinIter = 0
	cfg.MaxIter = 0
	hmm := newQuiet(t, m.order, m.init, m.rate, m.trans, obs, cfg)

	if err := hmm.Fit(); err != nil {
		t.Fatal(err)
	}
	if hmm.Status() != MaxIterReached {
		t.Errorf("status %v, want %v", hmm.Status(), MaxIterReached)
	}
	if hmm.Iterations() != 0 || len(hmm.LLF()) != 1 {
		t.Errorf("%d iterations and %d log-likelihood values", hmm.Iterations(), len(hmm.LLF()))
	}
	if !floats.Equal(hmm.Rate(), m.rate) || !floats.Equal(hmm.Init(), m.init) || !floats.Equal(hmm.Trans(), m.trans) {
		t.Errorf("parameters changed without an M-step")
	}

	fresh := newQuiet(t, m.order, m.init, m.rate, m.trans, obs, cfg)
	want, err := fresh.ComputeLoglike()
	if err != nil {
		t.Fatal(err)
	}
	if hmm.Loglike() != want {
		t.Errorf("log-likelihood %v, want %v", hmm.Loglike(), want)
	}
}

func TestUnreachableBranch(t *testing.T) {

	obs, _ := gendat(t, models[0], 300, 13)

	// Branch 1 has no initial probability and cannot be entered.
	trans := []float64{1, 0, 1, 0}
	hmm := newQuiet(t, []int{1, 1}, []float64{1, 0}, []float64{1, 3}, trans, obs, DefaultConfig())

	if err := hmm.Fit(); err != nil {
		t.Fatal(err)
	}

	if !floats.Equal(hmm.Trans(), trans) {
		t.Errorf("transitions %v, want %v", hmm.Trans(), trans)
	}
	if r := hmm.Rate()[1]; r != 3 {
		t.Errorf("rate of the unreachable branch changed to %v", r)
	}
	if hmm.Warnings.ZeroTransRow == 0 || hmm.Warnings.ZeroTimeWeight == 0 {
		t.Errorf("missing warnings: %+v", hmm.Warnings)
	}

	want := float64(len(obs)) / floats.Sum(obs)
	if got := hmm.Rate()[0]; math.Abs(got-want) > 1e-8*want {
		t.Errorf("rate of the reachable branch is %v, want %v", got, want)
	}
}

func TestLevelsAgree(t *testing.T) {

	m := models[2]
	obs, _ := gendat(t, m, 1000, 17)
	init, rate, trans := StartParams(m.order, obs)

	var fits []*ErChmm
	for _, lev := range []int{1, 4} {
		cfg := DefaultConfig()
		cfg.MinIter = 30
		cfg.MaxIter = 30
		cfg.Levels = lev
		hmm := newQuiet(t, m.order, init, rate, trans, obs, cfg)
		if err := hmm.Fit(); err != nil {
			t.Fatal(err)
		}
		fits = append(fits, hmm)
	}

	if !floats.EqualApprox(fits[0].Rate(), fits[1].Rate(), 1e-6) {
		t.Errorf("rates %v and %v", fits[0].Rate(), fits[1].Rate())
	}
	if !floats.EqualApprox(fits[0].Trans(), fits[1].Trans(), 1e-6) {
		t.Errorf("transitions %v and %v", fits[0].Trans(), fits[1].Trans())
	}
}

func TestConfigErrors(t *testing.T) {

	order := []int{1, 2}
	init := []float64{0.5, 0.5}
	rate := []float64{1, 2}
	trans := []float64{0.5, 0.5, 0.5, 0.5}
	obs := []float64{0.1, 0.5, 2}

	badcfg := func(f func(*Config)) Config {
		cfg := DefaultConfig()
		f(&cfg)
		return cfg
	}

	for _, p := range []struct {
		name  string
		order []int
		init  []float64
		rate  []float64
		trans []float64
		obs   []float64
		cfg   Config
	}{
		{"no branches", []int{}, []float64{}, []float64{}, []float64{}, obs, DefaultConfig()},
		{"short init", order, []float64{1}, rate, trans, obs, DefaultConfig()},
		{"short rate", order, init, []float64{1}, trans, obs, DefaultConfig()},
		{"short trans", order, init, rate, []float64{1, 0}, obs, DefaultConfig()},
		{"empty obs", order, init, rate, trans, nil, DefaultConfig()},
		{"zero order", []int{0, 2}, init, rate, trans, obs, DefaultConfig()},
		{"zero rate", order, init, []float64{0, 2}, trans, obs, DefaultConfig()},
		{"negative rate", order, init, []float64{1, -2}, trans, obs, DefaultConfig()},
		{"NaN rate", order, init, []float64{math.NaN(), 2}, trans, obs, DefaultConfig()},
		{"negative init", order, []float64{-0.5, 1.5}, rate, trans, obs, DefaultConfig()},
		{"negative trans", order, init, rate, []float64{1.5, -0.5, 0.5, 0.5}, obs, DefaultConfig()},
		{"negative obs", order, init, rate, trans, []float64{0.1, -1}, DefaultConfig()},
		{"infinite obs", order, init, rate, trans, []float64{math.Inf(1)}, DefaultConfig()},
		{"negative maxiter", order, init, rate, trans, obs, badcfg(func(c *Config) { c.MaxIter = -1 })},
		{"negative miniter", order, init, rate, trans, obs, badcfg(func(c *Config) { c.MinIter = -1 })},
		{"negative eps", order, init, rate, trans, obs, badcfg(func(c *Config) { c.Eps = -1 })},
		{"zero levels", order, init, rate, trans, obs, badcfg(func(c *Config) { c.Levels = 0 })},
		{"zero maxphi", order, init, rate, trans, obs, badcfg(func(c *Config) { c.MaxPhi = 0 })},
	} {
		_, err := New(p.order, p.init, p.rate, p.trans, p.obs, p.cfg)
		if !errors.Is(err, ErrConfig) {
			t.Errorf("%s: got error %v, want ErrConfig", p.name, err)
		}
	}
}

func TestInputsCopied(t *testing.T) {

	order := []int{1, 2}
	init := []float64{0.5, 0.5}
	rate := []float64{1, 2}
	trans := []float64{0.5, 0.5, 0.5, 0.5}
	obs := []float64{0.1, 0.5, 2}

	hmm := newQuiet(t, order, init, rate, trans, obs, DefaultConfig())

	rate[0] = 100
	trans[0] = 0
	if hmm.Rate()[0] != 1 || hmm.Trans()[0] != 0.5 {
		t.Errorf("session shares storage with its arguments")
	}

	r := hmm.Rate()
	r[1] = 100
	if hmm.Rate()[1] != 2 {
		t.Errorf("session shares storage with its accessors")
	}

	tm := hmm.TransMatrix()
	if rr, cc := tm.Dims(); rr != 2 || cc != 2 || tm.At(1, 0) != 0.5 {
		t.Errorf("unexpected transition matrix %v", tm)
	}
}
