// Package erchmm fits an Erlang-branch Coxian hidden Markov model
// (ER-CHMM) to a sequence of inter-arrival times using the EM algorithm.
package erchmm

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Status is the state of the EM iteration.
type Status uint8

// Running, etc. are the possible values of Status.
const (
	Running Status = iota
	Converged
	MaxIterReached
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case MaxIterReached:
		return "max-iter-reached"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

var (
	// ErrConfig is wrapped by all errors reporting malformed setup arguments.
	ErrConfig = errors.New("erchmm: invalid configuration")

	// ErrDegenerate is wrapped when the forward or backward vector at some
	// observation is identically zero (or not finite), so the recursion
	// can no longer be rescaled.
	ErrDegenerate = errors.New("erchmm: degenerate forward/backward recursion")
)

// Config holds the EM iteration and summation parameters.
type Config struct {

	// The log-likelihood convergence test is skipped until the iteration
	// count exceeds MinIter+1.
	MinIter int

	// Maximum number of M-steps.
	MaxIter int

	// Stop when the log-likelihood increases by less than log(1+Eps).
	Eps float64

	// Number of slots per cell in the cascaded sums.
	Levels int

	// A running slot total that is at least MaxPhi times the value being
	// added is carried to the next slot.
	MaxPhi float64
}

// DefaultConfig returns reasonable default fitting parameters.
func DefaultConfig() Config {
	return Config{
		MinIter: 0,
		MaxIter: 200,
		Eps:     1e-7,
		Levels:  3,
		MaxPhi:  1e4,
	}
}

func (cfg Config) validate() error {

	switch {
	case cfg.MinIter < 0:
		return fmt.Errorf("%w: MinIter=%d is negative", ErrConfig, cfg.MinIter)
	case cfg.MaxIter < 0:
		return fmt.Errorf("%w: MaxIter=%d is negative", ErrConfig, cfg.MaxIter)
	case cfg.Eps < 0 || math.IsNaN(cfg.Eps):
		return fmt.Errorf("%w: Eps=%v must be non-negative", ErrConfig, cfg.Eps)
	case cfg.Levels < 1:
		return fmt.Errorf("%w: Levels=%d must be at least 1", ErrConfig, cfg.Levels)
	case !(cfg.MaxPhi > 0):
		return fmt.Errorf("%w: MaxPhi=%v must be positive", ErrConfig, cfg.MaxPhi)
	}

	return nil
}

// ErChmm is a fitting session for one ER-CHMM and one observation
// sequence.  All parameter and working storage is owned by the session and
// allocated once in New.
type ErChmm struct {

	// Number of branches
	NBranch int

	// Number of observed inter-arrival times
	NTime int

	cfg Config

	// Erlang order of each branch
	order []int

	// The initial branch probabilities
	init []float64

	// The Erlang rate of each branch
	rate []float64

	// The branch transition matrix, row-major
	trans []float64

	// The observed inter-arrival times
	obs []float64

	// Branch densities at each observation
	fmat [][]float64

	// Scaled forward and backward vectors.  The unscaled value of row k
	// is amat[k] * 2^ascale[k], and likewise for bmat.
	amat   [][]float64
	bmat   [][]float64
	ascale []int
	bscale []int

	// Scaled likelihood, sum_i init[i]*bmat[0][i]
	rawlik float64

	// Unnormalized posterior branch occupancy for one observation
	qcur []float64

	// Cascaded sums of the posterior occupancy, the time-weighted
	// occupancy, and the branch transitions.
	sumq  *cascade
	sumxq *cascade
	sumtr *cascade

	// The log-likelihood at the current parameters
	logli float64

	// The log-likelihood at each iteration of the last call to Fit
	llf []float64

	status Status

	// Number of completed M-steps
	niter int

	Warnings warnings

	progress func(iter int, llf float64)

	// Write log messages here
	msglogger *log.Logger
	parlogger *log.Logger
}

type warnings struct {
	ForwardUnderflow  int
	BackwardUnderflow int
	ZeroTransRow      int
	ZeroTimeWeight    int
	ZeroOccupancy     int
	LogLikeDecreased  int
}

// New returns a fitting session.  The order, init and rate slices hold one
// value per branch, trans is the row-major branch transition matrix, and
// obs is the sequence of inter-arrival times.  All arguments are copied.
func New(order []int, init, rate, trans, obs []float64, cfg Config) (*ErChmm, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	nb := len(order)
	if nb < 1 {
		return nil, fmt.Errorf("%w: at least one branch is required", ErrConfig)
	}
	if len(init) != nb || len(rate) != nb {
		return nil, fmt.Errorf("%w: %d branches but len(init)=%d, len(rate)=%d",
			ErrConfig, nb, len(init), len(rate))
	}
	if len(trans) != nb*nb {
		return nil, fmt.Errorf("%w: transition matrix has %d values, want %d",
			ErrConfig, len(trans), nb*nb)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: empty observation sequence", ErrConfig)
	}

	for i := 0; i < nb; i++ {
		if order[i] < 1 {
			return nil, fmt.Errorf("%w: branch %d has order %d", ErrConfig, i, order[i])
		}
		if !(rate[i] > 0) || math.IsInf(rate[i], 1) {
			return nil, fmt.Errorf("%w: branch %d has rate %v", ErrConfig, i, rate[i])
		}
		if !validProb(init[i]) {
			return nil, fmt.Errorf("%w: branch %d has initial probability %v", ErrConfig, i, init[i])
		}
	}
	for j, p := range trans {
		if !validProb(p) {
			return nil, fmt.Errorf("%w: transition (%d, %d) is %v", ErrConfig, j/nb, j%nb, p)
		}
	}
	for k, x := range obs {
		if !(x >= 0) || math.IsInf(x, 1) {
			return nil, fmt.Errorf("%w: observation %d is %v", ErrConfig, k, x)
		}
	}

	nt := len(obs)
	hmm := &ErChmm{
		NBranch:   nb,
		NTime:     nt,
		cfg:       cfg,
		order:     append([]int(nil), order...),
		init:      append([]float64(nil), init...),
		rate:      append([]float64(nil), rate...),
		trans:     append([]float64(nil), trans...),
		obs:       append([]float64(nil), obs...),
		fmat:      makeFloatArray(nt, nb),
		amat:      makeFloatArray(nt, nb),
		bmat:      makeFloatArray(nt, nb),
		ascale:    make([]int, nt),
		bscale:    make([]int, nt),
		qcur:      make([]float64, nb),
		sumq:      newCascade(cfg.Levels, nb, cfg.MaxPhi),
		sumxq:     newCascade(cfg.Levels, nb, cfg.MaxPhi),
		sumtr:     newCascade(cfg.Levels, nb*nb, cfg.MaxPhi),
		logli:     math.Inf(-1),
		llf:       make([]float64, 0, min(cfg.MaxIter+1, 1024)),
		msglogger: log.New(os.Stderr, "", log.Ltime),
		parlogger: log.New(io.Discard, "", 0),
	}

	return hmm, nil
}

func validProb(p float64) bool {
	return p >= 0 && !math.IsInf(p, 1)
}

// SetLogger creates the files logname_msg.log and logname_par.log and
// directs the message and parameter logs to them.  The message logger is
// returned so that the calling program can also use it.
func (hmm *ErChmm) SetLogger(logname string) (*log.Logger, error) {

	mfid, err := os.Create(logname + "_msg.log")
	if err != nil {
		return nil, err
	}

	pfid, err := os.Create(logname + "_par.log")
	if err != nil {
		mfid.Close()
		return nil, err
	}

	hmm.msglogger = log.New(mfid, "", log.Ltime)
	hmm.parlogger = log.New(pfid, "", 0)

	return hmm.msglogger, nil
}

// SetLoggers replaces the message and parameter loggers.  A nil logger
// discards its output.
func (hmm *ErChmm) SetLoggers(msg, par *log.Logger) {
	if msg == nil {
		msg = log.New(io.Discard, "", 0)
	}
	if par == nil {
		par = log.New(io.Discard, "", 0)
	}
	hmm.msglogger = msg
	hmm.parlogger = par
}

// SetProgress registers a function that is called after the log-likelihood
// is evaluated in each iteration of Fit.
func (hmm *ErChmm) SetProgress(f func(iter int, llf float64)) {
	hmm.progress = f
}

// Message writes a message to the message log.
func (hmm *ErChmm) Message(msg string) {
	hmm.msglogger.Print(msg)
}

// Config returns the fitting parameters of the session.
func (hmm *ErChmm) Config() Config {
	return hmm.cfg
}

// Loglike returns the log-likelihood at the current parameters, as of the
// last call to Fit or ComputeLoglike.
func (hmm *ErChmm) Loglike() float64 {
	return hmm.logli
}

// LLF returns the log-likelihood at each iteration of the last call to Fit.
func (hmm *ErChmm) LLF() []float64 {
	return append([]float64(nil), hmm.llf...)
}

// Status returns the state of the last call to Fit.
func (hmm *ErChmm) Status() Status {
	return hmm.status
}

// Iterations returns the number of M-steps performed by the last call to Fit.
func (hmm *ErChmm) Iterations() int {
	return hmm.niter
}

// Order returns the Erlang order of each branch.
func (hmm *ErChmm) Order() []int {
	return append([]int(nil), hmm.order...)
}

// Init returns the initial branch probabilities.
func (hmm *ErChmm) Init() []float64 {
	return append([]float64(nil), hmm.init...)
}

// Rate returns the Erlang rate of each branch.
func (hmm *ErChmm) Rate() []float64 {
	return append([]float64(nil), hmm.rate...)
}

// Trans returns the branch transition matrix in row-major order.
func (hmm *ErChmm) Trans() []float64 {
	return append([]float64(nil), hmm.trans...)
}

// TransMatrix returns a copy of the branch transition matrix.
func (hmm *ErChmm) TransMatrix() *mat.Dense {
	return mat.NewDense(hmm.NBranch, hmm.NBranch, hmm.Trans())
}

// Obs returns the observed inter-arrival times.
func (hmm *ErChmm) Obs() []float64 {
	return append([]float64(nil), hmm.obs...)
}

// AIC returns the log-likelihood penalized by the number of free
// parameters.
func (hmm *ErChmm) AIC() float64 {

	nb := hmm.NBranch
	df := 0
	df += nb - 1        // Initial branch distribution
	df += nb            // Rates
	df += nb * (nb - 1) // Transition matrix

	return hmm.logli - float64(df)
}

// Zero the elements of x
func zero(x []float64) {
	for j := range x {
		x[j] = 0
	}
}

// makeIntArray makes a collection of r slices
// of length c, packed contiguously.
func makeIntArray(r, c int) [][]int {

	bka := make([]int, r*c)
	x := make([][]int, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}

// makeFloatArray makes a collection of r slices
// of length c, packed contiguously.
func makeFloatArray(r, c int) [][]float64 {

	bka := make([]float64, r*c)
	x := make([][]float64, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}
