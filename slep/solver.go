package slep

import (
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// lineSearchSlack absorbs round-off in the sufficient decrease test.
const lineSearchSlack = 1e-12

// Status is the state of a Solver run.
type Status int

const (
	StatusInit Status = iota
	StatusIterating
	StatusConverged
	StatusMaxIterReached
	StatusFailed
)

var statusNames = [...]string{"INIT", "ITERATING", "CONVERGED", "MAX_ITER_REACHED", "FAILED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Done reports whether no further iteration will run.
func (s Status) Done() bool {
	return s == StatusConverged || s == StatusMaxIterReached || s == StatusFailed
}

// IterationEvent describes one completed iteration.
type IterationEvent struct {
	Iteration  int
	Objective  float64 // F at the candidate point
	Lipschitz  float64
	Backtracks int
	Accepted   bool // false when the previous iterate was kept
	Elapsed    time.Duration
}

// FinishEvent describes the end of a Solve call.
type FinishEvent struct {
	Status     Status
	Iterations int
	Objective  float64
	Err        error
}

// Hooks observe a run. Nil fields are skipped. Hooks run on the solving
// goroutine and must not block.
type Hooks struct {
	OnIteration func(IterationEvent)
	OnFinish    func(FinishEvent)
}

// Result is the outcome of a run. W is owned by the caller.
type Result struct {
	W          []float64
	Iterations int
	Converged  bool
	Objective  float64
	Status     Status
	Lipschitz  float64
}

// Solver minimizes fn(W) + z*Omega(W) with an accelerated proximal gradient
// method and a backtracking estimate of the Lipschitz constant. All mutable
// state of a run lives in the struct, so a run can be driven one Step at a
// time.
type Solver struct {
	fn         Function
	rel        Relation
	prox       proxFunc
	param      *Parameter
	numClasses int
	hooks      Hooks

	w     []float64 // W_t, the best iterate so far
	wPrev []float64 // W_{t-1}
	z     []float64 // search point Z_t
	u     []float64 // prox-gradient candidate
	g     []float64
	d     []float64 // u - z

	alpha     float64
	lipschitz float64
	objective float64 // F(W_t)
	iter      int
	status    Status
	err       error
}

// NewSolver prepares a run at param.InitSol, or at zero when it is nil. The
// weight layout is row-major NumVariables()/numClasses x numClasses.
func NewSolver(fn Function, rel Relation, param *Parameter, numClasses int) (*Solver, error) {
	if err := param.Validate(); err != nil {
		return nil, err
	}
	n := fn.NumVariables()
	if numClasses < 1 || n%numClasses != 0 {
		return nil, configErrorf("numClasses", "%d variables cannot be split into %d classes", n, numClasses)
	}
	var prox proxFunc
	if rel != nil {
		var err error
		if prox, err = resolveProx(rel, n/numClasses); err != nil {
			return nil, err
		}
	}
	s := &Solver{
		fn:         fn,
		rel:        rel,
		prox:       prox,
		param:      param,
		numClasses: numClasses,
		w:          make([]float64, n),
		wPrev:      make([]float64, n),
		z:          make([]float64, n),
		u:          make([]float64, n),
		g:          make([]float64, n),
		d:          make([]float64, n),
	}
	if err := s.Reset(nil); err != nil {
		return nil, err
	}
	return s, nil
}

// SetHooks installs observers for the following iterations.
func (s *Solver) SetHooks(h Hooks) {
	s.hooks = h
}

// Reset puts the solver back to INIT at w0. A nil w0 starts from
// param.InitSol, or from zero when no warm start is set.
func (s *Solver) Reset(w0 []float64) error {
	if w0 == nil {
		w0 = s.param.InitSol
	}
	if w0 != nil && len(w0) != len(s.w) {
		return configErrorf("init_sol", "warm start has %d values, expected %d", len(w0), len(s.w))
	}
	if w0 == nil {
		for i := range s.w {
			s.w[i] = 0
		}
	} else {
		copy(s.w, w0)
	}
	copy(s.wPrev, s.w)
	copy(s.z, s.w)
	s.alpha = 1
	s.lipschitz = s.param.lipschitzInit
	s.iter = 0
	s.err = nil
	s.status = StatusInit

	f, err := s.objectiveAt(s.w)
	if err != nil {
		return s.fail(err)
	}
	s.objective = f
	return nil
}

func (s *Solver) objectiveAt(w []float64) (float64, error) {
	if !allFinite(w) {
		return 0, numericalErrorf("objective", "weights contain NaN or Inf")
	}
	f := s.fn.Value(w)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, numericalErrorf("objective", "loss value is %g", f)
	}
	return f + s.param.z*PenaltyMatrix(w, s.numClasses, s.rel), nil
}

func (s *Solver) fail(err error) error {
	var ne *NumericalError
	if errors.As(err, &ne) && ne.Iteration == 0 {
		ne.Iteration = s.iter
	}
	s.status = StatusFailed
	s.err = err
	return err
}

// Status returns the current state.
func (s *Solver) Status() Status { return s.status }

// Iteration returns the number of completed iterations.
func (s *Solver) Iteration() int { return s.iter }

// Lipschitz returns the current Lipschitz estimate.
func (s *Solver) Lipschitz() float64 { return s.lipschitz }

// Objective returns F at the current iterate.
func (s *Solver) Objective() float64 { return s.objective }

// Weights returns a copy of the current iterate.
func (s *Solver) Weights() []float64 { return append([]float64(nil), s.w...) }

// Step runs one iteration. It is a no-op once the run has converged or hit
// the iteration cap, and returns the original error after a failure.
func (s *Solver) Step() error {
	switch s.status {
	case StatusFailed:
		return s.err
	case StatusConverged, StatusMaxIterReached:
		return nil
	}
	start := time.Now()
	s.status = StatusIterating
	s.iter++

	fz := s.fn.Value(s.z)
	s.fn.Gradient(s.z, s.g)
	if math.IsNaN(fz) || math.IsInf(fz, 0) || !allFinite(s.g) {
		return s.fail(numericalErrorf("gradient", "loss or gradient at the search point is not finite"))
	}

	backtracks := 0
	var fu float64
	for {
		step := 1 / s.lipschitz
		for i := range s.u {
			s.u[i] = s.z[i] - step*s.g[i]
		}
		if err := shrink(s.prox, s.u, s.numClasses, step, s.rel, s.param.z); err != nil {
			return s.fail(err)
		}
		fu = s.fn.Value(s.u)
		if math.IsNaN(fu) || math.IsInf(fu, 0) {
			return s.fail(numericalErrorf("line search", "loss value is %g", fu))
		}
		floats.SubTo(s.d, s.u, s.z)
		bound := fz + floats.Dot(s.g, s.d) + 0.5*s.lipschitz*floats.Dot(s.d, s.d)
		if fu <= bound+lineSearchSlack*math.Max(1, math.Abs(bound)) {
			break
		}
		if backtracks == s.param.maxBacktracks {
			return s.fail(numericalErrorf("line search", "no step satisfied the quadratic bound after %d Lipschitz increases (L=%g)",
				backtracks, s.lipschitz))
		}
		s.lipschitz *= s.param.lipschitzGrowth
		backtracks++
	}

	candidate := fu + s.param.z*PenaltyMatrix(s.u, s.numClasses, s.rel)
	prev := s.objective
	accepted := candidate <= prev
	alphaNext := (1 + math.Sqrt(1+4*s.alpha*s.alpha)) / 2

	copy(s.wPrev, s.w)
	if accepted {
		copy(s.w, s.u)
		s.objective = candidate
	}
	// Z = W_t + (a_t/a_{t+1})(U - W_t) + ((a_t-1)/a_{t+1})(W_t - W_{t-1})
	a, b := s.alpha/alphaNext, (s.alpha-1)/alphaNext
	for i := range s.z {
		s.z[i] = s.w[i] + a*(s.u[i]-s.w[i]) + b*(s.w[i]-s.wPrev[i])
	}
	s.alpha = alphaNext

	p := progress{
		prevObjective: prev,
		objective:     candidate,
		lipschitz:     s.lipschitz,
		stepNorm:      floats.Norm(s.d, 2),
	}
	switch {
	case s.param.termination.done(p, s.param.eps):
		s.status = StatusConverged
	case s.iter >= s.param.maxIters:
		s.status = StatusMaxIterReached
	}

	if s.hooks.OnIteration != nil {
		s.hooks.OnIteration(IterationEvent{
			Iteration:  s.iter,
			Objective:  candidate,
			Lipschitz:  s.lipschitz,
			Backtracks: backtracks,
			Accepted:   accepted,
			Elapsed:    time.Since(start),
		})
	}
	return nil
}

// Solve resets the solver to w0 and iterates until it converges, reaches the
// iteration cap or fails. Reaching the cap is not an error; the result then
// has Converged false and carries the best iterate.
func (s *Solver) Solve(w0 []float64) (*Result, error) {
	res, err := s.solve(w0)
	if s.hooks.OnFinish != nil {
		s.hooks.OnFinish(FinishEvent{Status: s.status, Iterations: s.iter, Objective: s.objective, Err: err})
	}
	return res, err
}

func (s *Solver) solve(w0 []float64) (*Result, error) {
	if err := s.Reset(w0); err != nil {
		return nil, err
	}
	if s.param.maxIters == 0 {
		s.status = StatusMaxIterReached
		return s.result(), nil
	}
	for !s.status.Done() {
		if err := s.Step(); err != nil {
			return nil, err
		}
	}
	logDebug("solver finished", "status", s.status, "iterations", s.iter, "objective", s.objective, "lipschitz", s.lipschitz)
	return s.result(), nil
}

func (s *Solver) result() *Result {
	return &Result{
		W:          append([]float64(nil), s.w...),
		Iterations: s.iter,
		Converged:  s.status == StatusConverged,
		Objective:  s.objective,
		Status:     s.status,
		Lipschitz:  s.lipschitz,
	}
}
