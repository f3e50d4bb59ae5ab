// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"

	"go.uber.org/zap"
)

const (
	zero  = 0.0
	half  = 0.5
	one   = 1.0
	two   = 2.0
	three = 3.0
)

// noStep is returned by the step estimators when no usable estimate exists.
const noStep = -1.0

var epsilon = math.Nextafter(1, 2) - 1

// Status reports why the optimizer stopped.
type Status int

const (
	// Satisfied the gradient sup-norm reached the requested tolerance.
	Satisfied Status = iota
	// CostChangeSatisfied the predicted change of the cost fell below Feps·|f|.
	CostChangeSatisfied
	// MaxIterations the iteration budget was exhausted.
	MaxIterations
	// MaxEvaluations the function and gradient evaluation budget was exhausted.
	MaxEvaluations
	// LineSearchExhausted the solve phase of the line search ran out of steps.
	LineSearchExhausted
	// ExpansionExhausted the bracket could not be established within NExpand expansions.
	ExpansionExhausted
	// WolfeNotSatisfied the perturbation eps was grown more than NEps times.
	WolfeNotSatisfied
	// IntervalCollapsed the bracketing interval shrank to a single float.
	IntervalCollapsed
	// NotDescent the search direction was not a descent direction after a forced restart.
	NotDescent
	// FunctionNaNOrInf the cost or gradient stayed non-finite after NInfTries retries.
	FunctionNaNOrInf
	// StartingValueNonfinite the cost at the starting point is NaN or infinite.
	StartingValueNonfinite
	// QuadNoLowerBound the quadratic has non-positive curvature along the search direction.
	QuadNoLowerBound
	// NoImprovement neither cost nor gradient improved during NSlow iterations.
	NoImprovement
	// MalformedInput the problem dimension or the callback combination is invalid.
	MalformedInput
	// OutOfMemory the workspace could not be allocated.
	OutOfMemory
	// BoundaryHit the accepted step reached the externally supplied maximum step.
	BoundaryHit
	// EvalPanic a caller supplied callback panicked.
	EvalPanic
)

// iterLoop is the internal status of a run that has not terminated yet.
const iterLoop Status = -1

var statusNames = [...]string{
	Satisfied:              "SATISFIED",
	CostChangeSatisfied:    "COST_CHANGE_SATISFIED",
	MaxIterations:          "MAX_ITERATIONS",
	MaxEvaluations:         "MAX_EVALUATIONS",
	LineSearchExhausted:    "LINE_SEARCH_EXHAUSTED",
	ExpansionExhausted:     "EXPANSION_EXHAUSTED",
	WolfeNotSatisfied:      "WOLFE_CONDITIONS_NOT_SATISFIED",
	IntervalCollapsed:      "INTERVAL_COLLAPSED",
	NotDescent:             "NOT_DESCENT",
	FunctionNaNOrInf:       "FUNCTION_NAN_OR_INF",
	StartingValueNonfinite: "STARTING_VALUE_NONFINITE",
	QuadNoLowerBound:       "QUADRATIC_NO_LOWER_BOUND",
	NoImprovement:          "NO_IMPROVEMENT",
	MalformedInput:         "MALFORMED_INPUT",
	OutOfMemory:            "OUT_OF_MEMORY",
	BoundaryHit:            "BOUNDARY_HIT",
	EvalPanic:              "EVAL_PANIC",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	if s == iterLoop {
		return "RUNNING"
	}
	return "UNKNOWN"
}

// Success reports whether the status is one of the convergence codes.
func (s Status) Success() bool {
	return s == Satisfied || s == CostChangeSatisfied
}

// searchFailed reports whether a line search failure may be retried with approximate Wolfe.
func (s Status) searchFailed() bool {
	switch s {
	case LineSearchExhausted, ExpansionExhausted, WolfeNotSatisfied, IntervalCollapsed:
		return true
	}
	return false
}

// iterSpec is the immutable part of a run shared by all workspaces.
type iterSpec struct {
	n, mem   int
	strategy Strategy
	param    Param
	quad     bool
	call     callbacks
	linear   []float64
	bound    *Boundary
	monitor  Monitor
	logger   *zap.Logger
	kern     kernels
}

// callbacks holds the caller supplied evaluation routines.
type callbacks struct {
	value    func(x []float64) float64
	grad     func(x, g []float64)
	valGrad  func(x, g []float64) float64
	hessProd func(d, hd []float64)
}

// iterLoc is the current iterate. x is owned by the caller.
type iterLoc struct {
	x []float64
	f float64
}

// searchCtx is the state of one line search.
// awolfe and pertRule persist across searches of a run.
type searchCtx struct {
	alpha     float64 // current trial step
	f0, df0   float64 // cost and slope at alpha = 0
	f, df     float64 // cost and slope at the trial step
	fpert     float64 // perturbed acceptance threshold
	eps       float64 // current perturbation
	pertRule  bool    // relative perturbation
	wolfeHi   float64 // δ·φ′(0)
	wolfeLo   float64 // σ·φ′(0)
	awolfeHi  float64 // (2δ-1)·φ′(0)
	awolfe    bool    // approximate Wolfe conditions in use
	wolfeUsed bool    // an ordinary Wolfe search needed more than one trial
	quadOK    bool    // trial comes from an interpolation step
	useCubic  bool
	rho       float64 // bracket growth factor
	neps      int     // number of fpert growths
	maxStep   float64 // externally supplied bound on alpha, 0 means none
	evals     int     // evaluations in this iteration
}

// iterCtx is the per-run mutable state.
type iterCtx struct {
	g, xnew, gnew, d, y []float64
	hd                  []float64 // H·d in quadratic mode

	search searchCtx
	dir    dirUpdater

	gnorm, gnorm2 float64 // sup-norm and squared 2-norm of g
	dnorm2        float64 // squared 2-norm of d
	dphi0         float64 // gᵀd
	tol           float64 // gradient stopping tolerance
	alpha         float64 // last accepted step
	fPrev         float64 // cost at the previous iterate
	dfPrev        float64 // slope at the previous iterate
	smallCost     float64
	fresh         bool // no step accepted yet

	ck, qk     float64 // decayed average of |f|
	quadCount  int     // consecutive near-quadratic iterations
	nrestart   int     // iterations since the last restart
	restartMax int
	fBest      float64
	gBest      float64
	slow       int
	calls      int  // callback invocations counted against MaxEval
	modified   bool // d was changed outside of the updater
	resumable  bool
	resetDir   bool
	lastMode   dirMode
	stats      Statistics
}
