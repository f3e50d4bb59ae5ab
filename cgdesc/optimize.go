// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

var (
	// ErrMalformedInput is wrapped by every validation error of Problem.New.
	ErrMalformedInput = errors.New("malformed input")
	// ErrOutOfMemory is wrapped by allocation failures of Optimizer.Init.
	ErrOutOfMemory = errors.New("out of memory")
)

// Boundary connects the optimizer to an external active-set coordinator.
type Boundary struct {
	// MaxStep returns the largest feasible step along d from x.
	// A non-positive or infinite value means unbounded.
	MaxStep func(x, d []float64) float64
	// Project modifies d in place after every direction update.
	Project func(x, d []float64)
}

// IterInfo describes one accepted iteration.
type IterInfo struct {
	Iter  int     // Iteration number starting from 1.
	F     float64 // Cost at the new iterate.
	GNorm float64 // ‖g‖∞ at the new iterate.
	Alpha float64 // Accepted step.
	Evals int     // Evaluations spent by the line search.
	Mode  string  // Direction update used for the next step.
}

// Monitor observes a run. Calls are made synchronously from Fit and Resume.
type Monitor interface {
	Iteration(info IterInfo)
	Finish(res *Result)
}

// Problem specifies the objective for the conjugate gradient optimizer.
//
// One of the following callback combinations is required:
//   - ValGrad, optionally with Value or Grad for evaluations that need only one of them
//   - Value and Grad
//   - HessProd with an optional Linear term for f(x) = ½xᵀHx + cᵀx, other callbacks are ignored
type Problem struct {
	N        int                          // The problem dimension
	Value    func(x []float64) float64    // Cost only
	Grad     func(x, g []float64)         // Gradient only
	ValGrad  func(x, g []float64) float64 // Cost and gradient
	HessProd func(d, hd []float64)        // Hessian-vector product of a quadratic
	Linear   []float64                    // Linear term of a quadratic
	Param    *Param                       // Optional tuning constants
	Bound    *Boundary                    // Optional coordinator hooks
	Monitor  Monitor                      // Optional observer
}

func malformed(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, a...))
}

// New creates a new optimizer for given problem.
func (p *Problem) New(logger *zap.Logger) (optimizer *Optimizer, err error) {

	if logger == nil {
		logger = zap.NewNop()
	}

	var param Param
	if p.Param != nil {
		param = *p.Param
	} else {
		param = DefaultParam()
	}

	quad := p.HessProd != nil
	n := p.N

	switch {
	case n <= 0:
		err = malformed("problem dimension must greater than 0")
	case quad && p.Linear != nil && len(p.Linear) != n:
		err = malformed("linear term size must equal to n")
	case !quad && p.ValGrad == nil && (p.Value == nil || p.Grad == nil):
		err = malformed("value and gradient evaluation are required")
	}
	if err != nil {
		return
	}
	if err = param.validate(); err != nil {
		err = malformed("%v", err)
		return
	}

	strategy := param.Strategy
	if strategy == Auto {
		switch {
		case param.Memory > 0 && n <= param.Memory:
			strategy = LBFGS
		case param.Memory > 0:
			strategy = LimitedCG
		default:
			strategy = PlainCG
		}
	}
	mem := 0
	if strategy != PlainCG {
		mem = min(param.Memory, n)
	}

	spec := iterSpec{
		n: n, mem: mem,
		strategy: strategy,
		param:    param,
		quad:     quad,
		call: callbacks{
			value:    p.Value,
			grad:     p.Grad,
			valGrad:  p.ValGrad,
			hessProd: p.HessProd,
		},
		bound:   p.Bound,
		monitor: p.Monitor,
		logger:  logger.Named("cgdesc"),
		kern:    newKernels(param.ParallelLen),
	}
	if quad && p.Linear != nil {
		spec.linear = append([]float64(nil), p.Linear...)
	}

	optimizer = &Optimizer{spec}
	return
}

// Optimizer implemented using the CG_DESCENT algorithm.
type Optimizer struct {
	iterSpec
}

// Workspace contains the state and context of the optimization process.
// Given problem dimension n and memory m, the workspace holds
// about float64[6×n + 2×mn + 2×m²] for limited-memory strategies
// and float64[6×n] for plain conjugate gradient.
// A workspace stays valid after a run so that Resume can continue it.
type Workspace struct {
	n, m     int
	strategy Strategy
	iterCtx
}

// Statistics counts the work performed by a run.
type Statistics struct {
	Iterations      int // Accepted iterations.
	FuncEvals       int // Cost evaluations.
	GradEvals       int // Gradient evaluations.
	HessProds       int // Hessian-vector products in quadratic mode.
	SubspaceEntries int // Times the limited-memory CG entered the subspace.
	SubspaceIters   int // Iterations performed inside the subspace.
	Restarts        int // Restarts with the steepest descent direction.
	LineSearchEvals int // Evaluations spent inside line searches.
}

// Result contains the final result of the optimization process.
type Result struct {
	Status     Status  // Final status after optimization.
	OK         bool    // Whether the optimization converged.
	F          float64 // Final function value.
	GNorm      float64 // Final ‖g‖∞.
	Statistics         // Work performed so far.
}

// workspaceSize returns the number of float64 required, or false when it overflows.
func workspaceSize(n, m int) (int, bool) {
	const limit = math.MaxInt / 16
	if n > limit || m > limit || (m > 0 && n > limit/(2*m+1)) {
		return 0, false
	}
	return 6*n + 2*m*n + 2*m*m, true
}

// Init allocate the workspace for the optimizer.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one optimizer.
func (o *Optimizer) Init() (w *Workspace, err error) {
	if _, ok := workspaceSize(o.n, o.mem); !ok {
		err = fmt.Errorf("%w: workspace of n=%d m=%d", ErrOutOfMemory, o.n, o.mem)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w, err = nil, fmt.Errorf("%w: %v", ErrOutOfMemory, r)
		}
	}()
	w = new(Workspace)
	w.n, w.m, w.strategy = o.n, o.mem, o.strategy
	w.init(&o.iterSpec)
	return
}

// Fit runs the optimization process from the initial guess x using workspace w.
// x is overwritten with the final iterate.
func (o *Optimizer) Fit(x []float64, w *Workspace) *Result {
	if w == nil {
		return notStarted(o, nil, OutOfMemory)
	}
	o.check(x, w)
	driver := iterDriver{
		optimizer: o,
		workspace: w,
		location:  &iterLoc{x: x},
	}
	return driver.run(false)
}

// Resume continues a run that stopped with BoundaryHit, reusing the history in w.
// The coordinator may have changed x in between; cost and gradient are re-evaluated.
func (o *Optimizer) Resume(x []float64, w *Workspace) *Result {
	if w == nil {
		return notStarted(o, nil, OutOfMemory)
	}
	o.check(x, w)
	driver := iterDriver{
		optimizer: o,
		workspace: w,
		location:  &iterLoc{x: x},
	}
	return driver.run(w.resumable)
}

// ResetDirection discards the search direction and the history,
// so the next Resume starts with the steepest descent direction.
func (w *Workspace) ResetDirection() {
	w.resetDir = true
}

func (o *Optimizer) check(x []float64, w *Workspace) {
	if len(x) != o.n {
		panic("initial x dimension not match spec")
	}
	if w.n != o.n || w.m != o.mem || w.strategy != o.strategy {
		panic("workspace dimension not match spec")
	}
}

// notStarted builds the result of a run that did not start.
func notStarted(o *Optimizer, w *Workspace, status Status) *Result {
	res := &Result{Status: status, F: math.NaN(), GNorm: math.NaN()}
	if w != nil {
		res.Statistics = w.stats
	}
	o.logger.Info("optimization not started", zap.Stringer("status", status))
	if o.monitor != nil {
		o.monitor.Finish(res)
	}
	return res
}
