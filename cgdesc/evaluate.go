// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"

	"go.uber.org/zap"
)

// evalMode selects which quantities an evaluation must produce.
type evalMode int

const (
	evalF evalMode = 1 << iota
	evalG
	evalFG = evalF | evalG
)

// guard runs a caller supplied routine and converts a panic into EvalPanic.
func guard(log *zap.Logger, fn func()) (status Status) {
	status = iterLoop
	defer func() {
		if r := recover(); r != nil {
			status = EvalPanic
			log.Error("callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
	return
}

// call evaluates the objective at x, writing the gradient into g when requested.
// The cheapest callback able to produce the requested quantities is used.
func (d *iterDriver) call(x, g []float64, mode evalMode) (f float64, status Status) {
	o, w := d.optimizer, d.workspace
	if o.param.MaxEval > 0 && w.calls >= o.param.MaxEval {
		return math.NaN(), MaxEvaluations
	}
	w.calls++
	f = math.NaN()
	cb := &o.call
	status = guard(o.logger, func() {
		switch {
		case o.quad:
			f = d.quadCost(x, g)
		case mode == evalF && cb.value != nil:
			f = cb.value(x)
			w.stats.FuncEvals++
		case mode == evalG && cb.grad != nil:
			cb.grad(x, g)
			w.stats.GradEvals++
		case cb.valGrad != nil:
			f = cb.valGrad(x, g)
			w.stats.FuncEvals++
			w.stats.GradEvals++
		default:
			f = cb.value(x)
			cb.grad(x, g)
			w.stats.FuncEvals++
			w.stats.GradEvals++
		}
	})
	return
}

// hessian computes hv = H·v, counted against the evaluation budget.
func (d *iterDriver) hessian(v, hv []float64) Status {
	o, w := d.optimizer, d.workspace
	if o.param.MaxEval > 0 && w.calls >= o.param.MaxEval {
		return MaxEvaluations
	}
	w.calls++
	return guard(o.logger, func() {
		o.call.hessProd(v, hv)
		w.stats.HessProds++
	})
}

// quadCost evaluates f(x) = ½xᵀHx + cᵀx and g = Hx + c with one Hessian product.
func (d *iterDriver) quadCost(x, g []float64) float64 {
	o, w := d.optimizer, d.workspace
	o.call.hessProd(x, g)
	w.stats.HessProds++
	if o.linear == nil {
		return half * o.kern.dot(x, g)
	}
	o.kern.axpy(one, o.linear, g)
	// xᵀ(g + c) = xᵀHx + 2cᵀx
	return half * (o.kern.dot(x, g) + o.kern.dot(x, o.linear))
}

// trial evaluates the objective at x + α·d and stores the cost and slope in the search context.
//
// A non-finite cost or slope is retried with the step pulled back towards base:
//
//	α ← base + γ(α - base),  γ ← γ·InfDecayRate
//
// at most NInfTries times before FunctionNaNOrInf is reported.
// The returned step is the one actually evaluated.
func (d *iterDriver) trial(alpha float64, mode evalMode, base float64) (float64, Status) {
	o, w, loc := d.optimizer, d.workspace, d.location
	p, s, k := &o.param, &w.search, o.kern

	decay := p.InfDecay
	for try := 0; ; try++ {
		k.axpyTo(w.xnew, loc.x, alpha, w.d)
		f, status := d.call(w.xnew, w.gnew, mode)
		s.evals++
		w.stats.LineSearchEvals++
		if status != iterLoop {
			return alpha, status
		}

		ok := mode&evalF == 0 || isFinite(f)
		df := zero
		if mode&evalG != 0 {
			df = k.dot(w.gnew, w.d)
			ok = ok && isFinite(df)
		}
		if ok {
			if mode&evalF != 0 {
				s.f = f
			}
			if mode&evalG != 0 {
				s.df = df
			}
			s.alpha = alpha
			if try > 0 {
				s.rho = p.InfRho
			}
			return alpha, iterLoop
		}

		if try >= p.NInfTries {
			return alpha, FunctionNaNOrInf
		}
		o.logger.Debug("non-finite evaluation",
			zap.Int("try", try+1), zap.Float64("alpha", alpha))
		alpha = base + decay*(alpha-base)
		decay *= p.InfDecayRate
	}
}
