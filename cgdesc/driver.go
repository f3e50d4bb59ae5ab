// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// init allocates the vectors and the direction updater of a workspace.
func (c *iterCtx) init(spec *iterSpec) {
	n := spec.n
	vectors := 5
	if spec.quad {
		vectors++
	}
	buf := make([]float64, vectors*n)
	next := func() (v []float64) {
		v, buf = buf[:n:n], buf[n:]
		return
	}
	c.g, c.xnew, c.gnew, c.d, c.y = next(), next(), next(), next(), next()
	if spec.quad {
		c.hd = next()
	}
	c.dir = newDirUpdater(spec, &c.stats)
	c.restartMax = int(math.Ceil(spec.param.RestartFac * float64(n)))
}

// clear resets the state of a new run while keeping the allocations.
func (c *iterCtx) clear(spec *iterSpec) {
	p := &spec.param
	c.dir.reset()
	c.stats = Statistics{}
	c.calls = 0
	c.search = searchCtx{
		awolfe:   p.AWolfe,
		pertRule: p.PertRule,
		eps:      p.Eps,
	}
	c.ck, c.qk = zero, zero
	c.quadCount, c.nrestart, c.slow = 0, 0, 0
	c.modified, c.resumable, c.resetDir = false, false, false
	c.lastMode = modeSteepest
}

// iterDriver is the main driver for iterations in an optimization process,
// responsible for managing the flow of the optimization.
type iterDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	location  *iterLoc
}

// run executes the main loop and builds the result.
func (d *iterDriver) run(resume bool) *Result {
	o, w, loc := d.optimizer, d.workspace, d.location
	if !resume {
		w.clear(&o.iterSpec)
	}
	d.printInit(resume)

	status := d.mainLoop(resume)
	res := &Result{
		Status:     status,
		OK:         status.Success(),
		F:          loc.f,
		GNorm:      w.gnorm,
		Statistics: w.stats,
	}
	d.printExit(res)
	if o.monitor != nil {
		o.monitor.Finish(res)
	}
	return res
}

// mainLoop evaluates the starting point and iterates until a terminal status.
func (d *iterDriver) mainLoop(resume bool) Status {
	o, w, loc := d.optimizer, d.workspace, d.location
	p, k := &o.param, o.kern

	// Calculate f₀ and g₀
	f, status := d.call(loc.x, w.g, evalFG)
	if status != iterLoop {
		return status
	}
	loc.f = f
	w.gnorm2, w.gnorm = k.dotSup(w.g)
	if !isFinite(f) || !isFinite(w.gnorm2) {
		return StartingValueNonfinite
	}

	if !resume {
		w.tol = max(p.GradTol, w.gnorm*p.StopFactor)
	}
	if w.gnorm <= w.tol {
		return Satisfied
	}
	if !resume {
		w.fBest, w.gBest = f, w.gnorm
		w.smallCost = math.Abs(f) * p.SmallCost
		w.alpha = d.initialStep()
		w.fPrev = two * f
		w.dfPrev = -two * math.Abs(f) / w.alpha
		w.fresh = true
	}

	if !resume || w.resetDir {
		w.dir.reset()
		k.scaleTo(w.d, -one, w.g)
		w.lastMode = modeSteepest
		w.nrestart = 0
	}
	w.resetDir, w.resumable = false, false
	if status = d.orient(); status != iterLoop {
		return status
	}
	if resume {
		// the coordinator may have moved x, coordinates cached by the updater are stale
		w.modified = true
	}

	for {
		if p.MaxIter > 0 && w.stats.Iterations >= p.MaxIter {
			return MaxIterations
		}
		if status = d.iterate(); status != iterLoop {
			return status
		}
	}
}

// initialStep chooses the first trial step:
//
//	ψ₀·‖x‖∞/‖g‖∞   if x ≠ 0
//	ψ₀·|f|/‖g‖₂²   if f ≠ 0
//	1              otherwise
func (d *iterDriver) initialStep() float64 {
	o, w, loc := d.optimizer, d.workspace, d.location
	p := &o.param
	if p.Step > zero {
		return p.Step
	}
	if xnorm := o.kern.supNorm(loc.x); xnorm != zero {
		return p.Psi0 * xnorm / w.gnorm
	}
	if loc.f != zero {
		return p.Psi0 * math.Abs(loc.f) / w.gnorm2
	}
	return one
}

// maxStep queries the coordinator for the largest feasible step.
func (d *iterDriver) maxStep() (float64, Status) {
	o, w, loc := d.optimizer, d.workspace, d.location
	if o.bound == nil || o.bound.MaxStep == nil {
		return zero, iterLoop
	}
	var step float64
	status := guard(o.logger, func() { step = o.bound.MaxStep(loc.x, w.d) })
	if step <= zero || math.IsInf(step, 1) || math.IsNaN(step) {
		step = zero
	}
	return step, status
}

// iterate performs one iteration: a step along d and the next direction.
func (d *iterDriver) iterate() Status {
	o, w := d.optimizer, d.workspace
	s := &w.search

	var status Status
	if s.maxStep, status = d.maxStep(); status != iterLoop {
		return status
	}
	s.evals = 0

	if o.quad {
		status = d.quadStep()
	} else {
		status = d.search()
	}
	switch {
	case status == iterLoop && s.bounded(s.alpha):
		status = BoundaryHit
	case status != iterLoop && status != BoundaryHit:
		return status
	}
	return d.accept(status)
}

// search picks the initial trial step and runs the line search,
// retrying with the approximate Wolfe conditions when the ordinary search fails.
func (d *iterDriver) search() Status {
	o, w, loc := d.optimizer, d.workspace, d.location
	p, s := &o.param, &w.search
	f := loc.f

	base := w.alpha
	alpha := base
	if !w.fresh {
		alpha = p.Psi2 * base
	}
	s.quadOK = false
	qn := w.lastMode.quasiNewton()
	if qn {
		alpha, s.quadOK = one, true
	}

	t := one
	if f != zero {
		t = math.Abs((f - w.fPrev) / f)
	}
	s.useCubic = p.UseCubic && t >= p.CubicCutOff

	quadF := p.QRestart > 0 && w.quadCount >= min(o.n, p.QRestart)
	if !qn && p.QuadStep && ((t > p.QuadCutOff && math.Abs(f) >= w.smallCost) || quadF) {
		status := d.interpolate(&alpha, base, quadF)
		if status != iterLoop {
			return status
		}
	}

	w.qk = p.Qdecay*w.qk + one
	w.ck += (math.Abs(f) - w.ck) / w.qk

	d.begin(f, w.dphi0)

	status := d.line(alpha)
	if status.searchFailed() && !s.awolfe && p.AWolfeFac > zero {
		o.logger.Warn("wolfe line search failed, switching to approximate wolfe",
			zap.Int("iter", w.stats.Iterations+1), zap.Stringer("status", status))
		s.awolfe = true
		d.perturb()
		status = d.line(alpha)
	}
	return status
}

// begin sets the acceptance thresholds of a new search along d.
func (d *iterDriver) begin(f0, df0 float64) {
	p, s := &d.optimizer.param, &d.workspace.search
	s.f0, s.df0 = f0, df0
	s.wolfeHi = p.Delta * df0
	s.wolfeLo = p.Sigma * df0
	s.awolfeHi = (two*p.Delta - one) * df0
	d.perturb()
}

// perturb resets fpert = f₀ + ε·|f₀| (or f₀ + ε) for a new search.
func (d *iterDriver) perturb() {
	p, s := &d.optimizer.param, &d.workspace.search
	s.eps = p.Eps
	if s.pertRule {
		s.fpert = s.f0 + s.eps*math.Abs(s.f0)
	} else {
		s.fpert = s.f0 + s.eps
	}
	s.neps = 0
	s.rho = p.Rho
}

// interpolate refines the trial step with a quadratic model of φ along d.
// When the function looks quadratic, the root of the secant of φ′ is used,
// otherwise the minimizer of the quadratic through φ(0), φ′(0) and φ(t).
func (d *iterDriver) interpolate(alpha *float64, base float64, quadF bool) Status {
	o, w, loc := d.optimizer, d.workspace, d.location
	p, s := &o.param, &w.search
	f, dphi0 := loc.f, w.dphi0

	if quadF {
		trial := p.Psi1 * base
		if s.maxStep > zero {
			trial = min(trial, s.maxStep)
		}
		trial, status := d.trial(trial, evalG, zero)
		switch status {
		case iterLoop:
		case FunctionNaNOrInf:
			*alpha = trial
			return iterLoop
		default:
			return status
		}
		if s.df > dphi0 {
			*alpha = -dphi0 / ((s.df - dphi0) / trial)
			s.quadOK = true
		}
		return iterLoop
	}

	t := max(p.PsiLo, w.dfPrev/(dphi0*p.Psi2))
	trial := min(t, p.PsiHi) * base
	if s.maxStep > zero {
		trial = min(trial, s.maxStep)
	}
	trial, status := d.trial(trial, evalF, zero)
	switch status {
	case iterLoop:
	case FunctionNaNOrInf:
		*alpha = trial
		return iterLoop
	default:
		return status
	}
	denom := two * ((s.f-f)/trial - dphi0)
	if denom > zero {
		t = -dphi0 * trial / denom
		if s.f >= f {
			t = max(t, p.QuadSafe*trial)
		}
		*alpha = t
		s.quadOK = true
	}
	return iterLoop
}

// accept moves to the new iterate, checks the stopping rules and computes the next direction.
func (d *iterDriver) accept(status Status) Status {
	o, w, loc := d.optimizer, d.workspace, d.location
	p, s, k := &o.param, &w.search, o.kern

	alpha, f, dphi := s.alpha, s.f, s.df
	fPrev := loc.f

	k.subTo(w.y, w.gnew, w.g)
	copy(loc.x, w.xnew)
	loc.f = f
	w.alpha = alpha
	w.fresh = false
	w.fPrev, w.dfPrev = fPrev, w.dphi0
	w.stats.Iterations++
	gnorm2, gnorm := k.dotSup(w.gnew)

	restart := false
	if !o.quad {
		// how close the change of f is to that of a quadratic
		trust := zero
		if t := alpha * (dphi + w.dphi0); math.Abs(t) > p.Qeps*min(w.ck, one) {
			trust = math.Abs(two*(f-fPrev)/t - one)
		}
		if trust <= p.Qrule {
			w.quadCount++
		} else {
			w.quadCount = 0
		}
		if !s.awolfe && p.AWolfeFac > zero && math.Abs(f-fPrev) < p.AWolfeFac*w.ck {
			s.awolfe = true
			o.logger.Debug("approximate wolfe enabled", zap.Int("iter", w.stats.Iterations))
			if s.wolfeUsed {
				restart = true
			}
		}
	}

	// terminal rules are checked on the new iterate before the direction update
	final := iterLoop
	switch {
	case gnorm <= w.tol:
		final = Satisfied
	case p.Feps > zero && -alpha*w.dphi0 <= p.Feps*math.Abs(f):
		final = CostChangeSatisfied
	default:
		if f < w.fBest || gnorm < w.gBest {
			w.fBest, w.gBest = min(f, w.fBest), min(gnorm, w.gBest)
			w.slow = 0
			break
		}
		if w.slow++; w.slow >= p.NSlow {
			final = NoImprovement
		}
	}
	if final != iterLoop {
		w.g, w.gnew = w.gnew, w.g
		w.gnorm, w.gnorm2 = gnorm, gnorm2
		d.printIter(f, gnorm, alpha)
		return final
	}

	w.nrestart++
	qrestart := min(o.n, p.QRestart)
	if w.nrestart >= w.restartMax || (qrestart > 0 && w.quadCount == qrestart && w.quadCount != w.nrestart) {
		restart = true
	}
	if o.strategy == LBFGS {
		restart = false
	}

	st := stepState{
		alpha:    alpha,
		d:        w.d,
		gnew:     w.gnew,
		y:        w.y,
		dphi0:    w.dphi0,
		dphi:     dphi,
		dnorm2:   w.dnorm2,
		gnorm2:   gnorm2,
		modified: w.modified,
	}
	mode := w.dir.next(&st, restart)
	if mode == modeSteepest {
		w.nrestart = 0
		w.stats.Restarts++
	}
	w.lastMode = mode

	w.g, w.gnew = w.gnew, w.g
	w.gnorm, w.gnorm2 = gnorm, gnorm2

	next := d.orient()
	d.printIter(f, gnorm, alpha)
	if next != iterLoop {
		return next
	}
	if status == BoundaryHit {
		w.resumable = true
	}
	return status
}

// orient applies the projection hook and verifies that d is a descent direction.
// A violation is repaired once by restarting with -g.
func (d *iterDriver) orient() Status {
	o, w, loc := d.optimizer, d.workspace, d.location
	k := o.kern

	w.modified = false
	for forced := false; ; forced = true {
		if b := o.bound; b != nil && b.Project != nil {
			if status := guard(o.logger, func() { b.Project(loc.x, w.d) }); status != iterLoop {
				return status
			}
			w.modified = true
		}
		w.dphi0 = k.dot(w.g, w.d)
		w.dnorm2 = k.dot(w.d, w.d)
		if w.dphi0 < zero {
			return iterLoop
		}
		if forced {
			return NotDescent
		}
		o.logger.Warn("search direction is not a descent direction, restarting",
			zap.Int("iter", w.stats.Iterations), zap.Float64("slope", w.dphi0))
		w.dir.reset()
		k.scaleTo(w.d, -one, w.g)
		w.nrestart = 0
		w.stats.Restarts++
		w.lastMode = modeSteepest
		w.modified = true
	}
}

func (d *iterDriver) printInit(resume bool) {
	o := d.optimizer
	msg := "optimization started"
	if resume {
		msg = "optimization resumed"
	}
	o.logger.Info(msg,
		zap.Int("n", o.n),
		zap.Int("memory", o.mem),
		zap.Stringer("strategy", o.strategy),
		zap.Bool("quadratic", o.quad))
}

func (d *iterDriver) printIter(f, gnorm, alpha float64) {
	o, w := d.optimizer, d.workspace
	if o.monitor != nil {
		o.monitor.Iteration(IterInfo{
			Iter:  w.stats.Iterations,
			F:     f,
			GNorm: gnorm,
			Alpha: alpha,
			Evals: w.search.evals,
			Mode:  w.lastMode.String(),
		})
	}
	if ce := o.logger.Check(zapcore.DebugLevel, "iteration"); ce != nil {
		ce.Write(
			zap.Int("iter", w.stats.Iterations),
			zap.Float64("f", f),
			zap.Float64("gnorm", gnorm),
			zap.Float64("alpha", alpha),
			zap.Int("evals", w.search.evals),
			zap.Stringer("mode", w.lastMode))
	}
}

func (d *iterDriver) printExit(res *Result) {
	d.optimizer.logger.Info("optimization finished",
		zap.Stringer("status", res.Status),
		zap.Float64("f", res.F),
		zap.Float64("gnorm", res.GNorm),
		zap.Int("iterations", res.Iterations),
		zap.Int("funcEvals", res.FuncEvals),
		zap.Int("gradEvals", res.GradEvals),
		zap.Int("hessProds", res.HessProds),
		zap.Int("subspaceEntries", res.SubspaceEntries),
		zap.Int("restarts", res.Restarts))
}
