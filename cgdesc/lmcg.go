// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// limitedCG is the conjugate gradient recurrence augmented with subspace detection.
//
// The recent steps span S = Z·R. When the new gradient lies almost entirely in
// span(S), the iteration is confined to the subspace and driven by a reduced
// limited-memory BFGS operator Ĥ in the coordinates ĝ = Zᵀg. When the gradient
// leaves the subspace again, one preconditioned step with
//
//	P = Z·Ĥ·Zᵀ + (I - ZZᵀ)
//
// carries the reduced curvature back into the full space recurrence.
type limitedCG struct {
	kern   kernels
	param  *Param
	stats  *Statistics
	logger *zap.Logger

	basis *subspace
	hist  *history
	inSub bool
	dim   int // basis size while in the subspace

	s, pg, py []float64 // n

	ghat, gold, dhat, shat, yhat, col, tmp []float64 // mem

	// the previous direction was -g + β·d and its step became the newest column
	plain    bool
	inserted bool
	beta     float64
	alpha    float64
}

func newLimitedCG(spec *iterSpec, stats *Statistics) *limitedCG {
	n, m := spec.n, spec.mem
	buf := make([]float64, 7*m)
	next := func() (v []float64) {
		v, buf = buf[:m:m], buf[m:]
		return
	}
	return &limitedCG{
		kern:   spec.kern,
		param:  &spec.param,
		stats:  stats,
		logger: spec.logger,
		basis:  newSubspace(m, n, spec.kern),
		hist:   newHistory(m, m),
		s:      make([]float64, n),
		pg:     make([]float64, n),
		py:     make([]float64, n),
		ghat:   next(),
		gold:   next(),
		dhat:   next(),
		shat:   next(),
		yhat:   next(),
		col:    next(),
		tmp:    next(),
	}
}

func (u *limitedCG) reset() {
	u.basis.clear()
	u.hist.clear()
	u.inSub = false
	u.plain, u.inserted = false, false
}

func (u *limitedCG) next(st *stepState, restart bool) dirMode {
	if u.inSub {
		if !st.modified && !restart {
			return u.subStep(st)
		}
		u.leave(zero)
	}

	u.record(st)
	ratio := u.project(st.gnew, st.gnorm2)

	if restart {
		u.plain, u.beta = true, zero
		return steepest(u.kern, st)
	}

	p, m := u.param, u.basis.len()
	if m > 0 && (ratio >= one-p.Eta2 || (u.basis.full() && ratio > one-p.Eta0)) {
		u.enter(st, ratio)
		return u.reducedStep(st)
	}

	k := u.kern
	beta, ok := hzBeta(p, st, k.dot(st.y, st.gnew), k.dot(st.y, st.y))
	if !ok {
		u.plain, u.beta = true, zero
		return steepest(k, st)
	}
	k.scaleTo(st.d, beta, st.d)
	k.axpy(-one, st.gnew, st.d)
	u.plain, u.beta = true, beta
	return modeCG
}

// shortcut reports whether Zᵀs can be formed from the previous coordinates.
// With dₖ = -gₖ + βdₖ₋₁ and sₖ₋₁ = αₖ₋₁dₖ₋₁ the newest column of R,
//
//	Zᵀsₖ = αₖ(-ĝₖ + β·R(:, last)/αₖ₋₁)
func (u *limitedCG) shortcut(st *stepState) bool {
	tol := u.param.UnitStepTol
	return u.plain && u.inserted && !st.modified && u.basis.len() > 0 &&
		math.Abs(st.alpha-one) <= tol && math.Abs(u.alpha-one) <= tol
}

// record inserts the accepted step into the basis.
func (u *limitedCG) record(st *stepState) {
	k, m := u.kern, u.basis.len()
	k.scaleTo(u.s, st.alpha, st.d)
	col := u.col[:m]
	var ss float64
	if u.shortcut(st) {
		last := u.basis.last()
		for i := range col {
			col[i] = st.alpha * (u.beta*last[i]/u.alpha - u.ghat[i])
		}
		ss = st.alpha * st.alpha * st.dnorm2
	} else {
		u.basis.coords(u.s, col)
		ss = k.dot(u.s, u.s)
	}
	u.inserted = u.basis.insert(u.s, col, ss)
	u.alpha = st.alpha
}

// project computes ĝ = Zᵀg and returns ‖ĝ‖²/‖g‖².
func (u *limitedCG) project(g []float64, gnorm2 float64) float64 {
	m := u.basis.len()
	if m == 0 || !(gnorm2 > zero) {
		return zero
	}
	u.basis.coords(g, u.ghat)
	return floats.Dot(u.ghat[:m], u.ghat[:m]) / gnorm2
}

func (u *limitedCG) enter(st *stepState, ratio float64) {
	u.inSub = true
	u.dim = u.basis.len()
	u.stats.SubspaceEntries++
	u.hist.clear()
	// scale the reduced operator by the curvature of the last full step
	if sy, yy := st.alpha*(st.dphi-st.dphi0), u.kern.dot(st.y, st.y); sy > zero && yy > zero {
		u.hist.gamma = sy / yy
	}
	u.logger.Debug("subspace entered", zap.Int("dim", u.dim), zap.Float64("ratio", ratio))
}

func (u *limitedCG) leave(ratio float64) {
	u.inSub = false
	u.hist.clear()
	u.logger.Debug("subspace left", zap.Float64("ratio", ratio))
}

// reducedStep sets d = -Z·Ĥ·ĝ.
func (u *limitedCG) reducedStep(st *stepState) dirMode {
	m := u.dim
	dhat := u.dhat[:m]
	copy(dhat, u.ghat[:m])
	u.hist.apply(dhat, kernels{})
	floats.Scale(-one, dhat)
	u.basis.expand(dhat, st.d)
	copy(u.gold[:m], u.ghat[:m])
	u.stats.SubspaceIters++
	u.plain = false
	return modeSubspace
}

// subStep updates the reduced operator with the last subspace step and either
// continues in the subspace or leaves it with a preconditioned step.
func (u *limitedCG) subStep(st *stepState) dirMode {
	m := u.dim
	ratio := u.project(st.gnew, st.gnorm2)

	shat, yhat := u.shat[:m], u.yhat[:m]
	floats.ScaleTo(shat, st.alpha, u.dhat[:m])
	floats.SubTo(yhat, u.ghat[:m], u.gold[:m])
	u.hist.push(shat, yhat, kernels{})

	if ratio >= one-u.param.Eta1 {
		return u.reducedStep(st)
	}
	return u.exit(st, ratio)
}

// precond computes out = P·v = v + Z(Ĥv̂ - v̂) given v̂ = Zᵀv.
func (u *limitedCG) precond(v, vhat, out []float64) {
	m := u.dim
	t := u.tmp[:m]
	copy(t, vhat[:m])
	u.hist.apply(t, kernels{})
	floats.Sub(t, vhat[:m])
	u.basis.expand(t, out)
	u.kern.axpy(one, v, out)
}

// exit leaves the subspace with the preconditioned Hager–Zhang step
//
//	βₖ = (yᵀPg - θ·yᵀPy·dᵀg/dᵀy) / dᵀy
//	dₖ₊₁ = -Pg + βₖdₖ
func (u *limitedCG) exit(st *stepState, ratio float64) dirMode {
	k, p := u.kern, u.param
	u.precond(st.gnew, u.ghat, u.pg)
	// Zᵀy = ĝₖ₊₁ - ĝₖ while the basis is fixed
	u.precond(st.y, u.yhat, u.py)
	beta, ok := hzBeta(p, st, k.dot(st.y, u.pg), k.dot(st.y, u.py))
	u.leave(ratio)
	u.plain = false
	if !ok {
		return steepest(k, st)
	}
	k.scaleTo(st.d, beta, st.d)
	k.axpy(-one, u.pg, st.d)
	return modePrecond
}
