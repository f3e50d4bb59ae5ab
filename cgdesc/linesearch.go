// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

// wolfe tests the Wolfe conditions on φ(α) = f(x + α·d)
//
//	φ′(α) ≥ σ·φ′(0) and φ(α) - φ(0) ≤ δ·α·φ′(0)
//
// or, when the approximate conditions are enabled,
//
//	φ′(α) ≥ σ·φ′(0) and φ(α) ≤ fpert and φ′(α) ≤ (2δ-1)·φ′(0)
func (s *searchCtx) wolfe(alpha, f, df float64) bool {
	if df >= s.wolfeLo {
		if f-s.f0 <= alpha*s.wolfeHi {
			return true
		}
		if s.awolfe && f <= s.fpert && df <= s.awolfeHi {
			return true
		}
	}
	return false
}

// psi maps φ to the function searched for a bracket.
// Ordinary Wolfe searches use ψ(α) = φ(α) - δ·α·φ′(0) so that the sufficient
// decrease condition becomes a bracketing condition.
func (s *searchCtx) psi(alpha, f, df float64) (float64, float64) {
	if s.awolfe {
		return f, df
	}
	return f - alpha*s.wolfeHi, df - s.wolfeHi
}

// bounded reports whether alpha reached the coordinator's step bound.
func (s *searchCtx) bounded(alpha float64) bool {
	return s.maxStep > zero && alpha >= s.maxStep
}

// line searches along d starting from the trial step alpha.
//
// The bracket phase grows [a, b] until ψ′(b) ≥ 0, contracting whenever ψ(b) > fpert.
// The solve phase then alternates secant or cubic steps on [a, b], a step on the
// most recent pair of the interval and bisection. On return with iterLoop or
// BoundaryHit, xnew and gnew hold the accepted point.
func (d *iterDriver) line(alpha float64) Status {
	o, w := d.optimizer, d.workspace
	p, s := &o.param, &w.search

	if s.maxStep > zero {
		alpha = min(alpha, s.maxStep)
	}
	alpha, status := d.trial(alpha, evalFG, zero)
	if status != iterLoop {
		return status
	}
	if s.quadOK && s.f <= s.f0 && s.wolfe(alpha, s.f, s.df) {
		return iterLoop
	}
	if !s.awolfe {
		s.wolfeUsed = true
	}

	_, d0 := s.psi(zero, s.f0, s.df0)
	a := interval{zero, s.f0, d0}
	fb, db := s.psi(alpha, s.f, s.df)
	b := interval{alpha, fb, db}

	// the two most recent left ends drive the secant extrapolation
	a1, a2 := zero, zero
	d1, d2 := d0, d0

	for ngrow := 1; b.d < zero; {
		if b.f > s.fpert {
			r, status := d.contract(&a, &b)
			switch r {
			case contractAccept:
				return iterLoop
			case contractBracket:
				return d.solve(a, b)
			case contractFail:
				return status
			}
			if s.neps > p.NEps {
				return WolfeNotSatisfied
			}
		}

		if s.bounded(b.t) {
			if s.alpha != b.t {
				if _, status = d.trial(b.t, evalFG, a.t); status != iterLoop {
					return status
				}
			}
			return BoundaryHit
		}

		ngrow++
		if ngrow > p.NExpand {
			return ExpansionExhausted
		}

		a = b
		d2, d1 = d1, a.d
		a2, a1 = a1, a.t

		t := b.t
		bmin := s.rho * t
		if (ngrow == 2 || ngrow == 3 || ngrow == 6) && d1 > d2 {
			if ngrow == 2 || (d1-d2)/(a1-a2) >= (d2-d0)/a2 {
				// convex derivative, secant overestimates the minimizer
				t = a1 - (a1-a2)*(d1/(d1-d2))
			} else {
				t = a1 - p.SecantAmp*(a1-a2)*(d1/(d1-d2))
			}
			t = min(t, p.ExpandSafe*a1)
		} else {
			s.rho *= p.RhoGrow
		}
		t = max(bmin, t)
		if s.maxStep > zero {
			t = min(t, s.maxStep)
		}

		if t, status = d.trial(t, evalFG, a.t); status != iterLoop {
			return status
		}
		fb, db = s.psi(t, s.f, s.df)
		b = interval{t, fb, db}
	}

	return d.solve(a, b)
}

// solve shrinks a bracket with ψ′(a) < 0 ≤ ψ′(b) and ψ(a) ≤ fpert
// until the Wolfe conditions hold.
func (d *iterDriver) solve(a, b interval) Status {
	o, w := d.optimizer, d.workspace
	p, s := &o.param, &w.search

	var a0, b0 interval
	toggle, width := 0, b.t-a.t
	lastA := false

	for iter := 0; iter < p.MaxSteps; iter++ {
		var alpha float64
		switch {
		case toggle == 0 || (toggle == 2 && b.t-a.t <= width):
			s.quadOK = true
			if s.useCubic {
				alpha = cubicOrSecant(a.t, a.f, a.d, b.t, b.f, b.d)
			} else {
				alpha = secantStep(a.t, a.d, b.t, b.d)
			}
			width = p.StepDecay * (b.t - a.t)
			toggle = 0
		case toggle == 1:
			s.quadOK = true
			if s.useCubic {
				if lastA {
					alpha = cubicStep(a0.t, a0.f, a0.d, a.t, a.f, a.d)
				} else {
					alpha = cubicStep(b.t, b.f, b.d, b0.t, b0.f, b0.d)
				}
				if alpha <= a.t || alpha >= b.t {
					alpha = cubicOrSecant(a.t, a.f, a.d, b.t, b.f, b.d)
				}
			} else {
				switch {
				case lastA && a.d > a0.d:
					alpha = a.t - (a.t-a0.t)*(a.d/(a.d-a0.d))
				case b.d < b0.d:
					alpha = b.t - (b.t-b0.t)*(b.d/(b.d-b0.d))
				default:
					alpha = secantStep(a.t, a.d, b.t, b.d)
				}
				if alpha <= a.t || alpha >= b.t {
					alpha = secantStep(a.t, a.d, b.t, b.d)
				}
			}
		default:
			alpha = half * (a.t + b.t)
			s.quadOK = false
		}

		if alpha <= a.t || alpha >= b.t {
			alpha = half * (a.t + b.t)
			if alpha == a.t || alpha == b.t {
				return IntervalCollapsed
			}
			s.quadOK = false
		}

		if toggle == 0 {
			a0, b0 = a, b
		}
		toggle = (toggle + 1) % 3

		alpha, status := d.trial(alpha, evalFG, a.t)
		if status != iterLoop {
			return status
		}
		if s.quadOK && s.wolfe(alpha, s.f, s.df) {
			return iterLoop
		}

		f, df := s.psi(alpha, s.f, s.df)
		switch {
		case df >= zero:
			b, lastA = interval{alpha, f, df}, false
		case f <= s.fpert:
			a, lastA = interval{alpha, f, df}, true
		default:
			prev := b
			b, lastA = interval{alpha, f, df}, false
			r, status := d.contract(&a, &b)
			switch r {
			case contractAccept:
				return iterLoop
			case contractFail:
				return status
			case contractGrow:
				if s.neps > p.NEps {
					return WolfeNotSatisfied
				}
				a, b = b, prev
			}
		}
	}
	return LineSearchExhausted
}
