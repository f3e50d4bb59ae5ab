// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"

	"go.uber.org/zap"
)

// contractResult is the outcome of an interval contraction.
type contractResult int

const (
	contractAccept  contractResult = iota // the last trial satisfies the Wolfe conditions
	contractBracket                       // a new bracket [a, b] with db ≥ 0 was stored
	contractGrow                          // fpert was enlarged, the bracket is unchanged
	contractFail                          // evaluation failed
)

// interval is one end of a bracketing interval in the ψ domain.
type interval struct {
	t, f, d float64
}

// contract shrinks [a, b] where φ′(a) < 0, φ′(b) < 0 and φ(b) > fpert,
// looking for a point with φ′ ≥ 0 or one satisfying the Wolfe conditions.
//
// Each round alternates a cubic step on [a, b], a cubic step on the most recent
// pair and bisection, bisecting as well whenever the width failed to decay by StepDecay.
// After NContract rounds the perturbation is enlarged:
//
//	fpert = f₀ + |f₀|·EpsGrow·(φ(b) - f₀)/|f₀|   if PertRule
//	fpert = f₀ + EpsGrow·(φ(b) - f₀)             otherwise
func (d *iterDriver) contract(lo, hi *interval) (contractResult, Status) {
	o, w := d.optimizer, d.workspace
	p, s := &o.param, &w.search

	a, b := *lo, *hi
	f1 := b.f
	var old interval
	toggle, width := 0, zero

	for iter := 0; iter < p.NContract; iter++ {
		var alpha float64
		switch {
		case toggle == 0 || (toggle == 2 && b.t-a.t <= width):
			alpha = cubicStep(a.t, a.f, a.d, b.t, b.f, b.d)
			toggle = 0
			width = p.StepDecay * (b.t - a.t)
			if iter > 0 {
				s.quadOK = true
			}
		case toggle == 1:
			s.quadOK = true
			if old.t < a.t {
				alpha = cubicStep(a.t, a.f, a.d, old.t, old.f, old.d)
			} else {
				alpha = cubicStep(a.t, a.f, a.d, b.t, b.f, b.d)
			}
		default:
			alpha = half * (a.t + b.t)
			s.quadOK = false
		}
		if alpha <= a.t || alpha >= b.t {
			alpha = half * (a.t + b.t)
			s.quadOK = false
		}
		toggle = (toggle + 1) % 3

		alpha, status := d.trial(alpha, evalFG, a.t)
		if status != iterLoop {
			return contractFail, status
		}
		if s.quadOK && s.wolfe(alpha, s.f, s.df) {
			return contractAccept, iterLoop
		}

		f, df := s.psi(alpha, s.f, s.df)
		if df >= zero {
			*lo = a
			*hi = interval{alpha, f, df}
			return contractBracket, iterLoop
		}
		if f <= s.fpert {
			old, a = a, interval{alpha, f, df}
		} else {
			old, b = b, interval{alpha, f, df}
		}
	}

	if math.Abs(b.f) <= w.smallCost {
		s.pertRule = false
	}
	f0 := s.f0
	switch {
	case s.pertRule && f0 != zero:
		s.eps = p.EpsGrow * (f1 - f0) / math.Abs(f0)
		s.fpert = f0 + math.Abs(f0)*s.eps
	case s.pertRule:
		s.fpert = two * f1
	default:
		s.eps = p.EpsGrow * (f1 - f0)
		s.fpert = f0 + s.eps
	}
	s.neps++
	o.logger.Debug("perturbation enlarged",
		zap.Int("neps", s.neps), zap.Float64("fpert", s.fpert))
	return contractGrow, iterLoop
}
