// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

// dirMode tells how the current search direction was produced.
type dirMode int

const (
	modeSteepest dirMode = iota // d = -g
	modeCG                      // Hager–Zhang recurrence
	modeLBFGS                   // two-loop recursion
	modeSubspace                // reduced quasi-Newton step inside span(S)
	modePrecond                 // preconditioned recurrence leaving the subspace
)

var modeNames = [...]string{
	modeSteepest: "steepest",
	modeCG:       "cg",
	modeLBFGS:    "lbfgs",
	modeSubspace: "subspace",
	modePrecond:  "precond",
}

func (m dirMode) String() string { return modeNames[m] }

// quasiNewton reports whether the unit step is the natural first trial.
func (m dirMode) quasiNewton() bool {
	return m == modeLBFGS || m == modeSubspace
}

// stepState carries an accepted step to the direction updater.
type stepState struct {
	alpha    float64   // accepted step
	d        []float64 // previous direction on entry, new direction on return
	gnew     []float64 // gradient at the new iterate
	y        []float64 // gnew - g
	dphi0    float64   // gᵀd
	dphi     float64   // gnewᵀd
	dnorm2   float64   // ‖d‖²
	gnorm2   float64   // ‖gnew‖²
	modified bool      // d was altered after the updater produced it
}

// dirUpdater computes the next search direction after an accepted step.
type dirUpdater interface {
	// reset discards all curvature information.
	reset()
	// next overwrites st.d with the new direction.
	next(st *stepState, restart bool) dirMode
}

func newDirUpdater(spec *iterSpec, stats *Statistics) dirUpdater {
	switch spec.strategy {
	case LBFGS:
		return newLBFGS(spec)
	case LimitedCG:
		return newLimitedCG(spec, stats)
	}
	return &hzUpdater{kern: spec.kern, param: &spec.param}
}

func steepest(k kernels, st *stepState) dirMode {
	k.scaleTo(st.d, -one, st.gnew)
	return modeSteepest
}

// hzBeta computes the Hager–Zhang parameter
//
//	βₖ = (yₖᵀgₖ₊₁ - θ·‖yₖ‖²·dₖᵀgₖ₊₁/dₖᵀyₖ) / dₖᵀyₖ
//	βₖ = 𝚖𝚊𝚡(βₖ, β_lower·dₖᵀgₖ/‖dₖ‖²)
//
// from precomputed yᵀg and ‖y‖². It fails when dᵀy ≤ 0.
func hzBeta(p *Param, st *stepState, ykgk, ykyk float64) (float64, bool) {
	dkyk := st.dphi - st.dphi0
	if !(dkyk > zero) {
		return zero, false
	}
	beta := (ykgk - p.Theta*st.dphi*ykyk/dkyk) / dkyk
	return max(beta, p.BetaLower*st.dphi0/st.dnorm2), true
}

// hzUpdater is the classic conjugate gradient recurrence dₖ₊₁ = -gₖ₊₁ + βₖdₖ.
type hzUpdater struct {
	kern  kernels
	param *Param
}

func (u *hzUpdater) reset() {}

func (u *hzUpdater) next(st *stepState, restart bool) dirMode {
	if restart {
		return steepest(u.kern, st)
	}
	k := u.kern
	beta, ok := hzBeta(u.param, st, k.dot(st.y, st.gnew), k.dot(st.y, st.y))
	if !ok {
		return steepest(k, st)
	}
	k.scaleTo(st.d, beta, st.d)
	k.axpy(-one, st.gnew, st.d)
	return modeCG
}
