// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import "gonum.org/v1/gonum/floats"

// history stores the most recent correction pairs (sᵢ, yᵢ) of a limited-memory BFGS operator.
// Pairs may be shorter than the storage, so the same history serves the full space
// and the reduced coordinates of a subspace.
type history struct {
	ring  ring
	s, y  [][]float64
	rho   []float64 // 1/sᵢᵀyᵢ
	alpha []float64
	gamma float64 // initial scaling H₀ = γI
}

func newHistory(m, dim int) *history {
	h := &history{
		ring:  newRing(m),
		s:     make([][]float64, m),
		y:     make([][]float64, m),
		rho:   make([]float64, m),
		alpha: make([]float64, m),
		gamma: one,
	}
	buf := make([]float64, 2*m*dim)
	for i := 0; i < m; i++ {
		h.s[i], buf = buf[:dim:dim], buf[dim:]
		h.y[i], buf = buf[:dim:dim], buf[dim:]
	}
	return h
}

func (h *history) len() int { return h.ring.len() }

func (h *history) clear() {
	h.ring.clear()
	h.gamma = one
}

// push stores a pair when it has positive curvature sᵀy > ε·‖y‖² and updates γ = sᵀy/yᵀy.
func (h *history) push(s, y []float64, k kernels) bool {
	sy, yy := k.dot(s, y), k.dot(y, y)
	if !(sy > epsilon*yy) || !(yy > zero) {
		return false
	}
	n := len(s)
	j := h.ring.push()
	copy(h.s[j][:n], s)
	copy(h.y[j][:n], y)
	h.rho[j] = one / sy
	h.gamma = sy / yy
	return true
}

// apply overwrites v with H·v using the two-loop recursion.
func (h *history) apply(v []float64, k kernels) {
	n := len(v)
	for i := h.ring.len() - 1; i >= 0; i-- {
		j := h.ring.slot(i)
		h.alpha[j] = h.rho[j] * k.dot(h.s[j][:n], v)
		k.axpy(-h.alpha[j], h.y[j][:n], v)
	}
	floats.Scale(h.gamma, v)
	for i := 0; i < h.ring.len(); i++ {
		j := h.ring.slot(i)
		beta := h.rho[j] * k.dot(h.y[j][:n], v)
		k.axpy(h.alpha[j]-beta, h.s[j][:n], v)
	}
}

// lbfgsUpdater computes dₖ₊₁ = -Hₖ₊₁gₖ₊₁ from the last m steps.
type lbfgsUpdater struct {
	kern kernels
	hist *history
	s    []float64
}

func newLBFGS(spec *iterSpec) *lbfgsUpdater {
	return &lbfgsUpdater{
		kern: spec.kern,
		hist: newHistory(spec.mem, spec.n),
		s:    make([]float64, spec.n),
	}
}

func (u *lbfgsUpdater) reset() { u.hist.clear() }

func (u *lbfgsUpdater) next(st *stepState, restart bool) dirMode {
	k := u.kern
	if restart {
		u.hist.clear()
		return steepest(k, st)
	}
	k.scaleTo(u.s, st.alpha, st.d)
	u.hist.push(u.s, st.y, k)
	if u.hist.len() == 0 {
		return steepest(k, st)
	}
	copy(st.d, st.gnew)
	u.hist.apply(st.d, k)
	k.scaleTo(st.d, -one, st.d)
	return modeLBFGS
}
