// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// spanTol rejects a step whose component outside span(S) is below √spanTol of its length.
const spanTol = 1e-8

// subspace maintains the factorization S = Z·R of the recent step directions,
// Z with orthonormal columns and R upper triangular with positive diagonal.
//
// Columns of S and R share ring slots. Rows of a stored R column are in logical
// order, so retiring the oldest column rotates R in place instead of shifting it.
type subspace struct {
	kern kernels
	ring ring
	s    [][]float64 // sⱼ, n each
	r    [][]float64 // R(:, j), mem each
	w    []float64
}

func newSubspace(mem, n int, k kernels) *subspace {
	b := &subspace{
		kern: k,
		ring: newRing(mem),
		s:    make([][]float64, mem),
		r:    make([][]float64, mem),
		w:    make([]float64, mem),
	}
	buf := make([]float64, mem*n+mem*mem)
	for i := 0; i < mem; i++ {
		b.s[i], buf = buf[:n:n], buf[n:]
		b.r[i], buf = buf[:mem:mem], buf[mem:]
	}
	return b
}

func (b *subspace) len() int { return b.ring.len() }

func (b *subspace) full() bool { return b.ring.full() }

func (b *subspace) clear() { b.ring.clear() }

// at returns R(i, j) in logical indices.
func (b *subspace) at(i, j int) float64 {
	return b.r[b.ring.slot(j)][i]
}

// last returns the newest column of R.
func (b *subspace) last() []float64 {
	return b.r[b.ring.newest()][:b.len()]
}

// coords computes u = Zᵀv = R⁻ᵀSᵀv.
func (b *subspace) coords(v, u []float64) {
	k := b.len()
	for j := 0; j < k; j++ {
		u[j] = b.kern.dot(b.s[b.ring.slot(j)], v)
	}
	b.solveT(u[:k])
}

// solveT overwrites u with R⁻ᵀu by forward substitution.
func (b *subspace) solveT(u []float64) {
	for i := range u {
		col := b.r[b.ring.slot(i)]
		u[i] = (u[i] - floats.Dot(col[:i], u[:i])) / col[i]
	}
}

// solve overwrites c with R⁻¹c by back substitution.
func (b *subspace) solve(c []float64) {
	k := len(c)
	for i := k - 1; i >= 0; i-- {
		sum := c[i]
		for j := i + 1; j < k; j++ {
			sum -= b.at(i, j) * c[j]
		}
		c[i] = sum / b.at(i, i)
	}
}

// expand computes v = Z·c = S·R⁻¹c.
func (b *subspace) expand(c, v []float64) {
	k := b.len()
	w := b.w[:k]
	copy(w, c[:k])
	b.solve(w)
	for i := range v {
		v[i] = zero
	}
	for j := 0; j < k; j++ {
		b.kern.axpy(w[j], b.s[b.ring.slot(j)], v)
	}
}

// retire drops the oldest column. The Hessenberg matrix left by the removal is
// reduced back to triangular form with Givens rotations on rows (i, i+1),
// which are also applied to col, the coordinates of a vector in the old basis.
// col keeps its length; its last entry holds the component leaving the span.
func (b *subspace) retire(col []float64) {
	k := b.len()
	for i := 0; i+1 < k; i++ {
		piv := b.r[b.ring.slot(i+1)]
		x, y := piv[i], piv[i+1]
		h := math.Hypot(x, y)
		c, s := x/h, y/h
		piv[i], piv[i+1] = h, zero
		for j := i + 2; j < k; j++ {
			rj := b.r[b.ring.slot(j)]
			rj[i], rj[i+1] = c*rj[i]+s*rj[i+1], -s*rj[i]+c*rj[i+1]
		}
		col[i], col[i+1] = c*col[i]+s*col[i+1], -s*col[i]+c*col[i+1]
	}
	b.ring.popOldest()
}

// insert appends step s with ‖s‖² = ss given its coordinates col = Zᵀs.
// A step lying in the current span up to spanTol is rejected.
func (b *subspace) insert(s, col []float64, ss float64) bool {
	k := b.len()
	if !(ss-floats.Dot(col[:k], col[:k]) > spanTol*ss) {
		return false
	}
	if b.full() {
		b.retire(col[:k])
		k--
	}
	rem := ss - floats.Dot(col[:k], col[:k])
	j := b.ring.push()
	copy(b.s[j], s)
	r := b.r[j]
	copy(r, col[:k])
	r[k] = math.Sqrt(rem)
	for i := k + 1; i < len(r); i++ {
		r[i] = zero
	}
	return true
}
