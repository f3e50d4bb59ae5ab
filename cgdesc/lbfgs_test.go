// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// denseBFGS applies the inverse BFGS recursion
//
//	Hᵢ₊₁ = (I - ρsyᵀ)Hᵢ(I - ρysᵀ) + ρssᵀ
//
// to H₀ = γI over the given pairs, oldest first.
func denseBFGS(n int, gamma float64, s, y [][]float64) *mat.Dense {
	h := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		h.Set(i, i, gamma)
	}
	eye := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetDiag(i, 1)
	}
	for k := range s {
		sv, yv := mat.NewVecDense(n, s[k]), mat.NewVecDense(n, y[k])
		rho := 1 / mat.Dot(sv, yv)

		var left, right, ss, tmp mat.Dense
		left.Outer(-rho, sv, yv)
		left.Add(&left, eye)
		right.CloneFrom(left.T())
		tmp.Mul(&left, h)
		h.Mul(&tmp, &right)
		ss.Outer(rho, sv, sv)
		h.Add(h, &ss)
	}
	return h
}

func TestHistoryTwoLoop(t *testing.T) {
	const n, m = 6, 3
	rnd := rand.New(rand.NewSource(11))
	h := newHistory(m, n)

	// pairs of a random positive definite quadratic
	a := mat.NewDense(n, n, randVec(rnd, n*n))
	var spd mat.Dense
	spd.Mul(a.T(), a)
	for i := 0; i < n; i++ {
		spd.Set(i, i, spd.At(i, i)+1)
	}

	var ss, ys [][]float64
	for k := 0; k < m+2; k++ {
		s := randVec(rnd, n)
		var y mat.VecDense
		y.MulVec(&spd, mat.NewVecDense(n, s))
		yv := append([]float64(nil), y.RawVector().Data...)
		require.True(t, h.push(s, yv, kernels{}))
		ss, ys = append(ss, s), append(ys, yv)
	}
	ss, ys = ss[len(ss)-m:], ys[len(ys)-m:]
	last := len(ss) - 1
	gamma := floats.Dot(ss[last], ys[last]) / floats.Dot(ys[last], ys[last])
	assert.InDelta(t, gamma, h.gamma, 1e-14)

	v := randVec(rnd, n)
	got := append([]float64(nil), v...)
	h.apply(got, kernels{})

	var want mat.VecDense
	want.MulVec(denseBFGS(n, gamma, ss, ys), mat.NewVecDense(n, v))
	for i := range got {
		assert.InDelta(t, want.AtVec(i), got[i], 1e-9)
	}
}

func TestHistoryRejectsCurvature(t *testing.T) {
	h := newHistory(2, 3)
	assert.False(t, h.push([]float64{1, 0, 0}, []float64{-1, 0, 0}, kernels{}))
	assert.False(t, h.push([]float64{1, 0, 0}, []float64{0, 1, 0}, kernels{}))
	assert.Equal(t, 0, h.len())

	// the reduced coordinates use a prefix of the storage
	assert.True(t, h.push([]float64{2}, []float64{1}, kernels{}))
	v := []float64{3}
	h.apply(v, kernels{})
	assert.InDelta(t, 6.0, v[0], 1e-15)

	h.clear()
	assert.Equal(t, 0, h.len())
	assert.Equal(t, 1.0, h.gamma)
}

func TestLBFGSUpdater(t *testing.T) {
	spec := &iterSpec{n: 2, mem: 2, kern: newKernels(0)}
	u := newLBFGS(spec)

	// f = ½(x₁² + 4x₂²) from x = (1, 1) with α = 0.5
	d := []float64{-1, -4}
	gnew := []float64{0.5, -4}
	y := []float64{-0.5, -8}
	st := stepState{alpha: 0.5, d: d, gnew: gnew, y: y}
	assert.Equal(t, modeLBFGS, u.next(&st, false))
	assert.Less(t, floats.Dot(st.d, gnew), 0.0)
	assert.Equal(t, 1, u.hist.len())

	assert.Equal(t, modeSteepest, u.next(&st, true))
	assert.Equal(t, []float64{-0.5, 4}, st.d)
	assert.Equal(t, 0, u.hist.len())
}
