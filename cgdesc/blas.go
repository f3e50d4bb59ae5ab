// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// kernels are the n-length vector operations of the optimizer.
// Vectors longer than par are split into chunks and processed concurrently.
type kernels struct {
	par    int
	chunks int
}

func newKernels(par int) kernels {
	k := kernels{par: par}
	if par > 0 {
		k.chunks = max(runtime.GOMAXPROCS(0), 1)
	}
	return k
}

func (k kernels) split(n int) bool {
	return k.par > 0 && k.chunks > 1 && n >= k.par
}

// each runs fn on [lo, hi) chunks of [0, n).
func (k kernels) each(n int, fn func(c, lo, hi int)) {
	size := (n + k.chunks - 1) / k.chunks
	var g errgroup.Group
	for c := 0; c < k.chunks; c++ {
		lo, hi := c*size, min((c+1)*size, n)
		if lo >= hi {
			break
		}
		c := c
		g.Go(func() error {
			fn(c, lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// dot computes xᵀy.
func (k kernels) dot(x, y []float64) float64 {
	n := len(x)
	if !k.split(n) {
		return floats.Dot(x, y)
	}
	part := make([]float64, k.chunks)
	k.each(n, func(c, lo, hi int) {
		part[c] = floats.Dot(x[lo:hi], y[lo:hi])
	})
	return floats.Sum(part)
}

// axpy computes y ← y + α·x.
func (k kernels) axpy(alpha float64, x, y []float64) {
	n := len(x)
	if !k.split(n) {
		floats.AddScaled(y, alpha, x)
		return
	}
	k.each(n, func(_, lo, hi int) {
		floats.AddScaled(y[lo:hi], alpha, x[lo:hi])
	})
}

// axpyTo computes dst ← y + α·x.
func (k kernels) axpyTo(dst []float64, y []float64, alpha float64, x []float64) {
	n := len(x)
	if !k.split(n) {
		floats.AddScaledTo(dst, y, alpha, x)
		return
	}
	k.each(n, func(_, lo, hi int) {
		floats.AddScaledTo(dst[lo:hi], y[lo:hi], alpha, x[lo:hi])
	})
}

// scaleTo computes dst ← α·x.
func (k kernels) scaleTo(dst []float64, alpha float64, x []float64) {
	floats.ScaleTo(dst, alpha, x)
}

// subTo computes dst ← x - y.
func (k kernels) subTo(dst, x, y []float64) {
	floats.SubTo(dst, x, y)
}

// supNorm computes ‖x‖∞.
func (k kernels) supNorm(x []float64) float64 {
	return floats.Norm(x, math.Inf(1))
}

// dotSup computes ‖x‖₂² and ‖x‖∞ in a single pass.
func (k kernels) dotSup(x []float64) (sq, sup float64) {
	for _, v := range x {
		sq += v * v
		if a := math.Abs(v); a > sup {
			sup = a
		}
	}
	return
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
