// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCubicStepExact(t *testing.T) {
	// (α-1)² is reproduced exactly by the Hermite cubic
	assert.InDelta(t, 1.0, cubicStep(0, 1, -2, 3, 4, 4), 1e-15)

	// α³ - 3α has its local minimum at 1
	assert.InDelta(t, 1.0, cubicStep(0, 0, -3, 2, 2, 9), 1e-15)
	assert.InDelta(t, 1.0, cubicStep(2, 2, 9, 0, 0, -3), 1e-15)
}

func TestCubicStepDegenerate(t *testing.T) {
	assert.Equal(t, noStep, cubicStep(1, 0, -1, 1, 0, 1), "zero width")
	assert.Equal(t, noStep, cubicStep(0, 0, 2, 1, 1.9, 2), "complex roots")
	assert.Less(t, cubicOrSecant(0, 0, 2, 1, 1.9, 2), 0.0, "secant has no root either")
}

func TestCubicStepInsideBracket(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		a := rnd.Float64() * 10
		b := a + 1e-3 + rnd.Float64()*10
		fa, fb := rnd.NormFloat64()*10, rnd.NormFloat64()*10
		da, db := -1e-3-rnd.Float64()*10, 1e-3+rnd.Float64()*10
		c := cubicStep(a, fa, da, b, fb, db)
		assert.Greater(t, c, a)
		assert.Less(t, c, b)
	}
}

func TestSecantStep(t *testing.T) {
	// φ′(α) = -1 + α
	assert.InDelta(t, 1.0, secantStep(0, -1, 2, 1), 1e-15)
	// φ′(α) = -1 + 2α
	assert.InDelta(t, 0.5, secantStep(0, -1, 2, 3), 1e-15)
	assert.Equal(t, noStep, secantStep(0, 1, 2, 1))
	// both slopes negative, extrapolated from the smaller one
	assert.InDelta(t, -1.0, secantStep(0, -1, 1, -2), 1e-15)
	assert.InDelta(t, 2.0, secantStep(0, -2, 1, -1), 1e-15)
	// complex cubic roots fall back to the secant
	assert.InDelta(t, -0.5, cubicOrSecant(0, 0, 1, 1, 4.0/3, 3), 1e-15)
}
