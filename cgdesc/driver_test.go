// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFallsBackToApproximateWolfe(t *testing.T) {
	// flat cost with a slope turning positive at α = 3
	kink := func(a float64) (float64, float64) {
		switch {
		case a == 0:
			return 10, -1
		case a < 3:
			return 10, -0.5
		}
		return 10, 0.5
	}
	p := DefaultParam()
	p.QuadStep = false
	d := newLineDriver(t, kink, &p)
	w := d.workspace
	w.alpha, w.fresh = 1, true
	require.False(t, w.search.awolfe)

	require.Equal(t, iterLoop, d.search())
	s := &w.search
	assert.True(t, s.awolfe)
	assert.Greater(t, s.evals, 2)

	// accepted by the approximate conditions only
	assert.LessOrEqual(t, s.f, s.fpert)
	assert.GreaterOrEqual(t, s.df, p.Sigma*s.df0)
	assert.LessOrEqual(t, s.df, (2*p.Delta-1)*s.df0)
	assert.Greater(t, s.f-s.f0, p.Delta*s.alpha*s.df0)
}

func TestAcceptNoImprovement(t *testing.T) {
	for _, slow := range []int{1, 2} {
		d := newLineDriver(t, expMinus5, nil)
		require.Equal(t, iterLoop, d.line(0.01))
		d.optimizer.param.NSlow = slow

		w := d.workspace
		w.fBest, w.gBest = -100, 0
		w.slow = slow - 1
		assert.Equal(t, NoImprovement, d.accept(iterLoop))
		assert.Equal(t, slow, w.slow)
		assert.Equal(t, 1, w.stats.Iterations)
	}
}
