// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgstat

import (
	"math"
	"testing"

	"github.com/curioloop/conjgrad/cgdesc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "test")

	const n = 30
	p := cgdesc.DefaultParam()
	p.Strategy = cgdesc.LimitedCG
	p.Memory = 5
	prob := &cgdesc.Problem{
		N:     n,
		Param: &p,
		ValGrad: func(x, g []float64) float64 {
			var f float64
			for i := range x {
				w := float64(i%6 + 1)
				g[i] = w * (x[i] - 1)
				f += 0.5 * w * (x[i] - 1) * (x[i] - 1)
			}
			return f
		},
		Monitor: c,
	}
	o, err := prob.New(zap.NewNop())
	require.NoError(t, err)
	w, err := o.Init()
	require.NoError(t, err)

	res := o.Fit(make([]float64, n), w)
	require.Equal(t, cgdesc.Satisfied, res.Status)

	assert.Equal(t, float64(res.Iterations), testutil.ToFloat64(c.iterations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("SATISFIED")))
	assert.Equal(t, float64(res.FuncEvals), testutil.ToFloat64(c.evals.WithLabelValues("func")))
	assert.Equal(t, float64(res.LineSearchEvals), testutil.ToFloat64(c.evals.WithLabelValues("line_search")))
	assert.Equal(t, float64(res.SubspaceEntries), testutil.ToFloat64(c.subspace.WithLabelValues("entry")))
	assert.Equal(t, float64(res.Restarts), testutil.ToFloat64(c.restarts))

	total := 0
	for _, v := range c.Modes() {
		total += v
	}
	assert.Equal(t, res.Iterations, total)

	count, err := testutil.GatherAndCount(reg, "test_cg_step_size", "test_cg_final_gradient_norm")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCollectorBoundary(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "")

	c.Finish(&cgdesc.Result{
		Status:     cgdesc.BoundaryHit,
		Statistics: cgdesc.Statistics{Iterations: 3, FuncEvals: 7},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("BOUNDARY_HIT")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.evals.WithLabelValues("func")))

	c.Finish(&cgdesc.Result{
		Status:     cgdesc.OutOfMemory,
		GNorm:      math.NaN(),
		Statistics: cgdesc.Statistics{FuncEvals: 2},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.evals.WithLabelValues("func")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.runs))
}

func TestCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, "dup")
	assert.Panics(t, func() { New(reg, "dup") })
}
