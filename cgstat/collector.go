// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cgstat exports the statistics of conjugate gradient runs as prometheus metrics.
package cgstat

import (
	"math"
	"sync"

	"github.com/curioloop/conjgrad/cgdesc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements cgdesc.Monitor. It is safe to share among workspaces
// running in different goroutines.
type Collector struct {
	runs       *prometheus.CounterVec
	iterations prometheus.Counter
	evals      *prometheus.CounterVec
	subspace   *prometheus.CounterVec
	restarts   prometheus.Counter
	steps      prometheus.Histogram
	gnorm      prometheus.Histogram

	mu    sync.Mutex
	modes map[string]int
}

// New registers the metrics of a collector with reg under the given namespace.
func New(reg prometheus.Registerer, namespace string) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cg",
			Name:      "runs_total",
			Help:      "Finished optimization runs by status.",
		}, []string{"status"}),
		iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cg",
			Name:      "iterations_total",
			Help:      "Accepted iterations.",
		}),
		evals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cg",
			Name:      "evaluations_total",
			Help:      "Objective evaluations by kind (func, grad, hess, line_search).",
		}, []string{"kind"}),
		subspace: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cg",
			Name:      "subspace_total",
			Help:      "Subspace entries and subspace iterations.",
		}, []string{"event"}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cg",
			Name:      "restarts_total",
			Help:      "Restarts with the steepest descent direction.",
		}),
		steps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cg",
			Name:      "step_size",
			Help:      "Accepted line search steps.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 10),
		}),
		gnorm: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cg",
			Name:      "final_gradient_norm",
			Help:      "Sup-norm of the gradient when a run finishes.",
			Buckets:   prometheus.ExponentialBuckets(1e-12, 10, 14),
		}),
		modes: make(map[string]int),
	}
}

// Iteration records one accepted step.
func (c *Collector) Iteration(info cgdesc.IterInfo) {
	c.iterations.Inc()
	c.steps.Observe(info.Alpha)
	c.mu.Lock()
	c.modes[info.Mode]++
	c.mu.Unlock()
}

// Finish records the outcome and the work of a run.
// Statistics of a run accumulate across resumptions, so the work of a run
// stopping at the boundary is recorded by the segment that finally ends it.
func (c *Collector) Finish(res *cgdesc.Result) {
	c.runs.WithLabelValues(res.Status.String()).Inc()
	if res.Status == cgdesc.BoundaryHit {
		return
	}
	c.evals.WithLabelValues("func").Add(float64(res.FuncEvals))
	c.evals.WithLabelValues("grad").Add(float64(res.GradEvals))
	c.evals.WithLabelValues("hess").Add(float64(res.HessProds))
	c.evals.WithLabelValues("line_search").Add(float64(res.LineSearchEvals))
	c.subspace.WithLabelValues("entry").Add(float64(res.SubspaceEntries))
	c.subspace.WithLabelValues("iteration").Add(float64(res.SubspaceIters))
	c.restarts.Add(float64(res.Restarts))
	if !math.IsNaN(res.GNorm) {
		c.gnorm.Observe(res.GNorm)
	}
}

// Modes returns how many iterations produced each kind of search direction.
func (c *Collector) Modes() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.modes))
	for k, v := range c.modes {
		out[k] = v
	}
	return out
}
