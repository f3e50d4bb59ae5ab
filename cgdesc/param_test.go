// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParam(t *testing.T) {
	p := DefaultParam()
	assert.Equal(t, 1e-6, p.GradTol)
	assert.Equal(t, Auto, p.Strategy)
	assert.Equal(t, 11, p.Memory)
	assert.Equal(t, 0.1, p.Delta)
	assert.Equal(t, 0.9, p.Sigma)
	assert.Equal(t, 0.66, p.StepDecay)
	assert.True(t, p.PertRule)
	assert.True(t, p.QuadStep)
	assert.False(t, p.AWolfe)
	assert.Equal(t, 20, p.NInfTries)
	assert.Equal(t, 1e-10, p.Eta2)
	assert.Zero(t, p.MaxIter)
	assert.NoError(t, p.validate())
}

func TestLoadParam(t *testing.T) {
	t.Setenv("CG_STRATEGY", "LBFGS")
	t.Setenv("CG_MEMORY", "5")
	t.Setenv("CG_DELTA", "0.2")
	t.Setenv("CG_AWOLFE", "true")

	p, err := LoadParam("CG_")
	require.NoError(t, err)
	assert.Equal(t, LBFGS, p.Strategy)
	assert.Equal(t, 5, p.Memory)
	assert.Equal(t, 0.2, p.Delta)
	assert.True(t, p.AWolfe)
	assert.Equal(t, 0.9, p.Sigma)
}

func TestLoadParamInvalid(t *testing.T) {
	t.Setenv("CG_STRATEGY", "newton")
	_, err := LoadParam("CG_")
	assert.Error(t, err)

	t.Setenv("CG_STRATEGY", "cg")
	t.Setenv("CG_SIGMA", "0.05")
	_, err = LoadParam("CG_")
	assert.ErrorContains(t, err, "sigma")
}

func TestParamValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Param){
		"theta":    func(p *Param) { p.Theta = 0.2 },
		"eta":      func(p *Param) { p.Eta1 = p.Eta0 },
		"memory":   func(p *Param) { p.Strategy, p.Memory = LimitedCG, 0 },
		"decay":    func(p *Param) { p.InfDecay = 1 },
		"strategy": func(p *Param) { p.Strategy = Strategy(9) },
	} {
		t.Run(name, func(t *testing.T) {
			p := DefaultParam()
			mutate(&p)
			assert.Error(t, p.validate())
		})
	}
}

func TestStrategyText(t *testing.T) {
	var s Strategy
	require.NoError(t, s.UnmarshalText([]byte(" lmcg ")))
	assert.Equal(t, LimitedCG, s)
	assert.Equal(t, "lmcg", s.String())
	assert.Equal(t, "Strategy(9)", Strategy(9).String())
	assert.Error(t, s.UnmarshalText([]byte("bfgs")))
}

func TestKernels(t *testing.T) {
	const n = 103
	x, y := make([]float64, n), make([]float64, n)
	for i := range x {
		x[i] = float64(i%7) - 3
		y[i] = float64(i%5) * 0.5
	}
	serial := kernels{}
	split := kernels{par: 8, chunks: 4}
	require.True(t, split.split(n))
	assert.False(t, serial.split(n))

	assert.InDelta(t, serial.dot(x, y), split.dot(x, y), 1e-12)

	a, b := append([]float64(nil), y...), append([]float64(nil), y...)
	serial.axpy(0.5, x, a)
	split.axpy(0.5, x, b)
	assert.Equal(t, a, b)

	serial.axpyTo(a, y, -2, x)
	split.axpyTo(b, y, -2, x)
	assert.Equal(t, a, b)

	sq, sup := serial.dotSup(x)
	assert.InDelta(t, serial.dot(x, x), sq, 1e-12)
	assert.Equal(t, 3.0, sup)
	assert.Equal(t, 3.0, serial.supNorm(x))

	assert.True(t, isFinite(sup))
	assert.False(t, isFinite(math.NaN()))
	assert.False(t, isFinite(math.Inf(-1)))
}
