// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgdesc

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Strategy selects the direction update.
type Strategy int

const (
	// Auto uses L-BFGS when n ≤ Memory, limited-memory CG when Memory > 0 and plain CG otherwise.
	Auto Strategy = iota
	// PlainCG uses the Hager–Zhang conjugate gradient recurrence.
	PlainCG
	// LBFGS uses the two-loop recursion over the last Memory step pairs.
	LBFGS
	// LimitedCG uses conjugate gradient with invariant subspace detection.
	LimitedCG
)

var strategyNames = [...]string{
	Auto:      "auto",
	PlainCG:   "cg",
	LBFGS:     "lbfgs",
	LimitedCG: "lmcg",
}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// UnmarshalText parses a strategy name.
func (s *Strategy) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for k, v := range strategyNames {
		if v == name {
			*s = Strategy(k)
			return nil
		}
	}
	return fmt.Errorf("unknown strategy %q", name)
}

// Param holds the tuning constants of a run.
// The envDefault tags document the defaults; see DefaultParam and LoadParam.
type Param struct {
	// Stop when ‖g‖∞ ≤ 𝚖𝚊𝚡(GradTol, StopFactor·‖g₀‖∞).
	GradTol    float64 `env:"GRAD_TOL" envDefault:"1e-6"`
	StopFactor float64 `env:"STOP_FACTOR" envDefault:"0"`
	// Iteration and evaluation budgets, 0 means unlimited. Hessian products count as evaluations.
	MaxIter int `env:"MAX_ITER" envDefault:"0"`
	MaxEval int `env:"MAX_EVAL" envDefault:"0"`

	Strategy Strategy `env:"STRATEGY" envDefault:"auto"`
	Memory   int      `env:"MEMORY" envDefault:"11"`
	// Restart every ⌈RestartFac·n⌉ iterations.
	RestartFac float64 `env:"RESTART_FAC" envDefault:"6"`

	// Wolfe conditions: f(α) - f(0) ≤ Delta·α·f′(0) and f′(α) ≥ Sigma·f′(0).
	Delta float64 `env:"DELTA" envDefault:"0.1"`
	Sigma float64 `env:"SIGMA" envDefault:"0.9"`
	// Bisect when the bracket does not shrink by StepDecay.
	StepDecay float64 `env:"STEP_DECAY" envDefault:"0.66"`
	// Bracket expansion factor and its amplification.
	Rho        float64 `env:"RHO" envDefault:"5"`
	RhoGrow    float64 `env:"RHO_GROW" envDefault:"2"`
	ExpandSafe float64 `env:"EXPAND_SAFE" envDefault:"200"`
	SecantAmp  float64 `env:"SECANT_AMP" envDefault:"1.05"`
	NExpand    int     `env:"N_EXPAND" envDefault:"50"`
	MaxSteps   int     `env:"MAX_STEPS" envDefault:"50"`
	NContract  int     `env:"N_CONTRACT" envDefault:"10"`

	// fpert = f₀ + Eps·|f₀| when PertRule, otherwise f₀ + Eps.
	PertRule bool    `env:"PERT_RULE" envDefault:"true"`
	Eps      float64 `env:"EPS" envDefault:"1e-6"`
	EpsGrow  float64 `env:"EPS_GROW" envDefault:"10"`
	NEps     int     `env:"N_EPS" envDefault:"5"`

	// Non-finite values are retried with the step pulled back by InfDecay,
	// which itself decays by InfDecayRate per attempt.
	NInfTries    int     `env:"N_INF_TRIES" envDefault:"20"`
	InfDecay     float64 `env:"INF_DECAY" envDefault:"0.5"`
	InfDecayRate float64 `env:"INF_DECAY_RATE" envDefault:"0.9"`
	InfRho       float64 `env:"INF_RHO" envDefault:"1.3"`

	QuadStep    bool    `env:"QUAD_STEP" envDefault:"true"`
	QuadCutOff  float64 `env:"QUAD_CUTOFF" envDefault:"1e-12"`
	QuadSafe    float64 `env:"QUAD_SAFE" envDefault:"1e-10"`
	UseCubic    bool    `env:"USE_CUBIC" envDefault:"true"`
	CubicCutOff float64 `env:"CUBIC_CUTOFF" envDefault:"1e-12"`
	SmallCost   float64 `env:"SMALL_COST" envDefault:"1e-30"`

	// Initial step rules.
	Psi0  float64 `env:"PSI0" envDefault:"0.01"`
	PsiLo float64 `env:"PSI_LO" envDefault:"0.1"`
	PsiHi float64 `env:"PSI_HI" envDefault:"10"`
	Psi1  float64 `env:"PSI1" envDefault:"1"`
	Psi2  float64 `env:"PSI2" envDefault:"2"`
	Step  float64 `env:"STEP" envDefault:"0"`

	// Quadratic-likeness: |2(f-f₀)/(α(f′+f′₀)) - 1| ≤ Qrule for QRestart iterations.
	Qeps     float64 `env:"QEPS" envDefault:"1e-12"`
	Qrule    float64 `env:"QRULE" envDefault:"1e-8"`
	QRestart int     `env:"QRESTART" envDefault:"6"`

	AWolfe    bool    `env:"AWOLFE" envDefault:"false"`
	AWolfeFac float64 `env:"AWOLFE_FAC" envDefault:"1e-3"`
	Qdecay    float64 `env:"QDECAY" envDefault:"0.7"`

	NSlow     int     `env:"N_SLOW" envDefault:"1000"`
	BetaLower float64 `env:"BETA_LOWER" envDefault:"0.4"`
	Theta     float64 `env:"THETA" envDefault:"1"`
	Feps      float64 `env:"FEPS" envDefault:"0"`

	// Subspace entry when the gradient fraction outside span(S) is below Eta2,
	// or below Eta0 with a full history; exit when it exceeds Eta1.
	Eta0        float64 `env:"ETA0" envDefault:"0.001"`
	Eta1        float64 `env:"ETA1" envDefault:"0.9"`
	Eta2        float64 `env:"ETA2" envDefault:"1e-10"`
	UnitStepTol float64 `env:"UNIT_STEP_TOL" envDefault:"0.1"`

	// Vector kernels are split across goroutines for n ≥ ParallelLen, 0 disables.
	ParallelLen int `env:"PARALLEL_LEN" envDefault:"0"`
}

// DefaultParam returns the documented defaults.
func DefaultParam() Param {
	var p Param
	if err := env.ParseWithOptions(&p, env.Options{Environment: map[string]string{}}); err != nil {
		panic(err)
	}
	return p
}

// LoadParam returns the defaults overridden by environment variables named prefix+TAG.
func LoadParam(prefix string) (Param, error) {
	var p Param
	err := env.ParseWithOptions(&p, env.Options{Prefix: prefix})
	if err == nil {
		err = p.validate()
	}
	return p, err
}

func (p *Param) validate() (err error) {
	switch {
	case math.IsNaN(p.GradTol) || p.GradTol < zero:
		err = errors.New("gradient tolerance must not less than 0")
	case p.StopFactor < zero:
		err = errors.New("stop factor must not less than 0")
	case p.MaxIter < 0 || p.MaxEval < 0:
		err = errors.New("budgets must not less than 0")
	case p.Strategy < Auto || p.Strategy > LimitedCG:
		err = errors.New("unknown direction strategy")
	case p.Memory < 0:
		err = errors.New("memory must not less than 0")
	case (p.Strategy == LBFGS || p.Strategy == LimitedCG) && p.Memory == 0:
		err = errors.New("limited memory strategy requires memory greater than 0")
	case p.RestartFac <= zero:
		err = errors.New("restart factor must greater than 0")
	case !(zero < p.Delta && p.Delta < half):
		err = errors.New("delta must lie in (0, 0.5)")
	case !(p.Delta <= p.Sigma && p.Sigma < one):
		err = errors.New("sigma must lie in [delta, 1)")
	case !(zero < p.StepDecay && p.StepDecay < one):
		err = errors.New("step decay must lie in (0, 1)")
	case p.Rho <= one || p.RhoGrow < one || p.ExpandSafe <= one || p.SecantAmp < one:
		err = errors.New("expansion factors out of range")
	case p.NExpand <= 0 || p.MaxSteps <= 0 || p.NContract <= 0 || p.NEps < 0:
		err = errors.New("line search limits must greater than 0")
	case p.Eps < zero || p.EpsGrow <= one:
		err = errors.New("perturbation parameters out of range")
	case p.NInfTries < 0 || !(zero < p.InfDecay && p.InfDecay < one) ||
		!(zero < p.InfDecayRate && p.InfDecayRate <= one) || p.InfRho <= one:
		err = errors.New("non-finite retry parameters out of range")
	case p.Psi0 <= zero || p.PsiLo <= zero || p.PsiHi < p.PsiLo || p.Psi1 <= zero || p.Psi2 <= zero:
		err = errors.New("initial step parameters must greater than 0")
	case p.Step < zero:
		err = errors.New("initial step must not less than 0")
	case p.QRestart < 0 || p.NSlow <= 0:
		err = errors.New("iteration counters out of range")
	case !(zero <= p.Qdecay && p.Qdecay < one):
		err = errors.New("qdecay must lie in [0, 1)")
	case p.Theta <= 0.25:
		err = errors.New("theta must greater than 0.25")
	case !(zero <= p.Eta0 && p.Eta0 < p.Eta1 && p.Eta1 < one) || p.Eta2 < zero:
		err = errors.New("subspace thresholds out of range")
	case p.UnitStepTol < zero || p.ParallelLen < 0:
		err = errors.New("kernel parameters out of range")
	}
	return
}
