// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlp is the black-box solve entry point for continuous nonlinear programs.
//
// minimize 𝒇(𝐱) subject to
//   - 𝒍ⱼ ≤ 𝒄ⱼ(𝐱) ≤ 𝒖ⱼ  (j = 1 ··· m)
//   - 𝒍ᵢ ≤ 𝐱ᵢ ≤ 𝒖ᵢ    (i = 1 ··· n)
//
// Programs with general constraints are solved by SLSQP. Two-sided rows are split into
// a pair of inequalities 𝒄ⱼ(𝐱) - 𝒍ⱼ ≥ 0 and 𝒖ⱼ - 𝒄ⱼ(𝐱) ≥ 0, rows with 𝒍ⱼ = 𝒖ⱼ become
// equalities. Programs with box constraints only are solved by L-BFGS-B.
// Discreteness flags are ignored: every variable is treated as continuous.
package nlp

import (
	"io"
	"math"
	"slices"

	"github.com/curioloop/optimizer/lbfgsb"
	"github.com/curioloop/optimizer/slsqp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/curioloop/hydraulic/model"
)

var (
	// ErrNotConverged is returned when the back end stops without convergence.
	ErrNotConverged = errors.New("nlp solver did not converge")
	// ErrInfeasible is returned when the final point violates the constraints.
	ErrInfeasible = errors.New("nlp solution is infeasible")
)

// Solver solves a continuous program.
type Solver interface {
	Solve(p *model.Program) (*Result, error)
}

// Result contains the optimum found by a solver.
type Result struct {
	F       float64   // Final objective value.
	X       []float64 // Final solution.
	NumIter int       // Number of iterations performed.
}

// Termination specifies the stopping criteria shared by both back ends.
type Termination struct {
	// The norm accuracy that determines the final solution.
	Accuracy float64
	// The iteration stop when the number of iteration exceeds limit.
	MaxIterations int
	// Largest constraint violation accepted at the final point.
	Feasibility float64
}

// DefaultTermination is used when no termination is configured.
var DefaultTermination = Termination{
	Accuracy:      1e-9,
	MaxIterations: 500,
	Feasibility:   1e-6,
}

// Option configures an SQP solver.
type Option func(*SQP)

// WithLogger sets the logger used for solve diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQP) {
		s.logger = logger
	}
}

// WithTermination overrides the stopping criteria.
func WithTermination(stop Termination) Option {
	return func(s *SQP) {
		s.stop = stop
	}
}

// SQP dispatches programs to SLSQP or L-BFGS-B.
type SQP struct {
	stop   Termination
	logger *zap.Logger
}

// New creates a solver.
func New(opts ...Option) *SQP {
	s := &SQP{stop: DefaultTermination, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve implements Solver.
func (s *SQP) Solve(p *model.Program) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid program")
	}

	x0 := startPoint(p)

	var (
		res *Result
		err error
	)
	if len(p.Constraints) == 0 {
		res, err = s.solveBox(p, x0)
	} else {
		res, err = s.solveSQP(p, x0)
	}
	if err != nil {
		return nil, err
	}

	if worst, name := p.MaxViolation(res.X); worst > s.stop.Feasibility {
		s.logger.Debug("infeasible nlp point",
			zap.String("row", name), zap.Float64("violation", worst))
		return res, errors.Wrapf(ErrInfeasible, "%s violated by %g", name, worst)
	}
	return res, nil
}

func (s *SQP) solveSQP(p *model.Program, x0 []float64) (*Result, error) {
	var eq, neq []slsqp.Evaluation
	for _, c := range p.Constraints {
		eval := c.Expr.Evaluation()
		switch {
		case c.Lower == c.Upper:
			eq = append(eq, shift(eval, 1, c.Lower))
			continue
		case !math.IsInf(c.Lower, 0):
			neq = append(neq, shift(eval, 1, c.Lower))
		}
		if !math.IsInf(c.Upper, 0) {
			neq = append(neq, shift(eval, -1, c.Upper))
		}
	}
	if len(eq) > p.N() {
		return nil, errors.Errorf("%d equality constraints exceed %d variables", len(eq), p.N())
	}

	bounds := make([]slsqp.Bound, p.N())
	for i, b := range p.Bounds {
		bounds[i] = slsqp.Bound{Lower: b.Lower, Upper: b.Upper}
	}

	prob := slsqp.Problem{
		N: p.N(),
		Stop: slsqp.Termination{
			Accuracy:       s.stop.Accuracy,
			MaxIterations:  s.stop.MaxIterations,
			FEvalTolerance: math.NaN(),
			FDiffTolerance: math.NaN(),
			XDiffTolerance: math.NaN(),
		},
		Object:  p.Objective.Evaluation(),
		EqCons:  eq,
		NeqCons: neq,
		Bounds:  bounds,
	}
	opt, err := prob.New()
	if err != nil {
		return nil, errors.Wrap(err, "slsqp")
	}
	r := opt.Fit(x0, opt.Init())

	s.logger.Debug("slsqp finished",
		zap.Int("n", p.N()), zap.Int("eq", len(eq)), zap.Int("neq", len(neq)),
		zap.Bool("ok", r.OK), zap.Int("iter", r.NumIter), zap.Float64("f", r.F))

	res := &Result{F: r.F, X: r.X, NumIter: r.NumIter}
	if !r.OK {
		return res, errors.Wrapf(ErrNotConverged, "slsqp status %d after %d iterations", r.Status, r.NumIter)
	}
	return res, nil
}

func (s *SQP) solveBox(p *model.Program, x0 []float64) (*Result, error) {
	bounds := make([]lbfgsb.Bound, p.N())
	for i, b := range p.Bounds {
		bounds[i] = lbfgsb.Bound{Lower: nanInf(b.Lower), Upper: nanInf(b.Upper)}
	}

	obj := p.Objective.Evaluation()
	prob := lbfgsb.Problem{
		N:    p.N(),
		M:    min(p.N(), 10),
		Eval: func(x, g []float64) float64 { return obj(x, g) },
		Stop: lbfgsb.Termination{
			MaxIterations:     s.stop.MaxIterations,
			EpsAccuracyFactor: 1e1,
			ProjGradTolerance: s.stop.Accuracy,
		},
		Bounds: bounds,
	}
	opt, err := prob.New(&lbfgsb.Logger{Level: lbfgsb.LogNoop, Msg: io.Discard, Out: io.Discard})
	if err != nil {
		return nil, errors.Wrap(err, "lbfgsb")
	}
	r := opt.Fit(x0, opt.Init())

	s.logger.Debug("lbfgsb finished",
		zap.Int("n", p.N()), zap.Bool("ok", r.OK),
		zap.Int("iter", r.NumIter), zap.Float64("f", r.F))

	res := &Result{F: r.F, X: r.X, NumIter: r.NumIter}
	if !r.OK {
		return res, errors.Wrapf(ErrNotConverged, "lbfgsb after %d iterations", r.NumIter)
	}
	return res, nil
}

// shift returns s·(𝒄(𝐱) - c) in the optimizer convention.
func shift(eval func(x, g []float64) float64, s, c float64) slsqp.Evaluation {
	return func(x, g []float64) float64 {
		f := eval(x, g)
		if g != nil && s != 1 {
			for i := range g {
				g[i] *= s
			}
		}
		return s*f - s*c
	}
}

func nanInf(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// startPoint projects the initial guess into the bounds.
func startPoint(p *model.Program) []float64 {
	x := make([]float64, p.N())
	if p.X0 != nil {
		x = slices.Clone(p.X0)
	}
	for i, b := range p.Bounds {
		x[i] = math.Max(b.Lower, math.Min(b.Upper, x[i]))
	}
	return x
}
