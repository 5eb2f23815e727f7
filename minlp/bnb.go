// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package minlp solves mixed-integer nonlinear programs by branch-and-bound over
// continuous relaxations.
//
// Every node of the enumeration tree is the original program with tightened bounds on
// some discrete variables. The relaxation of a node is solved by an NLP solver; a node is
// pruned when its relaxation fails or cannot improve on the incumbent, otherwise the most
// fractional discrete variable 𝐱ᵢ is branched into 𝐱ᵢ ≤ ⌊𝐱ᵢ⌋ and 𝐱ᵢ ≥ ⌈𝐱ᵢ⌉.
// Nodes are explored depth first with the down branch first, which makes the search
// deterministic and reaches integral points early.
//
// For non-convex relaxations the bound of a node is only local, so the returned point
// is the best integral point found rather than a certified global optimum.
package minlp

import (
	"context"
	"math"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/nlp"
)

var (
	// ErrNoIntegralSolution is returned when no integral point was found.
	ErrNoIntegralSolution = errors.New("no integral solution found")
	// ErrNodeLimit is returned when the node limit is exhausted before any integral point.
	ErrNodeLimit = errors.New("branch-and-bound node limit reached")
)

// Option configures a Solver.
type Option func(*Solver)

// WithLogger sets the logger used for search diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}

// WithNodeLimit bounds the number of relaxations solved.
func WithNodeLimit(n int) Option {
	return func(s *Solver) {
		s.maxNodes = n
	}
}

// WithTolerances sets the integrality tolerance and the absolute pruning gap.
func WithTolerances(integrality, gap float64) Option {
	return func(s *Solver) {
		s.intTol, s.gapTol = integrality, gap
	}
}

// Solver is a branch-and-bound MINLP solver.
type Solver struct {
	relax    nlp.Solver
	logger   *zap.Logger
	maxNodes int
	intTol   float64
	gapTol   float64
}

// New creates a solver that uses relax for the continuous relaxations.
func New(relax nlp.Solver, opts ...Option) *Solver {
	s := &Solver{
		relax:    relax,
		logger:   zap.NewNop(),
		maxNodes: 10000,
		intTol:   1e-6,
		gapTol:   1e-6,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type node struct {
	bounds []model.Bound
	depth  int
}

// Stats summarises a search.
type Stats struct {
	Nodes      int // Number of relaxations solved.
	Pruned     int // Number of nodes discarded.
	Incumbents int // Number of improving integral points.
}

// Solve runs branch-and-bound on p. The context is checked between nodes; on
// cancellation the incumbent, if any, is returned together with the context error.
func (s *Solver) Solve(ctx context.Context, p *model.Program) (*nlp.Result, Stats, error) {
	var stats Stats
	if err := p.Validate(); err != nil {
		return nil, stats, errors.Wrap(err, "invalid program")
	}

	discrete := p.Discrete
	if discrete == nil {
		discrete = make([]bool, p.N())
	}

	root := node{bounds: slices.Clone(p.Bounds)}
	for i, d := range discrete {
		if d {
			b := root.bounds[i]
			root.bounds[i] = model.Bound{Lower: math.Ceil(b.Lower - s.intTol), Upper: math.Floor(b.Upper + s.intTol)}
		}
	}

	var incumbent *nlp.Result
	stack := []node{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return incumbent, stats, err
		}
		if stats.Nodes >= s.maxNodes {
			if incumbent == nil {
				return nil, stats, ErrNodeLimit
			}
			s.logger.Warn("node limit reached, returning incumbent", zap.Int("nodes", stats.Nodes))
			return incumbent, stats, nil
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sub := *p
		sub.Bounds = nd.bounds
		if incumbent != nil {
			sub.X0 = incumbent.X
		}
		stats.Nodes++

		res, err := s.relax.Solve(&sub)
		if err != nil {
			stats.Pruned++
			s.logger.Debug("relaxation failed", zap.Int("depth", nd.depth), zap.Error(err))
			continue
		}
		if incumbent != nil && res.F >= incumbent.F-s.gapTol {
			stats.Pruned++
			continue
		}

		k := s.branchVariable(res.X, discrete)
		if k < 0 {
			for i, d := range discrete {
				if d {
					res.X[i] = math.Round(res.X[i])
				}
			}
			incumbent = res
			stats.Incumbents++
			s.logger.Debug("new incumbent", zap.Int("depth", nd.depth), zap.Float64("f", res.F))
			continue
		}

		v := res.X[k]
		down := node{bounds: slices.Clone(nd.bounds), depth: nd.depth + 1}
		down.bounds[k].Upper = math.Floor(v)
		up := node{bounds: slices.Clone(nd.bounds), depth: nd.depth + 1}
		up.bounds[k].Lower = math.Ceil(v)

		// LIFO: the down branch is explored first
		stack = append(stack, up, down)
	}

	if incumbent == nil {
		return nil, stats, ErrNoIntegralSolution
	}
	s.logger.Info("branch-and-bound finished",
		zap.Int("nodes", stats.Nodes), zap.Int("pruned", stats.Pruned), zap.Float64("f", incumbent.F))
	return incumbent, stats, nil
}

// branchVariable returns the most fractional discrete variable or -1 when 𝐱 is integral.
func (s *Solver) branchVariable(x []float64, discrete []bool) int {
	best, frac := -1, s.intTol
	for i, d := range discrete {
		if !d {
			continue
		}
		f := math.Abs(x[i] - math.Round(x[i]))
		if f > frac {
			best, frac = i, f
		}
	}
	return best
}
