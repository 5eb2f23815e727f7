// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hq solves HQ-subproblems: small programs over the two scalars head 𝐇
// and discharge 𝐐
//
//	minimize (or maximize) 𝒇(𝐇,𝐐) subject to
//	  - 𝒍ⱼ ≤ 𝒈ⱼ(𝐇,𝐐) ≤ 𝒖ⱼ
//	  - 𝐇 ∈ [𝐇ₗ, 𝐇ᵤ], 𝐐 ∈ [𝐐ₗ, 𝐐ᵤ]
//
// where 𝒇 and 𝒈ⱼ are bivariate polynomials. Problems are solved from a fixed set of
// starting points (the centre and the corners of the box) and the best converged
// point is kept, so identical problems always produce identical answers. Answers are
// memoized by the canonical printed form of the problem.
package hq

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/nlp"
	"github.com/curioloop/hydraulic/poly"
)

// ErrSubproblemSolve is returned when no starting point converges.
var ErrSubproblemSolve = errors.New("hq subproblem failed to converge")

// Sense is the optimization direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// Constraint is 𝒍 ≤ 𝒈(𝐇,𝐐) ≤ 𝒖.
type Constraint struct {
	Poly         poly.Bivariate
	Lower, Upper float64
}

// Problem is one HQ-subproblem. A zero box means the default 𝐐 ∈ [0, ∞) with 𝐇 free.
type Problem struct {
	Sense       Sense
	Objective   poly.Bivariate
	Constraints []Constraint

	// HSymbol and QSymbol name the variables in the memo key.
	HSymbol, QSymbol string

	H, Q *model.Bound
}

// Entry is the answer to an HQ-subproblem in the original sense.
type Entry struct {
	Objective float64
	X         [2]float64 // (𝐇, 𝐐)
}

func (p *Problem) box() (h, q model.Bound) {
	h, q = model.Free, model.Bound{Lower: 0, Upper: math.Inf(1)}
	if p.H != nil {
		h = *p.H
	}
	if p.Q != nil {
		q = *p.Q
	}
	return
}

// Key returns the canonical printed form of the problem.
func (p *Problem) Key() string {
	hs, qs := p.HSymbol, p.QSymbol
	if hs == "" {
		hs = "H"
	}
	if qs == "" {
		qs = "Q"
	}
	h, q := p.box()

	var sb strings.Builder
	sb.WriteString(hs + "," + qs + ";" + p.Sense.String() + " " + p.Objective.Format(hs, qs) + ";")
	for k, c := range p.Constraints {
		if k > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(formatRange(c.Poly.Format(hs, qs), c.Lower, c.Upper))
	}
	sb.WriteString(";" + formatRange(hs, h.Lower, h.Upper))
	sb.WriteString("," + formatRange(qs, q.Lower, q.Upper))
	return sb.String()
}

func formatRange(e string, lo, hi float64) string {
	return strconv.FormatFloat(lo, 'g', -1, 64) + "<=" + e + "<=" + strconv.FormatFloat(hi, 'g', -1, 64)
}

// Option configures a Solver.
type Option func(*Solver)

// WithLogger sets the logger used for solve diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}

// WithCache attaches a cache shared across solvers or runs.
func WithCache(c Cache) Option {
	return func(s *Solver) {
		s.cache = c
	}
}

// WithNLP replaces the NLP back end.
func WithNLP(n nlp.Solver) Option {
	return func(s *Solver) {
		s.nlp = n
	}
}

// Solver solves HQ-subproblems with memoization.
type Solver struct {
	nlp    nlp.Solver
	cache  Cache
	logger *zap.Logger

	Hits, Misses int
}

// New creates a solver backed by the default NLP solver and an in-memory cache.
func New(opts ...Option) *Solver {
	s := &Solver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.nlp == nil {
		s.nlp = nlp.New(nlp.WithLogger(s.logger))
	}
	if s.cache == nil {
		s.cache = NewMemoryCache()
	}
	return s
}

// Solve returns the optimum of p. The label names the pump or station on failure.
func (s *Solver) Solve(label string, p Problem) (Entry, error) {
	key := p.Key()
	if e, ok := s.cache.Get(key); ok {
		s.Hits++
		return e, nil
	}
	s.Misses++

	sign := 1.0
	if p.Sense == Maximize {
		sign = -1
	}

	h, q := p.box()
	cons := make([]model.Constraint, len(p.Constraints))
	for k, c := range p.Constraints {
		cons[k] = model.Constraint{
			Name:  "c" + strconv.Itoa(k),
			Expr:  model.FromBivariate(c.Poly, model.V(0), model.V(1)),
			Lower: c.Lower,
			Upper: c.Upper,
		}
	}
	prog := &model.Program{
		Objective:   model.FromBivariate(p.Objective.Scale(sign), model.V(0), model.V(1)),
		Constraints: cons,
		Bounds:      []model.Bound{h, q},
		Names:       []string{"H", "Q"},
	}

	var (
		best    *nlp.Result
		lastErr error
	)
	for _, x0 := range starts(h, q) {
		prog.X0 = x0
		r, err := s.nlp.Solve(prog)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || r.F < best.F {
			best = r
		}
	}
	if best == nil {
		s.logger.Error("hq subproblem failed",
			zap.String("label", label), zap.String("problem", key), zap.Error(lastErr))
		return Entry{}, errors.Wrapf(ErrSubproblemSolve, "%s: %s: %v", label, key, lastErr)
	}

	e := Entry{Objective: sign * best.F, X: [2]float64{best.X[0], best.X[1]}}
	s.cache.Put(key, e)
	s.logger.Debug("hq subproblem solved",
		zap.String("label", label), zap.String("problem", key), zap.Float64("f", e.Objective))
	return e, nil
}

// starts returns the centre of the box followed by its corners. Open sides are
// replaced by the finite end or 0.
func starts(h, q model.Bound) [][]float64 {
	hs, qs := candidates(h), candidates(q)
	pts := [][]float64{{hs[0], qs[0]}}
	for _, hv := range hs[1:] {
		for _, qv := range qs[1:] {
			pts = append(pts, []float64{hv, qv})
		}
	}
	return pts
}

// candidates returns the centre of b and its distinct finite ends.
func candidates(b model.Bound) []float64 {
	l, u := !math.IsInf(b.Lower, 0), !math.IsInf(b.Upper, 0)
	switch {
	case l && u && b.Lower == b.Upper:
		return []float64{b.Lower, b.Lower}
	case l && u:
		return []float64{(b.Lower + b.Upper) / 2, b.Lower, b.Upper}
	case l:
		return []float64{b.Lower + 1, b.Lower}
	case u:
		return []float64{b.Upper - 1, b.Upper}
	}
	return []float64{0, 0}
}
