// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package model provides the time-indexed optimization problem the pumping station core
// plugs into: a registry of named decision variables over a time grid, a bounds table,
// time series inputs and outputs, and the assembly of a flat mathematical program.
//
// Every named state 𝒔 owns one scalar variable per grid point, laid out as
//
//	𝐱[𝚒𝚗𝚍𝚎𝚡(𝒔)×𝐍 + 𝒕]   (𝒕 = 0 ··· 𝐍-1)
package model

import (
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownState is returned when a state symbol was never declared.
	ErrUnknownState = errors.New("unknown state")
	// ErrUnknownTimeseries is returned when a time series has not been set.
	ErrUnknownTimeseries = errors.New("unknown time series")
	// ErrTimeIndex is returned for a time index outside the grid.
	ErrTimeIndex = errors.New("time index out of range")
)

// Bound is a closed interval [Lower, Upper]; infinities mean no bound.
type Bound struct {
	Lower, Upper float64
}

// Free is the unbounded interval.
var Free = Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}

// Binary is the [0, 1] interval of a status indicator.
var Binary = Bound{Lower: 0, Upper: 1}

// IsFinite reports whether both ends of b are finite numbers.
func (b Bound) IsFinite() bool {
	return !math.IsInf(b.Lower, 0) && !math.IsInf(b.Upper, 0) &&
		!math.IsNaN(b.Lower) && !math.IsNaN(b.Upper)
}

// Intersect returns the intersection of b and o.
func (b Bound) Intersect(o Bound) Bound {
	return Bound{Lower: math.Max(b.Lower, o.Lower), Upper: math.Min(b.Upper, o.Upper)}
}

// Constraint is the two-sided constraint Lower ≤ Expr ≤ Upper.
type Constraint struct {
	Name         string
	Expr         Expr
	Lower, Upper float64
}

// Violation returns how far the constraint is violated at 𝐱 (0 when satisfied).
func (c Constraint) Violation(x []float64) float64 {
	v := c.Expr.Eval(x)
	return math.Max(0, math.Max(c.Lower-v, v-c.Upper))
}

type state struct {
	name     string
	discrete bool
}

// Problem is a time-indexed optimization problem over an equidistant or arbitrary time grid.
type Problem struct {
	times  []float64
	states []state
	index  map[string]int
	bounds map[string]Bound
	series map[string][]float64
}

// NewProblem creates an empty problem over the given time grid.
func NewProblem(times []float64) (*Problem, error) {
	if len(times) == 0 {
		return nil, errors.New("time grid must not be empty")
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return nil, errors.Errorf("time grid must be strictly increasing at %d", i)
		}
	}
	return &Problem{
		times:  slices.Clone(times),
		index:  make(map[string]int),
		bounds: make(map[string]Bound),
		series: make(map[string][]float64),
	}, nil
}

// Times returns the time grid.
func (p *Problem) Times() []float64 {
	return slices.Clone(p.times)
}

// AddState declares a named state. Declaring an existing state is a no-op,
// except that a discrete declaration is sticky.
func (p *Problem) AddState(name string, discrete bool) error {
	if name == "" {
		return errors.New("state name must not be empty")
	}
	if i, ok := p.index[name]; ok {
		p.states[i].discrete = p.states[i].discrete || discrete
		return nil
	}
	p.index[name] = len(p.states)
	p.states = append(p.states, state{name: name, discrete: discrete})
	return nil
}

// States returns the declared state names in declaration order.
func (p *Problem) States() []string {
	names := make([]string, len(p.states))
	for i, s := range p.states {
		names[i] = s.name
	}
	return names
}

// StateAt returns the variable of state name at time index t.
func (p *Problem) StateAt(name string, t int) (Var, error) {
	i, ok := p.index[name]
	if !ok {
		return 0, errors.Wrap(ErrUnknownState, name)
	}
	if t < 0 || t >= len(p.times) {
		return 0, errors.Wrapf(ErrTimeIndex, "%s at %d", name, t)
	}
	return Var(i*len(p.times) + t), nil
}

// State returns the variables of state name over the whole grid.
func (p *Problem) State(name string) ([]Var, error) {
	vs := make([]Var, len(p.times))
	for t := range vs {
		v, err := p.StateAt(name, t)
		if err != nil {
			return nil, err
		}
		vs[t] = v
	}
	return vs, nil
}

// VarName renders v as name[t].
func (p *Problem) VarName(v Var) string {
	n := len(p.times)
	i, t := int(v)/n, int(v)%n
	if i < 0 || i >= len(p.states) {
		return "x[" + strconv.Itoa(int(v)) + "]"
	}
	return p.states[i].name + "[" + strconv.Itoa(t) + "]"
}

// Bounds returns a copy of the bounds table.
func (p *Problem) Bounds() map[string]Bound {
	return maps.Clone(p.bounds)
}

// SetBounds sets the bounds of a symbol for all time indices.
func (p *Problem) SetBounds(name string, b Bound) {
	p.bounds[name] = b
}

// Timeseries returns a copy of a named time series.
func (p *Problem) Timeseries(name string) ([]float64, error) {
	s, ok := p.series[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownTimeseries, name)
	}
	return slices.Clone(s), nil
}

// SetTimeseries stores a named time series.
func (p *Problem) SetTimeseries(name string, values []float64) {
	p.series[name] = slices.Clone(values)
}

// Program flattens the problem into a mathematical program with the given
// objective and constraints. Unbounded states are free; discrete states are
// additionally clipped to [0, 1]. The initial guess is the midpoint of finite
// bounds, a finite end when one side is open, and zero otherwise.
func (p *Problem) Program(objective Expr, constraints []Constraint) *Program {
	n := len(p.times)
	prog := &Program{
		Objective:   objective,
		Constraints: slices.Clone(constraints),
		Bounds:      make([]Bound, len(p.states)*n),
		Discrete:    make([]bool, len(p.states)*n),
		X0:          make([]float64, len(p.states)*n),
		Names:       make([]string, len(p.states)*n),
	}
	for i, s := range p.states {
		b, ok := p.bounds[s.name]
		if !ok {
			b = Free
		}
		if s.discrete {
			b = b.Intersect(Binary)
		}
		for t := 0; t < n; t++ {
			k := i*n + t
			prog.Bounds[k] = b
			prog.Discrete[k] = s.discrete
			prog.X0[k] = initialGuess(b)
			prog.Names[k] = s.name + "[" + strconv.Itoa(t) + "]"
		}
	}
	return prog
}

// Series extracts the values of state name from a solution vector.
func (p *Problem) Series(x []float64, name string) ([]float64, error) {
	vs, err := p.State(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vs))
	for t, v := range vs {
		out[t] = x[v]
	}
	return out, nil
}

func initialGuess(b Bound) float64 {
	l, u := !math.IsInf(b.Lower, 0), !math.IsInf(b.Upper, 0)
	switch {
	case l && u:
		return (b.Lower + b.Upper) / 2
	case l:
		return b.Lower
	case u:
		return b.Upper
	}
	return 0
}
