// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pumping assembles the pump scheduling part of a time-indexed optimization
// problem for a set of pumping stations.
//
// The Core runs in three phases:
//
//  1. Setup declares the decision variables, derives the head range of every station
//     and the discharge, head and power bounds of every pump from HQ-subproblems over
//     its working area, and checks the power curve for monotonicity and convexity.
//  2. Constraints and Objective build the program: working area membership relaxed by
//     pump status, the power big-M sandwich, switching indicators with minimum on/off
//     run lengths, station switching rules and resistance head loss.
//  3. PostProcess recomputes the physical quantities of a solution and reports the
//     rows whose polynomial relation is not tight.
//
// Per pump 𝒑 and grid point 𝒕 the variables are
//
//	𝒑_status, 𝒑_switched_on, 𝒑_switched_off  ∈ {0, 1}
//	𝒑_Q, 𝒑_head, 𝒑_power                      continuous
//
// per station 𝒔 the heads 𝒔_H_up and 𝒔_H_down, and per resistance 𝒓 the
// discharge 𝒓_Q and head loss 𝒓_dH.
package pumping

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/curioloop/hydraulic/hq"
	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/station"
)

// ErrNotSetUp is returned when the program is assembled before Setup.
var ErrNotSetUp = errors.New("pumping core is not set up")

// Problem is the time-indexed optimization problem the core plugs into.
type Problem interface {
	Times() []float64
	AddState(name string, discrete bool) error
	StateAt(name string, t int) (model.Var, error)
	Bounds() map[string]model.Bound
	SetBounds(name string, b model.Bound)
	Timeseries(name string) ([]float64, error)
	SetTimeseries(name string, values []float64)
}

var _ Problem = (*model.Problem)(nil)

// Options are the tunables of the core.
type Options struct {
	// Post-solve tolerances of polynomial equalities.
	IneqRelativeError float64
	IneqAbsoluteError float64
	// Name of the energy price time series.
	EnergyPriceSeries string
	// Tolerance of the convexity and monotonicity checks.
	ConvexityTolerance float64
	// Tolerance of the equidistant time grid check.
	TimeStepTolerance float64
}

// DefaultOptions is used when no options are configured.
var DefaultOptions = Options{
	IneqRelativeError:  1e-3,
	IneqAbsoluteError:  1e-4,
	EnergyPriceSeries:  "energy_price",
	ConvexityTolerance: 1e-9,
	TimeStepTolerance:  1e-9,
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger used for setup findings and post-solve checks.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithOptions overrides the tunables.
func WithOptions(opts Options) Option {
	return func(c *Core) {
		c.opts = opts
	}
}

// WithHQSolver sets the HQ-subproblem solver, e.g. one backed by a file cache.
func WithHQSolver(s *hq.Solver) Option {
	return func(c *Core) {
		c.hq = s
	}
}

// Core is the pumping station part of an optimization problem.
type Core struct {
	stations []station.PumpingStation
	opts     Options
	logger   *zap.Logger
	hq       *hq.Solver

	ready       bool
	dt          float64
	heads       map[string]HeadRanges
	pumps       map[string]PumpBounds
	resistances map[string]float64 // discharge maximum

	// Diagnostics collects the advisory findings of Setup.
	Diagnostics []Diagnostic
}

// New validates the stations and creates a core.
func New(stations []station.PumpingStation, opts ...Option) (*Core, error) {
	for k := range stations {
		if err := stations[k].Validate(); err != nil {
			return nil, err
		}
	}
	c := &Core{
		stations: stations,
		opts:     DefaultOptions,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hq == nil {
		c.hq = hq.New(hq.WithLogger(c.logger))
	}
	return c, nil
}

// Setup declares the variables and derives all bounds. It must complete before
// Constraints, Objective or PostProcess.
func (c *Core) Setup(p Problem) error {
	c.ready = false
	c.Diagnostics = nil

	dt, err := c.timeStep(p.Times())
	if err != nil {
		return err
	}
	c.dt = dt

	if err = c.declare(p); err != nil {
		return err
	}

	c.heads = make(map[string]HeadRanges, len(c.stations))
	c.pumps = make(map[string]PumpBounds)
	c.resistances = make(map[string]float64)

	for k := range c.stations {
		s := &c.stations[k]
		hr := DeriveHeadRanges(p, s.Symbol)
		c.heads[s.Symbol] = hr

		qsum := 0.0
		for j := range s.Pumps {
			pump := &s.Pumps[j]
			hb, err := hr.For(pump.HeadOption)
			if err != nil {
				return errors.WithMessagef(err, "station %s pump %s", s.Symbol, pump.Symbol)
			}
			pb, err := c.derive(p, s.Symbol, pump, hb)
			if err != nil {
				return err
			}
			c.pumps[pump.Symbol] = pb
			qsum += pb.QMax
			c.declareBounds(p, pump.Symbol, pb)
		}

		for j := range s.Resistances {
			r := &s.Resistances[j]
			qmax := qsum
			if b, ok := p.Bounds()[r.Symbol+"_Q"]; ok && !isInf(b.Upper) {
				qmax = b.Upper
			}
			c.resistances[r.Symbol] = qmax
			p.SetBounds(r.Symbol+"_Q", model.Bound{Lower: 0, Upper: qmax})
			p.SetBounds(r.Symbol+"_dH", model.Bound{Lower: 0, Upper: r.C * qmax * qmax})
		}
	}

	c.ready = true
	c.logger.Info("pumping stations set up",
		zap.Int("stations", len(c.stations)), zap.Int("pumps", len(c.pumps)),
		zap.Int("findings", len(c.Diagnostics)))
	return nil
}

// PumpBounds returns the derived bounds of a pump.
func (c *Core) PumpBounds(symbol string) (PumpBounds, bool) {
	pb, ok := c.pumps[symbol]
	return pb, ok
}

// HeadRanges returns the head ranges of a station.
func (c *Core) HeadRanges(symbol string) (HeadRanges, bool) {
	hr, ok := c.heads[symbol]
	return hr, ok
}

// TimeStep returns the grid step found by Setup.
func (c *Core) TimeStep() float64 {
	return c.dt
}

func (c *Core) timeStep(times []float64) (float64, error) {
	if len(times) < 2 {
		return 0, errors.Wrap(station.ErrInvalidConfiguration, "time grid needs at least two points")
	}
	dt := times[1] - times[0]
	for i := 2; i < len(times); i++ {
		step := times[i] - times[i-1]
		if !scalar.EqualWithinAbsOrRel(step, dt, c.opts.TimeStepTolerance, c.opts.TimeStepTolerance) {
			return 0, errors.Wrapf(station.ErrInvalidConfiguration,
				"time grid is not equidistant: step %g at %d, want %g", step, i, dt)
		}
	}
	return dt, nil
}

func (c *Core) declare(p Problem) error {
	type decl struct {
		name     string
		discrete bool
	}
	var ds []decl
	for k := range c.stations {
		s := &c.stations[k]
		ds = append(ds, decl{name: s.Symbol + "_H_up"}, decl{name: s.Symbol + "_H_down"})
		for _, pump := range s.Pumps {
			ds = append(ds,
				decl{name: pump.Symbol + "_Q"},
				decl{name: pump.Symbol + "_head"},
				decl{name: pump.Symbol + "_power"},
				decl{name: pump.Symbol + "_status", discrete: true},
				decl{name: pump.Symbol + "_switched_on", discrete: true},
				decl{name: pump.Symbol + "_switched_off", discrete: true},
			)
		}
		for _, r := range s.Resistances {
			ds = append(ds, decl{name: r.Symbol + "_Q"}, decl{name: r.Symbol + "_dH"})
		}
	}
	for _, d := range ds {
		if err := p.AddState(d.name, d.discrete); err != nil {
			return errors.Wrapf(err, "declare %s", d.name)
		}
	}
	return nil
}

func (c *Core) declareBounds(p Problem, symbol string, pb PumpBounds) {
	p.SetBounds(symbol+"_Q", model.Bound{Lower: 0, Upper: pb.QMax})
	p.SetBounds(symbol+"_head", model.Bound{Lower: pb.HMinExt, Upper: pb.HMaxExt})
	p.SetBounds(symbol+"_power", model.Bound{Lower: 0, Upper: pb.MaxPower})
	p.SetBounds(symbol+"_status", model.Binary)
	p.SetBounds(symbol+"_switched_on", model.Binary)
	p.SetBounds(symbol+"_switched_off", model.Binary)
}

// lookup resolves variables and keeps the first error.
type lookup struct {
	p   Problem
	err error
}

func (l *lookup) at(name string, t int) model.Expr {
	if l.err != nil {
		return model.Expr{}
	}
	v, err := l.p.StateAt(name, t)
	if err != nil {
		l.err = err
		return model.Expr{}
	}
	return model.V(v)
}
