// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pumping

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/station"
)

// Objective returns the energy cost of all pumps over the horizon
//
//	Σₚ Σₜ≥₁ 𝐏ₜ·𝒄ₜ·𝚫𝒕 + 𝒐𝒏ₜ·(𝐄ᵤₚ·𝒄ₜ + 𝐂ᵤₚ) + 𝒐𝒇𝒇ₜ·(𝐄𝒅𝒏·𝒄ₜ + 𝐂𝒅𝒏)
//
// where 𝒄 is the energy price series, 𝐄 the start-up and shut-down energies and 𝐂
// the fixed start-up and shut-down costs.
func (c *Core) Objective(p Problem) (model.Expr, error) {
	if !c.ready {
		return model.Expr{}, ErrNotSetUp
	}
	price, err := c.price(p)
	if err != nil {
		return model.Expr{}, err
	}
	l := &lookup{p: p}

	var terms []model.Expr
	for k := range c.stations {
		for j := range c.stations[k].Pumps {
			pump := &c.stations[k].Pumps[j]
			sym := pump.Symbol
			for t := 1; t < len(price); t++ {
				terms = append(terms, l.at(sym+"_power", t).Scale(price[t]*c.dt))
				if w := pump.StartUpEnergy*price[t] + pump.StartUpCost; w != 0 {
					terms = append(terms, l.at(sym+"_switched_on", t).Scale(w))
				}
				if w := pump.ShutDownEnergy*price[t] + pump.ShutDownCost; w != 0 {
					terms = append(terms, l.at(sym+"_switched_off", t).Scale(w))
				}
			}
		}
	}
	if l.err != nil {
		return model.Expr{}, l.err
	}
	return model.Sum(terms...), nil
}

// Nominal returns the scale of the objective: the mean of half the maximum power of
// the pumps times the mean energy price times the horizon length, or 1 when that is
// zero or cannot be computed.
func (c *Core) Nominal(p Problem) float64 {
	if !c.ready {
		return 1
	}
	price, err := c.price(p)
	if err != nil {
		return 1
	}
	var half []float64
	for k := range c.stations {
		for _, pump := range c.stations[k].Pumps {
			half = append(half, c.pumps[pump.Symbol].MaxPowerOn/2)
		}
	}
	if len(half) == 0 {
		return 1
	}
	times := p.Times()
	nominal := stat.Mean(half, nil) * stat.Mean(price, nil) * (times[len(times)-1] - times[0])
	if nominal == 0 || math.IsNaN(nominal) || math.IsInf(nominal, 0) {
		return 1
	}
	return math.Abs(nominal)
}

func (c *Core) price(p Problem) ([]float64, error) {
	name := c.opts.EnergyPriceSeries
	price, err := p.Timeseries(name)
	if err != nil {
		return nil, errors.WithMessage(err, "energy price")
	}
	if n := len(p.Times()); len(price) != n {
		return nil, errors.Wrapf(station.ErrInvalidConfiguration, "%s has %d values, want %d", name, len(price), n)
	}
	if floats.HasNaN(price) {
		return nil, errors.Wrapf(station.ErrInvalidConfiguration, "%s contains NaN", name)
	}
	return price, nil
}
