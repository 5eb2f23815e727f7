// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pumping

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Violation is a polynomial relation that is not tight at a solution.
type Violation struct {
	Element  string // pump or resistance symbol
	Quantity string // "power", "discharge" or "head_loss"
	T        int
	Value    float64 // solved value
	Target   float64 // value of the polynomial
}

// Report summarises the post-solve checks.
type Report struct {
	Violations []Violation
}

// OK reports whether all checked relations hold within tolerance.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// PostProcess recomputes head, discharge, power, status and speed of every pump from
// the solution 𝐱 and writes them as the series <pump>_head, <pump>_Q, <pump>_power,
// <pump>_status and <pump>_speed. Power of running pumps and resistance head loss are
// compared with their polynomials and stopped pumps must not discharge; deviations
// beyond the configured tolerances are logged and reported. The solution itself is
// left untouched.
func (c *Core) PostProcess(p Problem, x []float64) (*Report, error) {
	if !c.ready {
		return nil, ErrNotSetUp
	}
	n := len(p.Times())
	value := func(name string, t int) (float64, error) {
		v, err := p.StateAt(name, t)
		if err != nil {
			return 0, err
		}
		if int(v) >= len(x) {
			return 0, errors.Errorf("solution has %d values, %s[%d] is %d", len(x), name, t, v)
		}
		return x[v], nil
	}
	series := func(name string) ([]float64, error) {
		out := make([]float64, n)
		for t := range out {
			v, err := value(name, t)
			if err != nil {
				return nil, err
			}
			out[t] = v
		}
		return out, nil
	}

	report := &Report{}
	for k := range c.stations {
		s := &c.stations[k]

		for j := range s.Pumps {
			pump := &s.Pumps[j]
			sym := pump.Symbol

			head, err := series(sym + "_head")
			if err != nil {
				return nil, err
			}
			q, err := series(sym + "_Q")
			if err != nil {
				return nil, err
			}
			solved, err := series(sym + "_power")
			if err != nil {
				return nil, err
			}
			status, err := series(sym + "_status")
			if err != nil {
				return nil, err
			}

			power := make([]float64, n)
			speed := make([]float64, n)
			for t := 0; t < n; t++ {
				status[t] = math.Round(status[t])
				if status[t] == 0 {
					if math.Abs(q[t]) > c.opts.IneqAbsoluteError {
						report.Violations = append(report.Violations, Violation{
							Element: sym, Quantity: "discharge", T: t, Value: q[t], Target: 0,
						})
					} else {
						q[t] = 0
					}
					continue
				}
				power[t] = pump.Power.Eval(head[t], q[t])
				if pump.Speed != nil {
					speed[t] = pump.Speed.Eval(head[t], q[t])
				}
				if !c.tight(solved[t], power[t]) {
					report.Violations = append(report.Violations, Violation{
						Element: sym, Quantity: "power", T: t, Value: solved[t], Target: power[t],
					})
				}
			}

			p.SetTimeseries(sym+"_head", head)
			p.SetTimeseries(sym+"_Q", q)
			p.SetTimeseries(sym+"_power", power)
			p.SetTimeseries(sym+"_status", status)
			if pump.Speed != nil {
				p.SetTimeseries(sym+"_speed", speed)
			}
		}

		for j := range s.Resistances {
			r := &s.Resistances[j]
			for t := 0; t < n; t++ {
				q, err := value(r.Symbol+"_Q", t)
				if err != nil {
					return nil, err
				}
				dh, err := value(r.Symbol+"_dH", t)
				if err != nil {
					return nil, err
				}
				if target := r.C * q * q; !c.tight(dh, target) {
					report.Violations = append(report.Violations, Violation{
						Element: r.Symbol, Quantity: "head_loss", T: t, Value: dh, Target: target,
					})
				}
			}
		}
	}

	for _, v := range report.Violations {
		msg := "relaxed equality is not tight"
		if v.Quantity == "discharge" {
			msg = "stopped pump has discharge"
		}
		c.logger.Error(msg,
			zap.String("element", v.Element), zap.String("quantity", v.Quantity), zap.Int("t", v.T),
			zap.Float64("value", v.Value), zap.Float64("target", v.Target))
	}
	return report, nil
}

func (c *Core) tight(v, target float64) bool {
	diff := math.Abs(v - target)
	return diff <= c.opts.IneqAbsoluteError || diff <= c.opts.IneqRelativeError*math.Abs(target)
}
