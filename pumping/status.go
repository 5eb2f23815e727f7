// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pumping

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/station"
)

// HistorySuffix names the status history series of a pump.
const HistorySuffix = "_status_hist"

// StatusConstraints links the status of every pump to its switching indicators
// and enforces the minimum on and off run lengths.
//
// For 𝒕 ≥ 1, with 𝒔 the status, 𝒐𝒏 and 𝒐𝒇𝒇 the indicators:
//
//	𝒐𝒏ₜ ≥ 𝒔ₜ - 𝒔ₜ₋₁    𝒐𝒏ₜ ≤ 𝒔ₜ      𝒐𝒏ₜ ≤ 1 - 𝒔ₜ₋₁
//	𝒐𝒇𝒇ₜ ≥ 𝒔ₜ₋₁ - 𝒔ₜ   𝒐𝒇𝒇ₜ ≤ 𝒔ₜ₋₁   𝒐𝒇𝒇ₜ ≤ 1 - 𝒔ₜ
//
// Both indicators are zero at 𝒕 = 0. A switch on at 𝒕 keeps the pump on for the
// next 𝐋 = min(minimum on, 𝐍 - 𝒕) steps: Σ 𝒔ₖ ≥ 𝐋·𝒐𝒏ₜ, symmetrically for off.
//
// A status history (values before the first grid point, oldest first) forces 𝒔₀ to
// the last recorded status and carries the unfinished minimum run into the horizon.
func (c *Core) StatusConstraints(p Problem) ([]model.Constraint, error) {
	if !c.ready {
		return nil, ErrNotSetUp
	}
	n := len(p.Times())
	l := &lookup{p: p}

	var cons []model.Constraint
	for k := range c.stations {
		for j := range c.stations[k].Pumps {
			pump := &c.stations[k].Pumps[j]
			rows, err := c.pumpStatus(p, l, pump, n)
			if err != nil {
				return nil, err
			}
			cons = append(cons, rows...)
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	return cons, nil
}

func (c *Core) pumpStatus(p Problem, l *lookup, pump *station.Pump, n int) ([]model.Constraint, error) {
	sym := pump.Symbol
	status := func(t int) model.Expr { return l.at(sym+"_status", t) }
	on := func(t int) model.Expr { return l.at(sym+"_switched_on", t) }
	off := func(t int) model.Expr { return l.at(sym+"_switched_off", t) }
	inf := math.Inf(1)

	cons := []model.Constraint{
		{Name: name(sym, "switched_on_init", 0), Expr: on(0), Lower: 0, Upper: 0},
		{Name: name(sym, "switched_off_init", 0), Expr: off(0), Lower: 0, Upper: 0},
	}
	for t := 1; t < n; t++ {
		s, prev := status(t), status(t-1)
		cons = append(cons,
			model.Constraint{Name: name(sym, "switched_on_lo", t), Expr: on(t).Sub(s).Add(prev), Lower: 0, Upper: inf},
			model.Constraint{Name: name(sym, "switched_on_status", t), Expr: on(t).Sub(s), Lower: -inf, Upper: 0},
			model.Constraint{Name: name(sym, "switched_on_prev", t), Expr: on(t).Add(prev), Lower: -inf, Upper: 1},
			model.Constraint{Name: name(sym, "switched_off_lo", t), Expr: off(t).Sub(prev).Add(s), Lower: 0, Upper: inf},
			model.Constraint{Name: name(sym, "switched_off_prev", t), Expr: off(t).Sub(prev), Lower: -inf, Upper: 0},
			model.Constraint{Name: name(sym, "switched_off_status", t), Expr: off(t).Add(s), Lower: -inf, Upper: 1},
		)
	}

	minOn, minOff := pump.Steps(c.dt)
	for t := 1; t < n; t++ {
		if minOn > 1 {
			w := min(minOn, n-t)
			sum := model.Sum(window(status, t, w)...)
			cons = append(cons, model.Constraint{
				Name: name(sym, "minimum_on", t), Expr: sum.Sub(on(t).Scale(float64(w))), Lower: 0, Upper: inf,
			})
		}
		if minOff > 1 {
			w := min(minOff, n-t)
			sum := model.Sum(window(status, t, w)...)
			// Σ (1 - 𝒔ₖ) - 𝐋·𝒐𝒇𝒇ₜ ≥ 0
			cons = append(cons, model.Constraint{
				Name: name(sym, "minimum_off", t), Expr: sum.Add(off(t).Scale(float64(w))), Lower: -inf, Upper: float64(w),
			})
		}
	}

	hist, err := p.Timeseries(sym + HistorySuffix)
	if errors.Is(err, model.ErrUnknownTimeseries) {
		return cons, nil
	}
	if err != nil {
		return nil, err
	}
	last, forced, err := carryOver(sym, hist, minOn, minOff)
	if err != nil {
		return nil, err
	}
	for t := 0; t < min(forced, n); t++ {
		cons = append(cons, model.Constraint{Name: name(sym, "history", t), Expr: status(t), Lower: last, Upper: last})
	}
	return cons, nil
}

// carryOver validates a status history and returns its last value and the number of
// leading grid points forced to it (at least one).
func carryOver(sym string, hist []float64, minOn, minOff int) (last float64, forced int, err error) {
	need := max(minOn, minOff, 1)
	if len(hist) < need {
		return 0, 0, errors.Wrapf(station.ErrInvalidHistory,
			"%s%s has %d values, minimum run length needs %d", sym, HistorySuffix, len(hist), need)
	}
	for i, v := range hist {
		if v != 0 && v != 1 {
			return 0, 0, errors.Wrapf(station.ErrInvalidHistory,
				"%s%s[%d] = %g is not a status", sym, HistorySuffix, i, v)
		}
	}

	last = hist[len(hist)-1]
	run := 0
	for i := len(hist) - 1; i >= 0 && hist[i] == last; i-- {
		run++
	}
	required := minOff
	if last == 1 {
		required = minOn
	}
	return last, max(1, required-run), nil
}

func window(status func(int) model.Expr, t, w int) []model.Expr {
	es := make([]model.Expr, w)
	for k := range es {
		es[k] = status(t + k)
	}
	return es
}

func name(sym, row string, t int) string {
	return fmt.Sprintf("%s_%s[%d]", sym, row, t)
}
