// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pumping

import (
	"math"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/station"
)

// PathConstraints returns the per grid point rows of every pump, station and resistance.
//
// For a pump with power range (𝐏ₗ, 𝐏ᵤ) while on, maximum discharge 𝐐ᵤ and maximum
// head 𝐇ᵤ while on, 𝐇ₑ over the extended working area:
//
//	𝐏 - 𝐏ₗ·𝒔 ≥ 0
//	𝐏 - 𝐏ᵤ·𝒔 ≤ 0
//	𝐏 - 𝐏(𝐇,𝐐) + 𝐏ᵤ·(1-𝒔) ≥ 0
//	𝐐 - 𝐐ᵤ·𝒔 ≤ 0
//	𝐇 + (𝐇ₑ - 𝐇ᵤ)·𝒔 ≤ 𝐇ₑ
//
// together with the relaxed working area and the link of the pump head to the
// station heads. For a resistance with coefficient 𝐂 > 0 and discharge maximum 𝐐ᵤ:
//
//	𝚫𝐇 - 𝐂·𝐐² ≥ 0
//	𝚫𝐇 - 𝐂·𝐐ᵤ·𝐐 ≤ 0
//
// and 𝚫𝐇 = 0 when 𝐂 = 0.
func (c *Core) PathConstraints(p Problem) ([]model.Constraint, error) {
	if !c.ready {
		return nil, ErrNotSetUp
	}
	n := len(p.Times())
	l := &lookup{p: p}
	inf := math.Inf(1)

	var cons []model.Constraint
	for k := range c.stations {
		s := &c.stations[k]
		hr := c.heads[s.Symbol]

		for j := range s.Pumps {
			pump := &s.Pumps[j]
			pb := c.pumps[pump.Symbol]
			hb, err := hr.For(pump.HeadOption)
			if err != nil {
				return nil, err
			}
			a, err := relax(pump, hb)
			if err != nil {
				return nil, err
			}

			sym := pump.Symbol
			headGap := math.Max(0, pb.HMaxExt-pb.HMax)
			for t := 0; t < n; t++ {
				st := l.at(sym+"_status", t)
				q := l.at(sym+"_Q", t)
				h := l.at(sym+"_head", t)
				pw := l.at(sym+"_power", t)

				for _, r := range a {
					cons = append(cons, r.Constraint(name(sym, "working_area", t), h, q, st))
				}

				curve := model.FromBivariate(pump.Power, h, q)
				cons = append(cons,
					model.Constraint{Name: name(sym, "power_on_lo", t), Expr: pw.Sub(st.Scale(pb.MinPowerOn)), Lower: 0, Upper: inf},
					model.Constraint{Name: name(sym, "power_on_hi", t), Expr: pw.Sub(st.Scale(pb.MaxPowerOn)), Lower: -inf, Upper: 0},
					model.Constraint{Name: name(sym, "power_curve", t), Expr: pw.Sub(curve).Sub(st.Scale(pb.MaxPowerOn)), Lower: -pb.MaxPowerOn, Upper: inf},
					model.Constraint{Name: name(sym, "discharge_off", t), Expr: q.Sub(st.Scale(pb.QMax)), Lower: -inf, Upper: 0},
					model.Constraint{Name: name(sym, "head_on", t), Expr: h.Add(st.Scale(headGap)), Lower: -inf, Upper: pb.HMaxExt},
					model.Constraint{Name: name(sym, "head", t), Expr: h.Sub(stationHead(l, s.Symbol, pump.HeadOption, t)), Lower: 0, Upper: 0},
				)
			}
		}

		rows, err := s.SwitchingRows()
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			sym := s.Pumps[row.Pump].Symbol
			for t := 0; t < n; t++ {
				terms := make([]model.Expr, 0, len(row.Coefs))
				for i, coef := range row.Coefs {
					if coef != 0 {
						terms = append(terms, l.at(s.Pumps[i].Symbol+"_status", t).Scale(coef))
					}
				}
				cons = append(cons, model.Constraint{
					Name: name(sym, "switching", t), Expr: model.Sum(terms...), Lower: row.Bound.Lower, Upper: row.Bound.Upper,
				})
			}
		}

		for j := range s.Resistances {
			r := &s.Resistances[j]
			qmax := c.resistances[r.Symbol]
			for t := 0; t < n; t++ {
				q := l.at(r.Symbol+"_Q", t)
				dh := l.at(r.Symbol+"_dH", t)
				if r.C == 0 {
					cons = append(cons, model.Constraint{Name: name(r.Symbol, "head_loss", t), Expr: dh, Lower: 0, Upper: 0})
					continue
				}
				cons = append(cons,
					model.Constraint{Name: name(r.Symbol, "head_loss_lo", t), Expr: dh.Sub(q.Mul(q).Scale(r.C)), Lower: 0, Upper: inf},
					model.Constraint{Name: name(r.Symbol, "head_loss_hi", t), Expr: dh.Sub(q.Scale(r.C * qmax)), Lower: -inf, Upper: 0},
				)
			}
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	return cons, nil
}

// Constraints returns the status rows followed by the path rows.
func (c *Core) Constraints(p Problem) ([]model.Constraint, error) {
	status, err := c.StatusConstraints(p)
	if err != nil {
		return nil, err
	}
	path, err := c.PathConstraints(p)
	if err != nil {
		return nil, err
	}
	return append(status, path...), nil
}

func stationHead(l *lookup, sym string, o station.HeadOption, t int) model.Expr {
	switch o {
	case station.Upstream:
		return l.at(sym+"_H_up", t)
	case station.Downstream:
		return l.at(sym+"_H_down", t)
	}
	return l.at(sym+"_H_down", t).Sub(l.at(sym+"_H_up", t))
}
