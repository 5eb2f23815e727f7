// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pumping

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/hydraulic/hq"
	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/poly"
	"github.com/curioloop/hydraulic/station"
)

// PumpBounds are the derived bounds of a pump.
type PumpBounds struct {
	QMax             float64 // discharge in (0, QMax)
	HMax             float64 // head in (0, HMax) while on, HMaxExt while off
	HMinExt, HMaxExt float64 // head over the working area extended to the off state
	MaxPower         float64 // power in (0, MaxPower)
	MinPowerOn       float64 // power range while on
	MaxPowerOn       float64
}

// Diagnostic is an advisory finding of Setup.
type Diagnostic struct {
	Pump    string
	Level   zapcore.Level
	Message string
	Value   float64
}

// area is the working area of a pump relaxed over its head range.
type area []station.Relaxed

// constraints returns the HQ-subproblem rows at a fixed status.
func (a area) constraints(status float64) []hq.Constraint {
	cs := make([]hq.Constraint, len(a))
	for k, r := range a {
		cs[k] = hq.Constraint{Poly: r.AtStatus(status), Lower: 0, Upper: math.Inf(1)}
		if r.Direction < 0 {
			cs[k].Lower, cs[k].Upper = math.Inf(-1), 0
		}
	}
	return cs
}

func relax(pump *station.Pump, head model.Bound) (area, error) {
	a := make(area, len(pump.WorkingArea))
	for k, hp := range pump.WorkingArea {
		r, err := hp.Relax(head.Lower, head.Upper)
		if err != nil {
			return nil, err
		}
		a[k] = r
	}
	return a, nil
}

// derive solves the HQ-subproblems of a pump over the station head range.
func (c *Core) derive(p Problem, stationSymbol string, pump *station.Pump, head model.Bound) (PumpBounds, error) {
	label := stationSymbol + "/" + pump.Symbol
	a, err := relax(pump, head)
	if err != nil {
		return PumpBounds{}, err
	}
	on, ext := a.constraints(1), a.constraints(0)

	q := model.Bound{Lower: 0, Upper: math.Inf(1)}
	if b, ok := p.Bounds()[pump.Symbol+"_Q"]; ok {
		q = q.Intersect(b)
	}

	sub := func(sense hq.Sense, obj poly.Bivariate, cons []hq.Constraint, h, q model.Bound) (hq.Entry, error) {
		return c.hq.Solve(label, hq.Problem{
			Sense:       sense,
			Objective:   obj,
			Constraints: cons,
			HSymbol:     pump.Symbol + "_head",
			QSymbol:     pump.Symbol + "_Q",
			H:           &h,
			Q:           &q,
		})
	}
	hOnly, qOnly := poly.Linear(0, 1, 0), poly.Linear(0, 0, 1)

	var pb PumpBounds
	e, err := sub(hq.Maximize, qOnly, on, head, q)
	switch {
	case err != nil && math.IsInf(q.Upper, 1):
		return pb, errors.Wrapf(station.ErrMissingBounds,
			"%s_Q has no upper bound and the working area does not limit it: %v", pump.Symbol, err)
	case err != nil:
		return pb, err
	}
	pb.QMax = e.Objective

	for _, step := range []struct {
		sense hq.Sense
		obj   poly.Bivariate
		cons  []hq.Constraint
		dst   *float64
	}{
		{hq.Maximize, hOnly, on, &pb.HMax},
		{hq.Maximize, hOnly, ext, &pb.HMaxExt},
		{hq.Minimize, hOnly, ext, &pb.HMinExt},
	} {
		e, err := sub(step.sense, step.obj, step.cons, head, q)
		if err != nil {
			return pb, err
		}
		*step.dst = e.Objective
	}

	qOn := model.Bound{Lower: 0, Upper: pb.QMax}
	e, err = sub(hq.Minimize, pump.Power, on, head, qOn)
	if err != nil {
		return pb, err
	}
	pb.MinPowerOn = e.Objective
	if pb.MinPowerOn < 0 {
		if pb.MinPowerOn < -c.opts.ConvexityTolerance {
			c.report(pump.Symbol, zapcore.WarnLevel, "minimum power while on is negative, clamped to zero", pb.MinPowerOn)
		}
		pb.MinPowerOn = 0
	}

	corners := []float64{
		pump.Power.Eval(pb.HMinExt, 0), pump.Power.Eval(pb.HMinExt, pb.QMax),
		pump.Power.Eval(pb.HMaxExt, 0), pump.Power.Eval(pb.HMaxExt, pb.QMax),
	}
	pb.MaxPowerOn = math.Max(0, floats.Max(corners))
	pb.MaxPower = pb.MaxPowerOn
	if pb.MinPowerOn > pb.MaxPowerOn {
		c.report(pump.Symbol, zapcore.ErrorLevel, "minimum power while on exceeds the corner maximum", pb.MinPowerOn)
	}

	box := model.Bound{Lower: pb.HMinExt, Upper: pb.HMaxExt}
	c.checkMonotone(label, pump, box, qOn)
	c.checkConvex(label, pump, ext, head, box, qOn)

	c.logger.Debug("pump bounds derived",
		zap.String("pump", pump.Symbol),
		zap.Float64("q_max", pb.QMax), zap.Float64("h_max", pb.HMax),
		zap.Float64("h_min_ext", pb.HMinExt), zap.Float64("h_max_ext", pb.HMaxExt),
		zap.Float64("min_power_on", pb.MinPowerOn), zap.Float64("max_power_on", pb.MaxPowerOn))
	return pb, nil
}

// checkMonotone verifies that the power increases with head over the bounding box.
func (c *Core) checkMonotone(label string, pump *station.Pump, h, q model.Bound) {
	tol := c.opts.ConvexityTolerance
	d := pump.Power.DH()
	if v, ok := d.IsConstant(); ok {
		if v < -tol {
			c.report(pump.Symbol, zapcore.WarnLevel, "power decreases with head", v)
		}
		return
	}

	hd := d.Hessian()
	det, detOK := hd.Det().IsConstant()
	tr, trOK := hd.Trace().IsConstant()
	if detOK && trOK && (det < -tol || tr < -tol) {
		c.report(pump.Symbol, zapcore.WarnLevel, "derivative of power with respect to head is not convex, power may not be increasing with head", det)
	}

	e, err := c.hq.Solve(label, hq.Problem{Objective: d, H: &h, Q: &q, HSymbol: "H", QSymbol: "Q"})
	if err != nil {
		c.report(pump.Symbol, zapcore.WarnLevel, "could not minimize derivative of power with respect to head", math.NaN())
		return
	}
	if e.Objective < -tol {
		c.report(pump.Symbol, zapcore.WarnLevel, "power is not increasing with head everywhere", e.Objective)
	}
}

// checkConvex verifies that the Hessian of the power curve is positive semidefinite.
func (c *Core) checkConvex(label string, pump *station.Pump, ext []hq.Constraint, head, h, q model.Bound) {
	tol := c.opts.ConvexityTolerance
	hs := pump.Power.Hessian()
	hh, ok1 := hs.HH.IsConstant()
	hq2, ok2 := hs.HQ.IsConstant()
	qq, ok3 := hs.QQ.IsConstant()
	if ok1 && ok2 && ok3 {
		var eig mat.EigenSym
		if !eig.Factorize(mat.NewSymDense(2, []float64{hh, hq2, hq2, qq}), false) {
			c.report(pump.Symbol, zapcore.ErrorLevel, "power Hessian eigen decomposition failed", math.NaN())
			return
		}
		if v := floats.Min(eig.Values(nil)); v < -tol {
			c.report(pump.Symbol, zapcore.ErrorLevel, "power curve is not convex", v)
		}
		return
	}

	det := hs.Det()
	tr := hs.Trace()
	for _, region := range []struct {
		name string
		cons []hq.Constraint
		h    model.Bound
	}{
		{"extended working area", ext, head},
		{"bounding box", nil, h},
	} {
		for _, f := range []struct {
			name string
			p    poly.Bivariate
		}{{"determinant", det}, {"trace", tr}} {
			e, err := c.hq.Solve(label, hq.Problem{Objective: f.p, Constraints: region.cons, H: &region.h, Q: &q, HSymbol: "H", QSymbol: "Q"})
			switch {
			case err != nil:
				c.report(pump.Symbol, zapcore.ErrorLevel, "could not verify convexity over the "+region.name, math.NaN())
			case e.Objective < -tol:
				c.report(pump.Symbol, zapcore.ErrorLevel, "power curve is not convex over the "+region.name+", negative Hessian "+f.name, e.Objective)
			}
		}
	}
}

func (c *Core) report(pump string, level zapcore.Level, msg string, v float64) {
	c.Diagnostics = append(c.Diagnostics, Diagnostic{Pump: pump, Level: level, Message: msg, Value: v})
	if ce := c.logger.Check(level, msg); ce != nil {
		ce.Write(zap.String("pump", pump), zap.Float64("value", v))
	}
}
