// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package station

import (
	"math"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/poly"
)

// HalfPlane is one polynomial boundary of a working area:
//
//	𝒅·𝒈(𝐇,𝐐) ≥ 0   (𝒅 ∈ {-1, +1})
type HalfPlane struct {
	Poly      poly.Bivariate
	Direction int
}

// Validate checks the direction.
func (hp HalfPlane) Validate() error {
	if hp.Direction != 1 && hp.Direction != -1 {
		return invalidf("working area direction must be +1 or -1, got %d", hp.Direction)
	}
	return nil
}

// Contains reports whether (𝐇,𝐐) lies in the half-plane.
func (hp HalfPlane) Contains(h, q float64) bool {
	return float64(hp.Direction)*hp.Poly.Eval(h, q) >= 0
}

// Relax widens the half-plane so that the off state 𝐐 = 0 is admissible over the
// whole head range [hmin, hmax]:
//
//	𝒈'(𝐇,𝐐,𝒔) = 𝒈(𝐇,𝐐) + (1-𝒔)·𝒐
//
// The offset 𝒐 is the largest violation of 𝒅·𝒈(𝐇,0) ≥ 0 at the two head endpoints,
// signed by 𝒅. Only the endpoints are inspected.
func (hp HalfPlane) Relax(hmin, hmax float64) (Relaxed, error) {
	if err := hp.Validate(); err != nil {
		return Relaxed{}, err
	}
	d := float64(hp.Direction)
	need := math.Max(0, math.Max(-d*hp.Poly.Eval(hmin, 0), -d*hp.Poly.Eval(hmax, 0)))
	return Relaxed{HalfPlane: hp, Offset: d * need}, nil
}

// Relaxed is a half-plane shifted by (1-𝒔)·Offset.
type Relaxed struct {
	HalfPlane
	Offset float64
}

// AtStatus returns the shifted polynomial for a fixed status.
func (r Relaxed) AtStatus(s float64) poly.Bivariate {
	return r.Poly.Add(poly.Constant((1 - s) * r.Offset))
}

// Expr returns the shifted constraint function over decision variables.
func (r Relaxed) Expr(h, q, s model.Expr) model.Expr {
	return model.FromBivariate(r.Poly, h, q).Add(model.Const(r.Offset).Sub(s.Scale(r.Offset)))
}

// Constraint returns the row 𝒈' ≥ 0 for direction +1 and 𝒈' ≤ 0 for direction -1.
func (r Relaxed) Constraint(name string, h, q, s model.Expr) model.Constraint {
	c := model.Constraint{Name: name, Expr: r.Expr(h, q, s), Lower: 0, Upper: math.Inf(1)}
	if r.Direction < 0 {
		c.Lower, c.Upper = math.Inf(-1), 0
	}
	return c
}

// Bivariate returns the sense-normalised polynomial 𝒅·𝒈' at a fixed status,
// nonnegative inside the area.
func (r Relaxed) Bivariate(s float64) poly.Bivariate {
	return r.AtStatus(s).Scale(float64(r.Direction))
}
