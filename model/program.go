// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"math"

	"github.com/pkg/errors"
)

// Program is a flat mathematical program
//
//	minimize 𝒇(𝐱) subject to
//	  - 𝒍ⱼ ≤ 𝒄ⱼ(𝐱) ≤ 𝒖ⱼ
//	  - 𝒍ᵢ ≤ 𝐱ᵢ ≤ 𝒖ᵢ
//	  - 𝐱ᵢ ∈ {0, 1} for discrete i
//
// It is the argument of the black-box solve entry points.
type Program struct {
	Objective   Expr
	Constraints []Constraint
	Bounds      []Bound
	Discrete    []bool    // optional, nil means all continuous
	X0          []float64 // optional initial guess
	Names       []string  // optional variable names for diagnostics
}

// N returns the number of variables.
func (p *Program) N() int {
	return len(p.Bounds)
}

// Validate checks the dimensions of the program.
func (p *Program) Validate() error {
	n := p.N()
	switch {
	case n == 0:
		return errors.New("program has no variables")
	case p.Discrete != nil && len(p.Discrete) != n:
		return errors.New("discrete flags size must equal to n")
	case p.X0 != nil && len(p.X0) != n:
		return errors.New("initial guess size must equal to n")
	}
	for k, b := range p.Bounds {
		if b.Lower > b.Upper {
			return errors.Errorf("bound error at %d", k)
		}
	}
	for k, c := range p.Constraints {
		if c.Lower > c.Upper {
			return errors.Errorf("constraint %q has empty range", c.Name)
		}
		for _, v := range c.Expr.Vars() {
			if int(v) < 0 || int(v) >= n {
				return errors.Errorf("constraint %d references variable %d outside program", k, v)
			}
		}
	}
	for _, v := range p.Objective.Vars() {
		if int(v) < 0 || int(v) >= n {
			return errors.Errorf("objective references variable %d outside program", v)
		}
	}
	return nil
}

// MaxViolation returns the largest constraint or bound violation at 𝐱
// together with the name of the offending row.
func (p *Program) MaxViolation(x []float64) (worst float64, name string) {
	for _, c := range p.Constraints {
		if v := c.Violation(x); v > worst {
			worst, name = v, c.Name
		}
	}
	for i, b := range p.Bounds {
		v := math.Max(0, math.Max(b.Lower-x[i], x[i]-b.Upper))
		if v > worst {
			worst, name = v, p.name(i)
		}
	}
	return
}

func (p *Program) name(i int) string {
	if i < len(p.Names) {
		return p.Names[i]
	}
	return "x"
}
