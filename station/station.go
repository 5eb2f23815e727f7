// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package station

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/hydraulic/model"
)

// PumpingStation groups pumps and resistances between an upstream and a downstream head.
//
// The switching matrix 𝐌 orders the pumps by priority. Row 𝒊 constrains
//
//	𝒍ᵢ ≤ 𝒔ᵢ + Σⱼ<ᵢ 𝐌ᵢⱼ·𝒔ⱼ ≤ 𝒖ᵢ
//
// and only rows with a nonzero entry are emitted. When absent, 𝐌ᵢ,ᵢ₋₁ = -1 and every
// row is bounded by (-∞, 0], so pump 𝒊 may only run while pump 𝒊-1 runs.
type PumpingStation struct {
	Symbol      string
	Pumps       []Pump
	Resistances []Resistance

	// SwitchingMatrix is nil for the default matrix.
	SwitchingMatrix *mat.Dense
	// SwitchingConstraints is nil for the default row bounds.
	SwitchingConstraints []model.Bound
}

// SwitchingRow is one resolved row of the switching rules.
type SwitchingRow struct {
	Pump  int       // index of the pump owning the row
	Coefs []float64 // weight per pump, including 1 for the owner
	Bound model.Bound
}

// Validate checks the members and the switching configuration.
func (s *PumpingStation) Validate() error {
	if s.Symbol == "" {
		return invalidf("station symbol must not be empty")
	}
	seen := make(map[string]bool)
	for k := range s.Pumps {
		p := &s.Pumps[k]
		if err := p.Validate(); err != nil {
			return errors.WithMessagef(err, "station %s", s.Symbol)
		}
		if seen[p.Symbol] {
			return invalidf("station %s: duplicate symbol %s", s.Symbol, p.Symbol)
		}
		seen[p.Symbol] = true
	}
	for k := range s.Resistances {
		r := &s.Resistances[k]
		if err := r.Validate(); err != nil {
			return errors.WithMessagef(err, "station %s", s.Symbol)
		}
		if seen[r.Symbol] {
			return invalidf("station %s: duplicate symbol %s", s.Symbol, r.Symbol)
		}
		seen[r.Symbol] = true
	}
	_, err := s.SwitchingRows()
	return err
}

// Switching returns the switching matrix and row bounds with defaults resolved.
func (s *PumpingStation) Switching() (*mat.Dense, []model.Bound, error) {
	n := len(s.Pumps)
	if n == 0 {
		return nil, nil, nil
	}

	m := s.SwitchingMatrix
	if m == nil {
		m = mat.NewDense(n, n, nil)
		for i := 1; i < n; i++ {
			m.Set(i, i-1, -1)
		}
	}
	if r, c := m.Dims(); r != n || c != n {
		return nil, nil, invalidf("station %s: switching matrix is %dx%d, want %dx%d", s.Symbol, r, c, n, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if m.At(i, j) != 0 {
				return nil, nil, invalidf("station %s: switching matrix entry (%d,%d) is outside the strict lower triangle", s.Symbol, i, j)
			}
		}
	}

	bounds := s.SwitchingConstraints
	if bounds == nil {
		bounds = make([]model.Bound, n)
		for i := range bounds {
			bounds[i] = model.Bound{Lower: math.Inf(-1), Upper: 0}
		}
	}
	if len(bounds) != n {
		return nil, nil, invalidf("station %s: %d switching constraints for %d pumps", s.Symbol, len(bounds), n)
	}
	for i, b := range bounds {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || b.Lower > b.Upper {
			return nil, nil, invalidf("station %s: switching constraint %d is empty", s.Symbol, i)
		}
	}
	return m, bounds, nil
}

// SwitchingRows returns the rows with at least one nonzero off-diagonal weight.
func (s *PumpingStation) SwitchingRows() ([]SwitchingRow, error) {
	m, bounds, err := s.Switching()
	if err != nil || m == nil {
		return nil, err
	}
	var rows []SwitchingRow
	for i := range s.Pumps {
		coefs := mat.Row(nil, i, m)
		active := false
		for _, c := range coefs {
			active = active || c != 0
		}
		if !active {
			continue
		}
		coefs[i] = 1
		rows = append(rows, SwitchingRow{Pump: i, Coefs: coefs, Bound: bounds[i]})
	}
	return rows, nil
}
