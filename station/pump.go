// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package station holds the typed static description of pumping stations:
// pumps with their working areas and power curves, flow resistances, and the
// switching rules between the pumps of a station.
package station

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/curioloop/hydraulic/poly"
)

// HeadOption selects which hydraulic head a pump works against.
type HeadOption int

const (
	Difference HeadOption = iota // 𝐇_down - 𝐇_up
	Upstream                     // 𝐇_up
	Downstream                   // 𝐇_down
)

var headOptionNames = [...]string{
	Difference: "difference",
	Upstream:   "upstream",
	Downstream: "downstream",
}

func (o HeadOption) String() string {
	if o < 0 || int(o) >= len(headOptionNames) {
		return "HeadOption(?)"
	}
	return headOptionNames[o]
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *HeadOption) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for k, n := range headOptionNames {
		if n == name {
			*o = HeadOption(k)
			return nil
		}
	}
	return invalidf("unknown head option %q", text)
}

// MarshalText implements encoding.TextMarshaler.
func (o HeadOption) MarshalText() ([]byte, error) {
	if o < 0 || int(o) >= len(headOptionNames) {
		return nil, invalidf("unknown head option %d", int(o))
	}
	return []byte(headOptionNames[o]), nil
}

// Pump is a variable speed pump unit.
type Pump struct {
	Symbol     string
	HeadOption HeadOption

	// WorkingArea is the intersection of half-planes the pump operates in while on.
	WorkingArea []HalfPlane

	// Power is 𝐏(𝐇,𝐐); it is expected to be convex and increasing in 𝐇.
	Power poly.Bivariate
	// Speed is 𝐍(𝐇,𝐐), nil when unknown.
	Speed *poly.Bivariate

	// MinimumOn and MinimumOff are durations in seconds.
	MinimumOn, MinimumOff float64

	StartUpEnergy, StartUpCost   float64
	ShutDownEnergy, ShutDownCost float64
}

// Validate checks the static pump data.
func (p *Pump) Validate() error {
	if p.Symbol == "" {
		return invalidf("pump symbol must not be empty")
	}
	if p.HeadOption < Difference || p.HeadOption > Downstream {
		return invalidf("pump %s: unknown head option %d", p.Symbol, int(p.HeadOption))
	}
	if len(p.WorkingArea) == 0 {
		return invalidf("pump %s: empty working area", p.Symbol)
	}
	for k, hp := range p.WorkingArea {
		if err := hp.Validate(); err != nil {
			return errors.WithMessagef(err, "pump %s: half-plane %d", p.Symbol, k)
		}
	}
	if p.Power.IsZero() {
		return invalidf("pump %s: missing power coefficients", p.Symbol)
	}
	for name, v := range map[string]float64{
		"minimum_on":       p.MinimumOn,
		"minimum_off":      p.MinimumOff,
		"start_up_energy":  p.StartUpEnergy,
		"start_up_cost":    p.StartUpCost,
		"shut_down_energy": p.ShutDownEnergy,
		"shut_down_cost":   p.ShutDownCost,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidf("pump %s: %s must be a nonnegative number, got %g", p.Symbol, name, v)
		}
	}
	return nil
}

// Steps converts the minimum on and off durations to grid steps of length dt.
func (p *Pump) Steps(dt float64) (on, off int) {
	return int(math.Floor(p.MinimumOn/dt + 1e-9)), int(math.Floor(p.MinimumOff/dt + 1e-9))
}

// Resistance is a passive element with head loss 𝐂·𝐐².
type Resistance struct {
	Symbol string
	C      float64
}

// Validate checks the loss coefficient.
func (r *Resistance) Validate() error {
	switch {
	case r.Symbol == "":
		return invalidf("resistance symbol must not be empty")
	case !(r.C >= 0) || math.IsInf(r.C, 1):
		return invalidf("resistance %s: coefficient must be nonnegative, got %g", r.Symbol, r.C)
	}
	return nil
}
