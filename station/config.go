// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package station

import (
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/poly"
)

// Config is the parameter file of a model.
//
//	[[station]]
//	symbol = "PS"
//
//	[[station.pump]]
//	symbol = "P1"
//	head_option = "difference"
//	power_coefficients = [[0, 0], [0, 0.01]]
//	minimum_on = 3600.0
//
//	[[station.pump.working_area]]
//	coefficients = [[-0.2, 1]]
//	direction = 1
type Config struct {
	Stations []StationConfig `toml:"station"`
}

// StationConfig describes one pumping station.
type StationConfig struct {
	Symbol      string             `toml:"symbol"`
	Pumps       []PumpConfig       `toml:"pump"`
	Resistances []ResistanceConfig `toml:"resistance"`

	// Optional, omitted for the default switching rules.
	SwitchingMatrix      [][]float64 `toml:"switching_matrix"`
	SwitchingConstraints [][]float64 `toml:"switching_constraints"`
}

// PumpConfig describes one pump. Coefficient matrices are indexed [𝒊][𝒋] for 𝐇ⁱ𝐐ʲ.
type PumpConfig struct {
	Symbol            string            `toml:"symbol"`
	HeadOption        HeadOption        `toml:"head_option"`
	WorkingArea       []HalfPlaneConfig `toml:"working_area"`
	PowerCoefficients [][]float64       `toml:"power_coefficients"`
	SpeedCoefficients [][]float64       `toml:"speed_coefficients"`
	MinimumOn         float64           `toml:"minimum_on"`
	MinimumOff        float64           `toml:"minimum_off"`
	StartUpEnergy     float64           `toml:"start_up_energy"`
	StartUpCost       float64           `toml:"start_up_cost"`
	ShutDownEnergy    float64           `toml:"shut_down_energy"`
	ShutDownCost      float64           `toml:"shut_down_cost"`
}

// HalfPlaneConfig describes one working area boundary.
type HalfPlaneConfig struct {
	Coefficients [][]float64 `toml:"coefficients"`
	Direction    int         `toml:"direction"`
}

// ResistanceConfig describes one resistance.
type ResistanceConfig struct {
	Symbol string  `toml:"symbol"`
	C      float64 `toml:"c"`
}

// LoadConfig reads and validates a parameter file.
func LoadConfig(path string) ([]PumpingStation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open station config")
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig decodes a parameter file. Unknown keys are rejected.
func ParseConfig(r io.Reader) ([]PumpingStation, error) {
	var cfg Config
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, invalidf("%s", strict.String())
		}
		return nil, errors.Wrap(ErrInvalidConfiguration, err.Error())
	}
	return cfg.Build()
}

// Build converts the file representation into validated stations.
func (c *Config) Build() ([]PumpingStation, error) {
	stations := make([]PumpingStation, 0, len(c.Stations))
	for _, sc := range c.Stations {
		s, err := sc.build()
		if err != nil {
			return nil, err
		}
		if err = s.Validate(); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, nil
}

func (sc *StationConfig) build() (PumpingStation, error) {
	s := PumpingStation{Symbol: sc.Symbol}

	for _, pc := range sc.Pumps {
		p := Pump{
			Symbol:         pc.Symbol,
			HeadOption:     pc.HeadOption,
			Power:          poly.New(pc.PowerCoefficients),
			MinimumOn:      pc.MinimumOn,
			MinimumOff:     pc.MinimumOff,
			StartUpEnergy:  pc.StartUpEnergy,
			StartUpCost:    pc.StartUpCost,
			ShutDownEnergy: pc.ShutDownEnergy,
			ShutDownCost:   pc.ShutDownCost,
		}
		if pc.SpeedCoefficients != nil {
			speed := poly.New(pc.SpeedCoefficients)
			p.Speed = &speed
		}
		for _, hc := range pc.WorkingArea {
			p.WorkingArea = append(p.WorkingArea, HalfPlane{Poly: poly.New(hc.Coefficients), Direction: hc.Direction})
		}
		s.Pumps = append(s.Pumps, p)
	}

	for _, rc := range sc.Resistances {
		s.Resistances = append(s.Resistances, Resistance{Symbol: rc.Symbol, C: rc.C})
	}

	if sc.SwitchingMatrix != nil {
		n := len(sc.SwitchingMatrix)
		data := make([]float64, 0, n*n)
		for i, row := range sc.SwitchingMatrix {
			if len(row) != n {
				return s, invalidf("station %s: switching matrix row %d has %d entries, want %d", sc.Symbol, i, len(row), n)
			}
			data = append(data, row...)
		}
		if n > 0 {
			s.SwitchingMatrix = mat.NewDense(n, n, data)
		}
	}

	if sc.SwitchingConstraints != nil {
		s.SwitchingConstraints = make([]model.Bound, len(sc.SwitchingConstraints))
		for i, b := range sc.SwitchingConstraints {
			if len(b) != 2 {
				return s, invalidf("station %s: switching constraint %d must be [min, max]", sc.Symbol, i)
			}
			s.SwitchingConstraints[i] = model.Bound{Lower: b[0], Upper: b[1]}
		}
	}
	return s, nil
}
