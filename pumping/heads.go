// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pumping

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/station"
)

// HeadRanges are the head ranges of a station per head convention.
type HeadRanges struct {
	Station        string
	Up, Down, Diff model.Bound
}

// For returns the range of a convention; both ends must be finite.
func (hr HeadRanges) For(o station.HeadOption) (model.Bound, error) {
	var (
		b    model.Bound
		name string
	)
	switch o {
	case station.Upstream:
		b, name = hr.Up, hr.Station+"_H_up"
	case station.Downstream:
		b, name = hr.Down, hr.Station+"_H_down"
	default:
		b, name = hr.Diff, hr.Station+"_H_down - "+hr.Station+"_H_up"
	}
	if !b.IsFinite() {
		return b, errors.Wrapf(station.ErrMissingBounds, "head range of %s is [%g, %g]", name, b.Lower, b.Upper)
	}
	return b, nil
}

// DeriveHeadRanges reads the upstream and downstream head of a station from the
// declared bounds of <station>_H_up and <station>_H_down. Open ends are filled from
// the extrema of the time series of the same name, NaN values excluded.
//
// The difference range is down - up: taken from the extrema of the element-wise
// difference when both heads come from equally long series, and from interval
// arithmetic otherwise.
func DeriveHeadRanges(p Problem, symbol string) HeadRanges {
	hr := HeadRanges{Station: symbol}
	up, upTS := headRange(p, symbol+"_H_up")
	down, dnTS := headRange(p, symbol+"_H_down")
	hr.Up, hr.Down = up, down

	hr.Diff = model.Bound{Lower: down.Lower - up.Upper, Upper: down.Upper - up.Lower}
	if upTS != nil && dnTS != nil && len(upTS) == len(dnTS) {
		diff := make([]float64, len(upTS))
		floats.SubTo(diff, dnTS, upTS)
		if lo, hi, ok := extrema(diff); ok {
			hr.Diff = model.Bound{Lower: lo, Upper: hi}
		}
	}
	if math.IsNaN(hr.Diff.Lower) {
		hr.Diff.Lower = math.Inf(-1)
	}
	if math.IsNaN(hr.Diff.Upper) {
		hr.Diff.Upper = math.Inf(1)
	}
	return hr
}

// headRange returns the range of a head symbol and, when the declared bound was
// incomplete, the series it was completed from.
func headRange(p Problem, name string) (model.Bound, []float64) {
	b, ok := p.Bounds()[name]
	if !ok {
		b = model.Free
	}
	if b.IsFinite() {
		return b, nil
	}
	ts, err := p.Timeseries(name)
	if err != nil {
		return b, nil
	}
	lo, hi, ok := extrema(ts)
	if !ok {
		return b, nil
	}
	if isInf(b.Lower) || math.IsNaN(b.Lower) {
		b.Lower = lo
	}
	if isInf(b.Upper) || math.IsNaN(b.Upper) {
		b.Upper = hi
	}
	return b, ts
}

// extrema returns the minimum and maximum of the non-NaN values.
func extrema(vs []float64) (lo, hi float64, ok bool) {
	finite := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 0, false
	}
	return floats.Min(finite), floats.Max(finite), true
}

func isInf(v float64) bool {
	return math.IsInf(v, 0)
}
