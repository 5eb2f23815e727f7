// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pumping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/curioloop/hydraulic/hq"
	"github.com/curioloop/hydraulic/minlp"
	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/nlp"
	"github.com/curioloop/hydraulic/poly"
	"github.com/curioloop/hydraulic/station"
)

func TestObjective(t *testing.T) {
	p := newProblem(t, 3, 0, 10)
	p.SetTimeseries("energy_price", []float64{1, 2, 3})

	pump := basicPump("P1", poly.Linear(0, 2, 3))
	pump.StartUpEnergy, pump.StartUpCost = 100, 5
	pump.ShutDownCost = 7
	c := newCore(t, station.PumpingStation{Symbol: "PS", Pumps: []station.Pump{pump}})
	require.NoError(t, c.Setup(p))

	obj, err := c.Objective(p)
	require.NoError(t, err)

	x := point(t, p, map[string][]float64{
		"P1_power":        {99, 10, 20},
		"P1_switched_on":  {0, 1, 0},
		"P1_switched_off": {0, 0, 1},
	})
	want := 10*2*hour + 20*3*hour + (100*2 + 5) + 7
	assert.InDelta(t, want, obj.Eval(x), 1e-6)

	// half of 35 at a mean price of 2 over two hours
	assert.InDelta(t, 17.5*2*2*hour, c.Nominal(p), 1e-3)

	p.SetTimeseries("energy_price", []float64{1, 2})
	_, err = c.Objective(p)
	assert.ErrorIs(t, err, station.ErrInvalidConfiguration)
	assert.Equal(t, 1.0, c.Nominal(p))
}

func TestPostProcess(t *testing.T) {
	p := newProblem(t, 3, 0, 10)
	p.SetBounds("R1_Q", model.Bound{Lower: 0, Upper: 4})

	pump := basicPump("P1", poly.Linear(0, 2, 3))
	speed := poly.Linear(100, 0, 10)
	pump.Speed = &speed
	withLogs, logs := observed(zapcore.ErrorLevel)
	c := newCore(t, station.PumpingStation{
		Symbol:      "PS",
		Pumps:       []station.Pump{pump},
		Resistances: []station.Resistance{{Symbol: "R1", C: 0.5}},
	}, withLogs)
	require.NoError(t, c.Setup(p))
	logs.TakeAll()

	x := point(t, p, map[string][]float64{
		"P1_status": {1, 1, 0},
		"P1_head":   {4, 5, 6},
		"P1_Q":      {2, 1, 0},
		"P1_power":  {14, 15, 0},
		"R1_Q":      {2, 2, 0},
		"R1_dH":     {2, 3, 0},
	})
	before := append([]float64(nil), x...)

	report, err := c.PostProcess(p, x)
	require.NoError(t, err)
	assert.Equal(t, before, x)

	want := []Violation{
		{Element: "P1", Quantity: "power", T: 1, Value: 15, Target: 13},
		{Element: "R1", Quantity: "head_loss", T: 1, Value: 3, Target: 2},
	}
	assert.Equal(t, want, report.Violations)
	assert.False(t, report.OK())
	assert.Equal(t, 2, logs.FilterMessage("relaxed equality is not tight").Len())

	power, err := p.Timeseries("P1_power")
	require.NoError(t, err)
	assert.Equal(t, []float64{14, 13, 0}, power)
	sp, err := p.Timeseries("P1_speed")
	require.NoError(t, err)
	assert.Equal(t, []float64{120, 110, 0}, sp)
	status, err := p.Timeseries("P1_status")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0}, status)
}

// solveScenario runs the whole pipeline on a single pump station.
func solveScenario(t *testing.T, p *model.Problem, pump station.Pump) (*Core, *nlp.Result) {
	t.Helper()
	c := newCore(t, station.PumpingStation{Symbol: "PS", Pumps: []station.Pump{pump}},
		WithLogger(zaptest.NewLogger(t, zaptest.Level(zapcore.WarnLevel))),
		WithHQSolver(hq.New()))
	require.NoError(t, c.Setup(p))

	cons, err := c.Constraints(p)
	require.NoError(t, err)
	obj, err := c.Objective(p)
	require.NoError(t, err)

	prog := p.Program(obj.Scale(1/c.Nominal(p)), cons)
	r, _, err := minlp.New(nlp.New()).Solve(context.Background(), prog)
	require.NoError(t, err)
	return c, r
}

func TestIdleStation(t *testing.T) {
	// station head difference in [5, 10], no demand
	p := newProblem(t, 4, 5, 10)
	pump := basicPump("P1", poly.New([][]float64{{0, 0}, {0, 0.01}}))
	pump.MinimumOn, pump.MinimumOff = hour, hour

	c, r := solveScenario(t, p, pump)
	assert.InDelta(t, 0.0, r.F, 1e-6)

	for _, name := range []string{"P1_power", "P1_Q"} {
		vs, err := p.Series(r.X, name)
		require.NoError(t, err)
		for i, v := range vs {
			assert.InDelta(t, 0.0, v, 1e-6, "%s[%d]", name, i)
		}
	}

	report, err := c.PostProcess(p, r.X)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestIdleStationWithStartUpCost(t *testing.T) {
	p := newProblem(t, 4, 5, 10)
	p.SetTimeseries("P1"+HistorySuffix, []float64{1, 0})
	pump := basicPump("P1", poly.New([][]float64{{0, 0}, {0, 0.01}}))
	pump.MinimumOn, pump.MinimumOff = hour, hour
	pump.StartUpCost = 1

	_, r := solveScenario(t, p, pump)
	assert.InDelta(t, 0.0, r.F, 1e-6)

	status, err := p.Series(r.X, "P1_status")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, status)
}

func TestSetupReusesFileCache(t *testing.T) {
	dir := t.TempDir()
	pump := basicPump("P1", poly.Linear(0, 2, 3))
	s := station.PumpingStation{Symbol: "PS", Pumps: []station.Pump{pump}}

	fc, err := hq.OpenFileCache(dir, nil)
	require.NoError(t, err)
	first := hq.New(hq.WithCache(fc))
	c := newCore(t, s, WithHQSolver(first))
	require.NoError(t, c.Setup(newProblem(t, 3, 0, 10)))
	require.NoError(t, fc.Save())
	// the head maxima on and over the extended area coincide without offsets
	assert.Equal(t, 1, first.Hits)
	assert.Equal(t, 4, first.Misses)

	fc, err = hq.OpenFileCache(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Misses, fc.Len())
	second := hq.New(hq.WithCache(fc))
	c = newCore(t, s, WithHQSolver(second))
	require.NoError(t, c.Setup(newProblem(t, 3, 0, 10)))
	assert.Zero(t, second.Misses)

	pb, _ := c.PumpBounds("P1")
	assert.InDelta(t, 35.0, pb.MaxPowerOn, 1e-6)
}

func TestStoppedPumpDischarge(t *testing.T) {
	p := newProblem(t, 2, 0, 10)
	withLogs, logs := observed(zapcore.ErrorLevel)
	c := newCore(t, station.PumpingStation{Symbol: "PS", Pumps: []station.Pump{basicPump("P1", poly.Linear(0, 2, 3))}}, withLogs)
	require.NoError(t, c.Setup(p))
	logs.TakeAll()

	x := point(t, p, map[string][]float64{
		"P1_status": {0, 0},
		"P1_head":   {4, 4},
		"P1_Q":      {1e-6, 0.5},
	})
	report, err := c.PostProcess(p, x)
	require.NoError(t, err)

	want := []Violation{{Element: "P1", Quantity: "discharge", T: 1, Value: 0.5, Target: 0}}
	assert.Equal(t, want, report.Violations)
	assert.Equal(t, 1, logs.FilterMessage("stopped pump has discharge").Len())

	q, err := p.Timeseries("P1_Q")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5}, q)
}

func TestHeadWhileOn(t *testing.T) {
	// 𝐇 ≤ 20 is relaxed up to the station maximum of 30 while off
	p := newProblem(t, 2, 0, 30)
	c := newCore(t, station.PumpingStation{Symbol: "PS", Pumps: []station.Pump{basicPump("P1", poly.Linear(0, 2, 3))}})
	require.NoError(t, c.Setup(p))

	pb, _ := c.PumpBounds("P1")
	assert.InDelta(t, 20.0, pb.HMax, 1e-6)
	assert.InDelta(t, 30.0, pb.HMaxExt, 1e-6)

	cons, err := c.PathConstraints(p)
	require.NoError(t, err)
	for _, tc := range []struct {
		status, head float64
		ok           bool
	}{
		{1, 19.9, true},
		{1, 25, false},
		{0, 25, true},
		{0, 29.9, true},
	} {
		x := point(t, p, map[string][]float64{"P1_status": {tc.status}, "P1_head": {tc.head}})
		assert.Equal(t, tc.ok, len(violated(cons, "P1_head_on[0]", x)) == 0, "status %v head %v", tc.status, tc.head)
	}
}
