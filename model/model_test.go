// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"math"
	"testing"

	"github.com/curioloop/optimizer/numdiff"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/hydraulic/poly"
)

const delta = 1e-9

func TestExprArithmetic(t *testing.T) {
	x, y := V(0), V(1)

	e := x.Add(y.Scale(2)).AddConst(3) // x + 2y + 3
	assert.InDelta(t, 1+4+3.0, e.Eval([]float64{1, 2}), delta)
	assert.Equal(t, 3.0, e.Constant())
	assert.Equal(t, []Var{0, 1}, e.Vars())
	assert.Equal(t, 1, e.Degree())

	sq := x.Sub(y).Mul(x.Sub(y)) // x² - 2xy + y²
	assert.Equal(t, 2, sq.Degree())
	assert.InDelta(t, 9.0, sq.Eval([]float64{4, 1}), delta)

	zero := e.Sub(e)
	assert.Empty(t, zero.Terms())
	assert.Equal(t, "0", zero.String())
}

func TestExprCanonical(t *testing.T) {
	a := V(2).Mul(V(0)).Add(V(1).Scale(-1))
	b := V(1).Scale(-1).Add(V(0).Mul(V(2)))
	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, "1*x[0]*x[2] + -1*x[1]", a.String())
}

func TestWeightedSum(t *testing.T) {
	e := WeightedSum([]Var{0, 1, 0}, []float64{1, -1, 2})
	assert.Equal(t, "3*x[0] + -1*x[1]", e.String())
}

func TestFromBivariate(t *testing.T) {
	// 𝒑 = 1 + 2𝐇𝐐 + 𝐐²
	p := poly.New([][]float64{{1, 0, 1}, {0, 2}})
	e := FromBivariate(p, V(3), V(1))

	x := []float64{0, 0.5, 0, 2}
	assert.InDelta(t, p.Eval(2, 0.5), e.Eval(x), delta)

	// substitution of affine expressions: 𝐇 := 𝐱₀ - 𝐱₁
	e = FromBivariate(p, V(0).Sub(V(1)), V(2))
	x = []float64{5, 2, 1.5}
	assert.InDelta(t, p.Eval(3, 1.5), e.Eval(x), delta)
}

func TestExprGradient(t *testing.T) {
	e := V(0).Mul(V(0)).Mul(V(1)).Add(V(2).Scale(3)).Sub(V(1).Mul(V(2)).Scale(0.5)).AddConst(1)
	eval := e.Evaluation()

	fd := numdiff.ApproxSpec{
		N: 3, M: 1,
		Object: func(x, y []float64) { y[0] = e.Eval(x) },
		Method: numdiff.Central,
	}

	for _, x0 := range [][]float64{{1, 2, 3}, {-0.5, 0.25, 4}, {0, 0, 0}} {
		approx := make([]float64, 3)
		require.NoError(t, fd.Diff(x0, approx))
		g := []float64{9, 9, 9} // overwritten
		f := eval(x0, g)
		assert.InDelta(t, e.Eval(x0), f, delta)
		for i := range g {
			assert.InDelta(t, approx[i], g[i], 1e-6)
		}
	}
}

func TestProblemLayout(t *testing.T) {
	p, err := NewProblem([]float64{0, 3600, 7200})
	require.NoError(t, err)

	require.NoError(t, p.AddState("pump_Q", false))
	require.NoError(t, p.AddState("pump_status", true))
	require.NoError(t, p.AddState("pump_Q", false))
	assert.Equal(t, []string{"pump_Q", "pump_status"}, p.States())

	v, err := p.StateAt("pump_status", 2)
	require.NoError(t, err)
	assert.Equal(t, Var(5), v)
	assert.Equal(t, "pump_status[2]", p.VarName(v))

	_, err = p.StateAt("missing", 0)
	assert.ErrorIs(t, err, ErrUnknownState)
	_, err = p.StateAt("pump_Q", 3)
	assert.ErrorIs(t, err, ErrTimeIndex)

	_, err = p.Timeseries("energy_price")
	assert.ErrorIs(t, err, ErrUnknownTimeseries)
	p.SetTimeseries("energy_price", []float64{1, 2, 3})
	ts, err := p.Timeseries("energy_price")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, ts)

	_, err = NewProblem([]float64{0, 0})
	assert.Error(t, err)
}

func TestProgram(t *testing.T) {
	p, err := NewProblem([]float64{0, 1})
	require.NoError(t, err)
	require.NoError(t, p.AddState("q", false))
	require.NoError(t, p.AddState("s", true))
	p.SetBounds("q", Bound{Lower: 0, Upper: 4})
	p.SetBounds("s", Bound{Lower: -3, Upper: 3})

	q0, _ := p.StateAt("q", 0)
	prog := p.Program(V(q0), []Constraint{{Name: "c", Expr: V(q0), Lower: 1, Upper: math.Inf(1)}})
	require.NoError(t, prog.Validate())

	want := []Bound{{0, 4}, {0, 4}, {0, 1}, {0, 1}}
	if diff := cmp.Diff(want, prog.Bounds); diff != "" {
		t.Errorf("Bounds mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []bool{false, false, true, true}, prog.Discrete)
	assert.Equal(t, []float64{2, 2, 0.5, 0.5}, prog.X0)

	worst, name := prog.MaxViolation([]float64{0, 0, 0, 2.5})
	assert.InDelta(t, 1.5, worst, delta)
	assert.Equal(t, "s[1]", name)

	bad := &Program{Bounds: []Bound{{0, 1}}, Constraints: []Constraint{{Expr: V(3), Lower: 0, Upper: 1}}}
	assert.Error(t, bad.Validate())
}
