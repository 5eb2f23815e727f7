// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package poly

import (
	"math"
	"testing"

	"github.com/curioloop/optimizer/numdiff"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-9

// 𝒑 = 1 + 2𝐐 - 𝐐² + 3𝐇 + 0.5𝐇𝐐 + 𝐇²
func quadratic() Bivariate {
	return New([][]float64{
		{1, 2, -1},
		{3, 0.5},
		{1},
	})
}

func TestEval(t *testing.T) {
	p := quadratic()
	h, q := 2.0, 3.0
	want := 1 + 2*q - q*q + 3*h + 0.5*h*q + h*h
	assert.InDelta(t, want, p.Eval(h, q), delta)
	assert.InDelta(t, 1.0, p.Eval(0, 0), delta)
	assert.Equal(t, 0.0, Bivariate{}.Eval(4, 5))
}

func TestTrimAndDegree(t *testing.T) {
	p := New([][]float64{{0, 2, 0, 0}, {0}, {0, 0}})
	dh, dq := p.Degree()
	assert.Equal(t, 0, dh)
	assert.Equal(t, 1, dq)

	if diff := cmp.Diff([][]float64{{0, 2}}, p.Coefficients()); diff != "" {
		t.Errorf("Coefficients() mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, New([][]float64{{0, 0}, {0}}).IsZero())
}

func TestDerivatives(t *testing.T) {
	p := quadratic()

	// ∂𝒑/∂𝐇 = 3 + 0.5𝐐 + 2𝐇
	dh := p.DH()
	if diff := cmp.Diff([][]float64{{3, 0.5}, {2, 0}}, dh.Coefficients()); diff != "" {
		t.Errorf("DH() mismatch (-want +got):\n%s", diff)
	}

	// ∂𝒑/∂𝐐 = 2 - 2𝐐 + 0.5𝐇
	dq := p.DQ()
	if diff := cmp.Diff([][]float64{{2, -2}, {0.5, 0}}, dq.Coefficients()); diff != "" {
		t.Errorf("DQ() mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, Constant(7).DH().IsZero())
	assert.True(t, Constant(7).DQ().IsZero())
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	p := New([][]float64{
		{0.3, -1.2, 0.05},
		{2.0, 0.01, 0.2},
		{-0.4, 0.7},
		{0.02},
	})

	fd := numdiff.ApproxSpec{
		N: 2, M: 1,
		Object: func(x, y []float64) { y[0] = p.Eval(x[0], x[1]) },
		Method: numdiff.Central,
	}

	for _, x0 := range [][]float64{{0, 0}, {1.5, 0.3}, {-2, 4}, {10, 0.75}} {
		approx := make([]float64, 2)
		require.NoError(t, fd.Diff(x0, approx))

		dh, dq := p.Gradient(x0[0], x0[1])
		assert.InDelta(t, approx[0], dh, 1e-5*math.Max(1, math.Abs(dh)))
		assert.InDelta(t, approx[1], dq, 1e-5*math.Max(1, math.Abs(dq)))

		// symbolic derivatives agree with the direct gradient
		assert.InDelta(t, dh, p.DH().Eval(x0[0], x0[1]), delta)
		assert.InDelta(t, dq, p.DQ().Eval(x0[0], x0[1]), delta)
	}
}

func TestArithmetic(t *testing.T) {
	a := Linear(1, 2, 0)  // 1 + 2𝐇
	b := Linear(0, 0, -1) // -𝐐

	sum := a.Add(b)
	assert.Equal(t, "1 + -1*Q + 2*H", sum.String())

	prod := a.Mul(b) // -𝐐 - 2𝐇𝐐
	assert.InDelta(t, -3.0-2*2*3, prod.Eval(2, 3), delta)

	assert.True(t, a.Sub(a).IsZero())
	assert.InDelta(t, 2*(1+2*5.0), a.Scale(2).Eval(5, 0), delta)
}

func TestHessian(t *testing.T) {

	// 𝒑 = 𝐇² + 𝐇𝐐 + 2𝐐², 𝜵²𝒑 = [[2, 1], [1, 4]]
	convex := New([][]float64{{0, 0, 2}, {0, 1}, {1}})
	hess := convex.Hessian()

	det, ok := hess.Det().IsConstant()
	require.True(t, ok)
	assert.InDelta(t, 7.0, det, delta)

	tr, ok := hess.Trace().IsConstant()
	require.True(t, ok)
	assert.InDelta(t, 6.0, tr, delta)

	assert.Equal(t, [4]float64{2, 1, 1, 4}, hess.At(3, -1))

	// 𝒑 = 𝐐𝐇 (saddle), det = -1
	saddle := New([][]float64{{0}, {0, 1}})
	det, ok = saddle.Hessian().Det().IsConstant()
	require.True(t, ok)
	assert.InDelta(t, -1.0, det, delta)

	// 𝒑 = 𝐇³𝐐 has a Hessian depending on (𝐇,𝐐)
	cubic := New([][]float64{{0}, {0}, {0}, {0, 1}})
	_, ok = cubic.Hessian().Det().IsConstant()
	assert.False(t, ok)
}

func TestEvaluation(t *testing.T) {
	p := quadratic()
	eval := p.Evaluation()

	x := []float64{1, 2}
	g := make([]float64, 2)
	f := eval(x, g)

	dh, dq := p.Gradient(1, 2)
	switch {
	case math.Abs(f-p.Eval(1, 2)) > delta:
		t.Fatal("TestEvaluation: Bad Value")
	case math.Abs(g[0]-dh) > delta || math.Abs(g[1]-dq) > delta:
		t.Fatal("TestEvaluation: Bad Gradient")
	case eval(x, nil) != f:
		t.Fatal("TestEvaluation: Value Depends On Gradient")
	}
}

func TestFormat(t *testing.T) {
	p := New([][]float64{{0, 0.01}, {0, 0, 1}, {2.5}})
	assert.Equal(t, "0.01*Q + 1*H*Q^2 + 2.5*H^2", p.String())
	assert.Equal(t, "0.01*x + 1*y*x^2 + 2.5*y^2", p.Format("y", "x"))
	assert.Equal(t, "0", Bivariate{}.String())
}
