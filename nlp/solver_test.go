// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/hydraulic/model"
)

func almostEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// minimize (𝐱₀-1)² + (𝐱₁-2)² subject to 𝐱₀ + 𝐱₁ ≤ 2, 𝐱 ≥ 0
func TestConstrainedQuadratic(t *testing.T) {
	x0, x1 := model.V(0), model.V(1)
	obj := x0.AddConst(-1).Mul(x0.AddConst(-1)).Add(x1.AddConst(-2).Mul(x1.AddConst(-2)))

	p := &model.Program{
		Objective: obj,
		Constraints: []model.Constraint{
			{Name: "cap", Expr: x0.Add(x1), Lower: math.Inf(-1), Upper: 2},
		},
		Bounds: []model.Bound{{0, math.Inf(1)}, {0, math.Inf(1)}},
	}

	r, err := New().Solve(p)
	require.NoError(t, err)

	// projection of (1,2) onto 𝐱₀ + 𝐱₁ = 2
	wantX := []float64{0.5, 1.5}
	switch {
	case !almostEqual(r.X, wantX, 1e-6):
		t.Fatalf("TestConstrainedQuadratic: Bad Solution %v", r.X)
	case math.Abs(r.F-0.5) > 1e-8:
		t.Fatalf("TestConstrainedQuadratic: Bad Objective %v", r.F)
	}
}

func TestEqualityAndTwoSided(t *testing.T) {
	x0, x1, x2 := model.V(0), model.V(1), model.V(2)

	// minimize 𝐱₀² + 𝐱₁² + 𝐱₂ subject to 𝐱₀𝐱₁ = 𝐱₂, 1 ≤ 𝐱₂ ≤ 5
	p := &model.Program{
		Objective: x0.Mul(x0).Add(x1.Mul(x1)).Add(x2),
		Constraints: []model.Constraint{
			{Name: "prod", Expr: x0.Mul(x1).Sub(x2), Lower: 0, Upper: 0},
			{Name: "range", Expr: x2, Lower: 1, Upper: 5},
		},
		Bounds: []model.Bound{{-10, 10}, {-10, 10}, {-10, 10}},
		X0:     []float64{1, 2, 3},
	}

	r, err := New().Solve(p)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, r.F, 1e-6)
	assert.InDelta(t, 1.0, r.X[2], 1e-6)
	assert.InDelta(t, 1.0, math.Abs(r.X[0]*r.X[1]), 1e-6)
}

func TestBoxOnly(t *testing.T) {
	x0, x1 := model.V(0), model.V(1)

	// minimize (𝐱₀+3)² + (𝐱₁-0.5)² over 𝐱₀ ≥ 0
	p := &model.Program{
		Objective: x0.AddConst(3).Mul(x0.AddConst(3)).Add(x1.AddConst(-0.5).Mul(x1.AddConst(-0.5))),
		Bounds:    []model.Bound{{0, math.Inf(1)}, model.Free},
	}

	r, err := New().Solve(p)
	require.NoError(t, err)
	assert.True(t, almostEqual(r.X, []float64{0, 0.5}, 1e-6), "got %v", r.X)
	assert.InDelta(t, 9.0, r.F, 1e-8)
}

func TestInfeasible(t *testing.T) {
	x0 := model.V(0)
	p := &model.Program{
		Objective: x0,
		Constraints: []model.Constraint{
			{Name: "low", Expr: x0, Lower: 3, Upper: math.Inf(1)},
		},
		Bounds: []model.Bound{{0, 1}},
	}

	_, err := New(WithTermination(Termination{Accuracy: 1e-8, MaxIterations: 50, Feasibility: 1e-6})).Solve(p)
	assert.Error(t, err)
}

func TestInvalidProgram(t *testing.T) {
	_, err := New().Solve(&model.Program{})
	assert.Error(t, err)
}
