// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minlp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curioloop/hydraulic/model"
	"github.com/curioloop/hydraulic/nlp"
)

// maximize 𝐱₀ + 𝐱₁ subject to 2𝐱₀ + 2𝐱₁ ≤ 3, 𝐱 ∈ {0,1}²
func knapsack() *model.Program {
	x0, x1 := model.V(0), model.V(1)
	return &model.Program{
		Objective: x0.Add(x1).Scale(-1),
		Constraints: []model.Constraint{
			{Name: "cap", Expr: x0.Scale(2).Add(x1.Scale(2)), Lower: math.Inf(-1), Upper: 3},
		},
		Bounds:   []model.Bound{model.Binary, model.Binary},
		Discrete: []bool{true, true},
	}
}

func TestKnapsack(t *testing.T) {
	s := New(nlp.New(), WithLogger(zaptest.NewLogger(t)))
	r, stats, err := s.Solve(context.Background(), knapsack())
	require.NoError(t, err)

	assert.InDelta(t, -1.0, r.F, 1e-6)
	assert.Equal(t, []float64{0, 1}, r.X)
	assert.GreaterOrEqual(t, stats.Nodes, 3)
	assert.Equal(t, 1, stats.Incumbents)
}

func TestGeneralInteger(t *testing.T) {
	y := model.V(0).AddConst(-2.3)
	p := &model.Program{
		Objective: y.Mul(y),
		Bounds:    []model.Bound{{Lower: 0, Upper: 5}},
		Discrete:  []bool{true},
	}

	r, _, err := New(nlp.New()).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.X[0])
	assert.InDelta(t, 0.09, r.F, 1e-6)
}

func TestInfeasibleInteger(t *testing.T) {
	x := model.V(0)
	p := &model.Program{
		Objective: x,
		Constraints: []model.Constraint{
			{Name: "mid", Expr: x, Lower: 0.25, Upper: 0.75},
		},
		Bounds:   []model.Bound{model.Binary},
		Discrete: []bool{true},
	}

	_, _, err := New(nlp.New()).Solve(context.Background(), p)
	assert.ErrorIs(t, err, ErrNoIntegralSolution)
}

func TestNodeLimit(t *testing.T) {
	_, stats, err := New(nlp.New(), WithNodeLimit(1)).Solve(context.Background(), knapsack())
	assert.ErrorIs(t, err, ErrNodeLimit)
	assert.Equal(t, 1, stats.Nodes)
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _, err := New(nlp.New()).Solve(ctx, knapsack())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, r)
}
