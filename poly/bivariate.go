// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package poly implements bivariate polynomials over head 𝐇 and discharge 𝐐.
//
// A polynomial is given by its coefficient matrix 𝐂 such that
//
//	𝒑(𝐇,𝐐) = ∑ᵢ∑ⱼ 𝐂ᵢⱼ 𝐇ⁱ 𝐐ʲ
//
// Pump curves, working-area edges and power curves are all low-degree polynomials of
// this form, so derivatives and Hessians are computed in closed form.
package poly

import (
	"math"
	"strconv"
	"strings"
)

// Bivariate is an immutable polynomial in (𝐇,𝐐). The zero value is the zero polynomial.
type Bivariate struct {
	c [][]float64 // c[i][j] multiplies 𝐇ⁱ𝐐ʲ
}

// New creates a polynomial from a (possibly ragged) coefficient matrix.
// The matrix is copied; trailing zero rows and columns are dropped.
func New(c [][]float64) Bivariate {
	rows := len(c)
	cols := 0
	for _, r := range c {
		cols = max(cols, len(r))
	}
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		copy(m[i], c[i])
	}
	return Bivariate{c: trim(m)}
}

// Constant creates the constant polynomial 𝒑(𝐇,𝐐) = v.
func Constant(v float64) Bivariate {
	return New([][]float64{{v}})
}

// Linear creates 𝒑(𝐇,𝐐) = c + a𝐇 + b𝐐.
func Linear(c, a, b float64) Bivariate {
	return New([][]float64{{c, b}, {a}})
}

func trim(c [][]float64) [][]float64 {
	rows, cols := 0, 0
	for i, r := range c {
		for j, v := range r {
			if v != 0 {
				rows = max(rows, i+1)
				cols = max(cols, j+1)
			}
		}
	}
	if rows == 0 {
		return nil
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		copy(out[i], c[i])
	}
	return out
}

// Coefficients returns a copy of the coefficient matrix.
func (p Bivariate) Coefficients() [][]float64 {
	out := make([][]float64, len(p.c))
	for i, r := range p.c {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// Degree returns the highest power of 𝐇 and of 𝐐 appearing in the polynomial.
func (p Bivariate) Degree() (dh, dq int) {
	if len(p.c) == 0 {
		return 0, 0
	}
	return len(p.c) - 1, len(p.c[0]) - 1
}

// Coef returns the coefficient of 𝐇ⁱ𝐐ʲ.
func (p Bivariate) Coef(i, j int) float64 {
	if i < 0 || j < 0 || i >= len(p.c) || j >= len(p.c[i]) {
		return 0
	}
	return p.c[i][j]
}

// IsZero reports whether all coefficients vanish.
func (p Bivariate) IsZero() bool {
	return len(p.c) == 0
}

// IsConstant reports whether the polynomial has no dependence on 𝐇 or 𝐐,
// returning its value if so.
func (p Bivariate) IsConstant() (float64, bool) {
	dh, dq := p.Degree()
	if dh > 0 || dq > 0 {
		return math.NaN(), false
	}
	return p.Coef(0, 0), true
}

// Eval evaluates 𝒑(h,q).
func (p Bivariate) Eval(h, q float64) (f float64) {
	hi := 1.0
	for _, r := range p.c {
		qj, s := 1.0, 0.0
		for _, v := range r {
			s += v * qj
			qj *= q
		}
		f += s * hi
		hi *= h
	}
	return
}

// Gradient evaluates (∂𝒑/∂𝐇, ∂𝒑/∂𝐐) at (h,q).
func (p Bivariate) Gradient(h, q float64) (dh, dq float64) {
	for i, r := range p.c {
		for j, v := range r {
			if v == 0 {
				continue
			}
			if i > 0 {
				dh += float64(i) * v * ipow(h, i-1) * ipow(q, j)
			}
			if j > 0 {
				dq += float64(j) * v * ipow(h, i) * ipow(q, j-1)
			}
		}
	}
	return
}

// DH returns ∂𝒑/∂𝐇.
func (p Bivariate) DH() Bivariate {
	if len(p.c) < 2 {
		return Bivariate{}
	}
	m := make([][]float64, len(p.c)-1)
	for i := range m {
		r := p.c[i+1]
		m[i] = make([]float64, len(r))
		for j, v := range r {
			m[i][j] = float64(i+1) * v
		}
	}
	return Bivariate{c: trim(m)}
}

// DQ returns ∂𝒑/∂𝐐.
func (p Bivariate) DQ() Bivariate {
	m := make([][]float64, len(p.c))
	for i, r := range p.c {
		if len(r) < 2 {
			continue
		}
		m[i] = make([]float64, len(r)-1)
		for j := range m[i] {
			m[i][j] = float64(j+1) * r[j+1]
		}
	}
	return Bivariate{c: trim(m)}
}

// Add returns 𝒑 + o.
func (p Bivariate) Add(o Bivariate) Bivariate {
	return p.combine(o, 1)
}

// Sub returns 𝒑 - o.
func (p Bivariate) Sub(o Bivariate) Bivariate {
	return p.combine(o, -1)
}

func (p Bivariate) combine(o Bivariate, s float64) Bivariate {
	rows := max(len(p.c), len(o.c))
	m := make([][]float64, rows)
	for i := range m {
		cols := 0
		if i < len(p.c) {
			cols = len(p.c[i])
		}
		if i < len(o.c) {
			cols = max(cols, len(o.c[i]))
		}
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = p.Coef(i, j) + s*o.Coef(i, j)
		}
	}
	return Bivariate{c: trim(m)}
}

// Scale returns s·𝒑.
func (p Bivariate) Scale(s float64) Bivariate {
	m := p.Coefficients()
	for _, r := range m {
		for j := range r {
			r[j] *= s
		}
	}
	return Bivariate{c: trim(m)}
}

// Mul returns 𝒑·o.
func (p Bivariate) Mul(o Bivariate) Bivariate {
	if p.IsZero() || o.IsZero() {
		return Bivariate{}
	}
	pr, pc := len(p.c), len(p.c[0])
	or, oc := len(o.c), len(o.c[0])
	m := make([][]float64, pr+or-1)
	for i := range m {
		m[i] = make([]float64, pc+oc-1)
	}
	for i, r := range p.c {
		for j, v := range r {
			if v == 0 {
				continue
			}
			for k, s := range o.c {
				for l, w := range s {
					m[i+k][j+l] += v * w
				}
			}
		}
	}
	return Bivariate{c: trim(m)}
}

// Hessian is the symbolic matrix of second partial derivatives
//
//	𝜵²𝒑 = ⎡ 𝒑𝐇𝐇  𝒑𝐇𝐐 ⎤
//	      ⎣ 𝒑𝐇𝐐  𝒑𝐐𝐐 ⎦
type Hessian struct {
	HH, HQ, QQ Bivariate
}

// Hessian returns the symbolic Hessian of 𝒑.
func (p Bivariate) Hessian() Hessian {
	dh, dq := p.DH(), p.DQ()
	return Hessian{HH: dh.DH(), HQ: dh.DQ(), QQ: dq.DQ()}
}

// Det returns 𝒑𝐇𝐇·𝒑𝐐𝐐 - 𝒑𝐇𝐐².
func (h Hessian) Det() Bivariate {
	return h.HH.Mul(h.QQ).Sub(h.HQ.Mul(h.HQ))
}

// Trace returns 𝒑𝐇𝐇 + 𝒑𝐐𝐐.
func (h Hessian) Trace() Bivariate {
	return h.HH.Add(h.QQ)
}

// At evaluates the Hessian at (h,q) as a row-major 2×2 matrix.
func (h Hessian) At(hv, qv float64) [4]float64 {
	hq := h.HQ.Eval(hv, qv)
	return [4]float64{h.HH.Eval(hv, qv), hq, hq, h.QQ.Eval(hv, qv)}
}

// Evaluation adapts 𝒑 to the optimizer convention over x = [𝐇, 𝐐]:
// the value is returned and, when g is not nil, the gradient is stored in g.
func (p Bivariate) Evaluation() func(x, g []float64) float64 {
	return func(x, g []float64) float64 {
		if g != nil {
			g[0], g[1] = p.Gradient(x[0], x[1])
		}
		return p.Eval(x[0], x[1])
	}
}

// String prints the polynomial in terms of H and Q.
func (p Bivariate) String() string {
	return p.Format("H", "Q")
}

// Format prints the polynomial with the given variable names. The output is canonical:
// equal polynomials print identically, which makes it usable as a cache key.
func (p Bivariate) Format(h, q string) string {
	var sb strings.Builder
	for i, r := range p.c {
		for j, v := range r {
			if v == 0 {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString(" + ")
			}
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			writePow(&sb, h, i)
			writePow(&sb, q, j)
		}
	}
	if sb.Len() == 0 {
		return "0"
	}
	return sb.String()
}

func writePow(sb *strings.Builder, name string, k int) {
	switch k {
	case 0:
	case 1:
		sb.WriteString("*" + name)
	default:
		sb.WriteString("*" + name + "^" + strconv.Itoa(k))
	}
}

func ipow(x float64, k int) float64 {
	r := 1.0
	for ; k > 0; k-- {
		r *= x
	}
	return r
}
