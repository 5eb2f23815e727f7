// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"slices"
	"strconv"
	"strings"

	"github.com/curioloop/hydraulic/poly"
)

// Var indexes a scalar decision variable in the free-variable vector 𝐱.
type Var int

// Factor is the power 𝐱ᵥᵏ of a single variable.
type Factor struct {
	Var Var
	Pow int
}

// Term is a monomial 𝒄·∏𝐱ᵥᵏ. Factors are sorted by variable and never repeat a variable.
type Term struct {
	Coef    float64
	Factors []Factor
}

// Expr is a sparse multivariate polynomial over decision variables.
// Every constraint assembled by the pumping station core is of this form:
// working-area edges and power curves are polynomial in (𝐇,𝐐),
// while status gating and switching logic are affine in the binaries.
//
// Expr values are immutable; all operations return new expressions.
type Expr struct {
	terms []Term // sorted by key, coefficients non-zero
}

// Const returns the constant expression c.
func Const(c float64) Expr {
	return Expr{}.AddConst(c)
}

// V returns the expression consisting of the single variable v.
func V(v Var) Expr {
	return Expr{terms: []Term{{Coef: 1, Factors: []Factor{{Var: v, Pow: 1}}}}}
}

// Sum returns the sum of the given expressions.
func Sum(es ...Expr) Expr {
	var terms []Term
	for _, e := range es {
		terms = append(terms, e.terms...)
	}
	return normalize(terms)
}

// WeightedSum returns ∑ cᵢ𝐱ᵢ.
func WeightedSum(vs []Var, coefs []float64) Expr {
	terms := make([]Term, 0, len(vs))
	for i, v := range vs {
		terms = append(terms, Term{Coef: coefs[i], Factors: []Factor{{Var: v, Pow: 1}}})
	}
	return normalize(terms)
}

// FromBivariate substitutes 𝐇 := h and 𝐐 := q into p.
func FromBivariate(p poly.Bivariate, h, q Expr) Expr {
	dh, dq := p.Degree()
	hp := powers(h, dh)
	qp := powers(q, dq)
	var out []Term
	for i := 0; i <= dh; i++ {
		for j := 0; j <= dq; j++ {
			c := p.Coef(i, j)
			if c == 0 {
				continue
			}
			out = append(out, hp[i].Mul(qp[j]).Scale(c).terms...)
		}
	}
	return normalize(out)
}

func powers(e Expr, k int) []Expr {
	ps := make([]Expr, k+1)
	ps[0] = Const(1)
	for i := 1; i <= k; i++ {
		ps[i] = ps[i-1].Mul(e)
	}
	return ps
}

// Add returns e + o.
func (e Expr) Add(o Expr) Expr {
	return Sum(e, o)
}

// Sub returns e - o.
func (e Expr) Sub(o Expr) Expr {
	return Sum(e, o.Scale(-1))
}

// AddConst returns e + c.
func (e Expr) AddConst(c float64) Expr {
	return normalize(append(slices.Clone(e.terms), Term{Coef: c}))
}

// Scale returns s·e.
func (e Expr) Scale(s float64) Expr {
	terms := make([]Term, len(e.terms))
	for i, t := range e.terms {
		terms[i] = Term{Coef: s * t.Coef, Factors: t.Factors}
	}
	return normalize(terms)
}

// Mul returns e·o.
func (e Expr) Mul(o Expr) Expr {
	var terms []Term
	for _, a := range e.terms {
		for _, b := range o.terms {
			terms = append(terms, Term{Coef: a.Coef * b.Coef, Factors: mulFactors(a.Factors, b.Factors)})
		}
	}
	return normalize(terms)
}

func mulFactors(a, b []Factor) []Factor {
	out := make([]Factor, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Var < b[j].Var:
			out = append(out, a[i])
			i++
		case a[i].Var > b[j].Var:
			out = append(out, b[j])
			j++
		default:
			out = append(out, Factor{Var: a[i].Var, Pow: a[i].Pow + b[j].Pow})
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func termKey(fs []Factor) string {
	var sb strings.Builder
	for _, f := range fs {
		sb.WriteString(strconv.Itoa(int(f.Var)))
		sb.WriteByte('^')
		sb.WriteString(strconv.Itoa(f.Pow))
		sb.WriteByte(' ')
	}
	return sb.String()
}

func normalize(terms []Term) Expr {
	acc := make(map[string]int, len(terms))
	var out []Term
	for _, t := range terms {
		k := termKey(t.Factors)
		if i, ok := acc[k]; ok {
			out[i].Coef += t.Coef
			continue
		}
		acc[k] = len(out)
		out = append(out, Term{Coef: t.Coef, Factors: t.Factors})
	}
	out = slices.DeleteFunc(out, func(t Term) bool { return t.Coef == 0 })
	slices.SortFunc(out, func(a, b Term) int {
		return compareFactors(a.Factors, b.Factors)
	})
	return Expr{terms: out}
}

func compareFactors(a, b []Factor) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Var != b[i].Var {
			return int(a[i].Var - b[i].Var)
		}
		if a[i].Pow != b[i].Pow {
			return a[i].Pow - b[i].Pow
		}
	}
	return len(a) - len(b)
}

// Terms returns the monomials of e.
func (e Expr) Terms() []Term {
	return slices.Clone(e.terms)
}

// Vars returns the sorted set of variables e depends on.
func (e Expr) Vars() []Var {
	var vs []Var
	for _, t := range e.terms {
		for _, f := range t.Factors {
			vs = append(vs, f.Var)
		}
	}
	slices.Sort(vs)
	return slices.Compact(vs)
}

// Degree returns the total degree of e.
func (e Expr) Degree() (d int) {
	for _, t := range e.terms {
		s := 0
		for _, f := range t.Factors {
			s += f.Pow
		}
		d = max(d, s)
	}
	return
}

// Constant returns the constant part of e.
func (e Expr) Constant() float64 {
	for _, t := range e.terms {
		if len(t.Factors) == 0 {
			return t.Coef
		}
	}
	return 0
}

// Eval evaluates e at 𝐱.
func (e Expr) Eval(x []float64) (f float64) {
	for _, t := range e.terms {
		v := t.Coef
		for _, fc := range t.Factors {
			v *= ipow(x[fc.Var], fc.Pow)
		}
		f += v
	}
	return
}

// Gradient adds 𝜵e(𝐱) into g. The caller is responsible for clearing g.
func (e Expr) Gradient(x, g []float64) {
	for _, t := range e.terms {
		for k, fc := range t.Factors {
			d := t.Coef * float64(fc.Pow) * ipow(x[fc.Var], fc.Pow-1)
			for l, o := range t.Factors {
				if l != k {
					d *= ipow(x[o.Var], o.Pow)
				}
			}
			g[fc.Var] += d
		}
	}
}

// Evaluation adapts e to the optimizer convention: the value is returned and,
// when g is not nil, g is overwritten with the gradient.
func (e Expr) Evaluation() func(x, g []float64) float64 {
	return func(x, g []float64) float64 {
		if g != nil {
			clear(g)
			e.Gradient(x, g)
		}
		return e.Eval(x)
	}
}

// Format prints e using name to render variables.
func (e Expr) Format(name func(Var) string) string {
	if len(e.terms) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range e.terms {
		if i > 0 {
			sb.WriteString(" + ")
		}
		sb.WriteString(strconv.FormatFloat(t.Coef, 'g', -1, 64))
		for _, f := range t.Factors {
			sb.WriteByte('*')
			sb.WriteString(name(f.Var))
			if f.Pow > 1 {
				sb.WriteByte('^')
				sb.WriteString(strconv.Itoa(f.Pow))
			}
		}
	}
	return sb.String()
}

// String prints e with variables rendered as x[i].
func (e Expr) String() string {
	return e.Format(func(v Var) string { return "x[" + strconv.Itoa(int(v)) + "]" })
}

func ipow(x float64, k int) float64 {
	r := 1.0
	for ; k > 0; k-- {
		r *= x
	}
	return r
}
