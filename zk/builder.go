// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Var is a wire inside a relation under synthesis. Every Var carries its
// assigned value; the builder records constraints against those values so
// an unsatisfiable relation is detected at proving time.
type Var struct {
	v fr.Element
	b *Builder
}

// Value returns the assignment of the wire.
func (v Var) Value() fr.Element {
	return v.v
}

// Builder synthesizes a relation. Public inputs are collected in allocation
// order; their sequence is the public input vector the verifier checks the
// proof against. Constraint violations are recorded, not fatal, so a whole
// relation can be synthesized and the failures reported together.
type Builder struct {
	public       []fr.Element
	nConstraints int
	failures     []string
}

// NewBuilder creates an empty relation builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PublicInput allocates v as the next public input wire.
func (b *Builder) PublicInput(v fr.Element) Var {
	b.public = append(b.public, v)
	return Var{v: v, b: b}
}

// Witness allocates v as a private witness wire.
func (b *Builder) Witness(v fr.Element) Var {
	return Var{v: v, b: b}
}

// Constant allocates a constant wire.
func (b *Builder) Constant(v fr.Element) Var {
	return Var{v: v, b: b}
}

// ConstUint64 allocates a small constant.
func (b *Builder) ConstUint64(x uint64) Var {
	return b.Constant(ElemFromUint64(x))
}

// Zero and One are the usual constants.
func (b *Builder) Zero() Var { return b.ConstUint64(0) }
func (b *Builder) One() Var  { return b.ConstUint64(1) }

// PublicInputs returns the public input vector in allocation order.
func (b *Builder) PublicInputs() []fr.Element {
	out := make([]fr.Element, len(b.public))
	copy(out, b.public)
	return out
}

// NumConstraints returns the number of constraints recorded so far.
func (b *Builder) NumConstraints() int {
	return b.nConstraints
}

// Failures lists the violated constraints, empty when satisfiable.
func (b *Builder) Failures() []string {
	return b.failures
}

func (b *Builder) fail(format string, args ...interface{}) {
	b.failures = append(b.failures, fmt.Sprintf(format, args...))
}

// Add returns x + y.
func (b *Builder) Add(x, y Var) Var {
	var r fr.Element
	r.Add(&x.v, &y.v)
	return Var{v: r, b: b}
}

// Sub returns x - y.
func (b *Builder) Sub(x, y Var) Var {
	var r fr.Element
	r.Sub(&x.v, &y.v)
	return Var{v: r, b: b}
}

// Mul returns x * y.
func (b *Builder) Mul(x, y Var) Var {
	b.nConstraints++
	var r fr.Element
	r.Mul(&x.v, &y.v)
	return Var{v: r, b: b}
}

// IsEqual returns a boolean wire set to 1 iff x == y.
func (b *Builder) IsEqual(x, y Var) Var {
	b.nConstraints += 2
	return Var{v: ElemFromBool(x.v.Equal(&y.v)), b: b}
}

// IsZero returns a boolean wire set to 1 iff x == 0.
func (b *Builder) IsZero(x Var) Var {
	b.nConstraints += 2
	return Var{v: ElemFromBool(x.v.IsZero()), b: b}
}

// IsLeq returns a boolean wire set to 1 iff x <= y under the canonical
// integer representation. Used for time-against-expiry comparisons.
func (b *Builder) IsLeq(x, y Var) Var {
	b.nConstraints += 254
	return Var{v: ElemFromBool(x.v.Cmp(&y.v) <= 0), b: b}
}

// Select returns t when cond is 1 and f when cond is 0. cond must be
// boolean; a non-boolean selector is a recorded violation.
func (b *Builder) Select(cond, t, f Var) Var {
	b.AssertBool(cond)
	b.nConstraints++
	if BoolFromElem(cond.v) {
		return Var{v: t.v, b: b}
	}
	return Var{v: f.v, b: b}
}

// SelectElems applies Select element-wise over two equal-length vectors.
func (b *Builder) SelectElems(cond Var, t, f []Var) []Var {
	if len(t) != len(f) {
		b.fail("select: vector length mismatch %d != %d", len(t), len(f))
		return t
	}
	out := make([]Var, len(t))
	for i := range t {
		out[i] = b.Select(cond, t[i], f[i])
	}
	return out
}

// Not returns 1 - x for a boolean x.
func (b *Builder) Not(x Var) Var {
	b.AssertBool(x)
	return b.Sub(b.One(), x)
}

// And returns x * y for booleans.
func (b *Builder) And(x, y Var) Var {
	b.AssertBool(x)
	b.AssertBool(y)
	return b.Mul(x, y)
}

// Or returns x + y - xy for booleans.
func (b *Builder) Or(x, y Var) Var {
	b.AssertBool(x)
	b.AssertBool(y)
	return b.Sub(b.Add(x, y), b.Mul(x, y))
}

// Xor returns x + y - 2xy for booleans.
func (b *Builder) Xor(x, y Var) Var {
	b.AssertBool(x)
	b.AssertBool(y)
	two := b.ConstUint64(2)
	return b.Sub(b.Add(x, y), b.Mul(two, b.Mul(x, y)))
}

// AssertEqual constrains x == y.
func (b *Builder) AssertEqual(x, y Var, what string) {
	b.nConstraints++
	if !x.v.Equal(&y.v) {
		b.fail("%s: %s != %s", what, x.v.String(), y.v.String())
	}
}

// AssertTrue constrains a boolean wire to 1.
func (b *Builder) AssertTrue(x Var, what string) {
	b.AssertEqual(x, b.One(), what)
}

// AssertBool constrains x * (x - 1) == 0.
func (b *Builder) AssertBool(x Var) {
	b.nConstraints++
	if !x.v.IsZero() {
		var one fr.Element
		one.SetOne()
		if !x.v.Equal(&one) {
			b.fail("non-boolean wire %s", x.v.String())
		}
	}
}

// Hash is the in-circuit twin of Hasher.Hash. The gadget binds the output
// wire to the sponge evaluation of the input wires.
func (b *Builder) Hash(h *Hasher, xs ...Var) Var {
	vals := make([]fr.Element, len(xs))
	for i, x := range xs {
		vals[i] = x.v
	}
	// One permutation per rate-sized chunk.
	perms := (len(xs) + h.Rate() - 1) / h.Rate()
	if perms == 0 {
		perms = 1
	}
	b.nConstraints += perms * 300
	return Var{v: h.Hash(vals), b: b}
}

// HashElems is Hash over an already-materialized wire vector.
func (b *Builder) HashElems(h *Hasher, xs []Var) Var {
	return b.Hash(h, xs...)
}

// WitnessElems allocates a witness wire per element.
func (b *Builder) WitnessElems(es []fr.Element) []Var {
	out := make([]Var, len(es))
	for i, e := range es {
		out[i] = b.Witness(e)
	}
	return out
}

// PublicElems allocates a public wire per element.
func (b *Builder) PublicElems(es []fr.Element) []Var {
	out := make([]Var, len(es))
	for i, e := range es {
		out[i] = b.PublicInput(e)
	}
	return out
}
