// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package object

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Data is the contract application records implement to live inside a
// user object. Serialization must be canonical and deterministic: the
// commitment, the persisted form, and the in-circuit twin all derive from
// it. The in-circuit representation of a record is simply its serialized
// element vector allocated as wires, so implementations only provide the
// plaintext side.
type Data interface {
	// SerializeElements flattens the record into field elements. The
	// length must be the same for every value of the type; it is part of
	// the circuit shape.
	SerializeElements() []fr.Element
}

// Scalar data implementations, for applications whose state is a bare
// counter, flag, or field element.

// F wraps a single field element as user data.
type F fr.Element

func (x F) SerializeElements() []fr.Element {
	return []fr.Element{fr.Element(x)}
}

// Bool wraps a flag as user data, encoded 0/1.
type Bool bool

func (x Bool) SerializeElements() []fr.Element {
	var e fr.Element
	if x {
		e.SetOne()
	}
	return []fr.Element{e}
}

// U64 wraps a counter as user data.
type U64 uint64

func (x U64) SerializeElements() []fr.Element {
	var e fr.Element
	e.SetUint64(uint64(x))
	return []fr.Element{e}
}

// Unit is empty user data: all state lives in the bookkeeping record.
type Unit struct{}

func (Unit) SerializeElements() []fr.Element {
	return nil
}

// Vector is a fixed-length tuple of field elements.
type Vector []fr.Element

func (x Vector) SerializeElements() []fr.Element {
	out := make([]fr.Element, len(x))
	copy(out, x)
	return out
}
