// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package zk provides the field-level building blocks for the callback
// system: type aliases over the bn254 scalar field, a rate-configurable
// Poseidon2 sponge, a constraint builder for in-circuit twins, and an
// opaque argument system producing proofs over the field.
package zk

import (
	"errors"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Field-level aliases. Everything user-visible in the protocol is either a
// single field element or serializes to a sequence of them.
type (
	// Nul is a nullifier (serial number) of a user state.
	Nul = fr.Element
	// ComRand is commitment randomness.
	ComRand = fr.Element
	// CBHash is a callback list hash-chain head.
	CBHash = fr.Element
	// Time is a field-encoded time.
	Time = fr.Element
	// Com is a commitment.
	Com = fr.Element
	// Ser is the base serialization unit.
	Ser = fr.Element
	// ID identifies a method in the registry.
	ID = fr.Element
)

var (
	ErrInvalidRate = errors.New("invalid sponge rate: must be in [2,8]")
	ErrShortRead   = errors.New("short read from randomness source")
)

// RandomElem samples a uniform field element from rng. All protocol
// randomness (nullifiers, commitment randomness, encryption keys) flows
// through here so tests can pin the source.
func RandomElem(rng io.Reader) (fr.Element, error) {
	var e fr.Element
	// 48 bytes keeps the mod-p bias below 2^-128.
	buf := make([]byte, 48)
	if _, err := io.ReadFull(rng, buf); err != nil {
		return e, ErrShortRead
	}
	n := new(big.Int).SetBytes(buf)
	n.Mod(n, fr.Modulus())
	e.SetBigInt(n)
	return e, nil
}

// ElemFromUint64 lifts x into the field.
func ElemFromUint64(x uint64) fr.Element {
	var e fr.Element
	e.SetUint64(x)
	return e
}

// ElemFromBool encodes b as 0 or 1.
func ElemFromBool(b bool) fr.Element {
	var e fr.Element
	if b {
		e.SetOne()
	}
	return e
}

// BoolFromElem decodes a 0/1 element. Anything nonzero reads as true.
func BoolFromElem(e fr.Element) bool {
	return !e.IsZero()
}

// ElemsEqual reports element-wise equality of two serializations.
func ElemsEqual(a, b []fr.Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(&b[i]) {
			return false
		}
	}
	return true
}
