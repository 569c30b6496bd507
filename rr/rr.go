// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rr implements rerandomizable signatures over BLS12-381.
//
// A verification key vk can be rerandomized by any holder into (r, vk^r);
// the owner of the matching signing key derives sk*r and signs under the
// rerandomized pair. Rerandomized keys are indistinguishable from fresh
// ones, which is what makes callback tickets unlinkable across
// interactions.
package rr

import (
	"errors"
	"io"

	"github.com/cloudflare/circl/ecc/bls12381"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Domain separation tag for hashing ciphertexts onto G1.
var hashToG1DST = []byte("LUX-ZKCB-RR-BLS12381G1_XMD:SHA-256_SSWU_RO_")

var (
	ErrBadKeyEncoding  = errors.New("bad verification key encoding")
	ErrBadSigEncoding  = errors.New("bad signature encoding")
	ErrBadRandEncoding = errors.New("bad randomness encoding")
)

// SignKey is a rerandomizable signing key: a scalar.
type SignKey struct {
	s bls12381.Scalar
}

// VerKey is the matching verification key: g2^s. A rerandomized VerKey is
// what the protocol calls a ticket.
type VerKey struct {
	p bls12381.G2
}

// Signature is a BLS signature in G1.
type Signature struct {
	p bls12381.G1
}

// Randomness is a rerandomization scalar, held by the service so it can
// later derive the signing key matching a ticket.
type Randomness struct {
	r bls12381.Scalar
}

// Gen generates a fresh key pair from rng.
func Gen(rng io.Reader) (*SignKey, *VerKey, error) {
	sk := new(SignKey)
	if err := sk.s.Random(rng); err != nil {
		return nil, nil, err
	}
	return sk, sk.SkToPk(), nil
}

// SkToPk derives the verification key g2^sk.
func (sk *SignKey) SkToPk() *VerKey {
	vk := new(VerKey)
	vk.p.ScalarMult(&sk.s, bls12381.G2Generator())
	return vk
}

// Rerand derives the signing key sk*r matching a ticket vk^r.
func (sk *SignKey) Rerand(r *Randomness) *SignKey {
	out := new(SignKey)
	out.s.Mul(&sk.s, &r.r)
	return out
}

// Sign produces a signature H(msg)^sk.
func (sk *SignKey) Sign(msg []byte) *Signature {
	var q bls12381.G1
	q.Hash(msg, hashToG1DST)
	sig := new(Signature)
	sig.p.ScalarMult(&sk.s, &q)
	return sig
}

// Verify checks sig on msg under vk: e(sig, g2) == e(H(msg), vk).
func (vk *VerKey) Verify(msg []byte, sig *Signature) bool {
	if sig == nil {
		return false
	}
	var q bls12381.G1
	q.Hash(msg, hashToG1DST)
	lhs := bls12381.Pair(&sig.p, bls12381.G2Generator())
	rhs := bls12381.Pair(&q, &vk.p)
	return lhs.IsEqual(rhs)
}

// Rerand rerandomizes the verification key with fresh randomness, returning
// (r, vk^r). The caller keeps r; vk^r becomes the ticket.
func (vk *VerKey) Rerand(rng io.Reader) (*Randomness, *VerKey, error) {
	r := new(Randomness)
	if err := r.r.Random(rng); err != nil {
		return nil, nil, err
	}
	return r, vk.RerandTo(r), nil
}

// RerandTo applies a known rerandomization scalar.
func (vk *VerKey) RerandTo(r *Randomness) *VerKey {
	out := new(VerKey)
	out.p.ScalarMult(&r.r, &vk.p)
	return out
}

// Equal reports key equality.
func (vk *VerKey) Equal(other *VerKey) bool {
	if other == nil {
		return false
	}
	return vk.p.IsEqual(&other.p)
}

// Bytes returns the compressed encoding (96 bytes).
func (vk *VerKey) Bytes() []byte {
	return vk.p.BytesCompressed()
}

// SetBytes decodes a compressed verification key.
func (vk *VerKey) SetBytes(b []byte) error {
	if err := vk.p.SetBytes(b); err != nil {
		return ErrBadKeyEncoding
	}
	return nil
}

// FieldElements maps the compressed key into bn254 field elements for
// hashing inside commitments: 16-byte chunks, each well below the modulus.
func (vk *VerKey) FieldElements() []fr.Element {
	raw := vk.Bytes()
	out := make([]fr.Element, 0, (len(raw)+15)/16)
	for off := 0; off < len(raw); off += 16 {
		end := off + 16
		if end > len(raw) {
			end = len(raw)
		}
		var e fr.Element
		e.SetBytes(raw[off:end])
		out = append(out, e)
	}
	return out
}

// Bytes returns the compressed signature encoding (48 bytes).
func (s *Signature) Bytes() []byte {
	return s.p.BytesCompressed()
}

// SetBytes decodes a compressed signature.
func (s *Signature) SetBytes(b []byte) error {
	if err := s.p.SetBytes(b); err != nil {
		return ErrBadSigEncoding
	}
	return nil
}

// Bytes returns the scalar encoding.
func (r *Randomness) Bytes() []byte {
	b, _ := r.r.MarshalBinary()
	return b
}

// SetBytes decodes a rerandomization scalar.
func (r *Randomness) SetBytes(b []byte) error {
	if err := r.r.UnmarshalBinary(b); err != nil {
		return ErrBadRandEncoding
	}
	return nil
}
