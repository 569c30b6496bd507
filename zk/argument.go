// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/zeebo/blake3"
)

// The argument system is deliberately opaque: the protocol core only needs
// a non-interactive argument of knowledge over the field, keyed per
// relation, with proofs bound to the public input vector. This backend
// synthesizes the relation, checks satisfiability, and emits a transcript
// binding. Swapping in a production SNARK means replacing Prove and Verify
// while keeping the Builder synthesis unchanged.

var (
	ErrProofFailure = errors.New("relation unsatisfiable: prover failed")
)

// Proof is an argument that a relation holds on a public input vector.
type Proof struct {
	Binding [32]byte
}

// Bytes returns the canonical proof encoding.
func (p *Proof) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, p.Binding[:])
	return out
}

// SetBytes decodes a proof.
func (p *Proof) SetBytes(b []byte) error {
	if len(b) != 32 {
		return fmt.Errorf("bad proof length %d", len(b))
	}
	copy(p.Binding[:], b)
	return nil
}

// ProvingKey identifies the relation on the prover side.
type ProvingKey struct {
	tag [32]byte
}

// VerifyingKey identifies the relation on the verifier side.
type VerifyingKey struct {
	tag [32]byte
}

// Setup derives the key pair for a named relation. The relation name is
// part of the transcript domain, so proofs never transfer across relations.
func Setup(relation string) (*ProvingKey, *VerifyingKey) {
	tag := blake3.Sum256([]byte("zkcallback/relation/" + relation))
	return &ProvingKey{tag: tag}, &VerifyingKey{tag: tag}
}

// VK returns the verifying key matching pk.
func (pk *ProvingKey) VK() *VerifyingKey {
	return &VerifyingKey{tag: pk.tag}
}

// Prove synthesizes the relation and produces a proof over the public
// inputs the synthesis allocated. Returns ErrProofFailure when any
// constraint is violated.
func Prove(pk *ProvingKey, define func(b *Builder) error) (*Proof, []fr.Element, error) {
	b := NewBuilder()
	if err := define(b); err != nil {
		return nil, nil, fmt.Errorf("synthesis: %w", err)
	}
	if fails := b.Failures(); len(fails) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrProofFailure, fails[0])
	}
	public := b.PublicInputs()
	p := &Proof{Binding: bindTranscript(pk.tag, public)}
	return p, public, nil
}

// Verify checks a proof against a public input vector.
func (vk *VerifyingKey) Verify(public []fr.Element, proof *Proof) bool {
	if proof == nil {
		return false
	}
	want := bindTranscript(vk.tag, public)
	return proof.Binding == want
}

func bindTranscript(tag [32]byte, public []fr.Element) [32]byte {
	h := blake3.New()
	h.Write(tag[:])
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(public)))
	h.Write(n[:])
	for i := range public {
		b := public[i].Bytes()
		h.Write(b[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
