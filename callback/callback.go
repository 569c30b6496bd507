// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package callback defines the ticket-side objects of the protocol: the
// callback descriptor a user attaches to an interaction, the entry the
// user retains for scanning, the entry commitment that goes on the hash
// chain, and the chain fold itself.
package callback

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/zk"
)

// Descriptor declares one callback slot of an interaction: which registry
// method a call invokes and how long the ticket stays callable.
type Descriptor struct {
	MethodID     uint64
	ExpiryWindow uint64
}

// Entry is an outstanding callback held by the user: the rerandomized
// ticket, the one-time encryption key, the method, and the expiry. The
// service holds the matching signing secret; the user holds this.
type Entry struct {
	Tik      *rr.VerKey
	EncKey   enc.Key
	MethodID fr.Element
	Expiry   zk.Time
}

// SerializeElements flattens the entry for hashing: ticket limbs, key,
// method id, expiry.
func (e *Entry) SerializeElements() []fr.Element {
	out := e.Tik.FieldElements()
	out = append(out, e.EncKey.K, e.MethodID, e.Expiry)
	return out
}

// Com computes the entry commitment H(tik ‖ enc_key ‖ method_id ‖ expiry).
// This is what appears on the callback hash chain and in the public
// cb_com_list of an executed method.
func (e *Entry) Com(h *zk.Hasher) fr.Element {
	return h.Hash(e.SerializeElements())
}

// EntryVar is the in-circuit twin of Entry.
type EntryVar struct {
	Tik      []zk.Var
	EncKey   zk.Var
	MethodID zk.Var
	Expiry   zk.Var
}

// AllocEntry allocates an entry as private witness wires.
func AllocEntry(b *zk.Builder, e *Entry) *EntryVar {
	return &EntryVar{
		Tik:      b.WitnessElems(e.Tik.FieldElements()),
		EncKey:   b.Witness(e.EncKey.K),
		MethodID: b.Witness(e.MethodID),
		Expiry:   b.Witness(e.Expiry),
	}
}

// Serialize flattens the entry wires in the same order as the plaintext.
func (v *EntryVar) Serialize() []zk.Var {
	out := make([]zk.Var, 0, len(v.Tik)+3)
	out = append(out, v.Tik...)
	out = append(out, v.EncKey, v.MethodID, v.Expiry)
	return out
}

// ComInZK computes the entry commitment on wires.
func (v *EntryVar) ComInZK(b *zk.Builder, h *zk.Hasher) zk.Var {
	return b.HashElems(h, v.Serialize())
}

// FoldChain advances an ordered hash chain by one commitment:
// head' = H(head ‖ com). Interactions fold newly minted entries in
// creation order; scans replay the same folds to prove a batch covered
// the whole chain.
func FoldChain(h *zk.Hasher, head, com fr.Element) fr.Element {
	return h.Hash2(head, com)
}

// FoldChainInZK is the in-circuit twin of FoldChain.
func FoldChainInZK(b *zk.Builder, h *zk.Hasher, head, com zk.Var) zk.Var {
	return b.Hash(h, head, com)
}

// ChainOf folds a sequence of commitments from the zero head. Handy for
// tests and for rebuilding an expected head from a known entry list.
func ChainOf(h *zk.Hasher, coms []fr.Element) fr.Element {
	var head fr.Element
	for _, c := range coms {
		head = FoldChain(h, head, c)
	}
	return head
}
