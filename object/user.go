// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package object

import (
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/callback"
	"github.com/luxfi/zkcallback/zk"
)

// User owns application data plus the bookkeeping record, the list of
// outstanding callback entries, and the buffer of a partially complete
// scan batch. A User is a linear state machine: one interaction at a
// time, each consuming the current nullifier.
type User[U Data] struct {
	Data   U
	Fields ZKFields

	// Entries are the outstanding (not yet ingested) callbacks, in
	// creation order. The callback hash chain folds exactly these.
	Entries []callback.Entry

	// Pending is the frozen batch of a scan in progress; PendingIndex is
	// the next entry to ingest. Empty whenever IsIngestOver is true.
	Pending      []callback.Entry
	PendingIndex int
}

// Create initializes a user with fresh nullifier and commitment
// randomness, empty chains, and no scan in flight.
func Create[U Data](data U, rng io.Reader) (*User[U], error) {
	nul, err := zk.RandomElem(rng)
	if err != nil {
		return nil, err
	}
	cr, err := zk.RandomElem(rng)
	if err != nil {
		return nil, err
	}
	return &User[U]{
		Data: data,
		Fields: ZKFields{
			Nul:          nul,
			ComRand:      cr,
			IsIngestOver: true,
		},
	}, nil
}

// Commit computes H(serialize(U) ‖ serialize(ZKFields) ‖ com_rand). The
// randomness is absorbed inside the hash, binding and hiding the state.
func (u *User[U]) Commit(h *zk.Hasher) zk.Com {
	msg := u.Data.SerializeElements()
	msg = append(msg, u.Fields.Serialize()...)
	msg = append(msg, u.Fields.ComRand)
	return h.Hash(msg)
}

// CommitInZK is the in-circuit twin of Commit over already-allocated user
// and bookkeeping wires.
func CommitInZK(b *zk.Builder, h *zk.Hasher, data []zk.Var, f *FieldsVar) zk.Var {
	msg := make([]zk.Var, 0, len(data)+7)
	msg = append(msg, data...)
	msg = append(msg, f.Serialize()...)
	msg = append(msg, f.ComRand)
	return b.HashElems(h, msg)
}

// AllocData allocates the user record as private witness wires.
func AllocData[U Data](b *zk.Builder, data U) []zk.Var {
	return b.WitnessElems(data.SerializeElements())
}

// SerializeElements flattens the full persisted user state: record, then
// bookkeeping. Entry and scan-buffer state serialize at the wire layer.
func (u *User[U]) SerializeElements() []fr.Element {
	out := u.Data.SerializeElements()
	return append(out, u.Fields.Serialize()...)
}
