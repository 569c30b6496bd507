// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package object holds the user-side state machine objects: the ZKFields
// bookkeeping record, the Data serialization contract, the User
// wrapper with its commitment, and the registry of update methods.
package object

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/zk"
)

// ZKFields is the per-user bookkeeping record. It rides inside every
// commitment so the circuits can hold the user to the nullifier and
// callback-chain discipline.
type ZKFields struct {
	// Nul is the one-shot nullifier of the current state; consuming the
	// state reveals it.
	Nul zk.Nul
	// ComRand blinds the commitment to the current state.
	ComRand zk.ComRand
	// CallbackHash is the ordered hash-chain head of outstanding callback
	// commitments.
	CallbackHash zk.CBHash
	// NewInProgressCallbackHash is the partially-rebuilt chain while a
	// scan batch is mid-flight.
	NewInProgressCallbackHash zk.CBHash
	// OldInProgressCallbackHash is the frozen head the batch must account
	// for in full.
	OldInProgressCallbackHash zk.CBHash
	// IsIngestOver is false only while a scan batch is partially complete.
	IsIngestOver bool
}

// Serialize flattens the record into six field elements, in declaration
// order. This order is load-bearing: commitments bind it.
func (f *ZKFields) Serialize() []fr.Element {
	return []fr.Element{
		f.Nul,
		f.ComRand,
		f.CallbackHash,
		f.NewInProgressCallbackHash,
		f.OldInProgressCallbackHash,
		zk.ElemFromBool(f.IsIngestOver),
	}
}

// FieldsVar is the in-circuit twin of ZKFields.
type FieldsVar struct {
	Nul                       zk.Var
	ComRand                   zk.Var
	CallbackHash              zk.Var
	NewInProgressCallbackHash zk.Var
	OldInProgressCallbackHash zk.Var
	IsIngestOver              zk.Var
}

// AllocFields allocates the record as private witness wires. The ingest
// flag is constrained boolean at allocation.
func AllocFields(b *zk.Builder, f *ZKFields) *FieldsVar {
	v := &FieldsVar{
		Nul:                       b.Witness(f.Nul),
		ComRand:                   b.Witness(f.ComRand),
		CallbackHash:              b.Witness(f.CallbackHash),
		NewInProgressCallbackHash: b.Witness(f.NewInProgressCallbackHash),
		OldInProgressCallbackHash: b.Witness(f.OldInProgressCallbackHash),
		IsIngestOver:              b.Witness(zk.ElemFromBool(f.IsIngestOver)),
	}
	b.AssertBool(v.IsIngestOver)
	return v
}

// Serialize flattens the wires in the same order as the plaintext record.
func (v *FieldsVar) Serialize() []zk.Var {
	return []zk.Var{
		v.Nul,
		v.ComRand,
		v.CallbackHash,
		v.NewInProgressCallbackHash,
		v.OldInProgressCallbackHash,
		v.IsIngestOver,
	}
}
