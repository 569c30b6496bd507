// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package object

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/zk"
)

var (
	ErrDuplicateMethodID = errors.New("duplicate method id in registry")
	ErrUnknownMethod     = errors.New("unknown method id")
)

// Apply transforms a user state. Interactions invoke it with the
// interaction's public and private arguments; callback ingests invoke it
// with no public arguments and the decrypted callback arguments as the
// private vector.
type Apply[U Data] func(u U, f ZKFields, pub, priv []fr.Element) (U, ZKFields)

// ApplyInZK is the in-circuit twin of Apply, operating on serialized
// wires. It returns the transformed user wires and bookkeeping wires.
type ApplyInZK func(b *zk.Builder, u []zk.Var, f *FieldsVar, pub, priv []zk.Var) ([]zk.Var, *FieldsVar)

// Predicate is the application-level policy phi(U, U', PA, VA) an
// interaction must satisfy. Nil means always true.
type Predicate[U Data] func(oldU, newU U, pub, priv []fr.Element) bool

// PredicateInZK is the in-circuit twin of Predicate, returning a boolean
// wire.
type PredicateInZK func(b *zk.Builder, oldU, newU []zk.Var, pub, priv []zk.Var) zk.Var

// Method is one entry of the registry: a pure state transformer with its
// in-circuit twin, an argument arity, and an optional policy hook. The
// method id is not a public input: an interaction proof is tied to its
// method only through the relation its proving key was set up for, and a
// scan proof carries each entry's method id as a private witness inside
// the entry commitment.
type Method[U Data] struct {
	ID      uint64
	Name    string
	NumArgs int

	Apply     Apply[U]
	ApplyInZK ApplyInZK

	Predicate     Predicate[U]
	PredicateInZK PredicateInZK
}

// IDElem returns the method id as a field element.
func (m *Method[U]) IDElem() zk.ID {
	return zk.ElemFromUint64(m.ID)
}

// Registry is the process-wide, immutable method table fixed at setup
// time.
type Registry[U Data] struct {
	byID map[uint64]*Method[U]
}

// NewRegistry builds a registry from the given methods. Duplicate ids are
// rejected; the set is frozen afterwards.
func NewRegistry[U Data](methods ...*Method[U]) (*Registry[U], error) {
	r := &Registry[U]{byID: make(map[uint64]*Method[U], len(methods))}
	for _, m := range methods {
		if _, ok := r.byID[m.ID]; ok {
			return nil, fmt.Errorf("%w: %d (%s)", ErrDuplicateMethodID, m.ID, m.Name)
		}
		r.byID[m.ID] = m
	}
	return r, nil
}

// Get looks a method up by id.
func (r *Registry[U]) Get(id uint64) (*Method[U], error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, id)
	}
	return m, nil
}

// GetByElem looks a method up by its field-encoded id.
func (r *Registry[U]) GetByElem(id zk.ID) (*Method[U], error) {
	var e fr.Element
	for k, m := range r.byID {
		e.SetUint64(k)
		if e.Equal(&id) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, id.String())
}

// Len returns the number of registered methods.
func (r *Registry[U]) Len() int {
	return len(r.byID)
}
