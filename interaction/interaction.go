// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package interaction implements the generic state-transition prover: a
// user applies a registry method to their state, mints N callback
// tickets, and proves the whole transition in zero knowledge.
package interaction

import (
	"errors"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/bulletin"
	"github.com/luxfi/zkcallback/callback"
	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/object"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/zk"
)

var (
	ErrScanInProgress = errors.New("scan batch in progress: non-scan interactions rejected")
	ErrPredicate      = errors.New("interaction predicate rejected")
)

// Interaction binds a method to the callback slots it mints. The slot
// count is part of the circuit shape: one proving key per (method, N).
type Interaction[U object.Data] struct {
	Method    *object.Method[U]
	Callbacks []callback.Descriptor
}

// TicketOffer is the public half of a minted ticket handed to the
// service: the entry and the rerandomization scalar.
type TicketOffer struct {
	Entry callback.Entry
	Rand  *rr.Randomness
}

// TicketSecret is the full per-ticket handle the service stores: the
// offer plus the signing key. The user never retains the signing key.
type TicketSecret struct {
	Entry   callback.Entry
	Rand    *rr.Randomness
	SignKey *rr.SignKey
}

// ExecutedMethod is the payload a user submits after an interaction.
// MembData is the public half of the previous-object membership data the
// proof was generated against; the witness half never leaves the user.
type ExecutedMethod struct {
	NewObject    zk.Com
	OldNullifier zk.Nul
	CbComList    []fr.Element
	PubArgs      []fr.Element
	Proof        *zk.Proof
	CbTikList    []TicketOffer
	MembData     bulletin.MembershipPub
}

// Execute runs exec_method_create_cb: it transforms the user in place and
// returns the submission payload together with the ticket secrets destined
// for the service. No bulletin write is issued here; the caller must not
// treat the new state as committed until the commitment is readable on the
// bulletin.
func Execute[U object.Data](
	it *Interaction[U],
	user *object.User[U],
	ub bulletin.UserBul,
	h *zk.Hasher,
	pk *zk.ProvingKey,
	pubArgs, privArgs []fr.Element,
	now zk.Time,
	rng io.Reader,
) (*ExecutedMethod, []*TicketSecret, error) {
	if !user.Fields.IsIngestOver {
		return nil, nil, ErrScanInProgress
	}

	newNul, err := zk.RandomElem(rng)
	if err != nil {
		return nil, nil, err
	}
	newComRand, err := zk.RandomElem(rng)
	if err != nil {
		return nil, nil, err
	}

	// Mint the tickets: fresh cipher key, fresh signature pair, fresh
	// rerandomization per slot. The rerandomized verification key is the
	// ticket; the signing key and scalar go to the service.
	entries := make([]callback.Entry, len(it.Callbacks))
	secrets := make([]*TicketSecret, len(it.Callbacks))
	offers := make([]TicketOffer, len(it.Callbacks))
	cbComs := make([]fr.Element, len(it.Callbacks))
	for i, d := range it.Callbacks {
		encKey, err := enc.KeyGen(rng)
		if err != nil {
			return nil, nil, err
		}
		sk, vk, err := rr.Gen(rng)
		if err != nil {
			return nil, nil, err
		}
		r, tik, err := vk.Rerand(rng)
		if err != nil {
			return nil, nil, err
		}
		var expiry zk.Time
		window := zk.ElemFromUint64(d.ExpiryWindow)
		expiry.Add(&now, &window)
		entries[i] = callback.Entry{
			Tik:      tik,
			EncKey:   encKey,
			MethodID: zk.ElemFromUint64(d.MethodID),
			Expiry:   expiry,
		}
		cbComs[i] = entries[i].Com(h)
		secrets[i] = &TicketSecret{Entry: entries[i], Rand: r, SignKey: sk}
		offers[i] = TicketOffer{Entry: entries[i], Rand: r}
	}

	// Plaintext transition.
	oldU, oldFields := user.Data, user.Fields
	newU, newFields := it.Method.Apply(oldU, oldFields, pubArgs, privArgs)
	newFields.Nul = newNul
	newFields.ComRand = newComRand
	newFields.CallbackHash = oldFields.CallbackHash
	for i := range cbComs {
		newFields.CallbackHash = callback.FoldChain(h, newFields.CallbackHash, cbComs[i])
	}
	newFields.NewInProgressCallbackHash.SetZero()
	newFields.OldInProgressCallbackHash.SetZero()
	newFields.IsIngestOver = true

	if it.Method.Predicate != nil && !it.Method.Predicate(oldU, newU, pubArgs, privArgs) {
		return nil, nil, ErrPredicate
	}

	oldCom := (&object.User[U]{Data: oldU, Fields: oldFields}).Commit(h)
	newCom := (&object.User[U]{Data: newU, Fields: newFields}).Commit(h)

	membWit, membPub, err := ub.MembershipData(oldCom)
	if err != nil {
		return nil, nil, err
	}

	proof, _, err := zk.Prove(pk, func(b *zk.Builder) error {
		// Public inputs, in the canonical layout.
		comNewPub := b.PublicInput(newCom)
		oldNulPub := b.PublicInput(oldFields.Nul)
		pubVars := b.PublicElems(pubArgs)
		cbComPubs := b.PublicElems(cbComs)
		b.PublicElems(ub.MembershipPubElems(membPub))

		// Open the old commitment and authenticate it on the bulletin.
		uVars := object.AllocData(b, oldU)
		fv := object.AllocFields(b, &oldFields)
		comOld := object.CommitInZK(b, h, uVars, fv)
		memb, err := ub.EnforceMembershipOf(b, comOld, membWit, membPub)
		if err != nil {
			return err
		}
		b.AssertTrue(memb, "old commitment on user bulletin")

		// No interaction while a scan batch is mid-flight.
		b.AssertTrue(fv.IsIngestOver, "ingest complete")

		// Reveal the consumed nullifier.
		b.AssertEqual(fv.Nul, oldNulPub, "revealed nullifier opens old state")

		// Method transition.
		privVars := b.WitnessElems(privArgs)
		newUVars, newFv := it.Method.ApplyInZK(b, uVars, fv, pubVars, privVars)

		// Bookkeeping: fresh secrets, folded chain, idle scan state.
		newFv.Nul = b.Witness(newNul)
		newFv.ComRand = b.Witness(newComRand)
		ch := fv.CallbackHash
		for i := range entries {
			ev := callback.AllocEntry(b, &entries[i])
			cv := ev.ComInZK(b, h)
			b.AssertEqual(cv, cbComPubs[i], "callback commitment matches ticket")
			ch = callback.FoldChainInZK(b, h, ch, cv)
		}
		newFv.CallbackHash = ch
		newFv.NewInProgressCallbackHash = b.Zero()
		newFv.OldInProgressCallbackHash = b.Zero()
		newFv.IsIngestOver = b.One()

		if it.Method.PredicateInZK != nil {
			ok := it.Method.PredicateInZK(b, uVars, newUVars, pubVars, privVars)
			b.AssertTrue(ok, "interaction predicate")
		}

		comNew := object.CommitInZK(b, h, newUVars, newFv)
		b.AssertEqual(comNew, comNewPub, "new commitment opens new state")
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	em := &ExecutedMethod{
		NewObject:    newCom,
		OldNullifier: oldFields.Nul,
		CbComList:    cbComs,
		PubArgs:      pubArgs,
		Proof:        proof,
		CbTikList:    offers,
		MembData:     membPub,
	}

	// Transition the user only after the proof exists.
	user.Data = newU
	user.Fields = newFields
	user.Entries = append(user.Entries, entries...)
	return em, secrets, nil
}

// Join proves the initial state: no nullifier is consumed, the callback
// chain is the identity, and no scan is in flight. The bulletin admits
// the commitment under the join relation.
func Join[U object.Data](user *object.User[U], h *zk.Hasher, pk *zk.ProvingKey) (zk.Com, *zk.Proof, error) {
	com := user.Commit(h)
	proof, _, err := zk.Prove(pk, func(b *zk.Builder) error {
		comPub := b.PublicInput(com)
		uVars := object.AllocData(b, user.Data)
		fv := object.AllocFields(b, &user.Fields)
		b.AssertEqual(fv.CallbackHash, b.Zero(), "empty callback chain at join")
		b.AssertEqual(fv.NewInProgressCallbackHash, b.Zero(), "no scan at join")
		b.AssertEqual(fv.OldInProgressCallbackHash, b.Zero(), "no scan at join")
		b.AssertTrue(fv.IsIngestOver, "ingest idle at join")
		c := object.CommitInZK(b, h, uVars, fv)
		b.AssertEqual(c, comPub, "join commitment opens state")
		return nil
	})
	if err != nil {
		return zk.Com{}, nil, err
	}
	return com, proof, nil
}
