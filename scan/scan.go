// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scan implements the ingest protocol: a user consumes pending
// callbacks from the callback bulletin and proves the resulting state
// transition without revealing which tickets were theirs.
//
// A scan batch always covers the entire outstanding chain, oldest entry
// first. The first step freezes the chain head into the old-in-progress
// field and clears the ingest flag; each step folds the processed entry
// into the new-in-progress field; the step whose fold reaches the frozen
// head is the last, restores the flag, and empties the chain. While the
// flag is down, every non-scan interaction is rejected in-circuit.
package scan

import (
	"errors"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/bulletin"
	"github.com/luxfi/zkcallback/callback"
	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/interaction"
	"github.com/luxfi/zkcallback/object"
	"github.com/luxfi/zkcallback/zk"
)

var (
	ErrScanAborted = errors.New("scan aborted: callback record inconsistent with registry")
	ErrNoPending   = errors.New("no pending entry to scan")
)

// Scanner drives ingests for one registry. The cipher and hasher must be
// the ones the entries were minted with.
type Scanner[U object.Data] struct {
	h   *zk.Hasher
	c   *enc.Cipher
	reg *object.Registry[U]
}

// NewScanner creates a scan engine.
func NewScanner[U object.Data](h *zk.Hasher, c *enc.Cipher, reg *object.Registry[U]) *Scanner[U] {
	return &Scanner[U]{h: h, c: c, reg: reg}
}

// stepState is the plaintext outcome of ingesting one entry.
type stepState[U object.Data] struct {
	data    U
	fields  object.ZKFields
	called  bool
	applied bool
}

// stepPlain ingests one entry against the callback bulletin record (if
// any) and advances the batch bookkeeping.
func (s *Scanner[U]) stepPlain(data U, fields object.ZKFields, entry *callback.Entry, rec *bulletin.CalledRecord, now zk.Time) (stepState[U], error) {
	m, err := s.reg.GetByElem(entry.MethodID)
	if err != nil {
		return stepState[U]{}, err
	}

	out := stepState[U]{data: data, fields: fields}
	out.called = rec != nil

	if out.called {
		if len(rec.Ct) != m.NumArgs {
			return stepState[U]{}, ErrScanAborted
		}
		// Expired calls are ignored; the entry is removed either way.
		if now.Cmp(&entry.Expiry) <= 0 {
			args := s.c.Decrypt(entry.EncKey, rec.Ct)
			out.data, out.fields = m.Apply(data, fields, nil, args)
			out.applied = true
		}
	}

	// Chain bookkeeping. A step that closes the frozen head is the last
	// of its batch.
	oldIP := fields.OldInProgressCallbackHash
	newIP := fields.NewInProgressCallbackHash
	if fields.IsIngestOver {
		oldIP = fields.CallbackHash
		newIP.SetZero()
	}
	folded := callback.FoldChain(s.h, newIP, entry.Com(s.h))
	if folded.Equal(&oldIP) {
		out.fields.CallbackHash.SetZero()
		out.fields.NewInProgressCallbackHash.SetZero()
		out.fields.OldInProgressCallbackHash.SetZero()
		out.fields.IsIngestOver = true
	} else {
		out.fields.CallbackHash = fields.CallbackHash
		out.fields.NewInProgressCallbackHash = folded
		out.fields.OldInProgressCallbackHash = oldIP
		out.fields.IsIngestOver = false
	}
	return out, nil
}

// stepZK is the in-circuit twin of stepPlain. It consumes the witnessed
// entry and bulletin record wires, proves membership xor non-membership,
// and returns the transformed user and bookkeeping wires.
func (s *Scanner[U]) stepZK(
	b *zk.Builder,
	cb bulletin.CallbackBul,
	uVars []zk.Var,
	fv *object.FieldsVar,
	entry *callback.Entry,
	rec *bulletin.CalledRecord,
	nowVar zk.Var,
	membWit bulletin.MembershipWitness, membPub bulletin.MembershipPub,
	nmWit bulletin.NonMembershipWitness, nmPub bulletin.NonMembershipPub,
) ([]zk.Var, *object.FieldsVar, error) {
	m, err := s.reg.GetByElem(entry.MethodID)
	if err != nil {
		return nil, nil, err
	}

	ev := callback.AllocEntry(b, entry)

	// Witness the posted record; zeros when the ticket was never called.
	ctVals := make([]fr.Element, m.NumArgs)
	var recTime zk.Time
	if rec != nil {
		copy(ctVals, rec.Ct)
		recTime = rec.Time
	}
	ctVars := b.WitnessElems(ctVals)
	timeVar := b.Witness(recTime)

	called, err := bulletin.EnforceMembNmemb(b, cb, ev.Tik, ctVars, timeVar, membWit, membPub, nmWit, nmPub)
	if err != nil {
		return nil, nil, err
	}

	// Decrypt and apply; the result is selected out when the ticket was
	// not called or the scan time is past the entry's expiry.
	argVars := s.c.DecryptInZK(b, ev.EncKey, ctVars)
	appliedU, appliedFv := m.ApplyInZK(b, uVars, fv, nil, argVars)
	timeOK := b.IsLeq(nowVar, ev.Expiry)
	applyBit := b.And(called, timeOK)

	newU := b.SelectElems(applyBit, appliedU, uVars)
	newFv := &object.FieldsVar{
		Nul:     b.Select(applyBit, appliedFv.Nul, fv.Nul),
		ComRand: b.Select(applyBit, appliedFv.ComRand, fv.ComRand),
	}

	// Chain bookkeeping, mirroring stepPlain.
	first := fv.IsIngestOver
	oldIP := b.Select(first, fv.CallbackHash, fv.OldInProgressCallbackHash)
	newIP := b.Select(first, b.Zero(), fv.NewInProgressCallbackHash)
	folded := callback.FoldChainInZK(b, s.h, newIP, ev.ComInZK(b, s.h))
	last := b.IsEqual(folded, oldIP)

	newFv.CallbackHash = b.Select(last, b.Zero(), fv.CallbackHash)
	newFv.NewInProgressCallbackHash = b.Select(last, b.Zero(), folded)
	newFv.OldInProgressCallbackHash = b.Select(last, b.Zero(), oldIP)
	newFv.IsIngestOver = last
	return newU, newFv, nil
}

// ScanTicket ingests the oldest pending entry, or refreshes an idle user
// with an empty chain. It transforms the user in place and returns the
// submission payload for the user bulletin.
func (s *Scanner[U]) ScanTicket(
	user *object.User[U],
	ub bulletin.UserBul,
	cb bulletin.CallbackBul,
	pk *zk.ProvingKey,
	now zk.Time,
	rng io.Reader,
) (*interaction.ExecutedMethod, error) {
	if user.Fields.IsIngestOver && len(user.Entries) == 0 {
		return s.scanEmpty(user, ub, pk, now, rng)
	}
	if user.Fields.IsIngestOver {
		// Freeze the batch: the whole outstanding chain, oldest first.
		user.Pending = append([]callback.Entry(nil), user.Entries...)
		user.PendingIndex = 0
	}
	if user.PendingIndex >= len(user.Pending) {
		return nil, ErrNoPending
	}
	entry := user.Pending[user.PendingIndex]
	return s.scanEntries(user, []callback.Entry{entry}, ub, cb, pk, now, rng)
}

// scanEntries proves the ingest of the given consecutive pending entries
// in a single relation. len(entries) == 1 is the single mode; larger
// slices are the folded mode.
func (s *Scanner[U]) scanEntries(
	user *object.User[U],
	entries []callback.Entry,
	ub bulletin.UserBul,
	cb bulletin.CallbackBul,
	pk *zk.ProvingKey,
	now zk.Time,
	rng io.Reader,
) (*interaction.ExecutedMethod, error) {
	newNul, err := zk.RandomElem(rng)
	if err != nil {
		return nil, err
	}
	newComRand, err := zk.RandomElem(rng)
	if err != nil {
		return nil, err
	}

	oldU, oldFields := user.Data, user.Fields

	// Plaintext pass.
	type perEntry struct {
		rec     *bulletin.CalledRecord
		membWit bulletin.MembershipWitness
		membPub bulletin.MembershipPub
		nmWit   bulletin.NonMembershipWitness
		nmPub   bulletin.NonMembershipPub
	}
	lookups := make([]perEntry, len(entries))
	data, fields := oldU, oldFields
	for i := range entries {
		rec, ok := cb.VerifyIn(entries[i].Tik)
		if !ok {
			rec = nil
		}
		mw, mp, nw, np, err := cb.MembershipData(entries[i].Tik)
		if err != nil {
			return nil, err
		}
		lookups[i] = perEntry{rec: rec, membWit: mw, membPub: mp, nmWit: nw, nmPub: np}
		st, err := s.stepPlain(data, fields, &entries[i], rec, now)
		if err != nil {
			return nil, err
		}
		data, fields = st.data, st.fields
	}
	fields.Nul = newNul
	fields.ComRand = newComRand

	oldCom := (&object.User[U]{Data: oldU, Fields: oldFields}).Commit(s.h)
	newCom := (&object.User[U]{Data: data, Fields: fields}).Commit(s.h)

	ubWit, ubPub, err := ub.MembershipData(oldCom)
	if err != nil {
		return nil, err
	}

	// Scan public arguments: the scan time, then the callback-bulletin
	// public data per entry. The user-bulletin membership data comes last,
	// matching the canonical interaction layout.
	pubArgs := []fr.Element{now}
	for i := range entries {
		pubArgs = append(pubArgs, cb.PubElems(lookups[i].membPub, lookups[i].nmPub)...)
	}

	proof, _, err := zk.Prove(pk, func(b *zk.Builder) error {
		comNewPub := b.PublicInput(newCom)
		oldNulPub := b.PublicInput(oldFields.Nul)
		nowVar := b.PublicInput(now)
		for i := range entries {
			b.PublicElems(cb.PubElems(lookups[i].membPub, lookups[i].nmPub))
		}
		b.PublicElems(ub.MembershipPubElems(ubPub))

		uVars := object.AllocData(b, oldU)
		fv := object.AllocFields(b, &oldFields)
		comOld := object.CommitInZK(b, s.h, uVars, fv)
		memb, err := ub.EnforceMembershipOf(b, comOld, ubWit, ubPub)
		if err != nil {
			return err
		}
		b.AssertTrue(memb, "old commitment on user bulletin")
		b.AssertEqual(fv.Nul, oldNulPub, "revealed nullifier opens old state")

		for i := range entries {
			uVars, fv, err = s.stepZK(b, cb, uVars, fv, &entries[i], lookups[i].rec, nowVar,
				lookups[i].membWit, lookups[i].membPub, lookups[i].nmWit, lookups[i].nmPub)
			if err != nil {
				return err
			}
		}

		fv.Nul = b.Witness(newNul)
		fv.ComRand = b.Witness(newComRand)
		comNew := object.CommitInZK(b, s.h, uVars, fv)
		b.AssertEqual(comNew, comNewPub, "new commitment opens new state")
		return nil
	})
	if err != nil {
		return nil, err
	}

	em := &interaction.ExecutedMethod{
		NewObject:    newCom,
		OldNullifier: oldFields.Nul,
		PubArgs:      pubArgs,
		Proof:        proof,
		MembData:     ubPub,
	}

	// Advance the user.
	user.Data = data
	user.Fields = fields
	user.PendingIndex += len(entries)
	if fields.IsIngestOver {
		user.Entries = user.Entries[len(user.Pending):]
		user.Pending = nil
		user.PendingIndex = 0
	}
	return em, nil
}

// scanEmpty refreshes the nullifier and randomness of a user with no
// outstanding callbacks; data and chain are unchanged.
func (s *Scanner[U]) scanEmpty(
	user *object.User[U],
	ub bulletin.UserBul,
	pk *zk.ProvingKey,
	now zk.Time,
	rng io.Reader,
) (*interaction.ExecutedMethod, error) {
	newNul, err := zk.RandomElem(rng)
	if err != nil {
		return nil, err
	}
	newComRand, err := zk.RandomElem(rng)
	if err != nil {
		return nil, err
	}

	oldFields := user.Fields
	fields := oldFields
	fields.Nul = newNul
	fields.ComRand = newComRand

	oldCom := user.Commit(s.h)
	newCom := (&object.User[U]{Data: user.Data, Fields: fields}).Commit(s.h)

	ubWit, ubPub, err := ub.MembershipData(oldCom)
	if err != nil {
		return nil, err
	}

	proof, _, err := zk.Prove(pk, func(b *zk.Builder) error {
		comNewPub := b.PublicInput(newCom)
		oldNulPub := b.PublicInput(oldFields.Nul)
		b.PublicInput(now)
		b.PublicElems(ub.MembershipPubElems(ubPub))

		uVars := object.AllocData(b, user.Data)
		fv := object.AllocFields(b, &oldFields)
		comOld := object.CommitInZK(b, s.h, uVars, fv)
		memb, err := ub.EnforceMembershipOf(b, comOld, ubWit, ubPub)
		if err != nil {
			return err
		}
		b.AssertTrue(memb, "old commitment on user bulletin")
		b.AssertEqual(fv.Nul, oldNulPub, "revealed nullifier opens old state")
		b.AssertTrue(fv.IsIngestOver, "ingest idle")
		b.AssertEqual(fv.CallbackHash, b.Zero(), "empty chain")

		nfv := &object.FieldsVar{
			Nul:                       b.Witness(newNul),
			ComRand:                   b.Witness(newComRand),
			CallbackHash:              fv.CallbackHash,
			NewInProgressCallbackHash: fv.NewInProgressCallbackHash,
			OldInProgressCallbackHash: fv.OldInProgressCallbackHash,
			IsIngestOver:              fv.IsIngestOver,
		}
		comNew := object.CommitInZK(b, s.h, uVars, nfv)
		b.AssertEqual(comNew, comNewPub, "new commitment opens new state")
		return nil
	})
	if err != nil {
		return nil, err
	}

	user.Fields = fields
	return &interaction.ExecutedMethod{
		NewObject:    newCom,
		OldNullifier: oldFields.Nul,
		PubArgs:      []fr.Element{now},
		Proof:        proof,
		MembData:     ubPub,
	}, nil
}
