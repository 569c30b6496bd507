// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bulletin defines the two append-only public logs of the
// protocol and their in-circuit membership contracts.
//
// The user bulletin stores user state commitments; appending verifies the
// state-transition proof and enforces nullifier uniqueness. The callback
// bulletin stores called tickets; appending verifies the ticket signature
// and deduplicates by ticket. Each bulletin also knows how to constrain
// membership (and, for tickets, non-membership) of its records inside a
// relation under synthesis.
//
// Two backends exist per contract: a signed store, where the bulletin
// signs every accepted record and a membership proof is that signature,
// and a tree store, where membership is a Merkle authentication path.
package bulletin

import (
	"context"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/zk"
)

var (
	ErrVerifyFailure      = errors.New("proof verification failed")
	ErrDuplicateNullifier = errors.New("nullifier already seen")
	ErrDuplicateTik       = errors.New("ticket already called")
	ErrBulletinAppend     = errors.New("bulletin append failed")
	ErrBadSignature       = errors.New("ticket signature does not verify")
	ErrNotFound           = errors.New("record not found")
	ErrBadWitnessType     = errors.New("membership witness type does not match backend")
)

// MembershipWitness and MembershipPub are backend-specific authentication
// data: a bulletin signature for the signed store, a Merkle path and root
// for the tree store.
type (
	MembershipWitness    = any
	MembershipPub        = any
	NonMembershipWitness = any
	NonMembershipPub     = any
)

// PublicUserBul is the read side of the user bulletin, available to
// services and verifiers.
type PublicUserBul interface {
	// VerifyIn checks that com sits on the bulletin and that proof
	// verifies for the standard public input layout. Pure; no state
	// change.
	VerifyIn(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool

	// MembershipData returns the authentication data for a stored com.
	MembershipData(com zk.Com) (MembershipWitness, MembershipPub, error)

	// EnforceMembershipOf constrains comVar to be an authenticated member
	// of the bulletin, returning the membership bit.
	EnforceMembershipOf(b *zk.Builder, comVar zk.Var, wit MembershipWitness, pub MembershipPub) (zk.Var, error)

	// MembershipPubElems flattens the public half of the membership data
	// into the proof's public input vector.
	MembershipPubElems(pub MembershipPub) []fr.Element
}

// UserBul is the full user bulletin contract.
type UserBul interface {
	PublicUserBul

	// HasNeverReceivedNul reports whether nul is outside the seen set.
	HasNeverReceivedNul(nul zk.Nul) bool
	// HasNeverReceivedNulContext is the suspension-capable flavor.
	HasNeverReceivedNulContext(ctx context.Context, nul zk.Nul) (bool, error)

	// AppendValue verifies the proof, enforces nullifier uniqueness, and
	// stores com. membPub may be nil when the membership public data is a
	// circuit constant.
	AppendValue(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) error
	// AppendValueContext is the suspension-capable flavor.
	AppendValueContext(ctx context.Context, com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) error

	// VerifyInteraction is the pure check AppendValue performs.
	VerifyInteraction(com zk.Com, oldNul zk.Nul, pubArgs, cbComs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool

	// JoinBul admits an initial commitment under the join relation, which
	// consumes no nullifier.
	JoinBul(com zk.Com, proof *zk.Proof, vk *zk.VerifyingKey) error
}

// CalledRecord is one posted callback: the ciphertext, the ticket
// signature over it, and the post time.
type CalledRecord struct {
	Ct   enc.Ciphertext
	Sig  *rr.Signature
	Time zk.Time
}

// CallbackBul is the callback bulletin contract.
type CallbackBul interface {
	// HasNeverReceivedTik reports whether tik has not been called.
	HasNeverReceivedTik(tik *rr.VerKey) bool
	// HasNeverReceivedTikContext is the suspension-capable flavor.
	HasNeverReceivedTikContext(ctx context.Context, tik *rr.VerKey) (bool, error)

	// AppendValue verifies tik's signature over ct, deduplicates by tik,
	// and stores the record. Has-check and store are atomic against other
	// appenders of the same tik.
	AppendValue(tik *rr.VerKey, ct enc.Ciphertext, sig *rr.Signature, time zk.Time) error
	// AppendValueContext is the suspension-capable flavor.
	AppendValueContext(ctx context.Context, tik *rr.VerKey, ct enc.Ciphertext, sig *rr.Signature, time zk.Time) error

	// VerifyIn looks a called ticket up.
	VerifyIn(tik *rr.VerKey) (*CalledRecord, bool)
	// VerifyNotIn reports that tik has no record.
	VerifyNotIn(tik *rr.VerKey) bool

	// MembershipData returns authentication data for both directions; the
	// scan circuit proves exactly one of them.
	MembershipData(tik *rr.VerKey) (MembershipWitness, MembershipPub, NonMembershipWitness, NonMembershipPub, error)

	// EnforceMembershipOf constrains (tik, ct, time) to be a stored
	// record, returning the membership bit.
	EnforceMembershipOf(b *zk.Builder, tikVar []zk.Var, ctVar []zk.Var, timeVar zk.Var, wit MembershipWitness, pub MembershipPub) (zk.Var, error)

	// EnforceNonmembershipOf constrains tik to be absent, returning the
	// non-membership bit.
	EnforceNonmembershipOf(b *zk.Builder, tikVar []zk.Var, wit NonMembershipWitness, pub NonMembershipPub) (zk.Var, error)

	// PubElems flattens the public halves into the proof's public input
	// vector.
	PubElems(membPub MembershipPub, nonmembPub NonMembershipPub) []fr.Element
}

// EnforceMembNmemb proves membership xor non-membership and returns the
// membership bit. The two directions are constrained mutually exclusive,
// so a prover cannot claim both or neither.
func EnforceMembNmemb(b *zk.Builder, bul CallbackBul, tikVar, ctVar []zk.Var, timeVar zk.Var,
	membWit MembershipWitness, membPub MembershipPub,
	nmWit NonMembershipWitness, nmPub NonMembershipPub) (zk.Var, error) {

	nm, err := bul.EnforceNonmembershipOf(b, tikVar, nmWit, nmPub)
	if err != nil {
		return zk.Var{}, err
	}
	memb, err := bul.EnforceMembershipOf(b, tikVar, ctVar, timeVar, membWit, membPub)
	if err != nil {
		return zk.Var{}, err
	}
	b.AssertTrue(b.Xor(memb, nm), "membership and non-membership must be exclusive")
	return memb, nil
}

// InteractionPublicInputs builds the standard public input vector of a
// state-transition proof: commitment, revealed nullifier, public
// arguments, callback commitments, then the bulletin membership data.
func InteractionPublicInputs(com zk.Com, oldNul zk.Nul, pubArgs, cbComs, membPub []fr.Element) []fr.Element {
	out := make([]fr.Element, 0, 2+len(pubArgs)+len(cbComs)+len(membPub))
	out = append(out, com, oldNul)
	out = append(out, pubArgs...)
	out = append(out, cbComs...)
	out = append(out, membPub...)
	return out
}
