// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bulletin

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/zk"
)

// DummyUserStore is a testing user bulletin: every commitment is a
// member, every nullifier is fresh, membership costs no constraints.
type DummyUserStore struct{}

var _ UserBul = DummyUserStore{}

func (DummyUserStore) HasNeverReceivedNul(zk.Nul) bool { return true }

func (DummyUserStore) HasNeverReceivedNulContext(ctx context.Context, _ zk.Nul) (bool, error) {
	return true, ctx.Err()
}

func (DummyUserStore) AppendValue(zk.Com, zk.Nul, []fr.Element, []fr.Element, *zk.Proof, MembershipPub, *zk.VerifyingKey) error {
	return nil
}

func (DummyUserStore) AppendValueContext(ctx context.Context, _ zk.Com, _ zk.Nul, _, _ []fr.Element, _ *zk.Proof, _ MembershipPub, _ *zk.VerifyingKey) error {
	return ctx.Err()
}

func (DummyUserStore) VerifyInteraction(zk.Com, zk.Nul, []fr.Element, []fr.Element, *zk.Proof, MembershipPub, *zk.VerifyingKey) bool {
	return true
}

func (DummyUserStore) VerifyIn(zk.Com, zk.Nul, []fr.Element, []fr.Element, *zk.Proof, MembershipPub, *zk.VerifyingKey) bool {
	return true
}

func (DummyUserStore) JoinBul(zk.Com, *zk.Proof, *zk.VerifyingKey) error { return nil }

func (DummyUserStore) MembershipData(zk.Com) (MembershipWitness, MembershipPub, error) {
	return nil, nil, nil
}

func (DummyUserStore) EnforceMembershipOf(b *zk.Builder, _ zk.Var, _ MembershipWitness, _ MembershipPub) (zk.Var, error) {
	return b.One(), nil
}

func (DummyUserStore) MembershipPubElems(MembershipPub) []fr.Element { return nil }

// DummyCallbackStore is a testing callback bulletin with zero records:
// every ticket is a non-member.
type DummyCallbackStore struct{}

var _ CallbackBul = DummyCallbackStore{}

func (DummyCallbackStore) HasNeverReceivedTik(*rr.VerKey) bool { return true }

func (DummyCallbackStore) HasNeverReceivedTikContext(ctx context.Context, _ *rr.VerKey) (bool, error) {
	return true, ctx.Err()
}

func (DummyCallbackStore) AppendValue(*rr.VerKey, enc.Ciphertext, *rr.Signature, zk.Time) error {
	return nil
}

func (DummyCallbackStore) AppendValueContext(ctx context.Context, _ *rr.VerKey, _ enc.Ciphertext, _ *rr.Signature, _ zk.Time) error {
	return ctx.Err()
}

func (DummyCallbackStore) VerifyIn(*rr.VerKey) (*CalledRecord, bool) { return nil, false }

func (DummyCallbackStore) VerifyNotIn(*rr.VerKey) bool { return true }

func (DummyCallbackStore) MembershipData(*rr.VerKey) (MembershipWitness, MembershipPub, NonMembershipWitness, NonMembershipPub, error) {
	return nil, nil, nil, nil, nil
}

func (DummyCallbackStore) EnforceMembershipOf(b *zk.Builder, _, _ []zk.Var, _ zk.Var, _ MembershipWitness, _ MembershipPub) (zk.Var, error) {
	return b.Zero(), nil
}

func (DummyCallbackStore) EnforceNonmembershipOf(b *zk.Builder, _ []zk.Var, _ NonMembershipWitness, _ NonMembershipPub) (zk.Var, error) {
	return b.One(), nil
}

func (DummyCallbackStore) PubElems(MembershipPub, NonMembershipPub) []fr.Element { return nil }
