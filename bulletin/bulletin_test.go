// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bulletin

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/luxfi/database/memdb"
	log "github.com/luxfi/logger/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/zk"
)

func testHasher(t *testing.T) *zk.Hasher {
	t.Helper()
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	return h
}

func testLogger() log.Logger {
	return log.NewTestLogger(log.InfoLevel)
}

// joinProof builds a proof whose only public input is com, the join
// layout.
func joinProof(t *testing.T, com fr.Element) (*zk.Proof, *zk.VerifyingKey) {
	t.Helper()
	pk, vk := zk.Setup("test/join")
	proof, _, err := zk.Prove(pk, func(b *zk.Builder) error {
		b.PublicInput(com)
		return nil
	})
	require.NoError(t, err)
	return proof, vk
}

// transitionProof builds a proof with the canonical interaction layout.
func transitionProof(t *testing.T, com, oldNul fr.Element, pubArgs, cbComs, membPub []fr.Element) (*zk.Proof, *zk.VerifyingKey) {
	t.Helper()
	pk, vk := zk.Setup("test/transition")
	proof, _, err := zk.Prove(pk, func(b *zk.Builder) error {
		b.PublicInput(com)
		b.PublicInput(oldNul)
		b.PublicElems(pubArgs)
		b.PublicElems(cbComs)
		b.PublicElems(membPub)
		return nil
	})
	require.NoError(t, err)
	return proof, vk
}

func TestMerklePath(t *testing.T) {
	h := testHasher(t)
	tree := newMerkleTree(h)

	leaves := make([]fr.Element, 5)
	for i := range leaves {
		leaves[i], _ = zk.RandomElem(rand.Reader)
		_, err := tree.append(leaves[i])
		require.NoError(t, err)
	}
	root := tree.root()
	for i := range leaves {
		p, err := tree.path(uint64(i))
		require.NoError(t, err)
		require.True(t, verifyPath(h, leaves[i], p, root))

		// A different leaf must not authenticate on this path.
		other, _ := zk.RandomElem(rand.Reader)
		require.False(t, verifyPath(h, other, p, root))

		b := zk.NewBuilder()
		bit := enforcePath(b, h, b.Witness(leaves[i]), p, b.Witness(root))
		v := bit.Value()
		require.False(t, v.IsZero())
	}

	_, err := tree.path(99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSignedUserStoreJoinAndMembership(t *testing.T) {
	h := testHasher(t)
	s, err := NewSignedUserStore(memdb.New(), h, testLogger(), rand.Reader)
	require.NoError(t, err)

	com, _ := zk.RandomElem(rand.Reader)
	proof, vk := joinProof(t, com)
	require.NoError(t, s.JoinBul(com, proof, vk))

	wit, pub, err := s.MembershipData(com)
	require.NoError(t, err)

	b := zk.NewBuilder()
	bit, err := s.EnforceMembershipOf(b, b.Witness(com), wit, pub)
	require.NoError(t, err)
	v := bit.Value()
	require.False(t, v.IsZero())

	// A commitment never admitted has no membership data.
	other, _ := zk.RandomElem(rand.Reader)
	_, _, err = s.MembershipData(other)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSignedUserStoreAppendAndNullifier(t *testing.T) {
	h := testHasher(t)
	s, err := NewSignedUserStore(memdb.New(), h, testLogger(), rand.Reader)
	require.NoError(t, err)

	com, _ := zk.RandomElem(rand.Reader)
	oldNul, _ := zk.RandomElem(rand.Reader)
	membPub := s.Key()
	proof, vk := transitionProof(t, com, oldNul, nil, nil, s.MembershipPubElems(membPub))

	require.True(t, s.HasNeverReceivedNul(oldNul))
	require.NoError(t, s.AppendValue(com, oldNul, nil, nil, proof, membPub, vk))
	require.False(t, s.HasNeverReceivedNul(oldNul))

	// Same nullifier again: rejected.
	com2, _ := zk.RandomElem(rand.Reader)
	proof2, vk2 := transitionProof(t, com2, oldNul, nil, nil, s.MembershipPubElems(membPub))
	err = s.AppendValue(com2, oldNul, nil, nil, proof2, membPub, vk2)
	require.ErrorIs(t, err, ErrDuplicateNullifier)

	// Tampered submission: rejected.
	com3, _ := zk.RandomElem(rand.Reader)
	nul3, _ := zk.RandomElem(rand.Reader)
	err = s.AppendValue(com3, nul3, nil, nil, proof, membPub, vk)
	require.ErrorIs(t, err, ErrVerifyFailure)
}

func TestTreeUserStoreMembership(t *testing.T) {
	h := testHasher(t)
	s := NewTreeUserStore(memdb.New(), h, testLogger())

	com, _ := zk.RandomElem(rand.Reader)
	proof, vk := joinProof(t, com)
	require.NoError(t, s.JoinBul(com, proof, vk))

	wit, pub, err := s.MembershipData(com)
	require.NoError(t, err)
	root, ok := pub.(fr.Element)
	require.True(t, ok)
	treeRoot := s.Root()
	require.True(t, root.Equal(&treeRoot))

	b := zk.NewBuilder()
	bit, err := s.EnforceMembershipOf(b, b.Witness(com), wit, pub)
	require.NoError(t, err)
	v := bit.Value()
	require.False(t, v.IsZero())
}

func callTicket(t *testing.T, c *enc.Cipher, args []fr.Element) (*rr.VerKey, enc.Ciphertext, *rr.Signature, enc.Key) {
	t.Helper()
	sk, vk, err := rr.Gen(rand.Reader)
	require.NoError(t, err)
	r, tik, err := vk.Rerand(rand.Reader)
	require.NoError(t, err)
	key, err := enc.KeyGen(rand.Reader)
	require.NoError(t, err)
	ct, sig := enc.EncryptAndSign(c, args, key, sk.Rerand(r))
	return tik, ct, sig, key
}

func TestSignedCallbackStoreAppend(t *testing.T) {
	h := testHasher(t)
	c := enc.NewCipher(h)
	s, err := NewSignedCallbackStore(memdb.New(), h, testLogger(), rand.Reader)
	require.NoError(t, err)

	args := []fr.Element{zk.ElemFromUint64(1)}
	tik, ct, sig, _ := callTicket(t, c, args)
	now := zk.ElemFromUint64(10)

	require.True(t, s.HasNeverReceivedTik(tik))
	require.NoError(t, s.AppendValue(tik, ct, sig, now))
	require.False(t, s.HasNeverReceivedTik(tik))
	require.False(t, s.VerifyNotIn(tik))

	rec, ok := s.VerifyIn(tik)
	require.True(t, ok)
	require.True(t, zk.ElemsEqual(rec.Ct, ct))

	// At most one record per ticket.
	err = s.AppendValue(tik, ct, sig, now)
	require.ErrorIs(t, err, ErrDuplicateTik)
}

func TestSignedCallbackStoreRejectsBadSignature(t *testing.T) {
	h := testHasher(t)
	c := enc.NewCipher(h)
	s, err := NewSignedCallbackStore(memdb.New(), h, testLogger(), rand.Reader)
	require.NoError(t, err)

	tik, ct, _, _ := callTicket(t, c, []fr.Element{zk.ElemFromUint64(1)})
	// Signature from an unrelated key does not verify under tik.
	otherSK, _, err := rr.Gen(rand.Reader)
	require.NoError(t, err)
	badSig := otherSK.Sign(ct.Bytes())

	err = s.AppendValue(tik, ct, badSig, zk.ElemFromUint64(1))
	require.ErrorIs(t, err, ErrBadSignature)
	require.True(t, s.HasNeverReceivedTik(tik))
}

func TestSignedCallbackStoreMembNmemb(t *testing.T) {
	h := testHasher(t)
	c := enc.NewCipher(h)
	s, err := NewSignedCallbackStore(memdb.New(), h, testLogger(), rand.Reader)
	require.NoError(t, err)

	args := []fr.Element{zk.ElemFromUint64(7)}
	called, calledCt, calledSig, _ := callTicket(t, c, args)
	uncalled, _, _, _ := callTicket(t, c, args)
	require.NoError(t, s.AppendValue(called, calledCt, calledSig, zk.ElemFromUint64(5)))

	// Called ticket: membership bit set.
	mw, mp, nw, np, err := s.MembershipData(called)
	require.NoError(t, err)
	b := zk.NewBuilder()
	rec, _ := s.VerifyIn(called)
	bit, err := EnforceMembNmemb(b, s,
		b.WitnessElems(fieldElems(called)), b.WitnessElems(rec.Ct), b.Witness(rec.Time),
		mw, mp, nw, np)
	require.NoError(t, err)
	v := bit.Value()
	require.False(t, v.IsZero())
	require.Empty(t, b.Failures())

	// Uncalled ticket: non-membership bit set.
	mw, mp, nw, np, err = s.MembershipData(uncalled)
	require.NoError(t, err)
	b = zk.NewBuilder()
	var noTime fr.Element
	bit, err = EnforceMembNmemb(b, s,
		b.WitnessElems(fieldElems(uncalled)), b.WitnessElems([]fr.Element{{}}), b.Witness(noTime),
		mw, mp, nw, np)
	require.NoError(t, err)
	v = bit.Value()
	require.True(t, v.IsZero())
	require.Empty(t, b.Failures())
}

func TestTreeCallbackStoreMembNmemb(t *testing.T) {
	h := testHasher(t)
	c := enc.NewCipher(h)
	s := NewTreeCallbackStore(memdb.New(), h, testLogger())

	args := []fr.Element{zk.ElemFromUint64(3)}
	called, calledCt, calledSig, _ := callTicket(t, c, args)
	uncalled, _, _, _ := callTicket(t, c, args)
	require.NoError(t, s.AppendValue(called, calledCt, calledSig, zk.ElemFromUint64(2)))

	mw, mp, nw, np, err := s.MembershipData(called)
	require.NoError(t, err)
	rec, _ := s.VerifyIn(called)
	b := zk.NewBuilder()
	bit, err := EnforceMembNmemb(b, s,
		b.WitnessElems(fieldElems(called)), b.WitnessElems(rec.Ct), b.Witness(rec.Time),
		mw, mp, nw, np)
	require.NoError(t, err)
	v := bit.Value()
	require.False(t, v.IsZero())
	require.Empty(t, b.Failures())

	mw, mp, nw, np, err = s.MembershipData(uncalled)
	require.NoError(t, err)
	b = zk.NewBuilder()
	var noTime fr.Element
	bit, err = EnforceMembNmemb(b, s,
		b.WitnessElems(fieldElems(uncalled)), b.WitnessElems([]fr.Element{{}}), b.Witness(noTime),
		mw, mp, nw, np)
	require.NoError(t, err)
	v = bit.Value()
	require.True(t, v.IsZero())
	require.Empty(t, b.Failures())
}

func fieldElems(vk *rr.VerKey) []fr.Element {
	return vk.FieldElements()
}

func TestDummyStores(t *testing.T) {
	du := DummyUserStore{}
	require.True(t, du.HasNeverReceivedNul(fr.Element{}))
	b := zk.NewBuilder()
	bit, err := du.EnforceMembershipOf(b, b.Zero(), nil, nil)
	require.NoError(t, err)
	v := bit.Value()
	require.False(t, v.IsZero())

	dc := DummyCallbackStore{}
	_, ok := dc.VerifyIn(nil)
	require.False(t, ok)
	nmBit, err := dc.EnforceNonmembershipOf(b, nil, nil, nil)
	require.NoError(t, err)
	nv := nmBit.Value()
	require.False(t, nv.IsZero())
}
