// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scan

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/luxfi/database/memdb"
	log "github.com/luxfi/logger/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/zkcallback/bulletin"
	"github.com/luxfi/zkcallback/callback"
	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/interaction"
	"github.com/luxfi/zkcallback/object"
	"github.com/luxfi/zkcallback/zk"
)

// Test user data: [reputation, banned].
type testData = object.Vector

const (
	rewardID = 1
	banID    = 2
)

func rewardMethod() *object.Method[testData] {
	return &object.Method[testData]{
		ID:      rewardID,
		Name:    "reward",
		NumArgs: 1,
		Apply: func(u testData, f object.ZKFields, _, priv []fr.Element) (testData, object.ZKFields) {
			out := append(testData(nil), u...)
			out[0].Add(&out[0], &priv[0])
			return out, f
		},
		ApplyInZK: func(b *zk.Builder, u []zk.Var, f *object.FieldsVar, _, priv []zk.Var) ([]zk.Var, *object.FieldsVar) {
			nf := *f
			out := append([]zk.Var(nil), u...)
			out[0] = b.Add(out[0], priv[0])
			return out, &nf
		},
	}
}

func banMethod() *object.Method[testData] {
	return &object.Method[testData]{
		ID:      banID,
		Name:    "ban",
		NumArgs: 0,
		Apply: func(u testData, f object.ZKFields, _, _ []fr.Element) (testData, object.ZKFields) {
			out := append(testData(nil), u...)
			out[1].SetOne()
			return out, f
		},
		ApplyInZK: func(b *zk.Builder, u []zk.Var, f *object.FieldsVar, _, _ []zk.Var) ([]zk.Var, *object.FieldsVar) {
			nf := *f
			out := append([]zk.Var(nil), u...)
			out[1] = b.One()
			return out, &nf
		},
	}
}

func noopMethod() *object.Method[testData] {
	return &object.Method[testData]{
		ID:   3,
		Name: "post",
		Apply: func(u testData, f object.ZKFields, _, _ []fr.Element) (testData, object.ZKFields) {
			return append(testData(nil), u...), f
		},
		ApplyInZK: func(b *zk.Builder, u []zk.Var, f *object.FieldsVar, _, _ []zk.Var) ([]zk.Var, *object.FieldsVar) {
			nf := *f
			return append([]zk.Var(nil), u...), &nf
		},
	}
}

type env struct {
	h    *zk.Hasher
	c    *enc.Cipher
	ub   *bulletin.SignedUserStore
	cbul *bulletin.SignedCallbackStore
	reg  *object.Registry[testData]
	scn  *Scanner[testData]

	ipk *zk.ProvingKey
	ivk *zk.VerifyingKey
	spk *zk.ProvingKey
	svk *zk.VerifyingKey
}

func newEnv(t *testing.T) *env {
	t.Helper()
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	lg := log.NewTestLogger(log.InfoLevel)
	ub, err := bulletin.NewSignedUserStore(memdb.New(), h, lg, rand.Reader)
	require.NoError(t, err)
	cbul, err := bulletin.NewSignedCallbackStore(memdb.New(), h, lg, rand.Reader)
	require.NoError(t, err)
	reg, err := object.NewRegistry(rewardMethod(), banMethod())
	require.NoError(t, err)
	c := enc.NewCipher(h)

	ipk, ivk := zk.Setup("interact/post")
	spk, svk := zk.Setup("scan")
	return &env{
		h: h, c: c, ub: ub, cbul: cbul, reg: reg,
		scn: NewScanner(h, c, reg),
		ipk: ipk, ivk: ivk, spk: spk, svk: svk,
	}
}

func (e *env) join(t *testing.T) *object.User[testData] {
	t.Helper()
	user, err := object.Create(testData{{}, {}}, rand.Reader)
	require.NoError(t, err)
	jpk, jvk := zk.Setup("join")
	com, proof, err := interaction.Join(user, e.h, jpk)
	require.NoError(t, err)
	require.NoError(t, e.ub.JoinBul(com, proof, jvk))
	return user
}

// mint executes a no-op interaction that creates the given callbacks and
// appends the result to the user bulletin.
func (e *env) mint(t *testing.T, user *object.User[testData], now uint64, descs ...callback.Descriptor) []*interaction.TicketSecret {
	t.Helper()
	it := &interaction.Interaction[testData]{Method: noopMethod(), Callbacks: descs}
	em, secrets, err := interaction.Execute(it, user, e.ub, e.h, e.ipk, nil, nil, zk.ElemFromUint64(now), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, e.ub.AppendValue(em.NewObject, em.OldNullifier, em.CbComList, em.PubArgs, em.Proof, em.MembData, e.ivk))
	return secrets
}

// call posts a callback invocation for the given ticket secret.
func (e *env) call(t *testing.T, sec *interaction.TicketSecret, args []fr.Element, at uint64) {
	t.Helper()
	sk := sec.SignKey.Rerand(sec.Rand)
	ct, sig := enc.EncryptAndSign(e.c, args, sec.Entry.EncKey, sk)
	require.NoError(t, e.cbul.AppendValue(sec.Entry.Tik, ct, sig, zk.ElemFromUint64(at)))
}

// scan runs one ScanTicket and appends the result.
func (e *env) scan(t *testing.T, user *object.User[testData], at uint64) {
	t.Helper()
	em, err := e.scn.ScanTicket(user, e.ub, e.cbul, e.spk, zk.ElemFromUint64(at), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, e.ub.AppendValue(em.NewObject, em.OldNullifier, em.CbComList, em.PubArgs, em.Proof, em.MembData, e.svk))
}

func TestScanEmptyIdempotent(t *testing.T) {
	e := newEnv(t)
	user := e.join(t)
	dataBefore := append(testData(nil), user.Data...)
	nulBefore := user.Fields.Nul

	e.scan(t, user, 10)

	require.True(t, zk.ElemsEqual(dataBefore, user.Data), "data unchanged by empty scan")
	require.True(t, user.Fields.CallbackHash.IsZero())
	require.True(t, user.Fields.IsIngestOver)
	require.False(t, user.Fields.Nul.Equal(&nulBefore), "nullifier refreshed")
}

func TestScanUncalledTicket(t *testing.T) {
	e := newEnv(t)
	user := e.join(t)
	e.mint(t, user, 0, callback.Descriptor{MethodID: rewardID, ExpiryWindow: 100})
	require.Len(t, user.Entries, 1)

	// No call was posted; the scan removes the entry without touching the
	// data.
	e.scan(t, user, 10)
	require.True(t, user.Data[0].IsZero())
	require.True(t, user.Fields.CallbackHash.IsZero())
	require.True(t, user.Fields.IsIngestOver)
	require.Empty(t, user.Entries)
}

func TestBanCallback(t *testing.T) {
	e := newEnv(t)
	user := e.join(t)
	secrets := e.mint(t, user, 0, callback.Descriptor{MethodID: banID, ExpiryWindow: 100})

	// The service calls the ban ticket with no arguments.
	e.call(t, secrets[0], nil, 5)

	e.scan(t, user, 10)
	var one fr.Element
	one.SetOne()
	require.True(t, user.Data[1].Equal(&one), "user must be banned after ingest")
	require.True(t, user.Fields.IsIngestOver)
	require.Empty(t, user.Entries)
}

func TestTwoRewards(t *testing.T) {
	e := newEnv(t)
	user := e.join(t)

	// Two sequential interactions each mint a reward ticket.
	s1 := e.mint(t, user, 0, callback.Descriptor{MethodID: rewardID, ExpiryWindow: 100})
	s2 := e.mint(t, user, 1, callback.Descriptor{MethodID: rewardID, ExpiryWindow: 100})
	require.Len(t, user.Entries, 2)

	one := []fr.Element{zk.ElemFromUint64(1)}
	e.call(t, s1[0], one, 5)
	e.call(t, s2[0], one, 6)

	// First scan of the batch leaves the user mid-ingest; interactions
	// are rejected until the batch completes.
	e.scan(t, user, 10)
	require.False(t, user.Fields.IsIngestOver)
	it := &interaction.Interaction[testData]{Method: noopMethod()}
	_, _, err := interaction.Execute(it, user, e.ub, e.h, e.ipk, nil, nil, zk.ElemFromUint64(10), rand.Reader)
	require.ErrorIs(t, err, interaction.ErrScanInProgress)

	e.scan(t, user, 11)
	require.True(t, user.Fields.IsIngestOver)
	require.Empty(t, user.Entries)

	want := zk.ElemFromUint64(2)
	require.True(t, user.Data[0].Equal(&want), "reputation must be 2")
}

func TestExpiredCallback(t *testing.T) {
	e := newEnv(t)
	user := e.join(t)
	secrets := e.mint(t, user, 0, callback.Descriptor{MethodID: rewardID, ExpiryWindow: 10})

	// Called at 12, after the expiry of 10; scanned at 15.
	e.call(t, secrets[0], []fr.Element{zk.ElemFromUint64(1)}, 12)
	e.scan(t, user, 15)

	require.True(t, user.Data[0].IsZero(), "expired call must not apply")
	require.True(t, user.Fields.CallbackHash.IsZero(), "entry removed regardless")
	require.Empty(t, user.Entries)
}

func TestExpiryBoundary(t *testing.T) {
	for _, tc := range []struct {
		name    string
		expiry  uint64
		scanAt  uint64
		applied bool
	}{
		{"at deadline", 20, 20, true},
		{"one past deadline", 19, 20, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			user := e.join(t)
			secrets := e.mint(t, user, 0, callback.Descriptor{MethodID: rewardID, ExpiryWindow: tc.expiry})
			e.call(t, secrets[0], []fr.Element{zk.ElemFromUint64(1)}, 5)
			e.scan(t, user, tc.scanAt)

			if tc.applied {
				want := zk.ElemFromUint64(1)
				require.True(t, user.Data[0].Equal(&want))
			} else {
				require.True(t, user.Data[0].IsZero())
			}
			require.True(t, user.Fields.CallbackHash.IsZero())
		})
	}
}

func TestScanBatchFolded(t *testing.T) {
	e := newEnv(t)
	user := e.join(t)
	s1 := e.mint(t, user, 0, callback.Descriptor{MethodID: rewardID, ExpiryWindow: 100})
	s2 := e.mint(t, user, 1, callback.Descriptor{MethodID: banID, ExpiryWindow: 100})

	e.call(t, s1[0], []fr.Element{zk.ElemFromUint64(1)}, 5)
	e.call(t, s2[0], nil, 6)

	// One folded proof ingests the whole chain.
	em, err := e.scn.ScanBatch(user, 2, e.ub, e.cbul, e.spk, zk.ElemFromUint64(10), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, e.ub.AppendValue(em.NewObject, em.OldNullifier, em.CbComList, em.PubArgs, em.Proof, em.MembData, e.svk))

	one := zk.ElemFromUint64(1)
	require.True(t, user.Data[0].Equal(&one))
	require.True(t, user.Data[1].Equal(&one))
	require.True(t, user.Fields.IsIngestOver)
	require.Empty(t, user.Entries)
}

func TestScanAbortedOnArityMismatch(t *testing.T) {
	e := newEnv(t)
	user := e.join(t)
	secrets := e.mint(t, user, 0, callback.Descriptor{MethodID: rewardID, ExpiryWindow: 100})

	// A malicious record with the wrong argument count.
	sk := secrets[0].SignKey.Rerand(secrets[0].Rand)
	args := []fr.Element{zk.ElemFromUint64(1), zk.ElemFromUint64(2)}
	ct, sig := enc.EncryptAndSign(e.c, args, secrets[0].Entry.EncKey, sk)
	require.NoError(t, e.cbul.AppendValue(secrets[0].Entry.Tik, ct, sig, zk.ElemFromUint64(5)))

	_, err := e.scn.ScanTicket(user, e.ub, e.cbul, e.spk, zk.ElemFromUint64(10), rand.Reader)
	require.ErrorIs(t, err, ErrScanAborted)
}

func TestScanAgainstTreeBackends(t *testing.T) {
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	lg := log.NewTestLogger(log.InfoLevel)
	ub := bulletin.NewTreeUserStore(memdb.New(), h, lg)
	cbul := bulletin.NewTreeCallbackStore(memdb.New(), h, lg)
	reg, err := object.NewRegistry(rewardMethod(), banMethod())
	require.NoError(t, err)
	c := enc.NewCipher(h)
	scn := NewScanner(h, c, reg)
	ipk, ivk := zk.Setup("interact/post")
	spk, svk := zk.Setup("scan")

	user, err := object.Create(testData{{}, {}}, rand.Reader)
	require.NoError(t, err)
	jpk, jvk := zk.Setup("join")
	com, proof, err := interaction.Join(user, h, jpk)
	require.NoError(t, err)
	require.NoError(t, ub.JoinBul(com, proof, jvk))

	it := &interaction.Interaction[testData]{
		Method:    noopMethod(),
		Callbacks: []callback.Descriptor{{MethodID: rewardID, ExpiryWindow: 100}},
	}
	em, secrets, err := interaction.Execute(it, user, ub, h, ipk, nil, nil, zk.ElemFromUint64(0), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ub.AppendValue(em.NewObject, em.OldNullifier, em.CbComList, em.PubArgs, em.Proof, em.MembData, ivk))

	sk := secrets[0].SignKey.Rerand(secrets[0].Rand)
	ct, sig := enc.EncryptAndSign(c, []fr.Element{zk.ElemFromUint64(3)}, secrets[0].Entry.EncKey, sk)
	require.NoError(t, cbul.AppendValue(secrets[0].Entry.Tik, ct, sig, zk.ElemFromUint64(5)))

	sem, err := scn.ScanTicket(user, ub, cbul, spk, zk.ElemFromUint64(10), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ub.AppendValue(sem.NewObject, sem.OldNullifier, sem.CbComList, sem.PubArgs, sem.Proof, sem.MembData, svk))

	want := zk.ElemFromUint64(3)
	require.True(t, user.Data[0].Equal(&want))
}
