// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package callback

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/zk"
)

func testEntry(t *testing.T) *Entry {
	t.Helper()
	_, vk, err := rr.Gen(rand.Reader)
	require.NoError(t, err)
	_, tik, err := vk.Rerand(rand.Reader)
	require.NoError(t, err)
	key, err := enc.KeyGen(rand.Reader)
	require.NoError(t, err)
	return &Entry{
		Tik:      tik,
		EncKey:   key,
		MethodID: zk.ElemFromUint64(1),
		Expiry:   zk.ElemFromUint64(100),
	}
}

func TestEntryComDeterministic(t *testing.T) {
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	e := testEntry(t)
	a := e.Com(h)
	b := e.Com(h)
	require.True(t, a.Equal(&b))
}

func TestEntryComBindsFields(t *testing.T) {
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	e := testEntry(t)
	base := e.Com(h)

	mod := *e
	mod.Expiry = zk.ElemFromUint64(101)
	c := mod.Com(h)
	require.False(t, base.Equal(&c))

	mod = *e
	mod.MethodID = zk.ElemFromUint64(2)
	c = mod.Com(h)
	require.False(t, base.Equal(&c))
}

func TestEntryComAgreement(t *testing.T) {
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	e := testEntry(t)
	want := e.Com(h)

	b := zk.NewBuilder()
	ev := AllocEntry(b, e)
	got := ev.ComInZK(b, h)
	gv := got.Value()
	require.True(t, gv.Equal(&want))
	require.Empty(t, b.Failures())
}

func TestFoldChainOrderMatters(t *testing.T) {
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	c1, _ := zk.RandomElem(rand.Reader)
	c2, _ := zk.RandomElem(rand.Reader)

	ab := ChainOf(h, []fr.Element{c1, c2})
	ba := ChainOf(h, []fr.Element{c2, c1})
	require.False(t, ab.Equal(&ba), "chain must be ordered")
}

func TestChainOfMatchesFolds(t *testing.T) {
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	coms := make([]fr.Element, 3)
	for i := range coms {
		coms[i], _ = zk.RandomElem(rand.Reader)
	}
	var head fr.Element
	for _, c := range coms {
		head = FoldChain(h, head, c)
	}
	want := ChainOf(h, coms)
	require.True(t, head.Equal(&want))
}

func TestFoldChainAgreement(t *testing.T) {
	h, err := zk.NewHasher(4)
	require.NoError(t, err)
	head, _ := zk.RandomElem(rand.Reader)
	com, _ := zk.RandomElem(rand.Reader)
	want := FoldChain(h, head, com)

	b := zk.NewBuilder()
	got := FoldChainInZK(b, h, b.Witness(head), b.Witness(com))
	gv := got.Value()
	require.True(t, gv.Equal(&want))
}
