// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rr

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	sk, vk, err := Gen(rand.Reader)
	require.NoError(t, err)

	msg := []byte("callback ciphertext")
	sig := sk.Sign(msg)
	require.True(t, vk.Verify(msg, sig))
	require.False(t, vk.Verify([]byte("other message"), sig))

	_, vk2, err := Gen(rand.Reader)
	require.NoError(t, err)
	require.False(t, vk2.Verify(msg, sig))
}

func TestRerandIdentity(t *testing.T) {
	sk, vk, err := Gen(rand.Reader)
	require.NoError(t, err)

	r, tik, err := vk.Rerand(rand.Reader)
	require.NoError(t, err)

	// sk.rerand(r).sk_to_pk() == vk.rerand_to(r)
	require.True(t, sk.Rerand(r).SkToPk().Equal(tik))
	require.True(t, vk.RerandTo(r).Equal(tik))
}

func TestRerandSignatureVerifies(t *testing.T) {
	sk, vk, err := Gen(rand.Reader)
	require.NoError(t, err)

	r, tik, err := vk.Rerand(rand.Reader)
	require.NoError(t, err)

	msg := []byte("encrypted arguments")
	sig := sk.Rerand(r).Sign(msg)
	require.True(t, tik.Verify(msg, sig))
	// The original key must not verify under the ticket's signature.
	require.False(t, vk.Verify(msg, sig))
}

func TestTicketUnlinkability(t *testing.T) {
	_, vk, err := Gen(rand.Reader)
	require.NoError(t, err)

	// Rerandomizations of one key must all be pairwise distinct and
	// distinct from the base key.
	const samples = 64
	seen := make(map[string]struct{}, samples+1)
	seen[hex.EncodeToString(vk.Bytes())] = struct{}{}
	for i := 0; i < samples; i++ {
		_, tik, err := vk.Rerand(rand.Reader)
		require.NoError(t, err)
		enc := hex.EncodeToString(tik.Bytes())
		_, dup := seen[enc]
		require.False(t, dup, "rerandomized key collided")
		seen[enc] = struct{}{}
	}
}

func TestVerKeyEncoding(t *testing.T) {
	_, vk, err := Gen(rand.Reader)
	require.NoError(t, err)

	var decoded VerKey
	require.NoError(t, decoded.SetBytes(vk.Bytes()))
	require.True(t, decoded.Equal(vk))

	require.Error(t, decoded.SetBytes([]byte{0xff, 0x00}))
}

func TestSignatureEncoding(t *testing.T) {
	sk, vk, err := Gen(rand.Reader)
	require.NoError(t, err)
	msg := []byte("m")
	sig := sk.Sign(msg)

	var decoded Signature
	require.NoError(t, decoded.SetBytes(sig.Bytes()))
	require.True(t, vk.Verify(msg, &decoded))
}

func TestRandomnessEncoding(t *testing.T) {
	_, vk, err := Gen(rand.Reader)
	require.NoError(t, err)
	r, tik, err := vk.Rerand(rand.Reader)
	require.NoError(t, err)

	var decoded Randomness
	require.NoError(t, decoded.SetBytes(r.Bytes()))
	require.True(t, vk.RerandTo(&decoded).Equal(tik))
}

func TestFieldElements(t *testing.T) {
	_, vk, err := Gen(rand.Reader)
	require.NoError(t, err)
	elems := vk.FieldElements()
	require.Len(t, elems, 6)

	again := vk.FieldElements()
	for i := range elems {
		require.True(t, elems[i].Equal(&again[i]))
	}
}
