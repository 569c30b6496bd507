// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package enc provides the IND-CPA cipher used for callback arguments and
// the authenticated-encrypt-with-sign bundle tying ciphertexts to tickets.
//
// The cipher is a one-time keystream over field vectors: keystream element
// i is the Poseidon2 sponge evaluated on (key, i) under a cipher domain
// tag. Each key encrypts at most once, which the callback lifecycle
// guarantees (one key per ticket, one call per ticket).
package enc

import (
	"errors"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/zk"
)

var (
	ErrLengthMismatch = errors.New("ciphertext length mismatch")
)

// cipherDomain separates keystream hashing from every other use of the
// sponge.
var cipherDomain = zk.ElemFromUint64(0x656e63) // "enc"

// Key is an encryption key: a single field element.
type Key struct {
	K fr.Element
}

// Ciphertext is an encrypted argument vector.
type Ciphertext []fr.Element

// Cipher binds the keystream to a concrete sponge instance so plaintext
// and in-circuit decryption share one source of truth.
type Cipher struct {
	h *zk.Hasher
}

// NewCipher creates a cipher over the given sponge.
func NewCipher(h *zk.Hasher) *Cipher {
	return &Cipher{h: h}
}

// KeyGen samples a fresh key.
func KeyGen(rng io.Reader) (Key, error) {
	k, err := zk.RandomElem(rng)
	if err != nil {
		return Key{}, err
	}
	return Key{K: k}, nil
}

func (c *Cipher) keystream(k Key, i int) fr.Element {
	return c.h.Hash([]fr.Element{cipherDomain, k.K, zk.ElemFromUint64(uint64(i))})
}

// Encrypt encrypts msg under k. One encryption per key.
func (c *Cipher) Encrypt(k Key, msg []fr.Element) Ciphertext {
	ct := make(Ciphertext, len(msg))
	for i := range msg {
		ks := c.keystream(k, i)
		ct[i].Add(&msg[i], &ks)
	}
	return ct
}

// Decrypt inverts Encrypt.
func (c *Cipher) Decrypt(k Key, ct Ciphertext) []fr.Element {
	msg := make([]fr.Element, len(ct))
	for i := range ct {
		ks := c.keystream(k, i)
		msg[i].Sub(&ct[i], &ks)
	}
	return msg
}

// DecryptInZK is the in-circuit twin of Decrypt: given a key wire and
// ciphertext wires it produces plaintext wires bound by the keystream
// relation.
func (c *Cipher) DecryptInZK(b *zk.Builder, key zk.Var, ct []zk.Var) []zk.Var {
	msg := make([]zk.Var, len(ct))
	for i := range ct {
		ks := b.Hash(c.h, b.Constant(cipherDomain), key, b.ConstUint64(uint64(i)))
		msg[i] = b.Sub(ct[i], ks)
	}
	return msg
}

// Bytes returns the canonical ciphertext encoding: 32-byte big-endian
// elements, concatenated. This is the message the ticket signature covers.
func (ct Ciphertext) Bytes() []byte {
	out := make([]byte, 0, 32*len(ct))
	for i := range ct {
		b := ct[i].Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// CiphertextFromBytes decodes a ciphertext of n elements.
func CiphertextFromBytes(b []byte, n int) (Ciphertext, error) {
	if len(b) != 32*n {
		return nil, ErrLengthMismatch
	}
	ct := make(Ciphertext, n)
	for i := 0; i < n; i++ {
		ct[i].SetBytes(b[32*i : 32*(i+1)])
	}
	return ct, nil
}

// EncryptAndSign encrypts args under encKey and signs the ciphertext with
// sigSK. This is what a service runs when it calls a ticket: the signature
// proves to the callback bulletin that the caller holds the ticket's
// signing key.
func EncryptAndSign(c *Cipher, args []fr.Element, encKey Key, sigSK *rr.SignKey) (Ciphertext, *rr.Signature) {
	ct := c.Encrypt(encKey, args)
	sig := sigSK.Sign(ct.Bytes())
	return ct, sig
}
