// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

func TestNewHasherRates(t *testing.T) {
	for rate := 2; rate <= 8; rate++ {
		h, err := NewHasher(rate)
		if err != nil {
			t.Fatalf("rate %d: %v", rate, err)
		}
		if h.Rate() != rate {
			t.Fatalf("rate %d: got %d", rate, h.Rate())
		}
	}
	for _, rate := range []int{0, 1, 9, -3} {
		if _, err := NewHasher(rate); err == nil {
			t.Fatalf("rate %d: expected error", rate)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	h, err := NewHasher(4)
	if err != nil {
		t.Fatal(err)
	}
	msg := make([]fr.Element, 7)
	for i := range msg {
		msg[i], _ = RandomElem(rand.Reader)
	}
	a := h.Hash(msg)
	b := h.Hash(msg)
	if !a.Equal(&b) {
		t.Fatal("hash not deterministic")
	}
}

func TestHashLengthSeparation(t *testing.T) {
	h, _ := NewHasher(3)
	var x fr.Element
	x.SetUint64(42)
	short := h.Hash([]fr.Element{x})
	long := h.Hash([]fr.Element{x, {}})
	if short.Equal(&long) {
		t.Fatal("padding collision between different lengths")
	}
}

func TestHashEmptyMessage(t *testing.T) {
	h, _ := NewHasher(2)
	a := h.Hash(nil)
	b := h.Hash([]fr.Element{})
	if !a.Equal(&b) {
		t.Fatal("empty message hash unstable")
	}
	if a.IsZero() {
		t.Fatal("empty hash should not be the identity")
	}
}

func TestHash2MatchesHash(t *testing.T) {
	h, _ := NewHasher(5)
	l, _ := RandomElem(rand.Reader)
	r, _ := RandomElem(rand.Reader)
	a := h.Hash2(l, r)
	b := h.Hash([]fr.Element{l, r})
	if !a.Equal(&b) {
		t.Fatal("Hash2 disagrees with Hash")
	}
}

func TestRatesDisagree(t *testing.T) {
	h2, _ := NewHasher(2)
	h8, _ := NewHasher(8)
	var x fr.Element
	x.SetUint64(7)
	a := h2.Hash([]fr.Element{x})
	b := h8.Hash([]fr.Element{x})
	if a.Equal(&b) {
		t.Fatal("different rates should define different hashes")
	}
}

func TestHashGadgetAgreement(t *testing.T) {
	h, _ := NewHasher(4)
	for trial := 0; trial < 16; trial++ {
		msg := make([]fr.Element, trial%5+1)
		for i := range msg {
			msg[i], _ = RandomElem(rand.Reader)
		}
		want := h.Hash(msg)

		b := NewBuilder()
		vars := b.WitnessElems(msg)
		got := b.HashElems(h, vars)
		gv := got.Value()
		if !gv.Equal(&want) {
			t.Fatalf("trial %d: in-circuit hash disagrees with plaintext", trial)
		}
		if len(b.Failures()) != 0 {
			t.Fatalf("trial %d: unexpected failures %v", trial, b.Failures())
		}
	}
}
