// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// Round numbers per sponge rate. Full rounds are uniform; partial rounds
// grow with state width.
var poseidonRounds = map[int]struct{ full, partial int }{
	2: {8, 31},
	3: {8, 56},
	4: {8, 56},
	5: {8, 57},
	6: {8, 57},
	7: {8, 57},
	8: {8, 57},
}

// Hasher is a field-valued collision-resistant hash built as a Poseidon2
// sponge with one capacity element and a configurable rate. The same
// instance backs the plaintext hash, the in-circuit hash gadget, and the
// keystream cipher, so the two sides of every twin agree by construction.
//
// A Hasher is safe for concurrent use; the permutation parameters are
// immutable and each call works on its own state.
type Hasher struct {
	rate int
	perm *poseidon2.Permutation

	// Statistics
	mu          sync.Mutex
	TotalHashes uint64
}

// NewHasher creates a Poseidon2 sponge hasher with the given rate. Valid
// rates are 2 through 8; the permutation width is rate+1.
func NewHasher(rate int) (*Hasher, error) {
	r, ok := poseidonRounds[rate]
	if !ok {
		return nil, ErrInvalidRate
	}
	return &Hasher{
		rate: rate,
		perm: poseidon2.NewPermutation(rate+1, r.full, r.partial),
	}, nil
}

// Rate returns the sponge rate.
func (h *Hasher) Rate() int {
	return h.rate
}

// Hash absorbs msg and squeezes one field element. The message length is
// absorbed into the capacity element first, so inputs of different lengths
// never collide by padding.
func (h *Hasher) Hash(msg []fr.Element) fr.Element {
	h.mu.Lock()
	h.TotalHashes++
	h.mu.Unlock()

	state := make([]fr.Element, h.rate+1)
	state[0].SetUint64(uint64(len(msg)))

	off := 0
	for {
		for i := 0; i < h.rate && off+i < len(msg); i++ {
			state[1+i].Add(&state[1+i], &msg[off+i])
		}
		// The permutation only errors on a width mismatch, which cannot
		// happen with a state sized off the same rate.
		if err := h.perm.Permutation(state); err != nil {
			panic(err)
		}
		off += h.rate
		if off >= len(msg) {
			break
		}
	}
	return state[1]
}

// Hash2 is the two-to-one compression used by hash chains and Merkle nodes.
func (h *Hasher) Hash2(left, right fr.Element) fr.Element {
	return h.Hash([]fr.Element{left, right})
}
