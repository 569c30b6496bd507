// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bulletin

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/zk"
)

var ErrTreeFull = errors.New("merkle tree full")

// merkleDepth fixes the authentication path length; it is part of the
// circuit shape for tree-backed bulletins.
const merkleDepth = 20

// MerklePath authenticates one leaf against a root: the sibling at each
// level and the leaf index whose bits steer left/right.
type MerklePath struct {
	Siblings [merkleDepth]fr.Element
	Index    uint64
}

// merkleTree is a fixed-depth Poseidon2 Merkle tree over field leaves.
// Empty slots hold zero subtree digests. Append-only.
type merkleTree struct {
	h      *zk.Hasher
	leaves []fr.Element
	zeros  [merkleDepth + 1]fr.Element
}

func newMerkleTree(h *zk.Hasher) *merkleTree {
	t := &merkleTree{h: h}
	// zeros[0] is the empty leaf; zeros[i] the empty subtree of height i.
	for i := 1; i <= merkleDepth; i++ {
		t.zeros[i] = h.Hash2(t.zeros[i-1], t.zeros[i-1])
	}
	return t
}

func (t *merkleTree) append(leaf fr.Element) (uint64, error) {
	if len(t.leaves) >= 1<<merkleDepth {
		return 0, ErrTreeFull
	}
	t.leaves = append(t.leaves, leaf)
	return uint64(len(t.leaves) - 1), nil
}

func (t *merkleTree) root() fr.Element {
	level := make([]fr.Element, len(t.leaves))
	copy(level, t.leaves)
	for d := 0; d < merkleDepth; d++ {
		next := make([]fr.Element, (len(level)+1)/2)
		for i := range next {
			l := t.zeros[d]
			r := t.zeros[d]
			if 2*i < len(level) {
				l = level[2*i]
			}
			if 2*i+1 < len(level) {
				r = level[2*i+1]
			}
			next[i] = t.h.Hash2(l, r)
		}
		if len(next) == 0 {
			next = []fr.Element{t.h.Hash2(t.zeros[d], t.zeros[d])}
		}
		level = next
	}
	return level[0]
}

func (t *merkleTree) path(index uint64) (*MerklePath, error) {
	if index >= uint64(len(t.leaves)) {
		return nil, ErrNotFound
	}
	p := &MerklePath{Index: index}
	level := make([]fr.Element, len(t.leaves))
	copy(level, t.leaves)
	idx := index
	for d := 0; d < merkleDepth; d++ {
		sib := idx ^ 1
		if sib < uint64(len(level)) {
			p.Siblings[d] = level[sib]
		} else {
			p.Siblings[d] = t.zeros[d]
		}
		next := make([]fr.Element, (len(level)+1)/2)
		for i := range next {
			l := t.zeros[d]
			r := t.zeros[d]
			if 2*i < len(level) {
				l = level[2*i]
			}
			if 2*i+1 < len(level) {
				r = level[2*i+1]
			}
			next[i] = t.h.Hash2(l, r)
		}
		level = next
		idx >>= 1
	}
	return p, nil
}

// verifyPath recomputes the root from a leaf and its path.
func verifyPath(h *zk.Hasher, leaf fr.Element, p *MerklePath, root fr.Element) bool {
	cur := leaf
	idx := p.Index
	for d := 0; d < merkleDepth; d++ {
		if idx&1 == 0 {
			cur = h.Hash2(cur, p.Siblings[d])
		} else {
			cur = h.Hash2(p.Siblings[d], cur)
		}
		idx >>= 1
	}
	return cur.Equal(&root)
}

// enforcePath is the in-circuit twin of verifyPath, returning the match
// bit against a root wire.
func enforcePath(b *zk.Builder, h *zk.Hasher, leaf zk.Var, p *MerklePath, root zk.Var) zk.Var {
	cur := leaf
	idx := p.Index
	for d := 0; d < merkleDepth; d++ {
		sib := b.Witness(p.Siblings[d])
		if idx&1 == 0 {
			cur = b.Hash(h, cur, sib)
		} else {
			cur = b.Hash(h, sib, cur)
		}
		idx >>= 1
	}
	return b.IsEqual(cur, root)
}
