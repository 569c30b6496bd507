// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bulletin

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/luxfi/crypto"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/logger/log"

	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/wire"
	"github.com/luxfi/zkcallback/zk"
)

func elemKey(prefix string, e fr.Element) []byte {
	fp := elemFingerprint(e)
	return append([]byte(prefix), fp[:]...)
}

func elemFingerprint(e fr.Element) common.Hash {
	b := e.Bytes()
	return common.BytesToHash(crypto.Keccak256(b[:]))
}

// userStoreCore carries the state both user-bulletin backends share: the
// nullifier seen-set, record persistence, and the locking discipline that
// keeps dedup-and-append atomic per nullifier.
type userStoreCore struct {
	mu  sync.RWMutex
	lg  log.Logger
	db  database.Database
	h   *zk.Hasher
	nul map[common.Hash]struct{}
	com map[common.Hash]struct{}
}

func newUserStoreCore(db database.Database, h *zk.Hasher, lg log.Logger) userStoreCore {
	return userStoreCore{
		lg:  lg,
		db:  db,
		h:   h,
		nul: make(map[common.Hash]struct{}),
		com: make(map[common.Hash]struct{}),
	}
}

func (c *userStoreCore) hasNeverReceivedNul(nul zk.Nul) bool {
	_, seen := c.nul[elemFingerprint(nul)]
	return !seen
}

func (c *userStoreCore) persist(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof) error {
	var payload []byte
	payload = wire.AppendElem(payload, com)
	payload = wire.AppendElem(payload, oldNul)
	payload = wire.AppendElems(payload, cbComs)
	payload = wire.AppendElems(payload, pubArgs)
	payload = wire.AppendBytes(payload, proof.Bytes())
	if err := c.db.Put(elemKey("ucom/", com), payload); err != nil {
		return fmt.Errorf("%w: %v", ErrBulletinAppend, err)
	}
	return nil
}

// SignedUserStore is the signed-store backend of the user bulletin: the
// bulletin holds a rerandomizable signing key and signs every accepted
// commitment. A membership proof is that signature; the public data is
// the bulletin's verification key.
type SignedUserStore struct {
	userStoreCore

	sk   *rr.SignKey
	vk   *rr.VerKey
	sigs map[common.Hash]*rr.Signature
}

var _ UserBul = (*SignedUserStore)(nil)

// NewSignedUserStore creates a signed-store user bulletin with a fresh
// bulletin key pair.
func NewSignedUserStore(db database.Database, h *zk.Hasher, lg log.Logger, rng io.Reader) (*SignedUserStore, error) {
	sk, vk, err := rr.Gen(rng)
	if err != nil {
		return nil, err
	}
	return &SignedUserStore{
		userStoreCore: newUserStoreCore(db, h, lg),
		sk:            sk,
		vk:            vk,
		sigs:          make(map[common.Hash]*rr.Signature),
	}, nil
}

// Key returns the bulletin verification key, the constant membership
// public data provers embed.
func (s *SignedUserStore) Key() *rr.VerKey {
	return s.vk
}

func (s *SignedUserStore) HasNeverReceivedNul(nul zk.Nul) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNeverReceivedNul(nul)
}

func (s *SignedUserStore) HasNeverReceivedNulContext(ctx context.Context, nul zk.Nul) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.HasNeverReceivedNul(nul), nil
}

func comBytes(com zk.Com) []byte {
	b := com.Bytes()
	return b[:]
}

func (s *SignedUserStore) admit(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof) error {
	if err := s.persist(com, oldNul, cbComs, pubArgs, proof); err != nil {
		return err
	}
	fp := elemFingerprint(com)
	s.com[fp] = struct{}{}
	s.sigs[fp] = s.sk.Sign(comBytes(com))
	s.nul[elemFingerprint(oldNul)] = struct{}{}
	s.lg.Debug("user bulletin append", "com", fp.Hex())
	return nil
}

func (s *SignedUserStore) AppendValue(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasNeverReceivedNul(oldNul) {
		return ErrDuplicateNullifier
	}
	if !s.verifyLocked(com, oldNul, pubArgs, cbComs, proof, membPub, vk) {
		return ErrVerifyFailure
	}
	return s.admit(com, oldNul, cbComs, pubArgs, proof)
}

func (s *SignedUserStore) AppendValueContext(ctx context.Context, com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.AppendValue(com, oldNul, cbComs, pubArgs, proof, membPub, vk)
}

func (s *SignedUserStore) membPubElems(membPub MembershipPub) []fr.Element {
	if membPub == nil {
		return nil
	}
	pk, ok := membPub.(*rr.VerKey)
	if !ok {
		return nil
	}
	return pk.FieldElements()
}

func (s *SignedUserStore) verifyLocked(com zk.Com, oldNul zk.Nul, pubArgs, cbComs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool {
	public := InteractionPublicInputs(com, oldNul, pubArgs, cbComs, s.membPubElems(membPub))
	return vk.Verify(public, proof)
}

func (s *SignedUserStore) VerifyInteraction(com zk.Com, oldNul zk.Nul, pubArgs, cbComs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasNeverReceivedNul(oldNul) {
		return false
	}
	return s.verifyLocked(com, oldNul, pubArgs, cbComs, proof, membPub, vk)
}

func (s *SignedUserStore) VerifyIn(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.com[elemFingerprint(com)]; !ok {
		return false
	}
	return s.verifyLocked(com, oldNul, pubArgs, cbComs, proof, membPub, vk)
}

func (s *SignedUserStore) JoinBul(com zk.Com, proof *zk.Proof, vk *zk.VerifyingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !vk.Verify([]fr.Element{com}, proof) {
		return ErrVerifyFailure
	}
	if err := s.persist(com, fr.Element{}, nil, nil, proof); err != nil {
		return err
	}
	fp := elemFingerprint(com)
	s.com[fp] = struct{}{}
	s.sigs[fp] = s.sk.Sign(comBytes(com))
	s.lg.Debug("user bulletin join", "com", fp.Hex())
	return nil
}

func (s *SignedUserStore) MembershipData(com zk.Com) (MembershipWitness, MembershipPub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.sigs[elemFingerprint(com)]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return sig, s.vk, nil
}

// EnforceMembershipOf constrains comVar to carry a bulletin signature
// under the bulletin key, returning the membership bit.
func (s *SignedUserStore) EnforceMembershipOf(b *zk.Builder, comVar zk.Var, wit MembershipWitness, pub MembershipPub) (zk.Var, error) {
	sig, ok := wit.(*rr.Signature)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	pk, ok := pub.(*rr.VerKey)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	v := comVar.Value()
	return b.Witness(zk.ElemFromBool(pk.Verify(comBytes(v), sig))), nil
}

func (s *SignedUserStore) MembershipPubElems(pub MembershipPub) []fr.Element {
	return s.membPubElems(pub)
}

// TreeUserStore is the tree-store backend of the user bulletin:
// commitments are Merkle leaves and a membership proof is an
// authentication path against the current root.
type TreeUserStore struct {
	userStoreCore

	tree  *merkleTree
	index map[common.Hash]uint64
}

var _ UserBul = (*TreeUserStore)(nil)

// NewTreeUserStore creates a tree-store user bulletin.
func NewTreeUserStore(db database.Database, h *zk.Hasher, lg log.Logger) *TreeUserStore {
	return &TreeUserStore{
		userStoreCore: newUserStoreCore(db, h, lg),
		tree:          newMerkleTree(h),
		index:         make(map[common.Hash]uint64),
	}
}

// Root returns the current Merkle root, the membership public data for
// proofs against this bulletin.
func (s *TreeUserStore) Root() fr.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.root()
}

func (s *TreeUserStore) HasNeverReceivedNul(nul zk.Nul) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNeverReceivedNul(nul)
}

func (s *TreeUserStore) HasNeverReceivedNulContext(ctx context.Context, nul zk.Nul) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.HasNeverReceivedNul(nul), nil
}

func (s *TreeUserStore) membPubElems(membPub MembershipPub) []fr.Element {
	if membPub == nil {
		return nil
	}
	root, ok := membPub.(fr.Element)
	if !ok {
		return nil
	}
	return []fr.Element{root}
}

func (s *TreeUserStore) verifyLocked(com zk.Com, oldNul zk.Nul, pubArgs, cbComs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool {
	public := InteractionPublicInputs(com, oldNul, pubArgs, cbComs, s.membPubElems(membPub))
	return vk.Verify(public, proof)
}

func (s *TreeUserStore) appendLocked(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof) error {
	if err := s.persist(com, oldNul, cbComs, pubArgs, proof); err != nil {
		return err
	}
	idx, err := s.tree.append(s.h.Hash([]fr.Element{com}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBulletinAppend, err)
	}
	fp := elemFingerprint(com)
	s.com[fp] = struct{}{}
	s.index[fp] = idx
	if !oldNul.IsZero() {
		s.nul[elemFingerprint(oldNul)] = struct{}{}
	}
	s.lg.Debug("user bulletin append", "com", fp.Hex(), "leaf", idx)
	return nil
}

func (s *TreeUserStore) AppendValue(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasNeverReceivedNul(oldNul) {
		return ErrDuplicateNullifier
	}
	if !s.verifyLocked(com, oldNul, pubArgs, cbComs, proof, membPub, vk) {
		return ErrVerifyFailure
	}
	return s.appendLocked(com, oldNul, cbComs, pubArgs, proof)
}

func (s *TreeUserStore) AppendValueContext(ctx context.Context, com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.AppendValue(com, oldNul, cbComs, pubArgs, proof, membPub, vk)
}

func (s *TreeUserStore) VerifyInteraction(com zk.Com, oldNul zk.Nul, pubArgs, cbComs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasNeverReceivedNul(oldNul) {
		return false
	}
	return s.verifyLocked(com, oldNul, pubArgs, cbComs, proof, membPub, vk)
}

func (s *TreeUserStore) VerifyIn(com zk.Com, oldNul zk.Nul, cbComs, pubArgs []fr.Element, proof *zk.Proof, membPub MembershipPub, vk *zk.VerifyingKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.com[elemFingerprint(com)]; !ok {
		return false
	}
	return s.verifyLocked(com, oldNul, pubArgs, cbComs, proof, membPub, vk)
}

func (s *TreeUserStore) JoinBul(com zk.Com, proof *zk.Proof, vk *zk.VerifyingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !vk.Verify([]fr.Element{com}, proof) {
		return ErrVerifyFailure
	}
	return s.appendLocked(com, fr.Element{}, nil, nil, proof)
}

func (s *TreeUserStore) MembershipData(com zk.Com) (MembershipWitness, MembershipPub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[elemFingerprint(com)]
	if !ok {
		return nil, nil, ErrNotFound
	}
	p, err := s.tree.path(idx)
	if err != nil {
		return nil, nil, err
	}
	return p, s.tree.root(), nil
}

// EnforceMembershipOf constrains comVar to authenticate against the root
// in pub through the witnessed path.
func (s *TreeUserStore) EnforceMembershipOf(b *zk.Builder, comVar zk.Var, wit MembershipWitness, pub MembershipPub) (zk.Var, error) {
	p, ok := wit.(*MerklePath)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	root, ok := pub.(fr.Element)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	leaf := b.Hash(s.h, comVar)
	return enforcePath(b, s.h, leaf, p, b.Witness(root)), nil
}

func (s *TreeUserStore) MembershipPubElems(pub MembershipPub) []fr.Element {
	return s.membPubElems(pub)
}
