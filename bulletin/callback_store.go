// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bulletin

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sort"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/luxfi/crypto"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/logger/log"

	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/wire"
	"github.com/luxfi/zkcallback/zk"
)

// absenceDomain separates non-membership statements from every other
// signed message.
var absenceDomain = []byte("zkcallback/tik-absent/")

func tikFingerprint(tik *rr.VerKey) common.Hash {
	return common.BytesToHash(crypto.Keccak256(tik.Bytes()))
}

// callbackStoreCore carries the state both callback-bulletin backends
// share: record storage, dedup by ticket, and the atomic check-and-append
// discipline.
type callbackStoreCore struct {
	mu      sync.RWMutex
	lg      log.Logger
	db      database.Database
	h       *zk.Hasher
	records map[common.Hash]*CalledRecord
	tiks    map[common.Hash]*rr.VerKey
}

func newCallbackStoreCore(db database.Database, h *zk.Hasher, lg log.Logger) callbackStoreCore {
	return callbackStoreCore{
		lg:      lg,
		db:      db,
		h:       h,
		records: make(map[common.Hash]*CalledRecord),
		tiks:    make(map[common.Hash]*rr.VerKey),
	}
}

func (c *callbackStoreCore) hasNeverReceivedTik(tik *rr.VerKey) bool {
	_, seen := c.records[tikFingerprint(tik)]
	return !seen
}

func (c *callbackStoreCore) checkAndStore(tik *rr.VerKey, ct enc.Ciphertext, sig *rr.Signature, t zk.Time) error {
	if !c.hasNeverReceivedTik(tik) {
		return ErrDuplicateTik
	}
	if !tik.Verify(ct.Bytes(), sig) {
		return ErrBadSignature
	}
	fp := tikFingerprint(tik)

	var payload []byte
	payload = wire.AppendBytes(payload, tik.Bytes())
	payload = wire.AppendElems(payload, ct)
	payload = wire.AppendBytes(payload, sig.Bytes())
	payload = wire.AppendElem(payload, t)
	if err := c.db.Put(append([]byte("ctik/"), fp[:]...), payload); err != nil {
		return fmt.Errorf("%w: %v", ErrBulletinAppend, err)
	}

	c.records[fp] = &CalledRecord{Ct: ct, Sig: sig, Time: t}
	c.tiks[fp] = tik
	c.lg.Debug("callback bulletin append", "tik", fp.Hex())
	return nil
}

func (c *callbackStoreCore) verifyIn(tik *rr.VerKey) (*CalledRecord, bool) {
	rec, ok := c.records[tikFingerprint(tik)]
	return rec, ok
}

// receipt is the field vector a membership statement covers: ticket limbs,
// ciphertext, post time.
func (c *callbackStoreCore) receipt(tik *rr.VerKey, ct enc.Ciphertext, t zk.Time) fr.Element {
	msg := tik.FieldElements()
	msg = append(msg, ct...)
	msg = append(msg, t)
	return c.h.Hash(msg)
}

func receiptInZK(b *zk.Builder, h *zk.Hasher, tikVar, ctVar []zk.Var, timeVar zk.Var) zk.Var {
	msg := make([]zk.Var, 0, len(tikVar)+len(ctVar)+1)
	msg = append(msg, tikVar...)
	msg = append(msg, ctVar...)
	msg = append(msg, timeVar)
	return b.HashElems(h, msg)
}

// SignedCallbackStore backs the callback bulletin with bulletin
// signatures: a membership proof is a signed receipt over the stored
// record, and a non-membership proof is a signed absence statement at the
// bulletin's current epoch. The epoch advances on every append, so stale
// absence statements stop verifying.
type SignedCallbackStore struct {
	callbackStoreCore

	sk    *rr.SignKey
	vk    *rr.VerKey
	epoch uint64
}

// AbsenceWitness is the non-membership witness of the signed backend.
type AbsenceWitness struct {
	Sig   *rr.Signature
	Epoch uint64
}

var _ CallbackBul = (*SignedCallbackStore)(nil)

// NewSignedCallbackStore creates a signed-store callback bulletin with a
// fresh bulletin key pair.
func NewSignedCallbackStore(db database.Database, h *zk.Hasher, lg log.Logger, rng io.Reader) (*SignedCallbackStore, error) {
	sk, vk, err := rr.Gen(rng)
	if err != nil {
		return nil, err
	}
	return &SignedCallbackStore{
		callbackStoreCore: newCallbackStoreCore(db, h, lg),
		sk:                sk,
		vk:                vk,
	}, nil
}

// Key returns the bulletin verification key.
func (s *SignedCallbackStore) Key() *rr.VerKey {
	return s.vk
}

func (s *SignedCallbackStore) HasNeverReceivedTik(tik *rr.VerKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNeverReceivedTik(tik)
}

func (s *SignedCallbackStore) HasNeverReceivedTikContext(ctx context.Context, tik *rr.VerKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.HasNeverReceivedTik(tik), nil
}

func (s *SignedCallbackStore) AppendValue(tik *rr.VerKey, ct enc.Ciphertext, sig *rr.Signature, t zk.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAndStore(tik, ct, sig, t); err != nil {
		return err
	}
	s.epoch++
	return nil
}

func (s *SignedCallbackStore) AppendValueContext(ctx context.Context, tik *rr.VerKey, ct enc.Ciphertext, sig *rr.Signature, t zk.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.AppendValue(tik, ct, sig, t)
}

func (s *SignedCallbackStore) VerifyIn(tik *rr.VerKey) (*CalledRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifyIn(tik)
}

func (s *SignedCallbackStore) VerifyNotIn(tik *rr.VerKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNeverReceivedTik(tik)
}

func (s *SignedCallbackStore) absenceStatement(tik *rr.VerKey, epoch uint64) []byte {
	msg := append([]byte{}, absenceDomain...)
	msg = append(msg, tik.Bytes()...)
	msg = wire.AppendUint64(msg, epoch)
	return msg
}

func (s *SignedCallbackStore) MembershipData(tik *rr.VerKey) (MembershipWitness, MembershipPub, NonMembershipWitness, NonMembershipPub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.verifyIn(tik); ok {
		receipt := s.receipt(tik, rec.Ct, rec.Time)
		rb := receipt.Bytes()
		membWit := s.sk.Sign(rb[:])
		// No honest absence statement exists for a called ticket.
		nmWit := &AbsenceWitness{Sig: nil, Epoch: s.epoch}
		return membWit, s.vk, nmWit, s.epochPub(), nil
	}
	nmWit := &AbsenceWitness{
		Sig:   s.sk.Sign(s.absenceStatement(tik, s.epoch)),
		Epoch: s.epoch,
	}
	return (*rr.Signature)(nil), s.vk, nmWit, s.epochPub(), nil
}

func (s *SignedCallbackStore) epochPub() uint64 {
	return s.epoch
}

// EnforceMembershipOf constrains (tik, ct, time) to carry a bulletin
// receipt signature.
func (s *SignedCallbackStore) EnforceMembershipOf(b *zk.Builder, tikVar, ctVar []zk.Var, timeVar zk.Var, wit MembershipWitness, pub MembershipPub) (zk.Var, error) {
	sig, ok := wit.(*rr.Signature)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	pk, ok := pub.(*rr.VerKey)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	if sig == nil {
		return b.Witness(zk.ElemFromBool(false)), nil
	}
	receipt := receiptInZK(b, s.h, tikVar, ctVar, timeVar)
	receiptVal := receipt.Value()
	rb := receiptVal.Bytes()
	return b.Witness(zk.ElemFromBool(pk.Verify(rb[:], sig))), nil
}

// EnforceNonmembershipOf constrains tik to carry a current-epoch absence
// statement.
func (s *SignedCallbackStore) EnforceNonmembershipOf(b *zk.Builder, tikVar []zk.Var, wit NonMembershipWitness, pub NonMembershipPub) (zk.Var, error) {
	aw, ok := wit.(*AbsenceWitness)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	if aw.Sig == nil {
		return b.Witness(zk.ElemFromBool(false)), nil
	}
	ep, ok := pub.(uint64)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	s.mu.RLock()
	current := s.epoch
	s.mu.RUnlock()
	// Reconstruct the ticket encoding from its wire values to bind the
	// statement to the witnessed ticket.
	tik, err := tikFromWires(tikVar)
	if err != nil {
		return zk.Var{}, err
	}
	ok2 := aw.Epoch == ep && ep == current &&
		s.vk.Verify(s.absenceStatement(tik, aw.Epoch), aw.Sig)
	return b.Witness(zk.ElemFromBool(ok2)), nil
}

func (s *SignedCallbackStore) PubElems(membPub MembershipPub, nonmembPub NonMembershipPub) []fr.Element {
	out := s.vk.FieldElements()
	if ep, ok := nonmembPub.(uint64); ok {
		out = append(out, zk.ElemFromUint64(ep))
	}
	return out
}

// tikFromWires inverts rr.VerKey.FieldElements: 16-byte chunks
// reassembled into the compressed key encoding.
func tikFromWires(tikVar []zk.Var) (*rr.VerKey, error) {
	raw := make([]byte, 0, 16*len(tikVar))
	for _, v := range tikVar {
		b := v.Value().Bytes()
		raw = append(raw, b[16:]...)
	}
	tik := new(rr.VerKey)
	if err := tik.SetBytes(raw); err != nil {
		return nil, err
	}
	return tik, nil
}

// TreeCallbackStore backs the callback bulletin with two Merkle trees: an
// append-order tree of record receipts for membership, and a sorted tree
// of ticket digests whose adjacent-leaf gaps prove non-membership.
type TreeCallbackStore struct {
	callbackStoreCore

	memb   *merkleTree
	membIx map[common.Hash]uint64

	// sorted ticket digests, with 0 and p-1 sentinels at the ends
	sorted []fr.Element
}

// GapWitness is the non-membership witness of the tree backend: the two
// adjacent sorted leaves bracketing the absent digest, with their paths.
type GapWitness struct {
	Lo, Hi         fr.Element
	LoPath, HiPath *MerklePath
}

// TreePub is the public data of the tree backend: both roots.
type TreePub struct {
	MembRoot   fr.Element
	SortedRoot fr.Element
}

var _ CallbackBul = (*TreeCallbackStore)(nil)

// NewTreeCallbackStore creates a tree-store callback bulletin.
func NewTreeCallbackStore(db database.Database, h *zk.Hasher, lg log.Logger) *TreeCallbackStore {
	s := &TreeCallbackStore{
		callbackStoreCore: newCallbackStoreCore(db, h, lg),
		memb:              newMerkleTree(h),
		membIx:            make(map[common.Hash]uint64),
	}
	var max fr.Element
	max.SetBigInt(new(big.Int).Sub(fr.Modulus(), big.NewInt(1)))
	s.sorted = []fr.Element{{}, max}
	return s
}

func (s *TreeCallbackStore) tikDigest(tik *rr.VerKey) fr.Element {
	return s.h.Hash(tik.FieldElements())
}

func (s *TreeCallbackStore) HasNeverReceivedTik(tik *rr.VerKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNeverReceivedTik(tik)
}

func (s *TreeCallbackStore) HasNeverReceivedTikContext(ctx context.Context, tik *rr.VerKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.HasNeverReceivedTik(tik), nil
}

func (s *TreeCallbackStore) AppendValue(tik *rr.VerKey, ct enc.Ciphertext, sig *rr.Signature, t zk.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAndStore(tik, ct, sig, t); err != nil {
		return err
	}
	fp := tikFingerprint(tik)
	leaf := s.receipt(tik, ct, t)
	idx, err := s.memb.append(leaf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBulletinAppend, err)
	}
	s.membIx[fp] = idx

	d := s.tikDigest(tik)
	pos := sort.Search(len(s.sorted), func(i int) bool { return s.sorted[i].Cmp(&d) >= 0 })
	s.sorted = append(s.sorted, fr.Element{})
	copy(s.sorted[pos+1:], s.sorted[pos:])
	s.sorted[pos] = d
	return nil
}

func (s *TreeCallbackStore) AppendValueContext(ctx context.Context, tik *rr.VerKey, ct enc.Ciphertext, sig *rr.Signature, t zk.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.AppendValue(tik, ct, sig, t)
}

func (s *TreeCallbackStore) VerifyIn(tik *rr.VerKey) (*CalledRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifyIn(tik)
}

func (s *TreeCallbackStore) VerifyNotIn(tik *rr.VerKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNeverReceivedTik(tik)
}

// sortedTree materializes the Merkle tree over the current sorted digests.
func (s *TreeCallbackStore) sortedTree() *merkleTree {
	t := newMerkleTree(s.h)
	for _, d := range s.sorted {
		// Tree capacity dwarfs any realistic record count.
		_, _ = t.append(d)
	}
	return t
}

func (s *TreeCallbackStore) MembershipData(tik *rr.VerKey) (MembershipWitness, MembershipPub, NonMembershipWitness, NonMembershipPub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub := TreePub{MembRoot: s.memb.root(), SortedRoot: s.sortedTree().root()}

	if _, ok := s.verifyIn(tik); ok {
		idx := s.membIx[tikFingerprint(tik)]
		p, err := s.memb.path(idx)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return p, pub, (*GapWitness)(nil), pub, nil
	}

	d := s.tikDigest(tik)
	pos := sort.Search(len(s.sorted), func(i int) bool { return s.sorted[i].Cmp(&d) >= 0 })
	// pos is the first element >= d; the gap is (pos-1, pos).
	st := s.sortedTree()
	lo, err := st.path(uint64(pos - 1))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	hi, err := st.path(uint64(pos))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	gw := &GapWitness{Lo: s.sorted[pos-1], Hi: s.sorted[pos], LoPath: lo, HiPath: hi}
	return (*MerklePath)(nil), pub, gw, pub, nil
}

// EnforceMembershipOf constrains the record receipt to authenticate
// against the membership root.
func (s *TreeCallbackStore) EnforceMembershipOf(b *zk.Builder, tikVar, ctVar []zk.Var, timeVar zk.Var, wit MembershipWitness, pub MembershipPub) (zk.Var, error) {
	p, ok := wit.(*MerklePath)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	tp, ok := pub.(TreePub)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	if p == nil {
		return b.Witness(zk.ElemFromBool(false)), nil
	}
	leaf := receiptInZK(b, s.h, tikVar, ctVar, timeVar)
	return enforcePath(b, s.h, leaf, p, b.Witness(tp.MembRoot)), nil
}

// EnforceNonmembershipOf constrains the ticket digest to fall strictly
// inside an adjacent-leaf gap of the sorted tree.
func (s *TreeCallbackStore) EnforceNonmembershipOf(b *zk.Builder, tikVar []zk.Var, wit NonMembershipWitness, pub NonMembershipPub) (zk.Var, error) {
	gw, ok := wit.(*GapWitness)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	tp, ok := pub.(TreePub)
	if !ok {
		return zk.Var{}, ErrBadWitnessType
	}
	if gw == nil {
		return b.Witness(zk.ElemFromBool(false)), nil
	}
	root := b.Witness(tp.SortedRoot)
	lo := b.Witness(gw.Lo)
	hi := b.Witness(gw.Hi)
	d := b.HashElems(s.h, tikVar)

	okLo := enforcePath(b, s.h, lo, gw.LoPath, root)
	okHi := enforcePath(b, s.h, hi, gw.HiPath, root)
	adjacent := b.Witness(zk.ElemFromBool(gw.HiPath.Index == gw.LoPath.Index+1))
	b.AssertBool(adjacent)
	inGap := b.And(
		b.And(b.IsLeq(lo, d), b.Not(b.IsEqual(lo, d))),
		b.And(b.IsLeq(d, hi), b.Not(b.IsEqual(d, hi))),
	)
	return b.And(b.And(okLo, okHi), b.And(adjacent, inGap)), nil
}

func (s *TreeCallbackStore) PubElems(membPub MembershipPub, nonmembPub NonMembershipPub) []fr.Element {
	tp, ok := membPub.(TreePub)
	if !ok {
		return nil
	}
	return []fr.Element{tp.MembRoot, tp.SortedRoot}
}
