// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package service implements the provider side of the protocol: holding
// ticket secrets, calling tickets by posting authenticated-encrypted
// arguments, and approving interaction submissions before storing them.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/luxfi/crypto"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/logger/log"

	"github.com/luxfi/zkcallback/bulletin"
	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/interaction"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/wire"
	"github.com/luxfi/zkcallback/zk"
)

var (
	ErrTicketUnknown  = errors.New("no secret stored for ticket")
	ErrApproveFailure = errors.New("interaction approval failed")
)

// Provider is a service instance. The per-ticket secret store is
// append-only; a used secret is retained until an ingest is observed so
// calls can be retried.
type Provider struct {
	mu sync.RWMutex
	lg log.Logger
	db database.Database
	c  *enc.Cipher

	// Clock produces the post time for calls. Overridable in tests.
	Clock func() zk.Time

	secrets map[common.Hash]*interaction.TicketSecret
}

// NewProvider creates a service instance over the given record store and
// cipher.
func NewProvider(db database.Database, c *enc.Cipher, lg log.Logger) *Provider {
	return &Provider{
		lg: lg,
		db: db,
		c:  c,
		Clock: func() zk.Time {
			return zk.ElemFromUint64(uint64(time.Now().Unix()))
		},
		secrets: make(map[common.Hash]*interaction.TicketSecret),
	}
}

func tikFP(tik *rr.VerKey) common.Hash {
	return common.BytesToHash(crypto.Keccak256(tik.Bytes()))
}

// HasNeverReceivedTik reports whether the provider has not stored this
// ticket's secret.
func (p *Provider) HasNeverReceivedTik(tik *rr.VerKey) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.secrets[tikFP(tik)]
	return !ok
}

// Call invokes a ticket: derive the rerandomized signing key, encrypt and
// sign the arguments, and post the record to the callback bulletin. A
// duplicate post is treated as success when the stored record matches
// this call's ciphertext and signature.
func (p *Provider) Call(sec *interaction.TicketSecret, args []fr.Element, cb bulletin.CallbackBul) error {
	sk := sec.SignKey.Rerand(sec.Rand)
	ct, sig := enc.EncryptAndSign(p.c, args, sec.Entry.EncKey, sk)
	now := p.Clock()

	err := cb.AppendValue(sec.Entry.Tik, ct, sig, now)
	if errors.Is(err, bulletin.ErrDuplicateTik) {
		if rec, ok := cb.VerifyIn(sec.Entry.Tik); ok &&
			zk.ElemsEqual(rec.Ct, ct) && rec.Sig != nil &&
			bytes.Equal(rec.Sig.Bytes(), sig.Bytes()) {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}
	p.lg.Info("called ticket", "tik", tikFP(sec.Entry.Tik).Hex())
	return nil
}

// ApproveInteraction verifies a submission: the proof must check out
// against the user bulletin, and every reported ticket must equal the
// rerandomization of its secret's verification key. Only an approved
// interaction is worth storing.
func (p *Provider) ApproveInteraction(
	em *interaction.ExecutedMethod,
	secrets []*interaction.TicketSecret,
	ub bulletin.UserBul,
	membPub bulletin.MembershipPub,
	vk *zk.VerifyingKey,
) bool {
	if len(secrets) != len(em.CbTikList) {
		return false
	}
	if !ub.VerifyInteraction(em.NewObject, em.OldNullifier, em.PubArgs, em.CbComList, em.Proof, membPub, vk) {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, offer := range em.CbTikList {
		derived := secrets[i].SignKey.Rerand(offer.Rand).SkToPk()
		if !derived.Equal(offer.Entry.Tik) {
			return false
		}
		if _, ok := p.secrets[tikFP(offer.Entry.Tik)]; ok {
			// A ticket seen before is a replay.
			return false
		}
	}
	return true
}

// StoreInteraction persists an approved submission and its ticket
// secrets.
func (p *Provider) StoreInteraction(em *interaction.ExecutedMethod, secrets []*interaction.TicketSecret) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var payload []byte
	payload = wire.AppendElem(payload, em.NewObject)
	payload = wire.AppendElem(payload, em.OldNullifier)
	payload = wire.AppendElems(payload, em.CbComList)
	payload = wire.AppendElems(payload, em.PubArgs)
	payload = wire.AppendBytes(payload, em.Proof.Bytes())
	key := common.BytesToHash(crypto.Keccak256(payload))
	if err := p.db.Put(append([]byte("intx/"), key[:]...), payload); err != nil {
		return fmt.Errorf("store interaction: %w", err)
	}

	for _, sec := range secrets {
		p.secrets[tikFP(sec.Entry.Tik)] = sec
	}
	p.lg.Info("stored interaction", "tickets", len(secrets), "key", key.Hex())
	return nil
}

// ApproveAndStore is the composite used on the request path.
func (p *Provider) ApproveAndStore(
	em *interaction.ExecutedMethod,
	secrets []*interaction.TicketSecret,
	ub bulletin.UserBul,
	membPub bulletin.MembershipPub,
	vk *zk.VerifyingKey,
) error {
	if !p.ApproveInteraction(em, secrets, ub, membPub, vk) {
		return ErrApproveFailure
	}
	return p.StoreInteraction(em, secrets)
}

// ObserveIngest releases a ticket secret once the matching entry is known
// to have been scanned; retries are no longer needed after that.
func (p *Provider) ObserveIngest(tik *rr.VerKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.secrets, tikFP(tik))
}

// Secret looks a stored ticket secret up.
func (p *Provider) Secret(tik *rr.VerKey) (*interaction.TicketSecret, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sec, ok := p.secrets[tikFP(tik)]
	if !ok {
		return nil, ErrTicketUnknown
	}
	return sec, nil
}
