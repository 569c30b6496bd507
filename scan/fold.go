// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scan

import (
	"io"

	"github.com/luxfi/zkcallback/bulletin"
	"github.com/luxfi/zkcallback/callback"
	"github.com/luxfi/zkcallback/interaction"
	"github.com/luxfi/zkcallback/object"
	"github.com/luxfi/zkcallback/zk"
)

// ScanBatch is the folded flavor of ScanTicket: up to batchSize pending
// entries are ingested under a single proof and a single nullifier
// consumption. The external contract is otherwise identical to the
// single mode; a batch smaller than the outstanding chain leaves the
// user mid-ingest with the flag down.
func (s *Scanner[U]) ScanBatch(
	user *object.User[U],
	batchSize int,
	ub bulletin.UserBul,
	cb bulletin.CallbackBul,
	pk *zk.ProvingKey,
	now zk.Time,
	rng io.Reader,
) (*interaction.ExecutedMethod, error) {
	if user.Fields.IsIngestOver && len(user.Entries) == 0 {
		return s.scanEmpty(user, ub, pk, now, rng)
	}
	if user.Fields.IsIngestOver {
		user.Pending = append([]callback.Entry(nil), user.Entries...)
		user.PendingIndex = 0
	}
	if user.PendingIndex >= len(user.Pending) {
		return nil, ErrNoPending
	}
	end := user.PendingIndex + batchSize
	if end > len(user.Pending) {
		end = len(user.Pending)
	}
	entries := append([]callback.Entry(nil), user.Pending[user.PendingIndex:end]...)
	return s.scanEntries(user, entries, ub, cb, pk, now, rng)
}
