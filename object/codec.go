// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package object

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/zkcallback/callback"
	"github.com/luxfi/zkcallback/rr"
	"github.com/luxfi/zkcallback/wire"
)

var ErrBadUserPayload = errors.New("bad user payload")

// DataDecoder rebuilds a user record from its serialized elements.
type DataDecoder[U Data] func(elems []fr.Element) (U, error)

func appendEntry(dst []byte, e *callback.Entry) []byte {
	dst = wire.AppendBytes(dst, e.Tik.Bytes())
	dst = wire.AppendElem(dst, e.EncKey.K)
	dst = wire.AppendElem(dst, e.MethodID)
	dst = wire.AppendElem(dst, e.Expiry)
	return dst
}

func readEntry(src []byte) (callback.Entry, []byte, error) {
	var e callback.Entry
	raw, src, err := wire.ReadBytes(src)
	if err != nil {
		return e, nil, err
	}
	e.Tik = new(rr.VerKey)
	if err := e.Tik.SetBytes(raw); err != nil {
		return e, nil, err
	}
	if e.EncKey.K, src, err = wire.ReadElem(src); err != nil {
		return e, nil, err
	}
	if e.MethodID, src, err = wire.ReadElem(src); err != nil {
		return e, nil, err
	}
	if e.Expiry, src, err = wire.ReadElem(src); err != nil {
		return e, nil, err
	}
	return e, src, nil
}

func appendEntries(dst []byte, es []callback.Entry) []byte {
	dst = wire.AppendUint64(dst, uint64(len(es)))
	for i := range es {
		dst = appendEntry(dst, &es[i])
	}
	return dst
}

func readEntries(src []byte) ([]callback.Entry, []byte, error) {
	n, src, err := wire.ReadUint64(src)
	if err != nil {
		return nil, nil, err
	}
	out := make([]callback.Entry, 0, n)
	for i := uint64(0); i < n; i++ {
		var e callback.Entry
		e, src, err = readEntry(src)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, e)
	}
	return out, src, nil
}

// Marshal encodes the full persisted user state: record, bookkeeping,
// outstanding entries, and the in-progress scan buffer. The encoding is
// canonical, so a reloaded user recomputes the same commitment.
func (u *User[U]) Marshal() []byte {
	var out []byte
	out = wire.AppendElems(out, u.Data.SerializeElements())
	out = wire.AppendElems(out, u.Fields.Serialize())
	out = appendEntries(out, u.Entries)
	out = appendEntries(out, u.Pending)
	out = wire.AppendUint64(out, uint64(u.PendingIndex))
	return out
}

// UnmarshalUser decodes a persisted user, rebuilding the record through
// dec.
func UnmarshalUser[U Data](payload []byte, dec DataDecoder[U]) (*User[U], error) {
	dataElems, rest, err := wire.ReadElems(payload)
	if err != nil {
		return nil, err
	}
	data, err := dec(dataElems)
	if err != nil {
		return nil, err
	}
	fieldElems, rest, err := wire.ReadElems(rest)
	if err != nil {
		return nil, err
	}
	if len(fieldElems) != 6 {
		return nil, ErrBadUserPayload
	}
	u := &User[U]{Data: data}
	u.Fields.Nul = fieldElems[0]
	u.Fields.ComRand = fieldElems[1]
	u.Fields.CallbackHash = fieldElems[2]
	u.Fields.NewInProgressCallbackHash = fieldElems[3]
	u.Fields.OldInProgressCallbackHash = fieldElems[4]
	u.Fields.IsIngestOver = !fieldElems[5].IsZero()

	if u.Entries, rest, err = readEntries(rest); err != nil {
		return nil, err
	}
	if u.Pending, rest, err = readEntries(rest); err != nil {
		return nil, err
	}
	idx, rest, err := wire.ReadUint64(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrBadUserPayload
	}
	u.PendingIndex = int(idx)
	if len(u.Entries) == 0 {
		u.Entries = nil
	}
	if len(u.Pending) == 0 {
		u.Pending = nil
	}
	return u, nil
}
