// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the canonical byte serialization of protocol
// objects: field elements as 32-byte little-endian limb sequences, vectors
// and blobs with 32-bit length prefixes. Encoding is deterministic so
// recomputed commitments are stable across restarts.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

var (
	ErrTruncated   = errors.New("truncated wire payload")
	ErrNonCanonic  = errors.New("non-canonical field element")
	ErrBadPrefix   = errors.New("bad length prefix")
	maxVectorElems = uint32(1 << 20)
)

// AppendElem appends the 32-byte little-endian limb encoding of e.
func AppendElem(dst []byte, e fr.Element) []byte {
	be := e.Bytes()
	var u uint256.Int
	u.SetBytes(be[:])
	var buf [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(buf[8*i:], u[i])
	}
	return append(dst, buf[:]...)
}

// ReadElem decodes one element and returns the remaining bytes.
func ReadElem(src []byte) (fr.Element, []byte, error) {
	var e fr.Element
	if len(src) < 32 {
		return e, nil, ErrTruncated
	}
	var u uint256.Int
	for i := 0; i < 4; i++ {
		u[i] = binary.LittleEndian.Uint64(src[8*i:])
	}
	be := u.Bytes32()
	bi := u.ToBig()
	if bi.Cmp(fr.Modulus()) >= 0 {
		return e, nil, ErrNonCanonic
	}
	e.SetBytes(be[:])
	return e, src[32:], nil
}

// AppendElems appends a length-prefixed element vector.
func AppendElems(dst []byte, es []fr.Element) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(es)))
	for _, e := range es {
		dst = AppendElem(dst, e)
	}
	return dst
}

// ReadElems decodes a length-prefixed element vector.
func ReadElems(src []byte) ([]fr.Element, []byte, error) {
	if len(src) < 4 {
		return nil, nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(src)
	if n > maxVectorElems {
		return nil, nil, ErrBadPrefix
	}
	src = src[4:]
	out := make([]fr.Element, 0, n)
	for i := uint32(0); i < n; i++ {
		var (
			e   fr.Element
			err error
		)
		e, src, err = ReadElem(src)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, e)
	}
	return out, src, nil
}

// AppendBytes appends a length-prefixed byte blob.
func AppendBytes(dst, blob []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(blob)))
	return append(dst, blob...)
}

// ReadBytes decodes a length-prefixed byte blob.
func ReadBytes(src []byte) ([]byte, []byte, error) {
	if len(src) < 4 {
		return nil, nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(src)
	src = src[4:]
	if uint32(len(src)) < n {
		return nil, nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, src[:n])
	return out, src[n:], nil
}

// AppendUint64 appends x little-endian.
func AppendUint64(dst []byte, x uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, x)
}

// ReadUint64 decodes a little-endian uint64.
func ReadUint64(src []byte) (uint64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, ErrTruncated
	}
	return binary.LittleEndian.Uint64(src), src[8:], nil
}
