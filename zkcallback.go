// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package zkcallback wires the zero-knowledge callback core together: it
// validates the deployment configuration and assembles the hasher, the
// cipher, and the bulletin backends the engines run against.
package zkcallback

import (
	"errors"
	"fmt"
	"io"

	"github.com/luxfi/database"
	log "github.com/luxfi/logger/log"

	"github.com/luxfi/zkcallback/bulletin"
	"github.com/luxfi/zkcallback/enc"
	"github.com/luxfi/zkcallback/zk"
)

// MembershipBackend selects the user-bulletin membership proof.
type MembershipBackend string

// NonmembershipBackend selects the callback-bulletin non-membership
// proof.
type NonmembershipBackend string

// ScanMode selects how many callbacks one scan proof covers.
type ScanMode string

const (
	// MembershipSigned has the bulletin sign each accepted commitment.
	MembershipSigned MembershipBackend = "signed"
	// MembershipTree authenticates commitments by Merkle path.
	MembershipTree MembershipBackend = "tree"

	// NonmembershipSignedRange has the bulletin sign absence statements.
	NonmembershipSignedRange NonmembershipBackend = "signed_range"
	// NonmembershipTreeGap proves absence by sorted-tree gaps.
	NonmembershipTreeGap NonmembershipBackend = "tree_gap"

	// ScanSingle proves one callback per scan proof.
	ScanSingle ScanMode = "single"
	// ScanFolded proves BatchSize callbacks per scan proof.
	ScanFolded ScanMode = "folded_k"
)

var (
	ErrBadHashRate      = errors.New("hashRate must be in [2,8]")
	ErrBadBackend       = errors.New("unknown backend")
	ErrBadScanMode      = errors.New("unknown scan mode")
	ErrBadBatchSize     = errors.New("batchSize must be positive in folded mode")
	ErrNilDatabase      = errors.New("nil database")
	ErrNilLogger        = errors.New("nil logger")
	ErrNilRandomness    = errors.New("nil randomness source")
	ErrAssemblyFailed   = errors.New("system assembly failed")
	ErrConfigValidation = errors.New("config validation failed")
)

// Config enumerates the recognized deployment options.
type Config struct {
	// HashRate is the arity of the field hash sponge.
	HashRate int `json:"hashRate"`
	// MembershipBackend backs the user bulletin.
	MembershipBackend MembershipBackend `json:"membershipBackend"`
	// NonmembershipBackend backs callback non-membership.
	NonmembershipBackend NonmembershipBackend `json:"nonmembershipBackend"`
	// ScanMode is single or folded.
	ScanMode ScanMode `json:"scanMode"`
	// BatchSize applies in folded mode.
	BatchSize int `json:"batchSize,omitempty"`
}

// DefaultConfig is the smallest sound deployment.
func DefaultConfig() Config {
	return Config{
		HashRate:             4,
		MembershipBackend:    MembershipSigned,
		NonmembershipBackend: NonmembershipSignedRange,
		ScanMode:             ScanSingle,
	}
}

// Validate rejects unknown or inconsistent options.
func (c *Config) Validate() error {
	if c.HashRate < 2 || c.HashRate > 8 {
		return fmt.Errorf("%w: %w: %d", ErrConfigValidation, ErrBadHashRate, c.HashRate)
	}
	switch c.MembershipBackend {
	case MembershipSigned, MembershipTree:
	default:
		return fmt.Errorf("%w: %w: membership %q", ErrConfigValidation, ErrBadBackend, c.MembershipBackend)
	}
	switch c.NonmembershipBackend {
	case NonmembershipSignedRange, NonmembershipTreeGap:
	default:
		return fmt.Errorf("%w: %w: nonmembership %q", ErrConfigValidation, ErrBadBackend, c.NonmembershipBackend)
	}
	switch c.ScanMode {
	case ScanSingle:
	case ScanFolded:
		if c.BatchSize <= 0 {
			return fmt.Errorf("%w: %w", ErrConfigValidation, ErrBadBatchSize)
		}
	default:
		return fmt.Errorf("%w: %w: %q", ErrConfigValidation, ErrBadScanMode, c.ScanMode)
	}
	return nil
}

// System is an assembled deployment: one hasher and cipher shared by
// every engine, plus the configured bulletin backends.
type System struct {
	Config Config
	Hasher *zk.Hasher
	Cipher *enc.Cipher

	UserBul     bulletin.UserBul
	CallbackBul bulletin.CallbackBul
}

// NewSystem assembles a deployment from a validated config. The database
// backs both bulletins; rng seeds the bulletin signing keys of the signed
// backends.
func NewSystem(cfg Config, db database.Database, lg log.Logger, rng io.Reader) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, ErrNilDatabase)
	}
	if lg == nil {
		return nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, ErrNilLogger)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, ErrNilRandomness)
	}

	h, err := zk.NewHasher(cfg.HashRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}

	sys := &System{
		Config: cfg,
		Hasher: h,
		Cipher: enc.NewCipher(h),
	}

	switch cfg.MembershipBackend {
	case MembershipSigned:
		ub, err := bulletin.NewSignedUserStore(db, h, lg, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
		}
		sys.UserBul = ub
	case MembershipTree:
		sys.UserBul = bulletin.NewTreeUserStore(db, h, lg)
	}

	switch cfg.NonmembershipBackend {
	case NonmembershipSignedRange:
		cbul, err := bulletin.NewSignedCallbackStore(db, h, lg, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
		}
		sys.CallbackBul = cbul
	case NonmembershipTreeGap:
		sys.CallbackBul = bulletin.NewTreeCallbackStore(db, h, lg)
	}

	return sys, nil
}
