// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package session persists the ephemeral key material of a zkLogin session.
//
// A session is written before the user is redirected to the identity
// provider and completed with the ID token on return. Only the private key,
// randomness and max epoch are required for a session to load; the token
// is optional until the callback has been processed.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aplane-algo/zklogin/internal/ephemeral"
)

// Common session errors
var (
	// ErrNoSession indicates nothing is persisted, or the persisted record is unusable
	ErrNoSession = errors.New("no session")

	// ErrIncomplete indicates a record is missing its key, randomness or max epoch
	ErrIncomplete = errors.New("incomplete session")

	// ErrLocked indicates the session file is encrypted and no passphrase was supplied
	ErrLocked = errors.New("session is encrypted; passphrase required")
)

// Session is the persisted state of one login.
type Session struct {
	// ID identifies the session across log lines and the proxy audit log
	ID string `json:"id"`

	// PrivateKey is the base64 ephemeral Ed25519 seed
	PrivateKey string `json:"ephemeral_private_key"`

	// Randomness is the base64 8-byte JWT randomness
	Randomness string `json:"randomness"`

	// MaxEpoch is the last epoch at which signatures from this session are valid
	MaxEpoch uint64 `json:"max_epoch"`

	// OAuthState is the anti-CSRF state sent with the authorization request
	OAuthState string `json:"oauth_state,omitempty"`

	// IDToken is set once the provider callback has been processed
	IDToken string `json:"id_token,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the key, randomness and max epoch are present and decodable.
func (s *Session) Validate() error {
	switch {
	case s == nil:
		return ErrIncomplete
	case s.PrivateKey == "":
		return fmt.Errorf("%w: missing ephemeral key", ErrIncomplete)
	case s.Randomness == "":
		return fmt.Errorf("%w: missing randomness", ErrIncomplete)
	case s.MaxEpoch == 0:
		return fmt.Errorf("%w: missing max epoch", ErrIncomplete)
	}
	if _, err := ephemeral.ParseRandomness(s.Randomness); err != nil {
		return fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	return nil
}

// Authenticated reports whether the callback token has been stored.
func (s *Session) Authenticated() bool {
	return s.IDToken != ""
}

// Material restores the ephemeral key and randomness.
func (s *Session) Material() (*ephemeral.Material, error) {
	r, err := ephemeral.ParseRandomness(s.Randomness)
	if err != nil {
		return nil, err
	}
	key, err := ephemeral.Restore(s.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &ephemeral.Material{Key: key, Randomness: r}, nil
}

// Clone returns a copy safe to mutate.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// Store abstracts where sessions live.
type Store interface {
	// Save validates and persists s, replacing any existing record.
	Save(ctx context.Context, s *Session) error

	// Load returns the stored session, or ErrNoSession.
	Load(ctx context.Context) (*Session, error)

	// Clear removes the stored session. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
