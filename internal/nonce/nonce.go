// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package nonce binds an ephemeral public key, an expiry epoch and the
// session randomness into the OAuth nonce the identity provider echoes
// back inside the ID token.
package nonce

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/aplane-algo/zklogin/internal/ephemeral"
	"github.com/aplane-algo/zklogin/internal/zkfield"
)

// Length is the length of an encoded nonce (20 bytes, unpadded base64url).
const Length = 27

// nonceBytes is how many low-order bytes of the Poseidon digest are kept.
const nonceBytes = 20

// DefaultMaxEpochOffset is how many epochs past the current one a session stays valid.
const DefaultMaxEpochOffset = 2

var (
	// ErrInvalidPublicKey is returned for public keys that are not 32 bytes.
	ErrInvalidPublicKey = errors.New("invalid ephemeral public key")

	// ErrNonceMismatch is returned when the token nonce differs from the
	// nonce recomputed from the session.
	ErrNonceMismatch = errors.New("nonce mismatch")
)

var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Compute derives the nonce for pub, maxEpoch and r.
//
// The extended public key (flag||pk) is split into its high and low 128-bit
// halves; Poseidon(hi, lo, maxEpoch, r) is truncated to its low 20 bytes and
// encoded as unpadded base64url.
func Compute(pub ed25519.PublicKey, maxEpoch uint64, r ephemeral.Randomness) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(pub))
	}

	extended := new(big.Int).SetBytes(append([]byte{ephemeral.FlagEd25519}, pub...))
	hi, lo := new(big.Int).QuoRem(extended, two128, new(big.Int))

	h, err := zkfield.Hash(hi, lo, new(big.Int).SetUint64(maxEpoch), r.BigInt())
	if err != nil {
		return "", fmt.Errorf("failed to hash nonce inputs: %w", err)
	}

	digest := h.FillBytes(make([]byte, 32))
	return base64.RawURLEncoding.EncodeToString(digest[len(digest)-nonceBytes:]), nil
}

// MaxEpoch returns the last epoch at which a session started at current is valid.
func MaxEpoch(current, offset uint64) uint64 {
	return current + offset
}

// Verify compares the nonce claim from a token with the recomputed nonce.
func Verify(claim, expected string) error {
	if claim != expected {
		return fmt.Errorf("%w: token carries %q, session derives %q", ErrNonceMismatch, claim, expected)
	}
	return nil
}
