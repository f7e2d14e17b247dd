// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package ephemeral generates and restores the short-lived Ed25519 key and
// JWT randomness that a zkLogin session is bound to.
//
// The key never leaves the device. The randomness is 8 bytes and is fed to
// the nonce hash as an unsigned big-endian integer and to the prover as
// base64, so both encodings are defined on Randomness.
package ephemeral

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"filippo.io/edwards25519"

	"github.com/aplane-algo/zklogin/internal/crypto"
)

// FlagEd25519 is the signature-scheme flag prepended to Ed25519 public keys
// and signatures on the ledger.
const FlagEd25519 byte = 0x00

var (
	// ErrEntropyFailure is returned when the random source cannot be read.
	ErrEntropyFailure = errors.New("entropy source failure")

	// ErrInvalidKey is returned when persisted key material does not decode
	// to a valid Ed25519 key.
	ErrInvalidKey = errors.New("invalid ephemeral key")
)

// Keypair is an ephemeral Ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// Material is everything a fresh session needs before the redirect.
type Material struct {
	Key        *Keypair
	Randomness Randomness
}

// Generator draws key seeds and randomness from an entropy source.
type Generator struct {
	entropy io.Reader
}

// NewGenerator returns a Generator reading from entropy. A nil reader uses crypto/rand.
func NewGenerator(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{entropy: entropy}
}

// BeginSession generates a fresh key and randomness from crypto/rand.
func BeginSession() (*Material, error) {
	return NewGenerator(nil).BeginSession()
}

// BeginSession generates a fresh key followed by 8 bytes of randomness.
func (g *Generator) BeginSession() (*Material, error) {
	seed := make([]byte, ed25519.SeedSize)
	defer crypto.ZeroBytes(seed)
	if _, err := io.ReadFull(g.entropy, seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}

	var r Randomness
	if _, err := io.ReadFull(g.entropy, r[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}

	return &Material{
		Key:        &Keypair{priv: ed25519.NewKeyFromSeed(seed)},
		Randomness: r,
	}, nil
}

// Restore decodes a key persisted with Keypair.Encode. The legacy 64-byte
// form (seed||public) is accepted when its public half matches the seed.
func Restore(encoded string) (*Keypair, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer crypto.ZeroBytes(raw)

	switch len(raw) {
	case ed25519.SeedSize:
	case ed25519.PrivateKeySize:
		derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !ed25519.PublicKey(raw[ed25519.SeedSize:]).Equal(derived.Public()) {
			crypto.ZeroBytes(derived)
			return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKey)
		}
		crypto.ZeroBytes(derived)
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidKey, len(raw))
	}

	kp := &Keypair{priv: ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])}
	if _, err := new(edwards25519.Point).SetBytes(kp.PublicKey()); err != nil {
		kp.Zero()
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return kp, nil
}

// Encode returns the base64 seed for persistence.
func (k *Keypair) Encode() string {
	return base64.StdEncoding.EncodeToString(k.priv.Seed())
}

// PublicKey returns the 32-byte Ed25519 public key.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// SuiPublicKey returns flag||public key, the 33-byte form the prover
// calls the extended ephemeral public key.
func (k *Keypair) SuiPublicKey() []byte {
	return append([]byte{FlagEd25519}, k.PublicKey()...)
}

// Sign signs msg with the ephemeral key.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Zero wipes the private key. The Keypair must not be used afterwards.
func (k *Keypair) Zero() {
	crypto.ZeroBytes(k.priv)
}
