// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package signature produces the ephemeral user signature, wraps it with a
// proof into a zkLogin authenticator, and merges sponsor signatures.
package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"

	"github.com/aplane-algo/zklogin/internal/address"
	"github.com/aplane-algo/zklogin/internal/bcs"
	"github.com/aplane-algo/zklogin/internal/ephemeral"
	"github.com/aplane-algo/zklogin/internal/prover"
)

// ed25519SignatureLen is flag || signature || public key.
const ed25519SignatureLen = 1 + ed25519.SignatureSize + ed25519.PublicKeySize

// intentTransactionData scopes a signature to transaction data on version 0
// of the ledger app.
var intentTransactionData = []byte{0, 0, 0}

var (
	// ErrSignatureMismatch is returned when two signatures do not cover
	// the same transaction bytes.
	ErrSignatureMismatch = errors.New("signatures cover different transaction bytes")

	// ErrInvalidSignature is returned for signatures that cannot be decoded.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrIncompleteProof is returned when proof inputs or the address seed are missing.
	ErrIncompleteProof = errors.New("incomplete proof inputs")
)

// Digest is the BLAKE2b-256 hash of intent || txBytes that every
// signature on txBytes commits to.
func Digest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, len(intentTransactionData)+len(txBytes))
	msg = append(msg, intentTransactionData...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}

// UserSignature is the ephemeral key's signature over a transaction.
type UserSignature struct {
	// Serialized is flag || signature || public key
	Serialized []byte
	Digest     [32]byte
}

// SignTransactionBytes signs the intent digest of txBytes with the ephemeral key.
func SignTransactionBytes(key *ephemeral.Keypair, txBytes []byte) UserSignature {
	digest := Digest(txBytes)
	sig := key.Sign(digest[:])

	out := make([]byte, 0, ed25519SignatureLen)
	out = append(out, ephemeral.FlagEd25519)
	out = append(out, sig...)
	out = append(out, key.PublicKey()...)
	return UserSignature{Serialized: out, Digest: digest}
}

// Composite is a serialized zkLogin authenticator ready for submission.
type Composite struct {
	// Serialized is base64(flag || BCS(ZkLoginSignature))
	Serialized string
	MaxEpoch   uint64
	Digest     [32]byte
}

// Compose wraps the user signature with the proof, address seed and max epoch.
func Compose(inputs *prover.Inputs, addressSeed *big.Int, maxEpoch uint64, user UserSignature) (Composite, error) {
	if inputs == nil || addressSeed == nil {
		return Composite{}, ErrIncompleteProof
	}
	if len(user.Serialized) != ed25519SignatureLen || user.Serialized[0] != ephemeral.FlagEd25519 {
		return Composite{}, fmt.Errorf("%w: user signature must be %d bytes", ErrInvalidSignature, ed25519SignatureLen)
	}

	var e bcs.Encoder
	e.U8(address.FlagZkLogin)

	// inputs
	e.Strings(inputs.ProofPoints.A)
	e.Len(len(inputs.ProofPoints.B))
	for _, row := range inputs.ProofPoints.B {
		e.Strings(row)
	}
	e.Strings(inputs.ProofPoints.C)
	e.String(inputs.IssBase64Details.Value)
	e.U8(inputs.IssBase64Details.IndexMod4)
	e.String(inputs.HeaderBase64)
	e.String(addressSeed.String())

	e.U64(maxEpoch)
	e.Bytes(user.Serialized)

	return Composite{
		Serialized: base64.StdEncoding.EncodeToString(e.Result()),
		MaxEpoch:   maxEpoch,
		Digest:     user.Digest,
	}, nil
}

// SponsorSignature is a gas sponsor's signature together with the digest
// of the bytes the sponsor was sent.
type SponsorSignature struct {
	Serialized string
	Digest     [32]byte
}

// Submission is the ordered signature list sent to the ledger.
type Submission struct {
	Signatures []string
}

// Single returns a submission carrying only the user's authenticator.
func Single(c Composite) Submission {
	return Submission{Signatures: []string{c.Serialized}}
}

// MergeSponsor returns [user, sponsor] after checking both sign the same
// bytes. Ed25519 sponsor signatures are additionally verified against the
// digest; other schemes are checked by digest only.
func MergeSponsor(c Composite, s SponsorSignature) (Submission, error) {
	if c.Serialized == "" || s.Serialized == "" {
		return Submission{}, fmt.Errorf("%w: empty signature", ErrInvalidSignature)
	}
	if c.Digest != s.Digest {
		return Submission{}, ErrSignatureMismatch
	}

	raw, err := base64.StdEncoding.DecodeString(s.Serialized)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: sponsor signature is not base64: %v", ErrInvalidSignature, err)
	}
	if len(raw) > 0 && raw[0] == ephemeral.FlagEd25519 {
		if err := verifyEd25519(raw, c.Digest); err != nil {
			return Submission{}, err
		}
	}

	return Submission{Signatures: []string{c.Serialized, s.Serialized}}, nil
}

func verifyEd25519(raw []byte, digest [32]byte) error {
	if len(raw) != ed25519SignatureLen {
		return fmt.Errorf("%w: ed25519 signature is %d bytes", ErrInvalidSignature, len(raw))
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := raw[1+ed25519.SignatureSize:]
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return fmt.Errorf("%w: sponsor public key: %v", ErrInvalidSignature, err)
	}
	if !ed25519.Verify(pub, digest[:], sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// Signer returns the address of the key behind an Ed25519 serialized signature.
func Signer(serialized string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil || len(raw) != ed25519SignatureLen || raw[0] != ephemeral.FlagEd25519 {
		return "", ErrInvalidSignature
	}
	return address.FromEd25519(raw[1+ed25519.SignatureSize:]), nil
}
