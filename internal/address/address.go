// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package address derives zkLogin addresses from token claims and a salt.
package address

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/aplane-algo/zklogin/internal/idtoken"
	"github.com/aplane-algo/zklogin/internal/zkfield"
)

// FlagZkLogin is the signature-scheme flag for zkLogin authenticators.
const FlagZkLogin byte = 0x05

// KeyClaimName is the claim that identifies the user.
const KeyClaimName = "sub"

// Padded widths the circuit hashes each string claim at.
const (
	maxKeyClaimNameLength  = 32
	maxKeyClaimValueLength = 115
	maxAudLength           = 145
)

// googleIssuer is the bare issuer some Google tokens carry.
const googleIssuer = "accounts.google.com"

// ErrInvalidSeed is returned for seeds that do not fit in 32 bytes.
var ErrInvalidSeed = errors.New("invalid address seed")

// Seed computes Poseidon(H(name), H(value), H(aud), Poseidon(salt)).
func Seed(salt *big.Int, name, value, aud string) (*big.Int, error) {
	if salt == nil || salt.Sign() < 0 || salt.Cmp(zkfield.Modulus()) >= 0 {
		return nil, fmt.Errorf("%w: salt outside the scalar field", ErrInvalidSeed)
	}

	hName, err := zkfield.HashASCIIStrToField(name, maxKeyClaimNameLength)
	if err != nil {
		return nil, fmt.Errorf("claim name: %w", err)
	}
	hValue, err := zkfield.HashASCIIStrToField(value, maxKeyClaimValueLength)
	if err != nil {
		return nil, fmt.Errorf("claim value: %w", err)
	}
	hAud, err := zkfield.HashASCIIStrToField(aud, maxAudLength)
	if err != nil {
		return nil, fmt.Errorf("aud: %w", err)
	}
	hSalt, err := zkfield.Hash(salt)
	if err != nil {
		return nil, err
	}
	return zkfield.Hash(hName, hValue, hAud, hSalt)
}

// NormalizeIssuer maps the bare Google issuer to its https form.
func NormalizeIssuer(iss string) string {
	if iss == googleIssuer {
		return "https://" + googleIssuer
	}
	return iss
}

// FromSeed hashes flag || len(iss) || iss || seed (32 bytes BE) with
// BLAKE2b-256 and returns it as 0x-prefixed hex.
func FromSeed(seed *big.Int, iss string) (string, error) {
	if seed == nil || seed.Sign() < 0 || seed.BitLen() > 256 {
		return "", ErrInvalidSeed
	}
	iss = NormalizeIssuer(iss)
	if len(iss) == 0 || len(iss) > 255 {
		return "", fmt.Errorf("issuer length %d out of range", len(iss))
	}

	buf := make([]byte, 0, 2+len(iss)+32)
	buf = append(buf, FlagZkLogin, byte(len(iss)))
	buf = append(buf, iss...)
	buf = append(buf, seed.FillBytes(make([]byte, 32))...)

	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:]), nil
}

// Derive returns the address and address seed for claims and salt.
func Derive(claims *idtoken.Claims, salt *big.Int) (string, *big.Int, error) {
	if err := claims.RequireAddressClaims(); err != nil {
		return "", nil, err
	}
	seed, err := Seed(salt, KeyClaimName, claims.Subject, claims.Audience)
	if err != nil {
		return "", nil, err
	}
	addr, err := FromSeed(seed, claims.Issuer)
	if err != nil {
		return "", nil, err
	}
	return addr, seed, nil
}

// FromToken decodes token and derives its address under salt.
func FromToken(token string, salt *big.Int) (string, error) {
	claims, err := idtoken.Decode(token)
	if err != nil {
		return "", err
	}
	addr, _, err := Derive(claims, salt)
	return addr, err
}

// FromEd25519 returns the ledger address of a plain Ed25519 public key.
func FromEd25519(pub []byte) string {
	sum := blake2b.Sum256(append([]byte{0x00}, pub...))
	return "0x" + hex.EncodeToString(sum[:])
}

// Valid reports whether s looks like a ledger address.
func Valid(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
