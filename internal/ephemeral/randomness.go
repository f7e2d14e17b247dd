// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package ephemeral

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// RandomnessSize is the number of random bytes bound into the nonce.
const RandomnessSize = 8

// ErrInvalidRandomness is returned when persisted randomness does not decode to 8 bytes.
var ErrInvalidRandomness = errors.New("invalid randomness encoding")

// Randomness is the per-session JWT randomness.
type Randomness [RandomnessSize]byte

// BigInt returns the randomness as an unsigned big-endian integer.
func (r Randomness) BigInt() *big.Int {
	return new(big.Int).SetBytes(r[:])
}

// Base64 returns the standard base64 encoding of the 8 bytes.
func (r Randomness) Base64() string {
	return base64.StdEncoding.EncodeToString(r[:])
}

// String returns the decimal form.
func (r Randomness) String() string {
	return r.BigInt().String()
}

// RandomnessFromBigInt left-pads v to 8 bytes.
func RandomnessFromBigInt(v *big.Int) (Randomness, error) {
	var r Randomness
	if v == nil || v.Sign() < 0 || v.BitLen() > RandomnessSize*8 {
		return r, fmt.Errorf("%w: value out of range", ErrInvalidRandomness)
	}
	v.FillBytes(r[:])
	return r, nil
}

// ParseRandomness accepts the base64 form written by this package and the
// legacy decimal form. Padded base64 of 8 bytes always ends in '=', which
// never appears in a decimal string, so the two cannot be confused.
func ParseRandomness(s string) (Randomness, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Randomness{}, fmt.Errorf("%w: empty", ErrInvalidRandomness)
	}

	if strings.HasSuffix(s, "=") {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Randomness{}, fmt.Errorf("%w: %v", ErrInvalidRandomness, err)
		}
		if len(raw) != RandomnessSize {
			return Randomness{}, fmt.Errorf("%w: decoded %d bytes", ErrInvalidRandomness, len(raw))
		}
		var r Randomness
		copy(r[:], raw)
		return r, nil
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Randomness{}, fmt.Errorf("%w: %q is neither base64 nor decimal", ErrInvalidRandomness, s)
	}
	return RandomnessFromBigInt(v)
}
