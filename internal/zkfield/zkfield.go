// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package zkfield holds the BN254 scalar-field arithmetic and Poseidon
// hashing that zkLogin nonces and address seeds are built from.
package zkfield

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// packWidth is the number of bytes packed into one field element when
// hashing strings (248 bits, always below the modulus).
const packWidth = 31

// maxPoseidonInputs is the widest single Poseidon instance supported.
const maxPoseidonInputs = 16

var (
	// ErrNoInputs is returned when Hash is called without inputs.
	ErrNoInputs = errors.New("poseidon: no inputs")

	// ErrTooManyInputs is returned for more than 32 inputs.
	ErrTooManyInputs = errors.New("poseidon: too many inputs")

	// ErrStringTooLong is returned when a string exceeds its padded width.
	ErrStringTooLong = errors.New("string exceeds maximum length")

	// ErrNotASCII is returned when a claim value contains non-ASCII bytes.
	ErrNotASCII = errors.New("string is not ASCII")
)

// Modulus returns the BN254 scalar-field prime r.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Reduce returns v mod r as a new big.Int.
func Reduce(v *big.Int) *big.Int {
	var e fr.Element
	e.SetBigInt(v)
	return e.BigInt(new(big.Int))
}

// ReduceBytes interprets b as a big-endian unsigned integer and reduces it mod r.
func ReduceBytes(b []byte) *big.Int {
	return Reduce(new(big.Int).SetBytes(b))
}

// Hash computes the circomlib-compatible Poseidon hash of the inputs.
// Up to 16 inputs hash directly; 17 to 32 inputs are split in two halves
// whose digests are hashed together.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	switch n := len(inputs); {
	case n == 0:
		return nil, ErrNoInputs
	case n <= maxPoseidonInputs:
		return poseidon.Hash(inputs)
	case n <= 2*maxPoseidonInputs:
		left, err := poseidon.Hash(inputs[:maxPoseidonInputs])
		if err != nil {
			return nil, err
		}
		right, err := poseidon.Hash(inputs[maxPoseidonInputs:])
		if err != nil {
			return nil, err
		}
		return poseidon.Hash([]*big.Int{left, right})
	default:
		return nil, fmt.Errorf("%w: %d", ErrTooManyInputs, n)
	}
}

// HashASCIIStrToField pads s with NUL bytes to maxSize, packs it into
// 31-byte big-endian chunks and Poseidon-hashes the chunks.
func HashASCIIStrToField(s string, maxSize int) (*big.Int, error) {
	chunks, err := packASCII(s, maxSize)
	if err != nil {
		return nil, err
	}
	return Hash(chunks...)
}

// packASCII splits the padded string into chunks aligned to its end, so
// the short chunk (when maxSize is not a multiple of 31) comes first.
func packASCII(s string, maxSize int) ([]*big.Int, error) {
	if len(s) > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrStringTooLong, len(s), maxSize)
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return nil, ErrNotASCII
		}
	}

	padded := make([]byte, maxSize)
	copy(padded, s)

	n := (maxSize + packWidth - 1) / packWidth
	chunks := make([]*big.Int, n)
	for i, end := n-1, maxSize; i >= 0; i, end = i-1, end-packWidth {
		start := max(end-packWidth, 0)
		chunks[i] = new(big.Int).SetBytes(padded[start:end])
	}
	return chunks, nil
}
