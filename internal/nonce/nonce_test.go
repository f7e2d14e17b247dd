// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package nonce

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aplane-algo/zklogin/internal/ephemeral"
)

func newKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	m, err := ephemeral.BeginSession()
	require.NoError(t, err)
	return m.Key.PublicKey()
}

func TestComputeDeterministic(t *testing.T) {
	pub := newKey(t)
	r := ephemeral.Randomness{1, 2, 3, 4, 5, 6, 7, 8}

	n1, err := Compute(pub, 12, r)
	require.NoError(t, err)
	n2, err := Compute(pub, 12, r)
	require.NoError(t, err)
	require.Equal(t, n1, n2)
}

func TestComputeFormat(t *testing.T) {
	n, err := Compute(newKey(t), 12, ephemeral.Randomness{0, 0, 0, 0, 0, 0, 0, 1})
	require.NoError(t, err)
	require.Len(t, n, Length)

	raw, err := base64.RawURLEncoding.DecodeString(n)
	require.NoError(t, err)
	require.Len(t, raw, nonceBytes)
}

func TestComputeBindsEveryInput(t *testing.T) {
	pub := newKey(t)
	r := ephemeral.Randomness{1, 2, 3, 4, 5, 6, 7, 8}
	base, err := Compute(pub, 12, r)
	require.NoError(t, err)

	otherEpoch, err := Compute(pub, 13, r)
	require.NoError(t, err)
	require.NotEqual(t, base, otherEpoch)

	otherRandomness, err := Compute(pub, 12, ephemeral.Randomness{8, 7, 6, 5, 4, 3, 2, 1})
	require.NoError(t, err)
	require.NotEqual(t, base, otherRandomness)

	otherKey, err := Compute(newKey(t), 12, r)
	require.NoError(t, err)
	require.NotEqual(t, base, otherKey)
}

func TestComputeRejectsBadKey(t *testing.T) {
	_, err := Compute(make([]byte, 31), 12, ephemeral.Randomness{})
	require.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestMaxEpoch(t *testing.T) {
	require.Equal(t, uint64(12), MaxEpoch(10, DefaultMaxEpochOffset))
	require.Equal(t, uint64(10), MaxEpoch(10, 0))
}

func TestVerify(t *testing.T) {
	require.NoError(t, Verify("abc", "abc"))
	require.ErrorIs(t, Verify("abc", "abd"), ErrNonceMismatch)
	require.ErrorIs(t, Verify("", "abd"), ErrNonceMismatch)
}

func TestComputeKnownAnswer(t *testing.T) {
	// Public key of RFC 8032 test 1.
	pub, err := hex.DecodeString("d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a")
	require.NoError(t, err)
	r := ephemeral.Randomness{1, 2, 3, 4, 5, 6, 7, 8}

	tests := []struct {
		maxEpoch uint64
		want     string
	}{
		{10, "7Ko5VIDnJw5_FqZ4pZ4mlVbOgZY"},
		{12, "OiAKIFZoJGHVOTx4Yu128ZGxMfU"},
	}
	for _, tt := range tests {
		n, err := Compute(ed25519.PublicKey(pub), tt.maxEpoch, r)
		require.NoError(t, err)
		require.Equal(t, tt.want, n, "maxEpoch %d", tt.maxEpoch)
	}
}
