// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package idtoken_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aplane-algo/zklogin/internal/idtoken"
	"github.com/aplane-algo/zklogin/internal/testutil"
)

func TestDecode(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	token := testutil.MakeIDToken(t, map[string]interface{}{
		"iss":   "https://accounts.google.com",
		"sub":   "110169484474386276334",
		"aud":   "client-123.apps.googleusercontent.com",
		"nonce": "abcdefghijklmnopqrstuvwxyz0",
		"email": "user@example.com",
		"exp":   exp,
	})

	c, err := idtoken.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "https://accounts.google.com", c.Issuer)
	require.Equal(t, "110169484474386276334", c.Subject)
	require.Equal(t, "client-123.apps.googleusercontent.com", c.Audience)
	require.Equal(t, "abcdefghijklmnopqrstuvwxyz0", c.Nonce)
	require.Equal(t, "user@example.com", c.Email)
	require.Equal(t, exp, c.Expiry.Unix())
	require.NoError(t, c.RequireAddressClaims())
	require.False(t, c.Expired(time.Now()))
}

func TestDecodeAudienceArray(t *testing.T) {
	token := testutil.MakeIDToken(t, map[string]interface{}{
		"iss": "https://accounts.google.com",
		"sub": "1",
		"aud": []string{"first", "second"},
	})
	c, err := idtoken.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "first", c.Audience)
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{"", "not-a-jwt", "a.b", "!!!.@@@.###"} {
		_, err := idtoken.Decode(in)
		require.ErrorIs(t, err, idtoken.ErrMalformedToken, "input %q", in)
	}
}

func TestRequireAddressClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
	}{
		{"missing iss", map[string]interface{}{"sub": "1", "aud": "a"}},
		{"missing sub", map[string]interface{}{"iss": "i", "aud": "a"}},
		{"missing aud", map[string]interface{}{"iss": "i", "sub": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := idtoken.Decode(testutil.MakeIDToken(t, tt.claims))
			require.NoError(t, err)
			require.ErrorIs(t, c.RequireAddressClaims(), idtoken.ErrMissingClaim)
		})
	}
}

func TestExpired(t *testing.T) {
	c := &idtoken.Claims{Expiry: time.Now().Add(-time.Minute)}
	require.True(t, c.Expired(time.Now()))
	require.False(t, (&idtoken.Claims{}).Expired(time.Now()))
}
