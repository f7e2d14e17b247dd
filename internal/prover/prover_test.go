// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package prover

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aplane-algo/zklogin/internal/ephemeral"
	"github.com/aplane-algo/zklogin/internal/testutil"
)

func testRequest(t *testing.T) (Request, *ephemeral.Material) {
	t.Helper()
	m, err := ephemeral.NewGenerator(testutil.DeterministicEntropy(3, []byte{1, 2, 3, 4, 5, 6, 7, 8})).BeginSession()
	require.NoError(t, err)
	req, err := NewRequest("header.payload.sig", big.NewInt(258), 12, m.Randomness, m.Key.SuiPublicKey())
	require.NoError(t, err)
	return req, m
}

func TestNewRequestEncoding(t *testing.T) {
	req, m := testRequest(t)

	salt, err := base64.StdEncoding.DecodeString(req.Salt)
	require.NoError(t, err)
	want := make([]byte, 16)
	want[14], want[15] = 0x01, 0x02
	require.Equal(t, want, salt)

	require.Equal(t, "12", req.MaxEpoch)
	require.Equal(t, m.Randomness.Base64(), req.JWTRandomness)
	require.Equal(t, "AQIDBAUGBwg=", req.JWTRandomness)
	require.Equal(t, "sub", req.KeyClaimName)
	require.Equal(t, "header.payload.sig", req.JWT)

	pub, err := base64.StdEncoding.DecodeString(req.ExtendedEphemeralPublicKey)
	require.NoError(t, err)
	require.Len(t, pub, 33)
	require.Equal(t, byte(0), pub[0])
	require.Equal(t, []byte(m.Key.PublicKey()), pub[1:])
}

func TestNewRequestJSONFieldNames(t *testing.T) {
	req, _ := testRequest(t)
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, k := range []string{"jwt", "salt", "maxEpoch", "jwtRandomness", "extendedEphemeralPublicKey", "keyClaimName"} {
		require.Contains(t, fields, k)
	}
}

func TestNewRequestSaltTooLarge(t *testing.T) {
	_, m := testRequest(t)
	big129 := new(big.Int).Lsh(big.NewInt(1), 128)
	_, err := NewRequest("t", big129, 12, m.Randomness, m.Key.SuiPublicKey())
	require.ErrorIs(t, err, ErrSaltTooLarge)

	max128 := new(big.Int).Sub(big129, big.NewInt(1))
	_, err = NewRequest("t", max128, 12, m.Randomness, m.Key.SuiPublicKey())
	require.NoError(t, err)
}

func TestRequestProof(t *testing.T) {
	req, _ := testRequest(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.Equal(t, req, got)
		_ = json.NewEncoder(w).Encode(testutil.MockProofInputs())
	}))
	defer srv.Close()

	inputs, err := NewClient(srv.URL, nil, nil).RequestProof(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "1"}, inputs.ProofPoints.A)
	require.Len(t, inputs.ProofPoints.B, 3)
	require.Equal(t, uint8(1), inputs.IssBase64Details.IndexMod4)
	require.NotEmpty(t, inputs.HeaderBase64)
}

func TestRequestProofUnwrapsInputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"inputs": testutil.MockProofInputs()})
	}))
	defer srv.Close()

	req, _ := testRequest(t)
	inputs, err := NewClient(srv.URL, nil, nil).RequestProof(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"7", "8", "1"}, inputs.ProofPoints.C)
}

func TestRequestProofFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "circuit failure", http.StatusInternalServerError)
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
	}
	req, _ := testRequest(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewClient(srv.URL, nil, nil).RequestProof(context.Background(), req)
			require.ErrorIs(t, err, ErrProverUnavailable)
		})
	}
}

func TestRequestProofUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	req, _ := testRequest(t)
	_, err := NewClient(url, nil, nil).RequestProof(context.Background(), req)
	require.ErrorIs(t, err, ErrProverUnavailable)

	_, err = NewClient("", nil, nil).RequestProof(context.Background(), req)
	require.ErrorIs(t, err, ErrProverUnavailable)
}
