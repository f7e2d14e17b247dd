// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package testutil provides reusable test infrastructure and utilities.
package testutil

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"testing"
)

// MakeIDToken builds an unsigned-looking RS256 JWT carrying claims.
// The signature segment is filler; nothing in zkLogin verifies it locally.
func MakeIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "test"})
	if err != nil {
		t.Fatalf("Failed to marshal header: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("Failed to marshal claims: %v", err)
	}

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("test-signature"))
}

// GoogleClaims returns a typical Google ID token claim set.
func GoogleClaims(sub, nonce string) map[string]interface{} {
	return map[string]interface{}{
		"iss":   "https://accounts.google.com",
		"aud":   "test-client.apps.googleusercontent.com",
		"sub":   sub,
		"nonce": nonce,
		"email": "user@example.com",
	}
}

// DeterministicEntropy returns a reader yielding a 32-byte key seed filled
// with seedByte followed by the given randomness bytes.
func DeterministicEntropy(seedByte byte, randomness []byte) io.Reader {
	buf := bytes.Repeat([]byte{seedByte}, ed25519.SeedSize)
	return bytes.NewReader(append(buf, randomness...))
}

// TempFile creates a temporary file with the given content, returning the path.
// The file is automatically cleaned up when the test completes.
func TempFile(t *testing.T, content []byte) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "testfile-*")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		t.Fatalf("Failed to write temp file: %v", err)
	}
	_ = tmpFile.Close()
	return tmpFile.Name()
}
