// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["jwt"]})
	}))
	defer srv.Close()

	var out struct {
		Echo string `json:"echo"`
	}
	if err := New(nil).PostJSON(context.Background(), srv.URL, map[string]string{"jwt": "abc"}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Echo != "abc" {
		t.Errorf("echo = %q, want abc", out.Echo)
	}
}

func TestPostJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "prover overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(nil).PostJSON(context.Background(), srv.URL, struct{}{}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", se.StatusCode)
	}
	if !strings.Contains(string(se.Body), "prover overloaded") {
		t.Errorf("body = %q", se.Body)
	}
}

func TestPostJSONDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := New(nil).PostJSON(context.Background(), srv.URL, struct{}{}, &out)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestPostJSONContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(nil).PostJSON(ctx, srv.URL, struct{}{}, nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
