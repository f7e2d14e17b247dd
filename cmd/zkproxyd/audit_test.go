// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAuditLoggerAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	a.LogServerStart("127.0.0.1:11280")
	a.LogLoginCompleted("sess-1", "sub-1", "0xabc", "127.0.0.1")
	a.LogLoginFailed("127.0.0.1", "nonce mismatch")
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var events []AuditEventType
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
		events = append(events, e.Event)
	}
	want := []AuditEventType{AuditServerStart, AuditLoginCompleted, AuditLoginFailed}
	if len(events) != len(want) {
		t.Fatalf("got %d entries, want %d", len(events), len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, events[i], want[i])
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("audit log mode = %o, want 600", info.Mode().Perm())
	}
}

func TestAuditLoggerRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer a.Close()

	a.written = maxAuditLogSize
	a.LogServerStop()

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	if a.written == 0 || a.written > maxAuditLogSize {
		t.Errorf("written = %d after rotation", a.written)
	}
}

func TestNilAuditLoggerDiscards(t *testing.T) {
	var a *AuditLogger
	a.LogServerStart("x")
	if err := a.Close(); err != nil {
		t.Fatalf("Close on nil: %v", err)
	}
}
