// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aplane-algo/zklogin/internal/fsutil"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const maxAuditLogSize = 10 * 1024 * 1024 // 10 MB

const (
	AuditServerStart    AuditEventType = "SERVER_START"
	AuditServerStop     AuditEventType = "SERVER_STOP"
	AuditLoginCompleted AuditEventType = "LOGIN_COMPLETED"
	AuditLoginFailed    AuditEventType = "LOGIN_FAILED"
	AuditSaltResolved   AuditEventType = "SALT_RESOLVED"
	AuditProofRequest   AuditEventType = "PROOF_REQUEST"
	AuditProofFailed    AuditEventType = "PROOF_FAILED"
	AuditSponsorRequest AuditEventType = "SPONSOR_REQUEST"
	AuditFaucetRequest  AuditEventType = "FAUCET_REQUEST"
	AuditFaucetFailed   AuditEventType = "FAUCET_FAILED"
)

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Event      AuditEventType `json:"event"`
	Session    string         `json:"session,omitempty"`     // zkLogin session ID
	Subject    string         `json:"subject,omitempty"`     // Token subject
	Address    string         `json:"address,omitempty"`     // zkLogin or recipient address
	SaltSource string         `json:"salt_source,omitempty"` // remote or fallback
	Status     int            `json:"status,omitempty"`      // Upstream HTTP status
	RemoteAddr string         `json:"remote_addr,omitempty"` // Client IP
	Reason     string         `json:"reason,omitempty"`      // Failure reason
}

// AuditLogger handles append-only audit logging. A nil *AuditLogger
// discards entries.
type AuditLogger struct {
	file    *os.File
	mu      sync.Mutex
	path    string
	written uint64
}

// NewAuditLogger opens path in append-only mode with owner-only permissions.
func NewAuditLogger(path string) (*AuditLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.PrivateFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	var written uint64
	if info, err := file.Stat(); err == nil {
		written = uint64(info.Size())
	}

	return &AuditLogger{file: file, path: path, written: written}, nil
}

// Log writes an audit entry
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to marshal audit entry: %v\n", err)
		return
	}

	line := append(data, '\n')
	if a.written+uint64(len(line)) > maxAuditLogSize {
		if err := a.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to rotate audit log: %v\n", err)
		}
	}

	if _, err := a.file.Write(line); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write audit entry: %v\n", err)
		return
	}
	a.written += uint64(len(line))
	_ = a.file.Sync()
}

// rotate archives the current log file and opens a fresh one.
// Must be called with a.mu held.
func (a *AuditLogger) rotate() error {
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	if err := os.Rename(a.path, a.path+".1"); err != nil {
		a.file, _ = os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.PrivateFilePerm)
		a.written = 0
		return fmt.Errorf("rename log: %w", err)
	}
	file, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.PrivateFilePerm)
	if err != nil {
		return fmt.Errorf("open new log: %w", err)
	}
	a.file = file
	a.written = 0
	return nil
}

// Close closes the audit log file
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// LogServerStart logs daemon startup.
func (a *AuditLogger) LogServerStart(addr string) {
	a.Log(AuditEntry{Event: AuditServerStart, RemoteAddr: addr})
}

// LogServerStop logs daemon shutdown.
func (a *AuditLogger) LogServerStop() {
	a.Log(AuditEntry{Event: AuditServerStop})
}

// LogLoginCompleted logs a callback that was bound to the stored session.
func (a *AuditLogger) LogLoginCompleted(session, subject, address, remoteAddr string) {
	a.Log(AuditEntry{
		Event:      AuditLoginCompleted,
		Session:    session,
		Subject:    subject,
		Address:    address,
		RemoteAddr: remoteAddr,
	})
}

// LogLoginFailed logs a rejected callback.
func (a *AuditLogger) LogLoginFailed(remoteAddr, reason string) {
	a.Log(AuditEntry{Event: AuditLoginFailed, RemoteAddr: remoteAddr, Reason: reason})
}
