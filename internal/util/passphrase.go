// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aplane-algo/zklogin/internal/crypto"
)

const (
	// passphraseCommandTimeout bounds the helper's run time.
	passphraseCommandTimeout = 5 * time.Second

	// maxPassphraseOutputBytes caps helper stdout (8 KB).
	maxPassphraseOutputBytes = 8 * 1024
)

// ErrPassphraseCommand wraps every failure of the session passphrase helper.
var ErrPassphraseCommand = errors.New("passphrase_command_argv")

// ReadPassphraseCommand runs `argv[0] read argv[1:]` with an empty
// environment and returns its stdout as the session passphrase.
//
// Output contract:
//   - Exactly one trailing newline is stripped
//   - NUL bytes are rejected
//   - "base64:" and "hex:" prefixes are decoded
//
// The caller zeroes the returned slice.
func ReadPassphraseCommand(ctx context.Context, argv []string) ([]byte, error) {
	path, err := validatePassphraseArgv(argv)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, passphraseCommandTimeout)
	defer cancel()

	args := append([]string{"read"}, argv[1:]...)
	cmd := exec.Command(path, args...) // #nosec G204 -- argv validated above
	cmd.Env = []string{}
	// Own process group so a timeout also kills the helper's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = io.Discard

	var stdout bytes.Buffer
	defer func() {
		crypto.ZeroBytes(stdout.Bytes())
		stdout.Reset()
	}()
	lw := &limitedWriter{w: &stdout, remaining: maxPassphraseOutputBytes}
	cmd.Stdout = lw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start: %v", ErrPassphraseCommand, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return nil, fmt.Errorf("%w: command timed out after %s", ErrPassphraseCommand, passphraseCommandTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: command failed: %v", ErrPassphraseCommand, err)
	}
	if lw.truncated {
		return nil, fmt.Errorf("%w: stdout exceeded %d bytes", ErrPassphraseCommand, maxPassphraseOutputBytes)
	}

	out := stdout.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
		if n := len(out); n > 0 && out[n-1] == '\r' {
			out = out[:n-1]
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: command produced empty output", ErrPassphraseCommand)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return nil, fmt.Errorf("%w: output contains NUL bytes", ErrPassphraseCommand)
	}
	return decodePassphrase(out)
}

// decodePassphrase returns a fresh slice; out is zeroed by the caller's buffer.
func decodePassphrase(out []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(out, []byte("base64:")):
		enc := out[len("base64:"):]
		dec := make([]byte, base64.StdEncoding.DecodedLen(len(enc)))
		n, err := base64.StdEncoding.Decode(dec, enc)
		if err != nil {
			crypto.ZeroBytes(dec)
			return nil, fmt.Errorf("%w: invalid base64 output: %v", ErrPassphraseCommand, err)
		}
		return dec[:n], nil
	case bytes.HasPrefix(out, []byte("hex:")):
		enc := out[len("hex:"):]
		dec := make([]byte, hex.DecodedLen(len(enc)))
		n, err := hex.Decode(dec, enc)
		if err != nil {
			crypto.ZeroBytes(dec)
			return nil, fmt.Errorf("%w: invalid hex output: %v", ErrPassphraseCommand, err)
		}
		return dec[:n], nil
	}
	return append([]byte(nil), out...), nil
}

// validatePassphraseArgv requires an absolute, executable helper that only
// its owner can modify.
func validatePassphraseArgv(argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("%w: must be non-empty", ErrPassphraseCommand)
	}
	path := argv[0]
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: argv[0] must be an absolute path, got %q", ErrPassphraseCommand, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPassphraseCommand, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrPassphraseCommand, path)
	}
	perm := info.Mode().Perm()
	if perm&0111 == 0 {
		return "", fmt.Errorf("%w: %s is not executable (mode %04o)", ErrPassphraseCommand, path, perm)
	}
	if perm&0022 != 0 {
		return "", fmt.Errorf("%w: %s is group or world writable (mode %04o)", ErrPassphraseCommand, path, perm)
	}
	return path, nil
}

// limitedWriter stops writing after a byte limit and records truncation.
type limitedWriter struct {
	w         io.Writer
	remaining int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		lw.truncated = true
		return len(p), nil
	}
	n := len(p)
	if int64(n) > lw.remaining {
		p = p[:lw.remaining]
		lw.truncated = true
	}
	written, err := lw.w.Write(p)
	lw.remaining -= int64(written)
	if err != nil {
		return written, err
	}
	// Report the full length so the helper never sees a short write.
	return n, nil
}
