// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func makeScript(t *testing.T, name, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadPassphraseCommand(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		want    string
		wantErr string
	}{
		{
			name: "echo passphrase",
			argv: []string{makeScript(t, "echo.sh", "#!/bin/sh\necho mysecret\n", 0700)},
			want: "mysecret",
		},
		{
			name: "verb injected before args",
			argv: []string{makeScript(t, "verb.sh", "#!/bin/sh\nprintf '%s-%s' \"$1\" \"$2\"\n", 0700), "vault"},
			want: "read-vault",
		},
		{
			name: "strips exactly one trailing newline",
			argv: []string{makeScript(t, "double.sh", "#!/bin/sh\nprintf 'secret\\n\\n'\n", 0700)},
			want: "secret\n",
		},
		{
			name: "base64 prefix",
			argv: []string{makeScript(t, "b64.sh", "#!/bin/sh\nprintf 'base64:"+base64.StdEncoding.EncodeToString([]byte("decoded"))+"'\n", 0700)},
			want: "decoded",
		},
		{
			name: "hex prefix",
			argv: []string{makeScript(t, "hex.sh", "#!/bin/sh\nprintf 'hex:"+hex.EncodeToString([]byte("hexval"))+"'\n", 0700)},
			want: "hexval",
		},
		{
			name:    "environment not inherited",
			argv:    []string{makeScript(t, "env.sh", "#!/bin/sh\nprintf '%s' \"$HOME\"\n", 0700)},
			wantErr: "empty output",
		},
		{
			name:    "empty argv",
			argv:    nil,
			wantErr: "non-empty",
		},
		{
			name:    "relative path",
			argv:    []string{"relative/helper"},
			wantErr: "absolute path",
		},
		{
			name:    "non-zero exit",
			argv:    []string{makeScript(t, "fail.sh", "#!/bin/sh\nexit 1\n", 0700)},
			wantErr: "command failed",
		},
		{
			name:    "world writable helper",
			argv:    []string{makeScript(t, "ww.sh", "#!/bin/sh\necho x\n", 0777)},
			wantErr: "writable",
		},
		{
			name:    "not executable",
			argv:    []string{makeScript(t, "noexec.sh", "#!/bin/sh\necho x\n", 0600)},
			wantErr: "not executable",
		},
		{
			name:    "NUL in output",
			argv:    []string{makeScript(t, "nul.sh", "#!/bin/sh\nprintf 'a\\000b'\n", 0700)},
			wantErr: "NUL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadPassphraseCommand(context.Background(), tt.argv)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got %q", tt.wantErr, got)
				}
				if !errors.Is(err, ErrPassphraseCommand) {
					t.Errorf("error %v does not wrap ErrPassphraseCommand", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadPassphraseCommandTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the helper timeout")
	}
	argv := []string{makeScript(t, "slow.sh", "#!/bin/sh\nsleep 30\necho done\n", 0700)}
	_, err := ReadPassphraseCommand(context.Background(), argv)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestLimitedWriterTruncates(t *testing.T) {
	var sb strings.Builder
	lw := &limitedWriter{w: &sb, remaining: 4}
	n, err := lw.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if sb.String() != "abcd" || !lw.truncated {
		t.Fatalf("got %q truncated=%v", sb.String(), lw.truncated)
	}
}
