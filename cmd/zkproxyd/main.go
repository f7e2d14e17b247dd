// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// zkproxyd is the local companion daemon for zklogin. It serves the OAuth
// redirect page, completes logins against the shared session file, and
// proxies salt, proof, sponsor and faucet requests.
//
// Usage:
//
//	zkproxyd [-d data-dir] [-port N]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/aplane-algo/zklogin/internal/app"
	"github.com/aplane-algo/zklogin/internal/crypto"
	"github.com/aplane-algo/zklogin/internal/security"
	"github.com/aplane-algo/zklogin/internal/util"
	"github.com/aplane-algo/zklogin/internal/version"
)

func main() {
	printVersion := flag.Bool("version", false, "Print version and exit")
	dataDirFlag := flag.String("d", "", "Data directory (or set ZKLOGIN_DATA)")
	portFlag := flag.Int("port", 0, "Listen port (overrides proxy.port)")
	flag.Parse()
	if *printVersion {
		fmt.Printf("zkproxyd %s\n", version.String())
		os.Exit(0)
	}

	util.InitLogger()
	logger := util.Log()

	dataDir := util.GetDataDir(*dataDirFlag)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	config, err := util.LoadConfig(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	port := config.Proxy.Port
	if *portFlag != 0 {
		port = *portFlag
	}

	fmt.Println("zkproxyd - zkLogin local proxy")
	fmt.Println("==============================")
	fmt.Printf("Data directory: %s\n", dataDir)

	if security.Harden(logger) {
		fmt.Println("✓ Memory locked, core dumps disabled")
	}

	opts := app.Options{DataDir: dataDir, Logger: logger}
	if config.Session.Encrypt {
		pass, err := sessionPassphrase(config, dataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts.Passphrase = pass
		defer crypto.ZeroBytes(pass)
	}

	wire, err := app.NewWire(config, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var audit *AuditLogger
	if path := config.AuditLogPath(dataDir); path != "" {
		audit, err = NewAuditLogger(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Audit log: %s\n", path)
	}

	proxy := NewProxy(wire, audit, logger)

	// The redirect URI and every proxied route are local-only.
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           proxy.Handler(),
		ReadHeaderTimeout: 10 * time.Second, // Prevent SlowLoris attacks
	}

	fmt.Printf("✓ Listening on http://%s\n", addr)
	fmt.Printf("  Redirect URI: %s\n", config.OAuth.RedirectURI)
	fmt.Printf("  Salt policy:  %s\n", config.Salt.Policy)
	audit.LogServerStart(addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-sigChan:
		fmt.Println("\n[*] Shutdown signal received, cleaning up...")
	case err := <-serverErr:
		fmt.Printf("\n[X] Server error: %v\n", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	fmt.Println("[*] Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Warning: Server shutdown error: %v\n", err)
	}

	audit.LogServerStop()
	_ = audit.Close()

	fmt.Println("[*] Zeroing session passphrase...")
	wire.Close()

	fmt.Println("[✓] Shutdown complete")
}

// sessionPassphrase runs the configured passphrase helper, falling back to
// a terminal prompt.
func sessionPassphrase(config util.Config, dataDir string) ([]byte, error) {
	if argv := config.PassphraseArgv(dataDir); argv != nil {
		fmt.Printf("Reading session passphrase from %s\n", argv[0])
		return util.ReadPassphraseCommand(context.Background(), argv)
	}
	fd := int(os.Stdin.Fd()) // #nosec G115
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("session.encrypt requires a terminal or session.passphrase_command_argv")
	}
	fmt.Print("Session passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return pass, nil
}
