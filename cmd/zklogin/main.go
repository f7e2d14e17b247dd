// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// zklogin signs in with an OpenID provider and submits transactions
// authorized by a zero-knowledge proof of the resulting ID token.
//
// Usage:
//
//	zklogin [-d data-dir] login [--wait]
//	zklogin [-d data-dir] complete [redirect-url]
//	zklogin [-d data-dir] status
//	zklogin [-d data-dir] address
//	zklogin [-d data-dir] exec --package P --module M --function F [--arg A]... [--sponsored]
//	zklogin [-d data-dir] fund
//	zklogin [-d data-dir] logout
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aplane-algo/zklogin/internal/app"
	"github.com/aplane-algo/zklogin/internal/engine"
	"github.com/aplane-algo/zklogin/internal/session"
	"github.com/aplane-algo/zklogin/internal/util"
	"github.com/aplane-algo/zklogin/internal/version"
)

var (
	dataDirFlag string
	dataDir     string
	config      util.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zklogin",
		Short:         "zkLogin sessions and proof-authorized transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.InitLogger()
			dataDir = util.GetDataDir(dataDirFlag)
			if cmd.Name() == "config" || cmd.Name() == "version" {
				return nil
			}
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			cfg, err := util.LoadConfig(dataDir)
			if err != nil {
				return err
			}
			config = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&dataDirFlag, "data", "d", "", "data directory (or set ZKLOGIN_DATA, default ~/.zklogin)")

	root.AddCommand(
		loginCmd(),
		completeCmd(),
		statusCmd(),
		addressCmd(),
		execCmd(),
		fundCmd(),
		logoutCmd(),
		configCmd(),
		versionCmd(),
	)
	return root
}

// newWire builds the dependency graph. An encrypted session file takes its
// passphrase from session.passphrase_command_argv when set, else a prompt.
func newWire(observer engine.Observer) (*app.Wire, error) {
	opts := app.Options{DataDir: dataDir, Observer: observer}
	if config.Session.Encrypt {
		var pass []byte
		var err error
		if argv := config.PassphraseArgv(dataDir); argv != nil {
			pass, err = util.ReadPassphraseCommand(context.Background(), argv)
		} else {
			pass, err = readPassphrase("Session passphrase: ")
		}
		if err != nil {
			return nil, err
		}
		defer zero(pass)
		opts.Passphrase = pass
	}
	return app.NewWire(config, opts)
}

// exitCode maps failures callers may want to script around.
func exitCode(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionMissing), errors.Is(err, session.ErrNoSession):
		return 3
	case errors.Is(err, engine.ErrLedgerRejected):
		return 4
	default:
		return 1
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			util.DisplayConfig(dataDir)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zklogin %s\n", version.String())
		},
	}
}
