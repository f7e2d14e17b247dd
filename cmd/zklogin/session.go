// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aplane-algo/zklogin/internal/engine"
	"github.com/aplane-algo/zklogin/internal/idtoken"
	"github.com/aplane-algo/zklogin/internal/util"
)

func loginCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a new session and print the sign-in URL",
		Long: "Generates a fresh ephemeral key, stores it, and prints the provider URL.\n" +
			"Any existing session is replaced. Finish with 'zklogin complete', or pass\n" +
			"--wait to block until zkproxyd stores the token from the redirect.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWire(nil)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx := cmd.Context()
			req, err := w.Engine.BeginLogin(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Session:   %s\n", req.SessionID)
			fmt.Printf("Max epoch: %d\n", req.MaxEpoch)
			fmt.Println()
			fmt.Println("Open this URL to sign in:")
			fmt.Println()
			fmt.Println(req.URL)
			fmt.Println()

			if wait <= 0 {
				fmt.Println("Then run 'zklogin complete' with the URL you were redirected to.")
				return nil
			}

			fmt.Printf("Waiting up to %s for the redirect...\n", wait)
			ctx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()

			changes, err := w.Store.Watch(ctx)
			if err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return fmt.Errorf("timed out waiting for sign-in")
				case _, ok := <-changes:
					if !ok {
						return fmt.Errorf("timed out waiting for sign-in")
					}
					state, s, err := w.Engine.Status(ctx)
					if err != nil {
						util.Debug("status check failed", "error", err)
						continue
					}
					if s != nil && s.ID != req.SessionID {
						return fmt.Errorf("session replaced by another login")
					}
					if state == engine.StateSessionPersisted {
						fmt.Println(util.Colorize("Signed in.", util.ColorGreen))
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait for zkproxyd to complete the login (e.g. 5m)")
	return cmd
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete [redirect-url|id_token]",
		Short: "Finish sign-in with the provider redirect",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			} else {
				var err error
				if raw, err = readCallback(); err != nil {
					return err
				}
			}

			w, err := newWire(nil)
			if err != nil {
				return err
			}
			defer w.Close()

			s, err := w.Engine.CompleteLogin(cmd.Context(), raw)
			if err != nil {
				return err
			}
			claims, err := idtoken.Decode(s.IDToken)
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s (%s)\n", claims.Subject, orDash(claims.Email))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWire(nil)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx := cmd.Context()
			state, s, err := w.Engine.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("State:      %s\n", state)
			if s == nil {
				return nil
			}
			fmt.Printf("Session:    %s\n", s.ID)
			fmt.Printf("Created:    %s\n", s.CreatedAt.Local().Format(time.RFC3339))

			epoch, epochErr := w.Engine.CurrentEpoch(ctx)
			switch {
			case epochErr != nil:
				fmt.Printf("Max epoch:  %d (current epoch unavailable: %v)\n", s.MaxEpoch, epochErr)
			case epoch > s.MaxEpoch:
				fmt.Printf("Max epoch:  %d %s\n", s.MaxEpoch, util.Colorize(fmt.Sprintf("(expired, current %d)", epoch), util.ColorRed))
			default:
				fmt.Printf("Max epoch:  %d (current %d)\n", s.MaxEpoch, epoch)
			}

			if !s.Authenticated() {
				return nil
			}
			claims, err := idtoken.Decode(s.IDToken)
			if err != nil {
				return err
			}
			fmt.Printf("Issuer:     %s\n", claims.Issuer)
			fmt.Printf("Subject:    %s\n", claims.Subject)
			fmt.Printf("Email:      %s\n", orDash(claims.Email))
			if !claims.Expiry.IsZero() {
				exp := claims.Expiry.Local().Format(time.RFC3339)
				if claims.Expired(time.Now()) {
					exp = util.Colorize(exp+" (expired)", util.ColorYellow)
				}
				fmt.Printf("Token exp:  %s\n", exp)
			}
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWire(nil)
			if err != nil {
				return err
			}
			defer w.Close()

			if err := w.Engine.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
