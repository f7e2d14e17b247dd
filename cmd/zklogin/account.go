// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/aplane-algo/zklogin/internal/salt"
	"github.com/aplane-algo/zklogin/internal/util"
)

func addressCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Show the zkLogin address of the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWire(nil)
			if err != nil {
				return err
			}
			defer w.Close()

			acct, err := w.Engine.Account(cmd.Context())
			if err != nil {
				return err
			}

			src := string(acct.Salt.Source)
			fmt.Println(util.Colorize(acct.Address, util.SaltSourceColor(src)))
			if acct.Salt.Source == salt.SourceFallback {
				fmt.Println(util.Colorize("warning: salt service unreachable; this address uses the locally derived salt", util.ColorYellow))
			}
			if verbose {
				fmt.Printf("Salt:         %s (%s, policy %s)\n", acct.Salt.Value, src, w.Salts.Policy())
				fmt.Printf("Address seed: %s\n", acct.AddressSeed)
				fmt.Printf("Issuer:       %s\n", acct.Claims.Issuer)
				fmt.Printf("Subject:      %s\n", acct.Claims.Subject)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also show salt, seed and claims")
	return cmd
}

const (
	pollAttempts = 5
	pollInterval = time.Second
)

// mist per SUI
var mistPerSUI = big.NewInt(1_000_000_000)

func fundCmd() *cobra.Command {
	var coinsOnly bool

	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Request test-network gas and list owned coins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWire(nil)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx := cmd.Context()
			addr, err := w.Engine.Address(ctx)
			if err != nil {
				return err
			}

			if !coinsOnly {
				if config.FaucetURL() == "" {
					return fmt.Errorf("no faucet for network %s; set faucet.url", config.Network)
				}
				if _, err := w.Faucet.Request(ctx, addr); err != nil {
					return err
				}
				fmt.Printf("Requested gas for %s\n", addr)
			}

			coins, err := w.Ledger.GetCoins(ctx, addr, "", 50)
			if err != nil {
				return err
			}
			// Faucet transfers land asynchronously.
			for i := 0; i < pollAttempts && len(coins) == 0 && !coinsOnly; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(pollInterval):
				}
				if coins, err = w.Ledger.GetCoins(ctx, addr, "", 50); err != nil {
					return err
				}
			}
			total := new(big.Int)
			for _, c := range coins {
				if v, ok := new(big.Int).SetString(c.Balance, 10); ok {
					total.Add(total, v)
				}
				fmt.Printf("  %s  %s\n", c.CoinObjectID, c.Balance)
			}
			fmt.Printf("Balance: %s SUI (%d coins)\n", formatSUI(total), len(coins))
			return nil
		},
	}
	cmd.Flags().BoolVar(&coinsOnly, "coins", false, "only list coins, do not call the faucet")
	return cmd
}

func formatSUI(mist *big.Int) string {
	r := new(big.Rat).SetFrac(mist, mistPerSUI)
	return r.FloatString(9)
}
