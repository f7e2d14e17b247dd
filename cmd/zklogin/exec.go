// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aplane-algo/zklogin/internal/engine"
	"github.com/aplane-algo/zklogin/internal/ledger"
	"github.com/aplane-algo/zklogin/internal/util"
)

// errSponsoredMoveCall is returned when a sponsored transaction would be
// built through unsafe_moveCall, which cannot name a gas owner other than
// the signer.
var errSponsoredMoveCall = errors.New("--sponsored needs prebuilt --tx-bytes whose gas owner is the sponsor")

type execOptions struct {
	pkg       string
	module    string
	function  string
	typeArgs  []string
	args      []string
	gas       string
	gasBudget uint64
	txBytes   string
	sponsored bool
	plain     bool
}

func execCmd() *cobra.Command {
	var o execOptions

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Prove, sign and submit a transaction",
		Long: "Builds a Move call through the fullnode (or takes prebuilt --tx-bytes),\n" +
			"requests a proof for the stored session, signs and submits it.\n" +
			"Failures are reported as returned; nothing is retried.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.txBytes == "" && (o.pkg == "" || o.module == "" || o.function == "") {
				return fmt.Errorf("either --tx-bytes or --package, --module and --function are required")
			}
			if o.sponsored && o.txBytes == "" {
				return errSponsoredMoveCall
			}

			builder, err := o.builder()
			if err != nil {
				return err
			}

			interactive := !o.plain && util.IsInteractive()
			var prog *progress
			observer := func(s engine.State) {
				if prog != nil {
					prog.send(s)
					return
				}
				fmt.Fprintf(os.Stderr, "  %s...\n", s)
			}

			w, err := newWire(observer)
			if err != nil {
				return err
			}
			defer w.Close()
			ledgerClient := w.Ledger

			req := engine.ExecuteRequest{Builder: builder(ledgerClient), Sponsored: o.sponsored}
			run := func(ctx context.Context) (*ledger.ExecutionResult, error) {
				return w.Engine.Execute(ctx, req)
			}

			var res *ledger.ExecutionResult
			if interactive {
				prog = newProgress()
				res, err = prog.run(cmd.Context(), run)
			} else {
				res, err = run(cmd.Context())
			}
			if err != nil {
				return err
			}

			status := res.Status()
			color := util.ColorGreen
			if status != "success" {
				color = util.ColorRed
			}
			fmt.Printf("Digest: %s\n", res.Digest)
			fmt.Printf("Status: %s\n", util.Colorize(orDash(status), color))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.pkg, "package", "", "Move package ID")
	f.StringVar(&o.module, "module", "", "Move module name")
	f.StringVar(&o.function, "function", "", "Move function name")
	f.StringArrayVar(&o.typeArgs, "type-arg", nil, "type argument (repeatable)")
	f.StringArrayVar(&o.args, "arg", nil, "call argument; JSON values are passed as-is, anything else as a string (repeatable)")
	f.StringVar(&o.gas, "gas", "", "gas coin object ID (node picks one if empty)")
	f.Uint64Var(&o.gasBudget, "gas-budget", 10_000_000, "gas budget in MIST")
	f.StringVar(&o.txBytes, "tx-bytes", "", "prebuilt base64 transaction bytes")
	f.BoolVar(&o.sponsored, "sponsored", false, "have the configured sponsor pay for gas (requires --tx-bytes)")
	f.BoolVar(&o.plain, "plain", false, "disable the interactive progress display")
	return cmd
}

// builder returns a factory so the ledger client can be bound after wiring.
func (o execOptions) builder() (func(*ledger.Client) engine.Builder, error) {
	if o.txBytes != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(o.txBytes))
		if err != nil {
			return nil, fmt.Errorf("--tx-bytes is not base64: %w", err)
		}
		return func(*ledger.Client) engine.Builder {
			return engine.BuilderFunc(func(context.Context, engine.TxParams) ([]byte, error) {
				return raw, nil
			})
		}, nil
	}

	args := make([]interface{}, len(o.args))
	for i, a := range o.args {
		args[i] = parseArg(a)
	}
	return func(l *ledger.Client) engine.Builder {
		return engine.BuilderFunc(func(ctx context.Context, p engine.TxParams) ([]byte, error) {
			if p.GasOwner != "" && p.GasOwner != p.Sender {
				return nil, errSponsoredMoveCall
			}
			call := ledger.MoveCall{
				Signer:        p.Sender,
				Package:       o.pkg,
				Module:        o.module,
				Function:      o.function,
				TypeArguments: o.typeArgs,
				Arguments:     args,
				Gas:           o.gas,
				GasBudget:     o.gasBudget,
			}
			return l.BuildMoveCall(ctx, call)
		})
	}, nil
}

func parseArg(s string) interface{} {
	var v interface{}
	if json.Unmarshal([]byte(s), &v) == nil {
		return v
	}
	return s
}
