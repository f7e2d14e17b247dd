// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aplane-algo/zklogin/internal/engine"
	"github.com/aplane-algo/zklogin/internal/ledger"
	"github.com/aplane-algo/zklogin/internal/nonce"
	"github.com/aplane-algo/zklogin/internal/session"
	"github.com/aplane-algo/zklogin/internal/testutil"
)

func writeTestConfig(t *testing.T, m *testutil.MockServices) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`network: devnet
rpc_url: %[1]s
oauth:
  client_id: test-client.apps.googleusercontent.com
salt:
  url: %[1]s/salt
prover:
  url: %[1]s/prove
sponsor:
  url: %[1]s/sponsor
  address: %[2]s
faucet:
  url: %[1]s
`, m.URL(), m.SponsorAddress())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600))
	return dir
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := rootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestCLIFlow(t *testing.T) {
	mock := testutil.NewMockServices(t)
	dir := writeTestConfig(t, mock)

	require.NoError(t, run(t, "-d", dir, "login"))

	s, err := session.NewFileStore(filepath.Join(dir, "session.json")).Load(context.Background())
	require.NoError(t, err)
	mat, err := s.Material()
	require.NoError(t, err)
	n, err := nonce.Compute(mat.Key.PublicKey(), s.MaxEpoch, mat.Randomness)
	require.NoError(t, err)

	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", n))
	require.NoError(t, run(t, "-d", dir, "complete", "http://localhost:11280/zk/callback#id_token="+token+"&state="+s.OAuthState))

	require.NoError(t, run(t, "-d", dir, "status"))
	require.NoError(t, run(t, "-d", dir, "address", "-v"))

	tx := base64.StdEncoding.EncodeToString([]byte("cli-tx"))
	require.NoError(t, run(t, "-d", dir, "exec", "--plain", "--tx-bytes", tx))
	require.Equal(t, 1, mock.Calls("rpc:sui_executeTransactionBlock"))

	require.NoError(t, run(t, "-d", dir, "exec", "--plain",
		"--package", "0x2", "--module", "coin", "--function", "join", "--arg", `"0xabc"`))
	require.Equal(t, 1, mock.Calls("rpc:unsafe_moveCall"))

	require.NoError(t, run(t, "-d", dir, "exec", "--plain", "--sponsored", "--tx-bytes", tx))
	require.Equal(t, 1, mock.Calls("/sponsor"))
	require.Equal(t, 3, mock.Calls("rpc:sui_executeTransactionBlock"))

	require.NoError(t, run(t, "-d", dir, "fund"))
	require.Equal(t, 1, mock.Calls("/gas"))

	require.NoError(t, run(t, "-d", dir, "logout"))
	err = run(t, "-d", dir, "address")
	require.ErrorIs(t, err, engine.ErrSessionMissing)
	require.Equal(t, 3, exitCode(err))
}

func TestExecRequiresTarget(t *testing.T) {
	mock := testutil.NewMockServices(t)
	dir := writeTestConfig(t, mock)
	require.Error(t, run(t, "-d", dir, "exec", "--plain"))
}

func TestExecSponsoredMoveCallRejected(t *testing.T) {
	mock := testutil.NewMockServices(t)
	dir := writeTestConfig(t, mock)

	err := run(t, "-d", dir, "exec", "--plain", "--sponsored",
		"--package", "0x2", "--module", "coin", "--function", "join")
	require.ErrorIs(t, err, errSponsoredMoveCall)
	require.Zero(t, mock.Calls("rpc:unsafe_moveCall"))
	require.Zero(t, mock.Calls("/sponsor"))
}

func TestMoveCallBuilderRefusesForeignGasOwner(t *testing.T) {
	mock := testutil.NewMockServices(t)
	o := execOptions{pkg: "0x2", module: "m", function: "f", gasBudget: 1}
	factory, err := o.builder()
	require.NoError(t, err)
	b := factory(ledger.NewClient(mock.URL(), nil, nil))

	_, err = b.Build(context.Background(), engine.TxParams{Sender: "0xuser", GasOwner: "0xsponsor"})
	require.ErrorIs(t, err, errSponsoredMoveCall)
	require.Zero(t, mock.Calls("rpc:unsafe_moveCall"))

	_, err = b.Build(context.Background(), engine.TxParams{Sender: "0xuser", GasOwner: "0xuser"})
	require.NoError(t, err)
	require.Equal(t, 1, mock.Calls("rpc:unsafe_moveCall"))
}

func TestExitCodeLedgerRejection(t *testing.T) {
	require.Equal(t, 4, exitCode(fmt.Errorf("submit: %w", engine.ErrLedgerRejected)))
	require.Equal(t, 1, exitCode(fmt.Errorf("other")))
}

func TestParseArg(t *testing.T) {
	require.Equal(t, "0xabc", parseArg(`"0xabc"`))
	require.Equal(t, "0xabc", parseArg(`0xabc`))
	require.Equal(t, float64(42), parseArg(`42`))
	require.Equal(t, []interface{}{"a", "b"}, parseArg(`["a","b"]`))
}

func TestFormatSUI(t *testing.T) {
	require.Equal(t, "1.500000000", formatSUI(big.NewInt(1_500_000_000)))
	require.Equal(t, "0.000000001", formatSUI(big.NewInt(1)))
}
