// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aplane-algo/zklogin/internal/ephemeral"
	"github.com/aplane-algo/zklogin/internal/ledger"
	"github.com/aplane-algo/zklogin/internal/oauth"
	"github.com/aplane-algo/zklogin/internal/prover"
	"github.com/aplane-algo/zklogin/internal/salt"
	"github.com/aplane-algo/zklogin/internal/session"
	"github.com/aplane-algo/zklogin/internal/signature"
	"github.com/aplane-algo/zklogin/internal/sponsor"
	"github.com/aplane-algo/zklogin/internal/testutil"
)

var testRandomness = []byte{1, 2, 3, 4, 5, 6, 7, 8}

type harness struct {
	mock   *testutil.MockServices
	store  *session.MemoryStore
	engine *Engine
	states []State
}

func newHarness(t *testing.T, opts ...EngineOption) *harness {
	t.Helper()

	h := &harness{mock: testutil.NewMockServices(t), store: session.NewMemoryStore()}
	base := h.mock.URL()

	resolver, err := salt.NewResolver(salt.Options{URL: base + "/salt", Policy: salt.PolicyRemoteWithFallback})
	require.NoError(t, err)

	all := []EngineOption{
		WithSaltResolver(resolver),
		WithProver(prover.NewClient(base+"/prove", nil, nil)),
		WithSponsor(sponsor.NewClient(base+"/sponsor", nil, nil), h.mock.SponsorAddress()),
		WithProvider(oauth.Google("test-client.apps.googleusercontent.com", "http://localhost:11280/zk/callback", "")),
		WithEntropy(ephemeral.NewGenerator(testutil.DeterministicEntropy(0x42, testRandomness))),
		WithObserver(func(s State) { h.states = append(h.states, s) }),
	}
	all = append(all, opts...)

	h.engine, err = NewEngine(h.store, ledger.NewClient(base, nil, nil), all...)
	require.NoError(t, err)
	return h
}

// login runs the full sign-in round trip and returns the callback token.
func (h *harness) login(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req, err := h.engine.BeginLogin(ctx)
	require.NoError(t, err)

	token := testutil.MakeIDToken(t, testutil.GoogleClaims("110463452167303598383", req.Nonce))
	_, err = h.engine.CompleteLogin(ctx, "http://localhost:11280/zk/callback#id_token="+token+"&state="+req.State)
	require.NoError(t, err)
	return token
}

func staticTx(tx []byte) Builder {
	return BuilderFunc(func(context.Context, TxParams) ([]byte, error) { return tx, nil })
}

func TestBeginLoginPersistsBeforeRedirect(t *testing.T) {
	h := newHarness(t)
	req, err := h.engine.BeginLogin(context.Background())
	require.NoError(t, err)

	require.Equal(t, uint64(12), req.MaxEpoch)
	require.Len(t, req.Nonce, 27)
	require.NotEmpty(t, req.SessionID)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, req.Nonce, q.Get("nonce"))
	require.Equal(t, req.State, q.Get("state"))
	require.Equal(t, "id_token", q.Get("response_type"))

	s, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, req.SessionID, s.ID)
	require.Equal(t, uint64(12), s.MaxEpoch)
	require.Equal(t, "AQIDBAUGBwg=", s.Randomness)
	require.False(t, s.Authenticated())

	require.Equal(t, []State{StateKeyGenerated, StateAwaitingRedirect}, h.states)

	state, _, err := h.engine.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAwaitingRedirect, state)
}

func TestBeginLoginWithoutProviderKeepsPreviousSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.engine.provider = oauth.Provider{}
	_, err := h.engine.BeginLogin(context.Background())
	require.ErrorIs(t, err, oauth.ErrNotConfigured)

	s, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, s.Authenticated())
}

func TestSecondBeginLoginOrphansFirst(t *testing.T) {
	h := newHarness(t, WithEntropy(ephemeral.NewGenerator(nil)))
	ctx := context.Background()

	first, err := h.engine.BeginLogin(ctx)
	require.NoError(t, err)
	second, err := h.engine.BeginLogin(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.Nonce, second.Nonce)

	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", first.Nonce))
	_, err = h.engine.CompleteLogin(ctx, token)
	require.ErrorIs(t, err, ErrNonceMismatch)

	token = testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", second.Nonce))
	_, err = h.engine.CompleteLogin(ctx, token)
	require.NoError(t, err)
}

func TestCompleteLoginStateMismatch(t *testing.T) {
	h := newHarness(t)
	req, err := h.engine.BeginLogin(context.Background())
	require.NoError(t, err)

	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", req.Nonce))
	_, err = h.engine.CompleteLogin(context.Background(), "id_token="+token+"&state=forged")
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestCompleteLoginWithoutSession(t *testing.T) {
	h := newHarness(t)
	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", "AAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	_, err := h.engine.CompleteLogin(context.Background(), token)
	require.ErrorIs(t, err, ErrSessionMissing)
}

func TestCompleteLoginMissingClaim(t *testing.T) {
	h := newHarness(t)
	req, err := h.engine.BeginLogin(context.Background())
	require.NoError(t, err)

	claims := testutil.GoogleClaims("sub-1", req.Nonce)
	delete(claims, "sub")
	_, err = h.engine.CompleteLogin(context.Background(), testutil.MakeIDToken(t, claims))
	require.ErrorIs(t, err, ErrMissingClaim)
}

func TestExecuteEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.states = nil

	tx := []byte("user-transaction")
	var params TxParams
	builder := BuilderFunc(func(_ context.Context, p TxParams) ([]byte, error) {
		params = p
		return tx, nil
	})

	res, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: builder})
	require.NoError(t, err)
	require.NotEmpty(t, res.Digest)
	require.Equal(t, []State{StateProving, StateSigned, StateSubmitted}, h.states)

	acct, err := h.engine.Account(context.Background())
	require.NoError(t, err)
	require.Equal(t, acct.Address, params.Sender)
	require.Equal(t, acct.Address, params.GasOwner)
	require.Equal(t, salt.SourceRemote, acct.Salt.Source)

	proofReq := h.mock.LastProofRequest()
	require.Equal(t, "AQIDBAUGBwg=", proofReq["jwtRandomness"])
	require.Equal(t, "12", proofReq["maxEpoch"])
	require.Equal(t, "sub", proofReq["keyClaimName"])

	params4 := h.mock.LastExecuteParams()
	var txB64 string
	require.NoError(t, json.Unmarshal(params4[0], &txB64))
	require.Equal(t, base64.StdEncoding.EncodeToString(tx), txB64)

	var sigs []string
	require.NoError(t, json.Unmarshal(params4[1], &sigs))
	require.Len(t, sigs, 1)
	raw, err := base64.StdEncoding.DecodeString(sigs[0])
	require.NoError(t, err)
	require.Equal(t, byte(0x05), raw[0])
}

func TestExecuteSponsored(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	var params TxParams
	builder := BuilderFunc(func(_ context.Context, p TxParams) ([]byte, error) {
		params = p
		return []byte("sponsored-transaction"), nil
	})

	_, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: builder, Sponsored: true})
	require.NoError(t, err)
	require.Equal(t, h.mock.SponsorAddress(), params.GasOwner)

	var sigs []string
	require.NoError(t, json.Unmarshal(h.mock.LastExecuteParams()[1], &sigs))
	require.Len(t, sigs, 2)

	signer, err := signature.Signer(sigs[1])
	require.NoError(t, err)
	require.Equal(t, h.mock.SponsorAddress(), signer)

	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("sponsored-transaction")), h.mock.LastSponsorRequest()["txBytes"])
}

func TestExecuteSponsorSignatureMismatch(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.mock.SponsorTamper = true

	_, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx")), Sponsored: true})
	require.ErrorIs(t, err, ErrSignatureMismatch)
	require.Equal(t, 0, h.mock.Calls("rpc:sui_executeTransactionBlock"))
}

func TestExecuteSponsoredWithoutSponsor(t *testing.T) {
	h := newHarness(t, WithSponsor(nil, ""))
	h.login(t)

	_, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx")), Sponsored: true})
	require.ErrorIs(t, err, ErrSponsorUnavailable)
}

func TestExecuteNonceMismatchSkipsProver(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	s, err := h.store.Load(context.Background())
	require.NoError(t, err)
	s.IDToken = testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", "AAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	require.NoError(t, h.store.Save(context.Background(), s))

	_, err = h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx"))})
	require.ErrorIs(t, err, ErrNonceMismatch)
	require.Equal(t, 0, h.mock.Calls("/prove"))
}

func TestExecuteProverUnavailable(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.mock.ProofStatus = 503

	_, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx"))})
	require.ErrorIs(t, err, ErrProverUnavailable)
	require.Equal(t, 1, h.mock.Calls("/prove"))
	require.Equal(t, 0, h.mock.Calls("rpc:sui_executeTransactionBlock"))
}

func TestExecuteLedgerRejectionVerbatim(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.mock.ExecuteError = &testutil.RPCError{Code: -32002, Message: "Transaction has non recoverable errors", Data: json.RawMessage(`{"epoch":13}`)}

	_, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx"))})
	require.ErrorIs(t, err, ErrLedgerRejected)

	var rejected *ledger.RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, -32002, rejected.Code)
	require.Equal(t, "Transaction has non recoverable errors", rejected.Message)
	require.JSONEq(t, `{"epoch":13}`, string(rejected.Data))
	require.Equal(t, 1, h.mock.Calls("rpc:sui_executeTransactionBlock"))
}

func TestExecuteWithoutSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx"))})
	require.ErrorIs(t, err, ErrSessionMissing)

	_, err = h.engine.BeginLogin(context.Background())
	require.NoError(t, err)
	_, err = h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx"))})
	require.ErrorIs(t, err, ErrSessionMissing)
}

func TestExecuteEmptyTransaction(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, err := h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx(nil)})
	require.ErrorIs(t, err, ErrEmptyTransaction)

	_, err = h.engine.Execute(context.Background(), ExecuteRequest{})
	require.ErrorIs(t, err, ErrNoBuilder)
}

func TestSaltFallbackStillExecutes(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	remote, err := h.engine.Account(context.Background())
	require.NoError(t, err)

	h.mock.SetSaltStatus(500)
	fallback, err := h.engine.Account(context.Background())
	require.NoError(t, err)
	require.Equal(t, salt.SourceFallback, fallback.Salt.Source)
	require.NotEqual(t, remote.Address, fallback.Address)

	_, err = h.engine.Execute(context.Background(), ExecuteRequest{Builder: staticTx([]byte("tx"))})
	require.NoError(t, err)
}

func TestSignOut(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	require.NoError(t, h.engine.SignOut(context.Background()))
	state, s, err := h.engine.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNoSession, state)
	require.Nil(t, s)
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	mock := testutil.NewMockServices(t)
	path := t.TempDir() + "/session.json"
	provider := oauth.Google("client", "http://localhost/cb", "")

	e1, err := NewEngine(session.NewFileStore(path), ledger.NewClient(mock.URL(), nil, nil), WithProvider(provider))
	require.NoError(t, err)
	req, err := e1.BeginLogin(context.Background())
	require.NoError(t, err)

	e2, err := NewEngine(session.NewFileStore(path), ledger.NewClient(mock.URL(), nil, nil), WithProvider(provider))
	require.NoError(t, err)
	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", req.Nonce))
	_, err = e2.CompleteLogin(context.Background(), token)
	require.NoError(t, err)

	state, _, err := e2.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateSessionPersisted, state)
}
