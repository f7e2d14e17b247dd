// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aplane-algo/zklogin/internal/app"
	"github.com/aplane-algo/zklogin/internal/testutil"
	"github.com/aplane-algo/zklogin/internal/util"
)

type proxyHarness struct {
	mock   *testutil.MockServices
	wire   *app.Wire
	server *httptest.Server
}

func newProxyHarness(t *testing.T, mutate func(*util.Config)) *proxyHarness {
	t.Helper()
	mock := testutil.NewMockServices(t)

	cfg := util.DefaultConfig()
	cfg.RPCURL = mock.URL()
	cfg.OAuth.ClientID = "test-client.apps.googleusercontent.com"
	cfg.Salt.URL = mock.URL() + "/salt"
	cfg.Prover.URL = mock.URL() + "/prove"
	cfg.Sponsor.URL = mock.URL() + "/sponsor"
	cfg.Sponsor.Address = mock.SponsorAddress()
	cfg.Faucet.URL = mock.URL()
	if mutate != nil {
		mutate(&cfg)
	}

	dir := t.TempDir()
	wire, err := app.NewWire(cfg, app.Options{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(wire.Close)

	audit, err := NewAuditLogger(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	srv := httptest.NewServer(NewProxy(wire, audit, util.Log()).Handler())
	t.Cleanup(srv.Close)
	return &proxyHarness{mock: mock, wire: wire, server: srv}
}

func (h *proxyHarness) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	h := newProxyHarness(t, nil)
	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCallbackPage(t *testing.T) {
	h := newProxyHarness(t, nil)
	resp, err := http.Get(h.server.URL + "/zk/callback")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	require.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))
}

func TestCompleteLogin(t *testing.T) {
	h := newProxyHarness(t, nil)
	req, err := h.wire.Engine.BeginLogin(context.Background())
	require.NoError(t, err)

	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", req.Nonce))
	callback := "http://127.0.0.1:11280/zk/callback#id_token=" + token + "&state=" + req.State
	resp, out := h.post(t, "/zk/complete", completeRequest{Callback: callback})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, req.SessionID, out["session"])
	require.Equal(t, "sub-1", out["subject"])
	require.Equal(t, "remote", out["saltSource"])
	require.NotEmpty(t, out["address"])

	addr, err := h.wire.Engine.Address(context.Background())
	require.NoError(t, err)
	require.Equal(t, addr, out["address"])
}

func TestCompleteLoginRejectsForeignNonce(t *testing.T) {
	h := newProxyHarness(t, nil)
	_, err := h.wire.Engine.BeginLogin(context.Background())
	require.NoError(t, err)

	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", "AAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	resp, _ := h.post(t, "/zk/complete", completeRequest{Callback: token})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCompleteLoginWithoutSession(t *testing.T) {
	h := newProxyHarness(t, nil)
	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", "AAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	resp, _ := h.post(t, "/zk/complete", completeRequest{Callback: token})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSaltProxy(t *testing.T) {
	h := newProxyHarness(t, nil)
	token := testutil.MakeIDToken(t, testutil.GoogleClaims("sub-1", "n"))

	resp, out := h.post(t, "/api/zk/salt", saltRequest{JWT: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, h.mock.Salt, out["salt"])
	require.Nil(t, out["fallback"])

	h.mock.SetSaltStatus(http.StatusInternalServerError)
	resp, out = h.post(t, "/api/zk/salt", saltRequest{JWT: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, out["fallback"])

	resp, _ = h.post(t, "/api/zk/salt", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaltProxyRemoteOnly(t *testing.T) {
	h := newProxyHarness(t, func(c *util.Config) { c.Salt.Policy = util.SaltPolicyRemoteOnly })
	h.mock.SetSaltStatus(http.StatusInternalServerError)

	resp, _ := h.post(t, "/api/zk/salt", saltRequest{JWT: testutil.MakeIDToken(t, testutil.GoogleClaims("s", "n"))})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProofProxy(t *testing.T) {
	h := newProxyHarness(t, nil)
	resp, out := h.post(t, "/api/zk/proof", map[string]string{"jwt": "x"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, out, "proofPoints")
	require.Equal(t, 1, h.mock.Calls("/prove"))

	h.mock.ProofStatus = http.StatusServiceUnavailable
	resp, out = h.post(t, "/api/zk/proof", map[string]string{"jwt": "x"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, float64(http.StatusServiceUnavailable), out["status"])
}

func TestProofProxyNotConfigured(t *testing.T) {
	h := newProxyHarness(t, func(c *util.Config) { c.Prover.URL = "" })
	resp, _ := h.post(t, "/api/zk/proof", map[string]string{})
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestSponsorProxy(t *testing.T) {
	h := newProxyHarness(t, nil)
	resp, out := h.post(t, "/api/zk/sponsor", map[string]string{"txBytes": "dHg=", "sender": "0x1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, out["sponsorSignature"])
}

func TestFaucetProxy(t *testing.T) {
	h := newProxyHarness(t, nil)
	resp, _ := h.post(t, "/api/zk/faucet", faucetRequest{Address: "0xabc"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, h.mock.Calls("/gas"))

	resp, _ = h.post(t, "/api/zk/faucet", faucetRequest{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProverURLs(t *testing.T) {
	require.Equal(t, []string{"https://prover.example.com/v1"}, proverURLs("https://prover.example.com/v1/"))
	require.Equal(t,
		[]string{"http://localhost:8080/v1", "http://127.0.0.1:8080/v1"},
		proverURLs("http://localhost:8080/v1"))
}
