// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"github.com/aplane-algo/zklogin/internal/app"
	"github.com/aplane-algo/zklogin/internal/engine"
	"github.com/aplane-algo/zklogin/internal/idtoken"
	"github.com/aplane-algo/zklogin/internal/oauth"
	"github.com/aplane-algo/zklogin/internal/salt"
	"github.com/aplane-algo/zklogin/internal/transport"
)

// maxRequestBody caps what clients may post to the proxy.
const maxRequestBody = 1 << 20

// Proxy serves the OAuth redirect page and forwards salt, proof, sponsor
// and faucet requests to the configured services.
type Proxy struct {
	wire        *app.Wire
	client      *transport.Client
	proofLimit  ratelimit.Limiter
	faucetLimit ratelimit.Limiter
	audit       *AuditLogger
	logger      *slog.Logger
}

// NewProxy wraps wire. audit may be nil.
func NewProxy(wire *app.Wire, audit *AuditLogger, logger *slog.Logger) *Proxy {
	cfg := wire.Config.Proxy
	return &Proxy{
		wire:        wire,
		client:      transport.New(wire.HTTP),
		proofLimit:  newLimiter(cfg.ProofsPerMinute),
		faucetLimit: newLimiter(cfg.FaucetPerMinute),
		audit:       audit,
		logger:      logger,
	}
}

func newLimiter(perMinute int) ratelimit.Limiter {
	if perMinute <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(perMinute, ratelimit.Per(time.Minute))
}

// Handler returns the proxy's routes.
func (p *Proxy) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /zk/callback", p.handleCallbackPage)
	mux.HandleFunc("POST /zk/complete", p.handleComplete)
	mux.HandleFunc("POST /api/zk/salt", p.handleSalt)
	mux.HandleFunc("POST /api/zk/proof", p.handleProof)
	mux.HandleFunc("POST /api/zk/sponsor", p.handleSponsor)
	mux.HandleFunc("POST /api/zk/faucet", p.handleFaucet)
	mux.HandleFunc("GET /health", p.handleHealth)
	return mux
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	return body, true
}

func (p *Proxy) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "zkproxyd",
	})
}

func (p *Proxy) handleCallbackPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	_, _ = io.WriteString(w, callbackPage)
}

type completeRequest struct {
	Callback string `json:"callback"`
}

type completeResponse struct {
	Session    string `json:"session"`
	Subject    string `json:"subject"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address,omitempty"`
	SaltSource string `json:"saltSource,omitempty"`
}

func (p *Proxy) handleComplete(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Callback == "" {
		writeError(w, http.StatusBadRequest, "missing callback")
		return
	}

	ctx := r.Context()
	s, err := p.wire.Engine.CompleteLogin(ctx, req.Callback)
	if err != nil {
		p.audit.LogLoginFailed(remoteIP(r), err.Error())
		writeError(w, completeStatus(err), err.Error())
		return
	}

	claims, err := idtoken.Decode(s.IDToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := completeResponse{Session: s.ID, Subject: claims.Subject, Email: claims.Email}

	// The login is already stored; an unreachable salt service only costs
	// the address preview.
	if acct, err := p.wire.Engine.Account(ctx); err != nil {
		p.logger.Warn("address preview failed", "error", err)
	} else {
		resp.Address = acct.Address
		resp.SaltSource = string(acct.Salt.Source)
	}

	p.audit.LogLoginCompleted(s.ID, claims.Subject, resp.Address, remoteIP(r))
	p.logger.Info("login completed", "session", s.ID, "address", resp.Address)
	writeJSON(w, http.StatusOK, resp)
}

func completeStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionMissing):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNonceMismatch), errors.Is(err, engine.ErrStateMismatch):
		return http.StatusForbidden
	case errors.Is(err, oauth.ErrDenied):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

type saltRequest struct {
	JWT string `json:"jwt"`
}

type saltResponse struct {
	Salt     string `json:"salt"`
	Fallback bool   `json:"fallback,omitempty"`
}

func (p *Proxy) handleSalt(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req saltRequest
	if err := json.Unmarshal(body, &req); err != nil || req.JWT == "" {
		writeError(w, http.StatusBadRequest, "missing jwt")
		return
	}

	s, err := p.wire.Salts.Resolve(r.Context(), req.JWT)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	p.audit.Log(AuditEntry{Event: AuditSaltResolved, SaltSource: string(s.Source), RemoteAddr: remoteIP(r)})
	writeJSON(w, http.StatusOK, saltResponse{Salt: s.Value.String(), Fallback: s.Source == salt.SourceFallback})
}

// proverURLs returns the prover URL, plus a 127.0.0.1 variant when it
// names localhost, for hosts where localhost resolves to ::1 only.
func proverURLs(raw string) []string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	urls := []string{raw}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() != "localhost" {
		return urls
	}
	if port := u.Port(); port != "" {
		u.Host = "127.0.0.1:" + port
	} else {
		u.Host = "127.0.0.1"
	}
	return append(urls, u.String())
}

func (p *Proxy) handleProof(w http.ResponseWriter, r *http.Request) {
	target := p.wire.Config.Prover.URL
	if target == "" {
		writeError(w, http.StatusNotImplemented, "no prover configured")
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	p.proofLimit.Take()
	p.audit.Log(AuditEntry{Event: AuditProofRequest, RemoteAddr: remoteIP(r)})

	var lastErr error
	for _, u := range proverURLs(target) {
		status, resp, err := p.client.PostRaw(r.Context(), u, body)
		if err != nil {
			p.logger.Warn("prover unreachable", "url", u, "error", err)
			lastErr = err
			continue
		}
		if status < 200 || status >= 300 {
			p.audit.Log(AuditEntry{Event: AuditProofFailed, Status: status, RemoteAddr: remoteIP(r)})
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":   "prover failed",
				"status":  status,
				"details": upstreamDetails(resp),
			})
			return
		}
		writeRaw(w, http.StatusOK, resp)
		return
	}

	p.audit.Log(AuditEntry{Event: AuditProofFailed, RemoteAddr: remoteIP(r), Reason: lastErr.Error()})
	writeError(w, http.StatusBadGateway, "prover unreachable: "+lastErr.Error())
}

func (p *Proxy) handleSponsor(w http.ResponseWriter, r *http.Request) {
	target := p.wire.Config.Sponsor.URL
	if target == "" {
		writeError(w, http.StatusNotImplemented, "no sponsor configured")
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	status, resp, err := p.client.PostRaw(r.Context(), target, body)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	p.audit.Log(AuditEntry{Event: AuditSponsorRequest, Status: status, RemoteAddr: remoteIP(r)})
	if status < 200 || status >= 300 {
		writeJSON(w, status, upstreamDetails(resp))
		return
	}
	writeRaw(w, http.StatusOK, resp)
}

type faucetRequest struct {
	Address string `json:"address"`
}

func (p *Proxy) handleFaucet(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req faucetRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}
	if p.wire.Config.FaucetURL() == "" {
		writeError(w, http.StatusNotImplemented, "no faucet for this network")
		return
	}

	p.faucetLimit.Take()
	resp, err := p.wire.Faucet.Request(r.Context(), req.Address)
	if err != nil {
		p.audit.Log(AuditEntry{Event: AuditFaucetFailed, Address: req.Address, RemoteAddr: remoteIP(r), Reason: err.Error()})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	p.audit.Log(AuditEntry{Event: AuditFaucetRequest, Address: req.Address, RemoteAddr: remoteIP(r)})
	writeRaw(w, http.StatusOK, resp)
}

// upstreamDetails returns body as JSON when it parses, else wrapped as {"raw": ...}.
func upstreamDetails(body []byte) interface{} {
	var v interface{}
	if json.Unmarshal(body, &v) == nil {
		return v
	}
	return map[string]string{"raw": string(body)}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	if !json.Valid(body) {
		writeJSON(w, status, map[string]interface{}{"ok": true, "raw": string(body)})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
