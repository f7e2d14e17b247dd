// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package app builds the zkLogin dependency graph from configuration.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aplane-algo/zklogin/internal/engine"
	"github.com/aplane-algo/zklogin/internal/faucet"
	"github.com/aplane-algo/zklogin/internal/ledger"
	"github.com/aplane-algo/zklogin/internal/oauth"
	"github.com/aplane-algo/zklogin/internal/prover"
	"github.com/aplane-algo/zklogin/internal/salt"
	"github.com/aplane-algo/zklogin/internal/session"
	"github.com/aplane-algo/zklogin/internal/sponsor"
	"github.com/aplane-algo/zklogin/internal/util"
)

// Options are the runtime inputs that do not live in the config file.
type Options struct {
	DataDir    string
	Passphrase []byte
	HTTP       *http.Client
	Logger     *slog.Logger
	Observer   engine.Observer
}

// Wire bundles the store, remote clients and engine.
type Wire struct {
	Config  util.Config
	Store   *session.FileStore
	Ledger  *ledger.Client
	Salts   *salt.Resolver
	Prover  *prover.Client
	Sponsor *sponsor.Client
	Faucet  *faucet.Client
	Engine  *engine.Engine
	HTTP    *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg util.Config, opts Options) (*Wire, error) {
	logger := opts.Logger
	if logger == nil {
		logger = util.Log()
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout()}
	}

	store := session.NewFileStore(cfg.SessionPath(opts.DataDir))
	if cfg.Session.Encrypt {
		if len(opts.Passphrase) == 0 {
			return nil, fmt.Errorf("session.encrypt is set but no passphrase was provided")
		}
		store = store.WithPassphrase(opts.Passphrase)
	}

	salts, err := salt.NewResolver(salt.Options{
		URL:        cfg.Salt.URL,
		Policy:     salt.Policy(cfg.Salt.Policy),
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	w := &Wire{
		Config:  cfg,
		Store:   store,
		Ledger:  ledger.NewClient(cfg.LedgerURL(), httpClient, logger),
		Salts:   salts,
		Prover:  prover.NewClient(cfg.Prover.URL, httpClient, logger),
		Sponsor: sponsor.NewClient(cfg.Sponsor.URL, httpClient, logger),
		Faucet:  faucet.NewClient(cfg.FaucetURL(), cfg.Network, httpClient, logger),
		HTTP:    httpClient,
	}

	engineOpts := []engine.EngineOption{
		engine.WithSaltResolver(w.Salts),
		engine.WithProver(w.Prover),
		engine.WithProvider(oauth.Google(cfg.OAuth.ClientID, cfg.OAuth.RedirectURI, cfg.OAuth.Scope)),
		engine.WithMaxEpochOffset(cfg.MaxEpochOffset),
		engine.WithLogger(logger),
	}
	if cfg.Sponsor.URL != "" {
		engineOpts = append(engineOpts, engine.WithSponsor(w.Sponsor, cfg.Sponsor.Address))
	}
	if opts.Observer != nil {
		engineOpts = append(engineOpts, engine.WithObserver(opts.Observer))
	}

	w.Engine, err = engine.NewEngine(store, w.Ledger, engineOpts...)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Close releases the session store's key material.
func (w *Wire) Close() {
	w.Store.Close()
}
