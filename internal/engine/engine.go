// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package engine orchestrates a zkLogin session, independent of any UI:
// login, address derivation, and proof-backed transaction execution.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aplane-algo/zklogin/internal/ephemeral"
	"github.com/aplane-algo/zklogin/internal/ledger"
	"github.com/aplane-algo/zklogin/internal/nonce"
	"github.com/aplane-algo/zklogin/internal/oauth"
	"github.com/aplane-algo/zklogin/internal/prover"
	"github.com/aplane-algo/zklogin/internal/salt"
	"github.com/aplane-algo/zklogin/internal/session"
	"github.com/aplane-algo/zklogin/internal/signature"
	"github.com/aplane-algo/zklogin/internal/util"
)

// State is a step of the session lifecycle.
type State int

const (
	StateNoSession State = iota
	StateKeyGenerated
	StateAwaitingRedirect
	StateSessionPersisted
	StateProving
	StateSigned
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no session"
	case StateKeyGenerated:
		return "key generated"
	case StateAwaitingRedirect:
		return "awaiting redirect"
	case StateSessionPersisted:
		return "signed in"
	case StateProving:
		return "proving"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Observer is notified of every state transition.
type Observer func(State)

// Ledger is the subset of the fullnode client the engine needs.
type Ledger interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
	Execute(ctx context.Context, txBytes []byte, signatures []string) (*ledger.ExecutionResult, error)
}

// SaltResolver resolves the salt for a token.
type SaltResolver interface {
	Resolve(ctx context.Context, token string) (salt.Salt, error)
}

// Prover produces proof inputs.
type Prover interface {
	RequestProof(ctx context.Context, req prover.Request) (*prover.Inputs, error)
}

// Sponsor co-signs transaction bytes as gas owner.
type Sponsor interface {
	Sign(ctx context.Context, txBytes []byte, sender string) (signature.SponsorSignature, error)
}

// Engine holds the session store and remote clients.
type Engine struct {
	store   session.Store
	ledger  Ledger
	salts   SaltResolver
	prover  Prover
	sponsor Sponsor

	provider       oauth.Provider
	keys           *ephemeral.Generator
	maxEpochOffset uint64
	sponsorAddress string
	observer       Observer
	logger         *slog.Logger

	// serializes session mutations
	mu sync.Mutex
}

// EngineOption is a functional option for configuring the Engine
type EngineOption func(*Engine) error

// NewEngine creates an Engine over store. The ledger is required; the other
// clients are needed only by the operations that use them.
func NewEngine(store session.Store, l Ledger, opts ...EngineOption) (*Engine, error) {
	if store == nil || l == nil {
		return nil, fmt.Errorf("engine requires a session store and a ledger client")
	}
	e := &Engine{
		store:          store,
		ledger:         l,
		keys:           ephemeral.NewGenerator(nil),
		maxEpochOffset: nonce.DefaultMaxEpochOffset,
		logger:         util.Log(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// WithSaltResolver sets the salt resolver
func WithSaltResolver(r SaltResolver) EngineOption {
	return func(e *Engine) error {
		e.salts = r
		return nil
	}
}

// WithProver sets the proving service client
func WithProver(p Prover) EngineOption {
	return func(e *Engine) error {
		e.prover = p
		return nil
	}
}

// WithSponsor sets the gas sponsor client and the sponsor's gas owner address
func WithSponsor(s Sponsor, gasOwner string) EngineOption {
	return func(e *Engine) error {
		e.sponsor = s
		e.sponsorAddress = gasOwner
		return nil
	}
}

// WithProvider sets the identity provider
func WithProvider(p oauth.Provider) EngineOption {
	return func(e *Engine) error {
		e.provider = p
		return nil
	}
}

// WithMaxEpochOffset sets how many epochs a new session stays valid
func WithMaxEpochOffset(offset uint64) EngineOption {
	return func(e *Engine) error {
		e.maxEpochOffset = offset
		return nil
	}
}

// WithEntropy replaces crypto/rand as the key and randomness source
func WithEntropy(g *ephemeral.Generator) EngineOption {
	return func(e *Engine) error {
		e.keys = g
		return nil
	}
}

// WithObserver registers a state transition callback
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) error {
		e.observer = o
		return nil
	}
}

// WithLogger overrides the global logger
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

func (e *Engine) transition(s State) {
	e.logger.Debug("state transition", "state", s.String())
	if e.observer != nil {
		e.observer(s)
	}
}

// Status reports the persisted lifecycle state.
func (e *Engine) Status(ctx context.Context) (State, *session.Session, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		if isNoSession(err) {
			return StateNoSession, nil, nil
		}
		return StateNoSession, nil, err
	}
	if !s.Authenticated() {
		return StateAwaitingRedirect, s, nil
	}
	return StateSessionPersisted, s, nil
}

// CurrentEpoch returns the ledger's current epoch.
func (e *Engine) CurrentEpoch(ctx context.Context) (uint64, error) {
	return e.ledger.CurrentEpoch(ctx)
}
