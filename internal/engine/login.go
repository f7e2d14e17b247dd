// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aplane-algo/zklogin/internal/idtoken"
	"github.com/aplane-algo/zklogin/internal/nonce"
	"github.com/aplane-algo/zklogin/internal/oauth"
	"github.com/aplane-algo/zklogin/internal/session"
)

// LoginRequest is what the caller needs to send the user to the provider.
type LoginRequest struct {
	SessionID string
	URL       string
	Nonce     string
	State     string
	MaxEpoch  uint64
}

func isNoSession(err error) bool {
	return errors.Is(err, session.ErrNoSession)
}

// BeginLogin generates fresh ephemeral material, binds it into a nonce and
// persists it before returning the authorization URL. Any earlier session,
// complete or not, is replaced.
func (e *Engine) BeginLogin(ctx context.Context) (*LoginRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	epoch, err := e.ledger.CurrentEpoch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current epoch: %w", err)
	}

	mat, err := e.keys.BeginSession()
	if err != nil {
		return nil, err
	}
	defer mat.Key.Zero()
	e.transition(StateKeyGenerated)

	maxEpoch := nonce.MaxEpoch(epoch, e.maxEpochOffset)
	n, err := nonce.Compute(mat.Key.PublicKey(), maxEpoch, mat.Randomness)
	if err != nil {
		return nil, err
	}

	state, err := oauth.NewState()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}
	url, err := e.provider.AuthorizationURL(n, state)
	if err != nil {
		return nil, err
	}

	s := &session.Session{
		ID:         uuid.NewString(),
		PrivateKey: mat.Key.Encode(),
		Randomness: mat.Randomness.Base64(),
		MaxEpoch:   maxEpoch,
		OAuthState: state,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	e.transition(StateAwaitingRedirect)

	e.logger.Debug("login started", "session", s.ID, "epoch", epoch, "maxEpoch", maxEpoch)
	return &LoginRequest{SessionID: s.ID, URL: url, Nonce: n, State: state, MaxEpoch: maxEpoch}, nil
}

// CompleteLogin extracts the ID token from the provider callback, checks
// that its nonce was derived from the stored session, and stores it.
func (e *Engine) CompleteLogin(ctx context.Context, callback string) (*session.Session, error) {
	cb, err := oauth.ParseCallback(callback)
	if err != nil {
		return nil, err
	}
	claims, err := idtoken.Decode(cb.IDToken)
	if err != nil {
		return nil, err
	}
	if err := claims.RequireAddressClaims(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.store.Load(ctx)
	if err != nil {
		if isNoSession(err) {
			return nil, fmt.Errorf("%w: %v", ErrSessionMissing, err)
		}
		return nil, err
	}
	if cb.State != "" && s.OAuthState != "" && cb.State != s.OAuthState {
		return nil, ErrStateMismatch
	}

	mat, err := s.Material()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionMissing, err)
	}
	defer mat.Key.Zero()

	expected, err := nonce.Compute(mat.Key.PublicKey(), s.MaxEpoch, mat.Randomness)
	if err != nil {
		return nil, err
	}
	if err := nonce.Verify(claims.Nonce, expected); err != nil {
		return nil, err
	}

	s.IDToken = cb.IDToken
	if err := e.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	e.transition(StateSessionPersisted)

	e.logger.Debug("login completed", "session", s.ID, "iss", claims.Issuer)
	return s, nil
}

// SignOut removes the stored session.
func (e *Engine) SignOut(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.transition(StateNoSession)
	return nil
}
