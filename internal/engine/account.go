// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/aplane-algo/zklogin/internal/address"
	"github.com/aplane-algo/zklogin/internal/idtoken"
	"github.com/aplane-algo/zklogin/internal/salt"
	"github.com/aplane-algo/zklogin/internal/session"
)

// Account is the on-ledger identity of the signed-in user.
type Account struct {
	Address     string
	AddressSeed *big.Int
	Salt        salt.Salt
	Claims      *idtoken.Claims
	Session     *session.Session
}

// authenticated loads a session that has completed the callback.
func (e *Engine) authenticated(ctx context.Context) (*session.Session, *idtoken.Claims, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		if isNoSession(err) {
			return nil, nil, fmt.Errorf("%w: %v", ErrSessionMissing, err)
		}
		return nil, nil, err
	}
	if !s.Authenticated() {
		return nil, nil, fmt.Errorf("%w: login not completed", ErrSessionMissing)
	}
	claims, err := idtoken.Decode(s.IDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionMissing, err)
	}
	return s, claims, nil
}

// Account resolves the salt for the stored token and derives the address.
func (e *Engine) Account(ctx context.Context) (*Account, error) {
	if e.salts == nil {
		return nil, errors.New("no salt resolver configured")
	}
	s, claims, err := e.authenticated(ctx)
	if err != nil {
		return nil, err
	}

	sl, err := e.salts.Resolve(ctx, s.IDToken)
	if err != nil {
		return nil, err
	}
	addr, seed, err := address.Derive(claims, sl.Value)
	if err != nil {
		return nil, err
	}
	return &Account{Address: addr, AddressSeed: seed, Salt: sl, Claims: claims, Session: s}, nil
}

// Address returns the zkLogin address of the signed-in user.
func (e *Engine) Address(ctx context.Context) (string, error) {
	a, err := e.Account(ctx)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}
