// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/aplane-algo/zklogin/internal/ledger"
	"github.com/aplane-algo/zklogin/internal/nonce"
	"github.com/aplane-algo/zklogin/internal/prover"
	"github.com/aplane-algo/zklogin/internal/signature"
)

// TxParams are the fields a builder must bake into the transaction.
type TxParams struct {
	Sender   string
	GasOwner string
}

// Builder produces transaction bytes. It is called once per Execute and
// the same buffer is signed by the user and, when sponsored, the sponsor.
type Builder interface {
	Build(ctx context.Context, p TxParams) ([]byte, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, p TxParams) ([]byte, error)

func (f BuilderFunc) Build(ctx context.Context, p TxParams) ([]byte, error) {
	return f(ctx, p)
}

// ExecuteRequest describes one transaction.
type ExecuteRequest struct {
	Builder   Builder
	Sponsored bool
}

// Execute builds, proves, signs and submits one transaction. Every failure
// is returned to the caller; nothing is retried.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*ledger.ExecutionResult, error) {
	if req.Builder == nil {
		return nil, ErrNoBuilder
	}
	if e.prover == nil {
		return nil, fmt.Errorf("%w: no prover configured", ErrProverUnavailable)
	}
	if req.Sponsored && (e.sponsor == nil || e.sponsorAddress == "") {
		return nil, fmt.Errorf("%w: no sponsor configured", ErrSponsorUnavailable)
	}

	acct, err := e.Account(ctx)
	if err != nil {
		return nil, err
	}
	s := acct.Session

	mat, err := s.Material()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionMissing, err)
	}
	defer mat.Key.Zero()

	// A token whose nonce was not derived from this key cannot be proven
	// for it; fail before spending a prover round trip.
	expected, err := nonce.Compute(mat.Key.PublicKey(), s.MaxEpoch, mat.Randomness)
	if err != nil {
		return nil, err
	}
	if err := nonce.Verify(acct.Claims.Nonce, expected); err != nil {
		return nil, err
	}

	params := TxParams{Sender: acct.Address, GasOwner: acct.Address}
	if req.Sponsored {
		params.GasOwner = e.sponsorAddress
	}
	txBytes, err := req.Builder.Build(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	if len(txBytes) == 0 {
		return nil, ErrEmptyTransaction
	}

	e.transition(StateProving)
	proofReq, err := prover.NewRequest(s.IDToken, acct.Salt.Value, s.MaxEpoch, mat.Randomness, mat.Key.SuiPublicKey())
	if err != nil {
		return nil, err
	}
	inputs, err := e.prover.RequestProof(ctx, proofReq)
	if err != nil {
		return nil, err
	}

	user := signature.SignTransactionBytes(mat.Key, txBytes)
	composite, err := signature.Compose(inputs, acct.AddressSeed, s.MaxEpoch, user)
	if err != nil {
		return nil, err
	}

	submission := signature.Single(composite)
	if req.Sponsored {
		sponsorSig, err := e.sponsor.Sign(ctx, txBytes, acct.Address)
		if err != nil {
			return nil, err
		}
		submission, err = signature.MergeSponsor(composite, sponsorSig)
		if err != nil {
			return nil, err
		}
	}
	e.transition(StateSigned)

	res, err := e.ledger.Execute(ctx, txBytes, submission.Signatures)
	if err != nil {
		var rejected *ledger.RejectedError
		if errors.As(err, &rejected) {
			e.logger.Debug("ledger rejected transaction", "code", rejected.Code)
		}
		return nil, err
	}
	e.transition(StateSubmitted)

	e.logger.Debug("transaction submitted", "digest", res.Digest, "sponsored", req.Sponsored)
	return res, nil
}
