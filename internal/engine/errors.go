// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"errors"

	"github.com/aplane-algo/zklogin/internal/ephemeral"
	"github.com/aplane-algo/zklogin/internal/idtoken"
	"github.com/aplane-algo/zklogin/internal/ledger"
	"github.com/aplane-algo/zklogin/internal/nonce"
	"github.com/aplane-algo/zklogin/internal/prover"
	"github.com/aplane-algo/zklogin/internal/salt"
	"github.com/aplane-algo/zklogin/internal/signature"
	"github.com/aplane-algo/zklogin/internal/sponsor"
)

var (
	// ErrSessionMissing indicates no usable authenticated session is stored
	ErrSessionMissing = errors.New("no zkLogin session; sign in first")

	// ErrStateMismatch indicates the callback state differs from the one sent
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrNoBuilder indicates Execute was called without a transaction builder
	ErrNoBuilder = errors.New("no transaction builder")

	// ErrEmptyTransaction indicates the builder returned no bytes
	ErrEmptyTransaction = errors.New("transaction builder returned no bytes")
)

// Errors surfaced from the component packages, re-exported so callers can
// match on them without importing each package.
var (
	ErrEntropyFailure         = ephemeral.ErrEntropyFailure
	ErrNonceMismatch          = nonce.ErrNonceMismatch
	ErrMissingClaim           = idtoken.ErrMissingClaim
	ErrSaltServiceUnavailable = salt.ErrSaltServiceUnavailable
	ErrProverUnavailable      = prover.ErrProverUnavailable
	ErrSignatureMismatch      = signature.ErrSignatureMismatch
	ErrSponsorUnavailable     = sponsor.ErrSponsorUnavailable
	ErrLedgerRejected         = ledger.ErrLedgerRejected
)
