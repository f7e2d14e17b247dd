// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package salt resolves the per-user salt that, together with the token
// claims, determines a zkLogin address.
package salt

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/aplane-algo/zklogin/internal/transport"
	"github.com/aplane-algo/zklogin/internal/util"
	"github.com/aplane-algo/zklogin/internal/zkfield"
)

// Source records where a salt came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Policy selects how the resolver treats the salt service.
type Policy string

const (
	PolicyRemoteWithFallback Policy = util.SaltPolicyRemoteWithFallback
	PolicyRemoteOnly         Policy = util.SaltPolicyRemoteOnly
	PolicyLocalOnly          Policy = util.SaltPolicyLocalOnly
)

// fallbackBytes is how much of the token digest the fallback salt keeps.
// Salts travel to the prover as 16 big-endian bytes, so a wider fallback
// would yield an address the proof cannot authorize.
const fallbackBytes = 16

var (
	// ErrSaltServiceUnavailable is returned under remote_only when the
	// service cannot be reached or answers with an unusable body.
	ErrSaltServiceUnavailable = errors.New("salt service unavailable")

	// ErrInvalidPolicy is returned for an unknown policy name.
	ErrInvalidPolicy = errors.New("invalid salt policy")
)

// Salt is a resolved salt value in the BN254 scalar field.
type Salt struct {
	Value  *big.Int
	Source Source
}

// String returns the decimal salt.
func (s Salt) String() string {
	if s.Value == nil {
		return ""
	}
	return s.Value.String()
}

// Fallback derives a salt from the token alone: SHA-256 of the token bytes,
// truncated to 16 bytes and read as a big-endian integer mod r.
//
// Reducing the whole digest would give salts the prover's 16-byte salt
// field cannot carry. The truncation means fallback addresses differ from
// those of clients that reduce the full digest; a session moving between
// the two lands on a different address.
func Fallback(token string) Salt {
	sum := sha256.Sum256([]byte(token))
	return Salt{Value: zkfield.ReduceBytes(sum[:fallbackBytes]), Source: SourceFallback}
}

// Options configures a Resolver.
type Options struct {
	URL        string
	Policy     Policy
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Resolver fetches salts from the salt service according to its policy.
// Concurrent calls for the same token share one request.
type Resolver struct {
	url    string
	policy Policy
	client *transport.Client
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver validates opts and returns a Resolver.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Policy == "" {
		opts.Policy = PolicyRemoteWithFallback
	}
	switch opts.Policy {
	case PolicyRemoteWithFallback, PolicyRemoteOnly, PolicyLocalOnly:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, opts.Policy)
	}
	if opts.Logger == nil {
		opts.Logger = util.Log()
	}
	return &Resolver{
		url:    strings.TrimSpace(opts.URL),
		policy: opts.Policy,
		client: transport.New(opts.HTTPClient),
		logger: opts.Logger,
	}, nil
}

// Policy returns the resolver's policy.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve returns the salt for token. A canceled ctx returns ctx.Err()
// and never falls back.
func (r *Resolver) Resolve(ctx context.Context, token string) (Salt, error) {
	if r.policy == PolicyLocalOnly {
		return Fallback(token), nil
	}

	// The shared fetch must outlive any one caller; the HTTP client timeout
	// bounds it instead. Each caller still stops waiting on its own ctx.
	ch := r.group.DoChan(token, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), token)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Salt{}, ctx.Err()
	}
	err := res.Err
	if err == nil {
		return Salt{Value: res.Val.(*big.Int), Source: SourceRemote}, nil
	}

	if r.policy == PolicyRemoteOnly {
		return Salt{}, fmt.Errorf("%w: %v", ErrSaltServiceUnavailable, err)
	}
	r.logger.Warn("salt service failed, using locally derived salt", "error", err)
	return Fallback(token), nil
}

type saltRequest struct {
	JWT string `json:"jwt"`
}

type saltResponse struct {
	Salt string `json:"salt"`
}

func (r *Resolver) fetch(ctx context.Context, token string) (*big.Int, error) {
	if r.url == "" {
		return nil, errors.New("salt service URL not configured")
	}

	var resp saltResponse
	if err := r.client.PostJSON(ctx, r.url, saltRequest{JWT: token}, &resp); err != nil {
		return nil, err
	}
	return ParseValue(resp.Salt)
}

// ParseValue parses a decimal salt and reduces it mod r.
func ParseValue(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("salt service returned an empty salt")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("salt service returned a non-decimal salt %q", s)
	}
	return zkfield.Reduce(v), nil
}
