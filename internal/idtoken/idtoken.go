// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package idtoken reads claims from OpenID Connect ID tokens.
//
// Tokens are never verified here: the zero-knowledge proof attests to the
// provider's signature, and the ledger checks the proof.
package idtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when a token cannot be decoded.
	ErrMalformedToken = errors.New("malformed ID token")

	// ErrMissingClaim is returned when a claim required for address
	// derivation is absent or empty.
	ErrMissingClaim = errors.New("missing claim")
)

// Claims holds the ID token claims zkLogin uses.
type Claims struct {
	Issuer   string
	Subject  string
	Audience string
	Nonce    string
	Email    string
	Expiry   time.Time
	IssuedAt time.Time
}

// Decode parses the token payload without verifying its signature.
// When aud is an array, the first entry is used.
func Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	c := &Claims{}
	var err error
	if c.Issuer, err = mc.GetIssuer(); err != nil {
		return nil, fmt.Errorf("%w: iss: %v", ErrMalformedToken, err)
	}
	if c.Subject, err = mc.GetSubject(); err != nil {
		return nil, fmt.Errorf("%w: sub: %v", ErrMalformedToken, err)
	}
	aud, err := mc.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: aud: %v", ErrMalformedToken, err)
	}
	if len(aud) > 0 {
		c.Audience = aud[0]
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.Expiry = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	c.Nonce, _ = mc["nonce"].(string)
	c.Email, _ = mc["email"].(string)

	return c, nil
}

// RequireAddressClaims checks that iss, sub and aud are present.
func (c *Claims) RequireAddressClaims() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: iss", ErrMissingClaim)
	case c.Subject == "":
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	case c.Audience == "":
		return fmt.Errorf("%w: aud", ErrMissingClaim)
	}
	return nil
}

// Expired reports whether the token's exp claim is before now.
// Tokens without exp never expire.
func (c *Claims) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && now.After(c.Expiry)
}
