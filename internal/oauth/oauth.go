// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package oauth builds implicit-flow authorization URLs and extracts the
// ID token from the provider's redirect.
package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// GoogleAuthURL is Google's authorization endpoint.
const GoogleAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

var (
	// ErrNotConfigured is returned when the client ID or redirect URI is missing.
	ErrNotConfigured = errors.New("oauth client not configured")

	// ErrNoToken is returned when a callback carries no id_token.
	ErrNoToken = errors.New("callback carries no id_token")

	// ErrDenied is returned when the provider reports an error in the callback.
	ErrDenied = errors.New("authorization denied")
)

// Provider describes an OpenID Connect provider using the implicit flow.
type Provider struct {
	AuthURL     string
	ClientID    string
	RedirectURI string
	Scope       string
}

// Google returns the Google provider.
func Google(clientID, redirectURI, scope string) Provider {
	if scope == "" {
		scope = "openid email profile"
	}
	return Provider{AuthURL: GoogleAuthURL, ClientID: clientID, RedirectURI: redirectURI, Scope: scope}
}

// AuthorizationURL returns the URL the user visits to sign in.
func (p Provider) AuthorizationURL(nonce, state string) (string, error) {
	if p.ClientID == "" || p.RedirectURI == "" {
		return "", ErrNotConfigured
	}
	u, err := url.Parse(p.AuthURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("response_type", "id_token")
	q.Set("scope", p.Scope)
	q.Set("nonce", nonce)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewState returns a random anti-CSRF state value.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Callback holds what the provider returned.
type Callback struct {
	IDToken string
	State   string
}

// ParseCallback accepts a full redirect URL (token in fragment or query),
// a bare fragment or query string, or the bare token itself.
func ParseCallback(raw string) (Callback, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Callback{}, ErrNoToken
	}
	if looksLikeJWT(raw) {
		return Callback{IDToken: raw}, nil
	}

	var candidates []string
	if u, err := url.Parse(raw); err == nil && (u.Scheme != "" || u.Fragment != "" || u.RawQuery != "") {
		candidates = append(candidates, u.Fragment, u.RawQuery)
	} else {
		candidates = append(candidates, strings.TrimLeft(raw, "#?"))
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		values, err := url.ParseQuery(c)
		if err != nil {
			continue
		}
		if e := values.Get("error"); e != "" {
			if d := values.Get("error_description"); d != "" {
				return Callback{}, fmt.Errorf("%w: %s: %s", ErrDenied, e, d)
			}
			return Callback{}, fmt.Errorf("%w: %s", ErrDenied, e)
		}
		if token := values.Get("id_token"); token != "" {
			return Callback{IDToken: token, State: values.Get("state")}, nil
		}
	}
	return Callback{}, ErrNoToken
}

func looksLikeJWT(s string) bool {
	if strings.ContainsAny(s, "/?#=&: ") {
		return false
	}
	return strings.Count(s, ".") == 2
}
