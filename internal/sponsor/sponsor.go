// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package sponsor asks a gas sponsor to co-sign transaction bytes.
package sponsor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aplane-algo/zklogin/internal/signature"
	"github.com/aplane-algo/zklogin/internal/transport"
	"github.com/aplane-algo/zklogin/internal/util"
)

// ErrSponsorUnavailable is returned when the sponsor cannot be reached,
// refuses, or answers without a signature.
var ErrSponsorUnavailable = errors.New("sponsor unavailable")

// Request is the body sent to the sponsor.
type Request struct {
	TxBytes string `json:"txBytes"`
	Sender  string `json:"sender"`
}

// Response is the sponsor's reply. SponsorSignature is canonical;
// Signature and Sig are accepted from older sponsors.
type Response struct {
	SponsorSignature string `json:"sponsorSignature"`

	// Deprecated: use SponsorSignature.
	Signature string `json:"signature,omitempty"`

	// Deprecated: use SponsorSignature.
	Sig string `json:"sig,omitempty"`
}

// Resolve returns the signature, preferring the canonical field.
func (r Response) Resolve() (value string, field string) {
	switch {
	case r.SponsorSignature != "":
		return r.SponsorSignature, "sponsorSignature"
	case r.Signature != "":
		return r.Signature, "signature"
	case r.Sig != "":
		return r.Sig, "sig"
	}
	return "", ""
}

// Client talks to a sponsor service.
type Client struct {
	url    string
	client *transport.Client
	logger *slog.Logger
}

// NewClient returns a Client posting to url.
func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = util.Log()
	}
	return &Client{url: url, client: transport.New(httpClient), logger: logger}
}

// Sign sends txBytes to the sponsor. The returned digest is computed from
// the exact bytes sent so the signature can be checked against the user's.
func (c *Client) Sign(ctx context.Context, txBytes []byte, sender string) (signature.SponsorSignature, error) {
	if c.url == "" {
		return signature.SponsorSignature{}, fmt.Errorf("%w: sponsor URL not configured", ErrSponsorUnavailable)
	}

	req := Request{TxBytes: base64.StdEncoding.EncodeToString(txBytes), Sender: sender}
	var resp Response
	if err := c.client.PostJSON(ctx, c.url, req, &resp); err != nil {
		return signature.SponsorSignature{}, fmt.Errorf("%w: %v", ErrSponsorUnavailable, err)
	}

	sig, field := resp.Resolve()
	if sig == "" {
		return signature.SponsorSignature{}, fmt.Errorf("%w: response carries no signature", ErrSponsorUnavailable)
	}
	if field != "sponsorSignature" {
		c.logger.Warn("sponsor used deprecated response field", "field", field)
	}

	return signature.SponsorSignature{Serialized: sig, Digest: signature.Digest(txBytes)}, nil
}
