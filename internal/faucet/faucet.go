// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package faucet requests test-network gas for an address.
package faucet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aplane-algo/zklogin/internal/transport"
	"github.com/aplane-algo/zklogin/internal/util"
)

// ErrFaucetUnavailable is returned when no request shape was accepted.
var ErrFaucetUnavailable = errors.New("faucet unavailable")

// Client requests gas from a faucet. Faucet deployments disagree on the
// body they accept, so several shapes are tried in order.
type Client struct {
	url     string
	network string
	client  *transport.Client
	logger  *slog.Logger
}

// NewClient returns a Client for the faucet at baseURL. "/gas" is appended
// unless already present.
func NewClient(baseURL, network string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = util.Log()
	}
	return &Client{url: GasURL(baseURL), network: network, client: transport.New(httpClient), logger: logger}
}

// GasURL normalizes a faucet base URL to its /gas endpoint.
func GasURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" || strings.HasSuffix(base, "/gas") {
		return base
	}
	return base + "/gas"
}

func (c *Client) bodies(recipient string) []interface{} {
	fixed := map[string]interface{}{"recipient": recipient}
	withNetwork := map[string]interface{}{"FixedAmountRequest": fixed}
	if c.network != "" {
		withNetwork["network"] = c.network
	}
	return []interface{}{
		withNetwork,
		map[string]interface{}{"FixedAmountRequest": fixed},
		map[string]interface{}{"recipient": recipient},
		map[string]interface{}{"address": recipient},
	}
}

// Request asks for gas for recipient and returns the faucet's response.
func (c *Client) Request(ctx context.Context, recipient string) (json.RawMessage, error) {
	if c.url == "" {
		return nil, fmt.Errorf("%w: no faucet for this network", ErrFaucetUnavailable)
	}

	var lastErr error
	for i, body := range c.bodies(recipient) {
		var resp json.RawMessage
		err := c.client.PostJSON(ctx, c.url, body, &resp)
		if err == nil {
			c.logger.Debug("faucet accepted request", "attempt", i+1)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("faucet rejected request shape", "attempt", i+1, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrFaucetUnavailable, lastErr)
}
