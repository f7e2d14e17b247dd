// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package ledger is a JSON-RPC client for a Sui fullnode.
package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/aplane-algo/zklogin/internal/transport"
	"github.com/aplane-algo/zklogin/internal/util"
)

// ErrLedgerRejected matches every *RejectedError.
var ErrLedgerRejected = errors.New("ledger rejected request")

// RejectedError carries a JSON-RPC error object exactly as the node sent it.
type RejectedError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RejectedError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("ledger rejected request (code %d): %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("ledger rejected request (code %d): %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrLedgerRejected) match.
func (e *RejectedError) Is(target error) bool {
	return target == ErrLedgerRejected
}

// Client calls fullnode JSON-RPC methods.
type Client struct {
	url    string
	client *transport.Client
	logger *slog.Logger
	nextID atomic.Uint64
}

// NewClient returns a Client for the fullnode at url.
func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = util.Log()
	}
	return &Client{url: url, client: transport.New(httpClient), logger: logger}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RejectedError  `json:"error"`
}

// Call invokes method and decodes the result into out. A JSON-RPC error
// object is returned as *RejectedError, unmodified.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}

	var resp rpcResponse
	if err := c.client.PostJSON(ctx, c.url, req, &resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		c.logger.Debug("rpc error", "method", method, "code", resp.Error.Code, "message", resp.Error.Message)
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return fmt.Errorf("%s: empty result", method)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: %w: %v", method, transport.ErrDecode, err)
	}
	return nil
}

// CurrentEpoch returns the epoch from the latest system state.
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	var state struct {
		Epoch json.Number `json:"epoch"`
	}
	if err := c.Call(ctx, "suix_getLatestSuiSystemState", nil, &state); err != nil {
		return 0, err
	}
	epoch, err := strconv.ParseUint(state.Epoch.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid epoch %q: %w", state.Epoch, err)
	}
	return epoch, nil
}

// ExecutionResult is the node's response to an execute call.
type ExecutionResult struct {
	Digest  string          `json:"digest"`
	Effects json.RawMessage `json:"effects,omitempty"`
	Events  json.RawMessage `json:"events,omitempty"`
}

// Status returns effects.status.status ("success" or "failure"), or "" if absent.
func (r *ExecutionResult) Status() string {
	var effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	}
	if len(r.Effects) == 0 || json.Unmarshal(r.Effects, &effects) != nil {
		return ""
	}
	return effects.Status.Status
}

type executeOptions struct {
	ShowEffects bool `json:"showEffects"`
	ShowEvents  bool `json:"showEvents"`
}

// Execute submits txBytes with the ordered signature list and waits for
// local execution. It makes exactly one call and never retries.
func (c *Client) Execute(ctx context.Context, txBytes []byte, signatures []string) (*ExecutionResult, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(txBytes),
		signatures,
		executeOptions{ShowEffects: true, ShowEvents: true},
		"WaitForLocalExecution",
	}
	var res ExecutionResult
	if err := c.Call(ctx, "sui_executeTransactionBlock", params, &res); err != nil {
		return nil, err
	}
	c.logger.Debug("transaction executed", "digest", res.Digest, "status", res.Status())
	return &res, nil
}

// Coin is one owned coin object.
type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

// GetCoins lists coins of coinType owned by owner. An empty coinType means SUI.
func (c *Client) GetCoins(ctx context.Context, owner, coinType string, limit int) ([]Coin, error) {
	var ct interface{}
	if coinType != "" {
		ct = coinType
	}
	var page struct {
		Data []Coin `json:"data"`
	}
	if err := c.Call(ctx, "suix_getCoins", []interface{}{owner, ct, nil, limit}, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// MoveCall describes an entry-function call for unsafe_moveCall.
type MoveCall struct {
	Signer        string
	Package       string
	Module        string
	Function      string
	TypeArguments []string
	Arguments     []interface{}
	Gas           string // optional gas coin object ID
	GasBudget     uint64
}

// BuildMoveCall asks the node to construct transaction bytes for call.
func (c *Client) BuildMoveCall(ctx context.Context, call MoveCall) ([]byte, error) {
	typeArgs := call.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := call.Arguments
	if args == nil {
		args = []interface{}{}
	}
	var gas interface{}
	if call.Gas != "" {
		gas = call.Gas
	}

	params := []interface{}{
		call.Signer, call.Package, call.Module, call.Function,
		typeArgs, args, gas, strconv.FormatUint(call.GasBudget, 10),
	}
	var res struct {
		TxBytes string `json:"txBytes"`
	}
	if err := c.Call(ctx, "unsafe_moveCall", params, &res); err != nil {
		return nil, err
	}
	txBytes, err := base64.StdEncoding.DecodeString(res.TxBytes)
	if err != nil {
		return nil, fmt.Errorf("unsafe_moveCall returned invalid txBytes: %w", err)
	}
	return txBytes, nil
}
