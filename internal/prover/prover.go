// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package prover requests zkLogin proofs from a proving service.
package prover

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/aplane-algo/zklogin/internal/address"
	"github.com/aplane-algo/zklogin/internal/ephemeral"
	"github.com/aplane-algo/zklogin/internal/transport"
	"github.com/aplane-algo/zklogin/internal/util"
)

// saltSize is the fixed width of the salt in a proof request.
const saltSize = 16

var (
	// ErrProverUnavailable is returned when the prover cannot be reached,
	// answers with an error status or returns an unusable body.
	ErrProverUnavailable = errors.New("prover unavailable")

	// ErrSaltTooLarge is returned when a salt does not fit in 16 bytes.
	ErrSaltTooLarge = errors.New("salt does not fit in 16 bytes")
)

// Request is the body sent to the proving service.
type Request struct {
	JWT                        string `json:"jwt"`
	Salt                       string `json:"salt"`
	MaxEpoch                   string `json:"maxEpoch"`
	JWTRandomness              string `json:"jwtRandomness"`
	ExtendedEphemeralPublicKey string `json:"extendedEphemeralPublicKey"`
	KeyClaimName               string `json:"keyClaimName"`
}

// NewRequest encodes the proof inputs. suiPub is the 33-byte flag||pk form.
func NewRequest(token string, salt *big.Int, maxEpoch uint64, r ephemeral.Randomness, suiPub []byte) (Request, error) {
	if salt == nil || salt.Sign() < 0 || salt.BitLen() > saltSize*8 {
		return Request{}, ErrSaltTooLarge
	}
	if len(suiPub) != 33 || suiPub[0] != ephemeral.FlagEd25519 {
		return Request{}, fmt.Errorf("extended ephemeral public key must be 33 bytes starting with the ed25519 flag")
	}

	return Request{
		JWT:                        token,
		Salt:                       base64.StdEncoding.EncodeToString(salt.FillBytes(make([]byte, saltSize))),
		MaxEpoch:                   strconv.FormatUint(maxEpoch, 10),
		JWTRandomness:              r.Base64(),
		ExtendedEphemeralPublicKey: base64.StdEncoding.EncodeToString(suiPub),
		KeyClaimName:               address.KeyClaimName,
	}, nil
}

// ProofPoints are the Groth16 proof coordinates as decimal strings.
type ProofPoints struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

// IssBase64Details locates the iss claim inside the token payload.
type IssBase64Details struct {
	Value     string `json:"value"`
	IndexMod4 uint8  `json:"indexMod4"`
}

// Inputs are the proof fields returned by the prover.
type Inputs struct {
	ProofPoints      ProofPoints      `json:"proofPoints"`
	IssBase64Details IssBase64Details `json:"issBase64Details"`
	HeaderBase64     string           `json:"headerBase64"`
}

func (in *Inputs) validate() error {
	switch {
	case len(in.ProofPoints.A) == 0 || len(in.ProofPoints.B) == 0 || len(in.ProofPoints.C) == 0:
		return errors.New("missing proof points")
	case in.IssBase64Details.Value == "":
		return errors.New("missing issBase64Details")
	case in.HeaderBase64 == "":
		return errors.New("missing headerBase64")
	}
	return nil
}

// Client talks to a proving service.
type Client struct {
	url    string
	client *transport.Client
	logger *slog.Logger
}

// NewClient returns a Client posting to url. Proving is slow, so give
// httpClient a generous timeout.
func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = util.Log()
	}
	return &Client{url: url, client: transport.New(httpClient), logger: logger}
}

// RequestProof posts req and returns the proof inputs. Bodies wrapped in
// {"inputs": ...} are unwrapped.
func (c *Client) RequestProof(ctx context.Context, req Request) (*Inputs, error) {
	if c.url == "" {
		return nil, fmt.Errorf("%w: prover URL not configured", ErrProverUnavailable)
	}

	c.logger.Debug("requesting proof", "prover", c.url, "maxEpoch", req.MaxEpoch)

	var raw json.RawMessage
	if err := c.client.PostJSON(ctx, c.url, req, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProverUnavailable, err)
	}

	inputs, err := decodeInputs(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProverUnavailable, err)
	}
	return inputs, nil
}

func decodeInputs(raw json.RawMessage) (*Inputs, error) {
	var wrapped struct {
		Inputs *Inputs `json:"inputs"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Inputs != nil {
		if err := wrapped.Inputs.validate(); err != nil {
			return nil, err
		}
		return wrapped.Inputs, nil
	}

	var in Inputs
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to decode proof: %w", err)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &in, nil
}
