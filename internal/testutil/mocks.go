// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package testutil

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/crypto/blake2b"
)

// RPCError is a JSON-RPC error object returned by the mock ledger.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MockServices emulates every remote zkLogin dependency on one test server:
//
//	POST /salt     salt service
//	POST /prove    proving service
//	POST /sponsor  gas sponsor
//	POST /gas      faucet
//	POST /         ledger JSON-RPC
type MockServices struct {
	Server *httptest.Server

	mu sync.Mutex

	// Epoch is returned by suix_getLatestSuiSystemState.
	Epoch uint64

	// Salt is the decimal salt returned by /salt. SaltStatus overrides the status when non-zero.
	Salt       string
	SaltStatus int

	// ProofStatus overrides the /prove status when non-zero.
	ProofStatus int

	// SponsorKey signs sponsored transactions. SponsorTamper flips a digest
	// bit before signing so the signature no longer matches.
	SponsorKey    ed25519.PrivateKey
	SponsorTamper bool

	// ExecuteError, when set, is returned for sui_executeTransactionBlock.
	ExecuteError *RPCError

	// TxBytes is returned by unsafe_moveCall.
	TxBytes []byte

	calls           map[string]int
	lastProof       map[string]interface{}
	lastExecute     []json.RawMessage
	lastSponsorBody map[string]interface{}
}

// NewMockServices starts a mock server with a random sponsor key.
func NewMockServices(t *testing.T) *MockServices {
	t.Helper()

	_, sponsorKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("Failed to generate sponsor key: %v", err)
	}

	m := &MockServices{
		Epoch:      10,
		Salt:       "129390038577185583942388216820280642146",
		SponsorKey: sponsorKey,
		TxBytes:    []byte("mock-transaction-bytes"),
		calls:      make(map[string]int),
	}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]interface{}
		raw := json.NewDecoder(r.Body)
		raw.UseNumber()
		if err := raw.Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		m.calls[r.URL.Path]++

		switch r.URL.Path {
		case "/salt":
			m.handleSalt(w)
		case "/prove":
			m.handleProve(w, body)
		case "/sponsor":
			m.handleSponsor(w, body)
		case "/gas":
			writeJSON(w, http.StatusOK, map[string]interface{}{"transferredGasObjects": []interface{}{map[string]interface{}{"amount": 1000000000}}})
		case "/":
			m.handleRPC(w, body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(m.Server.Close)

	return m
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (m *MockServices) handleSalt(w http.ResponseWriter) {
	if m.SaltStatus != 0 {
		http.Error(w, "salt service error", m.SaltStatus)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"salt": m.Salt})
}

func (m *MockServices) handleProve(w http.ResponseWriter, body map[string]interface{}) {
	m.lastProof = body
	if m.ProofStatus != 0 {
		http.Error(w, "prover error", m.ProofStatus)
		return
	}
	writeJSON(w, http.StatusOK, MockProofInputs())
}

func (m *MockServices) handleSponsor(w http.ResponseWriter, body map[string]interface{}) {
	m.lastSponsorBody = body
	txB64, _ := body["txBytes"].(string)
	txBytes, err := base64.StdEncoding.DecodeString(txB64)
	if err != nil {
		http.Error(w, "bad txBytes", http.StatusBadRequest)
		return
	}

	digest := IntentDigest(txBytes)
	if m.SponsorTamper {
		digest[0] ^= 0xff
	}
	sig := ed25519.Sign(m.SponsorKey, digest[:])
	pub := m.SponsorKey.Public().(ed25519.PublicKey)

	serialized := append([]byte{0x00}, sig...)
	serialized = append(serialized, pub...)
	writeJSON(w, http.StatusOK, map[string]string{"sponsorSignature": base64.StdEncoding.EncodeToString(serialized)})
}

func (m *MockServices) handleRPC(w http.ResponseWriter, body map[string]interface{}) {
	method, _ := body["method"].(string)
	id := body["id"]
	m.calls["rpc:"+method]++

	reply := map[string]interface{}{"jsonrpc": "2.0", "id": id}
	switch method {
	case "suix_getLatestSuiSystemState":
		reply["result"] = map[string]interface{}{"epoch": fmt.Sprintf("%d", m.Epoch)}
	case "sui_executeTransactionBlock":
		params, _ := json.Marshal(body["params"])
		var raw []json.RawMessage
		_ = json.Unmarshal(params, &raw)
		m.lastExecute = raw
		if m.ExecuteError != nil {
			reply["error"] = m.ExecuteError
		} else {
			reply["result"] = map[string]interface{}{
				"digest":  "MockDigest111111111111111111111111111111111",
				"effects": map[string]interface{}{"status": map[string]string{"status": "success"}},
				"events":  []interface{}{},
			}
		}
	case "suix_getCoins":
		reply["result"] = map[string]interface{}{
			"data": []interface{}{map[string]interface{}{
				"coinType":     "0x2::sui::SUI",
				"coinObjectId": "0xc0ffee",
				"version":      "7",
				"digest":       "CoinDigest",
				"balance":      "1000000000",
			}},
			"hasNextPage": false,
		}
	case "unsafe_moveCall":
		reply["result"] = map[string]string{"txBytes": base64.StdEncoding.EncodeToString(m.TxBytes)}
	default:
		reply["error"] = RPCError{Code: -32601, Message: "Method not found"}
	}
	writeJSON(w, http.StatusOK, reply)
}

// MockProofInputs is the proof returned by /prove.
func MockProofInputs() map[string]interface{} {
	return map[string]interface{}{
		"proofPoints": map[string]interface{}{
			"a": []string{"1", "2", "1"},
			"b": [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
			"c": []string{"7", "8", "1"},
		},
		"issBase64Details": map[string]interface{}{"value": "yJpc3MiOiJodHRwczovL2FjY291bnRzLmdvb2dsZS5jb20iLC", "indexMod4": 1},
		"headerBase64":     "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9",
	}
}

// IntentDigest hashes txBytes under the transaction-data intent.
func IntentDigest(txBytes []byte) [32]byte {
	return blake2b.Sum256(append([]byte{0, 0, 0}, txBytes...))
}

// URL returns the base URL of the mock server.
func (m *MockServices) URL() string {
	return m.Server.URL
}

// SponsorAddress returns the ledger address of the sponsor key.
func (m *MockServices) SponsorAddress() string {
	pub := m.SponsorKey.Public().(ed25519.PublicKey)
	sum := blake2b.Sum256(append([]byte{0x00}, pub...))
	return "0x" + hex.EncodeToString(sum[:])
}

// Calls returns how often path (or "rpc:<method>") was hit.
func (m *MockServices) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// LastProofRequest returns the most recent /prove body.
func (m *MockServices) LastProofRequest() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastProof
}

// LastSponsorRequest returns the most recent /sponsor body.
func (m *MockServices) LastSponsorRequest() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSponsorBody
}

// LastExecuteParams returns the params of the most recent execute call.
func (m *MockServices) LastExecuteParams() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastExecute
}

// SetSaltStatus makes /salt fail with status (0 restores success).
func (m *MockServices) SetSaltStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaltStatus = status
}
