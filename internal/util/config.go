// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Salt policies
const (
	SaltPolicyRemoteWithFallback = "remote_with_fallback"
	SaltPolicyRemoteOnly         = "remote_only"
	SaltPolicyLocalOnly          = "local_only"
)

// OAuthConfig holds the identity provider settings.
type OAuthConfig struct {
	Provider    string `yaml:"provider" description:"Identity provider (google)" default:"google"`
	ClientID    string `yaml:"client_id" description:"OAuth client ID (or ZKLOGIN_CLIENT_ID)"`
	RedirectURI string `yaml:"redirect_uri" description:"Redirect URI registered with the provider" default:"http://localhost:11280/zk/callback"`
	Scope       string `yaml:"scope" description:"Requested scopes" default:"openid email profile"`
}

// SaltConfig holds the salt service settings.
type SaltConfig struct {
	URL    string `yaml:"url" description:"Salt service URL (or ZKLOGIN_SALT_URL)"`
	Policy string `yaml:"policy" description:"remote_with_fallback, remote_only or local_only" default:"remote_with_fallback"`
}

// ProverConfig holds the proving service settings.
type ProverConfig struct {
	URL string `yaml:"url" description:"Proving service URL (or ZKLOGIN_PROVER_URL)"`
}

// SponsorConfig holds the gas sponsor settings.
type SponsorConfig struct {
	URL     string `yaml:"url" description:"Sponsor service URL (or ZKLOGIN_SPONSOR_URL)"`
	Address string `yaml:"address" description:"Sponsor gas owner address (or ZKLOGIN_SPONSOR_ADDRESS)"`
}

// FaucetConfig holds the test-network faucet settings.
type FaucetConfig struct {
	URL string `yaml:"url" description:"Faucet base URL (network default if empty)"`
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	File    string `yaml:"file" description:"Session file (relative to data dir)" default:"session.json"`
	Encrypt bool   `yaml:"encrypt" description:"Encrypt the session file with a passphrase" default:"false"`

	// PassphraseCommand is run with the "read" verb when no terminal is available
	PassphraseCommand []string `yaml:"passphrase_command_argv" description:"Helper argv printing the session passphrase (argv[0] relative to data dir)"`
}

// ProxyConfig holds zkproxyd settings.
type ProxyConfig struct {
	Port            int    `yaml:"port" description:"Local HTTP port for zkproxyd" default:"11280"`
	AuditLog        string `yaml:"audit_log" description:"Audit log file (relative to data dir, empty disables)" default:"audit.jsonl"`
	ProofsPerMinute int    `yaml:"proofs_per_minute" description:"Proof requests forwarded per minute" default:"30"`
	FaucetPerMinute int    `yaml:"faucet_per_minute" description:"Faucet requests forwarded per minute" default:"6"`
}

// Config holds zklogin configuration settings
type Config struct {
	Network        string `yaml:"network" description:"Network (devnet, testnet, mainnet)" default:"devnet"`
	RPCURL         string `yaml:"rpc_url" description:"Fullnode JSON-RPC URL (network default if empty)"`
	MaxEpochOffset uint64 `yaml:"max_epoch_offset" description:"Epochs a session stays valid past the current one" default:"2"`
	TimeoutSeconds int    `yaml:"timeout_seconds" description:"HTTP timeout for remote services" default:"60"`

	OAuth   OAuthConfig   `yaml:"oauth" description:"Identity provider"`
	Salt    SaltConfig    `yaml:"salt" description:"Salt service"`
	Prover  ProverConfig  `yaml:"prover" description:"Proving service"`
	Sponsor SponsorConfig `yaml:"sponsor" description:"Gas sponsor"`
	Faucet  FaucetConfig  `yaml:"faucet" description:"Faucet"`
	Session SessionConfig `yaml:"session" description:"Session persistence"`
	Proxy   ProxyConfig   `yaml:"proxy" description:"zkproxyd"`
}

// Default fullnode and faucet endpoints per network.
var (
	defaultRPCURLs = map[string]string{
		"devnet":  "https://fullnode.devnet.sui.io:443",
		"testnet": "https://fullnode.testnet.sui.io:443",
		"mainnet": "https://fullnode.mainnet.sui.io:443",
	}
	defaultFaucetURLs = map[string]string{
		"devnet":  "https://faucet.devnet.sui.io",
		"testnet": "https://faucet.testnet.sui.io",
	}
)

// DefaultConfig returns the default configuration for runtime use.
// Remote service URLs are empty - they must be configured explicitly.
func DefaultConfig() Config {
	return Config{
		Network:        "devnet",
		MaxEpochOffset: 2,
		TimeoutSeconds: 60,
		OAuth: OAuthConfig{
			Provider:    "google",
			RedirectURI: "http://localhost:11280/zk/callback",
			Scope:       "openid email profile",
		},
		Salt:    SaltConfig{Policy: SaltPolicyRemoteWithFallback},
		Session: SessionConfig{File: "session.json"},
		Proxy: ProxyConfig{
			Port:            DefaultProxyPort,
			AuditLog:        "audit.jsonl",
			ProofsPerMinute: 30,
			FaucetPerMinute: 6,
		},
	}
}

// DefaultProxyPort is the default zkproxyd listen port.
const DefaultProxyPort = 11280

// GetDataDir returns the zklogin data directory.
// Resolution order: -d flag > ZKLOGIN_DATA env var > ~/.zklogin
func GetDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envDir := os.Getenv("ZKLOGIN_DATA"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "" // Can't determine default
	}
	return filepath.Join(home, ".zklogin")
}

// GetConfigPath returns the path to the config file in the data directory.
// Returns empty string if dataDir is empty.
func GetConfigPath(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, "config.yaml")
}

// LoadConfig loads configuration from config.yaml in the data directory,
// then applies environment overrides.
// If dataDir is empty or file doesn't exist, returns default config.
func LoadConfig(dataDir string) (Config, error) {
	config, err := LoadConfigFromPath(GetConfigPath(dataDir))
	if err != nil {
		return config, err
	}
	config.applyEnv()
	return config, config.Validate()
}

// LoadConfigFromPath loads configuration from the specified path.
// If path is empty or the file doesn't exist, returns default config.
func LoadConfigFromPath(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		Log().Warn("failed to read config file, using defaults", "path", path, "error", err)
		return DefaultConfig(), nil
	}

	// Start with defaults, then overlay config file values
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Fill in defaults for values explicitly zeroed
	defaults := DefaultConfig()
	if config.MaxEpochOffset == 0 {
		config.MaxEpochOffset = defaults.MaxEpochOffset
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if config.Salt.Policy == "" {
		config.Salt.Policy = defaults.Salt.Policy
	}
	if config.Session.File == "" {
		config.Session.File = defaults.Session.File
	}
	if config.Proxy.Port == 0 {
		config.Proxy.Port = defaults.Proxy.Port
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name  string
	field func(*Config) *string
}{
	{"ZKLOGIN_CLIENT_ID", func(c *Config) *string { return &c.OAuth.ClientID }},
	{"ZKLOGIN_REDIRECT_URI", func(c *Config) *string { return &c.OAuth.RedirectURI }},
	{"ZKLOGIN_SALT_URL", func(c *Config) *string { return &c.Salt.URL }},
	{"ZKLOGIN_PROVER_URL", func(c *Config) *string { return &c.Prover.URL }},
	{"ZKLOGIN_SPONSOR_URL", func(c *Config) *string { return &c.Sponsor.URL }},
	{"ZKLOGIN_SPONSOR_ADDRESS", func(c *Config) *string { return &c.Sponsor.Address }},
	{"ZKLOGIN_RPC_URL", func(c *Config) *string { return &c.RPCURL }},
}

// EnvOverrideNames lists the environment variables LoadConfig honors.
func EnvOverrideNames() []string {
	names := make([]string, len(envOverrides))
	for i, o := range envOverrides {
		names[i] = o.name
	}
	return names
}

func (c *Config) applyEnv() {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			*o.field(c) = v
		}
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if _, ok := defaultRPCURLs[c.Network]; !ok && c.RPCURL == "" {
		return fmt.Errorf("invalid network '%s' in config (must be devnet, testnet, or mainnet, or set rpc_url)", c.Network)
	}
	switch c.Salt.Policy {
	case SaltPolicyRemoteWithFallback, SaltPolicyRemoteOnly, SaltPolicyLocalOnly:
	default:
		return fmt.Errorf("invalid salt.policy '%s' (must be %s, %s, or %s)",
			c.Salt.Policy, SaltPolicyRemoteWithFallback, SaltPolicyRemoteOnly, SaltPolicyLocalOnly)
	}
	if c.OAuth.Provider != "google" {
		return fmt.Errorf("unsupported oauth.provider '%s'", c.OAuth.Provider)
	}
	return nil
}

// LedgerURL returns rpc_url, or the network's public fullnode.
func (c *Config) LedgerURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	return defaultRPCURLs[c.Network]
}

// FaucetURL returns faucet.url, or the network's public faucet (empty on mainnet).
func (c *Config) FaucetURL() string {
	if c.Faucet.URL != "" {
		return c.Faucet.URL
	}
	return defaultFaucetURLs[c.Network]
}

// Timeout returns the HTTP timeout for remote services.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionPath resolves the session file against dataDir.
func (c *Config) SessionPath(dataDir string) string {
	return ResolvePath(c.Session.File, dataDir)
}

// PassphraseArgv returns the passphrase helper argv with argv[0] resolved
// against dataDir, or nil when none is configured.
func (c *Config) PassphraseArgv(dataDir string) []string {
	if len(c.Session.PassphraseCommand) == 0 {
		return nil
	}
	argv := append([]string(nil), c.Session.PassphraseCommand...)
	argv[0] = ResolvePath(argv[0], dataDir)
	return argv
}

// AuditLogPath resolves the proxy audit log against dataDir. Empty disables auditing.
func (c *Config) AuditLogPath(dataDir string) string {
	if c.Proxy.AuditLog == "" {
		return ""
	}
	return ResolvePath(c.Proxy.AuditLog, dataDir)
}

// ResolvePath returns path unchanged when absolute, else joined to baseDir.
func ResolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// DisplayConfig prints the effective configuration
func DisplayConfig(dataDir string) {
	config, err := LoadConfig(dataDir)

	fmt.Println("Current Configuration:")
	fmt.Println("=====================")
	fmt.Printf("Data dir:     %s\n", dataDir)
	fmt.Printf("Config file:  %s\n", GetConfigPath(dataDir))
	if err != nil {
		fmt.Printf("Error:        %v\n", err)
		fmt.Println()
		return
	}
	orUnset := func(s string) string {
		if s == "" {
			return "(not configured)"
		}
		return s
	}
	fmt.Printf("Network:      %s\n", config.Network)
	fmt.Printf("Fullnode:     %s\n", config.LedgerURL())
	fmt.Printf("Client ID:    %s\n", orUnset(config.OAuth.ClientID))
	fmt.Printf("Redirect URI: %s\n", config.OAuth.RedirectURI)
	fmt.Printf("Salt service: %s (%s)\n", orUnset(config.Salt.URL), config.Salt.Policy)
	fmt.Printf("Prover:       %s\n", orUnset(config.Prover.URL))
	fmt.Printf("Sponsor:      %s\n", orUnset(config.Sponsor.URL))
	fmt.Printf("Faucet:       %s\n", orUnset(config.FaucetURL()))
	fmt.Printf("Session file: %s (encrypted: %v)\n", config.SessionPath(dataDir), config.Session.Encrypt)
	if argv := config.PassphraseArgv(dataDir); argv != nil {
		fmt.Printf("Pass helper:  %s\n", argv[0])
	}
	fmt.Println()
}
