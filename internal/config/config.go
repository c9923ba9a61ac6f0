// Package config loads the chaincore runtime configuration from the
// environment. Missing chain credentials are not an error: the submission
// client degrades to simulation mode so development flows keep working
// without a funded account.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hashproof/chaincore/internal/chain"
)

type Config struct {
	// Chain access. SigningKey is the hex-encoded ed25519 seed of the
	// certification account. Leaving SigningKey or GatewayURL empty flips
	// the whole submission subsystem into simulation mode.
	SigningKey      string `env:"CHAIN_SIGNING_KEY"`
	SenderAddress   string `env:"CHAIN_SENDER_ADDRESS"`
	DefaultReceiver string `env:"CHAIN_DEFAULT_RECEIVER"`
	GatewayURL      string `env:"CHAIN_GATEWAY_URL"`
	APIURL          string `env:"CHAIN_API_URL"`
	ChainID         string `env:"CHAIN_ID" envDefault:"D"`
	Network         string `env:"CHAIN_NETWORK" envDefault:"devnet"`
	AddressHRP      string `env:"CHAIN_ADDRESS_HRP" envDefault:"cert"`

	// Gas policy. Fixed values so estimates stay reproducible regardless of
	// network conditions.
	GasBaseCost    uint64 `env:"CHAIN_GAS_BASE_COST" envDefault:"50000"`
	GasPerByteCost uint64 `env:"CHAIN_GAS_PER_BYTE" envDefault:"1500"`
	GasPrice       uint64 `env:"CHAIN_GAS_PRICE" envDefault:"1000000000"`

	// Registry contracts. An empty address disables the corresponding
	// background registration jobs (logged, never fatal).
	AgentRegistry      string `env:"REGISTRY_AGENT_ADDRESS"`
	ProofRegistry      string `env:"REGISTRY_PROOF_ADDRESS"`
	ValidationRegistry string `env:"REGISTRY_VALIDATION_ADDRESS"`
	DefaultAgentID     string `env:"REGISTRY_DEFAULT_AGENT" envDefault:"chaincore"`

	// Webhook delivery.
	WebhookFallbackSecret string        `env:"WEBHOOK_FALLBACK_SECRET"`
	WebhookMaxAttempts    int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"3"`
	WebhookTimeout        time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	WebhookSweepInterval  time.Duration `env:"WEBHOOK_SWEEP_INTERVAL" envDefault:"5m"`

	// Public-facing URLs embedded in webhook payloads.
	VerifyBaseURL   string `env:"VERIFY_BASE_URL" envDefault:"https://verify.hashproof.io"`
	ExplorerBaseURL string `env:"EXPLORER_BASE_URL"`
}

// Load parses the environment into a Config and validates the pieces that can
// be checked without the network.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address formats and numeric bounds. It deliberately does not
// require credentials to be present.
func (c *Config) Validate() error {
	for _, addr := range []struct {
		name  string
		value string
	}{
		{"CHAIN_SENDER_ADDRESS", c.SenderAddress},
		{"CHAIN_DEFAULT_RECEIVER", c.DefaultReceiver},
		{"REGISTRY_AGENT_ADDRESS", c.AgentRegistry},
		{"REGISTRY_PROOF_ADDRESS", c.ProofRegistry},
		{"REGISTRY_VALIDATION_ADDRESS", c.ValidationRegistry},
	} {
		if addr.value == "" {
			continue
		}
		if err := chain.ValidateAddress(addr.value, c.AddressHRP); err != nil {
			return fmt.Errorf("%s: %w", addr.name, err)
		}
	}

	if c.WebhookMaxAttempts < 1 {
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be at least 1, got %d", c.WebhookMaxAttempts)
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %s", c.WebhookTimeout)
	}
	return nil
}

// SimulationMode reports whether the submission client should fabricate
// transaction hashes instead of talking to a real gateway.
func (c *Config) SimulationMode() bool {
	return c.SigningKey == "" || c.GatewayURL == ""
}

// ExplorerTxURL builds the public explorer link for a transaction hash, used
// in webhook payloads. Returns an empty string when no explorer is configured.
func (c *Config) ExplorerTxURL(txHash string) string {
	if c.ExplorerBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/transactions/%s", c.ExplorerBaseURL, txHash)
}
