package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"evmbridge/crypto"
	"evmbridge/engine"
)

// Config wires the bridge daemon: backend endpoint, engine contract, signer
// identity, key sources, and the facade listener.
type Config struct {
	NetworkID     string   `toml:"NetworkID"`
	NodeURL       string   `toml:"NodeURL"`
	EngineAccount string   `toml:"EngineAccount"`
	SignerAccount string   `toml:"SignerAccount"`
	KeyDir        string   `toml:"KeyDir"`
	KeyFiles      []string `toml:"KeyFiles"`
	// KeystorePath points at an encrypted Ethereum v3 keystore file holding
	// the signer key. The passphrase is sourced from the environment at
	// startup, never from the config file.
	KeystorePath string `toml:"KeystorePath"`
	// GasBudget is the default gas attached to mutating calls. Callers
	// invoking heavier contract methods can raise it here.
	GasBudget         uint64  `toml:"GasBudget"`
	ListenAddress     string  `toml:"ListenAddress"`
	OpsAddress        string  `toml:"OpsAddress"`
	RateLimitPerMin   float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst    int     `toml:"RateLimitBurst"`
	SnapshotStorePath string  `toml:"SnapshotStorePath"`
}

// Load reads a TOML config from path and applies defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.NetworkID) == "" {
		cfg.NetworkID = "testnet"
	}
	if cfg.GasBudget == 0 {
		cfg.GasBudget = engine.DefaultGasBudget
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(cfg.OpsAddress) == "" {
		cfg.OpsAddress = "127.0.0.1:9615"
	}
	if cfg.RateLimitPerMin == 0 {
		cfg.RateLimitPerMin = 600
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
}

// Validate checks everything the daemon needs to start.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.NodeURL) == "" {
		return fmt.Errorf("config: NodeURL is required")
	}
	if _, err := crypto.ParseAccountID(cfg.EngineAccount); err != nil {
		return fmt.Errorf("config: EngineAccount: %w", err)
	}
	if cfg.SignerAccount != "" {
		if _, err := crypto.ParseAccountID(cfg.SignerAccount); err != nil {
			return fmt.Errorf("config: SignerAccount: %w", err)
		}
	}
	if cfg.KeystorePath != "" && cfg.SignerAccount == "" {
		return fmt.Errorf("config: KeystorePath requires SignerAccount to bind the key to")
	}
	return nil
}
