package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"evmbridge/engine"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `NodeURL = "http://127.0.0.1:3030"
EngineAccount = "engine.testnet"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkID != "testnet" {
		t.Errorf("NetworkID = %q", cfg.NetworkID)
	}
	if cfg.GasBudget != engine.DefaultGasBudget {
		t.Errorf("GasBudget = %d", cfg.GasBudget)
	}
	if cfg.ListenAddress == "" || cfg.OpsAddress == "" {
		t.Error("listener defaults missing")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadParsesEverything(t *testing.T) {
	path := writeConfig(t, `NetworkID = "mainnet"
NodeURL = "https://rpc.example.org"
EngineAccount = "engine.mainnet"
SignerAccount = "relayer.mainnet"
KeyDir = "/var/lib/bridge/keys"
KeyFiles = ["/etc/bridge/relayer.json"]
KeystorePath = "/etc/bridge/signer.keystore"
GasBudget = 100000000000000
ListenAddress = "0.0.0.0:8545"
OpsAddress = "0.0.0.0:9615"
RateLimitPerMinute = 120.0
RateLimitBurst = 5
SnapshotStorePath = "/var/lib/bridge/snapshots"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GasBudget != 100000000000000 {
		t.Errorf("GasBudget = %d", cfg.GasBudget)
	}
	if len(cfg.KeyFiles) != 1 {
		t.Errorf("KeyFiles = %v", cfg.KeyFiles)
	}
	if cfg.RateLimitPerMin != 120 || cfg.RateLimitBurst != 5 {
		t.Errorf("rate limit = %v/%d", cfg.RateLimitPerMin, cfg.RateLimitBurst)
	}
	if cfg.KeystorePath != "/etc/bridge/signer.keystore" {
		t.Errorf("KeystorePath = %q", cfg.KeystorePath)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `NodeURL = "http://127.0.0.1:3030"
EngineAccount = "engine.testnet"
GasPrice = 42
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "GasPrice") {
		t.Fatalf("err = %v, want unknown field rejection", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("empty NodeURL must fail validation")
	}

	cfg.NodeURL = "http://127.0.0.1:3030"
	cfg.EngineAccount = "Not Valid!"
	if err := cfg.Validate(); err == nil {
		t.Error("malformed engine account must fail validation")
	}

	cfg.EngineAccount = "engine.testnet"
	cfg.SignerAccount = "also not valid"
	if err := cfg.Validate(); err == nil {
		t.Error("malformed signer account must fail validation")
	}

	cfg.SignerAccount = "relayer.testnet"
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}

	cfg.SignerAccount = ""
	cfg.KeystorePath = "/etc/bridge/signer.keystore"
	if err := cfg.Validate(); err == nil {
		t.Error("keystore without a signer account must fail validation")
	}
}
