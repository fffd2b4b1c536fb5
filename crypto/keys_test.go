package crypto

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseAccountID(t *testing.T) {
	valid := []string{
		"alice",
		"alice.testnet",
		"sub.acct.mainnet",
		"ok-name_1.node0",
		"42",
	}
	for _, raw := range valid {
		if _, err := ParseAccountID(raw); err != nil {
			t.Errorf("ParseAccountID(%q) unexpected error: %v", raw, err)
		}
	}

	invalid := []string{
		"",
		"a",
		"Alice",
		"alice..testnet",
		"-alice",
		"alice-",
		"alice .main",
		"alice@testnet",
		string(make([]byte, 65)),
	}
	for _, raw := range invalid {
		if _, err := ParseAccountID(raw); !errors.Is(err, ErrInvalidAccountID) {
			t.Errorf("ParseAccountID(%q) = %v, want ErrInvalidAccountID", raw, err)
		}
	}
}

func TestKeyPairIdentity(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if a.PublicKey() == "" {
		t.Fatal("expected non-empty public key")
	}
	if !a.Equal(a) {
		t.Error("key pair should equal itself")
	}
	if a.Equal(b) {
		t.Error("distinct key pairs reported equal")
	}
	if a.PublicKey() == b.PublicKey() {
		t.Error("distinct key pairs share a public key")
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "relayer.json")
	creds := &Credentials{AccountID: MustParseAccountID("relayer.testnet"), Key: kp}
	if err := SaveCredentials(path, creds); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AccountID != creds.AccountID {
		t.Errorf("account id = %q, want %q", loaded.AccountID, creds.AccountID)
	}
	if !loaded.Key.Equal(kp) {
		t.Error("loaded key does not match saved key")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "signer.keystore")
	if err := SaveToKeystore(path, kp, "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Equal(kp) {
		t.Error("loaded key does not match saved key")
	}

	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}
