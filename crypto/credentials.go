package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
)

// credentialsFile is the on-disk JSON shape for a single account credential.
type credentialsFile struct {
	AccountID  string `json:"account_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// Credentials pairs an account identifier with its signing key, as stored in
// a credentials file.
type Credentials struct {
	AccountID AccountID
	Key       *KeyPair
}

// LoadCredentials reads and validates a credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file credentialsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: parse credentials %s: %w", path, err)
	}
	account, err := ParseAccountID(file.AccountID)
	if err != nil {
		return nil, err
	}
	keyBytes, err := hex.DecodeString(file.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key in %s: %w", path, err)
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key in %s: %w", path, err)
	}
	kp := NewKeyPair(key)
	if file.PublicKey != "" && file.PublicKey != kp.PublicKey() {
		return nil, fmt.Errorf("crypto: credentials %s: public key does not match private key", path)
	}
	return &Credentials{AccountID: account, Key: kp}, nil
}

// SaveCredentials writes the credential to path with 0600 permissions,
// creating parent directories as needed.
func SaveCredentials(path string, creds *Credentials) error {
	if creds == nil || creds.Key == nil {
		return errors.New("crypto: nil credentials")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	file := credentialsFile{
		AccountID:  creds.AccountID.String(),
		PublicKey:  creds.Key.PublicKey(),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(creds.Key.Private())),
	}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
