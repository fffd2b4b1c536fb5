package keystore

import (
	"os"
	"path/filepath"
	"strings"

	"evmbridge/crypto"
)

// DirStore reads credentials files laid out as <root>/<network>/<account>.json.
// Each file holds exactly one key, so there is nothing to rotate through.
type DirStore struct {
	root    string
	network string
}

// NewDirStore opens a credentials directory for the given network. The
// directory does not need to exist yet; it is created on first write.
func NewDirStore(root, network string) *DirStore {
	return &DirStore{root: root, network: network}
}

func (s *DirStore) path(account crypto.AccountID) string {
	return filepath.Join(s.root, s.network, account.String()+".json")
}

func (s *DirStore) SetKey(network string, account crypto.AccountID, kp *crypto.KeyPair) error {
	if network != s.network || kp == nil {
		return nil
	}
	return crypto.SaveCredentials(s.path(account), &crypto.Credentials{AccountID: account, Key: kp})
}

func (s *DirStore) GetKey(network string, account crypto.AccountID) *crypto.KeyPair {
	if network != s.network {
		return nil
	}
	creds, err := crypto.LoadCredentials(s.path(account))
	if err != nil {
		return nil
	}
	return creds.Key
}

func (s *DirStore) RemoveKey(network string, account crypto.AccountID) {
	if network != s.network {
		return
	}
	_ = os.Remove(s.path(account))
}

func (s *DirStore) Accounts(network string) []crypto.AccountID {
	if network != s.network {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(s.root, s.network))
	if err != nil {
		return nil
	}
	var accounts []crypto.AccountID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		account, err := crypto.ParseAccountID(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts
}

// Rotate is a no-op: single-member pools have a single selection.
func (s *DirStore) Rotate() {}
