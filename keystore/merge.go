package keystore

import (
	"errors"
	"sort"

	"evmbridge/crypto"
)

// Merge composes several key sources in fixed priority order and implements
// Store itself. Reads consult sources first-match; writes always land in the
// head source so loaded keys shadow lower-priority ones. Rotate fans out to
// every source so selection stays aligned no matter which source serves a
// subsequent read.
type Merge struct {
	sources []Store
}

// NewMerge builds a merged store over sources, highest priority first.
func NewMerge(sources ...Store) *Merge {
	return &Merge{sources: sources}
}

func (m *Merge) SetKey(network string, account crypto.AccountID, kp *crypto.KeyPair) error {
	if len(m.sources) == 0 {
		return errors.New("keystore: merge has no sources")
	}
	return m.sources[0].SetKey(network, account, kp)
}

func (m *Merge) GetKey(network string, account crypto.AccountID) *crypto.KeyPair {
	for _, source := range m.sources {
		if kp := source.GetKey(network, account); kp != nil {
			return kp
		}
	}
	return nil
}

func (m *Merge) RemoveKey(network string, account crypto.AccountID) {
	for _, source := range m.sources {
		source.RemoveKey(network, account)
	}
}

// Accounts returns the deduplicated union of all sources' accounts in
// ascending lexical order.
func (m *Merge) Accounts(network string) []crypto.AccountID {
	seen := make(map[crypto.AccountID]struct{})
	var accounts []crypto.AccountID
	for _, source := range m.sources {
		for _, account := range source.Accounts(network) {
			if _, ok := seen[account]; ok {
				continue
			}
			seen[account] = struct{}{}
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return accounts
}

func (m *Merge) Rotate() {
	for _, source := range m.sources {
		source.Rotate()
	}
}

// LoadKeyFile reads a credentials file and registers its key in the merged
// store's head source for the given network.
func (m *Merge) LoadKeyFile(network, path string) error {
	creds, err := crypto.LoadCredentials(path)
	if err != nil {
		return err
	}
	return m.SetKey(network, creds.AccountID, creds.Key)
}

// LoadKeyFiles loads every path in order, stopping at the first failure.
func (m *Merge) LoadKeyFiles(network string, paths []string) error {
	for _, path := range paths {
		if err := m.LoadKeyFile(network, path); err != nil {
			return err
		}
	}
	return nil
}

// LoadKeystore decrypts an Ethereum v3 keystore file and registers its key
// for the given account in the merged store's head source.
func (m *Merge) LoadKeystore(network string, account crypto.AccountID, path, passphrase string) error {
	kp, err := crypto.LoadFromKeystore(path, passphrase)
	if err != nil {
		return err
	}
	return m.SetKey(network, account, kp)
}
