// Package keystore holds signing keys for backend accounts, scoped to a
// single network, and selects among multiple keys for one account by
// round-robin rotation so that concurrent mutating calls spread across
// registered keys instead of colliding on one sequence number.
package keystore

import (
	"sync"

	"evmbridge/crypto"
)

// Store is the common surface of every key source. Implementations are bound
// to exactly one network; calls naming any other network are silent no-ops so
// that merged stores can be queried generically.
type Store interface {
	// SetKey adds a key to the account's pool.
	SetKey(network string, account crypto.AccountID, kp *crypto.KeyPair) error
	// GetKey returns the pool member selected by the current rotation
	// counter, or nil when the pool is empty or the network does not match.
	GetKey(network string, account crypto.AccountID) *crypto.KeyPair
	// RemoveKey deletes the entire pool for the account.
	RemoveKey(network string, account crypto.AccountID)
	// Accounts lists every account with a non-empty pool. Order and
	// duplicates are left to the caller; the merge layer dedups and sorts.
	Accounts(network string) []crypto.AccountID
	// Rotate advances the store-wide rotation counter by one. It performs no
	// other action; selection is counter mod pool size.
	Rotate()
}

// MemoryStore keeps key pools in memory. The rotation counter is store-wide
// rather than per-account: every mutating call advances it once, which is
// enough to spread sequence-number contention when an account has several
// keys on file.
type MemoryStore struct {
	network string

	mu      sync.Mutex
	pools   map[crypto.AccountID][]*crypto.KeyPair
	counter uint64
}

// NewMemoryStore creates an empty store bound to network.
func NewMemoryStore(network string) *MemoryStore {
	return &MemoryStore{
		network: network,
		pools:   make(map[crypto.AccountID][]*crypto.KeyPair),
	}
}

func (s *MemoryStore) SetKey(network string, account crypto.AccountID, kp *crypto.KeyPair) error {
	if network != s.network || kp == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.pools[account]
	for _, existing := range pool {
		if existing.PublicKey() == kp.PublicKey() {
			return nil
		}
	}
	s.pools[account] = append(pool, kp)
	return nil
}

func (s *MemoryStore) GetKey(network string, account crypto.AccountID) *crypto.KeyPair {
	if network != s.network {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.pools[account]
	if len(pool) == 0 {
		return nil
	}
	return pool[int(s.counter%uint64(len(pool)))]
}

func (s *MemoryStore) RemoveKey(network string, account crypto.AccountID) {
	if network != s.network {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pools, account)
}

func (s *MemoryStore) Accounts(network string) []crypto.AccountID {
	if network != s.network {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make([]crypto.AccountID, 0, len(s.pools))
	for account, pool := range s.pools {
		if len(pool) > 0 {
			accounts = append(accounts, account)
		}
	}
	return accounts
}

func (s *MemoryStore) Rotate() {
	s.mu.Lock()
	s.counter++
	s.mu.Unlock()
}

// PoolSize reports how many keys are registered for the account.
func (s *MemoryStore) PoolSize(account crypto.AccountID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools[account])
}
