package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"evmbridge/backend"
)

// Discriminator bytes prefixing every record key in the engine contract's
// raw state.
const (
	recordConfig  byte = 0x0
	recordNonce   byte = 0x1
	recordBalance byte = 0x2
	recordCode    byte = 0x3
	recordStorage byte = 0x4
)

const (
	addressKeyLen = 1 + common.AddressLength
	storageKeyLen = 1 + common.AddressLength + common.HashLength
)

// AddressState is the reconstructed projection of one EVM address.
type AddressState struct {
	Nonce   *uint256.Int
	Balance *uint256.Int
	Code    []byte
	Storage map[common.Hash]*uint256.Int
}

func newAddressState() *AddressState {
	return &AddressState{
		Nonce:   uint256.NewInt(0),
		Balance: uint256.NewInt(0),
		Storage: make(map[common.Hash]*uint256.Int),
	}
}

// Storage maps lowercase hex addresses to their reconstructed state for one
// full-state snapshot.
type Storage map[string]*AddressState

func (s Storage) state(addr []byte) *AddressState {
	key := hex.EncodeToString(addr)
	st, ok := s[key]
	if !ok {
		st = newAddressState()
		s[key] = st
	}
	return st
}

// ParseStorageRecords partitions a flat sequence of prefix-tagged key/value
// records into per-address state. Records with unknown discriminators are
// skipped; known discriminators with malformed key shapes are an error.
func ParseStorageRecords(records []backend.StateRecord) (Storage, error) {
	storage := make(Storage)
	for _, record := range records {
		if len(record.Key) == 0 {
			return nil, fmt.Errorf("state record with empty key")
		}
		switch tag := record.Key[0]; tag {
		case recordConfig:
			// Contract configuration, not part of the per-address projection.
		case recordNonce, recordBalance, recordCode:
			if len(record.Key) != addressKeyLen {
				return nil, fmt.Errorf("state record key for tag %#x has length %d, want %d", tag, len(record.Key), addressKeyLen)
			}
			st := storage.state(record.Key[1:addressKeyLen])
			switch tag {
			case recordNonce, recordBalance:
				if len(record.Value) > 32 {
					return nil, fmt.Errorf("state record value exceeds 32 bytes for tag %#x", tag)
				}
				if tag == recordNonce {
					st.Nonce = new(uint256.Int).SetBytes(record.Value)
				} else {
					st.Balance = new(uint256.Int).SetBytes(record.Value)
				}
			case recordCode:
				st.Code = append([]byte(nil), record.Value...)
			}
		case recordStorage:
			if len(record.Key) != storageKeyLen {
				return nil, fmt.Errorf("storage record key has length %d, want %d", len(record.Key), storageKeyLen)
			}
			if len(record.Value) > 32 {
				return nil, fmt.Errorf("storage record value exceeds 32 bytes")
			}
			st := storage.state(record.Key[1:addressKeyLen])
			slot := common.BytesToHash(record.Key[addressKeyLen:storageKeyLen])
			st.Storage[slot] = new(uint256.Int).SetBytes(record.Value)
		default:
			// Unknown discriminators are tolerated for forward compatibility.
		}
	}
	return storage, nil
}

// StorageRecords flattens a snapshot back into the prefix-tagged record form
// ParseStorageRecords consumes, in deterministic order. It is the inverse
// used by the snapshot store.
func StorageRecords(storage Storage) ([]backend.StateRecord, error) {
	addresses := make([]string, 0, len(storage))
	for addr := range storage {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	var records []backend.StateRecord
	for _, addr := range addresses {
		addrBytes, err := hex.DecodeString(addr)
		if err != nil || len(addrBytes) != common.AddressLength {
			return nil, fmt.Errorf("malformed address key %q", addr)
		}
		st := storage[addr]

		nonceKey := append([]byte{recordNonce}, addrBytes...)
		records = append(records, backend.StateRecord{Key: nonceKey, Value: st.Nonce.Bytes()})
		balanceKey := append([]byte{recordBalance}, addrBytes...)
		records = append(records, backend.StateRecord{Key: balanceKey, Value: st.Balance.Bytes()})
		if len(st.Code) > 0 {
			codeKey := append([]byte{recordCode}, addrBytes...)
			records = append(records, backend.StateRecord{Key: codeKey, Value: st.Code})
		}

		slots := make([]common.Hash, 0, len(st.Storage))
		for slot := range st.Storage {
			slots = append(slots, slot)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].Cmp(slots[j]) < 0 })
		for _, slot := range slots {
			key := append([]byte{recordStorage}, addrBytes...)
			key = append(key, slot.Bytes()...)
			records = append(records, backend.StateRecord{Key: key, Value: st.Storage[slot].Bytes()})
		}
	}
	return records, nil
}

// GetStorage scans the engine contract's full state at finality "final" and
// returns one complete, internally consistent snapshot.
func (e *Engine) GetStorage(ctx context.Context) (Storage, error) {
	records, err := e.client.ViewState(ctx, e.contract, nil, backend.BlockID{})
	if err != nil {
		return nil, fmt.Errorf("state scan: %w", err)
	}
	return ParseStorageRecords(records)
}
