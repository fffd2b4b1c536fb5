package storage

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"evmbridge/engine"
)

func testSnapshot() engine.Storage {
	return engine.Storage{
		"00000000000000000000000000000000000000aa": &engine.AddressState{
			Nonce:   uint256.NewInt(5),
			Balance: uint256.NewInt(100),
			Code:    []byte{0x60, 0x80},
			Storage: map[common.Hash]*uint256.Int{
				common.HexToHash("0x01"): uint256.NewInt(7),
			},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := NewMemSnapshotStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	want := testSnapshot()
	if err := store.Put(42, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	st := got["00000000000000000000000000000000000000aa"]
	if st == nil {
		t.Fatal("address missing from restored snapshot")
	}
	if st.Nonce.Uint64() != 5 || st.Balance.Uint64() != 100 {
		t.Errorf("nonce/balance = %d/%d, want 5/100", st.Nonce.Uint64(), st.Balance.Uint64())
	}
	if len(st.Code) != 2 {
		t.Errorf("code = %x", st.Code)
	}
	if st.Storage[common.HexToHash("0x01")].Uint64() != 7 {
		t.Errorf("slot value = %v", st.Storage)
	}
}

func TestSnapshotHeightsAreIndependent(t *testing.T) {
	store, err := NewMemSnapshotStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Put(1, testSnapshot()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Get(2); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("Get(2) = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshotPutReplaces(t *testing.T) {
	store, err := NewMemSnapshotStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Put(7, testSnapshot()); err != nil {
		t.Fatalf("put: %v", err)
	}

	replacement := engine.Storage{
		"00000000000000000000000000000000000000bb": &engine.AddressState{
			Nonce:   uint256.NewInt(1),
			Balance: uint256.NewInt(2),
			Storage: map[common.Hash]*uint256.Int{},
		},
	}
	if err := store.Put(7, replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := store.Get(7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("snapshot has %d addresses, want 1", len(got))
	}
	if _, ok := got["00000000000000000000000000000000000000bb"]; !ok {
		t.Fatal("replacement snapshot missing")
	}
}
