// Package backend defines the boundary to the remote account-based network
// that hosts the execution engine contract: a typed client interface, the
// wire shapes the bridge interprets, and a tagged decode of the backend's
// known failure categories.
package backend

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"evmbridge/crypto"
)

// FinalityFinal selects the latest irreversibly committed state.
const FinalityFinal = "final"

// BlockID selects the block a read executes against. The zero value means
// "no selector": the request is sent with finality "final" instead. Exactly
// one of tag, height, or hash may be set.
type BlockID struct {
	Tag    string
	Height *uint64
	Hash   *common.Hash
}

// BlockHeight is a convenience constructor for height selectors.
func BlockHeight(height uint64) BlockID {
	return BlockID{Height: &height}
}

// IsZero reports whether no selector was supplied.
func (b BlockID) IsZero() bool {
	return b.Tag == "" && b.Height == nil && b.Hash == nil
}

// Param renders the selector as a JSON-RPC parameter value.
func (b BlockID) Param() any {
	switch {
	case b.Height != nil:
		return *b.Height
	case b.Hash != nil:
		return b.Hash.Hex()
	default:
		return b.Tag
	}
}

// StateRecord is one raw key/value pair from a full-state scan of the
// engine contract account.
type StateRecord struct {
	Key   []byte
	Value []byte
}

// FailureKind tags the backend's reported failure category.
type FailureKind int

const (
	// FailureOther covers every category the bridge does not recognize.
	FailureOther FailureKind = iota
	// FailureExecution means the remote contract aborted.
	FailureExecution
	// FailureMethodNotFound means the invoked contract method does not exist.
	FailureMethodNotFound
)

// Failure is the decoded form of a backend-reported failure. Message carries
// the category-specific detail; Raw preserves the backend's generic string
// representation for the fallback path.
type Failure struct {
	Kind    FailureKind
	Message string
	Raw     string
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return f.Message
	}
	return f.Raw
}

// CallOutcome is the settled result of a signed function invocation.
type CallOutcome struct {
	// TxHash is the backend transaction hash in its native encoding.
	TxHash string
	// SuccessValue is the base64-decoded success payload; valid only when
	// HasSuccess is set.
	SuccessValue []byte
	HasSuccess   bool
	// RawStatus is the backend's raw status representation, kept for the
	// defensive path where no success value is recognizable.
	RawStatus string
	// Failure is non-nil when the backend settled the call as failed.
	Failure *Failure
}

// TxStatusResult carries the gas figures for a transaction and the receipts
// it induced.
type TxStatusResult struct {
	TransactionGasBurnt uint64
	ReceiptGasBurnt     []uint64
}

// BlockHeader is the subset of block metadata the bridge consumes.
type BlockHeader struct {
	Height uint64
	Hash   string
}

// ChunkRef identifies one chunk of a block.
type ChunkRef struct {
	Hash string
}

// Client is the backend RPC capability consumed by the bridge core. The
// network client behind it owns transport, account lookup, transaction
// signing and broadcast; this interface only shapes what the bridge needs
// to interpret.
type Client interface {
	// ViewFunction executes a read-only contract method and returns its raw
	// output bytes. A zero block means finality "final".
	ViewFunction(ctx context.Context, account crypto.AccountID, method string, args []byte, block BlockID) ([]byte, error)

	// CallFunction signs and submits a function invocation with the given
	// gas budget and awaits settlement. Backend-reported failures are
	// returned inside the outcome; transport errors as *Failure values.
	CallFunction(ctx context.Context, signer crypto.AccountID, key *crypto.KeyPair, contract crypto.AccountID, method string, args []byte, gas uint64) (*CallOutcome, error)

	// TxStatus fetches the settled status of a transaction for gas
	// accounting.
	TxStatus(ctx context.Context, txRef string, signer crypto.AccountID) (*TxStatusResult, error)

	// ViewState scans the contract account's raw state under prefix.
	ViewState(ctx context.Context, account crypto.AccountID, prefix []byte, block BlockID) ([]StateRecord, error)

	// BlockInfo returns the header and chunk references of a block.
	BlockInfo(ctx context.Context, block BlockID) (*BlockHeader, []ChunkRef, error)

	// ChunkTxCount counts the transactions contained in one chunk.
	ChunkTxCount(ctx context.Context, chunk ChunkRef) (int, error)
}

// AsFailure extracts the decoded failure from err, or wraps err in a
// FailureOther when it carries no category.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	return &Failure{Kind: FailureOther, Raw: err.Error()}
}
