// Package engine translates typed, EVM-flavored requests into the backend's
// call-function/view-function primitives, decodes opaque byte results into
// typed outcomes, and classifies remote failures into a stable taxonomy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"evmbridge/backend"
	"evmbridge/crypto"
	"evmbridge/keystore"
	"evmbridge/observability/metrics"
)

// DefaultGasBudget is the gas attached to mutating calls when the config
// does not override it.
const DefaultGasBudget uint64 = 300_000_000_000_000

// contractPanicPrefix marks a smart-contract-level panic inside an execution
// failure message; it is stripped before the message is surfaced.
const contractPanicPrefix = "Smart contract panicked: "

// Config wires an Engine to one engine contract on one network.
type Config struct {
	// Network scopes key lookups in the store.
	Network string
	// Contract is the account hosting the execution engine.
	Contract crypto.AccountID
	// Signer is the account whose keys sign mutating calls.
	Signer crypto.AccountID
	// GasBudget is the gas attached to every mutating call; zero selects
	// DefaultGasBudget.
	GasBudget uint64
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine is the bridge core. All methods return typed results and typed
// errors; nothing panics out of the public surface.
type Engine struct {
	client    backend.Client
	keys      keystore.Store
	network   string
	contract  crypto.AccountID
	signer    crypto.AccountID
	gasBudget uint64
	log       *slog.Logger
	metrics   *metrics.BridgeMetrics
}

// New builds an Engine over the given backend client and key store.
func New(client backend.Client, keys keystore.Store, cfg Config) *Engine {
	gas := cfg.GasBudget
	if gas == 0 {
		gas = DefaultGasBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    client,
		keys:      keys,
		network:   cfg.Network,
		contract:  cfg.Contract,
		signer:    cfg.Signer,
		gasBudget: gas,
		log:       logger,
		metrics:   metrics.Bridge(),
	}
}

// viewFunction issues a read-only call against the engine contract.
func (e *Engine) viewFunction(ctx context.Context, method string, args []byte, block backend.BlockID) ([]byte, error) {
	out, err := e.client.ViewFunction(ctx, e.contract, method, args, block)
	e.metrics.ObserveBackendCall(method, err)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", method, err)
	}
	return out, nil
}

// mutativeFunction advances key rotation, signs one function invocation, and
// settles it into a TransactionOutcome or a classified error.
func (e *Engine) mutativeFunction(ctx context.Context, method string, args []byte) (*TransactionOutcome, error) {
	e.keys.Rotate()
	kp := e.keys.GetKey(e.network, e.signer)
	if kp == nil {
		return nil, &CallError{Message: fmt.Sprintf("no signing key registered for %s on %s", e.signer, e.network)}
	}

	out, err := e.client.CallFunction(ctx, e.signer, kp, e.contract, method, args, e.gasBudget)
	e.metrics.ObserveBackendCall(method, err)
	if err != nil {
		return nil, e.classify(ctx, backend.AsFailure(err), "")
	}
	if out.Failure != nil {
		return nil, e.classify(ctx, out.Failure, out.TxHash)
	}
	if !out.HasSuccess {
		// Settled without a recognizable success value; surface the raw
		// status representation.
		return nil, &CallError{Message: out.RawStatus}
	}

	gas := e.gasBurned(ctx, out.TxHash)
	e.metrics.AddGasBurned(gas)
	return &TransactionOutcome{
		ID:        out.TxHash,
		Output:    out.SuccessValue,
		GasBurned: gas,
		TxRef:     out.TxHash,
	}, nil
}

// classify maps a decoded backend failure onto the bridge's error taxonomy.
func (e *Engine) classify(ctx context.Context, f *backend.Failure, txRef string) error {
	switch f.Kind {
	case backend.FailureExecution:
		e.metrics.ObserveFailure("execution")
		// Gas may have been consumed even though the contract aborted.
		gas := e.gasBurned(ctx, txRef)
		msg := strings.TrimPrefix(f.Message, contractPanicPrefix)
		return &CallError{Message: msg, Details: &CallDetails{TxRef: txRef, GasBurned: gas}}
	case backend.FailureMethodNotFound:
		e.metrics.ObserveFailure("method_not_found")
		return &CallError{Message: f.Message}
	default:
		e.metrics.ObserveFailure("other")
		return &CallError{Message: f.Error()}
	}
}

// TransactionOutcome is the settled result of one successful mutating call.
type TransactionOutcome struct {
	ID        string
	Output    []byte
	GasBurned uint64
	TxRef     string
}

// View executes a read-only EVM call through the engine contract.
func (e *Engine) View(ctx context.Context, sender, address common.Address, amount *uint256.Int, input []byte) ([]byte, error) {
	args := make([]byte, 0, common.AddressLength*2+32+len(input))
	args = append(args, sender.Bytes()...)
	args = append(args, address.Bytes()...)
	var value [32]byte
	if amount != nil {
		value = amount.Bytes32()
	}
	args = append(args, value[:]...)
	args = append(args, input...)
	return e.viewFunction(ctx, "view", args, backend.BlockID{})
}

// Call executes a mutating EVM call against the contract at address.
func (e *Engine) Call(ctx context.Context, address common.Address, input []byte) (*TransactionOutcome, error) {
	args := make([]byte, 0, common.AddressLength+len(input))
	args = append(args, address.Bytes()...)
	args = append(args, input...)
	return e.mutativeFunction(ctx, "call", args)
}

// DeployCode deploys EVM bytecode and returns the outcome carrying the new
// contract address in its output.
func (e *Engine) DeployCode(ctx context.Context, bytecode []byte) (*TransactionOutcome, error) {
	return e.mutativeFunction(ctx, "deploy_code", bytecode)
}

// Submit forwards a raw encoded transaction. Malformed payloads and
// sub-intrinsic gas limits are rejected locally before any backend call.
func (e *Engine) Submit(ctx context.Context, raw []byte) (*TransactionOutcome, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, ErrInvalidRawTransaction
	}
	if tx.Gas() < params.TxGas {
		return nil, ErrIntrinsicGasTooLow
	}
	return e.mutativeFunction(ctx, "submit", raw)
}

// GetVersion reports the engine contract's version string.
func (e *Engine) GetVersion(ctx context.Context) (string, error) {
	out, err := e.viewFunction(ctx, "get_version", nil, backend.BlockID{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// GetOwner reports the engine contract's owner account.
func (e *Engine) GetOwner(ctx context.Context) (crypto.AccountID, error) {
	out, err := e.viewFunction(ctx, "get_owner", nil, backend.BlockID{})
	if err != nil {
		return "", err
	}
	return crypto.ParseAccountID(strings.TrimSpace(string(out)))
}

// GetChainID reports the chain id the engine emulates.
func (e *Engine) GetChainID(ctx context.Context) (uint64, error) {
	out, err := e.viewFunction(ctx, "get_chain_id", nil, backend.BlockID{})
	if err != nil {
		return 0, err
	}
	return new(uint256.Int).SetBytes(out).Uint64(), nil
}

// GetBalance returns the balance of address as an unsigned 256-bit integer.
func (e *Engine) GetBalance(ctx context.Context, address common.Address, block backend.BlockID) (*uint256.Int, error) {
	out, err := e.viewFunction(ctx, "get_balance", address.Bytes(), block)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(out), nil
}

// GetNonce returns the nonce of address as an unsigned 256-bit integer.
func (e *Engine) GetNonce(ctx context.Context, address common.Address, block backend.BlockID) (*uint256.Int, error) {
	out, err := e.viewFunction(ctx, "get_nonce", address.Bytes(), block)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(out), nil
}

// GetCode returns the code stored at address.
func (e *Engine) GetCode(ctx context.Context, address common.Address, block backend.BlockID) ([]byte, error) {
	return e.viewFunction(ctx, "get_code", address.Bytes(), block)
}

// GetStorageAt returns the 256-bit storage word at the given slot.
func (e *Engine) GetStorageAt(ctx context.Context, address common.Address, key common.Hash, block backend.BlockID) (common.Hash, error) {
	args := make([]byte, 0, common.AddressLength+common.HashLength)
	args = append(args, address.Bytes()...)
	args = append(args, key.Bytes()...)
	out, err := e.viewFunction(ctx, "get_storage_at", args, block)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(out), nil
}

// BlockHeight reports the backend's latest final block height.
func (e *Engine) BlockHeight(ctx context.Context) (uint64, error) {
	header, _, err := e.client.BlockInfo(ctx, backend.BlockID{})
	if err != nil {
		return 0, err
	}
	return header.Height, nil
}

// GetBlockTransactionCount counts the transactions in a block. Chunks are
// queried concurrently and joined before aggregation; the fan-out is bounded
// by the block's chunk count.
func (e *Engine) GetBlockTransactionCount(ctx context.Context, block backend.BlockID) (int, error) {
	_, chunks, err := e.client.BlockInfo(ctx, block)
	if err != nil {
		return 0, err
	}

	counts := make([]int, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk backend.ChunkRef) {
			defer wg.Done()
			counts[i], errs[i] = e.client.ChunkTxCount(ctx, chunk)
		}(i, chunk)
	}
	wg.Wait()

	total := 0
	for i := range chunks {
		if errs[i] != nil {
			return 0, fmt.Errorf("chunk %s: %w", chunks[i].Hash, errs[i])
		}
		total += counts[i]
	}
	return total, nil
}

// GetAccounts lists every account with keys on file for this network.
func (e *Engine) GetAccounts() []crypto.AccountID {
	return e.keys.Accounts(e.network)
}

// ReKey advances the key rotation counter without issuing any call.
func (e *Engine) ReKey() {
	e.keys.Rotate()
}

// LoadKeyFile registers the key from a credentials file.
func (e *Engine) LoadKeyFile(path string) error {
	creds, err := crypto.LoadCredentials(path)
	if err != nil {
		return err
	}
	return e.keys.SetKey(e.network, creds.AccountID, creds.Key)
}

// LoadKeyFiles loads every credentials file in order.
func (e *Engine) LoadKeyFiles(paths []string) error {
	for _, path := range paths {
		if err := e.LoadKeyFile(path); err != nil {
			return err
		}
	}
	return nil
}
