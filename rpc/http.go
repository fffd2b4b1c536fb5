// Package rpc exposes the bridge over an Ethereum-flavored JSON-RPC surface,
// translating eth_* requests onto the engine's typed methods.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"evmbridge/backend"
	"evmbridge/engine"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Bridge is the engine surface the facade depends on.
type Bridge interface {
	GetChainID(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, address common.Address, block backend.BlockID) (*uint256.Int, error)
	GetNonce(ctx context.Context, address common.Address, block backend.BlockID) (*uint256.Int, error)
	GetCode(ctx context.Context, address common.Address, block backend.BlockID) ([]byte, error)
	GetStorageAt(ctx context.Context, address common.Address, key common.Hash, block backend.BlockID) (common.Hash, error)
	View(ctx context.Context, sender, address common.Address, amount *uint256.Int, input []byte) ([]byte, error)
	Submit(ctx context.Context, raw []byte) (*engine.TransactionOutcome, error)
	BlockHeight(ctx context.Context) (uint64, error)
	GetBlockTransactionCount(ctx context.Context, block backend.BlockID) (int, error)
}

// Server is an HTTP handler dispatching JSON-RPC 2.0 requests to the bridge.
type Server struct {
	bridge  Bridge
	log     *slog.Logger
	limiter *RateLimiter
}

// NewServer builds a facade over bridge. A nil limiter disables rate
// limiting; a nil logger falls back to slog.Default.
func NewServer(bridge Bridge, logger *slog.Logger, limiter *RateLimiter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{bridge: bridge, log: logger, limiter: limiter}
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(r.RemoteAddr) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, nil, codeInvalidRequest, "unable to read request body")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		s.writeError(w, req.ID, codeInvalidRequest, "unsupported jsonrpc version")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		s.log.Debug("rpc call failed", "method", req.Method, "code", rpcErr.Code, "err", rpcErr.Message)
		s.writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr})
		return
	}
	s.writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, req *rpcRequest) (any, *rpcError) {
	switch req.Method {
	case "eth_chainId":
		return s.ethChainID(ctx)
	case "net_version":
		return s.netVersion(ctx)
	case "eth_blockNumber":
		return s.ethBlockNumber(ctx)
	case "eth_getBalance":
		return s.ethGetBalance(ctx, req.Params)
	case "eth_getTransactionCount":
		return s.ethGetTransactionCount(ctx, req.Params)
	case "eth_getCode":
		return s.ethGetCode(ctx, req.Params)
	case "eth_getStorageAt":
		return s.ethGetStorageAt(ctx, req.Params)
	case "eth_call":
		return s.ethCall(ctx, req.Params)
	case "eth_sendRawTransaction":
		return s.ethSendRawTransaction(ctx, req.Params)
	case "eth_getBlockTransactionCountByNumber":
		return s.ethGetBlockTransactionCountByNumber(ctx, req.Params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func serverError(err error) *rpcError {
	return &rpcError{Code: codeServerError, Message: err.Error()}
}

func invalidParams(format string, args ...any) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func (s *Server) ethChainID(ctx context.Context) (any, *rpcError) {
	id, err := s.bridge.GetChainID(ctx)
	if err != nil {
		return nil, serverError(err)
	}
	return hexutil.EncodeUint64(id), nil
}

func (s *Server) netVersion(ctx context.Context) (any, *rpcError) {
	id, err := s.bridge.GetChainID(ctx)
	if err != nil {
		return nil, serverError(err)
	}
	return strconv.FormatUint(id, 10), nil
}

func (s *Server) ethBlockNumber(ctx context.Context) (any, *rpcError) {
	height, err := s.bridge.BlockHeight(ctx)
	if err != nil {
		return nil, serverError(err)
	}
	return hexutil.EncodeUint64(height), nil
}

func (s *Server) ethGetBalance(ctx context.Context, params []json.RawMessage) (any, *rpcError) {
	address, block, rpcErr := addressAndBlock(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.bridge.GetBalance(ctx, address, block)
	if err != nil {
		return nil, serverError(err)
	}
	return hexutil.EncodeBig(balance.ToBig()), nil
}

func (s *Server) ethGetTransactionCount(ctx context.Context, params []json.RawMessage) (any, *rpcError) {
	address, block, rpcErr := addressAndBlock(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.bridge.GetNonce(ctx, address, block)
	if err != nil {
		return nil, serverError(err)
	}
	return hexutil.EncodeBig(nonce.ToBig()), nil
}

func (s *Server) ethGetCode(ctx context.Context, params []json.RawMessage) (any, *rpcError) {
	address, block, rpcErr := addressAndBlock(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	code, err := s.bridge.GetCode(ctx, address, block)
	if err != nil {
		return nil, serverError(err)
	}
	return hexutil.Encode(code), nil
}

func (s *Server) ethGetStorageAt(ctx context.Context, params []json.RawMessage) (any, *rpcError) {
	if len(params) < 2 {
		return nil, invalidParams("eth_getStorageAt requires address and slot")
	}
	address, rpcErr := parseAddress(params[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var slotHex string
	if err := json.Unmarshal(params[1], &slotHex); err != nil {
		return nil, invalidParams("invalid storage slot")
	}
	slot := common.HexToHash(slotHex)
	block := backend.BlockID{}
	if len(params) > 2 {
		block, rpcErr = parseBlockParam(params[2])
		if rpcErr != nil {
			return nil, rpcErr
		}
	}
	value, err := s.bridge.GetStorageAt(ctx, address, slot, block)
	if err != nil {
		return nil, serverError(err)
	}
	return value.Hex(), nil
}

type callParams struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (s *Server) ethCall(ctx context.Context, params []json.RawMessage) (any, *rpcError) {
	if len(params) < 1 {
		return nil, invalidParams("eth_call requires a call object")
	}
	var call callParams
	if err := json.Unmarshal(params[0], &call); err != nil {
		return nil, invalidParams("invalid call object: %v", err)
	}
	if call.To == nil {
		return nil, invalidParams("eth_call requires a to address")
	}
	amount := uint256.NewInt(0)
	if call.Value != nil {
		converted, overflow := uint256.FromBig(call.Value.ToInt())
		if overflow {
			return nil, invalidParams("call value exceeds 256 bits")
		}
		amount = converted
	}
	input := call.Data
	if len(call.Input) > 0 {
		input = call.Input
	}
	out, err := s.bridge.View(ctx, call.From, *call.To, amount, input)
	if err != nil {
		return nil, serverError(err)
	}
	return hexutil.Encode(out), nil
}

func (s *Server) ethSendRawTransaction(ctx context.Context, params []json.RawMessage) (any, *rpcError) {
	if len(params) < 1 {
		return nil, invalidParams("eth_sendRawTransaction requires raw transaction bytes")
	}
	var raw hexutil.Bytes
	if err := json.Unmarshal(params[0], &raw); err != nil {
		return nil, invalidParams("invalid raw transaction encoding")
	}
	outcome, err := s.bridge.Submit(ctx, raw)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRawTransaction) || errors.Is(err, engine.ErrIntrinsicGasTooLow) {
			return nil, invalidParams("%s", err.Error())
		}
		return nil, serverError(err)
	}
	return outcome.ID, nil
}

func (s *Server) ethGetBlockTransactionCountByNumber(ctx context.Context, params []json.RawMessage) (any, *rpcError) {
	block := backend.BlockID{}
	if len(params) > 0 {
		var rpcErr *rpcError
		block, rpcErr = parseBlockParam(params[0])
		if rpcErr != nil {
			return nil, rpcErr
		}
	}
	count, err := s.bridge.GetBlockTransactionCount(ctx, block)
	if err != nil {
		return nil, serverError(err)
	}
	return hexutil.EncodeUint64(uint64(count)), nil
}

func parseAddress(raw json.RawMessage) (common.Address, *rpcError) {
	var hexAddr string
	if err := json.Unmarshal(raw, &hexAddr); err != nil {
		return common.Address{}, invalidParams("invalid address")
	}
	if !common.IsHexAddress(hexAddr) {
		return common.Address{}, invalidParams("invalid address %q", hexAddr)
	}
	return common.HexToAddress(hexAddr), nil
}

// parseBlockParam maps the Ethereum block parameter onto a backend selector:
// "latest" becomes the zero selector (finality "final"), other tags pass
// through verbatim, and hex quantities become height selectors.
func parseBlockParam(raw json.RawMessage) (backend.BlockID, *rpcError) {
	var param string
	if err := json.Unmarshal(raw, &param); err != nil {
		return backend.BlockID{}, invalidParams("invalid block parameter")
	}
	switch param {
	case "", "latest":
		return backend.BlockID{}, nil
	case "earliest", "pending":
		return backend.BlockID{Tag: param}, nil
	}
	height, err := hexutil.DecodeUint64(param)
	if err != nil {
		return backend.BlockID{}, invalidParams("invalid block number %q", param)
	}
	return backend.BlockHeight(height), nil
}

func addressAndBlock(params []json.RawMessage) (common.Address, backend.BlockID, *rpcError) {
	if len(params) < 1 {
		return common.Address{}, backend.BlockID{}, invalidParams("missing address parameter")
	}
	address, rpcErr := parseAddress(params[0])
	if rpcErr != nil {
		return common.Address{}, backend.BlockID{}, rpcErr
	}
	block := backend.BlockID{}
	if len(params) > 1 {
		block, rpcErr = parseBlockParam(params[1])
		if rpcErr != nil {
			return common.Address{}, backend.BlockID{}, rpcErr
		}
	}
	return address, block, nil
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("write rpc response", "err", err)
	}
}
