package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"evmbridge/crypto"
)

const defaultTimeout = 10 * time.Second

// RPCClient implements Client against the backend node's JSON-RPC endpoint.
// Transaction signing and broadcast happen node-side: a mutating call names
// the signer account and the public key selecting which stored key the node
// signs with.
type RPCClient struct {
	baseURL string
	http    *http.Client
}

// NewRPCClient creates a client for the node at baseURL.
func NewRPCClient(baseURL string) *RPCClient {
	return &RPCClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      string           `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// failurePayload is the structured failure category the node attaches to the
// error of a settled-but-failed function call.
type failurePayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func decodeFailure(errObj *jsonRPCErrorObj) *Failure {
	failure := &Failure{Kind: FailureOther, Raw: errObj.Message}
	if len(errObj.Data) == 0 {
		return failure
	}
	var payload failurePayload
	if err := json.Unmarshal(errObj.Data, &payload); err != nil {
		return failure
	}
	switch payload.Kind {
	case "execution":
		failure.Kind = FailureExecution
		failure.Message = payload.Message
	case "method_not_found":
		failure.Kind = FailureMethodNotFound
		failure.Message = payload.Message
	}
	return failure
}

func (c *RPCClient) call(ctx context.Context, method string, params any, result any) error {
	payload, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: %s: unexpected status %d", method, resp.StatusCode)
	}

	var envelope jsonRPCResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("backend: decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return decodeFailure(envelope.Error)
	}
	if result == nil {
		return nil
	}
	if len(envelope.Result) == 0 {
		return fmt.Errorf("backend: %s returned no result", method)
	}
	return json.Unmarshal(envelope.Result, result)
}

// blockParams renders the finality/selector pair: exactly one of the two is
// ever present on the wire.
func blockParams(block BlockID) map[string]any {
	if block.IsZero() {
		return map[string]any{"finality": FinalityFinal}
	}
	return map[string]any{"block_id": block.Param()}
}

func (c *RPCClient) ViewFunction(ctx context.Context, account crypto.AccountID, method string, args []byte, block BlockID) ([]byte, error) {
	params := blockParams(block)
	params["request_type"] = "call_function"
	params["account_id"] = account.String()
	params["method_name"] = method
	params["args_base64"] = base64.StdEncoding.EncodeToString(args)

	var result struct {
		ResultBase64 string `json:"result_base64"`
	}
	if err := c.call(ctx, "query", params, &result); err != nil {
		return nil, err
	}
	out, err := base64.StdEncoding.DecodeString(result.ResultBase64)
	if err != nil {
		return nil, fmt.Errorf("backend: decode view result: %w", err)
	}
	return out, nil
}

type callStatus struct {
	SuccessValueBase64 *string         `json:"success_value_base64"`
	Failure            *failurePayload `json:"failure"`
}

type callResult struct {
	TransactionHash string          `json:"transaction_hash"`
	Status          json.RawMessage `json:"status"`
}

func (c *RPCClient) CallFunction(ctx context.Context, signer crypto.AccountID, key *crypto.KeyPair, contract crypto.AccountID, method string, args []byte, gas uint64) (*CallOutcome, error) {
	if key == nil {
		return nil, errors.New("backend: no signing key supplied")
	}
	params := map[string]any{
		"signer_id":   signer.String(),
		"public_key":  key.PublicKey(),
		"contract_id": contract.String(),
		"method_name": method,
		"args_base64": base64.StdEncoding.EncodeToString(args),
		"gas":         gas,
	}

	var result callResult
	if err := c.call(ctx, "function_call", params, &result); err != nil {
		return nil, err
	}

	outcome := &CallOutcome{TxHash: result.TransactionHash}
	var status callStatus
	if err := json.Unmarshal(result.Status, &status); err == nil {
		switch {
		case status.SuccessValueBase64 != nil:
			value, err := base64.StdEncoding.DecodeString(*status.SuccessValueBase64)
			if err != nil {
				return nil, fmt.Errorf("backend: decode success value: %w", err)
			}
			outcome.SuccessValue = value
			outcome.HasSuccess = true
			return outcome, nil
		case status.Failure != nil:
			outcome.Failure = decodeFailure(&jsonRPCErrorObj{
				Message: status.Failure.Message,
				Data:    mustMarshal(status.Failure),
			})
			return outcome, nil
		}
	}
	outcome.RawStatus = string(result.Status)
	return outcome, nil
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

func (c *RPCClient) TxStatus(ctx context.Context, txRef string, signer crypto.AccountID) (*TxStatusResult, error) {
	params := map[string]any{
		"tx_hash":           txRef,
		"sender_account_id": signer.String(),
	}
	var result struct {
		TransactionOutcome struct {
			GasBurnt uint64 `json:"gas_burnt"`
		} `json:"transaction_outcome"`
		ReceiptsOutcome []struct {
			GasBurnt uint64 `json:"gas_burnt"`
		} `json:"receipts_outcome"`
	}
	if err := c.call(ctx, "tx_status", params, &result); err != nil {
		return nil, err
	}
	status := &TxStatusResult{TransactionGasBurnt: result.TransactionOutcome.GasBurnt}
	for _, receipt := range result.ReceiptsOutcome {
		status.ReceiptGasBurnt = append(status.ReceiptGasBurnt, receipt.GasBurnt)
	}
	return status, nil
}

func (c *RPCClient) ViewState(ctx context.Context, account crypto.AccountID, prefix []byte, block BlockID) ([]StateRecord, error) {
	params := blockParams(block)
	params["request_type"] = "view_state"
	params["account_id"] = account.String()
	params["prefix_base64"] = base64.StdEncoding.EncodeToString(prefix)

	var result struct {
		Values []struct {
			KeyBase64   string `json:"key_base64"`
			ValueBase64 string `json:"value_base64"`
		} `json:"values"`
	}
	if err := c.call(ctx, "query", params, &result); err != nil {
		return nil, err
	}

	records := make([]StateRecord, 0, len(result.Values))
	for _, value := range result.Values {
		key, err := base64.StdEncoding.DecodeString(value.KeyBase64)
		if err != nil {
			return nil, fmt.Errorf("backend: decode state key: %w", err)
		}
		val, err := base64.StdEncoding.DecodeString(value.ValueBase64)
		if err != nil {
			return nil, fmt.Errorf("backend: decode state value: %w", err)
		}
		records = append(records, StateRecord{Key: key, Value: val})
	}
	return records, nil
}

func (c *RPCClient) BlockInfo(ctx context.Context, block BlockID) (*BlockHeader, []ChunkRef, error) {
	var result struct {
		Header struct {
			Height uint64 `json:"height"`
			Hash   string `json:"hash"`
		} `json:"header"`
		Chunks []struct {
			ChunkHash string `json:"chunk_hash"`
		} `json:"chunks"`
	}
	if err := c.call(ctx, "block", blockParams(block), &result); err != nil {
		return nil, nil, err
	}
	chunks := make([]ChunkRef, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		chunks = append(chunks, ChunkRef{Hash: chunk.ChunkHash})
	}
	return &BlockHeader{Height: result.Header.Height, Hash: result.Header.Hash}, chunks, nil
}

func (c *RPCClient) ChunkTxCount(ctx context.Context, chunk ChunkRef) (int, error) {
	params := map[string]any{"chunk_hash": chunk.Hash}
	var result struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := c.call(ctx, "chunk", params, &result); err != nil {
		return 0, err
	}
	return len(result.Transactions), nil
}
