package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"evmbridge/crypto"
)

type capturedRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// newTestNode runs a JSON-RPC stub that records the last request and replies
// with the configured result or error payload.
func newTestNode(t *testing.T, result any, rpcErr *jsonRPCErrorObj) (*RPCClient, *capturedRequest) {
	t.Helper()
	last := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(last); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": "1"}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return NewRPCClient(server.URL), last
}

func decodeParams(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	params := make(map[string]any)
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	return params
}

func TestViewFunctionDefaultsToFinal(t *testing.T) {
	client, last := newTestNode(t, map[string]any{
		"result_base64": base64.StdEncoding.EncodeToString([]byte("pong")),
	}, nil)

	out, err := client.ViewFunction(context.Background(), "engine.testnet", "ping", nil, BlockID{})
	if err != nil {
		t.Fatalf("ViewFunction: %v", err)
	}
	if string(out) != "pong" {
		t.Errorf("result = %q, want %q", out, "pong")
	}

	params := decodeParams(t, last.Params)
	if params["finality"] != FinalityFinal {
		t.Errorf("finality = %v, want %q", params["finality"], FinalityFinal)
	}
	if _, ok := params["block_id"]; ok {
		t.Error("block_id must be absent when finality is sent")
	}
}

func TestViewFunctionBlockSelectorOmitsFinality(t *testing.T) {
	client, last := newTestNode(t, map[string]any{"result_base64": ""}, nil)

	if _, err := client.ViewFunction(context.Background(), "engine.testnet", "ping", nil, BlockHeight(1234)); err != nil {
		t.Fatalf("ViewFunction: %v", err)
	}

	params := decodeParams(t, last.Params)
	if _, ok := params["finality"]; ok {
		t.Error("finality must be absent when a block selector is given")
	}
	if params["block_id"] != float64(1234) {
		t.Errorf("block_id = %v, want 1234", params["block_id"])
	}
}

func TestCallFunctionSuccessValue(t *testing.T) {
	success := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02})
	client, last := newTestNode(t, map[string]any{
		"transaction_hash": "9wV5...tx",
		"status":           map[string]any{"success_value_base64": success},
	}, nil)

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	outcome, err := client.CallFunction(context.Background(), "relayer.testnet", kp, "engine.testnet", "submit", []byte{0xaa}, 300)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if !outcome.HasSuccess || string(outcome.SuccessValue) != "\x01\x02" {
		t.Errorf("outcome = %+v, want success value 0102", outcome)
	}
	if outcome.TxHash != "9wV5...tx" {
		t.Errorf("tx hash = %q", outcome.TxHash)
	}

	params := decodeParams(t, last.Params)
	if params["public_key"] != kp.PublicKey() {
		t.Error("public key of the rotated pair must be sent to the node")
	}
	if params["gas"] != float64(300) {
		t.Errorf("gas = %v, want 300", params["gas"])
	}
}

func TestCallFunctionUnrecognizedStatus(t *testing.T) {
	client, _ := newTestNode(t, map[string]any{
		"transaction_hash": "tx",
		"status":           map[string]any{"pending": true},
	}, nil)

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	outcome, err := client.CallFunction(context.Background(), "relayer.testnet", kp, "engine.testnet", "call", nil, 300)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if outcome.HasSuccess || outcome.Failure != nil {
		t.Fatalf("outcome = %+v, want raw status only", outcome)
	}
	if outcome.RawStatus != `{"pending":true}` {
		t.Errorf("raw status = %q", outcome.RawStatus)
	}
}

func TestDecodeFailureCategories(t *testing.T) {
	cases := []struct {
		name    string
		errObj  jsonRPCErrorObj
		kind    FailureKind
		message string
	}{
		{
			name: "execution",
			errObj: jsonRPCErrorObj{
				Message: "handler error",
				Data:    json.RawMessage(`{"kind":"execution","message":"Smart contract panicked: be kind"}`),
			},
			kind:    FailureExecution,
			message: "Smart contract panicked: be kind",
		},
		{
			name: "method not found",
			errObj: jsonRPCErrorObj{
				Message: "handler error",
				Data:    json.RawMessage(`{"kind":"method_not_found","message":"MethodResolveError(MethodNotFound)"}`),
			},
			kind:    FailureMethodNotFound,
			message: "MethodResolveError(MethodNotFound)",
		},
		{
			name:   "unrecognized",
			errObj: jsonRPCErrorObj{Message: "timeout waiting for block"},
			kind:   FailureOther,
		},
		{
			name: "malformed data",
			errObj: jsonRPCErrorObj{
				Message: "boom",
				Data:    json.RawMessage(`"not an object"`),
			},
			kind: FailureOther,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			failure := decodeFailure(&tc.errObj)
			if failure.Kind != tc.kind {
				t.Errorf("kind = %d, want %d", failure.Kind, tc.kind)
			}
			if failure.Message != tc.message {
				t.Errorf("message = %q, want %q", failure.Message, tc.message)
			}
			if failure.Raw != tc.errObj.Message {
				t.Errorf("raw = %q, want %q", failure.Raw, tc.errObj.Message)
			}
		})
	}
}

func TestTxStatusShapes(t *testing.T) {
	client, _ := newTestNode(t, map[string]any{
		"transaction_outcome": map[string]any{"gas_burnt": 5},
		"receipts_outcome": []map[string]any{
			{"gas_burnt": 10},
			{"gas_burnt": 20},
		},
	}, nil)

	status, err := client.TxStatus(context.Background(), "tx", "relayer.testnet")
	if err != nil {
		t.Fatalf("TxStatus: %v", err)
	}
	if status.TransactionGasBurnt != 5 {
		t.Errorf("transaction gas = %d, want 5", status.TransactionGasBurnt)
	}
	if len(status.ReceiptGasBurnt) != 2 || status.ReceiptGasBurnt[0] != 10 || status.ReceiptGasBurnt[1] != 20 {
		t.Errorf("receipt gas = %v, want [10 20]", status.ReceiptGasBurnt)
	}
}

func TestViewStateDecodesRecords(t *testing.T) {
	client, last := newTestNode(t, map[string]any{
		"values": []map[string]any{
			{
				"key_base64":   base64.StdEncoding.EncodeToString([]byte{0x01, 0xaa}),
				"value_base64": base64.StdEncoding.EncodeToString([]byte{0x05}),
			},
		},
	}, nil)

	records, err := client.ViewState(context.Background(), "engine.testnet", nil, BlockID{})
	if err != nil {
		t.Fatalf("ViewState: %v", err)
	}
	if len(records) != 1 || records[0].Key[0] != 0x01 || records[0].Value[0] != 0x05 {
		t.Errorf("records = %+v", records)
	}

	params := decodeParams(t, last.Params)
	if params["request_type"] != "view_state" {
		t.Errorf("request_type = %v", params["request_type"])
	}
}

func TestCallSurfacesDecodedFailure(t *testing.T) {
	client, _ := newTestNode(t, nil, &jsonRPCErrorObj{
		Message: "handler error",
		Data:    json.RawMessage(`{"kind":"execution","message":"Smart contract panicked: nope"}`),
	})

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, err = client.CallFunction(context.Background(), "relayer.testnet", kp, "engine.testnet", "call", nil, 300)
	failure, ok := err.(*Failure)
	if !ok {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if failure.Kind != FailureExecution {
		t.Errorf("kind = %d, want execution", failure.Kind)
	}
}
