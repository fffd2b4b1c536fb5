package engine

import (
	"encoding/json"
	"errors"
)

// Local validation failures for Submit. Both are detected before any backend
// call is attempted, and their messages are the stable classification codes.
var (
	// ErrInvalidRawTransaction means the payload did not parse as a raw
	// transaction.
	ErrInvalidRawTransaction = errors.New("ERR_INVALID_TX")
	// ErrIntrinsicGasTooLow means the parsed transaction's gas limit is below
	// the intrinsic minimum.
	ErrIntrinsicGasTooLow = errors.New("ERR_INTRINSIC_GAS")
)

// CallDetails is the structured payload attached to an execution failure.
type CallDetails struct {
	TxRef     string `json:"tx"`
	GasBurned uint64 `json:"gasBurned"`
}

// CallError is a classified remote failure: a human-readable message plus
// optional structured details. The reportable string concatenates both.
type CallError struct {
	Message string
	Details *CallDetails
}

func (e *CallError) Error() string {
	if e.Details == nil {
		return e.Message
	}
	raw, err := json.Marshal(e.Details)
	if err != nil {
		return e.Message
	}
	return e.Message + " " + string(raw)
}
