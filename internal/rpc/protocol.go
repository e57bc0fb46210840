package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/fabric"
)

const Version = "2.0"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeRejected       = -32000
	CodeUnauthorized   = -32001
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response carries either Result or Error. A successful call always has a
// result member, null included.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func invalidParams(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

var paramErrors = []error{
	chain.ErrInvalidAddress,
	chain.ErrInvalidAmount,
	chain.ErrInvalidPayload,
	chain.ErrInvalidHandle,
	chain.ErrInvalidName,
	chain.ErrInvalidRoyalty,
	chain.ErrUnknownCall,
	chain.ErrInvalidClaim,
	archon.ErrIntegrity,
	archon.ErrInvalidVote,
	fabric.ErrUnknownNode,
}

// rejectErrors are state-dependent refusals of a well-formed request.
var rejectErrors = []error{
	chain.ErrInsufficientBalance,
	chain.ErrBadNonce,
	chain.ErrReplay,
	chain.ErrMaxSupply,
	chain.ErrUnauthorizedMint,
	chain.ErrUnauthorizedBurn,
	chain.ErrOverflow,
	chain.ErrProfileExists,
	chain.ErrProfileNotFound,
	chain.ErrHandleTaken,
	chain.ErrNotArchon,
	chain.ErrNFTNotFound,
	chain.ErrNotOwner,
	chain.ErrListingNotFound,
	chain.ErrListingInactive,
	chain.ErrAlreadyListed,
	chain.ErrNotSeller,
	chain.ErrSelfPurchase,
	chain.ErrSellerNotOwner,
	chain.ErrClaimSubmitted,
	chain.ErrAssetExists,
	chain.ErrAssetNotFound,
	chain.ErrNotAssetOwner,
	chain.ErrPoolExhausted,
}

// toError maps a handler error onto a JSON-RPC error.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, chain.ErrDevModeDisabled) {
		return &Error{Code: CodeMethodNotFound, Message: err.Error()}
	}
	for _, target := range paramErrors {
		if errors.Is(err, target) {
			return &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
	}
	for _, target := range rejectErrors {
		if errors.Is(err, target) {
			return &Error{Code: CodeRejected, Message: err.Error()}
		}
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}

// decodeParams unmarshals params into v. Absent or null params leave v as is.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}

func parseAddress(field, s string) (chain.Address, error) {
	if s == "" {
		return chain.Address{}, invalidParams("%s is required", field)
	}
	a, err := chain.ParseAddress(s)
	if err != nil {
		return a, invalidParams("invalid %s: %v", field, err)
	}
	return a, nil
}
