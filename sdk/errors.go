package sdk

import (
	"errors"
	"fmt"
)

// Kind classifies SDK failures.
type Kind int

const (
	KindOther Kind = iota
	KindRPC
	KindHTTP
	KindSerialization
	KindInvalidAddress
	KindSigning
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindRPC:
		return "rpc"
	case KindHTTP:
		return "http"
	case KindSerialization:
		return "serialization"
	case KindInvalidAddress:
		return "invalid address"
	case KindSigning:
		return "signing"
	case KindTransaction:
		return "transaction"
	default:
		return "other"
	}
}

// Error is returned by every client call. Code is the JSON-RPC error code for
// KindRPC and Status the HTTP status for KindHTTP, when known.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s error %d: %s", e.Kind, e.Code, msg)
	case e.Status != 0:
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, msg)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so errors.Is(err, ErrRPC) holds for any RPC failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == 0 && t.Status == 0 && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrRPC            = &Error{Kind: KindRPC}
	ErrHTTP           = &Error{Kind: KindHTTP}
	ErrSerialization  = &Error{Kind: KindSerialization}
	ErrInvalidAddress = &Error{Kind: KindInvalidAddress}
	ErrSigning        = &Error{Kind: KindSigning}
	ErrTransaction    = &Error{Kind: KindTransaction}
	ErrOther          = &Error{Kind: KindOther}
)

// RPCCode returns the JSON-RPC error code carried by err, or 0.
func RPCCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRPC {
		return e.Code
	}
	return 0
}
