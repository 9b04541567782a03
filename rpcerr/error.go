// Package rpcerr defines the closed error-kind taxonomy of spec §7 and
// how each kind maps onto a JSON-RPC 2.0 error object, grounded on the
// teacher's own AppError{Code, Message} shape (warp/app_error.go).
package rpcerr

import "fmt"

// Kind is spec §7's stable taxonomy.
type Kind int

const (
	InvalidParams Kind = iota
	HexDecode
	RlpDecode
	Signature
	NotFound
	CallFailed
	UnsupportedQuery
)

func (k Kind) String() string {
	switch k {
	case InvalidParams:
		return "InvalidParams"
	case HexDecode:
		return "HexDecode"
	case RlpDecode:
		return "RlpDecode"
	case Signature:
		return "Signature"
	case NotFound:
		return "NotFound"
	case CallFailed:
		return "CallFailed"
	case UnsupportedQuery:
		return "UnsupportedQuery"
	default:
		return "Unknown"
	}
}

// code is the JSON-RPC 2.0 error code each kind maps to, NotFound
// included; getters documented "or null" check IsNotFound themselves and
// return a null result instead of an error.
func (k Kind) code() int {
	switch k {
	case InvalidParams:
		return -32602
	case HexDecode, RlpDecode, Signature:
		return -32000
	case NotFound:
		return -32001
	case CallFailed:
		return -32003
	case UnsupportedQuery:
		return -32004
	default:
		return -32603
	}
}

// Error is the application-level error every rpcerr.* constructor
// produces, carrying enough to render a JSON-RPC error object.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

// ErrorCode implements go-ethereum/rpc's Error interface, so the JSON-RPC
// server reflects each Kind's mapped code onto the wire instead of
// falling back to a generic -32000 for every application error.
func (e *Error) ErrorCode() int { return e.Kind.code() }

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// JSONRPCError is the wire shape of a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToJSONRPC renders err as a JSON-RPC error object. Callers implementing
// a getter that specifies "or null" must check for Kind==NotFound
// themselves and return a null result instead of calling this.
func ToJSONRPC(err error) *JSONRPCError {
	if e, ok := err.(*Error); ok {
		return &JSONRPCError{Code: e.Kind.code(), Message: e.Error()}
	}
	return &JSONRPCError{Code: -32603, Message: err.Error()}
}

// IsNotFound reports whether err is a NotFound rpcerr.Error, the signal
// RPC getters use to decide between "return null" and "return an error".
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == NotFound
}
