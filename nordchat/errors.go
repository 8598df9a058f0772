package nordchat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Socket-level failure. Logged, never fatal on its own.
	ErrorTransport
	// Malformed frame, wrong protocol version, unknown response id.
	ErrorProtocol
	// Server answered a call with an error object.
	ErrorRPC
	// Synthesized for every call still pending when a session closes.
	ErrorConnectionClosed
	// Reducer received an action outside its set.
	ErrorUnknownAction

	// Client-side Errors
	ErrorNotConnected
	ErrorSerialization
	ErrorInvalidConfig
	ErrorIdentity
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorTransport:
		return "transport_error"
	case ErrorProtocol:
		return "protocol_error"
	case ErrorRPC:
		return "rpc_error"
	case ErrorConnectionClosed:
		return "connection_closed"
	case ErrorUnknownAction:
		return "unknown_action"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorIdentity:
		return "identity_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// Error is a structured error with code and context. Data holds the raw
// server error object for ErrorRPC.
type Error struct {
	Code    ErrorCode
	Message string
	Data    json.RawMessage
	Wrapped error
}

// Sentinels for errors.Is; comparison is by code only.
var (
	ErrTransport        = &Error{Code: ErrorTransport}
	ErrProtocol         = &Error{Code: ErrorProtocol}
	ErrRPC              = &Error{Code: ErrorRPC}
	ErrConnectionClosed = &Error{Code: ErrorConnectionClosed}
	ErrUnknownAction    = &Error{Code: ErrorUnknownAction}
	ErrNotConnected     = &Error{Code: ErrorNotConnected}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s: %s %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface for error comparison.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with an Error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// FromRPCError converts the error member of a response into an Error.
// A {"code":..,"message":..} object contributes its message; any other
// shape is kept verbatim in Data.
func FromRPCError(raw json.RawMessage) *Error {
	e := &Error{Code: ErrorRPC, Message: "server error", Data: raw}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		e.Message = obj.Message
	} else {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			e.Message = s
		}
	}
	return e
}

// IsRPCError reports whether err is an error returned by the server.
func IsRPCError(err error) bool {
	return hasCode(err, ErrorRPC)
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	return hasCode(err, ErrorTransport) || hasCode(err, ErrorConnectionClosed) || hasCode(err, ErrorNotConnected)
}

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
