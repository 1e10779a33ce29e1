package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame is the single wire envelope.
//
//	request:  {kind, requestId, payload}
//	response: {requestId, payload} or {requestId, error}
//	push:     {kind, payload}
type Frame struct {
	Kind      string          `json:"kind,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

func (f Frame) IsResponse() bool { return f.Kind == "" && f.RequestID != "" }

type Code string

const (
	CodeProtocol      Code = "protocol"
	CodeAuthorization Code = "authorization"
	CodeValidation    Code = "validation"
	CodeStorage       Code = "storage"
)

// Error is the error body of a response frame. It doubles as a Go error on both ends.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is matches any *Error with the same code, so errors.Is(err, &Error{Code: CodeValidation}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func ProtocolError(format string, args ...any) *Error {
	return &Error{Code: CodeProtocol, Message: fmt.Sprintf(format, args...)}
}

func AuthorizationError(format string, args ...any) *Error {
	return &Error{Code: CodeAuthorization, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// StorageError never carries collaborator detail; that stays in the server log.
func StorageError() *Error {
	return &Error{Code: CodeStorage, Message: "storage unavailable"}
}

// CodeOf reports the protocol code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// Encode marshals v into a frame payload.
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol.Encode: %w", err)
	}
	return b, nil
}

// Decode unmarshals a frame payload. An absent payload decodes to the zero value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("protocol.Decode: %w", err)
	}
	return v, nil
}
