package infra

import (
	"encoding/json"
	"fmt"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// Codec encodes and decodes messages crossing the native bridge.
type Codec interface {
	// Encode converts a Go value to bytes for transmission to native code.
	Encode(value any) ([]byte, error)

	// DecodeInto converts bytes received from native code into v.
	DecodeInto(data []byte, v any) error
}

// JSONCodec implements Codec using JSON encoding.
type JSONCodec struct{}

// Encode serializes the value to JSON bytes.
func (JSONCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// DecodeInto deserializes JSON bytes into v. Empty input leaves v untouched.
func (JSONCodec) DecodeInto(data []byte, v any) error {
	if len(data) == 0 || v == nil {
		return nil
	}
	return json.Unmarshal(data, v)
}

// DefaultCodec is the codec used by the native bridge.
var DefaultCodec Codec = JSONCodec{}

// Native error codes carried by ChannelError.
const (
	CodeUnavailable      = "unavailable"
	CodeRejected         = "rejected"
	CodeInvalidArguments = "invalid_arguments"
	CodeMethodNotFound   = "method_not_found"
)

// ChannelError represents an error returned from native code.
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// Unwrap maps native codes onto domain sentinels so callers can use errors.Is.
func (e *ChannelError) Unwrap() error {
	switch e.Code {
	case CodeUnavailable, CodeMethodNotFound:
		return domain.ErrPlatformUnavailable
	case CodeRejected:
		return domain.ErrServiceRejected
	case CodeInvalidArguments:
		return domain.ErrInvalidPayload
	default:
		return nil
	}
}

// NewChannelError creates a new ChannelError with the given code and message.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}

// NewChannelErrorf creates a ChannelError with a formatted message.
func NewChannelErrorf(code, format string, args ...any) *ChannelError {
	return &ChannelError{Code: code, Message: fmt.Sprintf(format, args...)}
}
