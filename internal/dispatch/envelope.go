package dispatch

import (
	"encoding/json"
	"errors"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// Request is one host call on a message transport.
type Request struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Request with the same ID. Exactly one of Result and
// Error is set.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the structured error shape hosts receive.
type ErrorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// NewErrorBody converts err into the wire error shape.
func NewErrorBody(err error) *ErrorBody {
	var merr *domain.MediationError
	if !errors.As(err, &merr) {
		merr = domain.Normalize("", domain.OpPermission, err)
	}
	return &ErrorBody{Kind: merr.Kind, Message: merr.Message}
}
