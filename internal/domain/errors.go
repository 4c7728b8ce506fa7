package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors raised by adapters and natives.
var (
	// ErrPlatformUnavailable means the expected native facility could not be located.
	ErrPlatformUnavailable = errors.New("platform facility unavailable")

	// ErrServiceRejected means the platform's service manager refused an operation.
	ErrServiceRejected = errors.New("service operation rejected")

	// ErrInvalidPayload means a boundary request or response could not be decoded.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrConsentTornDown means the native consent channel ended without an answer.
	ErrConsentTornDown = errors.New("consent channel torn down")

	// ErrBridgeClosed is returned when operating on a closed native bridge.
	ErrBridgeClosed = errors.New("native bridge closed")
)

// ErrorKind is the taxonomy every error is mapped into before it crosses the boundary.
type ErrorKind string

const (
	KindPlatformUnavailable    ErrorKind = "PlatformUnavailable"
	KindServiceOperationFailed ErrorKind = "ServiceOperationFailed"
	KindSerializationError     ErrorKind = "SerializationError"
)

// MediationError is the structured error surfaced to the host.
type MediationError struct {
	// Kind categorizes the error.
	Kind ErrorKind
	// Op is the boundary operation that failed (e.g., "checkPermission").
	Op string
	// Message is the native or adapter message, if any.
	Message string
	// Err is the underlying error.
	Err error
}

func (e *MediationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s]: %s", e.Kind, e.Message)
}

func (e *MediationError) Unwrap() error {
	return e.Err
}

// OperationClass tells Normalize which kind unclassified errors fall into.
type OperationClass int

const (
	// OpPermission covers check/request permission and microphone probing.
	OpPermission OperationClass = iota
	// OpService covers start/stop/update/status of the foreground service.
	OpService
)

// Normalize maps err into a MediationError. An existing MediationError keeps
// its kind; sentinels map to their kind; anything else is attributed to the
// native facility behind the operation class.
func Normalize(op string, class OperationClass, err error) *MediationError {
	if err == nil {
		return nil
	}

	var me *MediationError
	if errors.As(err, &me) {
		if me.Op == "" {
			return &MediationError{Kind: me.Kind, Op: op, Message: me.Message, Err: me.Err}
		}
		return me
	}

	kind := KindPlatformUnavailable
	switch {
	case errors.Is(err, ErrInvalidPayload):
		kind = KindSerializationError
	case errors.Is(err, ErrPlatformUnavailable):
		kind = KindPlatformUnavailable
	case errors.Is(err, ErrServiceRejected):
		kind = KindServiceOperationFailed
	case class == OpService:
		kind = KindServiceOperationFailed
	}

	return &MediationError{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// NewSerializationError wraps a decode/encode failure at the boundary.
func NewSerializationError(op string, err error) *MediationError {
	return &MediationError{
		Kind:    KindSerializationError,
		Op:      op,
		Message: err.Error(),
		Err:     fmt.Errorf("%w: %v", ErrInvalidPayload, err),
	}
}
