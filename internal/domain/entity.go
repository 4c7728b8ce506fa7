// Package domain contains core permission and service entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"strings"
)

// PermissionKind identifies the capability a caller asks about.
type PermissionKind string

const (
	PermissionAudio        PermissionKind = "audio"
	PermissionNotification PermissionKind = "notification"
)

// DefaultPermissionKind is used when a request omits the kind.
const DefaultPermissionKind = PermissionAudio

// ParsePermissionKind accepts the wire spelling of a kind, case-insensitively.
// An empty string yields DefaultPermissionKind.
func ParsePermissionKind(s string) (PermissionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultPermissionKind, nil
	case string(PermissionAudio):
		return PermissionAudio, nil
	case string(PermissionNotification):
		return PermissionNotification, nil
	default:
		return "", fmt.Errorf("%w: unknown permission type %q", ErrInvalidPayload, s)
	}
}

// PermissionKinds lists every kind in a stable order.
func PermissionKinds() []PermissionKind {
	return []PermissionKind{PermissionAudio, PermissionNotification}
}

// PermissionRequest asks about a single permission kind.
type PermissionRequest struct {
	Kind PermissionKind `json:"permissionType,omitempty"`
}

// KindOrDefault returns the requested kind, falling back to audio.
func (r PermissionRequest) KindOrDefault() PermissionKind {
	if r.Kind == "" {
		return DefaultPermissionKind
	}
	return r.Kind
}

// PermissionResponse is the platform's answer at the instant of the call.
type PermissionResponse struct {
	Granted bool `json:"granted"`
}

// PermissionStatus is the tri-state reported by a native authorization facility.
// Only StatusUndetermined may move to another state.
type PermissionStatus int

const (
	StatusUndetermined PermissionStatus = iota
	StatusDenied
	StatusAuthorized
)

// IsTerminal reports whether the platform will not prompt again for this status.
func (s PermissionStatus) IsTerminal() bool {
	return s == StatusDenied || s == StatusAuthorized
}

// Granted converts the status into the boundary answer.
func (s PermissionStatus) Granted() bool {
	return s == StatusAuthorized
}

func (s PermissionStatus) String() string {
	switch s {
	case StatusDenied:
		return "denied"
	case StatusAuthorized:
		return "authorized"
	default:
		return "undetermined"
	}
}

// ParsePermissionStatus converts the native spelling back into a status.
// Unknown values are treated as undetermined.
func ParsePermissionStatus(s string) PermissionStatus {
	switch strings.ToLower(s) {
	case "denied":
		return StatusDenied
	case "authorized", "granted":
		return StatusAuthorized
	default:
		return StatusUndetermined
	}
}

// ServiceResponse describes the outcome of one lifecycle operation.
// Exactly one field is set, matching the operation invoked.
type ServiceResponse struct {
	Started *bool `json:"started,omitempty"`
	Stopped *bool `json:"stopped,omitempty"`
	Updated *bool `json:"updated,omitempty"`
}

// ServiceStarted, ServiceStopped and ServiceUpdated build the successful responses.
func ServiceStarted() ServiceResponse { return ServiceResponse{Started: boolPtr(true)} }
func ServiceStopped() ServiceResponse { return ServiceResponse{Stopped: boolPtr(true)} }
func ServiceUpdated() ServiceResponse { return ServiceResponse{Updated: boolPtr(true)} }

func boolPtr(b bool) *bool { return &b }

// ServiceStatusResponse is a live query result.
type ServiceStatusResponse struct {
	Running bool `json:"running"`
}

// NotificationUpdate carries the desired content of the service notification.
// Nil fields leave the current value unchanged.
type NotificationUpdate struct {
	Title   *string `json:"title,omitempty"`
	Message *string `json:"message,omitempty"`
}

// Default notification content shown when the recording service starts.
const (
	DefaultNotificationTitle   = "Recording Audio"
	DefaultNotificationMessage = "Audio recording is active"
)

// NotificationContent is the fully resolved text of the service notification.
type NotificationContent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// DefaultNotificationContent returns the content used on service start.
func DefaultNotificationContent() NotificationContent {
	return NotificationContent{
		Title:   DefaultNotificationTitle,
		Message: DefaultNotificationMessage,
	}
}

// Apply merges an update into the content, keeping fields the update omits.
func (c NotificationContent) Apply(u NotificationUpdate) NotificationContent {
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Message != nil {
		c.Message = *u.Message
	}
	return c
}

// MicrophoneAvailability reports whether a capture device is present.
// This is about hardware presence, not permission.
type MicrophoneAvailability struct {
	Available bool `json:"available"`
}
