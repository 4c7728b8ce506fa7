package domain

import "context"

// PermissionAdapter is the per-platform permission strategy.
type PermissionAdapter interface {
	// Check returns the current answer without prompting or mutating state.
	Check(ctx context.Context, kind PermissionKind) (PermissionResponse, error)

	// Request returns the resolved answer, triggering native consent at most
	// once when the status is still undetermined. It may block until the
	// user answers the consent dialog.
	Request(ctx context.Context, kind PermissionKind) (PermissionResponse, error)
}

// ServiceAdapter is the per-platform foreground service strategy.
type ServiceAdapter interface {
	// Start moves the service to running and returns {started:true}.
	Start(ctx context.Context) (ServiceResponse, error)

	// Stop moves the service to stopped and returns {stopped:true}.
	Stop(ctx context.Context) (ServiceResponse, error)

	// Update changes the notification content and returns {updated:true}.
	Update(ctx context.Context, update NotificationUpdate) (ServiceResponse, error)

	// Status reports whether the service is running.
	Status(ctx context.Context) (ServiceStatusResponse, error)
}

// MicrophoneProbe reports capture device presence.
type MicrophoneProbe interface {
	Available(ctx context.Context) (bool, error)
}

// ConsentHandler receives the outcome of one native consent flow.
// The native calls exactly one of the two functions, at most once.
type ConsentHandler struct {
	// OnResult delivers the status the user resolved.
	OnResult func(status PermissionStatus)
	// OnTeardown reports that the consent channel ended without a result.
	OnTeardown func(err error)
}

// ConsentAuthority is the native permission facility (system permission
// database plus consent dialog).
// Implementations: bridge-backed (mobile, macOS), test stubs.
type ConsentAuthority interface {
	// Status queries the platform's current status for kind.
	Status(ctx context.Context, kind PermissionKind) (PermissionStatus, error)

	// RequestConsent triggers the native consent dialog for kind. The
	// outcome is delivered asynchronously through handler.
	RequestConsent(ctx context.Context, kind PermissionKind, handler ConsentHandler) error
}

// ServiceManager is the native foreground service and notification subsystem.
type ServiceManager interface {
	// StartForeground starts the service showing content in its notification.
	StartForeground(ctx context.Context, content NotificationContent) error

	// StopForeground stops the service and removes its notification.
	StopForeground(ctx context.Context) error

	// UpdateNotification applies update to the visible notification.
	UpdateNotification(ctx context.Context, update NotificationUpdate) error

	// IsRunning reports whether the service is currently running.
	IsRunning(ctx context.Context) (bool, error)
}

// AdapterSet is the strategy bundle selected once for the running platform.
type AdapterSet struct {
	Platform    Platform
	Permissions PermissionAdapter
	Service     ServiceAdapter
	Microphone  MicrophoneProbe
}

// Mediator is the single entry point callers use.
type Mediator interface {
	RequestPermission(ctx context.Context, req PermissionRequest) (PermissionResponse, error)
	CheckPermission(ctx context.Context, req PermissionRequest) (PermissionResponse, error)
	StartService(ctx context.Context) (ServiceResponse, error)
	StopService(ctx context.Context) (ServiceResponse, error)
	UpdateNotification(ctx context.Context, update NotificationUpdate) (ServiceResponse, error)
	ServiceStatus(ctx context.Context) (ServiceStatusResponse, error)
	MicrophoneAvailable(ctx context.Context) (MicrophoneAvailability, error)
	Platform() Platform
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
