package infra

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// Channel names shared with the native side.
const (
	PermissionsChannel       = "audioperm/permissions"
	PermissionChangesChannel = "audioperm/permissions/changes"
	ServiceChannel           = "audioperm/service"
	MicrophoneChannel        = "audioperm/microphone"
)

// EventHandler receives events from a native event stream.
type EventHandler struct {
	// OnEvent receives one encoded event.
	OnEvent func(data []byte)
	// OnDone reports that the native side ended the stream. It is not
	// called for subscriptions the listener canceled itself.
	OnDone func()
}

// NativeBridge defines the interface for calling native platform code.
// The host installs the implementation (mobile plugin runtime, emulator).
type NativeBridge interface {
	// InvokeMethod calls a method on the native side.
	InvokeMethod(ctx context.Context, channel, method string, args []byte) ([]byte, error)

	// Listen subscribes to a native event stream. The returned function
	// cancels the subscription and is safe to call more than once.
	Listen(channel string, handler EventHandler) (cancel func(), err error)
}

// Bridge wraps an optional NativeBridge with encoding. A Bridge without a
// native implementation fails every call with domain.ErrPlatformUnavailable.
type Bridge struct {
	native NativeBridge
	codec  Codec
}

// NewBridge creates a bridge over native, which may be nil.
func NewBridge(native NativeBridge) *Bridge {
	return &Bridge{native: native, codec: DefaultCodec}
}

// Installed reports whether a native implementation is present.
func (b *Bridge) Installed() bool {
	return b != nil && b.native != nil
}

// Invoke encodes args, calls method on channel and decodes the reply into out.
func (b *Bridge) Invoke(ctx context.Context, channel, method string, args, out any) error {
	if !b.Installed() {
		return fmt.Errorf("%s.%s: %w", channel, method, domain.ErrPlatformUnavailable)
	}

	payload, err := b.codec.Encode(args)
	if err != nil {
		return fmt.Errorf("encode %s.%s arguments: %w: %v", channel, method, domain.ErrInvalidPayload, err)
	}

	reply, err := b.native.InvokeMethod(ctx, channel, method, payload)
	if err != nil {
		return err
	}

	if err := b.codec.DecodeInto(reply, out); err != nil {
		return fmt.Errorf("decode %s.%s reply: %w: %v", channel, method, domain.ErrInvalidPayload, err)
	}
	return nil
}

// Listen subscribes to channel on the native side.
func (b *Bridge) Listen(channel string, handler EventHandler) (func(), error) {
	if !b.Installed() {
		return nil, fmt.Errorf("listen %s: %w", channel, domain.ErrPlatformUnavailable)
	}
	return b.native.Listen(channel, handler)
}

type permissionArgs struct {
	Permission string `json:"permission"`
}

type statusReply struct {
	Status string `json:"status"`
}

// PermissionChange is the event emitted when a native permission status changes.
type PermissionChange struct {
	Permission string `json:"permission"`
	Status     string `json:"status"`
}

// BridgeConsent implements domain.ConsentAuthority over the native bridge.
type BridgeConsent struct {
	bridge *Bridge
	logger *zap.Logger
}

// NewBridgeConsent creates a consent authority backed by bridge.
func NewBridgeConsent(bridge *Bridge, logger *zap.Logger) *BridgeConsent {
	return &BridgeConsent{bridge: bridge, logger: logger}
}

// Status queries the native permission database.
func (c *BridgeConsent) Status(ctx context.Context, kind domain.PermissionKind) (domain.PermissionStatus, error) {
	var reply statusReply
	if err := c.bridge.Invoke(ctx, PermissionsChannel, "check", permissionArgs{Permission: string(kind)}, &reply); err != nil {
		return domain.StatusUndetermined, err
	}
	return domain.ParsePermissionStatus(reply.Status), nil
}

// RequestConsent subscribes to permission changes and then triggers the
// native request, so a fast answer cannot be missed.
func (c *BridgeConsent) RequestConsent(ctx context.Context, kind domain.PermissionKind, handler domain.ConsentHandler) error {
	l := &consentListener{}

	cancel, err := c.bridge.Listen(PermissionChangesChannel, EventHandler{
		OnEvent: func(data []byte) {
			var change PermissionChange
			if err := c.bridge.codec.DecodeInto(data, &change); err != nil {
				c.logger.Warn("dropping malformed permission change",
					zap.String("channel", PermissionChangesChannel),
					zap.Error(err))
				return
			}
			if change.Permission != string(kind) {
				return
			}
			status := domain.ParsePermissionStatus(change.Status)
			if !status.IsTerminal() {
				return
			}
			l.finish(func() { handler.OnResult(status) })
		},
		OnDone: func() {
			l.finish(func() { handler.OnTeardown(domain.ErrConsentTornDown) })
		},
	})
	if err != nil {
		return err
	}
	l.attach(cancel)

	if err := c.bridge.Invoke(ctx, PermissionsChannel, "request", permissionArgs{Permission: string(kind)}, nil); err != nil {
		l.abandon()
		return err
	}
	return nil
}

// consentListener delivers at most one outcome and releases its subscription.
type consentListener struct {
	once   sync.Once
	mu     sync.Mutex
	cancel func()
	done   bool
}

func (l *consentListener) finish(deliver func()) {
	l.once.Do(func() {
		deliver()
		l.release()
	})
}

// abandon drops the subscription without delivering anything.
func (l *consentListener) abandon() {
	l.once.Do(l.release)
}

func (l *consentListener) release() {
	l.mu.Lock()
	l.done = true
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (l *consentListener) attach(cancel func()) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		cancel()
		return
	}
	l.cancel = cancel
	l.mu.Unlock()
}

type runningReply struct {
	Running bool `json:"running"`
}

// BridgeServices implements domain.ServiceManager over the native bridge.
type BridgeServices struct {
	bridge *Bridge
}

// NewBridgeServices creates a service manager backed by bridge.
func NewBridgeServices(bridge *Bridge) *BridgeServices {
	return &BridgeServices{bridge: bridge}
}

func (s *BridgeServices) StartForeground(ctx context.Context, content domain.NotificationContent) error {
	return s.bridge.Invoke(ctx, ServiceChannel, "start", content, nil)
}

func (s *BridgeServices) StopForeground(ctx context.Context) error {
	return s.bridge.Invoke(ctx, ServiceChannel, "stop", nil, nil)
}

func (s *BridgeServices) UpdateNotification(ctx context.Context, update domain.NotificationUpdate) error {
	return s.bridge.Invoke(ctx, ServiceChannel, "update", update, nil)
}

func (s *BridgeServices) IsRunning(ctx context.Context) (bool, error) {
	var reply runningReply
	if err := s.bridge.Invoke(ctx, ServiceChannel, "status", nil, &reply); err != nil {
		return false, err
	}
	return reply.Running, nil
}

// BridgeMicrophone implements domain.MicrophoneProbe over the native bridge.
type BridgeMicrophone struct {
	bridge *Bridge
}

// NewBridgeMicrophone creates a microphone probe backed by bridge.
func NewBridgeMicrophone(bridge *Bridge) *BridgeMicrophone {
	return &BridgeMicrophone{bridge: bridge}
}

func (m *BridgeMicrophone) Available(ctx context.Context) (bool, error) {
	var reply domain.MicrophoneAvailability
	if err := m.bridge.Invoke(ctx, MicrophoneChannel, "isAvailable", nil, &reply); err != nil {
		return false, err
	}
	return reply.Available, nil
}

// Ensure bridge adapters implement the domain ports.
var _ domain.ConsentAuthority = (*BridgeConsent)(nil)
var _ domain.ServiceManager = (*BridgeServices)(nil)
var _ domain.MicrophoneProbe = (*BridgeMicrophone)(nil)
