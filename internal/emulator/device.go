package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/infra"
)

// ConsentPolicy decides how the emulated consent dialog is answered.
type ConsentPolicy string

const (
	ConsentGrant   ConsentPolicy = "grant"
	ConsentDeny    ConsentPolicy = "deny"
	ConsentDismiss ConsentPolicy = "dismiss" // dialog torn down without an answer
	ConsentManual  ConsentPolicy = "manual"  // dialog stays open until Resolve or Dismiss
)

// ParseConsentPolicy parses a policy name.
func ParseConsentPolicy(s string) (ConsentPolicy, error) {
	switch p := ConsentPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ConsentGrant, ConsentDeny, ConsentDismiss, ConsentManual:
		return p, nil
	case "":
		return ConsentGrant, nil
	default:
		return "", fmt.Errorf("unknown consent policy %q", s)
	}
}

// NotificationPermissionAPILevel is the first Android API level with a
// runtime notification permission.
const NotificationPermissionAPILevel = 33

// Options configures a Device.
type Options struct {
	Platform   domain.Platform
	Policy     ConsentPolicy
	APILevel   int // Android only; 0 means latest
	Microphone bool
	Store      Store // defaults to a MemoryStore
}

// Device is an emulated native platform. It implements infra.NativeBridge.
type Device struct {
	opts   Options
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[string][]*subscription
	pending map[domain.PermissionKind]bool
	closed  bool
}

type subscription struct {
	handler  infra.EventHandler
	canceled atomic.Bool
}

// NewDevice creates an emulated device.
func NewDevice(opts Options, logger *zap.Logger) *Device {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Policy == "" {
		opts.Policy = ConsentGrant
	}
	return &Device{
		opts:    opts,
		store:   opts.Store,
		logger:  logger,
		subs:    make(map[string][]*subscription),
		pending: make(map[domain.PermissionKind]bool),
	}
}

// Platform returns the emulated platform.
func (d *Device) Platform() domain.Platform {
	return d.opts.Platform
}

// InvokeMethod handles a method call from the bridge.
func (d *Device) InvokeMethod(ctx context.Context, channel, method string, args []byte) ([]byte, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%s.%s: %w", channel, method, domain.ErrBridgeClosed)
	}

	switch channel {
	case infra.PermissionsChannel:
		return d.invokePermissions(method, args)
	case infra.ServiceChannel:
		return d.invokeService(method, args)
	case infra.MicrophoneChannel:
		if method == "isAvailable" {
			return json.Marshal(domain.MicrophoneAvailability{Available: d.opts.Microphone})
		}
	}
	return nil, infra.NewChannelErrorf(infra.CodeMethodNotFound, "%s.%s", channel, method)
}

// Listen subscribes to an event channel.
func (d *Device) Listen(channel string, handler infra.EventHandler) (func(), error) {
	sub := &subscription{handler: handler}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("listen %s: %w", channel, domain.ErrBridgeClosed)
	}
	d.subs[channel] = append(d.subs[channel], sub)
	d.mu.Unlock()

	return func() {
		if sub.canceled.CompareAndSwap(false, true) {
			d.removeSubscription(channel, sub)
		}
	}, nil
}

func (d *Device) removeSubscription(channel string, sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[channel]
	for i, s := range subs {
		if s == sub {
			d.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

type permissionArgs struct {
	Permission string `json:"permission"`
}

func (d *Device) invokePermissions(method string, args []byte) ([]byte, error) {
	var a permissionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, infra.NewChannelError(infra.CodeInvalidArguments, err.Error())
	}
	kind, err := domain.ParsePermissionKind(a.Permission)
	if err != nil {
		return nil, infra.NewChannelError(infra.CodeInvalidArguments, err.Error())
	}

	switch method {
	case "check":
		status, err := d.status(kind)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"status": status.String()})
	case "request":
		return nil, d.showDialog(kind)
	default:
		return nil, infra.NewChannelErrorf(infra.CodeMethodNotFound, "%s.%s", infra.PermissionsChannel, method)
	}
}

// status is the effective status, applying platform rules on top of the store.
func (d *Device) status(kind domain.PermissionKind) (domain.PermissionStatus, error) {
	if kind == domain.PermissionNotification && d.opts.Platform == domain.PlatformAndroid &&
		d.opts.APILevel > 0 && d.opts.APILevel < NotificationPermissionAPILevel {
		return domain.StatusAuthorized, nil
	}
	return d.store.PermissionStatus(kind)
}

// showDialog presents the consent dialog for kind. The answer is delivered
// asynchronously on the permission changes channel.
func (d *Device) showDialog(kind domain.PermissionKind) error {
	status, err := d.status(kind)
	if err != nil {
		return err
	}
	if status.IsTerminal() {
		go d.emitChange(kind, status)
		return nil
	}

	d.mu.Lock()
	if d.pending[kind] {
		d.mu.Unlock()
		return nil
	}
	d.pending[kind] = true
	d.mu.Unlock()

	shown, err := d.store.RecordDialog(kind)
	if err != nil {
		d.clearPending(kind)
		return err
	}
	d.logger.Info("consent dialog shown",
		zap.String("kind", string(kind)),
		zap.String("policy", string(d.opts.Policy)),
		zap.Int("shown", shown))

	switch d.opts.Policy {
	case ConsentGrant:
		go d.answer(kind, domain.StatusAuthorized)
	case ConsentDeny:
		go d.answer(kind, domain.StatusDenied)
	case ConsentDismiss:
		go d.Dismiss()
	}
	return nil
}

// answer records the user's choice. When it cannot be persisted the dialog
// is torn down instead, so waiters re-query the stored status.
func (d *Device) answer(kind domain.PermissionKind, status domain.PermissionStatus) error {
	err := d.store.SetPermissionStatus(kind, status)
	d.clearPending(kind)
	if err != nil {
		d.logger.Error("failed to persist permission status",
			zap.String("kind", string(kind)),
			zap.Error(err))
		d.endStream(infra.PermissionChangesChannel)
		return err
	}
	d.emitChange(kind, status)
	return nil
}

func (d *Device) clearPending(kind domain.PermissionKind) {
	d.mu.Lock()
	delete(d.pending, kind)
	d.mu.Unlock()
}

// Resolve answers an open dialog for kind.
func (d *Device) Resolve(kind domain.PermissionKind, granted bool) error {
	d.mu.Lock()
	open := d.pending[kind]
	d.mu.Unlock()
	if !open {
		return fmt.Errorf("no open %s consent dialog", kind)
	}
	status := domain.StatusDenied
	if granted {
		status = domain.StatusAuthorized
	}
	return d.answer(kind, status)
}

// Pending reports whether a consent dialog for kind is open.
func (d *Device) Pending(kind domain.PermissionKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending[kind]
}

// Dismiss tears down every open dialog without an answer. Listeners on the
// permission changes channel see the stream end.
func (d *Device) Dismiss() {
	d.mu.Lock()
	d.pending = make(map[domain.PermissionKind]bool)
	d.mu.Unlock()
	d.endStream(infra.PermissionChangesChannel)
}

// DialogCount returns how many consent dialogs were shown for kind.
func (d *Device) DialogCount(kind domain.PermissionKind) int {
	n, err := d.store.DialogCount(kind)
	if err != nil {
		d.logger.Warn("failed to read dialog count", zap.Error(err))
	}
	return n
}

// SetPermission forces the stored status, as a user would in system settings.
// A terminal status closes any open dialog for kind and is announced on the
// permission changes channel.
func (d *Device) SetPermission(kind domain.PermissionKind, status domain.PermissionStatus) error {
	if err := d.store.SetPermissionStatus(kind, status); err != nil {
		return err
	}
	if status.IsTerminal() {
		d.clearPending(kind)
		d.emitChange(kind, status)
	}
	return nil
}

func (d *Device) invokeService(method string, args []byte) ([]byte, error) {
	state, err := d.store.ServiceState()
	if err != nil {
		return nil, err
	}

	switch method {
	case "start":
		var content domain.NotificationContent
		if err := json.Unmarshal(args, &content); err != nil {
			return nil, infra.NewChannelError(infra.CodeInvalidArguments, err.Error())
		}
		state = ServiceState{Running: true, Content: content}
	case "stop":
		state.Running = false
	case "update":
		var update domain.NotificationUpdate
		if err := json.Unmarshal(args, &update); err != nil {
			return nil, infra.NewChannelError(infra.CodeInvalidArguments, err.Error())
		}
		state.Content = state.Content.Apply(update)
	case "status":
		return json.Marshal(map[string]bool{"running": state.Running})
	default:
		return nil, infra.NewChannelErrorf(infra.CodeMethodNotFound, "%s.%s", infra.ServiceChannel, method)
	}

	if err := d.store.SetServiceState(state); err != nil {
		return nil, err
	}
	d.logger.Debug("service state changed",
		zap.String("method", method),
		zap.Bool("running", state.Running))
	return nil, nil
}

// Notification returns the content of the service notification.
func (d *Device) Notification() domain.NotificationContent {
	state, _ := d.store.ServiceState()
	return state.Content
}

func (d *Device) emitChange(kind domain.PermissionKind, status domain.PermissionStatus) {
	data, err := json.Marshal(infra.PermissionChange{Permission: string(kind), Status: status.String()})
	if err != nil {
		return
	}
	for _, sub := range d.snapshot(infra.PermissionChangesChannel, false) {
		if !sub.canceled.Load() && sub.handler.OnEvent != nil {
			sub.handler.OnEvent(data)
		}
	}
}

func (d *Device) endStream(channel string) {
	for _, sub := range d.snapshot(channel, true) {
		// Canceled subscriptions already left; they get no OnDone.
		if sub.canceled.CompareAndSwap(false, true) && sub.handler.OnDone != nil {
			sub.handler.OnDone()
		}
	}
}

// snapshot copies the subscribers of channel so handlers run without the
// lock held; handlers may cancel their own subscription.
func (d *Device) snapshot(channel string, detach bool) []*subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := make([]*subscription, len(d.subs[channel]))
	copy(subs, d.subs[channel])
	if detach {
		delete(d.subs, channel)
	}
	return subs
}

// Close ends every event stream and releases the store. Later calls fail
// with domain.ErrBridgeClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	channels := make([]string, 0, len(d.subs))
	for ch := range d.subs {
		channels = append(channels, ch)
	}
	d.mu.Unlock()

	for _, ch := range channels {
		d.endStream(ch)
	}
	return d.store.Close()
}

var _ infra.NativeBridge = (*Device)(nil)
