package infra

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// fakeNative records calls and lets tests push events.
type fakeNative struct {
	mu       sync.Mutex
	replies  map[string][]byte
	errs     map[string]error
	calls    []string
	args     map[string][]byte
	handlers map[string]EventHandler
	onInvoke func(method string)
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		replies:  make(map[string][]byte),
		errs:     make(map[string]error),
		args:     make(map[string][]byte),
		handlers: make(map[string]EventHandler),
	}
}

func (f *fakeNative) InvokeMethod(ctx context.Context, channel, method string, args []byte) ([]byte, error) {
	key := channel + "." + method
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.args[key] = args
	reply, err := f.replies[key], f.errs[key]
	hook := f.onInvoke
	f.mu.Unlock()
	if hook != nil {
		hook(method)
	}
	return reply, err
}

func (f *fakeNative) Listen(channel string, handler EventHandler) (func(), error) {
	f.mu.Lock()
	f.handlers[channel] = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, channel)
		f.mu.Unlock()
	}, nil
}

func (f *fakeNative) handler(channel string) (EventHandler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handlers[channel]
	return h, ok
}

func (f *fakeNative) emit(t *testing.T, change PermissionChange) {
	t.Helper()
	h, ok := f.handler(PermissionChangesChannel)
	require.True(t, ok, "no listener on %s", PermissionChangesChannel)
	data, err := json.Marshal(change)
	require.NoError(t, err)
	h.OnEvent(data)
}

func TestBridge_NotInstalled(t *testing.T) {
	b := NewBridge(nil)
	assert.False(t, b.Installed())

	err := b.Invoke(context.Background(), ServiceChannel, "stop", nil, nil)
	assert.ErrorIs(t, err, domain.ErrPlatformUnavailable)

	_, err = b.Listen(PermissionChangesChannel, EventHandler{})
	assert.ErrorIs(t, err, domain.ErrPlatformUnavailable)
}

func TestBridge_Invoke(t *testing.T) {
	native := newFakeNative()
	native.replies[PermissionsChannel+".check"] = []byte(`{"status":"granted"}`)
	b := NewBridge(native)

	var reply statusReply
	err := b.Invoke(context.Background(), PermissionsChannel, "check", permissionArgs{Permission: "audio"}, &reply)
	require.NoError(t, err)
	assert.Equal(t, "granted", reply.Status)
	assert.JSONEq(t, `{"permission":"audio"}`, string(native.args[PermissionsChannel+".check"]))
}

func TestBridge_InvokeMalformedReply(t *testing.T) {
	native := newFakeNative()
	native.replies[MicrophoneChannel+".isAvailable"] = []byte(`{"available":`)
	b := NewBridge(native)

	_, err := NewBridgeMicrophone(b).Available(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestBridge_ChannelErrorsMapToSentinels(t *testing.T) {
	native := newFakeNative()
	native.errs[ServiceChannel+".start"] = NewChannelError(CodeRejected, "background start not allowed")
	native.errs[ServiceChannel+".stop"] = NewChannelError(CodeMethodNotFound, "")
	b := NewBridge(native)
	services := NewBridgeServices(b)

	err := services.StartForeground(context.Background(), domain.DefaultNotificationContent())
	assert.ErrorIs(t, err, domain.ErrServiceRejected)

	err = services.StopForeground(context.Background())
	assert.ErrorIs(t, err, domain.ErrPlatformUnavailable)
}

func TestBridgeServices(t *testing.T) {
	native := newFakeNative()
	native.replies[ServiceChannel+".status"] = []byte(`{"running":true}`)
	services := NewBridgeServices(NewBridge(native))
	ctx := context.Background()

	require.NoError(t, services.StartForeground(ctx, domain.DefaultNotificationContent()))
	assert.JSONEq(t,
		`{"title":"Recording Audio","message":"Audio recording is active"}`,
		string(native.args[ServiceChannel+".start"]))

	msg := "Paused"
	require.NoError(t, services.UpdateNotification(ctx, domain.NotificationUpdate{Message: &msg}))
	assert.JSONEq(t, `{"message":"Paused"}`, string(native.args[ServiceChannel+".update"]))

	running, err := services.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestBridgeConsent_Status(t *testing.T) {
	tests := []struct {
		reply string
		want  domain.PermissionStatus
	}{
		{`{"status":"authorized"}`, domain.StatusAuthorized},
		{`{"status":"granted"}`, domain.StatusAuthorized},
		{`{"status":"denied"}`, domain.StatusDenied},
		{`{"status":"prompt"}`, domain.StatusUndetermined},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			native := newFakeNative()
			native.replies[PermissionsChannel+".check"] = []byte(tt.reply)
			consent := NewBridgeConsent(NewBridge(native), zap.NewNop())

			status, err := consent.Status(context.Background(), domain.PermissionAudio)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestBridgeConsent_RequestConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribes before triggering the dialog", func(t *testing.T) {
		native := newFakeNative()
		var listening bool
		native.onInvoke = func(method string) {
			if method == "request" {
				_, listening = native.handler(PermissionChangesChannel)
			}
		}
		consent := NewBridgeConsent(NewBridge(native), zap.NewNop())

		require.NoError(t, consent.RequestConsent(ctx, domain.PermissionAudio, domain.ConsentHandler{
			OnResult:   func(domain.PermissionStatus) {},
			OnTeardown: func(error) {},
		}))
		assert.True(t, listening)
	})

	t.Run("delivers first terminal event for the kind", func(t *testing.T) {
		native := newFakeNative()
		consent := NewBridgeConsent(NewBridge(native), zap.NewNop())

		var results []domain.PermissionStatus
		require.NoError(t, consent.RequestConsent(ctx, domain.PermissionAudio, domain.ConsentHandler{
			OnResult:   func(s domain.PermissionStatus) { results = append(results, s) },
			OnTeardown: func(error) { t.Fatal("unexpected teardown") },
		}))

		native.emit(t, PermissionChange{Permission: "notification", Status: "granted"})
		native.emit(t, PermissionChange{Permission: "audio", Status: "prompt"})
		native.emit(t, PermissionChange{Permission: "audio", Status: "denied"})

		assert.Equal(t, []domain.PermissionStatus{domain.StatusDenied}, results)
		_, still := native.handler(PermissionChangesChannel)
		assert.False(t, still, "subscription should be released after delivery")
	})

	t.Run("malformed events are dropped", func(t *testing.T) {
		native := newFakeNative()
		consent := NewBridgeConsent(NewBridge(native), zap.NewNop())

		delivered := false
		require.NoError(t, consent.RequestConsent(ctx, domain.PermissionAudio, domain.ConsentHandler{
			OnResult:   func(domain.PermissionStatus) { delivered = true },
			OnTeardown: func(error) {},
		}))

		h, _ := native.handler(PermissionChangesChannel)
		h.OnEvent([]byte("not json"))
		assert.False(t, delivered)
	})

	t.Run("stream end reports teardown", func(t *testing.T) {
		native := newFakeNative()
		consent := NewBridgeConsent(NewBridge(native), zap.NewNop())

		var teardown error
		require.NoError(t, consent.RequestConsent(ctx, domain.PermissionAudio, domain.ConsentHandler{
			OnResult:   func(domain.PermissionStatus) {},
			OnTeardown: func(err error) { teardown = err },
		}))

		h, _ := native.handler(PermissionChangesChannel)
		h.OnDone()
		assert.ErrorIs(t, teardown, domain.ErrConsentTornDown)
	})

	t.Run("failed trigger releases the subscription", func(t *testing.T) {
		native := newFakeNative()
		native.errs[PermissionsChannel+".request"] = NewChannelError(CodeUnavailable, "no activity")
		consent := NewBridgeConsent(NewBridge(native), zap.NewNop())

		err := consent.RequestConsent(ctx, domain.PermissionAudio, domain.ConsentHandler{})
		assert.ErrorIs(t, err, domain.ErrPlatformUnavailable)
		_, still := native.handler(PermissionChangesChannel)
		assert.False(t, still)
	})
}

func TestBridgeNatives(t *testing.T) {
	without := BridgeNatives(NewBridge(nil), zap.NewNop())
	assert.Nil(t, without.Microphone)
	assert.NotNil(t, without.Consent)

	with := BridgeNatives(NewBridge(newFakeNative()), zap.NewNop())
	assert.NotNil(t, with.Microphone)
}
