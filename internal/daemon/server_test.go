package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/dispatch"
	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/emulator"
	"github.com/eliteGoblin/audioperm/internal/infra"
	"github.com/eliteGoblin/audioperm/internal/usecase"
)

func newDispatcher(platform domain.Platform, native infra.NativeBridge) *dispatch.Dispatcher {
	natives := infra.BridgeNatives(infra.NewBridge(native), zap.NewNop())
	set := infra.NewAdapterSet(platform, natives, zap.NewNop())
	return dispatch.New(usecase.NewMediator(set, zap.NewNop()), zap.NewNop())
}

func decodeResponses(t *testing.T, data []byte) map[string]dispatch.Response {
	t.Helper()
	out := make(map[string]dispatch.Response)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var resp dispatch.Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		out[string(resp.ID)] = resp
	}
	return out
}

func TestDefaultServerConfig(t *testing.T) {
	config := DefaultServerConfig()

	assert.Equal(t, 1<<20, config.MaxLineSize)
	assert.Equal(t, 60*time.Second, config.HeartbeatInterval)
}

func TestNewServer_ZeroConfigUsesDefaults(t *testing.T) {
	var out bytes.Buffer
	server := NewServer(ServerConfig{}, newDispatcher(domain.PlatformLinux, nil),
		strings.NewReader(`{"id":1,"command":"isServiceRunning"}`+"\n"), &out, zap.NewNop())

	assert.Equal(t, DefaultServerConfig(), server.config)
	require.NoError(t, server.Run(context.Background()))
	assert.JSONEq(t, `{"id":1,"result":{"running":false}}`, strings.TrimSpace(out.String()))
}

func TestServer_RunUntilEOF(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1,"command":"requestPermission","payload":{"permissionType":"audio"}}`,
		``,
		`{"id":2,"command":"is_service_running"}`,
		`{"id":3,"command":"checkPermission","payload":{"permissionType":"video"}}`,
		`{"id":4,"command":"teleport"}`,
		`{"id":5}`,
		`not json`,
	}, "\n")

	var out bytes.Buffer
	server := NewServer(DefaultServerConfig(), newDispatcher(domain.PlatformLinux, nil),
		strings.NewReader(input), &out, zap.NewNop())

	require.NoError(t, server.Run(context.Background()))

	responses := decodeResponses(t, out.Bytes())
	require.Len(t, responses, 6)

	assert.JSONEq(t, `{"granted":true}`, string(responses["1"].Result))
	assert.Nil(t, responses["1"].Error)
	assert.JSONEq(t, `{"running":false}`, string(responses["2"].Result))

	for _, id := range []string{"3", "4", "5", ""} {
		require.NotNil(t, responses[id].Error, "id %q", id)
		assert.Equal(t, domain.KindSerializationError, responses[id].Error.Kind, "id %q", id)
	}
}

func TestServer_PendingRequestDoesNotBlock(t *testing.T) {
	device := emulator.NewDevice(emulator.Options{
		Platform: domain.PlatformAndroid,
		Policy:   emulator.ConsentManual,
	}, zap.NewNop())
	defer device.Close()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	server := NewServer(DefaultServerConfig(), newDispatcher(domain.PlatformAndroid, device), inR, outW, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- server.Run(context.Background()) }()

	responses := bufio.NewScanner(outR)
	next := func() dispatch.Response {
		require.True(t, responses.Scan())
		var resp dispatch.Response
		require.NoError(t, json.Unmarshal(responses.Bytes(), &resp))
		return resp
	}

	_, err := io.WriteString(inW, `{"id":"req","command":"requestPermission"}`+"\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return device.Pending(domain.PermissionAudio) },
		time.Second, 5*time.Millisecond)

	_, err = io.WriteString(inW, `{"id":"chk","command":"checkPermission"}`+"\n")
	require.NoError(t, err)

	first := next()
	assert.Equal(t, `"chk"`, string(first.ID))
	assert.JSONEq(t, `{"granted":false}`, string(first.Result))

	require.NoError(t, device.Resolve(domain.PermissionAudio, true))
	second := next()
	assert.Equal(t, `"req"`, string(second.ID))
	assert.JSONEq(t, `{"granted":true}`, string(second.Result))

	require.NoError(t, inW.Close())
	require.NoError(t, <-done)
}

func TestServer_ContextCanceled(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(DefaultServerConfig(), newDispatcher(domain.PlatformLinux, nil), inR, io.Discard, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestServer_LineTooLong(t *testing.T) {
	config := DefaultServerConfig()
	config.MaxLineSize = 16

	server := NewServer(config, newDispatcher(domain.PlatformLinux, nil),
		strings.NewReader(`{"id":1,"command":"checkPermission"}`+"\n"), io.Discard, zap.NewNop())

	assert.ErrorIs(t, server.Run(context.Background()), bufio.ErrTooLong)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func TestServer_NoWritesAfterCancel(t *testing.T) {
	device := emulator.NewDevice(emulator.Options{
		Platform: domain.PlatformAndroid,
		Policy:   emulator.ConsentManual,
	}, zap.NewNop())
	defer device.Close()

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &lockedBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(DefaultServerConfig(), newDispatcher(domain.PlatformAndroid, device), inR, out, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	_, err := io.WriteString(inW, `{"id":"req","command":"requestPermission"}`+"\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return device.Pending(domain.PermissionAudio) },
		time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The consent wait outlives Run; its answer must not reach out.
	require.NoError(t, device.Resolve(domain.PermissionAudio, true))
	server.inflight.Wait()
	assert.Zero(t, out.Len())
}
