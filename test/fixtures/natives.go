// Package fixtures provides test doubles for the native collaborators.
package fixtures

import (
	"context"
	"sync"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// ScriptedAuthority is a ConsentAuthority whose dialog always gives the same
// answer. A zero Answer leaves the dialog open until Teardown is called.
type ScriptedAuthority struct {
	Answer domain.PermissionStatus

	mu       sync.Mutex
	status   map[domain.PermissionKind]domain.PermissionStatus
	dialogs  map[domain.PermissionKind]int
	pending  []domain.ConsentHandler
	statusFn func(domain.PermissionKind) error
}

// NewScriptedAuthority creates an authority answering every dialog with answer.
func NewScriptedAuthority(answer domain.PermissionStatus) *ScriptedAuthority {
	return &ScriptedAuthority{
		Answer:  answer,
		status:  make(map[domain.PermissionKind]domain.PermissionStatus),
		dialogs: make(map[domain.PermissionKind]int),
	}
}

// FailStatus makes Status return the error fn yields for a kind.
func (a *ScriptedAuthority) FailStatus(fn func(domain.PermissionKind) error) {
	a.mu.Lock()
	a.statusFn = fn
	a.mu.Unlock()
}

// SetStatus forces the stored status for kind.
func (a *ScriptedAuthority) SetStatus(kind domain.PermissionKind, status domain.PermissionStatus) {
	a.mu.Lock()
	a.status[kind] = status
	a.mu.Unlock()
}

func (a *ScriptedAuthority) Status(ctx context.Context, kind domain.PermissionKind) (domain.PermissionStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.statusFn != nil {
		if err := a.statusFn(kind); err != nil {
			return domain.StatusUndetermined, err
		}
	}
	return a.status[kind], nil
}

func (a *ScriptedAuthority) RequestConsent(ctx context.Context, kind domain.PermissionKind, handler domain.ConsentHandler) error {
	a.mu.Lock()
	a.dialogs[kind]++
	answer := a.Answer
	if !answer.IsTerminal() {
		a.pending = append(a.pending, handler)
		a.mu.Unlock()
		return nil
	}
	a.status[kind] = answer
	a.mu.Unlock()

	go handler.OnResult(answer)
	return nil
}

// Teardown ends every open dialog without an answer.
func (a *ScriptedAuthority) Teardown() {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()
	for _, h := range pending {
		h.OnTeardown(domain.ErrConsentTornDown)
	}
}

// Dialogs returns how many consent dialogs were shown for kind.
func (a *ScriptedAuthority) Dialogs(kind domain.PermissionKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dialogs[kind]
}

// RecordingServiceManager is an in-memory ServiceManager.
type RecordingServiceManager struct {
	// Err, when set, fails every call.
	Err error

	mu      sync.Mutex
	running bool
	content domain.NotificationContent
	starts  int
}

func (m *RecordingServiceManager) StartForeground(ctx context.Context, content domain.NotificationContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.running = true
	m.content = content
	m.starts++
	return nil
}

func (m *RecordingServiceManager) StopForeground(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.running = false
	return nil
}

func (m *RecordingServiceManager) UpdateNotification(ctx context.Context, update domain.NotificationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.content = m.content.Apply(update)
	return nil
}

func (m *RecordingServiceManager) IsRunning(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, m.Err
}

// Content returns the last notification content shown.
func (m *RecordingServiceManager) Content() domain.NotificationContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

// Starts returns how many times the service was started.
func (m *RecordingServiceManager) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// StaticMicrophone reports a fixed availability.
type StaticMicrophone struct {
	Present bool
	Err     error
}

func (m StaticMicrophone) Available(ctx context.Context) (bool, error) {
	return m.Present, m.Err
}

var _ domain.ConsentAuthority = (*ScriptedAuthority)(nil)
var _ domain.ServiceManager = (*RecordingServiceManager)(nil)
var _ domain.MicrophoneProbe = StaticMicrophone{}
