// Package emulator provides an emulated native platform reachable through
// infra.NativeBridge, for hosts without a mobile runtime.
package emulator

import (
	"fmt"
	"sync"

	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/infra"
)

// ServiceState is the persisted state of the emulated foreground service.
type ServiceState struct {
	Running bool
	Content domain.NotificationContent
}

// Store persists the emulated device state.
type Store interface {
	PermissionStatus(kind domain.PermissionKind) (domain.PermissionStatus, error)
	SetPermissionStatus(kind domain.PermissionKind, status domain.PermissionStatus) error

	// RecordDialog counts one consent dialog for kind and returns the new total.
	RecordDialog(kind domain.PermissionKind) (int, error)
	DialogCount(kind domain.PermissionKind) (int, error)

	ServiceState() (ServiceState, error)
	SetServiceState(state ServiceState) error

	// Reset returns the device to factory state.
	Reset() error
	Close() error
}

// MemoryStore keeps device state in memory.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[domain.PermissionKind]domain.PermissionStatus
	dialogs  map[domain.PermissionKind]int
	service  ServiceState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.statuses = make(map[domain.PermissionKind]domain.PermissionStatus)
	s.dialogs = make(map[domain.PermissionKind]int)
	s.service = ServiceState{}
}

func (s *MemoryStore) PermissionStatus(kind domain.PermissionKind) (domain.PermissionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[kind], nil
}

func (s *MemoryStore) SetPermissionStatus(kind domain.PermissionKind, status domain.PermissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[kind] = status
	return nil
}

func (s *MemoryStore) RecordDialog(kind domain.PermissionKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[kind]++
	return s.dialogs[kind], nil
}

func (s *MemoryStore) DialogCount(kind domain.PermissionKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogs[kind], nil
}

func (s *MemoryStore) ServiceState() (ServiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.service, nil
}

func (s *MemoryStore) SetServiceState(state ServiceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.service = state
	return nil
}

func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)

// OpenStore opens the store for dataDir. An empty dataDir keeps state in
// memory; encrypted stores take their key from infra.KeyProviderFor.
func OpenStore(dataDir string, encrypted bool) (Store, error) {
	if dataDir == "" {
		return NewMemoryStore(), nil
	}
	if !encrypted {
		return OpenSQLStore(dataDir, nil)
	}
	key, err := infra.EnsureKey(infra.KeyProviderFor(dataDir))
	if err != nil {
		return nil, fmt.Errorf("device key: %w", err)
	}
	return OpenSQLStore(dataDir, key)
}
