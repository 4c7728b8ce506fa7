package infra

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

const (
	deviceKeyFileName = "device.key"
	deviceKeySize     = 32

	// DeviceKeyEnv overrides the key file with a hex-encoded key.
	DeviceKeyEnv = "AUDIOPERM_DEVICE_KEY"
)

// FileKeyProvider keeps the emulated device database key in a 0600 file
// next to the database.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, deviceKeyFileName)}
}

func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeDeviceKey(string(encoded))
}

func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != deviceKeySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), deviceKeySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(p.keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads the key from DeviceKeyEnv. It cannot store keys.
type EnvKeyProvider struct{}

func (EnvKeyProvider) GetKey() ([]byte, error) {
	v := os.Getenv(DeviceKeyEnv)
	if v == "" {
		return nil, fmt.Errorf("%s is not set", DeviceKeyEnv)
	}
	return decodeDeviceKey(v)
}

func (EnvKeyProvider) StoreKey([]byte) error {
	return fmt.Errorf("%s is read-only", DeviceKeyEnv)
}

func (EnvKeyProvider) KeyExists() bool {
	return os.Getenv(DeviceKeyEnv) != ""
}

// KeyProviderFor prefers the environment key and falls back to the key file.
func KeyProviderFor(dataDir string) domain.KeyProvider {
	if (EnvKeyProvider{}).KeyExists() {
		return EnvKeyProvider{}
	}
	return NewFileKeyProvider(dataDir)
}

func decodeDeviceKey(encoded string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != deviceKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), deviceKeySize)
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, deviceKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the existing key, generating and storing one first if needed.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Ensure providers implement domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)
var _ domain.KeyProvider = EnvKeyProvider{}
