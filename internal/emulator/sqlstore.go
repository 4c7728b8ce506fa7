package emulator

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/audioperm/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const deviceDBName = "device.db"

// SQLStore persists device state in a SQLite database. With a key the
// database is encrypted with SQLCipher.
type SQLStore struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLStore opens (or creates) the device database in dataDir. A nil key
// opens it unencrypted.
func OpenSQLStore(dataDir string, key []byte) (*SQLStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, deviceDBName)
	dsn := dbPath
	if key != nil {
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}
	// A wrong key only shows up on first access.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to device database: %w", err)
	}

	s := &SQLStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS permissions (
		kind TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dialogs (
		kind TEXT PRIMARY KEY,
		shown INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS service (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		running INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLStore) PermissionStatus(kind domain.PermissionKind) (domain.PermissionStatus, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM permissions WHERE kind = ?`, string(kind)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatusUndetermined, nil
	}
	if err != nil {
		return domain.StatusUndetermined, err
	}
	return domain.ParsePermissionStatus(status), nil
}

func (s *SQLStore) SetPermissionStatus(kind domain.PermissionKind, status domain.PermissionStatus) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO permissions (kind, status, updated_at) VALUES (?, ?, ?)`,
		string(kind), status.String(), time.Now().Unix())
	return err
}

func (s *SQLStore) RecordDialog(kind domain.PermissionKind) (int, error) {
	_, err := s.db.Exec(`
		INSERT INTO dialogs (kind, shown) VALUES (?, 1)
		ON CONFLICT(kind) DO UPDATE SET shown = shown + 1`, string(kind))
	if err != nil {
		return 0, err
	}
	return s.DialogCount(kind)
}

func (s *SQLStore) DialogCount(kind domain.PermissionKind) (int, error) {
	var shown int
	err := s.db.QueryRow(`SELECT shown FROM dialogs WHERE kind = ?`, string(kind)).Scan(&shown)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return shown, err
}

func (s *SQLStore) ServiceState() (ServiceState, error) {
	var state ServiceState
	err := s.db.QueryRow(`SELECT running, title, message FROM service WHERE id = 1`).
		Scan(&state.Running, &state.Content.Title, &state.Content.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return ServiceState{}, nil
	}
	return state, err
}

func (s *SQLStore) SetServiceState(state ServiceState) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO service (id, running, title, message) VALUES (1, ?, ?, ?)`,
		state.Running, state.Content.Title, state.Content.Message)
	return err
}

func (s *SQLStore) Reset() error {
	for _, table := range []string{"permissions", "dialogs", "service"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database file path.
func (s *SQLStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
