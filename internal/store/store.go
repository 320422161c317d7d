package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/errors"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

const settingsKey = "settings"

// Store is the durable settings and template store. It is the sole writer
// of Configuration; readers either Load fresh or receive pushed updates
// via Subscribe.
type Store struct {
	db *sql.DB

	mu          sync.Mutex
	subscribers []func(*config.Settings)
}

// Open initializes the SQLite database at baseDir/promptboost.db.
// The baseDir parameter allows tests to use t.TempDir() instead of
// ~/.promptboost.
func Open(baseDir string) (*Store, error) {
	// Create base directory with restricted permissions: the store holds
	// the service credential.
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "promptboost.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the current settings: defaults merged under any partial
// stored value.
func (s *Store) Load() (*config.Settings, error) {
	stored, err := s.loadRaw()
	if err != nil {
		return nil, err
	}
	return config.Merge(config.DefaultSettings(), stored), nil
}

// Save merges partial into the stored settings, persists the result, and
// returns the fully merged (defaults included) value. Subscribers are
// notified with the same merged value.
func (s *Store) Save(partial *config.Settings) (*config.Settings, error) {
	stored, err := s.loadRaw()
	if err != nil {
		return nil, err
	}
	return s.persist(config.Merge(stored, partial))
}

// UpdateStored applies fn to the raw stored document and persists the
// result. Unlike Save it can clear fields, and unlike a merged write it
// keeps the document partial: defaults are never written out, so a later
// release can still revise them. Returns the fully merged value,
// notifying subscribers.
func (s *Store) UpdateStored(fn func(*config.Settings)) (*config.Settings, error) {
	stored, err := s.loadRaw()
	if err != nil {
		return nil, err
	}
	fn(stored)
	return s.persist(stored)
}

// Subscribe registers fn to be invoked with the fully merged new settings
// whenever the persisted configuration (including the template list)
// changes. Callbacks run on the mutating goroutine; keep them short.
func (s *Store) Subscribe(fn func(*config.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// loadRaw returns the stored settings document without defaults applied.
func (s *Store) loadRaw() (*config.Settings, error) {
	var doc string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&doc)
	if err == sql.ErrNoRows {
		return &config.Settings{}, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	stored, err := config.Decode([]byte(doc))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return stored, nil
}

func (s *Store) persist(stored *config.Settings) (*config.Settings, error) {
	doc, err := config.Encode(stored)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	_, err = s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, settingsKey, string(doc))
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	merged := config.Merge(config.DefaultSettings(), stored)
	s.notify(merged)
	return merged, nil
}

// NotifyChanged re-loads settings and pushes them to subscribers. The
// registry calls this after template mutations, which change the overall
// configuration without touching the settings document.
func (s *Store) NotifyChanged() error {
	merged, err := s.Load()
	if err != nil {
		return err
	}
	s.notify(merged)
	return nil
}

func (s *Store) notify(settings *config.Settings) {
	s.mu.Lock()
	subs := make([]func(*config.Settings), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(settings)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS settings (
		  key   TEXT PRIMARY KEY,
		  value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS templates (
		  id         TEXT PRIMARY KEY,
		  position   INTEGER NOT NULL,
		  label      TEXT NOT NULL,
		  kind       TEXT NOT NULL,
		  body       TEXT NOT NULL,
		  created_at INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_templates_position
		ON templates(position);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
