// Package store persists published graph snapshots in SQLite so that a
// process can reload the last index and compare its in-memory snapshot
// against the version the index declares on disk.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrEmpty is returned when no snapshot was ever published to the database.
var ErrEmpty = errors.New("no snapshot in store")

// Metadata keys.
const (
	metaVersion       = "version"
	metaSchemaVersion = "schema_version"
	metaBuiltAt       = "built_at"
)

// Store is the SQLite data access layer for snapshot files, symbols, edges
// and metadata.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  path            TEXT PRIMARY KEY,
  language        TEXT NOT NULL,
  symbol_count    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS symbols (
  id              TEXT PRIMARY KEY,
  file            TEXT NOT NULL REFERENCES files(path),
  name            TEXT NOT NULL,
  qualified_name  TEXT NOT NULL,
  kind            TEXT NOT NULL,
  language        TEXT NOT NULL,
  dialect         TEXT,
  line_start      INTEGER,
  line_end        INTEGER,
  attributes      TEXT
);

-- Edges carry no foreign keys: a partial reindex may leave dangling
-- endpoints, which the in-memory snapshot reports as stale.
CREATE TABLE IF NOT EXISTS edges (
  from_id         TEXT NOT NULL,
  to_id           TEXT NOT NULL,
  kind            TEXT NOT NULL,
  PRIMARY KEY (from_id, to_id, kind)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
`

// DeclaredVersion returns the version tag of the last published snapshot.
func (s *Store) DeclaredVersion() (string, error) {
	v, err := s.meta(metaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEmpty
	}
	return v, err
}

// Header returns the stored version, schema version and build time.
func (s *Store) Header() (version string, schemaVersion int, builtAt time.Time, err error) {
	version, err = s.DeclaredVersion()
	if err != nil {
		return "", 0, time.Time{}, err
	}
	sv, err := s.meta(metaSchemaVersion)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("schema version: %w", err)
	}
	schemaVersion, err = strconv.Atoi(sv)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("schema version %q: %w", sv, err)
	}
	ba, err := s.meta(metaBuiltAt)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("built at: %w", err)
	}
	builtAt, err = time.Parse(time.RFC3339Nano, ba)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("built at %q: %w", ba, err)
	}
	return version, schemaVersion, builtAt, nil
}

func (s *Store) meta(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	return v, err
}

func setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
