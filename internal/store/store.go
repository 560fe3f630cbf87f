package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fieldnet/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Trace schema versions, kept in PRAGMA user_version:
//
//	1 - (pass_token, kind) index for CountEvents
//	2 - (scene, started_seq) index for LatestSnapshot
const schemaVersion = 2

var (
	// ErrNotFound is returned when a pass or snapshot does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrNoTrace is returned by OpenTrace when the database file is missing.
	ErrNoTrace = errors.New("store: no trace database")

	// ErrSchemaTooNew is returned for a trace written by a newer fieldnet.
	ErrSchemaTooNew = errors.New("store: trace schema is newer than this build")
)

// Store holds the recorded passes, events and snapshots of scenes.
// SQLite in WAL mode, one connection.
type Store struct {
	db *sql.DB
}

// Open opens the trace at path for recording, creating and migrating it as
// needed. ":memory:" gives a throwaway trace.
func Open(path string) (*Store, error) {
	db, err := connect(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trace schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenTrace opens a trace that must already exist, for the commands that
// only read passes back. Older schemas are migrated in place.
func OpenTrace(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTrace, path)
	}
	return Open(path)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CheckReplayable reports whether the pass with token was recorded under
// the IR version this build reads. A mismatch is an *ir.VersionError.
func (s *Store) CheckReplayable(ctx context.Context, token string) error {
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT ir_version FROM passes WHERE token = ?`, token).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("pass %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read pass version: %w", err)
	}
	return ir.CheckPassVersion(token, version)
}

func connect(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open trace: %w", err)
	}

	// One writer: a scene records from a single goroutine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// migrations[i] brings a trace from user_version i to i+1.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_events_pass_kind ON events(pass_token, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_passes_scene ON passes(scene, started_seq)`,
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read trace schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: v%d > v%d", ErrSchemaTooNew, version, schemaVersion)
	}
	for v := version; v < schemaVersion; v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate trace to v%d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set trace schema version: %w", err)
	}
	return nil
}
