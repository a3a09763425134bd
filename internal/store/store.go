package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// migrations[i] upgrades the journal from schema version i to i+1
var migrations = []string{schemaV1, schemaV2}

var currentSchemaVersion = len(migrations)

// Store is the run journal. The filesystem stays the source of truth;
// the journal only records what each run did.
type Store struct {
	db *sql.DB
}

// OpenOptions tune the journal connection
type OpenOptions struct {
	// NetworkOptimized trades some durability for fewer round-trips when
	// the journal lives on a network share
	NetworkOptimized bool
}

// Open opens or creates the journal at path
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates the journal at path and brings its
// schema up to date. ":memory:" opens a throwaway journal.
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// One writer: the pipeline's collector goroutine
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}

	if opts.NetworkOptimized {
		for _, pragma := range []string{
			"PRAGMA synchronous = NORMAL", // fsync at WAL checkpoints only
			"PRAGMA temp_store = MEMORY",
			"PRAGMA cache_size = -32000", // KiB
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
			}
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SQLiteVersion reports the version of the embedded SQLite engine
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the journal
func (s *Store) CheckIntegrity() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// migrate applies every pending migration in one transaction
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema v%d is newer than this build (v%d)", version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	return s.Transaction(func(tx *sql.Tx) error {
		for v := version; v < currentSchemaVersion; v++ {
			if _, err := tx.Exec(migrations[v]); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", v+1, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v+1); err != nil {
				return fmt.Errorf("failed to set schema version: %w", err)
			}
		}
		return nil
	})
}

// getSchemaVersion returns 0 for a fresh journal
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil || exists == 0 {
		return 0, err
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// Transaction runs fn in a transaction, committing only if fn succeeds
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
