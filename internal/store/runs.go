package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// BeginRun inserts a run in the running state. An empty ID is filled in.
func (s *Store) BeginRun(run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = RunRunning

	_, err := s.db.Exec(`
		INSERT INTO runs (id, mode, src_root, dest_root, dry_run, hash_algo, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.SrcRoot, run.DestRoot, boolToInt(run.DryRun), run.HashAlgo, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and totals of a run
func (s *Store) FinishRun(id, status string, counts RunCounts) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET finished_at = ?, status = ?, discovered = ?, planned = ?, applied = ?,
		    skipped = ?, failed = ?, bytes = ?
		WHERE id = ?
	`, time.Now(), status, counts.Discovered, counts.Planned, counts.Applied,
		counts.Skipped, counts.Failed, counts.Bytes, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = `id, mode, src_root, COALESCE(dest_root, ''), dry_run, COALESCE(hash_algo, ''),
	started_at, finished_at, status, discovered, planned, applied, skipped, failed, bytes`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var dryRun int
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.Mode, &run.SrcRoot, &run.DestRoot, &dryRun, &run.HashAlgo,
		&run.StartedAt, &finished, &run.Status,
		&run.Counts.Discovered, &run.Counts.Planned, &run.Counts.Applied,
		&run.Counts.Skipped, &run.Counts.Failed, &run.Counts.Bytes)
	if err != nil {
		return nil, err
	}

	run.DryRun = dryRun == 1
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun returns a run by ID, or nil if not found
func (s *Store) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FindRun resolves a full ID or a unique prefix of one
func (s *Store) FindRun(prefix string) (*Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("run prefix %q is ambiguous", prefix)
}

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of journaled runs
func (s *Store) CountRuns() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
