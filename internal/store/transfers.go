package store

import (
	"database/sql"
	"fmt"

	"github.com/franz/toki/internal/media"
)

// TransferFromRecord captures a record's final state for the journal
func TransferFromRecord(runID string, r *media.Record, bytes int64) *Transfer {
	t := &Transfer{
		RunID:       runID,
		SrcPath:     r.SourcePath,
		DestPath:    r.PlannedPath,
		Action:      string(r.Action),
		Status:      r.Status.String(),
		Reason:      r.Reason,
		Camera:      r.CameraModel,
		Digest:      r.Digest,
		DuplicateOf: r.DuplicateOf,
		Bytes:       bytes,
	}
	if r.Digest != "" {
		t.Confidence = r.Confidence.Code()
	}
	if r.Err != nil {
		t.Error = r.Err.Error()
	}
	return t
}

// InsertTransferBatch inserts multiple transfers in a single transaction
func (s *Store) InsertTransferBatch(transfers []*Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO transfers
			(run_id, src_path, dest_path, action, status, reason, confidence, camera, digest, duplicate_of, bytes, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range transfers {
			if _, err := stmt.Exec(t.RunID, t.SrcPath, t.DestPath, t.Action, t.Status, t.Reason,
				t.Confidence, t.Camera, t.Digest, t.DuplicateOf, t.Bytes, t.Error); err != nil {
				return fmt.Errorf("insert transfer %s: %w", t.SrcPath, err)
			}
		}
		return nil
	})
}

// GetTransfers returns a run's transfers ordered by source path
func (s *Store) GetTransfers(runID string) ([]*Transfer, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, src_path, COALESCE(dest_path, ''), COALESCE(action, ''), status,
		       COALESCE(reason, ''), COALESCE(confidence, ''), COALESCE(camera, ''),
		       COALESCE(digest, ''), COALESCE(duplicate_of, ''), bytes, COALESCE(error, ''), recorded_at
		FROM transfers
		WHERE run_id = ?
		ORDER BY src_path
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		var t Transfer
		err := rows.Scan(&t.ID, &t.RunID, &t.SrcPath, &t.DestPath, &t.Action, &t.Status,
			&t.Reason, &t.Confidence, &t.Camera, &t.Digest, &t.DuplicateOf, &t.Bytes, &t.Error, &t.RecordedAt)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, &t)
	}

	return transfers, rows.Err()
}

// CountTransfersByStatus returns a run's transfer counts keyed by status
func (s *Store) CountTransfersByStatus(runID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM transfers WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// FindByDigest returns applied transfers whose content digest matches
func (s *Store) FindByDigest(digest string) ([]*Transfer, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, src_path, COALESCE(dest_path, ''), COALESCE(action, ''), status, bytes
		FROM transfers
		WHERE digest = ? AND status = ?
		ORDER BY recorded_at
	`, digest, media.StatusApplied.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		t := Transfer{Digest: digest}
		if err := rows.Scan(&t.ID, &t.RunID, &t.SrcPath, &t.DestPath, &t.Action, &t.Status, &t.Bytes); err != nil {
			return nil, err
		}
		transfers = append(transfers, &t)
	}
	return transfers, rows.Err()
}
