package store

import "time"

// Schema v1 - run journal
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per invocation of rename or organize
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  mode TEXT NOT NULL,
  src_root TEXT NOT NULL,
  dest_root TEXT,
  dry_run INTEGER NOT NULL DEFAULT 0,
  hash_algo TEXT,
  started_at DATETIME NOT NULL,
  finished_at DATETIME,
  status TEXT NOT NULL DEFAULT 'running',
  discovered INTEGER NOT NULL DEFAULT 0,
  planned INTEGER NOT NULL DEFAULT 0,
  applied INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  bytes INTEGER NOT NULL DEFAULT 0
);

-- Final state of every record in a run
CREATE TABLE IF NOT EXISTS transfers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  src_path TEXT NOT NULL,
  dest_path TEXT,
  action TEXT,
  status TEXT NOT NULL,
  reason TEXT,
  confidence TEXT,
  camera TEXT,
  digest TEXT,
  duplicate_of TEXT,
  bytes INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Schema v2 - lookup indexes for history queries
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_transfers_run ON transfers(run_id);
CREATE INDEX IF NOT EXISTS idx_transfers_run_status ON transfers(run_id, status);
CREATE INDEX IF NOT EXISTS idx_transfers_digest ON transfers(digest);
`

// Run status values
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
	RunFailed    = "failed"
)

// Run represents one journaled invocation
type Run struct {
	ID         string
	Mode       string
	SrcRoot    string
	DestRoot   string
	DryRun     bool
	HashAlgo   string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Counts     RunCounts
}

// RunCounts are the per-status totals stored with a finished run
type RunCounts struct {
	Discovered int
	Planned    int
	Applied    int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Transfer is the journaled outcome of one record
type Transfer struct {
	ID          int64
	RunID       string
	SrcPath     string
	DestPath    string
	Action      string
	Status      string
	Reason      string
	Confidence  string
	Camera      string
	Digest      string
	DuplicateOf string
	Bytes       int64
	Error       string
	RecordedAt  time.Time
}
