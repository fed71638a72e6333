package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- One row per pipeline run
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    stage TEXT NOT NULL,             -- extract, normalize, ...
    fingerprint TEXT NOT NULL,       -- JSON object of the run configuration
    started_at TEXT NOT NULL,        -- UTC, fixed-width RFC3339 so it sorts as text
    finished_at TEXT,
    status TEXT NOT NULL DEFAULT 'running', -- running, completed, aborted, cancelled, failed
    total INTEGER NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    aborted_at TEXT,                 -- item id that triggered an abort
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage, started_at);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Skipped items per run, mirroring the JSONL skip log
CREATE TABLE IF NOT EXISTS run_skips (
    skip_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    reason TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_run_skips_run ON run_skips(run_id);
CREATE INDEX IF NOT EXISTS idx_run_skips_item ON run_skips(item_id);
`
