package migrations

// Janitor returns the manager holding the janitor database schema history
func Janitor() *Manager {
	m := NewManager()
	m.Register(Migration{
		Version:     1,
		Description: "backups and run history",
		Up: `
CREATE TABLE IF NOT EXISTS backups (
    revision INTEGER PRIMARY KEY AUTOINCREMENT,
    unit TEXT NOT NULL,
    content BLOB NOT NULL,
    sha256 TEXT NOT NULL,
    size INTEGER NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backups_unit ON backups(unit, revision);
CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    dry_run INTEGER NOT NULL DEFAULT 0,
    units INTEGER NOT NULL DEFAULT 0,
    accepted INTEGER NOT NULL DEFAULT 0,
    rolled_back INTEGER NOT NULL DEFAULT 0,
    clean INTEGER NOT NULL DEFAULT 0,
    aborted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS refactor_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    unit TEXT NOT NULL,
    attempt_number INTEGER NOT NULL CHECK(attempt_number >= 1),
    verdict TEXT NOT NULL,
    resolved_weight REAL NOT NULL DEFAULT 0,
    introduced_weight REAL NOT NULL DEFAULT 0,
    violations TEXT NOT NULL DEFAULT '[]',
    error TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    UNIQUE (run_id, unit, attempt_number),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_attempts_unit ON refactor_attempts(unit);

CREATE TABLE IF NOT EXISTS analysis_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL DEFAULT '',
    unit TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    total INTEGER NOT NULL,
    by_category TEXT NOT NULL DEFAULT '{}',
    by_severity TEXT NOT NULL DEFAULT '{}',
    issues TEXT NOT NULL DEFAULT '[]',
    was_refactored INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_analysis_unit ON analysis_records(unit, timestamp);
`,
		Down: `
DROP TABLE IF EXISTS analysis_records;
DROP TABLE IF EXISTS refactor_attempts;
DROP TABLE IF EXISTS runs;
DROP TABLE IF EXISTS backups;
`,
	})
	return m
}
