package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database wraps the local SQLite store shared with the detection
// subprocess. The detection script owns the sessions table; the daemon
// owns processing_jobs.
type Database struct {
	DB *sql.DB
}

func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database %s: %w", path, err)
	}

	// The daemon and up to maxWorkers detection subprocesses share one
	// file; serialized writes avoid SQLITE_BUSY under WAL.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}

	return &Database{DB: db}, nil
}

// Init creates the daemon-owned tables if they don't exist.
func (d *Database) Init() error {
	createTables := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_file TEXT,
		camera_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS processing_jobs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		camera_id TEXT NOT NULL,
		video_file TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_processing_jobs_synced ON processing_jobs (synced);
	`

	_, err := d.DB.Exec(createTables)
	return err
}

func (d *Database) Close() error {
	return d.DB.Close()
}
