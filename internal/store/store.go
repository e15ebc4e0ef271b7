// Package store persists summaries and their append-only version history
// in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// ErrNotFound is returned when no summary or version matches a lookup.
var ErrNotFound = errors.New("store: not found")

// Status is the lifecycle state of a summary row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAudio    Status = "no_audio"
)

// Summary is the latest summarization state for one video.
type Summary struct {
	ID                    int64
	VideoPath             string
	Status                Status
	Summary               string
	Transcript            string
	ModelUsed             string
	AudioDurationSeconds  *float64
	ProcessingTimeSeconds *float64
	ErrorMessage          string
	GeneratedAt           time.Time
}

// Version is one immutable entry of a video's summary history.
type Version struct {
	VideoPath             string
	Version               int
	Summary               string
	Transcript            string
	ModelUsed             string
	ProcessingTimeSeconds *float64
	GeneratedAt           time.Time
}

// VersionInfo describes a version without its body.
type VersionInfo struct {
	Version               int      `json:"version"`
	ModelUsed             string   `json:"model_used,omitempty"`
	ProcessingTimeSeconds *float64 `json:"processing_time_seconds,omitempty"`
	GeneratedAt           string   `json:"generated_at"`
}

// Store is a SQLite-backed summary repository.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and applies the schema.
// The special path ":memory:" opens a private in-memory database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// between the workers and API readers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_path TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		summary TEXT,
		transcript TEXT,
		model_used TEXT,
		audio_duration_seconds REAL,
		processing_time_seconds REAL,
		error_message TEXT,
		generated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_status ON summaries(status);

	CREATE TABLE IF NOT EXISTS summary_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_path TEXT NOT NULL,
		version INTEGER NOT NULL,
		summary TEXT,
		transcript TEXT,
		model_used TEXT,
		processing_time_seconds REAL,
		generated_at TEXT NOT NULL,
		UNIQUE(video_path, version)
	);
	CREATE INDEX IF NOT EXISTS idx_versions_path ON summary_versions(video_path);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
