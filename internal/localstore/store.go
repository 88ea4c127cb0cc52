// Package localstore is a single-file SQLite backend implementing the same
// storage contracts as the PostgreSQL repositories. It backs local runs,
// the CLI and the handler tests.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/wellcheck-backend/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed-width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
    id                        TEXT PRIMARY KEY,
    title                     TEXT NOT NULL,
    description               TEXT NOT NULL DEFAULT '',
    questions                 TEXT NOT NULL,
    sections                  TEXT NOT NULL,
    buckets                   TEXT NOT NULL,
    inactivity_alert_seconds  INTEGER NOT NULL,
    inactivity_end_seconds    INTEGER NOT NULL,
    is_active                 INTEGER NOT NULL DEFAULT 1,
    created_at                TEXT NOT NULL,
    updated_at                TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS students (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    access_id      TEXT NOT NULL UNIQUE,
    name           TEXT NOT NULL,
    class_label    TEXT NOT NULL DEFAULT '',
    class_section  TEXT NOT NULL DEFAULT '',
    school_id      INTEGER NOT NULL,
    created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS student_instruments (
    student_id     INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    instrument_id  TEXT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
    assigned_at    TEXT NOT NULL,
    PRIMARY KEY (student_id, instrument_id)
);

CREATE TABLE IF NOT EXISTS submissions (
    id                     TEXT PRIMARY KEY,
    student_id             INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    instrument_id          TEXT NOT NULL REFERENCES instruments(id),
    school_id              INTEGER NOT NULL,
    status                 TEXT NOT NULL,
    answers                TEXT NOT NULL DEFAULT '[]',
    last_question_index    INTEGER NOT NULL DEFAULT 0,
    total_score            INTEGER NOT NULL DEFAULT 0,
    section_scores         TEXT NOT NULL DEFAULT '{}',
    section_buckets        TEXT NOT NULL DEFAULT '{}',
    primary_skill_area     TEXT NOT NULL DEFAULT '',
    secondary_skill_area   TEXT NOT NULL DEFAULT '',
    assigned_bucket        TEXT NOT NULL DEFAULT '',
    total_inactivity_time  INTEGER NOT NULL DEFAULT 0,
    time_taken             INTEGER NOT NULL DEFAULT 0,
    mood_check             TEXT,
    consent_given          INTEGER NOT NULL DEFAULT 0,
    mobile_number          TEXT NOT NULL DEFAULT '',
    email                  TEXT NOT NULL DEFAULT '',
    submitted_at           TEXT,
    created_at             TEXT NOT NULL,
    updated_at             TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_submissions_incomplete
    ON submissions (student_id, instrument_id) WHERE status = 'incomplete';
CREATE UNIQUE INDEX IF NOT EXISTS uq_submissions_complete
    ON submissions (student_id, instrument_id) WHERE status = 'complete';

CREATE TABLE IF NOT EXISTS attempt_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    student_id     INTEGER NOT NULL,
    instrument_id  TEXT NOT NULL,
    event_type     TEXT NOT NULL,
    payload        TEXT,
    recorded_at    TEXT NOT NULL
);
`

// Store wraps a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the SQLite database at dsn, applies pragmas and creates
// the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps in-memory
	// databases alive for the lifetime of the Store.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Instruments returns the instrument repository.
func (s *Store) Instruments() *InstrumentRepo {
	return &InstrumentRepo{store: s}
}

// Students returns the student repository.
func (s *Store) Students() *StudentRepo {
	return &StudentRepo{store: s}
}

// Submissions returns the submission repository.
func (s *Store) Submissions() *SubmissionRepo {
	return &SubmissionRepo{store: s}
}

// Events returns the attempt event repository.
func (s *Store) Events() *EventRepo {
	return &EventRepo{store: s}
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
