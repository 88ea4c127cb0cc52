package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stemsi/wellcheck-backend/internal/model"
)

// EventRepo stores the session audit trail.
type EventRepo struct {
	store *Store
}

// InsertEvents inserts events in one transaction.
func (r *EventRepo) InsertEvents(ctx context.Context, events []model.AttemptEvent) (int64, error) {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attempt_events (student_id, instrument_id, event_type, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, eventArgs(e)...); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// InsertEvent inserts a single event.
func (r *EventRepo) InsertEvent(ctx context.Context, e model.AttemptEvent) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO attempt_events (student_id, instrument_id, event_type, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`, eventArgs(e)...)
	return err
}

// CountEvents returns how many events of a type were recorded for a student.
func (r *EventRepo) CountEvents(ctx context.Context, studentID int, typ model.AttemptEventType) (int, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempt_events WHERE student_id = ? AND event_type = ?`,
		studentID, string(typ),
	).Scan(&n)
	return n, err
}

func eventArgs(e model.AttemptEvent) []any {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}
	return []any{e.StudentID, e.InstrumentID.String(), string(e.Type), payload, formatTime(e.RecordedAt)}
}
