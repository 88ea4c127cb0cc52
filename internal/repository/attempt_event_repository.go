package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

// AttemptEventRepository stores the session audit trail.
type AttemptEventRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptEventRepository creates a new AttemptEventRepository.
func NewAttemptEventRepository(pool *pgxpool.Pool) *AttemptEventRepository {
	return &AttemptEventRepository{pool: pool}
}

// InsertEvents bulk inserts events with COPY.
func (r *AttemptEventRepository) InsertEvents(ctx context.Context, events []model.AttemptEvent) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_events"},
		[]string{"student_id", "instrument_id", "event_type", "payload", "recorded_at"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			var payload []byte
			if len(e.Payload) > 0 {
				payload = e.Payload
			}
			return []any{e.StudentID, e.InstrumentID, string(e.Type), payload, e.RecordedAt}, nil
		}),
	)
}

// InsertEvent inserts a single event.
func (r *AttemptEventRepository) InsertEvent(ctx context.Context, e model.AttemptEvent) error {
	var payload []byte
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_events (student_id, instrument_id, event_type, payload, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.StudentID, e.InstrumentID, string(e.Type), payload, e.RecordedAt,
	)
	return err
}
