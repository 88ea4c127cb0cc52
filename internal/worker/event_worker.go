package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventSink persists attempt events. Implemented by the PostgreSQL and
// SQLite event repositories.
type EventSink interface {
	InsertEvents(ctx context.Context, events []model.AttemptEvent) (int64, error)
	InsertEvent(ctx context.Context, e model.AttemptEvent) error
}

// EventWorker drains persist_attempt_events_queue into the event sink in
// batches.
type EventWorker struct {
	sink EventSink
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewEventWorker creates a new EventWorker.
func NewEventWorker(sink EventSink, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		sink: sink,
		rdb:  rdb,
		log:  log.With().Str("component", "event_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]model.AttemptEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var event model.AttemptEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			// Malformed entries can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed event")
			continue
		}

		buffer = append(buffer, event)
	}
}

// flushSafe attempts a bulk insert, then a row-by-row insert, then requeues
// whatever still failed.
func (w *EventWorker) flushSafe(ctx context.Context, batch []model.AttemptEvent) {
	failed := w.flush(ctx, batch)
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

// flush returns the events that could not be stored.
func (w *EventWorker) flush(ctx context.Context, batch []model.AttemptEvent) []model.AttemptEvent {
	_, err := w.sink.InsertEvents(ctx, batch)
	if err == nil {
		return nil
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.AttemptEvent
	for _, e := range batch {
		if err := w.sink.InsertEvent(ctx, e); err != nil {
			w.log.Error().Err(err).Int("student_id", e.StudentID).Msg("Insert failed, requeueing")
			failed = append(failed, e)
		}
	}
	return failed
}

func (w *EventWorker) requeue(ctx context.Context, items []model.AttemptEvent) {
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, config.WorkerKey.PersistEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue events to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events back to Redis")
	// Back off while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *EventWorker) shutdown(buffer []model.AttemptEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
