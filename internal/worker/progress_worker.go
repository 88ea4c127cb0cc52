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
	"github.com/stemsi/wellcheck-backend/internal/service"
)

// ProgressSaver stores an incomplete attempt unless newer progress is
// already stored.
type ProgressSaver interface {
	SaveQueuedProgress(ctx context.Context, in model.ProgressInput) (*model.SubmissionRef, error)
}

// ProgressWorker retries progress saves that failed while a session was
// live, most importantly the forced save on inactivity pause. An entry that
// lands after the student resumed and saved again is dropped.
type ProgressWorker struct {
	saver ProgressSaver
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(saver ProgressSaver, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		saver: saver,
		rdb:   rdb,
		log:   log.With().Str("component", "progress_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ProgressWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProgressQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	if retry := w.handle(ctx, result[1]); retry {
		w.rdb.RPush(ctx, config.WorkerKey.PersistProgressQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// handle saves one queued entry and reports whether it should be retried.
func (w *ProgressWorker) handle(ctx context.Context, raw string) bool {
	var in model.ProgressInput
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		w.log.Error().Err(err).Msg("Discarding malformed progress entry")
		return false
	}

	_, err := w.saver.SaveQueuedProgress(ctx, in)
	switch {
	case err == nil:
		w.log.Debug().
			Int("student_id", in.StudentID).
			Str("instrument_id", in.InstrumentID.String()).
			Msg("Queued progress saved")
		return false
	case isPermanent(err):
		w.log.Warn().Err(err).
			Int("student_id", in.StudentID).
			Str("instrument_id", in.InstrumentID.String()).
			Msg("Dropping queued progress")
		return false
	default:
		w.log.Error().Err(err).
			Int("student_id", in.StudentID).
			Str("instrument_id", in.InstrumentID.String()).
			Msg("Persist error, retrying in 5s")
		return true
	}
}

func isPermanent(err error) bool {
	for _, target := range []error{
		service.ErrAlreadyCompleted,
		service.ErrNotAssigned,
		service.ErrInstrumentInactive,
		service.ErrInvalidAnswer,
		service.ErrStaleProgress,
		model.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// drain processes remaining items before shutdown.
func (w *ProgressWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistProgressQueue).Result()
		if err != nil {
			break
		}
		if w.handle(ctx, raw) {
			w.rdb.RPush(ctx, config.WorkerKey.PersistProgressQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
