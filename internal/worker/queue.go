package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

// Queue publishes work for the background workers.
type Queue struct {
	rdb *redis.Client
}

// NewQueue creates a new Queue.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// RecordEvent enqueues an attempt event. A zero RecordedAt is set to now.
func (q *Queue) RecordEvent(ctx context.Context, e model.AttemptEvent) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, data).Err()
}

// EnqueueProgress hands a failed save to the progress worker for retry.
func (q *Queue) EnqueueProgress(ctx context.Context, in model.ProgressInput) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistProgressQueue, data).Err()
}
