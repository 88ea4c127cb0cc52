package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/wellcheck-backend/internal/config"
)

// ErrSessionBusy is returned when the student already has a live session
// for the instrument.
var ErrSessionBusy = errors.New("session already open")

// SessionLocks guarantees one live session per student and instrument.
// Locks live in Redis when a client is configured, in process otherwise.
type SessionLocks struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	local map[string]string
}

// NewSessionLocks creates a SessionLocks. A lock not refreshed within ttl
// expires.
func NewSessionLocks(rdb *redis.Client, ttl time.Duration) *SessionLocks {
	return &SessionLocks{rdb: rdb, ttl: ttl, local: make(map[string]string)}
}

// SessionLock is a held lock.
type SessionLock struct {
	locks *SessionLocks
	key   string
	token string
}

// Acquire takes the lock or returns ErrSessionBusy.
func (l *SessionLocks) Acquire(ctx context.Context, instrumentID uuid.UUID, studentID int) (*SessionLock, error) {
	key := config.CacheKey.StudentAttemptLockKey(instrumentID.String(), studentID)
	token := uuid.NewString()

	if l.rdb == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, held := l.local[key]; held {
			return nil, ErrSessionBusy
		}
		l.local[key] = token
		return &SessionLock{locks: l, key: key, token: token}, nil
	}

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionBusy
	}
	return &SessionLock{locks: l, key: key, token: token}, nil
}

// Refresh extends the lock's lifetime.
func (s *SessionLock) Refresh(ctx context.Context) error {
	if s.locks.rdb == nil {
		return nil
	}
	return s.locks.rdb.Expire(ctx, s.key, s.locks.ttl).Err()
}

// Release frees the lock if it is still held by this holder.
func (s *SessionLock) Release(ctx context.Context) error {
	l := s.locks
	if l.rdb == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.local[s.key] == s.token {
			delete(l.local, s.key)
		}
		return nil
	}

	// Compare-and-delete so an expired-and-retaken lock is left alone.
	held, err := l.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if held != s.token {
		return nil
	}
	return l.rdb.Del(ctx, s.key).Err()
}
