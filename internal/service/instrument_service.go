package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

// InstrumentService manages instrument definitions and their Redis cache.
// A nil Redis client disables caching.
type InstrumentService struct {
	store       InstrumentStore
	submissions SubmissionStore
	rdb         *redis.Client
	ttl         time.Duration
	log         zerolog.Logger
}

// NewInstrumentService creates a new InstrumentService.
func NewInstrumentService(
	store InstrumentStore,
	submissions SubmissionStore,
	rdb *redis.Client,
	ttl time.Duration,
	log zerolog.Logger,
) *InstrumentService {
	return &InstrumentService{
		store:       store,
		submissions: submissions,
		rdb:         rdb,
		ttl:         ttl,
		log:         log.With().Str("component", "instrument_service").Logger(),
	}
}

// List returns every instrument.
func (s *InstrumentService) List(ctx context.Context) ([]model.Instrument, error) {
	return s.store.List(ctx)
}

// Create validates and stores a new instrument, then warms its cache.
func (s *InstrumentService) Create(ctx context.Context, inst *model.Instrument) error {
	inst.ApplyDefaults()
	if err := catalog.Validate(inst); err != nil {
		return err
	}
	if err := s.store.Create(ctx, inst); err != nil {
		return fmt.Errorf("create instrument: %w", err)
	}
	if err := s.WarmCache(ctx, inst); err != nil {
		s.log.Warn().Err(err).Str("instrument_id", inst.ID.String()).Msg("Failed to warm cache after create")
	}
	return nil
}

// Update replaces an instrument that no submission references yet.
func (s *InstrumentService) Update(ctx context.Context, inst *model.Instrument) error {
	if _, err := s.store.GetByID(ctx, inst.ID); err != nil {
		return err
	}

	n, err := s.submissions.CountByInstrument(ctx, inst.ID)
	if err != nil {
		return fmt.Errorf("count submissions: %w", err)
	}
	if n > 0 {
		return ErrInstrumentInUse
	}

	inst.ApplyDefaults()
	if err := catalog.Validate(inst); err != nil {
		return err
	}
	if err := s.store.Update(ctx, inst); err != nil {
		return fmt.Errorf("update instrument: %w", err)
	}
	if err := s.WarmCache(ctx, inst); err != nil {
		s.log.Warn().Err(err).Str("instrument_id", inst.ID.String()).Msg("Failed to warm cache after update")
	}
	return nil
}

// GetByID returns the full definition, marks included, preferring the cache.
func (s *InstrumentService) GetByID(ctx context.Context, id uuid.UUID) (*model.Instrument, error) {
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, config.CacheKey.InstrumentDefinitionKey(id.String())).Bytes()
		if err == nil {
			var inst model.Instrument
			if err := json.Unmarshal(data, &inst); err == nil {
				return &inst, nil
			}
			s.log.Warn().Str("instrument_id", id.String()).Msg("Discarding malformed cached instrument")
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Redis read failed, falling back to store")
		}
	}

	inst, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.WarmCache(ctx, inst); err != nil {
		s.log.Warn().Err(err).Str("instrument_id", id.String()).Msg("Failed to warm cache")
	}
	return inst, nil
}

// GetPayload returns the student-facing payload, preferring the cache.
func (s *InstrumentService) GetPayload(ctx context.Context, id uuid.UUID) (*model.InstrumentPayload, error) {
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, config.CacheKey.InstrumentPayloadKey(id.String())).Bytes()
		if err == nil {
			var payload model.InstrumentPayload
			if err := json.Unmarshal(data, &payload); err == nil {
				return &payload, nil
			}
		}
	}

	inst, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return inst.ForStudent(), nil
}

// RefreshCache re-caches an instrument from the store.
func (s *InstrumentService) RefreshCache(ctx context.Context, id uuid.UUID) error {
	inst, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.WarmCache(ctx, inst); err != nil {
		return err
	}
	s.log.Info().Str("instrument_id", id.String()).Msg("Cache refreshed")
	return nil
}

// WarmCache writes the definition and the student payload in one pipeline.
func (s *InstrumentService) WarmCache(ctx context.Context, inst *model.Instrument) error {
	if s.rdb == nil {
		return nil
	}

	defJSON, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	payloadJSON, err := json.Marshal(inst.ForStudent())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	id := inst.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.InstrumentDefinitionKey(id), defJSON, s.ttl)
	pipe.Set(ctx, config.CacheKey.InstrumentPayloadKey(id), payloadJSON, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("instrument_id", id).
		Int("questions", len(inst.Questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads every active instrument into Redis on startup.
func (s *InstrumentService) PrewarmAllCaches(ctx context.Context) error {
	instruments, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active instruments: %w", err)
	}

	if len(instruments) == 0 {
		s.log.Info().Msg("No active instruments to prewarm")
		return nil
	}

	warmed := 0
	for i := range instruments {
		if err := s.WarmCache(ctx, &instruments[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("instrument_id", instruments[i].ID.String()).
				Msg("Failed to warm instrument, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(instruments)).
		Msg("Prewarming complete")
	return nil
}
