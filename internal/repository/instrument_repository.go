package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

// InstrumentRepository handles instrument data access. Questions, sections
// and buckets are stored as JSONB documents.
type InstrumentRepository struct {
	pool *pgxpool.Pool
}

// NewInstrumentRepository creates a new InstrumentRepository.
func NewInstrumentRepository(pool *pgxpool.Pool) *InstrumentRepository {
	return &InstrumentRepository{pool: pool}
}

const instrumentColumns = `id, title, description, questions, sections, buckets,
	inactivity_alert_seconds, inactivity_end_seconds, is_active, created_at, updated_at`

func scanInstrument(row pgx.Row) (*model.Instrument, error) {
	inst := &model.Instrument{}
	var questions, sections, buckets []byte
	err := row.Scan(&inst.ID, &inst.Title, &inst.Description, &questions, &sections, &buckets,
		&inst.InactivityAlertSeconds, &inst.InactivityEndSeconds, &inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &inst.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal(sections, &inst.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	if err := json.Unmarshal(buckets, &inst.Buckets); err != nil {
		return nil, fmt.Errorf("decode buckets: %w", err)
	}
	return inst, nil
}

// GetByID retrieves an instrument by its UUID.
func (r *InstrumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Instrument, error) {
	inst, err := scanInstrument(r.pool.QueryRow(ctx,
		`SELECT `+instrumentColumns+` FROM instruments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return inst, nil
}

// List retrieves every instrument, newest first.
func (r *InstrumentRepository) List(ctx context.Context) ([]model.Instrument, error) {
	return r.list(ctx, `SELECT `+instrumentColumns+` FROM instruments ORDER BY created_at DESC`)
}

// ListActive retrieves active instruments only.
func (r *InstrumentRepository) ListActive(ctx context.Context) ([]model.Instrument, error) {
	return r.list(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE is_active ORDER BY created_at DESC`)
}

func (r *InstrumentRepository) list(ctx context.Context, query string) ([]model.Instrument, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, *inst)
	}
	return instruments, rows.Err()
}

func marshalDefinition(inst *model.Instrument) (questions, sections, buckets []byte, err error) {
	if questions, err = json.Marshal(inst.Questions); err != nil {
		return nil, nil, nil, err
	}
	if sections, err = json.Marshal(inst.Sections); err != nil {
		return nil, nil, nil, err
	}
	if buckets, err = json.Marshal(inst.Buckets); err != nil {
		return nil, nil, nil, err
	}
	return questions, sections, buckets, nil
}

// Create inserts a new instrument. A zero ID is replaced with a fresh UUID.
func (r *InstrumentRepository) Create(ctx context.Context, inst *model.Instrument) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	questions, sections, buckets, err := marshalDefinition(inst)
	if err != nil {
		return fmt.Errorf("encode instrument: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO instruments (id, title, description, questions, sections, buckets,
		                          inactivity_alert_seconds, inactivity_end_seconds, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		inst.ID, inst.Title, inst.Description, questions, sections, buckets,
		inst.InactivityAlertSeconds, inst.InactivityEndSeconds, inst.IsActive,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
}

// Update replaces an instrument's definition.
func (r *InstrumentRepository) Update(ctx context.Context, inst *model.Instrument) error {
	questions, sections, buckets, err := marshalDefinition(inst)
	if err != nil {
		return fmt.Errorf("encode instrument: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`UPDATE instruments
		 SET title = $2, description = $3, questions = $4, sections = $5, buckets = $6,
		     inactivity_alert_seconds = $7, inactivity_end_seconds = $8, is_active = $9,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		inst.ID, inst.Title, inst.Description, questions, sections, buckets,
		inst.InactivityAlertSeconds, inst.InactivityEndSeconds, inst.IsActive,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	return notFound(err)
}
