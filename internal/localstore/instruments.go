package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

// InstrumentRepo stores instrument definitions as JSON documents.
type InstrumentRepo struct {
	store *Store
}

const instrumentColumns = `id, title, description, questions, sections, buckets,
	inactivity_alert_seconds, inactivity_end_seconds, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (*model.Instrument, error) {
	var (
		inst                         model.Instrument
		questions, sections, buckets string
		createdAt, updatedAt         string
	)
	err := row.Scan(&inst.ID, &inst.Title, &inst.Description, &questions, &sections, &buckets,
		&inst.InactivityAlertSeconds, &inst.InactivityEndSeconds, &inst.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &inst.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal([]byte(sections), &inst.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	if err := json.Unmarshal([]byte(buckets), &inst.Buckets); err != nil {
		return nil, fmt.Errorf("decode buckets: %w", err)
	}
	if inst.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if inst.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetByID retrieves an instrument by its UUID.
func (r *InstrumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Instrument, error) {
	inst, err := scanInstrument(r.store.db.QueryRowContext(ctx,
		`SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`, id.String()))
	if err != nil {
		return nil, notFound(err)
	}
	return inst, nil
}

// List retrieves every instrument, newest first.
func (r *InstrumentRepo) List(ctx context.Context) ([]model.Instrument, error) {
	return r.list(ctx, `SELECT `+instrumentColumns+` FROM instruments ORDER BY created_at DESC`)
}

// ListActive retrieves active instruments only.
func (r *InstrumentRepo) ListActive(ctx context.Context) ([]model.Instrument, error) {
	return r.list(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE is_active = 1 ORDER BY created_at DESC`)
}

func (r *InstrumentRepo) list(ctx context.Context, query string) ([]model.Instrument, error) {
	rows, err := r.store.db.QueryContext(ctx, query)
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

func encodeDefinition(inst *model.Instrument) (questions, sections, buckets string, err error) {
	var q, s, b []byte
	if q, err = json.Marshal(inst.Questions); err != nil {
		return
	}
	if s, err = json.Marshal(inst.Sections); err != nil {
		return
	}
	if b, err = json.Marshal(inst.Buckets); err != nil {
		return
	}
	return string(q), string(s), string(b), nil
}

// Create inserts a new instrument. A zero ID is replaced with a fresh UUID.
func (r *InstrumentRepo) Create(ctx context.Context, inst *model.Instrument) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	questions, sections, buckets, err := encodeDefinition(inst)
	if err != nil {
		return fmt.Errorf("encode instrument: %w", err)
	}

	now := r.store.timestamp()
	if _, err := r.store.db.ExecContext(ctx,
		`INSERT INTO instruments (id, title, description, questions, sections, buckets,
		                          inactivity_alert_seconds, inactivity_end_seconds, is_active,
		                          created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID.String(), inst.Title, inst.Description, questions, sections, buckets,
		inst.InactivityAlertSeconds, inst.InactivityEndSeconds, boolInt(inst.IsActive), now, now,
	); err != nil {
		return err
	}
	inst.CreatedAt, _ = parseTime(now)
	inst.UpdatedAt = inst.CreatedAt
	return nil
}

// Update replaces an instrument's definition.
func (r *InstrumentRepo) Update(ctx context.Context, inst *model.Instrument) error {
	questions, sections, buckets, err := encodeDefinition(inst)
	if err != nil {
		return fmt.Errorf("encode instrument: %w", err)
	}

	now := r.store.timestamp()
	res, err := r.store.db.ExecContext(ctx,
		`UPDATE instruments
		 SET title = ?, description = ?, questions = ?, sections = ?, buckets = ?,
		     inactivity_alert_seconds = ?, inactivity_end_seconds = ?, is_active = ?,
		     updated_at = ?
		 WHERE id = ?`,
		inst.Title, inst.Description, questions, sections, buckets,
		inst.InactivityAlertSeconds, inst.InactivityEndSeconds, boolInt(inst.IsActive),
		now, inst.ID.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows)
	}
	inst.UpdatedAt, _ = parseTime(now)
	return nil
}
