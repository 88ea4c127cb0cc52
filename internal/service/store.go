package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/session"
)

// Domain Errors
var (
	ErrNotAssigned        = errors.New("instrument not assigned to student")
	ErrAlreadyCompleted   = session.ErrAlreadyCompleted
	ErrInstrumentInactive = errors.New("instrument is not active")
	ErrInstrumentInUse    = errors.New("instrument already has submissions")
	ErrInvalidAnswer      = errors.New("invalid answer")
	ErrOutOfScope         = errors.New("record belongs to another school")
	ErrStaleProgress      = errors.New("newer progress already stored")
)

// InstrumentStore persists instrument definitions. Implementations return
// model.ErrNotFound for unknown IDs.
type InstrumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Instrument, error)
	List(ctx context.Context) ([]model.Instrument, error)
	ListActive(ctx context.Context) ([]model.Instrument, error)
	Create(ctx context.Context, inst *model.Instrument) error
	Update(ctx context.Context, inst *model.Instrument) error
}

// InstrumentProvider resolves instruments, possibly through a cache.
type InstrumentProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Instrument, error)
}

// InstrumentCatalog also serves the student payload, possibly from its own
// cache entry.
type InstrumentCatalog interface {
	InstrumentProvider
	GetPayload(ctx context.Context, id uuid.UUID) (*model.InstrumentPayload, error)
}

// StudentDirectory is the read side of the external student registry.
type StudentDirectory interface {
	GetByID(ctx context.Context, id int) (*model.Student, error)
}

// SubmissionStore persists submissions.
//
// At most one incomplete and one complete record exist per
// (student, instrument). Complete must insert the complete record and drop
// the incomplete one atomically, returning model.ErrDuplicateComplete when a
// complete record already exists. UpsertIncomplete returns the same error
// instead of writing once the attempt is complete.
type SubmissionStore interface {
	GetByStatus(ctx context.Context, studentID int, instrumentID uuid.UUID, status model.SubmissionStatus) (*model.Submission, error)
	UpsertIncomplete(ctx context.Context, sub *model.Submission) error
	Complete(ctx context.Context, sub *model.Submission) error
	ListComplete(ctx context.Context, filter model.SubmissionFilter) ([]model.SubmissionRecord, error)
	ListByStudent(ctx context.Context, studentID, limit, offset int) ([]model.Submission, int, error)
	CountByInstrument(ctx context.Context, instrumentID uuid.UUID) (int, error)
}
