package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/analytics"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/response"
)

// AnalyticsService answers cohort and history queries over completed
// submissions.
type AnalyticsService struct {
	instruments InstrumentProvider
	students    StudentDirectory
	submissions SubmissionStore
	loc         *time.Location
	log         zerolog.Logger
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(
	instruments InstrumentProvider,
	students StudentDirectory,
	submissions SubmissionStore,
	loc *time.Location,
	log zerolog.Logger,
) *AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{
		instruments: instruments,
		students:    students,
		submissions: submissions,
		loc:         loc,
		log:         log.With().Str("component", "analytics_service").Logger(),
	}
}

// Compute builds a report over the completed submissions matching filter.
// Section distributions are re-derived from the bucket table of the
// instrument that scored each record. Sections come from the instrument when
// the result set refers to exactly one; otherwise section keys are taken
// from the data.
func (s *AnalyticsService) Compute(ctx context.Context, filter model.SubmissionFilter) (*analytics.Report, error) {
	records, err := s.submissions.ListComplete(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	opts := analytics.Options{Location: s.loc}

	instrumentID := filter.InstrumentID
	if instrumentID == nil {
		instrumentID = singleInstrument(records)
	}
	if instrumentID != nil {
		inst, err := s.instruments.GetByID(ctx, *instrumentID)
		if err != nil {
			return nil, fmt.Errorf("get instrument: %w", err)
		}
		opts.Sections = inst.Sections
		opts.Buckets = inst.Buckets
	} else if len(records) > 0 {
		tables, err := s.bucketTables(ctx, records)
		if err != nil {
			return nil, err
		}
		opts.BucketsFor = func(r model.SubmissionRecord) []model.Bucket {
			return tables[r.InstrumentID]
		}
	}

	start := time.Now()
	report := analytics.Compute(records, opts)
	s.log.Debug().
		Int("submissions", len(records)).
		Dur("took", time.Since(start)).
		Msg("Analytics computed")
	return report, nil
}

// bucketTables loads the bucket table of every instrument in records once.
func (s *AnalyticsService) bucketTables(ctx context.Context, records []model.SubmissionRecord) (map[uuid.UUID][]model.Bucket, error) {
	tables := map[uuid.UUID][]model.Bucket{}
	for _, r := range records {
		if _, ok := tables[r.InstrumentID]; ok {
			continue
		}
		inst, err := s.instruments.GetByID(ctx, r.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("get instrument %s: %w", r.InstrumentID, err)
		}
		tables[r.InstrumentID] = inst.Buckets
	}
	return tables, nil
}

func singleInstrument(records []model.SubmissionRecord) *uuid.UUID {
	if len(records) == 0 {
		return nil
	}
	id := records[0].InstrumentID
	for _, r := range records[1:] {
		if r.InstrumentID != id {
			return nil
		}
	}
	return &id
}

// StudentHistory lists a student's submissions. A non-zero schoolID limits
// access to students of that school.
func (s *AnalyticsService) StudentHistory(ctx context.Context, studentID, schoolID, page, perPage int) ([]model.Submission, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("get student: %w", err)
	}
	if schoolID != 0 && student.SchoolID != schoolID {
		return nil, nil, ErrOutOfScope
	}

	subs, total, err := s.submissions.ListByStudent(ctx, studentID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list submissions: %w", err)
	}

	totalPages := total / perPage
	if total%perPage != 0 {
		totalPages++
	}
	return subs, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}
