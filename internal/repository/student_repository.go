package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

var ErrDuplicateAccessID = errors.New("student with this access ID already exists")

// StudentRepository is the read model of the external student registry.
// Writes exist for seeding only.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByID retrieves a student with the list of assigned instruments.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	var assigned []string
	err := r.pool.QueryRow(ctx,
		`SELECT s.id, s.access_id, s.name, s.class_label, s.class_section, s.school_id, s.created_at,
		        COALESCE(array_agg(si.instrument_id::text ORDER BY si.assigned_at)
		                 FILTER (WHERE si.instrument_id IS NOT NULL), '{}')
		 FROM students s
		 LEFT JOIN student_instruments si ON si.student_id = s.id
		 WHERE s.id = $1
		 GROUP BY s.id`, id,
	).Scan(&s.ID, &s.AccessID, &s.Name, &s.ClassLabel, &s.ClassSection, &s.SchoolID, &s.CreatedAt, &assigned)
	if err != nil {
		return nil, notFound(err)
	}

	s.AssignedInstruments = make([]uuid.UUID, 0, len(assigned))
	for _, raw := range assigned {
		instID, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		s.AssignedInstruments = append(s.AssignedInstruments, instID)
	}
	return s, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (access_id, name, class_label, class_section, school_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		s.AccessID, s.Name, s.ClassLabel, s.ClassSection, s.SchoolID,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccessID
		}
		return err
	}
	return nil
}

// AssignInstrument adds an instrument to a student's list. Idempotent.
func (r *StudentRepository) AssignInstrument(ctx context.Context, studentID int, instrumentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_instruments (student_id, instrument_id)
		 VALUES ($1, $2)
		 ON CONFLICT (student_id, instrument_id) DO NOTHING`,
		studentID, instrumentID,
	)
	return err
}

// AssignToSchool assigns an instrument to every student of a school and
// returns the number of new assignments.
func (r *StudentRepository) AssignToSchool(ctx context.Context, schoolID int, instrumentID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO student_instruments (student_id, instrument_id)
		 SELECT id, $2 FROM students WHERE school_id = $1
		 ON CONFLICT (student_id, instrument_id) DO NOTHING`,
		schoolID, instrumentID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
