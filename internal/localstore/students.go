package localstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

var ErrDuplicateAccessID = errors.New("student with this access ID already exists")

// StudentRepo is the local read model of the student registry.
type StudentRepo struct {
	store *Store
}

// GetByID retrieves a student with the list of assigned instruments.
func (r *StudentRepo) GetByID(ctx context.Context, id int) (*model.Student, error) {
	var (
		s         model.Student
		createdAt string
		assigned  sql.NullString
	)
	err := r.store.db.QueryRowContext(ctx,
		`SELECT s.id, s.access_id, s.name, s.class_label, s.class_section, s.school_id, s.created_at,
		        (SELECT group_concat(instrument_id, ',')
		         FROM (SELECT instrument_id FROM student_instruments
		               WHERE student_id = s.id ORDER BY assigned_at))
		 FROM students s WHERE s.id = ?`, id,
	).Scan(&s.ID, &s.AccessID, &s.Name, &s.ClassLabel, &s.ClassSection, &s.SchoolID, &createdAt, &assigned)
	if err != nil {
		return nil, notFound(err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	s.AssignedInstruments = []uuid.UUID{}
	if assigned.Valid && assigned.String != "" {
		for _, raw := range strings.Split(assigned.String, ",") {
			instID, err := uuid.Parse(raw)
			if err != nil {
				return nil, err
			}
			s.AssignedInstruments = append(s.AssignedInstruments, instID)
		}
	}
	return &s, nil
}

// Create inserts a new student.
func (r *StudentRepo) Create(ctx context.Context, s *model.Student) error {
	now := r.store.timestamp()
	res, err := r.store.db.ExecContext(ctx,
		`INSERT INTO students (access_id, name, class_label, class_section, school_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.AccessID, s.Name, s.ClassLabel, s.ClassSection, s.SchoolID, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccessID
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = int(id)
	s.CreatedAt, _ = parseTime(now)
	return nil
}

// AssignInstrument adds an instrument to a student's list. Idempotent.
func (r *StudentRepo) AssignInstrument(ctx context.Context, studentID int, instrumentID uuid.UUID) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO student_instruments (student_id, instrument_id, assigned_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (student_id, instrument_id) DO NOTHING`,
		studentID, instrumentID.String(), r.store.timestamp(),
	)
	return err
}

// AssignToSchool assigns an instrument to every student of a school and
// returns the number of new assignments.
func (r *StudentRepo) AssignToSchool(ctx context.Context, schoolID int, instrumentID uuid.UUID) (int64, error) {
	res, err := r.store.db.ExecContext(ctx,
		`INSERT INTO student_instruments (student_id, instrument_id, assigned_at)
		 SELECT id, ?, ? FROM students WHERE school_id = ?
		 ON CONFLICT (student_id, instrument_id) DO NOTHING`,
		instrumentID.String(), r.store.timestamp(), schoolID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
