package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

// SubmissionRepo stores submissions. Partial unique indexes keep one
// incomplete and one complete row per student and instrument.
type SubmissionRepo struct {
	store *Store
}

const submissionColumns = `sub.id, sub.student_id, sub.instrument_id, sub.school_id, sub.status, sub.answers,
	sub.last_question_index, sub.total_score, sub.section_scores, sub.section_buckets,
	sub.primary_skill_area, sub.secondary_skill_area, sub.assigned_bucket,
	sub.total_inactivity_time, sub.time_taken, sub.mood_check, sub.consent_given,
	sub.mobile_number, sub.email, sub.submitted_at, sub.created_at, sub.updated_at`

// submissionRow holds the encoded columns of a row before decoding.
type submissionRow struct {
	answers, scores, buckets string
	mood, submittedAt        sql.NullString
	createdAt, updatedAt     string
}

func (r *submissionRow) dest(s *model.Submission) []any {
	return []any{&s.ID, &s.StudentID, &s.InstrumentID, &s.SchoolID, &s.Status, &r.answers,
		&s.LastQuestionIndex, &s.TotalScore, &r.scores, &r.buckets,
		&s.PrimarySkillArea, &s.SecondarySkillArea, &s.AssignedBucket,
		&s.TotalInactivityTime, &s.TimeTaken, &r.mood, &s.ConsentGiven,
		&s.MobileNumber, &s.Email, &r.submittedAt, &r.createdAt, &r.updatedAt}
}

func (r *submissionRow) decode(s *model.Submission) error {
	if err := json.Unmarshal([]byte(r.answers), &s.Answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(r.scores), &s.SectionScores); err != nil {
		return fmt.Errorf("decode section scores: %w", err)
	}
	if err := json.Unmarshal([]byte(r.buckets), &s.SectionBuckets); err != nil {
		return fmt.Errorf("decode section buckets: %w", err)
	}
	if r.mood.Valid {
		s.MoodCheck = &model.MoodCheck{}
		if err := json.Unmarshal([]byte(r.mood.String), s.MoodCheck); err != nil {
			return fmt.Errorf("decode mood check: %w", err)
		}
	}

	var err error
	if s.SubmittedAt, err = parseNullTime(r.submittedAt); err != nil {
		return err
	}
	if s.CreatedAt, err = parseTime(r.createdAt); err != nil {
		return err
	}
	s.UpdatedAt, err = parseTime(r.updatedAt)
	return err
}

// encoded holds the JSON columns of a submission about to be written.
type encoded struct {
	answers, scores, buckets string
	mood                     sql.NullString
}

func encodeSubmission(s *model.Submission) (*encoded, error) {
	if s.Answers == nil {
		s.Answers = []model.ProcessedAnswer{}
	}
	if s.SectionScores == nil {
		s.SectionScores = map[string]int{}
	}
	if s.SectionBuckets == nil {
		s.SectionBuckets = map[string]string{}
	}

	var e encoded
	b, err := json.Marshal(s.Answers)
	if err != nil {
		return nil, err
	}
	e.answers = string(b)
	if b, err = json.Marshal(s.SectionScores); err != nil {
		return nil, err
	}
	e.scores = string(b)
	if b, err = json.Marshal(s.SectionBuckets); err != nil {
		return nil, err
	}
	e.buckets = string(b)
	if s.MoodCheck != nil {
		if b, err = json.Marshal(s.MoodCheck); err != nil {
			return nil, err
		}
		e.mood = sql.NullString{String: string(b), Valid: true}
	}
	return &e, nil
}

// GetByStatus retrieves the student's submission in the given status.
func (r *SubmissionRepo) GetByStatus(ctx context.Context, studentID int, instrumentID uuid.UUID, status model.SubmissionStatus) (*model.Submission, error) {
	var (
		s   model.Submission
		row submissionRow
	)
	err := r.store.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions sub
		 WHERE sub.student_id = ? AND sub.instrument_id = ? AND sub.status = ?
		 LIMIT 1`,
		studentID, instrumentID.String(), string(status),
	).Scan(row.dest(&s)...)
	if err != nil {
		return nil, notFound(err)
	}
	if err := row.decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertIncomplete creates or overwrites the incomplete submission, or
// returns model.ErrDuplicateComplete when the attempt is already complete.
func (r *SubmissionRepo) UpsertIncomplete(ctx context.Context, s *model.Submission) error {
	e, err := encodeSubmission(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	now := r.store.timestamp()
	var id uuid.UUID
	err = r.store.db.QueryRowContext(ctx,
		`INSERT INTO submissions (id, student_id, instrument_id, school_id, status, answers,
		                          last_question_index, section_scores, section_buckets,
		                          total_inactivity_time, time_taken, mood_check, consent_given,
		                          mobile_number, email, created_at, updated_at)
		 SELECT ?, ?, ?, ?, 'incomplete', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		     SELECT 1 FROM submissions
		     WHERE student_id = ? AND instrument_id = ? AND status = 'complete'
		 )
		 ON CONFLICT (student_id, instrument_id) WHERE status = 'incomplete'
		 DO UPDATE SET answers = excluded.answers,
		               last_question_index = excluded.last_question_index,
		               total_inactivity_time = excluded.total_inactivity_time,
		               time_taken = excluded.time_taken,
		               mood_check = excluded.mood_check,
		               consent_given = excluded.consent_given,
		               mobile_number = excluded.mobile_number,
		               email = excluded.email,
		               updated_at = excluded.updated_at
		 RETURNING id`,
		s.ID.String(), s.StudentID, s.InstrumentID.String(), s.SchoolID, e.answers,
		s.LastQuestionIndex, e.scores, e.buckets,
		s.TotalInactivityTime, s.TimeTaken, e.mood, boolInt(s.ConsentGiven),
		s.MobileNumber, s.Email, now, now,
		s.StudentID, s.InstrumentID.String(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrDuplicateComplete
	}
	if err != nil {
		return err
	}

	s.ID = id
	s.UpdatedAt, _ = parseTime(now)
	return nil
}

// Complete inserts the complete submission and removes the incomplete one
// in a single transaction.
func (r *SubmissionRepo) Complete(ctx context.Context, s *model.Submission) error {
	e, err := encodeSubmission(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := r.store.timestamp()
	var submittedAt sql.NullString
	if s.SubmittedAt != nil {
		submittedAt = sql.NullString{String: formatTime(*s.SubmittedAt), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO submissions (id, student_id, instrument_id, school_id, status, answers,
		                          last_question_index, total_score, section_scores, section_buckets,
		                          primary_skill_area, secondary_skill_area, assigned_bucket,
		                          total_inactivity_time, time_taken, mood_check, consent_given,
		                          mobile_number, email, submitted_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'complete', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.StudentID, s.InstrumentID.String(), s.SchoolID, e.answers,
		s.LastQuestionIndex, s.TotalScore, e.scores, e.buckets,
		s.PrimarySkillArea, s.SecondarySkillArea, s.AssignedBucket,
		s.TotalInactivityTime, s.TimeTaken, e.mood, boolInt(s.ConsentGiven),
		s.MobileNumber, s.Email, submittedAt, now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateComplete
		}
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM submissions WHERE student_id = ? AND instrument_id = ? AND status = 'incomplete'`,
		s.StudentID, s.InstrumentID.String(),
	); err != nil {
		return fmt.Errorf("delete incomplete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.CreatedAt, _ = parseTime(now)
	s.UpdatedAt = s.CreatedAt
	return nil
}

// ListComplete retrieves completed submissions joined with student grouping
// attributes, oldest first.
func (r *SubmissionRepo) ListComplete(ctx context.Context, f model.SubmissionFilter) ([]model.SubmissionRecord, error) {
	var (
		conds = []string{"sub.status = 'complete'"}
		args  []any
	)
	if f.InstrumentID != nil {
		conds = append(conds, "sub.instrument_id = ?")
		args = append(args, f.InstrumentID.String())
	}
	if f.SchoolID > 0 {
		conds = append(conds, "sub.school_id = ?")
		args = append(args, f.SchoolID)
	}
	if f.ClassLabel != "" {
		conds = append(conds, "st.class_label = ?")
		args = append(args, f.ClassLabel)
	}
	if f.ClassSection != "" {
		conds = append(conds, "st.class_section = ?")
		args = append(args, f.ClassSection)
	}
	if f.Bucket != "" {
		conds = append(conds, "sub.assigned_bucket = ?")
		args = append(args, f.Bucket)
	}
	if f.From != nil {
		conds = append(conds, "sub.submitted_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if until := f.Until(); until != nil {
		conds = append(conds, "sub.submitted_at < ?")
		args = append(args, formatTime(*until))
	}

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT `+submissionColumns+`, st.name, st.class_label, st.class_section
		 FROM submissions sub
		 JOIN students st ON st.id = sub.student_id
		 WHERE `+strings.Join(conds, " AND ")+`
		 ORDER BY sub.submitted_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.SubmissionRecord
	for rows.Next() {
		var (
			rec model.SubmissionRecord
			row submissionRow
		)
		dest := append(row.dest(&rec.Submission), &rec.StudentName, &rec.ClassLabel, &rec.ClassSection)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := row.decode(&rec.Submission); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListByStudent retrieves a student's submissions, newest first, with the
// total count.
func (r *SubmissionRepo) ListByStudent(ctx context.Context, studentID, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE student_id = ?`, studentID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions sub
		 WHERE sub.student_id = ?
		 ORDER BY sub.updated_at DESC
		 LIMIT ? OFFSET ?`,
		studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		var (
			s   model.Submission
			row submissionRow
		)
		if err := rows.Scan(row.dest(&s)...); err != nil {
			return nil, 0, err
		}
		if err := row.decode(&s); err != nil {
			return nil, 0, err
		}
		subs = append(subs, s)
	}
	return subs, total, rows.Err()
}

// CountByInstrument returns how many submissions reference an instrument.
func (r *SubmissionRepo) CountByInstrument(ctx context.Context, instrumentID uuid.UUID) (int, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE instrument_id = ?`, instrumentID.String(),
	).Scan(&n)
	return n, err
}
