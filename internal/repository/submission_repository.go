package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

// SubmissionRepository handles submission data access.
//
// The partial unique indexes on (student_id, instrument_id) keep at most one
// incomplete and one complete row per student and instrument.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `sub.id, sub.student_id, sub.instrument_id, sub.school_id, sub.status, sub.answers,
	sub.last_question_index, sub.total_score, sub.section_scores, sub.section_buckets,
	sub.primary_skill_area, sub.secondary_skill_area, sub.assigned_bucket,
	sub.total_inactivity_time, sub.time_taken, sub.mood_check, sub.consent_given,
	sub.mobile_number, sub.email, sub.submitted_at, sub.created_at, sub.updated_at`

// submissionDocs holds the JSONB columns of a row before decoding.
type submissionDocs struct {
	answers, scores, buckets, mood []byte
}

func (d *submissionDocs) decode(s *model.Submission) error {
	if err := json.Unmarshal(d.answers, &s.Answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(d.scores, &s.SectionScores); err != nil {
		return fmt.Errorf("decode section scores: %w", err)
	}
	if err := json.Unmarshal(d.buckets, &s.SectionBuckets); err != nil {
		return fmt.Errorf("decode section buckets: %w", err)
	}
	if len(d.mood) > 0 {
		s.MoodCheck = &model.MoodCheck{}
		if err := json.Unmarshal(d.mood, s.MoodCheck); err != nil {
			return fmt.Errorf("decode mood check: %w", err)
		}
	}
	return nil
}

func (d *submissionDocs) dest(s *model.Submission) []any {
	return []any{&s.ID, &s.StudentID, &s.InstrumentID, &s.SchoolID, &s.Status, &d.answers,
		&s.LastQuestionIndex, &s.TotalScore, &d.scores, &d.buckets,
		&s.PrimarySkillArea, &s.SecondarySkillArea, &s.AssignedBucket,
		&s.TotalInactivityTime, &s.TimeTaken, &d.mood, &s.ConsentGiven,
		&s.MobileNumber, &s.Email, &s.SubmittedAt, &s.CreatedAt, &s.UpdatedAt}
}

func encodeSubmission(s *model.Submission) (answers, scores, buckets, mood []byte, err error) {
	if s.Answers == nil {
		s.Answers = []model.ProcessedAnswer{}
	}
	if answers, err = json.Marshal(s.Answers); err != nil {
		return
	}
	if scores, err = json.Marshal(s.SectionScores); err != nil {
		return
	}
	if buckets, err = json.Marshal(s.SectionBuckets); err != nil {
		return
	}
	if s.MoodCheck != nil {
		mood, err = json.Marshal(s.MoodCheck)
	}
	return
}

// GetByStatus retrieves the student's submission in the given status.
func (r *SubmissionRepository) GetByStatus(ctx context.Context, studentID int, instrumentID uuid.UUID, status model.SubmissionStatus) (*model.Submission, error) {
	s := &model.Submission{}
	var docs submissionDocs
	err := r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions sub
		 WHERE sub.student_id = $1 AND sub.instrument_id = $2 AND sub.status = $3
		 LIMIT 1`,
		studentID, instrumentID, status,
	).Scan(docs.dest(s)...)
	if err != nil {
		return nil, notFound(err)
	}
	if err := docs.decode(s); err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertIncomplete creates or overwrites the incomplete submission. Nothing
// is written once a complete submission exists; model.ErrDuplicateComplete
// is returned instead.
func (r *SubmissionRepository) UpsertIncomplete(ctx context.Context, s *model.Submission) error {
	answers, scores, buckets, mood, err := encodeSubmission(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO submissions (id, student_id, instrument_id, school_id, status, answers,
		                          last_question_index, section_scores, section_buckets,
		                          total_inactivity_time, time_taken, mood_check, consent_given,
		                          mobile_number, email)
		 SELECT $1, $2, $3, $4, 'incomplete', $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		 WHERE NOT EXISTS (
		     SELECT 1 FROM submissions
		     WHERE student_id = $2 AND instrument_id = $3 AND status = 'complete'
		 )
		 ON CONFLICT (student_id, instrument_id) WHERE status = 'incomplete'
		 DO UPDATE SET answers = EXCLUDED.answers,
		               last_question_index = EXCLUDED.last_question_index,
		               total_inactivity_time = EXCLUDED.total_inactivity_time,
		               time_taken = EXCLUDED.time_taken,
		               mood_check = EXCLUDED.mood_check,
		               consent_given = EXCLUDED.consent_given,
		               mobile_number = EXCLUDED.mobile_number,
		               email = EXCLUDED.email,
		               updated_at = CURRENT_TIMESTAMP
		 RETURNING id, created_at, updated_at`,
		s.ID, s.StudentID, s.InstrumentID, s.SchoolID, answers,
		s.LastQuestionIndex, scores, buckets,
		s.TotalInactivityTime, s.TimeTaken, mood, s.ConsentGiven,
		s.MobileNumber, s.Email,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrDuplicateComplete
	}
	return err
}

// Complete inserts the complete submission and removes the incomplete one
// in a single transaction.
func (r *SubmissionRepository) Complete(ctx context.Context, s *model.Submission) error {
	answers, scores, buckets, mood, err := encodeSubmission(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx,
		`INSERT INTO submissions (id, student_id, instrument_id, school_id, status, answers,
		                          last_question_index, total_score, section_scores, section_buckets,
		                          primary_skill_area, secondary_skill_area, assigned_bucket,
		                          total_inactivity_time, time_taken, mood_check, consent_given,
		                          mobile_number, email, submitted_at)
		 VALUES ($1, $2, $3, $4, 'complete', $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING created_at, updated_at`,
		s.ID, s.StudentID, s.InstrumentID, s.SchoolID, answers,
		s.LastQuestionIndex, s.TotalScore, scores, buckets,
		s.PrimarySkillArea, s.SecondarySkillArea, s.AssignedBucket,
		s.TotalInactivityTime, s.TimeTaken, mood, s.ConsentGiven,
		s.MobileNumber, s.Email, s.SubmittedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateComplete
		}
		return err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM submissions WHERE student_id = $1 AND instrument_id = $2 AND status = 'incomplete'`,
		s.StudentID, s.InstrumentID,
	); err != nil {
		return fmt.Errorf("delete incomplete: %w", err)
	}

	return tx.Commit(ctx)
}

// ListComplete retrieves completed submissions joined with student grouping
// attributes, oldest first.
func (r *SubmissionRepository) ListComplete(ctx context.Context, f model.SubmissionFilter) ([]model.SubmissionRecord, error) {
	var (
		conds = []string{"sub.status = 'complete'"}
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", placeholder(len(args))))
	}

	if f.InstrumentID != nil {
		add("sub.instrument_id = ?", *f.InstrumentID)
	}
	if f.SchoolID > 0 {
		add("sub.school_id = ?", f.SchoolID)
	}
	if f.ClassLabel != "" {
		add("st.class_label = ?", f.ClassLabel)
	}
	if f.ClassSection != "" {
		add("st.class_section = ?", f.ClassSection)
	}
	if f.Bucket != "" {
		add("sub.assigned_bucket = ?", f.Bucket)
	}
	if f.From != nil {
		add("sub.submitted_at >= ?", *f.From)
	}
	if until := f.Until(); until != nil {
		add("sub.submitted_at < ?", *until)
	}

	rows, err := r.pool.Query(ctx,
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
			rec  model.SubmissionRecord
			docs submissionDocs
		)
		dest := append(docs.dest(&rec.Submission), &rec.StudentName, &rec.ClassLabel, &rec.ClassSection)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := docs.decode(&rec.Submission); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListByStudent retrieves a student's submissions, newest first, with the
// total count.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE student_id = $1`, studentID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions sub
		 WHERE sub.student_id = $1
		 ORDER BY sub.updated_at DESC
		 LIMIT $2 OFFSET $3`,
		studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		var (
			s    model.Submission
			docs submissionDocs
		)
		if err := rows.Scan(docs.dest(&s)...); err != nil {
			return nil, 0, err
		}
		if err := docs.decode(&s); err != nil {
			return nil, 0, err
		}
		subs = append(subs, s)
	}
	return subs, total, rows.Err()
}

// CountByInstrument returns how many submissions reference an instrument.
func (r *SubmissionRepository) CountByInstrument(ctx context.Context, instrumentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE instrument_id = $1`, instrumentID,
	).Scan(&n)
	return n, err
}
