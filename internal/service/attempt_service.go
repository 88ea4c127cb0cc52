package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/scoring"
	"github.com/stemsi/wellcheck-backend/internal/session"
)

// AttemptService runs the begin/save/submit lifecycle of an attempt.
type AttemptService struct {
	instruments InstrumentCatalog
	students    StudentDirectory
	submissions SubmissionStore
	now         func() time.Time
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	instruments InstrumentCatalog,
	students StudentDirectory,
	submissions SubmissionStore,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		instruments: instruments,
		students:    students,
		submissions: submissions,
		now:         time.Now,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Attempt is everything needed to host a session for one student.
type Attempt struct {
	Student    *model.Student
	Instrument *model.Instrument
	// Resume is the incomplete submission to continue from, if any.
	Resume *model.Submission
}

// Prepare checks eligibility and loads the instrument and any incomplete
// submission.
func (s *AttemptService) Prepare(ctx context.Context, studentID int, instrumentID uuid.UUID) (*Attempt, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if !student.IsAssigned(instrumentID) {
		return nil, ErrNotAssigned
	}

	inst, err := s.instruments.GetByID(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	if !inst.IsActive {
		return nil, ErrInstrumentInactive
	}

	if _, err := s.submissions.GetByStatus(ctx, studentID, instrumentID, model.SubmissionStatusComplete); err == nil {
		return nil, ErrAlreadyCompleted
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("check completion: %w", err)
	}

	resume, err := s.submissions.GetByStatus(ctx, studentID, instrumentID, model.SubmissionStatusIncomplete)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("get incomplete: %w", err)
		}
		resume = nil
	}

	return &Attempt{Student: student, Instrument: inst, Resume: resume}, nil
}

// BeginOrResume returns the student payload and, when an incomplete
// submission exists, the position to resume from.
func (s *AttemptService) BeginOrResume(ctx context.Context, studentID int, instrumentID uuid.UUID) (*model.AttemptPayload, error) {
	att, err := s.Prepare(ctx, studentID, instrumentID)
	if err != nil {
		return nil, err
	}

	view, err := s.instruments.GetPayload(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	payload := &model.AttemptPayload{Instrument: view}
	if r := att.Resume; r != nil {
		payload.Resume = &model.ResumeState{
			SubmissionID:           r.ID,
			LastQuestionIndex:      r.LastQuestionIndex,
			Answers:                r.Answers,
			TotalInactivitySeconds: r.TotalInactivityTime,
			ElapsedSeconds:         r.TimeTaken,
		}
	}
	return payload, nil
}

// Lobby lists the student's assigned active instruments with their status.
func (s *AttemptService) Lobby(ctx context.Context, studentID int) ([]model.InstrumentSummary, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}

	lobby := make([]model.InstrumentSummary, 0, len(student.AssignedInstruments))
	for _, id := range student.AssignedInstruments {
		inst, err := s.instruments.GetByID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("instrument_id", id.String()).Msg("Skipping unavailable instrument")
			continue
		}
		if !inst.IsActive {
			continue
		}

		status := model.SubmissionStatusPending
		for _, st := range []model.SubmissionStatus{model.SubmissionStatusComplete, model.SubmissionStatusIncomplete} {
			_, err := s.submissions.GetByStatus(ctx, studentID, id, st)
			if err == nil {
				status = st
				break
			}
			if !errors.Is(err, model.ErrNotFound) {
				return nil, fmt.Errorf("get submission status: %w", err)
			}
		}

		lobby = append(lobby, model.InstrumentSummary{
			InstrumentID: inst.ID,
			Title:        inst.Title,
			Description:  inst.Description,
			Status:       status,
		})
	}
	return lobby, nil
}

// SaveProgress stores raw answers as the incomplete submission. No scoring
// takes place.
func (s *AttemptService) SaveProgress(ctx context.Context, in model.ProgressInput) (*model.SubmissionRef, error) {
	att, err := s.Prepare(ctx, in.StudentID, in.InstrumentID)
	if err != nil {
		return nil, err
	}

	answers, err := rawAnswers(att.Instrument, in.Answers)
	if err != nil {
		return nil, err
	}
	if in.LastQuestionIndex >= len(att.Instrument.Questions) {
		return nil, fmt.Errorf("%w: last question index %d out of range", ErrInvalidAnswer, in.LastQuestionIndex)
	}

	sub := newSubmission(att, in.AttemptProgress)
	sub.Status = model.SubmissionStatusIncomplete
	sub.Answers = answers
	if att.Resume != nil {
		sub.ID = att.Resume.ID
	}

	if err := s.submissions.UpsertIncomplete(ctx, sub); err != nil {
		if errors.Is(err, model.ErrDuplicateComplete) {
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("save progress: %w", err)
	}

	s.log.Debug().
		Int("student_id", in.StudentID).
		Str("instrument_id", in.InstrumentID.String()).
		Int("answered", len(answers)).
		Msg("Progress saved")
	return &model.SubmissionRef{SubmissionID: sub.ID, Status: sub.Status}, nil
}

// SaveQueuedProgress is SaveProgress for a delayed retry. It returns
// ErrStaleProgress instead of replacing a stored incomplete attempt with
// more elapsed time than in.
func (s *AttemptService) SaveQueuedProgress(ctx context.Context, in model.ProgressInput) (*model.SubmissionRef, error) {
	cur, err := s.submissions.GetByStatus(ctx, in.StudentID, in.InstrumentID, model.SubmissionStatusIncomplete)
	switch {
	case err == nil && cur.TimeTaken > in.ElapsedSeconds:
		return nil, ErrStaleProgress
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("get incomplete: %w", err)
	}
	return s.SaveProgress(ctx, in)
}

// Submit scores the attempt and stores it as complete.
func (s *AttemptService) Submit(ctx context.Context, in model.ProgressInput) (*model.SubmissionRef, error) {
	att, err := s.Prepare(ctx, in.StudentID, in.InstrumentID)
	if err != nil {
		return nil, err
	}

	if len(in.Answers) > len(att.Instrument.Questions) {
		return nil, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidAnswer, len(in.Answers), len(att.Instrument.Questions))
	}
	res, err := scoring.Score(att.Instrument, in.Answers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}

	return s.complete(ctx, att, in.AttemptProgress, res)
}

func (s *AttemptService) complete(ctx context.Context, att *Attempt, progress model.AttemptProgress, res *scoring.Result) (*model.SubmissionRef, error) {
	now := s.now().UTC()
	sub := newSubmission(att, progress)
	sub.Status = model.SubmissionStatusComplete
	sub.Answers = res.Answers
	sub.TotalScore = res.TotalScore
	sub.SectionScores = res.SectionScores
	sub.SectionBuckets = res.SectionBuckets
	sub.PrimarySkillArea = res.PrimarySkillArea
	sub.SecondarySkillArea = res.SecondarySkillArea
	sub.AssignedBucket = res.AssignedBucket
	sub.SubmittedAt = &now

	if err := s.submissions.Complete(ctx, sub); err != nil {
		if errors.Is(err, model.ErrDuplicateComplete) {
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("complete submission: %w", err)
	}

	s.log.Info().
		Int("student_id", att.Student.ID).
		Str("instrument_id", att.Instrument.ID.String()).
		Int("total_score", sub.TotalScore).
		Str("bucket", sub.AssignedBucket).
		Msg("Attempt submitted")
	return &model.SubmissionRef{SubmissionID: sub.ID, Status: sub.Status}, nil
}

func newSubmission(att *Attempt, p model.AttemptProgress) *model.Submission {
	return &model.Submission{
		ID:                  uuid.New(),
		StudentID:           att.Student.ID,
		InstrumentID:        att.Instrument.ID,
		SchoolID:            att.Student.SchoolID,
		LastQuestionIndex:   p.LastQuestionIndex,
		TotalInactivityTime: p.TotalInactivitySeconds,
		TimeTaken:           p.ElapsedSeconds,
		MoodCheck:           p.MoodCheck,
		ConsentGiven:        p.ConsentGiven,
		MobileNumber:        p.MobileNumber,
		Email:               p.Email,
		SectionScores:       map[string]int{},
		SectionBuckets:      map[string]string{},
	}
}

// rawAnswers converts slots into stored answers with the section filled in
// and marks left at zero.
func rawAnswers(inst *model.Instrument, slots []*model.AnswerSlot) ([]model.ProcessedAnswer, error) {
	if len(slots) > len(inst.Questions) {
		return nil, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidAnswer, len(slots), len(inst.Questions))
	}

	answers := make([]model.ProcessedAnswer, 0, len(slots))
	for idx, slot := range slots {
		if slot == nil {
			continue
		}
		q := inst.Questions[idx]
		if slot.SelectedOption < 0 || slot.SelectedOption >= len(q.Options) {
			return nil, fmt.Errorf("%w: question %d option %d", ErrInvalidAnswer, idx, slot.SelectedOption)
		}
		answers = append(answers, model.ProcessedAnswer{
			QuestionIndex:    idx,
			Section:          q.Section,
			SelectedOption:   slot.SelectedOption,
			TimeTakenSeconds: slot.TimeTakenSeconds,
		})
	}
	return answers, nil
}

// AttemptPersister adapts the service to a live session for one student.
type AttemptPersister struct {
	svc          *AttemptService
	studentID    int
	instrumentID uuid.UUID

	mu     sync.Mutex
	extras model.AttemptProgress
}

// Persister returns a session.Persister bound to one student and instrument.
func (s *AttemptService) Persister(studentID int, instrumentID uuid.UUID) *AttemptPersister {
	return &AttemptPersister{svc: s, studentID: studentID, instrumentID: instrumentID}
}

// SetDetails records the mood check, consent and contact fields sent along
// with the final answer.
func (p *AttemptPersister) SetDetails(d model.AttemptProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extras = d
}

func (p *AttemptPersister) progress(pr session.Progress) model.AttemptProgress {
	p.mu.Lock()
	out := p.extras
	p.mu.Unlock()

	out.Answers = pr.Answers
	out.LastQuestionIndex = pr.LastQuestionIndex
	out.TotalInactivitySeconds = pr.TotalInactivitySeconds
	out.ElapsedSeconds = pr.ElapsedSeconds
	return out
}

// Input builds the save request for pr, details included.
func (p *AttemptPersister) Input(pr session.Progress) model.ProgressInput {
	return model.ProgressInput{
		StudentID:       p.studentID,
		InstrumentID:    p.instrumentID,
		AttemptProgress: p.progress(pr),
	}
}

// SaveProgress implements session.Persister.
func (p *AttemptPersister) SaveProgress(ctx context.Context, pr session.Progress) error {
	_, err := p.svc.SaveProgress(ctx, p.Input(pr))
	return err
}

// Submit implements session.Persister.
func (p *AttemptPersister) Submit(ctx context.Context, c session.Completion) error {
	att, err := p.svc.Prepare(ctx, p.studentID, p.instrumentID)
	if err != nil {
		return err
	}
	_, err = p.svc.complete(ctx, att, p.progress(c.Progress), c.Result)
	return err
}
