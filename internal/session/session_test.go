package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakePersister struct {
	saves     []Progress
	submits   []Completion
	saveErr   error
	submitErr error
}

func (p *fakePersister) SaveProgress(_ context.Context, pr Progress) error {
	p.saves = append(p.saves, pr)
	return p.saveErr
}

func (p *fakePersister) Submit(_ context.Context, c Completion) error {
	if p.submitErr != nil {
		return p.submitErr
	}
	p.submits = append(p.submits, c)
	return nil
}

func newTestSession(t *testing.T) (*Session, *fakePersister, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	p := &fakePersister{}
	s := New(catalog.Default(), p, WithClock(clock.Now))
	return s, p, clock
}

func answerAndAdvance(t *testing.T, s *Session, option int) Signal {
	t.Helper()
	require.NoError(t, s.RecordAnswer(s.Cursor(), option))
	sig, err := s.Advance(context.Background())
	require.NoError(t, err)
	return sig
}

func TestStartFresh(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))

	assert.Equal(t, StateInProgress, s.State())
	assert.Equal(t, 0, s.Cursor())
	assert.ErrorIs(t, s.Start(nil), ErrAlreadyStarted)
}

func TestRecordAnswerRules(t *testing.T) {
	s, _, clock := newTestSession(t)

	assert.ErrorIs(t, s.RecordAnswer(0, 0), ErrNotActive)
	require.NoError(t, s.Start(nil))

	assert.ErrorIs(t, s.RecordAnswer(1, 0), ErrNotCurrentQuestion)
	assert.ErrorIs(t, s.RecordAnswer(0, 4), ErrInvalidOption)
	assert.ErrorIs(t, s.RecordAnswer(0, -1), ErrInvalidOption)

	clock.Advance(7 * time.Second)
	require.NoError(t, s.RecordAnswer(0, 1))
	clock.Advance(2 * time.Second)
	require.NoError(t, s.RecordAnswer(0, 3))

	snap := s.Snapshot()
	require.NotNil(t, snap.Answers[0])
	assert.Equal(t, 3, snap.Answers[0].SelectedOption)
	assert.Equal(t, 9, snap.Answers[0].TimeTakenSeconds)
}

func TestAdvanceRequiresAnswer(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))

	_, err := s.Advance(context.Background())
	assert.ErrorIs(t, err, ErrUnanswered)
	assert.Equal(t, 0, s.Cursor())
}

func TestSectionBoundarySignal(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))

	for i := 0; i < 7; i++ {
		assert.Equal(t, SignalNone, answerAndAdvance(t, s, 0), "question %d", i)
	}
	assert.Equal(t, SignalSectionBoundary, answerAndAdvance(t, s, 0))
	assert.Equal(t, 8, s.Cursor())
}

func TestGoBackKeepsAnswers(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))

	answerAndAdvance(t, s, 2)
	require.NoError(t, s.GoBack())
	assert.Equal(t, 0, s.Cursor())
	require.NoError(t, s.GoBack())
	assert.Equal(t, 0, s.Cursor())

	snap := s.Snapshot()
	require.NotNil(t, snap.Answers[0])
	assert.Equal(t, 2, snap.Answers[0].SelectedOption)
}

func TestSubmitOnLastQuestion(t *testing.T) {
	s, p, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))

	var last Signal
	for i := 0; i < 32; i++ {
		last = answerAndAdvance(t, s, 1)
	}

	assert.Equal(t, SignalSubmitted, last)
	assert.Equal(t, StateSubmitted, s.State())
	require.Len(t, p.submits, 1)
	// option 1 scores 2 on regular and 3 on reversed questions
	assert.Equal(t, 72, p.submits[0].Result.TotalScore)
	assert.ErrorIs(t, s.Start(nil), ErrAlreadyCompleted)
	assert.ErrorIs(t, s.RecordAnswer(31, 0), ErrAlreadyCompleted)
	assert.ErrorIs(t, s.SaveProgress(context.Background()), ErrAlreadyCompleted)
}

func TestSubmitFailureLeavesSessionActive(t *testing.T) {
	s, p, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))
	p.submitErr = errors.New("db down")

	require.NoError(t, s.RecordAnswer(0, 0))
	err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateInProgress, s.State())

	p.submitErr = nil
	require.NoError(t, s.Submit(context.Background()))
	assert.Equal(t, StateSubmitted, s.State())
	require.Len(t, p.submits, 1)
	assert.Len(t, p.submits[0].Result.Answers, 1)
}

func TestSubmitDuplicateBecomesTerminal(t *testing.T) {
	s, p, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))
	p.submitErr = errors.Join(errors.New("store"), ErrAlreadyCompleted)

	err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, StateSubmitted, s.State())
}

func TestResumeFromIncomplete(t *testing.T) {
	s, p, _ := newTestSession(t)

	resume := &model.Submission{
		ID:                uuid.New(),
		Status:            model.SubmissionStatusIncomplete,
		LastQuestionIndex: 12,
		TimeTaken:         90,
	}
	for i := 0; i < 12; i++ {
		resume.Answers = append(resume.Answers, model.ProcessedAnswer{QuestionIndex: i, SelectedOption: 0})
	}
	require.NoError(t, s.Start(resume))
	assert.Equal(t, 12, s.Cursor())

	require.NoError(t, s.RecordAnswer(12, 0))
	require.NoError(t, s.Submit(context.Background()))

	require.Len(t, p.submits, 1)
	res := p.submits[0].Result
	assert.Len(t, res.Answers, 13)
	assert.Equal(t, 90, p.submits[0].ElapsedSeconds)
}

func TestResumeRejectsComplete(t *testing.T) {
	s, _, _ := newTestSession(t)
	err := s.Start(&model.Submission{Status: model.SubmissionStatusComplete})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, StateSubmitted, s.State())
}

func TestTickAlertAndClear(t *testing.T) {
	s, _, clock := newTestSession(t)
	require.NoError(t, s.Start(nil))
	ctx := context.Background()

	for i := 1; i < 40; i++ {
		sig, err := s.Tick(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, SignalNone, sig)
	}
	sig, err := s.Tick(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SignalAlert, sig)
	assert.Equal(t, StateAlerted, s.State())

	// no re-signal while alerted
	sig, err = s.Tick(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SignalNone, sig)

	// answering still works while alerted
	require.NoError(t, s.RecordAnswer(0, 0))
	assert.Equal(t, StateInProgress, s.State())

	for i := 0; i < 40; i++ {
		_, err = s.Tick(ctx, 1)
		require.NoError(t, err)
	}
	require.Equal(t, StateAlerted, s.State())
	clock.Advance(time.Second)
	assert.Equal(t, SignalAlertCleared, s.OnUserActivity())
	since, cumulative := s.Inactivity()
	assert.Zero(t, since)
	assert.Zero(t, cumulative)
}

func TestTickPausesExactlyOnce(t *testing.T) {
	s, p, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))
	ctx := context.Background()

	var paused int
	for i := 0; i < 120; i++ {
		sig, err := s.Tick(ctx, 1)
		require.NoError(t, err)
		if sig == SignalPaused {
			paused++
		}
	}
	assert.Equal(t, 1, paused)
	assert.Equal(t, StatePaused, s.State())
	require.Len(t, p.saves, 1)
	assert.Equal(t, 120, p.saves[0].TotalInactivitySeconds)

	sig, err := s.Tick(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SignalNone, sig)
	assert.Len(t, p.saves, 1)
}

func TestTickLargeStepPausesOnce(t *testing.T) {
	s, p, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))

	sig, err := s.Tick(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, SignalPaused, sig)
	assert.Len(t, p.saves, 1)
}

func TestForcedSaveFailureIsReported(t *testing.T) {
	s, p, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))
	p.saveErr = errors.New("db down")

	sig, err := s.Tick(context.Background(), 120)
	assert.Equal(t, SignalPaused, sig)
	require.Error(t, err)
	assert.Equal(t, StatePaused, s.State())

	p.saveErr = nil
	require.NoError(t, s.SaveProgress(context.Background()))
	assert.Len(t, p.saves, 2)
}

func TestPausedSessionResumesInMemory(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Start(nil))
	answerAndAdvance(t, s, 0)

	_, err := s.Tick(context.Background(), 120)
	require.NoError(t, err)
	require.Equal(t, StatePaused, s.State())

	require.NoError(t, s.Start(nil))
	assert.Equal(t, StateInProgress, s.State())
	assert.Equal(t, 1, s.Cursor())
	_, cumulative := s.Inactivity()
	assert.Zero(t, cumulative)
}

func TestActivityThrottleNeverSuppressesReset(t *testing.T) {
	s, _, clock := newTestSession(t)
	require.NoError(t, s.Start(nil))
	ctx := context.Background()

	s.OnUserActivity()
	_, err := s.Tick(ctx, 1)
	require.NoError(t, err)

	// inside the throttle window, but the counters are dirty
	clock.Advance(100 * time.Millisecond)
	s.OnUserActivity()
	since, cumulative := s.Inactivity()
	assert.Zero(t, since)
	assert.Zero(t, cumulative)
}

func TestElapsedTimeAccumulates(t *testing.T) {
	s, p, clock := newTestSession(t)
	require.NoError(t, s.Start(&model.Submission{Status: model.SubmissionStatusIncomplete, TimeTaken: 30}))

	clock.Advance(45 * time.Second)
	require.NoError(t, s.SaveProgress(context.Background()))
	require.Len(t, p.saves, 1)
	assert.Equal(t, 75, p.saves[0].ElapsedSeconds)
}
