// Package session drives a single student through an instrument one
// question at a time.
//
// A Session never reads a real clock or waits on its own: the host calls
// Tick once per second and forwards user input, and time is read through an
// injectable clock. All methods are safe for concurrent use, which lets a
// host run its ticker and its input reader on separate goroutines.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/scoring"
)

// State is the lifecycle position of a session.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	// StateAlerted is a sub-state of StateInProgress: input keeps working.
	StateAlerted   State = "alerted"
	StatePaused    State = "paused_incomplete"
	StateSubmitted State = "submitted"
)

// Signal is a notification the host should relay to the student.
type Signal string

const (
	SignalNone            Signal = ""
	SignalAlert           Signal = "alert"
	SignalAlertCleared    Signal = "alert_cleared"
	SignalSectionBoundary Signal = "section"
	SignalPaused          Signal = "paused"
	SignalSubmitted       Signal = "submitted"
)

var (
	ErrUnanswered         = errors.New("current question has not been answered")
	ErrNotCurrentQuestion = errors.New("only the current question can be answered")
	ErrInvalidOption      = errors.New("selected option out of range")
	ErrAlreadyCompleted   = errors.New("attempt already submitted")
	ErrAlreadyStarted     = errors.New("session already started")
	ErrNotActive          = errors.New("session is not in progress")
)

// DefaultActivityThrottle is the window in which repeated activity events
// that would change nothing are ignored.
const DefaultActivityThrottle = 500 * time.Millisecond

// Progress is the persistable state of an attempt.
type Progress struct {
	Answers                []*model.AnswerSlot
	LastQuestionIndex      int
	TotalInactivitySeconds int
	ElapsedSeconds         int
}

// Completion is handed to the persister on submit.
type Completion struct {
	Progress
	Result *scoring.Result
}

// Persister stores progress and completed attempts. Implementations return
// ErrAlreadyCompleted (or an error wrapping it) when a completed record
// already exists.
type Persister interface {
	SaveProgress(ctx context.Context, p Progress) error
	Submit(ctx context.Context, c Completion) error
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithActivityThrottle sets the activity throttle window. Zero disables it.
func WithActivityThrottle(d time.Duration) Option {
	return func(s *Session) { s.throttle = d }
}

// Session is one student's attempt at one instrument.
type Session struct {
	mu        sync.Mutex
	inst      *model.Instrument
	persister Persister
	now       func() time.Time
	throttle  time.Duration

	state  State
	cursor int
	slots  []*model.AnswerSlot

	inactivitySinceLastAction   int
	cumulativeInactivitySeconds int
	pauseFired                  bool

	priorElapsed      int
	startedAt         time.Time
	questionStartedAt time.Time
	lastActivityAt    time.Time
}

// New creates a session in StateNotStarted.
func New(inst *model.Instrument, persister Persister, opts ...Option) *Session {
	s := &Session{
		inst:      inst,
		persister: persister,
		now:       time.Now,
		throttle:  DefaultActivityThrottle,
		state:     StateNotStarted,
		slots:     make([]*model.AnswerSlot, len(inst.Questions)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the attempt. A non-nil resume restores answers, cursor and
// elapsed time from an incomplete submission. Starting a paused session
// with a nil resume continues from memory.
func (s *Session) Start(resume *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubmitted:
		return ErrAlreadyCompleted
	case StateInProgress, StateAlerted:
		return ErrAlreadyStarted
	}

	if resume != nil {
		if resume.Status == model.SubmissionStatusComplete {
			s.state = StateSubmitted
			return ErrAlreadyCompleted
		}
		n := len(s.inst.Questions)
		s.slots = resume.Slots(n)
		s.cursor = clamp(resume.LastQuestionIndex, 0, n-1)
		s.priorElapsed = resume.TimeTaken
	}

	now := s.now()
	s.state = StateInProgress
	s.pauseFired = false
	s.startedAt = now
	s.questionStartedAt = now
	s.resetInactivity()
	return nil
}

// RecordAnswer stores the selected option for the current question.
func (s *Session) RecordAnswer(index, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return s.inactiveErr()
	}
	if index != s.cursor {
		return ErrNotCurrentQuestion
	}
	if option < 0 || option >= len(s.inst.Questions[index].Options) {
		return ErrInvalidOption
	}

	s.slots[index] = &model.AnswerSlot{
		SelectedOption:   option,
		TimeTakenSeconds: seconds(s.now().Sub(s.questionStartedAt)),
	}
	s.resetInactivity()
	return nil
}

// Advance moves to the next question, or submits on the last one.
func (s *Session) Advance(ctx context.Context) (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return SignalNone, s.inactiveErr()
	}
	if s.slots[s.cursor] == nil {
		return SignalNone, ErrUnanswered
	}

	if s.cursor == len(s.inst.Questions)-1 {
		if err := s.submit(ctx); err != nil {
			return SignalNone, err
		}
		return SignalSubmitted, nil
	}

	s.cursor++
	s.questionStartedAt = s.now()
	if size := s.inst.SectionSize(); size > 0 && s.cursor%size == 0 {
		return SignalSectionBoundary, nil
	}
	return SignalNone, nil
}

// GoBack moves to the previous question, keeping recorded answers.
func (s *Session) GoBack() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return s.inactiveErr()
	}
	if s.cursor > 0 {
		s.cursor--
	}
	s.questionStartedAt = s.now()
	return nil
}

// Tick advances both inactivity counters by elapsed seconds (minimum 1).
// Once the cumulative counter reaches the end threshold the session pauses
// exactly once and performs a forced save. A failed forced save is returned
// together with SignalPaused; the session stays paused and SaveProgress can
// be retried.
func (s *Session) Tick(ctx context.Context, elapsed int) (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return SignalNone, nil
	}
	if elapsed < 1 {
		elapsed = 1
	}

	s.inactivitySinceLastAction += elapsed
	s.cumulativeInactivitySeconds += elapsed

	if s.cumulativeInactivitySeconds >= s.inst.InactivityEndSeconds && !s.pauseFired {
		s.pauseFired = true
		s.priorElapsed = s.elapsed()
		s.state = StatePaused
		if err := s.persister.SaveProgress(ctx, s.progress()); err != nil {
			return SignalPaused, fmt.Errorf("forced save: %w", err)
		}
		return SignalPaused, nil
	}

	if s.state == StateInProgress && s.inactivitySinceLastAction >= s.inst.InactivityAlertSeconds {
		s.state = StateAlerted
		return SignalAlert, nil
	}
	return SignalNone, nil
}

// OnUserActivity records an input event from the student.
func (s *Session) OnUserActivity() Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return SignalNone
	}

	now := s.now()
	idle := s.inactivitySinceLastAction == 0 && s.cumulativeInactivitySeconds == 0 && s.state != StateAlerted
	if idle && s.throttle > 0 && now.Sub(s.lastActivityAt) < s.throttle {
		return SignalNone
	}
	s.lastActivityAt = now
	return s.resetInactivity()
}

// SaveProgress persists the current answers as an incomplete submission.
func (s *Session) SaveProgress(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNotStarted:
		return ErrNotActive
	case StateSubmitted:
		return ErrAlreadyCompleted
	}
	if err := s.persister.SaveProgress(ctx, s.progress()); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Submit scores and persists the attempt. Unanswered questions are
// excluded from scoring.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active() {
		return s.inactiveErr()
	}
	return s.submit(ctx)
}

func (s *Session) submit(ctx context.Context) error {
	res, err := scoring.Score(s.inst, s.slots)
	if err != nil {
		return fmt.Errorf("score attempt: %w", err)
	}

	p := s.progress()
	if err := s.persister.Submit(ctx, Completion{Progress: p, Result: res}); err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			s.state = StateSubmitted
		}
		return fmt.Errorf("submit attempt: %w", err)
	}

	s.priorElapsed = p.ElapsedSeconds
	s.state = StateSubmitted
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the index of the current question.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Inactivity returns the seconds since the last action and the cumulative
// inactivity.
func (s *Session) Inactivity() (sinceLastAction, cumulative int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inactivitySinceLastAction, s.cumulativeInactivitySeconds
}

// Snapshot returns a copy of the persistable state.
func (s *Session) Snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress()
}

// resetInactivity is the only place either inactivity counter is cleared.
func (s *Session) resetInactivity() Signal {
	s.inactivitySinceLastAction = 0
	s.cumulativeInactivitySeconds = 0
	if s.state == StateAlerted {
		s.state = StateInProgress
		return SignalAlertCleared
	}
	return SignalNone
}

func (s *Session) active() bool {
	return s.state == StateInProgress || s.state == StateAlerted
}

func (s *Session) inactiveErr() error {
	if s.state == StateSubmitted {
		return ErrAlreadyCompleted
	}
	return ErrNotActive
}

func (s *Session) elapsed() int {
	if !s.active() {
		return s.priorElapsed
	}
	return s.priorElapsed + seconds(s.now().Sub(s.startedAt))
}

func (s *Session) progress() Progress {
	answers := make([]*model.AnswerSlot, len(s.slots))
	for i, slot := range s.slots {
		if slot != nil {
			cp := *slot
			answers[i] = &cp
		}
	}
	return Progress{
		Answers:                answers,
		LastQuestionIndex:      s.cursor,
		TotalInactivitySeconds: s.cumulativeInactivitySeconds,
		ElapsedSeconds:         s.elapsed(),
	}
}

func seconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(math.Round(d.Seconds()))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
