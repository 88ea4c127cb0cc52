package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/localstore"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stemsi/wellcheck-backend/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *localstore.Store
	attempts *service.AttemptService
	inst     *model.Instrument
	student  *model.Student
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	inst := catalog.Default()
	require.NoError(t, store.Instruments().Create(ctx, inst))

	student := &model.Student{AccessID: "S-1", Name: "Ravi", ClassLabel: "Grade 8", SchoolID: 3}
	require.NoError(t, store.Students().Create(ctx, student))
	require.NoError(t, store.Students().AssignInstrument(ctx, student.ID, inst.ID))

	log := zerolog.Nop()
	instruments := service.NewInstrumentService(store.Instruments(), store.Submissions(), nil, 0, log)
	return &fixture{
		store:    store,
		attempts: service.NewAttemptService(instruments, store.Students(), store.Submissions(), log),
		inst:     inst,
		student:  student,
	}
}

func slots(n, option int) []*model.AnswerSlot {
	out := make([]*model.AnswerSlot, n)
	for i := range out {
		out[i] = &model.AnswerSlot{SelectedOption: option, TimeTakenSeconds: 1}
	}
	return out
}

func TestPrepareEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unassigned := catalog.Default()
	require.NoError(t, f.store.Instruments().Create(ctx, unassigned))

	inactive := catalog.Default()
	inactive.IsActive = false
	require.NoError(t, f.store.Instruments().Create(ctx, inactive))
	require.NoError(t, f.store.Students().AssignInstrument(ctx, f.student.ID, inactive.ID))

	_, err := f.attempts.Prepare(ctx, f.student.ID, unassigned.ID)
	assert.ErrorIs(t, err, service.ErrNotAssigned)

	_, err = f.attempts.Prepare(ctx, f.student.ID, inactive.ID)
	assert.ErrorIs(t, err, service.ErrInstrumentInactive)

	_, err = f.attempts.Prepare(ctx, 404, f.inst.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	att, err := f.attempts.Prepare(ctx, f.student.ID, f.inst.ID)
	require.NoError(t, err)
	assert.Nil(t, att.Resume)

	_, err = f.attempts.Submit(ctx, model.ProgressInput{
		StudentID:       f.student.ID,
		InstrumentID:    f.inst.ID,
		AttemptProgress: model.AttemptProgress{Answers: slots(32, 1)},
	})
	require.NoError(t, err)

	_, err = f.attempts.Prepare(ctx, f.student.ID, f.inst.ID)
	assert.ErrorIs(t, err, service.ErrAlreadyCompleted)
}

func TestResumeAnswerOneMoreAndSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.attempts.SaveProgress(ctx, model.ProgressInput{
		StudentID:    f.student.ID,
		InstrumentID: f.inst.ID,
		AttemptProgress: model.AttemptProgress{
			Answers:           slots(12, 2),
			LastQuestionIndex: 12,
			ElapsedSeconds:    90,
		},
	})
	require.NoError(t, err)

	att, err := f.attempts.Prepare(ctx, f.student.ID, f.inst.ID)
	require.NoError(t, err)
	require.NotNil(t, att.Resume)

	sess := session.New(att.Instrument, f.attempts.Persister(f.student.ID, f.inst.ID))
	require.NoError(t, sess.Start(att.Resume))
	assert.Equal(t, 12, sess.Cursor())

	require.NoError(t, sess.RecordAnswer(12, 0))
	require.NoError(t, sess.Submit(ctx))

	sub, err := f.store.Submissions().GetByStatus(ctx, f.student.ID, f.inst.ID, model.SubmissionStatusComplete)
	require.NoError(t, err)
	assert.Len(t, sub.Answers, 13)
	assert.GreaterOrEqual(t, sub.TimeTaken, 90)
	for _, a := range sub.Answers {
		assert.Positive(t, a.Marks)
	}

	_, err = f.store.Submissions().GetByStatus(ctx, f.student.ID, f.inst.ID, model.SubmissionStatusIncomplete)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPersisterCarriesDetailsIntoSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.attempts.Persister(f.student.ID, f.inst.ID)
	sess := session.New(f.inst, p)
	require.NoError(t, sess.Start(nil))

	for i := 0; i < len(f.inst.Questions)-1; i++ {
		require.NoError(t, sess.RecordAnswer(i, 1))
		_, err := sess.Advance(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, sess.RecordAnswer(31, 1))

	p.SetDetails(model.AttemptProgress{
		ConsentGiven: true,
		MobileNumber: "+6281234567",
		MoodCheck:    &model.MoodCheck{Mood: 2, Energy: "exhausted"},
	})
	sig, err := sess.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.SignalSubmitted, sig)

	sub, err := f.store.Submissions().GetByStatus(ctx, f.student.ID, f.inst.ID, model.SubmissionStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, "+6281234567", sub.MobileNumber)
	require.NotNil(t, sub.MoodCheck)
	assert.Equal(t, "exhausted", sub.MoodCheck.Energy)
	assert.Equal(t, 3, sub.SchoolID)

	in := p.Input(sess.Snapshot())
	assert.Equal(t, f.student.ID, in.StudentID)
	assert.True(t, in.ConsentGiven)
	assert.Len(t, in.Answers, 32)
}

func TestSubmitRejectsBadAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		answers []*model.AnswerSlot
	}{
		{"too many", slots(33, 0)},
		{"option out of range", []*model.AnswerSlot{{SelectedOption: 4}}},
		{"negative option", []*model.AnswerSlot{{SelectedOption: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.attempts.Submit(ctx, model.ProgressInput{
				StudentID:       f.student.ID,
				InstrumentID:    f.inst.ID,
				AttemptProgress: model.AttemptProgress{Answers: tt.answers},
			})
			assert.ErrorIs(t, err, service.ErrInvalidAnswer)
		})
	}
}

func TestStudentHistoryScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.attempts.SaveProgress(ctx, model.ProgressInput{
		StudentID:       f.student.ID,
		InstrumentID:    f.inst.ID,
		AttemptProgress: model.AttemptProgress{Answers: slots(2, 0)},
	})
	require.NoError(t, err)

	svc := service.NewAnalyticsService(f.store.Instruments(), f.store.Students(), f.store.Submissions(), nil, zerolog.Nop())

	subs, page, err := svc.StudentHistory(ctx, f.student.ID, 3, 0, 0)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PerPage)
	assert.Equal(t, 1, page.TotalPages)

	_, _, err = svc.StudentHistory(ctx, f.student.ID, 4, 1, 20)
	assert.ErrorIs(t, err, service.ErrOutOfScope)
}

func TestSessionLocksInProcess(t *testing.T) {
	locks := service.NewSessionLocks(nil, time.Minute)
	ctx := context.Background()
	instrumentID := uuid.New()

	first, err := locks.Acquire(ctx, instrumentID, 1)
	require.NoError(t, err)

	_, err = locks.Acquire(ctx, instrumentID, 1)
	assert.ErrorIs(t, err, service.ErrSessionBusy)

	other, err := locks.Acquire(ctx, instrumentID, 2)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Refresh(ctx))
	require.NoError(t, first.Release(ctx))

	again, err := locks.Acquire(ctx, instrumentID, 1)
	require.NoError(t, err)

	// A stale holder must not free a lock that was taken again.
	require.NoError(t, first.Release(ctx))
	_, err = locks.Acquire(ctx, instrumentID, 1)
	assert.ErrorIs(t, err, service.ErrSessionBusy)
	require.NoError(t, again.Release(ctx))
}

func TestAnalyticsAcrossInstrumentsKeepsBuckets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := catalog.Default()
	require.NoError(t, f.store.Instruments().Create(ctx, second))
	require.NoError(t, f.store.Students().AssignInstrument(ctx, f.student.ID, second.ID))

	for _, id := range []uuid.UUID{f.inst.ID, second.ID} {
		_, err := f.attempts.Submit(ctx, model.ProgressInput{
			StudentID:       f.student.ID,
			InstrumentID:    id,
			AttemptProgress: model.AttemptProgress{Answers: slots(32, 0)},
		})
		require.NoError(t, err)
	}

	svc := service.NewAnalyticsService(f.store.Instruments(), f.store.Students(), f.store.Submissions(), nil, zerolog.Nop())
	rep, err := svc.Compute(ctx, model.SubmissionFilter{})
	require.NoError(t, err)

	require.Equal(t, 2, rep.TotalSubmissions)
	for _, key := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, map[string]int{"Skill Stable": 2}, rep.SectionDistributions[key], "section %s", key)
	}
}

// cachedCatalog serves a fixed payload, standing in for a warm cache entry.
type cachedCatalog struct {
	*service.InstrumentService
	payload *model.InstrumentPayload
}

func (c cachedCatalog) GetPayload(context.Context, uuid.UUID) (*model.InstrumentPayload, error) {
	return c.payload, nil
}

func TestBeginOrResumeServesCachedPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	instruments := service.NewInstrumentService(f.store.Instruments(), f.store.Submissions(), nil, 0, zerolog.Nop())
	cached := f.inst.ForStudent()
	cached.Title = "Cached Title"
	attempts := service.NewAttemptService(cachedCatalog{instruments, cached}, f.store.Students(), f.store.Submissions(), zerolog.Nop())

	payload, err := attempts.BeginOrResume(ctx, f.student.ID, f.inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cached Title", payload.Instrument.Title)
	assert.Nil(t, payload.Resume)

	// Eligibility is still checked before the payload is served.
	_, err = attempts.BeginOrResume(ctx, f.student.ID, uuid.New())
	assert.ErrorIs(t, err, service.ErrNotAssigned)
}

func TestSaveQueuedProgressKeepsNewerSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	progress := func(answered, elapsed int) model.ProgressInput {
		return model.ProgressInput{
			StudentID:    f.student.ID,
			InstrumentID: f.inst.ID,
			AttemptProgress: model.AttemptProgress{
				Answers:           slots(answered, 1),
				LastQuestionIndex: answered,
				ElapsedSeconds:    elapsed,
			},
		}
	}

	// Nothing stored yet: the queued entry is written.
	_, err := f.attempts.SaveQueuedProgress(ctx, progress(4, 40))
	require.NoError(t, err)

	// The student resumed and saved further along.
	_, err = f.attempts.SaveProgress(ctx, progress(9, 95))
	require.NoError(t, err)

	_, err = f.attempts.SaveQueuedProgress(ctx, progress(5, 50))
	assert.ErrorIs(t, err, service.ErrStaleProgress)

	stored, err := f.store.Submissions().GetByStatus(ctx, f.student.ID, f.inst.ID, model.SubmissionStatusIncomplete)
	require.NoError(t, err)
	assert.Equal(t, 95, stored.TimeTaken)
	assert.Len(t, stored.Answers, 9)

	_, err = f.attempts.SaveQueuedProgress(ctx, progress(10, 95))
	require.NoError(t, err)
}
