package localstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed creates a default instrument and one student assigned to it.
func seed(t *testing.T, s *Store, schoolID int, class string) (*model.Instrument, *model.Student) {
	t.Helper()
	ctx := context.Background()

	inst := catalog.Default()
	require.NoError(t, s.Instruments().Create(ctx, inst))

	st := &model.Student{
		AccessID:   uuid.NewString()[:8],
		Name:       "Student " + class,
		ClassLabel: class,
		SchoolID:   schoolID,
	}
	require.NoError(t, s.Students().Create(ctx, st))
	require.NoError(t, s.Students().AssignInstrument(ctx, st.ID, inst.ID))
	return inst, st
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)

	var fk string
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, "1", fk)
}

func TestInstrumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Instruments()

	inst := catalog.Default()
	require.NoError(t, repo.Create(ctx, inst))
	assert.False(t, inst.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.Title, got.Title)
	assert.Len(t, got.Questions, 32)
	assert.Equal(t, inst.Sections, got.Sections)
	assert.Equal(t, inst.Buckets, got.Buckets)
	assert.True(t, got.IsActive)

	got.IsActive = false
	got.Title = "Renamed"
	require.NoError(t, repo.Update(ctx, got))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Renamed", all[0].Title)
}

func TestInstrumentNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Instruments().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = s.Instruments().Update(ctx, &model.Instrument{ID: uuid.New()})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStudentAssignments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inst, st := seed(t, s, 1, "8")

	// Assigning twice is a no-op.
	require.NoError(t, s.Students().AssignInstrument(ctx, st.ID, inst.ID))

	got, err := s.Students().GetByID(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{inst.ID}, got.AssignedInstruments)
	assert.True(t, got.IsAssigned(inst.ID))

	other := &model.Student{AccessID: "other", Name: "Other", SchoolID: 1}
	require.NoError(t, s.Students().Create(ctx, other))
	n, err := s.Students().AssignToSchool(ctx, 1, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	dup := &model.Student{AccessID: "other", Name: "Dup", SchoolID: 2}
	assert.ErrorIs(t, s.Students().Create(ctx, dup), ErrDuplicateAccessID)

	_, err = s.Students().GetByID(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpsertIncompleteOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inst, st := seed(t, s, 1, "8")
	repo := s.Submissions()

	first := &model.Submission{
		ID:                uuid.New(),
		StudentID:         st.ID,
		InstrumentID:      inst.ID,
		SchoolID:          1,
		Answers:           []model.ProcessedAnswer{{QuestionIndex: 0, Section: "A", SelectedOption: 1}},
		LastQuestionIndex: 1,
	}
	require.NoError(t, repo.UpsertIncomplete(ctx, first))

	second := &model.Submission{
		ID:                uuid.New(),
		StudentID:         st.ID,
		InstrumentID:      inst.ID,
		SchoolID:          1,
		Answers:           []model.ProcessedAnswer{{QuestionIndex: 0, Section: "A"}, {QuestionIndex: 1, Section: "A"}},
		LastQuestionIndex: 2,
		MoodCheck:         &model.MoodCheck{Mood: 4, Sleep: "decent"},
	}
	require.NoError(t, repo.UpsertIncomplete(ctx, second))
	assert.Equal(t, first.ID, second.ID, "upsert keeps the existing row")

	got, err := repo.GetByStatus(ctx, st.ID, inst.ID, model.SubmissionStatusIncomplete)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LastQuestionIndex)
	assert.Len(t, got.Answers, 2)
	require.NotNil(t, got.MoodCheck)
	assert.Equal(t, 4, got.MoodCheck.Mood)
	assert.Nil(t, got.SubmittedAt)

	n, err := repo.CountByInstrument(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCompleteReplacesIncomplete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inst, st := seed(t, s, 1, "8")
	repo := s.Submissions()

	require.NoError(t, repo.UpsertIncomplete(ctx, &model.Submission{
		ID: uuid.New(), StudentID: st.ID, InstrumentID: inst.ID, SchoolID: 1,
	}))

	now := time.Now()
	done := &model.Submission{
		ID:             uuid.New(),
		StudentID:      st.ID,
		InstrumentID:   inst.ID,
		SchoolID:       1,
		TotalScore:     80,
		SectionScores:  map[string]int{"A": 8, "B": 24, "C": 16, "D": 32},
		SectionBuckets: map[string]string{"A": "Unknown"},
		AssignedBucket: "Emerging",
		SubmittedAt:    &now,
	}
	require.NoError(t, repo.Complete(ctx, done))

	_, err := repo.GetByStatus(ctx, st.ID, inst.ID, model.SubmissionStatusIncomplete)
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := repo.GetByStatus(ctx, st.ID, inst.ID, model.SubmissionStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, 80, got.TotalScore)
	assert.Equal(t, 32, got.SectionScores["D"])
	require.NotNil(t, got.SubmittedAt)
	assert.WithinDuration(t, now, *got.SubmittedAt, time.Millisecond)

	again := *done
	again.ID = uuid.New()
	assert.ErrorIs(t, repo.Complete(ctx, &again), model.ErrDuplicateComplete)

	err = repo.UpsertIncomplete(ctx, &model.Submission{
		ID: uuid.New(), StudentID: st.ID, InstrumentID: inst.ID, SchoolID: 1,
	})
	assert.ErrorIs(t, err, model.ErrDuplicateComplete)
}

func TestListCompleteFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Submissions()

	day := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }
	complete := func(st *model.Student, instID uuid.UUID, bucket string, at time.Time) {
		require.NoError(t, repo.Complete(ctx, &model.Submission{
			ID: uuid.New(), StudentID: st.ID, InstrumentID: instID, SchoolID: st.SchoolID,
			AssignedBucket: bucket, SubmittedAt: &at,
		}))
	}

	inst, a := seed(t, s, 1, "8")
	_, b := seed(t, s, 1, "9")
	_, c := seed(t, s, 2, "8")
	complete(a, inst.ID, "Stable", day(1))
	complete(b, inst.ID, "Emerging", day(5))
	complete(c, inst.ID, "Stable", day(10))

	from, to := day(5), day(10)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter model.SubmissionFilter
		want   []string
	}{
		{"all", model.SubmissionFilter{}, []string{"8", "9", "8"}},
		{"school", model.SubmissionFilter{SchoolID: 1}, []string{"8", "9"}},
		{"class", model.SubmissionFilter{ClassLabel: "8"}, []string{"8", "8"}},
		{"bucket", model.SubmissionFilter{Bucket: "Emerging"}, []string{"9"}},
		{"instrument", model.SubmissionFilter{InstrumentID: &inst.ID}, []string{"8", "9", "8"}},
		{"date range includes whole last day", model.SubmissionFilter{From: &from, To: &to}, []string{"9", "8"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := repo.ListComplete(ctx, tt.filter)
			require.NoError(t, err)

			var classes []string
			for _, r := range records {
				classes = append(classes, r.ClassLabel)
			}
			assert.Equal(t, tt.want, classes)
		})
	}
}

func TestListByStudent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	inst, st := seed(t, s, 1, "8")
	repo := s.Submissions()

	subs, total, err := repo.ListByStudent(ctx, st.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, subs)

	require.NoError(t, repo.UpsertIncomplete(ctx, &model.Submission{
		ID: uuid.New(), StudentID: st.ID, InstrumentID: inst.ID, SchoolID: 1,
	}))

	subs, total, err = repo.ListByStudent(ctx, st.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, subs, 1)
	assert.Equal(t, model.SubmissionStatusIncomplete, subs[0].Status)
}

func TestEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Events()
	instID := uuid.New()

	payload, _ := json.Marshal(map[string]int{"cursor": 3})
	n, err := repo.InsertEvents(ctx, []model.AttemptEvent{
		{StudentID: 1, InstrumentID: instID, Type: model.AttemptEventAlert, Payload: payload, RecordedAt: time.Now()},
		{StudentID: 1, InstrumentID: instID, Type: model.AttemptEventAlert, RecordedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, repo.InsertEvent(ctx, model.AttemptEvent{
		StudentID: 1, InstrumentID: instID, Type: model.AttemptEventPaused, RecordedAt: time.Now(),
	}))

	alerts, err := repo.CountEvents(ctx, 1, model.AttemptEventAlert)
	require.NoError(t, err)
	assert.Equal(t, 2, alerts)
}
