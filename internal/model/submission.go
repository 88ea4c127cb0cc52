package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates the lifecycle of a submission record.
type SubmissionStatus string

const (
	SubmissionStatusPending    SubmissionStatus = "pending"
	SubmissionStatusIncomplete SubmissionStatus = "incomplete"
	SubmissionStatusComplete   SubmissionStatus = "complete"
)

// AnswerSlot is a recorded answer in a running session. A nil slot means
// the question has not been answered.
type AnswerSlot struct {
	SelectedOption   int `json:"selected_option"`
	TimeTakenSeconds int `json:"time_taken"`
}

// ProcessedAnswer is a persisted answer. Marks is zero for incomplete saves.
type ProcessedAnswer struct {
	QuestionIndex    int    `json:"question_index"`
	Section          string `json:"section"`
	SelectedOption   int    `json:"selected_option"`
	Marks            int    `json:"marks"`
	TimeTakenSeconds int    `json:"time_taken"`
}

// MoodCheck is the optional self-report captured at the end of an attempt.
type MoodCheck struct {
	Mood   int    `json:"mood" binding:"omitempty,min=1,max=5"`
	Sleep  string `json:"sleep" binding:"omitempty,oneof=great decent notGreat barely"`
	Energy string `json:"energy" binding:"omitempty,oneof=full okay exhausted"`
}

// Submission is one student's record for one instrument.
type Submission struct {
	ID                  uuid.UUID         `json:"id"`
	StudentID           int               `json:"student_id"`
	InstrumentID        uuid.UUID         `json:"instrument_id"`
	SchoolID            int               `json:"school_id"`
	Status              SubmissionStatus  `json:"status"`
	Answers             []ProcessedAnswer `json:"answers"`
	LastQuestionIndex   int               `json:"last_question_index"`
	TotalScore          int               `json:"total_score"`
	SectionScores       map[string]int    `json:"section_scores"`
	SectionBuckets      map[string]string `json:"section_buckets"`
	PrimarySkillArea    string            `json:"primary_skill_area"`
	SecondarySkillArea  string            `json:"secondary_skill_area"`
	AssignedBucket      string            `json:"assigned_bucket"`
	TotalInactivityTime int               `json:"total_inactivity_time"`
	TimeTaken           int               `json:"time_taken"`
	MoodCheck           *MoodCheck        `json:"mood_check,omitempty"`
	ConsentGiven        bool              `json:"consent_given"`
	MobileNumber        string            `json:"mobile_number,omitempty"`
	Email               string            `json:"email,omitempty"`
	SubmittedAt         *time.Time        `json:"submitted_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Slots expands stored answers into a sparse slot slice sized n.
// Answers pointing outside [0, n) are dropped.
func (s *Submission) Slots(n int) []*AnswerSlot {
	slots := make([]*AnswerSlot, n)
	for _, a := range s.Answers {
		if a.QuestionIndex < 0 || a.QuestionIndex >= n {
			continue
		}
		slots[a.QuestionIndex] = &AnswerSlot{
			SelectedOption:   a.SelectedOption,
			TimeTakenSeconds: a.TimeTakenSeconds,
		}
	}
	return slots
}

// SubmissionRecord is a completed submission joined with the student's
// grouping attributes, as consumed by analytics.
type SubmissionRecord struct {
	Submission
	StudentName  string `json:"student_name"`
	ClassLabel   string `json:"class_label"`
	ClassSection string `json:"class_section"`
}

// SubmissionFilter narrows analytics and listing queries. Zero values mean
// no filter. From and To are whole days.
type SubmissionFilter struct {
	InstrumentID *uuid.UUID
	SchoolID     int
	ClassLabel   string
	ClassSection string
	Bucket       string
	From         *time.Time
	To           *time.Time
}

// Until returns the exclusive upper bound of the date range. To is a whole
// day, so the bound is the start of the following day.
func (f SubmissionFilter) Until() *time.Time {
	if f.To == nil {
		return nil
	}
	t := f.To.AddDate(0, 0, 1)
	return &t
}

// SubmissionRef is returned after a save or submit.
type SubmissionRef struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	Status       SubmissionStatus `json:"status"`
}

// AttemptProgress is the state a client reports on save or submit.
//
// TimeTakenSeconds, ElapsedSeconds and TotalInactivitySeconds are reported by
// the client and trusted as-is.
type AttemptProgress struct {
	Answers                []*AnswerSlot `json:"answers" binding:"required,max=500"`
	LastQuestionIndex      int           `json:"last_question_index" binding:"min=0"`
	TotalInactivitySeconds int           `json:"total_inactivity_time" binding:"min=0"`
	ElapsedSeconds         int           `json:"time_taken" binding:"min=0"`
	MoodCheck              *MoodCheck    `json:"mood_check" binding:"omitempty"`
	ConsentGiven           bool          `json:"consent_given"`
	MobileNumber           string        `json:"mobile_number" binding:"omitempty,phone"`
	Email                  string        `json:"email" binding:"omitempty,email,max=255"`
}

// ProgressInput identifies whose progress is being saved.
type ProgressInput struct {
	StudentID    int       `json:"student_id"`
	InstrumentID uuid.UUID `json:"instrument_id"`
	AttemptProgress
}

// AttemptPayload is returned when a student begins or resumes an attempt.
type AttemptPayload struct {
	Instrument *InstrumentPayload `json:"instrument"`
	Resume     *ResumeState       `json:"resume,omitempty"`
}

// ResumeState is the restored position of an incomplete attempt.
type ResumeState struct {
	SubmissionID           uuid.UUID         `json:"submission_id"`
	LastQuestionIndex      int               `json:"last_question_index"`
	Answers                []ProcessedAnswer `json:"answers"`
	TotalInactivitySeconds int               `json:"total_inactivity_time"`
	ElapsedSeconds         int               `json:"time_taken"`
}
