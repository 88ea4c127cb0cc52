package websocket

import "github.com/stemsi/wellcheck-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNext     Action = "next"
	ActionBack     Action = "back"
	ActionActivity Action = "activity"
	ActionSave     Action = "save"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest selects an option for the current question.
type AnswerRequest struct {
	Action        Action `json:"action"`
	QuestionIndex int    `json:"question_index"`
	Option        int    `json:"option"`
}

// NextRequest advances the cursor. Details may accompany the final answer
// and are stored with the submission.
type NextRequest struct {
	Action  Action          `json:"action"`
	Details *AttemptDetails `json:"details,omitempty"`
}

// AttemptDetails carries the end-of-attempt fields collected by the client.
type AttemptDetails struct {
	MoodCheck    *model.MoodCheck `json:"mood_check,omitempty"`
	ConsentGiven bool             `json:"consent_given"`
	MobileNumber string           `json:"mobile_number,omitempty" binding:"omitempty,phone"`
	Email        string           `json:"email,omitempty" binding:"omitempty,email,max=255"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventAlert        Event = "alert"
	EventAlertCleared Event = "alert_cleared"
	EventSection      Event = "section"
	EventPaused       Event = "paused"
	EventSubmitted    Event = "submitted"
	EventSaved        Event = "saved"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateResponse describes where the student is in the attempt.
type StateResponse struct {
	Event                Event               `json:"event"`
	State                string              `json:"state"`
	Cursor               int                 `json:"cursor"`
	TotalQuestions       int                 `json:"total_questions"`
	Answers              []*model.AnswerSlot `json:"answers"`
	SinceLastAction      int                 `json:"since_last_action"`
	CumulativeInactivity int                 `json:"cumulative_inactivity"`
}

// SectionResponse is sent when the cursor enters a new section.
type SectionResponse struct {
	Event        Event  `json:"event"`
	Cursor       int    `json:"cursor"`
	SectionIndex int    `json:"section_index"`
	SectionName  string `json:"section_name"`
}

// NoticeResponse carries alert, alert_cleared, paused and saved events.
type NoticeResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message,omitempty"`
}

// SubmittedResponse is sent once the attempt is stored as complete.
type SubmittedResponse struct {
	Event          Event  `json:"event"`
	AnsweredCount  int    `json:"answered_count"`
	ElapsedSeconds int    `json:"time_taken"`
	Message        string `json:"message"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
