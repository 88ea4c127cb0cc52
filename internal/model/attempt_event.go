package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptEventType enumerates the session transitions worth recording.
type AttemptEventType string

const (
	AttemptEventStarted      AttemptEventType = "started"
	AttemptEventResumed      AttemptEventType = "resumed"
	AttemptEventAlert        AttemptEventType = "alert"
	AttemptEventAlertCleared AttemptEventType = "alert_cleared"
	AttemptEventPaused       AttemptEventType = "paused"
	AttemptEventSubmitted    AttemptEventType = "submitted"
)

// AttemptEvent is an audit entry for a student's session.
type AttemptEvent struct {
	StudentID    int              `json:"student_id"`
	InstrumentID uuid.UUID        `json:"instrument_id"`
	Type         AttemptEventType `json:"type"`
	Payload      json.RawMessage  `json:"payload,omitempty"`
	RecordedAt   time.Time        `json:"recorded_at"`
}
