package model

import (
	"time"

	"github.com/google/uuid"
)

// Student is the read-only view of a student owned by the school directory.
type Student struct {
	ID                  int         `json:"id"`
	AccessID            string      `json:"access_id"`
	Name                string      `json:"name"`
	ClassLabel          string      `json:"class_label"`
	ClassSection        string      `json:"class_section"`
	SchoolID            int         `json:"school_id"`
	AssignedInstruments []uuid.UUID `json:"assigned_instruments"`
	CreatedAt           time.Time   `json:"created_at"`
}

// IsAssigned reports whether the instrument is in the student's assignment list.
func (s *Student) IsAssigned(instrumentID uuid.UUID) bool {
	for _, id := range s.AssignedInstruments {
		if id == instrumentID {
			return true
		}
	}
	return false
}
