package model

import (
	"time"

	"github.com/google/uuid"
)

// Default inactivity thresholds applied when an instrument omits them.
const (
	DefaultInactivityAlertSeconds = 40
	DefaultInactivityEndSeconds   = 120
)

// UnknownBucket is reported whenever a score falls outside every bucket range.
const UnknownBucket = "Unknown"

// Option is a single answer choice. Marks are never sent to students.
type Option struct {
	Label string `json:"label" binding:"required,max=255"`
	Marks int    `json:"marks" binding:"min=1,max=4"`
}

// Question is one item of an instrument.
type Question struct {
	Text       string   `json:"text" binding:"required,max=1000"`
	Section    string   `json:"section" binding:"required,max=32"`
	IsPositive bool     `json:"is_positive"`
	Options    []Option `json:"options" binding:"required,min=2,max=4,dive"`
}

// Section groups questions under a stable key.
type Section struct {
	Key         string `json:"key" binding:"required,max=32"`
	DisplayName string `json:"display_name" binding:"required,max=100"`
}

// Bucket is an inclusive score range with a qualitative label.
type Bucket struct {
	Label    string `json:"label" binding:"required,max=100"`
	MinScore int    `json:"min_score"`
	MaxScore int    `json:"max_score" binding:"gtefield=MinScore"`
	Color    string `json:"color,omitempty" binding:"omitempty,max=32"`
}

// Instrument is a questionnaire definition. It is immutable once a
// submission references it.
type Instrument struct {
	ID                     uuid.UUID  `json:"id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	Questions              []Question `json:"questions"`
	Sections               []Section  `json:"sections"`
	Buckets                []Bucket   `json:"buckets"`
	InactivityAlertSeconds int        `json:"inactivity_alert_seconds"`
	InactivityEndSeconds   int        `json:"inactivity_end_seconds"`
	IsActive               bool       `json:"is_active"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// SectionSize returns the number of questions per section when questions are
// evenly split across sections, or 0 when they are not.
func (i *Instrument) SectionSize() int {
	if len(i.Sections) == 0 || len(i.Questions)%len(i.Sections) != 0 {
		return 0
	}
	return len(i.Questions) / len(i.Sections)
}

// SectionName returns the display name of a section key, or the key itself.
func (i *Instrument) SectionName(key string) string {
	for _, s := range i.Sections {
		if s.Key == key {
			return s.DisplayName
		}
	}
	return key
}

// ForStudent builds the payload a student receives, without marks.
func (i *Instrument) ForStudent() *InstrumentPayload {
	questions := make([]QuestionForStudent, len(i.Questions))
	for idx, q := range i.Questions {
		labels := make([]string, len(q.Options))
		for o, opt := range q.Options {
			labels[o] = opt.Label
		}
		questions[idx] = QuestionForStudent{
			Index:   idx,
			Text:    q.Text,
			Section: q.Section,
			Options: labels,
		}
	}
	return &InstrumentPayload{
		InstrumentID:           i.ID,
		Title:                  i.Title,
		Description:            i.Description,
		Sections:               i.Sections,
		SectionSize:            i.SectionSize(),
		InactivityAlertSeconds: i.InactivityAlertSeconds,
		InactivityEndSeconds:   i.InactivityEndSeconds,
		Questions:              questions,
	}
}

// InstrumentPayload is the Redis-cached payload sent to students (no marks).
type InstrumentPayload struct {
	InstrumentID           uuid.UUID            `json:"instrument_id"`
	Title                  string               `json:"title"`
	Description            string               `json:"description"`
	Sections               []Section            `json:"sections"`
	SectionSize            int                  `json:"section_size"`
	InactivityAlertSeconds int                  `json:"inactivity_alert_seconds"`
	InactivityEndSeconds   int                  `json:"inactivity_end_seconds"`
	Questions              []QuestionForStudent `json:"questions"`
}

// QuestionForStudent carries option labels only.
type QuestionForStudent struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Section string   `json:"section"`
	Options []string `json:"options"`
}

// InstrumentRequest is the payload for creating or replacing an instrument.
type InstrumentRequest struct {
	Title                  string     `json:"title" binding:"required,min=3,max=255"`
	Description            string     `json:"description" binding:"omitempty,max=2000"`
	Questions              []Question `json:"questions" binding:"required,min=1,dive"`
	Sections               []Section  `json:"sections" binding:"required,min=1,dive"`
	Buckets                []Bucket   `json:"buckets" binding:"required,min=1,dive"`
	InactivityAlertSeconds int        `json:"inactivity_alert_seconds" binding:"omitempty,min=1"`
	InactivityEndSeconds   int        `json:"inactivity_end_seconds" binding:"omitempty,gtfield=InactivityAlertSeconds"`
	IsActive               *bool      `json:"is_active"`
}

// ToInstrument copies the request into a new instrument, applying defaults.
func (r *InstrumentRequest) ToInstrument() *Instrument {
	inst := &Instrument{
		Title:                  r.Title,
		Description:            r.Description,
		Questions:              r.Questions,
		Sections:               r.Sections,
		Buckets:                r.Buckets,
		InactivityAlertSeconds: r.InactivityAlertSeconds,
		InactivityEndSeconds:   r.InactivityEndSeconds,
		IsActive:               true,
	}
	if r.IsActive != nil {
		inst.IsActive = *r.IsActive
	}
	inst.ApplyDefaults()
	return inst
}

// ApplyDefaults fills missing inactivity thresholds.
func (i *Instrument) ApplyDefaults() {
	if i.InactivityAlertSeconds <= 0 {
		i.InactivityAlertSeconds = DefaultInactivityAlertSeconds
	}
	if i.InactivityEndSeconds <= 0 {
		i.InactivityEndSeconds = DefaultInactivityEndSeconds
	}
}

// InstrumentSummary is a lobby entry for a student.
type InstrumentSummary struct {
	InstrumentID uuid.UUID        `json:"instrument_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Status       SubmissionStatus `json:"status"`
}
