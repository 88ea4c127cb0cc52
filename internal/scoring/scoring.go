// Package scoring turns a sparse list of answers into section scores,
// qualitative buckets and a skill-area ranking.
//
// A higher score means higher need: the primary skill area is the section
// with the highest score.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/stemsi/wellcheck-backend/internal/model"
)

var (
	ErrInvalidOption        = errors.New("selected option out of range")
	ErrInvalidQuestionIndex = errors.New("answer refers to a question that does not exist")
)

// Error reports which answer could not be scored.
type Error struct {
	QuestionIndex int
	Err           error
}

func (e *Error) Error() string {
	return fmt.Sprintf("question %d: %v", e.QuestionIndex, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of scoring a completed attempt.
type Result struct {
	Answers            []model.ProcessedAnswer
	TotalScore         int
	SectionScores      map[string]int
	SectionBuckets     map[string]string
	PrimarySkillArea   string
	SecondarySkillArea string
	AssignedBucket     string
}

// BucketLabel returns the label of the first bucket whose inclusive range
// contains score, or model.UnknownBucket.
func BucketLabel(buckets []model.Bucket, score int) string {
	for _, b := range buckets {
		if score >= b.MinScore && score <= b.MaxScore {
			return b.Label
		}
	}
	return model.UnknownBucket
}

// Score computes the result for slots against inst. Nil slots are skipped.
func Score(inst *model.Instrument, slots []*model.AnswerSlot) (*Result, error) {
	res := &Result{
		Answers:        make([]model.ProcessedAnswer, 0, len(slots)),
		SectionScores:  make(map[string]int, len(inst.Sections)),
		SectionBuckets: make(map[string]string, len(inst.Sections)),
	}
	for _, s := range inst.Sections {
		res.SectionScores[s.Key] = 0
	}

	for idx, slot := range slots {
		if slot == nil {
			continue
		}
		if idx >= len(inst.Questions) {
			return nil, &Error{QuestionIndex: idx, Err: ErrInvalidQuestionIndex}
		}
		q := inst.Questions[idx]
		if slot.SelectedOption < 0 || slot.SelectedOption >= len(q.Options) {
			return nil, &Error{QuestionIndex: idx, Err: ErrInvalidOption}
		}

		marks := q.Options[slot.SelectedOption].Marks
		res.TotalScore += marks
		res.SectionScores[q.Section] += marks
		res.Answers = append(res.Answers, model.ProcessedAnswer{
			QuestionIndex:    idx,
			Section:          q.Section,
			SelectedOption:   slot.SelectedOption,
			Marks:            marks,
			TimeTakenSeconds: slot.TimeTakenSeconds,
		})
	}

	for key, score := range res.SectionScores {
		res.SectionBuckets[key] = BucketLabel(inst.Buckets, score)
	}

	ranked := Rank(inst.Sections, res.SectionScores)
	if len(ranked) > 0 {
		res.PrimarySkillArea = ranked[0].DisplayName
	}
	if len(ranked) > 1 {
		res.SecondarySkillArea = ranked[1].DisplayName
	}

	if n := len(inst.Sections); n > 0 {
		avg := int(math.Round(float64(res.TotalScore) / float64(n)))
		res.AssignedBucket = BucketLabel(inst.Buckets, avg)
	} else {
		res.AssignedBucket = model.UnknownBucket
	}

	return res, nil
}

// Rank orders sections by score, highest first. Ties keep declaration order.
func Rank(sections []model.Section, scores map[string]int) []model.Section {
	ranked := make([]model.Section, len(sections))
	copy(ranked, sections)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].Key] > scores[ranked[j].Key]
	})
	return ranked
}
