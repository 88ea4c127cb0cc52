// Package analytics aggregates completed submissions into cohort reports.
// Compute is pure and safe to run concurrently.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/scoring"
)

const (
	DefaultMonthlyPeriods = 6
	DefaultWeeklyPeriods  = 8
	recentLimit           = 10
)

// Options carries the instrument context a report is computed against.
// BucketsFor, when set, resolves the bucket table each record was scored
// against and takes precedence over Buckets.
type Options struct {
	Sections       []model.Section
	Buckets        []model.Bucket
	BucketsFor     func(model.SubmissionRecord) []model.Bucket
	Location       *time.Location
	MonthlyPeriods int
	WeeklyPeriods  int
}

// Report is the aggregate view over a set of completed submissions.
type Report struct {
	TotalSubmissions     int                       `json:"total_submissions"`
	AvgScore             float64                   `json:"avg_score"`
	AvgTimeTaken         int                       `json:"avg_time_taken"`
	BucketDistribution   map[string]int            `json:"bucket_distribution"`
	SectionAverages      map[string]float64        `json:"section_averages"`
	SectionDistributions map[string]map[string]int `json:"section_distributions"`
	AveragesByGrade      []GradeAverage            `json:"averages_by_grade"`
	SchoolBreakdown      []SchoolSummary           `json:"school_breakdown"`
	RecentSubmissions    []RecentSubmission        `json:"recent_submissions"`
	Trends               Trends                    `json:"trends"`
}

// GradeAverage holds per-section means for one class label.
type GradeAverage struct {
	Grade           string             `json:"grade"`
	Count           int                `json:"count"`
	AvgScore        float64            `json:"avg_score"`
	SectionAverages map[string]float64 `json:"section_averages"`
}

// SchoolSummary counts submissions and buckets for one school.
type SchoolSummary struct {
	SchoolID           int            `json:"school_id"`
	Count              int            `json:"count"`
	AvgScore           float64        `json:"avg_score"`
	BucketDistribution map[string]int `json:"bucket_distribution"`
}

// RecentSubmission is a compact row for the most recent submissions.
type RecentSubmission struct {
	StudentName  string    `json:"student_name"`
	ClassLabel   string    `json:"class_label"`
	ClassSection string    `json:"class_section"`
	TotalScore   int       `json:"total_score"`
	Bucket       string    `json:"bucket"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Trends holds time series ordered oldest first.
type Trends struct {
	Monthly []TrendPoint `json:"monthly"`
	Weekly  []TrendPoint `json:"weekly"`
}

// TrendPoint is the mean total score for one period.
type TrendPoint struct {
	Period   string  `json:"period"`
	AvgScore float64 `json:"avg_score"`
	Count    int     `json:"count"`
}

// Compute builds a report. An empty input yields a zero-valued report with
// empty, non-nil collections.
func Compute(records []model.SubmissionRecord, opts Options) *Report {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MonthlyPeriods <= 0 {
		opts.MonthlyPeriods = DefaultMonthlyPeriods
	}
	if opts.WeeklyPeriods <= 0 {
		opts.WeeklyPeriods = DefaultWeeklyPeriods
	}

	keys := sectionKeys(opts.Sections, records)
	rep := &Report{
		BucketDistribution:   map[string]int{},
		SectionAverages:      make(map[string]float64, len(keys)),
		SectionDistributions: make(map[string]map[string]int, len(keys)),
		AveragesByGrade:      []GradeAverage{},
		SchoolBreakdown:      []SchoolSummary{},
		RecentSubmissions:    []RecentSubmission{},
		Trends:               Trends{Monthly: []TrendPoint{}, Weekly: []TrendPoint{}},
	}
	for _, k := range keys {
		rep.SectionAverages[k] = 0
		dist := make(map[string]int, len(opts.Buckets))
		for _, b := range opts.Buckets {
			dist[b.Label] = 0
		}
		rep.SectionDistributions[k] = dist
	}

	n := len(records)
	rep.TotalSubmissions = n
	if n == 0 {
		return rep
	}

	var totalScore, totalTime int
	sectionTotals := make(map[string]int, len(keys))
	for _, r := range records {
		totalScore += r.TotalScore
		totalTime += r.TimeTaken
		rep.BucketDistribution[r.AssignedBucket]++
		buckets := opts.Buckets
		if opts.BucketsFor != nil {
			buckets = opts.BucketsFor(r)
		}
		for _, k := range keys {
			score := r.SectionScores[k]
			sectionTotals[k] += score
			rep.SectionDistributions[k][scoring.BucketLabel(buckets, score)]++
		}
	}

	rep.AvgScore = round1(float64(totalScore) / float64(n))
	rep.AvgTimeTaken = int(math.Round(float64(totalTime) / float64(n)))
	for _, k := range keys {
		rep.SectionAverages[k] = round1(float64(sectionTotals[k]) / float64(n))
	}

	rep.AveragesByGrade = byGrade(records, keys)
	rep.SchoolBreakdown = bySchool(records)
	rep.RecentSubmissions = recent(records)
	rep.Trends.Monthly = trend(records, opts.Location, opts.MonthlyPeriods, monthPeriod)
	rep.Trends.Weekly = trend(records, opts.Location, opts.WeeklyPeriods, isoWeekPeriod)
	return rep
}

// sectionKeys prefers the instrument's declaration order and falls back to
// the sorted union of keys seen in the records.
func sectionKeys(sections []model.Section, records []model.SubmissionRecord) []string {
	if len(sections) > 0 {
		keys := make([]string, len(sections))
		for i, s := range sections {
			keys[i] = s.Key
		}
		return keys
	}
	seen := map[string]bool{}
	var keys []string
	for _, r := range records {
		for k := range r.SectionScores {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func byGrade(records []model.SubmissionRecord, keys []string) []GradeAverage {
	type acc struct {
		count    int
		total    int
		sections map[string]int
	}
	groups := map[string]*acc{}
	for _, r := range records {
		g, ok := groups[r.ClassLabel]
		if !ok {
			g = &acc{sections: map[string]int{}}
			groups[r.ClassLabel] = g
		}
		g.count++
		g.total += r.TotalScore
		for _, k := range keys {
			g.sections[k] += r.SectionScores[k]
		}
	}

	out := make([]GradeAverage, 0, len(groups))
	for label, g := range groups {
		avgs := make(map[string]float64, len(keys))
		for _, k := range keys {
			avgs[k] = round1(float64(g.sections[k]) / float64(g.count))
		}
		out = append(out, GradeAverage{
			Grade:           label,
			Count:           g.count,
			AvgScore:        round1(float64(g.total) / float64(g.count)),
			SectionAverages: avgs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return gradeLess(out[i].Grade, out[j].Grade) })
	return out
}

// gradeLess orders numeric labels numerically ahead of the rest, which are
// ordered lexicographically.
func gradeLess(a, b string) bool {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return an < bn
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}

func bySchool(records []model.SubmissionRecord) []SchoolSummary {
	groups := map[int]*SchoolSummary{}
	totals := map[int]int{}
	for _, r := range records {
		s, ok := groups[r.SchoolID]
		if !ok {
			s = &SchoolSummary{SchoolID: r.SchoolID, BucketDistribution: map[string]int{}}
			groups[r.SchoolID] = s
		}
		s.Count++
		s.BucketDistribution[r.AssignedBucket]++
		totals[r.SchoolID] += r.TotalScore
	}

	out := make([]SchoolSummary, 0, len(groups))
	for id, s := range groups {
		s.AvgScore = round1(float64(totals[id]) / float64(s.Count))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].SchoolID < out[j].SchoolID
	})
	return out
}

func recent(records []model.SubmissionRecord) []RecentSubmission {
	withDate := make([]model.SubmissionRecord, 0, len(records))
	for _, r := range records {
		if r.SubmittedAt != nil {
			withDate = append(withDate, r)
		}
	}
	sort.SliceStable(withDate, func(i, j int) bool {
		return withDate[i].SubmittedAt.After(*withDate[j].SubmittedAt)
	})
	if len(withDate) > recentLimit {
		withDate = withDate[:recentLimit]
	}

	out := make([]RecentSubmission, len(withDate))
	for i, r := range withDate {
		out[i] = RecentSubmission{
			StudentName:  r.StudentName,
			ClassLabel:   r.ClassLabel,
			ClassSection: r.ClassSection,
			TotalScore:   r.TotalScore,
			Bucket:       r.AssignedBucket,
			SubmittedAt:  *r.SubmittedAt,
		}
	}
	return out
}

// period identifies a calendar bucket; ordinal sorts periods within a year.
type period struct {
	year    int
	ordinal int
}

func monthPeriod(t time.Time) (period, string) {
	return period{t.Year(), int(t.Month())}, fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

func isoWeekPeriod(t time.Time) (period, string) {
	y, w := t.ISOWeek()
	return period{y, w}, fmt.Sprintf("%04d-W%02d", y, w)
}

// trend groups records by period, keeps the most recent limit periods that
// have data and returns them oldest first.
func trend(records []model.SubmissionRecord, loc *time.Location, limit int, key func(time.Time) (period, string)) []TrendPoint {
	type acc struct {
		label string
		count int
		total int
	}
	groups := map[period]*acc{}
	for _, r := range records {
		if r.SubmittedAt == nil {
			continue
		}
		p, label := key(r.SubmittedAt.In(loc))
		g, ok := groups[p]
		if !ok {
			g = &acc{label: label}
			groups[p] = g
		}
		g.count++
		g.total += r.TotalScore
	}

	periods := make([]period, 0, len(groups))
	for p := range groups {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].year != periods[j].year {
			return periods[i].year < periods[j].year
		}
		return periods[i].ordinal < periods[j].ordinal
	})
	if len(periods) > limit {
		periods = periods[len(periods)-limit:]
	}

	out := make([]TrendPoint, len(periods))
	for i, p := range periods {
		g := groups[p]
		out[i] = TrendPoint{
			Period:   g.label,
			AvgScore: round1(float64(g.total) / float64(g.count)),
			Count:    g.count,
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
