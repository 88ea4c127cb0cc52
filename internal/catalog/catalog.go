// Package catalog loads and validates instrument definitions.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stemsi/wellcheck-backend/internal/model"
)

//go:embed instrument.schema.json
var schemaJSON []byte

const schemaURL = "schema://instrument.json"

var ErrInvalidInstrument = errors.New("invalid instrument definition")

// ValidationError lists every problem found in a definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidInstrument, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInstrument }

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func instrumentSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var doc any
		if err := json.Unmarshal(schemaJSON, &doc); err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Parse decodes a JSON definition, checks it against the instrument schema
// and then against the structural rules of Validate.
func Parse(raw []byte) (*model.Instrument, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}

	schema, err := instrumentSchema()
	if err != nil {
		return nil, fmt.Errorf("compile instrument schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}

	var req model.InstrumentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}

	inst := req.ToInstrument()
	if err := Validate(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Validate checks the invariants the scoring engine relies on.
func Validate(inst *model.Instrument) error {
	var problems []string

	if len(inst.Questions) == 0 {
		problems = append(problems, "instrument has no questions")
	}
	if len(inst.Sections) == 0 {
		problems = append(problems, "instrument has no sections")
	}

	keys := make(map[string]bool, len(inst.Sections))
	for _, s := range inst.Sections {
		if keys[s.Key] {
			problems = append(problems, fmt.Sprintf("duplicate section key %q", s.Key))
		}
		keys[s.Key] = true
	}

	for i, q := range inst.Questions {
		if !keys[q.Section] {
			problems = append(problems, fmt.Sprintf("question %d: unknown section %q", i, q.Section))
		}
		if len(q.Options) < 2 || len(q.Options) > 4 {
			problems = append(problems, fmt.Sprintf("question %d: needs 2 to 4 options, has %d", i, len(q.Options)))
		}
		for o, opt := range q.Options {
			if opt.Marks < 1 || opt.Marks > 4 {
				problems = append(problems, fmt.Sprintf("question %d option %d: marks must be 1..4", i, o))
			}
		}
	}

	if len(inst.Buckets) == 0 {
		problems = append(problems, "instrument has no buckets")
	}
	buckets := make([]model.Bucket, len(inst.Buckets))
	copy(buckets, inst.Buckets)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].MinScore < buckets[j].MinScore })
	for i, b := range buckets {
		if b.MinScore > b.MaxScore {
			problems = append(problems, fmt.Sprintf("bucket %q: min_score above max_score", b.Label))
		}
		if i > 0 && b.MinScore <= buckets[i-1].MaxScore {
			problems = append(problems, fmt.Sprintf("bucket %q overlaps %q", b.Label, buckets[i-1].Label))
		}
	}

	if inst.InactivityEndSeconds <= inst.InactivityAlertSeconds {
		problems = append(problems, "inactivity_end_seconds must exceed inactivity_alert_seconds")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
