package harness

import (
	"fmt"

	"github.com/roach88/bashed/internal/patch"
	"github.com/roach88/bashed/internal/record"
)

// Outcome is what a scenario run produced. It is the content of golden
// files, so every field is deterministic.
type Outcome struct {
	Scenario string   `json:"scenario"`
	Order    []string `json:"order"`
	Skipped  []string `json:"skipped,omitempty"`

	// Error is the build failure, if any. The fields below are then empty.
	Error string `json:"error,omitempty"`

	Masters   []string          `json:"masters,omitempty"`
	Stats     *patch.Stats      `json:"stats,omitempty"`
	Records   []OutcomeRecord   `json:"records,omitempty"`
	Conflicts []OutcomeConflict `json:"conflicts,omitempty"`
}

// OutcomeRecord is one record of the written patch.
type OutcomeRecord struct {
	Type   record.Signature `json:"type"`
	FormID record.FormID    `json:"formid"`

	// Subrecords holds one "SIG hex" line per subrecord.
	Subrecords []string `json:"subrecords"`
}

// OutcomeConflict is one conflicting field of the build's conflict report.
type OutcomeConflict struct {
	FormID  record.FormID    `json:"formid"`
	Type    record.Signature `json:"type"`
	Tag     record.Signature `json:"tag"`
	Plugins []string         `json:"plugins"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation matches.
	Pass bool `json:"pass"`

	Outcome *Outcome `json:"outcome"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddErrorf is AddError with formatting.
func (r *Result) AddErrorf(format string, args ...any) {
	r.AddError(fmt.Sprintf(format, args...))
}
