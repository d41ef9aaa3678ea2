package merge

import (
	"errors"
	"fmt"

	"github.com/roach88/bashed/internal/record"
)

// PolicyErrorCode categorizes policy failures.
type PolicyErrorCode string

const (
	// ErrCodeNoPolicy indicates a record type with no registered binding
	// while the fallback is disabled.
	ErrCodeNoPolicy PolicyErrorCode = "NO_POLICY"

	// ErrCodeInvalidRule indicates a rule that cannot apply: unknown kind or
	// aggregate function, or a subrecord whose layout does not fit the kind.
	ErrCodeInvalidRule PolicyErrorCode = "INVALID_RULE"
)

// PolicyError reports a merge requested without a resolvable policy.
// It is fatal for the merge request.
type PolicyError struct {
	// Code identifies the error category.
	Code PolicyErrorCode

	// Type is the offending record type.
	Type record.Signature

	// Tag is the rule's selection tag, if a rule is at fault.
	Tag string

	// Subrecord names the subrecord the rule targets, if any.
	Subrecord record.Signature

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	switch {
	case !e.Subrecord.IsZero():
		return fmt.Sprintf("%s: %s rule %q on %s: %s", e.Code, e.Type, e.Tag, e.Subrecord, e.Message)
	case e.Tag != "":
		return fmt.Sprintf("%s: %s rule %q: %s", e.Code, e.Type, e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Type, e.Message)
}

// IsPolicyError reports whether err is a PolicyError.
// Uses errors.As to handle wrapped errors.
func IsPolicyError(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}
