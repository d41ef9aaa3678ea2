package schema

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError represents a schema table compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// RangeError reports a typed value that its field kind cannot represent.
type RangeError struct {
	Field   string
	Kind    string
	Value   string
	Message string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("field %s (%s) value %s: %s", e.Field, e.Kind, e.Value, e.Message)
}

// DecodeError reports a payload that does not match its layout.
type DecodeError struct {
	Sig     string
	Field   string
	Offset  int
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("subrecord %s field %s at offset %d: %s", e.Sig, e.Field, e.Offset, e.Message)
}
