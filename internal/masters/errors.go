package masters

import (
	"errors"
	"fmt"

	"github.com/roach88/bashed/internal/record"
)

// UnresolvedReferenceError reports a reference in the merged output whose
// origin plugin is not part of the active set. It is fatal for the merge
// request; the reference is never dropped.
type UnresolvedReferenceError struct {
	// Plugin is the winning plugin of the offending object.
	Plugin string

	// Type and FormID identify the offending record.
	Type   record.Signature
	FormID record.FormID

	// Subrecord is the tag holding the reference, or zero when the
	// record's own identifier is at fault.
	Subrecord record.Signature

	// Reference is the dangling identifier in load-order-global form.
	Reference record.FormID
}

// Error implements the error interface.
func (e *UnresolvedReferenceError) Error() string {
	if e.Subrecord.IsZero() {
		return fmt.Sprintf("unresolved reference: %s record %s (from %s) has no active origin plugin", e.Type, e.FormID, e.Plugin)
	}
	return fmt.Sprintf("unresolved reference: %s record %s (from %s) subrecord %s references %s with no active origin plugin",
		e.Type, e.FormID, e.Plugin, e.Subrecord, e.Reference)
}

// IsUnresolvedReferenceError reports whether err is an UnresolvedReferenceError.
// Uses errors.As to handle wrapped errors.
func IsUnresolvedReferenceError(err error) bool {
	var ue *UnresolvedReferenceError
	return errors.As(err, &ue)
}
