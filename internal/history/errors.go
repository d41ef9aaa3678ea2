package history

import (
	"errors"
	"fmt"

	"github.com/roach88/bashed/internal/record"
)

// TypeMismatchError reports an object whose revisions disagree on the
// record type. The object is skipped; the build continues.
type TypeMismatchError struct {
	Key    record.FormID
	Want   record.Signature // type of the first revision
	Got    record.Signature
	Plugin string // plugin holding the mismatching revision
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("object %s: %s defines it as %s, earlier revisions as %s", e.Key, e.Plugin, e.Got, e.Want)
}

// IsTypeMismatchError reports whether err is a TypeMismatchError.
// Uses errors.As to handle wrapped errors.
func IsTypeMismatchError(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}
