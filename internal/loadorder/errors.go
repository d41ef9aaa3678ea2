package loadorder

import (
	"errors"
	"fmt"
	"strings"
)

// CyclicMastersError reports master declarations that form a cycle.
// Fatal for the whole session.
type CyclicMastersError struct {
	// Cycle is the cycle path, first element repeated at the end:
	// ["A.esp", "B.esp", "A.esp"] means A declares B and B declares A.
	Cycle []string
}

// Error implements the error interface.
func (e *CyclicMastersError) Error() string {
	return fmt.Sprintf("cyclic masters: %s", strings.Join(e.Cycle, " → "))
}

// MissingMasterError reports a declared master absent from the plugin set.
// Fatal for the whole session.
type MissingMasterError struct {
	Plugin string
	Master string
}

// Error implements the error interface.
func (e *MissingMasterError) Error() string {
	return fmt.Sprintf("plugin %s: missing master %s", e.Plugin, e.Master)
}

// TooManyPluginsError reports a plugin set larger than the FormID origin
// index can address.
type TooManyPluginsError struct {
	Count int
	Max   int
}

// Error implements the error interface.
func (e *TooManyPluginsError) Error() string {
	return fmt.Sprintf("too many plugins: %d (max %d)", e.Count, e.Max)
}

// IsCyclicMastersError reports whether err is a CyclicMastersError.
// Uses errors.As to handle wrapped errors.
func IsCyclicMastersError(err error) bool {
	var ce *CyclicMastersError
	return errors.As(err, &ce)
}

// IsMissingMasterError reports whether err is a MissingMasterError.
// Uses errors.As to handle wrapped errors.
func IsMissingMasterError(err error) bool {
	var me *MissingMasterError
	return errors.As(err, &me)
}

// IsTooManyPluginsError reports whether err is a TooManyPluginsError.
// Uses errors.As to handle wrapped errors.
func IsTooManyPluginsError(err error) bool {
	var te *TooManyPluginsError
	return errors.As(err, &te)
}
