package codec

import (
	"errors"
	"fmt"

	"github.com/roach88/bashed/internal/record"
)

// FormatErrorCode categorizes malformed or unsupported input.
type FormatErrorCode string

const (
	// ErrCodeTruncated indicates a chunk extends past the end of its container.
	ErrCodeTruncated FormatErrorCode = "TRUNCATED"

	// ErrCodeBadMagic indicates the file does not start with a TES4 record.
	ErrCodeBadMagic FormatErrorCode = "BAD_MAGIC"

	// ErrCodeUnsupportedVersion indicates a HEDR version the game profile rejects.
	ErrCodeUnsupportedVersion FormatErrorCode = "UNSUPPORTED_VERSION"

	// ErrCodeInvalidChunk indicates an inconsistent chunk header or payload.
	ErrCodeInvalidChunk FormatErrorCode = "INVALID_CHUNK"

	// ErrCodeCompression indicates a compressed payload that fails to inflate.
	ErrCodeCompression FormatErrorCode = "COMPRESSION"
)

// FormatError reports malformed or unsupported binary input.
// It is fatal for the plugin it names; the session skips that file.
type FormatError struct {
	// Code identifies the error category.
	Code FormatErrorCode

	// Plugin names the file being parsed.
	Plugin string

	// Offset is the byte offset of the offending chunk, or -1 when the
	// error surfaced while splitting a record payload.
	Offset int64

	// FormID identifies the record whose payload failed, if any.
	FormID record.FormID

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s: %s (offset=%d)", e.Code, e.Plugin, e.Message, e.Offset)
	}
	return fmt.Sprintf("%s: %s: %s (record=%s)", e.Code, e.Plugin, e.Message, e.FormID)
}

// IsFormatError reports whether err is a FormatError.
// Uses errors.As to handle wrapped errors.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// EncodingError reports a record that cannot be serialized: a typed value
// outside its field's range, or a payload too large for its size field.
type EncodingError struct {
	Plugin  string
	Sig     record.Signature
	FormID  record.FormID
	Tag     record.Signature // zero when the record itself is at fault
	Message string
	Err     error
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	if !e.Tag.IsZero() {
		return fmt.Sprintf("encoding %s: record %s %s subrecord %s: %s", e.Plugin, e.Sig, e.FormID, e.Tag, e.Message)
	}
	return fmt.Sprintf("encoding %s: record %s %s: %s", e.Plugin, e.Sig, e.FormID, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EncodingError) Unwrap() error {
	return e.Err
}

// IsEncodingError reports whether err is an EncodingError.
// Uses errors.As to handle wrapped errors.
func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}
