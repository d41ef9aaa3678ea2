package record

import (
	"bytes"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
)

// DecodeZString decodes a NUL-terminated Windows-1252 string. Bytes after
// the first NUL are ignored; a missing terminator is tolerated.
func DecodeZString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// EncodeZString encodes s as a NUL-terminated Windows-1252 string.
// Fails when s holds a rune Windows-1252 cannot represent.
func EncodeZString(s string) ([]byte, error) {
	out, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %q as windows-1252: %w", s, err)
	}
	return append(out, 0), nil
}

// FoldName returns the case-folded form of a plugin name. Plugin names are
// case-insensitive on the platforms these games run on.
func FoldName(name string) string {
	return cases.Fold().String(name)
}

// SameName reports whether two plugin names refer to the same file.
func SameName(a, b string) bool {
	return FoldName(a) == FoldName(b)
}
