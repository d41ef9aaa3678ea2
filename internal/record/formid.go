package record

import (
	"fmt"
	"strconv"
	"strings"
)

// FormID is a cross-file object reference.
//
// The high byte is the origin index and the low 24 bits are the local id.
// Inside a plugin file the origin index points into that plugin's master
// list (index == len(masters) means the plugin itself). After normalization
// the origin index is a position in the resolved load order.
type FormID uint32

const (
	// NullFormID is the "no reference" value. It is never remapped.
	NullFormID FormID = 0

	// UnresolvedIndex marks a reference whose origin names no loaded plugin.
	UnresolvedIndex uint8 = 0xFF

	// MaxLocalID is the largest local id representable in a FormID.
	MaxLocalID uint32 = 0x00FFFFFF
)

// NewFormID builds a FormID from an origin index and a local id.
func NewFormID(index uint8, local uint32) FormID {
	return FormID(uint32(index)<<24 | local&MaxLocalID)
}

// Index returns the origin index.
func (f FormID) Index() uint8 {
	return uint8(f >> 24)
}

// Local returns the local id.
func (f FormID) Local() uint32 {
	return uint32(f) & MaxLocalID
}

// IsNull reports whether f is the null reference.
func (f FormID) IsNull() bool {
	return f == NullFormID
}

// WithIndex returns f with its origin index replaced.
func (f FormID) WithIndex(index uint8) FormID {
	return NewFormID(index, f.Local())
}

// String renders the FormID as eight hex digits.
func (f FormID) String() string {
	return fmt.Sprintf("%08X", uint32(f))
}

// ParseFormID parses eight or fewer hex digits, with or without a 0x
// prefix.
func ParseFormID(s string) (FormID, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid FormID %q", s)
	}
	return FormID(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (f FormID) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FormID) UnmarshalText(text []byte) error {
	v, err := ParseFormID(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
