package record

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the wire type of a subrecord field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindFloat32
	KindZString
	KindFormID
	KindBytes
)

var kindNames = map[Kind]string{
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindFloat32: "float32",
	KindZString: "zstring",
	KindFormID:  "formid",
	KindBytes:   "bytes",
}

// String returns the schema name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseKind maps a schema name onto a Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindInvalid, false
}

// Integer reports whether the kind holds an integer.
func (k Kind) Integer() bool {
	switch k {
	case KindInt8, KindUint8, KindInt16, KindUint16, KindInt32, KindUint32:
		return true
	}
	return false
}

// Numeric reports whether the kind can take part in numeric aggregation.
func (k Kind) Numeric() bool {
	return k.Integer() || k == KindFloat32
}

// Size returns the fixed encoded size of the kind, or 0 when variable.
func (k Kind) Size() int {
	switch k {
	case KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32, KindFormID:
		return 4
	}
	return 0
}

// Range returns the inclusive integer range of an integer kind.
func (k Kind) Range() (lo, hi int64) {
	switch k {
	case KindInt8:
		return math.MinInt8, math.MaxInt8
	case KindUint8:
		return 0, math.MaxUint8
	case KindInt16:
		return math.MinInt16, math.MaxInt16
	case KindUint16:
		return 0, math.MaxUint16
	case KindInt32:
		return math.MinInt32, math.MaxInt32
	case KindUint32, KindFormID:
		return 0, math.MaxUint32
	}
	return 0, 0
}

// Field is one decoded field of a subrecord element.
type Field struct {
	Name  string
	Kind  Kind
	Int   int64   // integer kinds and FormID
	Float float32 // KindFloat32
	Str   string  // KindZString, already decoded from Windows-1252
	Bytes []byte  // KindBytes

	// Offset is the byte offset of the field inside the subrecord payload,
	// or -1 for synthesized fields.
	Offset int
}

// FormID returns the field as a FormID.
func (f Field) FormID() FormID {
	return FormID(uint32(f.Int))
}

// Number returns the field as a float64 for numeric comparison.
func (f Field) Number() float64 {
	if f.Kind == KindFloat32 {
		return float64(f.Float)
	}
	return float64(f.Int)
}

// Equal reports whether two fields hold the same typed value.
// Names and offsets are ignored.
func (f Field) Equal(o Field) bool {
	return bytes.Equal(f.appendCanonical(nil), o.appendCanonical(nil))
}

// appendCanonical appends an unambiguous encoding of the typed value.
func (f Field) appendCanonical(b []byte) []byte {
	b = append(b, byte(f.Kind))
	switch {
	case f.Kind.Integer() || f.Kind == KindFormID:
		b = binary.BigEndian.AppendUint64(b, uint64(f.Int))
	case f.Kind == KindFloat32:
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(f.Float))
	case f.Kind == KindZString:
		b = binary.AppendUvarint(b, uint64(len(f.Str)))
		b = append(b, f.Str...)
	default:
		b = binary.AppendUvarint(b, uint64(len(f.Bytes)))
		b = append(b, f.Bytes...)
	}
	return b
}

// String renders the value for diagnostics and snapshots.
func (f Field) String() string {
	switch {
	case f.Kind == KindFormID:
		return f.FormID().String()
	case f.Kind.Integer():
		return strconv.FormatInt(f.Int, 10)
	case f.Kind == KindFloat32:
		return strconv.FormatFloat(float64(f.Float), 'g', -1, 32)
	case f.Kind == KindZString:
		return strconv.Quote(f.Str)
	default:
		return hex.EncodeToString(f.Bytes)
	}
}

// Element is one list element (or the whole payload of a scalar subrecord).
type Element []Field

// Field returns the field with the given name.
func (e Element) Field(name string) (Field, int, bool) {
	for i, f := range e {
		if f.Name == name {
			return f, i, true
		}
	}
	return Field{}, -1, false
}

// Canonical returns the unambiguous encoding of all fields.
func (e Element) Canonical() []byte {
	var b []byte
	for _, f := range e {
		b = f.appendCanonical(b)
	}
	return b
}

// Key returns the dedupe key built from the named fields.
// An empty name list keys on the whole element.
func (e Element) Key(names []string) string {
	if len(names) == 0 {
		return string(e.Canonical())
	}
	var b []byte
	for _, name := range names {
		f, _, ok := e.Field(name)
		if !ok {
			b = append(b, 0)
			continue
		}
		b = f.appendCanonical(b)
	}
	return string(b)
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	out := make(Element, len(e))
	for i, f := range e {
		if f.Bytes != nil {
			f.Bytes = append([]byte(nil), f.Bytes...)
		}
		out[i] = f
	}
	return out
}

// String renders the element.
func (e Element) String() string {
	parts := make([]string, len(e))
	for i, f := range e {
		parts[i] = f.Name + "=" + f.String()
	}
	return strings.Join(parts, " ")
}

// Value is a decoded subrecord payload: one element for scalar layouts,
// any number for array layouts.
type Value []Element

// Canonical returns the unambiguous encoding of the whole value.
func (v Value) Canonical() []byte {
	var b []byte
	b = binary.AppendUvarint(b, uint64(len(v)))
	for _, e := range v {
		c := e.Canonical()
		b = binary.AppendUvarint(b, uint64(len(c)))
		b = append(b, c...)
	}
	return b
}

// Equal reports whether two values hold the same typed content.
func (v Value) Equal(o Value) bool {
	return bytes.Equal(v.Canonical(), o.Canonical())
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	out := make(Value, len(v))
	for i, e := range v {
		out[i] = e.Clone()
	}
	return out
}

// String renders the value.
func (v Value) String() string {
	if len(v) == 1 {
		return v[0].String()
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = fmt.Sprintf("[%s]", e.String())
	}
	return strings.Join(parts, " ")
}
