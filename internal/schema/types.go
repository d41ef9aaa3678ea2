package schema

import (
	"encoding/binary"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/bashed/internal/record"
)

// Game is the container profile of one game of the family.
type Game struct {
	Name             string
	RecordHeaderSize int       // 20 or 24; group headers use the same size
	Versions         []float32 // accepted HEDR versions
}

// Supports reports whether the HEDR version v is accepted.
func (g Game) Supports(v float32) bool {
	return slices.Contains(g.Versions, v)
}

// DefaultVersion returns the version written into synthesized headers.
func (g Game) DefaultVersion() float32 {
	if len(g.Versions) == 0 {
		return 0
	}
	return g.Versions[len(g.Versions)-1]
}

// FieldDef is one field of a subrecord layout.
type FieldDef struct {
	Name string
	Kind record.Kind
	Size int // fixed size for KindBytes; 0 consumes the remainder
}

// SubrecordDef is the layout of one subrecord tag within a record type.
type SubrecordDef struct {
	Sig    record.Signature
	Fields []FieldDef

	// Repeat marks a tag whose every occurrence is one list element.
	Repeat bool
	// Array marks a payload that is a sequence of elements.
	Array bool
	// Key names the fields forming an element's dedupe key.
	Key []string
	// Count names the subrecord holding the element count, if any.
	Count record.Signature
}

// List reports whether the tag holds list elements.
func (d *SubrecordDef) List() bool {
	return d.Repeat || d.Array
}

// HasFormIDs reports whether any field holds a reference.
func (d *SubrecordDef) HasFormIDs() bool {
	for _, f := range d.Fields {
		if f.Kind == record.KindFormID {
			return true
		}
	}
	return false
}

// Field returns the named field definition.
func (d *SubrecordDef) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// RecordDef is the layout of one record type.
type RecordDef struct {
	Sig        record.Signature
	Subrecords map[record.Signature]*SubrecordDef
	Order      []record.Signature // declaration order
}

// HasFormIDs reports whether any subrecord holds a reference.
func (d *RecordDef) HasFormIDs() bool {
	for _, s := range d.Subrecords {
		if s.HasFormIDs() {
			return true
		}
	}
	return false
}

// RuleDef is one merge rule as declared in the policy table.
type RuleDef struct {
	Tag        string
	Kind       string
	Func       string
	RemoveTag  string
	Subrecords []record.Signature
	Fields     []string
}

// Table is a compiled schema table.
type Table struct {
	Games    map[string]Game
	Records  map[record.Signature]*RecordDef
	Policies map[record.Signature][]RuleDef
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		Games:    make(map[string]Game),
		Records:  make(map[record.Signature]*RecordDef),
		Policies: make(map[record.Signature][]RuleDef),
	}
}

// Game returns the named game profile.
func (t *Table) Game(name string) (Game, error) {
	g, ok := t.Games[name]
	if !ok {
		return Game{}, fmt.Errorf("unknown game %q (known: %v)", name, t.GameNames())
	}
	return g, nil
}

// GameNames returns the known game names, sorted.
func (t *Table) GameNames() []string {
	return slices.Sorted(maps.Keys(t.Games))
}

// Record returns the layout of a record type.
func (t *Table) Record(sig record.Signature) (*RecordDef, bool) {
	d, ok := t.Records[sig]
	return d, ok
}

// Subrecord returns the layout of a subrecord tag within a record type.
func (t *Table) Subrecord(rec, sub record.Signature) (*SubrecordDef, bool) {
	d, ok := t.Records[rec]
	if !ok {
		return nil, false
	}
	sd, ok := d.Subrecords[sub]
	return sd, ok
}

// Merge returns a new table holding t overlaid with o. Games, record
// layouts and policy lists in o replace those of t wholesale.
func (t *Table) Merge(o *Table) *Table {
	out := NewTable()
	maps.Copy(out.Games, t.Games)
	maps.Copy(out.Records, t.Records)
	maps.Copy(out.Policies, t.Policies)
	if o == nil {
		return out
	}
	maps.Copy(out.Games, o.Games)
	maps.Copy(out.Records, o.Records)
	maps.Copy(out.Policies, o.Policies)
	return out
}

// Value returns the typed value of s within a record of type rec.
// ok is false when the table has no layout for the tag.
func (t *Table) Value(rec record.Signature, s *record.Subrecord) (v record.Value, ok bool, err error) {
	if s.Pending() {
		return s.PendingValue(), true, nil
	}
	d, found := t.Subrecord(rec, s.Sig)
	if !found {
		return nil, false, nil
	}
	v, err = s.Decode(d.Decode)
	return v, true, err
}

// Canonical returns the comparison form of s: the typed encoding when the
// layout is known, the raw bytes otherwise.
func (t *Table) Canonical(rec record.Signature, s *record.Subrecord) ([]byte, error) {
	v, ok, err := t.Value(rec, s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return append([]byte{0xFE}, s.Data()...), nil
	}
	return append([]byte{0xFF}, v.Canonical()...), nil
}

// Encode returns the bytes to write for s: the raw payload, or the encoded
// typed value for pending subrecords.
func (t *Table) Encode(rec record.Signature, s *record.Subrecord) ([]byte, error) {
	if !s.Pending() {
		return s.Data(), nil
	}
	d, ok := t.Subrecord(rec, s.Sig)
	if !ok {
		return nil, &RangeError{Field: s.Sig.String(), Kind: "unknown", Value: s.PendingValue().String(), Message: "no layout to encode typed value"}
	}
	return d.Encode(s.PendingValue())
}

// Fingerprint returns the comparison key of all occurrences of one tag
// inside a record of type rec. No occurrences yield "", which differs from
// every present value, so presence is part of the key.
func (t *Table) Fingerprint(rec record.Signature, occurrences []*record.Subrecord) (string, error) {
	if len(occurrences) == 0 {
		return "", nil
	}
	b := []byte{1}
	for _, s := range occurrences {
		c, err := t.Canonical(rec, s)
		if err != nil {
			return "", err
		}
		b = binary.AppendUvarint(b, uint64(len(c)))
		b = append(b, c...)
	}
	return string(b), nil
}
