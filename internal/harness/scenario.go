package harness

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bashed/internal/record"
	tu "github.com/roach88/bashed/internal/testutil"
)

// Scenario defines one merge scenario: a set of plugins written inline,
// the policies to build a patch with, and what the patch must contain.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Game selects the game profile. Defaults to skyrim.
	Game string `yaml:"game,omitempty"`

	// Schema is CUE overlaid on the builtin schema table.
	Schema string `yaml:"schema,omitempty"`

	// Plugins are the input files, in any order.
	Plugins []PluginDef `yaml:"plugins"`

	// Tags assigns merge tags per plugin.
	Tags map[string][]string `yaml:"tags,omitempty"`

	// Active restricts the active set. Empty activates every plugin.
	Active []string `yaml:"active,omitempty"`

	// Preference breaks load order ties.
	Preference []string `yaml:"preference,omitempty"`

	Policies PolicyDef `yaml:"policies,omitempty"`

	Expect Expect `yaml:"expect"`
}

// PolicyDef mirrors the patch policies a scenario may set.
type PolicyDef struct {
	Types            []record.Signature `yaml:"types,omitempty"`
	IncludeUnchanged bool               `yaml:"include_unchanged,omitempty"`
	DescriptionTags  bool               `yaml:"description_tags,omitempty"`

	// Strict disables the override-wins fallback for unbound types.
	Strict bool `yaml:"strict,omitempty"`
}

// PluginDef describes one input plugin.
type PluginDef struct {
	Name        string      `yaml:"name"`
	Master      bool        `yaml:"master,omitempty"`
	Masters     []string    `yaml:"masters,omitempty"`
	Author      string      `yaml:"author,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Records     []RecordDef `yaml:"records,omitempty"`

	// Raw replaces the whole file with these hex bytes, for malformed
	// inputs.
	Raw string `yaml:"raw,omitempty"`
}

// RecordDef describes one record. Records of the same type share a top
// group; groups follow the first appearance of each type.
type RecordDef struct {
	Type       record.Signature `yaml:"type"`
	FormID     record.FormID    `yaml:"formid"`
	Deleted    bool             `yaml:"deleted,omitempty"`
	Compress   bool             `yaml:"compress,omitempty"`
	Subrecords []SubrecordDef   `yaml:"subrecords,omitempty"`
}

// SubrecordDef describes one subrecord. The payload is either one inline
// value or the concatenation of Parts.
type SubrecordDef struct {
	Sig   record.Signature `yaml:"sig"`
	Data  `yaml:",inline"`
	Parts []Data `yaml:"parts,omitempty"`
}

// Data is one little-endian value. At most one field may be set; none
// means an empty payload.
type Data struct {
	Z      *string        `yaml:"z,omitempty"`
	U8     *uint8         `yaml:"u8,omitempty"`
	U16    *uint16        `yaml:"u16,omitempty"`
	I16    *int16         `yaml:"i16,omitempty"`
	U32    *uint32        `yaml:"u32,omitempty"`
	I32    *int32         `yaml:"i32,omitempty"`
	F32    *float32       `yaml:"f32,omitempty"`
	FormID *record.FormID `yaml:"formid,omitempty"`
	Hex    string         `yaml:"hex,omitempty"`
}

// Expect lists what the built patch must show. Unset fields are not
// checked.
type Expect struct {
	// Error, when set, means the build must fail with a message
	// containing it.
	Error string `yaml:"error,omitempty"`

	Order   []string       `yaml:"order,omitempty"`
	Skipped []string       `yaml:"skipped,omitempty"`
	Masters []string       `yaml:"masters,omitempty"`
	Stats   map[string]int `yaml:"stats,omitempty"`

	// Records must appear in the patch with exactly these subrecords.
	// FormIDs are in the patch's own master space.
	Records []ExpectRecord `yaml:"records,omitempty"`

	// Absent FormIDs must not appear in the patch.
	Absent []record.FormID `yaml:"absent,omitempty"`

	// Conflicts must each match one conflicting field. FormIDs are in
	// load order space.
	Conflicts []ExpectConflict `yaml:"conflicts,omitempty"`
}

// ExpectRecord is one record the patch must contain.
type ExpectRecord struct {
	Type       record.Signature `yaml:"type"`
	FormID     record.FormID    `yaml:"formid"`
	Subrecords []SubrecordDef   `yaml:"subrecords"`
}

// ExpectConflict is one conflicting field the build must report.
type ExpectConflict struct {
	FormID  record.FormID    `yaml:"formid"`
	Tag     record.Signature `yaml:"tag"`
	Plugins []string         `yaml:"plugins,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Plugins) == 0 {
		return fmt.Errorf("plugins list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, p := range s.Plugins {
		if p.Name == "" {
			return fmt.Errorf("plugins[%d]: name is required", i)
		}
		if seen[record.FoldName(p.Name)] {
			return fmt.Errorf("plugins[%d]: duplicate plugin %q", i, p.Name)
		}
		seen[record.FoldName(p.Name)] = true
		if p.Raw != "" && len(p.Records) > 0 {
			return fmt.Errorf("plugins[%d]: raw and records are exclusive", i)
		}
		for j, r := range p.Records {
			if r.Type.IsZero() {
				return fmt.Errorf("plugins[%d].records[%d]: type is required", i, j)
			}
			if err := validateSubrecords(r.Subrecords); err != nil {
				return fmt.Errorf("plugins[%d].records[%d]: %w", i, j, err)
			}
		}
	}

	for i, r := range s.Expect.Records {
		if r.Type.IsZero() {
			return fmt.Errorf("expect.records[%d]: type is required", i)
		}
		if err := validateSubrecords(r.Subrecords); err != nil {
			return fmt.Errorf("expect.records[%d]: %w", i, err)
		}
	}
	for i, c := range s.Expect.Conflicts {
		if c.Tag.IsZero() {
			return fmt.Errorf("expect.conflicts[%d]: tag is required", i)
		}
	}
	return nil
}

func validateSubrecords(subs []SubrecordDef) error {
	for i, s := range subs {
		if s.Sig.IsZero() {
			return fmt.Errorf("subrecords[%d]: sig is required", i)
		}
		if _, err := s.Bytes(); err != nil {
			return fmt.Errorf("subrecords[%d] %s: %w", i, s.Sig, err)
		}
	}
	return nil
}

// Bytes returns the subrecord payload.
func (s SubrecordDef) Bytes() ([]byte, error) {
	if len(s.Parts) == 0 {
		return s.Data.Bytes()
	}
	if s.Data.set() > 0 {
		return nil, fmt.Errorf("inline value and parts are exclusive")
	}
	var out []byte
	for i, p := range s.Parts {
		b, err := p.Bytes()
		if err != nil {
			return nil, fmt.Errorf("parts[%d]: %w", i, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func (d Data) set() int {
	n := 0
	for _, ok := range []bool{d.Z != nil, d.U8 != nil, d.U16 != nil, d.I16 != nil, d.U32 != nil, d.I32 != nil, d.F32 != nil, d.FormID != nil, d.Hex != ""} {
		if ok {
			n++
		}
	}
	return n
}

// Bytes encodes the value.
func (d Data) Bytes() ([]byte, error) {
	if d.set() > 1 {
		return nil, fmt.Errorf("more than one value set")
	}
	switch {
	case d.Z != nil:
		return record.EncodeZString(*d.Z)
	case d.U8 != nil:
		return tu.U8(*d.U8), nil
	case d.U16 != nil:
		return tu.U16(*d.U16), nil
	case d.I16 != nil:
		return tu.U16(uint16(*d.I16)), nil
	case d.U32 != nil:
		return tu.U32(*d.U32), nil
	case d.I32 != nil:
		return tu.U32(uint32(*d.I32)), nil
	case d.F32 != nil:
		return tu.F32(*d.F32), nil
	case d.FormID != nil:
		return tu.U32(uint32(*d.FormID)), nil
	case d.Hex != "":
		return hex.DecodeString(strings.ReplaceAll(d.Hex, " ", ""))
	}
	return nil, nil
}
