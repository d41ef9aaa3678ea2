package schema

import (
	"fmt"
	"maps"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/bashed/internal/record"
)

// Compile parses a CUE value holding a schema table.
// Uses the CUE SDK's Go API directly.
//
// The value is the root of the table, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`games: skyrim: {...}, records: {...}, policies: {...}`)
//	table, err := Compile(v)
//
// All three top-level fields are optional so that user tables can extend
// the builtin table piecemeal.
func Compile(v cue.Value) (*Table, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := NewTable()

	if gv := v.LookupPath(cue.ParsePath("games")); gv.Exists() {
		iter, err := gv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			g, err := compileGame(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			t.Games[g.Name] = g
		}
	}

	if rv := v.LookupPath(cue.ParsePath("records")); rv.Exists() {
		iter, err := rv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			d, err := compileRecord(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			t.Records[d.Sig] = d
		}
	}

	if pv := v.LookupPath(cue.ParsePath("policies")); pv.Exists() {
		iter, err := pv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			sig, err := parseSig(iter.Label(), "policies", iter.Value())
			if err != nil {
				return nil, err
			}
			rules, err := compileRules(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			t.Policies[sig] = rules
		}
	}

	return t, nil
}

// Validate checks cross references inside a complete table: every policy
// must name a known record type, known subrecords and known fields.
func (t *Table) Validate() error {
	for _, sig := range slices.SortedFunc(maps.Keys(t.Policies), record.Signature.Compare) {
		def, ok := t.Records[sig]
		if !ok {
			return &CompileError{Field: "policies." + sig.String(), Message: "no record layout for policy record type"}
		}
		for _, rule := range t.Policies[sig] {
			field := fmt.Sprintf("policies.%s[%s]", sig, rule.Tag)
			for _, sub := range rule.Subrecords {
				sd, ok := def.Subrecords[sub]
				if !ok {
					return &CompileError{Field: field, Message: fmt.Sprintf("unknown subrecord %s", sub)}
				}
				for _, name := range rule.Fields {
					if _, ok := sd.Field(name); !ok {
						return &CompileError{Field: field, Message: fmt.Sprintf("unknown field %s.%s", sub, name)}
					}
				}
			}
		}
	}
	return nil
}

func compileGame(name string, v cue.Value) (Game, error) {
	g := Game{Name: name}

	sizeVal := v.LookupPath(cue.ParsePath("record_header_size"))
	if !sizeVal.Exists() {
		return g, &CompileError{Field: "games." + name, Message: "record_header_size is required", Pos: v.Pos()}
	}
	size, err := sizeVal.Int64()
	if err != nil {
		return g, formatCUEError(err)
	}
	if size != 20 && size != 24 {
		return g, &CompileError{Field: "games." + name + ".record_header_size", Message: fmt.Sprintf("must be 20 or 24, got %d", size), Pos: sizeVal.Pos()}
	}
	g.RecordHeaderSize = int(size)

	versVal := v.LookupPath(cue.ParsePath("versions"))
	if !versVal.Exists() {
		return g, &CompileError{Field: "games." + name, Message: "versions is required", Pos: v.Pos()}
	}
	iter, err := versVal.List()
	if err != nil {
		return g, formatCUEError(err)
	}
	for iter.Next() {
		f, err := iter.Value().Float64()
		if err != nil {
			return g, formatCUEError(err)
		}
		g.Versions = append(g.Versions, float32(f))
	}
	if len(g.Versions) == 0 {
		return g, &CompileError{Field: "games." + name + ".versions", Message: "at least one version is required", Pos: versVal.Pos()}
	}
	return g, nil
}

func compileRecord(label string, v cue.Value) (*RecordDef, error) {
	sig, err := parseSig(label, "records", v)
	if err != nil {
		return nil, err
	}
	d := &RecordDef{Sig: sig, Subrecords: make(map[record.Signature]*SubrecordDef)}

	subsVal := v.LookupPath(cue.ParsePath("subrecords"))
	if !subsVal.Exists() {
		return nil, &CompileError{Field: "records." + label, Message: "subrecords is required", Pos: v.Pos()}
	}
	iter, err := subsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		sd, err := compileSubrecord("records."+label+".subrecords", iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		d.Subrecords[sd.Sig] = sd
		d.Order = append(d.Order, sd.Sig)
	}

	for _, sd := range d.Subrecords {
		if sd.Count.IsZero() {
			continue
		}
		field := fmt.Sprintf("records.%s.subrecords.%s.count", label, sd.Sig)
		cd, ok := d.Subrecords[sd.Count]
		if !ok {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("count subrecord %s is not declared", sd.Count)}
		}
		if cd.List() || len(cd.Fields) != 1 || !cd.Fields[0].Kind.Integer() {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("count subrecord %s must hold a single integer field", sd.Count)}
		}
		if !sd.List() {
			return nil, &CompileError{Field: field, Message: "count requires array or repeat"}
		}
	}
	return d, nil
}

func compileSubrecord(prefix, label string, v cue.Value) (*SubrecordDef, error) {
	sig, err := parseSig(label, prefix, v)
	if err != nil {
		return nil, err
	}
	path := prefix + "." + label
	sd := &SubrecordDef{Sig: sig}

	if sd.Repeat, err = optionalBool(v, "repeat"); err != nil {
		return nil, err
	}
	if sd.Array, err = optionalBool(v, "array"); err != nil {
		return nil, err
	}
	if sd.Repeat && sd.Array {
		return nil, &CompileError{Field: path, Message: "repeat and array are mutually exclusive", Pos: v.Pos()}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{Field: path, Message: "fields is required", Pos: v.Pos()}
	}
	iter, err := fieldsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	seen := make(map[string]bool)
	for iter.Next() {
		fd, err := compileField(path, iter.Value())
		if err != nil {
			return nil, err
		}
		if seen[fd.Name] {
			return nil, &CompileError{Field: path, Message: fmt.Sprintf("duplicate field %q", fd.Name), Pos: iter.Value().Pos()}
		}
		seen[fd.Name] = true
		sd.Fields = append(sd.Fields, fd)
	}
	if len(sd.Fields) == 0 {
		return nil, &CompileError{Field: path, Message: "at least one field is required", Pos: fieldsVal.Pos()}
	}
	if sd.Array {
		for _, fd := range sd.Fields {
			if fd.Kind == record.KindBytes && fd.Size == 0 {
				return nil, &CompileError{Field: path, Message: fmt.Sprintf("array field %q needs a fixed size", fd.Name), Pos: v.Pos()}
			}
		}
	}

	if keyVal := v.LookupPath(cue.ParsePath("key")); keyVal.Exists() {
		sd.Key, err = stringList(keyVal)
		if err != nil {
			return nil, err
		}
		for _, name := range sd.Key {
			if !seen[name] {
				return nil, &CompileError{Field: path + ".key", Message: fmt.Sprintf("unknown field %q", name), Pos: keyVal.Pos()}
			}
		}
	}

	if countVal := v.LookupPath(cue.ParsePath("count")); countVal.Exists() {
		s, err := countVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		sd.Count, err = record.ParseSignature(s)
		if err != nil {
			return nil, &CompileError{Field: path + ".count", Message: err.Error(), Pos: countVal.Pos()}
		}
	}
	return sd, nil
}

func compileField(path string, v cue.Value) (FieldDef, error) {
	var fd FieldDef
	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return fd, &CompileError{Field: path + ".fields", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return fd, formatCUEError(err)
	}
	if name == "" || name == TrailingField {
		return fd, &CompileError{Field: path + ".fields", Message: fmt.Sprintf("invalid field name %q", name), Pos: nameVal.Pos()}
	}
	fd.Name = name

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return fd, &CompileError{Field: path + "." + name, Message: "kind is required", Pos: v.Pos()}
	}
	kindName, err := kindVal.String()
	if err != nil {
		return fd, formatCUEError(err)
	}
	kind, ok := record.ParseKind(kindName)
	if !ok {
		return fd, &CompileError{Field: path + "." + name, Message: fmt.Sprintf("unknown kind %q", kindName), Pos: kindVal.Pos()}
	}
	fd.Kind = kind

	if sizeVal := v.LookupPath(cue.ParsePath("size")); sizeVal.Exists() {
		if kind != record.KindBytes {
			return fd, &CompileError{Field: path + "." + name, Message: "size is only valid for bytes", Pos: sizeVal.Pos()}
		}
		size, err := sizeVal.Int64()
		if err != nil {
			return fd, formatCUEError(err)
		}
		if size <= 0 || size > 0xFFFF {
			return fd, &CompileError{Field: path + "." + name, Message: fmt.Sprintf("invalid size %d", size), Pos: sizeVal.Pos()}
		}
		fd.Size = int(size)
	}
	return fd, nil
}

func compileRules(label string, v cue.Value) ([]RuleDef, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var rules []RuleDef
	for iter.Next() {
		rv := iter.Value()
		path := "policies." + label
		var r RuleDef
		if r.Tag, err = optionalString(rv, "tag"); err != nil {
			return nil, err
		}
		kindVal := rv.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{Field: path, Message: "kind is required", Pos: rv.Pos()}
		}
		if r.Kind, err = kindVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
		if r.Func, err = optionalString(rv, "func"); err != nil {
			return nil, err
		}
		if r.RemoveTag, err = optionalString(rv, "remove_tag"); err != nil {
			return nil, err
		}
		subsVal := rv.LookupPath(cue.ParsePath("subrecords"))
		if !subsVal.Exists() {
			return nil, &CompileError{Field: path, Message: "subrecords is required", Pos: rv.Pos()}
		}
		names, err := stringList(subsVal)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, &CompileError{Field: path, Message: "at least one subrecord is required", Pos: subsVal.Pos()}
		}
		for _, n := range names {
			sig, err := record.ParseSignature(n)
			if err != nil {
				return nil, &CompileError{Field: path + ".subrecords", Message: err.Error(), Pos: subsVal.Pos()}
			}
			r.Subrecords = append(r.Subrecords, sig)
		}
		if fv := rv.LookupPath(cue.ParsePath("fields")); fv.Exists() {
			if r.Fields, err = stringList(fv); err != nil {
				return nil, err
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func parseSig(label, prefix string, v cue.Value) (record.Signature, error) {
	sig, err := record.ParseSignature(label)
	if err != nil {
		return sig, &CompileError{Field: prefix + "." + label, Message: err.Error(), Pos: v.Pos()}
	}
	return sig, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(name))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalString(v cue.Value, name string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
