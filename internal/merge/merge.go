package merge

import (
	"fmt"
	"slices"

	"github.com/roach88/bashed/internal/history"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
)

// Merged is the synthesized revision of one object.
type Merged struct {
	Key    record.FormID
	Record *record.Record

	// Winner is the plugin of the last visible revision, the one the game
	// would load without a patch.
	Winner string

	// Contributors lists, in load order, the plugins whose content ended
	// up in Record.
	Contributors []string

	// Changed reports whether Record differs from the winner's revision.
	Changed bool

	// Nested reports whether the object lives in a nested group.
	Nested bool
}

// MergeHistory synthesizes one record from h. It is a pure function of
// its inputs: identical inputs yield identical records. A removed object
// yields nil.
//
// The synthesized record starts from the winner; each rule of the type's
// binding then rewrites its subrecords in order. A rule acts only when at
// least one revision after the base participates, so a history with no
// tagged plugins merges exactly as last-override-wins.
func MergeHistory(t *schema.Table, h *history.History, reg *Registry, tags Tags) (*Merged, error) {
	visible := h.Visible()
	if len(visible) == 0 {
		return nil, nil
	}
	winner := visible[len(visible)-1]
	out := &Merged{Key: h.Key, Record: winner.Record, Winner: winner.Plugin, Contributors: []string{winner.Plugin}, Nested: h.Nested()}

	if err := reg.Check(t, h.Type); err != nil {
		return nil, err
	}
	b, ok := reg.Lookup(h.Type)
	if !ok || len(b.Rules) == 0 || len(visible) == 1 {
		return out, nil
	}

	winSubs, err := winner.Record.Subrecords()
	if err != nil {
		return nil, fmt.Errorf("%s: record %s %s: %w", winner.Plugin, winner.Record.Sig, winner.Record.FormID, err)
	}
	def, _ := t.Record(h.Type)
	m := &merger{
		table:   t,
		typ:     h.Type,
		def:     def,
		visible: visible,
		tags:    tags,
		subs:    slices.Clone(winSubs),
		used:    map[int]bool{len(visible) - 1: true},
	}
	for _, rule := range b.Rules {
		for _, tag := range rule.Subrecords {
			if err := m.apply(rule, tag); err != nil {
				return nil, err
			}
		}
	}

	changed, err := m.differs(winSubs)
	if err != nil {
		return nil, err
	}
	out.Contributors = m.contributors()
	if !changed {
		return out, nil
	}
	out.Changed = true
	out.Record = record.NewRecord(winner.Record.Header, m.subs)
	return out, nil
}

// merger holds the record under synthesis.
type merger struct {
	table   *schema.Table
	typ     record.Signature
	def     *schema.RecordDef // nil when the type has no layout
	visible []history.Entry
	tags    Tags
	subs    []*record.Subrecord
	used    map[int]bool // visible indices whose content was taken
}

func (m *merger) apply(rule Rule, tag record.Signature) error {
	var err error
	switch rule.Kind {
	case KindOverride:
		err = m.override(rule, tag)
	case KindUnion:
		err = m.union(rule, tag)
	case KindListMerge:
		err = m.listMerge(rule, tag)
	case KindAggregate:
		err = m.aggregate(rule, tag)
	}
	return err
}

// participates reports whether revision i takes part in a rule selected
// by tag. The base (i == 0) is handled by each rule.
func (m *merger) participates(i int, tag string) bool {
	return i > 0 && (tag == "" || m.tags.Has(m.visible[i].Plugin, tag))
}

func (m *merger) anyParticipant(tag string) bool {
	for i := 1; i < len(m.visible); i++ {
		if m.participates(i, tag) {
			return true
		}
	}
	return false
}

func (m *merger) occurrences(i int, tag record.Signature) ([]*record.Subrecord, error) {
	e := m.visible[i]
	subs, err := e.Record.All(tag)
	if err != nil {
		return nil, fmt.Errorf("%s: record %s %s: %w", e.Plugin, e.Record.Sig, e.Record.FormID, err)
	}
	return subs, nil
}

func (m *merger) fingerprint(i int, tag record.Signature) (string, error) {
	occ, err := m.occurrences(i, tag)
	if err != nil {
		return "", err
	}
	fp, err := m.table.Fingerprint(m.typ, occ)
	if err != nil {
		return "", m.wrap(i, tag, err)
	}
	return fp, nil
}

// elements returns every list element of tag in revision i.
func (m *merger) elements(i int, tag record.Signature) ([]record.Element, error) {
	occ, err := m.occurrences(i, tag)
	if err != nil {
		return nil, err
	}
	var out []record.Element
	for _, s := range occ {
		v, _, err := m.table.Value(m.typ, s)
		if err != nil {
			return nil, m.wrap(i, tag, err)
		}
		out = append(out, v...)
	}
	return out, nil
}

func (m *merger) wrap(i int, tag record.Signature, err error) error {
	e := m.visible[i]
	return fmt.Errorf("%s: record %s %s subrecord %s: %w", e.Plugin, e.Record.Sig, e.Record.FormID, tag, err)
}

// override takes tag from the last participant whose value differs from
// the base. A later non-participant cannot undo that change.
func (m *merger) override(rule Rule, tag record.Signature) error {
	base, err := m.fingerprint(0, tag)
	if err != nil {
		return err
	}
	src := -1
	for i := 1; i < len(m.visible); i++ {
		if !m.participates(i, rule.Tag) {
			continue
		}
		fp, err := m.fingerprint(i, tag)
		if err != nil {
			return err
		}
		if fp != base {
			src = i
		}
	}
	if src < 0 {
		return nil
	}
	occ, err := m.occurrences(src, tag)
	if err != nil {
		return err
	}
	m.used[src] = true
	m.replace(tag, occ)
	return nil
}

// union merges the elements of the base, every participant and the
// winner, deduplicated by the layout key, first-seen in load order.
func (m *merger) union(rule Rule, tag record.Signature) error {
	if !m.anyParticipant(rule.Tag) {
		return nil
	}
	def, _ := m.table.Subrecord(m.typ, tag)
	last := len(m.visible) - 1
	seen := make(map[string]bool)
	var elems []record.Element
	for i := range m.visible {
		if i != 0 && i != last && !m.participates(i, rule.Tag) {
			continue
		}
		es, err := m.elements(i, tag)
		if err != nil {
			return err
		}
		for _, e := range es {
			k := e.Key(def.Key)
			if seen[k] {
				continue
			}
			seen[k] = true
			elems = append(elems, e)
			if i > 0 {
				m.used[i] = true
			}
		}
	}
	return m.setList(tag, def, elems)
}

// listMerge keeps the base elements no remover dropped, then appends the
// elements participants (and the winner) added, first-seen in load order.
func (m *merger) listMerge(rule Rule, tag record.Signature) error {
	removers := make([]int, 0)
	if rule.RemoveTag != "" {
		for i := 1; i < len(m.visible); i++ {
			if m.tags.Has(m.visible[i].Plugin, rule.RemoveTag) {
				removers = append(removers, i)
			}
		}
	}
	if !m.anyParticipant(rule.Tag) && len(removers) == 0 {
		return nil
	}
	def, _ := m.table.Subrecord(m.typ, tag)

	baseElems, err := m.elements(0, tag)
	if err != nil {
		return err
	}
	inBase := make(map[string]bool, len(baseElems))
	for _, e := range baseElems {
		inBase[e.Key(def.Key)] = true
	}

	removed := make(map[string]bool)
	for _, i := range removers {
		es, err := m.elements(i, tag)
		if err != nil {
			return err
		}
		kept := make(map[string]bool, len(es))
		for _, e := range es {
			kept[e.Key(def.Key)] = true
		}
		for k := range inBase {
			if !kept[k] && !removed[k] {
				removed[k] = true
				m.used[i] = true
			}
		}
	}

	seen := make(map[string]bool)
	var elems []record.Element
	for _, e := range baseElems {
		k := e.Key(def.Key)
		if removed[k] || seen[k] {
			continue
		}
		seen[k] = true
		elems = append(elems, e)
	}
	last := len(m.visible) - 1
	for i := 1; i < len(m.visible); i++ {
		if i != last && !m.participates(i, rule.Tag) {
			continue
		}
		es, err := m.elements(i, tag)
		if err != nil {
			return err
		}
		for _, e := range es {
			k := e.Key(def.Key)
			if inBase[k] || seen[k] {
				continue
			}
			seen[k] = true
			elems = append(elems, e)
			m.used[i] = true
		}
	}
	return m.setList(tag, def, elems)
}

// aggregate combines numeric fields of a scalar subrecord. A field no
// participant changed keeps the winner's value.
func (m *merger) aggregate(rule Rule, tag record.Signature) error {
	if !m.anyParticipant(rule.Tag) {
		return nil
	}
	def, _ := m.table.Subrecord(m.typ, tag)
	fields := rule.Fields
	if len(fields) == 0 {
		for _, f := range def.Fields {
			if f.Kind.Numeric() {
				fields = append(fields, f.Name)
			}
		}
	}

	first := func(i int) (record.Element, error) {
		es, err := m.elements(i, tag)
		if err != nil || len(es) == 0 {
			return nil, err
		}
		return es[0], nil
	}
	base, err := first(0)
	if err != nil {
		return err
	}
	type contribution struct {
		index int
		field record.Field
	}
	elems := make([]record.Element, len(m.visible))
	for i := 1; i < len(m.visible); i++ {
		if m.participates(i, rule.Tag) {
			if elems[i], err = first(i); err != nil {
				return err
			}
		}
	}

	// The result is written into a copy of the current element.
	cur, err := m.current(tag)
	if err != nil {
		return err
	}
	if cur == nil {
		cur = base
	}
	if cur == nil {
		return nil
	}
	target := cur.Clone()
	changed := false
	for _, name := range fields {
		_, idx, ok := target.Field(name)
		if !ok {
			continue
		}
		bf, _, hasBase := base.Field(name)
		var changes []contribution
		for i := 1; i < len(m.visible); i++ {
			if elems[i] == nil {
				continue
			}
			f, _, ok := elems[i].Field(name)
			if !ok || (hasBase && f.Equal(bf)) {
				continue
			}
			changes = append(changes, contribution{index: i, field: f})
		}
		if len(changes) == 0 {
			continue
		}
		values := make([]record.Field, len(changes))
		for j, c := range changes {
			values[j] = c.field
			m.used[c.index] = true
		}
		target[idx] = combine(rule.Func, target[idx], bf, hasBase, values)
		changed = true
	}
	if !changed {
		return nil
	}
	m.replace(tag, []*record.Subrecord{record.NewValueSubrecord(tag, record.Value{target})})
	return nil
}

// current returns the first element of tag in the record under synthesis.
func (m *merger) current(tag record.Signature) (record.Element, error) {
	for _, s := range m.subs {
		if s.Sig != tag {
			continue
		}
		v, _, err := m.table.Value(m.typ, s)
		if err != nil {
			return nil, fmt.Errorf("record %s subrecord %s: %w", m.typ, tag, err)
		}
		if len(v) > 0 {
			return v[0], nil
		}
	}
	return nil, nil
}

// combine applies fn to the changed values. into supplies the name, kind
// and offset of the result.
func combine(fn Func, into, base record.Field, hasBase bool, changes []record.Field) record.Field {
	out := into
	switch fn {
	case FuncLast:
		out.Int, out.Float = changes[len(changes)-1].Int, changes[len(changes)-1].Float
	case FuncSum:
		if into.Kind == record.KindFloat32 {
			sum := float64(base.Float)
			for _, c := range changes {
				sum += float64(c.Float) - float64(base.Float)
			}
			out.Float = float32(sum)
		} else {
			sum := base.Int
			for _, c := range changes {
				sum += c.Int - base.Int
			}
			out.Int = sum
		}
	case FuncMax, FuncMin:
		pick := changes[0]
		if hasBase {
			pick = base
		}
		for _, c := range changes {
			if (fn == FuncMax && c.Number() > pick.Number()) || (fn == FuncMin && c.Number() < pick.Number()) {
				pick = c
			}
		}
		out.Int, out.Float = pick.Int, pick.Float
	}
	return out
}

// setList replaces tag with elems and keeps the layout's count subrecord
// in step.
func (m *merger) setList(tag record.Signature, def *schema.SubrecordDef, elems []record.Element) error {
	var repl []*record.Subrecord
	switch {
	case def.Array && len(elems) > 0:
		repl = []*record.Subrecord{record.NewValueSubrecord(tag, record.Value(elems))}
	case !def.Array:
		for _, e := range elems {
			repl = append(repl, record.NewValueSubrecord(tag, record.Value{e}))
		}
	}
	m.replace(tag, repl)

	if def.Count.IsZero() {
		return nil
	}
	if len(elems) == 0 {
		m.replace(def.Count, nil)
		return nil
	}
	cdef, ok := m.table.Subrecord(m.typ, def.Count)
	if !ok || len(cdef.Fields) == 0 {
		return fmt.Errorf("record %s: count subrecord %s has no layout", m.typ, def.Count)
	}
	f := cdef.Fields[0]
	count := record.Element{{Name: f.Name, Kind: f.Kind, Int: int64(len(elems)), Offset: -1}}
	m.replace(def.Count, []*record.Subrecord{record.NewValueSubrecord(def.Count, record.Value{count})})
	return nil
}

// replace swaps every occurrence of tag for repl. repl lands where the
// first occurrence was, or at the tag's declared position when absent.
func (m *merger) replace(tag record.Signature, repl []*record.Subrecord) {
	at := -1
	kept := m.subs[:0:0]
	for _, s := range m.subs {
		if s.Sig == tag {
			if at < 0 {
				at = len(kept)
			}
			continue
		}
		kept = append(kept, s)
	}
	if at < 0 {
		at = m.position(kept, tag)
	}
	m.subs = slices.Insert(kept, at, repl...)
}

// position returns where an absent tag belongs: before the first
// subrecord declared after it, or at the end.
func (m *merger) position(subs []*record.Subrecord, tag record.Signature) int {
	if m.def == nil {
		return len(subs)
	}
	rank := slices.Index(m.def.Order, tag)
	if rank < 0 {
		return len(subs)
	}
	for i, s := range subs {
		if r := slices.Index(m.def.Order, s.Sig); r > rank {
			return i
		}
	}
	return len(subs)
}

// differs reports whether the synthesized subrecords differ from subs.
func (m *merger) differs(subs []*record.Subrecord) (bool, error) {
	if len(subs) != len(m.subs) {
		return true, nil
	}
	for i, s := range subs {
		o := m.subs[i]
		if s == o {
			continue
		}
		if s.Sig != o.Sig {
			return true, nil
		}
		a, err := m.table.Canonical(m.typ, s)
		if err != nil {
			return false, err
		}
		b, err := m.table.Canonical(m.typ, o)
		if err != nil {
			return false, err
		}
		if string(a) != string(b) {
			return true, nil
		}
	}
	return false, nil
}

func (m *merger) contributors() []string {
	var out []string
	for i, e := range m.visible {
		if m.used[i] {
			out = append(out, e.Plugin)
		}
	}
	return out
}
