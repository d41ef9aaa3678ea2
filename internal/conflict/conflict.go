// Package conflict classifies, per subrecord tag, how the revisions of one
// object differ across the load order.
//
// Classification is purely relative to the history: the base is the first
// visible revision, and a tag is compared by typed value when the schema
// knows its layout and by raw bytes otherwise. No game-specific meaning is
// attached to any tag.
package conflict

import (
	"fmt"

	"github.com/roach88/bashed/internal/history"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
)

// Status is the classification of one tag.
type Status string

const (
	Unchanged   Status = "unchanged"   // every revision repeats the base
	Overridden  Status = "overridden"  // overriding revisions agree on one value
	Conflicting Status = "conflicting" // overriding revisions disagree
)

// rank orders statuses from benign to severe.
func (s Status) rank() int {
	switch s {
	case Overridden:
		return 1
	case Conflicting:
		return 2
	}
	return 0
}

// Field is the classification of one subrecord tag.
type Field struct {
	Tag    record.Signature `json:"tag"`
	Status Status           `json:"status"`

	// By is the last plugin overriding the tag. Set for Overridden.
	By string `json:"by,omitempty"`

	// Plugins lists every overriding plugin in load order. Set for
	// Overridden and Conflicting.
	Plugins []string `json:"plugins,omitempty"`

	// Values is the number of distinct overriding values.
	Values int `json:"values,omitempty"`
}

// Report is the classification of one object.
type Report struct {
	Key      record.FormID    `json:"formid"`
	Type     record.Signature `json:"type"`
	EditorID string           `json:"editor_id,omitempty"`
	Plugins  []string         `json:"plugins"`
	Winner   string           `json:"winner,omitempty"`
	Removed  bool             `json:"removed,omitempty"`
	Fields   []Field          `json:"fields,omitempty"`
}

// Status returns the most severe field status.
func (r *Report) Status() Status {
	worst := Unchanged
	for _, f := range r.Fields {
		if f.Status.rank() > worst.rank() {
			worst = f.Status
		}
	}
	return worst
}

// Field returns the classification of tag.
func (r *Report) Field(tag record.Signature) (Field, bool) {
	for _, f := range r.Fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

// Conflicts returns the conflicting fields.
func (r *Report) Conflicts() []Field {
	var out []Field
	for _, f := range r.Fields {
		if f.Status == Conflicting {
			out = append(out, f)
		}
	}
	return out
}

// Detector diffs histories against a schema table.
type Detector struct {
	table *schema.Table
}

// NewDetector returns a detector comparing typed values with table.
func NewDetector(table *schema.Table) *Detector {
	return &Detector{table: table}
}

// Diff classifies every tag of h's visible revisions.
func (d *Detector) Diff(h *history.History) (*Report, error) {
	rep := &Report{Key: h.Key, Type: h.Type, Plugins: h.Plugins(), Removed: h.Removed()}
	visible := h.Visible()
	if len(visible) == 0 {
		return rep, nil
	}
	winner := visible[len(visible)-1]
	rep.Winner = winner.Plugin
	rep.EditorID = winner.Record.EditorID()

	// values[i][tag] is the comparison key of tag in revision i.
	var tags []record.Signature
	seen := make(map[record.Signature]bool)
	values := make([]map[record.Signature]string, len(visible))
	for i, e := range visible {
		vals, order, err := d.tagValues(e)
		if err != nil {
			return nil, err
		}
		values[i] = vals
		for _, tag := range order {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}

	for _, tag := range tags {
		rep.Fields = append(rep.Fields, classify(tag, visible, values))
	}
	return rep, nil
}

func classify(tag record.Signature, visible []history.Entry, values []map[record.Signature]string) Field {
	base := values[0][tag]
	f := Field{Tag: tag, Status: Unchanged}
	distinct := make(map[string]bool)
	for i := 1; i < len(visible); i++ {
		v := values[i][tag]
		if v == base {
			continue
		}
		distinct[v] = true
		f.Plugins = append(f.Plugins, visible[i].Plugin)
	}
	f.Values = len(distinct)
	switch {
	case len(distinct) == 1:
		f.Status = Overridden
		f.By = f.Plugins[len(f.Plugins)-1]
	case len(distinct) > 1:
		f.Status = Conflicting
	}
	return f
}

// tagValues returns the fingerprint of every tag present in e, plus the
// tags in order of first appearance.
func (d *Detector) tagValues(e history.Entry) (map[record.Signature]string, []record.Signature, error) {
	subs, err := e.Record.Subrecords()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: record %s %s: %w", e.Plugin, e.Record.Sig, e.Record.FormID, err)
	}
	groups := make(map[record.Signature][]*record.Subrecord)
	var order []record.Signature
	for _, s := range subs {
		if _, ok := groups[s.Sig]; !ok {
			order = append(order, s.Sig)
		}
		groups[s.Sig] = append(groups[s.Sig], s)
	}
	out := make(map[record.Signature]string, len(groups))
	for _, tag := range order {
		fp, err := d.table.Fingerprint(e.Record.Sig, groups[tag])
		if err != nil {
			return nil, nil, fmt.Errorf("%s: record %s %s subrecord %s: %w", e.Plugin, e.Record.Sig, e.Record.FormID, tag, err)
		}
		out[tag] = fp
	}
	return out, order, nil
}
