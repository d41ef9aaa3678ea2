// Package masters computes the minimal master list of a synthesized plugin
// and rewrites its records from the load-order-global FormID space into
// that list.
package masters

import (
	"fmt"
	"slices"

	"github.com/roach88/bashed/internal/loadorder"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
)

// Entry is one synthesized record in load-order-global form.
type Entry struct {
	Record *record.Record
	Plugin string // winning plugin, for diagnostics
}

// Result is the finalized output.
type Result struct {
	// Masters is the minimal master list, in load order.
	Masters []record.Master

	// Records are remapped into Masters and sorted by type group order,
	// then identifier.
	Records []*record.Record
}

// Options configures Finalize.
type Options struct {
	// Sizes supplies the DATA size written after each master name, keyed
	// by folded plugin name. Missing entries are written as 0.
	Sizes map[string]uint64

	// GroupOrder fixes the order of record types in the output. Types not
	// listed follow in signature order.
	GroupOrder []record.Signature
}

// Finalize computes the minimal set of origin plugins referenced by
// entries, assigns each its position in that set, and rewrites every
// FormID accordingly. A reference whose origin is not an active plugin
// fails with UnresolvedReferenceError.
func Finalize(t *schema.Table, order *loadorder.LoadOrder, entries []Entry, opts Options) (*Result, error) {
	active := order.Active()
	used := make([]bool, len(active))

	check := func(e Entry, tag record.Signature, fid record.FormID) error {
		i := int(fid.Index())
		if i >= len(active) {
			return &UnresolvedReferenceError{Plugin: e.Plugin, Type: e.Record.Sig, FormID: e.Record.FormID, Subrecord: tag, Reference: fid}
		}
		used[i] = true
		return nil
	}
	for _, e := range entries {
		if err := check(e, record.Signature{}, e.Record.FormID); err != nil {
			return nil, err
		}
		err := t.VisitFormIDs(e.Record, func(tag record.Signature, fid record.FormID) error {
			return check(e, tag, fid)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: record %s %s: %w", e.Plugin, e.Record.Sig, e.Record.FormID, err)
		}
	}

	res := &Result{}
	remap := make([]uint8, len(active))
	for i, name := range active {
		if !used[i] {
			continue
		}
		remap[i] = uint8(len(res.Masters))
		res.Masters = append(res.Masters, record.Master{Name: name, Size: opts.Sizes[record.FoldName(name)]})
	}

	mapFID := func(fid record.FormID) record.FormID {
		if fid.IsNull() {
			return fid
		}
		return fid.WithIndex(remap[fid.Index()])
	}
	res.Records = make([]*record.Record, len(entries))
	for i, e := range entries {
		r, err := t.RemapFormIDs(e.Record, mapFID, func(_ record.Signature, fid record.FormID) (record.FormID, error) {
			return mapFID(fid), nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: record %s %s: %w", e.Plugin, e.Record.Sig, e.Record.FormID, err)
		}
		res.Records[i] = r
	}

	rank := func(sig record.Signature) int {
		if i := slices.Index(opts.GroupOrder, sig); i >= 0 {
			return i
		}
		return len(opts.GroupOrder)
	}
	slices.SortStableFunc(res.Records, func(a, b *record.Record) int {
		if ra, rb := rank(a.Sig), rank(b.Sig); ra != rb {
			return ra - rb
		}
		if c := a.Sig.Compare(b.Sig); c != 0 {
			return c
		}
		switch {
		case a.FormID < b.FormID:
			return -1
		case a.FormID > b.FormID:
			return 1
		}
		return 0
	})
	return res, nil
}

// Names returns the master names of r in order.
func (r *Result) Names() []string {
	out := make([]string, len(r.Masters))
	for i, m := range r.Masters {
		out[i] = m.Name
	}
	return out
}
