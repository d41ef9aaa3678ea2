package schema

import (
	"encoding/binary"

	"github.com/roach88/bashed/internal/record"
)

// RefMapper maps one non-null reference found in subrecord tag.
type RefMapper func(tag record.Signature, fid record.FormID) (record.FormID, error)

// VisitFormIDs calls fn for every non-null reference inside r whose layout
// is known. The record's own FormID is not visited.
func (t *Table) VisitFormIDs(r *record.Record, fn func(tag record.Signature, fid record.FormID) error) error {
	def, ok := t.Record(r.Sig)
	if !ok || !def.HasFormIDs() {
		return nil
	}
	subs, err := r.Subrecords()
	if err != nil {
		return err
	}
	for _, s := range subs {
		sd, ok := def.Subrecords[s.Sig]
		if !ok || !sd.HasFormIDs() {
			continue
		}
		v, _, err := t.Value(r.Sig, s)
		if err != nil {
			return err
		}
		for _, e := range v {
			for _, f := range e {
				if f.Kind != record.KindFormID || f.FormID().IsNull() {
					continue
				}
				if err := fn(s.Sig, f.FormID()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// RemapFormIDs rewrites the record's own FormID through header and every
// non-null reference through ref.
//
// Raw subrecords are patched in place on a copy of their payload, so an
// untouched subrecord stays byte-identical. When no reference changes, the
// result shares r's payload and serializes exactly as r did.
func (t *Table) RemapFormIDs(r *record.Record, header func(record.FormID) record.FormID, ref RefMapper) (*record.Record, error) {
	fid := r.FormID
	if header != nil {
		fid = header(r.FormID)
	}
	def, ok := t.Record(r.Sig)
	if !ok || !def.HasFormIDs() || ref == nil {
		return withFormID(r, fid), nil
	}
	subs, err := r.Subrecords()
	if err != nil {
		return nil, err
	}

	var out []*record.Subrecord
	for i, s := range subs {
		repl, err := t.remapSubrecord(r.Sig, def, s, ref)
		if err != nil {
			return nil, err
		}
		if repl == s && out == nil {
			continue
		}
		if out == nil {
			out = make([]*record.Subrecord, i, len(subs))
			copy(out, subs[:i])
		}
		out = append(out, repl)
	}
	if out == nil {
		return withFormID(r, fid), nil
	}
	h := r.Header
	h.FormID = fid
	return record.NewRecord(h, out), nil
}

func withFormID(r *record.Record, fid record.FormID) *record.Record {
	if fid == r.FormID {
		return r
	}
	return r.WithFormID(fid)
}

// remapSubrecord returns s itself when no reference changed.
func (t *Table) remapSubrecord(rec record.Signature, def *RecordDef, s *record.Subrecord, ref RefMapper) (*record.Subrecord, error) {
	sd, ok := def.Subrecords[s.Sig]
	if !ok || !sd.HasFormIDs() {
		return s, nil
	}

	if s.Pending() {
		v := s.PendingValue()
		var cloned record.Value
		for i, e := range v {
			for j, f := range e {
				if f.Kind != record.KindFormID || f.FormID().IsNull() {
					continue
				}
				nf, err := ref(s.Sig, f.FormID())
				if err != nil {
					return nil, err
				}
				if nf == f.FormID() {
					continue
				}
				if cloned == nil {
					cloned = v.Clone()
				}
				cloned[i][j].Int = int64(uint32(nf))
			}
		}
		if cloned == nil {
			return s, nil
		}
		return record.NewValueSubrecord(s.Sig, cloned), nil
	}

	v, _, err := t.Value(rec, s)
	if err != nil {
		return nil, err
	}
	var data []byte
	for _, e := range v {
		for _, f := range e {
			if f.Kind != record.KindFormID || f.FormID().IsNull() || f.Offset < 0 {
				continue
			}
			nf, err := ref(s.Sig, f.FormID())
			if err != nil {
				return nil, err
			}
			if nf == f.FormID() {
				continue
			}
			if data == nil {
				data = append([]byte(nil), s.Data()...)
			}
			binary.LittleEndian.PutUint32(data[f.Offset:], uint32(nf))
		}
	}
	if data == nil {
		return s, nil
	}
	if s.Oversize() {
		return record.NewOversizeSubrecord(s.Sig, data), nil
	}
	return record.NewSubrecord(s.Sig, data), nil
}
