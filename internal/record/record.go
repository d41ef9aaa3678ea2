package record

import "sync"

// Header holds the fixed fields of a record chunk header.
type Header struct {
	Sig     Signature
	Flags   RecordFlags
	FormID  FormID
	VCInfo  uint32
	Version uint16 // 24-byte header profiles only
	Unknown uint16 // 24-byte header profiles only
}

// Deleted reports whether the record carries the deleted flag.
func (h Header) Deleted() bool {
	return h.Flags.Has(FlagDeleted)
}

// Ignored reports whether the record carries the ignored flag.
func (h Header) Ignored() bool {
	return h.Flags.Has(FlagIgnored)
}

// Compressed reports whether the record payload is zlib compressed.
func (h Header) Compressed() bool {
	return h.Flags.Has(FlagCompressed)
}

// PayloadDecoder splits a raw payload into subrecords.
// compressed is true when raw carries a size prefix and a zlib stream.
type PayloadDecoder func(raw []byte, compressed bool) ([]*Subrecord, error)

// payload is shared between a Record and its header-only clones so the
// subrecord split happens at most once.
type payload struct {
	raw        []byte
	compressed bool
	decode     PayloadDecoder

	once sync.Once
	subs []*Subrecord
	err  error
}

// Record is one game object definition.
//
// Records are immutable. WithFormID and WithSubrecords return new Records.
type Record struct {
	Header

	p        *payload
	modified bool
}

// NewParsedRecord returns a record backed by the raw payload read from disk.
// The payload is split into subrecords by decode on first access.
func NewParsedRecord(h Header, raw []byte, decode PayloadDecoder) *Record {
	return &Record{
		Header: h,
		p:      &payload{raw: raw, compressed: h.Compressed(), decode: decode},
	}
}

// NewRecord returns a synthesized record. Its payload is rebuilt from subs
// at serialization time.
func NewRecord(h Header, subs []*Subrecord) *Record {
	return &Record{
		Header:   h,
		p:        &payload{subs: subs},
		modified: true,
	}
}

// Subrecords returns the record's subrecords in file order.
// Safe for concurrent use; the split is performed once.
func (r *Record) Subrecords() ([]*Subrecord, error) {
	if r.p.decode == nil {
		return r.p.subs, nil
	}
	r.p.once.Do(func() {
		r.p.subs, r.p.err = r.p.decode(r.p.raw, r.p.compressed)
	})
	return r.p.subs, r.p.err
}

// Raw returns the payload exactly as read from disk, or nil for
// synthesized records.
func (r *Record) Raw() []byte {
	return r.p.raw
}

// Modified reports whether the payload must be rebuilt from subrecords.
func (r *Record) Modified() bool {
	return r.modified
}

// WithFormID returns a copy of r with a different FormID. The payload is
// shared, so an unmodified record stays byte-identical on output.
func (r *Record) WithFormID(fid FormID) *Record {
	clone := *r
	clone.FormID = fid
	return &clone
}

// WithSubrecords returns a synthesized copy of r carrying subs.
func (r *Record) WithSubrecords(subs []*Subrecord) *Record {
	return NewRecord(r.Header, subs)
}

// WithHeader returns a copy of r with a replaced header. The payload is
// shared.
func (r *Record) WithHeader(h Header) *Record {
	clone := *r
	clone.Header = h
	return &clone
}

// All returns every subrecord with the given signature.
func (r *Record) All(sig Signature) ([]*Subrecord, error) {
	subs, err := r.Subrecords()
	if err != nil {
		return nil, err
	}
	var out []*Subrecord
	for _, s := range subs {
		if s.Sig == sig {
			out = append(out, s)
		}
	}
	return out, nil
}

// First returns the first subrecord with the given signature.
func (r *Record) First(sig Signature) (*Subrecord, bool, error) {
	subs, err := r.Subrecords()
	if err != nil {
		return nil, false, err
	}
	for _, s := range subs {
		if s.Sig == sig {
			return s, true, nil
		}
	}
	return nil, false, nil
}

// EditorID returns the EDID string, or "" when absent or unreadable.
func (r *Record) EditorID() string {
	s, ok, err := r.First(SigEDID)
	if err != nil || !ok {
		return ""
	}
	if s.Pending() {
		for _, e := range s.PendingValue() {
			for _, f := range e {
				if f.Kind == KindZString {
					return f.Str
				}
			}
		}
		return ""
	}
	return DecodeZString(s.Data())
}
