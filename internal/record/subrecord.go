package record

import "sync"

// Subrecord is a tagged payload inside a Record.
//
// A parsed Subrecord holds raw bytes; its typed Value is decoded on first
// access and cached on the instance. A synthesized Subrecord (produced by
// merging) holds a typed Value that is encoded at serialization time.
type Subrecord struct {
	Sig Signature

	data     []byte
	oversize bool

	pending bool
	value   Value

	once    sync.Once
	decoded Value
	err     error
}

// NewSubrecord returns a raw subrecord. data is not copied.
func NewSubrecord(sig Signature, data []byte) *Subrecord {
	return &Subrecord{Sig: sig, data: data}
}

// NewOversizeSubrecord returns a raw subrecord that was framed by an XXXX
// marker on disk and must be written the same way.
func NewOversizeSubrecord(sig Signature, data []byte) *Subrecord {
	return &Subrecord{Sig: sig, data: data, oversize: true}
}

// NewValueSubrecord returns a subrecord carrying a typed value that still
// needs encoding.
func NewValueSubrecord(sig Signature, v Value) *Subrecord {
	return &Subrecord{Sig: sig, pending: true, value: v}
}

// Data returns the raw payload. It is nil for pending subrecords.
func (s *Subrecord) Data() []byte {
	return s.data
}

// Size returns the raw payload length.
func (s *Subrecord) Size() int {
	return len(s.data)
}

// Oversize reports whether the subrecord was framed with an XXXX marker.
func (s *Subrecord) Oversize() bool {
	return s.oversize
}

// Pending reports whether the subrecord carries an unencoded typed value.
func (s *Subrecord) Pending() bool {
	return s.pending
}

// PendingValue returns the typed value of a pending subrecord.
func (s *Subrecord) PendingValue() Value {
	return s.value
}

// Decode returns the typed value, decoding the raw payload with fn on the
// first call. The result (or error) is cached for the lifetime of s.
// Safe for concurrent use.
func (s *Subrecord) Decode(fn func([]byte) (Value, error)) (Value, error) {
	if s.pending {
		return s.value, nil
	}
	s.once.Do(func() {
		s.decoded, s.err = fn(s.data)
	})
	return s.decoded, s.err
}
