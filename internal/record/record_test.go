package record

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormIDParts(t *testing.T) {
	f := NewFormID(0x02, 0x00ABCDEF)
	assert.Equal(t, uint8(2), f.Index())
	assert.Equal(t, uint32(0xABCDEF), f.Local())
	assert.Equal(t, "02ABCDEF", f.String())
	assert.Equal(t, FormID(0x05ABCDEF), f.WithIndex(5))
	assert.True(t, NullFormID.IsNull())
	// Local ids wider than 24 bits are truncated, never spill into the index.
	assert.Equal(t, FormID(0x01FFFFFF), NewFormID(1, 0xFFFFFFFF))
}

func TestParseFormID(t *testing.T) {
	for in, want := range map[string]FormID{
		"00000800":    0x800,
		"0x01000A00":  0x01000A00,
		"800":         0x800,
		" 0XFF000001": 0xFF000001,
	} {
		got, err := ParseFormID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "xyz", "100000000"} {
		_, err := ParseFormID(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormIDJSON(t *testing.T) {
	b, err := json.Marshal(map[string]FormID{"id": 0x01000800})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"01000800"}`, string(b))

	var back map[string]FormID
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, FormID(0x01000800), back["id"])
}

func TestSignature(t *testing.T) {
	s := Sig("WEAP")
	assert.Equal(t, "WEAP", s.String())
	assert.False(t, s.IsZero())
	assert.True(t, Signature{}.IsZero())
	assert.Negative(t, Sig("ARMO").Compare(s))

	_, err := ParseSignature("WEAPON")
	assert.Error(t, err)
	assert.Panics(t, func() { Sig("XY") })

	var back Signature
	require.NoError(t, back.UnmarshalText([]byte("LVLI")))
	assert.Equal(t, Sig("LVLI"), back)
}

func TestRecordFlags(t *testing.T) {
	f := FlagDeleted.With(FlagCompressed)
	assert.True(t, f.Has(FlagDeleted))
	assert.True(t, f.Has(FlagDeleted|FlagCompressed))
	assert.False(t, f.Without(FlagDeleted).Has(FlagDeleted))

	h := Header{Flags: f}
	assert.True(t, h.Deleted())
	assert.True(t, h.Compressed())
	assert.False(t, h.Ignored())
}

func TestZStrings(t *testing.T) {
	b, err := EncodeZString("Café")
	require.NoError(t, err)
	assert.Equal(t, []byte{'C', 'a', 'f', 0xE9, 0}, b)
	assert.Equal(t, "Café", DecodeZString(b))
	assert.Equal(t, "abc", DecodeZString([]byte("abc\x00junk")))
	assert.Equal(t, "abc", DecodeZString([]byte("abc")))

	_, err = EncodeZString("日本")
	assert.Error(t, err)
}

func TestPluginNames(t *testing.T) {
	assert.True(t, SameName("Skyrim.esm", "SKYRIM.ESM"))
	assert.False(t, SameName("a.esp", "b.esp"))
}

func TestParsedRecordDecodesOnce(t *testing.T) {
	calls := 0
	decode := func(raw []byte, compressed bool) ([]*Subrecord, error) {
		calls++
		return []*Subrecord{NewSubrecord(SigEDID, append([]byte("Iron"), 0))}, nil
	}
	r := NewParsedRecord(Header{Sig: Sig("WEAP"), FormID: 0x800}, []byte("raw"), decode)

	assert.False(t, r.Modified())
	assert.Equal(t, "Iron", r.EditorID())
	_, err := r.Subrecords()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []byte("raw"), r.Raw())

	moved := r.WithFormID(0x01000800)
	assert.Equal(t, FormID(0x800), r.FormID)
	assert.Equal(t, []byte("raw"), moved.Raw())
	assert.False(t, moved.Modified())
}

func TestParsedRecordDecodeError(t *testing.T) {
	r := NewParsedRecord(Header{Sig: Sig("WEAP")}, nil, func([]byte, bool) ([]*Subrecord, error) {
		return nil, errors.New("truncated")
	})
	_, err := r.All(SigEDID)
	assert.Error(t, err)
	assert.Equal(t, "", r.EditorID())
}

func TestRecordLookup(t *testing.T) {
	r := NewRecord(Header{Sig: Sig("FLST")}, []*Subrecord{
		NewSubrecord(SigEDID, []byte("L\x00")),
		NewSubrecord(Sig("LNAM"), []byte{1, 0, 0, 0}),
		NewSubrecord(Sig("LNAM"), []byte{2, 0, 0, 0}),
	})
	assert.True(t, r.Modified())

	all, err := r.All(Sig("LNAM"))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, ok, err := r.First(Sig("XXXX"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigestDistinguishesContent(t *testing.T) {
	mk := func(b byte) *Record {
		return NewRecord(Header{Sig: Sig("GLOB"), FormID: 0x800}, []*Subrecord{NewSubrecord(Sig("FLTV"), []byte{b, 0, 0, 0})})
	}
	assert.Equal(t, MustDigest(mk(1)), MustDigest(mk(1)))
	assert.NotEqual(t, MustDigest(mk(1)), MustDigest(mk(2)))
	assert.NotEqual(t, MustDigest(mk(1)), MustDigest(mk(1).WithFormID(0x801)))
}

func TestSubrecordDecodeCaches(t *testing.T) {
	s := NewSubrecord(Sig("DATA"), []byte{7})
	calls := 0
	fn := func(b []byte) (Value, error) {
		calls++
		return Value{{Field{Name: "v", Kind: KindUint8, Int: int64(b[0])}}}, nil
	}
	v1, err := s.Decode(fn)
	require.NoError(t, err)
	v2, err := s.Decode(fn)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, v1.Equal(v2))

	pending := NewValueSubrecord(Sig("DATA"), v1)
	assert.True(t, pending.Pending())
	assert.Nil(t, pending.Data())
}
