package schema

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bashed/internal/record"
)

func kwda(fids ...uint32) []byte {
	var b []byte
	for _, f := range fids {
		b = binary.LittleEndian.AppendUint32(b, f)
	}
	return b
}

func weapon(fid record.FormID, kw []byte) *record.Record {
	return record.NewRecord(record.Header{Sig: record.Sig("WEAP"), FormID: fid}, []*record.Subrecord{
		record.NewSubrecord(record.SigEDID, []byte("Sword\x00")),
		record.NewSubrecord(record.Sig("KSIZ"), kwda(uint32(len(kw)/4))),
		record.NewSubrecord(record.Sig("KWDA"), kw),
	})
}

func shiftIndex(delta uint8) RefMapper {
	return func(_ record.Signature, fid record.FormID) (record.FormID, error) {
		return fid.WithIndex(fid.Index() + delta), nil
	}
}

func TestRemapFormIDsPatchesReferences(t *testing.T) {
	table, err := Builtin()
	require.NoError(t, err)

	r := weapon(0x01000800, kwda(0x00000010, 0, 0x01000020))
	out, err := table.RemapFormIDs(r,
		func(fid record.FormID) record.FormID { return fid.WithIndex(5) },
		shiftIndex(2))
	require.NoError(t, err)

	assert.Equal(t, record.FormID(0x05000800), out.FormID)
	kw, ok, err := out.First(record.Sig("KWDA"))
	require.NoError(t, err)
	require.True(t, ok)
	// The null reference is never remapped.
	assert.Equal(t, kwda(0x02000010, 0, 0x03000020), kw.Data())

	// Subrecords without references are shared.
	subs, _ := r.Subrecords()
	outSubs, _ := out.Subrecords()
	assert.Same(t, subs[0], outSubs[0])

	// The input is not mutated.
	orig, _, _ := r.First(record.Sig("KWDA"))
	assert.Equal(t, kwda(0x00000010, 0, 0x01000020), orig.Data())
}

func TestRemapFormIDsIdentitySharesPayload(t *testing.T) {
	table, err := Builtin()
	require.NoError(t, err)

	r := weapon(0x00000800, kwda(0x00000010))
	out, err := table.RemapFormIDs(r, nil, shiftIndex(0))
	require.NoError(t, err)
	assert.Same(t, r, out)
}

func TestRemapFormIDsPendingValues(t *testing.T) {
	table, err := Builtin()
	require.NoError(t, err)

	v := record.Value{
		{{Name: "keyword", Kind: record.KindFormID, Int: 0x00000010}},
		{{Name: "keyword", Kind: record.KindFormID, Int: 0x01000020}},
	}
	r := record.NewRecord(record.Header{Sig: record.Sig("WEAP"), FormID: 0x00000800}, []*record.Subrecord{
		record.NewValueSubrecord(record.Sig("KWDA"), v),
	})
	out, err := table.RemapFormIDs(r, nil, shiftIndex(1))
	require.NoError(t, err)

	kw, _, _ := out.First(record.Sig("KWDA"))
	require.True(t, kw.Pending())
	assert.Equal(t, record.FormID(0x01000010), kw.PendingValue()[0][0].FormID())
	assert.Equal(t, record.FormID(0x02000020), kw.PendingValue()[1][0].FormID())
	// The original value is untouched.
	assert.Equal(t, int64(0x00000010), v[0][0].Int)
}

func TestRemapFormIDsPreservesOversize(t *testing.T) {
	table, err := Builtin()
	require.NoError(t, err)

	r := record.NewRecord(record.Header{Sig: record.Sig("WEAP"), FormID: 0x00000800}, []*record.Subrecord{
		record.NewOversizeSubrecord(record.Sig("KWDA"), kwda(0x00000010)),
	})
	out, err := table.RemapFormIDs(r, nil, shiftIndex(1))
	require.NoError(t, err)
	kw, _, _ := out.First(record.Sig("KWDA"))
	assert.True(t, kw.Oversize())
}

func TestRemapFormIDsPropagatesMapperError(t *testing.T) {
	table, err := Builtin()
	require.NoError(t, err)

	boom := errors.New("dangling")
	r := weapon(0x00000800, kwda(0x07000010))
	_, err = table.RemapFormIDs(r, nil, func(tag record.Signature, fid record.FormID) (record.FormID, error) {
		assert.Equal(t, record.Sig("KWDA"), tag)
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestVisitFormIDs(t *testing.T) {
	table, err := Builtin()
	require.NoError(t, err)

	r := weapon(0x00000800, kwda(0x00000010, 0, 0x01000020))
	var seen []record.FormID
	err = table.VisitFormIDs(r, func(tag record.Signature, fid record.FormID) error {
		assert.Equal(t, record.Sig("KWDA"), tag)
		seen = append(seen, fid)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []record.FormID{0x00000010, 0x01000020}, seen)
}
