package masters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bashed/internal/loadorder"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
	tu "github.com/roach88/bashed/internal/testutil"
)

func setup(t *testing.T) (*schema.Table, *loadorder.LoadOrder) {
	t.Helper()
	table, err := schema.Builtin()
	require.NoError(t, err)
	lo, err := loadorder.New([]string{"Base.esm", "Unused.esp", "ModA.esp", "ModB.esp"}, nil)
	require.NoError(t, err)
	return table, lo
}

func flst(fid record.FormID, forms ...uint32) *record.Record {
	subs := []*record.Subrecord{record.NewSubrecord(record.Sig("EDID"), tu.Z("List"))}
	for _, f := range forms {
		subs = append(subs, record.NewSubrecord(record.Sig("LNAM"), tu.U32(f)))
	}
	return record.NewRecord(record.Header{Sig: record.Sig("FLST"), FormID: fid}, subs)
}

func lnam(t *testing.T, table *schema.Table, r *record.Record) []record.FormID {
	t.Helper()
	subs, err := r.All(record.Sig("LNAM"))
	require.NoError(t, err)
	var out []record.FormID
	for _, s := range subs {
		v, _, err := table.Value(r.Sig, s)
		require.NoError(t, err)
		out = append(out, v[0][0].FormID())
	}
	return out
}

func TestFinalizeMinimizesMasters(t *testing.T) {
	table, lo := setup(t)
	entries := []Entry{
		{Record: flst(0x00000800, 0x03000A00, 0, 0x02000B00), Plugin: "ModB.esp"},
	}
	res, err := Finalize(table, lo, entries, Options{Sizes: map[string]uint64{"base.esm": 99}})
	require.NoError(t, err)

	assert.Equal(t, []string{"Base.esm", "ModA.esp", "ModB.esp"}, res.Names())
	assert.Equal(t, uint64(99), res.Masters[0].Size)
	require.Len(t, res.Records, 1)

	r := res.Records[0]
	assert.Equal(t, record.FormID(0x00000800), r.FormID)
	// Unused.esp is dropped, so ModA moves from 2 to 1 and ModB from 3 to 2.
	assert.Equal(t, []record.FormID{0x02000A00, 0, 0x01000B00}, lnam(t, table, r))
}

func TestFinalizeKeepsUnchangedRecordsShared(t *testing.T) {
	table, lo := setup(t)
	in := flst(0x00000800, 0x00000A00)
	res, err := Finalize(table, lo, []Entry{{Record: in, Plugin: "Base.esm"}}, Options{})
	require.NoError(t, err)
	assert.Same(t, in, res.Records[0])
	assert.Equal(t, []string{"Base.esm"}, res.Names())
}

func TestFinalizeDanglingReference(t *testing.T) {
	table, lo := setup(t)
	entries := []Entry{
		{Record: flst(0x00000800, 0xFF000A00), Plugin: "ModB.esp"},
	}
	_, err := Finalize(table, lo, entries, Options{})
	require.Error(t, err)
	assert.True(t, IsUnresolvedReferenceError(err))

	var ue *UnresolvedReferenceError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "ModB.esp", ue.Plugin)
	assert.Equal(t, record.Sig("FLST"), ue.Type)
	assert.Equal(t, record.Sig("LNAM"), ue.Subrecord)
	assert.Equal(t, record.FormID(0xFF000A00), ue.Reference)
	assert.Contains(t, ue.Error(), "LNAM")
}

func TestFinalizeReferenceToInactivePlugin(t *testing.T) {
	table, _ := setup(t)
	lo, err := loadorder.New([]string{"Base.esm", "ModA.esp"}, nil)
	require.NoError(t, err)
	// Index 2 names no active plugin once ModB left the set.
	_, err = Finalize(table, lo, []Entry{{Record: flst(0x00000800, 0x02000001), Plugin: "ModA.esp"}}, Options{})
	assert.True(t, IsUnresolvedReferenceError(err))
}

func TestFinalizeHeaderOutsideActiveSet(t *testing.T) {
	table, lo := setup(t)
	_, err := Finalize(table, lo, []Entry{{Record: flst(0x09000800), Plugin: "Ghost.esp"}}, Options{})
	var ue *UnresolvedReferenceError
	require.ErrorAs(t, err, &ue)
	assert.True(t, ue.Subrecord.IsZero())
	assert.Contains(t, ue.Error(), "no active origin plugin")
}

func TestFinalizeSortsRecords(t *testing.T) {
	table, lo := setup(t)
	glob := record.NewRecord(record.Header{Sig: record.Sig("GLOB"), FormID: 0x00000100}, nil)
	entries := []Entry{
		{Record: flst(0x03000900), Plugin: "ModB.esp"},
		{Record: glob, Plugin: "Base.esm"},
		{Record: flst(0x00000900), Plugin: "Base.esm"},
	}
	res, err := Finalize(table, lo, entries, Options{GroupOrder: []record.Signature{record.Sig("GLOB"), record.Sig("FLST")}})
	require.NoError(t, err)

	var got []string
	for _, r := range res.Records {
		got = append(got, r.Sig.String()+" "+r.FormID.String())
	}
	assert.Equal(t, []string{"GLOB 00000100", "FLST 00000900", "FLST 01000900"}, got)
}
