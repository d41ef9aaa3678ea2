package patch

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bashed/internal/codec"
	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/loadorder"
	"github.com/roach88/bashed/internal/masters"
	"github.com/roach88/bashed/internal/merge"
	"github.com/roach88/bashed/internal/publish"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/telemetry"
	tu "github.com/roach88/bashed/internal/testutil"
)

func weapon(full string, value uint32) []tu.Sub {
	return []tu.Sub{
		tu.S("EDID", tu.Z("Sword")),
		tu.S("FULL", tu.Z(full)),
		tu.S("DATA", tu.U32(value), tu.F32(9), tu.U16(5)),
	}
}

func formList(forms ...uint32) []tu.Sub {
	subs := []tu.Sub{tu.S("EDID", tu.Z("List"))}
	for _, f := range forms {
		subs = append(subs, tu.S("LNAM", tu.U32(f)))
	}
	return subs
}

// standardSources returns a master and two dependents that both edit the
// master's sword and form list. ModA renames the sword and extends the
// list; ModB changes the sword's value and extends the list differently.
func standardSources(modADescription string) []Source {
	base := tu.Skyrim().Flags(uint32(record.FlagMaster))
	base.Group("WEAP").Record("WEAP", 0x800, weapon("Sword", 10)...)
	base.Group("FLST").Record("FLST", 0x801, formList(0x800)...)

	modA := tu.Skyrim().Master("Base.esm", 0).Description(modADescription)
	modA.Group("WEAP").
		Record("WEAP", 0x800, weapon("Blade", 10)...).
		Record("WEAP", 0x01000900, weapon("Dagger", 3)...)
	modA.Group("FLST").Record("FLST", 0x801, formList(0x800, 0x01000900)...)

	modB := tu.Skyrim().Master("Base.esm", 0)
	modB.Group("WEAP").Record("WEAP", 0x800, weapon("Sword", 12)...)
	modB.Group("FLST").Record("FLST", 0x801, formList(0x800, 0x01000A00)...)

	// Deliberately out of load order.
	return []Source{
		{Name: "ModB.esp", Data: modB.Bytes()},
		{Name: "Base.esm", Data: base.Bytes()},
		{Name: "ModA.esp", Data: modA.Bytes()},
	}
}

func allTags() merge.Tags {
	return merge.NewTags(map[string][]string{
		"ModA.esp": {"Names", "Formlist"},
		"ModB.esp": {"Formlist"},
	})
}

func mustLoad(t *testing.T, sources []Source, opts Options) *Session {
	t.Helper()
	s, err := LoadPluginBytes(context.Background(), sources, opts)
	require.NoError(t, err)
	return s
}

// reparse writes bp to memory and parses it back.
func reparse(t *testing.T, s *Session, bp *BashedPatch) *record.Plugin {
	t.Helper()
	mem := publish.NewMemory()
	out, err := WritePatch(context.Background(), bp, "mem://patch", mem)
	require.NoError(t, err)
	data, ok := mem.Get("mem://patch")
	require.True(t, ok)
	assert.Equal(t, len(data), out.Size)
	assert.Len(t, out.SHA256, 64)

	p, err := s.Codec.Parse(bp.Plugin.Name, data)
	require.NoError(t, err)
	return p
}

type flat struct {
	sig    string
	formID record.FormID
	rec    *record.Record
}

func records(t *testing.T, p *record.Plugin) []flat {
	t.Helper()
	var out []flat
	require.NoError(t, p.Walk(func(_ []*record.Group, r *record.Record) error {
		out = append(out, flat{sig: r.Sig.String(), formID: r.FormID, rec: r})
		return nil
	}))
	return out
}

func lnam(t *testing.T, s *Session, r *record.Record) []record.FormID {
	t.Helper()
	subs, err := r.All(record.Sig("LNAM"))
	require.NoError(t, err)
	var out []record.FormID
	for _, sub := range subs {
		v, ok, err := s.Codec.Table().Value(r.Sig, sub)
		require.NoError(t, err)
		require.True(t, ok)
		out = append(out, v[0][0].FormID())
	}
	return out
}

func fieldOf(t *testing.T, s *Session, r *record.Record, tag, field string) record.Field {
	t.Helper()
	sub, ok, err := r.First(record.Sig(tag))
	require.NoError(t, err)
	require.True(t, ok)
	v, _, err := s.Codec.Table().Value(r.Sig, sub)
	require.NoError(t, err)
	f, _, ok := v[0].Field(field)
	require.True(t, ok)
	return f
}

func TestLoadResolvesOrder(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	assert.Equal(t, []string{"Base.esm", "ModA.esp", "ModB.esp"}, s.Order.Names())
	require.Len(t, s.Plugins, 3)
	assert.Equal(t, "Base.esm", s.Plugins[0].Name)
	assert.Empty(t, s.Skipped)

	p, ok := s.Plugin("moda.ESP")
	require.True(t, ok)
	assert.Equal(t, "ModA.esp", p.Name)
}

func TestLoadSkipsMalformedPlugins(t *testing.T) {
	sources := append(standardSources(""), Source{Name: "Broken.esp", Data: []byte("nope")})
	s := mustLoad(t, sources, Options{})

	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "Broken.esp", s.Skipped[0].Name)
	assert.True(t, codec.IsFormatError(s.Skipped[0].Err))
	assert.Equal(t, 3, s.Order.Len())
}

func TestLoadMissingMasterIsFatal(t *testing.T) {
	sources := standardSources("")
	_, err := LoadPluginBytes(context.Background(), sources[:1], Options{})
	require.Error(t, err)
	assert.True(t, loadorder.IsMissingMasterError(err))
}

func TestLoadSkipsCorruptSubrecords(t *testing.T) {
	modC := tu.Skyrim().Master("Base.esm", 0)
	modC.Group("WEAP").Record("WEAP", 0x800, weapon("Broken", 10)...)
	raw := modC.Bytes()
	// Declare far more FULL bytes than the payload holds.
	idx := bytes.LastIndex(raw, []byte("FULL"))
	raw[idx+4], raw[idx+5] = 0x00, 0x70

	s := mustLoad(t, append(standardSources(""), Source{Name: "ModC.esp", Data: raw}), Options{})
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "ModC.esp", s.Skipped[0].Name)
	var fe *codec.FormatError
	require.ErrorAs(t, s.Skipped[0].Err, &fe)
	assert.Equal(t, codec.ErrCodeTruncated, fe.Code)
	assert.Equal(t, []string{"Base.esm", "ModA.esp", "ModB.esp"}, s.Order.Names())

	bp, err := BuildPatch(context.Background(), s, Policies{Tags: allTags()})
	require.NoError(t, err)
	assert.Equal(t, 3, bp.Stats.Plugins)
}

func TestLoadInactiveMasterIsFatal(t *testing.T) {
	_, err := LoadPluginBytes(context.Background(), standardSources(""), Options{Active: []string{"ModA.esp", "ModB.esp"}})
	require.Error(t, err)
	var me *loadorder.MissingMasterError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "ModA.esp", me.Plugin)
	assert.Equal(t, "Base.esm", me.Master)
}

func TestLoadUnknownGame(t *testing.T) {
	_, err := LoadPluginBytes(context.Background(), nil, Options{Game: "morrowind"})
	assert.Error(t, err)
}

func TestLoadPluginsFromDisk(t *testing.T) {
	dir := t.TempDir()
	fs := &publish.FS{}
	var paths []string
	for _, src := range standardSources("") {
		path := dir + "/" + src.Name
		require.NoError(t, fs.Publish(context.Background(), path, src.Data))
		paths = append(paths, path)
	}
	s, err := LoadPlugins(context.Background(), paths, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Base.esm", "ModA.esp", "ModB.esp"}, s.Order.Names())
	assert.Equal(t, int64(len(standardSources("")[1].Data)), s.Plugins[0].Size)
}

func TestBuildPatchMergesTaggedChanges(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	bp, err := BuildPatch(context.Background(), s, Policies{Tags: allTags(), Author: "bashed"})
	require.NoError(t, err)

	assert.Equal(t, DefaultName, bp.Plugin.Name)
	assert.Equal(t, Stats{Plugins: 3, Objects: 3, Merged: 3, Changed: 2, Emitted: 2}, bp.Stats)

	p := reparse(t, s, bp)
	assert.Equal(t, []string{"Base.esm", "ModA.esp", "ModB.esp"}, p.MasterNames())
	assert.Equal(t, uint64(len(standardSources("")[1].Data)), p.Info.Masters[0].Size)
	assert.Equal(t, "bashed", p.Info.Author)
	assert.Equal(t, int32(4), p.Info.NumRecords)

	recs := records(t, p)
	require.Len(t, recs, 2)
	assert.Equal(t, "WEAP", recs[0].sig)
	assert.Equal(t, record.FormID(0x800), recs[0].formID)
	assert.Equal(t, "Blade", fieldOf(t, s, recs[0].rec, "FULL", "name").Str)
	assert.Equal(t, int64(12), fieldOf(t, s, recs[0].rec, "DATA", "value").Int)

	assert.Equal(t, "FLST", recs[1].sig)
	assert.Equal(t, []record.FormID{0x800, 0x01000900, 0x02000A00}, lnam(t, s, recs[1].rec))
}

func TestBuildPatchReadsDescriptionTags(t *testing.T) {
	s := mustLoad(t, standardSources("Renames. {{BASH:Names}}"), Options{})
	bp, err := BuildPatch(context.Background(), s, Policies{DescriptionTags: true})
	require.NoError(t, err)

	recs := records(t, reparse(t, s, bp))
	require.Len(t, recs, 1)
	assert.Equal(t, "Blade", fieldOf(t, s, recs[0].rec, "FULL", "name").Str)
}

func TestBuildPatchMinimizesMasters(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	tags := merge.NewTags(map[string][]string{"ModA.esp": {"Names"}})
	bp, err := BuildPatch(context.Background(), s, Policies{Tags: tags})
	require.NoError(t, err)

	// Only the sword changes and it references nothing outside Base.esm.
	assert.Equal(t, []record.Master{{Name: "Base.esm", Size: uint64(len(standardSources("")[1].Data))}}, bp.Masters)
	assert.Equal(t, 1, bp.Stats.Emitted)
}

func TestBuildPatchIncludeUnchanged(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	bp, err := BuildPatch(context.Background(), s, Policies{IncludeUnchanged: true})
	require.NoError(t, err)
	assert.Equal(t, 0, bp.Stats.Changed)
	assert.Equal(t, 3, bp.Stats.Emitted)
}

func TestBuildPatchReportsConflicts(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	bp, err := BuildPatch(context.Background(), s, Policies{})
	require.NoError(t, err)

	require.Len(t, bp.Conflicts, 3)
	var list *conflict.Report
	for _, r := range bp.Conflicts {
		if r.Type == record.Sig("FLST") {
			list = r
		}
	}
	require.NotNil(t, list)
	f, ok := list.Field(record.Sig("LNAM"))
	require.True(t, ok)
	assert.Equal(t, conflict.Conflicting, f.Status)
	assert.Equal(t, []string{"ModA.esp", "ModB.esp"}, f.Plugins)
	assert.Equal(t, 1, bp.Summary.Conflicting)
}

func TestBuildPatchIsDeterministic(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{Workers: 4})
	first, err := BuildPatch(context.Background(), s, Policies{Tags: allTags()})
	require.NoError(t, err)
	second, err := BuildPatch(context.Background(), mustLoad(t, standardSources(""), Options{Workers: 1}), Policies{Tags: allTags()})
	require.NoError(t, err)

	a, err := first.Bytes()
	require.NoError(t, err)
	b, err := second.Bytes()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildPatchInactivePluginIgnored(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{Active: []string{"Base.esm", "ModA.esp"}})
	bp, err := BuildPatch(context.Background(), s, Policies{Tags: allTags()})
	require.NoError(t, err)
	assert.Equal(t, 2, bp.Stats.Plugins)
	// ModA already wins everything it changes; nothing needs patching.
	assert.Equal(t, 0, bp.Stats.Emitted)
	assert.Empty(t, bp.Masters)
}

func TestBuildPatchTypeFilter(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	bp, err := BuildPatch(context.Background(), s, Policies{Tags: allTags(), Types: []record.Signature{record.Sig("FLST")}})
	require.NoError(t, err)
	assert.Equal(t, 1, bp.Stats.Emitted)
}

func TestBuildPatchPolicyError(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	reg := merge.NewRegistry(merge.WithoutFallback())
	_, err := BuildPatch(context.Background(), s, Policies{Registry: reg})
	require.Error(t, err)
	assert.True(t, merge.IsPolicyError(err))
}

func TestBuildPatchDanglingReferenceIsFatal(t *testing.T) {
	// ModD declares one master, so origin index 2 names no loaded file.
	modD := tu.Skyrim().Master("Base.esm", 0)
	modD.Group("FLST").Record("FLST", 0x801, formList(0x800, 0x02000B00)...)
	sources := append(standardSources(""), Source{Name: "ModD.esp", Data: modD.Bytes()})

	s := mustLoad(t, sources, Options{})
	require.Equal(t, "ModD.esp", s.Order.Names()[3])
	tags := allTags()
	tags.Add("ModD.esp", "Formlist")

	bp, err := BuildPatch(context.Background(), s, Policies{Tags: tags})
	require.Error(t, err)
	assert.Nil(t, bp)
	assert.True(t, masters.IsUnresolvedReferenceError(err))

	var ue *masters.UnresolvedReferenceError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "ModD.esp", ue.Plugin)
	assert.Equal(t, record.Sig("LNAM"), ue.Subrecord)
	assert.Equal(t, uint8(0xFF), ue.Reference.Index())
}

func TestBuildPatchCancelled(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildPatch(ctx, s, Policies{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPatchRecordsMetrics(t *testing.T) {
	m := telemetry.NewMetrics()
	s := mustLoad(t, standardSources(""), Options{Metrics: m})
	_, err := BuildPatch(context.Background(), s, Policies{Tags: allTags()})
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["bashed_builds_total"])
	assert.True(t, names["bashed_stage_duration_seconds"])
}

func TestWritePatchEncodingErrorWritesNothing(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{})
	bp, err := BuildPatch(context.Background(), s, Policies{Tags: allTags()})
	require.NoError(t, err)
	bp.Plugin.Header = nil

	mem := publish.NewMemory()
	_, err = WritePatch(context.Background(), bp, "mem://patch", mem)
	require.Error(t, err)
	assert.True(t, codec.IsEncodingError(err))
	assert.Empty(t, mem.Keys())
}

func TestDetectConflictsMatchesBuild(t *testing.T) {
	s := mustLoad(t, standardSources(""), Options{Workers: 2})
	reports, err := DetectConflicts(context.Background(), s)
	require.NoError(t, err)

	bp, err := BuildPatch(context.Background(), s, Policies{})
	require.NoError(t, err)
	assert.Equal(t, bp.Conflicts, reports)
	assert.Equal(t, bp.Summary, conflict.Summarize(reports))
}
