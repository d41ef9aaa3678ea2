package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bashed/internal/conflict"
	"github.com/roach88/bashed/internal/patch"
	"github.com/roach88/bashed/internal/record"
	tu "github.com/roach88/bashed/internal/testutil"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a fresh store with deterministic ids and times.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "builds.db")
	s, err := Open(path, WithIDGenerator(tu.NewSequentialIDs("")), WithNow(tu.NewClock(epoch, time.Minute).Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBuild() Build {
	return Build{
		Game:   "skyrim",
		Name:   "Bashed Patch, 0.esp",
		Dest:   "/data/Bashed Patch, 0.esp",
		Status: StatusOK,
		SHA256: "abc123",
		Size:   512,
		Stats:  patch.Stats{Plugins: 2, Objects: 3, Merged: 3, Changed: 1, Emitted: 1},
		Summary: conflict.Summary{
			Objects: 3, Unchanged: 1, Overridden: 1, Conflicting: 1,
		},
		Plugins: []Plugin{{Name: "Base.esm", Active: true}, {Name: "Off.esp"}, {Name: "ModA.esp", Active: true}},
		Conflicts: []Conflict{
			{
				FormID: 0x00000900, Type: record.Sig("FLST"), EditorID: "List", Status: conflict.Conflicting, Winner: "ModA.esp",
				Fields: []conflict.Field{{Tag: record.Sig("LNAM"), Status: conflict.Conflicting, Plugins: []string{"Base.esm", "ModA.esp"}, Values: 2}},
			},
			{
				FormID: 0x00000800, Type: record.Sig("WEAP"), Status: conflict.Overridden, Winner: "ModA.esp",
				Fields: []conflict.Field{{Tag: record.Sig("FULL"), Status: conflict.Overridden, By: "ModA.esp"}},
			},
		},
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builds.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builds.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, table := range []string{"builds", "build_plugins", "build_conflicts"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builds.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_build_conflicts_status")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_build_conflicts_status'").Scan(&name)
	assert.NoError(t, err)
}

func TestRecordBuild_AssignsIdentity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.RecordBuild(ctx, sampleBuild())
	require.NoError(t, err)
	second, err := s.RecordBuild(ctx, sampleBuild())
	require.NoError(t, err)

	assert.Equal(t, "build-1", first.ID)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, epoch, first.StartedAt)
	assert.Equal(t, "build-2", second.ID)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, epoch.Add(time.Minute), second.StartedAt)
}

func TestRecordBuild_DefaultIDsAreUUIDv7(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "builds.db"))
	require.NoError(t, err)
	defer s.Close()

	b, err := s.RecordBuild(context.Background(), sampleBuild())
	require.NoError(t, err)
	assert.Len(t, b.ID, 36)
	assert.Equal(t, byte('7'), b.ID[14])
}

func TestRecordBuild_DuplicateIDFails(t *testing.T) {
	s := createTestStore(t)
	b := sampleBuild()
	b.ID = "fixed"
	_, err := s.RecordBuild(context.Background(), b)
	require.NoError(t, err)
	_, err = s.RecordBuild(context.Background(), b)
	assert.Error(t, err)

	// The failed transaction left nothing behind.
	builds, err := s.ListBuilds(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}

func TestRecordBuild_RejectsUnknownStatus(t *testing.T) {
	s := createTestStore(t)
	b := sampleBuild()
	b.Status = "maybe"
	_, err := s.RecordBuild(context.Background(), b)
	assert.Error(t, err)
}

func TestGetBuild_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	want, err := s.RecordBuild(ctx, sampleBuild())
	require.NoError(t, err)

	got, err := s.GetBuild(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Stats, got.Stats)
	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.Plugins, got.Plugins)
	assert.Equal(t, want.StartedAt, got.StartedAt)

	// Conflicts come back ordered by FormID.
	require.Len(t, got.Conflicts, 2)
	assert.Equal(t, record.FormID(0x800), got.Conflicts[0].FormID)
	assert.Equal(t, want.Conflicts[1], got.Conflicts[0])
	assert.Equal(t, want.Conflicts[0], got.Conflicts[1])
}

func TestGetBuild_Latest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.RecordBuild(ctx, sampleBuild())
	require.NoError(t, err)
	failed := FailedBuild("skyrim", "Bashed Patch, 0.esp", nil, assert.AnError)
	_, err = s.RecordBuild(ctx, failed)
	require.NoError(t, err)

	got, err := s.GetBuild(ctx, "latest")
	require.NoError(t, err)
	assert.Equal(t, "build-2", got.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, assert.AnError.Error(), got.Error)
	assert.Empty(t, got.Plugins)
}

func TestGetBuild_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetBuild(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrBuildNotFound)
	_, err = s.GetBuild(context.Background(), "latest")
	assert.ErrorIs(t, err, ErrBuildNotFound)
}

func TestListBuilds_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	empty, err := s.ListBuilds(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for range 3 {
		_, err := s.RecordBuild(ctx, sampleBuild())
		require.NoError(t, err)
	}
	builds, err := s.ListBuilds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "build-3", builds[0].ID)
	assert.Equal(t, "build-2", builds[1].ID)
	assert.Nil(t, builds[0].Conflicts)
}

func TestConflicts_FilterByStatus(t *testing.T) {
	s := createTestStore(t)
	b, err := s.RecordBuild(context.Background(), sampleBuild())
	require.NoError(t, err)

	got, err := s.Conflicts(context.Background(), b.ID, conflict.Conflicting)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "List", got[0].EditorID)
}

func TestNewBuildFromPatch(t *testing.T) {
	base := tu.Skyrim().Flags(uint32(record.FlagMaster))
	base.Group("GLOB").Record("GLOB", 0x800, tu.S("EDID", tu.Z("Rate")), tu.S("FLTV", tu.F32(1)))
	mod := tu.Skyrim().Master("Base.esm", 0)
	mod.Group("GLOB").Record("GLOB", 0x800, tu.S("EDID", tu.Z("Rate")), tu.S("FLTV", tu.F32(2)))

	ctx := context.Background()
	sess, err := patch.LoadPluginBytes(ctx, []patch.Source{
		{Name: "Base.esm", Data: base.Bytes()},
		{Name: "Mod.esp", Data: mod.Bytes()},
	}, patch.Options{})
	require.NoError(t, err)
	bp, err := patch.BuildPatch(ctx, sess, patch.Policies{IncludeUnchanged: true})
	require.NoError(t, err)

	b := NewBuild("skyrim", sess, bp, patch.Output{Dest: "mem://p", Size: 10, SHA256: "ff"})
	assert.Equal(t, StatusOK, b.Status)
	assert.Equal(t, []Plugin{{Name: "Base.esm", Active: true}, {Name: "Mod.esp", Active: true}}, b.Plugins)
	require.Len(t, b.Conflicts, 1)
	assert.Equal(t, conflict.Overridden, b.Conflicts[0].Status)
	require.Len(t, b.Conflicts[0].Fields, 1)
	assert.Equal(t, record.Sig("FLTV"), b.Conflicts[0].Fields[0].Tag)

	s := createTestStore(t)
	rec, err := s.RecordBuild(ctx, b)
	require.NoError(t, err)
	got, err := s.GetBuild(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Conflicts, got.Conflicts)
}
