package loadorder

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMastersFirst(t *testing.T) {
	nodes := []Node{
		{Name: "ModB.esp", Masters: []string{"Base.esm", "ModA.esp"}},
		{Name: "ModA.esp", Masters: []string{"Base.esm"}},
		{Name: "Base.esm", IsMaster: true},
	}
	lo, err := Resolve(nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Base.esm", "ModA.esp", "ModB.esp"}, lo.Names())
}

func TestResolveMasterBeforeDependent(t *testing.T) {
	nodes := []Node{
		{Name: "Z.esp", Masters: []string{"Y.esp"}},
		{Name: "Y.esp", Masters: []string{"X.esm"}},
		{Name: "X.esm", IsMaster: true},
		{Name: "A.esp", Masters: []string{"Z.esp", "X.esm"}},
		{Name: "Patch.esp", Masters: []string{"A.esp", "Y.esp"}},
		{Name: "Free.esp"},
	}
	// A preference that contradicts the master graph must not win.
	pref := []string{"Patch.esp", "A.esp", "Z.esp", "Y.esp", "X.esm", "Free.esp"}
	lo, err := Resolve(nodes, pref)
	require.NoError(t, err)

	for _, n := range nodes {
		pi, _ := lo.Index(n.Name)
		for _, m := range n.Masters {
			mi, ok := lo.Index(m)
			require.True(t, ok)
			assert.Less(t, mi, pi, "%s must load before %s", m, n.Name)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	nodes := []Node{
		{Name: "c.esp"}, {Name: "B.esp"}, {Name: "a.esp"},
		{Name: "Base.esm", IsMaster: true},
		{Name: "d.esp", Masters: []string{"Base.esm"}},
	}
	pref := []string{"b.esp", "C.esp"}

	first, err := Resolve(nodes, pref)
	require.NoError(t, err)
	second, err := Resolve(nodes, pref)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	// Reversing the input slice must not change the result.
	reversed := []Node{nodes[4], nodes[3], nodes[2], nodes[1], nodes[0]}
	third, err := Resolve(reversed, pref)
	require.NoError(t, err)
	assert.Equal(t, first.Names(), third.Names())
}

func TestResolveTieBreaks(t *testing.T) {
	nodes := []Node{
		{Name: "zeta.esp"},
		{Name: "Alpha.esp"},
		{Name: "Late.esm", IsMaster: true},
		{Name: "Pref2.esp"},
		{Name: "Pref1.esp"},
	}
	lo, err := Resolve(nodes, []string{"pref1.esp", "PREF2.ESP"})
	require.NoError(t, err)
	// Preferred first, then unlisted masters, then unlisted plugins by name.
	assert.Equal(t, []string{"Pref1.esp", "Pref2.esp", "Late.esm", "Alpha.esp", "zeta.esp"}, lo.Names())
}

func TestResolveMissingMaster(t *testing.T) {
	_, err := Resolve([]Node{
		{Name: "ModA.esp", Masters: []string{"Base.esm"}},
	}, nil)
	require.Error(t, err)
	assert.True(t, IsMissingMasterError(err))

	var me *MissingMasterError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "ModA.esp", me.Plugin)
	assert.Equal(t, "Base.esm", me.Master)
}

func TestResolveMasterNamesCaseInsensitive(t *testing.T) {
	lo, err := Resolve([]Node{
		{Name: "ModA.esp", Masters: []string{"BASE.ESM"}},
		{Name: "Base.esm", IsMaster: true},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Base.esm", "ModA.esp"}, lo.Names())
}

func TestResolveCycle(t *testing.T) {
	_, err := Resolve([]Node{
		{Name: "A.esp", Masters: []string{"B.esp"}},
		{Name: "B.esp", Masters: []string{"C.esp"}},
		{Name: "C.esp", Masters: []string{"A.esp"}},
		{Name: "D.esp", Masters: []string{"A.esp"}},
		{Name: "Base.esm", IsMaster: true},
	}, nil)
	require.Error(t, err)
	assert.True(t, IsCyclicMastersError(err))

	var ce *CyclicMastersError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"A.esp", "B.esp", "C.esp", "A.esp"}, ce.Cycle)
	assert.Contains(t, ce.Error(), "A.esp → B.esp → C.esp → A.esp")
}

func TestResolveSelfMaster(t *testing.T) {
	_, err := Resolve([]Node{{Name: "Loop.esp", Masters: []string{"Loop.esp"}}}, nil)
	var ce *CyclicMastersError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"Loop.esp", "Loop.esp"}, ce.Cycle)
}

func TestResolveTooManyPlugins(t *testing.T) {
	nodes := make([]Node, MaxPlugins+1)
	for i := range nodes {
		nodes[i] = Node{Name: fmt.Sprintf("Mod%03d.esp", i)}
	}
	_, err := Resolve(nodes, nil)
	require.Error(t, err)
	assert.True(t, IsTooManyPluginsError(err))

	_, err = Resolve(nodes[:MaxPlugins], nil)
	require.NoError(t, err)
}

func TestResolveDuplicateNames(t *testing.T) {
	_, err := Resolve([]Node{{Name: "A.esp"}, {Name: "a.ESP"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadOrderIndices(t *testing.T) {
	lo, err := New([]string{"Base.esm", "Off.esp", "ModA.esp"}, []string{"moda.esp", "Base.esm"})
	require.NoError(t, err)

	i, ok := lo.Index("MODA.ESP")
	require.True(t, ok)
	assert.Equal(t, 2, i)

	ai, ok := lo.ActiveIndex("ModA.esp")
	require.True(t, ok)
	assert.Equal(t, 1, ai)

	_, ok = lo.ActiveIndex("Off.esp")
	assert.False(t, ok)
	assert.Equal(t, []string{"Base.esm", "ModA.esp"}, lo.Active())
	assert.Equal(t, "*Base.esm, Off.esp, *ModA.esp", lo.String())
}

func TestLoadOrderActiveMustBeOrdered(t *testing.T) {
	_, err := New([]string{"A.esp"}, []string{"B.esp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B.esp")
}

func TestLoadOrderOrdered(t *testing.T) {
	lo, err := New([]string{"Base.esm", "ModA.esp", "ModB.esp"}, nil)
	require.NoError(t, err)
	got := lo.Ordered([]string{"zz.esp", "ModB.esp", "AA.esp", "Base.esm"})
	assert.Equal(t, []string{"Base.esm", "ModB.esp", "AA.esp", "zz.esp"}, got)
}

func TestLoadOrderEqual(t *testing.T) {
	a, _ := New([]string{"A.esp", "B.esp"}, nil)
	b, _ := New([]string{"a.esp", "b.esp"}, nil)
	c, _ := New([]string{"A.esp", "B.esp"}, []string{"A.esp"})
	d, _ := New([]string{"B.esp", "A.esp"}, nil)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.False(t, a.Equal(nil))
}

func TestCheckActiveRequiresActiveMasters(t *testing.T) {
	nodes := []Node{
		{Name: "Base.esm", IsMaster: true},
		{Name: "ModA.esp", Masters: []string{"Base.esm"}},
		{Name: "ModB.esp", Masters: []string{"base.ESM", "ModA.esp"}},
	}
	full, err := Resolve(nodes, nil)
	require.NoError(t, err)
	require.NoError(t, full.CheckActive(nodes))

	lo, err := New(full.Names(), []string{"Base.esm", "ModA.esp"})
	require.NoError(t, err)
	assert.NoError(t, lo.CheckActive(nodes), "inactive dependents do not matter")

	lo, err = New(full.Names(), []string{"ModA.esp", "ModB.esp"})
	require.NoError(t, err)
	err = lo.CheckActive(nodes)
	var me *MissingMasterError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "ModA.esp", me.Plugin)
	assert.Equal(t, "Base.esm", me.Master)
}
