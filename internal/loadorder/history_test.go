package loadorder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(t *testing.T, names ...string) *LoadOrder {
	t.Helper()
	lo, err := New(names, nil)
	require.NoError(t, err)
	return lo
}

func TestHistoryUndoRedo(t *testing.T) {
	h := NewHistory(0)
	assert.Nil(t, h.Current())

	a := order(t, "A.esp", "B.esp")
	b := order(t, "B.esp", "A.esp")
	c := order(t, "A.esp", "B.esp", "C.esp")
	h.Push(a)
	h.Push(b)
	h.Push(c)
	assert.Same(t, c, h.Current())

	got, ok := h.Undo()
	require.True(t, ok)
	assert.Same(t, b, got)

	got, ok = h.Undo()
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = h.Undo()
	assert.False(t, ok, "nothing before the first entry")

	got, ok = h.Redo()
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestHistoryPushEqualIsNoop(t *testing.T) {
	h := NewHistory(0)
	h.Push(order(t, "A.esp"))
	h.Push(order(t, "a.esp"))
	assert.Equal(t, 1, h.Len())
}

func TestHistoryUndoSkipsEqualEntries(t *testing.T) {
	h := NewHistory(0)
	a := order(t, "A.esp", "B.esp")
	b := order(t, "B.esp", "A.esp")
	h.Push(a)
	h.Push(b)
	h.Undo()
	// Pushing an order equal to the redo target inserts before the tail.
	h.Push(order(t, "B.esp", "A.esp"))
	require.Equal(t, 3, h.Len())

	got, ok := h.Undo()
	require.True(t, ok)
	assert.True(t, got.Equal(a))
}

func TestHistoryTrimKeepsWindowAroundCurrent(t *testing.T) {
	h := NewHistory(4)
	var all []*LoadOrder
	for i := range 6 {
		lo := order(t, fmt.Sprintf("Mod%d.esp", i))
		all = append(all, lo)
		h.Push(lo)
	}
	assert.Equal(t, 4, h.Len())
	assert.Same(t, all[5], h.Current())

	// The oldest entries were dropped.
	for range 3 {
		_, ok := h.Undo()
		require.True(t, ok)
	}
	assert.Same(t, all[2], h.Current())
	_, ok := h.Undo()
	assert.False(t, ok)
}
