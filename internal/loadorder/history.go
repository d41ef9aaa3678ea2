package loadorder

// DefaultHistorySize is the number of load orders a History keeps.
const DefaultHistorySize = 256

// History is a bounded undo/redo list of load orders. It lives in memory
// only; persisting it is up to the caller.
//
// Thread-safety: not safe for concurrent use.
type History struct {
	entries []*LoadOrder
	cur     int
	max     int
}

// NewHistory returns an empty history keeping at most max entries
// (DefaultHistorySize when max <= 0).
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{cur: -1, max: max}
}

// Current returns the current load order, or nil when empty.
func (h *History) Current() *LoadOrder {
	if h.cur < 0 {
		return nil
	}
	return h.entries[h.cur]
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Push records lo as the new current entry. Pushing an order equal to the
// current one is a no-op. Entries after the current one (the redo tail)
// are kept after the new entry.
func (h *History) Push(lo *LoadOrder) {
	if cur := h.Current(); cur != nil && cur.Equal(lo) {
		return
	}
	h.cur++
	h.entries = append(h.entries[:h.cur], append([]*LoadOrder{lo}, h.entries[h.cur:]...)...)
	h.trim()
}

// Undo moves to the previous entry that differs from the current one and
// returns it. ok is false when there is nothing to undo.
func (h *History) Undo() (lo *LoadOrder, ok bool) {
	return h.move(-1)
}

// Redo moves to the next entry that differs from the current one and
// returns it. ok is false when there is nothing to redo.
func (h *History) Redo() (lo *LoadOrder, ok bool) {
	return h.move(1)
}

func (h *History) move(step int) (*LoadOrder, bool) {
	cur := h.Current()
	for i := h.cur + step; i >= 0 && i < len(h.entries); i += step {
		if !h.entries[i].Equal(cur) {
			h.cur = i
			return h.entries[i], true
		}
	}
	return cur, false
}

// trim drops entries beyond max, keeping a window around the current
// entry: up to half of max on each side, any unused share going to the
// other side.
func (h *History) trim() {
	n := len(h.entries)
	if n <= h.max {
		return
	}
	half := h.max / 2
	after := n - h.cur // includes the current entry
	var before int
	switch {
	case after <= half:
		before = h.max - after
	case h.cur > half:
		before, after = half, h.max-half
	default:
		before, after = h.cur, h.max-h.cur
	}
	start := h.cur - before
	h.entries = append([]*LoadOrder(nil), h.entries[start:h.cur+after]...)
	h.cur = before
}
