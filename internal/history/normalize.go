package history

import (
	"fmt"

	"github.com/roach88/bashed/internal/loadorder"
	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
)

// Mapping translates one plugin's file-relative FormIDs into the
// load-order-global space, where the origin index is the position of the
// origin plugin among the active plugins.
type Mapping struct {
	Plugin  string
	Self    uint8   // global index of the plugin itself
	Masters []uint8 // global index of each declared master
}

// Ref maps a reference. An origin index past the plugin itself names no
// loaded file and maps to record.UnresolvedIndex. The null reference is
// returned unchanged.
func (m Mapping) Ref(fid record.FormID) record.FormID {
	if fid.IsNull() {
		return fid
	}
	i := int(fid.Index())
	switch {
	case i < len(m.Masters):
		return fid.WithIndex(m.Masters[i])
	case i == len(m.Masters):
		return fid.WithIndex(m.Self)
	}
	return fid.WithIndex(record.UnresolvedIndex)
}

// Header maps a record's own FormID. An out-of-range origin index is
// attributed to the plugin itself (an injected record).
func (m Mapping) Header(fid record.FormID) record.FormID {
	i := int(fid.Index())
	if i < len(m.Masters) {
		return fid.WithIndex(m.Masters[i])
	}
	return fid.WithIndex(m.Self)
}

// Normalizer rewrites records into the load-order-global FormID space.
// It is a pure transform: input records are never modified.
type Normalizer struct {
	table *schema.Table
	order *loadorder.LoadOrder
}

// NewNormalizer returns a normalizer for the active plugins of order.
func NewNormalizer(table *schema.Table, order *loadorder.LoadOrder) *Normalizer {
	return &Normalizer{table: table, order: order}
}

// Mapping returns the FormID mapping of p. p and its masters must be
// active in the load order.
func (n *Normalizer) Mapping(p *record.Plugin) (Mapping, error) {
	self, ok := n.order.ActiveIndex(p.Name)
	if !ok {
		return Mapping{}, fmt.Errorf("plugin %s is not active in the load order", p.Name)
	}
	m := Mapping{Plugin: p.Name, Self: uint8(self), Masters: make([]uint8, len(p.Info.Masters))}
	for i, master := range p.Info.Masters {
		gi, ok := n.order.ActiveIndex(master.Name)
		if !ok {
			return Mapping{}, &loadorder.MissingMasterError{Plugin: p.Name, Master: master.Name}
		}
		m.Masters[i] = uint8(gi)
	}
	return m, nil
}

// Record returns r with every FormID rewritten through m.
func (n *Normalizer) Record(m Mapping, r *record.Record) (*record.Record, error) {
	return n.table.RemapFormIDs(r, m.Header, func(_ record.Signature, fid record.FormID) (record.FormID, error) {
		return m.Ref(fid), nil
	})
}
