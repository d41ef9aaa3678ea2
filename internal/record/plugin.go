package record

// Master is one entry of a plugin's master list.
type Master struct {
	Name string
	Size uint64
}

// Info is the interpreted content of the TES4 file header record.
type Info struct {
	Version      float32
	NumRecords   int32
	NextObjectID uint32
	Author       string
	Description  string
	Masters      []Master
}

// Plugin is one parsed plugin file.
//
// A Plugin is immutable once parsed; a new Plugin models any edit.
type Plugin struct {
	Name   string
	Size   int64
	Header *Record // the TES4 record, kept verbatim for round-tripping
	Info   Info
	Groups []*Group
}

// Flags returns the plugin-level flag bits.
func (p *Plugin) Flags() RecordFlags {
	if p.Header == nil {
		return 0
	}
	return p.Header.Flags
}

// IsMaster reports whether the plugin carries the master flag.
func (p *Plugin) IsMaster() bool {
	return p.Flags().Has(FlagMaster)
}

// IsLight reports whether the plugin carries the light flag.
func (p *Plugin) IsLight() bool {
	return p.Flags().Has(FlagLight)
}

// MasterNames returns the declared master names in order.
func (p *Plugin) MasterNames() []string {
	names := make([]string, len(p.Info.Masters))
	for i, m := range p.Info.Masters {
		names[i] = m.Name
	}
	return names
}

// WalkFunc is called for every record. path holds the enclosing groups,
// outermost first.
type WalkFunc func(path []*Group, r *Record) error

// Walk visits every record of every interpreted group in file order.
// Opaque groups are skipped. Walk stops at the first error returned by fn.
func (p *Plugin) Walk(fn WalkFunc) error {
	for _, g := range p.Groups {
		if err := walkGroup([]*Group{g}, g, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkGroup(path []*Group, g *Group, fn WalkFunc) error {
	if g.Opaque() {
		return nil
	}
	for _, c := range g.Children {
		switch v := c.(type) {
		case *Record:
			if err := fn(path, v); err != nil {
				return err
			}
		case *Group:
			if err := walkGroup(append(path[:len(path):len(path)], v), v, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopGroupOrder returns the labels of the top-level groups in file order.
func (p *Plugin) TopGroupOrder() []Signature {
	out := make([]Signature, 0, len(p.Groups))
	for _, g := range p.Groups {
		if g.Type == GroupTop {
			out = append(out, g.LabelSig())
		}
	}
	return out
}

// CountRecords returns the number of records in interpreted groups.
func (p *Plugin) CountRecords() int {
	n := 0
	_ = p.Walk(func([]*Group, *Record) error {
		n++
		return nil
	})
	return n
}
