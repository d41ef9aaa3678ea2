package record

// Group types. Only top-level groups carry records directly addressable by
// record type; the others nest world, cell and topic children.
const (
	GroupTop int32 = 0
)

// Chunk is either a *Record or a *Group.
type Chunk interface {
	isChunk()
}

func (*Record) isChunk() {}
func (*Group) isChunk()  {}

// GroupHeader holds the fixed fields of a group chunk header.
type GroupHeader struct {
	Label   [4]byte
	Type    int32
	Stamp   uint32
	Unknown uint32 // 24-byte header profiles only
}

// Group is a container of records and nested groups.
//
// A group parsed in opaque mode keeps its body bytes verbatim and exposes no
// children; it is written back unchanged.
type Group struct {
	GroupHeader
	Children []Chunk

	opaque   []byte
	isOpaque bool
}

// NewGroup returns a group with the given children.
func NewGroup(h GroupHeader, children []Chunk) *Group {
	return &Group{GroupHeader: h, Children: children}
}

// NewOpaqueGroup returns a group whose body is carried as raw bytes.
func NewOpaqueGroup(h GroupHeader, body []byte) *Group {
	return &Group{GroupHeader: h, opaque: body, isOpaque: true}
}

// NewTopGroup returns a top-level group for records of type sig.
func NewTopGroup(sig Signature, records []*Record) *Group {
	children := make([]Chunk, len(records))
	for i, r := range records {
		children[i] = r
	}
	return &Group{GroupHeader: GroupHeader{Label: sig, Type: GroupTop}, Children: children}
}

// Opaque reports whether the group body was not interpreted.
func (g *Group) Opaque() bool {
	return g.isOpaque
}

// OpaqueBody returns the uninterpreted body of an opaque group.
func (g *Group) OpaqueBody() []byte {
	return g.opaque
}

// LabelSig returns the label as a record signature (top-level groups).
func (g *Group) LabelSig() Signature {
	return Signature(g.Label)
}
