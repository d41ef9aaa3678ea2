package testutil

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
)

// Sub is one subrecord to write.
type Sub struct {
	Sig  string
	Data []byte
}

// S returns a subrecord.
func S(sig string, data ...[]byte) Sub {
	return Sub{Sig: sig, Data: Concat(data...)}
}

// Rec describes one record to write. Compress writes the payload as a size
// prefix plus a zlib stream and sets the compressed flag.
type Rec struct {
	Sig      string
	FormID   uint32
	Flags    uint32
	VCInfo   uint32
	Version  uint16
	Unknown  uint16
	Compress bool
	Subs     []Sub
}

// PluginBuilder writes plugin files byte by byte, independently of the
// codec, so codec tests compare against an independent encoding.
//
// Thread-safety: not safe for concurrent use.
type PluginBuilder struct {
	headerSize   int
	version      float32
	flags        uint32
	author       string
	description  string
	nextObjectID uint32
	masters      []masterEntry
	groups       []*GroupBuilder
}

type masterEntry struct {
	name string
	size uint64
}

// NewPlugin returns a builder for the given header profile (20 or 24) and
// HEDR version.
func NewPlugin(headerSize int, version float32) *PluginBuilder {
	return &PluginBuilder{headerSize: headerSize, version: version, nextObjectID: 0x800}
}

// Skyrim returns a builder for the 24-byte profile at version 1.7.
func Skyrim() *PluginBuilder {
	return NewPlugin(24, 1.7)
}

// Master appends a master declaration.
func (b *PluginBuilder) Master(name string, size uint64) *PluginBuilder {
	b.masters = append(b.masters, masterEntry{name: name, size: size})
	return b
}

// Flags sets the TES4 record flags.
func (b *PluginBuilder) Flags(flags uint32) *PluginBuilder {
	b.flags = flags
	return b
}

// Author sets the CNAM author.
func (b *PluginBuilder) Author(s string) *PluginBuilder {
	b.author = s
	return b
}

// Description sets the SNAM description.
func (b *PluginBuilder) Description(s string) *PluginBuilder {
	b.description = s
	return b
}

// Group appends a top-level group for records of type label.
func (b *PluginBuilder) Group(label string) *GroupBuilder {
	g := &GroupBuilder{headerSize: b.headerSize}
	copy(g.label[:], label)
	b.groups = append(b.groups, g)
	return g
}

// Bytes renders the file.
func (b *PluginBuilder) Bytes() []byte {
	var hedr []byte
	hedr = binary.LittleEndian.AppendUint32(hedr, math.Float32bits(b.version))
	hedr = binary.LittleEndian.AppendUint32(hedr, uint32(b.count()))
	hedr = binary.LittleEndian.AppendUint32(hedr, b.nextObjectID)

	subs := []Sub{{Sig: "HEDR", Data: hedr}}
	if b.author != "" {
		subs = append(subs, Sub{Sig: "CNAM", Data: Z(b.author)})
	}
	if b.description != "" {
		subs = append(subs, Sub{Sig: "SNAM", Data: Z(b.description)})
	}
	for _, m := range b.masters {
		subs = append(subs, Sub{Sig: "MAST", Data: Z(m.name)}, Sub{Sig: "DATA", Data: U64(m.size)})
	}

	var out bytes.Buffer
	writeRecord(&out, b.headerSize, Rec{Sig: "TES4", Flags: b.flags, Subs: subs})
	for _, g := range b.groups {
		g.write(&out)
	}
	return out.Bytes()
}

func (b *PluginBuilder) count() int {
	n := 0
	for _, g := range b.groups {
		n += g.count()
	}
	return n
}

// GroupBuilder collects the children of one group.
type GroupBuilder struct {
	headerSize int
	label      [4]byte
	typ        int32
	stamp      uint32
	unknown    uint32
	children   []any
}

// Stamp sets the group's timestamp and unknown header fields.
func (g *GroupBuilder) Stamp(stamp, unknown uint32) *GroupBuilder {
	g.stamp = stamp
	g.unknown = unknown
	return g
}

// Record appends a plain record.
func (g *GroupBuilder) Record(sig string, fid uint32, subs ...Sub) *GroupBuilder {
	return g.Add(Rec{Sig: sig, FormID: fid, Subs: subs})
}

// Add appends a fully described record.
func (g *GroupBuilder) Add(r Rec) *GroupBuilder {
	g.children = append(g.children, r)
	return g
}

// Nested appends a nested group and returns it.
func (g *GroupBuilder) Nested(label uint32, typ int32) *GroupBuilder {
	n := &GroupBuilder{headerSize: g.headerSize, typ: typ}
	binary.LittleEndian.PutUint32(n.label[:], label)
	g.children = append(g.children, n)
	return n
}

func (g *GroupBuilder) count() int {
	n := 1
	for _, c := range g.children {
		switch v := c.(type) {
		case Rec:
			n++
		case *GroupBuilder:
			n += v.count()
		}
	}
	return n
}

func (g *GroupBuilder) write(out *bytes.Buffer) {
	var body bytes.Buffer
	for _, c := range g.children {
		switch v := c.(type) {
		case Rec:
			writeRecord(&body, g.headerSize, v)
		case *GroupBuilder:
			v.write(&body)
		}
	}
	h := make([]byte, 24)
	copy(h[0:4], "GRUP")
	binary.LittleEndian.PutUint32(h[4:8], uint32(g.headerSize+body.Len()))
	copy(h[8:12], g.label[:])
	binary.LittleEndian.PutUint32(h[12:16], uint32(g.typ))
	binary.LittleEndian.PutUint32(h[16:20], g.stamp)
	binary.LittleEndian.PutUint32(h[20:24], g.unknown)
	out.Write(h[:g.headerSize])
	out.Write(body.Bytes())
}

func writeRecord(out *bytes.Buffer, headerSize int, r Rec) {
	payload := Payload(r.Subs...)
	flags := r.Flags
	if r.Compress {
		payload = Compress(payload)
		flags |= 0x00040000
	}
	h := make([]byte, 24)
	copy(h[0:4], r.Sig)
	binary.LittleEndian.PutUint32(h[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(h[8:12], flags)
	binary.LittleEndian.PutUint32(h[12:16], r.FormID)
	binary.LittleEndian.PutUint32(h[16:20], r.VCInfo)
	binary.LittleEndian.PutUint16(h[20:22], r.Version)
	binary.LittleEndian.PutUint16(h[22:24], r.Unknown)
	out.Write(h[:headerSize])
	out.Write(payload)
}

// Payload frames subrecords. Payloads over 65535 bytes get an XXXX marker.
func Payload(subs ...Sub) []byte {
	var out bytes.Buffer
	for _, s := range subs {
		if len(s.Data) > math.MaxUint16 {
			out.WriteString("XXXX")
			out.Write(U16(4))
			out.Write(U32(uint32(len(s.Data))))
			out.WriteString(s.Sig)
			out.Write(U16(0))
		} else {
			out.WriteString(s.Sig)
			out.Write(U16(uint16(len(s.Data))))
		}
		out.Write(s.Data)
	}
	return out.Bytes()
}

// Compress returns the compressed payload form: size prefix plus zlib.
func Compress(payload []byte) []byte {
	var out bytes.Buffer
	out.Write(U32(uint32(len(payload))))
	zw := zlib.NewWriter(&out)
	_, _ = zw.Write(payload)
	_ = zw.Close()
	return out.Bytes()
}

// Z returns a NUL-terminated string. s must be ASCII.
func Z(s string) []byte {
	return append([]byte(s), 0)
}

// U8 encodes a byte.
func U8(v uint8) []byte { return []byte{v} }

// U16 encodes a little-endian uint16.
func U16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

// U32 encodes a little-endian uint32.
func U32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

// I32 encodes a little-endian int32.
func I32(v int32) []byte { return U32(uint32(v)) }

// U64 encodes a little-endian uint64.
func U64(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

// F32 encodes a little-endian float32.
func F32(v float32) []byte { return U32(math.Float32bits(v)) }

// Concat joins byte slices.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
