package codec

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
)

const (
	subrecordHeaderSize = 6
	maxSubrecordSize    = math.MaxUint16
)

// Codec parses and serializes plugins of one game profile.
// A Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	table *schema.Table
	game  schema.Game
}

// New returns a codec for the named game of table.
func New(table *schema.Table, game string) (*Codec, error) {
	g, err := table.Game(game)
	if err != nil {
		return nil, err
	}
	return &Codec{table: table, game: g}, nil
}

// Game returns the codec's game profile.
func (c *Codec) Game() schema.Game {
	return c.game
}

// Table returns the codec's schema table.
func (c *Codec) Table() *schema.Table {
	return c.table
}

// ParseOption configures Parse.
type ParseOption func(*parseConfig)

type parseConfig struct {
	types         map[record.Signature]bool
	checkPayloads bool
}

// WithTypes restricts interpretation to top-level groups of the given
// record types. Other groups are kept as opaque bytes and written back
// verbatim.
func WithTypes(sigs ...record.Signature) ParseOption {
	return func(cfg *parseConfig) {
		if cfg.types == nil {
			cfg.types = make(map[record.Signature]bool)
		}
		for _, s := range sigs {
			cfg.types[s] = true
		}
	}
}

// WithPayloadCheck splits every interpreted record payload during Parse,
// so a corrupt subrecord or compressed payload fails the plugin with a
// FormatError up front instead of on first access.
func WithPayloadCheck() ParseOption {
	return func(cfg *parseConfig) {
		cfg.checkPayloads = true
	}
}

// parser walks one file. Chunk sizes drive the walk; payloads are sliced
// from data without copying.
type parser struct {
	c    *Codec
	name string
	data []byte
	cfg  parseConfig
}

// Parse decodes a plugin file held in data. data must not be modified
// afterwards: records reference it directly.
//
// Fails with FormatError on truncated or invalid chunk headers, a missing
// TES4 header (bad magic) and an unsupported HEDR version. Record payloads
// are split into subrecords on first access unless WithPayloadCheck is
// given.
func (c *Codec) Parse(name string, data []byte, opts ...ParseOption) (*record.Plugin, error) {
	p := &parser{c: c, name: name, data: data}
	for _, opt := range opts {
		opt(&p.cfg)
	}
	plugin, err := p.parse()
	if err != nil || !p.cfg.checkPayloads {
		return plugin, err
	}
	err = plugin.Walk(func(_ []*record.Group, r *record.Record) error {
		_, err := r.Subrecords()
		return err
	})
	if err != nil {
		return nil, err
	}
	return plugin, nil
}

func (p *parser) parse() (*record.Plugin, error) {
	hs := p.c.game.RecordHeaderSize
	if len(p.data) < 4 || !bytes.Equal(p.data[:4], record.SigTES4[:]) {
		return nil, p.errorf(ErrCodeBadMagic, 0, "file does not start with a TES4 record")
	}
	if len(p.data) < hs {
		return nil, p.errorf(ErrCodeTruncated, 0, "header record needs %d bytes, have %d", hs, len(p.data))
	}

	header, next, err := p.record(0, int64(len(p.data)))
	if err != nil {
		return nil, err
	}
	info, err := p.info(header)
	if err != nil {
		return nil, err
	}
	if !p.c.game.Supports(info.Version) {
		return nil, p.errorf(ErrCodeUnsupportedVersion, 0, "version %g not supported by %s (accepts %v)", info.Version, p.c.game.Name, p.c.game.Versions)
	}

	plugin := &record.Plugin{
		Name:   p.name,
		Size:   int64(len(p.data)),
		Header: header,
		Info:   info,
	}
	off := next
	for off < int64(len(p.data)) {
		if !p.isGroup(off) {
			return nil, p.errorf(ErrCodeInvalidChunk, off, "expected GRUP at top level, found %q", p.sigAt(off))
		}
		g, n, err := p.group(off, int64(len(p.data)), true)
		if err != nil {
			return nil, err
		}
		plugin.Groups = append(plugin.Groups, g)
		off = n
	}
	return plugin, nil
}

func (p *parser) errorf(code FormatErrorCode, off int64, format string, args ...any) *FormatError {
	return &FormatError{Code: code, Plugin: p.name, Offset: off, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) sigAt(off int64) string {
	end := min(off+4, int64(len(p.data)))
	return string(p.data[off:end])
}

func (p *parser) isGroup(off int64) bool {
	return off+4 <= int64(len(p.data)) && bytes.Equal(p.data[off:off+4], record.SigGRUP[:])
}

// record reads the record chunk at off, bounded by end.
func (p *parser) record(off, end int64) (*record.Record, int64, error) {
	hs := int64(p.c.game.RecordHeaderSize)
	if off+hs > end {
		return nil, 0, p.errorf(ErrCodeTruncated, off, "record header needs %d bytes, have %d", hs, end-off)
	}
	b := p.data[off:]
	var h record.Header
	copy(h.Sig[:], b[0:4])
	size := int64(binary.LittleEndian.Uint32(b[4:8]))
	h.Flags = record.RecordFlags(binary.LittleEndian.Uint32(b[8:12]))
	h.FormID = record.FormID(binary.LittleEndian.Uint32(b[12:16]))
	h.VCInfo = binary.LittleEndian.Uint32(b[16:20])
	if hs == 24 {
		h.Version = binary.LittleEndian.Uint16(b[20:22])
		h.Unknown = binary.LittleEndian.Uint16(b[22:24])
	}
	start := off + hs
	if start+size > end {
		return nil, 0, p.errorf(ErrCodeTruncated, off, "record %s %s declares %d bytes, %d remain", h.Sig, h.FormID, size, end-start)
	}
	raw := p.data[start : start+size : start+size]
	return record.NewParsedRecord(h, raw, p.splitter(h.FormID)), start + size, nil
}

// group reads the group chunk at off, bounded by end. Top-level groups of
// record types outside the selection are kept opaque.
func (p *parser) group(off, end int64, top bool) (*record.Group, int64, error) {
	hs := int64(p.c.game.RecordHeaderSize)
	if off+hs > end {
		return nil, 0, p.errorf(ErrCodeTruncated, off, "group header needs %d bytes, have %d", hs, end-off)
	}
	b := p.data[off:]
	size := int64(binary.LittleEndian.Uint32(b[4:8]))
	var h record.GroupHeader
	copy(h.Label[:], b[8:12])
	h.Type = int32(binary.LittleEndian.Uint32(b[12:16]))
	h.Stamp = binary.LittleEndian.Uint32(b[16:20])
	if hs == 24 {
		h.Unknown = binary.LittleEndian.Uint32(b[20:24])
	}
	if size < hs {
		return nil, 0, p.errorf(ErrCodeInvalidChunk, off, "group size %d smaller than its header", size)
	}
	if off+size > end {
		return nil, 0, p.errorf(ErrCodeTruncated, off, "group %q declares %d bytes, %d remain", h.Label[:], size, end-off)
	}
	bodyStart, bodyEnd := off+hs, off+size

	if top && p.cfg.types != nil && !p.cfg.types[record.Signature(h.Label)] {
		return record.NewOpaqueGroup(h, p.data[bodyStart:bodyEnd:bodyEnd]), bodyEnd, nil
	}

	var children []record.Chunk
	pos := bodyStart
	for pos < bodyEnd {
		if p.isGroup(pos) {
			g, n, err := p.group(pos, bodyEnd, false)
			if err != nil {
				return nil, 0, err
			}
			children = append(children, g)
			pos = n
			continue
		}
		r, n, err := p.record(pos, bodyEnd)
		if err != nil {
			return nil, 0, err
		}
		children = append(children, r)
		pos = n
	}
	return record.NewGroup(h, children), bodyEnd, nil
}

// splitter returns the payload decoder for one record.
func (p *parser) splitter(fid record.FormID) record.PayloadDecoder {
	name := p.name
	return func(raw []byte, compressed bool) ([]*record.Subrecord, error) {
		subs, code, err := SplitPayload(raw, compressed)
		if err != nil {
			return nil, &FormatError{Code: code, Plugin: name, Offset: -1, FormID: fid, Message: err.Error()}
		}
		return subs, nil
	}
}

// SplitPayload splits a record payload into subrecords, inflating it first
// when compressed. XXXX markers are folded into the oversize subrecord
// they announce.
func SplitPayload(raw []byte, compressed bool) ([]*record.Subrecord, FormatErrorCode, error) {
	if compressed {
		var err error
		raw, err = inflate(raw)
		if err != nil {
			return nil, ErrCodeCompression, err
		}
	}

	var subs []*record.Subrecord
	off := 0
	for off < len(raw) {
		if off+subrecordHeaderSize > len(raw) {
			return nil, ErrCodeTruncated, fmt.Errorf("subrecord header at %d needs %d bytes, have %d", off, subrecordHeaderSize, len(raw)-off)
		}
		var sig record.Signature
		copy(sig[:], raw[off:off+4])
		size := int(binary.LittleEndian.Uint16(raw[off+4 : off+6]))
		off += subrecordHeaderSize

		if sig == record.SigXXXX {
			if size != 4 || off+4 > len(raw) {
				return nil, ErrCodeInvalidChunk, fmt.Errorf("malformed XXXX marker at %d", off-subrecordHeaderSize)
			}
			size = int(binary.LittleEndian.Uint32(raw[off : off+4]))
			off += 4
			if off+subrecordHeaderSize > len(raw) {
				return nil, ErrCodeTruncated, fmt.Errorf("XXXX marker at %d not followed by a subrecord", off-10)
			}
			copy(sig[:], raw[off:off+4])
			off += subrecordHeaderSize
			if off+size > len(raw) {
				return nil, ErrCodeTruncated, fmt.Errorf("subrecord %s declares %d bytes, %d remain", sig, size, len(raw)-off)
			}
			subs = append(subs, record.NewOversizeSubrecord(sig, raw[off:off+size:off+size]))
			off += size
			continue
		}

		if off+size > len(raw) {
			return nil, ErrCodeTruncated, fmt.Errorf("subrecord %s declares %d bytes, %d remain", sig, size, len(raw)-off)
		}
		subs = append(subs, record.NewSubrecord(sig, raw[off:off+size:off+size]))
		off += size
	}
	return subs, "", nil
}

func inflate(raw []byte) ([]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("compressed payload needs a 4 byte size prefix, have %d bytes", len(raw))
	}
	want := binary.LittleEndian.Uint32(raw[:4])
	zr, err := zlib.NewReader(bytes.NewReader(raw[4:]))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()
	out := make([]byte, 0, want)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, io.LimitReader(zr, int64(want)+1)); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if uint32(buf.Len()) != want {
		return nil, fmt.Errorf("decompressed %d bytes, header declares %d", buf.Len(), want)
	}
	return buf.Bytes(), nil
}

// info interprets the TES4 header record.
func (p *parser) info(h *record.Record) (record.Info, error) {
	var info record.Info
	subs, err := h.Subrecords()
	if err != nil {
		return info, err
	}
	sawHEDR := false
	for i, s := range subs {
		switch s.Sig {
		case record.SigHEDR:
			d := s.Data()
			if len(d) < 12 {
				return info, p.errorf(ErrCodeInvalidChunk, 0, "HEDR needs 12 bytes, have %d", len(d))
			}
			info.Version = math.Float32frombits(binary.LittleEndian.Uint32(d[0:4]))
			info.NumRecords = int32(binary.LittleEndian.Uint32(d[4:8]))
			info.NextObjectID = binary.LittleEndian.Uint32(d[8:12])
			sawHEDR = true
		case record.SigCNAM:
			info.Author = record.DecodeZString(s.Data())
		case record.SigSNAM:
			info.Description = record.DecodeZString(s.Data())
		case record.SigMAST:
			m := record.Master{Name: record.DecodeZString(s.Data())}
			if i+1 < len(subs) && subs[i+1].Sig == record.SigDATA && len(subs[i+1].Data()) >= 8 {
				m.Size = binary.LittleEndian.Uint64(subs[i+1].Data())
			}
			info.Masters = append(info.Masters, m)
		}
	}
	if !sawHEDR {
		return info, p.errorf(ErrCodeInvalidChunk, 0, "TES4 header has no HEDR subrecord")
	}
	return info, nil
}
