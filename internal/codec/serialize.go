package codec

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/roach88/bashed/internal/record"
)

// Serialize encodes p into a complete file image.
//
// Records that were not modified since parsing are written from their raw
// payload, so serialize(parse(b)) reproduces b exactly. Modified records
// are re-framed from their subrecords and recompressed when flagged.
// Fails with EncodingError before producing any output.
func (c *Codec) Serialize(p *record.Plugin) ([]byte, error) {
	w := &writer{c: c, plugin: p.Name}
	if p.Header == nil {
		return nil, &EncodingError{Plugin: p.Name, Sig: record.SigTES4, Message: "plugin has no header record"}
	}
	if err := w.record(p.Header); err != nil {
		return nil, err
	}
	for _, g := range p.Groups {
		if err := w.group(g); err != nil {
			return nil, err
		}
	}
	return w.buf.Bytes(), nil
}

// WriteTo serializes p fully and then writes it to dst. Nothing reaches
// dst when serialization fails.
func (c *Codec) WriteTo(dst io.Writer, p *record.Plugin) (int64, error) {
	b, err := c.Serialize(p)
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(b)
	return int64(n), err
}

type writer struct {
	c      *Codec
	plugin string
	buf    bytes.Buffer
}

func (w *writer) putHeader(sig record.Signature, size, a, b, cc, extra uint32) {
	var h [24]byte
	copy(h[0:4], sig[:])
	binary.LittleEndian.PutUint32(h[4:8], size)
	binary.LittleEndian.PutUint32(h[8:12], a)
	binary.LittleEndian.PutUint32(h[12:16], b)
	binary.LittleEndian.PutUint32(h[16:20], cc)
	binary.LittleEndian.PutUint32(h[20:24], extra)
	w.buf.Write(h[:w.c.game.RecordHeaderSize])
}

func (w *writer) record(r *record.Record) error {
	payload := r.Raw()
	if r.Modified() {
		var err error
		payload, err = w.c.EncodePayload(r)
		if err != nil {
			var ee *EncodingError
			if errors.As(err, &ee) {
				ee.Plugin = w.plugin
				return ee
			}
			return &EncodingError{Plugin: w.plugin, Sig: r.Sig, FormID: r.FormID, Message: err.Error(), Err: err}
		}
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return &EncodingError{Plugin: w.plugin, Sig: r.Sig, FormID: r.FormID, Message: fmt.Sprintf("payload of %d bytes exceeds the record size field", len(payload))}
	}
	extra := uint32(r.Version) | uint32(r.Unknown)<<16
	w.putHeader(r.Sig, uint32(len(payload)), uint32(r.Flags), uint32(r.FormID), r.VCInfo, extra)
	w.buf.Write(payload)
	return nil
}

func (w *writer) group(g *record.Group) error {
	start := w.buf.Len()
	// Size is patched once the body is written.
	w.putHeader(record.SigGRUP, 0, binary.LittleEndian.Uint32(g.Label[:]), uint32(g.Type), g.Stamp, g.Unknown)
	if g.Opaque() {
		w.buf.Write(g.OpaqueBody())
	} else {
		for _, c := range g.Children {
			var err error
			switch v := c.(type) {
			case *record.Record:
				err = w.record(v)
			case *record.Group:
				err = w.group(v)
			}
			if err != nil {
				return err
			}
		}
	}
	size := w.buf.Len() - start
	if uint64(size) > math.MaxUint32 {
		return &EncodingError{Plugin: w.plugin, Sig: record.SigGRUP, Message: fmt.Sprintf("group %q of %d bytes exceeds the group size field", g.Label[:], size)}
	}
	binary.LittleEndian.PutUint32(w.buf.Bytes()[start+4:start+8], uint32(size))
	return nil
}

// EncodePayload rebuilds the on-disk payload of r from its subrecords.
// Typed values are encoded through the schema; subrecords over 65535 bytes
// (or read with an XXXX marker) are framed with XXXX. Compressed records
// get a size prefix and a zlib stream.
func (c *Codec) EncodePayload(r *record.Record) ([]byte, error) {
	subs, err := r.Subrecords()
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	for _, s := range subs {
		data, err := c.table.Encode(r.Sig, s)
		if err != nil {
			return nil, &EncodingError{Sig: r.Sig, FormID: r.FormID, Tag: s.Sig, Message: err.Error(), Err: err}
		}
		if uint64(len(data)) > math.MaxUint32 {
			return nil, &EncodingError{Sig: r.Sig, FormID: r.FormID, Tag: s.Sig, Message: fmt.Sprintf("subrecord of %d bytes exceeds the XXXX size field", len(data))}
		}
		var h [subrecordHeaderSize]byte
		if len(data) > maxSubrecordSize || s.Oversize() {
			copy(h[0:4], record.SigXXXX[:])
			binary.LittleEndian.PutUint16(h[4:6], 4)
			body.Write(h[:])
			var n [4]byte
			binary.LittleEndian.PutUint32(n[:], uint32(len(data)))
			body.Write(n[:])
			copy(h[0:4], s.Sig[:])
			binary.LittleEndian.PutUint16(h[4:6], 0)
			body.Write(h[:])
		} else {
			copy(h[0:4], s.Sig[:])
			binary.LittleEndian.PutUint16(h[4:6], uint16(len(data)))
			body.Write(h[:])
		}
		body.Write(data)
	}
	if !r.Compressed() {
		return body.Bytes(), nil
	}
	return deflate(body.Bytes())
}

func deflate(b []byte) ([]byte, error) {
	var out bytes.Buffer
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	out.Write(n[:])
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return out.Bytes(), nil
}
