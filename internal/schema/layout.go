package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/bashed/internal/record"
)

// TrailingField names the synthesized field that holds payload bytes past
// the end of the declared layout.
const TrailingField = "_trailing"

// Decode interprets a raw payload according to the layout.
//
// Scalar layouts yield one element. Array layouts yield one element per
// repetition of the field list until the payload is exhausted. A payload
// that stops on a field boundary before the layout is complete yields a
// short element; older plugin versions write truncated structs.
func (d *SubrecordDef) Decode(data []byte) (record.Value, error) {
	if len(data) == 0 {
		return record.Value{}, nil
	}
	if d.Array {
		var out record.Value
		off := 0
		for off < len(data) {
			e, n, err := d.decodeElement(data, off, true)
			if err != nil {
				return nil, err
			}
			if n == off {
				return nil, &DecodeError{Sig: d.Sig.String(), Offset: off, Message: "array element consumed no bytes"}
			}
			out = append(out, e)
			off = n
		}
		return out, nil
	}
	e, n, err := d.decodeElement(data, 0, false)
	if err != nil {
		return nil, err
	}
	if n < len(data) {
		last := record.KindInvalid
		if len(d.Fields) > 0 {
			last = d.Fields[len(d.Fields)-1].Kind
		}
		if last != record.KindZString {
			e = append(e, record.Field{
				Name:   TrailingField,
				Kind:   record.KindBytes,
				Bytes:  append([]byte(nil), data[n:]...),
				Offset: n,
			})
		}
	}
	return record.Value{e}, nil
}

func (d *SubrecordDef) decodeElement(data []byte, off int, strict bool) (record.Element, int, error) {
	e := make(record.Element, 0, len(d.Fields))
	for _, fd := range d.Fields {
		if off == len(data) {
			if strict && len(e) > 0 {
				return nil, off, &DecodeError{Sig: d.Sig.String(), Field: fd.Name, Offset: off, Message: "array element truncated"}
			}
			break
		}
		f, n, err := decodeField(fd, data, off)
		if err != nil {
			return nil, off, &DecodeError{Sig: d.Sig.String(), Field: fd.Name, Offset: off, Message: err.Error()}
		}
		e = append(e, f)
		off = n
	}
	return e, off, nil
}

func decodeField(fd FieldDef, data []byte, off int) (record.Field, int, error) {
	f := record.Field{Name: fd.Name, Kind: fd.Kind, Offset: off}
	rest := data[off:]
	if size := fd.Kind.Size(); size > 0 && len(rest) < size {
		return f, off, fmt.Errorf("need %d bytes, have %d", size, len(rest))
	}
	switch fd.Kind {
	case record.KindInt8:
		f.Int = int64(int8(rest[0]))
	case record.KindUint8:
		f.Int = int64(rest[0])
	case record.KindInt16:
		f.Int = int64(int16(binary.LittleEndian.Uint16(rest)))
	case record.KindUint16:
		f.Int = int64(binary.LittleEndian.Uint16(rest))
	case record.KindInt32:
		f.Int = int64(int32(binary.LittleEndian.Uint32(rest)))
	case record.KindUint32, record.KindFormID:
		f.Int = int64(binary.LittleEndian.Uint32(rest))
	case record.KindFloat32:
		f.Float = math.Float32frombits(binary.LittleEndian.Uint32(rest))
	case record.KindZString:
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			f.Str = record.DecodeZString(rest)
			return f, len(data), nil
		}
		f.Str = record.DecodeZString(rest[:end])
		return f, off + end + 1, nil
	case record.KindBytes:
		n := fd.Size
		if n == 0 {
			n = len(rest)
		}
		if len(rest) < n {
			return f, off, fmt.Errorf("need %d bytes, have %d", n, len(rest))
		}
		f.Bytes = append([]byte(nil), rest[:n]...)
		return f, off + n, nil
	default:
		return f, off, fmt.Errorf("unsupported kind %s", fd.Kind)
	}
	return f, off + fd.Kind.Size(), nil
}

// Encode writes a typed value back into payload bytes. Fields are written
// in element order; every field must be declared by the layout (or be the
// trailing field) and hold a value its kind can represent.
func (d *SubrecordDef) Encode(v record.Value) ([]byte, error) {
	if !d.Array && len(v) > 1 {
		return nil, &RangeError{Field: d.Sig.String(), Kind: "scalar", Value: v.String(), Message: fmt.Sprintf("%d elements for a scalar layout", len(v))}
	}
	var out []byte
	for _, e := range v {
		for _, f := range e {
			if f.Name != TrailingField {
				fd, ok := d.Field(f.Name)
				if !ok {
					return nil, &RangeError{Field: d.Sig.String() + "." + f.Name, Kind: f.Kind.String(), Value: f.String(), Message: "field not declared by layout"}
				}
				if fd.Kind != f.Kind {
					return nil, &RangeError{Field: d.Sig.String() + "." + f.Name, Kind: fd.Kind.String(), Value: f.String(), Message: "kind mismatch: value is " + f.Kind.String()}
				}
				if fd.Kind == record.KindBytes && fd.Size > 0 && len(f.Bytes) != fd.Size {
					return nil, &RangeError{Field: d.Sig.String() + "." + f.Name, Kind: fd.Kind.String(), Value: f.String(), Message: fmt.Sprintf("want %d bytes", fd.Size)}
				}
			}
			var err error
			out, err = appendField(out, f)
			if err != nil {
				return nil, &RangeError{Field: d.Sig.String() + "." + f.Name, Kind: f.Kind.String(), Value: f.String(), Message: err.Error()}
			}
		}
	}
	return out, nil
}

func appendField(b []byte, f record.Field) ([]byte, error) {
	if f.Kind.Integer() || f.Kind == record.KindFormID {
		lo, hi := f.Kind.Range()
		if f.Int < lo || f.Int > hi {
			return nil, fmt.Errorf("out of range [%d, %d]", lo, hi)
		}
	}
	switch f.Kind {
	case record.KindInt8, record.KindUint8:
		return append(b, byte(f.Int)), nil
	case record.KindInt16, record.KindUint16:
		return binary.LittleEndian.AppendUint16(b, uint16(f.Int)), nil
	case record.KindInt32, record.KindUint32, record.KindFormID:
		return binary.LittleEndian.AppendUint32(b, uint32(f.Int)), nil
	case record.KindFloat32:
		if math.IsNaN(float64(f.Float)) || math.IsInf(float64(f.Float), 0) {
			return nil, fmt.Errorf("not a finite float")
		}
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(f.Float)), nil
	case record.KindZString:
		s, err := record.EncodeZString(f.Str)
		if err != nil {
			return nil, err
		}
		return append(b, s...), nil
	case record.KindBytes:
		return append(b, f.Bytes...), nil
	}
	return nil, fmt.Errorf("unsupported kind %s", f.Kind)
}
