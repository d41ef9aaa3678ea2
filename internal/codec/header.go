package codec

import (
	"encoding/binary"
	"math"

	"github.com/roach88/bashed/internal/record"
)

// HeaderRecord synthesizes a TES4 header record from info. The version is
// taken from info, falling back to the game's default when zero.
func (c *Codec) HeaderRecord(info record.Info, flags record.RecordFlags) (*record.Record, error) {
	version := info.Version
	if version == 0 {
		version = c.game.DefaultVersion()
	}
	hedr := make([]byte, 12)
	binary.LittleEndian.PutUint32(hedr[0:4], math.Float32bits(version))
	binary.LittleEndian.PutUint32(hedr[4:8], uint32(info.NumRecords))
	binary.LittleEndian.PutUint32(hedr[8:12], info.NextObjectID)

	subs := []*record.Subrecord{record.NewSubrecord(record.SigHEDR, hedr)}
	if info.Author != "" {
		b, err := record.EncodeZString(info.Author)
		if err != nil {
			return nil, &EncodingError{Sig: record.SigTES4, Tag: record.SigCNAM, Message: err.Error(), Err: err}
		}
		subs = append(subs, record.NewSubrecord(record.SigCNAM, b))
	}
	if info.Description != "" {
		b, err := record.EncodeZString(info.Description)
		if err != nil {
			return nil, &EncodingError{Sig: record.SigTES4, Tag: record.SigSNAM, Message: err.Error(), Err: err}
		}
		subs = append(subs, record.NewSubrecord(record.SigSNAM, b))
	}
	for _, m := range info.Masters {
		b, err := record.EncodeZString(m.Name)
		if err != nil {
			return nil, &EncodingError{Sig: record.SigTES4, Tag: record.SigMAST, Message: err.Error(), Err: err}
		}
		size := make([]byte, 8)
		binary.LittleEndian.PutUint64(size, m.Size)
		subs = append(subs,
			record.NewSubrecord(record.SigMAST, b),
			record.NewSubrecord(record.SigDATA, size))
	}
	return record.NewRecord(record.Header{Sig: record.SigTES4, Flags: flags}, subs), nil
}
