package record

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// DomainRecord is the domain prefix for record digests. The version suffix
// allows the algorithm to change without colliding with old digests.
const DomainRecord = "bashed/record/v1"

// Digest computes a content hash over a record's header identity and
// subrecords.
// Format: SHA256(domain + 0x00 + sig + flags + formid + per-subrecord(sig + len + content))
//
// Raw subrecords contribute their bytes, pending subrecords their canonical
// typed encoding, so two records compare equal only in the same form.
func Digest(r *Record) (string, error) {
	subs, err := r.Subrecords()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(DomainRecord))
	h.Write([]byte{0x00})
	h.Write(r.Sig[:])
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(r.Flags))
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.FormID))
	h.Write(buf[:])
	for _, s := range subs {
		h.Write(s.Sig[:])
		content := s.Data()
		if s.Pending() {
			content = append([]byte{0xFF}, s.PendingValue().Canonical()...)
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(len(content)))
		h.Write(buf[:])
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when the record is known to decode.
func MustDigest(r *Record) string {
	d, err := Digest(r)
	if err != nil {
		panic(err)
	}
	return d
}
