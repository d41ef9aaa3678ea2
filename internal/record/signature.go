package record

import (
	"bytes"
	"fmt"
)

// Signature is a four character chunk type code such as "WEAP" or "EDID".
type Signature [4]byte

// Well-known signatures used by the container format itself.
var (
	SigTES4 = Sig("TES4")
	SigGRUP = Sig("GRUP")
	SigXXXX = Sig("XXXX")
	SigHEDR = Sig("HEDR")
	SigCNAM = Sig("CNAM")
	SigSNAM = Sig("SNAM")
	SigMAST = Sig("MAST")
	SigDATA = Sig("DATA")
	SigEDID = Sig("EDID")
)

// Sig converts a four character string into a Signature.
// Panics if s is not exactly four bytes long; use ParseSignature for input
// that has not been validated.
func Sig(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}

// ParseSignature converts s into a Signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	if len(s) != 4 {
		return sig, fmt.Errorf("signature %q: must be exactly 4 bytes", s)
	}
	copy(sig[:], s)
	return sig, nil
}

// String returns the signature as text.
func (s Signature) String() string {
	return string(s[:])
}

// IsZero reports whether the signature is unset.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Compare orders signatures bytewise.
func (s Signature) Compare(o Signature) int {
	return bytes.Compare(s[:], o[:])
}

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	sig, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}
