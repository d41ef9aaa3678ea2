package record

// RecordFlags holds the flag bits of a record header.
type RecordFlags uint32

// Record flag bits. The plugin-level bits live on the TES4 header record.
const (
	FlagMaster     RecordFlags = 0x00000001
	FlagDeleted    RecordFlags = 0x00000020
	FlagLocalized  RecordFlags = 0x00000080
	FlagLight      RecordFlags = 0x00000200
	FlagIgnored    RecordFlags = 0x00001000
	FlagCompressed RecordFlags = 0x00040000
)

// Has reports whether all bits of mask are set.
func (f RecordFlags) Has(mask RecordFlags) bool {
	return f&mask == mask
}

// With returns f with mask set.
func (f RecordFlags) With(mask RecordFlags) RecordFlags {
	return f | mask
}

// Without returns f with mask cleared.
func (f RecordFlags) Without(mask RecordFlags) RecordFlags {
	return f &^ mask
}
