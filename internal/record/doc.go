// Package record provides the foundational value types for plugin files.
//
// This package contains the in-memory model only: signatures, form
// identifiers, plugins, groups, records and subrecords. All other internal
// packages import record; record imports nothing internal. Parsing and
// serialization live in package codec, typed field layouts in package schema.
//
// Key design constraints:
//   - Parsed values are immutable. Every transform (remap, merge) builds new
//     Records; Subrecords are shared between Records freely.
//   - Payloads are stored raw at parse time and split into subrecords on
//     first access (compressed payloads are inflated at that point).
//   - FormIDs are file-relative until package history normalizes them into
//     the load-order-global space.
package record
