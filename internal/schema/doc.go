// Package schema holds the external schema table: game profiles, per-record
// subrecord layouts and merge-policy bindings.
//
// Tables are compiled from CUE. A built-in table is embedded; user tables
// loaded from a directory override or extend it record by record.
//
// The table drives lazy interpretation: a Subrecord's typed Value is decoded
// through its SubrecordDef on first access and cached on the instance. It
// also drives FormID remapping, since only fields typed `formid` are known
// to hold references.
package schema
