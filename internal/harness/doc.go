// Package harness runs merge scenarios against the patch engine.
//
// A scenario is a YAML file describing a handful of plugins inline, the
// tags and policies to build a Bashed Patch with, and what the patch must
// contain:
//
//	name: relev-listmerge
//	description: Two tagged mods extend the same leveled list
//	plugins:
//	  - name: Base.esm
//	    master: true
//	    records:
//	      - type: LVLI
//	        formid: "00000800"
//	        subrecords:
//	          - {sig: EDID, z: LItem}
//	tags:
//	  ModA.esp: [Relev]
//	expect:
//	  masters: [Base.esm, ModA.esp]
//
// Plugins are written byte by byte with the testutil builders, loaded
// through patch.LoadPluginBytes, and the built patch is written to a
// memory publisher and parsed back, so every scenario exercises the full
// load, merge, finalize and write path.
//
// Each run yields an Outcome. Expectations check parts of it; golden files
// under testdata/golden (or golden/ next to a scenario file, for the CLI)
// pin all of it.
package harness
