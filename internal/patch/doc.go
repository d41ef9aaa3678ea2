// Package patch is the engine's entry point: load a plugin set into a
// Session, build a Bashed Patch from it, and write the patch out.
//
// A build runs these stages in order, each traced and timed:
//
//	load      parse every plugin, skipping malformed ones
//	resolve   order plugins so masters precede dependents
//	history   collect every object's revisions in load order
//	conflict  classify each object's fields
//	merge     synthesize one record per object from the policy table
//	finalize  minimize the master list and remap identifiers
//	write     serialize fully, then publish atomically
//
// Sessions are explicit values. Nothing is cached between calls.
package patch
