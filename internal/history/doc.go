// Package history builds the record history graph: for every object
// identifier, the ordered revisions contributed by the active plugins.
//
// Records are first normalized from their file-relative FormIDs into the
// load-order-global space, where an origin index is the position of the
// origin plugin among the active plugins. Every later stage (conflict
// detection, merging, master finalization) works in that space.
package history
