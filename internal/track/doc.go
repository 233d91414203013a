// Package track is the position-mapping core of the engine.
//
// A [Tracker] records every change as a range anchored in the live
// document. Whenever the document mutates, from any source, the mutation's
// position-delta [Mapping] is folded over every pending range, so a change
// created at [10,14) automatically becomes [12,16) after two bytes are
// inserted before it.
//
// Review semantics: accepting a change discards its tracking metadata
// (the text is already in the document); rejecting reverts insertions in
// descending position order and restores deletions in ascending order,
// verifying live text against the recorded text before each revert. The
// tracker is the only component permitted to mutate document text as a
// side effect of these operations.
//
// Changes live inside a [Session], a bounded recording scope with
// aggregate counters, created when tracking starts and finalized when it
// stops.
package track
