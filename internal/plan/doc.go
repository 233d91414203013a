// Package plan converts edit scripts into ordered, paced sequences of
// bounded operations.
//
// A single logical transformation becomes many small, human-observable
// edits instead of one wholesale replacement. Operation positions are
// pre-adjusted for the cumulative length delta of earlier operations, so
// a plan applies strictly in order against a live, mutating buffer.
//
// Capacity limits (operation count, latency budget including pacing) are
// checked at build time, before anything touches a document: a rejected
// plan never partially applies.
package plan
