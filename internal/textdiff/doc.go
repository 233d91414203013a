// Package textdiff computes minimal edit scripts between text snapshots.
//
// The diff runs the Myers shortest-edit-script algorithm over grapheme
// clusters rather than bytes or runes, so multi-code-point glyphs are
// atomic and an edit range can never split a glyph. Common prefixes and
// suffixes are trimmed before the Myers pass, and oversized inputs fall
// back to a single replace of the changed region instead of a quadratic
// search.
//
// Adjacent delete+insert pairs at the same position are merged into a
// single replace, giving downstream consumers replace-granular operations.
package textdiff
