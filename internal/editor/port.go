package editor

import "errors"

// Errors returned by document operations.
var (
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrRangeInvalid     = errors.New("invalid range")
)

// ByteOffset represents a byte position in the document.
// This is the fundamental position type, directly indexing into the text.
type ByteOffset = int64

// Port is the narrow surface the engine needs from a host document.
// The engine never depends on any host-specific decoration or rendering
// primitive; it only reads and mutates a flat text buffer by offset range.
type Port interface {
	// Text returns the full document text.
	Text() string

	// Len returns the document length in bytes.
	Len() ByteOffset

	// Slice returns the text in [from, to).
	Slice(from, to ByteOffset) (string, error)

	// ReplaceRange replaces the text in [from, to) with text.
	// An empty range inserts; empty text deletes.
	ReplaceRange(from, to ByteOffset, text string) error
}
