// Package editor defines the document port consumed by the engine and an
// in-memory implementation of it.
//
// The engine touches the host document exclusively through [Port]: read
// the flat text and replace a byte range. Hosts adapt their own buffer
// types to this interface; [Document] is the reference implementation
// used by the CLI and by tests.
//
// All positions are byte offsets and all ranges are half-open [Start, End).
package editor
