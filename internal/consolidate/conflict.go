package consolidate

import (
	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/track"
)

// Class categorizes how two ranges collide.
type Class uint8

const (
	// ClassIdentical means both changes target exactly the same range.
	ClassIdentical Class = iota

	// ClassPartial means the ranges overlap without being equal.
	ClassPartial

	// ClassAdjacent means the ranges touch but do not overlap.
	ClassAdjacent
)

func (c Class) String() string {
	switch c {
	case ClassIdentical:
		return "identical"
	case ClassPartial:
		return "partial-overlap"
	case ClassAdjacent:
		return "adjacent"
	default:
		return "unknown"
	}
}

// Conflict records one collision between an incoming change and an
// existing pending change, plus how it was settled.
type Conflict struct {
	OperationID OperationID
	Incoming    track.Change
	Existing    track.Change
	Class       Class
	Strategy    Strategy
	Resolved    bool
}

// classify determines the conflict class of two colliding ranges.
// Callers guarantee the ranges overlap or are adjacent.
func classify(incoming, existing editor.Range) Class {
	switch {
	case incoming == existing:
		return ClassIdentical
	case incoming.Overlaps(existing):
		return ClassPartial
	default:
		return ClassAdjacent
	}
}
