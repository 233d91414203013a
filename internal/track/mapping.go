package track

import "github.com/reviewkit/redline/internal/editor"

// Mapping is the position-delta function produced by one document
// mutation: the text in [From, To) was replaced by NewLen bytes.
// Every pending range is folded through each mapping in commit order,
// independent of any rendering layer.
type Mapping struct {
	From   editor.ByteOffset
	To     editor.ByteOffset
	NewLen editor.ByteOffset
}

// Delta returns the net length change of the mutation.
func (m Mapping) Delta() int64 {
	return int64(m.NewLen) - int64(m.To-m.From)
}

// IsInsert reports whether the mutation inserted without removing.
func (m Mapping) IsInsert() bool {
	return m.From == m.To
}

// MapPos maps a single position through the mutation.
//
// assocAfter controls behavior for a position exactly at an insertion
// point: true shifts it past the inserted text (range starts), false
// keeps it before (range ends). Positions strictly inside the replaced
// region clamp to the replacement.
func (m Mapping) MapPos(p editor.ByteOffset, assocAfter bool) editor.ByteOffset {
	if m.IsInsert() {
		switch {
		case p < m.From:
			return p
		case p == m.From:
			if assocAfter {
				return p + m.NewLen
			}
			return p
		default:
			return p + m.NewLen
		}
	}

	switch {
	case p <= m.From:
		return p
	case p >= m.To:
		return p + editor.ByteOffset(m.Delta())
	default:
		// Inside the replaced region: clamp to the replacement.
		np := m.From + m.NewLen
		if p < np {
			return p
		}
		return np
	}
}

// MapRange maps a range through the mutation.
// A range the mutation swallowed collapses to an empty range.
func (m Mapping) MapRange(r editor.Range) editor.Range {
	start := m.MapPos(r.Start, true)
	end := m.MapPos(r.End, false)
	if end < start {
		end = start
	}
	return editor.Range{Start: start, End: end}
}
