package consolidate

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/track"
)

// intervalIndex answers overlap queries over a snapshot of the pending
// set. Entries are sorted by range start; queries binary-search the upper
// bound and scan the prefix. The index is a per-batch snapshot: callers
// rebuild it whenever the pending set may have changed.
//
// sig is a content signature over the sorted entries. Two snapshots of an
// unchanged pending set share the signature, so cached overlap results
// survive index rebuilds.
type intervalIndex struct {
	entries []track.Change
	sig     uint64
}

func newIntervalIndex(pending []track.Change) *intervalIndex {
	entries := make([]track.Change, len(pending))
	copy(entries, pending)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Range.Start < entries[j].Range.Start
	})
	return &intervalIndex{entries: entries, sig: signature(entries)}
}

// signature hashes every field an overlap consumer reads: identity,
// range, priority, and author. Any change to the pending set changes it.
func signature(entries []track.Change) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, e := range entries {
		h.Write([]byte(e.ID))
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Range.Start))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Range.End))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Priority))
		h.Write(buf[:])
		h.Write([]byte(e.AuthorID))
	}
	return h.Sum64()
}

// overlapping returns every pending change whose range overlaps r.
func (ix *intervalIndex) overlapping(r editor.Range) []track.Change {
	if r.IsEmpty() || len(ix.entries) == 0 {
		return nil
	}
	// First entry starting at or past r.End can no longer overlap.
	hi := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Range.Start >= r.End
	})
	var out []track.Change
	for _, e := range ix.entries[:hi] {
		if e.Range.Overlaps(r) {
			out = append(out, e)
		}
	}
	return out
}

// adjacent returns pending changes that touch r without overlapping it.
func (ix *intervalIndex) adjacent(r editor.Range) []track.Change {
	var out []track.Change
	for _, e := range ix.entries {
		if e.Range.Start > r.End {
			break
		}
		if e.Range.Adjacent(r) && !e.Range.Overlaps(r) {
			out = append(out, e)
		}
	}
	return out
}

func (ix *intervalIndex) len() int {
	return len(ix.entries)
}
