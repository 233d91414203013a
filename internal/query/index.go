// Package query provides read-only views over finalized sessions:
// filtered lookups through secondary indices and JSON/CSV/Markdown
// exports. Nothing in this package mutates document state.
package query

import (
	"sort"
	"sync"
	"time"

	"github.com/reviewkit/redline/internal/track"
)

// bucketSize is the granularity of the time index.
const bucketSize = time.Minute

type entry struct {
	sessionID track.SessionID
	change    track.Change
}

// Filter selects changes. Zero fields match everything.
type Filter struct {
	SessionID track.SessionID
	Producer  string
	Mode      string
	Status    *track.Status
	From      time.Time
	To        time.Time
}

// Index holds finalized sessions with secondary indices by producer,
// processing mode, and creation-time bucket.
type Index struct {
	mu       sync.RWMutex
	sessions map[track.SessionID]*track.Session
	order    []track.SessionID

	byProducer map[string][]int
	byMode     map[string][]int
	byBucket   map[int64][]int
	entries    []entry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		sessions:   make(map[track.SessionID]*track.Session),
		byProducer: make(map[string][]int),
		byMode:     make(map[string][]int),
		byBucket:   make(map[int64][]int),
	}
}

// Add indexes a finalized session. Re-adding a session ID replaces its
// previous contents.
func (ix *Index) Add(s *track.Session) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.sessions[s.ID]; ok {
		ix.rebuildLocked(s)
		return
	}
	ix.sessions[s.ID] = s
	ix.order = append(ix.order, s.ID)
	for _, c := range s.Changes() {
		ix.indexLocked(s.ID, c)
	}
}

// rebuildLocked re-indexes everything after a replacement. Replacing is
// rare, so full rebuild beats tombstone bookkeeping.
func (ix *Index) rebuildLocked(replacement *track.Session) {
	ix.sessions[replacement.ID] = replacement
	ix.entries = ix.entries[:0]
	ix.byProducer = make(map[string][]int)
	ix.byMode = make(map[string][]int)
	ix.byBucket = make(map[int64][]int)
	for _, id := range ix.order {
		s := ix.sessions[id]
		for _, c := range s.Changes() {
			ix.indexLocked(id, c)
		}
	}
}

func (ix *Index) indexLocked(sessionID track.SessionID, c track.Change) {
	i := len(ix.entries)
	ix.entries = append(ix.entries, entry{sessionID: sessionID, change: c})

	if c.AuthorID != "" {
		ix.byProducer[c.AuthorID] = append(ix.byProducer[c.AuthorID], i)
	}
	if c.Context.Mode != "" {
		ix.byMode[c.Context.Mode] = append(ix.byMode[c.Context.Mode], i)
	}
	b := c.CreatedAt.Truncate(bucketSize).Unix()
	ix.byBucket[b] = append(ix.byBucket[b], i)
}

// Session returns an indexed session by ID.
func (ix *Index) Session(id track.SessionID) (*track.Session, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s, ok := ix.sessions[id]
	return s, ok
}

// Sessions returns all indexed sessions in insertion order.
func (ix *Index) Sessions() []*track.Session {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*track.Session, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.sessions[id])
	}
	return out
}

// Changes returns every change matching the filter, in index order.
func (ix *Index) Changes(f Filter) []track.Change {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var candidates []int
	switch {
	case f.Producer != "":
		candidates = ix.byProducer[f.Producer]
	case f.Mode != "":
		candidates = ix.byMode[f.Mode]
	case !f.From.IsZero() || !f.To.IsZero():
		candidates = ix.bucketRangeLocked(f.From, f.To)
	default:
		candidates = make([]int, len(ix.entries))
		for i := range ix.entries {
			candidates[i] = i
		}
	}

	var out []track.Change
	for _, i := range candidates {
		e := ix.entries[i]
		if f.matches(e) {
			out = append(out, e.change)
		}
	}
	return out
}

func (ix *Index) bucketRangeLocked(from, to time.Time) []int {
	var out []int
	for b, idxs := range ix.byBucket {
		end := time.Unix(b, 0).Add(bucketSize)
		if !from.IsZero() && end.Before(from) {
			continue
		}
		if !to.IsZero() && time.Unix(b, 0).After(to) {
			continue
		}
		out = append(out, idxs...)
	}
	sort.Ints(out)
	return out
}

func (f Filter) matches(e entry) bool {
	if f.SessionID != "" && e.sessionID != f.SessionID {
		return false
	}
	if f.Producer != "" && e.change.AuthorID != f.Producer {
		return false
	}
	if f.Mode != "" && e.change.Context.Mode != f.Mode {
		return false
	}
	if f.Status != nil && e.change.Status != *f.Status {
		return false
	}
	if !f.From.IsZero() && e.change.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.change.CreatedAt.After(f.To) {
		return false
	}
	return true
}
