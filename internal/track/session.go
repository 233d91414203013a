package track

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionID uniquely identifies a recording session.
type SessionID = string

// NewSessionID generates a new unique session ID.
func NewSessionID() SessionID {
	return uuid.NewString()
}

// Counters aggregates inserted/removed volume for a session.
type Counters struct {
	Changes       int
	CharsInserted int64
	CharsRemoved  int64
	WordsInserted int64
	WordsRemoved  int64
}

// Session is a bounded recording scope: every change recorded between
// StartSession and EndSession for one document, in creation order.
type Session struct {
	ID        SessionID
	StartedAt time.Time
	EndedAt   time.Time // Zero until the session ends

	changes  []*Change
	counters Counters
}

func newSession(id SessionID) *Session {
	if id == "" {
		id = NewSessionID()
	}
	return &Session{
		ID:        id,
		StartedAt: time.Now(),
	}
}

// append records a change and updates the aggregate counters.
// Callers hold the tracker lock.
func (s *Session) append(c *Change) {
	s.changes = append(s.changes, c)
	s.counters.Changes++
	s.counters.CharsInserted += int64(len(c.NewText))
	s.counters.CharsRemoved += int64(len(c.OldText))
	s.counters.WordsInserted += int64(countWords(c.NewText))
	s.counters.WordsRemoved += int64(countWords(c.OldText))
}

// RestoreSession rebuilds a finalized session from exported data, e.g.
// when importing a JSON export. Counters are recomputed from the changes.
func RestoreSession(id SessionID, started, ended time.Time, changes []Change) *Session {
	s := &Session{
		ID:        id,
		StartedAt: started,
		EndedAt:   ended,
	}
	for i := range changes {
		c := changes[i]
		s.append(&c)
	}
	return s
}

// Changes returns the session's changes in creation order.
// The returned slice holds copies; mutating it does not affect the session.
func (s *Session) Changes() []Change {
	out := make([]Change, len(s.changes))
	for i, c := range s.changes {
		out[i] = *c
	}
	return out
}

// Counters returns the session's aggregate counters.
func (s *Session) Counters() Counters {
	return s.counters
}

// Len returns the number of recorded changes.
func (s *Session) Len() int {
	return len(s.changes)
}

// IsActive reports whether the session is still recording.
func (s *Session) IsActive() bool {
	return s.EndedAt.IsZero()
}

// Duration returns the session length, up to now for active sessions.
func (s *Session) Duration() time.Duration {
	if s.IsActive() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
