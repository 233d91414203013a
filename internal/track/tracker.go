package track

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/faults"
)

// Errors returned by tracker operations.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionEnded     = errors.New("session has ended")
	ErrChangeNotFound   = errors.New("change not found")
	ErrRangeOutOfBounds = errors.New("change range exceeds document length")
	ErrTextMismatch     = errors.New("live text does not match recorded text")
)

// DefaultMaxHistory is the default bound on retained position mappings.
const DefaultMaxHistory = 10000

// MismatchPolicy decides what happens when a reject finds live text that
// no longer matches what was recorded (the user edited inside a pending
// change).
type MismatchPolicy uint8

const (
	// MismatchSkip skips the mismatched sub-change with a warning and
	// continues rejecting the rest.
	MismatchSkip MismatchPolicy = iota

	// MismatchFail aborts the whole reject before mutating anything.
	MismatchFail
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		t.log = l
	}
}

// WithMismatchPolicy sets the reject mismatch policy.
func WithMismatchPolicy(p MismatchPolicy) Option {
	return func(t *Tracker) {
		t.policy = p
	}
}

// WithMaxHistory bounds the retained mapping history.
func WithMaxHistory(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxHistory = n
			t.history = make([]Mapping, n)
			t.histHead = 0
			t.histCount = 0
		}
	}
}

// Tracker is the position-mapping core. It records changes as ranges
// anchored in the live document, remaps every pending range whenever the
// document mutates, and owns accept/reject.
//
// The tracker is the only component that mutates document text as a side
// effect of recording, rejecting, or forwarding edits. All operations are
// serialized by a single exclusive lock, which also makes a multi-step
// reject atomic with respect to other tracker users.
type Tracker struct {
	mu   sync.Mutex
	port editor.Port
	log  *zap.Logger

	sessions map[SessionID]*Session
	pending  map[ChangeID]*Change

	// Applied mappings in a ring buffer (oldest at histHead).
	history    []Mapping
	histHead   int
	histCount  int
	maxHistory int

	policy MismatchPolicy
}

// NewTracker creates a tracker over the given document port.
func NewTracker(port editor.Port, opts ...Option) *Tracker {
	t := &Tracker{
		port:       port,
		log:        zap.NewNop(),
		sessions:   make(map[SessionID]*Session),
		pending:    make(map[ChangeID]*Change),
		history:    make([]Mapping, DefaultMaxHistory),
		maxHistory: DefaultMaxHistory,
		policy:     MismatchSkip,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Session management

// StartSession begins a recording session. An empty id generates one.
func (t *Tracker) StartSession(id SessionID) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id != "" {
		if _, ok := t.sessions[id]; ok {
			return nil, faults.New(faults.KindSession, "start-session", ErrSessionExists)
		}
	}
	s := newSession(id)
	t.sessions[s.ID] = s
	t.log.Debug("session started", zap.String("session", s.ID))
	return s, nil
}

// EndSession finalizes a session and removes it from the tracker.
// The returned session is the caller's to persist or export; its pending
// changes are dropped from the live set.
func (t *Tracker) EndSession(id SessionID) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, faults.New(faults.KindSession, "end-session", ErrSessionNotFound)
	}
	s.EndedAt = time.Now()
	delete(t.sessions, id)
	for _, c := range s.changes {
		delete(t.pending, c.ID)
	}
	t.log.Debug("session ended",
		zap.String("session", id),
		zap.Int("changes", s.Len()))
	return s, nil
}

// Session returns a session by ID.
func (t *Tracker) Session(id SessionID) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Recording

// Record applies a change to the document and begins tracking it.
//
// The change's Range addresses the CURRENT document state; OldText, if
// empty for a delete/replace, is captured from the document. Existing
// pending ranges are remapped by the mutation before the new change is
// anchored, so the new change's own edit never displaces itself.
func (t *Tracker) Record(sessionID SessionID, c Change) (Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return Change{}, faults.New(faults.KindSession, "record", ErrSessionNotFound)
	}
	if !s.IsActive() {
		return Change{}, faults.New(faults.KindSession, "record", ErrSessionEnded)
	}
	if !c.Range.IsValid() {
		return Change{}, faults.New(faults.KindValidation, "record", editor.ErrRangeInvalid)
	}
	if c.Range.End > t.port.Len() {
		return Change{}, faults.New(faults.KindValidation, "record", ErrRangeOutOfBounds)
	}

	// Capture removed text before the mutation destroys it.
	if c.Type != ChangeInsert && c.OldText == "" {
		old, err := t.port.Slice(c.Range.Start, c.Range.End)
		if err != nil {
			return Change{}, faults.New(faults.KindValidation, "record", err)
		}
		c.OldText = old
	}

	if err := t.mutateLocked(c.Range.Start, c.Range.End, c.NewText); err != nil {
		return Change{}, faults.New(faults.KindCritical, "record", err)
	}

	if c.ID == "" {
		c.ID = NewChangeID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.Status = StatusPending
	// Live range covers the text the change put into the document.
	c.Range = editor.Range{
		Start: c.Range.Start,
		End:   c.Range.Start + editor.ByteOffset(len(c.NewText)),
	}

	stored := c
	s.append(&stored)
	t.pending[stored.ID] = &stored

	t.log.Debug("change recorded",
		zap.String("change", stored.ID),
		zap.String("session", sessionID),
		zap.Stringer("type", stored.Type))
	return stored, nil
}

// Forward applies an edit that is NOT tracked as a reviewable change
// (e.g. the user typing) and remaps all pending ranges through it.
func (t *Tracker) Forward(from, to editor.ByteOffset, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mutateLocked(from, to, text)
}

// mutateLocked applies a document mutation and folds every pending range
// through its position-delta mapping. Must hold the lock.
func (t *Tracker) mutateLocked(from, to editor.ByteOffset, text string) error {
	if err := t.port.ReplaceRange(from, to, text); err != nil {
		return err
	}
	m := Mapping{From: from, To: to, NewLen: editor.ByteOffset(len(text))}
	for _, c := range t.pending {
		c.Range = m.MapRange(c.Range)
	}
	t.recordMappingLocked(m)
	return nil
}

// recordMappingLocked appends a mapping to the ring buffer.
func (t *Tracker) recordMappingLocked(m Mapping) {
	idx := (t.histHead + t.histCount) % t.maxHistory
	if t.histCount < t.maxHistory {
		t.histCount++
	} else {
		t.histHead = (t.histHead + 1) % t.maxHistory
	}
	t.history[idx] = m
}

// Queries

// Pending returns copies of all pending changes, unordered.
func (t *Tracker) Pending() []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Change, 0, len(t.pending))
	for _, c := range t.pending {
		out = append(out, *c)
	}
	return out
}

// PendingInSession returns copies of a session's pending changes in
// creation order.
func (t *Tracker) PendingInSession(id SessionID) ([]Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, faults.New(faults.KindSession, "pending", ErrSessionNotFound)
	}
	var out []Change
	for _, c := range s.changes {
		if c.Status == StatusPending {
			out = append(out, *c)
		}
	}
	return out, nil
}

// Change returns a copy of a change by ID, pending or not.
func (t *Tracker) Change(id ChangeID) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.pending[id]; ok {
		return *c, true
	}
	for _, s := range t.sessions {
		for _, c := range s.changes {
			if c.ID == id {
				return *c, true
			}
		}
	}
	return Change{}, false
}

// PendingCount returns the number of pending changes.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Mappings returns up to n most recent applied mappings, oldest first.
func (t *Tracker) Mappings(n int) []Mapping {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.histCount {
		n = t.histCount
	}
	out := make([]Mapping, n)
	for i := 0; i < n; i++ {
		idx := (t.histHead + t.histCount - n + i) % t.maxHistory
		out[i] = t.history[idx]
	}
	return out
}
