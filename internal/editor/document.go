package editor

import (
	"sync"
	"sync/atomic"
)

// RevisionID uniquely identifies a document revision.
// Each mutation creates a new revision.
type RevisionID uint64

// revisionCounter is used to generate unique revision IDs.
var revisionCounter uint64

// NewRevisionID generates a new unique revision ID.
// This is thread-safe using atomic operations.
func NewRevisionID() RevisionID {
	return RevisionID(atomic.AddUint64(&revisionCounter, 1))
}

// MutationFunc observes a committed document mutation.
// from/to are the replaced range in pre-mutation coordinates and newLen is
// the byte length of the replacement text.
type MutationFunc func(from, to ByteOffset, newLen ByteOffset)

// Document is an in-memory Port implementation.
// All methods are thread-safe. Mutation observers are invoked while the
// write lock is held, so observed mutations are seen in commit order.
type Document struct {
	mu        sync.RWMutex
	text      string
	revision  RevisionID
	observers []MutationFunc
}

// NewDocument creates a document with initial content.
func NewDocument(text string) *Document {
	return &Document{
		text:     text,
		revision: NewRevisionID(),
	}
}

// Text returns the full document text.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Len returns the document length in bytes.
func (d *Document) Len() ByteOffset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return ByteOffset(len(d.text))
}

// Revision returns the current revision ID.
func (d *Document) Revision() RevisionID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// Slice returns the text in [from, to).
func (d *Document) Slice(from, to ByteOffset) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if from < 0 || to < from {
		return "", ErrRangeInvalid
	}
	if to > ByteOffset(len(d.text)) {
		return "", ErrOffsetOutOfRange
	}
	return d.text[from:to], nil
}

// ReplaceRange replaces the text in [from, to) with text.
func (d *Document) ReplaceRange(from, to ByteOffset, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if from < 0 || to < from {
		return ErrRangeInvalid
	}
	if to > ByteOffset(len(d.text)) {
		return ErrOffsetOutOfRange
	}

	d.text = d.text[:from] + text + d.text[to:]
	d.revision = NewRevisionID()

	for _, fn := range d.observers {
		fn(from, to, ByteOffset(len(text)))
	}
	return nil
}

// Observe registers a mutation observer.
// Observers must not mutate the document from within the callback.
func (d *Document) Observe(fn MutationFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}
