package track

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reviewkit/redline/internal/editor"
)

// ChangeID uniquely identifies a tracked change.
type ChangeID = string

// NewChangeID generates a new unique change ID.
func NewChangeID() ChangeID {
	return uuid.NewString()
}

// ChangeType categorizes the type of a change.
type ChangeType uint8

const (
	// ChangeInsert indicates text was inserted (OldText is empty).
	ChangeInsert ChangeType = iota

	// ChangeDelete indicates text was deleted (NewText is empty).
	ChangeDelete

	// ChangeReplace indicates text was replaced (both texts present).
	ChangeReplace
)

// String returns a human-readable representation of the change type.
func (ct ChangeType) String() string {
	switch ct {
	case ChangeInsert:
		return "insert"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Status is the review state of a change.
// Transitions: pending -> accepted | rejected, both terminal.
type Status uint8

const (
	// StatusPending means the change awaits review.
	StatusPending Status = iota

	// StatusAccepted means the change was kept; its text stays in the document.
	StatusAccepted

	// StatusRejected means the change was reverted.
	StatusRejected
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Context is the closed, versioned processing-context schema attached to
// a change: why the change was made, by which producer configuration.
// Unknown producer-specific details go in Extension, validated as JSON at
// the submission boundary.
type Context struct {
	Version     int            `json:"version"`
	Mode        string         `json:"mode,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	Model       string         `json:"model,omitempty"`
	Constraints []string       `json:"constraints,omitempty"`
	Extension   map[string]any `json:"extension,omitempty"`
}

// Change is the atomic unit of tracked work: one insert, delete, or
// replace anchored to a live document range.
//
// Range is [From, To) in document coordinates. It is recorded at creation
// time and remapped on every subsequent document mutation, so a pending
// change stays anchored while the document moves underneath it.
type Change struct {
	ID        ChangeID
	Type      ChangeType
	Range     editor.Range
	NewText   string // Inserted text (empty for pure deletion)
	OldText   string // Removed text (empty for pure insertion)
	CreatedAt time.Time
	AuthorID  string // Producing author/provider identifier
	Priority  int    // Producer priority, used during consolidation
	Context   Context
	Status    Status
}

// String returns a human-readable representation of the change.
func (c Change) String() string {
	switch c.Type {
	case ChangeInsert:
		return fmt.Sprintf("Insert %q at %d [%s]", truncate(c.NewText, 20), c.Range.Start, c.Status)
	case ChangeDelete:
		return fmt.Sprintf("Delete %q at %v [%s]", truncate(c.OldText, 20), c.Range, c.Status)
	default:
		return fmt.Sprintf("Replace %q with %q at %v [%s]",
			truncate(c.OldText, 10), truncate(c.NewText, 10), c.Range, c.Status)
	}
}

// Delta returns the byte delta of this change.
func (c Change) Delta() int64 {
	return int64(len(c.NewText)) - int64(len(c.OldText))
}

// IsPending reports whether the change still awaits review.
func (c Change) IsPending() bool {
	return c.Status == StatusPending
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
