package event

import "github.com/reviewkit/redline/internal/editor"

// Payload types for the engine's topics. Consumers type-switch on
// Envelope.Payload.

// ProcessingStarted reports that a submission began processing.
type ProcessingStarted struct {
	RequestID  string
	ProducerID string
	Changes    int
}

// ProcessingProgress reports partial completion of a submission.
type ProcessingProgress struct {
	RequestID string
	Done      int
	Total     int
}

// ProcessingCompleted reports that a submission finished.
type ProcessingCompleted struct {
	RequestID string
	Recorded  int
	Warnings  []string
}

// ProcessingFailed reports that a submission failed.
type ProcessingFailed struct {
	RequestID string
	Err       string
}

// ChangeRecorded reports a newly tracked change.
type ChangeRecorded struct {
	ChangeID  string
	SessionID string
	Range     editor.Range
}

// ClusterCreated reports a newly computed cluster.
type ClusterCreated struct {
	ClusterID string
	SessionID string
	Members   int
}

// ConflictDetected reports an overlap between operations.
type ConflictDetected struct {
	OperationID string
	Class       string
	Range       editor.Range
}

// ConflictResolved reports how a detected conflict was settled.
type ConflictResolved struct {
	OperationID string
	Strategy    string
}

// SessionStarted reports a new recording session.
type SessionStarted struct {
	SessionID string
}

// SessionEnded reports a finalized session.
type SessionEnded struct {
	SessionID string
	Changes   int
}
