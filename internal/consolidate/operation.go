package consolidate

import (
	"time"

	"github.com/google/uuid"

	"github.com/reviewkit/redline/internal/track"
)

// OperationID uniquely identifies a producer operation.
type OperationID = string

// NewOperationID generates a new unique operation ID.
func NewOperationID() OperationID {
	return uuid.NewString()
}

// Status is an operation's lifecycle state.
type Status uint8

const (
	StatusPreparing Status = iota
	StatusProcessing
	StatusCompleted
	StatusError
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPreparing:
		return "preparing"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Strategy names a conflict resolution strategy.
type Strategy string

const (
	// StrategyAutoMerge applies the incoming change on top of the
	// overlapping pending change; both stay tracked.
	StrategyAutoMerge Strategy = "auto_merge"

	// StrategyPriorityOverride keeps the existing equal-or-higher
	// priority change and skips the incoming one.
	StrategyPriorityOverride Strategy = "priority_override"

	// StrategySequentialQueue defers the incoming operation to the
	// background queue for processing after the current set settles.
	StrategySequentialQueue Strategy = "sequential_queue"
)

// Capabilities declares what a producer's operations can tolerate.
type Capabilities struct {
	// CoexistWith lists producer IDs whose overlapping changes do not
	// conflict with this operation.
	CoexistWith []string

	// Strategies lists the resolution strategies the producer supports.
	Strategies []Strategy

	// MaxBatchSize caps how many changes are applied per batch. Zero
	// uses the engine default.
	MaxBatchSize int
}

// Supports reports whether the producer supports a strategy.
func (c Capabilities) Supports(s Strategy) bool {
	for _, have := range c.Strategies {
		if have == s {
			return true
		}
	}
	return false
}

// CanCoexistWith reports whether overlaps with the given producer are
// tolerated without conflict resolution.
func (c Capabilities) CanCoexistWith(producer string) bool {
	for _, p := range c.CoexistWith {
		if p == producer {
			return true
		}
	}
	return false
}

// Operation is one producer's batch of changes against a document.
// Change ranges address the document state at submission, in order.
type Operation struct {
	ID           OperationID
	ProducerID   string
	Priority     int
	Changes      []track.Change
	Capabilities Capabilities
	Strategy     Strategy
	Status       Status
	SubmittedAt  time.Time
}

// sizeEstimate approximates the processing cost of an operation in text
// bytes. Used to gate immediate versus deferred processing.
func (op *Operation) sizeEstimate() int64 {
	var n int64
	for _, c := range op.Changes {
		n += int64(len(c.NewText) + len(c.OldText))
		n += int64(c.Range.Len())
	}
	return n
}
