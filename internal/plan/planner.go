package plan

import (
	"errors"
	"time"

	"github.com/reviewkit/redline/internal/faults"
	"github.com/reviewkit/redline/internal/textdiff"
)

// Errors returned by plan building.
var (
	ErrTooManyOperations = errors.New("plan exceeds maximum operation count")
	ErrBudgetExceeded    = errors.New("plan exceeds latency budget")
)

// Granularity controls where a transformation may be chunked.
type Granularity uint8

const (
	// GranularityCharacter chunks at grapheme boundaries.
	GranularityCharacter Granularity = iota

	// GranularityWord never places a chunk boundary inside a contiguous
	// run of word characters unless the diff already split there.
	GranularityWord
)

// String returns a human-readable representation of the granularity.
func (g Granularity) String() string {
	switch g {
	case GranularityCharacter:
		return "character"
	case GranularityWord:
		return "word"
	default:
		return "unknown"
	}
}

// Default planner limits.
const (
	DefaultChunkSize     = 16
	DefaultMaxOperations = 500
	DefaultPacing        = 15 * time.Millisecond
	DefaultLatencyBudget = 30 * time.Second
	perOperationEstimate = time.Millisecond
)

// Options configures plan building.
type Options struct {
	// Granularity selects character or word-boundary chunking.
	Granularity Granularity

	// ChunkSize is the target chunk length in grapheme clusters.
	// 0 uses DefaultChunkSize.
	ChunkSize int

	// Pacing is the synthetic delay before each operation after the first.
	Pacing time.Duration

	// MaxOperations rejects plans with more operations than this.
	// 0 uses DefaultMaxOperations; negative disables the check.
	MaxOperations int

	// LatencyBudget rejects plans whose estimated apply time (including
	// pacing) exceeds it. 0 uses DefaultLatencyBudget; negative disables.
	LatencyBudget time.Duration
}

// DefaultOptions returns default planner options.
func DefaultOptions() Options {
	return Options{
		Granularity:   GranularityWord,
		ChunkSize:     DefaultChunkSize,
		Pacing:        DefaultPacing,
		MaxOperations: DefaultMaxOperations,
		LatencyBudget: DefaultLatencyBudget,
	}
}

// OpType categorizes a planned operation.
type OpType uint8

const (
	// OpInsert inserts Text at Position.
	OpInsert OpType = iota

	// OpDelete removes Length bytes at Position.
	OpDelete

	// OpReplace removes Length bytes at Position and inserts Text.
	OpReplace
)

// String returns a human-readable representation of the op type.
func (ot OpType) String() string {
	switch ot {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Operation is one bounded step of a plan.
// Position is pre-adjusted for the cumulative length delta of all earlier
// operations in the same plan, so operations apply strictly in order
// against a live, mutating buffer.
type Operation struct {
	Type     OpType
	Position int64
	Length   int64 // Bytes removed (delete/replace)
	Text     string
	Pacing   time.Duration
}

// Delta returns the byte length change introduced by this operation.
func (o Operation) Delta() int64 {
	return int64(len(o.Text)) - o.Length
}

// Plan is an ordered, paced sequence of bounded operations derived from a
// diff. Applying its operations in order to the original text yields the
// target text exactly.
type Plan struct {
	Ops []Operation

	// Estimated wall time to apply the plan including pacing delays.
	Estimated time.Duration
}

// Len returns the number of operations.
func (p *Plan) Len() int {
	return len(p.Ops)
}

// Build converts an edit script into a plan.
// Capacity checks run before anything touches a document: a rejected plan
// never partially applies.
func Build(edits []textdiff.Edit, opts Options) (*Plan, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var ops []Operation
	var cumDelta int64

	for _, e := range edits {
		pos := e.Start + cumDelta

		switch e.Type {
		case textdiff.EditInsert:
			for _, chunk := range chunkText(e.NewText, opts.Granularity, chunkSize) {
				ops = append(ops, Operation{
					Type:     OpInsert,
					Position: pos,
					Text:     chunk,
					Pacing:   opts.Pacing,
				})
				pos += int64(len(chunk))
			}

		case textdiff.EditDelete:
			for _, chunk := range chunkText(e.OldText, opts.Granularity, chunkSize) {
				ops = append(ops, Operation{
					Type:     OpDelete,
					Position: pos,
					Length:   int64(len(chunk)),
					Pacing:   opts.Pacing,
				})
			}

		case textdiff.EditReplace:
			// First chunk carries the deletion of the whole old range,
			// remaining chunks are plain inserts after it.
			chunks := chunkText(e.NewText, opts.Granularity, chunkSize)
			ops = append(ops, Operation{
				Type:     OpReplace,
				Position: pos,
				Length:   e.End - e.Start,
				Text:     chunks[0],
				Pacing:   opts.Pacing,
			})
			pos += int64(len(chunks[0]))
			for _, chunk := range chunks[1:] {
				ops = append(ops, Operation{
					Type:     OpInsert,
					Position: pos,
					Text:     chunk,
					Pacing:   opts.Pacing,
				})
				pos += int64(len(chunk))
			}
		}

		cumDelta += e.Delta()
	}

	if len(ops) > 0 {
		ops[0].Pacing = 0
	}

	maxOps := opts.MaxOperations
	if maxOps == 0 {
		maxOps = DefaultMaxOperations
	}
	if maxOps > 0 && len(ops) > maxOps {
		return nil, faults.Newf(faults.KindCapacity, "plan",
			"%w: %d > %d", ErrTooManyOperations, len(ops), maxOps)
	}

	estimated := estimate(ops)
	budget := opts.LatencyBudget
	if budget == 0 {
		budget = DefaultLatencyBudget
	}
	if budget > 0 && estimated > budget {
		return nil, faults.Newf(faults.KindCapacity, "plan",
			"%w: estimated %v > budget %v", ErrBudgetExceeded, estimated, budget)
	}

	return &Plan{Ops: ops, Estimated: estimated}, nil
}

// estimate returns the expected wall time to apply ops.
func estimate(ops []Operation) time.Duration {
	var total time.Duration
	for _, op := range ops {
		total += op.Pacing + perOperationEstimate
	}
	return total
}
