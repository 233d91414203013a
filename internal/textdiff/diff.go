package textdiff

import (
	"fmt"
	"strings"
)

// Default limits for diff computation.
const (
	// DefaultMaxSegments is the default maximum grapheme count for the
	// Myers pass (per side, after affix trimming).
	DefaultMaxSegments = 50000

	// DefaultMaxMemoryMB is the default memory limit in megabytes.
	DefaultMaxMemoryMB = 100
)

// EditType categorizes the type of an edit.
type EditType uint8

const (
	// EditInsert indicates text was inserted (OldText is empty).
	EditInsert EditType = iota

	// EditDelete indicates text was deleted (NewText is empty).
	EditDelete

	// EditReplace indicates text was replaced (both texts present).
	EditReplace
)

// String returns a human-readable representation of the edit type.
func (et EditType) String() string {
	switch et {
	case EditInsert:
		return "insert"
	case EditDelete:
		return "delete"
	case EditReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Edit is a single step of an edit script.
// Start and End are byte offsets into the ORIGINAL string, half-open
// [Start, End). For inserts Start == End. Edits in a script are
// non-overlapping and ascending by Start.
type Edit struct {
	Type    EditType
	Start   int64
	End     int64
	OldText string
	NewText string
}

// Delta returns the byte length change introduced by this edit.
func (e Edit) Delta() int64 {
	return int64(len(e.NewText)) - int64(len(e.OldText))
}

// String returns a human-readable representation of the edit.
func (e Edit) String() string {
	switch e.Type {
	case EditInsert:
		return fmt.Sprintf("Insert %q at %d", e.NewText, e.Start)
	case EditDelete:
		return fmt.Sprintf("Delete %q at [%d:%d)", e.OldText, e.Start, e.End)
	default:
		return fmt.Sprintf("Replace %q with %q at [%d:%d)", e.OldText, e.NewText, e.Start, e.End)
	}
}

// Options configures diff computation.
type Options struct {
	// MaxSegments limits the grapheme count given to the Myers pass.
	// Above this, the changed region collapses to a single replace.
	// 0 uses DefaultMaxSegments.
	MaxSegments int

	// MaxMemoryMB limits estimated memory for the Myers pass.
	// 0 uses DefaultMaxMemoryMB.
	MaxMemoryMB int
}

// DefaultOptions returns default diff options.
func DefaultOptions() Options {
	return Options{
		MaxSegments: DefaultMaxSegments,
		MaxMemoryMB: DefaultMaxMemoryMB,
	}
}

// Compute returns a minimal edit script transforming original into target.
// Identical strings yield a nil script; empty-to-nonempty is a single
// insert at 0; nonempty-to-empty is a single delete of the whole original.
func Compute(original, target string) []Edit {
	return ComputeWithOptions(original, target, DefaultOptions())
}

// ComputeWithOptions is Compute with explicit limits.
func ComputeWithOptions(original, target string, opts Options) []Edit {
	if original == target {
		return nil
	}

	oldSegs := segments(original)
	newSegs := segments(target)

	prefix, suffix := commonAffixes(oldSegs, newSegs)

	oldMid := oldSegs[prefix : len(oldSegs)-suffix]
	newMid := newSegs[prefix : len(newSegs)-suffix]

	// midStart is the byte offset where the changed region begins.
	var midStart int64
	if prefix < len(oldSegs) {
		midStart = oldSegs[prefix].offset
	} else {
		midStart = int64(len(original))
	}
	midEnd := int64(len(original))
	if suffix > 0 {
		midEnd = oldSegs[len(oldSegs)-suffix].offset
	}

	if len(oldMid) == 0 {
		return []Edit{{
			Type:    EditInsert,
			Start:   midStart,
			End:     midStart,
			NewText: joinSegments(newMid),
		}}
	}
	if len(newMid) == 0 {
		return []Edit{{
			Type:    EditDelete,
			Start:   midStart,
			End:     midEnd,
			OldText: original[midStart:midEnd],
		}}
	}

	if exceedsLimits(len(oldMid), len(newMid), opts) {
		// Collapse the whole changed region into one replace rather than
		// risk a quadratic Myers pass on a huge transformation.
		return []Edit{{
			Type:    EditReplace,
			Start:   midStart,
			End:     midEnd,
			OldText: original[midStart:midEnd],
			NewText: joinSegments(newMid),
		}}
	}

	ops := myersDiff(oldMid, newMid)
	edits := buildEdits(oldMid, newMid, ops, midStart)
	return semanticMerge(original, edits)
}

// Apply applies an edit script to original and returns the result.
// The script must be ascending and non-overlapping, as produced by Compute.
func Apply(original string, edits []Edit) string {
	if len(edits) == 0 {
		return original
	}

	var sb strings.Builder
	var pos int64
	for _, e := range edits {
		sb.WriteString(original[pos:e.Start])
		sb.WriteString(e.NewText)
		pos = e.End
	}
	sb.WriteString(original[pos:])
	return sb.String()
}

// exceedsLimits reports whether the Myers pass would blow the configured
// size or memory budget.
func exceedsLimits(n, m int, opts Options) bool {
	maxSegs := opts.MaxSegments
	if maxSegs == 0 {
		maxSegs = DefaultMaxSegments
	}
	if maxSegs > 0 && (n > maxSegs || m > maxSegs) {
		return true
	}

	maxMemMB := opts.MaxMemoryMB
	if maxMemMB == 0 {
		maxMemMB = DefaultMaxMemoryMB
	}
	if maxMemMB > 0 {
		// The trace keeps one V vector copy per edit distance step:
		// up to (n+m) copies of 2*(n+m)+1 ints, 8 bytes each.
		maxD := n + m
		estimatedBytes := int64(maxD) * int64(2*maxD+1) * 8
		if estimatedBytes/(1024*1024) > int64(maxMemMB) {
			return true
		}
	}
	return false
}

func joinSegments(segs []segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.text)
	}
	return sb.String()
}

// opType mirrors EditType for raw Myers output before merging.
type opType uint8

const (
	opEqual opType = iota
	opInsert
	opDelete
)

// editOp is a single element-level operation in the raw edit script.
type editOp struct {
	op       opType
	oldIndex int
	newIndex int
}

// myersDiff implements the Myers shortest-edit-script algorithm over
// grapheme segments.
func myersDiff(oldSegs, newSegs []segment) []editOp {
	n := len(oldSegs)
	m := len(newSegs)

	maxD := n + m
	offset := maxD // V[-max..max] maps to slice[0..2*max]
	v := make([]int, 2*maxD+1)
	v[offset+1] = 0

	var trace [][]int

outer:
	for d := 0; d <= maxD; d++ {
		// Save trace BEFORE processing this d (backtracking needs the
		// state from the previous iteration).
		vCopy := make([]int, len(v))
		copy(vCopy, v)
		trace = append(trace, vCopy)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}

			y := x - k

			for x < n && y < m && oldSegs[x].text == newSegs[y].text {
				x++
				y++
			}

			v[offset+k] = x

			if x >= n && y >= m {
				vFinal := make([]int, len(v))
				copy(vFinal, v)
				trace = append(trace, vFinal)
				break outer
			}
		}
	}

	return backtrack(trace, n, m, offset)
}

// backtrack reconstructs the edit script from the trace.
func backtrack(trace [][]int, n, m, offset int) []editOp {
	if len(trace) == 0 {
		return nil
	}

	x := n
	y := m
	var ops []editOp

	for d := len(trace) - 2; d >= 0; d-- {
		v := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}

		prevX := v[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			ops = append(ops, editOp{op: opEqual, oldIndex: x, newIndex: y})
		}

		if d > 0 {
			if x > prevX {
				x--
				ops = append(ops, editOp{op: opDelete, oldIndex: x})
			} else if y > prevY {
				y--
				ops = append(ops, editOp{op: opInsert, newIndex: y})
			}
		}
	}

	// Reverse (built backwards)
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops
}

// buildEdits merges the raw element ops into an edit script, collapsing a
// run of deletes followed by inserts at the same position into one replace.
func buildEdits(oldSegs, newSegs []segment, ops []editOp, midStart int64) []Edit {
	var edits []Edit

	var oldBuf, newBuf strings.Builder
	var pendStart, pendEnd int64
	pending := false

	flush := func(insertAt int64) {
		oldText := oldBuf.String()
		newText := newBuf.String()
		if oldText == "" && newText == "" {
			return
		}
		switch {
		case oldText == "":
			edits = append(edits, Edit{
				Type:    EditInsert,
				Start:   insertAt,
				End:     insertAt,
				NewText: newText,
			})
		case newText == "":
			edits = append(edits, Edit{
				Type:    EditDelete,
				Start:   pendStart,
				End:     pendEnd,
				OldText: oldText,
			})
		default:
			edits = append(edits, Edit{
				Type:    EditReplace,
				Start:   pendStart,
				End:     pendEnd,
				OldText: oldText,
				NewText: newText,
			})
		}
		oldBuf.Reset()
		newBuf.Reset()
		pending = false
	}

	// insertPos tracks where a pure insertion attaches in old coordinates:
	// the offset of the next unconsumed old segment.
	insertPos := midStart

	for _, op := range ops {
		switch op.op {
		case opEqual:
			seg := oldSegs[op.oldIndex]
			flush(seg.offset)
			insertPos = seg.offset + int64(len(seg.text))

		case opDelete:
			seg := oldSegs[op.oldIndex]
			if !pending || oldBuf.Len() == 0 {
				pendStart = seg.offset
				pending = true
			}
			pendEnd = seg.offset + int64(len(seg.text))
			oldBuf.WriteString(seg.text)
			insertPos = pendEnd

		case opInsert:
			if !pending {
				pending = true
			}
			newBuf.WriteString(newSegs[op.newIndex].text)
		}
	}
	flush(insertPos)

	return edits
}

// semanticMerge folds short unchanged gaps between neighboring edits into
// a single replace. A gap is folded when it is no longer than the larger
// side of each neighboring edit, so "hear" -> "here" becomes one replace
// instead of a delete and an insert straddling the unchanged "r".
func semanticMerge(original string, edits []Edit) []Edit {
	if len(edits) < 2 {
		return edits
	}

	merged := edits[:1]
	for _, next := range edits[1:] {
		last := &merged[len(merged)-1]
		gap := next.Start - last.End

		if gap > 0 && gap <= maxSide(*last) && gap <= maxSide(next) {
			gapText := original[last.End:next.Start]
			last.OldText = last.OldText + gapText + next.OldText
			last.NewText = last.NewText + gapText + next.NewText
			last.End = next.End
			last.Type = EditReplace
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

func maxSide(e Edit) int64 {
	oldLen := int64(len(e.OldText))
	newLen := int64(len(e.NewText))
	if oldLen > newLen {
		return oldLen
	}
	return newLen
}
