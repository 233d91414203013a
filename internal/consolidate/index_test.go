package consolidate

import (
	"testing"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/track"
)

func change(id string, start, end editor.ByteOffset) track.Change {
	return track.Change{ID: track.ChangeID(id), Range: editor.NewRange(start, end)}
}

func TestIndexOverlapping(t *testing.T) {
	ix := newIntervalIndex([]track.Change{
		change("a", 0, 5),
		change("b", 10, 20),
		change("c", 30, 40),
	})

	tests := []struct {
		name  string
		query editor.Range
		want  []string
	}{
		{"no overlap", editor.NewRange(5, 10), nil},
		{"inside one", editor.NewRange(12, 15), []string{"b"}},
		{"spanning two", editor.NewRange(3, 12), []string{"a", "b"}},
		{"exact match", editor.NewRange(30, 40), []string{"c"}},
		{"touching is not overlap", editor.NewRange(20, 30), nil},
		{"empty query", editor.NewRange(12, 12), nil},
		{"past everything", editor.NewRange(50, 60), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ix.overlapping(tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("overlapping(%v) = %d entries, want %d", tt.query, len(got), len(tt.want))
			}
			for i, e := range got {
				if string(e.ID) != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, e.ID, tt.want[i])
				}
			}
		})
	}
}

// Overlap queries must have no false positives or negatives: every pair
// of ranges either overlaps symmetrically in the index or not at all.
func TestIndexOverlapCompleteness(t *testing.T) {
	ranges := []editor.Range{
		editor.NewRange(0, 5),
		editor.NewRange(3, 8),
		editor.NewRange(8, 12),
		editor.NewRange(20, 25),
	}
	changes := make([]track.Change, len(ranges))
	for i, r := range ranges {
		changes[i] = track.Change{ID: track.ChangeID(string(rune('a' + i))), Range: r}
	}
	ix := newIntervalIndex(changes)

	for i, r := range ranges {
		hits := ix.overlapping(r)
		for j, other := range ranges {
			found := false
			for _, h := range hits {
				if h.Range == other {
					found = true
				}
			}
			shouldOverlap := r.Overlaps(other)
			if shouldOverlap && !found {
				t.Errorf("range %d should report overlap with range %d", i, j)
			}
			if !shouldOverlap && found && i != j {
				t.Errorf("range %d falsely reports overlap with range %d", i, j)
			}
		}
	}
}

func TestIndexAdjacent(t *testing.T) {
	ix := newIntervalIndex([]track.Change{
		change("a", 0, 5),
		change("b", 10, 20),
	})

	adj := ix.adjacent(editor.NewRange(5, 10))
	if len(adj) != 2 {
		t.Fatalf("adjacent = %d entries, want 2", len(adj))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		incoming editor.Range
		existing editor.Range
		want     Class
	}{
		{"identical", editor.NewRange(0, 5), editor.NewRange(0, 5), ClassIdentical},
		{"partial", editor.NewRange(0, 5), editor.NewRange(3, 8), ClassPartial},
		{"contained", editor.NewRange(0, 10), editor.NewRange(3, 5), ClassPartial},
		{"adjacent", editor.NewRange(0, 5), editor.NewRange(5, 10), ClassAdjacent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.incoming, tt.existing); got != tt.want {
				t.Errorf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIndexSignatureSurvivesRebuild(t *testing.T) {
	pending := []track.Change{
		change("a", 0, 5),
		change("b", 10, 20),
	}

	first := newIntervalIndex(pending)
	rebuilt := newIntervalIndex(pending)
	if first.sig != rebuilt.sig {
		t.Error("rebuild over an unchanged pending set must keep the signature")
	}
	q := editor.NewRange(2, 4)
	if cacheKey(first.sig, q) != cacheKey(rebuilt.sig, q) {
		t.Error("cache keys must match across rebuilds of an unchanged set")
	}

	grown := newIntervalIndex(append(pending, change("c", 30, 40)))
	if grown.sig == first.sig {
		t.Error("adding a pending change must change the signature")
	}
	moved := newIntervalIndex([]track.Change{
		change("a", 0, 5),
		change("b", 11, 20),
	})
	if moved.sig == first.sig {
		t.Error("moving a pending range must change the signature")
	}
}

func TestOverlapCacheEviction(t *testing.T) {
	c := newOverlapCache(2)

	c.put(1, []track.Change{change("a", 0, 1)})
	c.put(2, []track.Change{change("b", 0, 1)})
	c.put(3, []track.Change{change("c", 0, 1)})

	if c.len() != 2 {
		t.Fatalf("len = %d, want 2", c.len())
	}
	if _, ok := c.get(1); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.get(3); !ok {
		t.Error("newest entry should be present")
	}
}
