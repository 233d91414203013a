package editor

import "testing"

func TestRangeBasics(t *testing.T) {
	r := NewRange(10, 15)

	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}
	if r.IsEmpty() {
		t.Error("range should not be empty")
	}
	if !r.IsValid() {
		t.Error("range should be valid")
	}
	if !r.Contains(10) || r.Contains(15) {
		t.Error("Contains should be inclusive of Start, exclusive of End")
	}
	if r.String() != "[10:15)" {
		t.Errorf("String() = %q, want '[10:15)'", r.String())
	}
	if (Range{Start: 5, End: 3}).IsValid() {
		t.Error("reversed range should be invalid")
	}
	if (Range{Start: -1, End: 3}).IsValid() {
		t.Error("negative range should be invalid")
	}
}

func TestRangeOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want bool
	}{
		{"identical", NewRange(0, 5), NewRange(0, 5), true},
		{"partial", NewRange(0, 5), NewRange(3, 8), true},
		{"contained", NewRange(0, 10), NewRange(3, 5), true},
		{"adjacent", NewRange(0, 5), NewRange(5, 8), false},
		{"disjoint", NewRange(0, 3), NewRange(7, 9), false},
		{"empty at boundary", NewRange(5, 5), NewRange(0, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("%v.Overlaps(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps is not symmetric for %v, %v", tt.a, tt.b)
			}
		})
	}
}

func TestRangeSetOps(t *testing.T) {
	a := NewRange(0, 5)
	b := NewRange(3, 8)

	if got := a.Intersect(b); got != NewRange(3, 5) {
		t.Errorf("Intersect = %v, want [3:5)", got)
	}
	if got := a.Union(b); got != NewRange(0, 8) {
		t.Errorf("Union = %v, want [0:8)", got)
	}
	if got := a.Shift(2); got != NewRange(2, 7) {
		t.Errorf("Shift = %v, want [2:7)", got)
	}

	disjoint := NewRange(10, 12)
	if !a.Intersect(disjoint).IsEmpty() {
		t.Error("Intersect of disjoint ranges should be empty")
	}
	if !a.Adjacent(NewRange(5, 9)) {
		t.Error("ranges touching at 5 should be adjacent")
	}
}

func TestDocumentReplaceRange(t *testing.T) {
	d := NewDocument("hello world")

	if err := d.ReplaceRange(6, 11, "there"); err != nil {
		t.Fatalf("ReplaceRange: %v", err)
	}
	if d.Text() != "hello there" {
		t.Errorf("Text() = %q, want 'hello there'", d.Text())
	}

	// Insertion
	if err := d.ReplaceRange(5, 5, ","); err != nil {
		t.Fatalf("ReplaceRange insert: %v", err)
	}
	if d.Text() != "hello, there" {
		t.Errorf("Text() = %q, want 'hello, there'", d.Text())
	}

	// Deletion
	if err := d.ReplaceRange(0, 7, ""); err != nil {
		t.Fatalf("ReplaceRange delete: %v", err)
	}
	if d.Text() != "there" {
		t.Errorf("Text() = %q, want 'there'", d.Text())
	}
}

func TestDocumentBounds(t *testing.T) {
	d := NewDocument("abc")

	if err := d.ReplaceRange(2, 1, "x"); err != ErrRangeInvalid {
		t.Errorf("reversed range: err = %v, want ErrRangeInvalid", err)
	}
	if err := d.ReplaceRange(0, 10, "x"); err != ErrOffsetOutOfRange {
		t.Errorf("oversized range: err = %v, want ErrOffsetOutOfRange", err)
	}
	if _, err := d.Slice(-1, 2); err != ErrRangeInvalid {
		t.Errorf("negative slice: err = %v, want ErrRangeInvalid", err)
	}
}

func TestDocumentRevisionAndObservers(t *testing.T) {
	d := NewDocument("abc")
	before := d.Revision()

	var gotFrom, gotTo, gotLen ByteOffset
	calls := 0
	d.Observe(func(from, to, newLen ByteOffset) {
		gotFrom, gotTo, gotLen = from, to, newLen
		calls++
	})

	if err := d.ReplaceRange(1, 2, "xyz"); err != nil {
		t.Fatalf("ReplaceRange: %v", err)
	}

	if d.Revision() == before {
		t.Error("revision should advance on mutation")
	}
	if calls != 1 {
		t.Fatalf("observer called %d times, want 1", calls)
	}
	if gotFrom != 1 || gotTo != 2 || gotLen != 3 {
		t.Errorf("observer saw (%d,%d,%d), want (1,2,3)", gotFrom, gotTo, gotLen)
	}
}
