package query

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/faults"
	"github.com/reviewkit/redline/internal/track"
)

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func sampleSession(id string) *track.Session {
	changes := []track.Change{
		{
			ID:        "ch-1",
			Type:      track.ChangeReplace,
			Range:     editor.NewRange(0, 5),
			NewText:   "There",
			OldText:   "Their",
			CreatedAt: base,
			AuthorID:  "grammar",
			Priority:  2,
			Context: track.Context{
				Version:  1,
				Mode:     "proofread",
				Provider: "acme",
				Model:    "editor-large",
			},
			Status: track.StatusPending,
		},
		{
			ID:        "ch-2",
			Type:      track.ChangeInsert,
			Range:     editor.NewRange(10, 16),
			NewText:   " quite",
			CreatedAt: base.Add(3 * time.Minute),
			AuthorID:  "style",
			Context: track.Context{
				Version:   1,
				Mode:      "rewrite",
				Extension: map[string]any{"tone": "formal"},
			},
			Status: track.StatusAccepted,
		},
		{
			ID:        "ch-3",
			Type:      track.ChangeDelete,
			Range:     editor.NewRange(20, 20),
			OldText:   "very ",
			CreatedAt: base.Add(10 * time.Minute),
			AuthorID:  "grammar",
			Context:   track.Context{Version: 1, Mode: "proofread"},
			Status:    track.StatusRejected,
		},
	}
	return track.RestoreSession(id, base, base.Add(15*time.Minute), changes)
}

func TestChangesByProducer(t *testing.T) {
	ix := NewIndex()
	ix.Add(sampleSession("s1"))

	got := ix.Changes(Filter{Producer: "grammar"})
	if len(got) != 2 {
		t.Fatalf("changes = %d, want 2", len(got))
	}
	for _, c := range got {
		if c.AuthorID != "grammar" {
			t.Errorf("change %s author = %q", c.ID, c.AuthorID)
		}
	}
}

func TestChangesByMode(t *testing.T) {
	ix := NewIndex()
	ix.Add(sampleSession("s1"))

	got := ix.Changes(Filter{Mode: "rewrite"})
	if len(got) != 1 || got[0].ID != "ch-2" {
		t.Fatalf("changes = %v, want [ch-2]", got)
	}
}

func TestChangesByTimeRange(t *testing.T) {
	ix := NewIndex()
	ix.Add(sampleSession("s1"))

	got := ix.Changes(Filter{
		From: base.Add(time.Minute),
		To:   base.Add(5 * time.Minute),
	})
	if len(got) != 1 || got[0].ID != "ch-2" {
		t.Fatalf("changes = %d, want only ch-2", len(got))
	}
}

func TestChangesByStatus(t *testing.T) {
	ix := NewIndex()
	ix.Add(sampleSession("s1"))

	st := track.StatusRejected
	got := ix.Changes(Filter{Status: &st})
	if len(got) != 1 || got[0].ID != "ch-3" {
		t.Fatalf("changes = %v, want [ch-3]", got)
	}
}

func TestChangesCombinedFilter(t *testing.T) {
	ix := NewIndex()
	ix.Add(sampleSession("s1"))
	ix.Add(sampleSession("s2"))

	st := track.StatusPending
	got := ix.Changes(Filter{SessionID: "s2", Producer: "grammar", Status: &st})
	if len(got) != 1 || got[0].ID != "ch-1" {
		t.Fatalf("changes = %v, want one pending grammar change from s2", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ix := NewIndex()
	want := sampleSession("s1")
	ix.Add(want)

	var buf bytes.Buffer
	if err := ix.ExportJSON(&buf); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	sessions, err := ImportJSON(buf.Bytes())
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}

	got := sessions[0]
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
	if !got.StartedAt.Equal(want.StartedAt) || !got.EndedAt.Equal(want.EndedAt) {
		t.Errorf("times = %v/%v, want %v/%v", got.StartedAt, got.EndedAt, want.StartedAt, want.EndedAt)
	}
	if diff := cmp.Diff(want.Changes(), got.Changes()); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if got.Counters() != want.Counters() {
		t.Errorf("counters = %+v, want %+v", got.Counters(), want.Counters())
	}
}

func TestImportRejectsBadData(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{nope"},
		{"wrong shape", `{"foo": 1}`},
		{"sessions not array", `{"sessions": 7}`},
		{"future version", `{"sessions": [], "meta": {"version": 99}}`},
		{"bad change type", `{"sessions": [{"id": "s", "changes": [{"id": "c", "type": "mangle", "status": "pending"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportJSON([]byte(tt.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !faults.IsValidation(err) {
				t.Errorf("err = %v, want validation fault", err)
			}
		})
	}
}

func TestExportCSV(t *testing.T) {
	ix := NewIndex()
	ix.Add(sampleSession("s1"))

	var buf bytes.Buffer
	if err := ix.ExportCSV(&buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want header + 3 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "session_id,change_id,type,status") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "replace") || !strings.Contains(lines[1], "grammar") {
		t.Errorf("first row = %q", lines[1])
	}
}

func TestExportMarkdown(t *testing.T) {
	ix := NewIndex()
	ix.Add(sampleSession("s1"))

	var buf bytes.Buffer
	if err := ix.ExportMarkdown(&buf); err != nil {
		t.Fatalf("ExportMarkdown: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "# Change Report") {
		t.Error("missing report header")
	}
	if !strings.Contains(out, "## Session s1") {
		t.Error("missing session section")
	}
	if !strings.Contains(out, "Changes: 3") {
		t.Errorf("missing aggregate stats in %q", out)
	}
}
