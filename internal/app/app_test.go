package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(Options{Producer: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a
}

func TestProcessTransforms(t *testing.T) {
	a := newTestApp(t)

	original := "Their are several errors hear."
	target := "There are several errors here."

	report, err := a.Process(context.Background(), original, target)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.SessionID == "" {
		t.Error("expected a session id")
	}
	if report.Changes == 0 {
		t.Error("expected recorded changes")
	}
	if report.Clusters == 0 {
		t.Error("expected at least one cluster")
	}
	if report.Session == nil || report.Session.Len() != report.Changes {
		t.Errorf("session change count mismatch: report %d", report.Changes)
	}
}

func TestProcessNoDifference(t *testing.T) {
	a := newTestApp(t)

	report, err := a.Process(context.Background(), "same text", "same text")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Changes != 0 || report.Operations != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
	if report.SessionID == "" {
		t.Error("expected a session id even with no edits")
	}
}

func TestExportFormats(t *testing.T) {
	a := newTestApp(t)

	report, err := a.Process(context.Background(), "alpha beta", "alpha gamma")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var buf bytes.Buffer
	if err := a.Export(report, "json", &buf); err != nil {
		t.Fatalf("Export json: %v", err)
	}
	if !strings.Contains(buf.String(), report.SessionID) {
		t.Error("json export missing session id")
	}

	buf.Reset()
	if err := a.Export(report, "csv", &buf); err != nil {
		t.Fatalf("Export csv: %v", err)
	}
	if !strings.Contains(buf.String(), "test") {
		t.Error("csv export missing producer")
	}

	buf.Reset()
	if err := a.Export(report, "markdown", &buf); err != nil {
		t.Fatalf("Export markdown: %v", err)
	}
	if !strings.Contains(buf.String(), "|") {
		t.Error("markdown export missing table")
	}

	if err := a.Export(report, "yaml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLogLevelOverride(t *testing.T) {
	a, err := New(Options{LogLevel: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()
	if a.Config().Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", a.Config().Log.Level)
	}
}

func TestBadGranularityRejected(t *testing.T) {
	if _, err := New(Options{Granularity: "paragraph"}); err == nil {
		t.Error("expected validation error for unknown granularity")
	}
}
