package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/faults"
	"github.com/reviewkit/redline/internal/track"
)

func setup(t *testing.T, text string, opts ...Option) (*Manager, *track.Tracker, *editor.Document, track.SessionID) {
	t.Helper()
	doc := editor.NewDocument(text)
	tr := track.NewTracker(doc)
	s, err := tr.StartSession("")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return NewManager(tr, doc, opts...), tr, doc, s.ID
}

func TestCommitKeepsChanges(t *testing.T) {
	m, tr, doc, sid := setup(t, "hello world")

	tx, err := m.Begin(sid)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tr.Record(sid, track.Change{
		Type: track.ChangeInsert, Range: editor.NewRange(5, 5), NewText: " big",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := m.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if doc.Text() != "hello big world" {
		t.Errorf("text = %q", doc.Text())
	}
	if tr.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", tr.PendingCount())
	}
}

func TestRollbackRevertsOnlyTransactionChanges(t *testing.T) {
	m, tr, doc, sid := setup(t, "hello world")

	// A change recorded before the transaction must survive rollback.
	pre, err := tr.Record(sid, track.Change{
		Type: track.ChangeInsert, Range: editor.NewRange(0, 0), NewText: ">> ",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	beginText := doc.Text()

	tx, err := m.Begin(sid)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tr.Record(sid, track.Change{
		Type: track.ChangeReplace, Range: editor.NewRange(3, 8), NewText: "HELLO",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := tr.Record(sid, track.Change{
		Type: track.ChangeInsert, Range: editor.NewRange(14, 14), NewText: "!",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := m.Rollback(tx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if doc.Text() != beginText {
		t.Errorf("text = %q, want %q", doc.Text(), beginText)
	}
	if tr.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", tr.PendingCount())
	}
	if _, ok := tr.Change(pre.ID); !ok {
		t.Error("pre-transaction change should still be tracked")
	}
}

func TestFinishedTxnRejectsReuse(t *testing.T) {
	m, _, _, sid := setup(t, "text")

	tx, err := m.Begin(sid)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := m.Rollback(tx); !errors.Is(err, ErrTxnFinished) {
		t.Errorf("rollback after commit: err = %v, want ErrTxnFinished", err)
	}
	if err := m.Commit(tx); !errors.Is(err, ErrTxnFinished) {
		t.Errorf("double commit: err = %v, want ErrTxnFinished", err)
	}
}

func TestRunRetriesTransient(t *testing.T) {
	m, tr, doc, sid := setup(t, "hello world",
		WithMaxRetries(5), WithRetryIntervals(time.Millisecond, 5*time.Millisecond))

	attempts := 0
	err := m.Run(context.Background(), sid, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return faults.New(faults.KindTransient, "produce", errors.New("rate limited"))
		}
		_, err := tr.Record(sid, track.Change{
			Type: track.ChangeInsert, Range: editor.NewRange(5, 5), NewText: ",",
		})
		return err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if doc.Text() != "hello, world" {
		t.Errorf("text = %q", doc.Text())
	}
}

func TestRunDoesNotRetryValidation(t *testing.T) {
	m, _, _, sid := setup(t, "hello world",
		WithRetryIntervals(time.Millisecond, 5*time.Millisecond))

	attempts := 0
	wantErr := faults.New(faults.KindValidation, "produce", errors.New("bad input"))
	err := m.Run(context.Background(), sid, func(context.Context) error {
		attempts++
		return wantErr
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry)", attempts)
	}
	if !faults.IsValidation(err) {
		t.Errorf("err = %v, want the validation fault", err)
	}
}

func TestRunRollsBackOnFailure(t *testing.T) {
	m, tr, doc, sid := setup(t, "hello world",
		WithMaxRetries(1), WithRetryIntervals(time.Millisecond, 5*time.Millisecond))
	original := doc.Text()

	err := m.Run(context.Background(), sid, func(context.Context) error {
		if _, err := tr.Record(sid, track.Change{
			Type: track.ChangeReplace, Range: editor.NewRange(0, 5), NewText: "HELLO",
		}); err != nil {
			return err
		}
		return faults.New(faults.KindCritical, "produce", errors.New("boom"))
	})
	if err == nil {
		t.Fatal("Run should surface the failure")
	}
	if !faults.IsCritical(err) {
		t.Errorf("err = %v, want critical fault", err)
	}

	if doc.Text() != original {
		t.Errorf("text = %q, want rolled back to %q", doc.Text(), original)
	}
	if tr.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", tr.PendingCount())
	}
}
