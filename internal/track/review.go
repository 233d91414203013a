package track

import (
	"sort"

	"go.uber.org/zap"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/faults"
)

// Accept resolves changes as kept. Their text already exists in the
// document, so accepting only discards tracking metadata; no document
// mutation occurs. Accepting an unknown or already-resolved change is a
// no-op, which makes accept idempotent.
func (t *Tracker) Accept(ids ...ChangeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		c, ok := t.pending[id]
		if !ok {
			continue
		}
		c.Status = StatusAccepted
		delete(t.pending, id)
		t.log.Debug("change accepted", zap.String("change", id))
	}
}

// Reject reverts changes, returning the document to its pre-change text.
//
// Insertions and replacements are reverted in descending position order so
// reverting one never shifts a not-yet-reverted range; deletions are then
// restored in ascending order. Each revert first verifies that the live
// text at the change's current range still equals what was recorded.
//
// Under MismatchSkip a failed verification releases that single sub-change
// from tracking with a warning (the user's own edit superseded it) and the
// rest of the reject continues. Under MismatchFail all verifications run
// before any mutation, so a failed reject leaves the document untouched.
//
// The whole reject runs under the tracker lock: one atomic mutation batch
// followed by one metadata removal, as observed by other tracker users.
//
// The returned mappings describe the mutations the reject applied, in
// order. Callers holding ranges that addressed the pre-reject document
// fold them through these mappings to stay valid.
func (t *Tracker) Reject(ids ...ChangeID) ([]Mapping, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reverts []*Change  // insert/replace, descending by position
	var restores []*Change // delete, ascending by position
	for _, id := range ids {
		c, ok := t.pending[id]
		if !ok {
			continue
		}
		if c.Type == ChangeDelete {
			restores = append(restores, c)
		} else {
			reverts = append(reverts, c)
		}
	}

	sort.Slice(reverts, func(i, j int) bool {
		return reverts[i].Range.Start > reverts[j].Range.Start
	})
	sort.Slice(restores, func(i, j int) bool {
		return restores[i].Range.Start < restores[j].Range.Start
	})

	if t.policy == MismatchFail {
		for _, c := range reverts {
			if err := t.verifyLocked(c); err != nil {
				return nil, faults.Newf(faults.KindConflict, "reject",
					"change %s: %w", c.ID, err)
			}
		}
	}

	var applied []Mapping
	for _, c := range reverts {
		if err := t.verifyLocked(c); err != nil {
			// MismatchFail already returned above; this is the skip path.
			t.log.Warn("skipping reject of edited change",
				zap.String("change", c.ID),
				zap.Stringer("range", c.Range),
				zap.Error(err))
			c.Status = StatusAccepted
			delete(t.pending, c.ID)
			continue
		}
		m := Mapping{From: c.Range.Start, To: c.Range.End, NewLen: editor.ByteOffset(len(c.OldText))}
		if err := t.mutateLocked(c.Range.Start, c.Range.End, c.OldText); err != nil {
			return applied, faults.Newf(faults.KindCritical, "reject",
				"reverting change %s: %w", c.ID, err)
		}
		applied = append(applied, m)
		c.Status = StatusRejected
		delete(t.pending, c.ID)
	}

	for _, c := range restores {
		m := Mapping{From: c.Range.Start, To: c.Range.Start, NewLen: editor.ByteOffset(len(c.OldText))}
		if err := t.mutateLocked(c.Range.Start, c.Range.Start, c.OldText); err != nil {
			return applied, faults.Newf(faults.KindCritical, "reject",
				"restoring change %s: %w", c.ID, err)
		}
		applied = append(applied, m)
		c.Status = StatusRejected
		delete(t.pending, c.ID)
	}

	return applied, nil
}

// verifyLocked checks that the live text at a change's current range still
// equals the text the change put there. Must hold the lock.
func (t *Tracker) verifyLocked(c *Change) error {
	live, err := t.port.Slice(c.Range.Start, c.Range.End)
	if err != nil {
		return err
	}
	if live != c.NewText {
		return ErrTextMismatch
	}
	return nil
}

// RejectSession rejects every pending change in a session.
func (t *Tracker) RejectSession(id SessionID) error {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if !ok {
		t.mu.Unlock()
		return faults.New(faults.KindSession, "reject-session", ErrSessionNotFound)
	}
	var ids []ChangeID
	for _, c := range s.changes {
		if c.Status == StatusPending {
			ids = append(ids, c.ID)
		}
	}
	t.mu.Unlock()

	_, err := t.Reject(ids...)
	return err
}
