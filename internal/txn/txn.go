// Package txn provides transactional scopes over tracker mutations. A
// transaction snapshots what is pending for a session when it begins;
// rolling back rejects exactly the changes recorded since, returning the
// document to its begin-time text.
package txn

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/faults"
	"github.com/reviewkit/redline/internal/track"
)

// Errors returned by transaction operations.
var (
	ErrTxnFinished = errors.New("transaction already committed or rolled back")
	ErrDirtyState  = errors.New("document hash differs from begin snapshot after rollback")
)

// Default retry tuning for Run.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// Txn is one transactional scope. Its methods are driven through the
// Manager that created it.
type Txn struct {
	ID        string
	SessionID track.SessionID
	StartedAt time.Time

	beginHash [sha256.Size]byte
	snapshot  map[track.ChangeID]bool
	finished  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMaxRetries caps retry attempts for transient failures in Run.
func WithMaxRetries(n uint64) Option {
	return func(m *Manager) { m.maxRetries = n }
}

// WithRetryIntervals tunes the exponential backoff between retries.
func WithRetryIntervals(initial, max time.Duration) Option {
	return func(m *Manager) {
		if initial > 0 {
			m.initialInterval = initial
		}
		if max > 0 {
			m.maxInterval = max
		}
	}
}

// Manager creates and resolves transactions over one tracker.
type Manager struct {
	tracker *track.Tracker
	port    editor.Port
	log     *zap.Logger

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewManager creates a transaction manager over a tracker and its
// document port.
func NewManager(tr *track.Tracker, port editor.Port, opts ...Option) *Manager {
	m := &Manager{
		tracker:         tr,
		port:            port,
		log:             zap.NewNop(),
		maxRetries:      DefaultMaxRetries,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin snapshots the session's pending change set and the document hash.
func (m *Manager) Begin(sessionID track.SessionID) (*Txn, error) {
	pending, err := m.tracker.PendingInSession(sessionID)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[track.ChangeID]bool, len(pending))
	for _, c := range pending {
		snapshot[c.ID] = true
	}

	tx := &Txn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		StartedAt: time.Now(),
		beginHash: sha256.Sum256([]byte(m.port.Text())),
		snapshot:  snapshot,
	}
	m.log.Debug("transaction begun",
		zap.String("txn", tx.ID),
		zap.String("session", sessionID),
		zap.Int("snapshot", len(snapshot)))
	return tx, nil
}

// Commit finalizes a transaction, keeping everything recorded inside it.
func (m *Manager) Commit(tx *Txn) error {
	if tx.finished {
		return faults.New(faults.KindValidation, "commit", ErrTxnFinished)
	}
	tx.finished = true
	m.log.Debug("transaction committed", zap.String("txn", tx.ID))
	return nil
}

// Rollback rejects every change recorded in the session since Begin. If
// the document hash afterwards still differs from the begin snapshot,
// something outside the transaction mutated the document; the rollback
// stands but the divergence is reported.
func (m *Manager) Rollback(tx *Txn) error {
	if tx.finished {
		return faults.New(faults.KindValidation, "rollback", ErrTxnFinished)
	}
	tx.finished = true

	pending, err := m.tracker.PendingInSession(tx.SessionID)
	if err != nil {
		return err
	}
	var recorded []track.ChangeID
	for _, c := range pending {
		if !tx.snapshot[c.ID] {
			recorded = append(recorded, c.ID)
		}
	}
	if _, err := m.tracker.Reject(recorded...); err != nil {
		return err
	}

	m.log.Debug("transaction rolled back",
		zap.String("txn", tx.ID),
		zap.Int("reverted", len(recorded)))

	if sha256.Sum256([]byte(m.port.Text())) != tx.beginHash {
		m.log.Warn("document diverged during transaction",
			zap.String("txn", tx.ID))
		return faults.New(faults.KindConflict, "rollback", ErrDirtyState)
	}
	return nil
}

// Run executes fn inside a transaction. Transient failures are retried
// with capped exponential backoff; any other failure, or exhausting the
// retries, rolls the transaction back before the error is returned.
// Success commits.
func (m *Manager) Run(ctx context.Context, sessionID track.SessionID, fn func(ctx context.Context) error) error {
	return m.RunWithRetries(ctx, sessionID, m.maxRetries, fn)
}

// RunWithRetries is Run with a per-call retry cap.
func (m *Manager) RunWithRetries(ctx context.Context, sessionID track.SessionID, maxRetries uint64, fn func(ctx context.Context) error) error {
	tx, err := m.Begin(sessionID)
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.initialInterval
	bo.MaxInterval = m.maxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)

	err = backoff.Retry(func() error {
		if err := fn(ctx); err != nil {
			if faults.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, policy)

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if rbErr := m.Rollback(tx); rbErr != nil {
			m.log.Error("rollback after failure failed",
				zap.String("txn", tx.ID),
				zap.Error(rbErr))
		}
		return err
	}
	return m.Commit(tx)
}
