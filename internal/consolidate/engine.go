// Package consolidate resolves overlap between change operations
// submitted by independent producers against one document.
//
// Every operation's changes are checked against an interval index over
// the live pending set. Non-overlapping changes apply directly; overlaps
// with lower-priority pending changes supersede them; overlaps with
// equal-or-higher priority resolve through the operation's declared
// strategy. Large operations are deferred to a background queue instead
// of blocking the submitter.
package consolidate

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/reviewkit/redline/internal/event"
	"github.com/reviewkit/redline/internal/faults"
	"github.com/reviewkit/redline/internal/track"
)

// Errors returned by the engine.
var (
	ErrNoChanges           = errors.New("operation has no changes")
	ErrUnresolvedConflict  = errors.New("overlap conflict with no applicable strategy")
	ErrUnsupportedStrategy = errors.New("operation strategy not in declared capabilities")
	ErrQueueFull           = errors.New("deferred operation queue is full")
	ErrOperationCancelled  = errors.New("operation was cancelled")
)

// StrategySupersede labels the outcome when an incoming change replaces
// lower-priority pending changes. It is an outcome, not a producer-
// selectable strategy.
const StrategySupersede Strategy = "supersede"

// Engine defaults.
const (
	DefaultBatchSize    = 25
	DefaultDeferBytes   = 64 << 10
	DefaultDeferChanges = 200
	DefaultCacheSize    = 512
	DefaultQueueSize    = 64
	DefaultCleanupEvery = time.Minute
	DefaultRetention    = 5 * time.Minute
)

// Result reports what an operation did.
type Result struct {
	OperationID OperationID
	Status      Status
	Recorded    []track.ChangeID
	Superseded  []track.ChangeID
	Conflicts   []Conflict
	Warnings    []string
	Deferred    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithBus sets the event bus for engine notifications.
func WithBus(b *event.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithBatchSize sets how many changes apply between yields.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDeferThresholds sets the size and count limits beyond which an
// operation is queued instead of processed inline.
func WithDeferThresholds(bytes int64, changes int) Option {
	return func(e *Engine) {
		if bytes > 0 {
			e.deferBytes = bytes
		}
		if changes > 0 {
			e.deferChanges = changes
		}
	}
}

// WithCacheSize bounds the overlap result cache.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithQueueSize sets the deferred queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithCleanup sets the periodic cleanup interval and how long finished
// operations are retained for status queries.
func WithCleanup(every, retention time.Duration) Option {
	return func(e *Engine) {
		if every > 0 {
			e.cleanupEvery = every
		}
		if retention > 0 {
			e.retention = retention
		}
	}
}

type deferredOp struct {
	sessionID track.SessionID
	op        *Operation
	overlay   bool
}

// Engine consolidates multi-producer operations through a tracker.
type Engine struct {
	mu      sync.Mutex
	tracker *track.Tracker
	bus     *event.Bus
	log     *zap.Logger
	group   singleflight.Group
	cache   *overlapCache

	batchSize    int
	deferBytes   int64
	deferChanges int
	cacheSize    int
	queueSize    int
	cleanupEvery time.Duration
	retention    time.Duration

	ops      map[OperationID]*Operation
	results  map[OperationID]*Result
	finished map[OperationID]time.Time

	deferred chan deferredOp
	started  atomic.Bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewEngine creates an engine over the given tracker. Call Start to
// enable deferred processing and periodic cleanup.
func NewEngine(tr *track.Tracker, opts ...Option) *Engine {
	e := &Engine{
		tracker:      tr,
		log:          zap.NewNop(),
		batchSize:    DefaultBatchSize,
		deferBytes:   DefaultDeferBytes,
		deferChanges: DefaultDeferChanges,
		cacheSize:    DefaultCacheSize,
		queueSize:    DefaultQueueSize,
		cleanupEvery: DefaultCleanupEvery,
		retention:    DefaultRetention,
		ops:          make(map[OperationID]*Operation),
		results:      make(map[OperationID]*Result),
		finished:     make(map[OperationID]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = newOverlapCache(e.cacheSize)
	e.deferred = make(chan deferredOp, e.queueSize)
	return e
}

// Start launches the deferred-queue worker and the cleanup loop.
func (e *Engine) Start() {
	if e.started.Swap(true) {
		return
	}
	e.stop = make(chan struct{})
	e.wg.Add(2)
	go e.worker()
	go e.cleanupLoop()
}

// Stop halts background processing. Queued operations that have not
// started are abandoned.
func (e *Engine) Stop() {
	if !e.started.Swap(false) {
		return
	}
	close(e.stop)
	e.wg.Wait()
}

// Submit consolidates an operation's changes into the document.
//
// Small operations process inline and the result reflects every change.
// Operations over the defer thresholds are queued for the background
// worker and the result returns immediately with Deferred set; the final
// outcome is published as a processing event and retrievable via Result.
// Concurrent submissions with the same operation ID are deduplicated.
func (e *Engine) Submit(ctx context.Context, sessionID track.SessionID, op *Operation) (*Result, error) {
	if op == nil || len(op.Changes) == 0 {
		return nil, faults.New(faults.KindValidation, "submit", ErrNoChanges)
	}
	if op.Strategy != "" && len(op.Capabilities.Strategies) > 0 && !op.Capabilities.Supports(op.Strategy) {
		return nil, faults.New(faults.KindValidation, "submit", ErrUnsupportedStrategy)
	}
	if op.ID == "" {
		op.ID = NewOperationID()
	}
	op.Status = StatusPreparing
	op.SubmittedAt = time.Now()

	v, err, _ := e.group.Do(op.ID, func() (any, error) {
		if op.sizeEstimate() > e.deferBytes || len(op.Changes) > e.deferChanges {
			return e.enqueue(sessionID, op)
		}
		return e.process(ctx, sessionID, op, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Cancel marks an operation cancelled and removes it from the active
// set. Mutations already committed are not rolled back; callers needing
// atomicity wrap the submission in a transaction.
func (e *Engine) Cancel(id OperationID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.ops[id]
	if !ok || op.Status == StatusCompleted {
		return false
	}
	op.Status = StatusCancelled
	e.finished[id] = time.Now()
	return true
}

// Operation returns a copy of a known operation.
func (e *Engine) Operation(id OperationID) (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.ops[id]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// Result returns the stored result of a completed operation, including
// operations that finished on the background queue.
func (e *Engine) Result(id OperationID) (*Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.results[id]
	return r, ok
}

func (e *Engine) enqueue(sessionID track.SessionID, op *Operation) (*Result, error) {
	e.mu.Lock()
	e.ops[op.ID] = op
	e.mu.Unlock()

	select {
	case e.deferred <- deferredOp{sessionID: sessionID, op: op}:
	default:
		return nil, faults.New(faults.KindCapacity, "submit", ErrQueueFull)
	}
	e.log.Debug("operation deferred",
		zap.String("operation", op.ID),
		zap.Int("changes", len(op.Changes)))
	return &Result{OperationID: op.ID, Status: StatusPreparing, Deferred: true}, nil
}

// process applies an operation in bounded batches. overlay selects the
// queue discipline for re-queued sequential operations: equal-or-higher
// priority overlaps are merged instead of re-deferred.
func (e *Engine) process(ctx context.Context, sessionID track.SessionID, op *Operation, overlay bool) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if op.Status == StatusCancelled {
		return nil, faults.New(faults.KindValidation, "consolidate", ErrOperationCancelled)
	}
	op.Status = StatusProcessing
	e.ops[op.ID] = op

	res := &Result{OperationID: op.ID, Status: StatusProcessing}
	e.publish(event.TopicProcessingStart, event.ProcessingStarted{
		RequestID:  op.ID,
		ProducerID: op.ProducerID,
		Changes:    len(op.Changes),
	}, op.ID)

	batch := e.batchSize
	if op.Capabilities.MaxBatchSize > 0 && op.Capabilities.MaxBatchSize < batch {
		batch = op.Capabilities.MaxBatchSize
	}

	total := len(op.Changes)
	for start := 0; start < total; start += batch {
		if start > 0 {
			select {
			case <-ctx.Done():
				op.Status = StatusCancelled
				e.finishLocked(op, res)
				return res, faults.New(faults.KindTransient, "consolidate", ctx.Err())
			default:
				runtime.Gosched()
			}
		}

		end := min(start+batch, total)
		ix := newIntervalIndex(e.tracker.Pending())

		for i := start; i < end; i++ {
			c := op.Changes[i]
			deferRest, err := e.applyOne(sessionID, op, c, ix, res, overlay)
			if err != nil {
				op.Status = StatusError
				res.Status = StatusError
				e.finishLocked(op, res)
				e.publish(event.TopicProcessingError, event.ProcessingFailed{
					RequestID: op.ID,
					Err:       err.Error(),
				}, op.ID)
				return res, err
			}
			if deferRest {
				return e.deferRestLocked(sessionID, op, i, res)
			}
		}

		e.publish(event.TopicProcessingProgress, event.ProcessingProgress{
			RequestID: op.ID,
			Done:      end,
			Total:     total,
		}, op.ID)
	}

	op.Status = StatusCompleted
	res.Status = StatusCompleted
	e.finishLocked(op, res)
	e.publish(event.TopicProcessingComplete, event.ProcessingCompleted{
		RequestID: op.ID,
		Recorded:  len(res.Recorded),
		Warnings:  res.Warnings,
	}, op.ID)
	return res, nil
}

// applyOne consolidates a single change against the index snapshot.
// Returns deferRest when the rest of the operation must be queued.
func (e *Engine) applyOne(sessionID track.SessionID, op *Operation, c track.Change, ix *intervalIndex, res *Result, overlay bool) (bool, error) {
	key := cacheKey(ix.sig, c.Range)
	overlaps, ok := e.cache.get(key)
	if !ok {
		overlaps = ix.overlapping(c.Range)
		e.cache.put(key, overlaps)
	}

	// Touching ranges are reported but never block application.
	for _, a := range ix.adjacent(c.Range) {
		e.noteConflict(op, res, Conflict{
			OperationID: op.ID,
			Incoming:    c,
			Existing:    a,
			Class:       ClassAdjacent,
			Resolved:    true,
		})
	}

	// Overlaps with producers this operation coexists with are resolved
	// without arbitration.
	var contested []track.Change
	for _, o := range overlaps {
		if op.Capabilities.CanCoexistWith(o.AuthorID) {
			e.noteConflict(op, res, Conflict{
				OperationID: op.ID,
				Incoming:    c,
				Existing:    o,
				Class:       classify(c.Range, o.Range),
				Resolved:    true,
			})
			continue
		}
		contested = append(contested, o)
	}

	if len(contested) == 0 {
		return false, e.record(sessionID, op, c, res)
	}

	var lower, higher []track.Change
	for _, o := range contested {
		if o.Priority < op.Priority {
			lower = append(lower, o)
		} else {
			higher = append(higher, o)
		}
	}

	if len(higher) == 0 {
		// Incoming wins outright over the lower-priority pending set.
		ids := make([]track.ChangeID, len(lower))
		for i, o := range lower {
			ids[i] = o.ID
			e.noteConflict(op, res, Conflict{
				OperationID: op.ID,
				Incoming:    c,
				Existing:    o,
				Class:       classify(c.Range, o.Range),
				Strategy:    StrategySupersede,
				Resolved:    true,
			})
		}
		mappings, err := e.tracker.Reject(ids...)
		if err != nil {
			return false, err
		}
		res.Superseded = append(res.Superseded, ids...)
		// Reverting a length-changing pending change shifts everything
		// after it; fold the incoming range through the revert mutations
		// so it still addresses the bytes it was aimed at.
		for _, m := range mappings {
			c.Range = m.MapRange(c.Range)
		}
		return false, e.record(sessionID, op, c, res)
	}

	strategy := op.Strategy
	if overlay {
		strategy = StrategyAutoMerge
	}
	switch strategy {
	case StrategyAutoMerge:
		// Apply on top; the overlapped pending ranges remap through the
		// mutation and both stay reviewable.
		for _, o := range higher {
			e.noteConflict(op, res, Conflict{
				OperationID: op.ID,
				Incoming:    c,
				Existing:    o,
				Class:       classify(c.Range, o.Range),
				Strategy:    StrategyAutoMerge,
				Resolved:    true,
			})
		}
		return false, e.record(sessionID, op, c, res)

	case StrategyPriorityOverride:
		// Existing equal-or-higher priority change wins; skip incoming.
		for _, o := range higher {
			e.noteConflict(op, res, Conflict{
				OperationID: op.ID,
				Incoming:    c,
				Existing:    o,
				Class:       classify(c.Range, o.Range),
				Strategy:    StrategyPriorityOverride,
				Resolved:    true,
			})
		}
		res.Warnings = append(res.Warnings,
			"change at "+c.Range.String()+" skipped: overridden by higher priority pending change")
		return false, nil

	case StrategySequentialQueue:
		for _, o := range higher {
			e.noteConflict(op, res, Conflict{
				OperationID: op.ID,
				Incoming:    c,
				Existing:    o,
				Class:       classify(c.Range, o.Range),
				Strategy:    StrategySequentialQueue,
				Resolved:    false,
			})
		}
		return true, nil

	default:
		for _, o := range higher {
			e.noteConflict(op, res, Conflict{
				OperationID: op.ID,
				Incoming:    c,
				Existing:    o,
				Class:       classify(c.Range, o.Range),
				Resolved:    false,
			})
		}
		return false, faults.New(faults.KindConflict, "consolidate", ErrUnresolvedConflict)
	}
}

// deferRestLocked queues the unapplied tail of a sequential operation,
// starting at the change index the conflict arose on.
func (e *Engine) deferRestLocked(sessionID track.SessionID, op *Operation, from int, res *Result) (*Result, error) {
	rest := &Operation{
		ID:           op.ID,
		ProducerID:   op.ProducerID,
		Priority:     op.Priority,
		Changes:      op.Changes[from:],
		Capabilities: op.Capabilities,
		Strategy:     StrategySequentialQueue,
		Status:       StatusPreparing,
		SubmittedAt:  op.SubmittedAt,
	}

	select {
	case e.deferred <- deferredOp{sessionID: sessionID, op: rest, overlay: true}:
	default:
		op.Status = StatusError
		res.Status = StatusError
		e.finishLocked(op, res)
		return res, faults.New(faults.KindCapacity, "consolidate", ErrQueueFull)
	}

	res.Deferred = true
	res.Status = StatusProcessing
	e.log.Debug("operation tail queued",
		zap.String("operation", op.ID),
		zap.Int("remaining", len(rest.Changes)))
	return res, nil
}

func (e *Engine) record(sessionID track.SessionID, op *Operation, c track.Change, res *Result) error {
	c.AuthorID = op.ProducerID
	c.Priority = op.Priority
	rec, err := e.tracker.Record(sessionID, c)
	if err != nil {
		return err
	}
	res.Recorded = append(res.Recorded, rec.ID)
	e.publish(event.TopicChangeRecorded, event.ChangeRecorded{
		ChangeID:  rec.ID,
		SessionID: sessionID,
		Range:     rec.Range,
	}, op.ID)
	return nil
}

func (e *Engine) noteConflict(op *Operation, res *Result, c Conflict) {
	res.Conflicts = append(res.Conflicts, c)
	e.publish(event.TopicConflictDetected, event.ConflictDetected{
		OperationID: op.ID,
		Class:       c.Class.String(),
		Range:       c.Incoming.Range,
	}, op.ID)
	if c.Resolved {
		e.publish(event.TopicConflictResolved, event.ConflictResolved{
			OperationID: op.ID,
			Strategy:    string(c.Strategy),
		}, op.ID)
	}
}

func (e *Engine) finishLocked(op *Operation, res *Result) {
	e.results[op.ID] = res
	e.finished[op.ID] = time.Now()
}

func (e *Engine) publish(topic event.Topic, payload any, correlation string) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(event.New(topic, payload, "consolidate", correlation))
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case d := <-e.deferred:
			// process re-checks the cancelled status under the lock.
			res, err := e.process(context.Background(), d.sessionID, d.op, d.overlay)
			if err != nil {
				e.log.Warn("deferred operation failed",
					zap.String("operation", d.op.ID),
					zap.Error(err))
				continue
			}
			e.log.Debug("deferred operation completed",
				zap.String("operation", d.op.ID),
				zap.Int("recorded", len(res.Recorded)))
		}
	}
}

func (e *Engine) cleanupLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.Cleanup()
		}
	}
}

// Cleanup evicts the overlap cache and drops finished operations older
// than the retention window.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.purge()
	cutoff := time.Now().Add(-e.retention)
	for id, at := range e.finished {
		if at.Before(cutoff) {
			delete(e.finished, id)
			delete(e.ops, id)
			delete(e.results, id)
		}
	}
}
