// Package app wires the engine together: configuration, logging, the
// event bus, and the full submission pipeline from diff to tracked,
// clustered, exportable changes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/reviewkit/redline/internal/cluster"
	"github.com/reviewkit/redline/internal/config"
	"github.com/reviewkit/redline/internal/consolidate"
	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/event"
	"github.com/reviewkit/redline/internal/logging"
	"github.com/reviewkit/redline/internal/plan"
	"github.com/reviewkit/redline/internal/query"
	"github.com/reviewkit/redline/internal/submit"
	"github.com/reviewkit/redline/internal/textdiff"
	"github.com/reviewkit/redline/internal/track"
	"github.com/reviewkit/redline/internal/txn"
)

// ErrTargetMismatch reports that applying the plan did not reproduce the
// target text exactly.
var ErrTargetMismatch = errors.New("applied changes do not reproduce the target text")

// Options configures an App. Non-empty fields override the loaded
// configuration.
type Options struct {
	ConfigPath  string
	LogLevel    string
	Granularity string
	Producer    string
}

// App owns the long-lived engine components.
type App struct {
	cfg  *config.Config
	log  *zap.Logger
	bus  *event.Bus
	opts Options
}

// New loads configuration, builds the logger, and starts the event bus.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Granularity != "" {
		cfg.Planner.Granularity = opts.Granularity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus(event.WithLogger(log))
	if err := bus.Start(); err != nil {
		return nil, err
	}

	return &App{cfg: cfg, log: log, bus: bus, opts: opts}, nil
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.log
}

// Bus returns the event bus.
func (a *App) Bus() *event.Bus {
	return a.bus
}

// Shutdown stops the event bus and flushes the logger.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.bus.Stop(ctx); err != nil && !errors.Is(err, event.ErrBusNotRunning) {
		a.log.Warn("stopping event bus", zap.Error(err))
	}
	_ = a.log.Sync()
}

// Report summarizes one processed transformation.
type Report struct {
	SessionID  track.SessionID
	Operations int
	Changes    int
	Clusters   int
	Session    *track.Session
}

// Process transforms original into target as tracked changes: diff, plan,
// submit through consolidation, cluster, and finalize the session. The
// returned report carries the finalized session for export.
func (a *App) Process(ctx context.Context, original, target string) (*Report, error) {
	doc := editor.NewDocument(original)
	tracker := track.NewTracker(doc,
		track.WithLogger(a.log),
		track.WithMismatchPolicy(mismatchPolicy(a.cfg)),
		track.WithMaxHistory(a.cfg.Tracking.MaxHistory))

	engine := consolidate.NewEngine(tracker,
		consolidate.WithLogger(a.log),
		consolidate.WithBus(a.bus),
		consolidate.WithBatchSize(a.cfg.Consolidation.BatchSize),
		consolidate.WithDeferThresholds(a.cfg.Consolidation.DeferBytes, a.cfg.Consolidation.DeferChanges),
		consolidate.WithCacheSize(a.cfg.Consolidation.CacheSize),
		consolidate.WithQueueSize(a.cfg.Consolidation.QueueSize))
	engine.Start()
	defer engine.Stop()

	initial, maxIv := a.cfg.RetryIntervals()
	txns := txn.NewManager(tracker, doc,
		txn.WithLogger(a.log),
		txn.WithMaxRetries(a.cfg.Retry.MaxRetries),
		txn.WithRetryIntervals(initial, maxIv))

	svc := submit.NewService(tracker, engine, txns,
		submit.WithLogger(a.log),
		submit.WithBus(a.bus))

	edits := textdiff.Compute(original, target)
	if len(edits) == 0 {
		s, err := tracker.StartSession("")
		if err != nil {
			return nil, err
		}
		ended, err := tracker.EndSession(s.ID)
		if err != nil {
			return nil, err
		}
		return &Report{SessionID: ended.ID, Session: ended}, nil
	}

	p, err := plan.Build(edits, plan.Options{
		Granularity:   granularity(a.cfg),
		ChunkSize:     a.cfg.Planner.ChunkSize,
		Pacing:        a.cfg.Pacing(),
		MaxOperations: a.cfg.Planner.MaxOperations,
		LatencyBudget: a.cfg.LatencyBudget(),
	})
	if err != nil {
		return nil, err
	}

	producer := a.opts.Producer
	if producer == "" {
		producer = "redline"
	}
	resp := svc.Submit(ctx, submit.Request{
		ProducerID: producer,
		Strategy:   consolidate.StrategyAutoMerge,
		Context:    track.Context{Version: 1, Mode: "transform"},
		Changes:    planToWire(p),
		Options:    submit.RequestOptions{CreateSession: true},
	})
	if !resp.Success {
		return nil, fmt.Errorf("submission failed: %v", resp.Errors)
	}
	for _, w := range resp.Warnings {
		a.log.Warn("submission warning", zap.String("warning", w))
	}

	if doc.Text() != target {
		return nil, ErrTargetMismatch
	}

	clusters, err := cluster.NewManager(tracker,
		cluster.WithLogger(a.log),
		cluster.WithWindow(a.cfg.ClusterWindow()),
		cluster.WithGap(editor.ByteOffset(a.cfg.Cluster.Gap))).Clusters(resp.SessionID)
	if err != nil {
		return nil, err
	}
	for _, c := range clusters {
		a.publishCluster(c)
	}

	ended, err := tracker.EndSession(resp.SessionID)
	if err != nil {
		return nil, err
	}

	return &Report{
		SessionID:  ended.ID,
		Operations: p.Len(),
		Changes:    ended.Len(),
		Clusters:   len(clusters),
		Session:    ended,
	}, nil
}

// Export writes the report's session in the given format.
func (a *App) Export(report *Report, format string, w io.Writer) error {
	ix := query.NewIndex()
	ix.Add(report.Session)
	switch format {
	case "json":
		return ix.ExportJSON(w)
	case "csv":
		return ix.ExportCSV(w)
	case "markdown", "md":
		return ix.ExportMarkdown(w)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func planToWire(p *plan.Plan) []submit.EditChange {
	out := make([]submit.EditChange, 0, p.Len())
	for _, op := range p.Ops {
		c := submit.EditChange{From: op.Position, To: op.Position, NewText: op.Text}
		switch op.Type {
		case plan.OpInsert:
			c.Type = "insert"
		case plan.OpDelete:
			c.Type = "delete"
			c.To = op.Position + op.Length
		case plan.OpReplace:
			c.Type = "replace"
			c.To = op.Position + op.Length
		}
		out = append(out, c)
	}
	return out
}

func granularity(cfg *config.Config) plan.Granularity {
	if cfg.Planner.Granularity == "character" {
		return plan.GranularityCharacter
	}
	return plan.GranularityWord
}

func mismatchPolicy(cfg *config.Config) track.MismatchPolicy {
	if cfg.Tracking.MismatchPolicy == "fail" {
		return track.MismatchFail
	}
	return track.MismatchSkip
}

func (a *App) publishCluster(c cluster.Cluster) {
	_ = a.bus.Publish(event.New(event.TopicClusterCreated, event.ClusterCreated{
		ClusterID: c.ID,
		SessionID: c.SessionID,
		Members:   c.Len(),
	}, "app", c.ID))
}
