package plan

import (
	"context"
	"time"

	"github.com/reviewkit/redline/internal/editor"
)

// ExecOption configures plan execution.
type ExecOption func(*execConfig)

type execConfig struct {
	observer func(index int, op Operation)
	sleep    func(ctx context.Context, d time.Duration) error
}

// WithObserver registers a callback invoked after each applied operation.
func WithObserver(fn func(index int, op Operation)) ExecOption {
	return func(c *execConfig) {
		c.observer = fn
	}
}

// withSleep overrides the pacing sleep, used by tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) ExecOption {
	return func(c *execConfig) {
		c.sleep = fn
	}
}

// Execute applies a plan's operations strictly in order against port.
// Pacing delays are context-aware suspension points: cancelling ctx stops
// execution between operations (already applied operations are not rolled
// back; callers needing atomicity wrap execution in a transaction).
func Execute(ctx context.Context, port editor.Port, p *Plan, opts ...ExecOption) error {
	cfg := execConfig{sleep: pacingSleep}
	for _, opt := range opts {
		opt(&cfg)
	}

	for i, op := range p.Ops {
		if op.Pacing > 0 {
			if err := cfg.sleep(ctx, op.Pacing); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := port.ReplaceRange(op.Position, op.Position+op.Length, op.Text); err != nil {
			return err
		}
		if cfg.observer != nil {
			cfg.observer(i, op)
		}
	}
	return nil
}

// pacingSleep waits for d or until ctx is cancelled.
func pacingSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
