package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Doctor gates analysis jobs on the installed environment. Each doctor run
// starts a python process, so a result is reused for ttl. When a later run
// fails the last good result keeps answering.
type Doctor struct {
	runner Runner
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	caps *Capabilities
}

// NewDoctor returns a gate over runner's doctor command. A non-positive ttl
// runs the doctor on every check.
func NewDoctor(runner Runner, ttl time.Duration, logger *slog.Logger) *Doctor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Doctor{
		runner: runner,
		ttl:    ttl,
		logger: logger.With("component", "doctor"),
		now:    time.Now,
	}
}

// CanAnalyze returns nil when analysis jobs may run, or an error wrapping
// ErrUnavailable that says why not.
func (d *Doctor) CanAnalyze(ctx context.Context) error {
	caps, err := d.capabilities(ctx)
	if err != nil {
		return fmt.Errorf("%w: doctor check failed: %v", ErrUnavailable, err)
	}
	if !caps.HasAnalyze {
		return fmt.Errorf("%w: no analysis capability", ErrUnavailable)
	}
	return nil
}

// Status returns the last doctor result without running it, nil before the
// first successful run.
func (d *Doctor) Status() *Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

// Refresh runs the doctor command now, whatever the age of the last result.
func (d *Doctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshLocked(ctx)
}

func (d *Doctor) capabilities(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.caps != nil && d.now().Sub(d.caps.ProbedAt) < d.ttl {
		return d.caps, nil
	}
	return d.refreshLocked(ctx)
}

func (d *Doctor) refreshLocked(ctx context.Context) (*Capabilities, error) {
	caps, err := d.runner.RunDoctor(ctx)
	if err != nil {
		if d.caps != nil {
			d.logger.Warn("doctor check failed, keeping previous capabilities", "error", err, "probed_at", d.caps.ProbedAt)
			return d.caps, nil
		}
		d.logger.Warn("doctor check failed", "error", err)
		return nil, err
	}
	if caps.ProbedAt.IsZero() {
		caps.ProbedAt = d.now()
	}
	if d.caps == nil || d.caps.HasAnalyze != caps.HasAnalyze {
		d.logger.Info("analysis capability changed", "analyze", caps.HasAnalyze)
	}
	d.caps = caps
	return caps, nil
}
