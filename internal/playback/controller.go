package playback

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heimdex/smartcut/internal/timeline"
)

// DefaultTickInterval approximates the media element's timeupdate cadence.
const DefaultTickInterval = 250 * time.Millisecond

// Gate supplies the controller with the current Sorted View and whether it is
// allowed to act. Implementations must be safe to call from the tick loop
// while edits land concurrently.
type Gate interface {
	SortedView() timeline.SortedView
	SkipActive() bool
}

// Target is the live playhead the controller observes and relocates.
type Target interface {
	Position() float64
	Seek(position float64) error
}

// Controller is the smart-skip state machine. It is the only component that
// force-moves the live position.
type Controller struct {
	gate   Gate
	target Target
	logger *slog.Logger

	running     atomic.Bool
	relocations atomic.Int64
}

func NewController(gate Gate, target Target, logger *slog.Logger) *Controller {
	return &Controller{gate: gate, target: target, logger: logger}
}

// Evaluate decides what a tick at position would do without touching the target.
func (c *Controller) Evaluate(position float64) Action {
	if !c.gate.SkipActive() {
		return Action{Kind: ActionNone}
	}
	return Decide(c.gate.SortedView(), position)
}

// Tick samples the target once and relocates it when it has drifted outside
// every keep-range. Seek failures are logged and reported as no action.
func (c *Controller) Tick() Action {
	position := c.target.Position()
	action := c.Evaluate(position)
	if !action.Relocates() {
		return action
	}

	if err := c.target.Seek(action.Target); err != nil {
		if c.logger != nil {
			c.logger.Warn("smart-skip relocation failed", "from", position, "to", action.Target, "error", err)
		}
		return Action{Kind: ActionNone, State: action.State}
	}

	c.relocations.Add(1)
	if c.logger != nil {
		c.logger.Debug("smart-skip relocated playhead", "from", position, "to", action.Target)
	}
	return action
}

// Relocations returns how many jumps the controller has performed.
func (c *Controller) Relocations() int64 {
	return c.relocations.Load()
}

// Run ticks at interval until ctx is done. onTick, when non-nil, observes
// every action.
func (c *Controller) Run(ctx context.Context, interval time.Duration, onTick func(Action)) {
	if c.running.Swap(true) {
		return
	}
	defer c.running.Store(false)

	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			action := c.Tick()
			if onTick != nil {
				onTick(action)
			}
		}
	}
}

func (c *Controller) IsRunning() bool {
	return c.running.Load()
}
