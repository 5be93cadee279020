package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/smartcut/internal/playback"
	"github.com/heimdex/smartcut/internal/timeline"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var in segmentInput
	var rate float64
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "preview [file]",
		Short: "Simulate smart-skip playback and print every jump",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			set, err := in.set()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			duration, err := in.resolveDuration(cmd.Context(), cfg, path)
			if err != nil {
				return err
			}
			if rate <= 0 {
				return errors.New("--rate must be positive")
			}
			res := runPreview(cmd.Context(), cmd.OutOrStdout(), ctx.logger(), set, duration, rate, interval)
			fmt.Fprintf(cmd.OutOrStdout(), "Played %s of %s with %d jump(s)\n",
				formatSeconds(res.played), formatSeconds(duration), res.jumps)
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().Float64Var(&rate, "rate", 1, "Playback speed multiplier")
	cmd.Flags().DurationVar(&interval, "interval", playback.DefaultTickInterval, "Wall-clock time between ticks")
	return cmd
}

// previewGate exposes a fixed set with smart skip on.
type previewGate struct {
	view timeline.SortedView
}

func (g previewGate) SortedView() timeline.SortedView { return g.view }

func (g previewGate) SkipActive() bool { return len(g.view) > 0 }

type previewResult struct {
	jumps  int
	played float64
}

// runPreview plays a clock from zero to the end of the source. Each tick the
// controller samples the clock, then the clock advances by interval*rate of
// media time, so the run is deterministic for a given set.
func runPreview(ctx context.Context, w io.Writer, logger *slog.Logger, set timeline.Set, duration, rate float64, interval time.Duration) previewResult {
	if interval <= 0 {
		interval = playback.DefaultTickInterval
	}
	clock := playback.NewClock(duration)
	ctrl := playback.NewController(previewGate{view: set.Sorted()}, clock, logger)
	step := interval.Seconds() * rate

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var res previewResult
	clock.Play()
	ctrl.Run(runCtx, interval, func(action playback.Action) {
		if action.Relocates() {
			res.jumps++
			fmt.Fprintf(w, "jump to %s\n", formatSeconds(action.Target))
		}
		before := clock.Position()
		ended := clock.Advance(step)
		res.played += clock.Position() - before
		if ended {
			cancel()
		}
	})
	return res
}
