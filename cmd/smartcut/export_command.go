package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/smartcut/internal/export"
	"github.com/heimdex/smartcut/internal/media"
	"github.com/heimdex/smartcut/internal/session"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var in segmentInput
	var output string
	var noSkip, enhance bool

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Render the kept ranges of a recording into a single file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			set, err := in.set()
			if err != nil {
				return err
			}
			logger := ctx.logger()

			prober := media.NewFFprobe(cfg.FFprobePath())
			sessions := session.NewManager(prober, nil, cfg.DefaultSpan(), logger)
			s, err := sessions.LoadSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s.ReplaceSegments(set)
			s.SetFlags(session.FlagsUpdate{
				SmartSkip:         boolPtr(!noSkip),
				VisualEnhancement: boolPtr(enhance),
			})

			exports := export.NewManager(
				export.NewPipeline(logger),
				media.NewBackend(mediaConfig(cfg, logger), prober),
				nil,
				logger,
			)
			art, err := runExport(cmd.Context(), exports, s, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if output == "" {
				output = art.Filename
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
			}
			if err := os.WriteFile(output, art.Data, 0644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %d frames, %s)\n",
				output, humanize.Bytes(uint64(art.Size())), art.Frames, formatSeconds(art.Duration))
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: suggested artifact name)")
	cmd.Flags().BoolVar(&noSkip, "no-skip", false, "Export the whole recording instead of the kept ranges")
	cmd.Flags().BoolVar(&enhance, "enhance", false, "Apply the visual enhancement transform")
	return cmd
}

// runExport starts one job and waits for it, printing progress in 10% steps.
// Canceling ctx cancels the job.
func runExport(ctx context.Context, exports *export.Manager, owner export.Owner, progress io.Writer) (*export.Artifact, error) {
	lastStep := -1
	job, err := exports.Start(ctx, owner, func(v float64) {
		step := int(v) / 10
		if step != lastStep {
			lastStep = step
			fmt.Fprintf(progress, "export %3d%%\n", step*10)
		}
	})
	if err != nil {
		return nil, err
	}

	art, err := job.Wait(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = exports.Cancel(job.ID)
		exports.Wait()
	}
	if err != nil {
		return nil, err
	}
	return art, nil
}
