package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heimdex/smartcut/internal/timeline"
)

func newSegmentsCommand(ctx *commandContext) *cobra.Command {
	var in segmentInput
	var noSkip bool

	cmd := &cobra.Command{
		Use:   "segments [file]",
		Short: "Show a segment set and the ranges an export would keep",
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
			renderSegments(cmd.OutOrStdout(), set, !noSkip, duration)
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().BoolVar(&noSkip, "no-skip", false, "Show the effective ranges with smart skip turned off")
	return cmd
}

func renderSegments(w io.Writer, set timeline.Set, skip bool, duration float64) {
	rows := make([][]string, 0, len(set))
	for i, seg := range set {
		rows = append(rows, []string{
			strconv.Itoa(i),
			formatSeconds(seg.Start),
			formatSeconds(seg.End),
			formatSeconds(seg.Duration()),
			segmentStatus(seg),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable(
			[]string{"#", "Start", "End", "Length", "Status"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
		))
	} else {
		fmt.Fprintln(w, "No segments.")
	}

	effective := timeline.Effective(set, skip, duration).Contributing()
	kept := effective.TotalDuration()
	fmt.Fprintf(w, "Effective: %d range(s), %s of %s kept", len(effective), formatSeconds(kept), formatSeconds(duration))
	if duration > 0 {
		fmt.Fprintf(w, " (%.1f%%)", kept/duration*100)
	}
	fmt.Fprintln(w)
}

func segmentStatus(seg timeline.Segment) string {
	switch {
	case seg.Inverted():
		return "ignored (inverted)"
	case seg.Degenerate():
		return "ignored (empty)"
	default:
		return "keep"
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64) + "s"
}
