package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/smartcut/internal/analysis"
	"github.com/heimdex/smartcut/internal/config"
	"github.com/heimdex/smartcut/internal/media"
	"github.com/heimdex/smartcut/internal/timeline"
)

// segmentInput collects a segment set from repeated --segment flags and an
// optional analysis output file.
type segmentInput struct {
	values   []string
	analysis string
	duration float64
}

func (in *segmentInput) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&in.values, "segment", "s", nil, "Keep-range as START:END in seconds (repeatable)")
	cmd.Flags().StringVar(&in.analysis, "analysis", "", "Analysis output JSON to take segments from")
	cmd.Flags().Float64Var(&in.duration, "duration", 0, "Source duration in seconds when no file is probed")
}

// set builds the segment set. Analysis segments come first, followed by the
// --segment values in flag order.
func (in *segmentInput) set() (timeline.Set, error) {
	var set timeline.Set
	if in.analysis != "" {
		data, err := os.ReadFile(in.analysis)
		if err != nil {
			return nil, fmt.Errorf("read analysis output: %w", err)
		}
		res, err := analysis.ParseResult(data)
		if err != nil {
			return nil, err
		}
		set = append(set, res.ActiveSegments...)
	}
	for _, value := range in.values {
		seg, err := parseSegmentFlag(value)
		if err != nil {
			return nil, err
		}
		set = append(set, seg)
	}
	return set, nil
}

// parseSegmentFlag reads START:END. Inverted pairs are accepted; they are
// kept in the set and ignored by playback and export.
func parseSegmentFlag(value string) (timeline.Segment, error) {
	startText, endText, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return timeline.Segment{}, fmt.Errorf("segment %q: want START:END", value)
	}
	start, err := parseSeconds(startText)
	if err != nil {
		return timeline.Segment{}, fmt.Errorf("segment %q: %w", value, err)
	}
	end, err := parseSeconds(endText)
	if err != nil {
		return timeline.Segment{}, fmt.Errorf("segment %q: %w", value, err)
	}
	return timeline.Segment{Start: start, End: end}, nil
}

func parseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, timeline.ErrInvalidSegmentBound
	}
	return v, nil
}

// resolveDuration probes path when given, else falls back to the --duration
// flag.
func (in *segmentInput) resolveDuration(ctx context.Context, cfg config.Config, path string) (float64, error) {
	if path != "" {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		probe, err := media.NewFFprobe(cfg.FFprobePath()).Probe(probeCtx, path)
		if err != nil {
			return 0, fmt.Errorf("probe %s: %w", path, err)
		}
		return probe.Duration, nil
	}
	if in.duration <= 0 {
		return 0, errors.New("a source file or --duration is required")
	}
	return in.duration, nil
}
