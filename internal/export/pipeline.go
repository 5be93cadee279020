// Package export renders the edited timeline of a source into a single
// continuous artifact, and produces cut-lists of the same timeline for NLEs.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/heimdex/smartcut/internal/timeline"
)

// Request is one export run. Segments must be a snapshot the caller will not
// mutate while the run is in progress.
type Request struct {
	Source     Source
	Graph      CaptureGraph
	Segments   timeline.Set
	SmartSkip  bool
	Enhance    bool
	OnProgress func(float64)
}

// Pipeline walks the effective segment list of a request and feeds every
// covered frame into the capture graph.
type Pipeline struct {
	enhancement Enhancement
	logger      *slog.Logger
}

func NewPipeline(logger *slog.Logger) *Pipeline {
	return &Pipeline{enhancement: DefaultEnhancement, logger: logger}
}

// Run executes the export. The only blocking points are the seek into each
// range and the encoder backpressure wait before each frame; both observe ctx.
// On any failure or cancellation the graph is aborted and no artifact is
// returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (art *Artifact, err error) {
	if req.Source == nil || req.Graph == nil {
		return nil, errors.New("export request requires a source and a capture graph")
	}

	defer func() {
		if err != nil {
			if abortErr := req.Graph.Abort(); abortErr != nil && p.logger != nil {
				p.logger.Warn("failed to abort capture graph", "error", abortErr)
			}
		}
	}()

	info := req.Source.Info()
	duration := req.Source.Duration()
	fps := info.FrameRate
	if fps <= 0 {
		return nil, fmt.Errorf("%w: invalid frame rate %v", ErrCaptureGraphFailure, fps)
	}

	view := timeline.Effective(req.Segments, req.SmartSkip, duration)
	progress := NewProgress(req.OnProgress)
	progress.Update(0)

	var enh *enhancer
	if req.Enhance && info.HasVideo {
		enh = newEnhancer(p.enhancement)
	}

	frames := 0
	n := len(view)
	for i, seg := range view {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := math.Min(seg.End, duration)
		if seg.Start >= end {
			if p.logger != nil {
				p.logger.Debug("skipping degenerate range", "index", i, "start", seg.Start, "end", seg.End)
			}
			progress.Update(Fraction(i+1, n, 0, 0, 0))
			continue
		}

		if err := req.Source.Seek(ctx, seg.Start); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: seek to %.3fs: %v", ErrPositioningFailure, seg.Start, err)
		}

		for req.Source.Position() < end {
			if err := req.Graph.Ready(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("%w: %v", ErrCaptureGraphFailure, err)
			}

			frame, err := req.Source.ReadFrame(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("%w: read at %.3fs: %v", ErrPositioningFailure, req.Source.Position(), err)
			}

			if enh != nil && frame.Image != nil {
				enh.apply(frame.Image)
			}
			frame.PTS = float64(frames) / fps

			if err := req.Graph.WriteFrame(ctx, frame); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("%w: write frame %d: %v", ErrCaptureGraphFailure, frames, err)
			}
			frames++
			progress.Update(Fraction(i, n, seg.Start, end, req.Source.Position()))
		}
		progress.Update(Fraction(i+1, n, 0, 0, 0))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	art, err = req.Graph.Finalize(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: finalize: %v", ErrCaptureGraphFailure, err)
	}
	art.Frames = frames
	art.Duration = float64(frames) / fps

	progress.Complete()
	if p.logger != nil {
		p.logger.Info("export pipeline finished",
			"ranges", n,
			"frames", frames,
			"duration_s", art.Duration,
			"media_type", art.MediaType,
		)
	}
	return art, nil
}
