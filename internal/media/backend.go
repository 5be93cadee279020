package media

import (
	"context"

	"github.com/heimdex/smartcut/internal/export"
)

// Backend opens ffmpeg sources and graphs for the export manager.
type Backend struct {
	cfg    Config
	prober Prober
}

func NewBackend(cfg Config, prober Prober) *Backend {
	cfg = cfg.withDefaults()
	if prober == nil {
		prober = NewFFprobe(cfg.FFprobePath)
	}
	return &Backend{cfg: cfg, prober: prober}
}

func (b *Backend) OpenSource(ctx context.Context, path string) (export.Source, error) {
	probeCtx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	defer cancel()
	return OpenSource(probeCtx, b.cfg, b.prober, path)
}

func (b *Backend) NewGraph(_ context.Context, info export.SourceInfo) (export.CaptureGraph, error) {
	return NewGraph(b.cfg, info)
}
