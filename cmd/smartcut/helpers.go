package main

import (
	"log/slog"

	"github.com/heimdex/smartcut/internal/config"
	"github.com/heimdex/smartcut/internal/media"
)

// mediaConfig maps agent configuration onto the ffmpeg backend settings.
func mediaConfig(cfg config.Config, logger *slog.Logger) media.Config {
	mc := media.DefaultConfig(cfg.DataDir(), logger)
	mc.FFmpegPath = cfg.FFmpegPath()
	mc.FFprobePath = cfg.FFprobePath()
	mc.FrameRate = cfg.ExportFPS()
	mc.QueueDepth = cfg.ExportQueueDepth()
	mc.VideoBitrate = cfg.VideoBitrate()
	return mc
}

func boolPtr(v bool) *bool { return &v }
