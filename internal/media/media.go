// Package media decodes recordings with ffmpeg for export and inspects them
// with ffprobe.
package media

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const maxStderrBytes = 8 * 1024

// Config holds the ffmpeg toolchain settings used for probing and export.
type Config struct {
	FFmpegPath   string
	FFprobePath  string
	FrameRate    float64 // output frames per second
	SampleRate   int     // output audio sample rate
	Channels     int     // output audio channel count
	QueueDepth   int     // frames buffered ahead of the encoder
	VideoBitrate string  // ffmpeg -b:v value
	TempDir      string
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns production defaults rooted at dataDir.
func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		FrameRate:    30,
		SampleRate:   48000,
		Channels:     2,
		QueueDepth:   8,
		VideoBitrate: "2500k",
		TempDir:      filepath.Join(dataDir, "tmp"),
		ProbeTimeout: 30 * time.Second,
		Logger:       logger,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig("", c.Logger)
	if c.FFmpegPath == "" {
		c.FFmpegPath = def.FFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = def.FFprobePath
	}
	if c.FrameRate <= 0 {
		c.FrameRate = def.FrameRate
	}
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = def.Channels
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.VideoBitrate == "" {
		c.VideoBitrate = def.VideoBitrate
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// tailBuffer is an io.Writer that keeps only the last limit bytes.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newTailBuffer() *tailBuffer {
	return &tailBuffer{limit: maxStderrBytes}
}

func (tb *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	tb.buf.Write(p)
	if tb.buf.Len() > tb.limit {
		b := tb.buf.Bytes()
		tail := append([]byte(nil), b[len(b)-tb.limit:]...)
		tb.buf.Reset()
		tb.buf.Write(tail)
	}
	return n, nil
}

func (tb *tailBuffer) String() string {
	return tb.buf.String()
}
