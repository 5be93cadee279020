package media

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/heimdex/smartcut/internal/export"
)

const (
	mediaTypeVideo = "video/webm"
	mediaTypeAudio = "audio/webm"
)

var errGraphClosed = errors.New("capture graph closed")

// Graph spools frames to raw temp files on a writer goroutine and muxes them
// into a single webm on Finalize. At most QueueDepth frames are in flight;
// Ready blocks until a slot frees up.
type Graph struct {
	cfg  Config
	info export.SourceInfo
	dir  string

	videoFile *os.File
	audioFile *os.File
	videoBuf  *bufio.Writer
	audioBuf  *bufio.Writer

	slots chan struct{}
	queue chan *export.Frame
	done  chan struct{}

	mu       sync.Mutex
	err      error
	frames   int
	closed   bool
	cleanup  sync.Once
	reserved int
}

// NewGraph creates the spool directory and starts the writer goroutine.
func NewGraph(cfg Config, info export.SourceInfo) (*Graph, error) {
	cfg = cfg.withDefaults()
	if !info.HasVideo && !info.HasAudio {
		return nil, errors.New("source has neither video nor audio")
	}
	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(cfg.TempDir, "export-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create spool dir: %w", err)
	}

	g := &Graph{
		cfg:   cfg,
		info:  info,
		dir:   dir,
		slots: make(chan struct{}, cfg.QueueDepth),
		queue: make(chan *export.Frame, cfg.QueueDepth),
		done:  make(chan struct{}),
	}

	if info.HasVideo {
		if g.videoFile, err = os.Create(filepath.Join(dir, "video.rgba")); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		g.videoBuf = bufio.NewWriterSize(g.videoFile, 1<<20)
	}
	if info.HasAudio {
		if g.audioFile, err = os.Create(filepath.Join(dir, "audio.s16le")); err != nil {
			g.closeFiles()
			os.RemoveAll(dir)
			return nil, err
		}
		g.audioBuf = bufio.NewWriterSize(g.audioFile, 256<<10)
	}

	go g.writeLoop()
	return g, nil
}

// Ready reserves an encoder slot for the next frame.
func (g *Graph) Ready(ctx context.Context) error {
	if err := g.failure(); err != nil {
		return err
	}
	g.mu.Lock()
	if g.reserved > 0 {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.done:
		if err := g.failure(); err != nil {
			return err
		}
		return errGraphClosed
	case g.slots <- struct{}{}:
		g.mu.Lock()
		g.reserved++
		g.mu.Unlock()
		return nil
	}
}

// WriteFrame queues frame. It never blocks when preceded by Ready.
func (g *Graph) WriteFrame(ctx context.Context, frame *export.Frame) error {
	if err := g.failure(); err != nil {
		return err
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return errGraphClosed
	}
	if g.reserved == 0 {
		g.mu.Unlock()
		if err := g.Ready(ctx); err != nil {
			return err
		}
		g.mu.Lock()
	}
	defer g.mu.Unlock()
	if g.closed {
		return errGraphClosed
	}
	g.reserved--
	if g.info.HasVideo && frame.Image == nil {
		<-g.slots
		return errors.New("video frame missing picture")
	}
	// queue capacity equals the slot count, so a reserved send never blocks
	g.queue <- frame
	return nil
}

func (g *Graph) writeLoop() {
	defer close(g.done)
	for frame := range g.queue {
		if g.failure() == nil {
			if err := g.write(frame); err != nil {
				g.fail(err)
			}
		}
		<-g.slots
	}
}

func (g *Graph) write(frame *export.Frame) error {
	if g.videoBuf != nil {
		if _, err := g.videoBuf.Write(frame.Image.Pix); err != nil {
			return fmt.Errorf("spool video: %w", err)
		}
	}
	if g.audioBuf != nil && len(frame.Audio) > 0 {
		raw := make([]byte, len(frame.Audio)*2)
		for i, v := range frame.Audio {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
		}
		if _, err := g.audioBuf.Write(raw); err != nil {
			return fmt.Errorf("spool audio: %w", err)
		}
	}
	g.mu.Lock()
	g.frames++
	g.mu.Unlock()
	return nil
}

// Finalize drains the queue and encodes the spooled streams.
func (g *Graph) Finalize(ctx context.Context) (*export.Artifact, error) {
	g.stop()
	<-g.done
	if err := g.failure(); err != nil {
		return nil, err
	}
	if err := g.flush(); err != nil {
		return nil, err
	}
	g.closeFiles()

	mediaType := mediaTypeVideo
	if !g.info.HasVideo {
		mediaType = mediaTypeAudio
	}

	g.mu.Lock()
	frames := g.frames
	g.mu.Unlock()
	if frames == 0 {
		g.removeSpool()
		return &export.Artifact{Data: emptyWebM(g.info), MediaType: mediaType}, nil
	}

	outPath := filepath.Join(g.dir, "out.webm")
	cmd := exec.CommandContext(ctx, g.cfg.FFmpegPath, g.muxArgs(outPath)...)
	stderr := newTailBuffer()
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg encode: %w: %s", err, truncate(stderr.String(), 512))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read encoded output: %w", err)
	}
	g.removeSpool()
	return &export.Artifact{Data: data, MediaType: mediaType}, nil
}

// Abort discards everything spooled so far.
func (g *Graph) Abort() error {
	g.stop()
	<-g.done
	g.closeFiles()
	g.removeSpool()
	return nil
}

func (g *Graph) muxArgs(outPath string) []string {
	rate := strconv.FormatFloat(g.info.FrameRate, 'f', -1, 64)
	args := []string{"-nostdin", "-y", "-v", "error"}
	if g.info.HasVideo {
		args = append(args,
			"-f", "rawvideo", "-pix_fmt", "rgba",
			"-s", fmt.Sprintf("%dx%d", g.info.Width, g.info.Height),
			"-r", rate, "-i", g.videoFile.Name())
	}
	if g.info.HasAudio {
		args = append(args,
			"-f", "s16le", "-ar", strconv.Itoa(g.info.SampleRate),
			"-ac", strconv.Itoa(g.info.Channels), "-i", g.audioFile.Name())
	}
	if g.info.HasVideo {
		args = append(args, "-c:v", "libvpx-vp9", "-b:v", g.cfg.VideoBitrate, "-pix_fmt", "yuv420p")
	}
	if g.info.HasAudio {
		args = append(args, "-c:a", "libopus")
	}
	return append(args, "-f", "webm", outPath)
}

func (g *Graph) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.queue)
	}
}

func (g *Graph) flush() error {
	if g.videoBuf != nil {
		if err := g.videoBuf.Flush(); err != nil {
			return fmt.Errorf("flush video spool: %w", err)
		}
	}
	if g.audioBuf != nil {
		if err := g.audioBuf.Flush(); err != nil {
			return fmt.Errorf("flush audio spool: %w", err)
		}
	}
	return nil
}

func (g *Graph) closeFiles() {
	if g.videoFile != nil {
		g.videoFile.Close()
	}
	if g.audioFile != nil {
		g.audioFile.Close()
	}
}

func (g *Graph) removeSpool() {
	g.cleanup.Do(func() {
		if err := os.RemoveAll(g.dir); err != nil {
			g.cfg.Logger.Warn("failed to remove export spool", "dir", g.dir, "error", err)
		}
	})
}

func (g *Graph) failure() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Graph) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = err
	}
}

// SpoolDir exposes the temp directory for cleanup checks.
func (g *Graph) SpoolDir() string { return g.dir }
