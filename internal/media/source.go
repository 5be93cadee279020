package media

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"github.com/heimdex/smartcut/internal/export"
)

// ErrSeekOutOfRange is returned when a seek target lies outside the recording.
var ErrSeekOutOfRange = errors.New("seek target outside recording")

// Source decodes a recording through ffmpeg. Every Seek restarts the
// decoders at the target, so Position always advances in whole output
// frame intervals from the last seek point.
type Source struct {
	cfg  Config
	path string
	info export.SourceInfo

	mu      sync.Mutex
	origin  float64
	index   int
	video   *decoder
	audio   *decoder
	pending *export.Frame
	eof     bool
	closed  bool
}

// OpenSource probes path and returns a Source positioned nowhere; the first
// Seek starts decoding.
func OpenSource(ctx context.Context, cfg Config, prober Prober, path string) (*Source, error) {
	cfg = cfg.withDefaults()
	probe, err := prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	info := export.SourceInfo{
		Duration:  probe.Duration,
		FrameRate: cfg.FrameRate,
		HasVideo:  probe.HasVideo(),
		HasAudio:  probe.HasAudio(),
	}
	if info.HasVideo {
		info.Width = evenDown(probe.Width)
		info.Height = evenDown(probe.Height)
		if info.Width == 0 || info.Height == 0 {
			return nil, fmt.Errorf("invalid video dimensions %dx%d", probe.Width, probe.Height)
		}
	}
	if info.HasAudio {
		info.SampleRate = cfg.SampleRate
		info.Channels = cfg.Channels
	}

	return &Source{cfg: cfg, path: path, info: info}, nil
}

func (s *Source) Info() export.SourceInfo { return s.info }

func (s *Source) Duration() float64 { return s.info.Duration }

func (s *Source) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position()
}

func (s *Source) position() float64 {
	return s.origin + float64(s.index)/s.info.FrameRate
}

// Seek restarts decoding at position and blocks until the first frame there
// has been decoded.
func (s *Source) Seek(ctx context.Context, position float64) error {
	if math.IsNaN(position) || position < 0 || position > s.info.Duration {
		return fmt.Errorf("%w: %.3fs", ErrSeekOutOfRange, position)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("source closed")
	}
	s.stopLocked()
	s.origin = position
	s.index = 0
	s.eof = false
	if err := s.startLocked(position); err != nil {
		s.stopLocked()
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	type peeked struct {
		frame *export.Frame
		err   error
	}
	result := make(chan peeked, 1)
	go func() {
		f, err := s.decodeFrame()
		result <- peeked{f, err}
	}()

	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.stopLocked()
		s.mu.Unlock()
		<-result
		return ctx.Err()
	case r := <-result:
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case errors.Is(r.err, io.EOF):
			s.eof = true
		case r.err != nil:
			return r.err
		default:
			s.pending = r.frame
		}
		return nil
	}
}

// ReadFrame returns the frame at Position and advances by one frame interval.
func (s *Source) ReadFrame(ctx context.Context) (*export.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	frame := s.pending
	s.pending = nil
	eof := s.eof
	started := s.video != nil || s.audio != nil
	s.mu.Unlock()

	if eof {
		return nil, io.EOF
	}
	if !started {
		return nil, errors.New("source not positioned")
	}
	if frame == nil {
		var err error
		frame, err = s.decodeFrame()
		if errors.Is(err, io.EOF) {
			s.mu.Lock()
			s.eof = true
			s.mu.Unlock()
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	frame.PTS = s.position()
	s.index++
	s.mu.Unlock()
	return frame, nil
}

// Close stops the decoders.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	return nil
}

func (s *Source) decodeFrame() (*export.Frame, error) {
	s.mu.Lock()
	video, audio := s.video, s.audio
	index := s.index
	s.mu.Unlock()

	frame := &export.Frame{}
	if video != nil {
		size := s.info.Width * s.info.Height * 4
		pix := make([]byte, size)
		if _, err := io.ReadFull(video.out, pix); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, video.exitErr(io.EOF)
			}
			return nil, err
		}
		frame.Image = &image.RGBA{
			Pix:    pix,
			Stride: s.info.Width * 4,
			Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
		}
	}

	if audio != nil {
		count := samplesForFrame(index, s.info.FrameRate, s.info.SampleRate) * s.info.Channels
		raw := make([]byte, count*2)
		n, err := io.ReadFull(audio.out, raw)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		if n == 0 && video == nil {
			return nil, audio.exitErr(io.EOF)
		}
		frame.Audio = make([]int16, count)
		for i := 0; i+1 < n; i += 2 {
			frame.Audio[i/2] = int16(binary.LittleEndian.Uint16(raw[i:]))
		}
	}
	return frame, nil
}

func (s *Source) startLocked(position float64) error {
	at := strconv.FormatFloat(position, 'f', 6, 64)
	rate := strconv.FormatFloat(s.info.FrameRate, 'f', -1, 64)

	if s.info.HasVideo {
		filter := fmt.Sprintf("fps=%s,scale=%d:%d", rate, s.info.Width, s.info.Height)
		d, err := startDecoder(s.cfg.FFmpegPath,
			"-nostdin", "-v", "error", "-ss", at, "-i", s.path,
			"-map", "0:v:0", "-vf", filter,
			"-f", "rawvideo", "-pix_fmt", "rgba", "-")
		if err != nil {
			return fmt.Errorf("start video decoder: %w", err)
		}
		s.video = d
	}
	if s.info.HasAudio {
		d, err := startDecoder(s.cfg.FFmpegPath,
			"-nostdin", "-v", "error", "-ss", at, "-i", s.path,
			"-map", "0:a:0", "-f", "s16le",
			"-ac", strconv.Itoa(s.info.Channels), "-ar", strconv.Itoa(s.info.SampleRate), "-")
		if err != nil {
			return fmt.Errorf("start audio decoder: %w", err)
		}
		s.audio = d
	}
	return nil
}

func (s *Source) stopLocked() {
	s.pending = nil
	if s.video != nil {
		s.video.stop()
		s.video = nil
	}
	if s.audio != nil {
		s.audio.stop()
		s.audio = nil
	}
}

// decoder is one running ffmpeg process writing raw samples to stdout.
type decoder struct {
	cmd    *exec.Cmd
	out    *bufio.Reader
	stderr *tailBuffer
	cancel context.CancelFunc
	once   sync.Once
}

func startDecoder(binary string, args ...string) (*decoder, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binary, args...)
	stderr := newTailBuffer()
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	return &decoder{
		cmd:    cmd,
		out:    bufio.NewReaderSize(stdout, 1<<20),
		stderr: stderr,
		cancel: cancel,
	}, nil
}

// exitErr waits for the process after stdout closed and reports a decoder
// failure in place of eof when ffmpeg exited non-zero.
func (d *decoder) exitErr(eof error) error {
	var err error
	d.once.Do(func() { err = d.cmd.Wait() })
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg exited %d: %s", exitErr.ExitCode(), truncate(d.stderr.String(), 512))
		}
		return err
	}
	return eof
}

func (d *decoder) stop() {
	d.cancel()
	d.once.Do(func() { _ = d.cmd.Wait() })
}

// samplesForFrame returns the audio sample count per channel belonging to
// output frame index, so the running total never drifts from the video clock.
func samplesForFrame(index int, fps float64, sampleRate int) int {
	start := math.Round(float64(index) * float64(sampleRate) / fps)
	end := math.Round(float64(index+1) * float64(sampleRate) / fps)
	return int(end - start)
}

func evenDown(v int) int {
	if v < 0 {
		return 0
	}
	return v &^ 1
}
