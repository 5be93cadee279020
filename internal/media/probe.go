package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Prober inspects a recording before it is loaded into a session.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// ProbeResult is the subset of ffprobe output the agent relies on.
type ProbeResult struct {
	Duration    float64 `json:"duration"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Codec       string  `json:"codec"`
	Bitrate     int64   `json:"bitrate"`
	FrameRate   float64 `json:"frame_rate"`
	AudioCodec  string  `json:"audio_codec"`
	AudioSample int     `json:"audio_sample_rate"`
	Channels    int     `json:"channels"`
	SizeBytes   int64   `json:"size_bytes"`
	FormatName  string  `json:"format_name"`
}

// HasVideo reports whether the recording carries a video stream.
func (p *ProbeResult) HasVideo() bool { return p.Codec != "" }

// HasAudio reports whether the recording carries an audio stream.
func (p *ProbeResult) HasAudio() bool { return p.AudioCodec != "" }

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Duration     string `json:"duration"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type probeFormat struct {
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// FFprobe runs the ffprobe binary.
type FFprobe struct {
	binary string
}

func NewFFprobe(binary string) *FFprobe {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{binary: binary}
}

// Probe executes ffprobe against path and decodes the JSON response.
func (f *FFprobe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, f.binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	stderr := newTailBuffer()
	cmd.Stderr = stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, truncate(strings.TrimSpace(stderr.String()), 512))
	}
	return ParseProbe(output)
}

// ParseProbe converts ffprobe JSON into a ProbeResult. The first video
// stream that is not cover art and the first audio stream are used.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("ffprobe parse: %w", err)
	}

	res := &ProbeResult{
		Duration:   parseFloat(out.Format.Duration),
		Bitrate:    int64(parseFloat(out.Format.BitRate)),
		SizeBytes:  int64(parseFloat(out.Format.Size)),
		FormatName: out.Format.FormatName,
	}

	var streamDuration float64
	for _, s := range out.Streams {
		switch strings.ToLower(s.CodecType) {
		case "video":
			if res.Codec != "" || s.Disposition.AttachedPic == 1 {
				continue
			}
			res.Codec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.AvgFrameRate)
			if res.FrameRate <= 0 {
				res.FrameRate = parseRate(s.RFrameRate)
			}
			streamDuration = math.Max(streamDuration, parseFloat(s.Duration))
		case "audio":
			if res.AudioCodec != "" {
				continue
			}
			res.AudioCodec = s.CodecName
			res.AudioSample = int(parseFloat(s.SampleRate))
			res.Channels = s.Channels
			streamDuration = math.Max(streamDuration, parseFloat(s.Duration))
		}
	}

	if res.Duration <= 0 {
		res.Duration = streamDuration
	}
	if !res.HasVideo() && !res.HasAudio() {
		return nil, errors.New("ffprobe: no audio or video stream")
	}
	if res.Duration <= 0 {
		return nil, errors.New("ffprobe: unknown duration")
	}
	return res, nil
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(value string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(value), "/")
	if !found {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}
