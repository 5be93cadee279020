package export

import (
	"context"
	"errors"
	"image"

	"github.com/heimdex/smartcut/internal/timeline"
)

var (
	ErrPositioningFailure  = errors.New("source positioning failed")
	ErrCaptureGraphFailure = errors.New("capture graph failed")
	ErrJobActive           = errors.New("an export is already running for this source")
	ErrJobNotFound         = errors.New("export job not found")
	ErrArtifactPending     = errors.New("export has not completed")
)

// SourceInfo describes the decoded stream layout a Source delivers.
type SourceInfo struct {
	Duration   float64 `json:"duration"`
	FrameRate  float64 `json:"frame_rate"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
}

// Frame is one output frame interval: the rendered picture (nil for
// audio-only sources) and the interleaved PCM samples captured alongside it.
type Frame struct {
	PTS   float64
	Image *image.RGBA
	Audio []int16
}

// Source is a decodable, seekable recording. ReadFrame returns the frame at
// Position and advances Position by exactly one frame interval. It returns
// io.EOF once the recording is exhausted.
type Source interface {
	Info() SourceInfo
	Duration() float64
	Position() float64
	Seek(ctx context.Context, position float64) error
	ReadFrame(ctx context.Context) (*Frame, error)
	Close() error
}

// CaptureGraph accumulates output frames and produces the final artifact.
// Ready blocks until the encoder can accept another frame.
type CaptureGraph interface {
	Ready(ctx context.Context) error
	WriteFrame(ctx context.Context, frame *Frame) error
	Finalize(ctx context.Context) (*Artifact, error)
	Abort() error
}

// Backend opens sources and builds capture graphs for export jobs.
type Backend interface {
	OpenSource(ctx context.Context, path string) (Source, error)
	NewGraph(ctx context.Context, info SourceInfo) (CaptureGraph, error)
}

// Artifact is the single output of a completed export. An export that
// captured no frames still yields a playable container with Frames and
// Duration of zero.
type Artifact struct {
	Data      []byte  `json:"-"`
	MediaType string  `json:"media_type"`
	Duration  float64 `json:"duration"`
	Frames    int     `json:"frames"`
	Filename  string  `json:"filename,omitempty"`
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// Snapshot is the frozen editing state an export walks.
type Snapshot struct {
	SessionID  string
	SourceID   string
	SourcePath string
	Segments   timeline.Set
	SmartSkip  bool
	Enhance    bool
}

// Owner hands the source over to an export. The returned release func must be
// called exactly once when the job ends.
type Owner interface {
	AcquireExport() (Snapshot, func(), error)
}

// JobStore persists export job history.
type JobStore interface {
	CreateExportJob(ctx context.Context, id, sessionID, sourceID string) error
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
}

// EDLRequest asks for a cut-list of a session's effective segments.
type EDLRequest struct {
	ProjectName string  `json:"project_name"`
	FrameRate   float64 `json:"frame_rate"`
	OutputDir   string  `json:"output_dir"`
}

type EDLResponse struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	EventCount int    `json:"event_count"`
}
