package api

import (
	"time"

	"github.com/heimdex/smartcut/internal/catalog"
	"github.com/heimdex/smartcut/internal/export"
	"github.com/heimdex/smartcut/internal/playback"
	"github.com/heimdex/smartcut/internal/session"
	"github.com/heimdex/smartcut/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string                  `json:"state"`
	LastError     string                  `json:"last_error,omitempty"`
	SessionsCount int                     `json:"sessions_count"`
	SourcesCount  int                     `json:"sources_count"`
	JobsRunning   int                     `json:"jobs_running"`
	ActiveExports []export.JobStatus      `json:"active_exports"`
	Analysis      *AnalysisStatusResponse `json:"analysis,omitempty"`
}

type AnalysisStatusResponse struct {
	Available   bool   `json:"available"`
	Paused      bool   `json:"paused"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
	DepsAvail   int    `json:"deps_available"`
	DepsTotal   int    `json:"deps_total"`
}

type LoadSourceRequest struct {
	Path string `json:"path"`
}

type LoadSourceResponse struct {
	SessionID     string `json:"session_id"`
	SourceID      string `json:"source_id"`
	AnalysisJobID string `json:"analysis_job_id,omitempty"`
}

type SessionsResponse struct {
	Sessions []session.View `json:"sessions"`
}

// SegmentsResponse carries both the raw set, whose indexes the editor
// addresses, and the list playback and export actually walk.
type SegmentsResponse struct {
	Segments  timeline.Set        `json:"segments"`
	Sorted    timeline.SortedView `json:"sorted"`
	Effective timeline.SortedView `json:"effective"`
	Duration  float64             `json:"duration"`
	Warning   string              `json:"warning,omitempty"`
}

type AddSegmentRequest struct {
	CurrentTime *float64 `json:"current_time,omitempty"`
}

type UpdateSegmentRequest struct {
	Bound       string   `json:"bound"`
	Value       *float64 `json:"value,omitempty"`
	UsePlayhead bool     `json:"use_playhead,omitempty"`
}

type PositionRequest struct {
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
}

type PositionResponse struct {
	playback.Action
	SkipActive bool `json:"skip_active"`
}

type PlayerRequest struct {
	Seek    *float64 `json:"seek,omitempty"`
	Playing *bool    `json:"playing,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
	Muted   *bool    `json:"muted,omitempty"`
}

type StartExportResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	SourceID  string `json:"source_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type SourceResponse struct {
	ID          string  `json:"id"`
	Path        string  `json:"path"`
	DisplayName string  `json:"display_name"`
	Duration    float64 `json:"duration"`
	HasVideo    bool    `json:"has_video"`
	HasAudio    bool    `json:"has_audio"`
	Present     bool    `json:"present"`
	CreatedAt   string  `json:"created_at"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func SourceToResponse(s *catalog.Source) SourceResponse {
	return SourceResponse{
		ID:          s.ID,
		Path:        s.Path,
		DisplayName: s.DisplayName,
		Duration:    s.Duration,
		HasVideo:    s.HasVideo,
		HasAudio:    s.HasAudio,
		Present:     s.Present,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		SourceID:  j.SourceID,
		SessionID: j.SessionID,
		Progress:  j.Progress,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

func segmentsResponse(s *session.Session) SegmentsResponse {
	set := s.Segments()
	return SegmentsResponse{
		Segments:  set,
		Sorted:    set.Sorted(),
		Effective: s.Effective(),
		Duration:  s.Source().Duration,
	}
}
