// Package catalog records the recordings the agent has loaded and the history
// of analysis and export jobs run against them.
package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source is a recording that has been loaded at least once.
type Source struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	DisplayName string    `json:"display_name"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	Mtime       time.Time `json:"mtime"`
	Duration    float64   `json:"duration"`
	HasVideo    bool      `json:"has_video"`
	HasAudio    bool      `json:"has_audio"`
	Present     bool      `json:"present"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	JobTypeAnalyze = "analyze"
	JobTypeExport  = "export"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	SourceID  string    `json:"source_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the job has not reached a terminal state.
func (j *Job) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var MediaExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
}

func NewID() string {
	return uuid.NewString()
}

// IsMediaFile reports whether filename has a recognised media extension.
func IsMediaFile(filename string) bool {
	return MediaExtensions[strings.ToLower(filepath.Ext(filename))]
}
