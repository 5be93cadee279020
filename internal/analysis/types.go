// Package analysis runs the external analysis pipeline that proposes the
// initial keep-ranges and transcript for a loaded source.
package analysis

import (
	"time"

	"github.com/heimdex/smartcut/internal/timeline"
)

// Capabilities represents what the installed analysis package can do,
// as reported by the `doctor --json` command.
type Capabilities struct {
	PackageVersion string             `json:"package_version"`
	Python         PythonInfo         `json:"python"`
	Dependencies   map[string]DepInfo `json:"dependencies"`
	Executables    map[string]DepInfo `json:"executables"`
	Summary        SummaryInfo        `json:"summary"`

	HasAnalyze bool      `json:"-"`
	ProbedAt   time.Time `json:"-"`
}

// PythonInfo holds Python runtime information.
type PythonInfo struct {
	Version    string `json:"version"`
	Executable string `json:"executable"`
}

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummaryInfo summarises overall dependency status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// RunResult is the structured outcome of executing an analysis subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Output is the version metadata every analysis JSON file must carry.
type Output struct {
	SchemaVersion   string `json:"schema_version"`
	PipelineVersion string `json:"pipeline_version"`
	ModelVersion    string `json:"model_version"`
}

// RequiredFieldsPresent checks the hard invariants the agent enforces.
func (o Output) RequiredFieldsPresent() bool {
	return o.SchemaVersion != "" && o.PipelineVersion != "" && o.ModelVersion != ""
}

// Result is a complete analysis of one source. It is delivered to the
// editing session as a single value.
type Result struct {
	Output
	ActiveSegments     timeline.Set `json:"active_segments"`
	OriginalTranscript string       `json:"original_transcript"`
	EnhancedTranscript string       `json:"enhanced_transcript"`
	Sentiment          string       `json:"sentiment"`
	Summary            string       `json:"summary"`
}

// Metadata is the transcript part of a Result.
type Metadata struct {
	OriginalTranscript string `json:"original_transcript,omitempty"`
	EnhancedTranscript string `json:"enhanced_transcript,omitempty"`
	Sentiment          string `json:"sentiment,omitempty"`
	Summary            string `json:"summary,omitempty"`
}

func (r *Result) Metadata() Metadata {
	return Metadata{
		OriginalTranscript: r.OriginalTranscript,
		EnhancedTranscript: r.EnhancedTranscript,
		Sentiment:          r.Sentiment,
		Summary:            r.Summary,
	}
}
