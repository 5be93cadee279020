package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/smartcut/internal/timeline"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// ErrUnavailable is returned when no analysis package is installed.
var ErrUnavailable = errors.New("analysis pipeline unavailable")

// Runner executes the analysis CLI as a subprocess.
type Runner interface {
	// RunDoctor executes `python -m <module> doctor --json --out <path>` and
	// returns parsed capabilities.
	RunDoctor(ctx context.Context) (*Capabilities, error)

	// Analyze executes `python -m <module> analyze --media <path> --out <json>`.
	Analyze(ctx context.Context, mediaPath, outPath string) (RunResult, error)

	// LoadResult reads an analyze output JSON and checks required fields.
	LoadResult(path string) (*Result, error)

	// ArtifactsDir returns the base directory for analysis outputs.
	ArtifactsDir() string
}

// Config holds the runner's configuration.
type Config struct {
	PythonPath     string        // path to python binary; empty = auto-detect
	ModuleName     string        // default "smartcut_analysis"
	ArtifactsBase  string        // base dir for outputs, e.g. ~/.smartcut/artifacts
	DoctorTimeout  time.Duration // timeout for doctor command
	AnalyzeTimeout time.Duration // timeout for analyze command
	Logger         *slog.Logger
	DebugPaths     bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		PythonPath:     "",
		ModuleName:     "smartcut_analysis",
		ArtifactsBase:  filepath.Join(dataDir, "artifacts"),
		DoctorTimeout:  30 * time.Second,
		AnalyzeTimeout: 20 * time.Minute,
		Logger:         logger,
		DebugPaths:     false,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg    Config
	python string
}

// NewRunner creates a SubprocessRunner, resolving the Python binary path.
func NewRunner(cfg Config) (*SubprocessRunner, error) {
	python, err := resolvePython(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}

	if err := os.MkdirAll(cfg.ArtifactsBase, 0755); err != nil {
		return nil, fmt.Errorf("cannot create artifacts dir: %w", err)
	}

	cfg.Logger.Info("analysis runner initialised",
		"python", python,
		"module", cfg.ModuleName,
		"artifacts_dir", cfg.ArtifactsBase,
	)

	return &SubprocessRunner{cfg: cfg, python: python}, nil
}

func (r *SubprocessRunner) ArtifactsDir() string {
	return r.cfg.ArtifactsBase
}

// RunDoctor probes the installed analysis environment.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	outPath := filepath.Join(r.cfg.ArtifactsBase, ".doctor.json")

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	result := r.exec(ctx, outPath, "doctor", "--json", "--out", outPath)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("doctor exited %d: %s", result.ExitCode, result.StderrTail)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read doctor output: %w", err)
	}

	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("cannot parse doctor JSON: %w", err)
	}

	caps.HasAnalyze = isAvailable(caps.Executables, "ffmpeg")
	caps.ProbedAt = time.Now()

	r.cfg.Logger.Info("doctor probe complete",
		"analyze", caps.HasAnalyze,
		"deps_available", caps.Summary.Available,
		"deps_total", caps.Summary.Total,
	)

	return &caps, nil
}

// Analyze runs the analysis CLI against a media file.
func (r *SubprocessRunner) Analyze(ctx context.Context, mediaPath, outPath string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.AnalyzeTimeout)
	defer cancel()

	result := r.exec(ctx, outPath,
		"analyze",
		"--media", mediaPath,
		"--out", outPath,
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// LoadResult reads an analyze JSON output and checks required metadata fields.
// Segments with a non-finite or negative bound are dropped.
func (r *SubprocessRunner) LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read output file %s: %w", r.safePath(path), err)
	}
	return ParseResult(data)
}

// ParseResult decodes analyze output.
func ParseResult(data []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("cannot parse output JSON: %w", err)
	}

	if !res.RequiredFieldsPresent() {
		missing := []string{}
		if res.SchemaVersion == "" {
			missing = append(missing, "schema_version")
		}
		if res.PipelineVersion == "" {
			missing = append(missing, "pipeline_version")
		}
		if res.ModelVersion == "" {
			missing = append(missing, "model_version")
		}
		return &res, fmt.Errorf("analysis output missing required fields: %s", strings.Join(missing, ", "))
	}

	segs := make(timeline.Set, 0, len(res.ActiveSegments))
	for _, seg := range res.ActiveSegments {
		if validBound(seg.Start) && validBound(seg.End) {
			segs = append(segs, seg)
		}
	}
	res.ActiveSegments = segs
	return &res, nil
}

func validBound(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, outPath string, args ...string) RunResult {
	start := time.Now()

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmdArgs := append([]string{"-m", r.cfg.ModuleName}, args...)
	cmd := exec.CommandContext(ctx, r.python, cmdArgs...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard

	r.cfg.Logger.Info("executing analysis command", "args", r.safeArgs(cmdArgs))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("analysis command failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Info("analysis command succeeded",
			"duration_ms", elapsed.Milliseconds(),
			"output", r.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *SubprocessRunner) safeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if filepath.IsAbs(a) {
			out[i] = r.safePath(a)
		} else {
			out[i] = a
		}
	}
	return out
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// resolvePython finds a usable python binary.
func resolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no python binary found on PATH (tried python3, python)")
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
