package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heimdex/smartcut/internal/timeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{127, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestOutput_RequiredFieldsPresent(t *testing.T) {
	tests := []struct {
		name string
		out  Output
		want bool
	}{
		{"all present", Output{"1.0", "0.1.0", "vad-2"}, true},
		{"missing schema", Output{"", "0.1.0", "vad-2"}, false},
		{"missing pipeline", Output{"1.0", "", "vad-2"}, false},
		{"missing model", Output{"1.0", "0.1.0", ""}, false},
		{"all empty", Output{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.out.RequiredFieldsPresent(); got != tt.want {
				t.Errorf("RequiredFieldsPresent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestResolvePython_PreferredNotFound(t *testing.T) {
	if _, err := resolvePython("/nonexistent/python999"); err == nil {
		t.Fatal("expected error for nonexistent python")
	}
}

const validOutput = `{
  "schema_version": "1.0",
  "pipeline_version": "0.3.0",
  "model_version": "vad-2",
  "active_segments": [{"start": 5, "end": 8}, {"start": 0, "end": 3}, {"start": 9, "end": 7}, {"start": -1, "end": 2}],
  "original_transcript": "um so hello",
  "enhanced_transcript": "Hello.",
  "sentiment": "positive",
  "summary": "A greeting."
}`

func TestParseResult(t *testing.T) {
	res, err := ParseResult([]byte(validOutput))
	if err != nil {
		t.Fatalf("ParseResult error: %v", err)
	}

	want := timeline.Set{{Start: 5, End: 8}, {Start: 0, End: 3}, {Start: 9, End: 7}}
	if !timeline.Equivalent(res.ActiveSegments, want) {
		t.Errorf("ActiveSegments = %v, want %v", res.ActiveSegments, want)
	}
	if res.ActiveSegments[0] != (timeline.Segment{Start: 5, End: 8}) {
		t.Errorf("delivery order not preserved: %v", res.ActiveSegments)
	}

	meta := res.Metadata()
	if meta.EnhancedTranscript != "Hello." || meta.Sentiment != "positive" || meta.Summary != "A greeting." {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestParseResult_MissingFields(t *testing.T) {
	if _, err := ParseResult([]byte(`{"schema_version":"1.0","active_segments":[]}`)); err == nil {
		t.Fatal("expected error for missing fields")
	}
}

func TestLoadResult_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	r := &SubprocessRunner{cfg: DefaultConfig(dir, discardLogger()), python: "python3"}

	if _, err := r.LoadResult(filepath.Join(dir, "nonexistent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRun_UsesRunnerOutput(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeRunner{
		dir: dir,
		analyzeFn: func(mediaPath, outPath string) (RunResult, error) {
			if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
				return RunResult{}, err
			}
			return RunResult{OutputPath: outPath}, os.WriteFile(outPath, []byte(validOutput), 0644)
		},
	}

	res, err := Run(context.Background(), fake, "src-1", "/media/a.mp4")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(res.ActiveSegments) != 3 {
		t.Errorf("got %d segments, want 3", len(res.ActiveSegments))
	}
	if fake.lastOut != filepath.Join(dir, "src-1", "analysis.json") {
		t.Errorf("unexpected output path %q", fake.lastOut)
	}

	if err := Cleanup(fake, "src-1"); err != nil {
		t.Fatalf("Cleanup error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "src-1")); !os.IsNotExist(err) {
		t.Error("expected output dir removed")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	fake := &fakeRunner{
		dir: t.TempDir(),
		analyzeFn: func(string, string) (RunResult, error) {
			return RunResult{ExitCode: 2, StderrTail: "model missing"}, nil
		},
	}
	if _, err := Run(context.Background(), fake, "src-1", "/a.mp4"); err == nil {
		t.Fatal("expected error for failed analysis")
	}
}

func TestStubRunner(t *testing.T) {
	_, err := Run(context.Background(), NewStubRunner(t.TempDir()), "src", "/a.mp4")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestDoctor_ReusesResultWithinTTL(t *testing.T) {
	calls := 0
	fake := &fakeRunner{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{HasAnalyze: true}, nil
		},
	}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	doc := NewDoctor(fake, time.Minute, nil)
	doc.now = func() time.Time { return now }
	ctx := context.Background()

	if err := doc.CanAnalyze(ctx); err != nil {
		t.Fatalf("first CanAnalyze: %v", err)
	}
	if caps := doc.Status(); caps == nil || !caps.ProbedAt.Equal(now) {
		t.Fatalf("Status() = %+v, want a result stamped at the check time", caps)
	}

	now = now.Add(30 * time.Second)
	if err := doc.CanAnalyze(ctx); err != nil || calls != 1 {
		t.Errorf("expected cached result within ttl, calls=%d err=%v", calls, err)
	}

	now = now.Add(time.Minute)
	if err := doc.CanAnalyze(ctx); err != nil {
		t.Fatalf("CanAnalyze after ttl: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 doctor runs after ttl expiry, got %d", calls)
	}
}

func TestDoctor_CanAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		caps    *Capabilities
		err     error
		wantErr bool
	}{
		{name: "capable", caps: &Capabilities{HasAnalyze: true}},
		{name: "module missing", caps: &Capabilities{HasAnalyze: false}, wantErr: true},
		{name: "doctor fails", err: errors.New("python not found"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRunner{
				doctorFn: func(ctx context.Context) (*Capabilities, error) {
					return tt.caps, tt.err
				},
			}
			err := NewDoctor(fake, time.Minute, discardLogger()).CanAnalyze(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Errorf("CanAnalyze() = %v, want ErrUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Errorf("CanAnalyze() = %v, want nil", err)
			}
		})
	}
}

func TestDoctor_KeepsLastResultOnFailure(t *testing.T) {
	fail := false
	fake := &fakeRunner{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			if fail {
				return nil, errors.New("python crashed")
			}
			return &Capabilities{HasAnalyze: true}, nil
		},
	}

	doc := NewDoctor(fake, 0, discardLogger())
	if _, err := doc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	fail = true
	caps, err := doc.Refresh(context.Background())
	if err != nil || caps == nil || !caps.HasAnalyze {
		t.Fatalf("expected previous capabilities, got %v, %v", caps, err)
	}
	if err := doc.CanAnalyze(context.Background()); err != nil {
		t.Errorf("CanAnalyze() = %v, want previous result to keep answering", err)
	}

	fresh := NewDoctor(fake, 0, discardLogger())
	if _, err := fresh.Refresh(context.Background()); err == nil {
		t.Error("expected error with no previous result to fall back to")
	}
	if fresh.Status() != nil {
		t.Error("Status() should stay nil until a doctor run succeeds")
	}
}

func TestSafePath_ProductionMode(t *testing.T) {
	r := &SubprocessRunner{cfg: Config{DebugPaths: false}}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}
	path := filepath.Join(home, ".smartcut", "artifacts", "result.json")
	if got := r.safePath(path); got != "~/.smartcut/artifacts/result.json" {
		t.Errorf("safePath() = %q, want %q", got, "~/.smartcut/artifacts/result.json")
	}
}

type fakeRunner struct {
	dir       string
	lastOut   string
	doctorFn  func(ctx context.Context) (*Capabilities, error)
	analyzeFn func(mediaPath, outPath string) (RunResult, error)
}

func (f *fakeRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	return f.doctorFn(ctx)
}

func (f *fakeRunner) Analyze(_ context.Context, mediaPath, outPath string) (RunResult, error) {
	f.lastOut = outPath
	return f.analyzeFn(mediaPath, outPath)
}

func (f *fakeRunner) LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseResult(data)
}

func (f *fakeRunner) ArtifactsDir() string {
	return f.dir
}
