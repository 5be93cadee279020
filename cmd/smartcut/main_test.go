package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/smartcut/internal/api"
	"github.com/heimdex/smartcut/internal/catalog"
	"github.com/heimdex/smartcut/internal/config"
	"github.com/heimdex/smartcut/internal/db"
	"github.com/heimdex/smartcut/internal/timeline"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigFile, filepath.Join(dir, "config.toml"))
	t.Setenv(config.EnvDataDir, filepath.Join(dir, "data"))
	t.Setenv(config.EnvLogLevel, "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	want := map[string]bool{"serve": false, "export": false, "segments": false, "preview": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestParseSegmentFlag(t *testing.T) {
	tests := []struct {
		value   string
		want    timeline.Segment
		wantErr bool
	}{
		{"1.5:4", timeline.Segment{Start: 1.5, End: 4}, false},
		{" 0 : 2.25 ", timeline.Segment{Start: 0, End: 2.25}, false},
		{"8:3", timeline.Segment{Start: 8, End: 3}, false},
		{"5", timeline.Segment{}, true},
		{"a:3", timeline.Segment{}, true},
		{"-1:3", timeline.Segment{}, true},
		{"1:NaN", timeline.Segment{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseSegmentFlag(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSegmentFlag(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseSegmentFlag(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestSegmentInput_AnalysisThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	body := `{"schema_version":"1","pipeline_version":"1","model_version":"m",
		"active_segments":[{"start":1,"end":2},{"start":-3,"end":4}]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	in := segmentInput{analysis: path, values: []string{"5:6"}}
	set, err := in.set()
	if err != nil {
		t.Fatalf("set() error = %v", err)
	}
	want := timeline.Set{{Start: 1, End: 2}, {Start: 5, End: 6}}
	if !timeline.Equivalent(set, want) || set[0] != want[0] {
		t.Errorf("set() = %v, want %v", set, want)
	}
}

func TestResolveDuration_RequiresFileOrFlag(t *testing.T) {
	in := segmentInput{}
	if _, err := in.resolveDuration(context.Background(), nil, ""); err == nil {
		t.Fatal("resolveDuration() without file or --duration should fail")
	}
	in.duration = 12
	got, err := in.resolveDuration(context.Background(), nil, "")
	if err != nil || got != 12 {
		t.Errorf("resolveDuration() = %v, %v; want 12", got, err)
	}
}

func TestSegmentsCommand(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, "segments", "--duration", "10", "-s", "6:8", "-s", "1:2", "-s", "9:4")
	if err != nil {
		t.Fatalf("segments error = %v", err)
	}
	for _, want := range []string{"keep", "ignored (inverted)", "Effective: 2 range(s), 3.000s of 10.000s kept (30.0%)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSegmentsCommand_EmptySetKeepsEverything(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, "segments", "--duration", "4")
	if err != nil {
		t.Fatalf("segments error = %v", err)
	}
	if !strings.Contains(out, "No segments.") || !strings.Contains(out, "4.000s of 4.000s kept") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSegmentsCommand_NoSkip(t *testing.T) {
	isolateConfig(t)

	out, err := execute(t, "segments", "--duration", "10", "--no-skip", "-s", "1:2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Effective: 1 range(s), 10.000s of 10.000s kept") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRunPreview_JumpsBetweenRanges(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := timeline.Set{{Start: 6, End: 7}, {Start: 2, End: 4}}

	res := runPreview(context.Background(), &out, logger, set, 10, 500, time.Millisecond)

	if res.jumps != 2 {
		t.Errorf("jumps = %d, want 2\n%s", res.jumps, out.String())
	}
	if math.Abs(res.played-6.5) > 1e-6 {
		t.Errorf("played = %v, want 6.5", res.played)
	}
	if !strings.Contains(out.String(), "jump to 2.000s") || !strings.Contains(out.String(), "jump to 6.000s") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRunPreview_EmptySetPlaysThrough(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res := runPreview(context.Background(), &out, logger, nil, 3, 1000, time.Millisecond)

	if res.jumps != 0 {
		t.Errorf("jumps = %d, want 0", res.jumps)
	}
	if math.Abs(res.played-3) > 1e-6 {
		t.Errorf("played = %v, want 3", res.played)
	}
}

func TestEnsureAuthToken(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	repo := catalog.NewRepository(database.Conn())
	ctx := context.Background()

	first, err := ensureAuthToken(ctx, repo, "")
	if err != nil || len(first) != 64 {
		t.Fatalf("ensureAuthToken() = %q, %v", first, err)
	}
	again, _ := ensureAuthToken(ctx, repo, "")
	if again != first {
		t.Errorf("stored token not reused: %q != %q", again, first)
	}

	configured, err := ensureAuthToken(ctx, repo, "fixed-token")
	if err != nil || configured != "fixed-token" {
		t.Fatalf("ensureAuthToken(configured) = %q, %v", configured, err)
	}
	stored, _ := repo.GetConfig(ctx, api.AuthTokenKey)
	if stored != "fixed-token" {
		t.Errorf("stored token = %q, want fixed-token", stored)
	}
}

func TestExportCommand_MissingSource(t *testing.T) {
	dir := isolateConfig(t)

	_, err := execute(t, "export", filepath.Join(dir, "missing.mp4"), "-s", "0:1")
	if err == nil {
		t.Fatal("export of a missing file should fail")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected cancellation: %v", err)
	}
}
