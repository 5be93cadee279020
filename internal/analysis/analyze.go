package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Run analyzes mediaPath and returns the parsed result. The output file is
// written under the runner's artifacts dir, keyed by sourceID.
func Run(ctx context.Context, r Runner, sourceID, mediaPath string) (*Result, error) {
	outPath := filepath.Join(r.ArtifactsDir(), sourceID, "analysis.json")
	res, err := r.Analyze(ctx, mediaPath, outPath)
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("analyze exited %d: %s", res.ExitCode, truncate(res.StderrTail, 512))
	}
	return r.LoadResult(outPath)
}

// Cleanup removes the stored output for sourceID.
func Cleanup(r Runner, sourceID string) error {
	return os.RemoveAll(filepath.Join(r.ArtifactsDir(), sourceID))
}

// StubRunner stands in when no python environment is installed. Every
// analysis fails with ErrUnavailable, leaving sessions with an empty set.
type StubRunner struct {
	artifacts string
}

func NewStubRunner(artifactsDir string) *StubRunner {
	return &StubRunner{artifacts: artifactsDir}
}

// RunDoctor reports an environment with nothing installed.
func (s *StubRunner) RunDoctor(context.Context) (*Capabilities, error) {
	return &Capabilities{ProbedAt: time.Now()}, nil
}

func (s *StubRunner) Analyze(context.Context, string, string) (RunResult, error) {
	return RunResult{ExitCode: -1}, ErrUnavailable
}

func (s *StubRunner) LoadResult(string) (*Result, error) {
	return nil, ErrUnavailable
}

func (s *StubRunner) ArtifactsDir() string {
	return s.artifacts
}
