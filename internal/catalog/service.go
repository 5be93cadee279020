package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/heimdex/smartcut/internal/media"
)

const fingerprintSize = 64 * 1024

var ErrSourceNotFound = errors.New("source not found")

type CatalogService interface {
	RegisterSource(ctx context.Context, path string, probe *media.ProbeResult) (string, error)
	GetSources(ctx context.Context) ([]*Source, error)
	GetSource(ctx context.Context, id string) (*Source, error)
	RemoveSource(ctx context.Context, id string) error
	MarkMissing(ctx context.Context, path string) error
	QueueAnalysis(ctx context.Context, sourceID string) (*Job, error)
	GetJobs(ctx context.Context, limit int) ([]*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RegisterSource records a loaded recording and returns its stable id. A
// path seen before keeps its id; its metadata is refreshed when the file
// content changed.
func (s *Service) RegisterSource(ctx context.Context, path string, probe *media.ProbeResult) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory")
	}

	fingerprint, err := computeFingerprint(absPath)
	if err != nil {
		return "", err
	}

	existing, err := s.repo.GetSourceByPath(ctx, absPath)
	if err != nil {
		return "", err
	}

	source := &Source{
		ID:          NewID(),
		Path:        absPath,
		DisplayName: filepath.Base(absPath),
		Fingerprint: fingerprint,
		Size:        info.Size(),
		Mtime:       info.ModTime(),
		Present:     true,
		CreatedAt:   time.Now(),
	}
	if probe != nil {
		source.Duration = probe.Duration
		source.HasVideo = probe.HasVideo()
		source.HasAudio = probe.HasAudio()
	}

	if existing != nil {
		source.ID = existing.ID
		source.CreatedAt = existing.CreatedAt
		if existing.Fingerprint != fingerprint && s.logger != nil {
			s.logger.Info("source content changed", "source_id", existing.ID)
		}
		if err := s.repo.UpdateSource(ctx, source); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	if err := s.repo.CreateSource(ctx, source); err != nil {
		return "", err
	}
	if s.logger != nil {
		s.logger.Info("source registered", "source_id", source.ID, "name", source.DisplayName)
	}
	return source.ID, nil
}

func (s *Service) GetSources(ctx context.Context) ([]*Source, error) {
	return s.repo.ListSources(ctx)
}

func (s *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	return s.repo.GetSource(ctx, id)
}

func (s *Service) RemoveSource(ctx context.Context, id string) error {
	return s.repo.DeleteSource(ctx, id)
}

// MarkMissing flags the source at path as no longer present on disk.
func (s *Service) MarkMissing(ctx context.Context, path string) error {
	source, err := s.repo.GetSourceByPath(ctx, path)
	if err != nil {
		return err
	}
	if source == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.Info("source missing", "source_id", source.ID)
	}
	return s.repo.UpdateSourcePresent(ctx, source.ID, false)
}

// QueueAnalysis creates a pending analyze job for sourceID unless one is
// already pending or running.
func (s *Service) QueueAnalysis(ctx context.Context, sourceID string) (*Job, error) {
	source, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}

	jobs, err := s.repo.ListJobsBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.Type == JobTypeAnalyze && j.Active() {
			return j, nil
		}
	}

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeAnalyze,
		Status:    JobStatusPending,
		SourceID:  sourceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("analysis job queued", "job_id", job.ID, "source_id", sourceID)
	}
	return job, nil
}

func (s *Service) GetJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

func computeFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	lr := io.LimitReader(f, fingerprintSize)
	if _, err := io.Copy(h, lr); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
