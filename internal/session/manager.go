package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/heimdex/smartcut/internal/analysis"
	"github.com/heimdex/smartcut/internal/media"
	"github.com/heimdex/smartcut/internal/timeline"
)

// Registry assigns stable source ids to loaded recordings.
type Registry interface {
	RegisterSource(ctx context.Context, path string, probe *media.ProbeResult) (string, error)
}

// Manager owns every open session.
type Manager struct {
	prober   media.Prober
	registry Registry
	span     float64
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. registry may be nil, in which case
// source ids are derived from the absolute path.
func NewManager(prober media.Prober, registry Registry, defaultSpan float64, logger *slog.Logger) *Manager {
	if defaultSpan <= 0 {
		defaultSpan = timeline.DefaultSpan
	}
	return &Manager{
		prober:   prober,
		registry: registry,
		span:     defaultSpan,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// LoadSource probes path and opens a new session over it with an empty set.
func (m *Manager) LoadSource(ctx context.Context, path string) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source unavailable: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", filepath.Base(abs))
	}

	probe, err := m.prober.Probe(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("probe source: %w", err)
	}

	sourceID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
	if m.registry != nil {
		if sourceID, err = m.registry.RegisterSource(ctx, abs, probe); err != nil {
			return nil, fmt.Errorf("register source: %w", err)
		}
	}

	src := Source{
		ID:        sourceID,
		Path:      abs,
		Name:      filepath.Base(abs),
		Duration:  probe.Duration,
		HasVideo:  probe.HasVideo(),
		HasAudio:  probe.HasAudio(),
		Width:     probe.Width,
		Height:    probe.Height,
		FrameRate: probe.FrameRate,
	}
	id := uuid.NewString()
	s := newSession(id, src, m.span, m.logger.With("session_id", id))

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("source loaded",
		"session_id", s.id,
		"source_id", sourceID,
		"duration_s", src.Duration,
		"video", src.HasVideo,
		"audio", src.HasAudio,
	)
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns every open session, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// Close discards a session. A session whose source is being exported cannot
// be closed.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.ExportActive() {
		return ErrExportActive
	}
	s.closed.Store(true)
	delete(m.sessions, id)
	m.logger.Info("session closed", "session_id", id)
	return nil
}

// CloseByPath closes every idle session over path and returns how many were
// closed.
func (m *Manager) CloseByPath(path string) int {
	closed := 0
	for _, s := range m.List() {
		if s.source.Path != path {
			continue
		}
		if err := m.Close(s.id); err == nil {
			closed++
		} else if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("cannot close session for removed source", "session_id", s.id, "error", err)
		}
	}
	return closed
}

// Paths returns the distinct source paths of open sessions.
func (m *Manager) Paths() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range m.List() {
		if !seen[s.source.Path] {
			seen[s.source.Path] = true
			out = append(out, s.source.Path)
		}
	}
	return out
}

// DeliverAnalysis applies a result to every session over sourceID.
func (m *Manager) DeliverAnalysis(sourceID string, res *analysis.Result) {
	for _, s := range m.List() {
		if s.source.ID != sourceID {
			continue
		}
		replaced := s.ApplyAnalysis(res)
		m.logger.Info("analysis delivered",
			"session_id", s.id,
			"segments", len(res.ActiveSegments),
			"replaced", replaced,
		)
	}
}

// FailAnalysis marks every session over sourceID with a terminal state.
func (m *Manager) FailAnalysis(sourceID string, err error) {
	state := AnalysisFailed
	if errors.Is(err, analysis.ErrUnavailable) {
		state = AnalysisUnavailable
	}
	for _, s := range m.List() {
		if s.source.ID == sourceID {
			s.MarkAnalysis(state)
		}
	}
}
