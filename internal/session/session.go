// Package session holds the editing state of one loaded source: its segment
// set, playback flags and the exclusive playback/export ownership.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimdex/smartcut/internal/analysis"
	"github.com/heimdex/smartcut/internal/export"
	"github.com/heimdex/smartcut/internal/playback"
	"github.com/heimdex/smartcut/internal/timeline"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrExportActive = errors.New("an export owns this source")
	ErrClosed       = errors.New("session closed")
)

const (
	ownerPlayback int32 = iota
	ownerExport
)

const (
	AnalysisPending     = "pending"
	AnalysisReady       = "ready"
	AnalysisFailed      = "failed"
	AnalysisUnavailable = "unavailable"
)

// Source identifies the recording a session edits.
type Source struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	HasVideo  bool    `json:"has_video"`
	HasAudio  bool    `json:"has_audio"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

// Flags are the user toggles that shape playback and export.
type Flags struct {
	SmartSkip         bool `json:"smart_skip"`
	VisualEnhancement bool `json:"visual_enhancement"`
	Editing           bool `json:"editing"`
}

// FlagsUpdate changes only the non-nil toggles.
type FlagsUpdate struct {
	SmartSkip         *bool `json:"smart_skip,omitempty"`
	VisualEnhancement *bool `json:"visual_enhancement,omitempty"`
	Editing           *bool `json:"editing,omitempty"`
}

// PlayerState is the live playhead as last reported by the player.
type PlayerState struct {
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
	Volume   float64 `json:"volume"`
	Muted    bool    `json:"muted"`
}

// Preview tells the player how to audition one segment.
type Preview struct {
	Index     int     `json:"index"`
	SeekTo    float64 `json:"seek_to"`
	StopAfter float64 `json:"stop_after"`
}

// Session is one editing context. The segment set is published through an
// atomic pointer: editor methods serialize on mu and swap in a fresh set,
// readers load it without locking.
type Session struct {
	id        string
	source    Source
	span      float64
	createdAt time.Time
	logger    *slog.Logger

	segments atomic.Pointer[timeline.Set]
	edits    atomic.Int64
	owner    atomic.Int32
	closed   atomic.Bool

	smartSkip atomic.Bool
	enhance   atomic.Bool
	editing   atomic.Bool

	mu       sync.Mutex
	clock    *playback.Clock
	volume   float64
	muted    bool
	analysis string
	metadata analysis.Metadata

	controller *playback.Controller
}

func newSession(id string, src Source, span float64, logger *slog.Logger) *Session {
	s := &Session{
		id:        id,
		source:    src,
		span:      span,
		createdAt: time.Now(),
		logger:    logger,
		clock:     playback.NewClock(src.Duration),
		volume:    1,
		analysis:  AnalysisPending,
	}
	empty := timeline.Set{}
	s.segments.Store(&empty)
	s.smartSkip.Store(true)
	s.controller = playback.NewController(s, s.clock, logger)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Source() Source { return s.source }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Segments returns the current set. The returned value must not be modified.
func (s *Session) Segments() timeline.Set {
	return *s.segments.Load()
}

// SortedView derives the Sorted View from the current set.
func (s *Session) SortedView() timeline.SortedView {
	return s.Segments().Sorted()
}

// Effective returns the list export would walk with the current flags.
func (s *Session) Effective() timeline.SortedView {
	return timeline.Effective(s.Segments(), s.smartSkip.Load(), s.source.Duration)
}

// SkipActive reports whether smart-skip may relocate the playhead right now.
func (s *Session) SkipActive() bool {
	return s.smartSkip.Load() &&
		!s.editing.Load() &&
		s.owner.Load() == ownerPlayback &&
		len(s.Segments()) > 0
}

func (s *Session) Flags() Flags {
	return Flags{
		SmartSkip:         s.smartSkip.Load(),
		VisualEnhancement: s.enhance.Load(),
		Editing:           s.editing.Load(),
	}
}

func (s *Session) SetFlags(u FlagsUpdate) Flags {
	if u.SmartSkip != nil {
		s.smartSkip.Store(*u.SmartSkip)
	}
	if u.VisualEnhancement != nil {
		s.enhance.Store(*u.VisualEnhancement)
	}
	if u.Editing != nil {
		s.editing.Store(*u.Editing)
	}
	return s.Flags()
}

// ExportActive reports whether an export currently owns the source.
func (s *Session) ExportActive() bool {
	return s.owner.Load() == ownerExport
}

// Controller exposes the smart-skip controller bound to this session.
func (s *Session) Controller() *playback.Controller {
	return s.controller
}

func (s *Session) publish(next timeline.Set) {
	s.segments.Store(&next)
	s.edits.Add(1)
}

// AddSegment appends a default-span segment at the playhead.
func (s *Session) AddSegment() (timeline.Set, error) {
	return s.AddSegmentAt(s.clock.Position())
}

// AddSegmentAt appends a default-span segment starting at t. A rejected t
// leaves the set unchanged.
func (s *Session) AddSegmentAt(t float64) (timeline.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.Segments()
	next, err := timeline.Add(cur, t, s.span, s.source.Duration)
	if err != nil {
		s.logger.Warn("segment add rejected", "session_id", s.id, "error", err)
		return cur, err
	}
	s.publish(next)
	return next, nil
}

// RemoveSegment drops the segment at index; out-of-range indexes are ignored.
func (s *Session) RemoveSegment(index int) timeline.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.Segments()
	if index < 0 || index >= len(cur) {
		return cur
	}
	next := timeline.Remove(cur, index)
	s.publish(next)
	return next
}

// SetBound replaces one bound of a segment. A rejected edit leaves the set
// untouched and is returned so the caller can surface it as a warning.
func (s *Session) SetBound(index int, which timeline.Bound, value float64) (timeline.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := timeline.SetBound(s.Segments(), index, which, value)
	if err != nil {
		s.logger.Warn("segment edit rejected",
			"index", index,
			"bound", which.String(),
			"error", err,
		)
		return next, err
	}
	s.publish(next)
	return next, nil
}

// SetBoundToPlayhead sets one bound of a segment to the live position.
func (s *Session) SetBoundToPlayhead(index int, which timeline.Bound) (timeline.Set, error) {
	return s.SetBound(index, which, s.clock.Position())
}

// ReplaceSegments installs a whole new set, as delivered by analysis.
func (s *Session) ReplaceSegments(set timeline.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(set.Clone())
}

// ApplyAnalysis installs an analysis result. The segments replace the set
// only while the user has not edited it yet; metadata is always kept.
func (s *Session) ApplyAnalysis(res *analysis.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = AnalysisReady
	s.metadata = res.Metadata()
	if s.edits.Load() > 0 {
		return false
	}
	next := res.ActiveSegments.Clone()
	s.segments.Store(&next)
	return true
}

// MarkAnalysis records a terminal analysis state without a result.
func (s *Session) MarkAnalysis(state string) {
	s.mu.Lock()
	s.analysis = state
	s.mu.Unlock()
}

func (s *Session) Analysis() (string, analysis.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis, s.metadata
}

// ReportPosition records the player's position and runs one smart-skip tick.
// The returned action is the only instruction that moves the player.
func (s *Session) ReportPosition(position float64, playing bool) playback.Action {
	if math.IsNaN(position) || math.IsInf(position, 0) || s.ExportActive() {
		return playback.Action{Kind: playback.ActionNone}
	}
	s.mu.Lock()
	_ = s.clock.Seek(math.Max(0, math.Min(position, s.source.Duration)))
	if playing {
		s.clock.Play()
	} else {
		s.clock.Pause()
	}
	s.mu.Unlock()
	return s.controller.Tick()
}

// Seek moves the playhead. It fails while an export owns the source.
func (s *Session) Seek(position float64) error {
	if s.ExportActive() {
		return ErrExportActive
	}
	return s.clock.Seek(position)
}

func (s *Session) Play() error {
	if s.ExportActive() {
		return ErrExportActive
	}
	s.clock.Play()
	return nil
}

func (s *Session) Pause() {
	s.clock.Pause()
}

// Advance moves a playing playhead forward, for players driven in-process.
func (s *Session) Advance(dt float64) bool {
	return s.clock.Advance(dt)
}

// SetVolume sets the level in [0,1]; a positive level unmutes.
func (s *Session) SetVolume(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("volume %v outside [0,1]", v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	if v > 0 {
		s.muted = false
	}
	return nil
}

func (s *Session) SetMuted(m bool) {
	s.mu.Lock()
	s.muted = m
	s.mu.Unlock()
}

func (s *Session) Player() PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PlayerState{
		Position: s.clock.Position(),
		Playing:  s.clock.Playing(),
		Volume:   s.volume,
		Muted:    s.muted,
	}
}

// PreviewSegment returns where to seek and how long to play to audition the
// segment at index.
func (s *Session) PreviewSegment(index int) (Preview, error) {
	set := s.Segments()
	if index < 0 || index >= len(set) {
		return Preview{}, fmt.Errorf("%w: %d", timeline.ErrSegmentNotFound, index)
	}
	if s.ExportActive() {
		return Preview{}, ErrExportActive
	}
	seg := set[index]
	if err := s.clock.Seek(math.Min(seg.Start, s.source.Duration)); err != nil {
		return Preview{}, err
	}
	s.clock.Play()
	return Preview{Index: index, SeekTo: seg.Start, StopAfter: seg.Duration()}, nil
}

// AcquireExport hands the source to an export. Playback is paused and the
// current set is frozen into the snapshot. The release func returns the
// source to playback, paused at position 0.
func (s *Session) AcquireExport() (export.Snapshot, func(), error) {
	if s.closed.Load() {
		return export.Snapshot{}, nil, ErrClosed
	}
	if !s.owner.CompareAndSwap(ownerPlayback, ownerExport) {
		return export.Snapshot{}, nil, ErrExportActive
	}
	s.clock.Pause()

	snap := export.Snapshot{
		SessionID:  s.id,
		SourceID:   s.source.ID,
		SourcePath: s.source.Path,
		Segments:   s.Segments().Clone(),
		SmartSkip:  s.smartSkip.Load(),
		Enhance:    s.enhance.Load(),
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.clock.Pause()
			_ = s.clock.Seek(0)
			s.owner.Store(ownerPlayback)
		})
	}
	return snap, release, nil
}

// View is the JSON form of a session.
type View struct {
	ID           string              `json:"id"`
	Source       Source              `json:"source"`
	Flags        Flags               `json:"flags"`
	Player       PlayerState         `json:"player"`
	ExportActive bool                `json:"export_active"`
	Segments     timeline.Set        `json:"segments"`
	Sorted       timeline.SortedView `json:"sorted"`
	Analysis     string              `json:"analysis"`
	Metadata     analysis.Metadata   `json:"metadata"`
	CreatedAt    time.Time           `json:"created_at"`
}

func (s *Session) View() View {
	set := s.Segments()
	state, meta := s.Analysis()
	return View{
		ID:           s.id,
		Source:       s.source,
		Flags:        s.Flags(),
		Player:       s.Player(),
		ExportActive: s.ExportActive(),
		Segments:     set,
		Sorted:       set.Sorted(),
		Analysis:     state,
		Metadata:     meta,
		CreatedAt:    s.createdAt,
	}
}
