package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

// DefaultRetainedJobs is how many finished jobs, and their artifacts, the
// manager keeps in memory before evicting the oldest.
const DefaultRetainedJobs = 16

// Job is one run of the export pipeline.
type Job struct {
	ID        string
	SessionID string
	SourceID  string
	CreatedAt time.Time

	mu        sync.Mutex
	status    string
	progress  float64
	err       error
	artifact  *Artifact
	updatedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// JobStatus is a point-in-time copy of a job's state.
type JobStatus struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SourceID  string    `json:"source_id"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Error     string    `json:"error,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	SizeBytes int       `json:"size_bytes,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		ID:        j.ID,
		SessionID: j.SessionID,
		SourceID:  j.SourceID,
		Status:    j.status,
		Progress:  j.progress,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.updatedAt,
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	if j.artifact != nil {
		st.MediaType = j.artifact.MediaType
		st.SizeBytes = j.artifact.Size()
		st.Duration = j.artifact.Duration
	}
	return st
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job ends and returns its artifact or terminal error.
func (j *Job) Wait(ctx context.Context) (*Artifact, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.artifact, j.err
}

func (j *Job) setProgress(v float64) {
	j.mu.Lock()
	j.progress = v
	j.updatedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) finish(status string, art *Artifact, err error) {
	j.mu.Lock()
	j.status = status
	j.artifact = art
	j.err = err
	j.updatedAt = time.Now()
	j.mu.Unlock()
	close(j.done)
}

// Manager runs export jobs, at most one per source at a time.
type Manager struct {
	pipeline *Pipeline
	backend  Backend
	store    JobStore
	logger   *slog.Logger

	mu       sync.Mutex
	jobs     map[string]*Job
	active   map[string]*Job
	finished []string
	retain   int
	wg       sync.WaitGroup
}

func NewManager(pipeline *Pipeline, backend Backend, store JobStore, logger *slog.Logger) *Manager {
	return &Manager{
		pipeline: pipeline,
		backend:  backend,
		store:    store,
		logger:   logger,
		jobs:     make(map[string]*Job),
		active:   make(map[string]*Job),
		retain:   DefaultRetainedJobs,
	}
}

// SetRetention caps how many finished jobs stay addressable. Values below 1
// keep only the most recent one.
func (m *Manager) SetRetention(n int) {
	if n < 1 {
		n = 1
	}
	m.mu.Lock()
	m.retain = n
	m.evictLocked()
	m.mu.Unlock()
}

// evictLocked drops the oldest finished jobs beyond the retention cap.
func (m *Manager) evictLocked() {
	for len(m.finished) > m.retain {
		id := m.finished[0]
		m.finished = m.finished[1:]
		delete(m.jobs, id)
		m.logger.Debug("evicted finished export job", "job_id", id)
	}
}

// Start takes ownership of the owner's source and runs an export in the
// background. onProgress, when non-nil, receives every progress report.
func (m *Manager) Start(ctx context.Context, owner Owner, onProgress func(float64)) (*Job, error) {
	snap, release, err := owner.AcquireExport()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.active[snap.SourceID]; ok {
		m.mu.Unlock()
		release()
		return nil, fmt.Errorf("%w: job %s", ErrJobActive, existing.ID)
	}

	now := time.Now()
	jobCtx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.NewString(),
		SessionID: snap.SessionID,
		SourceID:  snap.SourceID,
		CreatedAt: now,
		status:    JobStatusRunning,
		updatedAt: now,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.jobs[job.ID] = job
	m.active[snap.SourceID] = job
	m.wg.Add(1)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.CreateExportJob(ctx, job.ID, job.SessionID, job.SourceID); err != nil {
			m.logger.Warn("failed to record export job", "job_id", job.ID, "error", err)
		}
		if err := m.store.UpdateJobStatus(ctx, job.ID, JobStatusRunning, ""); err != nil {
			m.logger.Warn("failed to record export status", "job_id", job.ID, "status", JobStatusRunning, "error", err)
		}
	}

	m.logger.Info("export job started",
		"job_id", job.ID,
		"session_id", job.SessionID,
		"segments", len(snap.Segments),
		"smart_skip", snap.SmartSkip,
		"enhance", snap.Enhance,
	)

	go m.run(jobCtx, job, snap, release, onProgress)
	return job, nil
}

func (m *Manager) run(ctx context.Context, job *Job, snap Snapshot, release func(), onProgress func(float64)) {
	defer m.wg.Done()
	defer job.cancel()

	art, err := m.execute(ctx, job, snap, onProgress)

	m.mu.Lock()
	delete(m.active, job.SourceID)
	m.mu.Unlock()
	release()

	status := JobStatusCompleted
	errMsg := ""
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = JobStatusCanceled
		errMsg = "canceled"
		art = nil
	default:
		status = JobStatusFailed
		errMsg = err.Error()
		art = nil
	}

	if m.store != nil {
		bg := context.Background()
		if status == JobStatusCompleted {
			if err := m.store.UpdateJobProgress(bg, job.ID, 100); err != nil {
				m.logger.Warn("failed to record export progress", "job_id", job.ID, "error", err)
			}
		}
		if err := m.store.UpdateJobStatus(bg, job.ID, status, errMsg); err != nil {
			m.logger.Warn("failed to record export status", "job_id", job.ID, "status", status, "error", err)
		}
	}

	switch status {
	case JobStatusCompleted:
		m.logger.Info("export job completed",
			"job_id", job.ID,
			"size", humanize.Bytes(uint64(art.Size())),
			"duration_s", art.Duration,
		)
	case JobStatusCanceled:
		m.logger.Info("export job canceled", "job_id", job.ID)
	default:
		m.logger.Error("export job failed", "job_id", job.ID, "error", err)
	}

	job.finish(status, art, err)

	m.mu.Lock()
	m.finished = append(m.finished, job.ID)
	m.evictLocked()
	m.mu.Unlock()
}

func (m *Manager) execute(ctx context.Context, job *Job, snap Snapshot, onProgress func(float64)) (*Artifact, error) {
	src, err := m.backend.OpenSource(ctx, snap.SourcePath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: open source: %v", ErrPositioningFailure, err)
	}
	defer src.Close()

	graph, err := m.backend.NewGraph(ctx, src.Info())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrCaptureGraphFailure, err)
	}

	lastStored := -1
	art, err := m.pipeline.Run(ctx, Request{
		Source:    src,
		Graph:     graph,
		Segments:  snap.Segments,
		SmartSkip: snap.SmartSkip,
		Enhance:   snap.Enhance,
		OnProgress: func(v float64) {
			job.setProgress(v)
			if m.store != nil {
				if pct := int(math.Floor(v)); pct != lastStored && pct < 100 {
					lastStored = pct
					if err := m.store.UpdateJobProgress(context.Background(), job.ID, pct); err != nil {
						m.logger.Warn("failed to record export progress", "job_id", job.ID, "progress", pct, "error", err)
					}
				}
			}
			if onProgress != nil {
				onProgress(v)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	art.Filename = SuggestFilename("smartcut-export", art.MediaType, job.CreatedAt)
	return art, nil
}

// Get returns the job with id.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Cancel aborts a running job. Canceling a finished job is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	job.cancel()
	return nil
}

// CancelAll aborts every running job.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.active))
	for _, j := range m.active {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()
	for _, j := range jobs {
		j.cancel()
	}
}

// Artifact returns the output of a completed job.
func (m *Manager) Artifact(id string) (*Artifact, error) {
	job, ok := m.Get(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	st := job.Status()
	switch st.Status {
	case JobStatusCompleted:
		job.mu.Lock()
		defer job.mu.Unlock()
		return job.artifact, nil
	case JobStatusFailed, JobStatusCanceled:
		return nil, fmt.Errorf("export %s: %s", st.Status, st.Error)
	default:
		return nil, ErrArtifactPending
	}
}

// Active returns the jobs currently running, oldest first.
func (m *Manager) Active() []JobStatus {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.active))
	for _, j := range m.active {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Status())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
