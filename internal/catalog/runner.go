package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heimdex/smartcut/internal/analysis"
)

// AnalysisSink receives the outcome of analyze jobs.
type AnalysisSink interface {
	DeliverAnalysis(sourceID string, res *analysis.Result)
	FailAnalysis(sourceID string, err error)
}

// Runner polls for pending analyze jobs and runs them one at a time.
type Runner struct {
	repo         Repository
	analyzer     analysis.Runner
	doctor       *analysis.Doctor
	sink         AnalysisSink
	logger       *slog.Logger
	pollInterval time.Duration
	wake         chan struct{}
	running      atomic.Bool
	paused       atomic.Bool
	busy         atomic.Bool
}

func NewRunner(repo Repository, analyzer analysis.Runner, doctor *analysis.Doctor, sink AnalysisSink, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		analyzer:     analyzer,
		doctor:       doctor,
		sink:         sink,
		logger:       logger,
		pollInterval: 5 * time.Second,
		wake:         make(chan struct{}, 1),
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if !r.paused.Load() {
			r.processNextJob(ctx)
		}
	}
}

// Notify wakes the runner ahead of its next poll.
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
	r.Notify()
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Busy reports whether an analyze job is executing right now.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx, JobTypeAnalyze)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	r.logger.Info("processing job", "job_id", job.ID, "type", job.Type)

	r.busy.Store(true)
	defer r.busy.Store(false)
	r.processAnalyzeJob(ctx, job)
}

func (r *Runner) processAnalyzeJob(ctx context.Context, job *Job) {
	fail := func(err error) {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, err.Error())
		if r.sink != nil {
			r.sink.FailAnalysis(job.SourceID, err)
		}
	}

	if r.analyzer == nil {
		fail(analysis.ErrUnavailable)
		return
	}

	source, err := r.repo.GetSource(ctx, job.SourceID)
	if err != nil || source == nil {
		fail(ErrSourceNotFound)
		return
	}

	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")

	if r.doctor != nil {
		if err := r.doctor.CanAnalyze(ctx); err != nil {
			fail(err)
			return
		}
	}

	r.logger.Info("running analysis", "job_id", job.ID, "source_id", source.ID)
	res, err := analysis.Run(ctx, r.analyzer, source.ID, source.Path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.repo.UpdateJobStatus(context.Background(), job.ID, JobStatusPending, "")
			return
		}
		fail(fmt.Errorf("analysis failed: %w", err))
		return
	}

	r.repo.UpdateJobProgress(ctx, job.ID, 100)
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
	if r.sink != nil {
		r.sink.DeliverAnalysis(source.ID, res)
	}
	r.logger.Info("analysis job completed",
		"job_id", job.ID,
		"source_id", source.ID,
		"segments", len(res.ActiveSegments),
	)
}

func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning {
			count++
		}
	}
	return count
}
