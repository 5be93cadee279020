package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/smartcut/internal/catalog"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())

		r.Get("/sessions/{id}/media", mediaHandler(cfg))
		r.Head("/sessions/{id}/media", mediaHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/sources", listSourcesHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Post("/analysis/pause", pauseAnalysisHandler(cfg, true))
		r.Post("/analysis/resume", pauseAnalysisHandler(cfg, false))

		r.Get("/sessions", listSessionsHandler(cfg))
		r.Post("/sessions", loadSourceHandler(cfg))
		r.Get("/sessions/{id}", getSessionHandler(cfg))
		r.Delete("/sessions/{id}", closeSessionHandler(cfg))

		r.Get("/sessions/{id}/segments", getSegmentsHandler(cfg))
		r.Post("/sessions/{id}/segments", addSegmentHandler(cfg))
		r.Delete("/sessions/{id}/segments/{index}", removeSegmentHandler(cfg))
		r.Patch("/sessions/{id}/segments/{index}", updateSegmentHandler(cfg))
		r.Get("/sessions/{id}/segments/{index}/preview", previewSegmentHandler(cfg))

		r.Put("/sessions/{id}/flags", setFlagsHandler(cfg))
		r.Post("/sessions/{id}/position", positionHandler(cfg))
		r.Put("/sessions/{id}/player", playerHandler(cfg))

		r.Post("/sessions/{id}/exports", startExportHandler(cfg))
		r.Post("/sessions/{id}/edl", edlHandler(cfg))

		r.Get("/exports", listExportsHandler(cfg))
		r.Get("/exports/{id}", getExportHandler(cfg))
		r.Delete("/exports/{id}", cancelExportHandler(cfg))
		r.Get("/exports/{id}/artifact", artifactHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{
			State:         "idle",
			ActiveExports: cfg.Exports.Active(),
			SessionsCount: len(cfg.Sessions.List()),
		}

		if cfg.CatalogService != nil {
			sources, _ := cfg.CatalogService.GetSources(ctx)
			resp.SourcesCount = len(sources)
		}

		if cfg.Repository != nil {
			jobs, _ := cfg.Repository.ListJobs(ctx, 10)
			for _, j := range jobs {
				if j.Status == catalog.JobStatusRunning {
					resp.JobsRunning++
					if j.Type == catalog.JobTypeAnalyze {
						resp.State = "analyzing"
					}
				}
				if j.Status == catalog.JobStatusFailed && resp.LastError == "" {
					resp.LastError = j.Error
				}
			}
		}

		if len(resp.ActiveExports) > 0 {
			resp.State = "exporting"
		}

		paused := cfg.Runner != nil && cfg.Runner.IsPaused()
		if paused && resp.State == "idle" {
			resp.State = "paused"
		}
		if resp.LastError != "" && resp.State == "idle" {
			resp.State = "error"
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Status(); caps != nil && !caps.ProbedAt.IsZero() {
				resp.Analysis = &AnalysisStatusResponse{
					Available:   caps.HasAnalyze,
					Paused:      paused,
					LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
					DepsAvail:   caps.Summary.Available,
					DepsTotal:   caps.Summary.Total,
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.CatalogService == nil {
			WriteJSON(w, http.StatusOK, SourcesResponse{Sources: []SourceResponse{}})
			return
		}
		sources, err := cfg.CatalogService.GetSources(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sources", "INTERNAL_ERROR")
			return
		}

		resp := SourcesResponse{Sources: make([]SourceResponse, len(sources))}
		for i, s := range sources {
			resp.Sources[i] = SourceToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func pauseAnalysisHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "analysis runner not configured", "UNAVAILABLE")
			return
		}
		if pause {
			cfg.Runner.Pause()
		} else {
			cfg.Runner.Resume()
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"paused": cfg.Runner.IsPaused()})
	}
}
