package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/smartcut/internal/export"
)

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		job, err := cfg.Exports.Start(r.Context(), s, nil)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, StartExportResponse{JobID: job.ID})
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string][]export.JobStatus{"exports": cfg.Exports.Active()})
	}
}

// getExportHandler reports a live job, falling back to the persisted
// history for jobs from earlier runs.
func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if job, ok := cfg.Exports.Get(id); ok {
			WriteJSON(w, http.StatusOK, job.Status())
			return
		}
		if cfg.Repository != nil {
			if j, err := cfg.Repository.GetJob(r.Context(), id); err == nil && j != nil {
				WriteJSON(w, http.StatusOK, JobToResponse(j))
				return
			}
		}
		WriteError(w, http.StatusNotFound, "export job not found", "NOT_FOUND")
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Exports.Cancel(id); err != nil {
			if errors.Is(err, export.ErrJobNotFound) {
				WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		job, _ := cfg.Exports.Get(id)
		WriteJSON(w, http.StatusAccepted, job.Status())
	}
}

// artifactHandler streams a finished export with its declared media type.
func artifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		art, err := cfg.Exports.Artifact(chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, export.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
			return
		case errors.Is(err, export.ErrArtifactPending):
			WriteError(w, http.StatusConflict, err.Error(), "NOT_READY")
			return
		case err != nil:
			WriteError(w, http.StatusConflict, err.Error(), "EXPORT_UNAVAILABLE")
			return
		}

		w.Header().Set("Content-Type", art.MediaType)
		if art.Filename != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
		}
		http.ServeContent(w, r, art.Filename, time.Time{}, bytes.NewReader(art.Data))
	}
}

// edlHandler writes a cut-list of the session's effective segments.
func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}

		var req export.EDLRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.OutputDir == "" && cfg.ExportDir != "" {
			if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to create export dir", "INTERNAL_ERROR")
				return
			}
			req.OutputDir = cfg.ExportDir
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		src := s.Source()
		projectName := export.SanitizeName(req.ProjectName, 120)
		if projectName == "" {
			projectName = export.SanitizeName(strings.TrimSuffix(src.Name, filepath.Ext(src.Name)), 120)
		}
		if projectName == "" {
			projectName = "smartcut_export"
		}

		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = src.FrameRate
		}
		if frameRate <= 0 {
			frameRate = cfg.ExportFPS
		}

		view := s.Effective()
		edl := export.GenerateEDL(view, projectName, src.Path, frameRate)
		outputPath := filepath.Join(req.OutputDir, projectName+".edl")
		if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, export.EDLResponse{
			Status:     "ok",
			Format:     "edl",
			OutputPath: outputPath,
			EventCount: len(view.Contributing()),
		})
	}
}
