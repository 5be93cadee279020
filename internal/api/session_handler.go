package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/smartcut/internal/export"
	"github.com/heimdex/smartcut/internal/playback"
	"github.com/heimdex/smartcut/internal/session"
	"github.com/heimdex/smartcut/internal/timeline"
)

// writeSessionError maps engine errors to HTTP responses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, session.ErrExportActive), errors.Is(err, export.ErrJobActive):
		WriteError(w, http.StatusConflict, err.Error(), "EXPORT_ACTIVE")
	case errors.Is(err, session.ErrClosed):
		WriteError(w, http.StatusGone, err.Error(), "SESSION_CLOSED")
	case errors.Is(err, timeline.ErrSegmentNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "SEGMENT_NOT_FOUND")
	case errors.Is(err, playback.ErrSeekOutOfRange):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func lookupSession(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := cfg.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func segmentIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "segment index must be an integer", "BAD_REQUEST")
		return 0, false
	}
	return index, true
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := cfg.Sessions.List()
		resp := SessionsResponse{Sessions: make([]session.View, len(sessions))}
		for i, s := range sessions {
			resp.Sessions[i] = s.View()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func loadSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoadSourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		s, err := cfg.Sessions.LoadSource(r.Context(), req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		resp := LoadSourceResponse{SessionID: s.ID(), SourceID: s.Source().ID}
		if cfg.CatalogService != nil {
			job, err := cfg.CatalogService.QueueAnalysis(r.Context(), s.Source().ID)
			if err != nil {
				cfg.Logger.Warn("failed to queue analysis", "session_id", s.ID(), "error", err)
				s.MarkAnalysis(session.AnalysisFailed)
			} else {
				resp.AnalysisJobID = job.ID
				if cfg.Runner != nil {
					cfg.Runner.Notify()
				}
			}
		} else {
			s.MarkAnalysis(session.AnalysisUnavailable)
		}

		WriteJSON(w, http.StatusCreated, resp)
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, s.View())
	}
}

func closeSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Sessions.Close(chi.URLParam(r, "id")); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getSegmentsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, segmentsResponse(s))
	}
}

func addSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req AddSegmentRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		var err error
		if req.CurrentTime != nil {
			_, err = s.AddSegmentAt(*req.CurrentTime)
		} else {
			_, err = s.AddSegment()
		}
		resp := segmentsResponse(s)
		if err != nil {
			resp.Warning = err.Error()
			WriteJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

func removeSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		index, ok := segmentIndex(w, r)
		if !ok {
			return
		}
		s.RemoveSegment(index)
		WriteJSON(w, http.StatusOK, segmentsResponse(s))
	}
}

// updateSegmentHandler edits one bound. A rejected edit answers 422 with the
// unchanged segments and the reason as a warning.
func updateSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		index, ok := segmentIndex(w, r)
		if !ok {
			return
		}
		var req UpdateSegmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		which, err := timeline.ParseBound(req.Bound)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		switch {
		case req.UsePlayhead:
			_, err = s.SetBoundToPlayhead(index, which)
		case req.Value != nil:
			_, err = s.SetBound(index, which, *req.Value)
		default:
			WriteError(w, http.StatusBadRequest, "value or use_playhead is required", "BAD_REQUEST")
			return
		}

		resp := segmentsResponse(s)
		if err != nil {
			resp.Warning = err.Error()
			WriteJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func previewSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		index, ok := segmentIndex(w, r)
		if !ok {
			return
		}
		preview, err := s.PreviewSegment(index)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, preview)
	}
}

func setFlagsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req session.FlagsUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, s.SetFlags(req))
	}
}

// positionHandler takes the player's position report and answers with the
// smart-skip instruction for it.
func positionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req PositionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		action := s.ReportPosition(req.Position, req.Playing)
		WriteJSON(w, http.StatusOK, PositionResponse{Action: action, SkipActive: s.SkipActive()})
	}
}

func playerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupSession(cfg, w, r)
		if !ok {
			return
		}
		var req PlayerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Seek != nil {
			if err := s.Seek(*req.Seek); err != nil {
				writeSessionError(w, err)
				return
			}
		}
		if req.Playing != nil {
			if *req.Playing {
				if err := s.Play(); err != nil {
					writeSessionError(w, err)
					return
				}
			} else {
				s.Pause()
			}
		}
		if req.Volume != nil {
			if err := s.SetVolume(*req.Volume); err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
		}
		if req.Muted != nil {
			s.SetMuted(*req.Muted)
		}
		WriteJSON(w, http.StatusOK, s.Player())
	}
}

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := cfg.Sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeSessionError(w, err)
			return
		}
		if err := cfg.PlaybackServer.ServeSource(w, r, s.Source().Path); err != nil {
			cfg.Logger.Error("playback error", "error", err, "session_id", s.ID())
		}
	}
}
