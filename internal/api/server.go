package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/smartcut/internal/analysis"
	"github.com/heimdex/smartcut/internal/catalog"
	"github.com/heimdex/smartcut/internal/export"
	"github.com/heimdex/smartcut/internal/playback"
	"github.com/heimdex/smartcut/internal/session"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerConfig wires the API to the rest of the agent. Repository backs the
// bearer token check and is required; CatalogService, Runner and Doctor may
// be nil, in which case the endpoints that need them degrade.
type ServerConfig struct {
	Port           int
	Version        string
	ExportDir      string
	ExportFPS      float64
	Sessions       *session.Manager
	Exports        *export.Manager
	PlaybackServer playback.PlaybackService
	CatalogService catalog.CatalogService
	Repository     catalog.Repository
	Runner         *catalog.Runner
	Doctor         *analysis.Doctor
	Logger         *slog.Logger
	StartTime      time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
