package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/heimdex/smartcut/internal/analysis"
	"github.com/heimdex/smartcut/internal/api"
	"github.com/heimdex/smartcut/internal/catalog"
	"github.com/heimdex/smartcut/internal/config"
	"github.com/heimdex/smartcut/internal/db"
	"github.com/heimdex/smartcut/internal/export"
	"github.com/heimdex/smartcut/internal/media"
	"github.com/heimdex/smartcut/internal/playback"
	"github.com/heimdex/smartcut/internal/session"
	"github.com/heimdex/smartcut/internal/ui"
	"github.com/heimdex/smartcut/internal/watcher"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local agent serving the editing API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runServe(cmd.Context(), cfg, ctx.logger(), headless || cfg.Headless())
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without the system tray")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, logger *slog.Logger, headless bool) error {
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ExportDir(), 0755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another smartcut agent is already running (lock %s)", cfg.LockPath())
	}
	defer lock.Unlock()

	logger.Info("starting smartcut agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	if requeued, failed, err := repo.RecoverInterruptedJobs(parent); err != nil {
		logger.Warn("failed to recover interrupted jobs", "error", err)
	} else if requeued > 0 || failed > 0 {
		logger.Info("recovered interrupted jobs", "analysis_requeued", requeued, "exports_failed", failed)
	}

	authToken, err := ensureAuthToken(parent, repo, cfg.AuthToken())
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  smartcut agent %s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Println()

	catalogSvc := catalog.NewService(repo, logger)
	prober := media.NewFFprobe(cfg.FFprobePath())
	sessions := session.NewManager(prober, catalogSvc, cfg.DefaultSpan(), logger)
	exports := export.NewManager(
		export.NewPipeline(logger),
		media.NewBackend(mediaConfig(cfg, logger), prober),
		repo,
		logger,
	)
	exports.SetRetention(cfg.ExportRetainedJobs())

	analyzer, doctor := newAnalyzer(parent, cfg, logger)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	runner := catalog.NewRunner(repo, analyzer, doctor, sessions, logger)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        config.Version,
		ExportDir:      cfg.ExportDir(),
		ExportFPS:      cfg.ExportFPS(),
		Sessions:       sessions,
		Exports:        exports,
		PlaybackServer: playback.NewServer(logger),
		CatalogService: catalogSvc,
		Repository:     repo,
		Runner:         runner,
		Doctor:         doctor,
		Logger:         logger,
		StartTime:      startTime,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	if w, err := watcher.New(watcher.Config{Sessions: sessions, Catalog: catalogSvc, Logger: logger}); err != nil {
		logger.Warn("source watcher unavailable", "error", err)
	} else {
		go w.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Runner: runner,
			Snapshot: func() ui.Snapshot {
				return ui.Snapshot{
					Sessions:      len(sessions.List()),
					ActiveExports: len(exports.Active()),
					Analyzing:     runner.Busy(),
				}
			},
			Logger:          logger,
			OnCancelExports: exports.CancelAll,
			OnQuit: func() {
				select {
				case sigCh <- syscall.SIGTERM:
				default:
				}
			},
		})
		go tray.Run(ctx)
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	case <-parent.Done():
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	exports.CancelAll()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	exports.Wait()

	logger.Info("shutdown complete")
	return nil
}

// newAnalyzer returns the subprocess analysis runner, or a stub that marks
// every analysis unavailable when no python environment can be found.
func newAnalyzer(ctx context.Context, cfg config.Config, logger *slog.Logger) (analysis.Runner, *analysis.Doctor) {
	acfg := analysis.DefaultConfig(cfg.DataDir(), logger)
	acfg.PythonPath = cfg.AnalysisPython()
	acfg.ModuleName = cfg.AnalysisModule()
	acfg.AnalyzeTimeout = cfg.AnalysisTimeout()

	var runner analysis.Runner
	sub, err := analysis.NewRunner(acfg)
	if err != nil {
		logger.Warn("analysis runner unavailable, segments must be edited by hand", "error", err)
		runner = analysis.NewStubRunner(filepath.Join(cfg.DataDir(), "artifacts"))
	} else {
		runner = sub
	}

	doctor := analysis.NewDoctor(runner, cfg.AnalysisDoctorTTL(), logger)
	doctorCtx, cancel := context.WithTimeout(ctx, acfg.DoctorTimeout)
	defer cancel()
	if caps, err := doctor.Refresh(doctorCtx); err != nil {
		logger.Warn("initial doctor check failed", "error", err)
	} else {
		logger.Info("analysis capabilities detected",
			"analyze", caps.HasAnalyze,
			"deps", fmt.Sprintf("%d/%d", caps.Summary.Available, caps.Summary.Total),
		)
	}
	return runner, doctor
}

// ensureAuthToken returns the bearer token clients must present. A configured
// token wins and is persisted; otherwise the stored one is reused or a new one
// is generated.
func ensureAuthToken(ctx context.Context, repo catalog.Repository, configured string) (string, error) {
	if configured != "" {
		if err := repo.SetConfig(ctx, api.AuthTokenKey, configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}
