package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/heimdex/smartcut/internal/catalog"
)

// refreshInterval is how often menu labels are recomputed.
const refreshInterval = 2 * time.Second

// Snapshot is the agent state shown in the menu.
type Snapshot struct {
	Sessions      int
	ActiveExports int
	Analyzing     bool
}

type Tray struct {
	runner   *catalog.Runner
	snapshot func() Snapshot
	logger   *slog.Logger

	statusItem   *systray.MenuItem
	sessionsItem *systray.MenuItem
	pauseItem    *systray.MenuItem
	cancelItem   *systray.MenuItem

	mu sync.Mutex

	onCancelExports func()
	onQuit          func()
}

type TrayConfig struct {
	Runner          *catalog.Runner
	Snapshot        func() Snapshot
	Logger          *slog.Logger
	OnCancelExports func()
	OnQuit          func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		runner:          cfg.Runner,
		snapshot:        cfg.Snapshot,
		logger:          cfg.Logger,
		onCancelExports: cfg.OnCancelExports,
		onQuit:          cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit is called.
func (t *Tray) Run(ctx context.Context) {
	systray.Run(func() { t.onReady(ctx) }, t.onExit)
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Smartcut")
	systray.SetTooltip("Smartcut timeline agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.sessionsItem = systray.AddMenuItem("Sessions: 0", "Open editing sessions")
	t.sessionsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause analysis", "Pause segment analysis")
	if t.runner == nil {
		t.pauseItem.Disable()
	}
	t.cancelItem = systray.AddMenuItem("Cancel exports", "Cancel every running export")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Smartcut")

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.refresh()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-t.cancelItem.ClickedCh:
				if t.onCancelExports != nil {
					t.logger.Info("export cancel requested from tray")
					t.onCancelExports()
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-ctx.Done():
				systray.Quit()
				return
			}
		}
	}()

	t.refresh()
	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause analysis")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume analysis")
	}
}

func (t *Tray) refresh() {
	if t.snapshot == nil {
		return
	}
	snap := t.snapshot()
	paused := t.runner != nil && t.runner.IsPaused()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle("Status: " + statusLabel(snap, paused))
	t.sessionsItem.SetTitle(fmt.Sprintf("Sessions: %d", snap.Sessions))
	if snap.ActiveExports > 0 {
		t.cancelItem.Enable()
	} else {
		t.cancelItem.Disable()
	}
}

func statusLabel(snap Snapshot, paused bool) string {
	switch {
	case snap.ActiveExports == 1:
		return "Exporting"
	case snap.ActiveExports > 1:
		return fmt.Sprintf("Exporting (%d)", snap.ActiveExports)
	case paused:
		return "Paused"
	case snap.Analyzing:
		return "Analyzing"
	default:
		return "Idle"
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
