package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/quota"
	"github.com/zsprackett/quota-tray/internal/scheduler"
	"github.com/zsprackett/quota-tray/internal/ui/dialogs"
)

const (
	historyPoints         = 60
	testConnectionTimeout = 15 * time.Second
)

type StateReader interface {
	Snapshot() (*quota.Snapshot, *quota.RefreshError)
}

type Refresher interface {
	ManualRefresh(ctx context.Context) (*quota.Snapshot, error)
	Phase() scheduler.Phase
}

type ConfigStore interface {
	Load() (config.Config, error)
	Update(fn func(*config.Config)) (config.Config, error)
}

type HistoryReader interface {
	Recent(n int) ([]*quota.Snapshot, error)
}

// Deps are the App's collaborators. History is optional.
type Deps struct {
	State     StateReader
	Refresher Refresher
	Configs   ConfigStore
	Fetcher   scheduler.Fetcher
	History   HistoryReader
	Logger    *slog.Logger
}

type App struct {
	tapp   *tview.Application
	pages  *tview.Pages
	home   *Home
	deps   Deps
	logger *slog.Logger

	running    atomic.Bool
	refreshing atomic.Bool
}

func NewApp(deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	a := &App{deps: deps, logger: deps.Logger}

	a.tapp = tview.NewApplication()
	a.pages = tview.NewPages()
	a.home = NewHome(a.tapp)

	a.pages.AddPage("home", a.home, true, true)
	a.tapp.SetRoot(a.pages, true).EnableMouse(false)

	a.home.SetCallbacks(
		a.refresh,
		a.showSettings,
		a.showHelp,
		a.onExpand,
		a.Stop,
	)
	return a
}

// SetScreen replaces the terminal screen. Used in tests only.
func (a *App) SetScreen(s tcell.Screen) {
	a.tapp.SetScreen(s)
}

func (a *App) Run() error {
	a.home.Update(a.view(a.recentHistory()))
	a.running.Store(true)
	defer a.running.Store(false)
	return a.tapp.Run()
}

func (a *App) Stop() {
	a.tapp.Stop()
}

// Broadcast implements events.Broadcaster. History is read on the caller's
// goroutine; the redraw is queued onto the UI goroutine.
func (a *App) Broadcast(e events.Event) {
	if !a.running.Load() {
		return
	}
	a.redraw()
}

func (a *App) recentHistory() []*quota.Snapshot {
	if a.deps.History == nil {
		return nil
	}
	h, err := a.deps.History.Recent(historyPoints)
	if err != nil {
		a.logger.Warn("ui: load history", "err", err)
		return nil
	}
	return h
}

func (a *App) view(history []*quota.Snapshot) View {
	usage, rerr := a.deps.State.Snapshot()
	v := View{
		Usage:      usage,
		Err:        rerr,
		History:    history,
		Refreshing: a.refreshing.Load(),
		Now:        time.Now(),
	}
	if a.deps.Refresher != nil {
		v.Phase = a.deps.Refresher.Phase().String()
	}
	return v
}

func (a *App) redraw() {
	history := a.recentHistory()
	a.tapp.QueueUpdateDraw(func() {
		a.home.Update(a.view(history))
	})
}

// refresh requests a manual cycle. Presses while one is outstanding are
// dropped here; the scheduler coalesces anything that gets through.
func (a *App) refresh() {
	if a.deps.Refresher == nil || !a.refreshing.CompareAndSwap(false, true) {
		return
	}
	a.home.Update(a.view(a.home.view.History))
	go func() {
		_, err := a.deps.Refresher.ManualRefresh(context.Background())
		a.refreshing.Store(false)
		if errors.Is(err, scheduler.ErrStopped) {
			return
		}
		a.redraw()
	}()
}

// onExpand fetches immediately when the panel is opened with nothing to show.
func (a *App) onExpand() {
	if usage, _ := a.deps.State.Snapshot(); usage == nil {
		a.refresh()
	}
}

func (a *App) showDialog(name string, widget tview.Primitive, width, height int) {
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(nil, 0, 1, false).
			AddItem(widget, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)
	a.pages.AddPage(name, modal, true, true)
	a.tapp.SetFocus(widget)
}

func (a *App) closeDialog(name string) {
	a.pages.RemovePage(name)
	a.tapp.SetFocus(a.home.focusTarget())
}

func (a *App) showHelp() {
	help := dialogs.HelpDialog(func() {
		a.closeDialog("help")
	})
	a.showDialog("help", help, 60, 24)
}

func (a *App) showError(msg string) {
	modal := tview.NewModal().
		SetText(msg).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(_ int, _ string) {
			a.closeDialog("error")
		})
	a.pages.AddPage("error", modal, true, true)
}

func (a *App) loadConfig() (config.Config, error) {
	cfg, err := a.deps.Configs.Load()
	if errors.Is(err, config.ErrNotFound) {
		return cfg, nil
	}
	return cfg, err
}

func (a *App) showSettings() {
	cfg, err := a.loadConfig()
	if err != nil {
		a.showError(fmt.Sprintf("Could not read settings: %v", err))
		return
	}

	var d *dialogs.SettingsDialog
	d = dialogs.NewSettingsDialog(settingsFromConfig(cfg),
		func(v dialogs.SettingsResult) { a.testSettings(d, v) },
		func(v dialogs.SettingsResult) { a.saveSettings(v) },
		func() { a.closeDialog("settings") },
	)
	a.showDialog("settings", d, 64, 20)
}

func settingsFromConfig(cfg config.Config) dialogs.SettingsResult {
	return dialogs.SettingsResult{
		Token:                cfg.MaskedToken(),
		Organization:         cfg.Organization,
		Project:              cfg.Project,
		RefreshInterval:      cfg.RefreshInterval,
		NotificationsEnabled: cfg.Notifications.Enabled,
		Threshold:            cfg.Notifications.Threshold,
	}
}

// applySettings copies the form into cfg.
func applySettings(cfg *config.Config, v dialogs.SettingsResult) {
	cfg.ApplyToken(v.Token)
	cfg.Organization = v.Organization
	cfg.Project = v.Project
	cfg.RefreshInterval = v.RefreshInterval
	cfg.Notifications.Enabled = v.NotificationsEnabled
	cfg.Notifications.Threshold = v.Threshold
}

func (a *App) testSettings(d *dialogs.SettingsDialog, v dialogs.SettingsResult) {
	if a.deps.Fetcher == nil {
		return
	}
	cfg, err := a.loadConfig()
	if err != nil {
		d.SetStatus(fmt.Sprintf("[red]%v[-]", err))
		return
	}
	applySettings(&cfg, v)
	d.SetStatus("[yellow]Testing…[-]")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), testConnectionTimeout)
		defer cancel()
		usage, rerr := scheduler.TestConnection(ctx, a.deps.Fetcher, cfg)
		a.tapp.QueueUpdateDraw(func() {
			d.SetStatus(testStatus(usage, rerr))
		})
	}()
}

func testStatus(usage *quota.Snapshot, rerr *quota.RefreshError) string {
	if rerr != nil {
		return fmt.Sprintf("[red]%s[-]", tview.Escape(rerr.Message))
	}
	return fmt.Sprintf("[green]Connected: %s[-]", TrayTitle(usage, nil))
}

func (a *App) saveSettings(v dialogs.SettingsResult) {
	_, err := a.deps.Configs.Update(func(cfg *config.Config) {
		applySettings(cfg, v)
	})
	if err != nil {
		a.logger.Error("ui: save settings", "err", err)
		a.showError(fmt.Sprintf("Could not save settings: %v", err))
		return
	}
	a.logger.Info("ui: settings saved")
	a.closeDialog("settings")
}

var _ events.Broadcaster = (*App)(nil)
