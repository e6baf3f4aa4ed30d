package ui

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/quota"
	"github.com/zsprackett/quota-tray/internal/scheduler"
	"github.com/zsprackett/quota-tray/internal/state"
	"github.com/zsprackett/quota-tray/internal/ui/dialogs"
)

type fakeRefresher struct {
	called chan struct{}
}

func (f *fakeRefresher) ManualRefresh(context.Context) (*quota.Snapshot, error) {
	f.called <- struct{}{}
	return nil, quota.NewNotConfigured()
}

func (f *fakeRefresher) Phase() scheduler.Phase { return scheduler.Idle }

func newTestApp(t *testing.T) (*App, *state.State, *fakeRefresher, tcell.SimulationScreen) {
	t.Helper()
	st := state.New(nil)
	ref := &fakeRefresher{called: make(chan struct{}, 4)}
	a := NewApp(Deps{
		State:     st,
		Refresher: ref,
		Configs:   config.NewStore(filepath.Join(t.TempDir(), "config.json")),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	sim := tcell.NewSimulationScreen("UTF-8")
	a.SetScreen(sim)
	sim.SetSize(100, 30)
	return a, st, ref, sim
}

// onUI runs fn on the UI goroutine and reports whether it ran in time.
func onUI(a *App, fn func()) bool {
	done := make(chan struct{})
	a.tapp.QueueUpdate(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func TestAppKeys(t *testing.T) {
	a, st, ref, sim := newTestApp(t)
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run() }()
	require.Eventually(t, a.running.Load, 2*time.Second, 5*time.Millisecond)

	sim.InjectKey(tcell.KeyRune, 'r', tcell.ModNone)
	select {
	case <-ref.called:
	case <-time.After(2 * time.Second):
		t.Fatal("r did not trigger a manual refresh")
	}

	st.Publish(state.Outcome{Usage: &quota.Snapshot{
		TotalQuota: 1000, UsedQuota: 250, UsagePercentage: 25,
		Limits: []quota.Limit{{Type: quota.LimitTokens, Usage: 1000, CurrentValue: 250, Percentage: 25}},
	}})
	a.Broadcast(events.Event{Type: events.TypeUsageUpdate})
	require.Eventually(t, func() bool {
		var header string
		ran := onUI(a, func() { header = a.home.header.GetText(true) })
		return ran && strings.Contains(header, "GLM: 250/1.0K (25%)")
	}, 2*time.Second, 10*time.Millisecond)

	sim.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	require.Eventually(t, func() bool {
		expanded := true
		ran := onUI(a, func() { expanded = a.home.Expanded() })
		return ran && !expanded
	}, 2*time.Second, 10*time.Millisecond)

	sim.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("q did not quit")
	}
}

func TestBroadcastBeforeRunIsNoop(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	// Must not block or panic with no event loop running.
	a.Broadcast(events.Event{Type: events.TypeUsageUpdate})
}

func TestSettingsRoundTrip(t *testing.T) {
	cfg := config.Defaults()
	cfg.Token = "abcdefghijk"
	cfg.Organization = "org"
	cfg.Project = "proj"
	cfg.Notifications.Threshold = 75

	v := settingsFromConfig(cfg)
	assert.Equal(t, "abcdef******", v.Token)
	assert.Equal(t, 75.0, v.Threshold)

	// Untouched masked token keeps the stored secret.
	v.Project = "other"
	v.RefreshInterval = 30
	applySettings(&cfg, v)
	assert.Equal(t, "abcdefghijk", cfg.Token)
	assert.Equal(t, "other", cfg.Project)
	assert.Equal(t, 30, cfg.RefreshInterval)

	applySettings(&cfg, dialogs.SettingsResult{Token: "new-token", RefreshInterval: 60, Threshold: 80})
	assert.Equal(t, "new-token", cfg.Token)
}

func TestTestStatus(t *testing.T) {
	assert.Contains(t, testStatus(nil, quota.NewUnauthorized()), "[red]")
	ok := testStatus(&quota.Snapshot{TotalQuota: 10, UsedQuota: 1, UsagePercentage: 10, Limits: []quota.Limit{{Type: quota.LimitTokens}}}, nil)
	assert.Equal(t, "[green]Connected: GLM: 1/10 (10%)[-]", ok)
}
