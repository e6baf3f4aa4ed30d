package notify_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/notify"
	"github.com/zsprackett/quota-tray/internal/quota"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noDesktop(n *notify.Notifier) *notify.Notifier {
	n.SetDesktop(func(string, string) error { return nil })
	return n
}

func usage(pct float64) events.Event {
	return events.Event{
		Type:  events.TypeUsageUpdate,
		Usage: &quota.Snapshot{TotalQuota: 1000, UsedQuota: int64(pct * 10), UsagePercentage: pct},
		Time:  time.Now(),
	}
}

func failure(kind quota.ErrorKind, msg string) events.Event {
	return events.Event{Type: events.TypeUsageError, Error: msg, ErrorKind: kind, Time: time.Now()}
}

func TestNtfyNotification(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	n := noDesktop(notify.New(config.NotificationsConfig{
		Enabled: true,
		NtfyURL: srv.URL + "/test-topic",
	}, discardLogger()))

	n.Notify(notify.Alert{Kind: notify.KindThreshold, Title: "GLM quota at 85%", Message: "850 of 1.0K tokens used"})

	if received == nil {
		t.Fatal("no POST received")
	}
	if received["title"] != "GLM quota at 85%" {
		t.Errorf("unexpected title: %v", received["title"])
	}
}

func TestWebhookPayload(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	n := noDesktop(notify.New(config.NotificationsConfig{Enabled: true, Webhook: srv.URL}, discardLogger()))
	n.Notify(notify.Alert{Kind: notify.KindError, Title: "failed", Message: "boom", ErrorKind: quota.Unauthorized})

	if received["kind"] != "error" || received["error_kind"] != "unauthorized" {
		t.Errorf("unexpected payload: %v", received)
	}
}

func TestNotify_WebhookErrorLogged(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Invalid URL forces a POST error.
	n := noDesktop(notify.New(config.NotificationsConfig{Enabled: true, Webhook: "http://127.0.0.1:1"}, logger))
	n.Notify(notify.Alert{Title: "test"})

	if !strings.Contains(buf.String(), "webhook") {
		t.Errorf("expected warn log mentioning webhook, got: %q", buf.String())
	}
}

func TestNotify_DisabledNoOp(t *testing.T) {
	called := false
	n := notify.New(config.NotificationsConfig{Enabled: false}, discardLogger())
	n.SetDesktop(func(string, string) error { called = true; return nil })
	n.Notify(notify.Alert{Title: "test"})
	if called {
		t.Error("desktop notification sent while disabled")
	}
}

func TestEvaluate_ThresholdIsEdgeTriggered(t *testing.T) {
	n := notify.New(config.NotificationsConfig{Enabled: true, Threshold: 80}, discardLogger())

	if a := n.Evaluate(usage(50)); a != nil {
		t.Fatalf("below threshold: got %+v", a)
	}
	a := n.Evaluate(usage(85))
	if a == nil || a.Kind != notify.KindThreshold {
		t.Fatalf("crossing: got %+v", a)
	}
	if a.Title != "GLM quota at 85%" {
		t.Errorf("title = %q", a.Title)
	}
	if a := n.Evaluate(usage(90)); a != nil {
		t.Errorf("still above: got %+v", a)
	}
	n.Evaluate(usage(40))
	if a := n.Evaluate(usage(81)); a == nil {
		t.Error("expected re-alert after dropping below threshold")
	}
}

func TestEvaluate_DefaultThreshold(t *testing.T) {
	n := notify.New(config.NotificationsConfig{Enabled: true}, discardLogger())
	if a := n.Evaluate(usage(config.DefaultThreshold)); a == nil {
		t.Error("expected alert at the default threshold")
	}
}

func TestEvaluate_ErrorTransitions(t *testing.T) {
	n := notify.New(config.NotificationsConfig{Enabled: true}, discardLogger())

	a := n.Evaluate(failure(quota.NetworkFailure, "request failed: dial"))
	if a == nil || a.Kind != notify.KindError || a.Message != "request failed: dial" {
		t.Fatalf("first error: got %+v", a)
	}
	if a := n.Evaluate(failure(quota.NetworkFailure, "request failed: again")); a != nil {
		t.Errorf("repeated kind: got %+v", a)
	}
	if a := n.Evaluate(failure(quota.Unauthorized, "expired")); a == nil || a.ErrorKind != quota.Unauthorized {
		t.Errorf("kind change: got %+v", a)
	}
	if a := n.Evaluate(usage(10)); a == nil || a.Kind != notify.KindRecovered {
		t.Errorf("recovery: got %+v", a)
	}
	if a := n.Evaluate(usage(11)); a != nil {
		t.Errorf("steady state: got %+v", a)
	}
}

func TestBroadcastDispatchesAsync(t *testing.T) {
	got := make(chan string, 1)
	n := notify.New(config.NotificationsConfig{Enabled: true, Threshold: 50}, discardLogger())
	n.SetDesktop(func(title, _ string) error { got <- title; return nil })

	n.Broadcast(usage(60))

	select {
	case title := <-got:
		if title != "GLM quota at 60%" {
			t.Errorf("title = %q", title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no desktop notification delivered")
	}
}
