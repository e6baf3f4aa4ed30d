package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/quota"
)

// Alert kinds.
const (
	KindThreshold = "threshold"
	KindError     = "error"
	KindRecovered = "recovered"
)

// Alert is a single user-facing notification.
type Alert struct {
	Kind       string
	Title      string
	Message    string
	Percentage float64
	ErrorKind  quota.ErrorKind
	Time       time.Time
}

// Notifier fires system notifications and optional webhook/ntfy POSTs when
// usage crosses the configured threshold or the refresh error state changes.
type Notifier struct {
	logger *slog.Logger
	client *http.Client

	mu        sync.Mutex
	cfg       config.NotificationsConfig
	above     bool
	lastError quota.ErrorKind

	// desktop is swapped in tests.
	desktop func(title, msg string) error
}

// New returns a Notifier with the given config.
func New(cfg config.NotificationsConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: 5 * time.Second},
		desktop: sendSystemNotification,
	}
}

// SetConfig replaces the notification settings. Crossing state is kept so a
// threshold change does not re-alert for an already-high reading.
func (n *Notifier) SetConfig(cfg config.NotificationsConfig) {
	n.mu.Lock()
	n.cfg = cfg
	n.mu.Unlock()
}

// SetDesktop overrides the desktop notification command.
func (n *Notifier) SetDesktop(fn func(title, msg string) error) {
	n.mu.Lock()
	n.desktop = fn
	n.mu.Unlock()
}

// Evaluate updates the crossing/error state from e and returns the alert it
// warrants, if any. Alerts are edge-triggered: staying above the threshold
// or repeating the same error kind does not produce another alert.
func (n *Notifier) Evaluate(e events.Event) *Alert {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch e.Type {
	case events.TypeUsageUpdate:
		if e.Usage == nil {
			return nil
		}
		recovered := n.lastError != ""
		n.lastError = ""

		pct := e.Usage.UsagePercentage
		threshold := n.cfg.Threshold
		if threshold <= 0 {
			threshold = config.DefaultThreshold
		}
		wasAbove := n.above
		n.above = pct >= threshold

		if n.above && !wasAbove {
			return &Alert{
				Kind:       KindThreshold,
				Title:      fmt.Sprintf("GLM quota at %.0f%%", pct),
				Message:    fmt.Sprintf("%s of %s tokens used", quota.FormatTokens(e.Usage.UsedQuota), quota.FormatTokens(e.Usage.TotalQuota)),
				Percentage: pct,
				Time:       e.Time,
			}
		}
		if recovered {
			return &Alert{
				Kind:       KindRecovered,
				Title:      "GLM quota refresh recovered",
				Message:    fmt.Sprintf("usage %.0f%%", pct),
				Percentage: pct,
				Time:       e.Time,
			}
		}
	case events.TypeUsageError:
		if e.ErrorKind == n.lastError {
			return nil
		}
		n.lastError = e.ErrorKind
		return &Alert{
			Kind:      KindError,
			Title:     "GLM quota refresh failed",
			Message:   e.Error,
			ErrorKind: e.ErrorKind,
			Time:      e.Time,
		}
	}
	return nil
}

// Broadcast evaluates e and dispatches any resulting alert without blocking
// the caller.
func (n *Notifier) Broadcast(e events.Event) {
	if a := n.Evaluate(e); a != nil {
		go n.Notify(*a)
	}
}

// Notify delivers a to every configured channel.
func (n *Notifier) Notify(a Alert) {
	n.mu.Lock()
	cfg := n.cfg
	desktop := n.desktop
	n.mu.Unlock()

	if !cfg.Enabled {
		return
	}

	if desktop != nil {
		if err := desktop(a.Title, a.Message); err != nil {
			n.logger.Debug("notify: desktop notification failed", "err", err)
		}
	}
	if cfg.Webhook != "" {
		n.sendWebhook(cfg.Webhook, a)
	}
	if cfg.NtfyURL != "" {
		n.sendNtfy(cfg.NtfyURL, a)
	}
}

func sendSystemNotification(title, msg string) error {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, msg, title)
		return exec.Command("osascript", "-e", script).Run()
	case "linux":
		return exec.Command("notify-send", "-a", "quota-tray", title, msg).Run()
	}
	return nil
}

type webhookPayload struct {
	Kind       string  `json:"kind"`
	Title      string  `json:"title"`
	Message    string  `json:"message"`
	Percentage float64 `json:"percentage,omitempty"`
	ErrorKind  string  `json:"error_kind,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

func (n *Notifier) sendWebhook(url string, a Alert) {
	ts := a.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	payload := webhookPayload{
		Kind:       a.Kind,
		Title:      a.Title,
		Message:    a.Message,
		Percentage: a.Percentage,
		ErrorKind:  string(a.ErrorKind),
		Timestamp:  ts.UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		n.logger.Warn("notify: webhook post failed", "err", err)
		return
	}
	resp.Body.Close()
}

type ntfyPayload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
}

func (n *Notifier) sendNtfy(url string, a Alert) {
	payload := ntfyPayload{
		Title:    a.Title,
		Message:  a.Message,
		Priority: 4,
		Tags:     []string{"rotating_light"},
	}
	if a.Kind == KindRecovered {
		payload.Priority = 3
		payload.Tags = []string{"white_check_mark"}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		n.logger.Warn("notify: ntfy post failed", "err", err)
		return
	}
	resp.Body.Close()
}

var _ events.Broadcaster = (*Notifier)(nil)
