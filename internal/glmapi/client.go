package glmapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/quota"
)

const (
	DefaultBaseURL = "https://bigmodel.cn"
	quotaPath      = "/api/monitor/usage/quota/limit"
	userAgent      = "quota-tray/1.0"
	maxBodyBytes   = 1 << 20
)

// Client fetches quota usage from the BigModel monitor API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

func New(logger *slog.Logger) *Client {
	return NewWithBaseURL(DefaultBaseURL, logger)
}

// NewWithBaseURL points the client at another host. Used in tests.
func NewWithBaseURL(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		now:     time.Now,
	}
}

// Fetch performs one request with cfg's credentials. Every failure is
// returned as a *quota.RefreshError.
func (c *Client) Fetch(ctx context.Context, cfg config.Config) (*quota.Snapshot, error) {
	c.logger.Debug("glmapi: fetching usage",
		"token", tokenPrefix(cfg.Token),
		"organization", cfg.Organization,
		"project", cfg.Project,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+quotaPath, nil)
	if err != nil {
		return nil, quota.NewNetworkFailure(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", cfg.Token)
	req.Header.Set("Bigmodel-Organization", cfg.Organization)
	req.Header.Set("Bigmodel-Project", cfg.Project)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, quota.NewNetworkFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, quota.NewNetworkFailure(fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("glmapi: response", "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("glmapi: token expired or invalid")
		return nil, quota.NewUnauthorized()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(body))
		c.logger.Error("glmapi: api error", "status", resp.StatusCode, "body", text)
		return nil, quota.NewAPIError(resp.StatusCode, text)
	}

	return c.parse(resp.StatusCode, body)
}

func (c *Client) parse(status int, body []byte) (*quota.Snapshot, error) {
	var r quotaResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, quota.NewParseFailure(err)
	}
	if r.Success != nil && !*r.Success {
		msg := r.Message
		if msg == "" {
			msg = r.Msg
		}
		if fmt.Sprint(r.Code) == "401" {
			return nil, quota.NewUnauthorized()
		}
		return nil, quota.NewAPIError(status, fmt.Sprintf("%v %s", r.Code, msg))
	}
	if r.Data == nil {
		return nil, quota.NewParseFailure(errors.New("missing data object"))
	}

	snap := &quota.Snapshot{
		Limits:    make([]quota.Limit, 0, len(r.Data.Limits)),
		FetchedAt: c.now(),
	}
	for _, item := range r.Data.Limits {
		l := quota.Limit{
			Type:         item.Type,
			Usage:        item.Usage,
			CurrentValue: item.CurrentValue,
			Remaining:    item.Remaining,
			Percentage:   item.Percentage,
		}
		if t, ok := parseResetTime(item.NextResetTime); ok {
			l.NextResetTime = &t
		}
		for _, d := range item.UsageDetails {
			l.Details = append(l.Details, quota.UsageDetail{ModelCode: d.ModelCode, Usage: d.Usage})
		}
		snap.Limits = append(snap.Limits, l)
	}

	tokens, ok := snap.TokenLimit()
	if !ok {
		return nil, quota.NewParseFailure(fmt.Errorf("no %s entry among %d limits", quota.LimitTokens, len(snap.Limits)))
	}
	snap.TotalQuota = tokens.Usage
	snap.UsedQuota = tokens.CurrentValue
	snap.RemainingQuota = tokens.Remaining
	snap.UsagePercentage = tokens.Percentage
	return snap, nil
}

// parseResetTime accepts an RFC3339 string or a unix-millisecond number.
func parseResetTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		if x == "" {
			return time.Time{}, false
		}
		t, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case float64:
		if x <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(x)), true
	default:
		return time.Time{}, false
	}
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8] + "..."
	}
	return "..."
}
