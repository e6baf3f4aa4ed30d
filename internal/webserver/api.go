package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/db"
	"github.com/zsprackett/quota-tray/internal/quota"
	"github.com/zsprackett/quota-tray/internal/scheduler"
)

const testConnectionTimeout = 15 * time.Second

type usageResponse struct {
	Usage *quota.Snapshot     `json:"usage"`
	Error *quota.RefreshError `json:"error"`
	Phase string              `json:"phase,omitempty"`
}

// configView is the client-visible config. Secrets never leave the process
// except as a masked token.
type configView struct {
	Token           string                     `json:"token"`
	Organization    string                     `json:"organization"`
	Project         string                     `json:"project"`
	RefreshInterval int                        `json:"refreshInterval"`
	Notifications   config.NotificationsConfig `json:"notifications"`
	Configured      bool                       `json:"configured"`
}

type configUpdate struct {
	Token           *string                     `json:"token"`
	Organization    *string                     `json:"organization"`
	Project         *string                     `json:"project"`
	RefreshInterval *int                        `json:"refreshInterval"`
	Notifications   *config.NotificationsConfig `json:"notifications"`
}

type testRequest struct {
	Token        string `json:"token"`
	Organization string `json:"organization"`
	Project      string `json:"project"`
}

type testResponse struct {
	OK    bool                `json:"ok"`
	Usage *quota.Snapshot     `json:"usage,omitempty"`
	Error *quota.RefreshError `json:"error,omitempty"`
}

type historyResponse struct {
	Snapshots []*quota.Snapshot `json:"snapshots"`
	Events    []db.RefreshEvent `json:"events"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func viewOf(cfg config.Config) configView {
	return configView{
		Token:           cfg.MaskedToken(),
		Organization:    cfg.Organization,
		Project:         cfg.Project,
		RefreshInterval: cfg.RefreshInterval,
		Notifications:   cfg.Notifications,
		Configured:      cfg.Validate() == nil,
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, rerr := s.deps.State.Snapshot()
	resp := usageResponse{Usage: usage, Error: rerr}
	if s.deps.Refresher != nil {
		resp.Phase = s.deps.Refresher.Phase().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		http.Error(w, "refresh unavailable", http.StatusServiceUnavailable)
		return
	}
	usage, err := s.deps.Refresher.ManualRefresh(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	resp := usageResponse{Usage: usage}
	if err != nil {
		resp.Error = quota.AsRefreshError(err)
		// A failed cycle leaves the previous snapshot in place.
		resp.Usage, _ = s.deps.State.Snapshot()
	}
	resp.Phase = s.deps.Refresher.Phase().String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadConfig() (config.Config, error) {
	cfg, err := s.deps.Configs.Load()
	if errors.Is(err, config.ErrNotFound) {
		return cfg, nil
	}
	return cfg, err
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.loadConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cfg))
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var body configUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.RefreshInterval != nil && *body.RefreshInterval <= 0 {
		http.Error(w, "refreshInterval must be positive", http.StatusBadRequest)
		return
	}
	cfg, err := s.deps.Configs.Update(func(c *config.Config) {
		if body.Token != nil {
			c.ApplyToken(*body.Token)
		}
		if body.Organization != nil {
			c.Organization = *body.Organization
		}
		if body.Project != nil {
			c.Project = *body.Project
		}
		if body.RefreshInterval != nil {
			c.RefreshInterval = *body.RefreshInterval
		}
		if body.Notifications != nil {
			c.Notifications = *body.Notifications
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.deps.Logger.Info("webserver: config saved", "user", Username(r.Context()), "configured", cfg.Validate() == nil)
	writeJSON(w, http.StatusOK, viewOf(cfg))
}

// handleTestConfig fetches usage with candidate credentials without
// touching shared state. Empty fields fall back to the stored config.
func (s *Server) handleTestConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Fetcher == nil {
		http.NotFound(w, r)
		return
	}
	var body testRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := s.loadConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if body.Token != "" {
		cfg.ApplyToken(body.Token)
	}
	if body.Organization != "" {
		cfg.Organization = body.Organization
	}
	if body.Project != "" {
		cfg.Project = body.Project
	}

	writeJSON(w, http.StatusOK, s.testConnection(r.Context(), cfg))
}

func (s *Server) testConnection(ctx context.Context, cfg config.Config) testResponse {
	ctx, cancel := context.WithTimeout(ctx, testConnectionTimeout)
	defer cancel()
	usage, rerr := scheduler.TestConnection(ctx, s.deps.Fetcher, cfg)
	if rerr != nil {
		return testResponse{Error: rerr}
	}
	return testResponse{OK: true, Usage: usage}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		http.NotFound(w, r)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, config.DefaultHistoryLimit)
	}
	snaps, err := s.deps.History.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	evts, err := s.deps.History.Events(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []*quota.Snapshot{}
	}
	if evts == nil {
		evts = []db.RefreshEvent{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Snapshots: snaps, Events: evts})
}
