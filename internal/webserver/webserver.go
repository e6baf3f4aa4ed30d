package webserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/db"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/quota"
	"github.com/zsprackett/quota-tray/internal/scheduler"
)

// StateReader exposes the cached refresh result.
type StateReader interface {
	Snapshot() (*quota.Snapshot, *quota.RefreshError)
}

// Refresher triggers out-of-band refreshes.
type Refresher interface {
	ManualRefresh(ctx context.Context) (*quota.Snapshot, error)
	Phase() scheduler.Phase
}

// ConfigStore loads and persists the application config.
type ConfigStore interface {
	Load() (config.Config, error)
	Update(fn func(*config.Config)) (config.Config, error)
}

// HistoryReader serves recorded refresh history.
type HistoryReader interface {
	Recent(n int) ([]*quota.Snapshot, error)
	Events(n int) ([]db.RefreshEvent, error)
}

// Deps are the collaborators the server reads from. History, Fetcher and
// Metrics are optional; their routes return 404 when nil.
type Deps struct {
	State     StateReader
	Refresher Refresher
	Configs   ConfigStore
	Fetcher   scheduler.Fetcher
	History   HistoryReader
	Metrics   prometheus.Gatherer
	Logger    *slog.Logger
}

type Server struct {
	cfg  config.WebserverConfig
	deps Deps

	mu      sync.Mutex
	clients map[chan events.Event]struct{}
	srv     *http.Server
}

func New(cfg config.WebserverConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		clients: make(map[chan events.Event]struct{}),
	}
}

// Broadcast implements events.Broadcaster. Slow clients drop events rather
// than stall the refresh loop.
func (s *Server) Broadcast(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *Server) addClient(ch chan events.Event) {
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(ch chan events.Event) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

func (s *Server) authEnabled() bool {
	a := s.cfg.Auth
	return a.Username != "" && a.PasswordHash != "" && a.JWTSecret != ""
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("POST /api/config/test", s.handleTestConfig)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /events", s.handleSSE)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}
	mux.Handle("GET /", staticHandler())

	if !s.authEnabled() {
		return mux
	}
	return jwtMiddleware(s.cfg.Auth.JWTSecret, []string{"/", "/index.html", "/api/auth/login"}, mux)
}

// Start listens in the background. It returns an error only for
// configuration problems detected before listening.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		var err error
		if tlsCfg != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("webserver: listen failed", "addr", addr, "err", err)
		}
	}()
	s.deps.Logger.Info("webserver: listening", "addr", addr, "tls", s.cfg.TLS.Mode)
	return nil
}

// Shutdown stops the listener started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	t := s.cfg.TLS
	cacheDir := t.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(filepath.Dir(config.DefaultPath()), "certs")
	}
	switch t.Mode {
	case "":
		return nil, nil
	case "self-signed":
		return selfSignedTLS(cacheDir, s.cfg.Host)
	case "manual":
		return manualTLS(t.CertFile, t.KeyFile)
	case "autocert":
		return autocertTLS(t.Domain, cacheDir)
	}
	return nil, fmt.Errorf("webserver: unknown tls mode %q", t.Mode)
}
