package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultRefreshInterval = 60
	DefaultThreshold       = 80
	DefaultHistoryLimit    = 2000
)

var (
	// ErrNotFound is returned by Store.Load when no config file exists yet.
	ErrNotFound = errors.New("config not found")
	// ErrIncomplete is returned by Validate when a credential is missing.
	ErrIncomplete = errors.New("incomplete configuration")
)

type NotificationsConfig struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"` // percent; alert when usage crosses it
	Webhook   string  `json:"webhook"`
	NtfyURL   string  `json:"ntfy"`
}

type TLSConfig struct {
	Mode     string `json:"mode"`     // "self-signed", "autocert", "manual", or "" (disabled)
	Domain   string `json:"domain"`   // required for autocert
	CertFile string `json:"certFile"` // required for manual
	KeyFile  string `json:"keyFile"`  // required for manual
	CacheDir string `json:"cacheDir"` // for autocert and self-signed; defaults to ~/.quota-tray/certs
}

type AuthConfig struct {
	Username       string `json:"username"`
	PasswordHash   string `json:"passwordHash"` // bcrypt
	JWTSecret      string `json:"jwtSecret"`
	AccessTokenTTL string `json:"accessTokenTTL"`
}

type WebserverConfig struct {
	Enabled bool       `json:"enabled"`
	Port    int        `json:"port"`
	Host    string     `json:"host"`
	TLS     TLSConfig  `json:"tls"`
	Auth    AuthConfig `json:"auth"`
}

type Config struct {
	Token           string              `json:"token" validate:"required"`
	Organization    string              `json:"organization" validate:"required"`
	Project         string              `json:"project" validate:"required"`
	RefreshInterval int                 `json:"refreshInterval"` // seconds
	LogDir          string              `json:"logDir"`
	LogLevel        string              `json:"logLevel"`
	HistoryLimit    int                 `json:"historyLimit"`
	Notifications   NotificationsConfig `json:"notifications"`
	Webserver       WebserverConfig     `json:"webserver"`
}

func Defaults() Config {
	return Config{
		RefreshInterval: DefaultRefreshInterval,
		LogDir:          filepath.Join(baseDir(), "logs"),
		LogLevel:        "info",
		HistoryLimit:    DefaultHistoryLimit,
		Notifications:   NotificationsConfig{Threshold: DefaultThreshold},
		Webserver: WebserverConfig{
			Enabled: false,
			Port:    8787,
			Host:    "127.0.0.1",
		},
	}
}

// ApplyDefaults fills zero-valued fields that must be positive.
func (c *Config) ApplyDefaults() {
	if c.RefreshInterval < 1 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(baseDir(), "logs")
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Notifications.Threshold <= 0 {
		c.Notifications.Threshold = DefaultThreshold
	}
	if c.Webserver.TLS.CacheDir == "" {
		c.Webserver.TLS.CacheDir = filepath.Join(baseDir(), "certs")
	}
}

var validate = validator.New()

// Validate reports ErrIncomplete when any credential field is empty.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is required", ErrIncomplete, verrs[0].Field())
		}
		return fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	return nil
}

// MaskedToken returns the token with all but the first few characters hidden.
func (c Config) MaskedToken() string {
	if len(c.Token) <= 6 {
		if c.Token == "" {
			return ""
		}
		return "******"
	}
	return c.Token[:6] + "******"
}

// ApplyToken sets the token from a settings form. Input equal to the masked
// form of the current token means "unchanged".
func (c *Config) ApplyToken(input string) {
	if input == c.MaskedToken() {
		return
	}
	c.Token = input
}

func baseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".quota-tray")
}

// DefaultPath returns $QUOTA_TRAY_CONFIG or ~/.quota-tray/config.json.
func DefaultPath() string {
	if p := os.Getenv("QUOTA_TRAY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(baseDir(), "config.json")
}

func DBPath() string {
	return filepath.Join(baseDir(), "history.db")
}

// Load reads the config at path. A missing file yields the defaults and
// ErrNotFound, so callers can tell "absent" from "present but incomplete".
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, ErrNotFound
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Store is a file-backed config source. Load re-reads the file on every call
// so edits made elsewhere take effect without a restart.
type Store struct {
	mu        sync.Mutex
	path      string
	listeners []func(Config)
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Load(s.path)
}

func (s *Store) Save(cfg Config) error {
	s.mu.Lock()
	err := Save(s.path, cfg)
	listeners := s.listeners
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnSave registers fn to be called with the new config after every
// successful Save or Update.
func (s *Store) OnSave(fn func(Config)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Update loads the current config (or defaults when absent), applies fn and
// saves the result.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	cfg, err := Load(s.path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.mu.Unlock()
		return cfg, err
	}
	fn(&cfg)
	cfg.ApplyDefaults()
	err = Save(s.path, cfg)
	listeners := s.listeners
	s.mu.Unlock()
	if err != nil {
		return cfg, err
	}
	for _, l := range listeners {
		l(cfg)
	}
	return cfg, nil
}

// EnsureJWTSecret generates and persists a random JWT secret if cfg has none.
func EnsureJWTSecret(path string, cfg *Config) error {
	if cfg.Webserver.Auth.JWTSecret != "" {
		return nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	cfg.Webserver.Auth.JWTSecret = hex.EncodeToString(b)
	return Save(path, *cfg)
}
