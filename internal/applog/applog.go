package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FilePrefix names log files quota-tray-YYYY-MM-DD.log.
const FilePrefix = "quota-tray-"

const (
	defaultMaxDays = 7
	dateLayout     = "2006-01-02"
)

// Environment variables that force debug logging regardless of config.
var debugEnv = []string{"QUOTA_TRAY_DEBUG", "DEBUG"}

// DailyRotator is an io.Writer that appends to quota-tray-YYYY-MM-DD.log in
// dir, switching files at local midnight. Files dated more than maxDays-1
// days before today are removed on each switch.
type DailyRotator struct {
	mu      sync.Mutex
	dir     string
	date    string
	file    *os.File
	maxDays int
	now     func() time.Time
}

func NewDailyRotator(dir string, maxDays int) *DailyRotator {
	if maxDays <= 0 {
		maxDays = defaultMaxDays
	}
	return &DailyRotator{dir: dir, maxDays: maxDays, now: time.Now}
}

// SetNow replaces the time source. Used in tests only.
func (r *DailyRotator) SetNow(fn func() time.Time) {
	r.mu.Lock()
	r.now = fn
	r.mu.Unlock()
}

// Path returns the file the next write goes to.
func (r *DailyRotator) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pathFor(r.now().Format(dateLayout))
}

func (r *DailyRotator) pathFor(date string) string {
	return filepath.Join(r.dir, FilePrefix+date+".log")
}

func (r *DailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if today := now.Format(dateLayout); today != r.date || r.file == nil {
		if err := r.open(today); err != nil {
			return 0, err
		}
		r.prune(now)
	}
	return r.file.Write(p)
}

func (r *DailyRotator) open(date string) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	f, err := os.OpenFile(r.pathFor(date), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.date = date
	return nil
}

// prune removes dated log files older than the retention window. Files that
// do not follow the naming scheme are left alone.
func (r *DailyRotator) prune(now time.Time) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(r.maxDays - 1))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		date, err := time.Parse(dateLayout, strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), ".log"))
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			os.Remove(filepath.Join(r.dir, name))
		}
	}
}

func (r *DailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// InitConfig holds configuration for Init.
type InitConfig struct {
	LogDir   string
	LogLevel string
	// Console, when set, receives a copy of every line (headless mode).
	Console io.Writer
	MaxDays int
}

// Init points slog.Default and the stdlib log package at a DailyRotator in
// cfg.LogDir. The caller closes the returned rotator on exit.
func Init(cfg InitConfig) (*slog.Logger, *DailyRotator, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := NewDailyRotator(cfg.LogDir, cfg.MaxDays)

	var out io.Writer = rotator
	if cfg.Console != nil {
		out = io.MultiWriter(rotator, cfg.Console)
	}
	level := EffectiveLevel(cfg.LogLevel)
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	log.SetOutput(out)
	log.SetFlags(0)
	return logger, rotator, nil
}

// EffectiveLevel is ParseLevel(s) unless a debug environment variable is set
// to a truthy value, in which case it is LevelDebug.
func EffectiveLevel(s string) slog.Level {
	for _, name := range debugEnv {
		switch strings.ToLower(os.Getenv(name)) {
		case "1", "true", "yes", "on":
			return slog.LevelDebug
		}
	}
	return ParseLevel(s)
}

// ParseLevel converts a level string to slog.Level. Defaults to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
