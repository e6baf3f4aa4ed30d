package applog_test

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/zsprackett/quota-tray/internal/applog"
)

func day(d int) func() time.Time {
	return func() time.Time { return time.Date(2026, 3, d, 9, 30, 0, 0, time.UTC) }
}

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, applog.FilePrefix+"*.log"))
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Strings(names)
	return names
}

func TestRotatorWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 7)
	defer r.Close()
	r.SetNow(day(4))

	if got, want := r.Path(), filepath.Join(dir, "quota-tray-2026-03-04.log"); got != want {
		t.Errorf("Path: got %q want %q", got, want)
	}
	if _, err := r.Write([]byte("cycle ok\n")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "cycle ok\n" {
		t.Errorf("contents: %q", data)
	}
}

func TestRotatorSwitchesAtDayBoundary(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 7)
	defer r.Close()

	r.SetNow(day(1))
	r.Write([]byte("first\n"))
	r.Write([]byte("second\n"))
	r.SetNow(day(2))
	r.Write([]byte("third\n"))

	got := logFiles(t, dir)
	want := []string{"quota-tray-2026-03-01.log", "quota-tray-2026-03-02.log"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("files: got %v want %v", got, want)
	}
	data, _ := os.ReadFile(filepath.Join(dir, want[0]))
	if string(data) != "first\nsecond\n" {
		t.Errorf("day 1 contents: %q", data)
	}
}

func TestRotatorPrunesByAge(t *testing.T) {
	dir := t.TempDir()
	// Unrelated files in the log dir survive pruning.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644)
	os.WriteFile(filepath.Join(dir, applog.FilePrefix+"latest.log"), []byte("keep"), 0644)

	r := applog.NewDailyRotator(dir, 3)
	for d := 1; d <= 5; d++ {
		r.SetNow(day(d))
		if _, err := r.Write([]byte("entry\n")); err != nil {
			t.Fatal(err)
		}
	}
	r.Close()

	got := logFiles(t, dir)
	want := []string{
		"quota-tray-2026-03-03.log",
		"quota-tray-2026-03-04.log",
		"quota-tray-2026-03-05.log",
		"quota-tray-latest.log",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("files: got %v want %v", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("notes.txt removed: %v", err)
	}
}

func TestInitCreatesDirAndRedirectsStdlib(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, rotator, err := applog.Init(applog.InitConfig{LogDir: dir, LogLevel: "info"})
	if err != nil {
		t.Fatal(err)
	}
	defer rotator.Close()

	logger.Debug("hidden-at-info")
	log.Print("stdlib-marker")

	data, err := os.ReadFile(rotator.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "stdlib-marker") {
		t.Errorf("stdlib log not redirected: %q", data)
	}
	if strings.Contains(string(data), "hidden-at-info") {
		t.Errorf("debug line written at info level: %q", data)
	}
}

func TestInitConsoleTee(t *testing.T) {
	var console strings.Builder
	logger, rotator, err := applog.Init(applog.InitConfig{LogDir: t.TempDir(), Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	defer rotator.Close()

	logger.Info("scheduler: started", "interval_s", 60)
	if !strings.Contains(console.String(), "interval_s=60") {
		t.Errorf("console did not receive log line: %q", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := applog.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v want %v", in, got, want)
		}
	}
}

func TestEffectiveLevelDebugEnv(t *testing.T) {
	t.Setenv("QUOTA_TRAY_DEBUG", "")
	t.Setenv("DEBUG", "")
	if got := applog.EffectiveLevel("warn"); got != slog.LevelWarn {
		t.Errorf("no env: got %v want warn", got)
	}

	t.Setenv("QUOTA_TRAY_DEBUG", "1")
	if got := applog.EffectiveLevel("warn"); got != slog.LevelDebug {
		t.Errorf("QUOTA_TRAY_DEBUG=1: got %v want debug", got)
	}

	t.Setenv("QUOTA_TRAY_DEBUG", "")
	t.Setenv("DEBUG", "true")
	if got := applog.EffectiveLevel("error"); got != slog.LevelDebug {
		t.Errorf("DEBUG=true: got %v want debug", got)
	}

	t.Setenv("DEBUG", "0")
	if got := applog.EffectiveLevel("error"); got != slog.LevelError {
		t.Errorf("DEBUG=0: got %v want error", got)
	}
}
