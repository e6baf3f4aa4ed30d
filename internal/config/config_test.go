package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zsprackett/quota-tray/internal/config"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path/config.json")
	if !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if cfg.RefreshInterval != config.DefaultRefreshInterval {
		t.Errorf("default interval: got %d want %d", cfg.RefreshInterval, config.DefaultRefreshInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"token":"t","organization":"o","project":"p","refreshInterval":30}`), 0644)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "t" || cfg.RefreshInterval != 30 {
		t.Errorf("got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadZeroIntervalGetsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"refreshInterval":0}`), 0644)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RefreshInterval != config.DefaultRefreshInterval {
		t.Errorf("got %d want %d", cfg.RefreshInterval, config.DefaultRefreshInterval)
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{not json`), 0644)

	_, err := config.Load(path)
	if err == nil || errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidateIncomplete(t *testing.T) {
	cfg := config.Defaults()
	cfg.Token = "t"
	cfg.Organization = "o"

	err := cfg.Validate()
	if !errors.Is(err, config.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestStoreSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	store := config.NewStore(path)

	if _, err := store.Load(); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}

	cfg := config.Defaults()
	cfg.Token, cfg.Organization, cfg.Project = "t", "o", "p"
	cfg.RefreshInterval = 15
	if err := store.Save(cfg); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm: got %v want 0600", info.Mode().Perm())
	}

	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.RefreshInterval != 15 || got.Project != "p" {
		t.Errorf("got %+v", got)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	cfg, err := store.Update(func(c *config.Config) { c.Token = "abc" })
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "abc" {
		t.Errorf("token: got %q", cfg.Token)
	}
	reloaded, _ := store.Load()
	if reloaded.Token != "abc" {
		t.Errorf("reloaded token: got %q", reloaded.Token)
	}
}

func TestMaskedToken(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"abc":             "******",
		"abcdef123456789": "abcdef******",
	}
	for in, want := range cases {
		cfg := config.Config{Token: in}
		if got := cfg.MaskedToken(); got != want {
			t.Errorf("MaskedToken(%q): got %q want %q", in, got, want)
		}
	}
}

func TestEnsureJWTSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := config.Defaults()
	if err := config.EnsureJWTSecret(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Webserver.Auth.JWTSecret) != 64 {
		t.Errorf("expected 64 char secret, got %d", len(cfg.Webserver.Auth.JWTSecret))
	}
	secret := cfg.Webserver.Auth.JWTSecret
	if err := config.EnsureJWTSecret(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Webserver.Auth.JWTSecret != secret {
		t.Error("existing secret must be kept")
	}
}

func TestStoreOnSave(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	var got []int
	store.OnSave(func(c config.Config) { got = append(got, c.RefreshInterval) })

	cfg := config.Defaults()
	cfg.RefreshInterval = 15
	if err := store.Save(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(func(c *config.Config) { c.RefreshInterval = 45 }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 15 || got[1] != 45 {
		t.Errorf("listener calls = %v, want [15 45]", got)
	}
}

func TestApplyToken(t *testing.T) {
	cfg := config.Config{Token: "abcdefghij"}
	cfg.ApplyToken(cfg.MaskedToken())
	if cfg.Token != "abcdefghij" {
		t.Errorf("masked input overwrote token: %q", cfg.Token)
	}
	cfg.ApplyToken("newtoken")
	if cfg.Token != "newtoken" {
		t.Errorf("got %q want newtoken", cfg.Token)
	}
	cfg.ApplyToken("")
	if cfg.Token != "" {
		t.Errorf("clearing token: got %q", cfg.Token)
	}
}
