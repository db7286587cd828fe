package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Scan.PageSize = 20
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Scan.PageSize != 20 {
		t.Errorf("Scan.PageSize = %d, want 20", loaded.Scan.PageSize)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("default_session = \"main\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Download.SampleIntervalMs != 800 {
		t.Errorf("SampleIntervalMs = %d, want default 800", cfg.Download.SampleIntervalMs)
	}
	if cfg.Scan.PageSize != 50 {
		t.Errorf("PageSize = %d, want default 50", cfg.Scan.PageSize)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:3001" {
		t.Errorf("ListenAddr = %q, want default", cfg.ListenAddr)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero page size", func(c *Config) { c.Scan.PageSize = 0 }, true},
		{"page size too large", func(c *Config) { c.Scan.PageSize = 101 }, true},
		{"negative delay", func(c *Config) { c.Scan.PageDelayMs = -1 }, true},
		{"negative cap", func(c *Config) { c.Scan.DefaultCap = -5 }, true},
		{"relative download dir", func(c *Config) { c.DownloadDir = "downloads" }, true},
		{"zero sample interval", func(c *Config) { c.Download.SampleIntervalMs = 0 }, true},
		{"proxy mtproto", func(c *Config) { c.Proxy.Enabled = true; c.Proxy.Type = "mtproto" }, true},
		{"proxy bad port", func(c *Config) { c.Proxy.Enabled = true; c.Proxy.Port = 70000 }, true},
		{"proxy disabled ignores type", func(c *Config) { c.Proxy.Type = "mtproto" }, false},
		{"unknown gin mode", func(c *Config) { c.GinMode = "verbose" }, true},
		{"proxy http", func(c *Config) { c.Proxy.Enabled = true; c.Proxy.Type = "http" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.DownloadDir = "/tmp/wpdl"
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
