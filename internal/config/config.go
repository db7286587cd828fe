package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wpdl/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	DownloadDir    string   `toml:"download_dir"`
	ListenAddr     string   `toml:"listen_addr"`
	GinMode        string   `toml:"gin_mode"`
	Scan           Scan     `toml:"scan"`
	Download       Download `toml:"download"`
	Proxy          Proxy    `toml:"proxy"`
}

// Scan holds history scan tuning.
type Scan struct {
	PageSize             int  `toml:"page_size"`
	PageDelayMs          int  `toml:"page_delay_ms"`
	DefaultCap           int  `toml:"default_cap"`
	UnlimitedWithFilters bool `toml:"unlimited_with_filters"`
	GroupWindow          int  `toml:"group_window"`
}

// PageDelay returns the courtesy delay between page fetches.
func (s Scan) PageDelay() time.Duration {
	return time.Duration(s.PageDelayMs) * time.Millisecond
}

// Download holds download tracker tuning.
type Download struct {
	SampleIntervalMs int `toml:"sample_interval_ms"`
}

// SampleInterval returns the minimum time between two speed samples.
func (d Download) SampleInterval() time.Duration {
	return time.Duration(d.SampleIntervalMs) * time.Millisecond
}

// Proxy configures the provider connection proxy.
type Proxy struct {
	Enabled  bool   `toml:"enabled"`
	Type     string `toml:"type"` // socks5, http
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DownloadDir: filepath.Join(home, "Downloads", "wpdl"),
		ListenAddr:  "127.0.0.1:3001",
		GinMode:     "release",
		Scan: Scan{
			PageSize:             50,
			PageDelayMs:          300,
			DefaultCap:           100,
			UnlimitedWithFilters: true,
			GroupWindow:          10,
		},
		Download: Download{SampleIntervalMs: 800},
		Proxy:    Proxy{Type: "socks5", Host: "127.0.0.1", Port: 1080},
	}
}

// Load reads config from the given path on top of Default. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Scan.PageSize <= 0 || c.Scan.PageSize > 100 {
		return fmt.Errorf("scan.page_size must be in 1..100, got %d", c.Scan.PageSize)
	}
	if c.Scan.PageDelayMs < 0 {
		return fmt.Errorf("scan.page_delay_ms must not be negative")
	}
	if c.Scan.DefaultCap < 0 {
		return fmt.Errorf("scan.default_cap must not be negative")
	}
	if c.Scan.GroupWindow < 1 {
		return fmt.Errorf("scan.group_window must be positive")
	}
	if c.Download.SampleIntervalMs <= 0 {
		return fmt.Errorf("download.sample_interval_ms must be positive")
	}
	if c.DownloadDir == "" || !filepath.IsAbs(c.DownloadDir) {
		return fmt.Errorf("download_dir must be an absolute path, got %q", c.DownloadDir)
	}
	switch c.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("gin_mode must be debug, release or test, got %q", c.GinMode)
	}
	if c.Proxy.Enabled {
		if err := c.Proxy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks an enabled proxy definition.
func (p Proxy) Validate() error {
	switch p.Type {
	case "socks5", "http":
	case "mtproto":
		return fmt.Errorf("proxy type mtproto is not supported")
	default:
		return fmt.Errorf("unknown proxy type %q", p.Type)
	}
	if p.Host == "" {
		return fmt.Errorf("proxy host is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("invalid proxy port %d", p.Port)
	}
	return nil
}
