package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configurable values for the server. The well-known
// directories are explicit here, not ambient globals, so tests can inject
// temporary directories.
type Config struct {
	DownloadsDir        string `toml:"downloads_dir"`
	DocumentsDir        string `toml:"documents_dir"`
	Transport           string `toml:"transport"`
	Port                int    `toml:"port"`
	MaxArchiveSizeMB    int    `toml:"max_archive_size_mb"`
	MaxArchiveEntries   int    `toml:"max_archive_entries"`
	OperationTimeoutSec int    `toml:"operation_timeout_sec"`
	LockTimeoutSec      int    `toml:"lock_timeout_sec"`
	RateLimitPerSec     int    `toml:"rate_limit_per_sec"`
	RateLimitBurst      int    `toml:"rate_limit_burst"`
}

// Default returns a Config populated with defaults relative to the invoking
// user's home directory.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DownloadsDir:        filepath.Join(home, "Downloads"),
		DocumentsDir:        filepath.Join(home, "Documents"),
		Transport:           "stdio",
		Port:                8080,
		MaxArchiveSizeMB:    500,
		MaxArchiveEntries:   10000,
		OperationTimeoutSec: 30,
		LockTimeoutSec:      10,
		RateLimitPerSec:     50,
		RateLimitBurst:      100,
	}
}

// LoadFile merges values from a TOML config file into the Config. Fields
// absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return nil
}

// ParseFlags parses the command-line flags on top of the defaults and an
// optional config file. Flags win over file values.
func ParseFlags() (*Config, error) {
	cfg := Default()

	configFile := flag.String("config", "", "Path to optional TOML config file")
	downloads := flag.String("downloads", "", "Downloads directory (defaults to ~/Downloads)")
	documents := flag.String("documents", "", "Documents directory (defaults to ~/Documents)")
	transport := flag.String("transport", "", "Transport protocol (stdio or http)")
	port := flag.Int("port", 0, "Port for HTTP transport")
	maxArchiveSize := flag.Int("max-archive-size", 0, "Maximum archive size in MB")
	timeout := flag.Int("timeout", 0, "Operation timeout in seconds")

	flag.Parse()

	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			return nil, err
		}
	}
	if *downloads != "" {
		cfg.DownloadsDir = *downloads
	}
	if *documents != "" {
		cfg.DocumentsDir = *documents
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *maxArchiveSize != 0 {
		cfg.MaxArchiveSizeMB = *maxArchiveSize
	}
	if *timeout != 0 {
		cfg.OperationTimeoutSec = *timeout
	}
	return cfg, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	for _, dir := range []string{c.DownloadsDir, c.DocumentsDir} {
		if dir == "" {
			return fmt.Errorf("downloads and documents directories are required")
		}
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("directory does not exist: %s", dir)
			}
			return fmt.Errorf("error accessing directory %s: %v", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("path is not a directory: %s", dir)
		}
	}

	if c.Transport != "stdio" && c.Transport != "http" {
		return fmt.Errorf("transport must be 'stdio' or 'http'")
	}
	if c.Transport == "http" && (c.Port < 1024 || c.Port > 65535) {
		return fmt.Errorf("port must be between 1024 and 65535")
	}
	if c.MaxArchiveSizeMB < 1 || c.MaxArchiveSizeMB > 10000 {
		return fmt.Errorf("max archive size must be between 1 and 10000 MB")
	}
	if c.MaxArchiveEntries < 1 || c.MaxArchiveEntries > 1000000 {
		return fmt.Errorf("max archive entries must be between 1 and 1000000")
	}
	if c.OperationTimeoutSec < 1 || c.OperationTimeoutSec > 300 {
		return fmt.Errorf("operation timeout must be between 1 and 300 seconds")
	}
	if c.LockTimeoutSec < 1 || c.LockTimeoutSec > 300 {
		return fmt.Errorf("lock timeout must be between 1 and 300 seconds")
	}
	if c.RateLimitPerSec < 1 || c.RateLimitBurst < c.RateLimitPerSec {
		return fmt.Errorf("rate limit must be at least 1 with burst >= limit")
	}
	return nil
}
