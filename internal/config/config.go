// Package config handles webbundle config file discovery, parsing and
// validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Environment variables consulted during discovery.
const (
	EnvConfig      = "WEBBUNDLE_CONFIG"
	EnvManifestURL = "WEBBUNDLE_MANIFEST_URL"
)

// Defaults for optional fields.
const (
	DefaultBundleName      = "CachedWebApp"
	DefaultEntryFile       = "index.html"
	DefaultCheckInterval   = 10 * time.Minute
	DefaultLaunchTimeout   = 3 * time.Second
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultMaxArchiveBytes = 512 << 20
	DefaultMaxFiles        = 10000

	// MinCheckInterval keeps a misconfigured interval from hammering the origin.
	MinCheckInterval = time.Second

	stateFileName = "state.json"
)

// ErrNotFound is returned by FindConfig when no config file exists in the
// standard locations.
var ErrNotFound = errors.New("no webbundle config file found in standard locations")

// Config is the host app's metadata for the content cache.
type Config struct {
	ManifestURL     string
	DataDir         string
	BundleName      string
	EntryFile       string
	CheckInterval   time.Duration
	LaunchTimeout   time.Duration
	DownloadTimeout time.Duration
	Headers         map[string]string
	MaxArchiveBytes int64
	MaxFiles        int

	// Path is the file the config was read from, empty when it came from
	// the environment alone.
	Path string
}

// StateFile is where persisted version facts live.
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, stateFileName)
}

// ConfigError is a fatal configuration problem.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FindConfig searches for a config file in the standard locations.
// Returns the path to the first file found, or ErrNotFound.
func FindConfig(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(EnvConfig); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	searchPaths := []string{
		filepath.Join(xdgConfig, "webbundle"),
		filepath.Join(home, ".webbundle"),
	}

	fileNames := []string{
		"webbundle.yaml",
		"webbundle.yml",
		"webbundle.toml",
		"webbundle.json",
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}

// DefaultPath is where `webbundle init` writes a new config file.
func DefaultPath() (string, error) {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "webbundle", "webbundle.yaml"), nil
}

// Load reads, parses and validates the config file at path. Environment
// overrides and defaults are applied before validation. Every error is a
// *ConfigError.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	return LoadBytes(path, content)
}

// LoadBytes is Load for content already in memory; path only selects the
// format and labels errors.
func LoadBytes(path string, content []byte) (*Config, error) {
	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("unable to detect file format")}
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg.Path = path

	return finish(cfg)
}

// Resolve finds and loads the config the way the CLI does. With no file
// anywhere, WEBBUNDLE_MANIFEST_URL alone is enough.
func Resolve(explicitPath string) (*Config, error) {
	path, err := FindConfig(explicitPath)
	switch {
	case err == nil:
		return Load(path)
	case errors.Is(err, ErrNotFound) && os.Getenv(EnvManifestURL) != "":
		return finish(&Config{})
	default:
		return nil, &ConfigError{Path: explicitPath, Err: err}
	}
}

func finish(cfg *Config) (*Config, error) {
	if url := os.Getenv(EnvManifestURL); url != "" {
		cfg.ManifestURL = url
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, &ConfigError{Path: cfg.Path, Err: err}
	}

	if err := Validate(cfg); err != nil {
		return nil, &ConfigError{Path: cfg.Path, Err: err}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	if c.BundleName == "" {
		c.BundleName = DefaultBundleName
	}
	if c.EntryFile == "" {
		c.EntryFile = DefaultEntryFile
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.LaunchTimeout == 0 {
		c.LaunchTimeout = DefaultLaunchTimeout
	}
	if c.DownloadTimeout == 0 {
		c.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.MaxArchiveBytes == 0 {
		c.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if c.MaxFiles == 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	return nil
}

func defaultDataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "webbundle"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "webbundle"), nil
}
