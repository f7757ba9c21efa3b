package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the file format of a config file.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// Content sniffing for extensionless files
	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	// TOML uses key = value, YAML uses key: value. The first meaningful
	// line decides.
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			return FormatTOML
		}
		eq := strings.Index(line, "=")
		colon := strings.Index(line, ":")
		switch {
		case eq >= 0 && (colon < 0 || eq < colon):
			return FormatTOML
		case colon >= 0:
			return FormatYAML
		}
	}

	return FormatUnknown
}

// rawConfig is the on-disk shape. Durations are strings in every format.
type rawConfig struct {
	ManifestURL     string            `yaml:"manifest_url" toml:"manifest_url" json:"manifest_url"`
	DataDir         string            `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	BundleName      string            `yaml:"bundle_name" toml:"bundle_name" json:"bundle_name"`
	EntryFile       string            `yaml:"entry_file" toml:"entry_file" json:"entry_file"`
	CheckInterval   string            `yaml:"check_interval" toml:"check_interval" json:"check_interval"`
	LaunchTimeout   string            `yaml:"launch_timeout" toml:"launch_timeout" json:"launch_timeout"`
	DownloadTimeout string            `yaml:"download_timeout" toml:"download_timeout" json:"download_timeout"`
	Headers         map[string]string `yaml:"headers" toml:"headers" json:"headers"`
	MaxArchiveBytes int64             `yaml:"max_archive_bytes" toml:"max_archive_bytes" json:"max_archive_bytes"`
	MaxFiles        int               `yaml:"max_files" toml:"max_files" json:"max_files"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
func expandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// parse parses the content according to the specified format.
func parse(content []byte, format Format) (*Config, error) {
	content = expandEnvVars(content)

	var raw rawConfig

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	cfg := &Config{
		ManifestURL:     raw.ManifestURL,
		DataDir:         raw.DataDir,
		BundleName:      raw.BundleName,
		EntryFile:       raw.EntryFile,
		Headers:         raw.Headers,
		MaxArchiveBytes: raw.MaxArchiveBytes,
		MaxFiles:        raw.MaxFiles,
	}

	var errs ValidationErrors
	for _, d := range []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"check_interval", raw.CheckInterval, &cfg.CheckInterval},
		{"launch_timeout", raw.LaunchTimeout, &cfg.LaunchTimeout},
		{"download_timeout", raw.DownloadTimeout, &cfg.DownloadTimeout},
	} {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration %q", d.value)})
			continue
		}
		*d.dst = v
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return cfg, nil
}
