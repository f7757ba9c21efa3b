package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the config for required fields and valid values.
func Validate(c *Config) error {
	var errs ValidationErrors

	if err := validateManifestURL(c.ManifestURL); err != nil {
		errs = append(errs, *err)
	}

	if c.DataDir == "" {
		errs = append(errs, ValidationError{Field: "data_dir", Message: "data_dir is required"})
	}

	if err := validateBundleName(c.BundleName); err != nil {
		errs = append(errs, *err)
	}

	if !filepath.IsLocal(c.EntryFile) {
		errs = append(errs, ValidationError{
			Field:   "entry_file",
			Message: fmt.Sprintf("entry file %q must be a relative path inside the bundle", c.EntryFile),
		})
	}

	if c.CheckInterval < MinCheckInterval {
		errs = append(errs, ValidationError{
			Field:   "check_interval",
			Message: fmt.Sprintf("must be at least %s", MinCheckInterval),
		})
	}
	if c.LaunchTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "launch_timeout", Message: "must be positive"})
	}
	if c.DownloadTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "download_timeout", Message: "must be positive"})
	}
	if c.MaxArchiveBytes <= 0 {
		errs = append(errs, ValidationError{Field: "max_archive_bytes", Message: "must be positive"})
	}
	if c.MaxFiles <= 0 {
		errs = append(errs, ValidationError{Field: "max_files", Message: "must be positive"})
	}

	for name := range c.Headers {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " :\r\n") {
			errs = append(errs, ValidationError{
				Field:   "headers",
				Message: fmt.Sprintf("invalid header name %q", name),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateManifestURL(raw string) *ValidationError {
	if raw == "" {
		return &ValidationError{Field: "manifest_url", Message: "manifest_url is required"}
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{
			Field:   "manifest_url",
			Message: fmt.Sprintf("%q is not an absolute http(s) URL", raw),
		}
	}
	return nil
}

// validateBundleName rejects names that would escape the data directory or
// collide with the hidden staging area.
func validateBundleName(name string) *ValidationError {
	switch {
	case name == "":
		return &ValidationError{Field: "bundle_name", Message: "bundle_name is required"}
	case strings.HasPrefix(name, "."), strings.ContainsAny(name, `/\`):
		return &ValidationError{
			Field:   "bundle_name",
			Message: fmt.Sprintf("invalid bundle name %q", name),
		}
	}
	return nil
}
