package update

import (
	"context"
	"fmt"
	"net/url"
)

// Manifest is the remote descriptor of the latest available bundle.
type Manifest struct {
	Version string `json:"version" yaml:"version"` // Opaque version identifier
	Archive string `json:"archive" yaml:"archive"` // Absolute URL of the zip archive
}

// Validate checks that both fields are present and the archive URL is usable.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("manifest version is required")
	}
	if m.Archive == "" {
		return fmt.Errorf("manifest archive is required")
	}
	u, err := url.Parse(m.Archive)
	if err != nil {
		return fmt.Errorf("invalid archive URL: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("archive URL must be an absolute http(s) URL: %s", m.Archive)
	}
	return nil
}

// InstallResult describes a bundle that was made live.
type InstallResult struct {
	Path      string `json:"path" yaml:"path"`             // Bundle directory
	EntryPath string `json:"entry_path" yaml:"entry_path"` // Entry file inside the bundle
	Files     int    `json:"files" yaml:"files"`           // Regular files unpacked
	Bytes     int64  `json:"bytes" yaml:"bytes"`           // Uncompressed bytes unpacked
}

// Fetcher retrieves the remote manifest
type Fetcher interface {
	Fetch(ctx context.Context) (*Manifest, error)
}

// Downloader downloads archives to a local file
type Downloader interface {
	Download(ctx context.Context, url string, dst string) error
}

// Installer makes a downloaded bundle the live one
type Installer interface {
	Install(ctx context.Context, archiveURL string) (*InstallResult, error)
	EntryPath() (string, bool)
}

// Locker is implemented by installers whose directory other processes may
// share. The engine holds the lock across an install and its state write.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}
