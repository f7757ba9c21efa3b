package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// DefaultMaxArchiveBytes is the default cap on a downloaded archive.
const DefaultMaxArchiveBytes int64 = 512 << 20

var errTooLarge = errors.New("archive exceeds size limit")

// HTTPDownloader downloads archives over HTTP
type HTTPDownloader struct {
	client   *http.Client
	headers  map[string]string
	maxBytes int64
}

// NewHTTPDownloader creates a new HTTP downloader
func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{
		client:   &http.Client{},
		maxBytes: DefaultMaxArchiveBytes,
	}
}

// WithHeaders sets extra request headers sent with every download
func (d *HTTPDownloader) WithHeaders(headers map[string]string) *HTTPDownloader {
	d.headers = headers
	return d
}

// WithClient replaces the HTTP client
func (d *HTTPDownloader) WithClient(client *http.Client) *HTTPDownloader {
	d.client = client
	return d
}

// WithMaxBytes caps the archive size; zero or less keeps the default
func (d *HTTPDownloader) WithMaxBytes(n int64) *HTTPDownloader {
	if n > 0 {
		d.maxBytes = n
	}
	return d
}

// Download streams url into dst. On failure dst does not exist.
func (d *HTTPDownloader) Download(ctx context.Context, url string, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if resp.ContentLength > d.maxBytes {
		return fmt.Errorf("%w (%d > %d bytes)", errTooLarge, resp.ContentLength, d.maxBytes)
	}

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}

	// Read one byte past the limit to tell "exactly at limit" from "over".
	n, err := io.Copy(out, io.LimitReader(resp.Body, d.maxBytes+1))
	if err == nil && n > d.maxBytes {
		err = fmt.Errorf("%w (%d bytes)", errTooLarge, d.maxBytes)
	}
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst) // Clean up partial download
		return fmt.Errorf("failed to write download: %w", err)
	}

	return nil
}
