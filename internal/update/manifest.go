package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxManifestBytes caps the manifest body; the document has two short fields.
const maxManifestBytes = 1 << 20

// ManifestFetcher fetches the manifest over HTTP(S).
// Every call is a fresh round trip; nothing is cached or retried.
type ManifestFetcher struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewManifestFetcher creates a fetcher for the given manifest URL
func NewManifestFetcher(manifestURL string) *ManifestFetcher {
	return &ManifestFetcher{
		url: manifestURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHeaders sets extra request headers sent with every fetch
func (f *ManifestFetcher) WithHeaders(headers map[string]string) *ManifestFetcher {
	f.headers = headers
	return f
}

// WithClient replaces the HTTP client
func (f *ManifestFetcher) WithClient(client *http.Client) *ManifestFetcher {
	f.client = client
	return f
}

// URL returns the manifest URL
func (f *ManifestFetcher) URL() string {
	return f.url
}

// Fetch retrieves and decodes the manifest. Any failure is a *FetchError.
func (f *ManifestFetcher) Fetch(ctx context.Context) (*Manifest, error) {
	manifest, err := f.fetch(ctx)
	if err != nil {
		return nil, &FetchError{URL: f.url, Err: err}
	}
	return manifest, nil
}

func (f *ManifestFetcher) fetch(ctx context.Context) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(body) > maxManifestBytes {
		return nil, fmt.Errorf("manifest exceeds %d bytes", maxManifestBytes)
	}

	// Unmarshal rejects anything after the object, unlike a streaming decoder
	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return &manifest, nil
}
