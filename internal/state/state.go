// Package state persists the small key-value facts the cache engine needs
// between process launches.
package state

import (
	"fmt"

	"github.com/adamancini/webbundle/internal/types"
)

// Store is a durable string key-value store.
// Each key is written independently; rewriting the same value is harmless.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Keys() ([]string, error)
}

// Versions reads and writes the installed and last-launched version facts.
type Versions struct {
	store Store
}

// NewVersions wraps a store.
func NewVersions(store Store) *Versions {
	return &Versions{store: store}
}

// Get returns the value for key, or "" if it was never set.
func (v *Versions) Get(key types.StateKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	value, _, err := v.store.Get(key.String())
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (v *Versions) Set(key types.StateKey, value string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := v.store.Set(key.String(), value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Installed returns the version the bundle directory currently holds.
func (v *Versions) Installed() (string, error) {
	return v.Get(types.KeyInstalledVersion)
}

// SetInstalled records a successful install.
func (v *Versions) SetInstalled(version string) error {
	return v.Set(types.KeyInstalledVersion, version)
}

// LastLaunched returns the version that was installed when the previous process started.
func (v *Versions) LastLaunched() (string, error) {
	return v.Get(types.KeyLastLaunchedVersion)
}

// SetLastLaunched records the version this launch runs.
func (v *Versions) SetLastLaunched(version string) error {
	return v.Set(types.KeyLastLaunchedVersion, version)
}

// Snapshot is a point-in-time view of both version facts.
type Snapshot struct {
	Installed    string `json:"installed_version" yaml:"installed_version"`
	LastLaunched string `json:"last_launched_version" yaml:"last_launched_version"`
}

// Snapshot reads both facts.
func (v *Versions) Snapshot() (Snapshot, error) {
	installed, err := v.Installed()
	if err != nil {
		return Snapshot{}, err
	}
	lastLaunched, err := v.LastLaunched()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Installed: installed, LastLaunched: lastLaunched}, nil
}

// Reset deletes every version fact and returns the ones that were set.
// Keys the store holds that are not version facts are left alone.
func (v *Versions) Reset() ([]types.StateKey, error) {
	stored, err := v.store.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}

	present := make(map[types.StateKey]bool, len(stored))
	for _, name := range stored {
		if key, err := types.ParseStateKey(name); err == nil {
			present[key] = true
		}
	}

	var cleared []types.StateKey
	for _, key := range types.AllStateKeys() {
		if !present[key] {
			continue
		}
		if err := v.store.Delete(key.String()); err != nil {
			return cleared, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		cleared = append(cleared, key)
	}
	return cleared, nil
}
