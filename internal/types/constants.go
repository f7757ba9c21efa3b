// Package types provides type-safe constants for the webbundle cache engine.
//
// This package centralizes the enumerated values shared between the engine,
// the state store and the CLI, replacing magic strings with typed constants
// that provide compile-time safety and validation methods.
package types

import (
	"fmt"
	"slices"
	"strings"
)

// StateKey names one of the persisted version facts.
type StateKey string

const (
	// KeyInstalledVersion is the version currently represented by the bundle directory.
	KeyInstalledVersion StateKey = "installed_version"
	// KeyLastLaunchedVersion is the installed version at the moment the previous process started.
	KeyLastLaunchedVersion StateKey = "last_launched_version"
)

// AllStateKeys returns all valid state keys.
func AllStateKeys() []StateKey {
	return []StateKey{KeyInstalledVersion, KeyLastLaunchedVersion}
}

// Validate checks if the StateKey is a valid value.
func (k StateKey) Validate() error {
	switch k {
	case KeyInstalledVersion, KeyLastLaunchedVersion:
		return nil
	case "":
		return fmt.Errorf("state key is required")
	default:
		return fmt.Errorf("invalid state key '%s' (must be installed_version or last_launched_version)", k)
	}
}

// String returns the string representation of the StateKey.
func (k StateKey) String() string {
	return string(k)
}

// ParseStateKey parses a string into a StateKey.
// Returns an error if the string is not a valid state key.
func ParseStateKey(s string) (StateKey, error) {
	key := StateKey(strings.ToLower(s))
	if err := key.Validate(); err != nil {
		return "", err
	}
	return key, nil
}

// LaunchState is a step of the launch-time resolution.
type LaunchState string

const (
	// LaunchIdle is the state before resolution starts.
	LaunchIdle LaunchState = "idle"
	// LaunchCheckingManifest means the remote manifest is being fetched.
	LaunchCheckingManifest LaunchState = "checking_manifest"
	// LaunchUpToDate means the remote version matches the installed one.
	LaunchUpToDate LaunchState = "up_to_date"
	// LaunchInstalling means a newer bundle is being installed.
	LaunchInstalling LaunchState = "installing"
	// LaunchResolved is terminal: a local path (or none) has been chosen.
	LaunchResolved LaunchState = "resolved"
)

// AllLaunchStates returns all launch states in transition order.
func AllLaunchStates() []LaunchState {
	return []LaunchState{LaunchIdle, LaunchCheckingManifest, LaunchUpToDate, LaunchInstalling, LaunchResolved}
}

// Validate checks if the LaunchState is a valid value.
func (s LaunchState) Validate() error {
	if s == "" {
		return fmt.Errorf("launch state is required")
	}
	if !slices.Contains(AllLaunchStates(), s) {
		return fmt.Errorf("invalid launch state '%s'", s)
	}
	return nil
}

// String returns the string representation of the LaunchState.
func (s LaunchState) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition follows.
func (s LaunchState) IsTerminal() bool {
	return s == LaunchResolved
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s LaunchState) CanTransitionTo(next LaunchState) bool {
	switch s {
	case LaunchIdle:
		return next == LaunchCheckingManifest
	case LaunchCheckingManifest:
		return next == LaunchUpToDate || next == LaunchInstalling || next == LaunchResolved
	case LaunchUpToDate, LaunchInstalling:
		return next == LaunchResolved
	default:
		return false
	}
}

// CheckOutcome summarizes a single fetch/compare/install pass.
type CheckOutcome string

const (
	// OutcomeInstalled means a new version was installed by this pass.
	OutcomeInstalled CheckOutcome = "installed"
	// OutcomeUpToDate means the remote version matches the installed one.
	OutcomeUpToDate CheckOutcome = "up-to-date"
	// OutcomeSkipped means the pass was dropped because another was in flight.
	OutcomeSkipped CheckOutcome = "skipped"
	// OutcomeFailed means the manifest could not be fetched or the install failed.
	OutcomeFailed CheckOutcome = "failed"
)

// String returns the string representation of the CheckOutcome.
func (o CheckOutcome) String() string {
	return string(o)
}

// Changed returns true if the pass changed the bundle on disk.
func (o CheckOutcome) Changed() bool {
	return o == OutcomeInstalled
}
