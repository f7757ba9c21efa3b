package engine

import (
	"context"
	"fmt"

	"github.com/adamancini/webbundle/internal/types"
	"github.com/adamancini/webbundle/internal/update"
)

// LaunchResult is what Resolve hands to the renderer.
type LaunchResult struct {
	// Path is the entry file to load, or "" when no bundle is installed.
	Path string `json:"path" yaml:"path"`
	// Version is the installed version after resolution.
	Version string `json:"version" yaml:"version"`
	// PreviousLaunchVersion is the version the previous process ran.
	PreviousLaunchVersion string `json:"previous_launch_version" yaml:"previous_launch_version"`
	// ContentChanged reports that the installed bundle differs from the one
	// the user last launched. Informational only.
	ContentChanged bool `json:"content_changed" yaml:"content_changed"`

	State   types.LaunchState   `json:"state" yaml:"state"`
	Trace   []types.LaunchState `json:"trace" yaml:"trace"`
	Outcome types.CheckOutcome  `json:"outcome" yaml:"outcome"`
	Error   string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// String implements fmt.Stringer for text output.
func (r *LaunchResult) String() string {
	if r.Path == "" {
		return "no bundle installed"
	}
	return r.Path
}

// advance moves r to next. An illegal step leaves r unchanged.
func (r *LaunchResult) advance(next types.LaunchState) error {
	if r.State.IsTerminal() {
		return fmt.Errorf("launch already %s, cannot move to %s", r.State, next)
	}
	if !r.State.CanTransitionTo(next) {
		return fmt.Errorf("illegal launch transition %s -> %s", r.State, next)
	}
	r.State = next
	r.Trace = append(r.Trace, next)
	return nil
}

func (e *Engine) advance(r *LaunchResult, next types.LaunchState) {
	if err := r.advance(next); err != nil {
		e.logger.Error("launch state not advanced", "error", err)
	}
}

// Resolve runs the launch-time check and returns the local path to load.
// It never fails: an unreachable origin, a slow one, or a failed install
// all resolve to whatever is already on disk.
func (e *Engine) Resolve(ctx context.Context) *LaunchResult {
	r := &LaunchResult{State: types.LaunchIdle, Trace: []types.LaunchState{types.LaunchIdle}}

	stored, err := e.versions.Installed()
	if err != nil {
		e.logger.Warn("failed to read installed version", "error", err)
	}
	lastLaunched, err := e.versions.LastLaunched()
	if err != nil {
		e.logger.Warn("failed to read last launched version", "error", err)
	}

	// Compare before overwriting: this is the only place the previous
	// launch's version is observable.
	r.PreviousLaunchVersion = lastLaunched
	r.ContentChanged = stored != "" && stored != lastLaunched
	if r.ContentChanged {
		if err := e.versions.SetLastLaunched(stored); err != nil {
			e.logger.Warn("failed to record launched version", "error", err)
		}
	}

	installed, err := e.installedVersion()
	if err != nil {
		e.logger.Warn("failed to read installed version", "error", err)
	}

	e.advance(r, types.LaunchCheckingManifest)

	fetchCtx, cancel := context.WithTimeout(ctx, e.launchTimeout)
	manifest, err := e.fetcher.Fetch(fetchCtx)
	cancel()
	if err != nil {
		e.logger.Warn("manifest unavailable, using installed bundle", "kind", update.Kind(err), "error", err)
		return e.resolveFailed(r, installed, err)
	}

	if manifest.Version == installed {
		e.advance(r, types.LaunchUpToDate)
		r.Outcome = types.OutcomeUpToDate
		return e.resolved(r, installed)
	}

	e.advance(r, types.LaunchInstalling)

	installCtx, cancel := context.WithTimeout(ctx, e.installTimeout)
	out, err := e.install(installCtx, manifest)
	cancel()
	if err != nil {
		e.logger.Warn("launch install failed, using installed bundle", "version", manifest.Version, "kind", update.Kind(err), "error", err)
		return e.resolveFailed(r, installed, err)
	}

	if err := e.versions.SetLastLaunched(manifest.Version); err != nil {
		e.logger.Warn("failed to record launched version", "error", err)
	}

	r.Outcome = types.OutcomeUpToDate
	if out.installed {
		r.Outcome = types.OutcomeInstalled
	}
	return e.resolved(r, manifest.Version)
}

func (e *Engine) resolveFailed(r *LaunchResult, installed string, err error) *LaunchResult {
	r.Outcome = types.OutcomeFailed
	r.Error = fmt.Sprintf("%s: %v", update.Kind(err), err)
	return e.resolved(r, installed)
}

func (e *Engine) resolved(r *LaunchResult, version string) *LaunchResult {
	e.advance(r, types.LaunchResolved)
	r.Version = version
	if path, ok := e.installer.EntryPath(); ok {
		r.Path = path
	}

	e.logger.Debug("launch resolved", "path", r.Path, "version", r.Version, "outcome", r.Outcome, "content_changed", r.ContentChanged)
	return r
}
