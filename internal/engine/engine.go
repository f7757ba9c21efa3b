// Package engine decides which bundle version is live, checks the remote
// origin for a newer one and installs it, from both the launch path and a
// recurring background timer.
//
// At most one install runs at a time, also across processes sharing a
// data dir when the installer implements update.Locker. A caller that
// arrives while an install is in flight waits for it and then re-reads the
// installed version instead of starting a second install.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/adamancini/webbundle/internal/notify"
	"github.com/adamancini/webbundle/internal/state"
	"github.com/adamancini/webbundle/internal/types"
	"github.com/adamancini/webbundle/internal/update"
)

const (
	// DefaultLaunchTimeout bounds the launch-time manifest fetch.
	DefaultLaunchTimeout = 3 * time.Second
	// DefaultInstallTimeout bounds a launch-time install.
	DefaultInstallTimeout = 5 * time.Minute
)

// recoverer is implemented by installers that can repair an interrupted install.
type recoverer interface {
	Recover() error
}

// Options are the collaborators and limits of an Engine.
type Options struct {
	Fetcher   update.Fetcher   // Required
	Installer update.Installer // Required
	Store     state.Store      // Required
	Notifier  *notify.Notifier // Defaults to an inline notifier
	Logger    *slog.Logger     // Defaults to discarding

	LaunchTimeout  time.Duration
	InstallTimeout time.Duration

	// SkipRecover leaves the bundle directory as found, for read-only callers.
	SkipRecover bool
}

// Engine is the versioned content cache.
type Engine struct {
	fetcher   update.Fetcher
	installer update.Installer
	versions  *state.Versions
	notifier  *notify.Notifier
	logger    *slog.Logger

	launchTimeout  time.Duration
	installTimeout time.Duration

	installMu sync.Mutex
	flights   singleflight.Group

	now func() time.Time
}

// New creates an engine and repairs any install a previous process left
// unfinished.
func New(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("engine: fetcher is required")
	}
	if opts.Installer == nil {
		return nil, fmt.Errorf("engine: installer is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}

	e := &Engine{
		fetcher:        opts.Fetcher,
		installer:      opts.Installer,
		versions:       state.NewVersions(opts.Store),
		notifier:       opts.Notifier,
		logger:         opts.Logger,
		launchTimeout:  opts.LaunchTimeout,
		installTimeout: opts.InstallTimeout,
		now:            time.Now,
	}
	if e.notifier == nil {
		e.notifier = notify.New(nil)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.launchTimeout <= 0 {
		e.launchTimeout = DefaultLaunchTimeout
	}
	if e.installTimeout <= 0 {
		e.installTimeout = DefaultInstallTimeout
	}

	if r, ok := opts.Installer.(recoverer); ok && !opts.SkipRecover {
		if err := r.Recover(); err != nil {
			return nil, fmt.Errorf("engine: failed to recover bundle directory: %w", err)
		}
	}

	return e, nil
}

// Versions exposes the persisted version facts.
func (e *Engine) Versions() *state.Versions {
	return e.versions
}

// Notifier returns the notifier background installs are reported to.
func (e *Engine) Notifier() *notify.Notifier {
	return e.notifier
}

// LocalIndexPath returns the live entry file, if any bundle is installed.
func (e *Engine) LocalIndexPath() (string, bool) {
	return e.installer.EntryPath()
}

// installedVersion returns the stored installed version, or "" when the
// bundle it names is missing from disk so that the next check reinstalls it.
func (e *Engine) installedVersion() (string, error) {
	installed, err := e.versions.Installed()
	if err != nil {
		return "", err
	}
	if installed == "" {
		return "", nil
	}
	if _, ok := e.installer.EntryPath(); !ok {
		e.logger.Warn("installed bundle missing from disk, will reinstall", "version", installed)
		return "", nil
	}
	return installed, nil
}

// lockShared takes the installer's cross-process lock, if it has one.
// Callers hold installMu, so a process never takes it twice.
func (e *Engine) lockShared(ctx context.Context) (unlock func(), err error) {
	l, ok := e.installer.(update.Locker)
	if !ok {
		return func() {}, nil
	}
	unlock, err = l.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock bundle directory: %w", err)
	}
	return unlock, nil
}

// Reset forgets every stored version fact and returns the keys it cleared.
// The bundle on disk stays live until the next check installs the
// origin's version over it.
func (e *Engine) Reset(ctx context.Context) ([]types.StateKey, error) {
	e.installMu.Lock()
	defer e.installMu.Unlock()

	unlock, err := e.lockShared(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cleared, err := e.versions.Reset()
	if err != nil {
		return cleared, err
	}
	e.logger.Info("version state reset", "keys", cleared)
	return cleared, nil
}

// installOutcome is what one install attempt produced.
type installOutcome struct {
	installed bool   // this caller ran an install that succeeded
	previous  string // installed version before the attempt
	result    *update.InstallResult
}

// install brings manifest's version onto disk unless it is already there.
// Concurrent callers for the same version share one attempt; callers for
// different versions are serialized by installMu and re-read the installed
// version once they hold it.
func (e *Engine) install(ctx context.Context, manifest *update.Manifest) (installOutcome, error) {
	ran := false
	v, err, _ := e.flights.Do(manifest.Version, func() (interface{}, error) {
		ran = true

		e.installMu.Lock()
		defer e.installMu.Unlock()

		unlock, err := e.lockShared(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()

		// Another process may have installed while this one waited
		installed, err := e.installedVersion()
		if err != nil {
			return nil, err
		}
		if installed == manifest.Version {
			return installOutcome{previous: installed}, nil
		}

		e.logger.Info("installing bundle", "version", manifest.Version, "previous", installed, "archive", manifest.Archive)

		result, err := e.installer.Install(ctx, manifest.Archive)
		if err != nil {
			return nil, err
		}

		// The bundle is live; a failure here only means the next check reinstalls it.
		if err := e.versions.SetInstalled(manifest.Version); err != nil {
			return nil, err
		}

		e.logger.Info("bundle installed", "version", manifest.Version, "files", result.Files, "bytes", result.Bytes)
		return installOutcome{installed: true, previous: installed, result: result}, nil
	})
	if err != nil {
		return installOutcome{}, err
	}

	out := v.(installOutcome)
	if !ran {
		// Another caller ran the install; this one only observes its result.
		out.installed = false
	}
	return out, nil
}
