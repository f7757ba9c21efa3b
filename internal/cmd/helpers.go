package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/adamancini/webbundle/internal/config"
	"github.com/adamancini/webbundle/internal/engine"
	"github.com/adamancini/webbundle/internal/notify"
	"github.com/adamancini/webbundle/internal/output"
	"github.com/adamancini/webbundle/internal/state"
	"github.com/adamancini/webbundle/internal/update"
)

// loadConfig finds and loads the config named by --config or the standard
// locations. The returned error is a *config.ConfigError.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}

	if cfg.Path != "" {
		logger.Debug("using config file", "path", cfg.Path)
	} else {
		logger.Debug("using configuration from environment", "env", config.EnvManifestURL)
	}
	return cfg, nil
}

// newLogger returns a text logger on w at the level the global flags ask for.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newWriter returns an output writer for cmd's stdout in the --output format.
func newWriter(cmd *cobra.Command) (*output.Writer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewWriter(cmd.OutOrStdout(), format), nil
}

// components are the collaborators buildEngine wires together.
type components struct {
	engine    *engine.Engine
	installer *update.BundleInstaller
	store     *state.FileStore
	fetcher   *update.ManifestFetcher
}

// buildEngine wires the engine described by cfg. base carries the
// caller's notifier and recovery choice; the rest comes from cfg.
func buildEngine(cfg *config.Config, logger *slog.Logger, base engine.Options) (*components, error) {
	fetcher := update.NewManifestFetcher(cfg.ManifestURL).
		WithHeaders(cfg.Headers)

	downloader := update.NewHTTPDownloader().
		WithClient(&http.Client{Timeout: cfg.DownloadTimeout}).
		WithHeaders(cfg.Headers).
		WithMaxBytes(cfg.MaxArchiveBytes)

	installer := update.NewBundleInstaller(cfg.DataDir, cfg.BundleName, downloader).
		WithEntryFile(cfg.EntryFile).
		WithLimits(cfg.MaxFiles, cfg.MaxArchiveBytes).
		WithLogger(logger)

	store := state.NewFileStore(cfg.StateFile())

	opts := base
	opts.Fetcher = fetcher
	opts.Installer = installer
	opts.Store = store
	opts.Logger = logger
	opts.LaunchTimeout = cfg.LaunchTimeout
	opts.InstallTimeout = cfg.DownloadTimeout

	e, err := engine.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle cache in %s: %w", cfg.DataDir, err)
	}

	return &components{engine: e, installer: installer, store: store, fetcher: fetcher}, nil
}

// setup is the common prologue of commands that operate on the cache.
func setup(cmd *cobra.Command, notifier *notify.Notifier) (*config.Config, *components, *output.Writer, *slog.Logger, error) {
	return setupWith(cmd, engine.Options{Notifier: notifier})
}

// setupReadOnly is setup for commands that must not repair the bundle
// directory, since another process may be installing into it.
func setupReadOnly(cmd *cobra.Command) (*config.Config, *components, *output.Writer, *slog.Logger, error) {
	return setupWith(cmd, engine.Options{SkipRecover: true})
}

func setupWith(cmd *cobra.Command, base engine.Options) (*config.Config, *components, *output.Writer, *slog.Logger, error) {
	w, err := newWriter(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger := newLogger(cmd.ErrOrStderr())

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	c, err := buildEngine(cfg, logger, base)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return cfg, c, w, logger, nil
}
