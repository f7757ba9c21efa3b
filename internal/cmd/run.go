package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/webbundle/internal/engine"
	"github.com/adamancini/webbundle/internal/notify"
)

func newRunCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve once, then keep the bundle up to date until interrupted",
		Long: `Run resolves the bundle as a launch would, prints the result, then checks
the origin every check_interval until interrupted with SIGINT or SIGTERM.

When a background check installs a new version a notice is printed; the new
content takes effect the next time the bundle is resolved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoop(ctx, cmd, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Override check_interval from the config")

	return cmd
}

func runLoop(ctx context.Context, cmd *cobra.Command, interval time.Duration) error {
	queue := notify.NewQueue(16)
	defer queue.Close()
	notifier := notify.New(queue.Dispatch)

	cfg, c, w, logger, err := setup(cmd, notifier)
	if err != nil {
		return err
	}

	if err := w.Write(c.engine.Resolve(ctx)); err != nil {
		return err
	}

	unregister := notifier.OnNewVersionInstalled(func(ev notify.Event) {
		msg := fmt.Sprintf("version %s installed; restart to update", ev.Version)
		if err := w.Notice(msg); err != nil {
			logger.Warn("failed to print notice", "error", err)
		}
	})
	defer unregister()

	if interval <= 0 {
		interval = cfg.CheckInterval
	}
	scheduler := engine.NewScheduler(c.engine, interval, logger)

	logger.Info("watching for updates", "manifest", c.fetcher.URL(), "interval", scheduler.Interval())
	return scheduler.Run(ctx)
}
