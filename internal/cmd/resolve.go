package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adamancini/webbundle/internal/output"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the bundle entry file to load at launch",
		Long: `Resolve runs the launch-time check and prints the local entry file to load.

If the origin advertises a newer version it is installed before the path is
printed. When the origin is unreachable or slower than launch_timeout, or the
install fails, the already installed bundle is used. With nothing installed
the printed path is empty and the command still succeeds.

Use -o json or -o yaml for the full launch result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, w, _, err := setup(cmd, nil)
			if err != nil {
				return err
			}

			result := c.engine.Resolve(cmd.Context())

			if w.Format() == output.FormatText {
				// Plain path for scripts; empty line when nothing is installed
				_, err := cmd.OutOrStdout().Write([]byte(result.Path + "\n"))
				return err
			}
			return w.Write(result)
		},
	}
}
