package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/webbundle/internal/types"
)

func newCheckCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the origin once and install a newer bundle",
		Long: `Check runs one background pass: fetch the manifest, compare it with the
installed version and install the advertised version if it differs.

The version recorded as last launched is not changed, so the next resolve
reports the new content as changed. Failures are reported but do not change
the exit status unless --strict is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, w, _, err := setup(cmd, nil)
			if err != nil {
				return err
			}

			result := c.engine.Check(cmd.Context())
			if err := w.Write(result); err != nil {
				return err
			}

			if strict && result.Outcome == types.OutcomeFailed {
				return fmt.Errorf("check failed: %w", result.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the check fails")

	return cmd
}
