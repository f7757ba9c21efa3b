package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamancini/webbundle/internal/types"
)

// resetReport is what `webbundle reset` prints.
type resetReport struct {
	StateFile string           `json:"state_file" yaml:"state_file"`
	Cleared   []types.StateKey `json:"cleared" yaml:"cleared"`
}

func (r *resetReport) String() string {
	if len(r.Cleared) == 0 {
		return "nothing to reset"
	}
	names := make([]string, len(r.Cleared))
	for i, k := range r.Cleared {
		names[i] = k.String()
	}
	return fmt.Sprintf("cleared %s from %s; the next resolve or check reinstalls the bundle",
		strings.Join(names, ", "), r.StateFile)
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the recorded bundle versions",
		Long: `Reset deletes the installed and last launched versions from the state file.
The bundle on disk is left in place and keeps serving until the next resolve
or check downloads the origin's version again.

Reset waits for an install running in another process to finish first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, w, _, err := setup(cmd, nil)
			if err != nil {
				return err
			}

			cleared, err := c.engine.Reset(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to reset version state: %w", err)
			}

			return w.Write(&resetReport{StateFile: c.store.Path(), Cleared: cleared})
		},
	}
}
