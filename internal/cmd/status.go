package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// statusReport is what `webbundle status` prints.
type statusReport struct {
	ConfigFile   string `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	ManifestURL  string `json:"manifest_url" yaml:"manifest_url"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	StateFile    string `json:"state_file" yaml:"state_file"`
	BundleDir    string `json:"bundle_dir" yaml:"bundle_dir"`
	EntryPath    string `json:"entry_path,omitempty" yaml:"entry_path,omitempty"`
	Present      bool   `json:"present" yaml:"present"`
	Installed    string `json:"installed_version" yaml:"installed_version"`
	LastLaunched string `json:"last_launched_version" yaml:"last_launched_version"`
}

func (s *statusReport) String() string {
	orNone := func(v string) string {
		if v == "" {
			return "(none)"
		}
		return v
	}

	var b strings.Builder
	if s.ConfigFile != "" {
		fmt.Fprintf(&b, "Config:          %s\n", s.ConfigFile)
	}
	fmt.Fprintf(&b, "Manifest:        %s\n", s.ManifestURL)
	fmt.Fprintf(&b, "Bundle:          %s\n", s.BundleDir)
	fmt.Fprintf(&b, "Present:         %t\n", s.Present)
	fmt.Fprintf(&b, "Installed:       %s\n", orNone(s.Installed))
	fmt.Fprintf(&b, "Last launched:   %s", orNone(s.LastLaunched))
	if s.Installed != "" && s.Installed != s.LastLaunched {
		b.WriteString("\n\nA newer bundle is installed and will be used on the next launch.")
	}
	return b.String()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed bundle and version state",
		Long: `Status shows the installed and last launched versions and where the live
bundle lives. It does not contact the origin and does not repair an
interrupted install.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, w, _, err := setupReadOnly(cmd)
			if err != nil {
				return err
			}

			snap, err := c.engine.Versions().Snapshot()
			if err != nil {
				return err
			}

			report := &statusReport{
				ConfigFile:   cfg.Path,
				ManifestURL:  cfg.ManifestURL,
				DataDir:      cfg.DataDir,
				StateFile:    c.store.Path(),
				BundleDir:    c.installer.BundleDir(),
				Installed:    snap.Installed,
				LastLaunched: snap.LastLaunched,
			}
			report.EntryPath, report.Present = c.engine.LocalIndexPath()

			return w.Write(report)
		},
	}
}
