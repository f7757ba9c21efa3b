package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adamancini/webbundle/internal/config"
	"github.com/adamancini/webbundle/internal/templates"
)

func newInitCmd() *cobra.Command {
	var (
		templateName string
		manifestURL  string
		dataDir      string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new config file from a template",
		Long: `Create a new webbundle config file from a built-in template.

Available templates:
  minimal    - Manifest URL only, defaults for everything else
  full       - Every option with its default value

The file is written to --config, or $XDG_CONFIG_HOME/webbundle/webbundle.yaml.

Examples:
  webbundle init --manifest-url https://cdn.example.com/app/manifest.json
  webbundle init --template full --manifest-url https://... --data-dir /srv/webbundle`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
			}

			tmpl, err := templates.Render(templateName, templates.Values{ManifestURL: manifestURL, DataDir: dataDir})
			if err != nil {
				return err
			}

			// Refuse to write a file the other commands would reject
			if _, err := config.LoadBytes(path, tmpl.Content); err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, tmpl.Content, 0644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			if !quiet {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s from the '%s' template\n", path, tmpl.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateName, "template", "t", "minimal", "Template name")
	cmd.Flags().StringVar(&manifestURL, "manifest-url", "", "URL of the remote manifest (required)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (full template only)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	_ = cmd.MarkFlagRequired("manifest-url")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, name := range templates.List() {
			completions = append(completions, fmt.Sprintf("%s\t%s", name, templates.GetDescription(name)))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}
