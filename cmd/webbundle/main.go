package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/adamancini/webbundle/internal/cmd"
	"github.com/adamancini/webbundle/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitConfig is the exit status for an unusable configuration.
const exitConfig = 2

func main() {
	if err := cmd.Execute(version, commit, date); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(exitConfig)
		}
		os.Exit(1)
	}
}
