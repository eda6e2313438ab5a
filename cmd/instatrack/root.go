package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"instatrack/pkg/config"
	"instatrack/pkg/logger"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "instatrack",
	Short: "Track Instagram profiles and keep their media archived locally",
	Long: `instatrack keeps a local archive of the Instagram profiles you track.

Each sync run refreshes every tracked profile's metadata in a local SQLite
database, records public/private transitions, and downloads the content your
account is allowed to see. Companion cleanup sweeps reclaim disk space by
age and by image size.

Authentication reuses the session of a local Firefox profile, so no password
ever passes through this tool. Saved credentials are supported as a fallback
for headless machines.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./instatrack.yaml or $HOME/.instatrack.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`instatrack {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the config file, environment, and command flags, then
// initializes the global logger.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
