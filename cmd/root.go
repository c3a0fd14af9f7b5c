package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drgolem/dmm/internal/config"
)

const version = "0.3.0"

var (
	verbose bool
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "dmm",
	Short:   "Personal music library player",
	Version: version,
	Long: `dmm - plays tracks from local files or the library cache.

Decoded audio flows from a dedicated decoder thread through a lock-free
ring buffer into the audio device callback, which never blocks.

Commands:
  - play: Play files or cached tracks, with shuffle and repeat
  - probe: Decode a file and report its track and packet statistics
  - transform: Convert audio files to 16-bit WAV, optionally resampled

Configuration is read from $XDG_CONFIG_HOME/dmm/config.toml and
./config.toml; command line flags take precedence.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		c, err := config.Load()
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = c
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func setupLogging() {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
