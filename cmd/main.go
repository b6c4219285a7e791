package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-studio/internal/logging"
	"github.com/harshul/octo-studio/internal/settings"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

var (
	// cfg and logger are loaded before every command runs.
	cfg     settings.Settings
	logger  *slog.Logger
	logFile *os.File
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "octo",
	Short: "Apply AI responses to local apps and run them",
	Long: `Octo turns AI chat responses into working apps on your machine.

It applies the file, dependency, SQL and command actions a response
contains, commits every change to the app's git history, and runs the
app's dev servers with a live console.

Usage:
  octo app add     Register an existing directory as an app
  octo apply       Apply a response to an app
  octo run         Start an app and stream its output
  octo console     Open the interactive console for an app`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", settings.DefaultPath(), "Path to the settings file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for apps, the database and logs")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(appCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(doctorCmd)
}

func loadSettings(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if dir, _ := flags.GetString("data-dir"); strings.TrimSpace(dir) != "" {
		if err := os.Setenv("OCTO_DATA_DIR", dir); err != nil {
			return err
		}
	}
	if level, _ := flags.GetString("log-level"); strings.TrimSpace(level) != "" {
		if err := os.Setenv("OCTO_LOG_LEVEL", level); err != nil {
			return err
		}
	}

	path, _ := flags.GetString("config")
	loaded, err := settings.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	cfg = loaded

	lg, f, err := logging.OpenFile(cfg.DataDir, cfg.LogLevel)
	if err != nil {
		// Logging must never stop a command.
		logger = logging.NewLogger(logging.Options{Level: "error"})
		return nil
	}
	logger, logFile = lg, f
	logger.Debug("settings loaded", "path", path, "data_dir", cfg.DataDir, "runtime_mode", cfg.RuntimeMode)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
