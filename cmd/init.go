package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-studio/internal/settings"
	"github.com/harshul/octo-studio/internal/ui"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with default values",
	Long: `The init command writes a settings.yaml file containing:
- Where apps and the database live
- Whether apps run on the host or in Docker
- The default chat mode and startup timeout
- Supabase credentials and preview proxy options

Values not present in the file fall back to the same defaults.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing settings file")
	initCmd.Flags().BoolP("interactive", "i", false, "Run in interactive mode with prompts")
}

func runInit(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("config")
	force, _ := cmd.Flags().GetBool("force")
	interactive, _ := cmd.Flags().GetBool("interactive")

	if !filepath.IsAbs(outputPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		outputPath = filepath.Join(cwd, outputPath)
	}
	if _, err := os.Stat(outputPath); err == nil && !force {
		return fmt.Errorf("settings file already exists at %s. Use --force to overwrite", outputPath)
	}

	// Start from the loaded values so --data-dir and env overrides stick.
	s := cfg
	if interactive {
		appsDir, err := ui.RunTextInputPrompt("Apps directory", "Where new apps are created", s.AppsDir, s.AppsDir)
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if appsDir = strings.TrimSpace(appsDir); appsDir != "" {
			s.AppsDir = appsDir
		}
		docker, err := ui.RunYesNoPrompt("Run apps in Docker?", "Each app gets its own container", s.RuntimeMode == settings.RuntimeDocker)
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		s.RuntimeMode = settings.RuntimeHost
		if docker {
			s.RuntimeMode = settings.RuntimeDocker
		}
	}
	// Tokens from the environment are not written to disk.
	if os.Getenv("SUPABASE_ACCESS_TOKEN") != "" {
		s.Supabase.AccessToken = ""
	}

	if err := settings.Write(outputPath, s); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.MkdirAll(s.AppsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create apps directory: %w", err)
	}

	ui.Success(fmt.Sprintf("Settings written to %s", outputPath))
	ui.Info("Run 'octo app add <dir>' to register an app")
	return nil
}
