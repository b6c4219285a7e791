package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/harshul/octo-studio/internal/analyzer"
	"github.com/harshul/octo-studio/internal/cmdroute"
	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/ui"
	"github.com/harshul/octo-studio/internal/vcs"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage registered apps",
}

var appAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register a directory as an app",
	Long: `The add command registers an app directory (default: the current
directory). It detects the frontend/backend layout and the server
framework, and initializes a git repository when there is none.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAppAdd,
}

var appListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered apps",
	Args:  cobra.NoArgs,
	RunE:  runAppList,
}

var appSetCmd = &cobra.Command{
	Use:   "set <app-id>",
	Short: "Change an app's settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppSet,
}

var appLogCmd = &cobra.Command{
	Use:   "log <app-id>",
	Short: "Show the app's recent commits",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppLog,
}

func init() {
	appAddCmd.Flags().StringP("name", "n", "", "App name (default: package.json name or directory name)")
	appAddCmd.Flags().String("chat-mode", "", "Chat mode (build, ask, backend, fullstack)")
	appAddCmd.Flags().String("supabase-project", "", "Supabase project id for SQL and server functions")
	appAddCmd.Flags().String("start-command", "", "Override the detected start command")
	appAddCmd.Flags().String("install-command", "", "Override the detected install command")

	appSetCmd.Flags().StringP("name", "n", "", "App name")
	appSetCmd.Flags().String("chat-mode", "", "Chat mode (build, ask, backend, fullstack)")
	appSetCmd.Flags().String("supabase-project", "", "Supabase project id")
	appSetCmd.Flags().String("start-command", "", "Start command (\"-\" to use the detected one)")
	appSetCmd.Flags().String("install-command", "", "Install command (\"-\" to use the detected one)")
	appLogCmd.Flags().IntP("number", "n", 10, "Number of commits to show")

	appCmd.AddCommand(appAddCmd)
	appCmd.AddCommand(appListCmd)
	appCmd.AddCommand(appSetCmd)
	appCmd.AddCommand(appLogCmd)
}

func runAppAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := "."
	if len(args) == 1 {
		path = args[0]
	}

	spinner := ui.NewSpinner("Analyzing app...")
	spinner.Start()
	info, err := analyzer.AnalyzeProject(path)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	if name == "" && interactiveTerminal() {
		name, err = ui.RunTextInputPrompt("App name", "Shown in the console header", info.Name, info.Name)
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}
	if name = strings.TrimSpace(name); name == "" {
		name = info.Name
	}

	chatMode, _ := flags.GetString("chat-mode")
	if chatMode == "" {
		chatMode = cfg.ChatMode
	}
	if !cmdroute.ChatMode(chatMode).Valid() {
		return fmt.Errorf("invalid chat mode %q", chatMode)
	}

	app := store.App{
		Name:     name,
		Path:     storedPath(info.Root),
		ChatMode: chatMode,
	}
	app.SupabaseProjectID, _ = flags.GetString("supabase-project")
	app.StartCommand, _ = flags.GetString("start-command")
	app.InstallCommand, _ = flags.GetString("install-command")

	repo, err := vcs.Open(info.Root, vcs.Options{Init: true})
	if err != nil {
		return err
	}
	if _, err := repo.Head(ctx); err != nil {
		if err := repo.StageAll(ctx); err != nil {
			ui.Warn(fmt.Sprintf("Failed to stage files: %v", err))
		} else if _, err := repo.Commit(ctx, "Init Octo app"); err != nil {
			ui.Warn(fmt.Sprintf("Failed to create the initial commit: %v", err))
		}
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.CreateApp(ctx, &app); err != nil {
		return fmt.Errorf("failed to register app: %w", err)
	}
	logger.Info("app registered", "app_id", app.ID, "path", app.Path, "layout", info.Layout, "framework", info.Framework)

	ui.Success(fmt.Sprintf("Registered %s", app.Name))
	ui.Highlight("ID", strconv.FormatInt(app.ID, 10))
	ui.Highlight("Layout", string(info.Layout))
	if info.Framework != analyzer.FrameworkUnknown {
		ui.Highlight("Framework", string(info.Framework))
	}
	ui.Info(fmt.Sprintf("Run 'octo run %d' to start it", app.ID))
	return nil
}

func runAppList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	apps, err := st.ListApps(cmd.Context())
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		ui.Info("No apps registered yet. Run 'octo app add <dir>'")
		return nil
	}
	for _, app := range apps {
		dir := appDir(app)
		created := time.Unix(app.CreatedAt, 0).Format("2006-01-02")
		fmt.Fprintf(ui.Output, "%4d  %-24s %-14s %-10s %s  %s\n",
			app.ID, app.Name, analyzer.DetectLayout(dir), app.ChatMode, created, dir)
	}
	return nil
}

func runAppSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	app, err := loadApp(ctx, st, args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("name") && !flags.Changed("chat-mode") && !flags.Changed("supabase-project") &&
		!flags.Changed("start-command") && !flags.Changed("install-command") {
		return errors.New("nothing to change")
	}
	if flags.Changed("name") {
		app.Name, _ = flags.GetString("name")
	}
	if flags.Changed("chat-mode") {
		mode, _ := flags.GetString("chat-mode")
		if !cmdroute.ChatMode(mode).Valid() {
			return fmt.Errorf("invalid chat mode %q", mode)
		}
		app.ChatMode = mode
	}
	if flags.Changed("supabase-project") {
		app.SupabaseProjectID, _ = flags.GetString("supabase-project")
	}
	for flag, field := range map[string]*string{"start-command": &app.StartCommand, "install-command": &app.InstallCommand} {
		if flags.Changed(flag) {
			v, _ := flags.GetString(flag)
			if v == "-" {
				v = ""
			}
			*field = v
		}
	}

	if err := st.UpdateApp(ctx, &app); err != nil {
		return fmt.Errorf("failed to update app: %w", err)
	}
	ui.Success(fmt.Sprintf("Updated %s", app.Name))
	return nil
}

func runAppLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	app, err := loadApp(ctx, st, args[0])
	if err != nil {
		return err
	}

	repo, err := vcs.Open(appDir(app), vcs.Options{})
	if err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("number")
	commits, err := repo.Log(ctx, n)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		ui.Info("No commits yet")
		return nil
	}
	for _, c := range commits {
		subject, _, _ := strings.Cut(c.Message, "\n")
		fmt.Fprintf(ui.Output, "%s  %s  %s\n", c.Hash[:8], c.When.Format("2006-01-02 15:04"), subject)
	}
	return nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

// storedPath keeps apps under the apps directory relative so the
// directory can move.
func storedPath(root string) string {
	if rel, err := filepath.Rel(cfg.AppsDir, root); err == nil && filepath.IsLocal(rel) {
		return rel
	}
	return root
}

func appDir(app store.App) string {
	if filepath.IsAbs(app.Path) {
		return app.Path
	}
	return filepath.Join(cfg.AppsDir, app.Path)
}

func parseAppID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid app id %q", arg)
	}
	return id, nil
}

func loadApp(ctx context.Context, st *store.Store, arg string) (store.App, error) {
	id, err := parseAppID(arg)
	if err != nil {
		return store.App{}, err
	}
	app, err := st.GetApp(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.App{}, fmt.Errorf("app %d not found. Run 'octo app list'", id)
	}
	return app, err
}

func interactiveTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}
