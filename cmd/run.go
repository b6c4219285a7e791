package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-studio/internal/doctor"
	"github.com/harshul/octo-studio/internal/orchestrator"
	"github.com/harshul/octo-studio/internal/ports"
	"github.com/harshul/octo-studio/internal/procman"
	"github.com/harshul/octo-studio/internal/proxy"
	"github.com/harshul/octo-studio/internal/secrets"
	"github.com/harshul/octo-studio/internal/settings"
	"github.com/harshul/octo-studio/internal/shell"
	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/terminal"
	"github.com/harshul/octo-studio/internal/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <app-id>",
	Short: "Start an app and follow its output",
	Long: `The run command starts an app's dev servers and follows their output.

It will:
- Free the app port from leftover processes and containers
- Install dependencies and start the frontend and backend
- Report the preview URL once a server is ready
- Forward your answers to interactive prompts

Apps run on the host or in Docker depending on runtime_mode. Closing the
console or pressing Ctrl+C stops every process of the app.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var consoleCmd = &cobra.Command{
	Use:   "console <app-id>",
	Short: "Open the interactive console without starting the app",
	Long: `The console command opens the app console with the app stopped.
Press r to start it; every other console key works as with 'octo run'.`,
	Args: cobra.ExactArgs(1),
	RunE: runConsole,
}

var restartCmd = &cobra.Command{
	Use:   "restart <app-id>",
	Short: "Restart an app, optionally reinstalling its dependencies",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestart,
}

var stopCmd = &cobra.Command{
	Use:   "stop <app-id>",
	Short: "Stop processes and containers left behind by an earlier run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, restartCmd} {
		c.Flags().Bool("no-tui", false, "Disable the console (use plain scrolling output)")
		c.Flags().StringSlice("env-file", nil, "Load environment variables from a file (repeatable)")
		c.Flags().Bool("skip-env-check", false, "Skip environment variable validation")
		c.Flags().String("frontend-command", "", "Override the frontend start command")
		c.Flags().String("backend-command", "", "Override the backend start command")
	}
	consoleCmd.Flags().StringSlice("env-file", nil, "Load environment variables from a file (repeatable)")
	restartCmd.Flags().Bool("clean", false, "Remove node_modules before starting again")
	restartCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}

// session holds everything one app needs while it runs in this process.
type session struct {
	store    *store.Store
	router   *terminal.Router
	registry *procman.Registry
	engine   *orchestrator.Engine
	proxy    *proxy.Server
	app      store.App
}

func openSession(cmd *cobra.Command, arg string) (*session, error) {
	ctx := cmd.Context()
	flags := cmd.Flags()

	st, err := openStore()
	if err != nil {
		return nil, err
	}
	app, err := loadApp(ctx, st, arg)
	if err != nil {
		st.Close()
		return nil, err
	}

	var env []string
	envFiles, _ := flags.GetStringSlice("env-file")
	for _, path := range envFiles {
		vars, err := secrets.ReadEnvFile(path)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range vars {
			logger.Debug("env var loaded", "file", path, "name", k, "value", secrets.Mask(v))
		}
		env = append(env, secrets.Environ(vars)...)
	}

	docker := cfg.RuntimeMode == settings.RuntimeDocker
	runner := shell.NewRunner(logger, env...)
	var stopper procman.ContainerStopper
	var dockerRunner ports.CommandRunner
	if docker {
		stopper, dockerRunner = runner, runner
	}

	s := &session{store: st, app: app, router: terminal.NewRouter(terminal.NewHub(0))}
	s.registry = procman.NewRegistry(procman.Options{Docker: stopper, Logger: logger})

	deps := orchestrator.Deps{
		Apps:     st,
		Registry: s.registry,
		Locks:    procman.NewLocks(),
		Terminal: s.router,
		Runner:   runner,
		Ports:    ports.NewCleaner(ports.Options{Docker: dockerRunner, Logger: logger}),
		Logger:   logger,
	}
	if cfg.Proxy.Enabled {
		host, _, err := net.SplitHostPort(cfg.Proxy.Listen)
		if err != nil {
			host = cfg.Proxy.Listen
		}
		s.proxy = proxy.New(host, logger)
		deps.Proxy = s.proxy
	}

	opts := orchestrator.Options{
		AppsDir:        cfg.AppsDir,
		Docker:         docker,
		StartupTimeout: cfg.StartupTimeout,
		Env:            env,
	}
	if flags.Lookup("frontend-command") != nil {
		opts.FrontendCommand, _ = flags.GetString("frontend-command")
		opts.BackendCommand, _ = flags.GetString("backend-command")
	}

	s.engine, err = orchestrator.New(deps, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.proxy != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.proxy.Close(ctx)
		cancel()
	}
	s.store.Close()
}

func (s *session) consoleConfig() ui.ConsoleConfig {
	return ui.ConsoleConfig{
		AppID:      s.app.ID,
		Name:       s.app.Name,
		Logs:       s.router.Hub().Store(s.app.ID),
		Controller: s.engine,
		PIDs:       s.pids,
		Events:     s.engine.Subscribe,
	}
}

// pids lists the live root processes of the app.
func (s *session) pids() []int32 {
	var out []int32
	for _, key := range procman.AppKeys(s.app.ID) {
		if rec, ok := s.registry.Get(key); ok && rec.Alive() {
			out = append(out, int32(rec.PID()))
		}
	}
	return out
}

// follow shows the app until it exits, the user quits or a signal arrives.
func (s *session) follow(ctx context.Context, tui bool) error {
	if tui {
		return ui.RunConsole(ctx, s.consoleConfig())
	}
	return ui.RunPlain(ctx, s.consoleConfig(), ui.Output, os.Stdin)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func useTUI(cmd *cobra.Command) bool {
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	return !noTUI && interactiveTerminal()
}

// checkEnv warns about variables the app's code reads but no .env file or
// --env-file defines, and asks whether to continue.
func checkEnv(cmd *cobra.Command, app store.App) error {
	if skip, _ := cmd.Flags().GetBool("skip-env-check"); skip {
		return nil
	}
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	provided := make(map[string]bool)
	for _, path := range envFiles {
		vars, _ := secrets.ReadEnvFile(path)
		for k := range vars {
			provided[k] = true
		}
	}

	var missing []secrets.EnvVar
	for _, part := range doctor.Parts(appDir(app)) {
		status, err := secrets.Check(part.Dir)
		if err != nil {
			logger.Warn("env check failed", "dir", part.Dir, "error", err)
			continue
		}
		for _, v := range status.Missing {
			if !provided[v.Name] {
				missing = append(missing, v)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	ui.Warn(fmt.Sprintf("%d environment variable(s) are not set:", len(missing)))
	for _, v := range missing {
		fmt.Fprintf(ui.Output, "   • %s (%s:%d)\n", v.Name, v.File, v.Line)
	}
	if !interactiveTerminal() {
		return nil
	}
	ok, err := ui.RunYesNoPrompt("Continue anyway?", "The app may fail to start without them", true)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("aborted due to environment configuration issues")
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer s.Close()
	if err := checkEnv(cmd, s.app); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	ui.Info(fmt.Sprintf("Starting %s...", s.app.Name))
	if err := s.engine.Start(ctx, s.app.ID); err != nil {
		for _, l := range s.router.Hub().Store(s.app.ID).Lines(terminal.ScopeMain) {
			fmt.Fprintln(ui.Output, l.Message)
		}
		return fmt.Errorf("failed to start %s: %w", s.app.Name, err)
	}
	return s.follow(ctx, useTUI(cmd))
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !interactiveTerminal() {
		return errors.New("the console needs an interactive terminal; use 'octo run --no-tui'")
	}
	s, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()
	s.router.Route(s.app.ID, terminal.ScopeMain, "Press r to start "+s.app.Name, terminal.SeverityOutput)
	return ui.RunConsole(ctx, s.consoleConfig())
}

func runRestart(cmd *cobra.Command, args []string) error {
	clean, _ := cmd.Flags().GetBool("clean")
	yes, _ := cmd.Flags().GetBool("yes")
	if clean && !yes && interactiveTerminal() {
		ok, err := ui.RunYesNoPrompt("Remove node_modules?", "Dependencies are installed again on start", false)
		if err != nil {
			return err
		}
		if !ok {
			clean = false
		}
	}

	s, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	defer s.Close()
	if err := checkEnv(cmd, s.app); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	// Processes from another octo process are only reachable through the
	// port and the container name.
	if err := stopLeftovers(ctx, s.app.ID); err != nil {
		ui.Warn(err.Error())
	}
	if err := s.engine.Restart(ctx, s.app.ID, orchestrator.RestartOptions{RemoveNodeModules: clean}); err != nil {
		return fmt.Errorf("failed to restart %s: %w", s.app.Name, err)
	}
	return s.follow(ctx, useTUI(cmd))
}

func runStop(cmd *cobra.Command, args []string) error {
	id, err := parseAppID(args[0])
	if err != nil {
		return err
	}
	spinner := ui.NewSpinner("Stopping app...")
	spinner.Start()
	err = stopLeftovers(cmd.Context(), id)
	spinner.Stop()
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("App %d stopped", id))
	return nil
}

// stopLeftovers frees the app port and removes the app container.
func stopLeftovers(ctx context.Context, appID int64) error {
	runner := shell.NewRunner(logger)
	var docker ports.CommandRunner
	if cfg.RuntimeMode == settings.RuntimeDocker {
		docker = runner
		runner.Run(ctx, "docker rm -f "+orchestrator.ContainerName(appID), "")
	}
	cleaner := ports.NewCleaner(ports.Options{Docker: docker, Logger: logger})
	if err := cleaner.CleanUp(ctx, ports.AppPort); err != nil {
		return fmt.Errorf("failed to free port %d: %w", ports.AppPort, err)
	}
	return nil
}
