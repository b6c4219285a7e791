// Package orchestrator starts, stops and restarts generated apps and wires
// their output into the app's terminals.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harshul/octo-studio/internal/analyzer"
	"github.com/harshul/octo-studio/internal/ports"
	"github.com/harshul/octo-studio/internal/procman"
	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/terminal"
)

// DefaultStartupTimeout is how long an app may take to report a URL.
const DefaultStartupTimeout = 2 * time.Minute

// StartupTimeoutMessage is routed when no ready URL shows up in time.
const StartupTimeoutMessage = "App startup timed out. The server may have failed to start. Check the terminal output for errors."

var (
	ErrAlreadyRunning = errors.New("app is already running")
	ErrNotRunning     = errors.New("app is not running")
	ErrNoStartCommand = errors.New("no start command found")
)

// AppSource loads apps.
type AppSource interface {
	GetApp(ctx context.Context, id int64) (store.App, error)
}

// TerminalRouter receives app output.
type TerminalRouter interface {
	Route(appID int64, scope terminal.Scope, message string, sev terminal.Severity)
	RouteInputRequest(appID int64, scope terminal.Scope, message string)
}

// CommandRunner runs one-shot helper commands (docker build, volume rm).
type CommandRunner interface {
	Run(ctx context.Context, command, dir string) (string, bool)
}

// PortCleaner frees the app port before a start.
type PortCleaner interface {
	CleanUp(ctx context.Context, port int) error
}

// Proxy fronts a ready app.
type Proxy interface {
	Start(ctx context.Context, appID int64, target string) (string, error)
	Stop(ctx context.Context, appID int64)
}

// Deps are the collaborators of an Engine. Ports and Proxy are optional.
type Deps struct {
	Apps     AppSource
	Registry *procman.Registry
	Locks    *procman.Locks
	Terminal TerminalRouter
	Runner   CommandRunner
	Ports    PortCleaner
	Proxy    Proxy
	Logger   *slog.Logger
}

// Options tune an Engine.
type Options struct {
	AppsDir string
	Port    int
	// Docker runs every app inside a container.
	Docker bool
	// StartupTimeout defaults to DefaultStartupTimeout; negative disables
	// the watchdog.
	StartupTimeout time.Duration
	// FrontendCommand and BackendCommand replace the detected commands of
	// split layouts when set.
	FrontendCommand string
	BackendCommand  string
	Env             []string
}

// RestartOptions tune Restart.
type RestartOptions struct {
	// RemoveNodeModules deletes installed JavaScript packages (and the
	// package store volume in docker mode) before starting again.
	RemoveNodeModules bool
}

// Engine runs apps.
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	events *broadcaster

	mu       sync.Mutex
	sessions map[int64]*session
}

// New validates deps and returns an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Apps == nil || deps.Registry == nil || deps.Locks == nil || deps.Terminal == nil || deps.Runner == nil {
		return nil, errors.New("orchestrator: apps, registry, locks, terminal and runner are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Port <= 0 {
		opts.Port = ports.AppPort
	}
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	return &Engine{
		deps:     deps,
		opts:     opts,
		logger:   logger.With("component", "app_engine"),
		events:   newBroadcaster(),
		sessions: make(map[int64]*session),
	}, nil
}

// Start launches the app under its lock.
func (e *Engine) Start(ctx context.Context, appID int64) error {
	return e.deps.Locks.With(appID, func() error {
		return e.start(ctx, appID)
	})
}

// Stop terminates every process of the app under its lock.
func (e *Engine) Stop(ctx context.Context, appID int64) error {
	return e.deps.Locks.With(appID, func() error {
		return e.stop(ctx, appID)
	})
}

// Restart stops the app if it runs, optionally clears installed packages,
// and starts it again, all under one lock hold.
func (e *Engine) Restart(ctx context.Context, appID int64, opts RestartOptions) error {
	return e.deps.Locks.With(appID, func() error {
		if err := e.stop(ctx, appID); err != nil {
			e.logger.Warn("stop before restart", "app_id", appID, "error", err)
		}
		if opts.RemoveNodeModules {
			app, err := e.deps.Apps.GetApp(ctx, appID)
			if err != nil {
				return fmt.Errorf("load app %d: %w", appID, err)
			}
			e.removeNodeModules(ctx, app)
		}
		return e.start(ctx, appID)
	})
}

// Running reports whether any process of the app is live.
func (e *Engine) Running(appID int64) bool {
	return e.deps.Registry.Running(appID)
}

// RespondToInput writes text to the process that last asked for input,
// or to the app's main process.
func (e *Engine) RespondToInput(appID int64, text string) error {
	key := procman.MainKey(appID)
	scope := terminal.ScopeMain
	e.mu.Lock()
	if s := e.sessions[appID]; s != nil && s.promptKey != "" {
		key, scope = s.promptKey, s.promptScope
	}
	e.mu.Unlock()

	rec, ok := e.deps.Registry.Get(key)
	if !ok || rec.Exited() || rec.Stdin == nil {
		return fmt.Errorf("app %d: %w", appID, ErrNotRunning)
	}
	if _, err := rec.Stdin.Write([]byte(text + "\n")); err != nil {
		return fmt.Errorf("write input to %s: %w", key, err)
	}
	e.deps.Terminal.Route(appID, scope, "> "+text, terminal.SeverityCommand)
	return nil
}

// Wait blocks until every process of the app has exited or ctx ends.
func (e *Engine) Wait(ctx context.Context, appID int64) error {
	for _, key := range procman.AppKeys(appID) {
		rec, ok := e.deps.Registry.Get(key)
		if !ok {
			continue
		}
		select {
		case <-rec.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) start(ctx context.Context, appID int64) error {
	app, err := e.deps.Apps.GetApp(ctx, appID)
	if err != nil {
		return fmt.Errorf("load app %d: %w", appID, err)
	}
	if e.deps.Registry.Running(appID) {
		return fmt.Errorf("app %d: %w", appID, ErrAlreadyRunning)
	}
	dir := e.appDir(app)
	logger := e.logger.With("app_id", appID, "dir", dir)

	if e.deps.Ports != nil {
		if err := e.deps.Ports.CleanUp(ctx, e.opts.Port); err != nil {
			logger.Warn("port cleanup failed", "port", e.opts.Port, "error", err)
		}
	}

	plans, err := e.plan(ctx, app, dir)
	if err != nil {
		e.deps.Terminal.Route(appID, terminal.ScopeMain, "❌ Error: "+err.Error(), terminal.SeverityError)
		return err
	}

	sess := e.newSession(appID)
	for i, p := range plans {
		if err := e.launch(appID, p, sess); err != nil {
			for _, started := range plans[:i] {
				_ = e.deps.Registry.Stop(ctx, started.key)
			}
			e.endSession(ctx, appID)
			return err
		}
	}
	logger.Info("app started", "run_id", sess.runID, "processes", len(plans))
	e.armWatchdog(appID, sess)
	return nil
}

func (e *Engine) stop(ctx context.Context, appID int64) error {
	e.endSession(ctx, appID)
	var errs []error
	stopped := 0
	for _, key := range procman.AppKeys(appID) {
		err := e.deps.Registry.Stop(ctx, key)
		switch {
		case errors.Is(err, procman.ErrNotRunning):
			continue
		case err != nil:
			errs = append(errs, err)
		default:
			stopped++
		}
	}
	if stopped > 0 {
		e.deps.Terminal.Route(appID, terminal.ScopeMain, "App stopped", terminal.SeveritySuccess)
	}
	e.logger.Info("app stopped", "app_id", appID, "processes", stopped)
	return errors.Join(errs...)
}

func (e *Engine) removeNodeModules(ctx context.Context, app store.App) {
	dir := e.appDir(app)
	for _, sub := range []string{".", analyzer.FrontendDir, analyzer.BackendDir} {
		target := filepath.Join(dir, sub, "node_modules")
		if _, err := os.Stat(target); err != nil {
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			e.logger.Warn("remove node_modules", "path", target, "error", err)
			continue
		}
		e.deps.Terminal.Route(app.ID, terminal.ScopeMain, "Removed "+filepath.Join(sub, "node_modules"), terminal.SeverityOutput)
	}
	if e.opts.Docker {
		e.deps.Runner.Run(ctx, "docker volume rm -f "+storeVolume(app.ID), "")
	}
}

func (e *Engine) appDir(app store.App) string {
	if filepath.IsAbs(app.Path) || e.opts.AppsDir == "" {
		return app.Path
	}
	return filepath.Join(e.opts.AppsDir, app.Path)
}
