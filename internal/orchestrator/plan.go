package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/harshul/octo-studio/internal/analyzer"
	"github.com/harshul/octo-studio/internal/cmdroute"
	"github.com/harshul/octo-studio/internal/procman"
	"github.com/harshul/octo-studio/internal/provisioner"
	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/terminal"
)

// DockerfileName is the per-app image definition used in docker mode.
const DockerfileName = "Dockerfile.octo"

const defaultDockerfile = `FROM node:22-alpine
RUN corepack enable && corepack prepare pnpm@latest --activate
ENV PNPM_STORE_DIR=/pnpm/store
`

// launchPlan is one process to start.
type launchPlan struct {
	key     string
	scope   terminal.Scope
	dir     string
	command string
	// args, when set, is executed directly; command is then only shown.
	args      []string
	container string
}

// ContainerName is the docker container an app runs in.
func ContainerName(appID int64) string { return "octo-app-" + strconv.FormatInt(appID, 10) }

func storeVolume(appID int64) string { return ContainerName(appID) + "-pnpm-store" }

// DefaultCommand installs dependencies with pnpm, falling back to npm, and
// runs the dev server on port.
func DefaultCommand(port int) string {
	return fmt.Sprintf("(pnpm install && pnpm run dev --port %d) || (npm install --legacy-peer-deps && npm run dev -- --port %d)", port, port)
}

func (e *Engine) plan(ctx context.Context, app store.App, dir string) ([]launchPlan, error) {
	if e.opts.Docker {
		p, err := e.dockerPlan(ctx, app, dir)
		if err != nil {
			return nil, err
		}
		return []launchPlan{p}, nil
	}

	layout := analyzer.DetectLayout(dir)
	if layout == analyzer.LayoutFullstack {
		beDir := filepath.Join(dir, analyzer.BackendDir)
		feDir := filepath.Join(dir, analyzer.FrontendDir)
		be, err := e.backendCommand(beDir)
		if err != nil {
			return nil, err
		}
		return []launchPlan{
			{key: procman.MainKey(app.ID), scope: terminal.ScopeBackend, dir: beDir, command: be},
			{key: procman.FrontendKey(app.ID), scope: terminal.ScopeFrontend, dir: feDir, command: e.frontendCommand(feDir)},
		}, nil
	}

	command, err := e.singleCommand(app, dir, layout)
	if err != nil {
		return nil, err
	}
	scope, workDir := placeSingle(command, dir, layout)
	return []launchPlan{{key: procman.MainKey(app.ID), scope: scope, dir: workDir, command: command}}, nil
}

func (e *Engine) singleCommand(app store.App, dir string, layout analyzer.Layout) (string, error) {
	if app.StartCommand != "" {
		if app.InstallCommand != "" {
			return app.InstallCommand + " && " + app.StartCommand, nil
		}
		return app.StartCommand, nil
	}
	switch layout {
	case analyzer.LayoutFrontendOnly:
		return e.frontendCommand(filepath.Join(dir, analyzer.FrontendDir)), nil
	case analyzer.LayoutBackendOnly:
		return e.backendCommand(filepath.Join(dir, analyzer.BackendDir))
	}
	return DefaultCommand(e.opts.Port), nil
}

// placeSingle picks the terminal and working directory of a lone process
// from the toolchain its command uses, then from the layout.
func placeSingle(command, dir string, layout analyzer.Layout) (terminal.Scope, string) {
	feDir := filepath.Join(dir, analyzer.FrontendDir)
	beDir := filepath.Join(dir, analyzer.BackendDir)
	switch cmdroute.DetectEcosystem(command) {
	case cmdroute.EcosystemPython, cmdroute.EcosystemGo, cmdroute.EcosystemRust:
		if layout.HasBackend() {
			return terminal.ScopeBackend, beDir
		}
		return terminal.ScopeBackend, dir
	case cmdroute.EcosystemNode:
		if layout.HasFrontend() {
			return terminal.ScopeFrontend, feDir
		}
		if layout == analyzer.LayoutBackendOnly {
			return terminal.ScopeBackend, beDir
		}
		return terminal.ScopeFrontend, dir
	}
	switch layout {
	case analyzer.LayoutBackendOnly:
		return terminal.ScopeBackend, beDir
	case analyzer.LayoutFrontendOnly:
		return terminal.ScopeFrontend, feDir
	}
	return terminal.ScopeMain, dir
}

func (e *Engine) frontendCommand(dir string) string {
	if e.opts.FrontendCommand != "" {
		return e.opts.FrontendCommand
	}
	run := fmt.Sprintf("npm run dev -- --port %d", e.opts.Port)
	if exists(filepath.Join(dir, "node_modules")) {
		return run
	}
	pm := provisioner.DetectPackageManager(dir)
	return pm.Manager.InstallCommand(pm.IsMonorepo) + " && " + run
}

func (e *Engine) backendCommand(dir string) (string, error) {
	if e.opts.BackendCommand != "" {
		return e.opts.BackendCommand, nil
	}
	fw := analyzer.DetectFramework(dir)
	start := analyzer.StartCommand(fw, dir)
	if start == "" {
		return "", fmt.Errorf("backend in %s: %w", dir, ErrNoStartCommand)
	}
	switch {
	case fw.IsPython() && exists(filepath.Join(dir, "requirements.txt")):
		return "pip install -r requirements.txt && " + start, nil
	case fw == analyzer.FrameworkNode && !exists(filepath.Join(dir, "node_modules")):
		pm := provisioner.DetectPackageManager(dir)
		return pm.Manager.InstallCommand(pm.IsMonorepo) + " && " + start, nil
	}
	return start, nil
}

// dockerPlan builds the app image and describes the container run. The
// container works in the frontend or backend directory when present.
func (e *Engine) dockerPlan(ctx context.Context, app store.App, dir string) (launchPlan, error) {
	name := ContainerName(app.ID)
	dockerfile := filepath.Join(dir, DockerfileName)
	if !exists(dockerfile) {
		if err := os.WriteFile(dockerfile, []byte(defaultDockerfile), 0o644); err != nil {
			return launchPlan{}, fmt.Errorf("write %s: %w", DockerfileName, err)
		}
	}

	build := fmt.Sprintf("docker build -f %s -t %s .", DockerfileName, name)
	e.deps.Terminal.Route(app.ID, terminal.ScopeMain, "$ "+build, terminal.SeverityCommand)
	if _, ok := e.deps.Runner.Run(ctx, build, dir); !ok {
		return launchPlan{}, fmt.Errorf("docker build for app %d failed", app.ID)
	}

	workdir, scope := "/app", terminal.ScopeMain
	layout := analyzer.DetectLayout(dir)
	switch {
	case layout.HasFrontend():
		workdir, scope = "/app/"+analyzer.FrontendDir, terminal.ScopeFrontend
	case layout.HasBackend():
		workdir, scope = "/app/"+analyzer.BackendDir, terminal.ScopeBackend
	}

	command := app.StartCommand
	if command != "" && app.InstallCommand != "" {
		command = app.InstallCommand + " && " + command
	}
	if command == "" {
		command = fmt.Sprintf("(pnpm install && pnpm run dev --host 0.0.0.0 --port %d) || (npm install --legacy-peer-deps && npm run dev -- --host 0.0.0.0 --port %d)", e.opts.Port, e.opts.Port)
	}
	port := strconv.Itoa(e.opts.Port)
	args := []string{
		"docker", "run", "--rm",
		"--name", name,
		"-p", port + ":" + port,
		"-v", dir + ":/app",
		"-v", storeVolume(app.ID) + ":/pnpm/store",
		"-w", workdir,
		name,
		"sh", "-c", command,
	}
	return launchPlan{
		key:       procman.MainKey(app.ID),
		scope:     scope,
		dir:       dir,
		command:   command,
		args:      args,
		container: name,
	}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
