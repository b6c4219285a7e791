// Package doctor checks that an app can run on this machine: the runtime
// each part needs, installed dependencies, its start command and the
// environment variables its code expects.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/harshul/octo-studio/internal/analyzer"
	"github.com/harshul/octo-studio/internal/provisioner"
	"github.com/harshul/octo-studio/internal/secrets"
)

// RuntimeStatus represents the status of a runtime check
type RuntimeStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
}

// Part is one runnable directory of an app: the root, frontend/ or
// backend/.
type Part struct {
	Name         string
	Dir          string
	Framework    analyzer.Framework
	StartCommand string
	Runtime      RuntimeStatus
	// InstallCommand is set when JavaScript dependencies are missing.
	InstallCommand string
	Env            secrets.Status
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	AppDir  string
	Layout  analyzer.Layout
	Parts   []Part
	Docker  *RuntimeStatus
	Healthy bool
	Issues  []string
}

// Probe looks up a binary and reports its version. Tests replace it.
type Probe func(ctx context.Context, name string, args ...string) (path, version string, err error)

// Options tune Diagnose.
type Options struct {
	// Docker also checks the container runtime.
	Docker bool
	Probe  Probe
}

// Diagnose checks the app rooted at appDir.
func Diagnose(ctx context.Context, appDir string, opts Options) Diagnosis {
	probe := opts.Probe
	if probe == nil {
		probe = execProbe
	}
	d := Diagnosis{AppDir: appDir, Layout: analyzer.DetectLayout(appDir), Healthy: true}

	for _, p := range Parts(appDir) {
		d.Parts = append(d.Parts, d.checkPart(ctx, p, probe))
	}

	if opts.Docker {
		rs := checkRuntime(ctx, probe, "Docker", "docker", "--version")
		d.Docker = &rs
		if !rs.Installed {
			d.issue("Docker is not installed but runtime_mode is docker")
		}
	}
	return d
}

func (d *Diagnosis) issue(format string, args ...any) {
	d.Healthy = false
	d.Issues = append(d.Issues, fmt.Sprintf(format, args...))
}

// Parts lists the runnable directories of the app with only Name and Dir
// set: backend before frontend for split layouts, the root otherwise.
func Parts(appDir string) []Part {
	switch analyzer.DetectLayout(appDir) {
	case analyzer.LayoutFullstack:
		return []Part{
			{Name: analyzer.BackendDir, Dir: filepath.Join(appDir, analyzer.BackendDir)},
			{Name: analyzer.FrontendDir, Dir: filepath.Join(appDir, analyzer.FrontendDir)},
		}
	case analyzer.LayoutFrontendOnly:
		return []Part{{Name: analyzer.FrontendDir, Dir: filepath.Join(appDir, analyzer.FrontendDir)}}
	case analyzer.LayoutBackendOnly:
		return []Part{{Name: analyzer.BackendDir, Dir: filepath.Join(appDir, analyzer.BackendDir)}}
	}
	return []Part{{Name: "app", Dir: appDir}}
}

func (d *Diagnosis) checkPart(ctx context.Context, p Part, probe Probe) Part {
	p.Framework = analyzer.DetectFramework(p.Dir)
	p.StartCommand = analyzer.StartCommand(p.Framework, p.Dir)

	switch {
	case p.Framework == analyzer.FrameworkNode:
		p.Runtime = checkRuntime(ctx, probe, "Node.js", "node", "--version")
		pm := provisioner.DetectPackageManager(p.Dir)
		if !exists(filepath.Join(p.Dir, "node_modules")) {
			p.InstallCommand = pm.Manager.InstallCommand(pm.IsMonorepo)
			d.issue("%s: dependencies are not installed (run %q)", p.Name, p.InstallCommand)
		}
		if _, _, err := probe(ctx, string(pm.Manager), "--version"); err != nil {
			msg := fmt.Sprintf("%s: package manager %s is not installed", p.Name, pm.Manager)
			if hint := provisioner.Check(p.Dir).InstallHint; hint != "" {
				msg += ". " + hint
			}
			d.issue("%s", msg)
		}
	case p.Framework.IsPython():
		p.Runtime = checkPython(ctx, probe)
	case p.Framework == analyzer.FrameworkGo:
		p.Runtime = checkRuntime(ctx, probe, "Go", "go", "version")
	case p.Framework == analyzer.FrameworkRust:
		p.Runtime = checkRuntime(ctx, probe, "Rust", "cargo", "--version")
	default:
		if p.Name == analyzer.BackendDir {
			d.issue("%s: no start command found", p.Name)
		}
	}
	if p.Runtime.Name != "" && !p.Runtime.Installed {
		d.issue("%s: %s runtime is not installed", p.Name, p.Runtime.Name)
	}

	if env, err := secrets.Check(p.Dir); err == nil {
		p.Env = env
		for _, v := range env.Missing {
			d.issue("%s: environment variable %s is not set (used in %s:%d)", p.Name, v.Name, v.File, v.Line)
		}
	}
	return p
}

func checkRuntime(ctx context.Context, probe Probe, name, bin string, args ...string) RuntimeStatus {
	status := RuntimeStatus{Name: name}
	path, version, err := probe(ctx, bin, args...)
	if err == nil {
		status.Installed = true
		status.Path = path
		status.Version = version
	}
	return status
}

// checkPython tries python3 first, then python.
func checkPython(ctx context.Context, probe Probe) RuntimeStatus {
	for _, bin := range []string{"python3", "python"} {
		if rs := checkRuntime(ctx, probe, "Python", bin, "--version"); rs.Installed {
			return rs
		}
	}
	return RuntimeStatus{Name: "Python"}
}

func execProbe(ctx context.Context, name string, args ...string) (string, string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", "", err
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return path, "", err
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return path, version, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
