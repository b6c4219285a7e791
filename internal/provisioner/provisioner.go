// Package provisioner detects an app's JavaScript package manager and adds
// dependencies with it.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PackageManager represents a detected package manager
type PackageManager string

const (
	NPM  PackageManager = "npm"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	Bun  PackageManager = "bun"
)

// ManifestFile is the file every package manager edits.
const ManifestFile = "package.json"

// lockFiles is checked in priority order: pnpm > bun > yarn > npm.
var lockFiles = []struct {
	name    string
	manager PackageManager
}{
	{"pnpm-lock.yaml", PNPM},
	{"pnpm-workspace.yaml", PNPM},
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"yarn.lock", Yarn},
	{"package-lock.json", NPM},
}

// PackageManagerInfo contains details about the detected package manager
type PackageManagerInfo struct {
	Manager    PackageManager
	LockFile   string
	IsMonorepo bool
}

// DetectPackageManager inspects lock files in projectPath. npm is the
// fallback when none is present.
func DetectPackageManager(projectPath string) PackageManagerInfo {
	for _, lf := range lockFiles {
		if fileExists(filepath.Join(projectPath, lf.name)) {
			info := PackageManagerInfo{Manager: lf.manager, LockFile: lf.name}
			if lf.name == "pnpm-workspace.yaml" {
				info.LockFile = "pnpm-lock.yaml"
			}
			info.IsMonorepo = detectWorkspace(projectPath, lf.manager)
			return info
		}
	}
	// workspace: protocol is pnpm-specific even before a lock file exists.
	if manifestContains(projectPath, `"workspace:`) {
		return PackageManagerInfo{Manager: PNPM, LockFile: "pnpm-lock.yaml", IsMonorepo: true}
	}
	return PackageManagerInfo{Manager: NPM, LockFile: "package-lock.json"}
}

func detectWorkspace(projectPath string, m PackageManager) bool {
	if m == PNPM {
		return fileExists(filepath.Join(projectPath, "pnpm-workspace.yaml")) ||
			manifestContains(projectPath, `"workspace:`)
	}
	return manifestContains(projectPath, `"workspaces"`)
}

// InstallCommand is the shell command that installs all dependencies.
func (m PackageManager) InstallCommand(monorepo bool) string {
	switch m {
	case PNPM:
		if monorepo {
			return "pnpm install -r"
		}
		return "pnpm install"
	case Yarn:
		return "yarn install"
	case Bun:
		return "bun install"
	}
	return "npm install --legacy-peer-deps"
}

// AddCommand is the shell command that adds packages.
func (m PackageManager) AddCommand(packages []string) string {
	list := strings.Join(packages, " ")
	switch m {
	case PNPM:
		return "pnpm add " + list
	case Yarn:
		return "yarn add " + list
	case Bun:
		return "bun add " + list
	}
	return "npm install --legacy-peer-deps " + list
}

// CheckResult represents the result of checking package manager availability
type CheckResult struct {
	Manager     PackageManager
	IsAvailable bool
	InstallHint string
}

// Check verifies if the package manager projectPath needs is on PATH.
func Check(projectPath string) CheckResult {
	info := DetectPackageManager(projectPath)
	_, err := exec.LookPath(string(info.Manager))
	result := CheckResult{Manager: info.Manager, IsAvailable: err == nil}
	if !result.IsAvailable {
		result.InstallHint = installHint(info.Manager)
	}
	return result
}

func installHint(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "This project requires pnpm. Please run 'corepack enable pnpm' to continue."
	case Yarn:
		return "This project requires yarn. Please run 'corepack enable yarn' to continue."
	case Bun:
		return "This project requires bun. Please install it from https://bun.sh"
	}
	return "npm is required. Please install Node.js from https://nodejs.org"
}

// CommandRunner runs a shell command and reports success.
type CommandRunner interface {
	Run(ctx context.Context, command, dir string) (string, bool)
}

// Installer adds packages to an app.
type Installer struct {
	runner CommandRunner
	logger *slog.Logger
}

// NewInstaller returns an Installer that shells out through runner.
func NewInstaller(runner CommandRunner, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Installer{runner: runner, logger: logger}
}

// InstallResult lists the files an install touched, relative to the app
// root, so they can be committed.
type InstallResult struct {
	Manager PackageManager
	Dir     string
	Output  string
	Files   []string
}

// ErrInstallFailed is returned when the package manager exits non-zero.
var ErrInstallFailed = errors.New("package installation failed")

// AddPackages installs packages in the app's JavaScript package directory.
func (i *Installer) AddPackages(ctx context.Context, appDir string, packages []string) (InstallResult, error) {
	rel := PackageDir(appDir)
	dir := filepath.Join(appDir, rel)
	info := DetectPackageManager(dir)
	command := info.Manager.AddCommand(packages)

	i.logger.Info("installing packages", "manager", info.Manager, "dir", dir, "packages", packages)
	out, ok := i.runner.Run(ctx, command, dir)
	res := InstallResult{Manager: info.Manager, Dir: rel, Output: out}
	if !ok {
		return res, fmt.Errorf("%s: %w", command, ErrInstallFailed)
	}
	res.Files = ManifestFiles(appDir, rel)
	return res, nil
}

// PackageDir returns the directory (relative to appDir) holding the
// package manifest: frontend/ in split layouts, else the root.
func PackageDir(appDir string) string {
	if fileExists(filepath.Join(appDir, "frontend", ManifestFile)) {
		return "frontend"
	}
	return "."
}

// ManifestFiles returns package.json plus whichever lock files exist in
// rel, as paths relative to appDir.
func ManifestFiles(appDir, rel string) []string {
	files := []string{filepath.ToSlash(filepath.Join(rel, ManifestFile))}
	for _, name := range []string{"pnpm-lock.yaml", "package-lock.json", "yarn.lock", "bun.lock"} {
		p := filepath.Join(rel, name)
		if fileExists(filepath.Join(appDir, p)) {
			files = append(files, filepath.ToSlash(p))
		}
	}
	return files
}

func manifestContains(projectPath, needle string) bool {
	data, err := os.ReadFile(filepath.Join(projectPath, ManifestFile))
	return err == nil && strings.Contains(string(data), needle)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
