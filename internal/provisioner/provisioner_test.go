package provisioner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingRunner struct {
	ok       bool
	commands []string
	dirs     []string
}

func (r *recordingRunner) Run(_ context.Context, command, dir string) (string, bool) {
	r.commands = append(r.commands, command)
	r.dirs = append(r.dirs, dir)
	if !r.ok {
		return "", false
	}
	return "added 2 packages", true
}

func touch(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetectPackageManager(t *testing.T) {
	tests := []struct {
		name         string
		files        map[string]string
		wantManager  PackageManager
		wantLock     string
		wantMonorepo bool
	}{
		{"no lock file", nil, NPM, "package-lock.json", false},
		{"pnpm lock", map[string]string{"pnpm-lock.yaml": ""}, PNPM, "pnpm-lock.yaml", false},
		{"pnpm workspace", map[string]string{"pnpm-workspace.yaml": ""}, PNPM, "pnpm-lock.yaml", true},
		{"pnpm beats yarn", map[string]string{"pnpm-lock.yaml": "", "yarn.lock": ""}, PNPM, "pnpm-lock.yaml", false},
		{"bun", map[string]string{"bun.lock": ""}, Bun, "bun.lock", false},
		{"yarn workspaces", map[string]string{"yarn.lock": "", "package.json": `{"workspaces":["a"]}`}, Yarn, "yarn.lock", true},
		{"workspace protocol", map[string]string{"package.json": `{"dependencies":{"x":"workspace:*"}}`}, PNPM, "pnpm-lock.yaml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				touch(t, dir, name, content)
			}
			got := DetectPackageManager(dir)
			if got.Manager != tt.wantManager || got.LockFile != tt.wantLock || got.IsMonorepo != tt.wantMonorepo {
				t.Errorf("expected %s/%s/%v, got %s/%s/%v", tt.wantManager, tt.wantLock, tt.wantMonorepo,
					got.Manager, got.LockFile, got.IsMonorepo)
			}
		})
	}
}

func TestAddCommand(t *testing.T) {
	pkgs := []string{"zod", "clsx"}
	tests := map[PackageManager]string{
		PNPM: "pnpm add zod clsx",
		Yarn: "yarn add zod clsx",
		Bun:  "bun add zod clsx",
		NPM:  "npm install --legacy-peer-deps zod clsx",
	}
	for m, want := range tests {
		if got := m.AddCommand(pkgs); got != want {
			t.Errorf("%s: expected %q, got %q", m, want, got)
		}
	}
}

func TestAddPackagesSuccess(t *testing.T) {
	app := t.TempDir()
	touch(t, app, "package.json", "{}")
	touch(t, app, "pnpm-lock.yaml", "")

	runner := &recordingRunner{ok: true}
	res, err := NewInstaller(runner, nil).AddPackages(context.Background(), app, []string{"zod"})
	if err != nil {
		t.Fatalf("AddPackages failed: %v", err)
	}
	if runner.commands[0] != "pnpm add zod" {
		t.Errorf("expected pnpm add zod, got %q", runner.commands[0])
	}
	if strings.Join(res.Files, ",") != "package.json,pnpm-lock.yaml" {
		t.Errorf("unexpected files %v", res.Files)
	}
}

func TestAddPackagesInFrontendDir(t *testing.T) {
	app := t.TempDir()
	touch(t, app, "frontend/package.json", "{}")
	touch(t, app, "frontend/package-lock.json", "{}")
	touch(t, app, "backend/main.py", "")

	runner := &recordingRunner{ok: true}
	res, err := NewInstaller(runner, nil).AddPackages(context.Background(), app, []string{"axios"})
	if err != nil {
		t.Fatalf("AddPackages failed: %v", err)
	}
	if runner.dirs[0] != filepath.Join(app, "frontend") {
		t.Errorf("expected install in frontend dir, got %s", runner.dirs[0])
	}
	if strings.Join(res.Files, ",") != "frontend/package.json,frontend/package-lock.json" {
		t.Errorf("unexpected files %v", res.Files)
	}
}

func TestAddPackagesFailure(t *testing.T) {
	app := t.TempDir()
	_, err := NewInstaller(&recordingRunner{ok: false}, nil).AddPackages(context.Background(), app, []string{"nope"})
	if !errors.Is(err, ErrInstallFailed) {
		t.Errorf("expected ErrInstallFailed, got %v", err)
	}
}
