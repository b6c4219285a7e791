package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// fakeProbe reports every binary in installed and fails for the rest.
func fakeProbe(installed ...string) Probe {
	return func(_ context.Context, name string, _ ...string) (string, string, error) {
		for _, bin := range installed {
			if bin == name {
				return "/usr/bin/" + name, name + " 1.0", nil
			}
		}
		return "", "", errors.New("not found")
	}
}

func hasIssue(d Diagnosis, substr string) bool {
	for _, issue := range d.Issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}

func TestDiagnoseFullstack(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"backend/go.mod":         "module api\n",
		"backend/main.go":        "package main\n",
		"frontend/package.json":  `{"scripts": {"dev": "vite"}}`,
		"frontend/src/client.ts": "const url = import.meta.env.VITE_OCTO_DOCTOR_URL",
	})

	d := Diagnose(context.Background(), dir, Options{Probe: fakeProbe("go", "node", "npm")})

	if d.Healthy {
		t.Fatal("expected missing dependencies to make the app unhealthy")
	}
	if len(d.Parts) != 2 || d.Parts[0].Name != "backend" || d.Parts[1].Name != "frontend" {
		t.Fatalf("unexpected parts %+v", d.Parts)
	}
	be, fe := d.Parts[0], d.Parts[1]
	if be.StartCommand != "go run ." || !be.Runtime.Installed || be.Runtime.Version != "go 1.0" {
		t.Errorf("unexpected backend %+v", be)
	}
	if fe.StartCommand != "npm run dev" || fe.InstallCommand != "npm install --legacy-peer-deps" {
		t.Errorf("unexpected frontend %+v", fe)
	}
	if !hasIssue(d, "frontend: dependencies are not installed") {
		t.Errorf("expected install issue, got %v", d.Issues)
	}
	if !hasIssue(d, "VITE_OCTO_DOCTOR_URL is not set (used in src/client.ts:1)") {
		t.Errorf("expected env issue, got %v", d.Issues)
	}
	if d.Docker != nil {
		t.Error("docker must only be checked in docker mode")
	}
}

func TestDiagnoseHealthyApp(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"package.json":              `{"scripts": {"start": "node server.js"}}`,
		"node_modules/.keep":        "",
		"server.js":                 "process.env.OCTO_DOCTOR_KEY",
		".env":                      "OCTO_DOCTOR_KEY=abc",
		"node_modules/dep/index.js": "process.env.IGNORED",
	})

	d := Diagnose(context.Background(), dir, Options{Probe: fakeProbe("node", "npm")})

	if !d.Healthy || len(d.Issues) != 0 {
		t.Fatalf("expected healthy app, got %v", d.Issues)
	}
	if len(d.Parts) != 1 || d.Parts[0].Name != "app" || d.Parts[0].StartCommand != "npm start" {
		t.Errorf("unexpected parts %+v", d.Parts)
	}
}

func TestDiagnoseMissingRuntime(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"python", map[string]string{"backend/requirements.txt": "fastapi", "backend/main.py": ""}, "backend: Python runtime is not installed"},
		{"rust", map[string]string{"Cargo.toml": "[package]"}, "app: Rust runtime is not installed"},
		{"unknown backend", map[string]string{"backend/README.md": ""}, "backend: no start command found"},
		{"package manager", map[string]string{"package.json": "{}", "node_modules/.keep": ""}, "package manager npm is not installed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files)
			d := Diagnose(context.Background(), dir, Options{Probe: fakeProbe("node")})
			if d.Healthy || !hasIssue(d, tt.want) {
				t.Errorf("expected issue %q, got %v", tt.want, d.Issues)
			}
		})
	}
}

func TestDiagnosePythonFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"requirements.txt": "flask", "app.py": ""})

	d := Diagnose(context.Background(), dir, Options{Probe: fakeProbe("python")})
	if !d.Healthy {
		t.Fatalf("expected python to satisfy the runtime, got %v", d.Issues)
	}
	if d.Parts[0].Runtime.Path != "/usr/bin/python" {
		t.Errorf("unexpected runtime %+v", d.Parts[0].Runtime)
	}
}

func TestDiagnoseDocker(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"go.mod": "module x\n"})

	d := Diagnose(context.Background(), dir, Options{Docker: true, Probe: fakeProbe("go")})
	if d.Docker == nil || d.Docker.Installed {
		t.Fatalf("expected docker to be reported missing, got %+v", d.Docker)
	}
	if !hasIssue(d, "Docker is not installed") {
		t.Errorf("expected docker issue, got %v", d.Issues)
	}

	d = Diagnose(context.Background(), dir, Options{Docker: true, Probe: fakeProbe("go", "docker")})
	if !d.Healthy {
		t.Errorf("expected healthy app, got %v", d.Issues)
	}
}

func TestParts(t *testing.T) {
	dir := t.TempDir()
	if got := Parts(dir); len(got) != 1 || got[0].Name != "app" || got[0].Dir != dir {
		t.Errorf("unexpected flat parts %+v", got)
	}
	writeFiles(t, dir, map[string]string{"frontend/package.json": "{}"})
	if got := Parts(dir); len(got) != 1 || got[0].Dir != filepath.Join(dir, "frontend") {
		t.Errorf("unexpected frontend-only parts %+v", got)
	}
}
