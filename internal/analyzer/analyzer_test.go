package analyzer

import (
	"os"
	"path/filepath"
	"testing"
)

func mkfiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDetectLayout(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  Layout
	}{
		{"flat", []string{"package.json"}, LayoutFlat},
		{"frontend only", []string{"frontend/package.json"}, LayoutFrontendOnly},
		{"backend only", []string{"backend/main.py"}, LayoutBackendOnly},
		{"fullstack", []string{"frontend/package.json", "backend/requirements.txt"}, LayoutFullstack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			mkfiles(t, dir, tt.files...)
			if got := DetectLayout(dir); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDetectFrameworkAndStartCommand(t *testing.T) {
	tests := []struct {
		name      string
		files     []string
		want      Framework
		wantStart string
	}{
		{"node", []string{"package.json"}, FrameworkNode, "npm start"},
		{"django", []string{"requirements.txt", "manage.py"}, FrameworkDjango, "python manage.py runserver"},
		{"fastapi", []string{"requirements.txt", "main.py"}, FrameworkFastAPI, "uvicorn main:app --reload --host 0.0.0.0 --port 8000"},
		{"flask", []string{"requirements.txt", "app.py"}, FrameworkFlask, "flask --app app.py run --host=0.0.0.0 --port=5000"},
		{"plain python", []string{"pyproject.toml"}, FrameworkPython, "python3 main.py"},
		{"go", []string{"go.mod", "main.go"}, FrameworkGo, "go run ."},
		{"rust", []string{"Cargo.toml"}, FrameworkRust, "cargo run"},
		{"unknown", []string{"README.md"}, FrameworkUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			mkfiles(t, dir, tt.files...)
			got := DetectFramework(dir)
			if got != tt.want {
				t.Fatalf("expected framework %q, got %q", tt.want, got)
			}
			if start := StartCommand(got, dir); start != tt.wantStart {
				t.Errorf("expected start %q, got %q", tt.wantStart, start)
			}
		})
	}
}

func TestNodeStartCommandPrefersScripts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"scripts":{"dev":"vite"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := StartCommand(FrameworkNode, dir); got != "npm run dev" {
		t.Errorf("expected npm run dev, got %q", got)
	}
}

func TestAnalyzeProject(t *testing.T) {
	dir := t.TempDir()
	mkfiles(t, dir, "frontend/package.json", "backend/requirements.txt", "backend/manage.py")
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"todo-app"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := AnalyzeProject(dir)
	if err != nil {
		t.Fatalf("AnalyzeProject failed: %v", err)
	}
	if info.Name != "todo-app" || info.Layout != LayoutFullstack || info.Framework != FrameworkDjango {
		t.Errorf("unexpected info %#v", info)
	}
	if !info.Framework.IsPython() {
		t.Error("expected django to be a python framework")
	}
}
