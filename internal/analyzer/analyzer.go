// Package analyzer inspects an app directory: its frontend/backend layout
// and the framework its server runs on.
package analyzer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Layout describes how an app splits into frontend and backend parts.
type Layout string

const (
	LayoutFlat         Layout = "flat"
	LayoutFrontendOnly Layout = "frontend-only"
	LayoutBackendOnly  Layout = "backend-only"
	LayoutFullstack    Layout = "fullstack"
)

const (
	FrontendDir = "frontend"
	BackendDir  = "backend"
)

// HasFrontend reports whether the layout has a frontend/ directory.
func (l Layout) HasFrontend() bool { return l == LayoutFrontendOnly || l == LayoutFullstack }

// HasBackend reports whether the layout has a backend/ directory.
func (l Layout) HasBackend() bool { return l == LayoutBackendOnly || l == LayoutFullstack }

// DetectLayout inspects appDir. It is cheap and always reflects what is on
// disk right now.
func DetectLayout(appDir string) Layout {
	fe := isDir(filepath.Join(appDir, FrontendDir))
	be := isDir(filepath.Join(appDir, BackendDir))
	switch {
	case fe && be:
		return LayoutFullstack
	case fe:
		return LayoutFrontendOnly
	case be:
		return LayoutBackendOnly
	}
	return LayoutFlat
}

// Framework is a detected server framework.
type Framework string

const (
	FrameworkUnknown Framework = ""
	FrameworkNode    Framework = "nodejs"
	FrameworkDjango  Framework = "django"
	FrameworkFastAPI Framework = "fastapi"
	FrameworkFlask   Framework = "flask"
	FrameworkPython  Framework = "python"
	FrameworkGo      Framework = "go"
	FrameworkRust    Framework = "rust"
)

// IsPython reports whether the framework runs on Python.
func (f Framework) IsPython() bool {
	switch f {
	case FrameworkDjango, FrameworkFastAPI, FrameworkFlask, FrameworkPython:
		return true
	}
	return false
}

// signalFile represents a file that signals a specific project type.
type signalFile struct {
	filename  string
	framework Framework
}

// Signal files for backend detection, in priority order
var signalFiles = []signalFile{
	{"package.json", FrameworkNode},
	{"requirements.txt", FrameworkPython},
	{"pyproject.toml", FrameworkPython},
	{"go.mod", FrameworkGo},
	{"Cargo.toml", FrameworkRust},
}

// DetectFramework returns the server framework of the project in dir.
func DetectFramework(dir string) Framework {
	for _, sf := range signalFiles {
		if !exists(filepath.Join(dir, sf.filename)) {
			continue
		}
		if sf.framework == FrameworkPython {
			return detectPythonFramework(dir)
		}
		return sf.framework
	}
	return FrameworkUnknown
}

func detectPythonFramework(dir string) Framework {
	switch {
	case exists(filepath.Join(dir, "manage.py")):
		return FrameworkDjango
	case exists(filepath.Join(dir, "main.py")):
		return FrameworkFastAPI
	case exists(filepath.Join(dir, "app.py")):
		return FrameworkFlask
	}
	return FrameworkPython
}

// StartCommand is the command that serves the project in dir with
// framework f, or "" when there is no sensible default.
func StartCommand(f Framework, dir string) string {
	switch f {
	case FrameworkNode:
		return nodeStartCommand(dir)
	case FrameworkDjango:
		return "python manage.py runserver"
	case FrameworkFastAPI:
		return "uvicorn main:app --reload --host 0.0.0.0 --port 8000"
	case FrameworkFlask:
		return "flask --app app.py run --host=0.0.0.0 --port=5000"
	case FrameworkPython:
		if exists(filepath.Join(dir, "app.py")) {
			return "python3 app.py"
		}
		return "python3 main.py"
	case FrameworkGo:
		if !exists(filepath.Join(dir, "main.go")) && isDir(filepath.Join(dir, "cmd")) {
			return "go run ./cmd/..."
		}
		return "go run ."
	case FrameworkRust:
		return "cargo run"
	}
	return ""
}

// Use npm scripts instead of raw script content so node_modules/.bin is on
// PATH.
func nodeStartCommand(dir string) string {
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil || json.Unmarshal(data, &pkg) != nil {
		return "npm start"
	}
	if _, ok := pkg.Scripts["start"]; ok {
		return "npm start"
	}
	if _, ok := pkg.Scripts["dev"]; ok {
		return "npm run dev"
	}
	return "npm start"
}

// ProjectInfo summarizes an app directory.
type ProjectInfo struct {
	Name      string
	Root      string
	Layout    Layout
	Framework Framework
}

// AnalyzeProject inspects path and returns its layout and the framework of
// its server part.
func AnalyzeProject(path string) (ProjectInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ProjectInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ProjectInfo{}, err
	}
	if !info.IsDir() {
		return ProjectInfo{}, os.ErrInvalid
	}

	pi := ProjectInfo{Name: filepath.Base(abs), Root: abs, Layout: DetectLayout(abs)}
	serverDir := abs
	if pi.Layout.HasBackend() {
		serverDir = filepath.Join(abs, BackendDir)
	} else if pi.Layout == LayoutFrontendOnly {
		serverDir = filepath.Join(abs, FrontendDir)
	}
	pi.Framework = DetectFramework(serverDir)
	if name := packageName(abs); name != "" {
		pi.Name = name
	}
	return pi, nil
}

func packageName(dir string) string {
	var pkg struct {
		Name string `json:"name"`
	}
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil || json.Unmarshal(data, &pkg) != nil {
		return ""
	}
	return strings.TrimSpace(pkg.Name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
