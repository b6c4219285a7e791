// Package secrets reads an app's .env files and finds the environment
// variables its code uses that no file defines.
package secrets

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// EnvVar is a variable referenced from source code.
type EnvVar struct {
	Name string
	File string // relative to the scanned directory
	Line int
}

// Status compares the variables code uses with the ones .env files define.
type Status struct {
	Dir      string
	Required []EnvVar
	Defined  map[string]bool
	Missing  []EnvVar
	EnvFiles []string
}

// EnvFiles are read in order; later files override earlier ones.
var EnvFiles = []string{".env", ".env.local"}

var envPatterns = map[string]*regexp.Regexp{
	// process.env.VAR, process.env['VAR'], import.meta.env.VITE_VAR
	"js": regexp.MustCompile(`process\.env\.([A-Z][A-Z0-9_]*)|process\.env\[['"]([A-Z][A-Z0-9_]*)['"]\]|import\.meta\.env\.([A-Z][A-Z0-9_]*)`),
	// Deno.env.get('VAR') in server functions
	"deno": regexp.MustCompile(`Deno\.env\.get\(['"]([A-Z][A-Z0-9_]*)['"]\)`),
	// os.environ['VAR'], os.environ.get('VAR'), os.getenv('VAR')
	"python": regexp.MustCompile(`os\.environ(?:\.get)?\[?\(?['"]([A-Z][A-Z0-9_]*)['"]|os\.getenv\(['"]([A-Z][A-Z0-9_]*)['"]`),
	"go":     regexp.MustCompile(`os\.Getenv\(['"]([A-Z][A-Z0-9_]*)['"]\)`),
	"rust":   regexp.MustCompile(`(?:std::)?env::var\(['"]([A-Z][A-Z0-9_]*)['"]\)`),
}

var extensionPatterns = map[string][]string{
	".js":  {"js"},
	".jsx": {"js"},
	".mjs": {"js"},
	".cjs": {"js"},
	".ts":  {"js", "deno"},
	".tsx": {"js"},
	".py":  {"python"},
	".go":  {"go"},
	".rs":  {"rust"},
}

var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"venv":         true,
	".venv":        true,
	"__pycache__":  true,
	"target":       true,
}

// Usually provided by the system or the dev server.
var ignoredEnvVars = map[string]bool{
	"PATH":     true,
	"HOME":     true,
	"USER":     true,
	"NODE_ENV": true,
	"PORT":     true,
	"HOST":     true,
	"DEBUG":    true,
	"CI":       true,
	"MODE":     true,
	"DEV":      true,
	"PROD":     true,
	"SSR":      true,
	"BASE_URL": true,
	"TMPDIR":   true,
}

// Scan lists the variables referenced under dir, one entry per name (its
// first occurrence), sorted by name.
func Scan(dir string) ([]EnvVar, error) {
	found := make(map[string]EnvVar)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		kinds, ok := extensionPatterns[filepath.Ext(path)]
		if !ok {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		return scanFile(path, filepath.ToSlash(rel), kinds, found)
	})
	if err != nil {
		return nil, err
	}

	vars := make([]EnvVar, 0, len(found))
	for _, v := range found {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars, nil
}

func scanFile(path, rel string, kinds []string, found map[string]EnvVar) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		for _, kind := range kinds {
			for _, m := range envPatterns[kind].FindAllStringSubmatch(line, -1) {
				for _, name := range m[1:] {
					if name == "" || ignoredEnvVars[name] {
						continue
					}
					if _, seen := found[name]; !seen {
						found[name] = EnvVar{Name: name, File: rel, Line: lineNum}
					}
				}
			}
		}
	}
	return nil
}

// ReadEnvFile parses KEY=value lines. A missing file yields an empty map.
func ReadEnvFile(envPath string) (map[string]string, error) {
	vars := make(map[string]string)
	file, err := os.Open(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return vars, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return vars, scanner.Err()
}

// Check scans dir and reports which referenced variables its .env files
// leave undefined.
func Check(dir string) (Status, error) {
	status := Status{Dir: dir, Defined: make(map[string]bool)}
	required, err := Scan(dir)
	if err != nil {
		return status, err
	}
	status.Required = required

	for _, name := range EnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		status.EnvFiles = append(status.EnvFiles, name)
		vars, err := ReadEnvFile(path)
		if err != nil {
			return status, err
		}
		for k := range vars {
			status.Defined[k] = true
		}
	}

	for _, v := range required {
		if !status.Defined[v.Name] && os.Getenv(v.Name) == "" {
			status.Missing = append(status.Missing, v)
		}
	}
	return status, nil
}

// Environ formats vars as sorted KEY=value pairs for a process environment.
func Environ(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Mask hides the middle of values that look secret.
func Mask(value string) string {
	for _, prefix := range []string{"http://", "https://", "ws://", "wss://", "postgresql://", "redis://"} {
		if strings.HasPrefix(value, prefix) {
			return value
		}
	}
	if len(value) <= 10 {
		return value
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
