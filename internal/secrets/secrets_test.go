package secrets

import (
	"os"
	"path/filepath"
	"slices"
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

func names(vars []EnvVar) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Name
	}
	return out
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/client.ts":                     "const url = import.meta.env.VITE_SUPABASE_URL\nconst mode = process.env.NODE_ENV",
		"server/app.js":                     "const key = process.env['STRIPE_KEY'];",
		"main.py":                           "import os\nDB = os.environ.get('DATABASE_URL')\nX = os.getenv(\"OPENAI_API_KEY\")",
		"supabase/functions/hello/index.ts": "const k = Deno.env.get('SERVICE_ROLE_KEY')",
		"node_modules/pkg/index.js":         "process.env.IGNORED_DEP",
		"cmd/main.go":                       `v := os.Getenv("LISTEN_ADDR")`,
		"README.md":                         "process.env.NOT_CODE",
	})

	vars, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"DATABASE_URL", "LISTEN_ADDR", "OPENAI_API_KEY", "SERVICE_ROLE_KEY", "STRIPE_KEY", "VITE_SUPABASE_URL"}
	if got := names(vars); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, v := range vars {
		if v.Name == "DATABASE_URL" && (v.File != "main.py" || v.Line != 2) {
			t.Errorf("unexpected location %s:%d", v.File, v.Line)
		}
	}
}

func TestReadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFiles(t, dir, map[string]string{".env": "# comment\nA=1\nexport B = \"two words\"\nbroken\nC='x=y'\n"})

	vars, err := ReadEnvFile(path)
	if err != nil {
		t.Fatalf("ReadEnvFile failed: %v", err)
	}
	if len(vars) != 3 || vars["A"] != "1" || vars["B"] != "two words" || vars["C"] != "x=y" {
		t.Errorf("unexpected vars %v", vars)
	}

	missing, err := ReadEnvFile(filepath.Join(dir, "nope"))
	if err != nil || len(missing) != 0 {
		t.Errorf("expected empty map for missing file, got %v, %v", missing, err)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/db.ts":  "process.env.OCTO_TEST_DB_URL; process.env.OCTO_TEST_API_KEY; process.env.OCTO_TEST_LOCAL",
		".env":       "OCTO_TEST_DB_URL=postgres://x",
		".env.local": "OCTO_TEST_LOCAL=1",
	})

	status, err := Check(dir)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !slices.Equal(status.EnvFiles, []string{".env", ".env.local"}) {
		t.Errorf("unexpected env files %v", status.EnvFiles)
	}
	if got := names(status.Missing); !slices.Equal(got, []string{"OCTO_TEST_API_KEY"}) {
		t.Errorf("expected only OCTO_TEST_API_KEY missing, got %v", got)
	}

	t.Setenv("OCTO_TEST_API_KEY", "from-shell")
	status, _ = Check(dir)
	if len(status.Missing) != 0 {
		t.Errorf("variables set in the environment are not missing, got %v", names(status.Missing))
	}
}

func TestEnviron(t *testing.T) {
	got := Environ(map[string]string{"B": "2", "A": "1"})
	if !slices.Equal(got, []string{"A=1", "B=2"}) {
		t.Errorf("unexpected environ %v", got)
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"short", "short"},
		{"https://abc.supabase.co", "https://abc.supabase.co"},
		{"sk_live_1234567890", "sk_l**********7890"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
