package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OCTO_DATA_DIR", "")
	t.Setenv("OCTO_LOG_LEVEL", "")
	t.Setenv("SUPABASE_ACCESS_TOKEN", "")

	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.RuntimeMode != RuntimeHost || s.ChatMode != "build" || s.StartupTimeout != 2*time.Minute {
		t.Errorf("unexpected defaults: %#v", s)
	}
	if s.AppsDir != filepath.Join(s.DataDir, "apps") {
		t.Errorf("expected apps dir under data dir, got %s", s.AppsDir)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := `data_dir: ` + dir + `
runtime_mode: docker
chat_mode: fullstack
write_sql_migrations: true
startup_timeout: 30s
supabase:
  access_token: from-file
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OCTO_DATA_DIR", "")
	t.Setenv("OCTO_LOG_LEVEL", "debug")
	t.Setenv("SUPABASE_ACCESS_TOKEN", "from-env")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.RuntimeMode != RuntimeDocker || s.ChatMode != "fullstack" || !s.WriteSQLMigrations {
		t.Errorf("unexpected settings: %#v", s)
	}
	if s.StartupTimeout != 30*time.Second {
		t.Errorf("expected 30s startup timeout, got %v", s.StartupTimeout)
	}
	if s.LogLevel != "debug" || s.Supabase.AccessToken != "from-env" {
		t.Errorf("expected env overrides, got level=%s token=%s", s.LogLevel, s.Supabase.AccessToken)
	}
	if s.DatabasePath != filepath.Join(dir, "octo.db") {
		t.Errorf("unexpected database path %s", s.DatabasePath)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("runtime_mode: vm\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected invalid runtime_mode to be rejected")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Setenv("OCTO_DATA_DIR", "")
	t.Setenv("OCTO_LOG_LEVEL", "")
	t.Setenv("SUPABASE_ACCESS_TOKEN", "")
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	in := Default()
	in.WriteSQLMigrations = true
	in.ChatMode = "ask"
	if err := Write(path, in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.ChatMode != "ask" || !out.WriteSQLMigrations || out.StartupTimeout != in.StartupTimeout {
		t.Errorf("round trip mismatch: %#v", out)
	}
}
