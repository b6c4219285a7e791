// Package settings loads the user's configuration file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harshul/octo-studio/internal/cmdroute"
)

// RuntimeMode selects where apps run.
type RuntimeMode string

const (
	RuntimeHost   RuntimeMode = "host"
	RuntimeDocker RuntimeMode = "docker"
)

// Supabase holds Management API credentials.
type Supabase struct {
	AccessToken string `yaml:"access_token,omitempty"`
	APIURL      string `yaml:"api_url,omitempty"`
}

// Proxy controls the preview reverse proxy.
type Proxy struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Settings is the configuration read from settings.yaml.
type Settings struct {
	DataDir            string        `yaml:"data_dir,omitempty"`
	AppsDir            string        `yaml:"apps_dir,omitempty"`
	DatabasePath       string        `yaml:"database_path,omitempty"`
	RuntimeMode        RuntimeMode   `yaml:"runtime_mode,omitempty"`
	ChatMode           string        `yaml:"chat_mode,omitempty"`
	WriteSQLMigrations bool          `yaml:"write_sql_migrations"`
	StartupTimeout     time.Duration `yaml:"startup_timeout,omitempty"`
	LogLevel           string        `yaml:"log_level,omitempty"`
	Supabase           Supabase      `yaml:"supabase,omitempty"`
	Proxy              Proxy         `yaml:"proxy,omitempty"`
}

// DefaultDataDir is ~/.octo, or .octo in the working directory when the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".octo"
	}
	return filepath.Join(home, ".octo")
}

// DefaultPath is the settings file inside the default data directory.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "settings.yaml")
}

// Default returns the settings used when no file exists.
func Default() Settings {
	s := Settings{}
	s.applyDefaults()
	return s
}

func (s *Settings) applyDefaults() {
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir()
	}
	if s.AppsDir == "" {
		s.AppsDir = filepath.Join(s.DataDir, "apps")
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataDir, "octo.db")
	}
	if s.RuntimeMode == "" {
		s.RuntimeMode = RuntimeHost
	}
	if s.ChatMode == "" {
		s.ChatMode = "build"
	}
	if s.StartupTimeout <= 0 {
		s.StartupTimeout = 2 * time.Minute
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Proxy.Listen == "" {
		s.Proxy.Listen = "127.0.0.1:0"
	}
}

// applyEnv lets environment variables override file values.
func (s *Settings) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("OCTO_DATA_DIR")); v != "" {
		s.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("OCTO_LOG_LEVEL")); v != "" {
		s.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("SUPABASE_ACCESS_TOKEN")); v != "" {
		s.Supabase.AccessToken = v
	}
}

// Validate rejects values the rest of the program cannot use.
func (s Settings) Validate() error {
	switch s.RuntimeMode {
	case RuntimeHost, RuntimeDocker:
	default:
		return fmt.Errorf("invalid runtime_mode %q (want host or docker)", s.RuntimeMode)
	}
	if !cmdroute.ChatMode(s.ChatMode).Valid() {
		return fmt.Errorf("invalid chat_mode %q", s.ChatMode)
	}
	return nil
}

// Write writes the settings as a YAML file.
func Write(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(&s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads path. A missing file yields defaults; environment overrides
// apply either way.
func Load(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Settings{}, err
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	s.applyEnv()
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
