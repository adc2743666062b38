package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for tool settings.
const (
	DefaultArtifactsRoot = "run_artifacts"
	DefaultReposRoot     = "evals/github"
	DefaultLogLevel      = "info"
)

// Settings holds tool-wide configuration read from the TOML settings file.
type Settings struct {
	ArtifactsRoot string `toml:"artifacts_root"`
	ReposRoot     string `toml:"repos_root"`
	ReposFile     string `toml:"repos_file"`
	Image         string `toml:"image"`
	CacheDir      string `toml:"cache_dir"`
	StepTimeout   string `toml:"step_timeout"`
	DatabaseURL   string `toml:"database_url"`
	LogLevel      string `toml:"log_level"`
}

// LoadSettings reads settings from the given TOML file path.
// If the file does not exist, it returns defaults without error.
// Environment variables take precedence over file values:
//   - COVERAGE_DOCKER_IMAGE overrides image
//   - COVDIFF_CACHE_DIR     overrides cache_dir
//   - COVDIFF_DATABASE_URL  overrides database_url
//   - COVDIFF_LOG_LEVEL     overrides log_level
func LoadSettings(path string) (Settings, error) {
	var s Settings
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &s); err != nil {
				return Settings{}, fmt.Errorf("parsing settings %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(&s)
	applySettingDefaults(&s)
	if _, err := s.StepTimeoutDuration(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// DefaultSettingsPath returns ~/.config/covdiff/config.toml.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "covdiff", "config.toml")
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("COVERAGE_DOCKER_IMAGE"); v != "" {
		s.Image = v
	}
	if v := os.Getenv("COVDIFF_CACHE_DIR"); v != "" {
		s.CacheDir = v
	}
	if v := os.Getenv("COVDIFF_DATABASE_URL"); v != "" {
		s.DatabaseURL = v
	}
	if v := os.Getenv("COVDIFF_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
}

func applySettingDefaults(s *Settings) {
	if s.ArtifactsRoot == "" {
		s.ArtifactsRoot = DefaultArtifactsRoot
	}
	if s.ReposRoot == "" {
		s.ReposRoot = DefaultReposRoot
	}
	if s.ReposFile == "" {
		s.ReposFile = DefaultReposFile
	}
	if s.Image == "" {
		s.Image = DefaultImage
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
}

// StepTimeoutDuration parses step_timeout. Empty means no deadline.
func (s Settings) StepTimeoutDuration() (time.Duration, error) {
	if s.StepTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.StepTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid step_timeout %q: %w", s.StepTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid step_timeout %q: must not be negative", s.StepTimeout)
	}
	return d, nil
}

// WriteTOML encodes the settings to w.
func (s Settings) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(s)
}
