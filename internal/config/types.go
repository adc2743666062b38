package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultImage is the isolation image used when neither the repository entry
// nor the settings name one.
const DefaultImage = "ghcr.io/astral-sh/uv:python3.11-bookworm-slim"

// Export formats understood by the pipeline.
const (
	FormatJSON = "json"
	FormatXML  = "xml"
	FormatHTML = "html"
)

// DefaultExportFormats is used when a repository does not list its own.
var DefaultExportFormats = []string{FormatJSON, FormatXML, FormatHTML}

// RepoConfig is the canonical, fully defaulted description of one target
// repository. It is produced once at load time and never mutated afterwards.
type RepoConfig struct {
	URL          string         `yaml:"url"`
	Name         string         `yaml:"name"`
	Docker       DockerConfig   `yaml:"docker"`
	Requirements []string       `yaml:"requirements,omitempty"`
	Coverage     CoverageConfig `yaml:"coverage"`
}

// DockerConfig holds the isolation settings for a repository.
type DockerConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Image       string            `yaml:"image"`
	Packages    []string          `yaml:"packages,omitempty"`
	PipPackages []string          `yaml:"pip_packages,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
}

// CoverageConfig holds the test-run command and requested export formats.
type CoverageConfig struct {
	RunCommand    string   `yaml:"run_command,omitempty"`
	ExportFormats []string `yaml:"export_formats"`
}

// WantsFormat reports whether the given export format was requested.
func (c CoverageConfig) WantsFormat(f string) bool {
	for _, v := range c.ExportFormats {
		if v == f {
			return true
		}
	}
	return false
}

// RepoEntry is one item of the repositories file. An item is either a bare
// URL scalar or a mapping; both decode into the same RepoConfig.
type RepoEntry struct {
	Config RepoConfig
}

// rawRepo mirrors the mapping form. Pointer fields distinguish "absent" from
// an explicit zero value so defaults apply only to missing keys.
type rawRepo struct {
	URL    string `yaml:"url"`
	Docker *struct {
		Enabled     *bool             `yaml:"enabled"`
		Image       string            `yaml:"image"`
		Packages    []string          `yaml:"packages"`
		PipPackages []string          `yaml:"pip_packages"`
		Env         map[string]string `yaml:"env"`
	} `yaml:"docker"`
	Requirements []string `yaml:"requirements"`
	Coverage     *struct {
		RunCommand    string   `yaml:"run_command"`
		ExportFormats []string `yaml:"export_formats"`
	} `yaml:"coverage"`
}

// UnmarshalYAML resolves the scalar or mapping form into a RepoConfig.
func (e *RepoEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var url string
		if err := node.Decode(&url); err != nil {
			return err
		}
		e.Config = NewRepoConfig(url)
		return nil
	case yaml.MappingNode:
		var raw rawRepo
		if err := node.Decode(&raw); err != nil {
			return err
		}
		cfg := NewRepoConfig(raw.URL)
		if d := raw.Docker; d != nil {
			if d.Enabled != nil {
				cfg.Docker.Enabled = *d.Enabled
			}
			if d.Image != "" {
				cfg.Docker.Image = d.Image
			}
			cfg.Docker.Packages = d.Packages
			cfg.Docker.PipPackages = d.PipPackages
			cfg.Docker.Env = d.Env
		}
		cfg.Requirements = raw.Requirements
		if c := raw.Coverage; c != nil {
			cfg.Coverage.RunCommand = strings.TrimSpace(c.RunCommand)
			if c.ExportFormats != nil {
				cfg.Coverage.ExportFormats = c.ExportFormats
			}
		}
		e.Config = cfg
		return nil
	default:
		return fmt.Errorf("line %d: repository entry must be a URL or a mapping", node.Line)
	}
}

// NewRepoConfig returns the defaulted configuration for a repository URL.
func NewRepoConfig(url string) RepoConfig {
	url = strings.TrimSpace(url)
	return RepoConfig{
		URL:  url,
		Name: NameFromURL(url),
		Docker: DockerConfig{
			Enabled: true,
			Image:   DefaultImage,
		},
		Coverage: CoverageConfig{
			ExportFormats: append([]string(nil), DefaultExportFormats...),
		},
	}
}

// NameFromURL derives the repository name: the last path segment with any
// ".git" suffix removed.
func NameFromURL(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	return strings.TrimSuffix(url, ".git")
}
