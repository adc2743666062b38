package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validRepos = `
- https://github.com/taigaio/taiga-back
- url: https://github.com/mir/fiddle-test-cov.git
  docker:
    image: python:3.12-slim
    packages: [libpq-dev]
    pip_packages: [coverage, pytest, pytest-django]
    env:
      DJANGO_SETTINGS_MODULE: tests.config
  requirements:
    - requirements/dev.txt
  coverage:
    run_command: "python -m coverage run -m pytest -x"
    export_formats: [json]
- url: https://example.com/org/hostonly
  docker:
    enabled: false
`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"COVERAGE_DOCKER_IMAGE", "COVDIFF_CACHE_DIR", "COVDIFF_DATABASE_URL", "COVDIFF_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadReposBothForms(t *testing.T) {
	path := writeTestFile(t, "repos.yaml", validRepos)
	repos, err := LoadRepos(path)
	if err != nil {
		t.Fatalf("LoadRepos() error: %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("got %d repos, want 3", len(repos))
	}

	plain := repos[0]
	if plain.Name != "taiga-back" {
		t.Errorf("Name = %q, want %q", plain.Name, "taiga-back")
	}
	if !plain.Docker.Enabled || plain.Docker.Image != DefaultImage {
		t.Errorf("scalar entry should get docker defaults, got %+v", plain.Docker)
	}
	if len(plain.Coverage.ExportFormats) != 3 {
		t.Errorf("ExportFormats = %v, want defaults", plain.Coverage.ExportFormats)
	}
	if plain.Coverage.RunCommand != "" {
		t.Errorf("RunCommand = %q, want empty", plain.Coverage.RunCommand)
	}

	full := repos[1]
	if full.Name != "fiddle-test-cov" {
		t.Errorf("Name = %q, want %q", full.Name, "fiddle-test-cov")
	}
	if full.Docker.Image != "python:3.12-slim" {
		t.Errorf("Image = %q", full.Docker.Image)
	}
	if !full.Docker.Enabled {
		t.Error("enabled should default to true when docker block omits it")
	}
	if len(full.Docker.Packages) != 1 || full.Docker.Packages[0] != "libpq-dev" {
		t.Errorf("Packages = %v", full.Docker.Packages)
	}
	if full.Docker.Env["DJANGO_SETTINGS_MODULE"] != "tests.config" {
		t.Errorf("Env = %v", full.Docker.Env)
	}
	if len(full.Requirements) != 1 || full.Requirements[0] != "requirements/dev.txt" {
		t.Errorf("Requirements = %v", full.Requirements)
	}
	if full.Coverage.RunCommand != "python -m coverage run -m pytest -x" {
		t.Errorf("RunCommand = %q", full.Coverage.RunCommand)
	}
	if !full.Coverage.WantsFormat(FormatJSON) || full.Coverage.WantsFormat(FormatHTML) {
		t.Errorf("ExportFormats = %v, want [json]", full.Coverage.ExportFormats)
	}

	host := repos[2]
	if host.Docker.Enabled {
		t.Error("explicit enabled: false was ignored")
	}
	if host.Docker.Image != DefaultImage {
		t.Errorf("Image = %q, want default", host.Docker.Image)
	}
}

func TestLoadReposMissingFile(t *testing.T) {
	repos, err := LoadRepos(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(repos) != 0 {
		t.Errorf("got %d repos, want 0", len(repos))
	}
}

func TestLoadReposEmptyFile(t *testing.T) {
	repos, err := LoadRepos(writeTestFile(t, "repos.yaml", ""))
	if err != nil {
		t.Fatalf("empty file should not error: %v", err)
	}
	if len(repos) != 0 {
		t.Errorf("got %d repos, want 0", len(repos))
	}
}

func TestLoadReposRejectsSequenceEntry(t *testing.T) {
	_, err := LoadRepos(writeTestFile(t, "repos.yaml", "- [a, b]\n"))
	if err == nil {
		t.Fatal("expected error for a list item that is neither URL nor mapping")
	}
}

func TestLoadReposInvalidYAML(t *testing.T) {
	_, err := LoadRepos(writeTestFile(t, "repos.yaml", "- url: [unclosed\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/taigaio/taiga-back":      "taiga-back",
		"https://github.com/taigaio/taiga-back/":     "taiga-back",
		"https://github.com/mir/fiddle-test-cov.git": "fiddle-test-cov",
		"git@github.com:mir/fiddle-test-cov.git":     "fiddle-test-cov",
		"  https://host/x/y  ":                       "y",
		"":                                           "",
	}
	for in, want := range cases {
		if got := NameFromURL(in); got != want {
			t.Errorf("NameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestByName(t *testing.T) {
	m := ByName([]RepoConfig{NewRepoConfig("https://h/a/one"), NewRepoConfig("https://h/a/two.git")})
	if _, ok := m["one"]; !ok {
		t.Error("missing one")
	}
	if _, ok := m["two"]; !ok {
		t.Error("missing two")
	}
}

func TestValidateValid(t *testing.T) {
	repos, err := LoadRepos(writeTestFile(t, "repos.yaml", validRepos))
	if err != nil {
		t.Fatal(err)
	}
	if errs := Validate(repos); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidateErrors(t *testing.T) {
	bad := NewRepoConfig("https://h/org/dup")
	bad.Coverage.ExportFormats = []string{"json", "lcov"}
	noImage := NewRepoConfig("https://h/org/noimage")
	noImage.Docker.Image = ""

	repos := []RepoConfig{
		NewRepoConfig("https://h/org/dup"),
		bad,
		{},
		noImage,
	}
	errs := Validate(repos)

	want := []string{
		"duplicate repository name \"dup\"",
		"unrecognized format \"lcov\"",
		"repos[2].url: is required",
		"repos[3].docker.image: is required when docker is enabled",
	}
	var joined []string
	for _, e := range errs {
		joined = append(joined, e.Error())
	}
	all := strings.Join(joined, "\n")
	for _, w := range want {
		if !strings.Contains(all, w) {
			t.Errorf("missing error containing %q in:\n%s", w, all)
		}
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "repos[0].url", Message: "is required"}
	if e.Error() != "repos[0].url: is required" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	clearEnv(t)
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ArtifactsRoot != DefaultArtifactsRoot || s.ReposRoot != DefaultReposRoot || s.ReposFile != DefaultReposFile {
		t.Errorf("unexpected roots: %+v", s)
	}
	if s.Image != DefaultImage {
		t.Errorf("Image = %q", s.Image)
	}
	if s.LogLevel != "info" {
		t.Errorf("LogLevel = %q", s.LogLevel)
	}
	if d, _ := s.StepTimeoutDuration(); d != 0 {
		t.Errorf("StepTimeout = %v, want 0", d)
	}
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeTestFile(t, "config.toml", `
artifacts_root = "/data/artifacts"
image = "python:3.11"
cache_dir = "/data/uv"
step_timeout = "10m"
log_level = "debug"
`)
	t.Setenv("COVERAGE_DOCKER_IMAGE", "python:3.12")
	t.Setenv("COVDIFF_DATABASE_URL", "postgres://localhost/covdiff")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ArtifactsRoot != "/data/artifacts" {
		t.Errorf("ArtifactsRoot = %q", s.ArtifactsRoot)
	}
	if s.Image != "python:3.12" {
		t.Errorf("env should override file image, got %q", s.Image)
	}
	if s.CacheDir != "/data/uv" {
		t.Errorf("CacheDir = %q", s.CacheDir)
	}
	if s.DatabaseURL != "postgres://localhost/covdiff" {
		t.Errorf("DatabaseURL = %q", s.DatabaseURL)
	}
	if d, _ := s.StepTimeoutDuration(); d != 10*time.Minute {
		t.Errorf("StepTimeout = %v", d)
	}
	if s.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", s.LogLevel)
	}
}

func TestLoadSettingsBadTimeout(t *testing.T) {
	clearEnv(t)
	path := writeTestFile(t, "config.toml", `step_timeout = "soon"`)
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected error for unparsable step_timeout")
	}
}

func TestLoadSettingsBadTOML(t *testing.T) {
	clearEnv(t)
	path := writeTestFile(t, "config.toml", `image = `)
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteTOML(t *testing.T) {
	var buf bytes.Buffer
	s := Settings{ArtifactsRoot: "run_artifacts", Image: "python:3.11"}
	if err := s.WriteTOML(&buf); err != nil {
		t.Fatalf("WriteTOML: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `artifacts_root = "run_artifacts"`) || !strings.Contains(out, `image = "python:3.11"`) {
		t.Errorf("unexpected TOML:\n%s", out)
	}
}
