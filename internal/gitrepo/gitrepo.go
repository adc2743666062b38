// Package gitrepo clones the target repositories into the repositories root.
package gitrepo

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mir/fiddle-test-cov/internal/config"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Action is what Clone did for one repository.
type Action string

const (
	ActionCloned Action = "cloned"
	ActionExists Action = "exists"
	ActionFailed Action = "failed"
)

// CloneResult is the outcome for one repository.
type CloneResult struct {
	Name   string
	Path   string
	Action Action
	Commit string // HEAD after cloning, "" when unknown
	Err    error
}

// Manager clones repositories under a root directory.
type Manager struct {
	git  GitRunner
	root string
}

// NewManager creates a Manager rooted at root.
func NewManager(git GitRunner, root string) *Manager {
	if git == nil {
		git = &ExecGit{}
	}
	return &Manager{git: git, root: root}
}

// Path returns the checkout path for a repository name.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.root, name)
}

// Clone clones every repository that is not already present. A failure is
// recorded in its result and does not stop the remaining clones.
func (m *Manager) Clone(repos []config.RepoConfig) ([]CloneResult, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", m.root, err)
	}

	results := make([]CloneResult, 0, len(repos))
	for _, r := range repos {
		res := CloneResult{Name: r.Name, Path: m.Path(r.Name)}
		if _, err := os.Stat(res.Path); err == nil {
			res.Action = ActionExists
			res.Commit = m.Head(r.Name)
			results = append(results, res)
			continue
		}

		if _, err := m.git.Run("", "clone", r.URL, res.Path); err != nil {
			res.Action = ActionFailed
			res.Err = fmt.Errorf("clone %s: %w", r.Name, err)
			results = append(results, res)
			continue
		}
		res.Action = ActionCloned
		res.Commit = m.Head(r.Name)
		results = append(results, res)
	}
	return results, nil
}

// Head returns the checked-out commit of a repository, or "" if it cannot be read.
func (m *Manager) Head(name string) string {
	out, err := m.git.Run(m.Path(name), "rev-parse", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// Reset discards local changes and untracked files in a checkout, returning
// it to its committed HEAD.
func (m *Manager) Reset(name string) error {
	dir := m.Path(name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("reset %s: %w", name, err)
	}
	if _, err := m.git.Run(dir, "reset", "--hard", "HEAD"); err != nil {
		return fmt.Errorf("reset %s: %w", name, err)
	}
	if _, err := m.git.Run(dir, "clean", "-fdx"); err != nil {
		return fmt.Errorf("clean %s: %w", name, err)
	}
	return nil
}
