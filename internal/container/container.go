// Package container builds the argument vectors used to run pipeline steps
// inside an ephemeral docker container, or directly on the host when
// isolation is disabled. Nothing here spawns a process.
package container

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/mir/fiddle-test-cov/internal/runner"
)

const (
	// WorkspaceDir is where the repository is mounted inside the container.
	WorkspaceDir = "/workspace"
	// CacheDir is where the host dependency cache is mounted inside the container.
	CacheDir = "/root/.cache/uv"
	// CacheEnvVar points the package manager at the mounted cache.
	CacheEnvVar = "UV_CACHE_DIR"
	// LocalImage selects host execution instead of a container.
	LocalImage = "local"
)

// RunSpec describes one step to run against a repository checkout.
type RunSpec struct {
	Image    string
	RepoPath string // host path of the repository
	CacheDir string // host path of the dependency cache; "" = no cache mount
	Command  []string
	Env      map[string]string
	TTY      bool // allocate a pseudo-terminal (only when our own stdout is a terminal)
	Host     bool // run on the host instead of in a container
}

// IsLocal reports whether image selects host execution.
func IsLocal(image string) bool {
	return image == "" || image == LocalImage
}

// BuildRunArgs returns the docker argv that runs spec.Command in an ephemeral
// container with the repository mounted read-write as the working directory.
func BuildRunArgs(spec RunSpec) []string {
	args := []string{"docker", "run", "--rm"}
	if spec.TTY {
		args = append(args, "-t")
	}

	args = append(args, "-v", absPath(spec.RepoPath)+":"+WorkspaceDir, "-w", WorkspaceDir)

	env := copyEnv(spec.Env)
	if spec.CacheDir != "" {
		args = append(args, "-v", absPath(spec.CacheDir)+":"+CacheDir)
		env[CacheEnvVar] = CacheDir
	}

	for _, k := range sortedKeys(env) {
		args = append(args, "-e", k+"="+env[k])
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

// Cmd resolves spec into an executable command. In host mode, environment
// values that reference the container workspace are rewritten to the
// repository path.
func (spec RunSpec) Cmd() runner.Cmd {
	if !spec.Host {
		return runner.Cmd{Args: BuildRunArgs(spec)}
	}

	repo := absPath(spec.RepoPath)
	env := copyEnv(spec.Env)
	for k, v := range env {
		env[k] = strings.ReplaceAll(v, WorkspaceDir, repo)
	}
	if spec.CacheDir != "" {
		env[CacheEnvVar] = absPath(spec.CacheDir)
	}

	pairs := make([]string, 0, len(env))
	for _, k := range sortedKeys(env) {
		pairs = append(pairs, k+"="+env[k])
	}
	return runner.Cmd{
		Args: append([]string(nil), spec.Command...),
		Dir:  repo,
		Env:  pairs,
	}
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
