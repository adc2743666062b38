package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRunArgs_Basic(t *testing.T) {
	args := BuildRunArgs(RunSpec{
		Image:    "python:3.11",
		RepoPath: "/src/repo",
		Command:  []string{"python", "-m", "coverage", "erase"},
		Env:      map[string]string{"PYTHONUSERBASE": "/workspace/.local"},
	})

	assert.Equal(t, []string{
		"docker", "run", "--rm",
		"-v", "/src/repo:/workspace", "-w", "/workspace",
		"-e", "PYTHONUSERBASE=/workspace/.local",
		"python:3.11",
		"python", "-m", "coverage", "erase",
	}, args)
}

func TestBuildRunArgs_TTYOnlyWhenRequested(t *testing.T) {
	without := BuildRunArgs(RunSpec{Image: "img", RepoPath: "/r", Command: []string{"true"}})
	assert.NotContains(t, without, "-t")

	with := BuildRunArgs(RunSpec{Image: "img", RepoPath: "/r", Command: []string{"true"}, TTY: true})
	require.GreaterOrEqual(t, len(with), 4)
	assert.Equal(t, "-t", with[3])
}

func TestBuildRunArgs_CacheOverridesEnv(t *testing.T) {
	args := BuildRunArgs(RunSpec{
		Image:    "img",
		RepoPath: "/r",
		CacheDir: "/host/cache",
		Command:  []string{"pip", "install"},
		Env:      map[string]string{CacheEnvVar: "/workspace/.uv_cache", "A": "1"},
	})

	assert.Contains(t, args, "/host/cache:"+CacheDir)
	assert.Contains(t, args, CacheEnvVar+"="+CacheDir)
	assert.NotContains(t, args, CacheEnvVar+"=/workspace/.uv_cache")
	assert.Contains(t, args, "A=1")
}

func TestBuildRunArgs_DoesNotMutateEnv(t *testing.T) {
	env := map[string]string{"A": "1"}
	BuildRunArgs(RunSpec{Image: "img", RepoPath: "/r", CacheDir: "/c", Env: env})
	assert.Equal(t, map[string]string{"A": "1"}, env)
}

func TestBuildRunArgs_EnvSorted(t *testing.T) {
	args := BuildRunArgs(RunSpec{
		Image:    "img",
		RepoPath: "/r",
		Env:      map[string]string{"B": "2", "A": "1", "C": "3"},
	})
	var envs []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-e" {
			envs = append(envs, args[i+1])
		}
	}
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, envs)
}

func TestRunSpecCmd_Container(t *testing.T) {
	spec := RunSpec{Image: "img", RepoPath: "/r", Command: []string{"true"}}
	cmd := spec.Cmd()
	assert.Equal(t, BuildRunArgs(spec), cmd.Args)
	assert.Empty(t, cmd.Dir)
	assert.Empty(t, cmd.Env)
}

func TestRunSpecCmd_Host(t *testing.T) {
	cmd := RunSpec{
		Host:     true,
		RepoPath: "/src/repo",
		CacheDir: "/host/cache",
		Command:  []string{"python", "-m", "pytest"},
		Env: map[string]string{
			"PYTHONUSERBASE": "/workspace/.local",
			"PATH":           "/workspace/.local/bin:/usr/bin",
		},
	}.Cmd()

	assert.Equal(t, []string{"python", "-m", "pytest"}, cmd.Args)
	assert.Equal(t, "/src/repo", cmd.Dir)
	assert.Equal(t, []string{
		"PATH=/src/repo/.local/bin:/usr/bin",
		"PYTHONUSERBASE=/src/repo/.local",
		"UV_CACHE_DIR=/host/cache",
	}, cmd.Env)
}

func TestIsLocal(t *testing.T) {
	assert.True(t, IsLocal("local"))
	assert.True(t, IsLocal(""))
	assert.False(t, IsLocal("python:3.11"))
}
