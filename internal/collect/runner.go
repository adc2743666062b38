// Package collect runs the per-repository coverage pipeline and drives it
// over a batch of repositories for one phase.
package collect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mir/fiddle-test-cov/internal/config"
	"github.com/mir/fiddle-test-cov/internal/container"
	"github.com/mir/fiddle-test-cov/internal/coverage"
	"github.com/mir/fiddle-test-cov/internal/pipeline"
	"github.com/mir/fiddle-test-cov/internal/report"
	"github.com/mir/fiddle-test-cov/internal/runner"
	"github.com/mir/fiddle-test-cov/internal/testrun"
)

// ProjectMarkers are the files whose presence marks a Python project.
var ProjectMarkers = []string{"pyproject.toml", "requirements.txt", "setup.py", "tox.ini"}

// DefaultRequirements are installed when a repository lists none of its own.
var DefaultRequirements = []string{"requirements.txt", "requirements-tests.txt"}

// DefaultPipPackages are installed when a repository lists none of its own.
var DefaultPipPackages = []string{"coverage", "pytest"}

const (
	userBase   = container.WorkspaceDir + "/.local"
	userPath   = container.WorkspaceDir + "/.local/bin:/usr/local/bin:/usr/bin:/bin"
	localCache = container.WorkspaceDir + "/.uv_cache"
)

// Options are the per-phase settings shared by every repository.
type Options struct {
	Phase     pipeline.Phase
	ReposRoot string
	Image     string // isolation image for repositories without their own
	// ForceImage makes Image win over per-repository images.
	ForceImage bool
	CacheDir   string
	SkipHTML   bool
	TTY        bool
}

// Runner executes the pipeline for a single repository.
type Runner struct {
	exec  *runner.Executor
	store *pipeline.Store
	log   *report.Logger
	now   func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(exec *runner.Executor, store *pipeline.Store, log *report.Logger) *Runner {
	if log == nil {
		log = report.Discard()
	}
	return &Runner{exec: exec, store: store, log: log, now: time.Now}
}

// repoRun carries the mutable state of one pipeline run.
type repoRun struct {
	ctx      context.Context
	r        *Runner
	opts     Options
	name     string
	path     string
	image    string
	host     bool
	status   pipeline.Status
	commands []runner.Result
	logLines []string
}

// Run executes every step for repo and returns its result. It never returns
// an error: failures become the result's status and log content.
func (r *Runner) Run(ctx context.Context, opts Options, repo string, cfg *config.RepoConfig) pipeline.RepoResult {
	started := r.now()
	image, host := resolveImage(opts, cfg)
	run := &repoRun{
		ctx:    ctx,
		r:      r,
		opts:   opts,
		name:   repo,
		path:   filepath.Join(opts.ReposRoot, repo),
		image:  image,
		host:   host,
		status: pipeline.StatusCompleted,
	}

	if _, err := r.store.ResetRepoDir(opts.Phase, repo); err != nil {
		r.log.Errorf("%s: reset artifact dir: %v", repo, err)
	}

	if !dirExists(run.path) {
		run.note(fmt.Sprintf("Repository %s not found at %s", repo, run.path), "Skipping coverage collection.")
		return run.shortCircuit(pipeline.StatusMissingRepository, started)
	}
	if !hasProjectMarker(run.path) {
		run.note("No standard Python project markers found; skipping coverage instrumentation.")
		return run.shortCircuit(pipeline.StatusSkippedNoProject, started)
	}

	base := baseEnv(cfg, opts.CacheDir)
	installEnv := withEnv(base, "PYTHONUSERBASE", userBase)
	runEnv := withEnv(installEnv, "PATH", userPath)
	py := pythonPrefix(image, host)

	pkgs := DefaultPipPackages
	if cfg != nil && len(cfg.Docker.PipPackages) > 0 {
		pkgs = cfg.Docker.PipPackages
	}
	run.step(append([]string{"pip", "install", "--user"}, pkgs...), installEnv, pipeline.StatusDependencySyncFailed)

	for _, req := range requirementFiles(run.path, cfg) {
		if !fileExists(filepath.Join(run.path, req)) {
			r.log.Debugf("%s: requirements file %s not present", repo, req)
			continue
		}
		run.step([]string{"pip", "install", "--user", "-r", req}, installEnv, pipeline.StatusDependencySyncFailed)
	}

	run.step(concat(py, "-m", "coverage", "erase"), runEnv, "")
	testRes := run.step(run.testCommand(py, cfg), runEnv, pipeline.StatusTestsFailed)
	tests := testrun.Parse(testRes.Stdout, testRes.Stderr)
	if tests != nil {
		r.log.Infof("%s: %s", repo, tests.Brief())
	}

	formats := config.CoverageConfig{ExportFormats: config.DefaultExportFormats}
	if cfg != nil {
		formats = cfg.Coverage
	}
	if formats.WantsFormat(config.FormatJSON) {
		run.step(concat(py, "-m", "coverage", "json", "-o", pipeline.CoverageJSON), runEnv, pipeline.StatusExportFailed)
	}
	if formats.WantsFormat(config.FormatXML) {
		run.step(concat(py, "-m", "coverage", "xml", "-o", pipeline.CoverageXML), runEnv, pipeline.StatusExportFailed)
	}
	if !opts.SkipHTML && formats.WantsFormat(config.FormatHTML) {
		run.step(concat(py, "-m", "coverage", "html"), runEnv, pipeline.StatusExportFailed)
	}

	artifacts := run.copyArtifacts()

	var totals *coverage.Totals
	if t := coverage.LoadFile(filepath.Join(r.store.RepoDir(opts.Phase, repo), pipeline.CoverageJSON)); !t.IsEmpty() {
		totals = &t
	}

	if err := r.store.SaveLog(opts.Phase, repo, strings.Join(run.logLines, "\n\n")); err != nil {
		r.log.Warnf("%s: write log: %v", repo, err)
	} else {
		artifacts = append(artifacts, pipeline.LogFile)
	}

	md := &pipeline.Metadata{
		Phase:          opts.Phase,
		Repository:     repo,
		Status:         run.status,
		Commands:       run.commands,
		Artifacts:      append(append([]string(nil), artifacts...), pipeline.MetadataFile),
		CoverageTotals: totals,
		Tests:          tests,
		IsolationImage: run.displayImage(),
		CacheDir:       opts.CacheDir,
		StartedAt:      pipeline.Timestamp(started),
		FinishedAt:     pipeline.Timestamp(r.now()),
	}
	if err := r.store.SaveMetadata(opts.Phase, repo, md); err != nil {
		r.log.Warnf("%s: write metadata: %v", repo, err)
	} else {
		artifacts = append(artifacts, pipeline.MetadataFile)
	}

	run.cleanup()

	return pipeline.RepoResult{
		Name:           repo,
		Status:         run.status,
		Commands:       run.commands,
		Artifacts:      artifacts,
		CoverageTotals: totals,
		Tests:          tests,
		StartedAt:      pipeline.Timestamp(started),
		FinishedAt:     pipeline.Timestamp(r.now()),
	}
}

// step runs one command, appends it to the log and folds its outcome into
// the status. An empty onFail makes the step non-fatal.
func (run *repoRun) step(cmd []string, env map[string]string, onFail pipeline.Status) runner.Result {
	spec := container.RunSpec{
		Image:    run.image,
		RepoPath: run.path,
		CacheDir: run.opts.CacheDir,
		Command:  cmd,
		Env:      env,
		TTY:      run.opts.TTY,
		Host:     run.host,
	}
	res := run.r.exec.Run(run.ctx, spec.Cmd())
	run.commands = append(run.commands, res)
	run.logLines = append(run.logLines, runner.FormatLogEntry(res))
	if onFail != "" {
		run.status = run.status.Observe(res, onFail)
	}
	if res.Failed() {
		run.r.log.Debugf("%s: %q exited %d", run.name, strings.Join(cmd, " "), res.ExitCode)
	}
	return res
}

// testCommand returns the coverage-instrumented test command. OS packages are
// installed in the same container invocation since containers are ephemeral.
func (run *repoRun) testCommand(py []string, cfg *config.RepoConfig) []string {
	cmd := concat(py, "-m", "coverage", "run", "-m", "pytest")
	if cfg != nil && cfg.Coverage.RunCommand != "" {
		cmd = strings.Fields(cfg.Coverage.RunCommand)
	}
	if cfg == nil || len(cfg.Docker.Packages) == 0 {
		return cmd
	}
	if run.host {
		run.note(fmt.Sprintf("Host execution: not installing OS packages %s", strings.Join(cfg.Docker.Packages, " ")))
		return cmd
	}
	script := "apt-get update -qq && apt-get install -y -qq " + shellJoin(cfg.Docker.Packages) + " && " + shellJoin(cmd)
	return []string{"sh", "-c", script}
}

// copyArtifacts copies produced coverage files into the artifact directory
// and returns the names actually copied.
func (run *repoRun) copyArtifacts() []string {
	dest := run.r.store.RepoDir(run.opts.Phase, run.name)
	var copied []string
	for _, name := range run.coverageFiles() {
		ok, err := pipeline.CopyArtifact(filepath.Join(run.path, name), filepath.Join(dest, name))
		if err != nil {
			run.r.log.Warnf("%s: copy %s: %v", run.name, name, err)
			run.note(fmt.Sprintf("Failed to copy %s: %v", name, err))
			continue
		}
		if !ok {
			continue
		}
		if name == pipeline.HTMLDir {
			name += "/"
		}
		copied = append(copied, name)
	}
	return copied
}

// cleanup removes coverage output from the repository checkout.
func (run *repoRun) cleanup() {
	for _, name := range run.coverageFiles() {
		if err := pipeline.RemoveArtifact(filepath.Join(run.path, name)); err != nil {
			run.r.log.Warnf("%s: remove %s: %v", run.name, name, err)
		}
	}
}

func (run *repoRun) coverageFiles() []string {
	files := []string{pipeline.CoverageData, pipeline.CoverageJSON, pipeline.CoverageXML}
	if !run.opts.SkipHTML {
		files = append(files, pipeline.HTMLDir)
	}
	return files
}

func (run *repoRun) note(lines ...string) {
	run.logLines = append(run.logLines, lines...)
}

func (run *repoRun) displayImage() string {
	if run.host {
		return container.LocalImage
	}
	return run.image
}

func (run *repoRun) shortCircuit(status pipeline.Status, started time.Time) pipeline.RepoResult {
	r := run.r
	var artifacts []string
	if err := r.store.SaveLog(run.opts.Phase, run.name, strings.Join(run.logLines, "\n")); err != nil {
		r.log.Warnf("%s: write log: %v", run.name, err)
	} else {
		artifacts = append(artifacts, pipeline.LogFile)
	}
	r.log.Infof("%s: %s", run.name, status)
	return pipeline.RepoResult{
		Name:       run.name,
		Status:     status,
		Commands:   []runner.Result{},
		Artifacts:  artifacts,
		StartedAt:  pipeline.Timestamp(started),
		FinishedAt: pipeline.Timestamp(r.now()),
	}
}

func resolveImage(opts Options, cfg *config.RepoConfig) (string, bool) {
	image := opts.Image
	if cfg != nil && !opts.ForceImage && cfg.Docker.Image != "" {
		image = cfg.Docker.Image
	}
	host := container.IsLocal(image) || (cfg != nil && !cfg.Docker.Enabled)
	return image, host
}

func baseEnv(cfg *config.RepoConfig, cacheDir string) map[string]string {
	env := make(map[string]string)
	if cfg != nil {
		for k, v := range cfg.Docker.Env {
			env[k] = v
		}
	}
	if cacheDir == "" {
		env[container.CacheEnvVar] = localCache
	}
	return env
}

func withEnv(env map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out[key] = value
	return out
}

// pythonPrefix picks the interpreter invocation for the image.
func pythonPrefix(image string, host bool) []string {
	if !host && strings.Contains(image, "uv") {
		return []string{"uv", "run", "python"}
	}
	return []string{"python"}
}

func requirementFiles(repoPath string, cfg *config.RepoConfig) []string {
	if cfg != nil && len(cfg.Requirements) > 0 {
		return cfg.Requirements
	}
	var files []string
	for _, f := range DefaultRequirements {
		if fileExists(filepath.Join(repoPath, f)) {
			files = append(files, f)
		}
	}
	return files
}

func hasProjectMarker(dir string) bool {
	for _, m := range ProjectMarkers {
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func concat(prefix []string, rest ...string) []string {
	return append(append([]string(nil), prefix...), rest...)
}

// shellJoin quotes args for sh -c.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && strings.IndexFunc(a, needsQuote) < 0 {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
