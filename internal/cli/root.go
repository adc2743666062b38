package cli

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mir/fiddle-test-cov/internal/config"
	"github.com/mir/fiddle-test-cov/internal/report"
	"github.com/mir/fiddle-test-cov/internal/runner"
)

var version = "dev"

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Global flags. Each one overrides the matching settings key when set.
var (
	settingsFile  string
	artifactsRoot string
	reposRoot     string
	reposFile     string
	image         string
	cacheDir      string
	stepTimeout   string
	databaseURL   string
	logLevel      string
)

// newCommandRunner is swapped out in tests so no command spawns processes.
var newCommandRunner = func() runner.CommandRunner { return &runner.ExecRunner{} }

// stdoutIsTerminal decides whether containers get a pseudo-terminal.
var stdoutIsTerminal = func() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var rootCmd = &cobra.Command{
	Use:   "covdiff",
	Short: "covdiff — collect and compare test coverage across repositories",
	Long: `covdiff runs each repository's test suite under coverage measurement inside
an isolated container, once before (baseline) and once after (generated) test
changes, and reports the per-repository and aggregate coverage difference.

Artifacts are written under <artifacts_root>/coverage_reports_before and
<artifacts_root>/coverage_reports_after. Settings are read from
~/.config/covdiff/config.toml; flags override settings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, so commands stop on cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadSettings resolves settings from the settings file, the environment and
// any flags set on cmd, in increasing precedence.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path := settingsFile
	if path == "" {
		path = config.DefaultSettingsPath()
	}
	s, err := config.LoadSettings(path)
	if err != nil {
		return config.Settings{}, err
	}

	overrides := []struct {
		flag string
		val  string
		dst  *string
	}{
		{"artifacts-root", artifactsRoot, &s.ArtifactsRoot},
		{"repos-root", reposRoot, &s.ReposRoot},
		{"repos-file", reposFile, &s.ReposFile},
		{"image", image, &s.Image},
		{"cache-dir", cacheDir, &s.CacheDir},
		{"step-timeout", stepTimeout, &s.StepTimeout},
		{"database-url", databaseURL, &s.DatabaseURL},
		{"log-level", logLevel, &s.LogLevel},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.dst = o.val
		}
	}
	if _, err := s.StepTimeoutDuration(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

// newLogger writes diagnostics to the command's stderr.
func newLogger(cmd *cobra.Command, s config.Settings) *report.Logger {
	return report.NewLogger(cmd.ErrOrStderr(), report.ParseLevel(s.LogLevel))
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&settingsFile, "config", "", "path to settings file (default ~/.config/covdiff/config.toml)")
	pf.StringVar(&artifactsRoot, "artifacts-root", "", "directory receiving coverage artifacts")
	pf.StringVar(&reposRoot, "repos-root", "", "directory containing one checkout per repository")
	pf.StringVar(&reposFile, "repos-file", "", "repository list (YAML)")
	pf.StringVar(&image, "image", "", "isolation image for every repository (\"local\" runs on the host)")
	pf.StringVar(&cacheDir, "cache-dir", "", "host dependency cache mounted into containers")
	pf.StringVar(&stepTimeout, "step-timeout", "", "deadline for each pipeline step, e.g. 20m (0 = none)")
	pf.StringVar(&databaseURL, "database-url", "", "PostgreSQL URL for run history")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(coverageCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
