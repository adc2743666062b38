package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mir/fiddle-test-cov/internal/collect"
	"github.com/mir/fiddle-test-cov/internal/config"
	"github.com/mir/fiddle-test-cov/internal/db"
	"github.com/mir/fiddle-test-cov/internal/diff"
	"github.com/mir/fiddle-test-cov/internal/pipeline"
	"github.com/mir/fiddle-test-cov/internal/report"
	"github.com/mir/fiddle-test-cov/internal/runner"
)

var (
	collectRepos []string
	skipHTML     bool

	diffOutput       string
	diffBaselineDir  string
	diffGeneratedDir string
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Collect coverage for a phase or compare the two phases",
}

var coverageBaselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Collect coverage before test changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd, pipeline.PhaseBaseline)
	},
}

var coverageGeneratedCmd = &cobra.Command{
	Use:   "generated",
	Short: "Collect coverage after test changes (requires a baseline)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd, pipeline.PhaseGenerated)
	},
}

var coverageDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare baseline and generated coverage",
	Args:  cobra.NoArgs,
	RunE:  runDiff,
}

func runCollect(cmd *cobra.Command, phase pipeline.Phase) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, s)
	timeout, err := s.StepTimeoutDuration()
	if err != nil {
		return err
	}

	repos, err := config.LoadRepos(s.ReposFile)
	if err != nil {
		return err
	}
	if errs := config.Validate(repos); len(errs) > 0 {
		for _, e := range errs {
			log.Errorf("%s", e)
		}
		return fmt.Errorf("%s has %d validation error(s)", s.ReposFile, len(errs))
	}

	ctx := cmd.Context()
	recorder, closeRecorder := openRecorder(ctx, s, log)
	defer closeRecorder()

	store := pipeline.NewStore(s.ArtifactsRoot)
	exec := runner.NewExecutor(newCommandRunner(), timeout)
	reporter := report.NewReporter(cmd.OutOrStdout())
	orch := collect.NewOrchestrator(collect.NewRunner(exec, store, log), store, reporter, log, recorder)

	reporter.Heading("Collecting %s coverage", phase)
	res, err := orch.Collect(ctx, collect.CollectOpts{
		Options: collect.Options{
			Phase:      phase,
			ReposRoot:  s.ReposRoot,
			Image:      s.Image,
			ForceImage: cmd.Flags().Changed("image"),
			CacheDir:   s.CacheDir,
			SkipHTML:   skipHTML,
			TTY:        stdoutIsTerminal(),
		},
		Repos:   collectRepos,
		Configs: config.ByName(repos),
	})
	if err != nil {
		return err
	}

	completed := 0
	for _, r := range res.Summary.Results {
		if r.Status.OK() {
			completed++
		}
	}
	reporter.Printf("\n%d/%d repositories completed. Summary written to %s\n",
		completed, len(res.Summary.Results), res.SummaryPath)
	return nil
}

// openRecorder connects to the history database when one is configured. A
// connection failure is logged and collection proceeds unrecorded.
func openRecorder(ctx context.Context, s config.Settings, log *report.Logger) (collect.Recorder, func()) {
	if s.DatabaseURL == "" {
		return nil, func() {}
	}
	d, err := db.Open(ctx, s.DatabaseURL)
	if err != nil {
		log.Warnf("run history disabled: %v", err)
		return nil, func() {}
	}
	if err := d.Migrate(ctx); err != nil {
		log.Warnf("run history disabled: %v", err)
		d.Close()
		return nil, func() {}
	}
	return d, d.Close
}

func runDiff(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	store := pipeline.NewStore(s.ArtifactsRoot)
	baseDir := diffBaselineDir
	if baseDir == "" {
		baseDir = store.PhaseDir(pipeline.PhaseBaseline)
	}
	genDir := diffGeneratedDir
	if genDir == "" {
		genDir = store.PhaseDir(pipeline.PhaseGenerated)
	}

	reporter := report.NewReporter(cmd.OutOrStdout())
	res, err := diff.Compute(baseDir, genDir)
	switch {
	case errors.Is(err, diff.ErrPhaseDirMissing):
		return fmt.Errorf("%w; run 'covdiff coverage baseline' and 'covdiff coverage generated' first", err)
	case err != nil:
		return err
	}

	reporter.Heading("Computing coverage diff...")
	for _, rec := range res.Records {
		reporter.Printf("%s | status=%s\n", diff.RepoLineBody(rec), reporter.DiffStatus(rec.Status))
	}
	reporter.Printf("\nAggregate:\n")
	for _, line := range diff.FormatAggregate(res.Aggregate) {
		reporter.Printf("%s\n", line)
	}

	if diffOutput != "" {
		if err := diff.SaveJSON(diffOutput, res, time.Now()); err != nil {
			return err
		}
		reporter.Printf("\nJSON summary written to %s\n", diffOutput)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{coverageBaselineCmd, coverageGeneratedCmd} {
		c.Flags().StringArrayVar(&collectRepos, "repo", nil, "repository name to process (repeatable; default all under repos root)")
		c.Flags().BoolVar(&skipHTML, "skip-html", false, "skip the HTML report")
	}
	coverageDiffCmd.Flags().StringVarP(&diffOutput, "output", "o", "", "write the diff as JSON to this path")
	coverageDiffCmd.Flags().StringVar(&diffBaselineDir, "baseline-dir", "", "baseline artifact directory (default <artifacts_root>/coverage_reports_before)")
	coverageDiffCmd.Flags().StringVar(&diffGeneratedDir, "generated-dir", "", "generated artifact directory (default <artifacts_root>/coverage_reports_after)")

	coverageCmd.AddCommand(coverageBaselineCmd)
	coverageCmd.AddCommand(coverageGeneratedCmd)
	coverageCmd.AddCommand(coverageDiffCmd)
}
