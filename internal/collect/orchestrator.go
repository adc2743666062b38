package collect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mir/fiddle-test-cov/internal/config"
	"github.com/mir/fiddle-test-cov/internal/lock"
	"github.com/mir/fiddle-test-cov/internal/pipeline"
	"github.com/mir/fiddle-test-cov/internal/report"
)

// ErrBaselineMissing is returned when the generated phase is requested
// before any baseline was collected.
var ErrBaselineMissing = errors.New("baseline coverage not found; run the baseline phase first")

// Recorder persists finished phase runs, e.g. to the history database.
type Recorder interface {
	RecordRun(ctx context.Context, sum *pipeline.Summary) error
}

// Orchestrator runs the pipeline over a batch of repositories.
type Orchestrator struct {
	runner   *Runner
	store    *pipeline.Store
	reporter *report.Reporter
	log      *report.Logger
	recorder Recorder
	newID    func() string
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. recorder may be nil.
func NewOrchestrator(r *Runner, store *pipeline.Store, reporter *report.Reporter, log *report.Logger, recorder Recorder) *Orchestrator {
	if log == nil {
		log = report.Discard()
	}
	return &Orchestrator{
		runner:   r,
		store:    store,
		reporter: reporter,
		log:      log,
		recorder: recorder,
		newID:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// CollectOpts holds options for one phase run.
type CollectOpts struct {
	Options
	Repos   []string                     // explicit subset; empty = every directory under ReposRoot
	Configs map[string]config.RepoConfig // per-repository overrides
}

// CollectResult describes a finished phase run.
type CollectResult struct {
	Summary     *pipeline.Summary
	SummaryPath string
}

// Collect runs every selected repository sequentially and writes the phase
// summary. A repository failing never stops the batch.
func (o *Orchestrator) Collect(ctx context.Context, opts CollectOpts) (*CollectResult, error) {
	if opts.Phase == pipeline.PhaseGenerated && !dirExists(o.store.PhaseDir(pipeline.PhaseBaseline)) {
		return nil, fmt.Errorf("%s: %w", o.store.PhaseDir(pipeline.PhaseBaseline), ErrBaselineMissing)
	}

	if opts.CacheDir != "" {
		l, err := lock.TryLock(opts.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("lock cache dir: %w", err)
		}
		defer func() {
			if err := l.Unlock(); err != nil {
				o.log.Warnf("release cache lock: %v", err)
			}
		}()
	}

	repos, err := DiscoverRepositories(opts.ReposRoot, opts.Repos)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		o.log.Warnf("no repositories found under %s", opts.ReposRoot)
	}

	results := make([]pipeline.RepoResult, 0, len(repos))
	for _, repo := range repos {
		var cfg *config.RepoConfig
		if c, ok := opts.Configs[repo]; ok {
			cfg = &c
		}
		if o.reporter != nil {
			o.reporter.RepoStarted(opts.Phase, repo)
		}
		res := o.runner.Run(ctx, opts.Options, repo, cfg)
		results = append(results, res)
		if o.reporter != nil {
			o.reporter.RepoDone(opts.Phase, res)
		}
	}

	sum := &pipeline.Summary{
		Phase:          opts.Phase,
		RunID:          o.newID(),
		GeneratedAt:    pipeline.Timestamp(o.now()),
		ArtifactsRoot:  o.store.Root(),
		ReposRoot:      opts.ReposRoot,
		IsolationImage: opts.Image,
		CacheDir:       opts.CacheDir,
		Results:        results,
	}
	path, err := o.store.SaveSummary(sum)
	if err != nil {
		return nil, err
	}

	if o.recorder != nil {
		if err := o.recorder.RecordRun(ctx, sum); err != nil {
			o.log.Warnf("record run %s: %v", sum.RunID, err)
		}
	}

	return &CollectResult{Summary: sum, SummaryPath: path}, nil
}

// DiscoverRepositories returns the explicit list sorted, or every
// subdirectory of root. A missing root yields no repositories.
func DiscoverRepositories(root string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		out := append([]string(nil), explicit...)
		sort.Strings(out)
		return out, nil
	}
	names, err := pipeline.ListDirs(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return names, nil
}
