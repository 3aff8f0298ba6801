// Package pipeline orchestrates the analysis run for a project: fetch the
// repository, extract manifests, resolve against the dependency catalog,
// correlate with the vulnerability feed, and assemble the report.
//
// Runs are all-or-nothing from the caller's perspective. The report and its
// artifacts are published only after every stage succeeded; a failed run
// leaves the project's report history untouched. At most one run per project
// is in flight at a time.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/extract"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/report"
	"github.com/depsight/depsight/pkg/resolve"
	"github.com/depsight/depsight/pkg/source/github"
	"github.com/depsight/depsight/pkg/store"
	"github.com/depsight/depsight/pkg/vulnfeed"
)

// Fetcher retrieves manifest trees from a repository host.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, token string, want func(name string) bool) (*github.Tree, error)
}

// RunStatus describes an in-flight analysis run.
type RunStatus struct {
	RunID     string
	ProjectID uint64
	Stage     model.RunStage
	StartedAt time.Time
}

// Runner executes analysis runs. Safe for concurrent use; concurrent runs
// for distinct projects proceed in parallel, concurrent runs for the same
// project are rejected.
type Runner struct {
	store      store.Store
	fetcher    Fetcher
	feed       vulnfeed.Feed
	assembler  *report.Assembler
	extractors []extract.Extractor
	logger     *log.Logger

	mu     sync.Mutex
	active map[uint64]*RunStatus
}

// New creates a runner. The extractor set defaults to all supported
// ecosystems.
func New(st store.Store, fetcher Fetcher, feed vulnfeed.Feed, assembler *report.Assembler, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		store:      st,
		fetcher:    fetcher,
		feed:       feed,
		assembler:  assembler,
		extractors: extract.All(),
		logger:     logger,
		active:     make(map[uint64]*RunStatus),
	}
}

// Submit creates or reuses the project tracking repoURL and runs a full
// analysis. The token is used for this fetch only and never stored; the
// project just remembers whether a credential was needed.
func (r *Runner) Submit(ctx context.Context, repoURL, token string) (*model.Project, *model.Report, error) {
	owner, repo, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return nil, nil, err
	}

	project, err := r.store.GetProjectByURL(ctx, repoURL)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrCodeNotFound):
		project = &model.Project{
			RepoURL: repoURL,
			Name:    owner + "/" + repo,
			Private: token != "",
		}
		if err := r.store.CreateProject(ctx, project); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, err
	}

	rep, err := r.run(ctx, project, token)
	if err != nil {
		return nil, nil, err
	}

	// The Private flag follows the credential that last worked. Syncing only
	// after a successful run keeps the regeneration guard intact when a
	// tokenless resubmit of a private repository fails to fetch.
	if project.Private != (token != "") {
		project.Private = token != ""
		if err := r.store.UpdateProject(ctx, project); err != nil {
			return nil, nil, err
		}
	}
	return project, rep, nil
}

// Regenerate produces a fresh report for an existing project. A project
// whose original fetch needed a credential cannot be regenerated without
// one; that is rejected before any stage starts.
func (r *Runner) Regenerate(ctx context.Context, projectID uint64, token string) (*model.Report, error) {
	project, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Private && token == "" {
		return nil, errors.New(errors.ErrCodeMissingCredential,
			"project %d tracks a private repository; a credential is required to regenerate", projectID)
	}
	return r.run(ctx, project, token)
}

// Status reports the in-flight run for a project, if any.
func (r *Runner) Status(projectID uint64) (RunStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status, ok := r.active[projectID]; ok {
		return *status, true
	}
	return RunStatus{}, false
}

// run drives the stage machine for one analysis run.
func (r *Runner) run(ctx context.Context, project *model.Project, token string) (*model.Report, error) {
	status, err := r.acquire(project.ID)
	if err != nil {
		return nil, err
	}
	defer r.release(project.ID)

	logger := r.logger.With("run", status.RunID, "project", project.ID)
	logger.Info("run started", "repo", project.RepoURL)

	tree, err := r.fetchStage(ctx, status, project, token)
	if err != nil {
		return nil, r.fail(status, logger, err)
	}

	manifests, warnings, err := r.extractStage(ctx, status, tree)
	if err != nil {
		return nil, r.fail(status, logger, err)
	}
	logger.Info("manifests extracted", "manifests", len(manifests), "warnings", len(warnings))

	resolved, err := r.resolveStage(ctx, status, manifests)
	if err != nil {
		return nil, r.fail(status, logger, err)
	}
	warnings = append(warnings, resolved.Warnings...)
	logger.Info("dependencies resolved",
		"dependencies", len(resolved.Dependencies), "edges", len(resolved.Edges))

	advisories, corrWarnings, err := r.correlateStage(ctx, status, resolved)
	if err != nil {
		return nil, r.fail(status, logger, err)
	}
	warnings = append(warnings, corrWarnings...)

	rep, err := r.assembleStage(ctx, status, project, resolved, advisories, warnings)
	if err != nil {
		return nil, r.fail(status, logger, err)
	}

	r.setStage(status, model.StageDone)
	logger.Info("run finished", "report", rep.ID,
		"dependencies", rep.TotalDependencies, "vulnerabilities", rep.TotalVulns)
	return rep, nil
}

func (r *Runner) fetchStage(ctx context.Context, status *RunStatus, project *model.Project, token string) (*github.Tree, error) {
	if err := r.enter(ctx, status, model.StageFetching); err != nil {
		return nil, err
	}
	return r.fetcher.Fetch(ctx, project.RepoURL, token, extract.SupportedFile)
}

func (r *Runner) extractStage(ctx context.Context, status *RunStatus, tree *github.Tree) ([]extract.Manifest, []errors.Warning, error) {
	if err := r.enter(ctx, status, model.StageExtracting); err != nil {
		return nil, nil, err
	}
	manifests, warnings := extract.Tree(tree, r.extractors)
	warnings = append(tree.Warnings, warnings...)
	if len(manifests) == 0 && len(tree.Files) > 0 {
		warnings = append(warnings, errors.Warnf(errors.WarnExtraction,
			tree.FullName(), "no manifest could be parsed"))
	}
	return manifests, warnings, nil
}

func (r *Runner) resolveStage(ctx context.Context, status *RunStatus, manifests []extract.Manifest) (*resolve.Result, error) {
	if err := r.enter(ctx, status, model.StageResolving); err != nil {
		return nil, err
	}
	return resolve.New(r.store, r.logger).Resolve(ctx, manifests)
}

func (r *Runner) correlateStage(ctx context.Context, status *RunStatus, resolved *resolve.Result) (map[uint64][]model.Advisory, []errors.Warning, error) {
	if err := r.enter(ctx, status, model.StageCorrelating); err != nil {
		return nil, nil, err
	}
	requirements := make([]model.Dependency, 0, len(resolved.Dependencies))
	for _, dep := range resolved.Dependencies {
		if !resolved.Roots[dep.ID] {
			requirements = append(requirements, dep)
		}
	}
	return r.feed.Correlate(ctx, requirements)
}

func (r *Runner) assembleStage(ctx context.Context, status *RunStatus, project *model.Project,
	resolved *resolve.Result, advisories map[uint64][]model.Advisory, warnings []errors.Warning) (*model.Report, error) {

	if err := r.enter(ctx, status, model.StageAssembling); err != nil {
		return nil, err
	}

	rep, err := r.assembler.Assemble(ctx, project, resolved, advisories, warnings)
	if err != nil {
		return nil, err
	}

	// Publication point: everything below lands in the system of record.
	for _, dep := range resolved.Dependencies {
		if resolved.Roots[dep.ID] {
			continue
		}
		if err := r.store.SetVulnCount(ctx, dep.ID, len(advisories[dep.ID])); err != nil {
			return nil, err
		}
	}
	if err := r.store.CreateReport(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// enter moves the run to the next stage, honoring cancellation at the
// boundary.
func (r *Runner) enter(ctx context.Context, status *RunStatus, stage model.RunStage) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeTimeout, err, "run cancelled before %s", stage)
	}
	r.setStage(status, stage)
	return nil
}

func (r *Runner) setStage(status *RunStatus, stage model.RunStage) {
	r.mu.Lock()
	status.Stage = stage
	r.mu.Unlock()
}

func (r *Runner) acquire(projectID uint64) (*RunStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if running, ok := r.active[projectID]; ok {
		return nil, errors.New(errors.ErrCodeRunInProgress,
			"analysis already running for project %d (run %s, stage %s)",
			projectID, running.RunID, running.Stage)
	}
	status := &RunStatus{
		RunID:     uuid.NewString(),
		ProjectID: projectID,
		Stage:     model.StagePending,
		StartedAt: time.Now().UTC(),
	}
	r.active[projectID] = status
	return status, nil
}

func (r *Runner) release(projectID uint64) {
	r.mu.Lock()
	delete(r.active, projectID)
	r.mu.Unlock()
}

func (r *Runner) fail(status *RunStatus, logger *log.Logger, err error) error {
	failedAt := status.Stage
	r.setStage(status, model.StageFailed)
	logger.Error("run failed", "stage", failedAt, "error", err)
	return err
}
