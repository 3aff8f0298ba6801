// Package store defines the system of record for projects, reports, and the
// shared dependency catalog.
//
// Two implementations exist:
//   - memory: process-local, used by tests and single-instance deployments
//   - mongodb: production backend
//
// The catalog upsert contract is the critical piece: dependencies are keyed
// by (package_type, name, version) across the whole system, concurrent
// upserts of the same coordinate must be safe, and descriptive metadata
// follows first-writer-wins (later observations fill empty fields, never
// silently overwrite populated ones).
package store

import (
	"context"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
)

// Stats is the aggregate view over the dependency catalog.
type Stats struct {
	TotalDependencies int                `json:"total_dependencies"`
	ByType            map[string]int     `json:"by_type"`
	TopDependencies   []model.Dependency `json:"top_dependencies"`
}

// Store is the system of record. Implementations must be safe for
// concurrent use; catalog upserts must be serialized per coordinate, never
// behind a whole-catalog lock.
type Store interface {
	// CreateProject persists a new project and assigns its ID and timestamps.
	CreateProject(ctx context.Context, p *model.Project) error
	// GetProject returns one project or a NOT_FOUND error.
	GetProject(ctx context.Context, id uint64) (*model.Project, error)
	// GetProjectByURL returns the project tracking repoURL, or NOT_FOUND.
	GetProjectByURL(ctx context.Context, repoURL string) (*model.Project, error)
	// UpdateProject persists mutable project fields (name, description,
	// private flag). RepoURL and report history are never touched.
	UpdateProject(ctx context.Context, p *model.Project) error
	// ListProjects returns all projects, oldest first.
	ListProjects(ctx context.Context) ([]model.Project, error)

	// CreateReport appends an assembled report to its project's history and
	// assigns the report ID. Reports are immutable once created.
	CreateReport(ctx context.Context, r *model.Report) error
	// GetReport returns one report or a NOT_FOUND error.
	GetReport(ctx context.Context, id uint64) (*model.Report, error)
	// ListReportsByProject returns a project's reports, newest first.
	ListReportsByProject(ctx context.Context, projectID uint64) ([]model.Report, error)

	// UpsertDependency resolves a coordinate to its canonical catalog row,
	// creating it on first observation. Metadata conflicts are returned as
	// warnings, never errors.
	UpsertDependency(ctx context.Context, dep *model.Dependency) (*model.Dependency, []errors.Warning, error)
	// SetVulnCount records the advisory count from the latest correlation.
	SetVulnCount(ctx context.Context, depID uint64, count int) error
	// ListDependencies returns catalog rows, optionally filtered by exact
	// package type. An unrecognized type yields an empty slice, not an error.
	ListDependencies(ctx context.Context, pkgType string) ([]model.Dependency, error)
	// DependencyStats aggregates the whole catalog.
	DependencyStats(ctx context.Context) (*Stats, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// TopDependenciesLimit caps the stats sample the API exposes.
const TopDependenciesLimit = 20

// NotFound builds the canonical not-found error for a resource.
func NotFound(resource string, id uint64) error {
	return errors.New(errors.ErrCodeNotFound, "%s %d not found", resource, id)
}
