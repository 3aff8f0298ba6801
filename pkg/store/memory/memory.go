// Package memory provides the in-process store implementation.
//
// It backs tests and single-instance deployments. Catalog upserts are
// serialized per coordinate through striped locks so concurrent pipeline
// runs for unrelated projects never contend on each other's packages.
package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/store"
)

const lockStripes = 64

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	projects map[uint64]*model.Project
	byURL    map[string]uint64
	reports  map[uint64]*model.Report
	deps     map[uint64]*model.Dependency
	byCoord  map[model.Coordinate]uint64

	// IDs are allocated per record type, matching the sequence-per-collection
	// behavior of the mongodb backend.
	nextProjectID uint64
	nextReportID  uint64
	nextDepID     uint64

	depLocks [lockStripes]sync.Mutex
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		projects: make(map[uint64]*model.Project),
		byURL:    make(map[string]uint64),
		reports:  make(map[uint64]*model.Report),
		deps:     make(map[uint64]*model.Dependency),
		byCoord:  make(map[model.Coordinate]uint64),
	}
}

func allocID(seq *uint64) uint64 {
	*seq++
	return *seq
}

// CreateProject persists a new project.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byURL[p.RepoURL]; exists {
		return errors.New(errors.ErrCodeInvalidInput, "project for %s already exists", p.RepoURL)
	}
	p.ID = allocID(&s.nextProjectID)
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	cp := *p
	s.projects[p.ID] = &cp
	s.byURL[p.RepoURL] = p.ID
	return nil
}

// GetProject returns one project.
func (s *Store) GetProject(ctx context.Context, id uint64) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, store.NotFound("project", id)
	}
	cp := *p
	return &cp, nil
}

// GetProjectByURL returns the project tracking repoURL.
func (s *Store) GetProjectByURL(ctx context.Context, repoURL string) (*model.Project, error) {
	s.mu.RLock()
	id, ok := s.byURL[repoURL]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "no project for %s", repoURL)
	}
	return s.GetProject(ctx, id)
}

// UpdateProject persists mutable fields of an existing project.
func (s *Store) UpdateProject(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.projects[p.ID]
	if !ok {
		return store.NotFound("project", p.ID)
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.Private = p.Private
	existing.UpdatedAt = time.Now().UTC()
	p.UpdatedAt = existing.UpdatedAt
	return nil
}

// ListProjects returns all projects ordered by ID (creation order).
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateReport appends a report to its project's history.
func (s *Store) CreateReport(ctx context.Context, r *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[r.ProjectID]; !ok {
		return store.NotFound("project", r.ProjectID)
	}
	r.ID = allocID(&s.nextReportID)
	cp := *r
	s.reports[r.ID] = &cp
	return nil
}

// GetReport returns one report.
func (s *Store) GetReport(ctx context.Context, id uint64) (*model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, store.NotFound("report", id)
	}
	cp := *r
	return &cp, nil
}

// ListReportsByProject returns a project's reports, newest first.
func (s *Store) ListReportsByProject(ctx context.Context, projectID uint64) ([]model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Report
	for _, r := range s.reports {
		if r.ProjectID == projectID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out, nil
}

// Close does nothing for the in-memory store.
func (s *Store) Close(ctx context.Context) error { return nil }

var _ store.Store = (*Store)(nil)

func stripeFor(c model.Coordinate) uint32 {
	h := fnv.New32a()
	h.Write([]byte(c.String()))
	return h.Sum32() % lockStripes
}
