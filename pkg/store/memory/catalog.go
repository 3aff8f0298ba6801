package memory

import (
	"context"
	"sort"
	"time"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/store"
)

// UpsertDependency resolves a coordinate to its canonical catalog row.
// Same-coordinate upserts are serialized through a striped lock; different
// coordinates proceed in parallel. First writer wins descriptive metadata;
// later observations fill empty fields, and conflicting non-empty values
// surface as warnings without modifying the stored row.
func (s *Store) UpsertDependency(ctx context.Context, dep *model.Dependency) (*model.Dependency, []errors.Warning, error) {
	coord := dep.Coordinate()
	stripe := &s.depLocks[stripeFor(coord)]
	stripe.Lock()
	defer stripe.Unlock()

	s.mu.RLock()
	id, exists := s.byCoord[coord]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		// Re-check under the write lock: another stripe collision may have
		// inserted between the two lock acquisitions.
		if id, exists = s.byCoord[coord]; !exists {
			now := time.Now().UTC()
			row := *dep
			row.ID = allocID(&s.nextDepID)
			row.CreatedAt = now
			row.UpdatedAt = now
			s.deps[row.ID] = &row
			s.byCoord[coord] = row.ID
			s.mu.Unlock()
			cp := row
			return &cp, nil, nil
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.deps[id]
	warnings := mergeMetadata(row, dep)
	row.UpdatedAt = time.Now().UTC()
	cp := *row
	return &cp, warnings, nil
}

// mergeMetadata applies fill-null semantics to descriptive attributes and
// reports conflicts for differing non-empty values.
func mergeMetadata(row, observed *model.Dependency) []errors.Warning {
	var warnings []errors.Warning
	coord := row.Coordinate().String()

	merge := func(field string, current *string, incoming string) {
		switch {
		case incoming == "" || incoming == *current:
		case *current == "":
			*current = incoming
		default:
			warnings = append(warnings, errors.Warnf(errors.WarnMetadataConflict, coord,
				"%s %q conflicts with stored %q", field, incoming, *current))
		}
	}
	merge("repo_url", &row.RepoURL, observed.RepoURL)
	merge("description", &row.Description, observed.Description)
	return warnings
}

// SetVulnCount records the advisory count from the latest correlation.
func (s *Store) SetVulnCount(ctx context.Context, depID uint64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.deps[depID]
	if !ok {
		return store.NotFound("dependency", depID)
	}
	row.VulnCount = count
	row.UpdatedAt = time.Now().UTC()
	return nil
}

// ListDependencies returns catalog rows, optionally filtered by exact type.
func (s *Store) ListDependencies(ctx context.Context, pkgType string) ([]model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Dependency, 0, len(s.deps))
	for _, d := range s.deps {
		if pkgType != "" && string(d.PackageType) != pkgType {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DependencyStats aggregates the whole catalog.
func (s *Store) DependencyStats(ctx context.Context) (*store.Stats, error) {
	deps, err := s.ListDependencies(ctx, "")
	if err != nil {
		return nil, err
	}

	stats := &store.Stats{
		TotalDependencies: len(deps),
		ByType:            make(map[string]int),
	}
	for _, d := range deps {
		stats.ByType[string(d.PackageType)]++
	}

	// Most-vulnerable first makes the sample useful on the stats page.
	sort.SliceStable(deps, func(i, j int) bool { return deps[i].VulnCount > deps[j].VulnCount })
	if len(deps) > store.TopDependenciesLimit {
		deps = deps[:store.TopDependenciesLimit]
	}
	stats.TopDependencies = deps
	return stats, nil
}
