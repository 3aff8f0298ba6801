// Package resolve deduplicates extractor output into the canonical
// dependency set for one analysis run and records the declared-by edges.
//
// Resolution is deterministic: identical extractor output yields an
// identical resolved set and edge list, which keeps regeneration diffs
// reproducible.
package resolve

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/extract"
	"github.com/depsight/depsight/pkg/model"
)

// Catalog is the slice of the store the resolver needs. All catalog access
// goes through this interface; the resolver never touches shared state
// directly.
type Catalog interface {
	UpsertDependency(ctx context.Context, dep *model.Dependency) (*model.Dependency, []errors.Warning, error)
}

// Result is the resolved dependency set for one run.
type Result struct {
	// Dependencies holds every catalog row observed in this run, including
	// the manifest roots, ordered by coordinate.
	Dependencies []model.Dependency
	// Roots identifies which of those rows are manifest roots (the
	// declaring side of every edge).
	Roots map[uint64]bool
	// Edges records declared-by relations: manifest root -> requirement.
	Edges []model.GraphEdge
	// Warnings accumulates catalog metadata conflicts.
	Warnings []errors.Warning
}

// Resolver maps extracted packages onto the shared dependency catalog.
type Resolver struct {
	catalog Catalog
	logger  *log.Logger
}

// New creates a resolver backed by the given catalog.
func New(catalog Catalog, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve upserts every observed coordinate into the catalog and builds the
// run's dependency set and edge list. Each manifest contributes a root row
// (the declaring package) plus one edge per requirement.
func (r *Resolver) Resolve(ctx context.Context, manifests []extract.Manifest) (*Result, error) {
	// Union of observations, first writer wins on descriptive metadata.
	observed := make(map[model.Coordinate]extract.Package)
	order := observe(observed, manifests)

	result := &Result{Roots: make(map[uint64]bool)}
	ids := make(map[model.Coordinate]uint64, len(order))

	for _, coord := range order {
		pkg := observed[coord]
		row, warnings, err := r.catalog.UpsertDependency(ctx, &model.Dependency{
			PackageType: pkg.Type,
			Name:        pkg.Name,
			Version:     pkg.Version,
			Description: pkg.Description,
			RepoURL:     pkg.RepoURL,
		})
		if err != nil {
			return nil, err
		}
		for _, w := range warnings {
			r.logger.Warn("catalog metadata conflict", "coordinate", w.Subject, "detail", w.Message)
		}
		result.Warnings = append(result.Warnings, warnings...)
		ids[coord] = row.ID
		result.Dependencies = append(result.Dependencies, *row)
	}

	result.Edges = buildEdges(manifests, ids, result.Roots)
	return result, nil
}

// observe merges manifests into the observation map and returns the
// deterministic upsert order: roots and requirements sorted by coordinate.
func observe(observed map[model.Coordinate]extract.Package, manifests []extract.Manifest) []model.Coordinate {
	for _, m := range manifests {
		root := rootPackage(m)
		if _, ok := observed[root.Coordinate()]; !ok {
			observed[root.Coordinate()] = root
		}
		for _, pkg := range m.Packages {
			if _, ok := observed[pkg.Coordinate()]; !ok {
				observed[pkg.Coordinate()] = pkg
			}
		}
	}

	order := make([]model.Coordinate, 0, len(observed))
	for coord := range observed {
		order = append(order, coord)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Version < b.Version
	})
	return order
}

// rootPackage represents the manifest's declaring package as a catalog row.
// Unnamed manifests fall back to their repository path for identity.
func rootPackage(m extract.Manifest) extract.Package {
	name := m.Root
	if name == "" {
		name = m.Path
	}
	return extract.Package{Type: m.Type, Name: name}
}

func buildEdges(manifests []extract.Manifest, ids map[model.Coordinate]uint64, roots map[uint64]bool) []model.GraphEdge {
	type edgeKey struct{ from, to uint64 }
	seen := make(map[edgeKey]bool)
	var edges []model.GraphEdge

	for _, m := range manifests {
		rootID := ids[rootPackage(m).Coordinate()]
		roots[rootID] = true
		for _, pkg := range m.Packages {
			toID := ids[pkg.Coordinate()]
			key := edgeKey{rootID, toID}
			if seen[key] || rootID == toID {
				continue
			}
			seen[key] = true
			edges = append(edges, model.GraphEdge{From: rootID, To: toID})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}
