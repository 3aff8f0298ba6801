package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/store"
)

// UpsertDependency resolves a coordinate to its canonical catalog row.
// The unique coordinate index acts as the per-key compare-and-set: a losing
// concurrent insert observes a duplicate-key error and re-reads the winner.
func (s *Store) UpsertDependency(ctx context.Context, dep *model.Dependency) (*model.Dependency, []errors.Warning, error) {
	filter := bson.M{
		"package_type": dep.PackageType,
		"name":         dep.Name,
		"version":      dep.Version,
	}

	var existing model.Dependency
	err := s.deps().FindOne(ctx, filter).Decode(&existing)
	if err == mongo.ErrNoDocuments {
		id, err := s.nextID(ctx, "dependencies")
		if err != nil {
			return nil, nil, err
		}
		row := *dep
		row.ID = id
		now := time.Now().UTC()
		row.CreatedAt = now
		row.UpdatedAt = now

		if _, err := s.deps().InsertOne(ctx, &row); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// Lost the race; the concurrent writer's row is canonical.
				if err := s.deps().FindOne(ctx, filter).Decode(&existing); err != nil {
					return nil, nil, err
				}
				return s.fillMetadata(ctx, &existing, dep)
			}
			return nil, nil, err
		}
		return &row, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return s.fillMetadata(ctx, &existing, dep)
}

// fillMetadata applies fill-null semantics to descriptive attributes of an
// existing row and reports conflicts for differing non-empty values.
func (s *Store) fillMetadata(ctx context.Context, row *model.Dependency, observed *model.Dependency) (*model.Dependency, []errors.Warning, error) {
	set := bson.M{}
	var warnings []errors.Warning
	coord := row.Coordinate().String()

	merge := func(field string, current *string, incoming string) {
		switch {
		case incoming == "" || incoming == *current:
		case *current == "":
			*current = incoming
			set[field] = incoming
		default:
			warnings = append(warnings, errors.Warnf(errors.WarnMetadataConflict, coord,
				"%s %q conflicts with stored %q", field, incoming, *current))
		}
	}
	merge("repo_url", &row.RepoURL, observed.RepoURL)
	merge("description", &row.Description, observed.Description)

	if len(set) > 0 {
		// Guard each fill with an emptiness filter so a concurrent writer
		// that populated the field first keeps its value.
		for field, value := range set {
			_, err := s.deps().UpdateOne(ctx,
				bson.M{"_id": row.ID, "$or": bson.A{
					bson.M{field: ""},
					bson.M{field: bson.M{"$exists": false}},
				}},
				bson.M{"$set": bson.M{field: value, "updated_at": time.Now().UTC()}},
			)
			if err != nil {
				return nil, warnings, err
			}
		}
	}
	return row, warnings, nil
}

// SetVulnCount records the advisory count from the latest correlation.
func (s *Store) SetVulnCount(ctx context.Context, depID uint64, count int) error {
	res, err := s.deps().UpdateOne(ctx,
		bson.M{"_id": depID},
		bson.M{"$set": bson.M{"vuln_count": count, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.NotFound("dependency", depID)
	}
	return nil
}

// ListDependencies returns catalog rows, optionally filtered by exact type.
func (s *Store) ListDependencies(ctx context.Context, pkgType string) ([]model.Dependency, error) {
	filter := bson.M{}
	if pkgType != "" {
		filter["package_type"] = pkgType
	}
	cur, err := s.deps().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []model.Dependency{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DependencyStats aggregates the whole catalog.
func (s *Store) DependencyStats(ctx context.Context) (*store.Stats, error) {
	total, err := s.deps().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	cur, err := s.deps().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$package_type", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	var groups []struct {
		Type  string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}

	stats := &store.Stats{
		TotalDependencies: int(total),
		ByType:            make(map[string]int, len(groups)),
	}
	for _, g := range groups {
		stats.ByType[g.Type] = g.Count
	}

	topCur, err := s.deps().Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "vuln_count", Value: -1}, {Key: "_id", Value: 1}}).
			SetLimit(store.TopDependenciesLimit),
	)
	if err != nil {
		return nil, err
	}
	stats.TopDependencies = []model.Dependency{}
	if err := topCur.All(ctx, &stats.TopDependencies); err != nil {
		return nil, err
	}
	return stats, nil
}
