// Package mongodb provides the MongoDB-backed store implementation used in
// production deployments.
//
// Numeric IDs are preserved for API compatibility and allocated from a
// counters collection. Catalog dedup relies on a unique index over
// (package_type, name, version) so concurrent upserts of one coordinate
// resolve to a single document without any catalog-wide locking.
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

// Store is a MongoDB implementation of store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and prepares indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.projects().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "repo_url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.reports().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "generated_at", Value: -1}},
	})
	if err != nil {
		return err
	}
	_, err = s.deps().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "package_type", Value: 1},
			{Key: "name", Value: 1},
			{Key: "version", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Store) projects() *mongo.Collection { return s.db.Collection("projects") }
func (s *Store) reports() *mongo.Collection  { return s.db.Collection("reports") }
func (s *Store) deps() *mongo.Collection     { return s.db.Collection("dependencies") }
func (s *Store) counters() *mongo.Collection { return s.db.Collection("counters") }

// nextID allocates the next numeric ID for the given sequence.
func (s *Store) nextID(ctx context.Context, seq string) (uint64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.counters().FindOneAndUpdate(ctx,
		bson.M{"_id": seq},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return uint64(doc.Value), nil
}

// CreateProject persists a new project.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	id, err := s.nextID(ctx, "projects")
	if err != nil {
		return err
	}
	p.ID = id
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = s.projects().InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return errors.New(errors.ErrCodeInvalidInput, "project for %s already exists", p.RepoURL)
	}
	return err
}

// GetProject returns one project.
func (s *Store) GetProject(ctx context.Context, id uint64) (*model.Project, error) {
	var p model.Project
	err := s.projects().FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, store.NotFound("project", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProjectByURL returns the project tracking repoURL.
func (s *Store) GetProjectByURL(ctx context.Context, repoURL string) (*model.Project, error) {
	var p model.Project
	err := s.projects().FindOne(ctx, bson.M{"repo_url": repoURL}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeNotFound, "no project for %s", repoURL)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProject persists mutable fields of an existing project.
func (s *Store) UpdateProject(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.projects().UpdateOne(ctx,
		bson.M{"_id": p.ID},
		bson.M{"$set": bson.M{
			"name":        p.Name,
			"description": p.Description,
			"private":     p.Private,
			"updated_at":  p.UpdatedAt,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.NotFound("project", p.ID)
	}
	return nil
}

// ListProjects returns all projects, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	cur, err := s.projects().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []model.Project
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReport appends a report to its project's history.
func (s *Store) CreateReport(ctx context.Context, r *model.Report) error {
	if _, err := s.GetProject(ctx, r.ProjectID); err != nil {
		return err
	}
	id, err := s.nextID(ctx, "reports")
	if err != nil {
		return err
	}
	r.ID = id
	_, err = s.reports().InsertOne(ctx, r)
	return err
}

// GetReport returns one report.
func (s *Store) GetReport(ctx context.Context, id uint64) (*model.Report, error) {
	var r model.Report
	err := s.reports().FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return nil, store.NotFound("report", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReportsByProject returns a project's reports, newest first.
func (s *Store) ListReportsByProject(ctx context.Context, projectID uint64) ([]model.Report, error) {
	cur, err := s.reports().Find(ctx,
		bson.M{"project_id": projectID},
		options.Find().SetSort(bson.D{{Key: "generated_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	var out []model.Report
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ store.Store = (*Store)(nil)
