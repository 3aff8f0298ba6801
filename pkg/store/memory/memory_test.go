package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
)

func TestProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &model.Project{RepoURL: "https://github.com/a/b", Name: "b"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	if p.ID == 0 || p.CreatedAt.IsZero() {
		t.Errorf("project not initialized: %+v", p)
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject error: %v", err)
	}
	if got.RepoURL != p.RepoURL {
		t.Errorf("RepoURL = %q", got.RepoURL)
	}

	byURL, err := s.GetProjectByURL(ctx, "https://github.com/a/b")
	if err != nil || byURL.ID != p.ID {
		t.Errorf("GetProjectByURL = %+v, %v", byURL, err)
	}

	got.Name = "renamed"
	got.Description = "new desc"
	if err := s.UpdateProject(ctx, got); err != nil {
		t.Fatalf("UpdateProject error: %v", err)
	}
	again, _ := s.GetProject(ctx, p.ID)
	if again.Name != "renamed" || again.Description != "new desc" {
		t.Errorf("update not applied: %+v", again)
	}

	if _, err := s.GetProject(ctx, 999); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing project error = %v, want NOT_FOUND", err)
	}
}

func TestIDSequencesPerType(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &model.Project{RepoURL: "https://github.com/a/b"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject error: %v", err)
	}
	d, _, err := s.UpsertDependency(ctx, &model.Dependency{
		PackageType: model.PackageGo, Name: "github.com/x/y", Version: "v1.0.0",
	})
	if err != nil {
		t.Fatalf("UpsertDependency error: %v", err)
	}
	r := &model.Report{ProjectID: p.ID}
	if err := s.CreateReport(ctx, r); err != nil {
		t.Fatalf("CreateReport error: %v", err)
	}

	// Each record type draws from its own sequence, so the first project,
	// dependency, and report all get ID 1.
	if p.ID != 1 || d.ID != 1 || r.ID != 1 {
		t.Errorf("first IDs = project %d, dependency %d, report %d, want 1 each", p.ID, d.ID, r.ID)
	}
}

func TestDuplicateProjectURL(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateProject(ctx, &model.Project{RepoURL: "https://github.com/a/b"})
	err := s.CreateProject(ctx, &model.Project{RepoURL: "https://github.com/a/b"})
	if err == nil {
		t.Error("duplicate repo_url should be rejected")
	}
}

func TestReportsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := &model.Project{RepoURL: "https://github.com/a/b"}
	_ = s.CreateProject(ctx, p)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		r := &model.Report{ProjectID: p.ID, GeneratedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateReport(ctx, r); err != nil {
			t.Fatalf("CreateReport error: %v", err)
		}
	}

	reports, err := s.ListReportsByProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListReportsByProject error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports", len(reports))
	}
	for i := 1; i < len(reports); i++ {
		if reports[i].GeneratedAt.After(reports[i-1].GeneratedAt) {
			t.Error("reports not ordered newest first")
		}
	}
}

func TestUpsertDedupAcrossCallers(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, _, err := s.UpsertDependency(ctx, &model.Dependency{
		PackageType: model.PackageNPM, Name: "lodash", Version: "4.17.21",
	})
	if err != nil {
		t.Fatalf("UpsertDependency error: %v", err)
	}
	b, _, err := s.UpsertDependency(ctx, &model.Dependency{
		PackageType: model.PackageNPM, Name: "lodash", Version: "4.17.21",
	})
	if err != nil {
		t.Fatalf("UpsertDependency error: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("same coordinate produced different rows: %d vs %d", a.ID, b.ID)
	}

	deps, _ := s.ListDependencies(ctx, "")
	if len(deps) != 1 {
		t.Errorf("catalog has %d rows, want 1", len(deps))
	}
}

func TestUpsertMetadataMerge(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := &model.Dependency{PackageType: model.PackageGo, Name: "github.com/x/y", Version: "v1.0.0"}
	_, _, _ = s.UpsertDependency(ctx, first)

	// Later observation fills the empty repo_url
	second := &model.Dependency{
		PackageType: model.PackageGo, Name: "github.com/x/y", Version: "v1.0.0",
		RepoURL: "https://github.com/x/y",
	}
	row, warnings, err := s.UpsertDependency(ctx, second)
	if err != nil {
		t.Fatalf("UpsertDependency error: %v", err)
	}
	if row.RepoURL != "https://github.com/x/y" {
		t.Errorf("repo_url not filled: %q", row.RepoURL)
	}
	if len(warnings) != 0 {
		t.Errorf("fill-null should not warn: %+v", warnings)
	}

	// Conflicting non-empty value warns and does not overwrite
	third := &model.Dependency{
		PackageType: model.PackageGo, Name: "github.com/x/y", Version: "v1.0.0",
		RepoURL: "https://github.com/other/fork",
	}
	row, warnings, err = s.UpsertDependency(ctx, third)
	if err != nil {
		t.Fatalf("UpsertDependency error: %v", err)
	}
	if row.RepoURL != "https://github.com/x/y" {
		t.Errorf("conflict overwrote stored value: %q", row.RepoURL)
	}
	if len(warnings) != 1 || warnings[0].Kind != errors.WarnMetadataConflict {
		t.Errorf("warnings = %+v, want one metadata_conflict", warnings)
	}
}

func TestUpsertConcurrentSameCoordinate(t *testing.T) {
	ctx := context.Background()
	s := New()

	const workers = 16
	ids := make([]uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row, _, err := s.UpsertDependency(ctx, &model.Dependency{
				PackageType: model.PackagePython, Name: "requests", Version: "2.31.0",
			})
			if err != nil {
				t.Errorf("UpsertDependency error: %v", err)
				return
			}
			ids[i] = row.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent upserts produced different rows: %v", ids)
		}
	}
}

func TestListDependenciesFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _, _ = s.UpsertDependency(ctx, &model.Dependency{PackageType: model.PackageGo, Name: "a", Version: "1"})
	_, _, _ = s.UpsertDependency(ctx, &model.Dependency{PackageType: model.PackageNPM, Name: "b", Version: "2"})

	goDeps, err := s.ListDependencies(ctx, "go")
	if err != nil {
		t.Fatalf("ListDependencies error: %v", err)
	}
	if len(goDeps) != 1 || goDeps[0].PackageType != model.PackageGo {
		t.Errorf("filtered list = %+v", goDeps)
	}

	// Unknown type: empty result, not an error
	none, err := s.ListDependencies(ctx, "rust")
	if err != nil {
		t.Fatalf("ListDependencies error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown type returned %d rows", len(none))
	}
}

func TestDependencyStats(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _, _ = s.UpsertDependency(ctx, &model.Dependency{PackageType: model.PackageGo, Name: "a", Version: "1"})
	_, _, _ = s.UpsertDependency(ctx, &model.Dependency{PackageType: model.PackageGo, Name: "b", Version: "1"})
	d, _, _ := s.UpsertDependency(ctx, &model.Dependency{PackageType: model.PackageNPM, Name: "c", Version: "1"})
	_ = s.SetVulnCount(ctx, d.ID, 3)

	stats, err := s.DependencyStats(ctx)
	if err != nil {
		t.Fatalf("DependencyStats error: %v", err)
	}
	if stats.TotalDependencies != 3 {
		t.Errorf("TotalDependencies = %d", stats.TotalDependencies)
	}
	if stats.ByType["go"] != 2 || stats.ByType["npm"] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if len(stats.TopDependencies) == 0 || stats.TopDependencies[0].VulnCount != 3 {
		t.Errorf("TopDependencies not ordered by vuln count: %+v", stats.TopDependencies)
	}
}
