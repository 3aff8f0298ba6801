package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/depsight/depsight/pkg/artifact"
	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/store/memory"
)

// stubPipeline persists a project and a canned report, mimicking a
// successful run without fetching anything.
type stubPipeline struct {
	store      *memory.Store
	artifacts  *artifact.MemoryStore
	submitErr  error
	regenErr   error
	lastToken  string
	totalDeps  int
	totalVulns int
}

func (p *stubPipeline) Submit(ctx context.Context, repoURL, token string) (*model.Project, *model.Report, error) {
	p.lastToken = token
	if p.submitErr != nil {
		return nil, nil, p.submitErr
	}
	project, err := p.store.GetProjectByURL(ctx, repoURL)
	if errors.Is(err, errors.ErrCodeNotFound) {
		project = &model.Project{RepoURL: repoURL, Name: "acme/web-app", Private: token != ""}
		if err := p.store.CreateProject(ctx, project); err != nil {
			return nil, nil, err
		}
	} else if err != nil {
		return nil, nil, err
	}
	rep, err := p.appendReport(ctx, project.ID)
	return project, rep, err
}

func (p *stubPipeline) Regenerate(ctx context.Context, projectID uint64, token string) (*model.Report, error) {
	p.lastToken = token
	if p.regenErr != nil {
		return nil, p.regenErr
	}
	if _, err := p.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return p.appendReport(ctx, projectID)
}

func (p *stubPipeline) appendReport(ctx context.Context, projectID uint64) (*model.Report, error) {
	rep := &model.Report{
		ProjectID:         projectID,
		TotalDependencies: p.totalDeps,
		TotalVulns:        p.totalVulns,
		HTMLKey:           "reports/test.html",
		GraphKey:          "reports/test.svg",
	}
	if err := p.artifacts.Put(ctx, rep.HTMLKey, "text/html; charset=utf-8", []byte("<html>ok</html>")); err != nil {
		return nil, err
	}
	if err := p.artifacts.Put(ctx, rep.GraphKey, "image/svg+xml", []byte("<svg></svg>")); err != nil {
		return nil, err
	}
	if err := p.store.CreateReport(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubPipeline, *memory.Store) {
	t.Helper()
	st := memory.New()
	artifacts := artifact.NewMemoryStore()
	pipeline := &stubPipeline{store: st, artifacts: artifacts, totalDeps: 1, totalVulns: 1}
	server := httptest.NewServer(NewServer(st, artifacts, pipeline, nil).Router())
	t.Cleanup(server.Close)
	return server, pipeline, st
}

func request(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return resp, string(data)
}

func TestSubmit(t *testing.T) {
	server, pipeline, _ := newTestServer(t)

	resp, body := request(t, http.MethodPost, server.URL+"/v1/submit",
		`{"repo_url": "https://github.com/acme/web-app", "github_token": "ghp_secret123"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var out SubmitResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ProjectID == 0 || out.ReportID == 0 {
		t.Errorf("ids missing: %+v", out)
	}
	if out.Report == nil || out.Report.TotalDependencies != 1 || out.Report.TotalVulns != 1 {
		t.Errorf("report summary missing: %+v", out.Report)
	}
	if pipeline.lastToken != "ghp_secret123" {
		t.Error("token not forwarded to the pipeline")
	}
	if strings.Contains(body, "ghp_secret123") {
		t.Error("credential echoed in response")
	}
}

func TestSubmitValidation(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, body := request(t, http.MethodPost, server.URL+"/v1/submit", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out ErrorResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kind != "INVALID_INPUT" {
		t.Errorf("kind = %q", out.Kind)
	}
}

func TestSubmitAppliesMetadata(t *testing.T) {
	server, _, st := newTestServer(t)

	resp, _ := request(t, http.MethodPost, server.URL+"/v1/submit",
		`{"repo_url": "https://github.com/acme/web-app", "name": "My App", "description": "demo"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	project, err := st.GetProjectByURL(context.Background(), "https://github.com/acme/web-app")
	if err != nil {
		t.Fatalf("GetProjectByURL: %v", err)
	}
	if project.Name != "My App" || project.Description != "demo" {
		t.Errorf("metadata not applied: %+v", project)
	}
}

func TestProjectLifecycle(t *testing.T) {
	server, _, _ := newTestServer(t)

	request(t, http.MethodPost, server.URL+"/v1/submit", `{"repo_url": "https://github.com/acme/web-app"}`)

	resp, body := request(t, http.MethodGet, server.URL+"/v1/projects", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list ListProjectsResponse
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 || len(list.Projects) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Projects[0].RepoURL != "https://github.com/acme/web-app" {
		t.Errorf("repo_url = %q", list.Projects[0].RepoURL)
	}

	resp, _ = request(t, http.MethodGet, server.URL+"/v1/projects/1", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d", resp.StatusCode)
	}

	resp, _ = request(t, http.MethodPut, server.URL+"/v1/projects/1", `{"name": "Renamed"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("update status = %d", resp.StatusCode)
	}
	_, body = request(t, http.MethodGet, server.URL+"/v1/projects/1", "")
	if !strings.Contains(body, "Renamed") {
		t.Errorf("rename not persisted: %s", body)
	}

	resp, body = request(t, http.MethodGet, server.URL+"/v1/projects/999", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing project status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "NOT_FOUND") {
		t.Errorf("missing stable kind: %s", body)
	}
}

func TestUpdateWithRegenerate(t *testing.T) {
	server, _, st := newTestServer(t)
	request(t, http.MethodPost, server.URL+"/v1/submit", `{"repo_url": "https://github.com/acme/web-app"}`)

	resp, body := request(t, http.MethodPut, server.URL+"/v1/projects/1", `{"name": "Renamed", "regenerate": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out SubmitResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ReportID == 0 {
		t.Error("regeneration should return the new report")
	}

	history, _ := st.ListReportsByProject(context.Background(), 1)
	if len(history) != 2 {
		t.Errorf("history = %d reports, want 2", len(history))
	}
}

func TestRegenerateConflict(t *testing.T) {
	server, pipeline, _ := newTestServer(t)
	request(t, http.MethodPost, server.URL+"/v1/submit", `{"repo_url": "https://github.com/acme/web-app"}`)

	pipeline.regenErr = errors.New(errors.ErrCodeRunInProgress, "analysis already running for project 1")
	resp, body := request(t, http.MethodPost, server.URL+"/v1/projects/1/regenerate", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "RUN_IN_PROGRESS") {
		t.Errorf("missing stable kind: %s", body)
	}
}

func TestRegenerateMissingCredential(t *testing.T) {
	server, pipeline, _ := newTestServer(t)
	request(t, http.MethodPost, server.URL+"/v1/submit", `{"repo_url": "https://github.com/acme/web-app"}`)

	pipeline.regenErr = errors.New(errors.ErrCodeMissingCredential, "credential required")
	resp, body := request(t, http.MethodPost, server.URL+"/v1/projects/1/regenerate", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "MISSING_CREDENTIAL") {
		t.Errorf("missing stable kind: %s", body)
	}
}

func TestReportEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t)
	request(t, http.MethodPost, server.URL+"/v1/submit", `{"repo_url": "https://github.com/acme/web-app"}`)

	resp, body := request(t, http.MethodGet, server.URL+"/v1/projects/1/reports", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var history ListReportsResponse
	if err := json.Unmarshal([]byte(body), &history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if history.Count != 1 {
		t.Fatalf("history count = %d", history.Count)
	}

	resp, _ = request(t, http.MethodGet, server.URL+"/v1/reports/1", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("report status = %d", resp.StatusCode)
	}

	resp, body = request(t, http.MethodGet, server.URL+"/v1/reports/1/html", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("html status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("html content type = %q", ct)
	}
	if body != "<html>ok</html>" {
		t.Errorf("html body = %q", body)
	}

	resp, _ = request(t, http.MethodGet, server.URL+"/v1/reports/1/graph", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("graph status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("graph content type = %q", ct)
	}
}

func TestDependencyEndpoints(t *testing.T) {
	server, _, st := newTestServer(t)
	ctx := context.Background()
	for _, dep := range []model.Dependency{
		{PackageType: model.PackageNPM, Name: "lodash", Version: "4.17.21"},
		{PackageType: model.PackageGo, Name: "github.com/google/uuid", Version: "v1.6.0"},
	} {
		if _, _, err := st.UpsertDependency(ctx, &dep); err != nil {
			t.Fatalf("UpsertDependency: %v", err)
		}
	}

	resp, body := request(t, http.MethodGet, server.URL+"/v1/dependencies?type=npm", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var deps []model.Dependency
	if err := json.Unmarshal([]byte(body), &deps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(deps) != 1 || deps[0].Name != "lodash" {
		t.Errorf("filtered deps = %+v", deps)
	}

	// Unknown type filters to empty, never a 4xx.
	resp, body = request(t, http.MethodGet, server.URL+"/v1/dependencies?type=rust", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown type status = %d", resp.StatusCode)
	}
	if strings.TrimSpace(body) != "[]" {
		t.Errorf("unknown type body = %q, want empty array", body)
	}

	resp, body = request(t, http.MethodGet, server.URL+"/v1/dependencies/stats", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats struct {
		TotalDependencies int            `json:"total_dependencies"`
		ByType            map[string]int `json:"by_type"`
	}
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalDependencies != 2 || stats.ByType["npm"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHealthAndAPIMount(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, body := request(t, http.MethodGet, server.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "healthy") {
		t.Errorf("health body = %s", body)
	}

	// The same surface answers under the frontend's /api base path.
	resp, _ = request(t, http.MethodGet, server.URL+"/api/v1/projects", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/api/v1 mount status = %d", resp.StatusCode)
	}
}
