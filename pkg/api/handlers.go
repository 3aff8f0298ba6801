package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/depsight/depsight/pkg/model"
)

// SubmitRequest asks for a repository to be analyzed. The token is used for
// this run's fetch only; it is never stored and never echoed back.
type SubmitRequest struct {
	RepoURL     string `json:"repo_url"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	GitHubToken string `json:"github_token,omitempty"`
}

// SubmitResponse reports the outcome of a pipeline run.
type SubmitResponse struct {
	Message   string        `json:"message"`
	ProjectID uint64        `json:"project_id"`
	ReportID  uint64        `json:"report_id"`
	Report    *model.Report `json:"report,omitempty"`
}

// UpdateProjectRequest updates project metadata and optionally triggers a
// fresh run.
type UpdateProjectRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	GitHubToken string `json:"github_token,omitempty"`
	Regenerate  bool   `json:"regenerate,omitempty"`
}

// RegenerateRequest optionally carries a credential for the run's fetch.
type RegenerateRequest struct {
	GitHubToken string `json:"github_token,omitempty"`
}

// ProjectSummary is the list-view shape: identity only, no report data.
type ProjectSummary struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	RepoURL string `json:"repo_url"`
}

// ListProjectsResponse wraps the project list with its count.
type ListProjectsResponse struct {
	Projects []ProjectSummary `json:"projects"`
	Count    int              `json:"count"`
}

// ListReportsResponse wraps a project's report history, newest first.
type ListReportsResponse struct {
	Reports []model.Report `json:"reports"`
	Count   int            `json:"count"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.RepoURL == "" {
		s.badRequest(w, "repo_url is required")
		return
	}

	project, rep, err := s.pipeline.Submit(r.Context(), req.RepoURL, req.GitHubToken)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.Name != "" || req.Description != "" {
		if req.Name != "" {
			project.Name = req.Name
		}
		if req.Description != "" {
			project.Description = req.Description
		}
		if err := s.store.UpdateProject(r.Context(), project); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, SubmitResponse{
		Message:   "report generated successfully",
		ProjectID: project.ID,
		ReportID:  rep.ID,
		Report:    rep,
	})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, ProjectSummary{ID: p.ID, Name: p.Name, RepoURL: p.RepoURL})
	}
	s.writeJSON(w, http.StatusOK, ListProjectsResponse{Projects: summaries, Count: len(summaries)})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}

	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name != "" {
		project.Name = req.Name
	}
	if req.Description != "" {
		project.Description = req.Description
	}
	if err := s.store.UpdateProject(r.Context(), project); err != nil {
		s.writeError(w, err)
		return
	}

	if !req.Regenerate {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"message": "project updated successfully",
			"project": project,
		})
		return
	}

	rep, err := s.pipeline.Regenerate(r.Context(), id, req.GitHubToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SubmitResponse{
		Message:   "project updated and report regenerated",
		ProjectID: project.ID,
		ReportID:  rep.ID,
		Report:    rep,
	})
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req RegenerateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.badRequest(w, "invalid request body: %v", err)
			return
		}
	}

	rep, err := s.pipeline.Regenerate(r.Context(), id, req.GitHubToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SubmitResponse{
		Message:   "report regenerated successfully",
		ProjectID: rep.ProjectID,
		ReportID:  rep.ID,
		Report:    rep,
	})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	reports, err := s.store.ListReportsByProject(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ListReportsResponse{Reports: reports, Count: len(reports)})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rep, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) reportHTML(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(rep *model.Report) string { return rep.HTMLKey })
}

func (s *Server) reportGraph(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(rep *model.Report) string { return rep.GraphKey })
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, key func(*model.Report) string) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rep, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, contentType, err := s.artifacts.Get(r.Context(), key(rep))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) listDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := s.store.ListDependencies(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if deps == nil {
		deps = []model.Dependency{}
	}
	s.writeJSON(w, http.StatusOK, deps)
}

func (s *Server) dependencyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DependencyStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// pathID parses the {id} route parameter, writing a 400 on garbage.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.badRequest(w, "invalid id in path")
		return 0, false
	}
	return id, true
}
