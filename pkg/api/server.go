// Package api exposes the analysis engine over HTTP.
//
// The surface is mounted twice, under /v1 and /api/v1, so both direct
// clients and browser frontends proxying through an /api base path hit the
// same handlers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/depsight/depsight/pkg/artifact"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/store"
)

// Pipeline is the slice of the orchestrator the API needs.
type Pipeline interface {
	Submit(ctx context.Context, repoURL, token string) (*model.Project, *model.Report, error)
	Regenerate(ctx context.Context, projectID uint64, token string) (*model.Report, error)
}

// Server wires handlers to the store, artifact backend, and pipeline.
type Server struct {
	store     store.Store
	artifacts artifact.Store
	pipeline  Pipeline
	logger    *log.Logger
}

// NewServer creates the HTTP server facade.
func NewServer(st store.Store, artifacts artifact.Store, pipeline Pipeline, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{store: st, artifacts: artifacts, pipeline: pipeline, logger: logger}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Route("/v1", s.mount)
	r.Route("/api/v1", s.mount)
	return r
}

func (s *Server) mount(r chi.Router) {
	r.Post("/submit", s.submit)
	r.Get("/projects", s.listProjects)
	r.Get("/projects/{id}", s.getProject)
	r.Put("/projects/{id}", s.updateProject)
	r.Post("/projects/{id}/regenerate", s.regenerate)
	r.Get("/projects/{id}/reports", s.listReports)
	r.Get("/reports/{id}", s.getReport)
	r.Get("/reports/{id}/html", s.reportHTML)
	r.Get("/reports/{id}/graph", s.reportGraph)
	r.Get("/dependencies", s.listDependencies)
	r.Get("/dependencies/stats", s.dependencyStats)
}

// logRequests emits one structured line per request. Bodies are never
// logged; submit payloads can carry credentials.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
