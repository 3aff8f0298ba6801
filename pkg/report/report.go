// Package report assembles immutable analysis reports: summary counts, the
// serialized dependency graph, and the rendered HTML and SVG artifacts.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/depsight/depsight/pkg/artifact"
	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/resolve"
)

// Assembler renders artifacts and builds the report record. The record is
// not persisted here; the caller publishes it once the whole run succeeded.
type Assembler struct {
	artifacts artifact.Store
	logger    *log.Logger
}

// New creates an assembler writing artifacts to the given store.
func New(artifacts artifact.Store, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{artifacts: artifacts, logger: logger}
}

// Assemble builds the report for one finished run. Dependency counts cover
// the resolved requirements; manifest roots appear only in the graph.
func (a *Assembler) Assemble(ctx context.Context, project *model.Project, res *resolve.Result,
	advisories map[uint64][]model.Advisory, warnings []errors.Warning) (*model.Report, error) {

	rep := &model.Report{
		ProjectID:   project.ID,
		GeneratedAt: time.Now().UTC(),
		Advisories:  advisories,
		Warnings:    warnings,
		Edges:       res.Edges,
	}

	vulnerable := make(map[uint64]bool, len(advisories))
	for id, found := range advisories {
		rep.TotalVulns += len(found)
		vulnerable[id] = true
	}
	for _, dep := range res.Dependencies {
		if res.Roots[dep.ID] {
			continue
		}
		rep.DependencyIDs = append(rep.DependencyIDs, dep.ID)
	}
	rep.TotalDependencies = len(rep.DependencyIDs)

	runKey := uuid.NewString()

	html, err := a.renderPage(project, res, advisories, warnings, rep)
	if err != nil {
		return nil, err
	}
	rep.HTMLKey = fmt.Sprintf("reports/%s.html", runKey)
	if err := a.artifacts.Put(ctx, rep.HTMLKey, "text/html; charset=utf-8", html); err != nil {
		return nil, err
	}

	svg, err := RenderSVG(ctx, ToDOT(res.Dependencies, res.Roots, res.Edges, vulnerable))
	if err != nil {
		return nil, err
	}
	rep.GraphKey = fmt.Sprintf("reports/%s.svg", runKey)
	if err := a.artifacts.Put(ctx, rep.GraphKey, "image/svg+xml", svg); err != nil {
		return nil, err
	}

	a.logger.Info("report assembled",
		"project", project.ID,
		"dependencies", rep.TotalDependencies,
		"vulnerabilities", rep.TotalVulns,
		"warnings", len(warnings))
	return rep, nil
}

func (a *Assembler) renderPage(project *model.Project, res *resolve.Result,
	advisories map[uint64][]model.Advisory, warnings []errors.Warning, rep *model.Report) ([]byte, error) {

	p := &page{
		Project:     project,
		GeneratedAt: rep.GeneratedAt,
		TotalDeps:   rep.TotalDependencies,
		TotalVulns:  rep.TotalVulns,
		Warnings:    warnings,
	}
	for _, dep := range res.Dependencies {
		if res.Roots[dep.ID] {
			continue
		}
		p.Rows = append(p.Rows, pageRow{Dependency: dep, Advisories: advisories[dep.ID]})
	}
	return renderHTML(p)
}
