// Package model defines the domain types shared across depsight: projects,
// reports, the deduplicated dependency catalog, and advisory matches.
//
// JSON field names are part of the public API surface and must stay stable;
// the frontend consumes them directly.
package model

import (
	"fmt"
	"time"

	"github.com/depsight/depsight/pkg/errors"
)

// PackageType identifies the ecosystem a dependency belongs to.
type PackageType string

const (
	PackageGo     PackageType = "go"
	PackageNPM    PackageType = "npm"
	PackagePython PackageType = "python"
	PackageMaven  PackageType = "maven"
)

// PackageTypes lists every supported ecosystem.
var PackageTypes = []PackageType{PackageGo, PackageNPM, PackagePython, PackageMaven}

// KnownPackageType reports whether s names a supported ecosystem.
func KnownPackageType(s string) bool {
	for _, t := range PackageTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Coordinate is the system-wide dedup key for a dependency.
// Two observations with equal coordinates refer to the same catalog row,
// regardless of which project observed them.
type Coordinate struct {
	Type    PackageType `json:"package_type"`
	Name    string      `json:"name"`
	Version string      `json:"version"`
}

// String formats the coordinate as "npm:lodash@4.17.21".
func (c Coordinate) String() string {
	return fmt.Sprintf("%s:%s@%s", c.Type, c.Name, c.Version)
}

// Project is a tracked repository under analysis. RepoURL is immutable after
// creation; Name and Description may be updated independently of report
// generation.
type Project struct {
	ID          uint64    `json:"id" bson:"_id"`
	RepoURL     string    `json:"repo_url" bson:"repo_url"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`

	// Private records whether the original fetch required a credential.
	// The credential itself is never persisted; regeneration of a private
	// project demands a freshly supplied token.
	Private bool `json:"private" bson:"private"`
}

// Dependency is one canonical catalog row, shared by every report that
// observed its coordinate. Descriptive attributes follow first-writer-wins:
// later observations may fill empty fields but never silently overwrite.
type Dependency struct {
	ID          uint64      `json:"id" bson:"_id"`
	PackageType PackageType `json:"package_type" bson:"package_type"`
	Name        string      `json:"name" bson:"name"`
	Version     string      `json:"version" bson:"version"`
	RepoURL     string      `json:"repo_url,omitempty" bson:"repo_url,omitempty"`
	Description string      `json:"description,omitempty" bson:"description,omitempty"`

	// VulnCount is the advisory count from the most recent correlation that
	// observed this coordinate. Per-report counts live on the report itself.
	VulnCount int       `json:"vuln_count" bson:"vuln_count"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Coordinate returns the dependency's dedup key.
func (d *Dependency) Coordinate() Coordinate {
	return Coordinate{Type: d.PackageType, Name: d.Name, Version: d.Version}
}

// Advisory is one vulnerability matched against a dependency for a specific
// report. Matches are scoped per report because feed results change over time.
type Advisory struct {
	ID       string  `json:"id" bson:"id"`
	Severity string  `json:"severity" bson:"severity"`
	Score    float64 `json:"score,omitempty" bson:"score,omitempty"`
	Summary  string  `json:"summary,omitempty" bson:"summary,omitempty"`
	Source   string  `json:"source" bson:"source"`
}

// GraphEdge records a declared-by relation inside one report's resolution
// snapshot: From declared a requirement resolved to To. Cycles are permitted.
type GraphEdge struct {
	From uint64 `json:"from_dependency_id" bson:"from"`
	To   uint64 `json:"to_dependency_id" bson:"to"`
}

// Report is one immutable analysis result for a project. Regeneration never
// mutates an existing report; it appends a new one.
type Report struct {
	ID          uint64    `json:"id" bson:"_id"`
	ProjectID   uint64    `json:"project_id" bson:"project_id"`
	GeneratedAt time.Time `json:"generated_at" bson:"generated_at"`

	// Denormalized summary counts, recomputed at assembly time only.
	TotalDependencies int `json:"total_dependencies" bson:"total_dependencies"`
	TotalVulns        int `json:"total_vulns" bson:"total_vulns"`

	DependencyIDs []uint64              `json:"dependency_ids,omitempty" bson:"dependency_ids"`
	Edges         []GraphEdge           `json:"edges,omitempty" bson:"edges"`
	Advisories    map[uint64][]Advisory `json:"advisories,omitempty" bson:"advisories"`
	Warnings      []errors.Warning      `json:"warnings,omitempty" bson:"warnings,omitempty"`

	// Artifact handles resolved through the artifact store; the rendered
	// bytes are served by dedicated endpoints, not embedded in JSON.
	HTMLKey  string `json:"-" bson:"html_key"`
	GraphKey string `json:"-" bson:"graph_key"`
}
