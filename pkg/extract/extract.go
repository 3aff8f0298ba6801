// Package extract turns fetched repository files into declared-package
// triples, one extractor per ecosystem.
//
// Extractors are selected by manifest filename, never by content sniffing.
// A malformed manifest yields a recoverable warning on the run; sibling
// manifests in the same repository are still processed.
package extract

import (
	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
	"github.com/depsight/depsight/pkg/source/github"
)

// Package is one declared dependency observed in a manifest.
type Package struct {
	Type        model.PackageType
	Name        string
	Version     string
	Description string
	RepoURL     string
}

// Coordinate returns the package's catalog dedup key.
func (p Package) Coordinate() model.Coordinate {
	return model.Coordinate{Type: p.Type, Name: p.Name, Version: p.Version}
}

// Manifest is the parsed content of a single manifest file.
type Manifest struct {
	Path     string            // repository-relative path
	Type     model.PackageType // ecosystem the manifest belongs to
	Root     string            // declaring package name, if the manifest states one
	Packages []Package         // declared requirements, in manifest order
}

// Extractor parses one ecosystem's manifest format.
type Extractor interface {
	// Type returns the ecosystem identifier.
	Type() model.PackageType
	// Supports reports whether this extractor handles the given filename.
	Supports(filename string) bool
	// Extract parses a single manifest. The data is consumed in one pass.
	Extract(path string, data []byte) (*Manifest, error)
}

// All returns one extractor per supported ecosystem.
func All() []Extractor {
	return []Extractor{
		&GoMod{},
		&PackageJSON{},
		&Requirements{},
		&POM{},
	}
}

// SupportedFile reports whether any extractor handles the given filename.
// The repository fetcher uses this to decide which files to download.
func SupportedFile(name string) bool {
	for _, e := range All() {
		if e.Supports(name) {
			return true
		}
	}
	return false
}

// Tree runs every matching extractor over the fetched files. Files no
// extractor supports are skipped. Parse failures are converted to extraction
// warnings rather than errors so that one broken manifest cannot block a
// valid sibling.
func Tree(tree *github.Tree, extractors []Extractor) ([]Manifest, []errors.Warning) {
	var (
		manifests []Manifest
		warnings  []errors.Warning
	)
	for _, f := range tree.Files {
		ex := match(extractors, f.Path)
		if ex == nil {
			continue
		}
		m, err := ex.Extract(f.Path, f.Content)
		if err != nil {
			warnings = append(warnings, errors.Warnf(errors.WarnExtraction, f.Path, "%v", err))
			continue
		}
		manifests = append(manifests, *m)
	}
	return manifests, warnings
}

func match(extractors []Extractor, path string) Extractor {
	name := baseName(path)
	for _, e := range extractors {
		if e.Supports(name) {
			return e
		}
	}
	return nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
