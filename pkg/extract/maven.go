package extract

import (
	"encoding/xml"
	"strings"

	"github.com/depsight/depsight/pkg/model"
)

// POM parses Maven pom.xml files. Dependencies are identified as
// "groupId:artifactId"; test and provided scopes are skipped, as are
// coordinates that still contain unresolved Maven properties.
type POM struct{}

func (p *POM) Type() model.PackageType   { return model.PackageMaven }
func (p *POM) Supports(name string) bool { return name == "pom.xml" }

func (p *POM) Extract(path string, data []byte) (*Manifest, error) {
	var pom pomProject
	if err := xml.Unmarshal(data, &pom); err != nil {
		return nil, err
	}

	m := &Manifest{Path: path, Type: model.PackageMaven}
	if pom.GroupID != "" || pom.ArtifactID != "" {
		m.Root = strings.TrimSpace(pom.GroupID + ":" + pom.ArtifactID)
	}

	seen := make(map[string]bool)
	for _, dep := range pom.Dependencies {
		if dep.Scope == "test" || dep.Scope == "provided" || dep.Optional == "true" {
			continue
		}
		if strings.Contains(dep.GroupID, "${") || strings.Contains(dep.ArtifactID, "${") ||
			strings.Contains(dep.Version, "${") {
			continue
		}
		coord := strings.TrimSpace(dep.GroupID) + ":" + strings.TrimSpace(dep.ArtifactID)
		if seen[coord] {
			continue
		}
		seen[coord] = true
		m.Packages = append(m.Packages, Package{
			Type:    model.PackageMaven,
			Name:    coord,
			Version: strings.TrimSpace(dep.Version),
		})
	}
	return m, nil
}

type pomProject struct {
	GroupID      string   `xml:"groupId"`
	ArtifactID   string   `xml:"artifactId"`
	Version      string   `xml:"version"`
	Name         string   `xml:"name"`
	Description  string   `xml:"description"`
	Dependencies []pomDep `xml:"dependencies>dependency"`
}

type pomDep struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}
