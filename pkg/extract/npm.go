package extract

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/depsight/depsight/pkg/model"
)

// PackageJSON parses package.json files. It extracts dependencies and
// devDependencies; requirement ranges are reduced to their base version.
type PackageJSON struct{}

func (p *PackageJSON) Type() model.PackageType { return model.PackageNPM }

func (p *PackageJSON) Supports(name string) bool {
	return strings.EqualFold(name, "package.json")
}

func (p *PackageJSON) Extract(path string, data []byte) (*Manifest, error) {
	var pkg packageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}

	m := &Manifest{Path: path, Type: model.PackageNPM, Root: pkg.Name}
	for _, group := range []map[string]string{pkg.Dependencies, pkg.DevDependencies} {
		names := make([]string, 0, len(group))
		for name := range group {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m.Packages = append(m.Packages, Package{
				Type:    model.PackageNPM,
				Name:    name,
				Version: trimRange(group[name]),
			})
		}
	}
	return m, nil
}

// trimRange reduces an npm requirement range to its base version:
// "^4.17.21" -> "4.17.21". Non-semver specifiers (tags, URLs, wildcards)
// pass through unchanged.
func trimRange(spec string) string {
	spec = strings.TrimSpace(spec)
	spec = strings.TrimPrefix(spec, "^")
	spec = strings.TrimPrefix(spec, "~")
	spec = strings.TrimPrefix(spec, ">=")
	spec = strings.TrimPrefix(spec, "=")
	return strings.TrimSpace(spec)
}

type packageFile struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}
