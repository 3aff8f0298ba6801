package extract

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/depsight/depsight/pkg/model"
)

var pythonNameRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)`)

var pythonVersionSeps = []string{"==", ">=", "<=", "~=", ">", "<"}

// Requirements parses pip requirements files (requirements.txt and
// requirements-*.txt variants). Environment markers, includes, and VCS
// references are skipped.
type Requirements struct{}

func (p *Requirements) Type() model.PackageType { return model.PackagePython }

func (p *Requirements) Supports(name string) bool {
	return name == "requirements.txt" ||
		(strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt"))
}

func (p *Requirements) Extract(path string, data []byte) (*Manifest, error) {
	m := &Manifest{Path: path, Type: model.PackagePython}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '-' {
			continue
		}
		if strings.Contains(line, "://") || strings.HasPrefix(line, "git+") {
			continue
		}
		// Strip environment markers: "requests==2.31.0; python_version<'3.9'"
		if idx := strings.Index(line, ";"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}

		match := pythonNameRE.FindString(line)
		if match == "" {
			continue
		}
		name := normalizePythonName(match)
		if seen[name] {
			continue
		}
		seen[name] = true

		m.Packages = append(m.Packages, Package{
			Type:    model.PackagePython,
			Name:    name,
			Version: pythonVersion(line[len(match):]),
		})
	}
	return m, scanner.Err()
}

// normalizePythonName applies PEP 503 normalization: lowercase with
// underscores replaced by hyphens.
func normalizePythonName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

func pythonVersion(spec string) string {
	spec = strings.TrimSpace(spec)
	for _, sep := range pythonVersionSeps {
		if rest, ok := strings.CutPrefix(spec, sep); ok {
			// Multi-clause specs keep only the first bound
			if idx := strings.Index(rest, ","); idx != -1 {
				rest = rest[:idx]
			}
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
