package extract

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/depsight/depsight/pkg/model"
)

// GoMod parses go.mod files. It extracts the direct requirements declared in
// require blocks; indirect dependencies are left to their own modules.
type GoMod struct{}

func (p *GoMod) Type() model.PackageType   { return model.PackageGo }
func (p *GoMod) Supports(name string) bool { return name == "go.mod" }

func (p *GoMod) Extract(path string, data []byte) (*Manifest, error) {
	m := &Manifest{Path: path, Type: model.PackageGo}
	seen := make(map[string]bool)
	inRequire := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if strings.HasPrefix(line, "module ") {
			m.Root = strings.TrimSpace(strings.TrimPrefix(line, "module "))
			continue
		}

		if strings.HasPrefix(line, "require (") || line == "require(" {
			inRequire = true
			continue
		}
		if inRequire && line == ")" {
			inRequire = false
			continue
		}

		// Single-line require
		if strings.HasPrefix(line, "require ") && !strings.Contains(line, "(") {
			line = strings.TrimPrefix(line, "require ")
		} else if !inRequire {
			continue
		}

		name, version := parseRequireLine(line)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		m.Packages = append(m.Packages, Package{
			Type:    model.PackageGo,
			Name:    name,
			Version: version,
			RepoURL: moduleRepoURL(name),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseRequireLine(line string) (name, version string) {
	// Skip indirect dependencies
	if strings.Contains(line, "// indirect") {
		return "", ""
	}
	if idx := strings.Index(line, "//"); idx != -1 {
		line = line[:idx]
	}

	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) >= 2 {
		return fields[0], fields[1]
	}
	return "", ""
}

// moduleRepoURL derives the upstream source URL for GitHub-hosted modules.
func moduleRepoURL(modulePath string) string {
	if !strings.HasPrefix(modulePath, "github.com/") {
		return ""
	}
	parts := strings.Split(modulePath, "/")
	if len(parts) < 3 {
		return ""
	}
	return "https://" + strings.Join(parts[:3], "/")
}
