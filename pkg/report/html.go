package report

import (
	"bytes"
	"html/template"
	"time"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
)

// page is the view model for the HTML artifact. It is self-contained so the
// rendered page needs no follow-up API calls.
type page struct {
	Project     *model.Project
	GeneratedAt time.Time
	TotalDeps   int
	TotalVulns  int
	Rows        []pageRow
	Warnings    []errors.Warning
}

type pageRow struct {
	Dependency model.Dependency
	Advisories []model.Advisory
}

var pageTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339)
	},
	"severityColor": func(severity string) string {
		switch severity {
		case "CRITICAL":
			return "#d32f2f"
		case "HIGH":
			return "#f57c00"
		case "MEDIUM", "MODERATE":
			return "#ffa726"
		case "LOW":
			return "#388e3c"
		}
		return "#8b949e"
	},
}).Parse(htmlTemplate))

// renderHTML produces the self-contained report page.
func renderHTML(p *page) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "rendering report page")
	}
	return buf.Bytes(), nil
}

const htmlTemplate = `<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>Dependency Report - {{.Project.Name}}</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    :root {
      --bg-primary: #0d1117;
      --bg-secondary: #161b22;
      --bg-tertiary: #1c2128;
      --text-primary: #e6edf3;
      --text-secondary: #8b949e;
      --border-color: #30363d;
      --accent: #7BEFB2;
      --link: #02A67F;
    }
    body {
      font-family: system-ui, -apple-system, Segoe UI, Roboto, Arial, sans-serif;
      margin: 24px;
      line-height: 1.35;
      color: var(--text-primary);
      background-color: var(--bg-primary);
    }
    h1, h2 { color: var(--accent); }
    a { color: var(--link); text-decoration: none; }
    .muted { color: var(--text-secondary); }
    .bad { font-weight: 700; color: #f85149; }
    .box {
      border: 1px solid var(--border-color);
      border-radius: 10px;
      padding: 16px;
      margin: 14px 0;
      background: var(--bg-secondary);
    }
    table {
      border-collapse: collapse;
      width: 100%;
      background: var(--bg-tertiary);
    }
    th, td {
      border-bottom: 1px solid var(--border-color);
      padding: 8px;
      text-align: left;
      vertical-align: top;
    }
    th { background: #015945; color: white; font-weight: 600; }
    .pill {
      display: inline-block;
      border-radius: 10px;
      padding: 1px 8px;
      font-size: 12px;
      color: white;
    }
  </style>
</head>
<body>
  <h1>Dependency Report</h1>
  <div class="box">
    <div><strong>{{.Project.Name}}</strong> <span class="muted">{{.Project.RepoURL}}</span></div>
    <div class="muted">Generated {{ts .GeneratedAt}}</div>
    <div>{{.TotalDeps}} dependencies, {{if .TotalVulns}}<span class="bad">{{.TotalVulns}} known vulnerabilities</span>{{else}}no known vulnerabilities{{end}}</div>
  </div>

  {{if .Warnings}}
  <div class="box">
    <h2>Warnings</h2>
    <ul>
      {{range .Warnings}}<li><span class="muted">[{{.Kind}}]</span> {{.Subject}}: {{.Message}}</li>{{end}}
    </ul>
  </div>
  {{end}}

  <div class="box">
    <h2>Dependencies</h2>
    <table>
      <tr><th>Type</th><th>Name</th><th>Version</th><th>Vulnerabilities</th></tr>
      {{range .Rows}}
      <tr>
        <td>{{.Dependency.PackageType}}</td>
        <td>{{.Dependency.Name}}</td>
        <td>{{.Dependency.Version}}</td>
        <td>
          {{if .Advisories}}
            {{range .Advisories}}
              <div><span class="pill" style="background: {{severityColor .Severity}}">{{.Severity}}</span> {{.ID}} <span class="muted">{{.Summary}}</span></div>
            {{end}}
          {{else}}
            <span class="muted">none</span>
          {{end}}
        </td>
      </tr>
      {{end}}
    </table>
  </div>
</body>
</html>
`
