package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/model"
)

// typeColors maps package types to node fill colors. Vulnerable nodes
// override their type color with red.
var typeColors = map[model.PackageType]string{
	model.PackageGo:     "#00ADD8",
	model.PackageNPM:    "#CB3837",
	model.PackagePython: "#3776AB",
	model.PackageMaven:  "#B07219",
}

const (
	rootColor       = "#7BEFB2"
	vulnerableColor = "#f85149"
	defaultColor    = "#8b949e"
	maxLabelLen     = 40
)

// ToDOT serializes the run's dependency graph to Graphviz DOT. Manifest
// roots render green, vulnerable dependencies red, everything else in its
// ecosystem color.
func ToDOT(rows []model.Dependency, roots map[uint64]bool, edges []model.GraphEdge, vulnerable map[uint64]bool) string {
	var buf bytes.Buffer
	buf.WriteString("digraph deps {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, row := range rows {
		fmt.Fprintf(&buf, "  %q [label=%q, fillcolor=%q];\n",
			nodeID(row.ID), nodeLabel(row), nodeColor(row, roots, vulnerable))
	}

	buf.WriteString("\n")
	for _, e := range edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", nodeID(e.From), nodeID(e.To))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(id uint64) string {
	return fmt.Sprintf("d%d", id)
}

func nodeLabel(row model.Dependency) string {
	label := row.Name
	if len(label) > maxLabelLen {
		label = label[:maxLabelLen-3] + "..."
	}
	if row.Version != "" {
		label += "\n" + row.Version
	}
	return label
}

func nodeColor(row model.Dependency, roots, vulnerable map[uint64]bool) string {
	switch {
	case vulnerable[row.ID]:
		return vulnerableColor
	case roots[row.ID]:
		return rootColor
	default:
		if c, ok := typeColors[row.PackageType]; ok {
			return c
		}
		return defaultColor
	}
}

// RenderSVG lays out a DOT graph with Graphviz and returns the SVG bytes.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "render graph")
	}
	if !strings.Contains(buf.String(), "<svg") {
		return nil, errors.New(errors.ErrCodeInternal, "graphviz produced no SVG output")
	}
	return buf.Bytes(), nil
}
