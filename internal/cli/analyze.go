package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/depsight/depsight/pkg/artifact"
	"github.com/depsight/depsight/pkg/cache"
	"github.com/depsight/depsight/pkg/pipeline"
	"github.com/depsight/depsight/pkg/report"
	"github.com/depsight/depsight/pkg/source/github"
	"github.com/depsight/depsight/pkg/store/memory"
	"github.com/depsight/depsight/pkg/vulnfeed"
)

func newAnalyzeCmd() *cobra.Command {
	var token string
	var outDir string

	cmd := &cobra.Command{
		Use:   "analyze <repo-url>",
		Short: "Analyze one repository and print the result",
		Long: `Analyze runs the full pipeline against a single repository without a
server: fetch, extract manifests, resolve dependencies, correlate with the
vulnerability feed, and assemble a report. With --out, the rendered HTML and
SVG artifacts are written next to each other in the given directory.

The token, when given, is used for the fetch only and never stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyze(cmd, args[0], token, outDir)
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "GitHub token for private repositories")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write report artifacts to")
	return cmd
}

func analyze(cmd *cobra.Command, repoURL, token, outDir string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	st := memory.New()
	artifacts := artifact.NewMemoryStore()
	feed := vulnfeed.New(cache.NewMemoryCache(), logger)
	runner := pipeline.New(st, github.NewFetcher(), feed, report.New(artifacts, logger), logger)

	p := newProgress(logger)
	_, rep, err := runner.Submit(ctx, repoURL, token)
	if err != nil {
		return err
	}
	p.done(fmt.Sprintf("analyzed %s", repoURL))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dependencies: %d\n", rep.TotalDependencies)
	fmt.Fprintf(out, "vulnerabilities: %d\n", rep.TotalVulns)

	if len(rep.Advisories) > 0 {
		deps, err := st.ListDependencies(ctx, "")
		if err != nil {
			return err
		}
		names := make(map[uint64]string, len(deps))
		for _, d := range deps {
			names[d.ID] = d.Coordinate().String()
		}
		ids := make([]uint64, 0, len(rep.Advisories))
		for id := range rep.Advisories {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			for _, adv := range rep.Advisories[id] {
				fmt.Fprintf(out, "  %s: %s [%s] %s\n", names[id], adv.ID, adv.Severity, adv.Summary)
			}
		}
	}

	for _, w := range rep.Warnings {
		logger.Warn("analysis warning", "kind", w.Kind, "subject", w.Subject, "detail", w.Message)
	}

	if outDir == "" {
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for name, key := range map[string]string{"report.html": rep.HTMLKey, "graph.svg": rep.GraphKey} {
		data, _, err := artifacts.Get(ctx, key)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		logger.Info("artifact written", "path", path)
	}
	return nil
}
