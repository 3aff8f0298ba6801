package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/depsight/depsight/pkg/buildinfo"
)

// Execute runs the depsight CLI. The context carries cancellation from the
// process signal handler; the logger is attached to the command context and
// retrieved by subcommands via loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "depsight",
		Short:        "Depsight analyzes repository dependencies and known vulnerabilities",
		Long:         `Depsight fetches a repository's manifests, resolves the declared dependencies into a shared catalog, correlates them against the OSV vulnerability feed, and assembles versioned reports with rendered HTML and graph artifacts.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAnalyzeCmd())

	return root.ExecuteContext(ctx)
}
