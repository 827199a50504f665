package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loom-dev/loom/internal/build"
	"github.com/loom-dev/loom/internal/config"
)

func buildCmd() *cobra.Command {
	var (
		output     string
		minify     bool
		sourceMaps bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build for production",
		Long: `Build every target for production deployment.

This command:
  • Empties the output root
  • Compiles client, SSR, and API targets concurrently
  • Resolves self-reference imports to final output paths
  • Synthesizes the server module
  • Writes the asset name manifest

Examples:
  loom build
  loom build --output=dist
  loom build --minify --sourcemaps`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(output, minify, sourceMaps, verbose)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default from loom.json)")
	cmd.Flags().BoolVar(&minify, "minify", false, "Minify output (default from loom.json)")
	cmd.Flags().BoolVar(&sourceMaps, "sourcemaps", false, "Generate source maps (default from loom.json)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print per-target progress")

	return cmd
}

func runBuild(output string, minify, sourceMaps, verbose bool) error {
	// Load config
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	// Apply command-line overrides
	if output != "" {
		cfg.Build.Output = output
	}

	fmt.Println("  Building for production...")
	fmt.Println()

	// Create builder
	builder := build.New(cfg, build.Options{
		Minify:     minify,
		SourceMaps: sourceMaps,
		Verbose:    verbose,
		OnProgress: func(step string) {
			info(step)
		},
	})

	// Handle signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	// Build
	result, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	// Print results
	fmt.Println()
	success("Build complete in %s", result.Duration.Round(1000000))
	fmt.Println()
	fmt.Println("  Output:")
	fmt.Printf("    %s/\n", cfg.Build.Output)
	for _, tr := range result.Targets {
		fmt.Printf("    ├── %s/\n", tr.Target.Name)
		fmt.Printf("    │   └── %s  (%s)\n", tr.Output.EntryFile, formatBytes(tr.Size))
	}
	fmt.Printf("    ├── %s\n", build.ServerModule)
	fmt.Printf("    └── %s\n", build.ManifestFile)
	fmt.Println()
	fmt.Println("  To deploy:")
	fmt.Println("    loom deploy")
	fmt.Println()

	return nil
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
