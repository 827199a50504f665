package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/loom-dev/loom/internal/build"
	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/errors"
	"github.com/loom-dev/loom/internal/publish"
)

func deployCmd() *cobra.Command {
	var (
		bucket string
		prefix string
		prune  bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload the build output to S3",
		Long: `Upload the production build output to the configured S3 bucket.

Credentials come from the standard AWS sources: environment
variables, shared config files, or an attached role. The bucket,
key prefix, and region live in the "deploy" section of loom.json.

Examples:
  loom deploy
  loom deploy --prune
  loom deploy --bucket=my-bucket --prefix=apps/shop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(bucket, prefix, prune)
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket (default from loom.json)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix inside the bucket (default from loom.json)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete remote objects missing from the build output")

	return cmd
}

func runDeploy(bucket, prefix string, prune bool) error {
	// Load config
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	// Apply command-line overrides
	if bucket != "" {
		cfg.Deploy.Bucket = bucket
	}
	if prefix != "" {
		cfg.Deploy.Prefix = prefix
	}

	if cfg.Deploy.Bucket == "" {
		return errors.New("E503").
			WithSuggestion(`Add {"deploy": {"bucket": "my-bucket"}} to loom.json or pass --bucket`)
	}

	// Refuse to deploy without a completed build
	outputRoot := cfg.OutputPath()
	if _, err := os.Stat(filepath.Join(outputRoot, build.ManifestFile)); err != nil {
		return errors.Newf(errors.CategoryCLI, "no build output in %s", cfg.Build.Output).
			WithSuggestion("Run 'loom build' first")
	}

	// Handle signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("  Deploying %s/ to s3://%s\n", cfg.Build.Output, deployTarget(cfg))
	fmt.Println()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Deploy.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Deploy.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	publisher := publish.New(s3.NewFromConfig(awsCfg), cfg.Deploy.Bucket, cfg.Deploy.Prefix, publish.Options{
		Prune: prune,
		OnUpload: func(key string, size int64) {
			info("%s  (%s)", key, formatBytes(size))
		},
	})

	summary, err := publisher.Publish(ctx, outputRoot)
	if err != nil {
		return err
	}

	// Print results
	fmt.Println()
	success("Deployed %d files (%s) in %s", summary.Uploaded, formatBytes(summary.Bytes), summary.Duration.Round(1000000))
	if summary.Pruned > 0 {
		info("Pruned %d stale objects", summary.Pruned)
	}
	fmt.Println()

	return nil
}

// deployTarget formats bucket/prefix for display.
func deployTarget(cfg *config.Config) string {
	if cfg.Deploy.Prefix == "" {
		return cfg.Deploy.Bucket
	}
	return cfg.Deploy.Bucket + "/" + cfg.Deploy.Prefix
}
