package main

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"clipsmith/internal/bootstrap"
	"clipsmith/internal/config"
	"clipsmith/internal/content"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clipsmith",
		Short:         "Render, narrate and assemble video compilations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute the full render, narration and assembly pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
}

func run(cmd *cobra.Command) error {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting clipsmith",
		slog.String("version", version),
		slog.String("server", cfg.ComfyServerURL),
		slog.String("content_file", cfg.ContentFile),
		slog.String("output_dir", cfg.OutputDir),
		slog.Bool("tts_enabled", cfg.TTSEnabled()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	items, err := content.LoadFile(cfg.ContentFile)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	logger.Info("content loaded", slog.Int("items", len(items)))

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	result, err := deps.Pipeline.Run(cmd.Context(), items)
	if err != nil {
		return err
	}

	logger.Info("pipeline complete",
		slog.String("final", result.FinalPath),
		slog.Bool("narrated", result.Narrated),
		slog.Int("clips", len(result.Manifest.Successful())),
	)
	if result.PublishedURL != "" {
		logger.Info("published", slog.String("url", result.PublishedURL))
	}

	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the clipsmith version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "clipsmith "+version)
		},
	}
}
