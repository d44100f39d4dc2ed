// Package bootstrap provides dependency initialization for clipsmith.
package bootstrap

import (
	"fmt"
	"log/slog"

	"clipsmith/internal/comfy"
	"clipsmith/internal/config"
	"clipsmith/internal/media"
	"clipsmith/internal/pipeline"
	"clipsmith/internal/render"
	"clipsmith/internal/speech"
	"clipsmith/internal/storage"
)

// Dependencies holds all initialized dependencies for a pipeline run.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Layout   *storage.Layout
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	layout, err := storage.NewLayout(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create output layout: %w", err)
	}

	template, err := comfy.LoadTemplate(cfg.WorkflowFile, comfy.NodeIDs{
		Prompt:  cfg.PromptNodeID,
		Sampler: cfg.SamplerNodeID,
		Latent:  cfg.LatentNodeID,
		Save:    cfg.SaveNodeID,
	})
	if err != nil {
		return nil, fmt.Errorf("load workflow template: %w", err)
	}

	client, err := comfy.NewClient(cfg.ComfyServerURL)
	if err != nil {
		return nil, fmt.Errorf("create render client: %w", err)
	}

	runner := render.NewRunner(client, template.SaveNodeID(),
		render.WithPollInterval(cfg.PollInterval()),
		render.WithMaxAttempts(cfg.MaxPollAttempts),
		render.WithLogger(logger),
	)

	tool := media.NewFFmpeg("", "")

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
	}

	if cfg.TTSEnabled() {
		synth, err := speech.NewHTTPSynthesizer(cfg.TTSServerURL, speech.WithOptions(speech.Options{
			ReferenceVoicePath:  cfg.ReferenceVoicePath,
			ReferenceTranscript: cfg.ReferenceTranscript,
			TailPadMs:           cfg.TTSTailPadMs,
		}))
		if err != nil {
			return nil, fmt.Errorf("create speech client: %w", err)
		}
		logger.Info("speech synthesis configured",
			slog.String("server", cfg.TTSServerURL),
		)
		pipelineOpts = append(pipelineOpts, pipeline.WithSynthesizer(synth))
	} else {
		logger.Info("speech synthesis not configured, compilation will be silent")
	}

	if cfg.S3Enabled() {
		uploader, err := storage.NewS3Uploader(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 uploader: %w", err)
		}
		logger.Info("S3 publication configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		pipelineOpts = append(pipelineOpts, pipeline.WithUploader(uploader))
	}

	p := pipeline.New(template, client, runner, tool, layout, pipeline.Options{
		DefaultFrames: cfg.VideoFrames,
		DefaultWidth:  cfg.VideoWidth,
		DefaultHeight: cfg.VideoHeight,
		StretchLimit:  cfg.SyncStretchLimitSec,
		Cooldown:      cfg.Cooldown(),
	}, pipelineOpts...)

	return &Dependencies{
		Pipeline: p,
		Layout:   layout,
	}, nil
}
