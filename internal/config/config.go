// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrServerURLRequired is returned when COMFY_SERVER_URL is not set.
	ErrServerURLRequired = errors.New("config: COMFY_SERVER_URL is required")
	// ErrWorkflowFileRequired is returned when WORKFLOW_FILE is not set.
	ErrWorkflowFileRequired = errors.New("config: WORKFLOW_FILE is required")
	// ErrContentFileRequired is returned when CONTENT_FILE is not set.
	ErrContentFileRequired = errors.New("config: CONTENT_FILE is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Render backend settings
	ComfyServerURL string `env:"COMFY_SERVER_URL, required" json:"comfy_server_url"`
	WorkflowFile   string `env:"WORKFLOW_FILE, default=wan2.1_t2v_workflow.json" json:"workflow_file"`

	// Node IDs inside the workflow template. These identify which nodes
	// receive per-item overrides; a wrong ID is a setup error that fails
	// the whole run before any job is submitted.
	PromptNodeID  string `env:"PROMPT_NODE_ID, default=6" json:"prompt_node_id"`
	SamplerNodeID string `env:"SAMPLER_NODE_ID, default=3" json:"sampler_node_id"`
	LatentNodeID  string `env:"LATENT_NODE_ID, default=40" json:"latent_node_id"`
	SaveNodeID    string `env:"SAVE_NODE_ID, default=52" json:"save_node_id"`

	// Content input
	ContentFile string `env:"CONTENT_FILE, default=pregenerated_content.json" json:"content_file"`

	// Output layout
	OutputDir string `env:"OUTPUT_DIR, default=." json:"output_dir"`

	// Default video parameters, overridable per content item.
	VideoWidth  int `env:"VIDEO_WIDTH, default=832" json:"video_width"`
	VideoHeight int `env:"VIDEO_HEIGHT, default=480" json:"video_height"`
	VideoFrames int `env:"VIDEO_FRAMES, default=65" json:"video_frames"`

	// Polling settings
	PollIntervalSec int `env:"POLL_INTERVAL_SEC, default=10" json:"poll_interval_sec"`
	MaxPollAttempts int `env:"MAX_POLL_ATTEMPTS, default=360" json:"max_poll_attempts"`

	// Cooldown between the render stage and the synthesis stage, giving
	// the backend time to release GPU memory before the next model loads.
	CooldownSec int `env:"COOLDOWN_SEC, default=30" json:"cooldown_sec"`

	// Speech synthesis settings
	TTSServerURL        string `env:"TTS_SERVER_URL" json:"tts_server_url,omitempty"`
	ReferenceVoicePath  string `env:"REFERENCE_VOICE_PATH" json:"reference_voice_path,omitempty"`
	ReferenceTranscript string `env:"REFERENCE_TRANSCRIPT" json:"reference_transcript,omitempty"`
	TTSTailPadMs        int    `env:"TTS_TAIL_PAD_MS, default=300" json:"tts_tail_pad_ms"`

	// Synchronization settings
	SyncStretchLimitSec float64 `env:"SYNC_STRETCH_LIMIT_SEC, default=4.0" json:"sync_stretch_limit_sec"`

	// Optional S3 settings for publishing the final compilation
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// TTSEnabled returns true if a speech synthesis backend is configured.
func (c *Config) TTSEnabled() bool {
	return c.TTSServerURL != ""
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// Cooldown returns the inter-stage cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "COMFY_SERVER_URL") {
			return nil, ErrServerURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.ComfyServerURL == "" {
		return ErrServerURLRequired
	}
	if c.WorkflowFile == "" {
		return ErrWorkflowFileRequired
	}
	if c.ContentFile == "" {
		return ErrContentFileRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{ComfyServerURL: %s, WorkflowFile: %s, ContentFile: %s, OutputDir: %s, PollIntervalSec: %d, MaxPollAttempts: %d, CooldownSec: %d, TTSServerURL: %s, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.ComfyServerURL,
		c.WorkflowFile,
		c.ContentFile,
		c.OutputDir,
		c.PollIntervalSec,
		c.MaxPollAttempts,
		c.CooldownSec,
		c.TTSServerURL,
		c.S3Bucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
