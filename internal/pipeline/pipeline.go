// Package pipeline orchestrates the full run: render every content item,
// synthesize narration, then align and assemble the final compilation.
// Stages communicate only through the filesystem and the persisted
// manifest, so assembly can run against artifacts from an earlier
// invocation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"clipsmith/internal/align"
	"clipsmith/internal/clip"
	"clipsmith/internal/comfy"
	"clipsmith/internal/content"
	"clipsmith/internal/media"
	"clipsmith/internal/render"
	"clipsmith/internal/speech"
	"clipsmith/internal/storage"
)

// Static errors for pipeline operations.
var (
	// ErrNoRenderedClips is returned when assembly finds no downloaded clips
	// in the manifest.
	ErrNoRenderedClips = errors.New("pipeline: no successfully rendered clips to assemble")
	// ErrNoPairings is returned when narration exists but no narration file
	// matches any rendered clip.
	ErrNoPairings = errors.New("pipeline: no narration/video pairings found")
)

// Options carry the run parameters not owned by any single dependency.
type Options struct {
	// DefaultFrames is the frame count used when an item has no override.
	DefaultFrames int
	// DefaultWidth is the video width used when an item has no override.
	DefaultWidth int
	// DefaultHeight is the video height used when an item has no override.
	DefaultHeight int
	// StretchLimit is the maximum audio overhang corrected by stretching.
	StretchLimit float64
	// Cooldown is the pause between the render and synthesis stages.
	Cooldown time.Duration
	// SeedFunc produces the sampler seed for each job. Defaults to a random
	// non-negative int64; injectable for deterministic tests.
	SeedFunc func() int64
}

// Pipeline wires the stage dependencies together for one run.
type Pipeline struct {
	template *comfy.Template
	client   comfy.Client
	runner   *render.Runner
	synth    speech.Synthesizer // nil when narration is not configured
	tool     media.Tool
	layout   *storage.Layout
	uploader storage.Uploader // nil when publication is not configured
	sleeper  render.Sleeper
	logger   *slog.Logger
	opts     Options
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSynthesizer sets the narration synthesizer. A nil synthesizer means
// the run produces a silent compilation.
func WithSynthesizer(s speech.Synthesizer) Option {
	return func(p *Pipeline) {
		p.synth = s
	}
}

// WithUploader sets the publication target for the final compilation.
func WithUploader(u storage.Uploader) Option {
	return func(p *Pipeline) {
		p.uploader = u
	}
}

// WithSleeper sets the sleep dependency used for the inter-stage cooldown.
func WithSleeper(s render.Sleeper) Option {
	return func(p *Pipeline) {
		p.sleeper = s
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a Pipeline.
func New(
	template *comfy.Template,
	client comfy.Client,
	runner *render.Runner,
	tool media.Tool,
	layout *storage.Layout,
	opts Options,
	pipelineOpts ...Option,
) *Pipeline {
	if opts.SeedFunc == nil {
		opts.SeedFunc = func() int64 {
			return rand.Int64() // #nosec G404 - seed variety, not security
		}
	}

	p := &Pipeline{
		template: template,
		client:   client,
		runner:   runner,
		tool:     tool,
		layout:   layout,
		sleeper:  render.RealSleeper(),
		logger:   slog.Default(),
		opts:     opts,
	}
	for _, opt := range pipelineOpts {
		opt(p)
	}
	return p
}

// Result summarizes a completed run.
type Result struct {
	// Manifest is the final state of every clip job.
	Manifest clip.Manifest
	// Narrated is true when the compilation carries a narration track.
	Narrated bool
	// FinalPath is the local path of the final compilation.
	FinalPath string
	// PublishedURL is set when the compilation was uploaded.
	PublishedURL string
}

// Run executes all stages against the given content items.
func (p *Pipeline) Run(ctx context.Context, items []content.Item) (*Result, error) {
	manifest, err := p.renderStage(ctx, items)
	if err != nil {
		return nil, err
	}

	if p.opts.Cooldown > 0 {
		p.logger.Info("cooling down before synthesis", slog.Duration("cooldown", p.opts.Cooldown))
		p.sleeper.Sleep(p.opts.Cooldown)
	}

	narrated := p.narrationStage(ctx, items)

	result, err := p.assembleStage(ctx, narrated)
	if err != nil {
		return nil, err
	}

	result.Manifest = manifest
	return result, nil
}

// renderStage submits every item with a prompt, polls each to a terminal
// outcome, downloads successful artifacts, and persists the manifest.
// Per-item failures become manifest statuses; only a misconfigured
// template node aborts the stage.
func (p *Pipeline) renderStage(ctx context.Context, items []content.Item) (clip.Manifest, error) {
	var manifest clip.Manifest

	for order, item := range items {
		job := clip.Job{ID: item.ID, Order: order}

		if !item.HasPrompt() {
			p.logger.Info("skipping item without prompt", slog.Int("id", item.ID))
			job.Status = clip.StatusSkippedNoPrompt
			manifest = manifest.Append(job)
			continue
		}

		wf, err := p.template.Apply(comfy.Overrides{
			Prompt:         item.Prompt,
			Seed:           p.opts.SeedFunc(),
			Frames:         p.frames(item),
			Width:          p.width(item),
			Height:         p.height(item),
			FilenamePrefix: "narrativegen_clip_" + job.PaddedID(),
		})
		if err != nil {
			// A bad node ID poisons every job, not just this one.
			return nil, fmt.Errorf("pipeline: apply template for item %d: %w", item.ID, err)
		}

		p.logger.Info("rendering clip",
			slog.Int("id", item.ID),
			slog.Int("order", order),
			slog.Int("total", len(items)),
		)

		outcome := p.runner.Run(ctx, wf)
		switch outcome.Status {
		case render.StatusSuccess:
			job.Locator = &outcome.Locator
			destPath := filepath.Join(p.layout.ClipsDir(), downloadName(outcome.Locator))
			if err := p.client.Download(ctx, outcome.Locator, destPath); err != nil {
				p.logger.Error("clip download failed",
					slog.Int("id", item.ID),
					slog.String("error", err.Error()),
				)
				job.Status = clip.StatusDownloadFailed
			} else {
				job.Status = clip.StatusDownloaded
				job.LocalPath = destPath
			}
		case render.StatusQueueFailed:
			p.logger.Error("clip submission failed",
				slog.Int("id", item.ID),
				slog.String("error", errString(outcome.Err)),
			)
			job.Status = clip.StatusQueueFailed
		case render.StatusTimeout:
			p.logger.Error("clip render timed out", slog.Int("id", item.ID))
			job.Status = clip.StatusTimeout
		default:
			p.logger.Error("clip produced no output", slog.Int("id", item.ID))
			job.Status = clip.StatusNoOutput
		}

		manifest = manifest.Append(job)
	}

	if err := manifest.WriteFile(p.layout.ManifestPath()); err != nil {
		return nil, err
	}
	p.logger.Info("render stage complete",
		slog.Int("total", len(manifest)),
		slog.Int("downloaded", len(manifest.Successful())),
		slog.String("manifest", p.layout.ManifestPath()),
	)

	return manifest, nil
}

// downloadName maps a locator filename to the local clip filename, keeping
// the backend's name but guaranteeing an .mp4 suffix.
func downloadName(loc comfy.Locator) string {
	name := loc.Filename
	if !strings.HasSuffix(strings.ToLower(name), ".mp4") {
		name += ".mp4"
	}
	return name
}

// narrationStage synthesizes one WAV per item with commentary. Narration is
// all-or-nothing for a run: a single synthesis failure drops the narration
// track entirely and the compilation is assembled silent. Returns whether
// narration is available for assembly.
func (p *Pipeline) narrationStage(ctx context.Context, items []content.Item) bool {
	if p.synth == nil {
		p.logger.Info("narration not configured, assembling silent compilation")
		return false
	}

	for _, item := range items {
		if item.Commentary == "" {
			p.logger.Info("skipping narration for item without commentary", slog.Int("id", item.ID))
			continue
		}

		p.logger.Info("synthesizing narration", slog.Int("id", item.ID))
		data, err := p.synth.Synthesize(ctx, item.Commentary)
		if err != nil {
			p.logger.Error("narration synthesis failed, dropping narration for this run",
				slog.Int("id", item.ID),
				slog.String("error", err.Error()),
			)
			return false
		}

		path := p.layout.NarrationPath(clip.FormatID(item.ID))
		if err := speech.SaveWAV(path, data); err != nil {
			p.logger.Error("narration write failed, dropping narration for this run",
				slog.Int("id", item.ID),
				slog.String("error", err.Error()),
			)
			return false
		}
	}

	return true
}

// assembleStage reads the persisted manifest back, synchronizes each
// narration/video pairing, and concatenates the compilation in manifest
// order. Without narration it concatenates the raw clips directly.
func (p *Pipeline) assembleStage(ctx context.Context, narrated bool) (*Result, error) {
	manifest, err := clip.ReadManifest(p.layout.ManifestPath())
	if err != nil {
		return nil, err
	}

	successful := manifest.Successful()
	if len(successful) == 0 {
		return nil, ErrNoRenderedClips
	}

	var concatPaths []string
	if narrated {
		concatPaths, err = p.mergePairings(ctx, successful)
		if errors.Is(err, ErrNoPairings) {
			// Clips exist but none matched a narration file; assemble them
			// silent rather than discarding the run.
			p.logger.Warn("no pairings found, assembling silent compilation")
			narrated = false
		} else if err != nil {
			return nil, err
		}
	}
	if !narrated {
		concatPaths = concatPaths[:0]
		for _, job := range successful {
			concatPaths = append(concatPaths, job.LocalPath)
		}
	}

	finalPath := p.layout.FinalPath()
	p.logger.Info("concatenating final compilation",
		slog.Int("clips", len(concatPaths)),
		slog.Bool("narrated", narrated),
	)
	if err := p.tool.Concat(ctx, concatPaths, finalPath); err != nil {
		return nil, fmt.Errorf("pipeline: concatenate compilation: %w", err)
	}

	result := &Result{Narrated: narrated, FinalPath: finalPath}

	if p.uploader != nil {
		key := storage.KeyFor(p.layout.Root(), finalPath)
		url, err := p.uploader.UploadFile(ctx, key, finalPath)
		if err != nil {
			// The compilation exists locally; publication failure is not
			// worth discarding the run over.
			p.logger.Error("publication failed", slog.String("error", err.Error()))
		} else {
			p.logger.Info("compilation published", slog.String("url", url))
			result.PublishedURL = url
		}
	}

	return result, nil
}

// mergePairings pairs narrations with rendered clips by filename identifier
// and produces one synchronized clip per pairing, returned in manifest
// order.
func (p *Pipeline) mergePairings(ctx context.Context, successful clip.Manifest) ([]string, error) {
	narrations, err := align.ScanNarrations(p.layout.NarrationsDir())
	if err != nil {
		return nil, fmt.Errorf("pipeline: scan narrations: %w", err)
	}
	videos, err := align.ScanVideos(p.layout.ClipsDir())
	if err != nil {
		return nil, fmt.Errorf("pipeline: scan clips: %w", err)
	}

	pairings := align.Pair(narrations, videos, p.logger)
	if len(pairings) == 0 {
		return nil, ErrNoPairings
	}

	merged := make(map[string]string, len(pairings))
	for _, pairing := range pairings {
		audioDur, err := p.tool.Duration(ctx, pairing.NarrationPath)
		if err != nil {
			return nil, fmt.Errorf("pipeline: probe narration %s: %w", pairing.ID, err)
		}
		videoDur, err := p.tool.Duration(ctx, pairing.VideoPath)
		if err != nil {
			return nil, fmt.Errorf("pipeline: probe clip %s: %w", pairing.ID, err)
		}

		decision := align.Plan(audioDur, videoDur, p.opts.StretchLimit)
		p.logger.Info("aligning clip",
			slog.String("id", pairing.ID),
			slog.Float64("audio_sec", audioDur),
			slog.Float64("video_sec", videoDur),
			slog.String("transform", decision.String()),
		)

		outPath := p.layout.MergedPath(pairing.ID)
		if err := p.tool.SyncClip(ctx, pairing.VideoPath, pairing.NarrationPath, outPath, decision); err != nil {
			return nil, fmt.Errorf("pipeline: sync clip %s: %w", pairing.ID, err)
		}
		merged[pairing.ID] = outPath
	}

	// Concatenation follows manifest order, not pairing order; clips whose
	// narration went unmatched are dropped here.
	var paths []string
	for _, job := range successful {
		if path, ok := merged[job.PaddedID()]; ok {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (p *Pipeline) frames(item content.Item) int {
	if item.Frames > 0 {
		return item.Frames
	}
	return p.opts.DefaultFrames
}

func (p *Pipeline) width(item content.Item) int {
	if item.Width > 0 {
		return item.Width
	}
	return p.opts.DefaultWidth
}

func (p *Pipeline) height(item content.Item) int {
	if item.Height > 0 {
		return item.Height
	}
	return p.opts.DefaultHeight
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
