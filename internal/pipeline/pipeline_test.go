package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipsmith/internal/align"
	"clipsmith/internal/clip"
	"clipsmith/internal/comfy"
	"clipsmith/internal/content"
	"clipsmith/internal/render"
	"clipsmith/internal/storage"
)

// scriptedClient renders every submission instantly. The artifact filename
// is derived from the submitted workflow's filename prefix, mirroring how
// the backend names its outputs.
type scriptedClient struct {
	submits     int
	failSubmits map[int]bool // 1-based submission index -> fail
	lastPrefix  string
}

func (c *scriptedClient) Submit(_ context.Context, wf comfy.Workflow) (string, error) {
	c.submits++
	if c.failSubmits[c.submits] {
		return "", errors.New("backend rejected workflow")
	}
	if node, ok := wf["52"]; ok {
		if prefix, ok := node.Inputs["filename_prefix"].(string); ok {
			c.lastPrefix = prefix
		}
	}
	return fmt.Sprintf("p-%d", c.submits), nil
}

func (c *scriptedClient) History(_ context.Context, _ string) (*comfy.RunHistory, error) {
	payload := fmt.Sprintf(`{"videos": [{"filename": "%s__00001.mp4", "type": "output"}]}`, c.lastPrefix)
	var out comfy.NodeOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, err
	}
	return &comfy.RunHistory{Outputs: map[string]comfy.NodeOutput{"52": out}}, nil
}

func (c *scriptedClient) Download(_ context.Context, _ comfy.Locator, destPath string) error {
	return os.WriteFile(destPath, []byte("clip bytes"), 0600)
}

// fakeTool records media operations and fabricates their outputs.
type fakeTool struct {
	audioDur  float64
	videoDur  float64
	syncCalls []align.Decision
	concatted []string
}

func (f *fakeTool) Duration(_ context.Context, path string) (float64, error) {
	if filepath.Ext(path) == ".wav" {
		return f.audioDur, nil
	}
	return f.videoDur, nil
}

func (f *fakeTool) SyncClip(_ context.Context, _, _, outputPath string, d align.Decision) error {
	f.syncCalls = append(f.syncCalls, d)
	return os.WriteFile(outputPath, []byte("merged bytes"), 0600)
}

func (f *fakeTool) Concat(_ context.Context, paths []string, outputPath string) error {
	f.concatted = append([]string(nil), paths...)
	return os.WriteFile(outputPath, []byte("final bytes"), 0600)
}

// fakeSynth returns a canned waveform or a scripted failure.
type fakeSynth struct {
	err   error
	calls int
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("RIFF waveform"), nil
}

// fakeUploader records the published key.
type fakeUploader struct {
	err error
	key string
}

func (f *fakeUploader) UploadFile(_ context.Context, key, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key = key
	return "https://bucket.s3.us-east-1.amazonaws.com/" + key, nil
}

func writeTemplate(t *testing.T) *comfy.Template {
	t.Helper()

	wf := `{
		"6": {"class_type": "CLIPTextEncode", "inputs": {"text": ""}},
		"3": {"class_type": "KSampler", "inputs": {"seed": 0}},
		"40": {"class_type": "EmptyHunyuanLatentVideo", "inputs": {"length": 65, "width": 832, "height": 480}},
		"52": {"class_type": "SaveVideo", "inputs": {"filename_prefix": ""}}
	}`
	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(wf), 0600))

	tpl, err := comfy.LoadTemplate(path, comfy.NodeIDs{Prompt: "6", Sampler: "3", Latent: "40", Save: "52"})
	require.NoError(t, err)
	return tpl
}

type harness struct {
	pipeline *Pipeline
	client   *scriptedClient
	tool     *fakeTool
	layout   *storage.Layout
	sleeper  *countingSleeper
}

type countingSleeper struct {
	calls int
	total time.Duration
}

func (s *countingSleeper) Sleep(d time.Duration) {
	s.calls++
	s.total += d
}

func newHarness(t *testing.T, opts Options, pipelineOpts ...Option) *harness {
	t.Helper()

	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)

	client := &scriptedClient{failSubmits: map[int]bool{}}
	tool := &fakeTool{audioDur: 5.0, videoDur: 5.0}
	sleeper := &countingSleeper{}
	runner := render.NewRunner(client, "52",
		render.WithSleeper(sleeper),
		render.WithMaxAttempts(3),
	)

	if opts.DefaultFrames == 0 {
		opts.DefaultFrames = 65
	}
	if opts.DefaultWidth == 0 {
		opts.DefaultWidth = 832
	}
	if opts.DefaultHeight == 0 {
		opts.DefaultHeight = 480
	}
	if opts.StretchLimit == 0 {
		opts.StretchLimit = align.DefaultStretchLimit
	}
	opts.SeedFunc = func() int64 { return 42 }

	pipelineOpts = append(pipelineOpts, WithSleeper(sleeper))
	p := New(writeTemplate(t), client, runner, tool, layout, opts, pipelineOpts...)
	return &harness{pipeline: p, client: client, tool: tool, layout: layout, sleeper: sleeper}
}

func testItems() []content.Item {
	return []content.Item{
		{ID: 1, Prompt: "a volcano erupting", Commentary: "The volcano erupted."},
		{ID: 2, Prompt: "lava flowing to the sea", Commentary: "Lava reached the sea."},
	}
}

func TestPipeline_Run_Narrated(t *testing.T) {
	h := newHarness(t, Options{}, WithSynthesizer(&fakeSynth{}))

	result, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)

	assert.True(t, result.Narrated)
	assert.Equal(t, h.layout.FinalPath(), result.FinalPath)

	require.Len(t, result.Manifest, 2)
	for _, job := range result.Manifest {
		assert.Equal(t, clip.StatusDownloaded, job.Status)
		assert.NotEmpty(t, job.LocalPath)
		assert.FileExists(t, job.LocalPath)
	}

	// Equal durations mean a passthrough transform on both pairings.
	require.Len(t, h.tool.syncCalls, 2)
	for _, d := range h.tool.syncCalls {
		assert.Equal(t, align.TransformNone, d.Transform)
	}

	require.Len(t, h.tool.concatted, 2)
	assert.Equal(t, h.layout.MergedPath("0001"), h.tool.concatted[0])
	assert.Equal(t, h.layout.MergedPath("0002"), h.tool.concatted[1])
}

func TestPipeline_Run_SilentWhenSynthesisFails(t *testing.T) {
	h := newHarness(t, Options{}, WithSynthesizer(&fakeSynth{err: errors.New("model not loaded")}))

	result, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)

	assert.False(t, result.Narrated)
	assert.Empty(t, h.tool.syncCalls, "no alignment without narration")

	// The raw downloaded clips are concatenated directly.
	require.Len(t, h.tool.concatted, 2)
	for _, path := range h.tool.concatted {
		assert.Equal(t, h.layout.ClipsDir(), filepath.Dir(path))
	}
}

func TestPipeline_Run_SilentWhenNoSynthesizer(t *testing.T) {
	h := newHarness(t, Options{})

	result, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)

	assert.False(t, result.Narrated)
	require.Len(t, h.tool.concatted, 2)
}

func TestPipeline_Run_SilentWhenNoPairings(t *testing.T) {
	// Synthesis is configured but every item lacks commentary, so no
	// narration file is ever written and pairing comes up empty.
	synth := &fakeSynth{}
	h := newHarness(t, Options{}, WithSynthesizer(synth))

	items := []content.Item{
		{ID: 1, Prompt: "a volcano erupting"},
		{ID: 2, Prompt: "lava flowing to the sea"},
	}

	result, err := h.pipeline.Run(t.Context(), items)
	require.NoError(t, err)

	assert.Zero(t, synth.calls)
	assert.False(t, result.Narrated)
	require.Len(t, h.tool.concatted, 2)
}

func TestPipeline_Run_RecordsPerItemFailures(t *testing.T) {
	h := newHarness(t, Options{})
	h.client.failSubmits[1] = true // first submission rejected

	items := []content.Item{
		{ID: 1, Prompt: "rejected prompt"},
		{ID: 2}, // no prompt
		{ID: 3, Prompt: "a valid prompt"},
	}

	result, err := h.pipeline.Run(t.Context(), items)
	require.NoError(t, err)

	require.Len(t, result.Manifest, 3)
	assert.Equal(t, clip.StatusQueueFailed, result.Manifest[0].Status)
	assert.Equal(t, clip.StatusSkippedNoPrompt, result.Manifest[1].Status)
	assert.Equal(t, clip.StatusDownloaded, result.Manifest[2].Status)

	// Only the downloaded clip reaches the compilation.
	require.Len(t, h.tool.concatted, 1)
}

func TestPipeline_Run_NoRenderedClips(t *testing.T) {
	h := newHarness(t, Options{})
	h.client.failSubmits[1] = true
	h.client.failSubmits[2] = true

	_, err := h.pipeline.Run(t.Context(), testItems())
	assert.ErrorIs(t, err, ErrNoRenderedClips)
}

func TestPipeline_Run_ManifestPersisted(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)

	persisted, err := clip.ReadManifest(h.layout.ManifestPath())
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, 1, persisted[0].ID)
	assert.Equal(t, 0, persisted[0].Order)
	require.NotNil(t, persisted[0].Locator)
	assert.Equal(t, "narrativegen_clip_0001__00001.mp4", persisted[0].Locator.Filename)
}

func TestPipeline_Run_CooldownBetweenStages(t *testing.T) {
	h := newHarness(t, Options{Cooldown: 30 * time.Second})

	_, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, h.sleeper.total, 30*time.Second)
}

func TestPipeline_Run_PublishesFinalCompilation(t *testing.T) {
	uploader := &fakeUploader{}
	h := newHarness(t, Options{}, WithUploader(uploader))

	result, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)

	assert.NotEmpty(t, uploader.key)
	assert.Contains(t, result.PublishedURL, uploader.key)
}

func TestPipeline_Run_PublicationFailureNotFatal(t *testing.T) {
	h := newHarness(t, Options{}, WithUploader(&fakeUploader{err: errors.New("access denied")}))

	result, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)
	assert.Empty(t, result.PublishedURL)
	assert.FileExists(t, result.FinalPath)
}

func TestPipeline_Run_StretchDecisionAppliedPerPairing(t *testing.T) {
	h := newHarness(t, Options{}, WithSynthesizer(&fakeSynth{}))
	h.tool.audioDur = 7.0
	h.tool.videoDur = 5.0

	_, err := h.pipeline.Run(t.Context(), testItems())
	require.NoError(t, err)

	require.Len(t, h.tool.syncCalls, 2)
	for _, d := range h.tool.syncCalls {
		assert.Equal(t, align.TransformStretch, d.Transform)
		assert.InDelta(t, 1.4, d.Factor, 1e-9)
	}
}
