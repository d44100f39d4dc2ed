package comfy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkflow = `{
	"3": {"class_type": "KSampler", "inputs": {"seed": 1, "steps": 20}},
	"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "placeholder"}},
	"40": {"class_type": "EmptyHunyuanLatentVideo", "inputs": {"length": 65, "width": 832, "height": 480}},
	"52": {"class_type": "SaveVideo", "inputs": {"filename_prefix": "out_"}}
}`

func testNodeIDs() NodeIDs {
	return NodeIDs{Prompt: "6", Sampler: "3", Latent: "40", Save: "52"}
}

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadTemplate(t *testing.T) {
	t.Run("valid template", func(t *testing.T) {
		tmpl, err := LoadTemplate(writeTemplate(t, testWorkflow), testNodeIDs())
		require.NoError(t, err)
		assert.Equal(t, "52", tmpl.SaveNodeID())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.json"), testNodeIDs())
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := LoadTemplate(writeTemplate(t, `{not json`), testNodeIDs())
		assert.ErrorIs(t, err, ErrTemplateMalformed)
	})

	t.Run("empty workflow", func(t *testing.T) {
		_, err := LoadTemplate(writeTemplate(t, `{}`), testNodeIDs())
		assert.ErrorIs(t, err, ErrTemplateMalformed)
	})

	t.Run("unknown save node is a setup error", func(t *testing.T) {
		ids := testNodeIDs()
		ids.Save = "99"
		_, err := LoadTemplate(writeTemplate(t, testWorkflow), ids)
		assert.ErrorIs(t, err, ErrUnknownNode)
	})
}

func TestTemplate_Apply(t *testing.T) {
	tmpl, err := LoadTemplate(writeTemplate(t, testWorkflow), testNodeIDs())
	require.NoError(t, err)

	o := Overrides{
		Prompt:         "a storm over the sea",
		Seed:           12345,
		Frames:         97,
		Width:          1024,
		Height:         576,
		FilenamePrefix: "narrativegen_clip_0001_",
	}

	wf, err := tmpl.Apply(o)
	require.NoError(t, err)

	assert.Equal(t, "a storm over the sea", wf["6"].Inputs["text"])
	assert.EqualValues(t, 12345, wf["3"].Inputs["seed"])
	assert.EqualValues(t, 97, wf["40"].Inputs["length"])
	assert.EqualValues(t, 1024, wf["40"].Inputs["width"])
	assert.EqualValues(t, 576, wf["40"].Inputs["height"])
	assert.Equal(t, "narrativegen_clip_0001_", wf["52"].Inputs["filename_prefix"])

	// Untouched inputs survive the copy.
	assert.EqualValues(t, 20, wf["3"].Inputs["steps"])
}

func TestTemplate_ApplyDoesNotMutateBase(t *testing.T) {
	tmpl, err := LoadTemplate(writeTemplate(t, testWorkflow), testNodeIDs())
	require.NoError(t, err)

	_, err = tmpl.Apply(Overrides{Prompt: "first", Seed: 1, Frames: 1, Width: 16, Height: 16, FilenamePrefix: "a_"})
	require.NoError(t, err)

	wf, err := tmpl.Apply(Overrides{Prompt: "second", Seed: 2, Frames: 2, Width: 32, Height: 32, FilenamePrefix: "b_"})
	require.NoError(t, err)

	assert.Equal(t, "second", wf["6"].Inputs["text"])
	assert.Equal(t, "placeholder", tmpl.base["6"].Inputs["text"])
}
