package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("valid list", func(t *testing.T) {
		data := []byte(`[
			{"id": 1, "image_prompt": "a storm over the sea", "commentary": "The sea rises."},
			{"id": 2, "image_prompt": "calm harbor at dawn", "commentary": "Then, quiet.", "duration_frames": 97, "width": 1024, "height": 576}
		]`)

		items, err := Parse(data)
		require.NoError(t, err)
		require.Len(t, items, 2)

		assert.Equal(t, 1, items[0].ID)
		assert.True(t, items[0].HasPrompt())
		assert.Equal(t, 97, items[1].Frames)
		assert.Equal(t, 1024, items[1].Width)
	})

	t.Run("object instead of list", func(t *testing.T) {
		_, err := Parse([]byte(`{"id": 1}`))
		assert.ErrorIs(t, err, ErrContentNotList)
	})

	t.Run("empty list", func(t *testing.T) {
		_, err := Parse([]byte(`[]`))
		assert.ErrorIs(t, err, ErrNoItems)
	})

	t.Run("missing id fails validation", func(t *testing.T) {
		_, err := Parse([]byte(`[{"image_prompt": "x", "commentary": "y"}]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "item 0")
	})

	t.Run("out of range dimensions fail validation", func(t *testing.T) {
		_, err := Parse([]byte(`[{"id": 1, "image_prompt": "x", "width": 7}]`))
		require.Error(t, err)
	})

	t.Run("missing prompt is allowed", func(t *testing.T) {
		items, err := Parse([]byte(`[{"id": 3, "commentary": "only words"}]`))
		require.NoError(t, err)
		assert.False(t, items[0].HasPrompt())
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, ErrContentFileNotFound)
	})

	t.Run("reads from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "content.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1, "image_prompt": "p", "commentary": "c"}]`), 0600))

		items, err := LoadFile(path)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}
