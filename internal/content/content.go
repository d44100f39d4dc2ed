// Package content loads and validates the pregenerated content items that
// drive a pipeline run. Each item pairs a render prompt with the commentary
// line narrated over the resulting clip.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Static errors for content loading.
var (
	// ErrContentFileNotFound is returned when the content file does not exist.
	ErrContentFileNotFound = errors.New("content: file not found")
	// ErrContentNotList is returned when the content file is not a JSON list.
	ErrContentNotList = errors.New("content: file must contain a JSON list of items")
	// ErrNoItems is returned when the content file contains no items.
	ErrNoItems = errors.New("content: no items in file")
)

// Item is one unit of input: a render prompt plus the commentary text
// narrated over the resulting clip. Items are read once at pipeline start
// and never mutated.
type Item struct {
	// ID is the stable identifier, also used for filename correlation.
	ID int `json:"id" validate:"required,min=1"`
	// Prompt is the text sent to the render backend.
	Prompt string `json:"image_prompt"`
	// Commentary is the narration text for this clip.
	Commentary string `json:"commentary"`
	// Frames overrides the default frame count when positive.
	Frames int `json:"duration_frames,omitempty" validate:"omitempty,min=1"`
	// Width overrides the default video width when positive.
	Width int `json:"width,omitempty" validate:"omitempty,min=16,max=4096"`
	// Height overrides the default video height when positive.
	Height int `json:"height,omitempty" validate:"omitempty,min=16,max=4096"`
}

// HasPrompt returns true if the item carries a non-empty render prompt.
// Items without a prompt are recorded as skipped, not rendered.
func (i Item) HasPrompt() bool {
	return i.Prompt != ""
}

// LoadFile reads and validates content items from a JSON file.
// The file must contain a JSON list; each item is validated individually
// so one malformed item fails the load with a pointer to its position.
func LoadFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrContentFileNotFound, path)
		}
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes and validates content items from raw JSON.
func Parse(data []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Value == "object" {
			return nil, ErrContentNotList
		}
		return nil, fmt.Errorf("content: decode: %w", err)
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}

	validate := validator.New()
	for idx, item := range items {
		if err := validate.Struct(item); err != nil {
			return nil, fmt.Errorf("content: item %d (id %d): %w", idx, item.ID, err)
		}
	}

	return items, nil
}
