package comfy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Static errors for template handling.
var (
	// ErrTemplateNotFound is returned when the workflow template file does not exist.
	ErrTemplateNotFound = errors.New("comfy: workflow template file not found")
	// ErrTemplateMalformed is returned when the template is not valid workflow JSON.
	ErrTemplateMalformed = errors.New("comfy: workflow template is malformed")
	// ErrUnknownNode is returned when an override targets a node ID absent
	// from the template. The template is shared across all jobs, so this is
	// a setup error for the whole run, not a per-item failure.
	ErrUnknownNode = errors.New("comfy: node ID not found in workflow template")
)

// NodeIDs names the template nodes that receive per-item overrides.
type NodeIDs struct {
	// Prompt is the positive prompt text node.
	Prompt string
	// Sampler is the KSampler node whose seed is randomized per job.
	Sampler string
	// Latent is the empty latent video node carrying frame count and dimensions.
	Latent string
	// Save is the MP4 save node; its output payload is resolved after the run.
	Save string
}

// Template is a loaded workflow template. It is read once at startup and
// shared across all jobs; per-item values are applied onto deep copies.
type Template struct {
	base Workflow
	ids  NodeIDs
}

// Overrides are the per-item values applied to a workflow copy.
type Overrides struct {
	Prompt         string
	Seed           int64
	Frames         int
	Width          int
	Height         int
	FilenamePrefix string
}

// LoadTemplate reads a workflow template from a JSON file and verifies that
// all override target nodes exist. Verification happens here so a
// misconfigured node ID aborts the run before any job is submitted.
func LoadTemplate(path string, ids NodeIDs) (*Template, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return nil, fmt.Errorf("comfy: read template %s: %w", path, err)
	}

	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateMalformed, err)
	}
	if len(wf) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrTemplateMalformed)
	}

	t := &Template{base: wf, ids: ids}
	for _, nodeID := range []string{ids.Prompt, ids.Sampler, ids.Latent, ids.Save} {
		if _, ok := wf[nodeID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
		}
	}

	return t, nil
}

// SaveNodeID returns the node ID whose output payload carries the artifact.
func (t *Template) SaveNodeID() string {
	return t.ids.Save
}

// Apply produces a deep copy of the template with the per-item overrides
// set. The copy goes through a JSON round trip so the shared base is never
// mutated.
func (t *Template) Apply(o Overrides) (Workflow, error) {
	data, err := json.Marshal(t.base)
	if err != nil {
		return nil, fmt.Errorf("comfy: copy template: %w", err)
	}
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("comfy: copy template: %w", err)
	}

	set := func(nodeID, input string, value interface{}) error {
		node, ok := wf[nodeID]
		if !ok || node.Inputs == nil {
			return fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
		}
		node.Inputs[input] = value
		return nil
	}

	if err := set(t.ids.Prompt, "text", o.Prompt); err != nil {
		return nil, err
	}
	if err := set(t.ids.Sampler, "seed", o.Seed); err != nil {
		return nil, err
	}
	if err := set(t.ids.Latent, "length", o.Frames); err != nil {
		return nil, err
	}
	if err := set(t.ids.Latent, "width", o.Width); err != nil {
		return nil, err
	}
	if err := set(t.ids.Latent, "height", o.Height); err != nil {
		return nil, err
	}
	if err := set(t.ids.Save, "filename_prefix", o.FilenamePrefix); err != nil {
		return nil, err
	}

	return wf, nil
}
