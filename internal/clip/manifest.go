package clip

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrManifestNotFound is returned when the manifest file does not exist.
var ErrManifestNotFound = errors.New("clip: manifest file not found")

// FormatID renders a content item ID as the zero-padded 4-digit string
// embedded in clip and narration filenames.
func FormatID(id int) string {
	return fmt.Sprintf("%04d", id)
}

// Manifest is the ordered collection of clip job snapshots for one run.
// It is append-only while the render stage runs and replaced wholesale on
// each run; there is no cross-run merge.
type Manifest []Job

// Append adds a job snapshot to the manifest.
func (m Manifest) Append(j Job) Manifest {
	return append(m, j)
}

// SortedByOrder returns a copy sorted by each job's stored order field.
// Append order is not trusted for assembly.
func (m Manifest) SortedByOrder() Manifest {
	out := make(Manifest, len(m))
	copy(out, m)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// Successful returns the jobs whose artifact was downloaded, sorted by
// order.
func (m Manifest) Successful() Manifest {
	var out Manifest
	for _, j := range m.SortedByOrder() {
		if j.Status.Success() && j.LocalPath != "" {
			out = append(out, j)
		}
	}
	return out
}

// WriteFile persists the manifest as indented JSON, replacing any previous
// manifest at that path.
func (m Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("clip: marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("clip: write manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads a manifest previously written by WriteFile.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("clip: read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("clip: decode manifest %s: %w", path, err)
	}
	return m, nil
}
