// Package storage manages the on-disk output layout for a run and the
// optional S3 publication of the final compilation.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is the fixed directory tree every run writes into. Paths are
// deterministic so a later assembly invocation can find the render stage's
// artifacts without any shared state beyond the manifest.
type Layout struct {
	root string
}

// NewLayout creates the full output tree under root, which may already
// exist from a previous run.
func NewLayout(root string) (*Layout, error) {
	if root == "" {
		root = "."
	}

	l := &Layout{root: root}
	for _, dir := range []string{
		l.ClipsDir(),
		l.MergedDir(),
		l.NarrationsDir(),
		l.FinalDir(),
		l.LogsDir(),
	} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}

	return l, nil
}

// Root returns the layout's root directory.
func (l *Layout) Root() string {
	return l.root
}

// ClipsDir holds the raw rendered clips downloaded from the backend.
func (l *Layout) ClipsDir() string {
	return filepath.Join(l.root, "video_outputs", "mp4_clips")
}

// MergedDir holds per-clip synchronized video+narration files.
func (l *Layout) MergedDir() string {
	return filepath.Join(l.root, "video_outputs", "merged_clips")
}

// NarrationsDir holds per-clip narration WAV files.
func (l *Layout) NarrationsDir() string {
	return filepath.Join(l.root, "sound_outputs", "individual_narrations")
}

// FinalDir holds the final concatenated compilation.
func (l *Layout) FinalDir() string {
	return filepath.Join(l.root, "final_video_output")
}

// LogsDir holds the run manifest and other run records.
func (l *Layout) LogsDir() string {
	return filepath.Join(l.root, "logs_and_manifests")
}

// ManifestPath is where the run manifest is written and read back.
func (l *Layout) ManifestPath() string {
	return filepath.Join(l.LogsDir(), "run_manifest.json")
}

// NarrationPath returns the narration file path for a padded clip ID.
func (l *Layout) NarrationPath(paddedID string) string {
	return filepath.Join(l.NarrationsDir(), fmt.Sprintf("clip_%s_narration.wav", paddedID))
}

// MergedPath returns the synchronized clip path for a padded clip ID.
func (l *Layout) MergedPath(paddedID string) string {
	return filepath.Join(l.MergedDir(), fmt.Sprintf("merged_%s.mp4", paddedID))
}

// FinalPath is where the final compilation is written.
func (l *Layout) FinalPath() string {
	return filepath.Join(l.FinalDir(), "final_compilation.mp4")
}
