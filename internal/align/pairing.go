package align

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Filename correlation is a boundary contract: narration and video files
// are matched solely by a zero-padded 4-digit identifier embedded in these
// fixed patterns. Files that do not match are invisible to pairing.
var (
	narrationPattern = regexp.MustCompile(`^clip_(\d{4})_narration\.wav$`)
	videoPattern     = regexp.MustCompile(`^narrativegen_clip_(\d{4})__?\d+.*\.mp4$`)
)

// Pairing is a matched narration/video pair keyed by the shared identifier.
type Pairing struct {
	// ID is the zero-padded 4-digit identifier shared by both files.
	ID string
	// NarrationPath is the narration WAV for this identifier.
	NarrationPath string
	// VideoPath is the silent video clip for this identifier.
	VideoPath string
}

// ScanNarrations indexes a directory's narration files by identifier.
func ScanNarrations(dir string) (map[string]string, error) {
	return scanDir(dir, narrationPattern)
}

// ScanVideos indexes a directory's video clip files by identifier.
func ScanVideos(dir string) (map[string]string, error) {
	return scanDir(dir, videoPattern)
}

// Pair intersects the two indexes. Only identifiers present in both sets
// form a pairing; unmatched identifiers on either side are logged and
// dropped, never treated as an error. Pairings are returned in identifier
// order.
func Pair(narrations, videos map[string]string, logger *slog.Logger) []Pairing {
	if logger == nil {
		logger = slog.Default()
	}

	ids := make([]string, 0, len(narrations))
	for id := range narrations {
		if _, ok := videos[id]; ok {
			ids = append(ids, id)
		} else {
			logger.Info("skipping narration without matching video", slog.String("id", id))
		}
	}
	for id := range videos {
		if _, ok := narrations[id]; !ok {
			logger.Info("skipping video without matching narration", slog.String("id", id))
		}
	}
	sort.Strings(ids)

	pairings := make([]Pairing, 0, len(ids))
	for _, id := range ids {
		pairings = append(pairings, Pairing{
			ID:            id,
			NarrationPath: narrations[id],
			VideoPath:     videos[id],
		})
	}
	return pairings
}

// scanDir indexes matching filenames in dir by their captured identifier.
func scanDir(dir string, pattern *regexp.Regexp) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("align: read directory %s: %w", dir, err)
	}

	index := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		index[m[1]] = filepath.Join(dir, entry.Name())
	}
	return index, nil
}
