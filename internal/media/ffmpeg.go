// Package media wraps the external ffmpeg/ffprobe tools behind the small
// set of operations the pipeline needs: duration probing, per-pairing
// synchronization, and final concatenation.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"clipsmith/internal/align"
)

// Static errors for media operations.
var (
	// ErrNoVideoPaths is returned when no video paths are provided for concatenation.
	ErrNoVideoPaths = errors.New("media: no video paths provided")
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
)

// Tool defines the media operations consumed by the pipeline.
type Tool interface {
	// Duration returns the duration in seconds of a media file.
	Duration(ctx context.Context, path string) (float64, error)

	// SyncClip applies the decision's alignment transform to the video
	// stream, muxes it with the narration, and writes the result.
	SyncClip(ctx context.Context, videoPath, audioPath, outputPath string, d align.Decision) error

	// Concat concatenates the given files into a single output via a
	// generated file list, copying streams without re-encoding.
	Concat(ctx context.Context, paths []string, outputPath string) error
}

// FFmpeg implements Tool using the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg tool. Empty paths default to "ffmpeg" and
// "ffprobe" found via PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Compile-time check that FFmpeg implements Tool.
var _ Tool = (*FFmpeg)(nil)

// Duration returns the duration in seconds of a media file using ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("media: ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("media: parse duration: %w", err)
	}

	return duration, nil
}

// SyncClip applies the alignment transform and muxes video with narration.
// The mux uses shortest-stream-wins truncation as a defensive trim: the
// transform should make the tracks equal, but encoder rounding can leave a
// residual mismatch.
func (f *FFmpeg) SyncClip(ctx context.Context, videoPath, audioPath, outputPath string, d align.Decision) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-filter_complex", fmt.Sprintf("[0:v]%s[v]", syncFilter(d)),
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", "libx264", // re-encode because the video track goes through a filter
		"-c:a", "aac",
		"-shortest",
		outputPath,
	}
	return f.runFFmpeg(ctx, args)
}

// syncFilter renders the decision as an ffmpeg video filter.
func syncFilter(d align.Decision) string {
	switch d.Transform {
	case align.TransformStretch:
		return fmt.Sprintf("setpts=%.6f*PTS", d.Factor)
	case align.TransformFreezePad:
		return fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%.3f", d.PadSeconds)
	default:
		return "null"
	}
}

// Concat concatenates the given files into a single output file using the
// concat demuxer with stream copy.
func (f *FFmpeg) Concat(ctx context.Context, paths []string, outputPath string) error {
	if len(paths) == 0 {
		return ErrNoVideoPaths
	}

	listFile, err := f.createConcatList(paths)
	if err != nil {
		return fmt.Errorf("media: create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0", // allow absolute paths
		"-i", listFile,
		"-c", "copy",
		outputPath,
	}
	return f.runFFmpeg(ctx, args)
}

// createConcatList writes a temporary file list in the format required by
// ffmpeg's concat demuxer.
func (f *FFmpeg) createConcatList(paths []string) (string, error) {
	listFile, err := os.CreateTemp("", "ffmpeg-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = listFile.Close() }()

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		// Escape single quotes in path
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(listFile, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return listFile.Name(), nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (f *FFmpeg) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("media: ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr
// output for diagnostics.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("media: ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
