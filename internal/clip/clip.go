// Package clip provides the per-item job record and the run manifest.
// One clip job exists per content item; the manifest is the ordered
// collection of job snapshots persisted after the render stage.
package clip

import (
	"clipsmith/internal/comfy"
)

// Status represents the terminal outcome of a clip job.
type Status string

const (
	// StatusDownloaded indicates the rendered artifact was fetched locally.
	// This is the only success state; LocalPath is set iff a job carries it.
	StatusDownloaded Status = "SUCCESS_DOWNLOADED"
	// StatusSkippedNoPrompt indicates the content item had no render prompt.
	StatusSkippedNoPrompt Status = "SKIPPED_NO_PROMPT"
	// StatusQueueFailed indicates submission returned no valid job handle.
	StatusQueueFailed Status = "QUEUE_FAILED"
	// StatusTimeout indicates the poll loop hit its iteration cap.
	StatusTimeout Status = "TIMEOUT"
	// StatusNoOutput indicates the job finished but no usable artifact
	// locator could be resolved from its history.
	StatusNoOutput Status = "NO_OUTPUT"
	// StatusDownloadFailed indicates the artifact transfer failed or wrote
	// zero bytes.
	StatusDownloadFailed Status = "DOWNLOAD_FAILED"
)

// Success returns true if the status is the downloaded-success state.
func (s Status) Success() bool {
	return s == StatusDownloaded
}

// Job is the manifest record for one content item. It is created when
// submission begins and mutated only by the render stage; the final
// assembly stage reads it back from the persisted manifest.
type Job struct {
	// ID is the content item identifier, shared with narration filenames.
	ID int `json:"id"`
	// Order is the original sequence position. Final assembly ordering is
	// derived from this field, never from manifest append order.
	Order int `json:"order"`
	// Status is the terminal outcome for this clip.
	Status Status `json:"status"`
	// Locator identifies the artifact on the backend, when resolved.
	Locator *comfy.Locator `json:"output_locator,omitempty"`
	// LocalPath is where the artifact was written. Set iff Status is
	// StatusDownloaded.
	LocalPath string `json:"local_path,omitempty"`
}

// PaddedID returns the zero-padded 4-digit identifier used for filename
// correlation with narration clips.
func (j Job) PaddedID() string {
	return FormatID(j.ID)
}
