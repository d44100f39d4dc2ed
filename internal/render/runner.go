// Package render drives one clip job against the render backend: submit,
// poll until terminal, and resolve the output locator. The backend is a
// fire-and-forget job queue with no completion callback, so a bounded
// fixed-interval poll loop gives a deterministic worst-case wall-clock
// bound while tolerating multi-minute render latency.
package render

import (
	"context"
	"log/slog"
	"time"

	"clipsmith/internal/comfy"
)

// Status is the terminal outcome of one render job.
type Status string

const (
	// StatusSuccess indicates the job produced a resolvable artifact.
	StatusSuccess Status = "SUCCESS"
	// StatusNoOutput indicates the job reached a terminal history but no
	// usable locator could be resolved from its output payload.
	StatusNoOutput Status = "NO_OUTPUT"
	// StatusTimeout indicates the poll loop hit its iteration cap.
	StatusTimeout Status = "TIMEOUT"
	// StatusQueueFailed indicates submission returned no valid job handle.
	StatusQueueFailed Status = "QUEUE_FAILED"
)

// Outcome is the result of running one job to completion.
type Outcome struct {
	// Status is the terminal state reached.
	Status Status
	// PromptID is the backend job handle, when submission succeeded.
	PromptID string
	// Locator identifies the artifact, set only on StatusSuccess.
	Locator comfy.Locator
	// Err carries the underlying failure for diagnostics; it never aborts
	// the run on its own.
	Err error
}

// Sleeper abstracts the blocking wait between poll iterations so tests can
// simulate elapsed time without real delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(d time.Duration)

// Sleep calls the wrapped function.
func (f SleeperFunc) Sleep(d time.Duration) { f(d) }

// RealSleeper blocks the calling goroutine with time.Sleep.
func RealSleeper() Sleeper {
	return SleeperFunc(time.Sleep)
}

// Runner executes render jobs one at a time. Submission is serialized by
// the pipeline; the runner never polls two jobs concurrently.
type Runner struct {
	client       comfy.Client
	saveNodeID   string
	pollInterval time.Duration
	maxAttempts  int
	sleeper      Sleeper
	logger       *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSleeper sets the sleep dependency used between poll iterations.
func WithSleeper(s Sleeper) RunnerOption {
	return func(r *Runner) {
		r.sleeper = s
	}
}

// WithPollInterval sets the fixed interval between poll iterations.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.pollInterval = d
	}
}

// WithMaxAttempts sets the poll iteration cap.
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) {
		r.maxAttempts = n
	}
}

// WithLogger sets the logger used for per-iteration progress.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner polling for output on the given save node.
func NewRunner(client comfy.Client, saveNodeID string, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:       client,
		saveNodeID:   saveNodeID,
		pollInterval: 10 * time.Second,
		maxAttempts:  360,
		sleeper:      RealSleeper(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run submits one workflow and polls its history until a terminal outcome.
// Every outcome is returned as a value; failures here are per-job, never
// fatal for the run.
func (r *Runner) Run(ctx context.Context, wf comfy.Workflow) Outcome {
	promptID, err := r.client.Submit(ctx, wf)
	if err != nil {
		return Outcome{Status: StatusQueueFailed, Err: err}
	}

	r.logger.Info("render job queued",
		slog.String("prompt_id", promptID),
		slog.Duration("poll_interval", r.pollInterval),
		slog.Int("max_attempts", r.maxAttempts),
	)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		r.sleeper.Sleep(r.pollInterval)

		history, err := r.client.History(ctx, promptID)
		if err != nil {
			// Transient history failures count against the cap like any
			// other non-terminal iteration.
			r.logger.Warn("history query failed",
				slog.String("prompt_id", promptID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		if history == nil || len(history.Outputs) == 0 {
			if attempt%6 == 0 {
				r.logger.Info("render job still running",
					slog.String("prompt_id", promptID),
					slog.Int("attempt", attempt),
					slog.Int("max_attempts", r.maxAttempts),
				)
			}
			continue
		}

		// Terminal history reached: resolve the save node's payload.
		payload, ok := history.Outputs[r.saveNodeID]
		if !ok {
			r.logger.Warn("save node absent from terminal history",
				slog.String("prompt_id", promptID),
				slog.String("save_node", r.saveNodeID),
			)
			return Outcome{Status: StatusNoOutput, PromptID: promptID}
		}

		loc, ok := comfy.Resolve(payload)
		if !ok {
			r.logger.Warn("no usable artifact in save node output",
				slog.String("prompt_id", promptID),
				slog.String("save_node", r.saveNodeID),
			)
			return Outcome{Status: StatusNoOutput, PromptID: promptID}
		}

		return Outcome{Status: StatusSuccess, PromptID: promptID, Locator: loc}
	}

	return Outcome{Status: StatusTimeout, PromptID: promptID}
}
