// Package speech consumes an external text-to-speech service: input text
// (optionally with a reference voice for cloning) in, raw waveform out.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Static errors for speech operations.
var (
	// ErrServerURLRequired is returned when the synthesis server URL is not provided.
	ErrServerURLRequired = errors.New("speech: server URL is required")
	// ErrSynthesisFailed is returned when the backend reports a failure.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")
	// ErrEmptyWaveform is returned when the backend returns no audio data.
	ErrEmptyWaveform = errors.New("speech: empty waveform returned")
)

// Synthesizer defines the interface for narration synthesis.
type Synthesizer interface {
	// Synthesize converts text to a WAV waveform.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Options configure how narration is synthesized.
type Options struct {
	// ReferenceVoicePath is a server-side WAV used for voice cloning.
	// Empty means the backend's default voice.
	ReferenceVoicePath string
	// ReferenceTranscript is the transcript of the reference voice clip,
	// prepended so the model conditions on the cloned speaker.
	ReferenceTranscript string
	// TailPadMs is trailing digital silence appended by the backend to
	// stop end-of-speech cutoff.
	TailPadMs int
}

// HTTPSynthesizer is the HTTP implementation of Synthesizer, talking to a
// TTS sidecar service.
type HTTPSynthesizer struct {
	baseURL    string
	httpClient *http.Client
	opts       Options
}

// ClientOption is a function that configures an HTTPSynthesizer.
type ClientOption func(*HTTPSynthesizer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(s *HTTPSynthesizer) {
		s.httpClient = c
	}
}

// WithOptions sets the synthesis options sent with every request.
func WithOptions(opts Options) ClientOption {
	return func(s *HTTPSynthesizer) {
		s.opts = opts
	}
}

// NewHTTPSynthesizer creates a new synthesizer client.
func NewHTTPSynthesizer(baseURL string, opts ...ClientOption) (*HTTPSynthesizer, error) {
	if baseURL == "" {
		return nil, ErrServerURLRequired
	}

	s := &HTTPSynthesizer{
		baseURL: baseURL,
		// Synthesis of a long commentary line can take minutes on CPU.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// synthesizeRequest is the request body for the synthesis endpoint.
type synthesizeRequest struct {
	Text                string `json:"text"`
	ReferenceVoicePath  string `json:"reference_voice_path,omitempty"`
	ReferenceTranscript string `json:"reference_transcript,omitempty"`
	TailPadMs           int    `json:"tail_pad_ms,omitempty"`
}

// Synthesize converts text to a WAV waveform via the sidecar service.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := synthesizeRequest{
		Text:                text,
		ReferenceVoicePath:  s.opts.ReferenceVoicePath,
		ReferenceTranscript: s.opts.ReferenceTranscript,
		TailPadMs:           s.opts.TailPadMs,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("speech: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("speech: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSynthesisFailed, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: read waveform: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyWaveform
	}

	return data, nil
}

// Compile-time check that HTTPSynthesizer implements Synthesizer.
var _ Synthesizer = (*HTTPSynthesizer)(nil)

// SaveWAV persists a waveform to disk, creating parent directories as
// needed and rejecting empty writes.
func SaveWAV(path string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyWaveform
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("speech: create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("speech: write %s: %w", path, err)
	}
	return nil
}
