package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Static errors for client operations.
var (
	// ErrBaseURLRequired is returned when the server URL is not provided.
	ErrBaseURLRequired = errors.New("comfy: server URL is required")
	// ErrNoPromptIDReturned is returned when the submit response contains no job handle.
	ErrNoPromptIDReturned = errors.New("comfy: submit failed: no prompt ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("comfy: submit failed")
	// ErrRequestFailed is returned when a request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("comfy: request failed")
	// ErrEmptyDownload is returned when a download wrote a zero-byte file.
	// The transfer call reporting success is not trusted on its own; a
	// zero-byte write means a silently truncated transfer.
	ErrEmptyDownload = errors.New("comfy: downloaded file is empty")
	// ErrNoFilename is returned when a download is attempted with an empty locator.
	ErrNoFilename = errors.New("comfy: locator has no filename")
)

// Client defines the interface for interacting with the render backend.
type Client interface {
	// Submit queues a workflow for execution and returns the job handle.
	Submit(ctx context.Context, wf Workflow) (promptID string, err error)

	// History fetches the recorded history for a job handle. A nil result
	// with nil error means the backend has no terminal record yet.
	History(ctx context.Context, promptID string) (*RunHistory, error)

	// Download fetches the artifact identified by the locator into destPath.
	Download(ctx context.Context, loc Locator, destPath string) error
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithClientID sets the client ID sent with submissions.
func WithClientID(id string) ClientOption {
	return func(hc *HTTPClient) {
		hc.clientID = id
	}
}

// NewClient creates a new render backend HTTP client.
// A random client ID is generated unless one is provided via WithClientID.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.clientID == "" {
		c.clientID = uuid.NewString()
	}

	return c, nil
}

// Submit queues a workflow for execution and returns the job handle.
func (c *HTTPClient) Submit(ctx context.Context, wf Workflow) (string, error) {
	reqBody := promptRequest{
		Prompt:   wf,
		ClientID: c.clientID,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("comfy: marshal request: %w", err)
	}

	var resp promptResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/prompt", bodyBytes, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	if resp.PromptID == "" {
		if len(resp.Error) > 0 {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, string(resp.Error))
		}
		return "", ErrNoPromptIDReturned
	}

	return resp.PromptID, nil
}

// History fetches the recorded history for a job handle. The backend keys
// the response by prompt ID; a missing key means execution has not reached
// a terminal state yet, reported as a nil history with nil error.
func (c *HTTPClient) History(ctx context.Context, promptID string) (*RunHistory, error) {
	var resp map[string]*RunHistory
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil, &resp); err != nil {
		return nil, err
	}

	return resp[promptID], nil
}

// Download fetches the artifact identified by the locator into destPath.
// Parent directories are created as needed, and the written file is
// verified to be non-empty before success is reported.
func (c *HTTPClient) Download(ctx context.Context, loc Locator, destPath string) error {
	if loc.Filename == "" {
		return ErrNoFilename
	}

	q := url.Values{}
	q.Set("filename", loc.Filename)
	q.Set("subfolder", loc.Subfolder)
	q.Set("type", loc.Type)
	viewURL := c.baseURL + "/view?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, viewURL, nil)
	if err != nil {
		return fmt.Errorf("comfy: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("comfy: download %s: %w", loc.Filename, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return fmt.Errorf("comfy: create destination directory: %w", err)
	}

	f, err := os.Create(destPath) // #nosec G304 - destPath is constructed internally
	if err != nil {
		return fmt.Errorf("comfy: create destination file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(destPath)
		return fmt.Errorf("comfy: write %s: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("comfy: close %s: %w", destPath, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("comfy: verify %s: %w", destPath, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyDownload, destPath)
	}

	return nil
}

// doJSON performs a single JSON request against the backend.
func (c *HTTPClient) doJSON(ctx context.Context, method, reqURL string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("comfy: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("comfy: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("comfy: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("comfy: unmarshal response: %w", err)
		}
	}

	return nil
}
