// Package comfy provides an HTTP client for a ComfyUI-style render backend:
// workflow submission, history polling, output resolution, and artifact
// download.
package comfy

import "encoding/json"

// Locator identifies a produced artifact on the render backend. The triple
// is sufficient to fetch the artifact bytes through the view endpoint.
type Locator struct {
	// Filename is the artifact file name as reported by the backend.
	Filename string `json:"filename"`
	// Subfolder is the backend-side directory, empty for the output root.
	Subfolder string `json:"subfolder"`
	// Type is the backend storage type, typically "output".
	Type string `json:"type"`
}

// Workflow is a render job specification: a mapping from node ID to node.
// The shape comes from the backend's exported API format.
type Workflow map[string]*Node

// Node is a single workflow node with its class and input values.
type Node struct {
	ClassType string                 `json:"class_type,omitempty"`
	Inputs    map[string]interface{} `json:"inputs"`
	Meta      json.RawMessage        `json:"_meta,omitempty"`
}

// promptRequest is the request body for the submit endpoint.
type promptRequest struct {
	Prompt   Workflow `json:"prompt"`
	ClientID string   `json:"client_id"`
}

// promptResponse is the response from the submit endpoint.
type promptResponse struct {
	PromptID string          `json:"prompt_id"`
	Number   int             `json:"number,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// NodeOutput is the loosely-structured output payload of one node. Key names
// and value shapes vary by backend configuration; see Resolve.
type NodeOutput map[string]json.RawMessage

// RunHistory is the recorded history of one submitted job.
type RunHistory struct {
	// Outputs maps node ID to that node's output payload. Present only
	// once execution reached a terminal state.
	Outputs map[string]NodeOutput `json:"outputs"`
	// Status carries the backend's execution status block.
	Status RunStatus `json:"status"`
}

// RunStatus is the status block inside a history entry.
type RunStatus struct {
	StatusStr string `json:"status_str,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// fileRecord is the structured form of a file descriptor inside a node
// output payload.
type fileRecord struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}
