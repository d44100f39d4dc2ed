package comfy

import (
	"encoding/json"
	"net/url"
	"strings"
)

// DefaultStorageType is assumed when a resolved record carries no storage
// type.
const DefaultStorageType = "output"

// extractFunc attempts to pull a Locator out of one candidate value.
// It returns false when the value does not yield a usable filename.
type extractFunc func(raw json.RawMessage) (Locator, bool)

// candidateKeys are tried in priority order. Different save nodes report
// their artifact under different keys; "videos" and "files" carry
// structured records, "uris" may carry either records or encoded URI
// strings, and "gifs"/"images" are legacy media-type keys.
var candidateKeys = []struct {
	key     string
	extract extractFunc
}{
	{"videos", extractRecords},
	{"files", extractRecords},
	{"uris", extractURIs},
	{"gifs", extractRecords},
	{"images", extractRecords},
}

// Resolve finds the artifact locator inside a node output payload.
// Candidate keys are tried in a fixed priority order; the first one that
// yields a record with a non-empty filename wins. A false return means no
// candidate produced a usable locator, an expected outcome when the job
// failed upstream, not an error.
func Resolve(payload NodeOutput) (Locator, bool) {
	for _, c := range candidateKeys {
		raw, ok := payload[c.key]
		if !ok {
			continue
		}
		if loc, ok := c.extract(raw); ok {
			return normalize(loc), true
		}
	}
	return Locator{}, false
}

// extractRecords decodes a list of structured file records and returns the
// first one with a non-empty filename.
func extractRecords(raw json.RawMessage) (Locator, bool) {
	var records []fileRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return Locator{}, false
	}
	for _, r := range records {
		if r.Filename != "" {
			return Locator{Filename: r.Filename, Subfolder: r.Subfolder, Type: r.Type}, true
		}
	}
	return Locator{}, false
}

// extractURIs handles the "uris" key, which some save nodes populate with
// structured records and others with encoded view URIs. URI strings are
// parsed for query-style filename/subfolder/type parameters.
func extractURIs(raw json.RawMessage) (Locator, bool) {
	if loc, ok := extractRecords(raw); ok {
		return loc, true
	}

	var uris []string
	if err := json.Unmarshal(raw, &uris); err != nil {
		return Locator{}, false
	}
	for _, uri := range uris {
		if loc, ok := parseViewURI(uri); ok {
			return loc, true
		}
	}
	return Locator{}, false
}

// parseViewURI recovers a locator from a view-style URI such as
// "/view?filename=clip.mp4&subfolder=&type=output".
func parseViewURI(uri string) (Locator, bool) {
	if !strings.Contains(uri, "filename=") {
		return Locator{}, false
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return Locator{}, false
	}
	q := parsed.Query()
	filename := q.Get("filename")
	if filename == "" {
		return Locator{}, false
	}
	return Locator{
		Filename:  filename,
		Subfolder: q.Get("subfolder"),
		Type:      q.Get("type"),
	}, true
}

// normalize fills defaulted fields on a resolved locator.
func normalize(loc Locator) Locator {
	if loc.Type == "" {
		loc.Type = DefaultStorageType
	}
	return loc
}
