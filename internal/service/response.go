package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when the model output is not a JSON
// object carrying every expected key.
var ErrMalformedResponse = errors.New("malformed AI response")

// parseModelJSON cleans the model text, checks it is a JSON object with all
// required keys set to non-null values, and returns it compacted.
func parseModelJSON(text string, required ...string) (json.RawMessage, error) {
	cleaned := stripCodeFence(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrMalformedResponse)
	}

	var missing []string
	for _, key := range required {
		v, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(cleaned)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return buf.Bytes(), nil
}

// stripCodeFence removes the markdown fence models sometimes wrap JSON in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
