package llm

import (
	"bytes"
	"encoding/json"

	"github.com/starford/dastan/internal/schema"
)

// Decode parses the model text and checks it against d. On success the text is
// returned byte-for-byte (surrounding whitespace aside); nothing is defaulted.
func Decode(text string, d schema.Descriptor) (json.RawMessage, error) {
	raw := bytes.TrimSpace([]byte(text))
	if !json.Valid(raw) {
		return nil, &MalformedError{Reason: "model output is not valid JSON"}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &MalformedError{Reason: "model output is not valid JSON", Err: err}
	}
	if err := d.Validate(doc); err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
