package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical returns the JSON encoding of v without HTML escaping or a
// trailing newline. Map keys are sorted and struct fields keep declaration
// order, so equal values always encode to equal bytes.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encoding failed: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
