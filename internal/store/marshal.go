package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalJSON encodes v as compact JSON TEXT for storage.
// HTML escaping is disabled so plugin names round-trip readably.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal %T: %w", v, err)
	}
	// json.Encoder appends a newline; remove it for storage.
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// unmarshalJSON decodes a stored JSON TEXT column into v.
func unmarshalJSON(column, data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", column, err)
	}
	return nil
}
