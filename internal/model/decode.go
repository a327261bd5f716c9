package model

import (
	"bytes"
	"encoding/json"
)

// rawString flattens a JSON value into a string: strings are unquoted,
// null becomes "", anything else keeps its literal JSON text.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
