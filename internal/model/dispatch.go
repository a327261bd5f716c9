package model

import "encoding/json"

// AlertRequest is the body of POST alerts/send
type AlertRequest struct {
	Event    HistoryEntry `json:"event"`
	Channels []string     `json:"channels"`
}

// DispatchResponse is the body returned by alerts/send. Results holds the
// per-channel status object and is reconciled, not decoded strictly.
type DispatchResponse struct {
	Error   string          `json:"error,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
}
