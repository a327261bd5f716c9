package model

import "time"

// Notification is a message for operator channels raised by the console itself
type Notification struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Stats     *Stats    `json:"stats,omitempty"`
}
