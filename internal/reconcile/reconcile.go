// Package reconcile normalizes the serialized per-channel dispatch status
// stored with every alert record into a small closed set of outcomes.
//
// Every function in this package is total: malformed input produces a
// typed fallback value, never an error.
package reconcile

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind is the normalized outcome of one notification channel
type Kind string

const (
	NotConfigured Kind = "NOT_CONFIGURED"
	Sent          Kind = "SENT"
	Failed        Kind = "FAILED"
	Unknown       Kind = "UNKNOWN"
)

const (
	ChannelEmail = "email"
	ChannelSlack = "slack"
)

// ChannelOutcome carries the outcome kind and, for FAILED and UNKNOWN,
// the raw upstream text.
type ChannelOutcome struct {
	Kind Kind   `json:"kind"`
	Raw  string `json:"raw,omitempty"`
}

// Reason is the failure text for FAILED outcomes
func (o ChannelOutcome) Reason() string {
	if o.Kind != Failed {
		return ""
	}
	return o.Raw
}

// StatusReport is the reconciled form of one status payload
type StatusReport struct {
	Email      ChannelOutcome `json:"email"`
	Slack      ChannelOutcome `json:"slack"`
	Unparsable bool           `json:"unparsable"`
	Raw        string         `json:"raw,omitempty"`
}

// Channel returns the outcome for a named channel
func (r StatusReport) Channel(name string) ChannelOutcome {
	switch name {
	case ChannelEmail:
		return r.Email
	case ChannelSlack:
		return r.Slack
	default:
		return ChannelOutcome{Kind: NotConfigured}
	}
}

// AnySent reports whether at least one channel delivered
func (r StatusReport) AnySent() bool {
	return r.Email.Kind == Sent || r.Slack.Kind == Sent
}

// AnyFailed reports whether at least one channel reported an error
func (r StatusReport) AnyFailed() bool {
	return r.Email.Kind == Failed || r.Slack.Kind == Failed
}

func notConfigured() StatusReport {
	return StatusReport{
		Email: ChannelOutcome{Kind: NotConfigured},
		Slack: ChannelOutcome{Kind: NotConfigured},
	}
}

// Reconcile decodes a status payload of shape {"email"?: string, "slack"?: string}.
// Empty input or JSON null means no channel was configured. Input that is not
// a JSON object yields UNKNOWN for the whole record. A missing key or a null
// value counts as NOT_CONFIGURED for that channel.
func Reconcile(raw string) StatusReport {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return notConfigured()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return StatusReport{
			Email:      ChannelOutcome{Kind: Unknown, Raw: raw},
			Slack:      ChannelOutcome{Kind: Unknown, Raw: raw},
			Unparsable: true,
			Raw:        raw,
		}
	}

	return StatusReport{
		Email: channelFromJSON(fields[ChannelEmail]),
		Slack: channelFromJSON(fields[ChannelSlack]),
		Raw:   raw,
	}
}

func channelFromJSON(value json.RawMessage) ChannelOutcome {
	value = bytes.TrimSpace(value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return ChannelOutcome{Kind: NotConfigured}
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return ChannelOutcome{Kind: Unknown, Raw: string(value)}
	}
	return ChannelFromString(s)
}

// ChannelFromString maps one channel status string
func ChannelFromString(s string) ChannelOutcome {
	switch {
	case s == "sent":
		return ChannelOutcome{Kind: Sent}
	case s == "not configured":
		return ChannelOutcome{Kind: NotConfigured}
	case strings.Contains(s, "error"):
		return ChannelOutcome{Kind: Failed, Raw: s}
	default:
		return ChannelOutcome{Kind: Unknown, Raw: s}
	}
}

// Channels decodes the alert_type payload, a JSON array of channel names.
// Anything else yields an empty, non-nil slice.
func Channels(raw string) []string {
	var names []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &names); err != nil || names == nil {
		return []string{}
	}
	return names
}

// HasChannel reports whether name is in channels
func HasChannel(channels []string, name string) bool {
	for _, c := range channels {
		if c == name {
			return true
		}
	}
	return false
}
