package reconcile

import (
	"sentinel-monitor/internal/model"
)

// Entry is an alert record with its payloads reconciled
type Entry struct {
	Key      string       `json:"key"`
	EventID  string       `json:"event_id,omitempty"`
	SentAt   string       `json:"sent_at"`
	Channels []string     `json:"channels"`
	Status   StatusReport `json:"status"`
}

// Filter selects entries in the alert center view
type Filter string

const (
	FilterAll    Filter = "all"
	FilterSent   Filter = "sent"
	FilterFailed Filter = "failed"
)

// ParseFilter defaults unrecognized values to FilterAll
func ParseFilter(s string) Filter {
	switch Filter(s) {
	case FilterSent, FilterFailed:
		return Filter(s)
	default:
		return FilterAll
	}
}

// Summary counts shown above the alert history
type Summary struct {
	Total       int `json:"total"`
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	Unparsable  int `json:"unparsable"`
	EmailAlerts int `json:"email_alerts"`
	SlackAlerts int `json:"slack_alerts"`
}

// History reconciles a batch of alert records, keeping their order
func (r *Reconciler) History(records []model.AlertRecord) []Entry {
	entries := make([]Entry, 0, len(records))
	for i, rec := range records {
		entries = append(entries, Entry{
			Key:      rec.Key(i),
			EventID:  rec.EventID,
			SentAt:   rec.SentAt,
			Channels: Channels(rec.AlertType),
			Status:   r.Reconcile(rec.Status),
		})
	}
	return entries
}

// Apply returns the entries matching f
func (f Filter) Apply(entries []Entry) []Entry {
	if f == FilterAll || f == "" {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		switch f {
		case FilterSent:
			if e.Status.AnySent() {
				out = append(out, e)
			}
		case FilterFailed:
			if e.Status.AnyFailed() {
				out = append(out, e)
			}
		}
	}
	return out
}

func Summarize(entries []Entry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		if e.Status.AnySent() {
			s.Sent++
		}
		if e.Status.AnyFailed() {
			s.Failed++
		}
		if e.Status.Unparsable {
			s.Unparsable++
		}
		if HasChannel(e.Channels, ChannelEmail) {
			s.EmailAlerts++
		}
		if HasChannel(e.Channels, ChannelSlack) {
			s.SlackAlerts++
		}
	}
	return s
}
