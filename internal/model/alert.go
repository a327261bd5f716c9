package model

import (
	"encoding/json"
	"strconv"
)

// AlertRecord is one row of the backend alert-dispatch history.
// Status and AlertType hold serialized JSON and are decoded by the reconciler.
type AlertRecord struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id,omitempty"`
	AlertType string `json:"alert_type"`
	Recipient string `json:"recipient,omitempty"`
	SentAt    string `json:"sent_at"`
	Status    string `json:"status"`
}

func (r *AlertRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.ID = rawString(fields["id"])
	r.EventID = rawString(fields["event_id"])
	r.AlertType = rawString(fields["alert_type"])
	r.Recipient = rawString(fields["recipient"])
	r.SentAt = rawString(fields["sent_at"])
	r.Status = rawString(fields["status"])
	return nil
}

// Key returns the record id, or its position when the id is missing
func (r AlertRecord) Key(index int) string {
	if r.ID != "" {
		return r.ID
	}
	return strconv.Itoa(index)
}
