package model

import (
	"bytes"
	"encoding/json"
)

// Analysis is the classification returned for a reviewed event
type Analysis struct {
	Classification  string   `json:"classification"`
	Severity        string   `json:"severity"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
}

// UnmarshalJSON accepts recommendations as a list or a single string
func (a *Analysis) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	a.Classification = rawString(fields["classification"])
	a.Severity = rawString(fields["severity"])
	a.Explanation = rawString(fields["explanation"])
	a.Recommendations = decodeRecommendations(fields["recommendations"])
	return nil
}

func decodeRecommendations(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '[' {
		if s := rawString(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{string(raw)}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := rawString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AnalysisResponse is the body of POST analyze-threat
type AnalysisResponse struct {
	Analysis *Analysis `json:"analysis"`
	Error    string    `json:"error,omitempty"`
}
