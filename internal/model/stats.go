package model

import (
	"encoding/json"
	"strings"
)

// Status is the host integrity verdict carried by every telemetry record
type Status string

const (
	StatusSecure   Status = "SECURE"
	StatusCritical Status = "CRITICAL"
	// StatusUnknown covers placeholder answers such as "No data yet"
	StatusUnknown Status = "UNKNOWN"
)

// ParseStatus maps an upstream status string onto the closed Status set
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(StatusSecure):
		return StatusSecure
	case string(StatusCritical):
		return StatusCritical
	default:
		return StatusUnknown
	}
}

func (s Status) IsCritical() bool {
	return s == StatusCritical
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = StatusUnknown
		return nil
	}
	*s = ParseStatus(raw)
	return nil
}

// Stats is a single point-in-time telemetry record
type Stats struct {
	Status         Status  `json:"status"`
	Probability    float64 `json:"probability"`
	SyscallRate    float64 `json:"syscall_rate"`
	ChurnRate      float64 `json:"churn_rate"`
	TotalAnomalies int64   `json:"total_anomalies"`
	TotalEvents    int64   `json:"total_events"`
	TodayAnomalies int64   `json:"today_anomalies,omitempty"`
	AIAnalysis     string  `json:"ai_analysis,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

// Sanitize clamps values into their documented ranges
func (s *Stats) Sanitize() {
	if s.Status == "" {
		s.Status = StatusUnknown
	}
	if s.Probability < 0 {
		s.Probability = 0
	}
	if s.Probability > 1 {
		s.Probability = 1
	}
	if s.SyscallRate < 0 {
		s.SyscallRate = 0
	}
	if s.ChurnRate < 0 {
		s.ChurnRate = 0
	}
	if s.TotalAnomalies < 0 {
		s.TotalAnomalies = 0
	}
	if s.TotalEvents < 0 {
		s.TotalEvents = 0
	}
}

// HistoryEntry is one archived telemetry record
type HistoryEntry struct {
	ID int64 `json:"id,omitempty"`
	Stats
}

// Key identifies the entry for review bookkeeping
func (h HistoryEntry) Key() string {
	if h.ID != 0 {
		return formatInt(h.ID)
	}
	return h.Timestamp
}
