package builtin

import (
	"context"
	"fmt"
	"sync"

	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/rules"

	"github.com/sirupsen/logrus"
)

// TelemetryStallRule alerts when the backend keeps answering with the same
// record, meaning the collector behind it has stopped writing events.
type TelemetryStallRule struct {
	name          string
	enabled       bool
	severity      string
	maxRepeats    int
	lastTimestamp string
	repeats       int
	alerted       bool
	logger        *logrus.Logger
	mu            sync.Mutex
}

func NewTelemetryStallRule(enabled bool, severity string, maxRepeats int, logger *logrus.Logger) *TelemetryStallRule {
	if maxRepeats <= 0 {
		maxRepeats = 60
	}
	return &TelemetryStallRule{
		name:       "telemetry_stalled",
		enabled:    enabled,
		severity:   severity,
		maxRepeats: maxRepeats,
		logger:     logger,
	}
}

func (r *TelemetryStallRule) Name() string {
	return r.name
}

func (r *TelemetryStallRule) IsEnabled() bool {
	return r.enabled
}

func (r *TelemetryStallRule) Evaluate(ctx context.Context, obs rules.Observation) *model.Notification {
	if !r.enabled || obs.Stats == nil || obs.Stats.Timestamp == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if obs.Stats.Timestamp != r.lastTimestamp {
		if r.alerted {
			r.logger.Infof("[Telemetry Stall] Collector resumed at %s", obs.Stats.Timestamp)
		}
		r.lastTimestamp = obs.Stats.Timestamp
		r.repeats = 0
		r.alerted = false
		return nil
	}

	r.repeats++
	if r.repeats < r.maxRepeats || r.alerted {
		return nil
	}
	r.alerted = true

	n := &model.Notification{
		Type:     r.name,
		Severity: r.severity,
		Message: fmt.Sprintf("No new telemetry since %s (%d polls). The collector may be down!",
			r.lastTimestamp, r.repeats),
		Timestamp: obs.At,
		Stats:     obs.Stats,
	}
	r.logger.Warnf("Telemetry Stall Rule Alert: %s", n.Message)
	return n
}
