package builtin

import (
	"context"
	"fmt"

	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/rules"

	"github.com/sirupsen/logrus"
)

// AnomalyProbabilityRule alerts while the anomaly probability is at or above threshold
type AnomalyProbabilityRule struct {
	name      string
	enabled   bool
	severity  string
	threshold float64
	logger    *logrus.Logger
}

func NewAnomalyProbabilityRule(enabled bool, severity string, threshold float64, logger *logrus.Logger) *AnomalyProbabilityRule {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &AnomalyProbabilityRule{
		name:      "high_anomaly_probability",
		enabled:   enabled,
		severity:  severity,
		threshold: threshold,
		logger:    logger,
	}
}

func (r *AnomalyProbabilityRule) Name() string {
	return r.name
}

func (r *AnomalyProbabilityRule) IsEnabled() bool {
	return r.enabled
}

func (r *AnomalyProbabilityRule) Evaluate(ctx context.Context, obs rules.Observation) *model.Notification {
	if !r.enabled || obs.Stats == nil || obs.Stats.Probability < r.threshold {
		return nil
	}

	n := &model.Notification{
		Type:      r.name,
		Severity:  r.severity,
		Message:   fmt.Sprintf("Anomaly probability %.2f%% is above %.0f%%", obs.Stats.Probability*100, r.threshold*100),
		Timestamp: obs.At,
		Stats:     obs.Stats,
	}
	r.logger.Warnf("Anomaly Probability Rule Alert: %s", n.Message)
	return n
}
