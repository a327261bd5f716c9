package builtin

import (
	"context"
	"fmt"
	"sync"

	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/rules"

	"github.com/sirupsen/logrus"
)

// RateSpikeRule learns a baseline for one telemetry rate and alerts when the
// current value exceeds threshold times that baseline.
type RateSpikeRule struct {
	name            string
	label           string
	enabled         bool
	severity        string
	threshold       float64
	baselineSamples int
	metric          func(model.Stats) float64
	baseline        float64
	hasBaseline     bool
	samples         []float64
	lastTimestamp   string
	logger          *logrus.Logger
	mu              sync.Mutex
}

func NewSyscallSpikeRule(enabled bool, severity string, threshold float64, baselineSamples int, logger *logrus.Logger) *RateSpikeRule {
	return newRateSpikeRule("syscall_spike", "Syscall rate", enabled, severity, threshold, baselineSamples,
		func(s model.Stats) float64 { return s.SyscallRate }, logger)
}

func NewChurnSpikeRule(enabled bool, severity string, threshold float64, baselineSamples int, logger *logrus.Logger) *RateSpikeRule {
	return newRateSpikeRule("churn_spike", "File churn rate", enabled, severity, threshold, baselineSamples,
		func(s model.Stats) float64 { return s.ChurnRate }, logger)
}

func newRateSpikeRule(name, label string, enabled bool, severity string, threshold float64, baselineSamples int, metric func(model.Stats) float64, logger *logrus.Logger) *RateSpikeRule {
	if threshold <= 0 {
		threshold = 3.0
	}
	if baselineSamples <= 0 {
		baselineSamples = 30
	}
	return &RateSpikeRule{
		name:            name,
		label:           label,
		enabled:         enabled,
		severity:        severity,
		threshold:       threshold,
		baselineSamples: baselineSamples,
		metric:          metric,
		logger:          logger,
	}
}

func (r *RateSpikeRule) Name() string {
	return r.name
}

func (r *RateSpikeRule) IsEnabled() bool {
	return r.enabled
}

// Baseline returns the learned baseline, if collection has finished
func (r *RateSpikeRule) Baseline() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseline, r.hasBaseline
}

func (r *RateSpikeRule) Evaluate(ctx context.Context, obs rules.Observation) *model.Notification {
	if !r.enabled || obs.Stats == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// the poller re-delivers the same record until the backend writes a new one
	if obs.Stats.Timestamp != "" && obs.Stats.Timestamp == r.lastTimestamp {
		return nil
	}
	r.lastTimestamp = obs.Stats.Timestamp

	current := r.metric(*obs.Stats)

	if !r.hasBaseline {
		r.samples = append(r.samples, current)
		if len(r.samples) < r.baselineSamples {
			r.logger.Debugf("[%s] Collecting baseline... %.2f/sec (%d/%d samples)", r.name, current, len(r.samples), r.baselineSamples)
			return nil
		}
		sum := 0.0
		for _, v := range r.samples {
			sum += v
		}
		r.baseline = sum / float64(len(r.samples))
		r.hasBaseline = true
		r.samples = nil
		r.logger.Infof("[%s] Baseline calculated: %.2f/sec (from %d samples)", r.name, r.baseline, r.baselineSamples)
		return nil
	}

	if r.baseline <= 0 {
		if current > 0 {
			r.baseline = current
			r.logger.Infof("[%s] Updating baseline: %.2f/sec", r.name, current)
		}
		return nil
	}

	multiplier := current / r.baseline
	if multiplier <= r.threshold {
		return nil
	}

	n := &model.Notification{
		Type:     r.name,
		Severity: r.severity,
		Message: fmt.Sprintf("%s spike: %.2fx baseline (%.2f/sec vs %.2f/sec baseline)",
			r.label, multiplier, current, r.baseline),
		Timestamp: obs.At,
		Stats:     obs.Stats,
	}
	r.logger.Warnf("Rate Spike Rule Alert: %s", n.Message)
	return n
}
