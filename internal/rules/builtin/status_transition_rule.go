package builtin

import (
	"context"
	"fmt"
	"sync"

	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/rules"

	"github.com/sirupsen/logrus"
)

// StatusTransitionRule alerts when the host verdict becomes CRITICAL and,
// optionally, when it recovers. UNKNOWN answers do not change the tracked state.
type StatusTransitionRule struct {
	name          string
	enabled       bool
	severity      string
	notifyRecover bool
	last          model.Status
	logger        *logrus.Logger
	mu            sync.Mutex
}

func NewStatusTransitionRule(enabled bool, severity string, notifyRecover bool, logger *logrus.Logger) *StatusTransitionRule {
	return &StatusTransitionRule{
		name:          "host_critical",
		enabled:       enabled,
		severity:      severity,
		notifyRecover: notifyRecover,
		last:          model.StatusUnknown,
		logger:        logger,
	}
}

func (r *StatusTransitionRule) Name() string {
	return r.name
}

func (r *StatusTransitionRule) IsEnabled() bool {
	return r.enabled
}

func (r *StatusTransitionRule) Evaluate(ctx context.Context, obs rules.Observation) *model.Notification {
	if !r.enabled || obs.Stats == nil || obs.Stats.Status == model.StatusUnknown {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.last
	r.last = obs.Stats.Status
	if prev == obs.Stats.Status {
		return nil
	}

	switch {
	case obs.Stats.Status.IsCritical():
		n := &model.Notification{
			Type:     r.name,
			Severity: r.severity,
			Message: fmt.Sprintf("Host integrity changed from %s to CRITICAL (probability %.2f%%, syscalls %.0f/sec, churn %.0f/sec)",
				prev, obs.Stats.Probability*100, obs.Stats.SyscallRate, obs.Stats.ChurnRate),
			Timestamp: obs.At,
			Stats:     obs.Stats,
		}
		r.logger.Warnf("Status Transition Rule Alert: %s", n.Message)
		return n
	case prev.IsCritical() && r.notifyRecover:
		return &model.Notification{
			Type:      "host_recovered",
			Severity:  "INFO",
			Message:   "Host integrity back to SECURE",
			Timestamp: obs.At,
			Stats:     obs.Stats,
		}
	}
	return nil
}
