package builtin

import (
	"sentinel-monitor/internal/rules"

	"github.com/sirupsen/logrus"
)

// RegisterFromConfig registers every enabled builtin rule named in configs
// and returns how many were registered.
func RegisterFromConfig(engine *rules.Engine, configs []rules.RuleConfig, logger *logrus.Logger) int {
	registered := 0
	for _, rc := range configs {
		if !rc.Enabled {
			continue
		}

		var rule rules.RuleInterface
		switch rc.Name {
		case "host_critical":
			rule = NewStatusTransitionRule(true, rc.Severity, rc.Bool("notify_recover", true), logger)
		case "high_anomaly_probability":
			rule = NewAnomalyProbabilityRule(true, rc.Severity, rc.Float("probability", 0.8), logger)
		case "syscall_spike":
			rule = NewSyscallSpikeRule(true, rc.Severity, rc.Float("multiplier", 3.0), rc.Int("baseline_samples", 30), logger)
		case "churn_spike":
			rule = NewChurnSpikeRule(true, rc.Severity, rc.Float("multiplier", 3.0), rc.Int("baseline_samples", 30), logger)
		case "telemetry_stalled":
			rule = NewTelemetryStallRule(true, rc.Severity, rc.Int("max_repeats", 60), logger)
		case "suspicious_process":
			rule = NewSuspiciousProcessRule(true, rc.Severity, logger)
		default:
			logger.Warnf("Unknown rule type: %s", rc.Name)
			continue
		}

		engine.RegisterRule(rule)
		registered++
	}
	return registered
}
