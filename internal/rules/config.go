package rules

// RuleConfig configures one builtin rule
type RuleConfig struct {
	Name       string                 `yaml:"name" json:"name"`
	Enabled    bool                   `yaml:"enabled" json:"enabled"`
	Severity   string                 `yaml:"severity" json:"severity"`
	Thresholds map[string]interface{} `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
}

// Float reads a numeric threshold; YAML decodes whole numbers as int
func (c RuleConfig) Float(key string, fallback float64) float64 {
	switch v := c.Thresholds[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func (c RuleConfig) Int(key string, fallback int) int {
	switch v := c.Thresholds[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func (c RuleConfig) Bool(key string, fallback bool) bool {
	if v, ok := c.Thresholds[key].(bool); ok {
		return v
	}
	return fallback
}

// DefaultRuleConfigs is used when the config file lists no rules
func DefaultRuleConfigs() []RuleConfig {
	return []RuleConfig{
		{Name: "host_critical", Enabled: true, Severity: "CRITICAL", Thresholds: map[string]interface{}{"notify_recover": true}},
		{Name: "high_anomaly_probability", Enabled: true, Severity: "HIGH", Thresholds: map[string]interface{}{"probability": 0.8}},
		{Name: "syscall_spike", Enabled: true, Severity: "HIGH", Thresholds: map[string]interface{}{"multiplier": 3.0, "baseline_samples": 30}},
		{Name: "churn_spike", Enabled: true, Severity: "HIGH", Thresholds: map[string]interface{}{"multiplier": 3.0, "baseline_samples": 30}},
		{Name: "telemetry_stalled", Enabled: true, Severity: "MEDIUM", Thresholds: map[string]interface{}{"max_repeats": 60}},
		{Name: "suspicious_process", Enabled: true, Severity: "HIGH"},
	}
}
