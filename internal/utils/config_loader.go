package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"sentinel-monitor/internal/rules"

	"gopkg.in/yaml.v3"
)

const (
	SourceBackend    = "backend"
	SourcePrometheus = "prometheus"

	// TokenEnv overrides backend.token so credentials stay out of the file
	TokenEnv         = "SENTINEL_TOKEN"
	TelegramTokenEnv = "SENTINEL_TELEGRAM_TOKEN"
)

type SentinelConfig struct {
	Backend     BackendYAMLConfig     `yaml:"backend"`
	Poller      PollerYAMLConfig      `yaml:"poller"`
	ProcessTree ProcessTreeYAMLConfig `yaml:"process_tree"`
	Prometheus  PrometheusYAMLConfig  `yaml:"prometheus"`
	Metrics     MetricsYAMLConfig     `yaml:"metrics"`
	API         APIYAMLConfig         `yaml:"api"`
	Rules       []rules.RuleConfig    `yaml:"rules"`
	Alerting    AlertingYAMLConfig    `yaml:"alerting"`
	Logging     LoggingYAMLConfig     `yaml:"logging"`
}

type BackendYAMLConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	HistoryLimit   int    `yaml:"history_limit"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// Source selects where stats and history come from: backend or prometheus
	Source string `yaml:"source"`
}

type PollerYAMLConfig struct {
	IntervalMillis int `yaml:"interval_ms"`
}

type ProcessTreeYAMLConfig struct {
	RefreshSeconds int      `yaml:"refresh_seconds"`
	HostFallback   bool     `yaml:"host_fallback"`
	SuspiciousCPU  float64  `yaml:"suspicious_cpu"`
	Expanded       []string `yaml:"expanded"`
}

type PrometheusYAMLConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	WindowMinutes  int    `yaml:"window_minutes"`
	StepSeconds    int    `yaml:"step_seconds"`
}

type MetricsYAMLConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type APIYAMLConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AlertBuffer    int      `yaml:"alert_buffer"`
}

type AlertingYAMLConfig struct {
	Enabled              bool               `yaml:"enabled"`
	AlertCooldownSeconds int                `yaml:"alert_cooldown_seconds"`
	Channels             AlertChannelsYAML  `yaml:"channels"`
	Telegram             TelegramYAMLConfig `yaml:"telegram"`
	NATS                 NATSYAMLConfig     `yaml:"nats"`
}

type AlertChannelsYAML struct {
	Log      bool `yaml:"log"`
	Telegram bool `yaml:"telegram"`
	NATS     bool `yaml:"nats"`
}

type TelegramYAMLConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	ParseMode       string `yaml:"parse_mode"`
	Enabled         bool   `yaml:"enabled"`
	MessageTemplate string `yaml:"message_template,omitempty"`
}

type NATSYAMLConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	HostID  string `yaml:"host_id"`
}

type LoggingYAMLConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

func LoadSentinelConfig(filename string) (*SentinelConfig, error) {
	if filename == "" {
		filename = "configs/sentinel.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config, err := ParseSentinelConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", filename, err)
	}
	return config, nil
}

// ParseSentinelConfig decodes YAML, applies environment overrides and validates
func ParseSentinelConfig(data []byte) (*SentinelConfig, error) {
	var config SentinelConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *SentinelConfig) applyEnv() {
	if token := os.Getenv(TokenEnv); token != "" {
		c.Backend.Token = token
	}
	if token := os.Getenv(TelegramTokenEnv); token != "" {
		c.Alerting.Telegram.BotToken = token
	}
}

func (c *SentinelConfig) Validate() error {
	if c.Backend.Source == "" {
		c.Backend.Source = SourceBackend
	}
	switch c.Backend.Source {
	case SourceBackend:
	case SourcePrometheus:
		if c.Prometheus.URL == "" {
			return fmt.Errorf("prometheus URL cannot be empty when source is prometheus")
		}
	default:
		return fmt.Errorf("unknown telemetry source %q", c.Backend.Source)
	}

	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:5000/api"
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.HistoryLimit <= 0 {
		c.Backend.HistoryLimit = 100
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 10
	}

	if c.Poller.IntervalMillis <= 0 {
		c.Poller.IntervalMillis = 1000
	}

	if c.ProcessTree.RefreshSeconds <= 0 {
		c.ProcessTree.RefreshSeconds = 5
	}
	if c.ProcessTree.SuspiciousCPU <= 0 {
		c.ProcessTree.SuspiciousCPU = 80
	}
	if len(c.ProcessTree.Expanded) == 0 {
		c.ProcessTree.Expanded = []string{"1"}
	}

	if c.Prometheus.TimeoutSeconds <= 0 {
		c.Prometheus.TimeoutSeconds = 10
	}
	if c.Prometheus.WindowMinutes <= 0 {
		c.Prometheus.WindowMinutes = 10
	}
	if c.Prometheus.StepSeconds <= 0 {
		c.Prometheus.StepSeconds = 5
	}

	if c.Metrics.Port == "" {
		c.Metrics.Port = "8080"
	}
	if c.API.Port == "" {
		c.API.Port = "5001"
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.AlertBuffer <= 0 {
		c.API.AlertBuffer = 1000
	}

	if len(c.Rules) == 0 {
		c.Rules = rules.DefaultRuleConfigs()
	}
	for i := range c.Rules {
		if c.Rules[i].Name == "" {
			return fmt.Errorf("rule %d has no name", i)
		}
		if c.Rules[i].Severity == "" {
			c.Rules[i].Severity = "HIGH"
		}
	}

	if c.Alerting.AlertCooldownSeconds <= 0 {
		c.Alerting.AlertCooldownSeconds = 60
	}
	if c.Alerting.Telegram.ParseMode == "" {
		c.Alerting.Telegram.ParseMode = "HTML"
	}
	if c.Alerting.Channels.NATS && c.Alerting.NATS.URL == "" {
		return fmt.Errorf("nats URL cannot be empty when the nats channel is enabled")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

func (c *SentinelConfig) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalMillis) * time.Millisecond
}

func (c *SentinelConfig) RefreshInterval() time.Duration {
	return time.Duration(c.ProcessTree.RefreshSeconds) * time.Second
}

func (c *SentinelConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *SentinelConfig) AlertCooldown() time.Duration {
	return time.Duration(c.Alerting.AlertCooldownSeconds) * time.Second
}

func (c *SentinelConfig) PrometheusTimeout() time.Duration {
	return time.Duration(c.Prometheus.TimeoutSeconds) * time.Second
}

func (c *SentinelConfig) PrometheusWindow() time.Duration {
	return time.Duration(c.Prometheus.WindowMinutes) * time.Minute
}

func (c *SentinelConfig) PrometheusStep() time.Duration {
	return time.Duration(c.Prometheus.StepSeconds) * time.Second
}

// GetMetricsPort accepts either a bare port or a host:port address
func (c *SentinelConfig) GetMetricsPort() string {
	return lastPort(c.Metrics.Port)
}

func (c *SentinelConfig) GetAPIPort() string {
	return lastPort(c.API.Port)
}

func lastPort(addr string) string {
	if strings.Contains(addr, ":") {
		parts := strings.Split(addr, ":")
		return parts[len(parts)-1]
	}
	return addr
}

func (c *SentinelConfig) GetRuleConfigByName(name string) (*rules.RuleConfig, bool) {
	for i := range c.Rules {
		if c.Rules[i].Name == name {
			return &c.Rules[i], true
		}
	}
	return nil, false
}

func (c *SentinelConfig) IsRuleEnabled(name string) bool {
	rule, exists := c.GetRuleConfigByName(name)
	return exists && rule.Enabled
}

// GetDefaultSentinelConfig returns a default SentinelConfig
func GetDefaultSentinelConfig() *SentinelConfig {
	config := &SentinelConfig{
		Backend: BackendYAMLConfig{
			URL:    "http://localhost:5000/api",
			Source: SourceBackend,
		},
		ProcessTree: ProcessTreeYAMLConfig{
			HostFallback: true,
		},
		Metrics: MetricsYAMLConfig{
			Enabled: true,
		},
		Alerting: AlertingYAMLConfig{
			Enabled: true,
			Channels: AlertChannelsYAML{
				Log: true,
			},
		},
	}
	// defaults never fail validation
	_ = config.Validate()
	return config
}
