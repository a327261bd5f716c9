package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSentinelConfigDefaults(t *testing.T) {
	t.Setenv(TokenEnv, "")
	config, err := ParseSentinelConfig([]byte("backend:\n  url: http://backend:5000/api/\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://backend:5000/api", config.Backend.URL)
	assert.Equal(t, SourceBackend, config.Backend.Source)
	assert.Equal(t, 100, config.Backend.HistoryLimit)
	assert.Equal(t, time.Second, config.PollInterval())
	assert.Equal(t, 5*time.Second, config.RefreshInterval())
	assert.Equal(t, time.Minute, config.AlertCooldown())
	assert.Equal(t, []string{"1"}, config.ProcessTree.Expanded)
	assert.Len(t, config.Rules, 6)
	assert.True(t, config.IsRuleEnabled("host_critical"))
	assert.Equal(t, "json", config.Logging.Format)
}

func TestParseSentinelConfigTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")
	config, err := ParseSentinelConfig([]byte("backend:\n  token: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.Backend.Token)
}

func TestParseSentinelConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "backend: ["},
		{"unknown source", "backend:\n  source: kafka\n"},
		{"prometheus without url", "backend:\n  source: prometheus\n"},
		{"nats without url", "alerting:\n  channels:\n    nats: true\n"},
		{"unnamed rule", "rules:\n  - enabled: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSentinelConfig([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	t.Setenv(TokenEnv, "")
	config, err := LoadSentinelConfig(filepath.Join("..", "..", "configs", "sentinel.yaml"))
	require.NoError(t, err)

	rule, ok := config.GetRuleConfigByName("syscall_spike")
	require.True(t, ok)
	assert.Equal(t, 3.0, rule.Float("multiplier", 0))
	assert.Equal(t, 30, rule.Int("baseline_samples", 0))
	assert.Equal(t, "8080", config.GetMetricsPort())
	assert.Equal(t, "5001", config.GetAPIPort())
}

func TestLoadSentinelConfigMissingFile(t *testing.T) {
	_, err := LoadSentinelConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGetMetricsPortStripsHost(t *testing.T) {
	config := GetDefaultSentinelConfig()
	config.Metrics.Port = "0.0.0.0:9100"
	assert.Equal(t, "9100", config.GetMetricsPort())
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.WarnLevel, NewLogger("WARN").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("").GetLevel())
}

func TestNewLoggerFromConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.log")
	logger, closer, err := NewLoggerFromConfig(LoggingYAMLConfig{Level: "INFO", Format: "json", FilePath: path})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
