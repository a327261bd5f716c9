package utils

import (
	"fmt"

	"sentinel-monitor/internal/alert"
	"sentinel-monitor/internal/client"
	"sentinel-monitor/internal/rules"
	"sentinel-monitor/internal/rules/builtin"
	"sentinel-monitor/internal/telemetry"

	"github.com/sirupsen/logrus"
)

func NewBackendClient(config *SentinelConfig, logger *logrus.Logger) (*client.BackendClient, error) {
	return client.NewBackendClient(config.Backend.URL, logger,
		client.WithTimeout(config.BackendTimeout()),
		client.WithTokenSource(client.StaticToken(config.Backend.Token)),
		client.WithHistoryLimit(config.Backend.HistoryLimit),
	)
}

// NewTelemetrySources picks the stats and history fetchers for the poller
func NewTelemetrySources(config *SentinelConfig, backend *client.BackendClient) (telemetry.StatsFetcher, telemetry.HistoryFetcher, error) {
	if config.Backend.Source != SourcePrometheus {
		return backend, backend, nil
	}

	source, err := client.NewPrometheusSource(config.Prometheus.URL,
		config.PrometheusTimeout(), config.PrometheusWindow(), config.PrometheusStep())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus source: %w", err)
	}
	return source, source, nil
}

func RegisterRulesFromYAML(engine *rules.Engine, config *SentinelConfig, logger *logrus.Logger) int {
	n := builtin.RegisterFromConfig(engine, config.Rules, logger)
	logger.Infof("Registered %d of %d configured rules", n, len(config.Rules))
	return n
}

// RegisterAlertNotifiers registers the operator channels enabled in config.
// The returned cleanup closes connections opened here.
func RegisterAlertNotifiers(engine *rules.Engine, config *SentinelConfig, logger *logrus.Logger) (func(), error) {
	cleanup := func() {}
	if !config.Alerting.Enabled {
		logger.Info("Alerting disabled, no notifiers registered")
		return cleanup, nil
	}

	if config.Alerting.Channels.Log {
		engine.RegisterNotifier(alert.NewLogAlertNotifier(logger))
	}

	if config.Alerting.Channels.Telegram && config.Alerting.Telegram.Enabled {
		tg := config.Alerting.Telegram
		telegramNotifier, err := alert.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.ParseMode, tg.Enabled, tg.MessageTemplate, logger)
		if err != nil {
			return cleanup, fmt.Errorf("failed to create Telegram notifier: %w", err)
		}
		engine.RegisterNotifier(telegramNotifier)
	}

	if config.Alerting.Channels.NATS {
		conn, err := alert.ConnectNATS(config.Alerting.NATS.URL, "sentinel-monitor", logger)
		if err != nil {
			return cleanup, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		engine.RegisterNotifier(alert.NewNATSNotifier(conn, config.Alerting.NATS.Subject, config.Alerting.NATS.HostID, logger))
		cleanup = func() {
			if err := conn.Drain(); err != nil {
				logger.Warnf("NATS drain failed: %v", err)
			}
		}
	}

	return cleanup, nil
}
