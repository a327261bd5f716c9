package alert

import (
	"sentinel-monitor/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends notifications to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

func (ln *LogAlertNotifier) Name() string { return "log" }

// SendAlert implements Notifier
func (ln *LogAlertNotifier) SendAlert(n model.Notification) error {
	entry := ln.logger.WithFields(logrus.Fields{
		"type":     n.Type,
		"severity": n.Severity,
	})
	if n.Stats != nil {
		entry = entry.WithFields(logrus.Fields{
			"status":      n.Stats.Status,
			"probability": n.Stats.Probability,
		})
	}
	entry.Warnf("ALERT [%s] %s: %s", n.Severity, n.Type, n.Message)
	return nil
}
