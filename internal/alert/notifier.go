package alert

import "sentinel-monitor/internal/model"

// Notifier delivers operator notifications to one channel
type Notifier interface {
	SendAlert(n model.Notification) error
	Name() string
}
