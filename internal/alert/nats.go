package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"sentinel-monitor/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const DefaultNATSSubject = "sentinel.alerts"

// natsPublisher is satisfied by *nats.Conn
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSEvent is the envelope published for every notification
type NATSEvent struct {
	Type      string             `json:"type"`
	Timestamp string             `json:"timestamp"`
	HostID    string             `json:"host_id"`
	Data      model.Notification `json:"data"`
}

// NATSNotifier publishes notifications for downstream consumers
type NATSNotifier struct {
	conn    natsPublisher
	subject string
	hostID  string
	logger  *logrus.Logger
}

// ConnectNATS dials url with reconnects enabled
func ConnectNATS(url, name string, logger *logrus.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

func NewNATSNotifier(conn natsPublisher, subject, hostID string, logger *logrus.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		hostID:  hostID,
		logger:  logger,
	}
}

func (nn *NATSNotifier) Name() string { return "nats" }

func (nn *NATSNotifier) SendAlert(n model.Notification) error {
	event := NATSEvent{
		Type:      n.Type,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
		HostID:    nn.hostID,
		Data:      n,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := nn.conn.Publish(nn.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", nn.subject, err)
	}

	nn.logger.Debugf("Published %s notification to %s", n.Type, nn.subject)
	return nil
}
