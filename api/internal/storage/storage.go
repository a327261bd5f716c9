package storage

import (
	"strings"
	"sync"
	"time"

	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/rules"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultMaxAlerts = 1000

// Storage keeps the notifications raised while the console runs and
// streams them to websocket subscribers. It is registered on the rules
// engine as a notifier.
type Storage struct {
	mu          sync.RWMutex
	alerts      []Alert
	rules       []Rule
	maxAlerts   int
	logger      *logrus.Logger
	alertSubs   map[*AlertSubscriber]bool
	alertSubsMu sync.RWMutex
}

type Alert struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Severity  string       `json:"severity"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
	Stats     *model.Stats `json:"stats,omitempty"`
}

type Rule struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Enabled    bool                   `json:"enabled"`
	Severity   string                 `json:"severity"`
	Thresholds map[string]interface{} `json:"thresholds,omitempty"`
}

type AlertSubscriber struct {
	ID       string
	Channel  chan Alert
	Filter   AlertFilter
	LastSeen time.Time
}

type AlertFilter struct {
	Severity string
	Type     string
}

func (f AlertFilter) match(alert Alert) bool {
	if f.Severity != "" && !strings.EqualFold(alert.Severity, f.Severity) {
		return false
	}
	if f.Type != "" && alert.Type != f.Type {
		return false
	}
	return true
}

func NewStorage(maxAlerts int, logger *logrus.Logger) *Storage {
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	return &Storage{
		alerts:    make([]Alert, 0),
		rules:     make([]Rule, 0),
		maxAlerts: maxAlerts,
		logger:    logger,
		alertSubs: make(map[*AlertSubscriber]bool),
	}
}

func (s *Storage) Name() string { return "console" }

// SendAlert stores n. It never fails.
func (s *Storage) SendAlert(n model.Notification) error {
	s.AddAlert(Alert{
		Type:      n.Type,
		Severity:  n.Severity,
		Message:   n.Message,
		Timestamp: n.Timestamp,
		Stats:     n.Stats,
	})
	return nil
}

// Alert methods
func (s *Storage) AddAlert(alert Alert) Alert {
	s.mu.Lock()
	alert.ID = uuid.NewString()
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	s.alerts = append(s.alerts, alert)

	// Keep only last maxAlerts
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	s.mu.Unlock()

	s.notifySubscribers(alert)
	return alert
}

// GetAlerts returns the newest alerts first
func (s *Storage) GetAlerts(limit int, filter AlertFilter, search string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Alert, 0)
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		alert := s.alerts[i]
		if !filter.match(alert) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(alert.Message), strings.ToLower(search)) {
			continue
		}
		result = append(result, alert)
	}

	return result
}

func (s *Storage) GetAlertByID(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			return s.alerts[i], true
		}
	}
	return Alert{}, false
}

// GetAlertsTimeline returns alerts within [start, end], oldest first. Zero bounds are open.
func (s *Storage) GetAlertsTimeline(start, end time.Time) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Alert, 0)
	for i := range s.alerts {
		alert := s.alerts[i]
		if (start.IsZero() || !alert.Timestamp.Before(start)) &&
			(end.IsZero() || !alert.Timestamp.After(end)) {
			result = append(result, alert)
		}
	}
	return result
}

// Rule methods
func (s *Storage) SetRules(configs []rules.RuleConfig) {
	list := make([]Rule, 0, len(configs))
	for _, rc := range configs {
		list = append(list, Rule{
			ID:         rc.Name,
			Name:       rc.Name,
			Enabled:    rc.Enabled,
			Severity:   rc.Severity,
			Thresholds: rc.Thresholds,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = list
}

func (s *Storage) GetRules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Rule, len(s.rules))
	copy(result, s.rules)
	return result
}

func (s *Storage) GetRuleByID(id string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.rules {
		if s.rules[i].ID == id {
			return s.rules[i], true
		}
	}
	return Rule{}, false
}

func (s *Storage) GetRulesStats() RulesStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RulesStats{Total: len(s.rules)}
	for i := range s.rules {
		if s.rules[i].Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
	}
	return stats
}

type RulesStats struct {
	Total    int `json:"total"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
}

// Subscriber methods
func (s *Storage) SubscribeAlerts(filter AlertFilter) *AlertSubscriber {
	sub := &AlertSubscriber{
		ID:       uuid.NewString(),
		Channel:  make(chan Alert, 100),
		Filter:   filter,
		LastSeen: time.Now(),
	}

	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	s.alertSubs[sub] = true
	return sub
}

func (s *Storage) UnsubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	if _, ok := s.alertSubs[sub]; !ok {
		return
	}
	delete(s.alertSubs, sub)
	close(sub.Channel)
}

func (s *Storage) notifySubscribers(alert Alert) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()

	for sub := range s.alertSubs {
		if !sub.Filter.match(alert) {
			continue
		}

		select {
		case sub.Channel <- alert:
			sub.LastSeen = time.Now()
		default:
			s.logger.Debugf("Alert subscriber %s is full, dropping alert", sub.ID)
		}
	}
}
