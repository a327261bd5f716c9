package rules

import (
	"context"
	"sync"
	"time"

	"sentinel-monitor/internal/metrics"
	"sentinel-monitor/internal/model"

	"github.com/sirupsen/logrus"
)

// Observation is what rules see on every evaluation. Processes is nil
// until a process tree snapshot has been received.
type Observation struct {
	Stats     *model.Stats
	History   []model.HistoryEntry
	Processes []model.ProcessNode
	At        time.Time
}

type RuleInterface interface {
	Name() string
	IsEnabled() bool
	Evaluate(ctx context.Context, obs Observation) *model.Notification
}

type NotifierInterface interface {
	SendAlert(n model.Notification) error
	Name() string
}

// Engine evaluates rules and fans notifications out to every notifier.
// A notification type already emitted within the cooldown is suppressed.
type Engine struct {
	rules          []RuleInterface
	alertNotifiers []NotifierInterface
	logger         *logrus.Logger
	metrics        *metrics.Metrics
	mu             sync.RWMutex
	alertChannel   chan model.Notification
	cooldown       time.Duration
	lastSent       map[string]time.Time
	now            func() time.Time
}

func NewEngine(logger *logrus.Logger, cooldown time.Duration) *Engine {
	return &Engine{
		rules:          make([]RuleInterface, 0),
		alertNotifiers: make([]NotifierInterface, 0),
		logger:         logger,
		alertChannel:   make(chan model.Notification, 100),
		cooldown:       cooldown,
		lastSent:       make(map[string]time.Time),
		now:            time.Now,
	}
}

func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

func (e *Engine) RegisterRule(rule RuleInterface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	e.logger.Infof("Registered rule: %s", rule.Name())
}

func (e *Engine) RegisterNotifier(notifier NotifierInterface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alertNotifiers = append(e.alertNotifiers, notifier)
	e.logger.Infof("Registered notifier: %s", notifier.Name())
}

// Evaluate runs every enabled rule and returns the notifications that were emitted
func (e *Engine) Evaluate(ctx context.Context, obs Observation) []model.Notification {
	e.mu.RLock()
	rules := make([]RuleInterface, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var emitted []model.Notification

	for _, rule := range rules {
		if !rule.IsEnabled() {
			continue
		}
		if n := rule.Evaluate(ctx, obs); n != nil {
			if n.Timestamp.IsZero() {
				n.Timestamp = obs.At
			}
			if e.EmitAlert(*n) {
				emitted = append(emitted, *n)
			}
		}
	}

	return emitted
}

// EmitAlert delivers n unless its type is cooling down. It reports whether n was delivered.
func (e *Engine) EmitAlert(n model.Notification) bool {
	now := e.now()

	e.mu.Lock()
	if last, ok := e.lastSent[n.Type]; ok && e.cooldown > 0 && now.Sub(last) < e.cooldown {
		e.mu.Unlock()
		e.logger.Debugf("Suppressing %s notification (cooldown %v)", n.Type, e.cooldown)
		return false
	}
	e.lastSent[n.Type] = now
	notifiers := make([]NotifierInterface, len(e.alertNotifiers))
	copy(notifiers, e.alertNotifiers)
	e.mu.Unlock()

	select {
	case e.alertChannel <- n:
	default:
		e.logger.Error("Alert channel is full, dropping alert")
	}

	for _, notifier := range notifiers {
		err := notifier.SendAlert(n)
		e.metrics.ObserveNotification(notifier.Name(), err)
		if err != nil {
			e.logger.Errorf("Failed to send alert via %s: %v", notifier.Name(), err)
		}
	}
	return true
}

func (e *Engine) GetAlertChannel() <-chan model.Notification {
	return e.alertChannel
}
