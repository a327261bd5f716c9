package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/proctree"
	"sentinel-monitor/internal/rules"

	"github.com/sirupsen/logrus"
)

// SuspiciousProcessRule alerts the first time a suspicious process is seen
type SuspiciousProcessRule struct {
	name     string
	enabled  bool
	severity string
	known    map[string]bool // pid/name -> true
	logger   *logrus.Logger
	mu       sync.Mutex
}

func NewSuspiciousProcessRule(enabled bool, severity string, logger *logrus.Logger) *SuspiciousProcessRule {
	return &SuspiciousProcessRule{
		name:     "suspicious_process",
		enabled:  enabled,
		severity: severity,
		known:    make(map[string]bool),
		logger:   logger,
	}
}

func (r *SuspiciousProcessRule) Name() string {
	return r.name
}

func (r *SuspiciousProcessRule) IsEnabled() bool {
	return r.enabled
}

func (r *SuspiciousProcessRule) Evaluate(ctx context.Context, obs rules.Observation) *model.Notification {
	if !r.enabled || obs.Processes == nil {
		return nil
	}

	var fresh []string
	r.mu.Lock()
	proctree.Walk(obs.Processes, func(node *model.ProcessNode, depth int) {
		if !node.Suspicious {
			return
		}
		key := node.PID + "/" + node.Name
		if r.known[key] {
			return
		}
		r.known[key] = true
		fresh = append(fresh, fmt.Sprintf("%s (pid %s, cpu %.1f%%)", node.Name, node.PID, node.CPU))
	})
	r.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	sort.Strings(fresh)

	n := &model.Notification{
		Type:      r.name,
		Severity:  r.severity,
		Message:   fmt.Sprintf("New suspicious process detected: %s", strings.Join(fresh, ", ")),
		Timestamp: obs.At,
	}
	r.logger.Warnf("Suspicious Process Rule Alert: %s", n.Message)
	return n
}
