package pipeline

import (
	"context"
	"sync"
	"time"

	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/rules"
	"sentinel-monitor/internal/telemetry"

	"github.com/sirupsen/logrus"
)

// Processor receives telemetry snapshots, pairs them with the latest process
// tree, evaluates rules, and emits alerts
type Processor struct {
	engine    *rules.Engine
	logger    *logrus.Logger
	mu        sync.RWMutex
	processes []model.ProcessNode
	now       func() time.Time
}

// NewProcessor creates a new processor instance
func NewProcessor(engine *rules.Engine, logger *logrus.Logger) *Processor {
	return &Processor{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateProcesses replaces the process forest used by subsequent evaluations
func (p *Processor) UpdateProcesses(forest []model.ProcessNode) {
	if forest == nil {
		forest = []model.ProcessNode{}
	}
	p.mu.Lock()
	p.processes = forest
	p.mu.Unlock()
}

// Process evaluates rules against one snapshot and returns the emitted notifications
func (p *Processor) Process(ctx context.Context, snap telemetry.Snapshot) []model.Notification {
	if snap.Stats == nil && len(snap.History) == 0 {
		return nil
	}

	p.mu.RLock()
	processes := p.processes
	p.mu.RUnlock()

	obs := rules.Observation{
		Stats:     snap.Stats,
		History:   snap.History,
		Processes: processes,
		At:        p.now(),
	}
	return p.engine.Evaluate(ctx, obs)
}

// Run processes snapshots until ctx is done or the channel is closed
func (p *Processor) Run(ctx context.Context, snapshots <-chan telemetry.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				p.logger.Debug("[Pipeline] Snapshot stream closed")
				return
			}
			if emitted := p.Process(ctx, snap); len(emitted) > 0 {
				p.logger.Debugf("[Pipeline] Cycle %d emitted %d notification(s)", snap.Cycles, len(emitted))
			}
		}
	}
}
