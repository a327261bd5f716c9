package proctree

import (
	"context"
	"sync"
	"time"

	"sentinel-monitor/internal/model"

	"github.com/sirupsen/logrus"
)

// DefaultRefreshInterval matches the process view refresh cadence
const DefaultRefreshInterval = 5 * time.Second

// Source produces a process forest snapshot
type Source interface {
	ProcessTree(ctx context.Context) ([]model.ProcessNode, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) ([]model.ProcessNode, error)

func (f SourceFunc) ProcessTree(ctx context.Context) ([]model.ProcessNode, error) {
	return f(ctx)
}

// Refresher periodically loads snapshots from a Source into a Model.
// When the source fails the fallback, if any, is loaded instead;
// otherwise the model keeps its last forest.
type Refresher struct {
	model     *Model
	source    Source
	fallback  Source
	interval  time.Duration
	logger    *logrus.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	onRefresh func(Aggregates)
}

func NewRefresher(m *Model, source Source, interval time.Duration, logger *logrus.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		model:    m,
		source:   source,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// SetFallback installs the placeholder source used when the primary fails
func (r *Refresher) SetFallback(fallback Source) {
	r.fallback = fallback
}

// SetRefreshHook registers a callback invoked with fresh aggregates after each load
func (r *Refresher) SetRefreshHook(hook func(Aggregates)) {
	r.onRefresh = hook
}

// Refresh performs one fetch-and-load cycle
func (r *Refresher) Refresh(ctx context.Context) error {
	forest, err := r.source.ProcessTree(ctx)
	if err != nil {
		r.logger.Warnf("[Process Tree] Fetch failed: %v", err)
		if r.fallback == nil {
			return err
		}
		forest, err = r.fallback.ProcessTree(ctx)
		if err != nil {
			r.logger.Errorf("[Process Tree] Fallback source failed: %v", err)
			return err
		}
		r.logger.Debug("[Process Tree] Loaded fallback forest")
	}

	r.model.Load(forest)
	agg := r.model.Aggregates()
	r.logger.Debugf("[Process Tree] Loaded %d processes (%d suspicious, depth %d)", agg.Count, agg.SuspiciousCount, agg.MaxDepth)
	if r.onRefresh != nil {
		r.onRefresh(agg)
	}
	return nil
}

// Start refreshes immediately and then on every interval until ctx is done or Stop is called
func (r *Refresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Infof("[Process Tree] Starting refresh loop (interval: %v)", r.interval)
	_ = r.Refresh(ctx)

	for {
		select {
		case <-ticker.C:
			_ = r.Refresh(ctx)
		case <-ctx.Done():
			r.logger.Info("[Process Tree] Stopping refresh loop")
			return
		case <-r.stopChan:
			r.logger.Info("[Process Tree] Refresher stopped")
			return
		}
	}
}

func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}
