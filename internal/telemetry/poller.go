package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sentinel-monitor/internal/metrics"
	"sentinel-monitor/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = time.Second

	ResourceStats   = "stats"
	ResourceHistory = "history"
)

var ErrAlreadyRunning = errors.New("poller already running")

type StatsFetcher interface {
	Stats(ctx context.Context) (model.Stats, error)
}

type HistoryFetcher interface {
	History(ctx context.Context) ([]model.HistoryEntry, error)
}

type StatsFunc func(ctx context.Context) (model.Stats, error)

func (f StatsFunc) Stats(ctx context.Context) (model.Stats, error) { return f(ctx) }

type HistoryFunc func(ctx context.Context) ([]model.HistoryEntry, error)

func (f HistoryFunc) History(ctx context.Context) ([]model.HistoryEntry, error) { return f(ctx) }

// FetchError reports a failed resource fetch. Polling continues after it.
type FetchError struct {
	Resource string
	Err      error
	At       time.Time
}

func (e FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e FetchError) Unwrap() error {
	return e.Err
}

// Snapshot is the poller's exposed state. Stats is nil until the first
// successful stats fetch; History is oldest-first.
type Snapshot struct {
	Stats          *model.Stats         `json:"stats"`
	History        []model.HistoryEntry `json:"history"`
	StatsUpdated   time.Time            `json:"stats_updated"`
	HistoryUpdated time.Time            `json:"history_updated"`
	Cycles         uint64               `json:"cycles"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Stats != nil {
		st := *s.Stats
		out.Stats = &st
	}
	out.History = make([]model.HistoryEntry, len(s.History))
	copy(out.History, s.History)
	return out
}

type Option func(*Poller)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// Poller fetches stats and history on a fixed cadence.
//
// At most one cycle is in flight; ticks that fire meanwhile are skipped.
// Each run is tagged with an epoch. Stop, or the end of the context given to
// Start, advances the epoch, so a cycle that resolves afterwards has no effect
// on the exposed state.
type Poller struct {
	interval time.Duration
	stats    StatsFetcher
	history  HistoryFetcher
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	snapshot Snapshot
	epoch    uint64
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	onError  func(FetchError)

	skipped atomic.Uint64

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}
}

func NewPoller(interval time.Duration, stats StatsFetcher, history HistoryFetcher, logger *logrus.Logger, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		interval:    interval,
		stats:       stats,
		history:     history,
		logger:      logger,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetErrorHandler registers the side channel for fetch failures.
// The handler must not call Stop.
func (p *Poller) SetErrorHandler(handler func(FetchError)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = handler
}

// Start runs one cycle immediately and then one per interval until Stop or ctx is done.
// It returns without waiting for the first cycle.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Infof("[Telemetry] Starting poller (interval: %v)", p.interval)
	go p.loop(loopCtx, p.epoch, p.done)
	return nil
}

// Stop discards any in-flight cycle and waits for the loop to exit.
// It does not wait for fetches already issued; their results are dropped.
// No fetch is started after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.epoch++
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("[Telemetry] Poller stopped")
}

func (p *Poller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Latest returns a copy of the current snapshot
func (p *Poller) Latest() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.clone()
}

// Skipped returns the number of ticks skipped while a cycle was in flight
func (p *Poller) Skipped() uint64 {
	return p.skipped.Load()
}

// Subscribe returns a channel receiving every applied snapshot and a
// function that cancels the subscription. Slow subscribers miss snapshots.
func (p *Poller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)

	p.subMu.Lock()
	p.subscribers[ch] = struct{}{}
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subscribers, ch)
			p.subMu.Unlock()
			close(ch)
		})
	}
}

func (p *Poller) loop(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// one flag per run, so a cycle abandoned by Stop cannot block a restart
	var inFlight atomic.Bool

	p.tick(ctx, epoch, &inFlight)
	for {
		select {
		case <-ctx.Done():
			p.release(done)
			return
		case <-ticker.C:
			p.tick(ctx, epoch, &inFlight)
		}
	}
}

// release marks the run owning done as stopped when its context ended
// without a call to Stop.
func (p *Poller) release(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.done != done {
		return
	}
	p.epoch++
	p.running = false
	p.cancel()
	p.logger.Info("[Telemetry] Poller context done, stopping")
}

func (p *Poller) tick(ctx context.Context, epoch uint64, inFlight *atomic.Bool) {
	if ctx.Err() != nil {
		return
	}
	if !inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.metrics.ObserveSkip()
		p.logger.Debug("[Telemetry] Previous cycle still in flight, skipping tick")
		return
	}

	go func() {
		defer inFlight.Store(false)
		p.runCycle(ctx, epoch)
	}()
}

type cycleResult struct {
	stats      model.Stats
	statsErr   error
	history    []model.HistoryEntry
	historyErr error
}

func (p *Poller) runCycle(ctx context.Context, epoch uint64) {
	if ctx.Err() != nil {
		return
	}
	var res cycleResult
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		res.stats, res.statsErr = p.stats.Stats(ctx)
		p.metrics.ObserveFetch(ResourceStats, time.Since(start).Seconds(), res.statsErr != nil)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		res.history, res.historyErr = p.history.History(ctx)
		p.metrics.ObserveFetch(ResourceHistory, time.Since(start).Seconds(), res.historyErr != nil)
	}()
	wg.Wait()

	p.apply(epoch, res)
}

func (p *Poller) apply(epoch uint64, res cycleResult) {
	now := time.Now()

	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		p.metrics.ObserveCycle("discarded")
		p.logger.Debug("[Telemetry] Discarding result of a stopped cycle")
		return
	}

	if res.statsErr == nil {
		stats := res.stats
		stats.Sanitize()
		if prev := p.snapshot.Stats; prev != nil {
			if stats.TotalAnomalies < prev.TotalAnomalies || stats.TotalEvents < prev.TotalEvents {
				p.logger.Warnf("[Telemetry] Counters went backwards (anomalies %d -> %d, events %d -> %d)",
					prev.TotalAnomalies, stats.TotalAnomalies, prev.TotalEvents, stats.TotalEvents)
			}
		}
		p.snapshot.Stats = &stats
		p.snapshot.StatsUpdated = now
		p.metrics.ObserveStats(stats)
	}
	if res.historyErr == nil {
		p.snapshot.History = NormalizeHistory(res.history)
		p.snapshot.HistoryUpdated = now
		p.metrics.ObserveHistory(len(p.snapshot.History))
	}
	p.snapshot.Cycles++
	snap := p.snapshot.clone()
	onError := p.onError
	p.mu.Unlock()

	var failures []FetchError
	if res.statsErr != nil {
		failures = append(failures, FetchError{Resource: ResourceStats, Err: res.statsErr, At: now})
	}
	if res.historyErr != nil {
		failures = append(failures, FetchError{Resource: ResourceHistory, Err: res.historyErr, At: now})
	}

	switch len(failures) {
	case 0:
		p.metrics.ObserveCycle("ok")
	case 1:
		p.metrics.ObserveCycle("partial")
	default:
		p.metrics.ObserveCycle("failed")
	}

	for _, f := range failures {
		p.logger.Warnf("[Telemetry] %v", f)
		if onError != nil {
			onError(f)
		}
	}

	if len(failures) < 2 {
		p.publish(snap)
	}
}

func (p *Poller) publish(snap Snapshot) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	for ch := range p.subscribers {
		select {
		case ch <- snap.clone():
		default:
			p.logger.Debug("[Telemetry] Subscriber buffer full, dropping snapshot")
		}
	}
}
