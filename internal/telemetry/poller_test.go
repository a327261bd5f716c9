package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-monitor/internal/metrics"
	"sentinel-monitor/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedStats(status model.Status, anomalies int64) StatsFunc {
	return func(ctx context.Context) (model.Stats, error) {
		return model.Stats{Status: status, TotalAnomalies: anomalies, Timestamp: "2024-05-01T10:00:00"}, nil
	}
}

func fixedHistory(entries ...model.HistoryEntry) HistoryFunc {
	return func(ctx context.Context) ([]model.HistoryEntry, error) {
		return entries, nil
	}
}

func TestPollerAppliesFirstCycleImmediately(t *testing.T) {
	p := NewPoller(time.Hour, fixedStats(model.StatusCritical, 2), fixedHistory(
		entry(3, "2024-05-01T10:00:03"),
		entry(1, "2024-05-01T10:00:01"),
		entry(2, "2024-05-01T10:00:02"),
	), quietLogger())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Latest().Stats != nil }, time.Second, 5*time.Millisecond)
	snap := p.Latest()
	assert.Equal(t, model.StatusCritical, snap.Stats.Status)
	assert.Equal(t, []int64{1, 2, 3}, ids(snap.History))
}

func TestPollerDiscardsCycleResolvedAfterStop(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once

	// the response arrives only once stop has been requested
	stats := StatsFunc(func(ctx context.Context) (model.Stats, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return model.Stats{Status: model.StatusCritical}, nil
	})
	history := HistoryFunc(func(ctx context.Context) ([]model.HistoryEntry, error) {
		<-ctx.Done()
		return []model.HistoryEntry{entry(1, "2024-05-01T10:00:01")}, nil
	})

	reg := metrics.New(nil)
	p := NewPoller(time.Hour, stats, history, quietLogger(), WithMetrics(reg))
	require.NoError(t, p.Start(context.Background()))

	<-started
	p.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.PollCycles.WithLabelValues("discarded")) == 1
	}, time.Second, 5*time.Millisecond)
	snap := p.Latest()
	assert.Nil(t, snap.Stats)
	assert.Empty(t, snap.History)
	assert.Zero(t, snap.Cycles)
}

func TestPollerStopDoesNotWaitForInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	// this fetcher ignores ctx and only returns when released
	stats := StatsFunc(func(ctx context.Context) (model.Stats, error) {
		once.Do(func() { close(started) })
		<-release
		return model.Stats{Status: model.StatusCritical}, nil
	})
	history := HistoryFunc(func(ctx context.Context) ([]model.HistoryEntry, error) {
		return []model.HistoryEntry{entry(1, "2024-05-01T10:00:01")}, nil
	})

	reg := metrics.New(nil)
	p := NewPoller(time.Hour, stats, history, quietLogger(), WithMetrics(reg))
	require.NoError(t, p.Start(context.Background()))
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		close(release)
		t.Fatal("Stop blocked on a fetch already in flight")
	}
	assert.False(t, p.Running())

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.PollCycles.WithLabelValues("discarded")) == 1
	}, time.Second, 5*time.Millisecond)

	snap := p.Latest()
	assert.Nil(t, snap.Stats)
	assert.Empty(t, snap.History)
}

func TestPollerReleasedWhenContextEnds(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	var calls atomic.Int32
	stats := StatsFunc(func(ctx context.Context) (model.Stats, error) {
		if calls.Add(1) == 1 {
			once.Do(func() { close(started) })
			<-release
		}
		return model.Stats{Status: model.StatusCritical, TotalEvents: int64(calls.Load())}, nil
	})

	reg := metrics.New(nil)
	p := NewPoller(time.Hour, stats, fixedHistory(), quietLogger(), WithMetrics(reg))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	<-started
	cancel()

	require.Eventually(t, func() bool { return !p.Running() }, time.Second, 5*time.Millisecond)

	// the cycle started before cancel resolves late and is dropped
	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.PollCycles.WithLabelValues("discarded")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, p.Latest().Stats)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	require.Eventually(t, func() bool { return p.Latest().Stats != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), p.Latest().Cycles)
}

func TestPollerKeepsLastKnownGoodPerResource(t *testing.T) {
	var calls atomic.Int32
	stats := StatsFunc(func(ctx context.Context) (model.Stats, error) {
		if calls.Add(1) == 1 {
			return model.Stats{Status: model.StatusSecure, TotalEvents: 10}, nil
		}
		return model.Stats{}, errors.New("connection reset")
	})

	var histCalls atomic.Int32
	history := HistoryFunc(func(ctx context.Context) ([]model.HistoryEntry, error) {
		n := histCalls.Add(1)
		return []model.HistoryEntry{entry(int64(n), "2024-05-01T10:00:00")}, nil
	})

	var mu sync.Mutex
	var failures []FetchError

	p := NewPoller(10*time.Millisecond, stats, history, quietLogger())
	p.SetErrorHandler(func(e FetchError) {
		mu.Lock()
		failures = append(failures, e)
		mu.Unlock()
	})
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return p.Latest().Cycles >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	snap := p.Latest()
	require.NotNil(t, snap.Stats)
	assert.Equal(t, int64(10), snap.Stats.TotalEvents)
	require.Len(t, snap.History, 1)
	assert.Greater(t, snap.History[0].ID, int64(1), "history keeps updating while stats fail")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, failures)
	assert.Equal(t, ResourceStats, failures[0].Resource)
	assert.EqualError(t, failures[0].Unwrap(), "connection reset")
}

func TestPollerSkipsTicksWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var statsCalls atomic.Int32
	stats := StatsFunc(func(ctx context.Context) (model.Stats, error) {
		statsCalls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return model.Stats{Status: model.StatusSecure}, nil
	})

	p := NewPoller(5*time.Millisecond, stats, fixedHistory(), quietLogger())
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return p.Skipped() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), statsCalls.Load())

	close(release)
	require.Eventually(t, func() bool { return statsCalls.Load() > 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestPollerStopsFetching(t *testing.T) {
	var calls atomic.Int32
	stats := StatsFunc(func(ctx context.Context) (model.Stats, error) {
		calls.Add(1)
		return model.Stats{}, nil
	})

	p := NewPoller(5*time.Millisecond, stats, fixedHistory(), quietLogger())
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load())

	// stopping twice is harmless
	p.Stop()
}

func TestPollerStartTwice(t *testing.T) {
	p := NewPoller(time.Hour, fixedStats(model.StatusSecure, 0), fixedHistory(), quietLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)
}

func TestPollerRestartAfterStop(t *testing.T) {
	var calls atomic.Int32
	stats := StatsFunc(func(ctx context.Context) (model.Stats, error) {
		return model.Stats{TotalEvents: int64(calls.Add(1))}, nil
	})

	p := NewPoller(time.Hour, stats, fixedHistory(), quietLogger())
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return p.Latest().Cycles == 1 }, time.Second, time.Millisecond)
	p.Stop()

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	require.Eventually(t, func() bool { return p.Latest().Cycles == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(2), p.Latest().Stats.TotalEvents)
}

func TestPollerSubscribe(t *testing.T) {
	p := NewPoller(time.Hour, fixedStats(model.StatusCritical, 1), fixedHistory(), quietLogger())
	ch, cancel := p.Subscribe()
	defer cancel()

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	select {
	case snap := <-ch:
		require.NotNil(t, snap.Stats)
		assert.Equal(t, model.StatusCritical, snap.Stats.Status)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestLatestIsACopy(t *testing.T) {
	p := NewPoller(time.Hour, fixedStats(model.StatusSecure, 0), fixedHistory(entry(1, "2024-05-01T10:00:00")), quietLogger())
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return p.Latest().Stats != nil }, time.Second, time.Millisecond)
	p.Stop()

	snap := p.Latest()
	snap.Stats.Status = model.StatusCritical
	snap.History[0].ID = 99

	again := p.Latest()
	assert.Equal(t, model.StatusSecure, again.Stats.Status)
	assert.Equal(t, int64(1), again.History[0].ID)
}
