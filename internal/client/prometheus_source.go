package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sentinel-monitor/internal/model"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"
)

// Series exported by sentinel-watch and read back by PrometheusSource
const (
	QueryProbability = `sentinel_anomaly_probability`
	QuerySyscallRate = `sentinel_syscall_rate`
	QueryChurnRate   = `sentinel_file_churn_rate`
	QueryAnomalies   = `sentinel_anomalies`
	QueryEvents      = `sentinel_events`
	QueryCritical    = `sentinel_host_status{status="CRITICAL"}`
	QuerySecure      = `sentinel_host_status{status="SECURE"}`
)

// PrometheusSource serves stats and history from the sentinel_* series in Prometheus
type PrometheusSource struct {
	client  v1.API
	url     string
	timeout time.Duration
	window  time.Duration
	step    time.Duration
	now     func() time.Time
}

// NewPrometheusSource creates a source; window and step bound History
func NewPrometheusSource(url string, timeout, window, step time.Duration) (*PrometheusSource, error) {
	promClient, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if step <= 0 {
		step = 5 * time.Second
	}

	return &PrometheusSource{
		client:  v1.NewAPI(promClient),
		url:     url,
		timeout: timeout,
		window:  window,
		step:    step,
		now:     time.Now,
	}, nil
}

// Query executes an instant query
func (p *PrometheusSource) Query(ctx context.Context, query string) (prommodel.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, _, err := p.client.Query(ctx, query, p.now())
	if err != nil {
		return nil, &TransportError{Op: "prometheus query " + query, Err: err}
	}
	return result, nil
}

// QueryRange executes a range query
func (p *PrometheusSource) QueryRange(ctx context.Context, query string, r v1.Range) (prommodel.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, _, err := p.client.QueryRange(ctx, query, r)
	if err != nil {
		return nil, &TransportError{Op: "prometheus query_range " + query, Err: err}
	}
	return result, nil
}

func (p *PrometheusSource) Stats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats
	var latest prommodel.Time

	fields := []struct {
		query string
		set   func(float64)
	}{
		{QueryProbability, func(v float64) { stats.Probability = v }},
		{QuerySyscallRate, func(v float64) { stats.SyscallRate = v }},
		{QueryChurnRate, func(v float64) { stats.ChurnRate = v }},
		{QueryAnomalies, func(v float64) { stats.TotalAnomalies = int64(v) }},
		{QueryEvents, func(v float64) { stats.TotalEvents = int64(v) }},
	}
	for _, f := range fields {
		v, ts, ok, err := p.sample(ctx, f.query)
		if err != nil {
			return model.Stats{}, err
		}
		if ok {
			f.set(v)
			if ts.After(latest) {
				latest = ts
			}
		}
	}

	critical, _, _, err := p.sample(ctx, QueryCritical)
	if err != nil {
		return model.Stats{}, err
	}
	secure, _, _, err := p.sample(ctx, QuerySecure)
	if err != nil {
		return model.Stats{}, err
	}
	stats.Status = statusFromGauges(critical, secure)

	if latest != 0 {
		stats.Timestamp = latest.Time().UTC().Format(time.RFC3339)
	}
	stats.Sanitize()
	return stats, nil
}

// History rebuilds entries from the series over the configured window
func (p *PrometheusSource) History(ctx context.Context) ([]model.HistoryEntry, error) {
	end := p.now()
	r := v1.Range{Start: end.Add(-p.window), End: end, Step: p.step}

	byTime := make(map[prommodel.Time]*model.HistoryEntry)
	entry := func(ts prommodel.Time) *model.HistoryEntry {
		e, ok := byTime[ts]
		if !ok {
			e = &model.HistoryEntry{Stats: model.Stats{
				Status:    model.StatusUnknown,
				Timestamp: ts.Time().UTC().Format(time.RFC3339),
			}}
			byTime[ts] = e
		}
		return e
	}

	series := []struct {
		query string
		apply func(*model.HistoryEntry, float64)
	}{
		{QueryProbability, func(e *model.HistoryEntry, v float64) { e.Probability = v }},
		{QuerySyscallRate, func(e *model.HistoryEntry, v float64) { e.SyscallRate = v }},
		{QueryChurnRate, func(e *model.HistoryEntry, v float64) { e.ChurnRate = v }},
		{QueryCritical, func(e *model.HistoryEntry, v float64) {
			if v >= 1 {
				e.Status = model.StatusCritical
			} else if e.Status == model.StatusUnknown {
				e.Status = model.StatusSecure
			}
		}},
	}

	for _, s := range series {
		value, err := p.QueryRange(ctx, s.query, r)
		if err != nil {
			return nil, err
		}
		matrix, ok := value.(prommodel.Matrix)
		if !ok {
			return nil, &DecodeError{Op: "prometheus query_range " + s.query, Err: fmt.Errorf("unexpected result type %s", value.Type())}
		}
		for _, stream := range matrix {
			for _, pair := range stream.Values {
				s.apply(entry(pair.Timestamp), float64(pair.Value))
			}
		}
	}

	times := make([]prommodel.Time, 0, len(byTime))
	for ts := range byTime {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := make([]model.HistoryEntry, 0, len(times))
	for i, ts := range times {
		e := byTime[ts]
		e.ID = int64(i + 1)
		out = append(out, *e)
	}
	return out, nil
}

// sample returns the first sample of an instant vector query
func (p *PrometheusSource) sample(ctx context.Context, query string) (float64, prommodel.Time, bool, error) {
	value, err := p.Query(ctx, query)
	if err != nil {
		return 0, 0, false, err
	}
	vector, ok := value.(prommodel.Vector)
	if !ok {
		return 0, 0, false, &DecodeError{Op: "prometheus query " + query, Err: fmt.Errorf("unexpected result type %s", value.Type())}
	}
	if len(vector) == 0 {
		return 0, 0, false, nil
	}
	return float64(vector[0].Value), vector[0].Timestamp, true, nil
}

func statusFromGauges(critical, secure float64) model.Status {
	switch {
	case critical >= 1:
		return model.StatusCritical
	case secure >= 1:
		return model.StatusSecure
	default:
		return model.StatusUnknown
	}
}
