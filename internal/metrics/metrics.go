package metrics

import (
	"sentinel-monitor/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinel"

// Metrics groups the collectors of the monitor core.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	// Poller metrics
	PollCycles    *prometheus.CounterVec
	PollSkipped   prometheus.Counter
	FetchErrors   *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	// Host telemetry mirrored from the latest snapshot
	HostStatus         *prometheus.GaugeVec
	AnomalyProbability prometheus.Gauge
	SyscallRate        prometheus.Gauge
	ChurnRate          prometheus.Gauge
	TotalAnomalies     prometheus.Gauge
	TotalEvents        prometheus.Gauge
	HistoryLength      prometheus.Gauge

	// Process tree
	ProcessCount        prometheus.Gauge
	SuspiciousProcesses prometheus.Gauge
	ProcessTreeDepth    prometheus.Gauge

	// Review workflow and alerting
	ReviewActions     *prometheus.CounterVec
	ChannelOutcomes   *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PollCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Telemetry poll cycles by result (ok, partial, failed, discarded)",
			},
			[]string{"result"},
		),
		PollSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_skipped_total",
				Help:      "Ticks skipped because a cycle was still in flight",
			},
		),
		FetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Failed fetches by resource",
			},
			[]string{"resource"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Fetch latency by resource",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		HostStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "host_status",
				Help:      "1 for the current host status, 0 otherwise",
			},
			[]string{"status"},
		),
		AnomalyProbability: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomaly_probability",
			Help:      "Latest anomaly probability (0-1)",
		}),
		SyscallRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "syscall_rate",
			Help:      "Latest syscall rate",
		}),
		ChurnRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "file_churn_rate",
			Help:      "Latest file churn rate",
		}),
		TotalAnomalies: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomalies",
			Help:      "Total anomalies reported by the backend",
		}),
		TotalEvents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events",
			Help:      "Total events reported by the backend",
		}),
		HistoryLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_length",
			Help:      "Entries in the latest history window",
		}),
		ProcessCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes",
			Help:      "Processes in the latest tree snapshot",
		}),
		SuspiciousProcesses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suspicious_processes",
			Help:      "Suspicious processes in the latest tree snapshot",
		}),
		ProcessTreeDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_tree_depth",
			Help:      "Maximum depth of the latest tree snapshot",
		}),
		ReviewActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_actions_total",
				Help:      "Review workflow actions by action and result",
			},
			[]string{"action", "result"},
		),
		ChannelOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_channel_outcomes_total",
				Help:      "Reconciled dispatch outcomes by channel",
			},
			[]string{"channel", "outcome"},
		),
		NotificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Operator notifications by notifier and result",
			},
			[]string{"notifier", "result"},
		),
	}
}

// ObserveStats mirrors a stats record into the host gauges
func (m *Metrics) ObserveStats(s model.Stats) {
	if m == nil {
		return
	}
	for _, st := range []model.Status{model.StatusSecure, model.StatusCritical, model.StatusUnknown} {
		v := 0.0
		if s.Status == st {
			v = 1
		}
		m.HostStatus.WithLabelValues(string(st)).Set(v)
	}
	m.AnomalyProbability.Set(s.Probability)
	m.SyscallRate.Set(s.SyscallRate)
	m.ChurnRate.Set(s.ChurnRate)
	m.TotalAnomalies.Set(float64(s.TotalAnomalies))
	m.TotalEvents.Set(float64(s.TotalEvents))
}

func (m *Metrics) ObserveHistory(n int) {
	if m == nil {
		return
	}
	m.HistoryLength.Set(float64(n))
}

func (m *Metrics) ObserveCycle(result string) {
	if m == nil {
		return
	}
	m.PollCycles.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSkip() {
	if m == nil {
		return
	}
	m.PollSkipped.Inc()
}

// ObserveFetch records latency and, when failed, an error for resource
func (m *Metrics) ObserveFetch(resource string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(resource).Observe(seconds)
	if failed {
		m.FetchErrors.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) ObserveTree(count, suspicious, depth int) {
	if m == nil {
		return
	}
	m.ProcessCount.Set(float64(count))
	m.SuspiciousProcesses.Set(float64(suspicious))
	m.ProcessTreeDepth.Set(float64(depth))
}

func (m *Metrics) ObserveReview(action, result string) {
	if m == nil {
		return
	}
	m.ReviewActions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveChannel(channel, outcome string) {
	if m == nil {
		return
	}
	m.ChannelOutcomes.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObserveNotification(notifier string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsSent.WithLabelValues(notifier, result).Inc()
}
