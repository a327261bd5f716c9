package review

import (
	"context"
	"sync"
	"time"

	"sentinel-monitor/internal/metrics"
	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/reconcile"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle        State = "IDLE"
	StateSelected    State = "SELECTED"
	StateAnalyzing   State = "ANALYZING"
	StateAnalyzed    State = "ANALYZED"
	StateFailed      State = "FAILED"
	StateDispatching State = "DISPATCHING"
	StateDispatched  State = "DISPATCHED"
)

// DefaultChannels are used when DispatchAlert is called without channels
var DefaultChannels = []string{reconcile.ChannelEmail, reconcile.ChannelSlack}

type Classifier interface {
	AnalyzeThreat(ctx context.Context, event model.HistoryEntry) (model.Analysis, error)
}

type Dispatcher interface {
	SendAlert(ctx context.Context, event model.HistoryEntry, channels []string) (model.DispatchResponse, error)
}

// Review is the state of one selected event
type Review struct {
	ID              string                  `json:"id"`
	Event           model.HistoryEntry      `json:"event"`
	State           State                   `json:"state"`
	Analysis        *model.Analysis         `json:"analysis,omitempty"`
	AnalysisError   string                  `json:"analysis_error,omitempty"`
	AlertDispatched bool                    `json:"alert_dispatched"`
	Channels        []string                `json:"channels,omitempty"`
	Report          *reconcile.StatusReport `json:"report,omitempty"`
	DispatchError   string                  `json:"dispatch_error,omitempty"`
	SelectedAt      time.Time               `json:"selected_at"`
	DispatchedAt    time.Time               `json:"dispatched_at,omitempty"`
}

func (r *Review) clone() Review {
	out := *r
	if r.Analysis != nil {
		a := *r.Analysis
		a.Recommendations = append([]string(nil), r.Analysis.Recommendations...)
		out.Analysis = &a
	}
	if r.Report != nil {
		rep := *r.Report
		out.Report = &rep
	}
	out.Channels = append([]string(nil), r.Channels...)
	return out
}

// Workflow drives one review at a time through
// SELECTED -> ANALYZING -> ANALYZED|FAILED -> DISPATCHING -> DISPATCHED.
//
// DISPATCHED is terminal for a review, so an alert is sent at most once per
// selection. Results of calls issued for a review that has since been
// replaced are dropped.
type Workflow struct {
	classifier Classifier
	dispatcher Dispatcher
	reconciler *reconcile.Reconciler
	logger     *logrus.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	current *Review
	// state to return to when a dispatch fails
	beforeDispatch State
}

func NewWorkflow(classifier Classifier, dispatcher Dispatcher, reconciler *reconcile.Reconciler, logger *logrus.Logger) *Workflow {
	return &Workflow{
		classifier: classifier,
		dispatcher: dispatcher,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (w *Workflow) SetMetrics(m *metrics.Metrics) {
	w.metrics = m
}

// Select starts a fresh review of event, discarding any previous one
func (w *Workflow) Select(event model.HistoryEntry) Review {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current = &Review{
		ID:         uuid.NewString(),
		Event:      event,
		State:      StateSelected,
		SelectedAt: time.Now(),
	}
	w.logger.Debugf("[Review] Selected event %s (review %s)", event.Key(), w.current.ID)
	return w.current.clone()
}

// Current returns the active review, if any
func (w *Workflow) Current() (Review, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return Review{}, false
	}
	return w.current.clone(), true
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return StateIdle
	}
	return w.current.State
}

// Dismiss closes the review surface. Outstanding calls become stale.
func (w *Workflow) Dismiss() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		w.logger.Debugf("[Review] Dismissed review %s", w.current.ID)
	}
	w.current = nil
}

// RequestAnalysis asks the classifier about the selected event. An analyzed
// review returns its stored analysis without a new call; a failed one retries.
func (w *Workflow) RequestAnalysis(ctx context.Context) (model.Analysis, error) {
	w.mu.Lock()
	if w.current == nil {
		w.mu.Unlock()
		return model.Analysis{}, ErrNoSelection
	}

	switch w.current.State {
	case StateAnalyzing:
		w.mu.Unlock()
		w.metrics.ObserveReview("analyze", "rejected")
		return model.Analysis{}, ErrAnalysisInFlight
	case StateDispatching:
		w.mu.Unlock()
		w.metrics.ObserveReview("analyze", "rejected")
		return model.Analysis{}, ErrDispatchInFlight
	case StateAnalyzed:
		analysis := *w.current.Analysis
		w.mu.Unlock()
		return analysis, nil
	case StateDispatched:
		if w.current.Analysis != nil {
			analysis := *w.current.Analysis
			w.mu.Unlock()
			return analysis, nil
		}
	}

	id := w.current.ID
	event := w.current.Event
	resume := w.current.State
	w.current.State = StateAnalyzing
	w.current.AnalysisError = ""
	w.mu.Unlock()

	w.logger.Infof("[Review] Requesting analysis for event %s", event.Key())
	analysis, err := w.classifier.AnalyzeThreat(ctx, event)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil || w.current.ID != id {
		w.logger.Debugf("[Review] Dropping analysis for superseded review %s", id)
		w.metrics.ObserveReview("analyze", "stale")
		return model.Analysis{}, ErrStaleReview
	}

	if err != nil {
		w.current.AnalysisError = err.Error()
		// a dispatched review never leaves DISPATCHED
		if resume == StateDispatched {
			w.current.State = StateDispatched
		} else {
			w.current.State = StateFailed
		}
		w.logger.Warnf("[Review] Analysis failed for event %s: %v", event.Key(), err)
		w.metrics.ObserveReview("analyze", "failed")
		return model.Analysis{}, &ClassificationError{Err: err}
	}

	w.current.Analysis = &analysis
	if resume == StateDispatched {
		w.current.State = StateDispatched
	} else {
		w.current.State = StateAnalyzed
	}
	w.logger.Infof("[Review] Event %s classified as %q (severity %s)", event.Key(), analysis.Classification, analysis.Severity)
	w.metrics.ObserveReview("analyze", "ok")
	return analysis, nil
}

// DispatchAlert sends an alert for the selected CRITICAL event. Once a send
// succeeds, later calls return the dispatched review without sending again.
func (w *Workflow) DispatchAlert(ctx context.Context, channels []string) (Review, error) {
	w.mu.Lock()
	if w.current == nil {
		w.mu.Unlock()
		return Review{}, ErrNoSelection
	}

	if w.current.AlertDispatched {
		review := w.current.clone()
		w.mu.Unlock()
		w.metrics.ObserveReview("dispatch", "noop")
		return review, nil
	}

	switch w.current.State {
	case StateDispatching:
		review := w.current.clone()
		w.mu.Unlock()
		w.metrics.ObserveReview("dispatch", "rejected")
		return review, ErrDispatchInFlight
	case StateAnalyzing:
		review := w.current.clone()
		w.mu.Unlock()
		w.metrics.ObserveReview("dispatch", "rejected")
		return review, ErrAnalysisInFlight
	}

	if !w.current.Event.Status.IsCritical() {
		review := w.current.clone()
		w.mu.Unlock()
		w.metrics.ObserveReview("dispatch", "rejected")
		return review, ErrNotCritical
	}

	if len(channels) == 0 {
		channels = DefaultChannels
	}
	channels = append([]string(nil), channels...)

	id := w.current.ID
	event := w.current.Event
	w.beforeDispatch = w.current.State
	w.current.State = StateDispatching
	w.current.Channels = channels
	w.current.DispatchError = ""
	w.mu.Unlock()

	w.logger.Infof("[Review] Dispatching alert for event %s via %v", event.Key(), channels)
	resp, err := w.dispatcher.SendAlert(ctx, event, channels)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil || w.current.ID != id {
		w.logger.Warnf("[Review] Dispatch for superseded review %s resolved (err=%v)", id, err)
		w.metrics.ObserveReview("dispatch", "stale")
		return Review{}, ErrStaleReview
	}

	if err != nil {
		w.current.State = w.beforeDispatch
		w.current.DispatchError = err.Error()
		w.logger.Warnf("[Review] Alert dispatch failed for event %s: %v", event.Key(), err)
		w.metrics.ObserveReview("dispatch", "failed")
		return w.current.clone(), &DispatchError{Err: err}
	}

	report := w.reconciler.Reconcile(string(resp.Results))
	w.current.Report = &report
	w.current.State = StateDispatched
	w.current.AlertDispatched = true
	w.current.DispatchedAt = time.Now()

	for _, ch := range channels {
		w.metrics.ObserveChannel(ch, string(report.Channel(ch).Kind))
	}
	w.metrics.ObserveReview("dispatch", "ok")
	w.logger.Infof("[Review] Alert dispatched for event %s (email=%s, slack=%s)", event.Key(), report.Email.Kind, report.Slack.Kind)
	return w.current.clone(), nil
}
