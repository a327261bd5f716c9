package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sentinel-monitor/api/internal/storage"
	"sentinel-monitor/internal/client"
	"sentinel-monitor/internal/model"
	"sentinel-monitor/internal/proctree"
	"sentinel-monitor/internal/reconcile"
	"sentinel-monitor/internal/review"
	"sentinel-monitor/internal/telemetry"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SnapshotSource is satisfied by *telemetry.Poller
type SnapshotSource interface {
	Latest() telemetry.Snapshot
	Subscribe() (<-chan telemetry.Snapshot, func())
}

// AlertArchive is satisfied by *client.BackendClient
type AlertArchive interface {
	AlertHistory(ctx context.Context) ([]model.AlertRecord, error)
	Analytics(ctx context.Context, period string) (model.Analytics, error)
}

type Handlers struct {
	store      *storage.Storage
	snapshots  SnapshotSource
	tree       *proctree.Model
	workflow   *review.Workflow
	reconciler *reconcile.Reconciler
	archive    AlertArchive
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

func NewHandlers(store *storage.Storage, snapshots SnapshotSource, tree *proctree.Model, workflow *review.Workflow,
	reconciler *reconcile.Reconciler, archive AlertArchive, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:      store,
		snapshots:  snapshots,
		tree:       tree,
		workflow:   workflow,
		reconciler: reconciler,
		archive:    archive,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Telemetry handlers
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshots.Latest())
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Latest()
	if snap.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "No telemetry received yet")
		return
	}
	writeJSON(w, http.StatusOK, snap.Stats)
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.snapshots.Latest().History
	if history == nil {
		history = []model.HistoryEntry{}
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": history,
		"total": len(history),
	})
}

// Process tree handlers
func (h *Handlers) GetProcessTree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aggregates": h.tree.Aggregates(),
		"visible":    h.tree.Visible(),
		"processes":  h.tree.Forest(),
	})
}

func (h *Handlers) ToggleProcess(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]
	toggled := h.tree.Toggle(pid)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pid":      pid,
		"toggled":  toggled,
		"expanded": h.tree.IsExpanded(pid),
		"visible":  h.tree.Visible(),
	})
}

// Review handlers
type selectRequest struct {
	Key   string              `json:"key"`
	Event *model.HistoryEntry `json:"event"`
}

type dispatchRequest struct {
	Channels []string `json:"channels"`
}

func (h *Handlers) GetReview(w http.ResponseWriter, r *http.Request) {
	current, ok := h.workflow.Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"state": review.StateIdle})
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (h *Handlers) SelectEvent(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var event model.HistoryEntry
	switch {
	case req.Event != nil:
		event = *req.Event
		event.Sanitize()
	case req.Key != "":
		found := false
		for _, entry := range h.snapshots.Latest().History {
			if entry.Key() == req.Key {
				event, found = entry, true
				break
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, "Event not found in history")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "Either key or event is required")
		return
	}

	writeJSON(w, http.StatusOK, h.workflow.Select(event))
}

func (h *Handlers) AnalyzeEvent(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.workflow.RequestAnalysis(r.Context())
	if err != nil {
		h.writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"analysis": analysis})
}

func (h *Handlers) DispatchAlert(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	current, err := h.workflow.DispatchAlert(r.Context(), req.Channels)
	if err != nil {
		h.writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (h *Handlers) DismissReview(w http.ResponseWriter, r *http.Request) {
	h.workflow.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeReviewError(w http.ResponseWriter, err error) {
	var classErr *review.ClassificationError
	var dispatchErr *review.DispatchError

	switch {
	case errors.Is(err, client.ErrUnauthenticated):
		h.logger.Warnf("Review request rejected by backend: %v", err)
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, review.ErrNoSelection):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, review.ErrAnalysisInFlight), errors.Is(err, review.ErrDispatchInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, review.ErrStaleReview):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, review.ErrNotCritical):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &classErr), errors.As(err, &dispatchErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Errorf("Review request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	filter := storage.AlertFilter{
		Severity: r.URL.Query().Get("severity"),
		Type:     r.URL.Query().Get("type"),
	}
	alerts := h.store.GetAlerts(limit, filter, r.URL.Query().Get("search"))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": alerts,
		"total": len(alerts),
	})
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.store.GetAlertByID(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) GetAlertsTimeline(w http.ResponseWriter, r *http.Request) {
	var start, end time.Time
	var err error

	if s := r.URL.Query().Get("start"); s != "" {
		if start, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start time format")
			return
		}
	}
	if e := r.URL.Query().Get("end"); e != "" {
		if end, err = time.Parse(time.RFC3339, e); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end time format")
			return
		}
	}

	writeJSON(w, http.StatusOK, h.store.GetAlertsTimeline(start, end))
}

// GetAlertHistory returns the backend's dispatch archive with per-channel outcomes
func (h *Handlers) GetAlertHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.archive.AlertHistory(r.Context())
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}

	entries := h.reconciler.History(records)
	filtered := reconcile.ParseFilter(r.URL.Query().Get("filter")).Apply(entries)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":   filtered,
		"total":   len(filtered),
		"summary": reconcile.Summarize(entries),
	})
}

func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = model.PeriodWeek
	}
	if !model.ValidPeriod(period) {
		writeError(w, http.StatusBadRequest, "period must be week, month or year")
		return
	}

	analytics, err := h.archive.Analytics(r.Context(), period)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *Handlers) writeUpstreamError(w http.ResponseWriter, err error) {
	h.logger.Warnf("Backend request failed: %v", err)
	if errors.Is(err, client.ErrUnauthenticated) {
		writeError(w, http.StatusUnauthorized, "Backend rejected the configured credentials")
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

// Rules handlers
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetRules())
}

func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.store.GetRuleByID(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) GetRulesStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetRulesStats())
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
