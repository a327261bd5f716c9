package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
)

// NewRouter wires every console route. REST responses are gzip-compressed;
// websocket streams are registered outside the compressed subrouter. CORS
// wraps the whole router so preflight requests never reach route matching.
func NewRouter(h *Handlers, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	stream := router.PathPrefix("/api/v1/stream").Subrouter()
	stream.HandleFunc("/snapshots", h.StreamSnapshots).Methods("GET")
	stream.HandleFunc("/alerts", h.StreamAlerts).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	// Telemetry endpoints
	api.HandleFunc("/snapshot", h.GetSnapshot).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/history", h.GetHistory).Methods("GET")

	// Process tree endpoints
	api.HandleFunc("/process-tree", h.GetProcessTree).Methods("GET")
	api.HandleFunc("/process-tree/{pid}/toggle", h.ToggleProcess).Methods("POST")

	// Review endpoints
	api.HandleFunc("/review", h.GetReview).Methods("GET")
	api.HandleFunc("/review", h.DismissReview).Methods("DELETE")
	api.HandleFunc("/review/select", h.SelectEvent).Methods("POST")
	api.HandleFunc("/review/analyze", h.AnalyzeEvent).Methods("POST")
	api.HandleFunc("/review/dispatch", h.DispatchAlert).Methods("POST")

	// Alerts endpoints
	api.HandleFunc("/alerts/timeline", h.GetAlertsTimeline).Methods("GET")
	api.HandleFunc("/alerts/history", h.GetAlertHistory).Methods("GET")
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}", h.GetAlert).Methods("GET")
	api.HandleFunc("/analytics", h.GetAnalytics).Methods("GET")

	// Rules endpoints
	api.HandleFunc("/rules/stats", h.GetRulesStats).Methods("GET")
	api.HandleFunc("/rules", h.GetRules).Methods("GET")
	api.HandleFunc("/rules/{id}", h.GetRule).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	return corsMiddleware(allowedOrigins)(router)
}

func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	wildcard := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowOrigin := ""
			switch {
			case origin != "" && allowed[origin]:
				allowOrigin = origin
			case wildcard:
				allowOrigin = "*"
			}

			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Max-Age", "3600")
				if allowOrigin != "*" {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
