package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Exporter serves /metrics and /health for a registry
type Exporter struct {
	server *http.Server
	logger *logrus.Logger
	port   string
}

func NewExporter(port string, gatherer prometheus.Gatherer, logger *logrus.Logger) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`
			<h1>Sentinel Exporter</h1>
			<p><a href="/metrics">Metrics</a></p>
			<p><a href="/health">Health Check</a></p>
		`))
	})

	return &Exporter{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
		port:   port,
	}
}

// Handler exposes the exporter mux, mainly for tests
func (e *Exporter) Handler() http.Handler {
	return e.server.Handler
}

// Start serves until ctx is done and then shuts the server down
func (e *Exporter) Start(ctx context.Context) error {
	e.logger.Infof("Starting Prometheus exporter on port %s", e.port)
	e.logger.Infof("Metrics available at: http://localhost:%s/metrics", e.port)

	errCh := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		e.logger.Errorf("Failed to start Prometheus exporter: %v", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.logger.Info("Shutting down Prometheus exporter...")
	return e.server.Shutdown(shutdownCtx)
}
