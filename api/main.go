package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-monitor/api/internal/handlers"
	"sentinel-monitor/api/internal/storage"
	"sentinel-monitor/internal/metrics"
	"sentinel-monitor/internal/pipeline"
	"sentinel-monitor/internal/proctree"
	"sentinel-monitor/internal/reconcile"
	"sentinel-monitor/internal/review"
	"sentinel-monitor/internal/rules"
	"sentinel-monitor/internal/telemetry"
	"sentinel-monitor/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "configs/sentinel.yaml", "Configuration file path (YAML)")
		port       = flag.String("port", "", "API server port (overrides api.port)")
	)
	flag.Parse()

	config, err := utils.LoadSentinelConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		config.API.Port = *port
	}

	logger, logCloser, err := utils.NewLoggerFromConfig(config.Logging)
	if err != nil {
		logger.Warnf("%v, logging to stdout only", err)
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if config.Metrics.Enabled {
		exporter := metrics.NewExporter(config.GetMetricsPort(), registry, logger)
		go func() {
			if err := exporter.Start(ctx); err != nil {
				logger.Errorf("Prometheus exporter error: %v", err)
			}
		}()
	}

	backend, err := utils.NewBackendClient(config, logger)
	if err != nil {
		logger.Fatalf("Failed to create backend client: %v", err)
	}
	statsSource, historySource, err := utils.NewTelemetrySources(config, backend)
	if err != nil {
		logger.Fatalf("Failed to create telemetry source: %v", err)
	}

	// Console notifications are kept in memory and streamed to the UI
	store := storage.NewStorage(config.API.AlertBuffer, logger)
	store.SetRules(config.Rules)

	engine := rules.NewEngine(logger, config.AlertCooldown())
	engine.SetMetrics(m)
	engine.RegisterNotifier(store)
	utils.RegisterRulesFromYAML(engine, config, logger)
	cleanup, err := utils.RegisterAlertNotifiers(engine, config, logger)
	if err != nil {
		logger.Fatalf("Failed to register notifiers: %v", err)
	}
	defer cleanup()

	processor := pipeline.NewProcessor(engine, logger)

	tree := proctree.NewModel(config.ProcessTree.Expanded...)
	refresher := proctree.NewRefresher(tree, backend, config.RefreshInterval(), logger)
	if config.ProcessTree.HostFallback {
		refresher.SetFallback(proctree.NewHostSource(config.ProcessTree.SuspiciousCPU))
	}
	refresher.SetRefreshHook(func(agg proctree.Aggregates) {
		m.ObserveTree(agg.Count, agg.SuspiciousCount, agg.MaxDepth)
		processor.UpdateProcesses(tree.Forest())
	})

	poller := telemetry.NewPoller(config.PollInterval(), statsSource, historySource, logger, telemetry.WithMetrics(m))
	snapshots, unsubscribe := poller.Subscribe()
	defer unsubscribe()

	reconciler := reconcile.NewReconciler(reconcile.DefaultCacheSize)
	workflow := review.NewWorkflow(backend, backend, reconciler, logger)
	workflow.SetMetrics(m)

	go processor.Run(ctx, snapshots)
	go refresher.Start(ctx)
	if err := poller.Start(ctx); err != nil {
		logger.Fatalf("Failed to start poller: %v", err)
	}

	h := handlers.NewHandlers(store, poller, tree, workflow, reconciler, backend, logger)
	router := handlers.NewRouter(h, config.API.AllowedOrigins)

	addr := fmt.Sprintf(":%s", config.GetAPIPort())
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // websocket streams are long-lived
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	logger.Infof("API server starting on port %s", config.GetAPIPort())

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down API server...")
		poller.Stop()
		refresher.Stop()
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
