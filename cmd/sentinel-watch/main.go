package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sentinel-monitor/internal/alert"
	"sentinel-monitor/internal/metrics"
	"sentinel-monitor/internal/pipeline"
	"sentinel-monitor/internal/proctree"
	"sentinel-monitor/internal/rules"
	"sentinel-monitor/internal/telemetry"
	"sentinel-monitor/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func getVersion() string {
	content, err := os.ReadFile("VERSION")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(content))
}

func main() {
	var (
		configFile   = flag.String("config", "configs/sentinel.yaml", "Configuration file path (YAML)")
		showVersion  = flag.Bool("version", false, "Show version information")
		testTelegram = flag.Bool("test-telegram", false, "Send test message to Telegram")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Sentinel Watch v%s\n", getVersion())
		return
	}

	config, err := utils.LoadSentinelConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		config = utils.GetDefaultSentinelConfig()
	} else {
		fmt.Printf("Loaded configuration from %s\n", *configFile)
	}

	logger, logCloser, err := utils.NewLoggerFromConfig(config.Logging)
	if err != nil {
		fmt.Printf("Warning: %v, logging to stdout only\n", err)
	}
	defer logCloser.Close()

	if *testTelegram {
		testTelegramNotification(config, logger)
		return
	}

	fmt.Printf("Sentinel Watch v%s\n", getVersion())
	fmt.Printf("Telemetry source: %s (%s)\n", config.Backend.Source, config.Backend.URL)
	fmt.Printf("Poll interval: %v, process tree refresh: %v\n", config.PollInterval(), config.RefreshInterval())
	fmt.Println("")

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

	engine := rules.NewEngine(logger, config.AlertCooldown())
	engine.SetMetrics(m)
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
	poller.SetErrorHandler(func(fe telemetry.FetchError) {
		logger.WithFields(logrus.Fields{"resource": fe.Resource}).Debugf("Fetch failed: %v", fe.Err)
	})

	snapshots, unsubscribe := poller.Subscribe()
	defer unsubscribe()

	go processor.Run(ctx, snapshots)
	go refresher.Start(ctx)
	go printAlerts(ctx, engine)

	if err := poller.Start(ctx); err != nil {
		logger.Fatalf("Failed to start poller: %v", err)
	}

	fmt.Println(" Monitoring started!")
	fmt.Println("")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nStopping monitor...")
	poller.Stop()
	refresher.Stop()
	cancel()
	logger.Infof("Stopped after %d poll cycles (%d skipped ticks)", poller.Latest().Cycles, poller.Skipped())
}

func printAlerts(ctx context.Context, engine *rules.Engine) {
	alertChannel := engine.GetAlertChannel()
	for {
		select {
		case alert := <-alertChannel:
			timestamp := alert.Timestamp.Format("2006-01-02 15:04:05")
			marker := "!"
			switch alert.Severity {
			case "CRITICAL", "HIGH":
				marker = "!!"
			case "INFO":
				marker = "i"
			}
			fmt.Printf("\n[%s] [%s] %s - %s\n", marker, timestamp, alert.Severity, alert.Message)
		case <-ctx.Done():
			return
		}
	}
}

func testTelegramNotification(config *utils.SentinelConfig, logger *logrus.Logger) {
	tg := config.Alerting.Telegram
	telegramNotifier, err := alert.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.ParseMode, tg.Enabled, tg.MessageTemplate, logger)
	if err != nil {
		fmt.Printf("Failed to create Telegram notifier: %v\n", err)
		return
	}

	if !telegramNotifier.IsEnabled() {
		fmt.Println("Telegram notifier is disabled in configuration")
		return
	}

	fmt.Println("Sending test message to Telegram...")
	if err := telegramNotifier.SendTestMessage(); err != nil {
		fmt.Printf("Failed to send test message: %v\n", err)
		return
	}

	fmt.Println("Test message sent successfully to Telegram!")
}
