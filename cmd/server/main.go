package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afroash/vpd-monitor/internal/advisory"
	"github.com/afroash/vpd-monitor/internal/alert"
	"github.com/afroash/vpd-monitor/internal/config"
	"github.com/afroash/vpd-monitor/internal/greenhouse"
	"github.com/afroash/vpd-monitor/internal/logging"
	"github.com/afroash/vpd-monitor/internal/metrics"
	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/afroash/vpd-monitor/internal/server"
	"github.com/afroash/vpd-monitor/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const version = "v0.3.0"

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/server.yaml", "path to config file (empty = defaults and environment only)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadAppConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)

	logger.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Str("greenhouse_id", cfg.Controller.GreenhouseID).
		Msg("Starting VPD Monitor Server")
	logger.Debug().Str("config", cfg.String()).Msg("Effective configuration")
	if cfg.Server.AuthToken == "" {
		logger.Warn().Msg("No auth token configured, operator routes are open")
	}

	// Control loop
	seed := cfg.Controller.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	controller := greenhouse.NewController(cfg.GreenhouseConfig(), greenhouse.NewRandomDrift(seed), logger)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics := metrics.New(reg, cfg.Controller.GreenhouseID)
	controller.AddObserver(promMetrics)

	// Advisory
	var analyzer advisory.Analyzer
	if cfg.Advisory.Enabled {
		gemini, err := advisory.NewGeminiAnalyzer(context.Background(), advisory.GeminiConfig{
			APIKey:      cfg.Advisory.APIKey,
			Model:       cfg.Advisory.Model,
			Temperature: cfg.Advisory.Temperature,
			TopP:        cfg.Advisory.TopP,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Gemini analyzer")
		}
		analyzer = gemini
	} else {
		logger.Info().Msg("Advisory disabled")
	}
	advisor := advisory.NewAdvisor(analyzer, advisory.AdvisorConfig{
		Timeout:   cfg.Advisory.Timeout,
		Enclosure: cfg.EnclosureDescription(),
	}, logger)
	advisor.OnSettled(promMetrics.AdvisorySettled)

	// Dashboard push
	hub := server.NewHub(controller.Snapshot, logger, cfg.Server.AllowedOrigins...)
	controller.AddObserver(hub)
	advisor.OnSettled(hub.BroadcastAdvisory)

	// Telemetry
	var sinks []telemetry.Sink
	if mc := cfg.Telemetry.MQTT; mc.Enabled {
		sink, err := telemetry.NewMQTTSink(telemetry.MQTTConfig{
			Broker:      mc.Broker,
			ClientID:    mc.ClientID,
			TopicPrefix: mc.TopicPrefix,
			Username:    mc.Username,
			Password:    mc.Password,
			QoS:         mc.QoS,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("MQTT telemetry disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if kc := cfg.Telemetry.Kafka; kc.Enabled {
		sinks = append(sinks, telemetry.NewKafkaSink(kc.Brokers, kc.Topic, logger))
	}
	var publisher *telemetry.Publisher
	if len(sinks) > 0 {
		publisher = telemetry.NewPublisher(telemetry.PublisherConfig{
			BatchSize:   cfg.Telemetry.BatchSize,
			FlushPeriod: cfg.Telemetry.FlushPeriod,
			QueueSize:   cfg.Telemetry.QueueSize,
		}, logger, sinks...)
		controller.AddObserver(publisher)
	}

	// Alerts
	var notifier *alert.Notifier
	if mg := cfg.Alerts.Mailgun; mg.Enabled {
		sender := alert.NewMailgunSender(alert.MailgunConfig{
			Domain:     mg.Domain,
			APIKey:     mg.APIKey,
			Sender:     mg.Sender,
			Recipients: mg.Recipients,
		})
		notifier = alert.NewNotifier(sender, alert.NotifierConfig{Cooldown: cfg.Alerts.Cooldown}, logger)
		controller.AddObserver(notifier)
		logger.Info().Strs("recipients", mg.Recipients).Dur("cooldown", cfg.Alerts.Cooldown).Msg("Email alerts enabled")
	}

	// HTTP
	enclosure := models.NewEnclosureInfo(
		cfg.Controller.GreenhouseID,
		cfg.Controller.Description,
		cfg.Controller.Hardware,
		version,
	)
	apiHandler := server.NewAPIHandler(controller, advisor, enclosure, promMetrics, logger)
	srv := server.New(apiHandler, hub, server.Options{
		Version:        version,
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DashboardPath:  cfg.Server.DashboardPath,
		Gatherer:       reg,
	}, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start control loop
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := controller.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Control loop failed")
		}
	}()

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down server...")
	shutdown(logger, httpServer, stopLoop, loopDone, hub, advisor, publisher, notifier)
	logger.Info().Msg("Server stopped")
}

// shutdown stops the loop first so no snapshot is produced after observers close
func shutdown(
	logger zerolog.Logger,
	httpServer *http.Server,
	stopLoop context.CancelFunc,
	loopDone <-chan struct{},
	hub *server.Hub,
	advisor *advisory.Advisor,
	publisher *telemetry.Publisher,
	notifier *alert.Notifier,
) {
	stopLoop()
	<-loopDone

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	advisor.Close()
	logger.Info().Msg("Advisor closed")

	if publisher != nil {
		publisher.Stop()
		stats := publisher.Stats()
		logger.Info().
			Int64("published", stats.TotalPublished).
			Int64("dropped", stats.TotalDropped).
			Int64("errors", stats.TotalErrors).
			Msg("Telemetry publisher stopped")
	}
	if notifier != nil {
		notifier.Close()
		sent, failed := notifier.Counts()
		logger.Info().Int64("sent", sent).Int64("failed", failed).Msg("Alert notifier stopped")
	}
}
