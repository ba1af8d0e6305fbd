package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/transitwatch/internal/backend"
	"github.com/JonMunkholm/transitwatch/internal/config"
	"github.com/JonMunkholm/transitwatch/internal/core"
	"github.com/JonMunkholm/transitwatch/internal/importer"
	"github.com/JonMunkholm/transitwatch/internal/logging"
	"github.com/JonMunkholm/transitwatch/internal/metrics"
	"github.com/JonMunkholm/transitwatch/internal/notify"
	"github.com/JonMunkholm/transitwatch/internal/scheduler"
	"github.com/JonMunkholm/transitwatch/internal/storage"
	"github.com/JonMunkholm/transitwatch/internal/store"
	"github.com/JonMunkholm/transitwatch/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"storage_backend", cfg.Storage.Backend,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"scheduler_enabled", cfg.Scheduler.Enabled,
	)

	mc := metrics.NewCollector("transitwatch")

	// Open the snapshot backend
	ctx := context.Background()
	backing, err := storage.Open(ctx, storage.Options{
		Kind:          storage.Kind(cfg.Storage.Backend),
		Dir:           cfg.Storage.Dir,
		DatabaseURL:   cfg.Storage.DatabaseURL,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
		SQLitePath:    cfg.Storage.SQLitePath,
		MaxValueBytes: cfg.Storage.QuotaBytes,
	})
	if err != nil {
		slog.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer backing.Close()

	st := store.New(backing, store.Options{
		Key:              cfg.Storage.Key,
		BudgetBytes:      cfg.Storage.BudgetBytes,
		CompactThreshold: cfg.Storage.CompactThreshold,
		SampleSize:       cfg.Storage.SampleSize,
		IOTimeout:        cfg.Storage.IOTimeout,
	})
	st.OnEvent(func(ev store.Event) {
		mc.RecordStoreEvent(string(ev.Type), string(ev.Kind))
	})
	st.Subscribe(func(records []core.Record) {
		mc.RecordStoreChange(len(records))
	})
	st.Load(ctx)
	slog.Info("records restored", "count", st.Count(), "kind", st.LastSnapshotKind())

	svc := importer.NewService(st, importer.Config{
		Limits: core.FileLimits{
			MaxBytes: cfg.Import.MaxFileSize,
			MinBytes: cfg.Import.MinFileSize,
		},
		MaxConcurrent:     cfg.Import.MaxConcurrent,
		AcquireTimeout:    cfg.Import.MaxWaitTime,
		ImportTimeout:     cfg.Import.Timeout,
		MaxReportedErrors: cfg.Import.MaxReportedErrors,
		Metrics:           mc,
	})

	// Fan store events out to streams and external sinks
	hub := notify.NewHub(mc, slog.Default())
	detach := hub.Attach(st)

	if cfg.Events.MQTTBroker != "" {
		sink, err := notify.NewMQTTSink(notify.MQTTConfig{
			Broker:   cfg.Events.MQTTBroker,
			ClientID: cfg.Events.MQTTClientID,
			Topic:    cfg.Events.MQTTTopic,
			QoS:      1,
		}, slog.Default())
		if err != nil {
			slog.Warn("mqtt sink disabled", "error", err)
		} else {
			hub.AddSink(sink)
		}
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		sink, err := notify.NewKafkaSink(notify.KafkaConfig{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.KafkaTopic,
		})
		if err != nil {
			slog.Warn("kafka sink disabled", "error", err)
		} else {
			hub.AddSink(sink)
		}
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(st, cfg.Scheduler.PersistSpec, slog.Default())
		if err != nil {
			slog.Error("failed to create scheduler", "spec", cfg.Scheduler.PersistSpec, "error", err)
			os.Exit(1)
		}
		sched.Start()
	}

	bc := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, slog.Default())

	server := web.NewServer(web.Deps{
		Config:   cfg,
		Importer: svc,
		Hub:      hub,
		Backend:  bc,
		Metrics:  mc,
		Logger:   slog.Default(),
	})

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active imports to complete (with timeout)
		status := svc.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := svc.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if sched != nil {
			sched.Stop(shutdownCtx)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		detach()
		if err := hub.Close(); err != nil {
			slog.Warn("event sinks closed with error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
