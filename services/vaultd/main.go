package vaultd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"fracvault/config"
	"fracvault/core"
	"fracvault/core/events"
	vaultstate "fracvault/core/state"
	"fracvault/native/oracle"
	"fracvault/observability"
	"fracvault/observability/logging"
	telemetry "fracvault/observability/otel"
	"fracvault/services/vaultd/journal"
	vaultmw "fracvault/services/vaultd/middleware"
	"fracvault/storage"
)

// Main runs the vault daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vaultd.toml", "path to vaultd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger := logging.Setup("vaultd", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vaultd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	market, err := buildOracle(cfg.Oracle)
	if err != nil {
		return fmt.Errorf("build oracle: %w", err)
	}

	var (
		journalDB *gorm.DB
		sink      *journal.Journal
	)
	if dsn := strings.TrimSpace(cfg.JournalDSN); dsn != "" {
		journalDB, err = journal.Open(dsn)
		if err != nil {
			return err
		}
		sink = journal.New(journalDB, logger)
		if sqlDB, err := journalDB.DB(); err == nil {
			defer sqlDB.Close()
		}
	}

	emitter := events.Fanout{events.LogEmitter{Logger: logger}}
	if sink != nil {
		emitter = append(emitter, sink)
	}

	metrics := observability.Vault()
	node, err := core.NewNode(vaultstate.NewManager(db), cfg.Params(),
		core.WithOracle(market),
		core.WithEmitter(emitter),
		core.WithLogger(logger),
		core.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}
	if cfg.Pauses.Vault {
		node.SetPaused(true)
		logger.Warn("vault module paused by configuration")
	}

	server, err := NewServer(ServerConfig{
		Node:    node,
		Journal: sink,
		DB:      journalDB,
		RateLimit: vaultmw.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Metrics:    metrics,
		Logger:     logger,
		AdminToken: cfg.AdminToken,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server, "vaultd"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("backend", cfg.DBBackend),
			slog.Int64("escrow_period_seconds", cfg.Vault.EscrowPeriodSeconds),
			slog.Int64("reclaim_expiry_seconds", cfg.Vault.ReclaimExpirySeconds),
		)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.DBBackend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(cfg.DBPath())
	default:
		return storage.NewLevelDB(cfg.DBPath())
	}
}

func buildOracle(cfg config.Oracle) (oracle.Oracle, error) {
	var (
		source oracle.Oracle
		err    error
	)
	if url := strings.TrimSpace(cfg.URL); url != "" {
		source, err = oracle.NewHTTP(nil, url)
	} else {
		source, err = oracle.LoadStatic(cfg.FeedPath)
	}
	if err != nil {
		return nil, err
	}
	if cfg.MaxAgeSeconds > 0 {
		return oracle.NewFresh(source, time.Duration(cfg.MaxAgeSeconds)*time.Second), nil
	}
	return source, nil
}
