package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/config"
	"github.com/tagsentry/tagsentry/internal/engine"
	"github.com/tagsentry/tagsentry/internal/handler"
	"github.com/tagsentry/tagsentry/internal/logger"
	"github.com/tagsentry/tagsentry/internal/relay"
	"github.com/tagsentry/tagsentry/internal/repository/sqlite"
	"github.com/tagsentry/tagsentry/internal/service"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		if err := log.Sync(); err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting central decision server",
		zap.String("environment", cfg.Environment),
		zap.String("listen_addr", cfg.ListenAddr))

	// Snapshot tables; any failure here is fatal before processing.
	whitelist, err := config.LoadWhitelist(cfg.WhitelistFile)
	if err != nil {
		log.Fatal("Failed to load whitelist", zap.Error(err))
	}
	schedules, err := config.LoadSchedules(cfg.SchedulesFile)
	if err != nil {
		log.Fatal("Failed to load schedules", zap.Error(err))
	}
	relayMap, err := config.LoadRelayMap(cfg.RelayMapFile)
	if err != nil {
		log.Fatal("Failed to load relay map", zap.Error(err))
	}
	log.Info("Snapshot tables loaded",
		zap.Int("whitelist_tags", len(whitelist)),
		zap.Int("scheduled_readers", len(schedules)),
		zap.Int("mapped_readers", len(relayMap)))

	ctx := context.Background()

	repo, err := sqlite.Open(cfg.DBPath, cfg.MaxEvents, log)
	if err != nil {
		log.Fatal("Failed to open event store", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("Failed to close event store", zap.Error(err))
		}
	}()

	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}

	pulseDuration := time.Duration(cfg.RelayPulseSec * float64(time.Second))
	actuator := relay.NewActuator(relay.DeviceOpener(cfg.RelayDevice), pulseDuration, log)
	defer actuator.Close()

	dedupWindow := time.Duration(cfg.DedupWindowSec) * time.Second
	eng := engine.New(whitelist, schedules, relayMap, actuator, engine.Config{
		DedupWindow:  dedupWindow,
		IgnoreLate:   time.Duration(cfg.IgnoreLateSec) * time.Second,
		RelayEnabled: cfg.RelayEnabled,
	}, log)

	// Rehydrate dedup state so a restart inside the window cannot
	// re-fire on a replayed batch.
	if dedupWindow > 0 {
		keys, err := repo.LastOKByKey(ctx, dedupWindow)
		if err != nil {
			log.Fatal("Failed to seed dedup state", zap.Error(err))
		}
		for _, k := range keys {
			eng.SeedDedup(k.ReaderID, k.Tag, k.ReceivedAt)
		}
		log.Info("Dedup state seeded", zap.Int("keys", len(keys)))
	}

	ingest := service.NewIngestService(eng, repo, service.RetryConfig{
		MaxAttempts: cfg.StoreRetryMax,
		BaseDelay:   time.Duration(cfg.StoreRetryBaseMS) * time.Millisecond,
	}, log)

	h := handler.NewHandler(ingest, log)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h,
	}

	go func() {
		log.Info("API server starting", zap.String("address", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down, draining in-flight requests")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	log.Info("Server stopped")
}
