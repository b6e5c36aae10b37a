package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/config"
	"github.com/tagsentry/tagsentry/internal/edge/adapter"
	"github.com/tagsentry/tagsentry/internal/edge/queue"
	edgesync "github.com/tagsentry/tagsentry/internal/edge/sync"
	"github.com/tagsentry/tagsentry/internal/logger"
)

func main() {
	cfg, err := config.LoadEdge()
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

	log.Info("Starting edge agent",
		zap.String("reader_id", cfg.ReaderID),
		zap.String("server_url", cfg.ServerURL))

	q, err := queue.Open(cfg.DBPath, cfg.QueueCapacity, log)
	if err != nil {
		log.Fatal("Failed to open durable queue", zap.Error(err))
	}
	defer func() {
		if err := q.Close(); err != nil {
			log.Error("Failed to close queue", zap.Error(err))
		}
	}()

	client := edgesync.NewClient(cfg.ServerURL, cfg.ReaderID,
		time.Duration(cfg.SendTimeoutSec)*time.Second, log)

	syncer := edgesync.NewSyncer(q, client, edgesync.SyncerConfig{
		BatchSize: cfg.SendBatchSize,
		Interval:  time.Duration(cfg.SendIntervalSec) * time.Second,
	}, log)

	// Vendor adapters are linked in per deployment; the stock binary
	// ships with the replay source for simulation and soak runs.
	if cfg.ReplayFile == "" {
		log.Fatal("No event source configured, set EDGE_REPLAY_FILE or build with a vendor adapter")
	}
	source, err := adapter.NewReplay(cfg.ReplayFile, cfg.ReaderID, 0)
	if err != nil {
		log.Fatal("Failed to open replay source", zap.Error(err))
	}
	defer source.Close()

	pump := adapter.NewPump(source, q, syncer.Notify, log)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		syncer.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		if err := pump.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Adapter pump stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down edge agent")
	cancel()
	wg.Wait()
	log.Info("Edge agent stopped")
}
