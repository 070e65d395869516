package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joseph-ayodele/receipt-analyzer/internal/app"
	"github.com/joseph-ayodele/receipt-analyzer/internal/async"
	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/server"
	"github.com/joseph-ayodele/receipt-analyzer/internal/telemetry"
	"github.com/joseph-ayodele/receipt-analyzer/internal/trigger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	comps, cleanup, err := app.NewOrchestrator(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to wire pipeline", "error", err)
		return 1
	}
	defer cleanup()

	queue := async.NewProcessorQueue(comps.Orchestrator,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Pipeline.DocumentDeadline+30*time.Second),
		async.WithLogger(logger),
	)

	var wg sync.WaitGroup
	goRun := func(name string, f func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("component stopped", "component", name, "error", err)
				stop()
			}
		}()
	}

	enqueue := func(ctx context.Context, ref string) error {
		return queue.Enqueue(ctx, ref)
	}

	triggers := 0
	if len(cfg.Trigger.KafkaBrokers) > 0 {
		consumer, err := trigger.NewKafkaConsumer(trigger.KafkaConfig{
			Brokers: cfg.Trigger.KafkaBrokers,
			Topic:   cfg.Trigger.KafkaTopic,
			GroupID: cfg.Trigger.KafkaGroupID,
		}, trigger.NewFilter(cfg.Trigger.Prefix), enqueue, logger)
		if err != nil {
			logger.Error("failed to create kafka consumer", "error", err)
			return 1
		}
		defer func() {
			if err := consumer.Close(); err != nil {
				logger.Warn("kafka consumer close failed", "error", err)
			}
		}()
		goRun("kafka", consumer.Run)
		triggers++
	}
	if len(cfg.Trigger.WatchDirs) > 0 {
		w := trigger.NewWatcher(trigger.WatchConfig{
			Roots:       cfg.Trigger.WatchDirs,
			InitialScan: cfg.Trigger.InitialScan,
			Debounce:    cfg.Trigger.WatchDebounce,
			Logger:      logger,
		}, enqueue)
		goRun("watcher", w.Run)
		triggers++
	}
	if triggers == 0 {
		logger.Warn("no triggers configured; set KAFKA_BROKERS or WATCH_DIRS")
	}

	ops := server.NewOps(server.OpsConfig{
		Addr:     cfg.Server.HTTPAddr,
		Gatherer: reg,
		Store:    comps.Store,
		Queue:    queue,
		Logger:   logger,
	})
	goRun("http", ops.Run)

	health := server.NewHealth(comps.Store, 10*time.Second, logger)
	goRun("grpc", func(ctx context.Context) error { return health.Serve(ctx, cfg.Server.GRPCAddr) })

	logger.Info("receiptd started",
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"workers", cfg.Queue.Workers,
		"store", cfg.Store.Driver,
		"source", cfg.Source.Kind,
	)

	<-ctx.Done()
	logger.Info("shutting down...")
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.DocumentDeadline)
	defer cancel()
	if err := queue.Shutdown(drainCtx); err != nil {
		logger.Warn("queue did not drain", "error", err)
	}
	logger.Info("stopped")
	return 0
}
