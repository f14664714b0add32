package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bankmail/internal/processor"
	"bankmail/internal/queue"
	"bankmail/pkg/config"
	"bankmail/pkg/logger"
	"bankmail/pkg/mq"
	"bankmail/pkg/redisclient"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	log := logger.New()
	defer log.Sync()

	log.Info("Starting email automation worker...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.New(cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	// The event bus is optional; without a broker URL the processor simply
	// skips publishing.
	var events processor.EventPublisher
	if cfg.MQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init event publisher", zap.Error(err))
		}
		defer publisher.Close()
		events = publisher
		log.Info("Event publisher initialized", zap.String("exchange", mq.ExchangeName))
	}

	standalone := processor.NewStandalone(cfg, events, log)

	q := queue.NewQueue(rdb, queue.EmailProcessingQueue, log)
	worker := queue.NewWorker(q, log)
	worker.Register(queue.FuncProcessUserEmails, func(ctx context.Context, userID int) (any, error) {
		return standalone.Run(ctx, userID), nil
	})

	go serveMetrics(cfg.Server.MetricsPort, log)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Worker failed", zap.Error(err))
	}
	log.Info("Worker shut down")
}

func serveMetrics(port string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info("Metrics listener starting", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Error("Metrics listener failed", zap.Error(err))
	}
}
