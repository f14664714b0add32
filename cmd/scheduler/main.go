package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bankmail/internal/queue"
	"bankmail/internal/repository"
	"bankmail/internal/scheduler"
	"bankmail/pkg/config"
	"bankmail/pkg/db"
	"bankmail/pkg/logger"
	"bankmail/pkg/metrics"
	"bankmail/pkg/redisclient"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	log := logger.New()
	defer log.Sync()

	log.Info("Starting email automation scheduler...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Database initialization failed", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redisclient.New(cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	q := queue.NewQueue(rdb, queue.EmailProcessingQueue, log)
	inspector := queue.NewInspector(q, log)
	configRepo := repository.NewEmailConfigRepository(pool)

	sched := scheduler.NewEmailScheduler(configRepo, q, inspector, log)

	go serveMetrics(cfg.Server.MetricsPort, log)

	interval := time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
	log.Info("Scheduler loop starting", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runPass(ctx, sched, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduler shutting down")
			return
		case <-ticker.C:
			runPass(ctx, sched, log)
		}
	}
}

func runPass(ctx context.Context, sched *scheduler.EmailScheduler, log *zap.Logger) {
	log.Info("Running scheduling pass")
	sched.ScheduleJobs(ctx)
	metrics.IncrementSchedulerRun()
}

func serveMetrics(port string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info("Metrics listener starting", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Error("Metrics listener failed", zap.Error(err))
	}
}
