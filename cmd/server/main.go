package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retailcore/internal/config"
	"retailcore/internal/infra"
	"retailcore/internal/metrics"
	"retailcore/internal/middleware"
	"retailcore/internal/router"
	"retailcore/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger. dev: pretty, prod: JSON
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	metrics.Register(prometheus.DefaultRegisterer)

	db, err := infra.NewDatabase(infra.DatabaseConfig{
		DSN:              cfg.DatabaseURL,
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		StatementTimeout: cfg.StatementTimeout(),
		SlowQuery:        cfg.SlowQueryThreshold(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pool failures are reported, never fatal: requests keep failing fast
	// with ErrDatabaseUnavailable until the database is back.
	go func() {
		for err := range infra.WatchPool(ctx, db, 30*time.Second) {
			log.Error().Str("component", "db_pool").Err(err).Msg("database pool unhealthy")
		}
	}()

	policy := infra.DefaultRetryPolicy()
	if cfg.DBRetryAttempts > 0 {
		policy.MaxAttempts = cfg.DBRetryAttempts
	}
	executor := infra.NewExecutor(db, policy)

	// Event fan-out: Redis job queue → per-tenant pub/sub + Kafka.
	queue := worker.NewRedisQueue(rdb)
	dispatcher := worker.NewDispatcher(queue)

	var (
		sink    worker.EventSink
		breaker *infra.CircuitBreaker
	)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		breaker = infra.NewCircuitBreaker("kafka", infra.DefaultCBConfig())
		publisher := infra.NewEventPublisher(infra.NewKafkaWriter(brokers, cfg.KafkaOrderTopic), breaker)
		defer publisher.Close()
		sink = publisher
	} else {
		log.Warn().Msg("no kafka brokers configured, order events only reach the real-time channel")
	}

	limiter := middleware.NewLimiter(1000, time.Minute) // 1000 req/min per IP
	r := router.New(cfg, router.Deps{
		Executor: executor,
		Redis:    rdb,
		Events:   dispatcher,
		Feed:     infra.NewOrderFeed(rdb),
		Broker:   breaker,
		Limiter:  limiter,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: the SSE stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewPool(queue, sink, cfg.WorkerPoolSize).Run(gctx)
	})
	if sink != nil {
		(&worker.POSSync{DB: executor, Sink: sink, Interval: cfg.POSSyncInterval()}).Start(gctx)
	}
	go limiter.RunPurge(5*time.Minute, gctx.Done())

	g.Go(func() error {
		log.Info().Msgf("retailcore listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown on SIGINT / SIGTERM or a component failure
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server exited")
}
