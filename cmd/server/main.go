package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"turbine-wpa/internal/cache"
	"turbine-wpa/internal/config"
	"turbine-wpa/internal/engine"
	"turbine-wpa/internal/handlers"
	"turbine-wpa/internal/logger"
	"turbine-wpa/internal/metrics"
	"turbine-wpa/internal/publisher"
	"turbine-wpa/internal/repository"
	"turbine-wpa/internal/worker"
)

const (
	serviceName = "turbine-wpa"
	queueSize   = 64
	jobTimeout  = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting wind turbine performance analysis service...")

	if err := run(cfg, log); err != nil {
		log.Fatal("Service failed", zap.Error(err))
	}
	log.Info("Server stopped gracefully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Инициализация Redis
	redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ResultTTL)
	if err != nil {
		return err
	}
	defer redisCache.Close()
	log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	eng := engine.New(opts, log.Named("engine"))

	deps := handlers.Deps{
		Engine:   eng,
		Cache:    redisCache,
		Location: opts.Location,
	}
	sink := &resultSink{cache: redisCache, logger: log.Named("results")}

	if cfg.Database.Enabled {
		db, err := repository.NewPostgresDB(ctx, cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repository.Migrate(ctx, db); err != nil {
			return err
		}
		samples, results := openStores(db, log)
		deps.Samples, deps.Results = samples, results
		sink.results = results
		log.Info("Connected to Postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))
	}

	if cfg.Kafka.Enabled {
		pub := publisher.New(publisher.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Topic, log.Named("publisher"))
		defer pub.Close()
		deps.Publisher = pub
		sink.publisher = pub
		log.Info("Kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Пул асинхронных расчетов
	pool := worker.NewPool(eng, queueSize, jobTimeout, log.Named("worker"))
	pool.Start(cfg.Engine.Workers)
	deps.Queue = pool

	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.consume(pool.GetResultsChan())
	}()

	stopMetrics := make(chan struct{})
	go updateMetrics(pool, stopMetrics)

	router := mux.NewRouter()
	handlers.NewHandler(deps, log.Named("http")).Register(router)
	router.Handle("/prometheus", promhttp.Handler())

	// Журнал запросов и сжатие ответов; паника в обработчике не роняет сервер
	handler := gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(zap.NewStdLog(log.Named("recovery"))),
	)(gorillahandlers.CompressHandler(gorillahandlers.LoggingHandler(os.Stdout, router)))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("Server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	close(stopMetrics)
	pool.Stop()
	<-done
	return nil
}

func openStores(db *sql.DB, log *zap.Logger) (*repository.SampleStore, *repository.ResultStore) {
	return repository.NewSampleStore(db, log.Named("samples")), repository.NewResultStore(db, log.Named("store"))
}

// resultSink сохраняет итоги асинхронных расчетов
type resultSink struct {
	cache     *cache.RedisCache
	results   *repository.ResultStore
	publisher *publisher.Publisher
	logger    *zap.Logger
}

// consume обрабатывает итоги до закрытия канала
func (s *resultSink) consume(outcomes <-chan worker.Outcome) {
	for out := range outcomes {
		s.handle(out)
	}
}

func (s *resultSink) handle(out worker.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id := out.Job.Request.ComputationID
	if out.Err != nil {
		if err := s.cache.StoreFailure(ctx, id, handlers.FailureFor(out.Err)); err != nil {
			s.logger.Error("Failed to store failure", zap.String("computation_id", id), zap.Error(err))
		}
		return
	}

	if err := s.cache.StoreResult(ctx, out.Job.CacheKey, out.Result); err != nil {
		s.logger.Error("Failed to cache result", zap.String("computation_id", id), zap.Error(err))
	}
	if err := s.cache.IncrementCounter(ctx, cache.DailyCounterKey(time.Now())); err != nil {
		s.logger.Debug("Failed to increment daily counter", zap.Error(err))
	}
	if s.results != nil {
		if err := s.results.SaveResult(ctx, out.Result); err != nil {
			s.logger.Error("Failed to store result", zap.String("computation_id", id), zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, out.Result); err != nil {
			s.logger.Error("Failed to publish result", zap.String("computation_id", id), zap.Error(err))
		}
	}
	s.logger.Info("Async computation finished",
		zap.String("computation_id", id),
		zap.String("turbine_id", out.Result.TurbineID),
		zap.Duration("duration", out.Duration),
	)
}

// updateMetrics периодически обновляет метрики
func updateMetrics(pool *worker.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if queueSize, ok := pool.GetStats()["queue_size"].(int); ok {
				metrics.QueueSize.Set(float64(queueSize))
			}
		}
	}
}
