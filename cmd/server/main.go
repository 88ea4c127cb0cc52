package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/database"
	"github.com/stemsi/wellcheck-backend/internal/handler"
	"github.com/stemsi/wellcheck-backend/internal/logger"
	"github.com/stemsi/wellcheck-backend/internal/repository"
	"github.com/stemsi/wellcheck-backend/internal/router"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stemsi/wellcheck-backend/internal/validator"
	"github.com/stemsi/wellcheck-backend/internal/worker"
)

// sessionLockTTL bounds how long a crashed server keeps a session locked.
const sessionLockTTL = 30 * time.Second

// stores is the storage backend selected by DB_DRIVER.
type stores struct {
	instruments service.InstrumentStore
	students    service.StudentDirectory
	submissions service.SubmissionStore
	events      worker.EventSink
	close       func()
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("driver", cfg.DBDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting WellCheck Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Storage ────────────────────────────────────────────
	st := openStores(ctx, cfg, log)
	defer st.close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// Required alongside PostgreSQL; optional for local SQLite runs.
	var rdb *redis.Client
	if client, err := database.NewRedisClient(ctx, cfg, log); err != nil {
		if cfg.DBDriver != config.DriverSQLite {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		if errors.Is(err, database.ErrRedisNotConfigured) {
			log.Info().Msg("Redis not configured, running without cache and queues")
		} else {
			log.Warn().Err(err).Msg("Redis unavailable, running without cache and queues")
		}
	} else {
		rdb = client
		defer rdb.Close()
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	instrumentService := service.NewInstrumentService(st.instruments, st.submissions, rdb, cfg.InstrumentCacheTTL, log)
	attemptService := service.NewAttemptService(instrumentService, st.students, st.submissions, log)
	analyticsService := service.NewAnalyticsService(instrumentService, st.students, st.submissions, cfg.AnalyticsLocation, log)
	sessionLocks := service.NewSessionLocks(rdb, sessionLockTTL)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	sessionCfg := handler.SessionHandlerConfig{
		TickInterval:   cfg.SessionTickInterval,
		Throttle:       cfg.ActivityThrottle,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if rdb != nil {
		queue := worker.NewQueue(rdb)
		sessionCfg.Events = queue
		sessionCfg.Retries = queue

		eventWorker := worker.NewEventWorker(st.events, rdb, log)
		progressWorker := worker.NewProgressWorker(attemptService, rdb, log)

		workers.Add(2)
		go func() {
			defer workers.Done()
			eventWorker.Start(workerCtx)
		}()
		go func() {
			defer workers.Done()
			progressWorker.Start(workerCtx)
		}()
	} else {
		sessionCfg.Events = handler.EventRecorderFunc(st.events.InsertEvent)
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all active instruments into Redis BEFORE accepting traffic.
	if err := instrumentService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(attemptService, log),
		Session:       handler.NewSessionHandler(attemptService, sessionLocks, sessionCfg, log),
		Instrument:    handler.NewInstrumentHandler(instrumentService, log),
		Analytics:     handler.NewAnalyticsHandler(analyticsService, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, rdb, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// openStores connects the backend named by cfg.DBDriver and exits on failure.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) *stores {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		store, err := database.NewSQLiteStore(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open SQLite store")
		}
		return &stores{
			instruments: store.Instruments(),
			students:    store.Students(),
			submissions: store.Submissions(),
			events:      store.Events(),
			close:       func() { _ = store.Close() },
		}

	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		return &stores{
			instruments: repository.NewInstrumentRepository(pool),
			students:    repository.NewStudentRepository(pool),
			submissions: repository.NewSubmissionRepository(pool),
			events:      repository.NewAttemptEventRepository(pool),
			close:       pool.Close,
		}

	default:
		log.Fatal().Str("driver", cfg.DBDriver).Msg("Unknown DB_DRIVER")
		return nil
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
