package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/judge"
	"github.com/stemsi/exstem-assessment/internal/lock"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/router"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
	"github.com/stemsi/exstem-assessment/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("lock", cfg.LockDriver).
		Msg("Starting Assessment Engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	var sessions service.SessionStore
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory session store; sessions are lost on restart")
		sessions = repository.NewMemorySessionRepository()
	default:
		sessions = repository.NewSessionRepository(pool)
	}
	invitationRepo := repository.NewInvitationRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

	// ─── Initialize Collaborators ──────────────────────────────────────
	var locker lock.Locker
	switch cfg.LockDriver {
	case config.DriverRedis:
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	default:
		locker = lock.NewKeyedMutex()
	}

	executor := judge.NewHTTPExecutor(judge.HTTPExecutorConfig{
		BaseURL:      cfg.JudgeURL,
		Timeout:      cfg.JudgeTimeout,
		MaxRetries:   cfg.JudgeMaxRetries,
		RetryBackoff: cfg.JudgeRetryBackoff,
	}, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	catalogService := service.NewCatalogService(catalogRepo, rdb, cfg.CatalogTTL, log)
	sessionService := service.NewSessionService(service.SessionDeps{
		Sessions:    sessions,
		Invitations: invitationRepo,
		Catalog:     catalogService,
		Executor:    executor,
		Locker:      locker,
		Sink:        worker.NewViolationQueue(rdb),
		Policy:      service.ViolationPolicy{Threshold: cfg.ViolationThreshold},
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Assessment: handler.NewAssessmentHandler(sessionService, log),
		WS:         handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	sweeper := worker.NewExpirySweeper(sessionService, cfg.SweeperSpec, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		violationWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		if err := sweeper.Start(workerCtx); err != nil {
			log.Error().Err(err).Str("schedule", cfg.SweeperSpec).Msg("Expiry sweeper disabled")
		}
	}()

	limiterStop := make(chan struct{})
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, time.Minute)
	submitLimiter.StartCleanup(limiterStop)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load open tests into Redis BEFORE accepting traffic so the first
	// wave of starts does not stampede the catalog tables.
	if err := catalogService.PrewarmOpen(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, submitLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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

	// 1. Stop accepting new HTTP requests. In-flight submissions may be
	// waiting on the judge, so allow for one judge timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.JudgeTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(limiterStop)

	// 2. Stop background workers and wait for the violation buffer to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
