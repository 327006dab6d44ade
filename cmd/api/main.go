package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"honeypot-lab/internal/api"
	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/services/callback"
	"honeypot-lab/internal/domain/services/detection"
	"honeypot-lab/internal/domain/services/engagement"
	"honeypot-lab/internal/domain/services/intel"
	"honeypot-lab/internal/domain/services/persona"
	grpcserver "honeypot-lab/internal/grpc/honeypot"
	"honeypot-lab/internal/infrastructure/cache"
	"honeypot-lab/internal/infrastructure/database"
	"honeypot-lab/internal/infrastructure/database/repository"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.New(logger.Config{
			Level:      cfg.Logger.Level,
			Format:     cfg.Logger.Format,
			TimeFormat: cfg.Logger.TimeFormat,
		})
	}
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Str("llm_provider", cfg.Persona.Provider).
		Int("max_turns", cfg.Engagement.MaxTurns).
		Msg("starting honeypot")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	db, redisCache := initInfrastructure(ctx, cfg, log)
	defer func() {
		if db != nil {
			db.Close()
		}
		if redisCache != nil {
			redisCache.Close()
		}
	}()

	// Initialize streaming infrastructure
	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing with local events only")
			natsPublisher = nil
		}
	}

	eventBus := streaming.NewEventBus(natsPublisher, log)
	defer eventBus.Close()
	if err := eventBus.RelayRemote(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to relay remote events")
	}
	log.Info().Bool("nats_enabled", natsPublisher != nil).Msg("event bus initialized")

	wsHub := streaming.NewWebSocketHub(log)
	dashboardFeed, stopDashboardFeed := eventBus.Subscribe(nil)
	defer stopDashboardFeed()
	go wsHub.Run(ctx, dashboardFeed)

	// Report delivery
	var dispatcherOpts []callback.DispatcherOption
	var reportRepo *repository.ReportRepository
	if db != nil {
		reportRepo = repository.NewReportRepository(db.Pool())
		dispatcherOpts = append(dispatcherOpts, callback.WithStore(reportRepo))
	}
	if redisCache != nil {
		dispatcherOpts = append(dispatcherOpts, callback.WithArchive(redisCache))
	}

	callbackClient := callback.NewClient(callback.ClientConfig{
		URL:         cfg.Callback.URL,
		MaxAttempts: cfg.Callback.MaxAttempts,
		BaseDelay:   cfg.Callback.BaseDelay,
		Timeout:     cfg.Callback.Timeout,
	}, log)
	dispatcher := callback.NewDispatcher(callbackClient, callback.DispatcherConfig{
		WorkerCount: cfg.Callback.Workers,
		QueueSize:   cfg.Callback.QueueSize,
	}, log, dispatcherOpts...)

	// Persona
	var llm persona.Chatter
	if cfg.Persona.Enabled {
		llm = persona.NewLLMClient(persona.LLMConfig{
			Provider:     cfg.Persona.Provider,
			GoogleAPIKey: cfg.Persona.GoogleAPIKey,
			ClaudeAPIKey: cfg.Persona.ClaudeAPIKey,
			OpenAIAPIKey: cfg.Persona.OpenAIAPIKey,
			Model:        cfg.Persona.Model,
			Temperature:  cfg.Persona.Temperature,
			MaxTokens:    cfg.Persona.MaxTokens,
			Timeout:      cfg.Persona.Timeout,
		}, log)
	}
	generator := persona.NewGenerator(llm, persona.GeneratorConfig{
		HistoryWindow:  cfg.Engagement.HistoryWindow,
		MaxReplyLength: cfg.Persona.MaxReplyLength,
	}, log)

	// Engagement pipeline
	service := engagement.NewService(
		engagement.NewRegistry(cfg.Engagement.LockShards),
		detection.NewDetector(cfg.Detection.ScamThreshold, log),
		intel.NewExtractor(log),
		engagement.Policy{
			MaxTurns:       cfg.Engagement.MaxTurns,
			MinTurnsForEnd: cfg.Engagement.MinTurnsForEnd,
		},
		log,
		engagement.WithPersona(generator),
		engagement.WithReportSink(dispatcher),
		engagement.WithEventPublisher(streaming.NewEventBusPublisher(eventBus)),
	)

	// Initialize handlers
	deps := handlers.Dependencies{
		Service:  service,
		Sessions: service.Registry(),
		WSHub:    wsHub,
		EventBus: eventBus,
		Name:     cfg.App.Name,
		Version:  cfg.App.Version,
		Logger:   log,
	}
	var limiter apimiddleware.RateLimitChecker
	if reportRepo != nil {
		deps.Reports = reportRepo
		deps.DB = db
	}
	if redisCache != nil {
		deps.Archive = redisCache
		deps.Cache = redisCache
		limiter = redisCache
	}
	h := handlers.NewHandlers(deps)

	// Create router
	router := api.NewRouter(*cfg, h, limiter, log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC health server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}

	grpcServer := grpc.NewServer()
	healthDeps := map[string]grpcserver.Pinger{}
	if db != nil {
		healthDeps["postgres"] = db
	}
	if redisCache != nil {
		healthDeps["redis"] = redisCache
	}
	healthChecker := grpcserver.NewHealthChecker(healthDeps, grpcserver.DefaultCheckInterval, log)
	healthChecker.Register(grpcServer)
	go healthChecker.Run(ctx)

	go func() {
		log.Info().
			Str("addr", grpcListener.Addr().String()).
			Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Cancel context to stop background services
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Deliver reports already queued before the stores close
	dispatcher.Stop()

	log.Info().Int("active_sessions", service.Registry().Count()).Msg("shutdown complete")
}

// initInfrastructure connects the optional stores. Failures degrade to
// running without the store rather than aborting startup.
func initInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.PostgresDB, *cache.RedisCache) {
	var db *database.PostgresDB
	if cfg.Database.Enabled {
		var err error
		db, err = database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to PostgreSQL, continuing without report persistence")
			db = nil
		} else if err := db.EnsureSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to apply schema, continuing without report persistence")
			db.Close()
			db = nil
		}
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		var err error
		redisCache, err = cache.NewRedis(ctx, cfg.Redis, cfg.Reports.CacheTTL, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without archive and rate limiting")
			redisCache = nil
		}
	}

	return db, redisCache
}
