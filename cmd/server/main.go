package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/infinitystory/humanstudy/internal/client"
	"github.com/infinitystory/humanstudy/internal/config"
	"github.com/infinitystory/humanstudy/internal/evalconfig"
	"github.com/infinitystory/humanstudy/internal/metrics"
	"github.com/infinitystory/humanstudy/internal/middleware"
	"github.com/infinitystory/humanstudy/internal/relay"
	"github.com/infinitystory/humanstudy/internal/server"
	"github.com/infinitystory/humanstudy/internal/service"
	"github.com/infinitystory/humanstudy/internal/store"
	ws "github.com/infinitystory/humanstudy/internal/websocket"
	"github.com/infinitystory/humanstudy/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Server)

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	redisUp := redisClient.Ping(ctx).Err() == nil
	if !redisUp {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis not available")
	}

	// Snapshot store
	var (
		snapshots store.Store
		pinger    server.Pinger
	)
	switch cfg.Store.Driver {
	case "memory":
		snapshots = store.NewMemoryStore()
	default:
		rs := store.NewRedisStore(redisClient, cfg.Store.Prefix)
		snapshots, pinger = rs, rs
	}

	// Initialize Asynq client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize validator
	validate := validator.New()

	// Evaluation configuration; a failure here is served as CONFIG_ERROR
	loader := evalconfig.NewLoader(
		evalconfig.Resolvers(cfg.Evaluation.Sources, time.Duration(cfg.Evaluation.FetchTimeout)*time.Second),
		validate,
	)
	evalCfg, cfgErr := loader.Load(ctx)
	if cfgErr != nil {
		log.Error().Err(cfgErr).Strs("sources", cfg.Evaluation.Sources).Msg("evaluation configuration unavailable")
	} else {
		log.Info().Int("papers", len(evalCfg.Papers)).Int("clips", len(evalCfg.EvaluationClips)).Msg("evaluation configuration loaded")
	}

	// Result relay
	var enq relay.Enqueuer
	if cfg.Relay.Mode == "queue" {
		enq = asynqClient
	}
	forwarders := relay.NewForwarders(cfg.Relay, enq, m)

	// Optional R2 storage for uploaded exports
	var storage client.StorageClient
	r2Client, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Info().Err(err).Msg("R2 disabled, exports are served inline")
	} else {
		storage = r2Client
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize services
	sessionService := service.NewSessionService(evalCfg, cfgErr, snapshots, forwarders, hub, m, service.SessionSettings{
		ReferenceMethod: cfg.Evaluation.ReferenceMethod,
		Comparisons:     cfg.Evaluation.Comparisons,
		ClipBase:        cfg.Evaluation.ClipBase,
		WholisticClips:  cfg.Evaluation.WholisticClips,
	})
	exportService := service.NewExportService(sessionService, storage, m)
	reg.MustRegister(metrics.NewSessionCollector(sessionService))

	var metricsHandler fiber.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	var limiterClient *redis.Client
	if redisUp {
		limiterClient = redisClient
	}

	app := server.New(server.Deps{
		Config:      cfg,
		Sessions:    sessionService,
		Exports:     exportService,
		Hub:         hub,
		RateLimiter: middleware.NewRateLimiter(limiterClient),
		Validate:    validate,
		Store:       pinger,
		Services: fiber.Map{
			"comparisonRelay": forwarders.Comparison.Enabled(),
			"reviewRelay":     forwarders.Review.Enabled(),
			"r2":              storage != nil,
		},
		Metrics: metricsHandler,
	})

	// Start Asynq worker server for queued relays
	var workerSrv *asynq.Server
	if cfg.Relay.Mode == "queue" {
		workerSrv = newWorkerServer(cfg, redisOpt)
		startWorkerServer(workerSrv, cfg, m)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		forwarders.Wait()
		if workerSrv != nil {
			workerSrv.Shutdown()
		}
		hub.Stop()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func setupLogging(cfg config.ServerConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				relay.QueueRelay: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)
}

func startWorkerServer(srv *asynq.Server, cfg *config.Config, m *metrics.Metrics) {
	relayWorker := worker.NewRelayWorker(worker.SheetsSinks(time.Duration(cfg.Relay.Timeout)*time.Second), m)

	mux := asynq.NewServeMux()
	mux.HandleFunc(relay.TaskTypeRelay, relayWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
}
