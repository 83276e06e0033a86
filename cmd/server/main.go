package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/bus"
	"github.com/pixelmuse/api/internal/config"
	"github.com/pixelmuse/api/internal/handler"
	"github.com/pixelmuse/api/internal/ledger"
	"github.com/pixelmuse/api/internal/pipeline"
	"github.com/pixelmuse/api/internal/provider"
	"github.com/pixelmuse/api/internal/service"
	"github.com/pixelmuse/api/internal/store"
	"github.com/pixelmuse/api/internal/template"
	ws "github.com/pixelmuse/api/internal/websocket"
	"github.com/pixelmuse/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := buildLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection; without Redis the queue is dead, so fall
	// back to in-memory state only for local development.
	ctx := context.Background()
	redisUp := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisUp = false
		zlog.Warn("redis not available, using in-memory state (jobs will not survive restarts)",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	var jobStore store.JobStore
	var creditLedger ledger.Ledger
	var catalog template.Catalog
	if redisUp {
		jobStore = store.NewRedisStore(redisClient, cfg.Pipeline.JobTTL)
		creditLedger = ledger.NewRedisLedger(redisClient)
		catalog = template.NewRedisCatalog(redisClient, cfg.Pipeline.DefaultTemplateID)
	} else {
		jobStore = store.NewMemoryStore(cfg.Pipeline.JobTTL)
		creditLedger = ledger.NewMemoryLedger()
		catalog = template.NewMemoryCatalog(cfg.Pipeline.DefaultTemplateID)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Progress bus and WebSocket hub
	progressBus := bus.New(zlog)
	hub := ws.NewHub(progressBus, zlog)

	// Provider clients behind the failover adapter
	flux := provider.NewFluxClient(&cfg.Providers.Flux, cfg.Providers.CallTimeout, zlog)
	stable := provider.NewStableClient(&cfg.Providers.Stable, cfg.Providers.CallTimeout, zlog)
	vision := provider.NewVisionClient("vision", &cfg.Providers.Vision, cfg.Providers.CallTimeout, zlog)
	visionFallback := vision
	if cfg.Providers.VisionFallback.BaseURL != "" {
		visionFallback = provider.NewVisionClient("vision-fallback", &cfg.Providers.VisionFallback, cfg.Providers.CallTimeout, zlog)
	}
	providers := provider.NewAdapter(flux, stable, vision, visionFallback, cfg.Providers.CallTimeout, zlog)
	downloader := provider.NewDownloader(cfg.Providers.CallTimeout, cfg.Providers.DownloadMaxBytes, zlog)

	// Pipeline engine and services
	engine := pipeline.New(jobStore, creditLedger, progressBus, providers, downloader, catalog, cfg.Pipeline, zlog)
	jobService := service.NewJobService(jobStore, asynqClient, cfg.Pipeline, zlog)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Owner-ID",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "redis": redisUp})
	})

	// API routes
	api := app.Group("/api")

	jobs := api.Group("/jobs")
	jobs.Post("/generate", jobHandler.Generate)
	jobs.Post("/analyze", jobHandler.Analyze)
	jobs.Get("/:jobId", jobHandler.Status)
	jobs.Get("/:jobId/result", jobHandler.Result)
	jobs.Post("/:jobId/cancel", jobHandler.Cancel)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, engine, asynqClient, zlog)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("server shutdown error", zap.Error(err))
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	zlog.Info("server starting", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func startWorkerServer(cfg *config.Config, engine *pipeline.Engine, asynqClient *asynq.Client, zlog *zap.Logger) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Pipeline.Concurrency,
			Queues: map[string]int{
				worker.QueueGeneration: cfg.Pipeline.GenerationQueueWeight,
				worker.QueueAnalysis:   cfg.Pipeline.AnalysisQueueWeight,
			},
		},
	)

	w := worker.New(engine, asynqClient, zlog)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeGeneration, w.ProcessTask)
	mux.HandleFunc(worker.TaskTypeAnalysis, w.ProcessTask)

	if err := srv.Run(mux); err != nil {
		zlog.Error("asynq worker error", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
