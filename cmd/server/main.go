package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/resonance/api/internal/client"
	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/handler"
	"github.com/resonance/api/internal/middleware"
	"github.com/resonance/api/internal/progress"
	"github.com/resonance/api/internal/service"
	"github.com/resonance/api/internal/storage"
	"github.com/resonance/api/internal/worker"
	ws "github.com/resonance/api/internal/websocket"
)

func main() {
	// A missing .env is fine; the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to read .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Without redis, job status stays in memory and rate limits are off
	ctx := context.Background()
	stateClient := redisClient
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available, using in-memory job status: %v", err)
		stateClient = nil
	}

	// Initialize cache store
	store, err := storage.NewCacheStore(cfg.Storage.UploadDir, cfg.Storage.ExportDir)
	if err != nil {
		log.Fatalf("Failed to prepare storage: %v", err)
	}

	// Initialize external clients
	runner := client.NewSubprocessRunner()
	ytdlpClient := client.NewYtdlpClient(&cfg.Tools, &cfg.Audio)
	ffprobeClient := client.NewFfprobeClient(runner, &cfg.Tools)
	ffmpegClient := client.NewFfmpegClient(runner, &cfg.Tools)
	groqClient := client.NewGroqClient(&cfg.Groq)
	if !groqClient.IsConfigured() {
		log.Println("Warning: GROQ_API_KEY not set, video analysis is disabled")
	}
	catalogClient := client.NewCatalogClient(&cfg.Catalog)
	if !catalogClient.IsConfigured() {
		log.Println("Warning: SPOTIPY_CLIENT_ID or SPOTIPY_CLIENT_SECRET not set, song matches will be empty")
	}

	// Initialize validator
	validate := handler.NewValidator()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize services
	jobService := service.NewJobService(stateClient)
	searchService := service.NewSearchService(ytdlpClient, &cfg.Search)
	fetcher := service.NewFetcher(ytdlpClient, store)
	instrumentalService := service.NewInstrumentalService(searchService, fetcher, ffprobeClient, store)
	mixEngine := service.NewMixEngine(ffprobeClient, ffmpegClient, store, cfg.Audio.Bitrate)
	exportService := service.NewExportService(instrumentalService, mixEngine, store)
	uploadService := service.NewUploadService(store)
	analysisService := service.NewAnalysisService(ffmpegClient, groqClient, groqClient, catalogClient)

	// Every job also reports to websocket subscribers and the status store
	jobRunner := worker.NewJobRunner(&cfg.Jobs,
		func(jobID, _ string) progress.Sink { return hub.JobSink(jobID) },
		jobService.Sink,
	)

	// Initialize handlers
	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	instrumentalHandler := handler.NewInstrumentalHandler(instrumentalService, jobRunner, validate)
	exportHandler := handler.NewExportHandler(exportService, jobRunner, validate)
	analyzeHandler := handler.NewAnalyzeHandler(analysisService, uploadService, jobRunner, validate)
	jobsHandler := handler.NewJobsHandler(jobService)
	healthHandler := handler.NewHealthHandler(&cfg.Tools, stateClient)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(stateClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", healthHandler.Check)

	// API routes
	api := app.Group("/api")

	// Video routes
	api.Post("/videos", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Submit)
	api.Delete("/videos/:videoId", uploadHandler.Delete)

	// Instrumental routes
	api.Post("/instrumentals/search", rateLimiter.SearchLimit(cfg.RateLimit.SearchPerHour), instrumentalHandler.Search)
	api.Get("/instrumentals/:id", instrumentalHandler.Audio)

	// Export routes
	api.Post("/exports", rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour), exportHandler.Start)
	api.Get("/exports/:id", exportHandler.Download)

	// Analyze routes
	api.Post("/analyze", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), analyzeHandler.Analyze)
	api.Post("/analyze/reroll", rateLimiter.SearchLimit(cfg.RateLimit.SearchPerHour), analyzeHandler.Reroll)

	// Job routes
	api.Get("/jobs/:jobId", jobsHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", func(c *fiber.Ctx) error {
		if !storage.IsValidID(c.Params("jobId")) {
			return fiber.ErrNotFound
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Cache retention runs on asynq
	sweepWorker := worker.NewSweepWorker(store, cfg.Storage.MaxAge)
	if err := sweepWorker.ProcessTask(ctx, worker.NewSweepTask()); err != nil {
		log.Printf("Warning: startup sweep failed: %v", err)
	}
	workerServer, scheduler := startWorkerServer(cfg, sweepWorker)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	// Let running jobs finish so no partial files are left behind
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := jobRunner.Wait(waitCtx); err != nil {
		log.Printf("Jobs still running at shutdown: %v", err)
	}
	scheduler.Shutdown()
	workerServer.Shutdown()
	_ = redisClient.Close()
}

func startWorkerServer(cfg *config.Config, sweepWorker *worker.SweepWorker) (*asynq.Server, *asynq.Scheduler) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			worker.QueueMaintenance: 1,
		},
		LogLevel: asynqLogLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeSweep, sweepWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{LogLevel: asynqLogLevel})
	if _, err := worker.RegisterSweep(scheduler, cfg.Storage.SweepInterval); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Printf("Asynq scheduler error: %v", err)
	}

	return srv, scheduler
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := "SERVICE_ERROR"
	if code == fiber.StatusNotFound {
		errCode = "NOT_FOUND"
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    errCode,
			"message": message,
		},
	})
}
