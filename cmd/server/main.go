package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/contactcopilof/APPLI-VIDEO/internal/asset"
	"github.com/contactcopilof/APPLI-VIDEO/internal/client"
	"github.com/contactcopilof/APPLI-VIDEO/internal/config"
	"github.com/contactcopilof/APPLI-VIDEO/internal/handler"
	"github.com/contactcopilof/APPLI-VIDEO/internal/keygate"
	"github.com/contactcopilof/APPLI-VIDEO/internal/logger"
	"github.com/contactcopilof/APPLI-VIDEO/internal/middleware"
	"github.com/contactcopilof/APPLI-VIDEO/internal/service"
	ws "github.com/contactcopilof/APPLI-VIDEO/internal/websocket"
	"github.com/contactcopilof/APPLI-VIDEO/internal/worker"
	"github.com/contactcopilof/APPLI-VIDEO/internal/workflow"
	"github.com/contactcopilof/APPLI-VIDEO/pkg/response"
)

// dispatchMargin is added to the polling budget so the queue timeout never
// fires before the client reports its own timeout.
const dispatchMargin = time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "copilof-video",
	})
	log := logger.Named("main")

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not available")
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize validator
	validate := handler.Validator()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Assets and key selection
	previews := asset.NewPreviews()
	encoder := asset.NewEncoder(previews)

	keyHost := keygate.NewConfigHost(cfg.Gemini.APIKey, config.LoadAPIKey)
	gate := keygate.New(keyHost)
	if !gate.HasKey(ctx) {
		log.Warn().Msg("no Gemini API key configured, generation stays locked until one is selected")
	}

	// Workflow
	veo := client.NewVeoClient(&cfg.Gemini, &cfg.Generation, keyHost, client.NewGenAIBackendFactory(nil))
	ctrl := workflow.New(veo, gate, previews, cfg.Generation.DefaultPrompt)
	store := service.NewJobStore(redisClient, cfg.Status.TTL)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	runTimeout := cfg.Generation.MaxWait + dispatchMargin
	var dispatcher service.Dispatcher
	var asynqClient *asynq.Client
	if cfg.Worker.Mode == config.WorkerModeInline {
		dispatcher = worker.NewInlineDispatcher(workerCtx, ctrl, runTimeout)
	} else {
		asynqClient = asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = service.NewAsynqDispatcher(asynqClient, runTimeout)
	}

	studioService := service.NewStudioService(ctrl, store, hub, dispatcher, gate,
		service.WithClaimTimeout(cfg.Worker.ClaimTimeout))

	// Initialize handlers
	assetHandler := handler.NewAssetHandler(studioService, encoder, previews, validate, cfg.Upload.MaxSize)
	keyHandler := handler.NewKeyHandler(gate)
	generateHandler := handler.NewGenerateHandler(studioService, validate)
	healthHandler := handler.NewHealthHandler(gate, redisClient)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Upload.MaxSize)*2 + 1024*1024, // data URIs inflate by a third
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${status} - ${latency} ${method} ${path}\n",
		Output: logger.Named("http"),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", healthHandler.Check)
	app.Get("/previews/:id", assetHandler.Preview)

	// API routes
	api := app.Group("/api")

	// Asset routes
	assets := api.Group("/assets")
	assets.Post("/:role", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), assetHandler.Upload)
	assets.Delete("/:role", assetHandler.Clear)

	// Key routes
	api.Get("/key", keyHandler.Status)
	api.Post("/key/select", keyHandler.Select)

	// Prompt routes
	api.Get("/prompt", generateHandler.GetPrompt)
	api.Put("/prompt", generateHandler.SetPrompt)

	// Generation routes
	api.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generateHandler.Start)
	api.Get("/generate/status", generateHandler.Status)
	api.Get("/generate/status/:jobId", generateHandler.JobStatus)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Start Asynq worker server
	if asynqClient != nil {
		go startWorkerServer(cfg, redisOpt, ctrl)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		stopWorkers()
		hub.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		studioService.Close()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("worker_mode", cfg.Worker.Mode).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, exec worker.Executor) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				service.QueueGeneration: 1,
			},
			Logger:   logger.NewAsynqLogger(logger.Named("asynq")),
			LogLevel: logger.AsynqLevel(cfg.Log.Level),
		},
	)

	generationWorker := worker.NewGenerationWorker(exec)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGeneration, generationWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		logger.Named("asynq").Error().Err(err).Msg("asynq worker error")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		logger.Named("http").Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
