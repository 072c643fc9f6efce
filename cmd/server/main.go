package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
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

	"github.com/tunecraft/api/internal/auth"
	"github.com/tunecraft/api/internal/channel"
	"github.com/tunecraft/api/internal/client"
	"github.com/tunecraft/api/internal/config"
	"github.com/tunecraft/api/internal/handler"
	"github.com/tunecraft/api/internal/middleware"
	"github.com/tunecraft/api/internal/service"
	"github.com/tunecraft/api/internal/track"
	"github.com/tunecraft/api/internal/worker"
	ws "github.com/tunecraft/api/internal/websocket"
)

func main() {
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

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
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

	// Initialize WebSocket hub for browser clients
	hub := ws.NewHub()
	go hub.Run()

	// Upstream converter client (submission adapter)
	converterClient := client.NewConverterClient(&cfg.Upstream)
	if !converterClient.IsConfigured() {
		log.Println("Warning: upstream converter not configured, submissions will fail")
	}

	// Initialize R2 client (optional - archives disabled if not configured)
	var r2Client client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		c, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			r2Client = c
		}
	} else {
		log.Println("Info: R2 storage not configured, archive downloads disabled")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Tracking engine wiring
	trackCfg := track.Config{
		WatchdogInterval: time.Duration(cfg.Track.WatchdogIntervalSec) * time.Second,
		StallThreshold:   time.Duration(cfg.Track.StallThresholdSec) * time.Second,
		SubmissionGrace:  time.Duration(cfg.Track.SubmissionGraceSec) * time.Second,
	}
	channelCfg := channel.DefaultConfig(cfg.Upstream.ChannelURL)
	channelCfg.AuthToken = cfg.Upstream.APIKey
	channelCfg.ReconnectAttempts = cfg.Track.ReconnectAttempts
	channelCfg.ReconnectBackoff = time.Duration(cfg.Track.ReconnectBackoffSec) * time.Second

	notifier := ws.NewNotifier(hub)
	dedupe := track.NewDeduper(redisClient)

	// Initialize services
	convertService := service.NewConvertService(converterClient, channelCfg, trackCfg, notifier, dedupe)
	convertService.OnUpdate(hub.RelayJob)
	convertService.OnTerminal(hub.RelayJob)
	downloadService := service.NewDownloadService(redisClient, asynqClient)

	// Initialize handlers
	convertHandler := handler.NewConvertHandler(convertService, validate)
	downloadHandler := handler.NewDownloadHandler(downloadService, convertService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"upstream": converterClient.IsConfigured(),
				"r2":       r2Client != nil,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
			"activeSessions": convertService.ActiveSessions(),
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	convert := api.Group("/convert")
	convert.Post("/:kind/start", rateLimiter.ConvertLimit(cfg.RateLimit.ConvertPerHour), convertHandler.Start)
	convert.Get("/status/:surfaceId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMinute), convertHandler.Status)
	convert.Get("/results/:surfaceId", convertHandler.Results)
	convert.Post("/cancel/:surfaceId", convertHandler.Cancel)
	convert.Post("/retry/:surfaceId", rateLimiter.ConvertLimit(cfg.RateLimit.ConvertPerHour), convertHandler.Retry)

	download := api.Group("/download", rateLimiter.ArchiveLimit(cfg.RateLimit.ArchivePerHour))
	download.Post("/archive", downloadHandler.StartArchive)
	download.Get("/archive/:archiveId", downloadHandler.ArchiveStatus)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/surface/:surfaceId", websocket.New(func(c *websocket.Conn) {
		surfaceID := c.Params("surfaceId")
		hub.HandleConnection(c, surfaceID)
	}))

	// Start Asynq worker server for archive builds
	go startWorkerServer(cfg, downloadService, converterClient, r2Client)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		convertService.Close()
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
}

func startWorkerServer(
	cfg *config.Config,
	downloadService *service.DownloadService,
	fetcher worker.AudioFetcher,
	storage client.StorageClient,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"archive": 4,
			},
			LogLevel: asynqLogLevel,
		},
	)

	archiveWorker := worker.NewArchiveWorker(downloadService, fetcher, storage)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeArchive, archiveWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
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
