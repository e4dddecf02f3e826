package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recall/internal/config"
	"recall/internal/database"
	"recall/internal/handlers"
	"recall/internal/logging"
	"recall/internal/middleware"
	"recall/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Recall Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Model: %s)", cfg.Port, cfg.GeminiModel)

	// MongoDB is the system of record and is required
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	if err := mongoDB.Initialize(context.Background()); err != nil {
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}

	// Redis is optional: task events and ingest locks degrade gracefully
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Failed to connect to Redis: %v (task events and ingest locks disabled)", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	} else {
		log.Println("⚠️  REDIS_URL not set - task events and ingest locks disabled")
	}

	metrics := services.InitMetrics()

	// Core services
	factService := services.NewFactService(mongoDB)
	accessService := services.NewAccessService(mongoDB)
	contextCache := services.NewContextCacheService()
	taskRegistry := services.NewTaskRegistry(redisService)
	retriever := services.NewChromemRetriever(nil)

	// Mirror task lifecycle events from other instances into local logs
	if redisService != nil {
		go func() {
			sub := redisService.Subscribe(context.Background(), services.TaskEventChannel)
			defer sub.Close()
			for msg := range sub.Channel() {
				slog.Debug("task event", "payload", msg.Payload)
			}
		}()
	}

	geminiService, err := services.NewGeminiService(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini: %v", err)
	}
	defer geminiService.Close()

	planner := services.NewContextPlanner(geminiService, retriever, factService, accessService)
	ingestion := services.NewIngestionService(taskRegistry, geminiService, factService, retriever, redisService, metrics)
	orchestrator := services.NewContextOrchestrator(planner, retriever, contextCache, accessService, ingestion, metrics, cfg.ContextDeadline)
	log.Println("✅ Services initialized")

	// Hourly sweep of stale background tasks
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			taskRegistry.Cleanup(cfg.TaskMaxAge)
		}),
		gocron.WithName("task-cleanup"),
	)
	if err != nil {
		log.Fatalf("❌ Failed to register cleanup job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Shutdown()
	log.Printf("🧹 Task cleanup scheduled (retention: %v)", cfg.TaskMaxAge)

	// Handlers
	contextHandler := handlers.NewContextHandler(orchestrator)
	factHandler := handlers.NewFactHandler(factService)
	taskHandler := handlers.NewTaskHandler(taskRegistry)
	accessHandler := handlers.NewAccessHandler(accessService)
	healthHandler := handlers.NewHealthHandler(mongoDB, redisService, contextCache)

	app := fiber.New(fiber.Config{
		AppName:      "Recall",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	app.Use(recover.New())

	prometheus := fiberprometheus.New("recall")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Use(cors.New(cors.Config{
		AllowOrigins: getEnv("CORS_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID, X-Client-ID",
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api/v1", middleware.RequireUser())
	api.Post("/context", contextHandler.Orchestrate)
	api.Post("/facts", factHandler.Create)
	api.Get("/facts", factHandler.List)
	api.Get("/facts/:id", factHandler.Get)
	api.Post("/facts/:id/state", factHandler.Transition)
	api.Get("/facts/:id/history", factHandler.History)
	api.Get("/tasks", taskHandler.List)
	api.Get("/tasks/:id", taskHandler.Get)
	api.Post("/access-rules", accessHandler.Create)
	api.Get("/access-rules", accessHandler.List)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error during shutdown: %v", err)
		}
	}()

	log.Printf("🌐 Listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
