package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/speakerid-team/speaker-id/pkg/validator"

	"github.com/speakerid-team/speaker-id/internal/adapter/handler"
	"github.com/speakerid-team/speaker-id/internal/adapter/repository"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/cache"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/database"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/external/embedding"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/external/transcriber"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/storage"
	"github.com/speakerid-team/speaker-id/internal/infrastructure/vector"
	conversationuse "github.com/speakerid-team/speaker-id/internal/usecase/conversation"
	speakeruse "github.com/speakerid-team/speaker-id/internal/usecase/speaker"
	vectorindexuse "github.com/speakerid-team/speaker-id/internal/usecase/vectorindex"
	"github.com/speakerid-team/speaker-id/pkg/audio"
	"github.com/speakerid-team/speaker-id/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Initialize dependencies
	log.Println("🔧 Initializing dependencies...")

	// Initialize Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Schema capability descriptor, probed once and shared by every repository
	caps := repository.NewCapabilities(db)

	// Run SQL migrations only when explicitly enabled in config.
	if cfg.Database.Migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		caps.Invalidate()
	} else {
		log.Println("🔄 Skipping migrations; schema is managed out of band")
	}

	// Initialize cache: Redis when enabled, process memory otherwise
	var cacheStore cache.Store
	if cfg.Redis.Enabled {
		log.Println("📦 Connecting to Redis...")
		redisStore, err := cache.NewRedisStore(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		cacheStore = redisStore
	} else {
		log.Println("📦 Using in-memory cache (REDIS_ENABLED=false)")
		cacheStore = cache.NewMemoryStore()
	}

	// Initialize object storage
	log.Println("🪣 Connecting to object storage...")
	minioClient, err := storage.NewMinIOClient(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// Initialize vector index client (single long-lived handle)
	log.Println("🧭 Initializing vector index client...")
	pineconeClient := vector.NewPineconeClient(&cfg.Pinecone)

	// Initialize external collaborators
	embedClient := embedding.NewClient(&cfg.Embedding)
	converter := audio.NewConverter(cfg.Processing.FFmpegPath)
	var trans transcriber.Transcriber
	if cfg.Assembly.APIKey != "" {
		trans = transcriber.NewAssemblyAITranscriber(&cfg.Assembly)
	} else {
		log.Println("⚠️  ASSEMBLYAI_API_KEY not set, audio processing endpoint disabled")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize repositories
	log.Println("⚙️  Initializing repositories...")
	speakerRepo := repository.NewSpeakerRepository(db, caps)
	conversationRepo := repository.NewConversationRepository(db, caps)
	utteranceRepo := repository.NewUtteranceRepository(db, caps)
	sagaRepo := repository.NewSagaRepository(db)

	// Initialize services
	log.Println("✨ Initializing services...")
	resolver := conversationuse.NewPathResolver(minioClient, cacheStore, logger)
	conversationService := conversationuse.NewService(
		conversationRepo,
		utteranceRepo,
		speakerRepo,
		sagaRepo,
		minioClient,
		pineconeClient,
		embedClient,
		converter,
		trans,
		resolver,
		cacheStore,
		cfg,
		logger,
	)
	vectorIndexService := vectorindexuse.NewService(pineconeClient, embedClient, converter, logger)
	speakerService := speakeruse.NewService(speakerRepo, vectorIndexService, logger)

	// Reconciliation sweep for orphan vectors
	reconciler := conversationuse.NewReconciler(utteranceRepo, sagaRepo, pineconeClient, logger)
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	if cfg.Processing.ReconcileInterval > 0 {
		log.Printf("🔁 Starting reconciliation sweep every %s", cfg.Processing.ReconcileInterval)
		reconciler.Start(reconcileCtx, cfg.Processing.ReconcileInterval)
	}

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	conversationHandler := handler.NewConversationHandler(conversationService, logger)
	speakerHandler := handler.NewSpeakerHandler(speakerService, logger)
	vectorIndexHandler := handler.NewVectorIndexHandler(vectorIndexService, reconciler, logger)

	router := handler.NewRouter(cfg, conversationHandler, speakerHandler, vectorIndexHandler)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	stopReconcile()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
