package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quickread/quickread-backend/internal/clients/extractor"
	"github.com/quickread/quickread-backend/internal/clients/gcp"
	"github.com/quickread/quickread-backend/internal/clients/openai"
	"github.com/quickread/quickread-backend/internal/data/db"
	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/handlers"
	"github.com/quickread/quickread-backend/internal/ingest"
	"github.com/quickread/quickread-backend/internal/middleware"
	"github.com/quickread/quickread-backend/internal/observability"
	"github.com/quickread/quickread-backend/internal/pkg/env"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
	"github.com/quickread/quickread-backend/internal/server"
	"github.com/quickread/quickread-backend/internal/services"
	"github.com/quickread/quickread-backend/internal/sessionstore"
	"github.com/quickread/quickread-backend/internal/vector"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "quickread-backend",
		Environment: env.Get("APP_ENV", "development", log),
		Version:     env.Get("APP_VERSION", "dev", log),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	documentRepo := repos.NewDocumentRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	embeddingRepo := repos.NewEmbeddingRepo(thePG, log)

	// Clients
	log.Info("Setting up clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	extractorClient, err := extractor.NewClient(log)
	if err != nil {
		log.Error("Could not init extractor client", "error", err)
		os.Exit(1)
	}
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init bucket service, originals will not be stored", "error", err)
		bucketService = nil
	}

	// Sessions
	var sessionStore sessionstore.Store
	if os.Getenv("REDIS_ADDR") != "" {
		sessionStore, err = sessionstore.NewRedisStore(log)
		if err != nil {
			log.Error("Could not init redis session store", "error", err)
			os.Exit(1)
		}
	} else {
		log.Info("REDIS_ADDR not set, using in-memory session store")
		sessionStore = sessionstore.NewMemoryStore()
	}

	// Services
	log.Info("Setting up services from main...")
	chunker := ingest.NewChunker(ingest.DefaultChunkerConfig())
	vectorStore := vector.NewStore(log, chunkRepo, embeddingRepo)
	embeddingService := services.NewEmbeddingService(thePG, log, services.EmbeddingConfigFromEnv(log), chunkRepo, embeddingRepo, openaiClient)
	retriever := services.NewRetriever(log, vectorStore, chunkRepo, embeddingRepo, openaiClient)
	synthesizer := services.NewSynthesizer(log, services.SynthesizerConfigFromEnv(log), chunkRepo, openaiClient, retriever, services.LoadFallbackQuestions(log))
	sessionManager := services.NewSessionManager(thePG, log, sessionStore, documentRepo, chunkRepo, embeddingRepo, extractorClient, bucketService, chunker, embeddingService, synthesizer)

	// Handlers
	log.Info("Setting up handlers from main...")
	maxUpload := int64(env.GetInt("MAX_UPLOAD_BYTES", 20<<20, log))
	documentHandler := handlers.NewDocumentHandler(sessionManager, maxUpload)
	answerHandler := handlers.NewAnswerHandler(sessionManager)
	sessionMiddleware := middleware.NewSessionMiddleware(env.GetBool("COOKIE_SECURE", false, log))

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		DocumentHandler:   documentHandler,
		AnswerHandler:     answerHandler,
		SessionMiddleware: sessionMiddleware,
		AllowOrigins:      os.Getenv("CORS_ALLOW_ORIGINS"),
		Tracing:           observability.Enabled(),
	})

	port := env.Get("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
