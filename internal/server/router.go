package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/quickread/quickread-backend/internal/handlers"
	"github.com/quickread/quickread-backend/internal/middleware"
)

type RouterConfig struct {
	DocumentHandler   *handlers.DocumentHandler
	AnswerHandler     *handlers.AnswerHandler
	SessionMiddleware *middleware.SessionMiddleware

	// AllowOrigins overrides the localhost defaults, comma-separated.
	AllowOrigins string
	// Tracing enables the otelgin middleware.
	Tracing bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := []string{
		"http://localhost:80",
		"http://localhost:3000",
		"http://localhost:5173",
	}
	if cfg.AllowOrigins != "" {
		origins = origins[:0]
		for _, o := range strings.Split(cfg.AllowOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	if cfg.Tracing {
		router.Use(otelgin.Middleware("quickread-backend"))
	}

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.SessionMiddleware.Resolve())
	{
		api.GET("/status", cfg.DocumentHandler.Status)
		api.POST("/upload", cfg.DocumentHandler.Upload)
		api.POST("/analyze-url", cfg.DocumentHandler.AnalyzeURL)
		api.POST("/remove", cfg.DocumentHandler.Remove)
		api.POST("/clear-summary", cfg.DocumentHandler.ClearSummary)

		api.POST("/summarize", cfg.AnswerHandler.Summarize)
		api.POST("/ask", cfg.AnswerHandler.Ask)
		api.POST("/suggested-questions", cfg.AnswerHandler.SuggestedQuestions)
		api.POST("/download-summary", cfg.AnswerHandler.DownloadSummary)
	}

	return router
}
