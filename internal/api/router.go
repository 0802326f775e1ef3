package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/tubechat/internal/api/handler"
	"github.com/timmy/tubechat/internal/api/middleware"
	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/service"
)

// Services groups what the router serves.
type Services struct {
	Chat   handler.ChatReplier
	Ingest service.Ingester
	Jobs   handler.JobLister
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc Services, cfg *config.Config, log *logger.Logger) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing())
	}
	r.Use(middleware.CORS(cfg.Server.CORS))

	healthHandler := handler.NewHealthHandler(cfg.VectorStore.Backend)
	chatHandler := handler.NewChatHandler(svc.Chat, cfg.Chat.Stream)
	chatSocket := handler.NewChatSocket(svc.Chat, func(origin string) bool {
		return middleware.IsOriginAllowed(origin, cfg.Server.CORS)
	})

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Chat
		v1.POST("/chat", chatHandler.Chat)
		v1.GET("/chat/ws", chatSocket.Serve)

		// Ingest
		if svc.Ingest != nil && svc.Jobs != nil {
			ingestHandler := handler.NewIngestHandler(svc.Ingest, svc.Jobs)
			v1.POST("/ingest", ingestHandler.Ingest)
			v1.GET("/ingest/jobs", ingestHandler.ListJobs)
			v1.GET("/ingest/jobs/:id", ingestHandler.GetJob)
		}
	}

	return r
}
