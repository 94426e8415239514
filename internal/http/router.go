package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/cognigraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/cognigraph-backend/internal/http/middleware"
	"github.com/yungbote/cognigraph-backend/internal/observability"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string

	ConversationHandler *httpH.ConversationHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Conversations
		if h := cfg.ConversationHandler; h != nil {
			api.POST("/conversations", h.Create)
			api.GET("/conversations", h.List)
			api.GET("/conversations/:id", h.Get)
			api.GET("/conversations/:id/derived", h.GetDerived)
			api.PUT("/conversations/:id/concepts", h.ReplaceConcepts)
			api.POST("/conversations/:id/patches", h.ApplyPatch)
			api.PUT("/conversations/:id/contexts/:key/flags", h.SetContextFlags)
			api.PUT("/conversations/:id/motif-links", h.OverrideMotifLink)
			api.DELETE("/conversations/:id/motif-links", h.RemoveMotifLinkOverride)

			// Constraints
			api.POST("/constraints/classify", h.ClassifyConstraints)
		}
	}

	return r
}
