package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/cognigraph-backend/internal/http"
	httpH "github.com/yungbote/cognigraph-backend/internal/http/handlers"
	"github.com/yungbote/cognigraph-backend/internal/observability"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

type Handlers struct {
	Health       *httpH.HealthHandler
	Conversation *httpH.ConversationHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       httpH.NewHealthHandler(db),
		Conversation: httpH.NewConversationHandler(log, services.CDG),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		ServiceName:         cfg.ServiceName,
		ConversationHandler: handlers.Conversation,
		HealthHandler:       handlers.Health,
	})
}
