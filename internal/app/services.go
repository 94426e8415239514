package app

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/cognigraph-backend/internal/modules/cdg"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg/steps"
	"github.com/yungbote/cognigraph-backend/internal/observability"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

type Services struct {
	CDG cdg.Usecases
}

func wireServices(db *gorm.DB, log *logger.Logger, metrics *observability.Metrics, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")
	tuning := steps.LoadTuning(log)
	return Services{
		CDG: cdg.New(cdg.UsecasesDeps{
			DB:              db,
			Log:             log,
			Metrics:         metrics,
			Conversations:   repos.Conversations,
			ConversationAgg: repos.ConversationAgg,
			Cache:           clients.DerivedCache,
			Projector:       repos.MotifProjector,
			Tuning:          &tuning,
			Now:             time.Now,
		}),
	}
}
