package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/cognigraph-backend/internal/data/aggregates"
	"github.com/yungbote/cognigraph-backend/internal/data/graph"
	cdgrepo "github.com/yungbote/cognigraph-backend/internal/data/repos/cdg"
	"github.com/yungbote/cognigraph-backend/internal/observability"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

type Repos struct {
	Conversations   cdgrepo.ConversationRepo
	ConversationAgg aggregates.ConversationAggregate
	MotifProjector  graph.MotifProjector
}

func wireRepos(db *gorm.DB, log *logger.Logger, metrics *observability.Metrics, clients Clients) Repos {
	log.Info("Wiring repos...")
	conversations := cdgrepo.NewConversationRepo(db, log)
	return Repos{
		Conversations: conversations,
		ConversationAgg: aggregates.NewConversationAggregate(aggregates.ConversationAggregateDeps{
			Base: aggregates.BaseDeps{
				DB:    db,
				Log:   log,
				Hooks: aggregates.NewObservabilityHooks(metrics),
			},
			Conversations: conversations,
		}),
		MotifProjector: graph.NewMotifProjector(clients.Neo4j, log),
	}
}
