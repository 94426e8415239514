package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/cognigraph-backend/internal/clients/redis"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
	"github.com/yungbote/cognigraph-backend/internal/platform/neo4jdb"
)

type Clients struct {
	DerivedCache redis.DerivedCache
	Neo4j        *neo4jdb.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis (or the in-process fallback)
	cache, err := redis.NewDerivedCacheFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init derived cache: %w", err)
	}

	// Neo4j (optional)
	graph, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		_ = cache.Close()
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}

	return Clients{
		DerivedCache: cache,
		Neo4j:        graph,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.DerivedCache != nil {
		_ = c.DerivedCache.Close()
	}
	if c.Neo4j.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Neo4j.Close(ctx)
	}
}
