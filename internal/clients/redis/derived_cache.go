package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/platform/envutil"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// DerivedSnapshot is one derivation result keyed by conversation and revision.
type DerivedSnapshot struct {
	ConversationID uuid.UUID        `json:"conversationId"`
	Revision       int              `json:"revision"`
	GraphVersion   int              `json:"graphVersion"`
	Derived        cdg.DerivedState `json:"derived"`
	ComputedAt     time.Time        `json:"computedAt"`
}

// DerivedCache stores derivation results. A revision bump changes the key, so
// entries never need explicit invalidation.
type DerivedCache interface {
	Get(ctx context.Context, conversationID uuid.UUID, revision int) (*DerivedSnapshot, bool, error)
	Set(ctx context.Context, snap DerivedSnapshot) error
	Backend() string
	Close() error
}

func derivedKey(conversationID uuid.UUID, revision int) string {
	return fmt.Sprintf("cdg:derived:%s:r%d", conversationID.String(), revision)
}

// NewDerivedCacheFromEnv uses Redis when REDIS_ADDR is set and an in-process
// TTL cache otherwise.
func NewDerivedCacheFromEnv(log *logger.Logger) (DerivedCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := envutil.Seconds("CDG_CACHE_TTL_SECONDS", 30*time.Minute)
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		maxEntries := envutil.Int("CDG_CACHE_MAX_ENTRIES", 1024)
		if maxEntries <= 0 {
			maxEntries = 1024
		}
		log.Info("derived cache using in-process fallback", "ttl", ttl.String(), "max_entries", maxEntries)
		cache := NewDerivedTTLCache(ttl, maxEntries)
		go cache.Start()
		return &memoryDerivedCache{cache: cache, stop: cache.Stop}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisDerivedCache(rdb, log, ttl), nil
}

type redisDerivedCache struct {
	rdb goredis.UniversalClient
	log *logger.Logger
	ttl time.Duration
}

func NewRedisDerivedCache(rdb goredis.UniversalClient, log *logger.Logger, ttl time.Duration) DerivedCache {
	return &redisDerivedCache{rdb: rdb, log: log.With("service", "RedisDerivedCache"), ttl: ttl}
}

func (c *redisDerivedCache) Backend() string { return BackendRedis }

func (c *redisDerivedCache) Get(ctx context.Context, conversationID uuid.UUID, revision int) (*DerivedSnapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, derivedKey(conversationID, revision)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get derived: %w", err)
	}
	var snap DerivedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		c.log.Warn("bad derived cache payload", "conversation_id", conversationID.String(), "error", err)
		return nil, false, nil
	}
	return &snap, true, nil
}

func (c *redisDerivedCache) Set(ctx context.Context, snap DerivedSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode derived snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, derivedKey(snap.ConversationID, snap.Revision), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set derived: %w", err)
	}
	return nil
}

func (c *redisDerivedCache) Close() error {
	return c.rdb.Close()
}

// NewDerivedTTLCache builds the in-process store: entries expire ttl after
// they are written and the least recently used entry is evicted beyond maxEntries.
func NewDerivedTTLCache(ttl time.Duration, maxEntries int) *ttlcache.Cache[string, DerivedSnapshot] {
	opts := []ttlcache.Option[string, DerivedSnapshot]{
		ttlcache.WithTTL[string, DerivedSnapshot](ttl),
		ttlcache.WithDisableTouchOnHit[string, DerivedSnapshot](),
	}
	if maxEntries > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, DerivedSnapshot](uint64(maxEntries)))
	}
	return ttlcache.New[string, DerivedSnapshot](opts...)
}

type memoryDerivedCache struct {
	cache *ttlcache.Cache[string, DerivedSnapshot]
	stop  func()
}

// NewMemoryDerivedCache wraps a caller-owned TTL cache. The caller runs its
// expiry loop, if any.
func NewMemoryDerivedCache(cache *ttlcache.Cache[string, DerivedSnapshot]) DerivedCache {
	return &memoryDerivedCache{cache: cache}
}

func (c *memoryDerivedCache) Backend() string { return BackendMemory }

func (c *memoryDerivedCache) Get(_ context.Context, conversationID uuid.UUID, revision int) (*DerivedSnapshot, bool, error) {
	item := c.cache.Get(derivedKey(conversationID, revision))
	if item == nil {
		return nil, false, nil
	}
	snap := item.Value()
	return &snap, true, nil
}

func (c *memoryDerivedCache) Set(_ context.Context, snap DerivedSnapshot) error {
	c.cache.Set(derivedKey(snap.ConversationID, snap.Revision), snap, ttlcache.DefaultTTL)
	return nil
}

func (c *memoryDerivedCache) Close() error {
	if c.stop != nil {
		c.stop()
	}
	return nil
}

// ClientOf returns the Redis client behind c, or nil for other backends.
func ClientOf(c DerivedCache) goredis.UniversalClient {
	if rc, ok := c.(*redisDerivedCache); ok {
		return rc.rdb
	}
	return nil
}
