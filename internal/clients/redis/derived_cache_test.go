package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

func TestDerivedKeyChangesWithRevision(t *testing.T) {
	id := uuid.MustParse("7f6c7c1e-2d4b-4a34-9f57-0a3f5d0f8c11")
	if got := derivedKey(id, 3); got != "cdg:derived:7f6c7c1e-2d4b-4a34-9f57-0a3f5d0f8c11:r3" {
		t.Fatalf("unexpected key %s", got)
	}
	if derivedKey(id, 3) == derivedKey(id, 4) {
		t.Fatalf("key must change with revision")
	}
}

func TestMemoryDerivedCacheHitMissAndExpiry(t *testing.T) {
	store := NewDerivedTTLCache(50*time.Millisecond, 16)
	cache := NewMemoryDerivedCache(store)
	ctx := context.Background()
	id := uuid.New()

	if _, ok, err := cache.Get(ctx, id, 1); ok || err != nil {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}
	snap := DerivedSnapshot{
		ConversationID: id,
		Revision:       1,
		GraphVersion:   1,
		Derived:        cdg.DerivedState{Motifs: []cdg.ConceptMotif{{ID: "motif_a"}}},
	}
	if err := cache.Set(ctx, snap); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := cache.Get(ctx, id, 1)
	if err != nil || !ok || len(got.Derived.Motifs) != 1 {
		t.Fatalf("expected hit, got=%+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := cache.Get(ctx, id, 2); ok {
		t.Fatalf("a newer revision must miss")
	}

	item := store.Get(derivedKey(id, 1))
	if item == nil || item.ExpiresAt().IsZero() || item.ExpiresAt().After(time.Now().Add(50*time.Millisecond)) {
		t.Fatalf("expected expiry metadata within the ttl, got %+v", item)
	}

	time.Sleep(120 * time.Millisecond)
	if _, ok, _ := cache.Get(ctx, id, 1); ok {
		t.Fatalf("expected entry to expire")
	}
	if cache.Backend() != BackendMemory || ClientOf(cache) != nil {
		t.Fatalf("unexpected backend wiring")
	}
}

func TestMemoryDerivedCacheEvictsBeyondCapacity(t *testing.T) {
	store := NewDerivedTTLCache(time.Minute, 2)
	cache := NewMemoryDerivedCache(store)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	_ = cache.Set(ctx, DerivedSnapshot{ConversationID: a, Revision: 1})
	_ = cache.Set(ctx, DerivedSnapshot{ConversationID: b, Revision: 1})
	if _, ok, _ := cache.Get(ctx, a, 1); !ok {
		t.Fatalf("expected a present")
	}
	_ = cache.Set(ctx, DerivedSnapshot{ConversationID: c, Revision: 1})

	if store.Len() != 2 {
		t.Fatalf("expected capacity 2, got %d", store.Len())
	}
	if _, ok, _ := cache.Get(ctx, b, 1); ok {
		t.Fatalf("expected least recently used entry evicted")
	}
	if _, ok, _ := cache.Get(ctx, a, 1); !ok {
		t.Fatalf("expected recently read entry kept")
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
