package testutil

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/cognigraph-backend/internal/data/aggregates"
)

func TestConversationHooksGroupsByOperation(t *testing.T) {
	h := &ConversationHooks{}
	h.ObserveOperation(aggregates.OpCommitGraph, "success", 4*time.Millisecond)
	h.IncConflict(aggregates.OpCommitOverrides)
	h.ObserveOperation(aggregates.OpCommitOverrides, "conflict", time.Millisecond)
	h.IncRetry(aggregates.OpCommitDerived)
	h.ObserveOperation(aggregates.OpCommitDerived, "retryable", time.Millisecond)
	h.ObserveOperation(aggregates.OpCommitGraph, "conflict", time.Millisecond)

	if diff := cmp.Diff([]string{"success", "conflict"}, h.Statuses(aggregates.OpCommitGraph)); diff != "" {
		t.Fatalf("commit graph statuses (-want +got):\n%s", diff)
	}
	if h.Count(HookConflict, aggregates.OpCommitOverrides) != 1 || h.Count(HookConflict, aggregates.OpCommitGraph) != 0 {
		t.Fatalf("unexpected conflict counts: %+v", h.Events())
	}
	if h.Count(HookRetry, "") != 1 || h.Count(HookOperation, "") != 4 {
		t.Fatalf("unexpected totals: %+v", h.Events())
	}
	if h.Statuses(aggregates.OpReplaceConcepts) != nil {
		t.Fatalf("expected no statuses for an op that never ran")
	}
}
