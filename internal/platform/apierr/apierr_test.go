package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
)

func TestFromErrorMapsAggregateCodes(t *testing.T) {
	notFound := fmt.Errorf("load: %w", domainagg.NewError(domainagg.CodeNotFound, "conversation.get", "missing", nil))
	if got := FromError(notFound, "x"); got.Status != http.StatusNotFound || got.Code != "not_found" {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	conflict := domainagg.NewError(domainagg.CodeConflict, "conversation.update_graph", "stale", nil)
	if got := FromError(conflict, "x"); got.Status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", got.Status)
	}
	plain := errors.New("boom")
	got := FromError(plain, "derive_failed")
	if got.Status != http.StatusInternalServerError || got.Code != "derive_failed" {
		t.Fatalf("unexpected fallback: %+v", got)
	}
	if !errors.Is(got, plain) {
		t.Fatalf("expected unwrap to original error")
	}
}
