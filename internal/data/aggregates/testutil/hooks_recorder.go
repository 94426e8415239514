package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/cognigraph-backend/internal/data/aggregates"
)

type HookKind string

const (
	HookOperation HookKind = "operation"
	HookConflict  HookKind = "conflict"
	HookRetry     HookKind = "retry"
)

type HookEvent struct {
	Kind     HookKind
	Op       string
	Status   string
	Duration time.Duration
}

// ConversationHooks records every signal the conversation aggregate reports,
// in order, keyed by operation name (aggregates.OpCommitGraph and friends).
type ConversationHooks struct {
	mu     sync.Mutex
	events []HookEvent
}

var _ aggregates.Hooks = (*ConversationHooks)(nil)

func (h *ConversationHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.record(HookEvent{Kind: HookOperation, Op: name, Status: status, Duration: dur})
}

func (h *ConversationHooks) IncConflict(name string) {
	h.record(HookEvent{Kind: HookConflict, Op: name})
}

func (h *ConversationHooks) IncRetry(name string) {
	h.record(HookEvent{Kind: HookRetry, Op: name})
}

func (h *ConversationHooks) record(e HookEvent) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *ConversationHooks) Events() []HookEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HookEvent(nil), h.events...)
}

// Count returns the number of events of kind for op; an empty op matches all.
func (h *ConversationHooks) Count(kind HookKind, op string) int {
	n := 0
	for _, e := range h.Events() {
		if e.Kind == kind && (op == "" || e.Op == op) {
			n++
		}
	}
	return n
}

// Statuses lists the outcome of each finished op, oldest first.
func (h *ConversationHooks) Statuses(op string) []string {
	var out []string
	for _, e := range h.Events() {
		if e.Kind == HookOperation && e.Op == op {
			out = append(out, e.Status)
		}
	}
	return out
}
