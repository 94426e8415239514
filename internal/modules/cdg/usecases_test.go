package cdg_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/yungbote/cognigraph-backend/internal/clients/redis"
	"github.com/yungbote/cognigraph-backend/internal/data/aggregates"
	cdgrepo "github.com/yungbote/cognigraph-backend/internal/data/repos/cdg"
	"github.com/yungbote/cognigraph-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
	types "github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg/steps"
	"github.com/yungbote/cognigraph-backend/internal/observability"
)

const tokyoKey = "destination:tokyo"

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type harness struct {
	ctx     context.Context
	deps    cdg.UsecasesDeps
	uc      cdg.Usecases
	metrics *observability.Metrics
}

func newHarness(t *testing.T) harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := cdgrepo.NewConversationRepo(db, log)
	metrics := observability.NewMetrics()
	deps := cdg.UsecasesDeps{
		DB:            db,
		Log:           log,
		Metrics:       metrics,
		Conversations: repo,
		ConversationAgg: aggregates.NewConversationAggregate(aggregates.ConversationAggregateDeps{
			Base:          aggregates.BaseDeps{DB: db, Log: log},
			Conversations: repo,
		}),
		Cache: redis.NewMemoryDerivedCache(redis.NewDerivedTTLCache(time.Minute, 64)),
		Now:   func() time.Time { return fixedNow },
	}
	return harness{ctx: context.Background(), deps: deps, uc: cdg.New(deps), metrics: metrics}
}

func scenarioConcepts() []types.ConceptItem {
	return []types.ConceptItem{
		{ID: "A", Family: "goal", Kind: "preference", Score: 0.8, NodeIDs: []string{"a1"}, SemanticKey: "goal:sakura", Title: "看樱花"},
		{ID: "B", Family: "budget", Kind: "constraint", Score: 0.7, NodeIDs: []string{"b1"}, SemanticKey: "budget:10k", Title: "预算一万"},
		{ID: "C", Family: "people", Kind: "factual_assertion", Score: 0.6, NodeIDs: []string{"c1"}, SemanticKey: "people:kids", Title: "两个孩子"},
		{ID: "D", Family: "destination", Kind: "preference", Score: 0.9, NodeIDs: []string{"d1"}, SemanticKey: "tokyo", Title: "东京"},
	}
}

func scenarioPatch() types.Patch {
	node := func(id, typ, statement string, confidence float64) types.PatchOp {
		return types.PatchOp{Op: types.OpAddNode, Node: types.NodeFields{
			"id": id, "type": typ, "statement": statement, "confidence": confidence,
		}}
	}
	edge := func(id, from, to string, typ types.EdgeType, confidence float64) types.PatchOp {
		return types.PatchOp{Op: types.OpAddEdge, Edge: &types.Edge{ID: id, From: from, To: to, Type: typ, Confidence: confidence}}
	}
	return types.Patch{Ops: []types.PatchOp{
		node("a1", "goal", "去东京看樱花", 0.8),
		node("b1", "constraint", "预算一万", 0.7),
		node("c1", "fact", "带两个孩子", 0.7),
		node("d1", "goal", "东京", 0.9),
		edge("e1", "a1", "d1", types.EdgeEnable, 0.8),
		edge("e2", "b1", "d1", types.EdgeEnable, 0.7),
		edge("e3", "c1", "d1", types.EdgeConstraint, 0.9),
	}}
}

// seeded returns a conversation carrying the four-concept scenario.
func (h harness) seeded(t *testing.T) (uuid.UUID, cdg.DerivedView) {
	t.Helper()
	conv, err := h.uc.CreateConversation(h.ctx, "  东京樱花  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.Title != "东京樱花" {
		t.Fatalf("expected trimmed title, got %q", conv.Title)
	}
	if _, err := h.uc.ReplaceConcepts(h.ctx, conv.ID, scenarioConcepts()); err != nil {
		t.Fatalf("replace concepts: %v", err)
	}
	view, err := h.uc.ApplyPatch(h.ctx, conv.ID, cdg.PatchInput{Patch: scenarioPatch(), Reason: "turn 1", By: "assistant"})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	return conv.ID, view
}

func contextByKey(view cdg.DerivedView, key string) (types.ContextItem, bool) {
	for _, c := range view.Contexts {
		if c.Key == key {
			return c, true
		}
	}
	return types.ContextItem{}, false
}

func TestApplyPatchDerivesAndPersists(t *testing.T) {
	h := newHarness(t)
	id, view := h.seeded(t)

	if view.GraphVersion != 1 {
		t.Fatalf("expected graph version 1, got %d", view.GraphVersion)
	}
	if view.Revision != 2 {
		t.Fatalf("expected revision 2 after concepts + patch, got %d", view.Revision)
	}
	if len(view.Motifs) != 4 || len(view.Contexts) != 2 {
		t.Fatalf("expected 4 motifs and 2 contexts, got %d/%d", len(view.Motifs), len(view.Contexts))
	}
	if view.Cached {
		t.Fatalf("fresh derivation must not be reported as cached")
	}

	conv, err := h.uc.GetConversation(h.ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !conv.DerivedFresh() {
		t.Fatalf("expected derived arrays persisted at revision %d, got %d", conv.Revision, conv.DerivedRevision)
	}
	g, err := conv.DecodeGraph()
	if err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	for _, n := range g.Nodes {
		if len(n.RevisionHistory) == 0 || n.MotifType == "" {
			t.Fatalf("expected enriched node %s, got %+v", n.ID, n)
		}
	}
	var buf bytes.Buffer
	if err := h.metrics.WritePrometheus(&buf); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	if !strings.Contains(buf.String(), `cdg_patch_ops_total{op="add_node"} 4`) {
		t.Fatalf("expected 4 add_node ops counted:\n%s", buf.String())
	}
}

func TestGetDerivedServesCacheThenStoredArrays(t *testing.T) {
	h := newHarness(t)
	id, first := h.seeded(t)

	cached, err := h.uc.GetDerived(h.ctx, id)
	if err != nil {
		t.Fatalf("get derived: %v", err)
	}
	if !cached.Cached {
		t.Fatalf("expected a cache hit at the same revision")
	}
	if diff := cmp.Diff(first.Motifs, cached.Motifs); diff != "" {
		t.Fatalf("cached motifs mismatch (-want +got):\n%s", diff)
	}

	// a fresh instance with an empty cache serves the persisted arrays
	deps := h.deps
	deps.Cache = redis.NewMemoryDerivedCache(redis.NewDerivedTTLCache(time.Minute, 64))
	deps.Now = func() time.Time { return fixedNow.Add(time.Hour) }
	stored, err := cdg.New(deps).GetDerived(h.ctx, id)
	if err != nil {
		t.Fatalf("get derived: %v", err)
	}
	if stored.Cached {
		t.Fatalf("expected a miss on the new cache")
	}
	if !stored.ComputedAt.Equal(fixedNow) {
		t.Fatalf("expected computedAt of the stored derivation %v, got %v", fixedNow, stored.ComputedAt)
	}
	if diff := cmp.Diff(first.Contexts, stored.Contexts); diff != "" {
		t.Fatalf("stored contexts mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyPatchRejectsStaleBaseVersion(t *testing.T) {
	h := newHarness(t)
	id, _ := h.seeded(t)

	stale := 0
	patch := types.Patch{Ops: []types.PatchOp{{Op: types.OpUpdateNode, ID: "a1", Node: types.NodeFields{"confidence": 0.9}}}}
	_, err := h.uc.ApplyPatch(h.ctx, id, cdg.PatchInput{Patch: patch, BaseGraphVersion: &stale})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	current := 1
	view, err := h.uc.ApplyPatch(h.ctx, id, cdg.PatchInput{Patch: patch, BaseGraphVersion: &current})
	if err != nil {
		t.Fatalf("apply with current base: %v", err)
	}
	if view.GraphVersion != 2 {
		t.Fatalf("expected graph version 2, got %d", view.GraphVersion)
	}
}

func TestApplyPatchValidation(t *testing.T) {
	h := newHarness(t)
	id, _ := h.seeded(t)

	if _, err := h.uc.ApplyPatch(h.ctx, id, cdg.PatchInput{}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation for empty patch, got %v", err)
	}
	bad := types.Patch{Ops: []types.PatchOp{{Op: types.OpRemoveNode, ID: "missing"}}}
	if _, err := h.uc.ApplyPatch(h.ctx, id, cdg.PatchInput{Patch: bad}); err == nil {
		t.Fatalf("expected an error removing an unknown node")
	}
	if _, err := h.uc.ApplyPatch(h.ctx, uuid.New(), cdg.PatchInput{Patch: scenarioPatch()}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found for unknown conversation, got %v", err)
	}
}

func TestPausedContextStaysDisabledAcrossTurns(t *testing.T) {
	h := newHarness(t)
	id, _ := h.seeded(t)

	paused := true
	view, err := h.uc.SetContextFlags(h.ctx, id, tokyoKey, steps.ContextFlags{Paused: &paused})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	ctxItem, ok := contextByKey(view, tokyoKey)
	if !ok || !ctxItem.Paused || ctxItem.Status != types.ContextDisabled {
		t.Fatalf("expected paused disabled context, got %+v", ctxItem)
	}

	patch := types.Patch{Ops: []types.PatchOp{{Op: types.OpUpdateNode, ID: "a1", Node: types.NodeFields{"confidence": 0.95}}}}
	view, err = h.uc.ApplyPatch(h.ctx, id, cdg.PatchInput{Patch: patch})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ctxItem, _ := contextByKey(view, tokyoKey); !ctxItem.Paused || ctxItem.Status != types.ContextDisabled {
		t.Fatalf("expected context to stay disabled after a new turn, got %+v", ctxItem)
	}

	unpaused := false
	view, err = h.uc.SetContextFlags(h.ctx, id, tokyoKey, steps.ContextFlags{Paused: &unpaused})
	if err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if ctxItem, _ := contextByKey(view, tokyoKey); ctxItem.Paused || ctxItem.Status == types.ContextDisabled {
		t.Fatalf("expected context re-enabled after unpause, got %+v", ctxItem)
	}

	if _, err := h.uc.SetContextFlags(h.ctx, id, "destination:osaka", steps.ContextFlags{Paused: &paused}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found for unknown context, got %v", err)
	}
	if _, err := h.uc.SetContextFlags(h.ctx, id, tokyoKey, steps.ContextFlags{}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation without flags, got %v", err)
	}
}

func TestMotifLinkOverrideLifecycle(t *testing.T) {
	h := newHarness(t)
	id, view := h.seeded(t)
	from, to := view.Motifs[0].ID, view.Motifs[1].ID

	conf := 0.6
	view, err := h.uc.OverrideMotifLink(h.ctx, id, cdg.LinkOverride{FromMotifID: from, ToMotifID: to, Type: types.LinkConflicts, Confidence: &conf})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	var found *types.MotifLink
	for i, l := range view.MotifLinks {
		if l.FromMotifID == from && l.ToMotifID == to && l.Source == types.SourceUser {
			found = &view.MotifLinks[i]
		}
		if l.Source == types.SourceSystem && ((l.FromMotifID == from && l.ToMotifID == to) || (l.FromMotifID == to && l.ToMotifID == from)) {
			t.Fatalf("system link for an overridden pair must be suppressed: %+v", l)
		}
	}
	if found == nil || found.Type != types.LinkConflicts || found.Confidence != 0.6 {
		t.Fatalf("expected user conflicts link, got %+v", found)
	}

	view, err = h.uc.RemoveMotifLinkOverride(h.ctx, id, from, to)
	if err != nil {
		t.Fatalf("remove override: %v", err)
	}
	for _, l := range view.MotifLinks {
		if l.Source == types.SourceUser {
			t.Fatalf("expected no user links after removal, got %+v", l)
		}
	}
	if _, err := h.uc.RemoveMotifLinkOverride(h.ctx, id, from, to); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found removing twice, got %v", err)
	}
}

func TestOverrideMotifLinkValidation(t *testing.T) {
	h := newHarness(t)
	id, view := h.seeded(t)
	m := view.Motifs[0].ID

	if _, err := h.uc.OverrideMotifLink(h.ctx, id, cdg.LinkOverride{FromMotifID: m, ToMotifID: m}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation for self link, got %v", err)
	}
	if _, err := h.uc.OverrideMotifLink(h.ctx, id, cdg.LinkOverride{FromMotifID: m, ToMotifID: "cm_missing"}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found for unknown motif, got %v", err)
	}
	tooHigh := 1.5
	if _, err := h.uc.OverrideMotifLink(h.ctx, id, cdg.LinkOverride{FromMotifID: m, ToMotifID: view.Motifs[1].ID, Confidence: &tooHigh}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation for confidence, got %v", err)
	}
}

func TestReplaceConceptsRequiresIDs(t *testing.T) {
	h := newHarness(t)
	conv, err := h.uc.CreateConversation(h.ctx, "x")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = h.uc.ReplaceConcepts(h.ctx, conv.ID, []types.ConceptItem{{Title: "no id"}})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestClassifyConstraintsDedupes(t *testing.T) {
	h := newHarness(t)
	got := h.uc.ClassifyConstraints(h.ctx, []steps.ClassifyInput{
		{Text: "我对花生过敏"},
		{Text: "我对花生过敏"},
		{Text: "今天天气很好"},
	})
	if len(got) != 1 {
		t.Fatalf("expected one deduped constraint, got %+v", got)
	}
	if got[0].Family != types.ConstraintFamilyHealth || !got[0].Hard {
		t.Fatalf("expected hard health constraint, got %+v", got[0])
	}
}

func TestListConversations(t *testing.T) {
	h := newHarness(t)
	for _, title := range []string{"a", "b"} {
		if _, err := h.uc.CreateConversation(h.ctx, title); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	rows, err := h.uc.ListConversations(h.ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(rows))
	}
}
