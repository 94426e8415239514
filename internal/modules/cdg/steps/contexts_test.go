package steps

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

const tokyoKey = "destination:tokyo"

func scenarioDerived(t *testing.T) (cdg.Graph, []cdg.ConceptItem, []cdg.ConceptMotif, []cdg.MotifLink) {
	t.Helper()
	g, concepts := scenarioGraph()
	motifs := ReconcileMotifsWithGraph(g, concepts, nil, testOpts())
	links := ReconcileMotifLinks(motifs, nil, testOpts())
	return g, concepts, motifs, links
}

func TestReconcileContextsScenario(t *testing.T) {
	g, concepts, motifs, links := scenarioDerived(t)
	got := ReconcileContextsWithGraph(g, concepts, motifs, links, nil, testOpts())
	if len(got) != 2 {
		t.Fatalf("expected global + one destination context, got %d", len(got))
	}

	global, ok := contextByKey(got, cdg.GlobalContextKey)
	if !ok {
		t.Fatalf("missing global context")
	}
	if global.ID != contextID(cdg.GlobalContextKey) || global.Status != cdg.ContextActive {
		t.Fatalf("unexpected global context %+v", global)
	}
	if diff := cmp.Diff([]string{"budget", "destination", "global", "goal", "people"}, global.Tags); diff != "" {
		t.Fatalf("global tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a1", "b1", "c1", "d1"}, global.NodeIDs); diff != "" {
		t.Fatalf("global nodes mismatch (-want +got):\n%s", diff)
	}

	dest, ok := contextByKey(got, tokyoKey)
	if !ok {
		t.Fatalf("missing destination context")
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, dest.ConceptIDs); diff != "" {
		t.Fatalf("destination concepts mismatch (-want +got):\n%s", diff)
	}
	if len(dest.MotifIDs) != 4 {
		t.Fatalf("expected all 4 motifs in the destination pool, got %d", len(dest.MotifIDs))
	}
	// (0.822 + 0.744 + 0.84 + 0.822) / 4
	if !approx(dest.Confidence, 0.807) {
		t.Fatalf("expected confidence 0.807, got %v", dest.Confidence)
	}
	if dest.Title != "目的地：东京" || len(dest.OpenQuestions) != 0 {
		t.Fatalf("unexpected destination title/questions: %q %v", dest.Title, dest.OpenQuestions)
	}
}

func TestReconcileContextsPauseInvariant(t *testing.T) {
	g, concepts, motifs, links := scenarioDerived(t)
	base := []cdg.ContextItem{
		{Key: tokyoKey, Title: "东京行", Paused: true, Status: cdg.ContextActive},
		{Key: cdg.GlobalContextKey, Locked: true},
	}
	got := ReconcileContextsWithGraph(g, concepts, motifs, links, base, testOpts())

	dest, _ := contextByKey(got, tokyoKey)
	if dest.Status != cdg.ContextDisabled || !dest.Paused {
		t.Fatalf("expected paused context to be disabled, got %s paused=%v", dest.Status, dest.Paused)
	}
	if dest.Title != "东京行" {
		t.Fatalf("expected persisted title, got %q", dest.Title)
	}
	global, _ := contextByKey(got, cdg.GlobalContextKey)
	if !global.Locked || global.Paused {
		t.Fatalf("expected flags copied verbatim, got locked=%v paused=%v", global.Locked, global.Paused)
	}
	if got[len(got)-1].Key != tokyoKey {
		t.Fatalf("expected disabled context sorted last")
	}

	// even with a conflict in its pool the paused context stays disabled
	motifs[0].Status = cdg.MotifDeprecated
	got = ReconcileContextsWithGraph(g, concepts, motifs, links, base, testOpts())
	if dest, _ := contextByKey(got, tokyoKey); dest.Status != cdg.ContextDisabled {
		t.Fatalf("expected paused context disabled despite conflicts, got %s", dest.Status)
	}
}

func TestReconcileContextsStatusAndQuestions(t *testing.T) {
	g, concepts, motifs, _ := scenarioDerived(t)
	motifs[0].Status = cdg.MotifUncertain
	motifs[1].Status = cdg.MotifUncertain
	got := ReconcileContextsWithGraph(g, concepts, motifs, nil, nil, testOpts())
	dest, _ := contextByKey(got, tokyoKey)
	if dest.Status != cdg.ContextUncertain {
		t.Fatalf("expected uncertain, got %s", dest.Status)
	}
	want := []string{"请确认：" + motifs[0].Title, "请确认：" + motifs[1].Title}
	if motifs[0].Title == motifs[1].Title {
		want = want[:1]
	}
	if diff := cmp.Diff(want, dest.OpenQuestions); diff != "" {
		t.Fatalf("questions mismatch (-want +got):\n%s", diff)
	}

	motifs[2].Status = cdg.MotifDeprecated
	got = ReconcileContextsWithGraph(g, concepts, motifs, nil, nil, testOpts())
	if got[0].Status != cdg.ContextConflicted {
		t.Fatalf("expected conflicted contexts first, got %s", got[0].Status)
	}
	found := false
	for _, q := range got[0].OpenQuestions {
		if strings.HasPrefix(q, "冲突待解：") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a conflict question, got %v", got[0].OpenQuestions)
	}
}

func TestReconcileContextsUserConflictLinkAndCancelled(t *testing.T) {
	g, concepts, motifs, _ := scenarioDerived(t)
	links := []cdg.MotifLink{{
		ID: linkID(motifs[0].ID, motifs[1].ID), FromMotifID: motifs[0].ID, ToMotifID: motifs[1].ID,
		Type: cdg.LinkConflicts, Confidence: 0.5, Source: cdg.SourceUser,
	}}
	got := ReconcileContextsWithGraph(g, concepts, motifs, links, nil, testOpts())
	dest, _ := contextByKey(got, tokyoKey)
	if dest.Status != cdg.ContextConflicted {
		t.Fatalf("expected user conflict link to mark the context conflicted, got %s", dest.Status)
	}
	wantQ := "冲突待解：" + motifs[0].Title + " ↔ " + motifs[1].Title
	if len(dest.OpenQuestions) != 1 || dest.OpenQuestions[0] != wantQ {
		t.Fatalf("expected %q, got %v", wantQ, dest.OpenQuestions)
	}

	for i := range motifs {
		motifs[i].Status = cdg.MotifCancelled
	}
	got = ReconcileContextsWithGraph(g, concepts, motifs, nil, nil, testOpts())
	global, _ := contextByKey(got, cdg.GlobalContextKey)
	if len(global.MotifIDs) != 0 || global.Confidence != 0.72 {
		t.Fatalf("expected cancelled motifs ignored and the empty default, got %d motifs conf=%v", len(global.MotifIDs), global.Confidence)
	}
	dest, _ = contextByKey(got, tokyoKey)
	// 0.62 + 0.10*0.9
	if !approx(dest.Confidence, 0.71) || dest.Status != cdg.ContextActive {
		t.Fatalf("expected empty destination default 0.71/active, got %v/%s", dest.Confidence, dest.Status)
	}
}

func TestReconcileContextsMergeRules(t *testing.T) {
	g, concepts, motifs, links := scenarioDerived(t)
	base := []cdg.ContextItem{
		{Key: tokyoKey, OpenQuestions: []string{"要住几晚？"}, Summary: "用户写的摘要"},
		{Key: "destination:kyoto", Title: "京都", Locked: true, Paused: true, Status: cdg.ContextActive},
		{Key: "destination:osaka", Title: "大阪"},
	}
	got := ReconcileContextsWithGraph(g, concepts, motifs, links, base, testOpts())

	dest, _ := contextByKey(got, tokyoKey)
	if diff := cmp.Diff([]string{"要住几晚？"}, dest.OpenQuestions); diff != "" {
		t.Fatalf("expected persisted questions when none are fresh (-want +got):\n%s", diff)
	}
	if dest.Summary != "用户写的摘要" {
		t.Fatalf("expected persisted summary, got %q", dest.Summary)
	}
	kyoto, ok := contextByKey(got, "destination:kyoto")
	if !ok || kyoto.Status != cdg.ContextDisabled || kyoto.ID != contextID("destination:kyoto") {
		t.Fatalf("expected locked context retained and disabled, got %+v (found=%v)", kyoto, ok)
	}
	if _, ok := contextByKey(got, "destination:osaka"); ok {
		t.Fatalf("unlocked stale contexts must be dropped")
	}

	again := ReconcileContextsWithGraph(g, concepts, motifs, links, got, Options{Now: testNow.AddDate(0, 0, 1)})
	if diff := cmp.Diff(got, again); diff != "" {
		t.Fatalf("re-derivation drifted (-first +second):\n%s", diff)
	}
}

func TestReconcileContextsCaps(t *testing.T) {
	var concepts []cdg.ConceptItem
	for i := 0; i < 12; i++ {
		concepts = append(concepts, cdg.ConceptItem{
			ID:          fmt.Sprintf("d%02d", i),
			Family:      cdg.FamilyDestination,
			Score:       0.5 + float64(i)/100,
			SemanticKey: fmt.Sprintf("city%02d", i),
		})
	}
	got := ReconcileContextsWithGraph(cdg.Graph{}, concepts, nil, nil, nil, testOpts())
	if len(got) != 1+DefaultTuning().Contexts.MaxDestinations {
		t.Fatalf("expected global + %d destinations, got %d", DefaultTuning().Contexts.MaxDestinations, len(got))
	}
	if _, ok := contextByKey(got, "destination:city11"); !ok {
		t.Fatalf("expected the highest-scored destination to be kept")
	}
	if _, ok := contextByKey(got, "destination:city00"); ok {
		t.Fatalf("expected the lowest-scored destination to be dropped")
	}

	small := DefaultTuning()
	small.Contexts.Cap = 3
	if got := ReconcileContextsWithGraph(cdg.Graph{}, concepts, nil, nil, nil, Options{Now: testNow, Tuning: &small}); len(got) != 3 {
		t.Fatalf("expected tuned cap 3, got %d", len(got))
	}
}

func TestReconcileContextsDestinationPoolTouchesDestination(t *testing.T) {
	g, concepts := scenarioGraph()
	g.Nodes = append(g.Nodes, cdg.Node{ID: "x1", Type: cdg.NodeRisk, Statement: "雨季", Confidence: 0.7})
	g.Edges = append(g.Edges, cdg.Edge{ID: "e5", From: "a1", To: "x1", Type: cdg.EdgeConflictsWith, Confidence: 0.9})
	concepts = append(concepts, cdg.ConceptItem{ID: "X", Family: "risk", Score: 0.7, NodeIDs: []string{"x1"}, SemanticKey: "risk:rain"})
	motifs := ReconcileMotifsWithGraph(g, concepts, nil, testOpts())
	links := ReconcileMotifLinks(motifs, nil, testOpts())

	got := ReconcileContextsWithGraph(g, concepts, motifs, links, nil, testOpts())
	global, _ := contextByKey(got, cdg.GlobalContextKey)
	if global.Status != cdg.ContextConflicted {
		t.Fatalf("expected the A-X conflict to mark the global context, got %s", global.Status)
	}
	dest, _ := contextByKey(got, tokyoKey)
	if dest.Status == cdg.ContextConflicted {
		t.Fatalf("a conflict that does not include the destination must not mark it conflicted")
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, dest.ConceptIDs); diff != "" {
		t.Fatalf("destination concepts mismatch (-want +got):\n%s", diff)
	}
	for _, id := range dest.MotifIDs {
		for _, m := range motifs {
			if m.ID == id && !containsString(m.ConceptIDs, "D") {
				t.Fatalf("motif %s does not include the destination", m.TemplateKey)
			}
		}
	}
}

func TestReconcileContextsNormalizesRetainedLockedContext(t *testing.T) {
	g, concepts, motifs, links := scenarioDerived(t)
	base := []cdg.ContextItem{
		{Key: "destination:gone", Status: "ACTIVE ", Locked: true, Confidence: 3.5},
		{Key: "destination:odd", Status: "exploding", Locked: true, Confidence: 0.4, ConceptIDs: []string{"b", "a", "a"}},
		{Key: "destination:held", Status: " Conflicted", Locked: true, Confidence: 0.3},
	}
	got := ReconcileContextsWithGraph(g, concepts, motifs, links, base, testOpts())

	gone, ok := contextByKey(got, "destination:gone")
	if !ok || gone.Status != cdg.ContextActive {
		t.Fatalf("expected retained context normalized to active, got %+v (found=%v)", gone, ok)
	}
	if gone.Confidence != DefaultTuning().Contexts.DestinationDefaultBase {
		t.Fatalf("expected out-of-range confidence replaced, got %v", gone.Confidence)
	}
	odd, _ := contextByKey(got, "destination:odd")
	if odd.Status != cdg.ContextActive || odd.Confidence != 0.4 {
		t.Fatalf("unexpected odd context %+v", odd)
	}
	if diff := cmp.Diff([]string{"a", "b"}, odd.ConceptIDs); diff != "" {
		t.Fatalf("retained concept ids mismatch (-want +got):\n%s", diff)
	}
	held, _ := contextByKey(got, "destination:held")
	if held.Status != cdg.ContextConflicted {
		t.Fatalf("expected conflicted kept, got %s", held.Status)
	}
	for _, c := range got {
		if rankOf(c.Status) == len(contextStatusRank) {
			t.Fatalf("context %s has invalid status %q", c.Key, c.Status)
		}
	}
}
