package steps

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

func TestEnrichPatchAddNode(t *testing.T) {
	long := strings.Repeat("想", 100)
	in := cdg.Patch{Ops: []cdg.PatchOp{{
		Op:   cdg.OpAddNode,
		Node: cdg.NodeFields{"id": "n1", "type": "goal", "statement": long, "importance": 1.4},
	}}}
	out := EnrichPatchWithMotifFoundation(in, EnrichMeta{Reason: "turn 3", Now: testNow})

	n := out.Ops[0].Node
	if n["motifType"] != "expectation" {
		t.Fatalf("expected expectation for goal, got %v", n["motifType"])
	}
	claim, _ := n["claim"].(string)
	if want := strings.Repeat("想", claimMaxChars) + "…"; claim != want {
		t.Fatalf("expected claim truncated to %d runes, got %q", claimMaxChars, claim)
	}
	if n["priority"] != 1.0 {
		t.Fatalf("expected clamped priority 1, got %v", n["priority"])
	}
	revs, _ := n["revisionHistory"].([]cdg.Revision)
	want := []cdg.Revision{{At: testOpts().stamp(), Action: "created", By: "system", Reason: "turn 3"}}
	if diff := cmp.Diff(want, revs); diff != "" {
		t.Fatalf("revision mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{MotifFoundationNote}, out.Notes); diff != "" {
		t.Fatalf("notes mismatch (-want +got):\n%s", diff)
	}

	if in.Ops[0].Node.Has("claim") || len(in.Notes) != 0 {
		t.Fatalf("input patch must not be mutated")
	}
}

func TestEnrichPatchUpdateNode(t *testing.T) {
	in := cdg.Patch{Ops: []cdg.PatchOp{
		{Op: cdg.OpUpdateNode, ID: "n1", Node: cdg.NodeFields{"confidence": 0.9}},
		{Op: cdg.OpUpdateNode, ID: "n2", Node: cdg.NodeFields{"claim": "已有"}},
		{Op: cdg.OpUpdateNode, ID: "n3", Node: cdg.NodeFields{"type": "constraint", "strength": "hard"}},
		{Op: cdg.OpUpdateNode, ID: "n4", Node: cdg.NodeFields{"layer": "preference", "revisionHistory": []any{}}},
		{Op: cdg.OpAddEdge, Edge: &cdg.Edge{From: "n1", To: "n2"}},
	}}
	out := EnrichPatchWithMotifFoundation(in, EnrichMeta{By: "user", Now: testNow})

	n1 := out.Ops[0].Node
	if n1.Has("motifType") {
		t.Fatalf("update without shape fields must not infer motifType")
	}
	revs, _ := n1["revisionHistory"].([]cdg.Revision)
	if len(revs) != 1 || revs[0].Action != "updated" || revs[0].By != "user" {
		t.Fatalf("expected one updated revision by user, got %+v", revs)
	}
	if out.Ops[1].Node.Has("revisionHistory") {
		t.Fatalf("claim-only update must not add a revision")
	}
	if out.Ops[2].Node["motifType"] != "hypothesis" {
		t.Fatalf("expected hypothesis for hard constraint, got %v", out.Ops[2].Node["motifType"])
	}
	n4 := out.Ops[3].Node
	if n4["motifType"] != "belief" {
		t.Fatalf("expected belief for preference layer, got %v", n4["motifType"])
	}
	if h, _ := n4["revisionHistory"].([]any); len(h) != 0 {
		t.Fatalf("explicit history must be left alone, got %v", n4["revisionHistory"])
	}
	if out.Ops[4].Node != nil {
		t.Fatalf("edge ops are not enriched")
	}
}

func TestEnrichPatchIsIdempotent(t *testing.T) {
	in := cdg.Patch{
		Ops:   []cdg.PatchOp{{Op: cdg.OpAddNode, Node: cdg.NodeFields{"id": "n1", "type": "risk", "layer": "risk", "statement": "可能下雨"}}},
		Notes: []string{"from turn 2"},
	}
	once := EnrichPatchWithMotifFoundation(in, EnrichMeta{Now: testNow})
	twice := EnrichPatchWithMotifFoundation(once, EnrichMeta{Now: testNow.Add(1)})
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second enrichment changed the patch (-once +twice):\n%s", diff)
	}
	if once.Ops[0].Node["motifType"] != "hypothesis" {
		t.Fatalf("expected hypothesis for risk layer, got %v", once.Ops[0].Node["motifType"])
	}
}

func TestInferMotifType(t *testing.T) {
	cases := []struct{ typ, layer, strength, want string }{
		{"goal", "", "", "expectation"},
		{"fact", "intent", "", "expectation"},
		{"fact", "risk", "", "hypothesis"},
		{"constraint", "", "hard", "hypothesis"},
		{"constraint", "", "soft", "cognitive_step"},
		{"preference", "", "", "belief"},
		{"belief", "", "", "belief"},
		{"question", "", "", "cognitive_step"},
	}
	for _, tc := range cases {
		if got := inferMotifType(tc.typ, tc.layer, tc.strength); got != tc.want {
			t.Fatalf("inferMotifType(%q,%q,%q): expected %s got %s", tc.typ, tc.layer, tc.strength, tc.want, got)
		}
	}
}
