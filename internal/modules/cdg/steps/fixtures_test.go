package steps

import (
	"math"
	"time"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testOpts() Options { return Options{Now: testNow} }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// scenarioGraph: A-enable->D, B-enable->D, C-constraint->D, one concept per node.
func scenarioGraph() (cdg.Graph, []cdg.ConceptItem) {
	g := cdg.Graph{
		Version: 3,
		Nodes: []cdg.Node{
			{ID: "a1", Type: cdg.NodeGoal, Statement: "去东京看樱花", Confidence: 0.8},
			{ID: "b1", Type: cdg.NodeConstraint, Statement: "预算一万", Confidence: 0.7},
			{ID: "c1", Type: cdg.NodeFact, Statement: "带两个孩子", Confidence: 0.7},
			{ID: "d1", Type: cdg.NodeGoal, Statement: "东京", Confidence: 0.9},
		},
		Edges: []cdg.Edge{
			{ID: "e1", From: "a1", To: "d1", Type: cdg.EdgeEnable, Confidence: 0.8},
			{ID: "e2", From: "b1", To: "d1", Type: cdg.EdgeEnable, Confidence: 0.7},
			{ID: "e3", From: "c1", To: "d1", Type: cdg.EdgeConstraint, Confidence: 0.9},
		},
	}
	concepts := []cdg.ConceptItem{
		{ID: "A", Family: "goal", Kind: "preference", Score: 0.8, NodeIDs: []string{"a1"}, SemanticKey: "goal:sakura", Title: "看樱花"},
		{ID: "B", Family: "budget", Kind: "constraint", Score: 0.7, NodeIDs: []string{"b1"}, SemanticKey: "budget:10k", Title: "预算一万"},
		{ID: "C", Family: "people", Kind: "factual_assertion", Score: 0.6, NodeIDs: []string{"c1"}, SemanticKey: "people:kids", Title: "两个孩子"},
		{ID: "D", Family: "destination", Kind: "preference", Score: 0.9, NodeIDs: []string{"d1"}, SemanticKey: "tokyo", Title: "东京"},
	}
	return g, concepts
}

func motifsByType(ms []cdg.ConceptMotif, motifType string) []cdg.ConceptMotif {
	var out []cdg.ConceptMotif
	for _, m := range ms {
		if m.MotifType == motifType {
			out = append(out, m)
		}
	}
	return out
}

func motifByTemplate(ms []cdg.ConceptMotif, templateKey string) (cdg.ConceptMotif, bool) {
	for _, m := range ms {
		if m.TemplateKey == templateKey {
			return m, true
		}
	}
	return cdg.ConceptMotif{}, false
}

func contextByKey(cs []cdg.ContextItem, key string) (cdg.ContextItem, bool) {
	for _, c := range cs {
		if c.Key == key {
			return c, true
		}
	}
	return cdg.ContextItem{}, false
}
