package cdg

import (
	"encoding/json"
	"fmt"
	"strings"

	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
)

const opApplyPatch = "cdg.apply_patch"

// ApplyPatch returns a new graph with every op applied and the version bumped once.
// Any invalid op rejects the whole patch and leaves g untouched.
func ApplyPatch(g Graph, p Patch) (Graph, error) {
	out := Graph{
		Version: g.Version,
		Nodes:   append([]Node(nil), g.Nodes...),
		Edges:   append([]Edge(nil), g.Edges...),
	}
	for i, op := range p.Ops {
		var err error
		switch strings.ToLower(strings.TrimSpace(op.Op)) {
		case OpAddNode, OpUpdateNode:
			err = out.upsertNode(op)
		case OpRemoveNode:
			err = out.removeNode(op.TargetNodeID())
		case OpAddEdge:
			err = out.upsertEdge(op.Edge)
		case OpRemoveEdge:
			id := strings.TrimSpace(op.ID)
			if id == "" && op.Edge != nil {
				id = strings.TrimSpace(op.Edge.ID)
			}
			err = out.removeEdge(id)
		default:
			err = domainagg.Validation(opApplyPatch, "unknown op %q", op.Op)
		}
		if err != nil {
			return g, fmt.Errorf("op %d (%s): %w", i, op.Op, err)
		}
	}
	if len(p.Ops) > 0 {
		out.Version = g.Version + 1
	}
	return out, nil
}

func (g *Graph) upsertNode(op PatchOp) error {
	id := op.TargetNodeID()
	if id == "" {
		return domainagg.Validation(opApplyPatch, "missing node id")
	}
	pos, exists := g.NodeIndex()[id]
	if !exists && strings.EqualFold(op.Op, OpUpdateNode) {
		return domainagg.NotFound(opApplyPatch, "node %q does not exist", id)
	}
	base := Node{ID: id, Confidence: 0.6}
	if exists {
		base = g.Nodes[pos]
	}
	merged, err := mergeNode(base, op.Node)
	if err != nil {
		return err
	}
	merged.ID = id
	merged.Type = NormalizeNodeType(string(merged.Type))
	if err := ValidateNode(merged); err != nil {
		return err
	}
	if exists {
		g.Nodes[pos] = merged
	} else {
		g.Nodes = append(g.Nodes, merged)
	}
	return nil
}

func mergeNode(base Node, fields NodeFields) (Node, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return base, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return base, err
	}
	history := append([]Revision(nil), base.RevisionHistory...)
	for k, v := range fields {
		switch k {
		case "id":
			continue
		case "revisionHistory":
			extra, err := decodeRevisions(v)
			if err != nil {
				return base, domainagg.Validation(opApplyPatch, "revisionHistory: %v", err)
			}
			history = append(history, extra...)
			continue
		}
		m[k] = v
	}
	raw, err = json.Marshal(m)
	if err != nil {
		return base, domainagg.Validation(opApplyPatch, "node %q: %v", base.ID, err)
	}
	var out Node
	if err := json.Unmarshal(raw, &out); err != nil {
		return base, domainagg.Validation(opApplyPatch, "node %q: %v", base.ID, err)
	}
	out.RevisionHistory = history
	return out, nil
}

func decodeRevisions(v any) ([]Revision, error) {
	if v == nil {
		return nil, nil
	}
	if revs, ok := v.([]Revision); ok {
		return append([]Revision(nil), revs...), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out []Revision
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Graph) removeNode(id string) error {
	if id == "" {
		return domainagg.Validation(opApplyPatch, "missing node id")
	}
	pos, ok := g.NodeIndex()[id]
	if !ok {
		return domainagg.NotFound(opApplyPatch, "node %q does not exist", id)
	}
	g.Nodes = append(g.Nodes[:pos:pos], g.Nodes[pos+1:]...)
	edges := g.Edges[:0:0]
	for _, e := range g.Edges {
		if e.From == id || e.To == id {
			continue
		}
		edges = append(edges, e)
	}
	g.Edges = edges
	return nil
}

func (g *Graph) upsertEdge(in *Edge) error {
	if in == nil {
		return domainagg.Validation(opApplyPatch, "add_edge without edge payload")
	}
	e := *in
	e.From = strings.TrimSpace(e.From)
	e.To = strings.TrimSpace(e.To)
	e.Type = NormalizeEdgeType(string(e.Type))
	if strings.TrimSpace(e.ID) == "" {
		e.ID = StableID("e", e.From, e.To, string(e.Type))
	}
	if err := ValidateEdge(e); err != nil {
		return err
	}
	idx := g.NodeIndex()
	if _, ok := idx[e.From]; !ok {
		return domainagg.NotFound(opApplyPatch, "edge source %q does not exist", e.From)
	}
	if _, ok := idx[e.To]; !ok {
		return domainagg.NotFound(opApplyPatch, "edge target %q does not exist", e.To)
	}
	for i := range g.Edges {
		if g.Edges[i].ID == e.ID {
			g.Edges[i] = e
			return nil
		}
	}
	g.Edges = append(g.Edges, e)
	return nil
}

func (g *Graph) removeEdge(id string) error {
	if id == "" {
		return domainagg.Validation(opApplyPatch, "missing edge id")
	}
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			g.Edges = append(g.Edges[:i:i], g.Edges[i+1:]...)
			return nil
		}
	}
	return domainagg.NotFound(opApplyPatch, "edge %q does not exist", id)
}
