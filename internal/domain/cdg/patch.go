package cdg

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	OpAddNode    = "add_node"
	OpUpdateNode = "update_node"
	OpRemoveNode = "remove_node"
	OpAddEdge    = "add_edge"
	OpRemoveEdge = "remove_edge"
)

// NodeFields is the loosely-shaped node payload of a patch op.
// Key presence is meaningful: an update only touches the keys it carries.
type NodeFields map[string]any

func (f NodeFields) Has(key string) bool {
	if f == nil {
		return false
	}
	v, ok := f[key]
	return ok && v != nil
}

func (f NodeFields) String(key string) string {
	if f == nil {
		return ""
	}
	switch t := f[key].(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return ""
	}
}

// Float reads a numeric field; ok is false when absent or not a finite number.
func (f NodeFields) Float(key string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	var v float64
	switch t := f[key].(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Clone returns a deep copy of the payload.
func (f NodeFields) Clone() NodeFields {
	if f == nil {
		return nil
	}
	out := make(NodeFields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case NodeFields:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	case []Revision:
		return append([]Revision(nil), t...)
	default:
		return v
	}
}

type PatchOp struct {
	Op   string     `json:"op"`
	ID   string     `json:"id,omitempty"`
	Node NodeFields `json:"node,omitempty"`
	Edge *Edge      `json:"edge,omitempty"`
}

type Patch struct {
	Ops   []PatchOp `json:"ops"`
	Notes []string  `json:"notes,omitempty"`
}

// Clone deep-copies the patch so callers can augment it without aliasing.
func (p Patch) Clone() Patch {
	out := Patch{
		Ops:   make([]PatchOp, len(p.Ops)),
		Notes: append([]string(nil), p.Notes...),
	}
	for i, op := range p.Ops {
		cp := op
		cp.Node = op.Node.Clone()
		if op.Edge != nil {
			e := *op.Edge
			cp.Edge = &e
		}
		out.Ops[i] = cp
	}
	return out
}

// TargetNodeID resolves the node id of a node op.
func (op PatchOp) TargetNodeID() string {
	if id := strings.TrimSpace(op.ID); id != "" {
		return id
	}
	return op.Node.String("id")
}
