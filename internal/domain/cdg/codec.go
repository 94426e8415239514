package cdg

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

func (c *Conversation) DecodeGraph() (Graph, error) {
	var g Graph
	if c == nil || len(c.Graph) == 0 {
		return g, nil
	}
	if err := json.Unmarshal(c.Graph, &g); err != nil {
		return Graph{}, fmt.Errorf("decode graph: %w", err)
	}
	g.Version = c.GraphVersion
	return g, nil
}

func (c *Conversation) DecodeConcepts() ([]ConceptItem, error) {
	if c == nil || len(c.Concepts) == 0 {
		return nil, nil
	}
	var out []ConceptItem
	if err := json.Unmarshal(c.Concepts, &out); err != nil {
		return nil, fmt.Errorf("decode concepts: %w", err)
	}
	return out, nil
}

// DecodeDerived never fails: the derived arrays are a cache and a broken
// cache only means the next derivation starts without prior state.
func (c *Conversation) DecodeDerived() DerivedState {
	var out DerivedState
	if c == nil {
		return out
	}
	if len(c.Motifs) > 0 {
		_ = json.Unmarshal(c.Motifs, &out.Motifs)
	}
	if len(c.MotifLinks) > 0 {
		_ = json.Unmarshal(c.MotifLinks, &out.MotifLinks)
	}
	if len(c.Contexts) > 0 {
		_ = json.Unmarshal(c.Contexts, &out.Contexts)
	}
	return out
}

// UnmarshalJSON defaults a missing confidence; an explicit 0 is kept.
func (e *Edge) UnmarshalJSON(data []byte) error {
	type plain Edge
	aux := struct {
		*plain
		Confidence *float64 `json:"confidence"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Confidence = DefaultEdgeConfidence
	if aux.Confidence != nil {
		e.Confidence = *aux.Confidence
	}
	return nil
}

// UnmarshalJSON defaults a missing score; an explicit 0 is kept.
func (c *ConceptItem) UnmarshalJSON(data []byte) error {
	type plain ConceptItem
	aux := struct {
		*plain
		Score *float64 `json:"score"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Score = DefaultConceptScore
	if aux.Score != nil {
		c.Score = *aux.Score
	}
	return nil
}

// EncodeJSON marshals v for a jsonb column; nil slices become [].
func EncodeJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}
