package cdg

import "strings"

// NodeType tags the variant of a graph node.
type NodeType string

const (
	NodeGoal       NodeType = "goal"
	NodeConstraint NodeType = "constraint"
	NodePreference NodeType = "preference"
	NodeFact       NodeType = "fact"
	NodeBelief     NodeType = "belief"
	NodeQuestion   NodeType = "question"
	NodeIntent     NodeType = "intent"
	NodeRisk       NodeType = "risk"
	NodeOther      NodeType = "other"
)

// NormalizeNodeType maps free-form type strings onto the known variants.
func NormalizeNodeType(s string) NodeType {
	switch NodeType(strings.ToLower(strings.TrimSpace(s))) {
	case NodeGoal:
		return NodeGoal
	case NodeConstraint:
		return NodeConstraint
	case NodePreference:
		return NodePreference
	case NodeFact:
		return NodeFact
	case NodeBelief:
		return NodeBelief
	case NodeQuestion:
		return NodeQuestion
	case NodeIntent:
		return NodeIntent
	case NodeRisk:
		return NodeRisk
	default:
		return NodeOther
	}
}

const (
	StrengthHard = "hard"
	StrengthSoft = "soft"

	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type Revision struct {
	At     string `json:"at"`
	Action string `json:"action"`
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

type Node struct {
	ID         string   `json:"id" validate:"required,max=128"`
	Type       NodeType `json:"type" validate:"required"`
	Layer      string   `json:"layer,omitempty" validate:"max=64"`
	Statement  string   `json:"statement" validate:"max=2000"`
	Status     string   `json:"status,omitempty" validate:"max=32"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
	Importance float64  `json:"importance,omitempty" validate:"gte=0,lte=1"`
	Strength   string   `json:"strength,omitempty" validate:"omitempty,oneof=hard soft"`
	Severity   string   `json:"severity,omitempty" validate:"omitempty,oneof=medium high critical"`

	MotifType       string     `json:"motifType,omitempty" validate:"max=32"`
	Claim           string     `json:"claim,omitempty" validate:"max=200"`
	Priority        *float64   `json:"priority,omitempty" validate:"omitempty,gte=0,lte=1"`
	RevisionHistory []Revision `json:"revisionHistory,omitempty"`
}

// EdgeType is the relation carried by a directed edge.
type EdgeType string

const (
	EdgeConstraint    EdgeType = "constraint"
	EdgeEnable        EdgeType = "enable"
	EdgeDetermine     EdgeType = "determine"
	EdgeConflictsWith EdgeType = "conflicts_with"
)

// NormalizeEdgeType falls back to determine for unknown relations.
func NormalizeEdgeType(s string) EdgeType {
	switch EdgeType(strings.ToLower(strings.TrimSpace(s))) {
	case EdgeConstraint:
		return EdgeConstraint
	case EdgeEnable:
		return EdgeEnable
	case EdgeConflictsWith:
		return EdgeConflictsWith
	default:
		return EdgeDetermine
	}
}

// DefaultEdgeConfidence applies when a decoded edge carries no confidence.
const DefaultEdgeConfidence = 0.6

type Edge struct {
	ID         string   `json:"id" validate:"max=160"`
	From       string   `json:"from" validate:"required,max=128"`
	To         string   `json:"to" validate:"required,max=128,nefield=From"`
	Type       EdgeType `json:"type"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
}

// Graph is one conversation's Cognitive Dependency Graph.
type Graph struct {
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// NodeIndex returns node id -> position.
func (g Graph) NodeIndex() map[string]int {
	out := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID != "" {
			out[n.ID] = i
		}
	}
	return out
}
