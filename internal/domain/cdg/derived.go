package cdg

import "strings"

// DefaultConceptScore applies when a decoded concept carries no score.
const DefaultConceptScore = 0.5

// ConceptItem is produced by upstream concept extraction and consumed read-only.
type ConceptItem struct {
	ID          string   `json:"id"`
	Family      string   `json:"family"`
	Kind        string   `json:"kind"`
	Score       float64  `json:"score"`
	NodeIDs     []string `json:"nodeIds"`
	SemanticKey string   `json:"semanticKey"`
	Title       string   `json:"title"`
	MotifIDs    []string `json:"motifIds,omitempty"`
}

const FamilyDestination = "destination"

const (
	ConstraintFamilyHealth   = "health"
	ConstraintFamilyLanguage = "language"
	ConstraintFamilyGeneric  = "generic"
)

// ConstraintClassified is an intermediate classification result; never persisted.
type ConstraintClassified struct {
	Family     string  `json:"family"`
	Kind       string  `json:"kind,omitempty"`
	Text       string  `json:"text"`
	Hard       bool    `json:"hard"`
	Severity   string  `json:"severity,omitempty"`
	Importance float64 `json:"importance"`
	Evidence   string  `json:"evidence,omitempty"`
}

type MotifStatus string

const (
	MotifActive     MotifStatus = "active"
	MotifUncertain  MotifStatus = "uncertain"
	MotifDisabled   MotifStatus = "disabled"
	MotifDeprecated MotifStatus = "deprecated"
	MotifCancelled  MotifStatus = "cancelled"
)

// NormalizeMotifStatus falls back to active for unknown values.
func NormalizeMotifStatus(s string) MotifStatus {
	switch MotifStatus(strings.ToLower(strings.TrimSpace(s))) {
	case MotifUncertain:
		return MotifUncertain
	case MotifDisabled:
		return MotifDisabled
	case MotifDeprecated:
		return MotifDeprecated
	case MotifCancelled:
		return MotifCancelled
	default:
		return MotifActive
	}
}

const (
	MotifPair  = "pair"
	MotifTriad = "triad"
)

type ConceptMotif struct {
	ID              string      `json:"id"`
	TemplateKey     string      `json:"templateKey"`
	MotifType       string      `json:"motifType"`
	Relation        EdgeType    `json:"relation"`
	ConceptIDs      []string    `json:"conceptIds"`
	AnchorConceptID string      `json:"anchorConceptId"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Confidence      float64     `json:"confidence"`
	Status          MotifStatus `json:"status"`
	SupportEdgeIDs  []string    `json:"supportEdgeIds"`
	SupportNodeIDs  []string    `json:"supportNodeIds"`
	UpdatedAt       string      `json:"updatedAt"`
}

type LinkType string

const (
	LinkSupports  LinkType = "supports"
	LinkDependsOn LinkType = "depends_on"
	LinkConflicts LinkType = "conflicts"
	LinkRefines   LinkType = "refines"
)

func NormalizeLinkType(s string) LinkType {
	switch LinkType(strings.ToLower(strings.TrimSpace(s))) {
	case LinkDependsOn:
		return LinkDependsOn
	case LinkConflicts:
		return LinkConflicts
	case LinkRefines:
		return LinkRefines
	default:
		return LinkSupports
	}
}

const (
	SourceSystem = "system"
	SourceUser   = "user"
)

func NormalizeLinkSource(s string) string {
	if strings.ToLower(strings.TrimSpace(s)) == SourceUser {
		return SourceUser
	}
	return SourceSystem
}

type MotifLink struct {
	ID          string   `json:"id"`
	FromMotifID string   `json:"fromMotifId"`
	ToMotifID   string   `json:"toMotifId"`
	Type        LinkType `json:"type"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
	UpdatedAt   string   `json:"updatedAt"`
}

type ContextStatus string

const (
	ContextActive     ContextStatus = "active"
	ContextUncertain  ContextStatus = "uncertain"
	ContextConflicted ContextStatus = "conflicted"
	ContextDisabled   ContextStatus = "disabled"
)

// NormalizeContextStatus falls back to active for unknown values.
func NormalizeContextStatus(s string) ContextStatus {
	switch ContextStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ContextUncertain:
		return ContextUncertain
	case ContextConflicted:
		return ContextConflicted
	case ContextDisabled:
		return ContextDisabled
	default:
		return ContextActive
	}
}

type ContextItem struct {
	ID            string        `json:"id"`
	Key           string        `json:"key"`
	Title         string        `json:"title"`
	Summary       string        `json:"summary"`
	Status        ContextStatus `json:"status"`
	Confidence    float64       `json:"confidence"`
	ConceptIDs    []string      `json:"conceptIds"`
	MotifIDs      []string      `json:"motifIds"`
	NodeIDs       []string      `json:"nodeIds"`
	Tags          []string      `json:"tags"`
	OpenQuestions []string      `json:"openQuestions"`
	Locked        bool          `json:"locked"`
	Paused        bool          `json:"paused"`
	UpdatedAt     string        `json:"updatedAt"`
}

const GlobalContextKey = "global"

// DestinationContextKey is the key of the context anchored on a destination concept.
func DestinationContextKey(c ConceptItem) string {
	key := strings.TrimSpace(c.SemanticKey)
	if key == "" {
		key = strings.TrimSpace(c.ID)
	}
	return FamilyDestination + ":" + key
}
