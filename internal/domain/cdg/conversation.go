package cdg

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Conversation is the persisted conversation document. Graph and Concepts are
// authoritative; the derived arrays cache the last derivation and feed the next
// reconciliation as prior state.
type Conversation struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title string    `gorm:"column:title;not null;default:''" json:"title"`

	GraphVersion int            `gorm:"column:graph_version;not null;default:0;index" json:"graph_version"`
	Graph        datatypes.JSON `gorm:"type:jsonb;column:graph;not null" json:"graph"`
	Concepts     datatypes.JSON `gorm:"type:jsonb;column:concepts;not null" json:"concepts"`

	Motifs     datatypes.JSON `gorm:"type:jsonb;column:motifs" json:"motifs,omitempty"`
	MotifLinks datatypes.JSON `gorm:"type:jsonb;column:motif_links" json:"motif_links,omitempty"`
	Contexts   datatypes.JSON `gorm:"type:jsonb;column:contexts" json:"contexts,omitempty"`

	// Revision increments on every authoritative write (graph, concepts, user
	// overrides). DerivedRevision is the Revision the derived arrays were computed at.
	Revision        int        `gorm:"column:revision;not null;default:0" json:"revision"`
	DerivedRevision int        `gorm:"column:derived_revision;not null;default:-1" json:"derived_revision"`
	DerivedAt       *time.Time `gorm:"column:derived_at" json:"derived_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Conversation) TableName() string { return "cdg_conversation" }

// DerivedFresh reports whether the stored derived arrays reflect the current revision.
func (c *Conversation) DerivedFresh() bool {
	return c != nil && c.DerivedRevision == c.Revision
}

// DerivedState is the set of arrays recomputed on every turn.
type DerivedState struct {
	Motifs     []ConceptMotif `json:"motifs"`
	MotifLinks []MotifLink    `json:"motifLinks"`
	Contexts   []ContextItem  `json:"contexts"`
}
