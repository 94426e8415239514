package steps

import "github.com/yungbote/cognigraph-backend/internal/domain/cdg"

// DeriveInput is one conversation's graph, concepts and last derived state.
type DeriveInput struct {
	Graph    cdg.Graph
	Concepts []cdg.ConceptItem
	Prior    cdg.DerivedState
	Options  Options
}

type DeriveOutput struct {
	GraphVersion int
	Derived      cdg.DerivedState
}

// Derive runs motifs, then motif links, then contexts over one snapshot.
// It is pure: the same input always yields the same output.
func Derive(in DeriveInput) DeriveOutput {
	motifs := ReconcileMotifsWithGraph(in.Graph, in.Concepts, in.Prior.Motifs, in.Options)
	links := ReconcileMotifLinks(motifs, in.Prior.MotifLinks, in.Options)
	contexts := ReconcileContextsWithGraph(in.Graph, in.Concepts, motifs, links, in.Prior.Contexts, in.Options)
	return DeriveOutput{
		GraphVersion: in.Graph.Version,
		Derived: cdg.DerivedState{
			Motifs:     motifs,
			MotifLinks: links,
			Contexts:   contexts,
		},
	}
}
