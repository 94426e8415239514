package steps

import "github.com/yungbote/cognigraph-backend/internal/domain/cdg"

// conflictIndex holds unordered concept pairs joined by a conflicts_with edge.
type conflictIndex map[string]struct{}

func conflictKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (c conflictIndex) add(a, b string) { c[conflictKey(a, b)] = struct{}{} }

func (c conflictIndex) touches(ids []string) bool {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if _, ok := c[conflictKey(ids[i], ids[j])]; ok {
				return true
			}
		}
	}
	return false
}

// deriveMotifStatus assigns the lifecycle status of a freshly computed motif.
//
//  1. cancelled/disabled on the prior motif are user decisions and are kept.
//  2. deprecated when the motif is itself a conflict or its concepts are
//     contradicted by a conflicts_with edge.
//  3. uncertain below the configured confidence threshold.
//  4. active otherwise.
func deriveMotifStatus(m cdg.ConceptMotif, prior *cdg.ConceptMotif, conflicts conflictIndex, t Tuning) cdg.MotifStatus {
	if prior != nil && prior.Status != "" {
		switch s := cdg.NormalizeMotifStatus(string(prior.Status)); s {
		case cdg.MotifCancelled, cdg.MotifDisabled:
			return s
		}
	}
	if m.Relation == cdg.EdgeConflictsWith || conflicts.touches(m.ConceptIDs) {
		return cdg.MotifDeprecated
	}
	if m.Confidence < t.Motifs.UncertainBelow {
		return cdg.MotifUncertain
	}
	return cdg.MotifActive
}
