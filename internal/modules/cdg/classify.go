package cdg

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg/steps"
)

// ClassifyConstraints classifies each statement and dedupes the results.
// Statements that carry no constraint cue are dropped.
func (u Usecases) ClassifyConstraints(ctx context.Context, items []steps.ClassifyInput) []types.ConstraintClassified {
	_, span := u.startSpan(ctx, "cdg.classify_constraints", uuid.Nil)
	defer span.End()

	out := make([]types.ConstraintClassified, 0, len(items))
	for _, in := range items {
		c, ok := steps.ClassifyConstraintText(in)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	out = steps.DedupeClassifiedConstraints(out)
	for _, c := range out {
		u.deps.Metrics.IncConstraintClassified(c.Family, c.Hard)
	}
	return out
}
