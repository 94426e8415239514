package cdg

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/cognigraph-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
	types "github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg/steps"
)

// PatchInput is one batch of graph edits. BaseGraphVersion, when set, pins the
// graph version the client built the patch against; a mismatch is a conflict
// and is never retried.
type PatchInput struct {
	Patch            types.Patch
	Reason           string
	By               string
	BaseGraphVersion *int
}

// ApplyPatch enriches the patch, applies it to the stored graph, commits the
// new graph and returns the derived state for the new revision.
func (u Usecases) ApplyPatch(ctx context.Context, id uuid.UUID, in PatchInput) (view DerivedView, err error) {
	const op = "cdg.apply_patch"
	ctx, span := u.startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	if len(in.Patch.Ops) == 0 {
		return DerivedView{}, domainagg.Validation(op, "patch has no ops")
	}
	span.SetAttributes(attribute.Int("cdg.patch_ops", len(in.Patch.Ops)))
	enriched := steps.EnrichPatchWithMotifFoundation(in.Patch, steps.EnrichMeta{
		Reason: in.Reason,
		By:     in.By,
		Now:    u.now(),
	})

	commit := func(conv *types.Conversation) error {
		g, err := conv.DecodeGraph()
		if err != nil {
			return domainagg.NewError(domainagg.CodeInternal, op, "stored graph is unreadable", err)
		}
		next, err := types.ApplyPatch(g, enriched)
		if err != nil {
			return domainagg.Wrap(domainagg.CodeValidation, op, err)
		}
		_, err = u.deps.ConversationAgg.CommitGraph(ctx, aggregates.CommitGraphInput{
			ConversationID:   conv.ID,
			ExpectedRevision: conv.Revision,
			BaseGraphVersion: in.BaseGraphVersion,
			Graph:            next,
		})
		return err
	}

	var conv *types.Conversation
	if in.BaseGraphVersion != nil {
		if conv, err = u.load(ctx, op, id); err != nil {
			return DerivedView{}, err
		}
		if err = commit(conv); err != nil {
			return DerivedView{}, err
		}
		conv, err = u.load(ctx, op, id)
	} else {
		conv, err = u.retryOnConflict(ctx, op, id, commit)
	}
	if err != nil {
		return DerivedView{}, err
	}
	for _, o := range enriched.Ops {
		u.deps.Metrics.IncPatchOp(strings.ToLower(strings.TrimSpace(o.Op)))
	}
	return u.derivedFor(ctx, conv, "patch")
}

// ReplaceConcepts stores the latest upstream concept extraction and re-derives.
func (u Usecases) ReplaceConcepts(ctx context.Context, id uuid.UUID, concepts []types.ConceptItem) (view DerivedView, err error) {
	const op = "cdg.replace_concepts"
	ctx, span := u.startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	for i, c := range concepts {
		if strings.TrimSpace(c.ID) == "" {
			return DerivedView{}, domainagg.Validation(op, "concept %d has no id", i)
		}
	}
	conv, err := u.retryOnConflict(ctx, op, id, func(conv *types.Conversation) error {
		_, err := u.deps.ConversationAgg.ReplaceConcepts(ctx, aggregates.ReplaceConceptsInput{
			ConversationID:   conv.ID,
			ExpectedRevision: conv.Revision,
			Concepts:         concepts,
		})
		return err
	})
	if err != nil {
		return DerivedView{}, err
	}
	return u.derivedFor(ctx, conv, "concepts")
}

// SetContextFlags updates the locked/paused flags of one context. Pausing
// disables the context right away and it stays disabled until unpaused.
func (u Usecases) SetContextFlags(ctx context.Context, id uuid.UUID, key string, flags steps.ContextFlags) (view DerivedView, err error) {
	const op = "cdg.set_context_flags"
	ctx, span := u.startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	key = strings.TrimSpace(key)
	if key == "" {
		return DerivedView{}, domainagg.Validation(op, "missing context key")
	}
	if flags.Locked == nil && flags.Paused == nil {
		return DerivedView{}, domainagg.Validation(op, "no flags to set")
	}
	conv, err := u.retryOnConflict(ctx, op, id, func(conv *types.Conversation) error {
		prior, err := u.current(conv)
		if err != nil {
			return err
		}
		contexts, ok := steps.ApplyContextFlags(prior.Contexts, key, flags, u.opts())
		if !ok {
			return domainagg.NotFound(op, "context not found: %s", key)
		}
		prior.Contexts = contexts
		return u.commitOverrides(ctx, conv, prior)
	})
	if err != nil {
		return DerivedView{}, err
	}
	return u.derivedFor(ctx, conv, "override")
}

// LinkOverride is a user-authored link between two motifs.
type LinkOverride struct {
	FromMotifID string
	ToMotifID   string
	Type        types.LinkType
	// Confidence defaults to 1 when nil.
	Confidence *float64
}

// OverrideMotifLink stores a user link. User links outrank system links for
// the same pair and survive re-derivation while both motifs exist.
func (u Usecases) OverrideMotifLink(ctx context.Context, id uuid.UUID, in LinkOverride) (view DerivedView, err error) {
	const op = "cdg.override_motif_link"
	ctx, span := u.startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	from, to := strings.TrimSpace(in.FromMotifID), strings.TrimSpace(in.ToMotifID)
	if from == "" || to == "" {
		return DerivedView{}, domainagg.Validation(op, "fromMotifId and toMotifId are required")
	}
	if from == to {
		return DerivedView{}, domainagg.Validation(op, "a motif cannot link to itself")
	}
	confidence := 1.0
	if in.Confidence != nil {
		if *in.Confidence < 0 || *in.Confidence > 1 {
			return DerivedView{}, domainagg.Validation(op, "confidence must be within [0,1]")
		}
		confidence = *in.Confidence
	}

	conv, err := u.retryOnConflict(ctx, op, id, func(conv *types.Conversation) error {
		prior, err := u.current(conv)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(prior.Motifs))
		for _, m := range prior.Motifs {
			known[m.ID] = true
		}
		for _, mid := range []string{from, to} {
			if !known[mid] {
				return domainagg.NotFound(op, "motif not found: %s", mid)
			}
		}
		prior.MotifLinks = steps.WithUserLink(prior.MotifLinks, from, to, in.Type, confidence, u.opts())
		return u.commitOverrides(ctx, conv, prior)
	})
	if err != nil {
		return DerivedView{}, err
	}
	return u.derivedFor(ctx, conv, "override")
}

// RemoveMotifLinkOverride drops the user link from->to so the system link, if
// any, can return on the next derivation.
func (u Usecases) RemoveMotifLinkOverride(ctx context.Context, id uuid.UUID, from, to string) (view DerivedView, err error) {
	const op = "cdg.remove_motif_link_override"
	ctx, span := u.startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	conv, err := u.retryOnConflict(ctx, op, id, func(conv *types.Conversation) error {
		prior, err := u.current(conv)
		if err != nil {
			return err
		}
		links := steps.WithoutUserLink(prior.MotifLinks, from, to)
		if len(links) == len(prior.MotifLinks) {
			return domainagg.NotFound(op, "no user link %s -> %s", strings.TrimSpace(from), strings.TrimSpace(to))
		}
		prior.MotifLinks = links
		return u.commitOverrides(ctx, conv, prior)
	})
	if err != nil {
		return DerivedView{}, err
	}
	return u.derivedFor(ctx, conv, "override")
}

// current returns the derived state matching conv's revision, computing it in
// memory when the stored arrays are stale so overrides land on current items.
func (u Usecases) current(conv *types.Conversation) (types.DerivedState, error) {
	prior := conv.DecodeDerived()
	if conv.DerivedFresh() {
		return prior, nil
	}
	g, err := conv.DecodeGraph()
	if err != nil {
		return types.DerivedState{}, domainagg.NewError(domainagg.CodeInternal, "cdg.derive", "stored graph is unreadable", err)
	}
	concepts, err := conv.DecodeConcepts()
	if err != nil {
		return types.DerivedState{}, domainagg.NewError(domainagg.CodeInternal, "cdg.derive", "stored concepts are unreadable", err)
	}
	return steps.Derive(steps.DeriveInput{Graph: g, Concepts: concepts, Prior: prior, Options: u.opts()}).Derived, nil
}

func (u Usecases) commitOverrides(ctx context.Context, conv *types.Conversation, prior types.DerivedState) error {
	_, err := u.deps.ConversationAgg.CommitOverrides(ctx, aggregates.CommitOverridesInput{
		ConversationID:   conv.ID,
		ExpectedRevision: conv.Revision,
		Prior:            prior,
	})
	return err
}
