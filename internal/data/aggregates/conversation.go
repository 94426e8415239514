package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	cdgrepo "github.com/yungbote/cognigraph-backend/internal/data/repos/cdg"
	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/platform/dbctx"
)

const conversationTable = "cdg_conversation"

// ConversationAggregate owns every authoritative write to a conversation.
//
// Each write is a compare-and-set on the conversation revision, so a caller
// that read a stale row gets CodeConflict instead of clobbering a newer write.
type ConversationAggregate interface {
	domainagg.Aggregate

	// CommitGraph stores a patched graph. Graph.Version must move forward.
	CommitGraph(ctx context.Context, in CommitGraphInput) (CommitResult, error)
	// ReplaceConcepts stores a new upstream concept list.
	ReplaceConcepts(ctx context.Context, in ReplaceConceptsInput) (CommitResult, error)
	// CommitOverrides stores user edits (context flags, user links) carried in
	// the prior derived state; the next derivation reconciles them.
	CommitOverrides(ctx context.Context, in CommitOverridesInput) (CommitResult, error)
	// CommitDerived stores a derivation computed at Revision. A derivation
	// that lost a race with a newer write is dropped, not reported as an error.
	CommitDerived(ctx context.Context, in CommitDerivedInput) (CommitDerivedResult, error)
}

// Operation names reported to Hooks and carried by aggregate errors.
const (
	OpCommitGraph     = "CDG.Conversation.CommitGraph"
	OpReplaceConcepts = "CDG.Conversation.ReplaceConcepts"
	OpCommitOverrides = "CDG.Conversation.CommitOverrides"
	OpCommitDerived   = "CDG.Conversation.CommitDerived"
)

type CommitGraphInput struct {
	ConversationID   uuid.UUID
	ExpectedRevision int
	// BaseGraphVersion, when set, must equal the stored graph version.
	BaseGraphVersion *int
	Graph            cdg.Graph
}

type ReplaceConceptsInput struct {
	ConversationID   uuid.UUID
	ExpectedRevision int
	Concepts         []cdg.ConceptItem
}

type CommitOverridesInput struct {
	ConversationID   uuid.UUID
	ExpectedRevision int
	Prior            cdg.DerivedState
}

type CommitResult struct {
	ConversationID uuid.UUID
	Revision       int
	GraphVersion   int
	CommittedAt    time.Time
}

type CommitDerivedInput struct {
	ConversationID uuid.UUID
	Revision       int
	Derived        cdg.DerivedState
	// ComputedAt is when the derivation ran; zero means now.
	ComputedAt time.Time
}

type CommitDerivedResult struct {
	Written bool
}

type ConversationAggregateDeps struct {
	Base          BaseDeps
	Conversations cdgrepo.ConversationRepo
}

type conversationAggregate struct {
	deps ConversationAggregateDeps
}

func NewConversationAggregate(deps ConversationAggregateDeps) ConversationAggregate {
	deps.Base = deps.Base.withDefaults()
	return &conversationAggregate{deps: deps}
}

func (a *conversationAggregate) Contract() domainagg.Contract {
	return domainagg.ConversationAggregateContract
}

func (a *conversationAggregate) CommitGraph(ctx context.Context, in CommitGraphInput) (CommitResult, error) {
	const op = OpCommitGraph
	var out CommitResult
	if in.ConversationID == uuid.Nil {
		return out, domainagg.Validation(op, "missing conversation_id")
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		conv, err := a.load(dbc, op, in.ConversationID, in.ExpectedRevision)
		if err != nil {
			return err
		}
		if in.BaseGraphVersion != nil {
			if err := RequireVersionMatch(conv.GraphVersion, *in.BaseGraphVersion); err != nil {
				return err
			}
		}
		if in.Graph.Version <= conv.GraphVersion {
			return InvariantError("graph version must increase on commit")
		}
		g := in.Graph
		if g.Nodes == nil {
			g.Nodes = []cdg.Node{}
		}
		if g.Edges == nil {
			g.Edges = []cdg.Edge{}
		}
		now := time.Now().UTC()
		ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, conversationTable, "revision", conv.ID, in.ExpectedRevision, map[string]any{
			"graph":         cdg.EncodeJSON(g),
			"graph_version": g.Version,
			"revision":      in.ExpectedRevision + 1,
			"updated_at":    now,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "conversation changed while committing graph"); err != nil {
			return err
		}
		out = CommitResult{ConversationID: conv.ID, Revision: in.ExpectedRevision + 1, GraphVersion: g.Version, CommittedAt: now}
		return nil
	})
	return out, err
}

func (a *conversationAggregate) ReplaceConcepts(ctx context.Context, in ReplaceConceptsInput) (CommitResult, error) {
	const op = OpReplaceConcepts
	var out CommitResult
	if in.ConversationID == uuid.Nil {
		return out, domainagg.Validation(op, "missing conversation_id")
	}
	concepts := in.Concepts
	if concepts == nil {
		concepts = []cdg.ConceptItem{}
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		conv, err := a.load(dbc, op, in.ConversationID, in.ExpectedRevision)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, conversationTable, "revision", conv.ID, in.ExpectedRevision, map[string]any{
			"concepts":   cdg.EncodeJSON(concepts),
			"revision":   in.ExpectedRevision + 1,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "conversation changed while replacing concepts"); err != nil {
			return err
		}
		out = CommitResult{ConversationID: conv.ID, Revision: in.ExpectedRevision + 1, GraphVersion: conv.GraphVersion, CommittedAt: now}
		return nil
	})
	return out, err
}

func (a *conversationAggregate) CommitOverrides(ctx context.Context, in CommitOverridesInput) (CommitResult, error) {
	const op = OpCommitOverrides
	var out CommitResult
	if in.ConversationID == uuid.Nil {
		return out, domainagg.Validation(op, "missing conversation_id")
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		conv, err := a.load(dbc, op, in.ConversationID, in.ExpectedRevision)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, conversationTable, "revision", conv.ID, in.ExpectedRevision, map[string]any{
			"motifs":      cdg.EncodeJSON(in.Prior.Motifs),
			"motif_links": cdg.EncodeJSON(in.Prior.MotifLinks),
			"contexts":    cdg.EncodeJSON(in.Prior.Contexts),
			"revision":    in.ExpectedRevision + 1,
			"updated_at":  now,
		})
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "conversation changed while storing overrides"); err != nil {
			return err
		}
		out = CommitResult{ConversationID: conv.ID, Revision: in.ExpectedRevision + 1, GraphVersion: conv.GraphVersion, CommittedAt: now}
		return nil
	})
	return out, err
}

func (a *conversationAggregate) CommitDerived(ctx context.Context, in CommitDerivedInput) (CommitDerivedResult, error) {
	const op = OpCommitDerived
	var out CommitDerivedResult
	if in.ConversationID == uuid.Nil {
		return out, domainagg.Validation(op, "missing conversation_id")
	}
	if in.Revision < 0 {
		return out, domainagg.Validation(op, "revision must be >= 0")
	}
	computedAt := in.ComputedAt.UTC()
	if in.ComputedAt.IsZero() {
		computedAt = time.Now().UTC()
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, conversationTable, "revision", in.ConversationID, in.Revision, map[string]any{
			"motifs":           cdg.EncodeJSON(in.Derived.Motifs),
			"motif_links":      cdg.EncodeJSON(in.Derived.MotifLinks),
			"contexts":         cdg.EncodeJSON(in.Derived.Contexts),
			"derived_revision": in.Revision,
			"derived_at":       computedAt,
		})
		if err != nil {
			return err
		}
		out.Written = ok
		return nil
	})
	return out, err
}

func (a *conversationAggregate) load(dbc dbctx.Context, op string, id uuid.UUID, expectedRevision int) (*cdg.Conversation, error) {
	if a.deps.Conversations == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "conversation repo not configured", nil)
	}
	conv, err := a.deps.Conversations.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domainagg.NotFound(op, "conversation not found: %s", id.String())
	}
	if err := RequireVersionMatch(conv.Revision, expectedRevision); err != nil {
		return nil, err
	}
	return conv, nil
}
