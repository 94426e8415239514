package cdg

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/cognigraph-backend/internal/clients/redis"
	"github.com/yungbote/cognigraph-backend/internal/data/aggregates"
	"github.com/yungbote/cognigraph-backend/internal/data/graph"
	cdgrepo "github.com/yungbote/cognigraph-backend/internal/data/repos/cdg"
	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
	types "github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg/steps"
	"github.com/yungbote/cognigraph-backend/internal/observability"
	"github.com/yungbote/cognigraph-backend/internal/platform/ctxutil"
	"github.com/yungbote/cognigraph-backend/internal/platform/dbctx"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

const (
	conflictAttempts  = 3
	projectionTimeout = 5 * time.Second
)

type UsecasesDeps struct {
	DB      *gorm.DB
	Log     *logger.Logger
	Metrics *observability.Metrics

	Conversations   cdgrepo.ConversationRepo
	ConversationAgg aggregates.ConversationAggregate

	Cache     redis.DerivedCache
	Projector graph.MotifProjector

	Tuning *steps.Tuning
	// Now stamps derived items; nil means the wall clock.
	Now func() time.Time
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	deps.Log = deps.Log.With("usecase", "CDG")
	if deps.Projector == nil {
		deps.Projector = graph.NewMotifProjector(nil, deps.Log)
	}
	return Usecases{deps: deps}
}

// DerivedView is the derived state of one conversation at one revision.
type DerivedView struct {
	ConversationID uuid.UUID           `json:"conversationId"`
	Revision       int                 `json:"revision"`
	GraphVersion   int                 `json:"graphVersion"`
	Motifs         []types.ConceptMotif `json:"motifs"`
	MotifLinks     []types.MotifLink    `json:"motifLinks"`
	Contexts       []types.ContextItem  `json:"contexts"`
	Cached         bool                `json:"cached"`
	ComputedAt     time.Time           `json:"computedAt"`
}

func viewOf(snap redis.DerivedSnapshot, cached bool) DerivedView {
	return DerivedView{
		ConversationID: snap.ConversationID,
		Revision:       snap.Revision,
		GraphVersion:   snap.GraphVersion,
		Motifs:         nonNil(snap.Derived.Motifs),
		MotifLinks:     nonNil(snap.Derived.MotifLinks),
		Contexts:       nonNil(snap.Derived.Contexts),
		Cached:         cached,
		ComputedAt:     snap.ComputedAt,
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func (u Usecases) now() time.Time {
	if u.deps.Now != nil {
		return u.deps.Now().UTC()
	}
	return time.Now().UTC()
}

func (u Usecases) opts() steps.Options {
	return steps.Options{Now: u.now(), Tuning: u.deps.Tuning}
}

func (u Usecases) startSpan(ctx context.Context, name string, id uuid.UUID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if id != uuid.Nil {
		attrs = append(attrs, attribute.String("cdg.conversation_id", id.String()))
	}
	return observability.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (u Usecases) CreateConversation(ctx context.Context, title string) (conv *types.Conversation, err error) {
	const op = "cdg.create_conversation"
	ctx, span := u.startSpan(ctx, op, uuid.Nil)
	defer func() { endSpan(span, err) }()

	title = strings.TrimSpace(title)
	if len([]rune(title)) > 200 {
		return nil, domainagg.Validation(op, "title longer than 200 characters")
	}
	conv, err = u.deps.Conversations.Create(dbctx.Context{Ctx: ctx}, &types.Conversation{Title: title})
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	u.deps.Log.Info("conversation created", append(ctxutil.LogFields(ctx), "conversation_id", conv.ID.String())...)
	return conv, nil
}

func (u Usecases) GetConversation(ctx context.Context, id uuid.UUID) (*types.Conversation, error) {
	return u.load(ctx, "cdg.get_conversation", id)
}

func (u Usecases) ListConversations(ctx context.Context, limit int) ([]*types.Conversation, error) {
	rows, err := u.deps.Conversations.List(dbctx.Context{Ctx: ctx}, limit)
	if err != nil {
		return nil, aggregates.MapError("cdg.list_conversations", err)
	}
	return rows, nil
}

func (u Usecases) load(ctx context.Context, op string, id uuid.UUID) (*types.Conversation, error) {
	if id == uuid.Nil {
		return nil, domainagg.Validation(op, "missing conversation id")
	}
	conv, err := u.deps.Conversations.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if conv == nil {
		return nil, domainagg.NotFound(op, "conversation not found: %s", id.String())
	}
	return conv, nil
}

// GetDerived serves the derived state for the current revision, deriving and
// persisting it when neither the cache nor the stored arrays are current.
func (u Usecases) GetDerived(ctx context.Context, id uuid.UUID) (view DerivedView, err error) {
	const op = "cdg.get_derived"
	ctx, span := u.startSpan(ctx, op, id)
	defer func() { endSpan(span, err) }()

	conv, err := u.load(ctx, op, id)
	if err != nil {
		return DerivedView{}, err
	}
	return u.derivedFor(ctx, conv, "read")
}

func (u Usecases) derivedFor(ctx context.Context, conv *types.Conversation, trigger string) (DerivedView, error) {
	const op = "cdg.derive"
	if u.deps.Cache != nil {
		snap, ok, err := u.deps.Cache.Get(ctx, conv.ID, conv.Revision)
		if err != nil {
			u.deps.Log.Warn("derived cache read failed", "conversation_id", conv.ID.String(), "error", err)
		}
		u.deps.Metrics.IncCacheLookup(u.deps.Cache.Backend(), ok)
		if ok {
			return viewOf(*snap, true), nil
		}
	}

	if conv.DerivedFresh() {
		snap := redis.DerivedSnapshot{
			ConversationID: conv.ID,
			Revision:       conv.Revision,
			GraphVersion:   conv.GraphVersion,
			Derived:        conv.DecodeDerived(),
		}
		if conv.DerivedAt != nil {
			snap.ComputedAt = conv.DerivedAt.UTC()
		}
		u.publish(ctx, snap, false)
		return viewOf(snap, false), nil
	}

	_, span := observability.Tracer().Start(ctx, op, trace.WithAttributes(
		attribute.String("cdg.trigger", trigger),
		attribute.Int("cdg.revision", conv.Revision),
	))
	start := time.Now()
	g, err := conv.DecodeGraph()
	if err != nil {
		u.deps.Metrics.ObserveDerive(trigger, "error", time.Since(start), 0, 0, 0)
		endSpan(span, err)
		return DerivedView{}, domainagg.NewError(domainagg.CodeInternal, op, "stored graph is unreadable", err)
	}
	concepts, err := conv.DecodeConcepts()
	if err != nil {
		u.deps.Metrics.ObserveDerive(trigger, "error", time.Since(start), 0, 0, 0)
		endSpan(span, err)
		return DerivedView{}, domainagg.NewError(domainagg.CodeInternal, op, "stored concepts are unreadable", err)
	}
	out := steps.Derive(steps.DeriveInput{
		Graph:    g,
		Concepts: concepts,
		Prior:    conv.DecodeDerived(),
		Options:  u.opts(),
	})
	dur := time.Since(start)
	u.deps.Metrics.ObserveDerive(trigger, "ok", dur, len(out.Derived.Motifs), len(out.Derived.MotifLinks), len(out.Derived.Contexts))
	span.SetAttributes(
		attribute.Int("cdg.motifs", len(out.Derived.Motifs)),
		attribute.Int("cdg.motif_links", len(out.Derived.MotifLinks)),
		attribute.Int("cdg.contexts", len(out.Derived.Contexts)),
	)
	endSpan(span, nil)

	computedAt := u.now()
	res, err := u.deps.ConversationAgg.CommitDerived(ctx, aggregates.CommitDerivedInput{
		ConversationID: conv.ID,
		Revision:       conv.Revision,
		Derived:        out.Derived,
		ComputedAt:     computedAt,
	})
	if err != nil {
		return DerivedView{}, err
	}
	snap := redis.DerivedSnapshot{
		ConversationID: conv.ID,
		Revision:       conv.Revision,
		GraphVersion:   out.GraphVersion,
		Derived:        out.Derived,
		ComputedAt:     computedAt,
	}
	if res.Written {
		u.publish(ctx, snap, true)
	} else {
		u.deps.Log.Debug("derivation superseded by a newer write", "conversation_id", conv.ID.String(), "revision", conv.Revision)
	}
	u.deps.Log.Debug("derived state computed",
		"conversation_id", conv.ID.String(),
		"trigger", trigger,
		"revision", conv.Revision,
		"motifs", len(out.Derived.Motifs),
		"duration_ms", dur.Milliseconds(),
	)
	return viewOf(snap, false), nil
}

// publish writes the cache and, for fresh derivations, the graph projection.
// Both are best-effort: failures are logged and never fail the request.
func (u Usecases) publish(ctx context.Context, snap redis.DerivedSnapshot, project bool) {
	eg, egctx := errgroup.WithContext(ctx)
	if u.deps.Cache != nil {
		eg.Go(func() error {
			if err := u.deps.Cache.Set(egctx, snap); err != nil {
				u.deps.Log.Warn("derived cache write failed", "conversation_id", snap.ConversationID.String(), "error", err)
			}
			return nil
		})
	}
	if project {
		eg.Go(func() error {
			pctx, cancel := context.WithTimeout(egctx, projectionTimeout)
			defer cancel()
			if err := u.deps.Projector.Project(pctx, snap.ConversationID, snap.Revision, snap.Derived); err != nil {
				u.deps.Metrics.IncProjection("error")
				u.deps.Log.Warn("graph projection failed", "conversation_id", snap.ConversationID.String(), "error", err)
				return nil
			}
			u.deps.Metrics.IncProjection("ok")
			return nil
		})
	}
	_ = eg.Wait()
}

// retryOnConflict reruns fn against a freshly loaded conversation when a
// concurrent write wins the revision race.
func (u Usecases) retryOnConflict(ctx context.Context, op string, id uuid.UUID, fn func(conv *types.Conversation) error) (*types.Conversation, error) {
	var err error
	for attempt := 1; attempt <= conflictAttempts; attempt++ {
		var conv *types.Conversation
		conv, err = u.load(ctx, op, id)
		if err != nil {
			return nil, err
		}
		err = fn(conv)
		if err == nil || !domainagg.IsCode(err, domainagg.CodeConflict) {
			break
		}
		u.deps.Log.Debug("revision conflict, retrying", "op", op, "conversation_id", id.String(), "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}
	return u.load(ctx, op, id)
}
