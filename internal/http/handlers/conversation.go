package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/http/response"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg"
	"github.com/yungbote/cognigraph-backend/internal/modules/cdg/steps"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

// ConversationService is the slice of the CDG usecases the HTTP layer drives.
type ConversationService interface {
	CreateConversation(ctx context.Context, title string) (*types.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*types.Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]*types.Conversation, error)
	GetDerived(ctx context.Context, id uuid.UUID) (cdg.DerivedView, error)
	ApplyPatch(ctx context.Context, id uuid.UUID, in cdg.PatchInput) (cdg.DerivedView, error)
	ReplaceConcepts(ctx context.Context, id uuid.UUID, concepts []types.ConceptItem) (cdg.DerivedView, error)
	SetContextFlags(ctx context.Context, id uuid.UUID, key string, flags steps.ContextFlags) (cdg.DerivedView, error)
	OverrideMotifLink(ctx context.Context, id uuid.UUID, in cdg.LinkOverride) (cdg.DerivedView, error)
	RemoveMotifLinkOverride(ctx context.Context, id uuid.UUID, from, to string) (cdg.DerivedView, error)
	ClassifyConstraints(ctx context.Context, items []steps.ClassifyInput) []types.ConstraintClassified
}

type ConversationHandler struct {
	log *logger.Logger
	cdg ConversationService
}

func NewConversationHandler(log *logger.Logger, svc ConversationService) *ConversationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ConversationHandler{log: log.With("handler", "ConversationHandler"), cdg: svc}
}

func conversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return uuid.Nil, false
	}
	return id, true
}

type createConversationRequest struct {
	Title string `json:"title" binding:"max=200"`
}

// POST /api/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	conv, err := h.cdg.CreateConversation(c.Request.Context(), req.Title)
	if err != nil {
		response.RespondFromError(c, err, "create_conversation_failed")
		return
	}
	response.RespondCreated(c, gin.H{"conversation": conv})
}

// GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	rows, err := h.cdg.ListConversations(c.Request.Context(), limit)
	if err != nil {
		response.RespondFromError(c, err, "list_conversations_failed")
		return
	}
	response.RespondOK(c, gin.H{"conversations": rows})
}

// GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, err := h.cdg.GetConversation(c.Request.Context(), id)
	if err != nil {
		response.RespondFromError(c, err, "get_conversation_failed")
		return
	}
	response.RespondOK(c, gin.H{"conversation": conv})
}

// GET /api/conversations/:id/derived
func (h *ConversationHandler) GetDerived(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	view, err := h.cdg.GetDerived(c.Request.Context(), id)
	if err != nil {
		response.RespondFromError(c, err, "derive_failed")
		return
	}
	response.RespondOK(c, gin.H{"derived": view})
}

type replaceConceptsRequest struct {
	Concepts []types.ConceptItem `json:"concepts" binding:"required"`
}

// PUT /api/conversations/:id/concepts
func (h *ConversationHandler) ReplaceConcepts(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req replaceConceptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.cdg.ReplaceConcepts(c.Request.Context(), id, req.Concepts)
	if err != nil {
		response.RespondFromError(c, err, "replace_concepts_failed")
		return
	}
	response.RespondOK(c, gin.H{"derived": view})
}

type applyPatchRequest struct {
	Ops              []types.PatchOp `json:"ops" binding:"required,min=1"`
	Notes            []string        `json:"notes"`
	Reason           string          `json:"reason" binding:"max=500"`
	By               string          `json:"by" binding:"max=64"`
	BaseGraphVersion *int            `json:"baseGraphVersion"`
}

// POST /api/conversations/:id/patches
func (h *ConversationHandler) ApplyPatch(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req applyPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.cdg.ApplyPatch(c.Request.Context(), id, cdg.PatchInput{
		Patch:            types.Patch{Ops: req.Ops, Notes: req.Notes},
		Reason:           req.Reason,
		By:               req.By,
		BaseGraphVersion: req.BaseGraphVersion,
	})
	if err != nil {
		response.RespondFromError(c, err, "apply_patch_failed")
		return
	}
	response.RespondOK(c, gin.H{"derived": view})
}

type contextFlagsRequest struct {
	Locked *bool `json:"locked"`
	Paused *bool `json:"paused"`
}

// PUT /api/conversations/:id/contexts/:key/flags
func (h *ConversationHandler) SetContextFlags(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req contextFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.cdg.SetContextFlags(c.Request.Context(), id, c.Param("key"), steps.ContextFlags{
		Locked: req.Locked,
		Paused: req.Paused,
	})
	if err != nil {
		response.RespondFromError(c, err, "set_context_flags_failed")
		return
	}
	response.RespondOK(c, gin.H{"derived": view})
}

type motifLinkRequest struct {
	FromMotifID string   `json:"fromMotifId" binding:"required,max=128"`
	ToMotifID   string   `json:"toMotifId" binding:"required,max=128"`
	Type        string   `json:"type" binding:"omitempty,oneof=supports depends_on conflicts refines"`
	Confidence  *float64 `json:"confidence" binding:"omitempty,gte=0,lte=1"`
}

// PUT /api/conversations/:id/motif-links
func (h *ConversationHandler) OverrideMotifLink(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req motifLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.cdg.OverrideMotifLink(c.Request.Context(), id, cdg.LinkOverride{
		FromMotifID: req.FromMotifID,
		ToMotifID:   req.ToMotifID,
		Type:        types.NormalizeLinkType(req.Type),
		Confidence:  req.Confidence,
	})
	if err != nil {
		response.RespondFromError(c, err, "override_motif_link_failed")
		return
	}
	response.RespondOK(c, gin.H{"derived": view})
}

// DELETE /api/conversations/:id/motif-links?from=&to=
func (h *ConversationHandler) RemoveMotifLinkOverride(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	view, err := h.cdg.RemoveMotifLinkOverride(c.Request.Context(), id, c.Query("from"), c.Query("to"))
	if err != nil {
		response.RespondFromError(c, err, "remove_motif_link_failed")
		return
	}
	response.RespondOK(c, gin.H{"derived": view})
}

type classifyItem struct {
	Text       string   `json:"text" binding:"max=2000"`
	Evidence   string   `json:"evidence" binding:"max=2000"`
	Importance *float64 `json:"importance"`
	Hard       bool     `json:"hard"`
}

type classifyRequest struct {
	Items []classifyItem `json:"items" binding:"required,max=200,dive"`
}

// POST /api/constraints/classify
func (h *ConversationHandler) ClassifyConstraints(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	items := make([]steps.ClassifyInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, steps.ClassifyInput{
			Text:       it.Text,
			Evidence:   it.Evidence,
			Importance: it.Importance,
			Hard:       it.Hard,
		})
	}
	response.RespondOK(c, gin.H{"constraints": h.cdg.ClassifyConstraints(c.Request.Context(), items)})
}
