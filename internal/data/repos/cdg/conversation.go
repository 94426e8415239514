package cdg

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/platform/dbctx"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

type ConversationRepo interface {
	Create(dbc dbctx.Context, row *cdg.Conversation) (*cdg.Conversation, error)
	// GetByID returns (nil, nil) when the conversation does not exist.
	GetByID(dbc dbctx.Context, id uuid.UUID) (*cdg.Conversation, error)
	List(dbc dbctx.Context, limit int) ([]*cdg.Conversation, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{
		db:  db,
		log: log.With("repo", "ConversationRepo"),
	}
}

func (r *conversationRepo) Create(dbc dbctx.Context, row *cdg.Conversation) (*cdg.Conversation, error) {
	if row == nil {
		return nil, fmt.Errorf("missing conversation")
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Title = strings.TrimSpace(row.Title)
	if len(row.Graph) == 0 {
		row.Graph = cdg.EncodeJSON(cdg.Graph{Version: row.GraphVersion, Nodes: []cdg.Node{}, Edges: []cdg.Edge{}})
	}
	if len(row.Concepts) == 0 {
		row.Concepts = cdg.EncodeJSON([]cdg.ConceptItem{})
	}
	if len(row.Motifs) == 0 {
		row.Motifs = cdg.EncodeJSON([]cdg.ConceptMotif{})
	}
	if len(row.MotifLinks) == 0 {
		row.MotifLinks = cdg.EncodeJSON([]cdg.MotifLink{})
	}
	if len(row.Contexts) == 0 {
		row.Contexts = cdg.EncodeJSON([]cdg.ContextItem{})
	}
	row.Revision = 0
	row.DerivedRevision = -1
	row.CreatedAt = now
	row.UpdatedAt = now
	if err := dbc.DB(r.db).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*cdg.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	var out cdg.Conversation
	err := dbc.DB(r.db).
		Model(&cdg.Conversation{}).
		Where("id = ?", id).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) List(dbc dbctx.Context, limit int) ([]*cdg.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*cdg.Conversation
	if err := dbc.DB(r.db).
		Model(&cdg.Conversation{}).
		Select("id", "title", "graph_version", "revision", "derived_revision", "created_at", "updated_at").
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
