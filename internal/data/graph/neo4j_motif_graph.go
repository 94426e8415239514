package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
	"github.com/yungbote/cognigraph-backend/internal/platform/neo4jdb"
)

// MotifProjector mirrors a conversation's derived motifs, motif links and
// contexts into Neo4j for traversal queries. Postgres stays authoritative.
type MotifProjector interface {
	Project(ctx context.Context, conversationID uuid.UUID, revision int, derived cdg.DerivedState) error
}

type neo4jMotifProjector struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

// NewMotifProjector returns a no-op projector when client is nil.
func NewMotifProjector(client *neo4jdb.Client, log *logger.Logger) MotifProjector {
	if !client.Enabled() {
		return noopProjector{}
	}
	return &neo4jMotifProjector{client: client, log: log.With("graph", "MotifProjector")}
}

type noopProjector struct{}

func (noopProjector) Project(context.Context, uuid.UUID, int, cdg.DerivedState) error { return nil }

var schemaStatements = []string{
	`CREATE CONSTRAINT cdg_motif_id_unique IF NOT EXISTS FOR (m:Motif) REQUIRE m.id IS UNIQUE`,
	`CREATE CONSTRAINT cdg_context_id_unique IF NOT EXISTS FOR (c:CdgContext) REQUIRE c.id IS UNIQUE`,
	`CREATE INDEX cdg_motif_conversation_idx IF NOT EXISTS FOR (m:Motif) ON (m.conversation_id)`,
}

func (p *neo4jMotifProjector) Project(ctx context.Context, conversationID uuid.UUID, revision int, derived cdg.DerivedState) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("neo4j motif projection: missing conversation id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cid := conversationID.String()
	syncedAt := time.Now().UTC().Format(time.RFC3339Nano)
	motifs := motifRecords(cid, revision, syncedAt, derived.Motifs)
	links := linkRecords(cid, syncedAt, derived.MotifLinks)
	contexts, members := contextRecords(cid, revision, syncedAt, derived.Contexts)

	session := p.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: p.client.Database,
	})
	defer session.Close(ctx)

	// Schema helpers are best-effort; restricted users may not create them.
	for _, stmt := range schemaStatements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			p.log.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			cypher string
			params map[string]any
		}{
			{`
UNWIND $motifs AS m
MERGE (n:Motif {id: m.id})
SET n += m
`, map[string]any{"motifs": motifs}},
			{`
MATCH (n:Motif {conversation_id: $cid})
WHERE NOT n.id IN $ids
DETACH DELETE n
`, map[string]any{"cid": cid, "ids": recordIDs(motifs)}},
			{`
MATCH (:Motif {conversation_id: $cid})-[e:MOTIF_LINK]->(:Motif)
WHERE NOT e.id IN $ids
DELETE e
`, map[string]any{"cid": cid, "ids": recordIDs(links)}},
			{`
UNWIND $links AS l
MATCH (a:Motif {id: l.from_id})
MATCH (b:Motif {id: l.to_id})
MERGE (a)-[e:MOTIF_LINK {id: l.id}]->(b)
SET e.type = l.type,
    e.source = l.source,
    e.confidence = l.confidence,
    e.synced_at = l.synced_at
`, map[string]any{"links": links}},
			{`
UNWIND $contexts AS c
MERGE (n:CdgContext {id: c.id})
SET n += c
`, map[string]any{"contexts": contexts}},
			{`
MATCH (n:CdgContext {conversation_id: $cid})
WHERE NOT n.id IN $ids
DETACH DELETE n
`, map[string]any{"cid": cid, "ids": recordIDs(contexts)}},
			{`
MATCH (c:CdgContext {conversation_id: $cid})-[r:GROUPS]->(:Motif)
DELETE r
`, map[string]any{"cid": cid}},
			{`
UNWIND $members AS m
MATCH (c:CdgContext {id: m.context_id})
MATCH (n:Motif {id: m.motif_id})
MERGE (c)-[:GROUPS]->(n)
`, map[string]any{"members": members}},
		}
		for _, step := range steps {
			res, err := tx.Run(ctx, step.cypher, step.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j motif projection: %w", err)
	}
	p.log.Debug("projected derived state", "conversation_id", cid, "revision", revision, "motifs", len(motifs), "links", len(links), "contexts", len(contexts))
	return nil
}

func motifRecords(cid string, revision int, syncedAt string, motifs []cdg.ConceptMotif) []map[string]any {
	out := make([]map[string]any, 0, len(motifs))
	for _, m := range motifs {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, map[string]any{
			"id":                m.ID,
			"conversation_id":   cid,
			"revision":          int64(revision),
			"template_key":      m.TemplateKey,
			"motif_type":        m.MotifType,
			"relation":          string(m.Relation),
			"title":             m.Title,
			"status":            string(m.Status),
			"confidence":        m.Confidence,
			"concept_ids":       append([]string{}, m.ConceptIDs...),
			"anchor_concept_id": m.AnchorConceptID,
			"synced_at":         syncedAt,
		})
	}
	return out
}

func linkRecords(cid string, syncedAt string, links []cdg.MotifLink) []map[string]any {
	out := make([]map[string]any, 0, len(links))
	for _, l := range links {
		if l.ID == "" || l.FromMotifID == "" || l.ToMotifID == "" {
			continue
		}
		out = append(out, map[string]any{
			"id":              l.ID,
			"conversation_id": cid,
			"from_id":         l.FromMotifID,
			"to_id":           l.ToMotifID,
			"type":            string(l.Type),
			"source":          l.Source,
			"confidence":      l.Confidence,
			"synced_at":       syncedAt,
		})
	}
	return out
}

// contextRecords also returns the context->motif membership rows.
func contextRecords(cid string, revision int, syncedAt string, contexts []cdg.ContextItem) ([]map[string]any, []map[string]any) {
	nodes := make([]map[string]any, 0, len(contexts))
	members := make([]map[string]any, 0)
	for _, c := range contexts {
		if c.ID == "" {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":              c.ID,
			"conversation_id": cid,
			"revision":        int64(revision),
			"key":             c.Key,
			"title":           c.Title,
			"status":          string(c.Status),
			"confidence":      c.Confidence,
			"locked":          c.Locked,
			"paused":          c.Paused,
			"synced_at":       syncedAt,
		})
		for _, motifID := range c.MotifIDs {
			members = append(members, map[string]any{"context_id": c.ID, "motif_id": motifID})
		}
	}
	return nodes, members
}

func recordIDs(records []map[string]any) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if id, ok := r["id"].(string); ok {
			out = append(out, id)
		}
	}
	return out
}
