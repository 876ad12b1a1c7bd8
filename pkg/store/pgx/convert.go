package pgx

import (
	"encoding/json"

	"github.com/loreweave/backend/internal/db"
	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/relation"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toGraphEntity(e db.Entity) graph.Entity {
	out := graph.Entity{
		ID:              e.PublicID,
		CampaignID:      e.CampaignID,
		Name:            e.Name,
		EntityType:      e.EntityType,
		Confidence:      e.Confidence,
		Status:          graph.ShardStatus(e.ShardStatus),
		Ignored:         e.Ignored,
		RejectionReason: derefString(e.RejectionReason),
		Provenance: graph.Provenance{
			ResourceID:   derefString(e.ResourceID),
			ResourceName: derefString(e.ResourceName),
			FileKey:      derefString(e.FileKey),
		},
		StagedAt:   e.StagedAt,
		ApprovedAt: e.ApprovedAt,
		RejectedAt: e.RejectedAt,
	}
	if len(e.Content) > 0 {
		_ = json.Unmarshal(e.Content, &out.Content)
	}
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &out.Metadata)
	}
	if len(e.PendingRelations) > 0 {
		_ = json.Unmarshal(e.PendingRelations, &out.PendingRelations)
	}
	return out
}

func toGraphEntities(in []db.Entity) []graph.Entity {
	out := make([]graph.Entity, len(in))
	for i := range in {
		out[i] = toGraphEntity(in[i])
	}
	return out
}

func toGraphRelation(r db.Relation) graph.Relation {
	out := graph.Relation{
		ID:              r.PublicID,
		CampaignID:      r.CampaignID,
		FromEntityID:    r.FromEntityID,
		ToEntityID:      r.ToEntityID,
		Type:            relation.RelationshipType(r.RelationType),
		Strength:        r.Strength,
		Ignored:         r.Ignored,
		Rejected:        r.Rejected,
		RejectionReason: derefString(r.RejectionReason),
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &out.Metadata)
	}
	return out
}

func toGraphRelations(in []db.Relation) []graph.Relation {
	out := make([]graph.Relation, len(in))
	for i := range in {
		out[i] = toGraphRelation(in[i])
	}
	return out
}

func toGraphCommunity(c db.Community) graph.Community {
	return graph.Community{
		ID:         c.PublicID,
		CampaignID: c.CampaignID,
		Level:      c.Level,
		ParentID:   derefString(c.ParentID),
		RunID:      c.RunID,
	}
}

func toGraphCommunitySummary(s db.CommunitySummary) graph.CommunitySummary {
	return graph.CommunitySummary{
		CommunityID: s.CommunityPublicID,
		CampaignID:  s.CampaignID,
		Title:       s.Title,
		Summary:     s.Summary,
		APIScope:    derefString(s.APIScope),
		GeneratedAt: s.GeneratedAt,
	}
}

func marshalMap(m map[string]any) []byte {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
