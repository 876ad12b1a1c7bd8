package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const communityColumns = `id, public_id, campaign_id, level, parent_id, run_id`

func scanCommunity(row pgx.Row) (Community, error) {
	var c Community
	err := row.Scan(&c.ID, &c.PublicID, &c.CampaignID, &c.Level, &c.ParentID, &c.RunID)
	return c, err
}

func collectCommunities(rows pgx.Rows) ([]Community, error) {
	defer rows.Close()
	var out []Community
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type InsertCommunityParams struct {
	PublicID   string
	CampaignID int64
	Level      int
	ParentID   *string
	RunID      string
}

func (q *Queries) InsertCommunity(ctx context.Context, arg InsertCommunityParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO communities (public_id, campaign_id, level, parent_id, run_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		arg.PublicID, arg.CampaignID, arg.Level, arg.ParentID, arg.RunID,
	).Scan(&id)
	return id, err
}

type InsertCommunityMembersParams struct {
	CommunityID     int64
	EntityPublicIDs []string
}

func (q *Queries) InsertCommunityMembers(ctx context.Context, arg InsertCommunityMembersParams) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO community_members (community_id, entity_public_id)
		SELECT $1, unnest($2::text[])`,
		arg.CommunityID, arg.EntityPublicIDs,
	)
	return err
}

func (q *Queries) DeleteCampaignCommunities(ctx context.Context, campaignID int64) error {
	_, err := q.db.Exec(ctx,
		`DELETE FROM communities WHERE campaign_id = $1`,
		campaignID,
	)
	return err
}

// DeleteCommunitiesByPublicIDs removes only the communities superseded by a
// partial rebuild; rows for untouched components keep their identifiers.
func (q *Queries) DeleteCommunitiesByPublicIDs(ctx context.Context, publicIDs []string) error {
	_, err := q.db.Exec(ctx,
		`DELETE FROM communities WHERE public_id = ANY($1)`,
		publicIDs,
	)
	return err
}

func (q *Queries) ListCampaignCommunities(ctx context.Context, campaignID int64) ([]Community, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+communityColumns+` FROM communities
		WHERE campaign_id = $1
		ORDER BY level, id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	return collectCommunities(rows)
}

func (q *Queries) GetCommunityByPublicID(ctx context.Context, publicID string) (Community, error) {
	return scanCommunity(q.db.QueryRow(ctx,
		`SELECT `+communityColumns+` FROM communities WHERE public_id = $1`,
		publicID,
	))
}

func (q *Queries) GetCommunityMembers(ctx context.Context, communityID int64) ([]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT entity_public_id FROM community_members
		WHERE community_id = $1
		ORDER BY entity_public_id`,
		communityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListCommunitiesForEntity returns every community, at any level, that
// contains the entity.
func (q *Queries) ListCommunitiesForEntity(ctx context.Context, entityPublicID string) ([]Community, error) {
	rows, err := q.db.Query(ctx,
		`SELECT c.id, c.public_id, c.campaign_id, c.level, c.parent_id, c.run_id
		FROM communities c
		JOIN community_members m ON m.community_id = c.id
		WHERE m.entity_public_id = $1
		ORDER BY c.level`,
		entityPublicID,
	)
	if err != nil {
		return nil, err
	}
	return collectCommunities(rows)
}

// CommunitiesContainingEntities returns public ids of communities whose
// member set intersects the given entities. A partial rebuild uses this to
// find what it supersedes.
func (q *Queries) CommunitiesContainingEntities(ctx context.Context, campaignID int64, entityPublicIDs []string) ([]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT DISTINCT c.public_id
		FROM communities c
		JOIN community_members m ON m.community_id = c.id
		WHERE c.campaign_id = $1 AND m.entity_public_id = ANY($2)`,
		campaignID, entityPublicIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type UpsertCommunitySummaryParams struct {
	CommunityPublicID string
	CampaignID        int64
	Title             string
	Summary           string
	APIScope          *string
}

func (q *Queries) UpsertCommunitySummary(ctx context.Context, arg UpsertCommunitySummaryParams) (CommunitySummary, error) {
	var s CommunitySummary
	err := q.db.QueryRow(ctx,
		`INSERT INTO community_summaries (community_public_id, campaign_id, title, summary, api_scope, generated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (community_public_id)
		DO UPDATE SET title = EXCLUDED.title, summary = EXCLUDED.summary,
		              api_scope = EXCLUDED.api_scope, generated_at = now()
		RETURNING community_public_id, campaign_id, title, summary, api_scope, generated_at`,
		arg.CommunityPublicID, arg.CampaignID, arg.Title, arg.Summary, arg.APIScope,
	).Scan(&s.CommunityPublicID, &s.CampaignID, &s.Title, &s.Summary, &s.APIScope, &s.GeneratedAt)
	return s, err
}

func (q *Queries) GetCommunitySummary(ctx context.Context, communityPublicID string) (CommunitySummary, error) {
	var s CommunitySummary
	err := q.db.QueryRow(ctx,
		`SELECT community_public_id, campaign_id, title, summary, api_scope, generated_at
		FROM community_summaries
		WHERE community_public_id = $1`,
		communityPublicID,
	).Scan(&s.CommunityPublicID, &s.CampaignID, &s.Title, &s.Summary, &s.APIScope, &s.GeneratedAt)
	return s, err
}
