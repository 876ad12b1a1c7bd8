package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/loreweave/backend/internal/db"
	"github.com/loreweave/backend/pkg/graph"
)

// ReplaceCommunities atomically swaps community assignments for a campaign.
// With a nil scope every existing community is superseded (a full rebuild);
// otherwise only the listed community ids are removed before the new ones
// are written. Readers never observe a half-replaced hierarchy.
func (s *GraphDBStorage) ReplaceCommunities(ctx context.Context, campaignID int64, supersededIDs []string, communities []graph.Community) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := db.New(s.conn).WithTx(tx)

	if supersededIDs == nil {
		if err := q.DeleteCampaignCommunities(ctx, campaignID); err != nil {
			return err
		}
	} else if len(supersededIDs) > 0 {
		if err := q.DeleteCommunitiesByPublicIDs(ctx, supersededIDs); err != nil {
			return err
		}
	}

	for _, c := range communities {
		if c.CampaignID != campaignID {
			return fmt.Errorf("community %s targets campaign %d: %w", c.ID, c.CampaignID, graph.ErrCrossCampaign)
		}
		id, err := q.InsertCommunity(ctx, db.InsertCommunityParams{
			PublicID:   c.ID,
			CampaignID: campaignID,
			Level:      c.Level,
			ParentID:   nullableString(c.ParentID),
			RunID:      c.RunID,
		})
		if err != nil {
			return err
		}
		if len(c.EntityIDs) > 0 {
			err := q.InsertCommunityMembers(ctx, db.InsertCommunityMembersParams{
				CommunityID:     id,
				EntityPublicIDs: c.EntityIDs,
			})
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (s *GraphDBStorage) ListCommunities(ctx context.Context, campaignID int64) ([]graph.Community, error) {
	q := db.New(s.conn)
	rows, err := q.ListCampaignCommunities(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return s.attachMembers(ctx, q, rows)
}

func (s *GraphDBStorage) GetCommunity(ctx context.Context, campaignID int64, communityID string) (graph.Community, error) {
	q := db.New(s.conn)
	row, err := q.GetCommunityByPublicID(ctx, communityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return graph.Community{}, fmt.Errorf("community %s: %w", communityID, graph.ErrNotFound)
		}
		return graph.Community{}, err
	}
	// A community id from another campaign is indistinguishable from a
	// missing one to the caller.
	if row.CampaignID != campaignID {
		return graph.Community{}, fmt.Errorf("community %s: %w", communityID, graph.ErrNotFound)
	}
	members, err := q.GetCommunityMembers(ctx, row.ID)
	if err != nil {
		return graph.Community{}, err
	}
	c := toGraphCommunity(row)
	c.EntityIDs = members
	return c, nil
}

func (s *GraphDBStorage) CommunitiesForEntity(ctx context.Context, campaignID int64, entityID string) ([]graph.Community, error) {
	q := db.New(s.conn)
	rows, err := q.ListCommunitiesForEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	scoped := rows[:0:0]
	for _, row := range rows {
		if row.CampaignID == campaignID {
			scoped = append(scoped, row)
		}
	}
	return s.attachMembers(ctx, q, scoped)
}

// CommunitiesContainingEntities resolves the public ids of every community,
// at any level, that holds at least one of the given entities. The rebuild
// scheduler uses this to bound a partial rebuild.
func (s *GraphDBStorage) CommunitiesContainingEntities(ctx context.Context, campaignID int64, entityIDs []string) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	return db.New(s.conn).CommunitiesContainingEntities(ctx, campaignID, entityIDs)
}

func (s *GraphDBStorage) attachMembers(ctx context.Context, q *db.Queries, rows []db.Community) ([]graph.Community, error) {
	out := make([]graph.Community, 0, len(rows))
	for _, row := range rows {
		members, err := q.GetCommunityMembers(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		c := toGraphCommunity(row)
		c.EntityIDs = members
		out = append(out, c)
	}
	return out, nil
}

func (s *GraphDBStorage) GetCommunitySummary(ctx context.Context, campaignID int64, communityID string) (graph.CommunitySummary, error) {
	row, err := db.New(s.conn).GetCommunitySummary(ctx, communityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return graph.CommunitySummary{}, fmt.Errorf("summary for community %s: %w", communityID, graph.ErrNotFound)
		}
		return graph.CommunitySummary{}, err
	}
	if row.CampaignID != campaignID {
		return graph.CommunitySummary{}, fmt.Errorf("summary for community %s: %w", communityID, graph.ErrNotFound)
	}
	return toGraphCommunitySummary(row), nil
}

func (s *GraphDBStorage) SaveCommunitySummary(ctx context.Context, summary graph.CommunitySummary) (graph.CommunitySummary, error) {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()
	row, err := db.New(s.conn).UpsertCommunitySummary(ctx, db.UpsertCommunitySummaryParams{
		CommunityPublicID: summary.CommunityID,
		CampaignID:        summary.CampaignID,
		Title:             summary.Title,
		Summary:           summary.Summary,
		APIScope:          nullableString(summary.APIScope),
	})
	if err != nil {
		return graph.CommunitySummary{}, err
	}
	return toGraphCommunitySummary(row), nil
}
