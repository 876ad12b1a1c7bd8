// Package summary produces the cached natural-language title and summary
// of one community. Summaries are generated lazily and keyed by community
// id; a rebuild replaces the community ids, so stale summaries simply stop
// being found instead of needing timer-based invalidation.
package summary

import (
	"context"
	"errors"
	"fmt"

	"github.com/loreweave/backend/internal/util"
	"github.com/loreweave/backend/pkg/ai"
	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"
)

const defaultPromptTokenBudget = 6000

// Store is the slice of the graph store the service needs.
type Store interface {
	GetCommunity(ctx context.Context, campaignID int64, communityID string) (graph.Community, error)
	GetEntitiesByIDs(ctx context.Context, entityIDs []string) ([]graph.Entity, error)
	GetCommunitySummary(ctx context.Context, campaignID int64, communityID string) (graph.CommunitySummary, error)
	SaveCommunitySummary(ctx context.Context, summary graph.CommunitySummary) (graph.CommunitySummary, error)
}

type Service struct {
	store    Store
	aiClient ai.GraphAIClient
	budget   int
}

func NewService(s Store, aiClient ai.GraphAIClient) *Service {
	return &Service{
		store:    s,
		aiClient: aiClient,
		budget:   int(util.GetEnvNumeric("SUMMARY_PROMPT_TOKEN_BUDGET", defaultPromptTokenBudget)),
	}
}

// payload is the structured output contract for summary generation.
type payload struct {
	Title   string `json:"title" jsonschema_description:"Short descriptive name for the group, at most eight words"`
	Summary string `json:"summary" jsonschema_description:"Two to four sentence summary of the group and how its members relate"`
}

// GenerateOrGet returns the cached summary for a community or generates,
// persists and returns a fresh one. apiScope records which caller
// credential scope produced the summary and is stored alongside it.
func (s *Service) GenerateOrGet(ctx context.Context, campaignID int64, communityID string, apiScope string) (graph.CommunitySummary, error) {
	cached, err := s.store.GetCommunitySummary(ctx, campaignID, communityID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, graph.ErrNotFound) {
		return graph.CommunitySummary{}, err
	}

	community, err := s.store.GetCommunity(ctx, campaignID, communityID)
	if err != nil {
		return graph.CommunitySummary{}, err
	}
	entities, err := s.store.GetEntitiesByIDs(ctx, community.EntityIDs)
	if err != nil {
		return graph.CommunitySummary{}, err
	}

	prompt, omitted := buildPrompt(entities, s.budget)
	if omitted > 0 {
		logger.Warn("[Summary] Prompt budget exceeded, omitting entities",
			"community_id", communityID, "omitted", omitted, "total", len(entities))
	}

	// One attempt only. An upstream failure surfaces to the caller, which
	// decides whether re-requesting is worth it; a fresh request regenerates.
	var out payload
	err = s.aiClient.GenerateCompletionWithFormat(ctx,
		"community_summary",
		"Title and summary for one group of related entities",
		prompt,
		&out,
		ai.WithSystemPrompts(summarySystemPrompt),
	)
	if err != nil {
		return graph.CommunitySummary{}, fmt.Errorf("summary generation for community %s: %w: %v",
			communityID, graph.ErrUpstream, err)
	}

	return s.store.SaveCommunitySummary(ctx, graph.CommunitySummary{
		CommunityID: communityID,
		CampaignID:  campaignID,
		Title:       out.Title,
		Summary:     out.Summary,
		APIScope:    apiScope,
	})
}
