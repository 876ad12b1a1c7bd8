package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/loreweave/backend/pkg/ai"
	"github.com/loreweave/backend/pkg/graph"
)

type fakeStore struct {
	community graph.Community
	entities  []graph.Entity
	cached    *graph.CommunitySummary
	saved     *graph.CommunitySummary
}

func (s *fakeStore) GetCommunity(_ context.Context, _ int64, id string) (graph.Community, error) {
	if s.community.ID != id {
		return graph.Community{}, fmt.Errorf("community %s: %w", id, graph.ErrNotFound)
	}
	return s.community, nil
}

func (s *fakeStore) GetEntitiesByIDs(context.Context, []string) ([]graph.Entity, error) {
	return s.entities, nil
}

func (s *fakeStore) GetCommunitySummary(_ context.Context, _ int64, id string) (graph.CommunitySummary, error) {
	if s.cached == nil || s.cached.CommunityID != id {
		return graph.CommunitySummary{}, fmt.Errorf("summary %s: %w", id, graph.ErrNotFound)
	}
	return *s.cached, nil
}

func (s *fakeStore) SaveCommunitySummary(_ context.Context, sum graph.CommunitySummary) (graph.CommunitySummary, error) {
	sum.GeneratedAt = time.Now()
	s.saved = &sum
	return sum, nil
}

type fakeAI struct {
	title    string
	summary  string
	err      error
	calls    int
	lastSeen string
}

func (a *fakeAI) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	return "", errors.New("not used")
}

func (a *fakeAI) GenerateCompletionWithFormat(_ context.Context, _ string, _ string, prompt string, out any, _ ...ai.GenerateOption) error {
	a.calls++
	a.lastSeen = prompt
	if a.err != nil {
		return a.err
	}
	p := out.(*payload)
	p.Title = a.title
	p.Summary = a.summary
	return nil
}

func (a *fakeAI) GenerateEmbedding(context.Context, []byte) ([]float32, error) {
	return nil, errors.New("not used")
}

func (a *fakeAI) ResetMetrics()               {}
func (a *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func entity(id, name string) graph.Entity {
	return graph.Entity{ID: id, Name: name, EntityType: "character"}
}

func TestGenerateOrGetReturnsCached(t *testing.T) {
	st := &fakeStore{
		cached: &graph.CommunitySummary{CommunityID: "c1", Title: "The Council", Summary: "..."},
	}
	aiClient := &fakeAI{}
	svc := NewService(st, aiClient)

	got, err := svc.GenerateOrGet(context.Background(), 1, "c1", "party")
	if err != nil {
		t.Fatalf("GenerateOrGet: %v", err)
	}
	if got.Title != "The Council" {
		t.Errorf("title = %q, want cached title", got.Title)
	}
	if aiClient.calls != 0 {
		t.Errorf("AI called %d times for a cache hit", aiClient.calls)
	}
}

func TestGenerateOrGetGeneratesAndPersists(t *testing.T) {
	st := &fakeStore{
		community: graph.Community{ID: "c1", CampaignID: 1, EntityIDs: []string{"a", "b"}},
		entities:  []graph.Entity{entity("a", "Mira"), entity("b", "Sable Keep")},
	}
	aiClient := &fakeAI{title: "Keepers of Sable", summary: "Mira guards Sable Keep."}
	svc := NewService(st, aiClient)

	got, err := svc.GenerateOrGet(context.Background(), 1, "c1", "gm-tools")
	if err != nil {
		t.Fatalf("GenerateOrGet: %v", err)
	}
	if got.Title != "Keepers of Sable" || got.Summary != "Mira guards Sable Keep." {
		t.Errorf("summary = %+v, want generated content", got)
	}
	if got.APIScope != "gm-tools" {
		t.Errorf("api scope = %q, want gm-tools", got.APIScope)
	}
	if st.saved == nil || st.saved.CommunityID != "c1" {
		t.Errorf("saved = %+v, want persisted summary for c1", st.saved)
	}
	if !strings.Contains(aiClient.lastSeen, "Mira") || !strings.Contains(aiClient.lastSeen, "Sable Keep") {
		t.Errorf("prompt missing entity names:\n%s", aiClient.lastSeen)
	}
}

func TestGenerateOrGetMissingCommunity(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeAI{})

	_, err := svc.GenerateOrGet(context.Background(), 1, "ghost", "")
	if !errors.Is(err, graph.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGenerateOrGetUpstreamFailure(t *testing.T) {
	st := &fakeStore{
		community: graph.Community{ID: "c1", CampaignID: 1, EntityIDs: []string{"a"}},
		entities:  []graph.Entity{entity("a", "Mira")},
	}
	svc := NewService(st, &fakeAI{err: errors.New("model offline")})

	_, err := svc.GenerateOrGet(context.Background(), 1, "c1", "")
	if !errors.Is(err, graph.ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
	if st.saved != nil {
		t.Errorf("saved = %+v, want nothing persisted on failure", st.saved)
	}
}

func TestBuildPromptBudget(t *testing.T) {
	long := strings.Repeat("lore ", 60)
	entities := []graph.Entity{
		{ID: "a", Name: "Mira", EntityType: "character", Content: map[string]any{"bio": long}},
		{ID: "b", Name: "Keep", EntityType: "location", Content: map[string]any{"bio": long}},
		{ID: "c", Name: "Order", EntityType: "faction", Content: map[string]any{"bio": long}},
	}

	prompt, omitted := buildPrompt(entities, 100000)
	if omitted != 0 {
		t.Errorf("omitted = %d with generous budget, want 0", omitted)
	}
	for _, name := range []string{"Mira", "Keep", "Order"} {
		if !strings.Contains(prompt, name) {
			t.Errorf("prompt missing %s", name)
		}
	}

	prompt, omitted = buildPrompt(entities, 40)
	if omitted == 0 {
		t.Error("omitted = 0 with tiny budget, want truncation")
	}
	if !strings.Contains(prompt, "omitted for length") {
		t.Errorf("prompt missing truncation marker:\n%s", prompt)
	}
}
