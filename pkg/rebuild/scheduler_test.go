package rebuild

import (
	"context"
	"sync"
	"testing"

	"github.com/loreweave/backend/pkg/store"
)

type memoryState struct {
	mu     sync.Mutex
	scores map[int64]float64
}

func newMemoryState() *memoryState {
	return &memoryState{scores: map[int64]float64{}}
}

func (m *memoryState) AddImpact(_ context.Context, campaignID int64, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[campaignID] += delta
	return m.scores[campaignID], nil
}

func (m *memoryState) RebuildState(_ context.Context, campaignID int64) (store.ImpactState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return store.ImpactState{CampaignID: campaignID, ImpactScore: m.scores[campaignID]}, nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []Request
}

func (d *recordingDispatcher) PublishRebuild(_ context.Context, req Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return nil
}

func TestClassify(t *testing.T) {
	s := NewScheduler(newMemoryState(), nil, DefaultConfig())

	tests := []struct {
		name  string
		score float64
		want  Action
	}{
		{"zero", 0, ActionSkip},
		{"below partial", 19.9, ActionSkip},
		{"at partial threshold", 20, ActionPartial},
		{"between thresholds", 55, ActionPartial},
		{"at full threshold", 100, ActionFull},
		{"above full", 312, ActionFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Classify(tt.score); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.score, got, tt.want)
			}
		})
	}
}

func TestRecordApprovalsAccumulatesAndDispatches(t *testing.T) {
	state := newMemoryState()
	d := &recordingDispatcher{}
	s := NewScheduler(state, d, DefaultConfig())
	ctx := context.Background()

	// 17 approvals at weight 1.2 land at 20.4, past the partial threshold.
	s.RecordApprovals(ctx, 1, 17, false)
	if len(d.requests) != 0 {
		t.Fatalf("dispatched %v before staging drained", d.requests)
	}

	s.RecordApprovals(ctx, 1, 0, true)
	if len(d.requests) != 1 {
		t.Fatalf("requests = %v, want one partial dispatch", d.requests)
	}
	if d.requests[0] != (Request{CampaignID: 1, Mode: ActionPartial}) {
		t.Errorf("request = %+v, want partial for campaign 1", d.requests[0])
	}
}

func TestRecordApprovalsFullRebuild(t *testing.T) {
	state := newMemoryState()
	d := &recordingDispatcher{}
	s := NewScheduler(state, d, DefaultConfig())

	// 84 approvals at weight 1.2 land at 100.8, past the full threshold.
	s.RecordApprovals(context.Background(), 7, 84, true)
	if len(d.requests) != 1 || d.requests[0].Mode != ActionFull {
		t.Fatalf("requests = %v, want one full dispatch", d.requests)
	}
}

func TestEvaluateSkipsBelowThreshold(t *testing.T) {
	state := newMemoryState()
	d := &recordingDispatcher{}
	s := NewScheduler(state, d, DefaultConfig())
	ctx := context.Background()

	s.RecordApprovals(ctx, 1, 10, false) // score 12
	if got := s.Evaluate(ctx, 1); got != ActionSkip {
		t.Errorf("Evaluate = %s, want skip", got)
	}
	if len(d.requests) != 0 {
		t.Errorf("requests = %v, want none", d.requests)
	}
}

func TestScoreSurvivesSkippedEvaluations(t *testing.T) {
	state := newMemoryState()
	d := &recordingDispatcher{}
	s := NewScheduler(state, d, DefaultConfig())
	ctx := context.Background()

	// Three drained batches below the threshold, then one that tips it over.
	for range 3 {
		s.RecordApprovals(ctx, 1, 5, true) // +6 each
	}
	if len(d.requests) != 0 {
		t.Fatalf("dispatched %v below threshold", d.requests)
	}
	s.RecordApprovals(ctx, 1, 2, true) // 18 + 2.4 = 20.4
	if len(d.requests) != 1 || d.requests[0].Mode != ActionPartial {
		t.Fatalf("requests = %v, want one partial dispatch", d.requests)
	}
}

func TestRecordEdgeChange(t *testing.T) {
	state := newMemoryState()
	state.scores[3] = 19.8
	d := &recordingDispatcher{}
	s := NewScheduler(state, d, DefaultConfig())

	s.RecordEdgeChange(context.Background(), 3) // +0.3 crosses 20
	if len(d.requests) != 1 || d.requests[0].Mode != ActionPartial {
		t.Fatalf("requests = %v, want one partial dispatch", d.requests)
	}
}

func TestTriggerFullIgnoresScore(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(newMemoryState(), d, DefaultConfig())

	s.TriggerFull(context.Background(), 9)
	if len(d.requests) != 1 || d.requests[0].Mode != ActionFull {
		t.Fatalf("requests = %v, want one full dispatch", d.requests)
	}
}
