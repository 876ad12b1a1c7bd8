// Package rebuild decides when community detection should run again. Every
// graph mutation adds to a per-campaign impact score; once staging drains
// the score is classified into skipping, a partial rebuild or a full
// rebuild, and the chosen rebuild is dispatched to the worker queue.
package rebuild

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/loreweave/backend/internal/util"
	"github.com/loreweave/backend/pkg/logger"
	"github.com/loreweave/backend/pkg/store"
)

type Action string

const (
	ActionSkip    Action = "skip"
	ActionPartial Action = "partial"
	ActionFull    Action = "full"
)

// Request is the message dispatched to the rebuild worker.
type Request struct {
	CampaignID int64  `json:"campaign_id"`
	Mode       Action `json:"mode"`
}

// Store is the scheduler state the store must provide.
type Store interface {
	AddImpact(ctx context.Context, campaignID int64, delta float64) (float64, error)
	RebuildState(ctx context.Context, campaignID int64) (store.ImpactState, error)
}

// Dispatcher hands a rebuild request to whatever executes it, typically the
// rebuild queue. Dispatch is fire and forget from the caller's view.
type Dispatcher interface {
	PublishRebuild(ctx context.Context, req Request) error
}

type Config struct {
	ApprovalWeight   float64
	EdgeWeight       float64
	PartialThreshold float64
	FullThreshold    float64
}

func DefaultConfig() Config {
	return Config{
		ApprovalWeight:   1.2,
		EdgeWeight:       0.3,
		PartialThreshold: 20,
		FullThreshold:    100,
	}
}

func ConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		ApprovalWeight:   util.GetEnvFloat("REBUILD_APPROVAL_WEIGHT", def.ApprovalWeight),
		EdgeWeight:       util.GetEnvFloat("REBUILD_EDGE_WEIGHT", def.EdgeWeight),
		PartialThreshold: util.GetEnvFloat("REBUILD_PARTIAL_THRESHOLD", def.PartialThreshold),
		FullThreshold:    util.GetEnvFloat("REBUILD_FULL_THRESHOLD", def.FullThreshold),
	}
}

type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	cfg        Config
	flight     singleflight.Group
}

func NewScheduler(s Store, d Dispatcher, cfg Config) *Scheduler {
	return &Scheduler{store: s, dispatcher: d, cfg: cfg}
}

// Classify maps an impact score to the rebuild it warrants. Thresholds are
// inclusive.
func (s *Scheduler) Classify(score float64) Action {
	switch {
	case score >= s.cfg.FullThreshold:
		return ActionFull
	case score >= s.cfg.PartialThreshold:
		return ActionPartial
	default:
		return ActionSkip
	}
}

// RecordApprovals accumulates impact for a finished approval batch. When the
// batch drained the campaign's staging area the score is evaluated, so
// rebuilds happen after review sessions rather than mid-stream.
func (s *Scheduler) RecordApprovals(ctx context.Context, campaignID int64, approved int, stagingDrained bool) {
	if approved > 0 {
		if _, err := s.store.AddImpact(ctx, campaignID, float64(approved)*s.cfg.ApprovalWeight); err != nil {
			logger.Error("[Rebuild] Recording approval impact failed", "campaign_id", campaignID, "err", err)
		}
	}
	if stagingDrained {
		s.Evaluate(ctx, campaignID)
	}
}

// RecordEdgeChange accumulates impact for a manual edge edit and evaluates
// right away, since graph editing happens outside approval batches.
func (s *Scheduler) RecordEdgeChange(ctx context.Context, campaignID int64) {
	if _, err := s.store.AddImpact(ctx, campaignID, s.cfg.EdgeWeight); err != nil {
		logger.Error("[Rebuild] Recording edge impact failed", "campaign_id", campaignID, "err", err)
	}
	s.Evaluate(ctx, campaignID)
}

// Evaluate classifies the campaign's accumulated impact and dispatches the
// warranted rebuild. Concurrent evaluations of the same campaign collapse
// into one dispatch. The score is only reset by the worker once the rebuild
// actually completed, so a lost dispatch is retried on the next evaluation.
func (s *Scheduler) Evaluate(ctx context.Context, campaignID int64) Action {
	v, _, _ := s.flight.Do(strconv.FormatInt(campaignID, 10), func() (any, error) {
		state, err := s.store.RebuildState(ctx, campaignID)
		if err != nil {
			logger.Error("[Rebuild] Reading rebuild state failed", "campaign_id", campaignID, "err", err)
			return ActionSkip, nil
		}
		action := s.Classify(state.ImpactScore)
		if action == ActionSkip {
			logger.Debug("[Rebuild] Impact below threshold, skipping",
				"campaign_id", campaignID, "score", state.ImpactScore)
			return ActionSkip, nil
		}
		s.dispatch(ctx, Request{CampaignID: campaignID, Mode: action})
		return action, nil
	})
	return v.(Action)
}

// TriggerFull dispatches a full rebuild regardless of the impact score,
// backing the manual detection endpoint.
func (s *Scheduler) TriggerFull(ctx context.Context, campaignID int64) {
	s.dispatch(ctx, Request{CampaignID: campaignID, Mode: ActionFull})
}

func (s *Scheduler) dispatch(ctx context.Context, req Request) {
	if s.dispatcher == nil {
		return
	}
	logger.Info("[Rebuild] Dispatching rebuild", "campaign_id", req.CampaignID, "mode", req.Mode)
	if err := s.dispatcher.PublishRebuild(ctx, req); err != nil {
		logger.Error("[Rebuild] Dispatch failed, will retry on next evaluation",
			"campaign_id", req.CampaignID, "mode", req.Mode, "err", err)
	}
}
