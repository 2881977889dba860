package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/config"
	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/marketdata"
	"github.com/sawpanic/hedgemesh/internal/persistence"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scheduler"
	"github.com/sawpanic/hedgemesh/internal/scoring"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// runTickLoop drives the scheduler on a fixed interval until ctx is
// canceled, rebuilding the market context with marketContextFor on
// every tick (spread and depth from the quote pipeline, the rest flat
// defaults).
func runTickLoop(ctx context.Context, sched *scheduler.Scheduler, quotes *marketdata.Pipeline, cfgStore *config.Store, interval time.Duration, jobRepo persistence.JobRepo, riskEventRepo persistence.RiskEventRepo) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc := marketContextFor(quotes, cfgStore)
			report := sched.Tick(mc)
			if report.Scheduled > 0 || report.Rejected > 0 {
				log.Debug().
					Int("scheduled", report.Scheduled).
					Int("rejected", report.Rejected).
					Int("pending", report.PendingRemaining).
					Int("running", report.RunningTotal).
					Msg("tick complete")
			}
			if riskEventRepo != nil {
				for _, id := range report.RejectedIDs {
					event := persistence.RiskEvent{Timestamp: time.Now(), JobID: id, Kind: "reject"}
					if err := riskEventRepo.Insert(ctx, event); err != nil {
						log.Warn().Str("job_id", id).Err(err).Msg("failed to persist risk event")
					}
				}
			}
			if jobRepo != nil {
				persistTerminalRecords(ctx, jobRepo, sched.TerminalRecords())
			}
		}
	}
}

// persistTerminalRecords writes the scheduler's terminal ring each
// tick. The ring re-surfaces already-seen entries on every call; a
// unique constraint on job_id lets InsertBatch's duplicate-detection
// swallow the repeats rather than needing to track a watermark here.
func persistTerminalRecords(ctx context.Context, repo persistence.JobRepo, records []job.Record) {
	if len(records) == 0 {
		return
	}
	out := make([]persistence.JobRecord, len(records))
	for i, r := range records {
		venues := make([]string, len(r.Job.Legs))
		for li, leg := range r.Job.Legs {
			venues[li] = leg.Venue
		}
		out[i] = persistence.JobRecord{
			JobID:      r.Job.ID,
			Strategy:   string(r.Job.Strategy),
			Symbol:     r.Job.Symbol,
			Venues:     venues,
			Notional:   r.Job.Notional,
			FinalState: string(r.FinalState),
			Reason:     r.Reason,
			SubmittedAt: r.Job.SubmitTS,
			FinishedAt:  r.FinishedAt,
		}
	}
	if err := repo.InsertBatch(ctx, out); err != nil {
		log.Warn().Int("count", len(out)).Err(err).Msg("failed to persist terminal job records")
	}
}

// marketContextFor builds the per-tick lookups the risk evaluator and
// scorer need. Spread and depth are read through the quote pipeline
// when it has seen a (venue, symbol) pair; everything the pipeline
// hasn't observed yet (funding, volatility, liquidation distance,
// latency) falls back to flat defaults, since no funding-rate or
// liquidation feed is wired into this system's scope. ManualOverride
// is read fresh from cfgStore every call, so an operator's
// POST /control/override takes effect on the very next tick.
func marketContextFor(quotes *marketdata.Pipeline, cfgStore *config.Store) scheduler.MarketContext {
	var manualOverride bool
	if cfgStore != nil {
		manualOverride = cfgStore.ManualOverrideOn()
	}

	riskCtx := risk.Context{
		FundingMinutesToSettlement: func(venueID, symbol string) float64 { return 240 },
		SpreadBps: func(venueID, symbol string) float64 {
			if q, ok := quotes.BestQuote(venueID, symbol); ok {
				return q.SpreadBps
			}
			return 5
		},
		VolatilityStdev:        func(venueID, symbol string) float64 { return 0.01 },
		LatencyMsFor:           func(venueID string) float64 { return 50 },
		LiquidationDistancePct: func(venueID, symbol string) float64 { return 20 },
		ManualOverride:         manualOverride,
	}

	scoringCtx := scoring.DefaultMarketContext()
	scoringCtx.FeeRate = func(venueID, symbol string, side venue.Side, orderType scoring.OrderType) float64 {
		if orderType == scoring.OrderMaker {
			return -0.0002
		}
		return 0.0005
	}
	scoringCtx.FundingFor = func(venueID, symbol string) scoring.FundingSnapshot {
		return scoring.FundingSnapshot{}
	}
	scoringCtx.DepthFor = func(venueID, symbol string) scoring.DepthSample {
		if q, ok := quotes.BestQuote(venueID, symbol); ok {
			return scoring.DepthSample{CumulativeBidDepth: q.BidSize, CumulativeAskDepth: q.AskSize}
		}
		return scoring.DepthSample{}
	}
	scoringCtx.LatencyMsFor = func(venueID string) float64 { return 50 }

	return scheduler.MarketContext{Risk: riskCtx, Scoring: scoringCtx}
}
