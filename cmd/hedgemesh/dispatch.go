package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/execution"
	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/scheduler"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

var errNotTwoLegged = errors.New("hedge execution requires exactly one buy leg and one sell leg")

// engineDispatcher bridges a scheduled job to the execution engine,
// satisfying scheduler.Dispatcher. It always runs ExecuteHedge in its
// own goroutine and reports back through finish exactly once.
type engineDispatcher struct {
	engine      *execution.Engine
	execTimeout time.Duration
	defaultLiq  float64
}

func newEngineDispatcher(engine *execution.Engine, execTimeout time.Duration) *engineDispatcher {
	return &engineDispatcher{engine: engine, execTimeout: execTimeout, defaultLiq: 50}
}

func (d *engineDispatcher) Dispatch(rj scheduler.RunningJob, finish func(scheduler.JobResult)) {
	go func() {
		req, err := d.toHedgeRequest(rj.Job)
		if err != nil {
			log.Error().Str("job_id", rj.Job.ID).Err(err).Msg("job is not hedge-shaped, failing without execution")
			finish(scheduler.JobResult{Success: false, Reason: err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.execTimeout)
		defer cancel()

		result := d.engine.ExecuteHedge(ctx, req)

		var fees float64
		for _, leg := range result.Legs {
			fees += leg.Fee
		}

		pnl := 0.0
		if result.Success {
			pnl = rj.Job.ExpectedPnL - fees
		}

		finish(scheduler.JobResult{
			Success: result.Success,
			Reason:  result.Reason,
			PnL:     pnl,
			Volume:  rj.Job.Notional,
			Fees:    fees,
		})
	}()
}

// toHedgeRequest maps a two-leg job onto the engine's request shape.
// This wiring layer has no quote source of its own and job.Job carries
// no prices, so BuyPrice/SellPrice are always left at zero.
func (d *engineDispatcher) toHedgeRequest(j job.Job) (execution.HedgeRequest, error) {
	if len(j.Legs) != 2 {
		return execution.HedgeRequest{}, errNotTwoLegged
	}

	var buy, sell job.Leg
	for _, leg := range j.Legs {
		switch leg.Side {
		case venue.SideBuy:
			buy = leg
		case venue.SideSell:
			sell = leg
		}
	}
	if buy.Venue == "" || sell.Venue == "" {
		return execution.HedgeRequest{}, errNotTwoLegged
	}

	return execution.HedgeRequest{
		BuyVenue:  buy.Venue,
		SellVenue: sell.Venue,
		Symbol:    j.Symbol,
		Notional:  j.Notional,

		ConfiguredMode: execution.ModeHybridHedgeTaker,
		BuyLeg:         execution.LegContext{VenueID: buy.Venue, LiquidityScore: d.liquidityOrDefault(j)},
		SellLeg:        execution.LegContext{VenueID: sell.Venue, LiquidityScore: d.liquidityOrDefault(j)},

		ConfiguredWashMode: j.Strategy == job.StrategyWash,
		IsWashOpportunity:  j.Strategy == job.StrategyWash,
		ExpectedPnL:        j.ExpectedPnL,
	}, nil
}

func (d *engineDispatcher) liquidityOrDefault(j job.Job) float64 {
	if j.LiquidityScoreHint > 0 {
		return j.LiquidityScoreHint
	}
	return d.defaultLiq
}
