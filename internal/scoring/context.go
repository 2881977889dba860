// Package scoring implements C2, the Cost & Scoring Model: it turns a
// candidate job plus current market context into an OpportunityScore.
// Grounded on the usual component-sum invariant pattern
// (internal/score/composite) and its config-struct-plus-deterministic-
// formula style (internal/exits/logic.go).
package scoring

import (
	"time"

	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// OrderType distinguishes liquidity-providing from liquidity-taking
// orders for fee lookup purposes.
type OrderType string

const (
	OrderMaker OrderType = "maker"
	OrderTaker OrderType = "taker"
)

// FeeRate returns the fee rate (may be negative, a rebate) for a
// (venue, symbol, side, order type) combination.
type FeeRateFunc func(venueID, symbol string, side venue.Side, orderType OrderType) float64

// FundingSnapshot is the funding-rate state for one (venue, symbol)
// pair.
type FundingSnapshot struct {
	Rate               float64 // per funding-cycle rate
	NextFundingTS      time.Time
	FundingCycleHours  float64
}

// DepthSample is cumulative order-book depth at a price level, used
// for slippage estimation.
type DepthSample struct {
	CumulativeBidDepth float64
	CumulativeAskDepth float64
	ReferenceDepth     float64 // fall-back normalizer when depth is thin
}

// MarketContext carries everything Score needs beyond the job itself.
type MarketContext struct {
	FeeRate          FeeRateFunc
	Funding          map[venue.Pool]FundingSnapshot // keyed loosely; callers pass a per-(venue,symbol) lookup instead, see FundingFor
	FundingFor       func(venueID, symbol string) FundingSnapshot
	DepthFor         func(venueID, symbol string) DepthSample
	LatencyMsFor     func(venueID string) float64
	CapitalAnnualRate float64 // configured annual capital-cost rate

	HoldingHours float64 // expected holding period for funding/capital-time cost

	LatencySurchargeK       float64 // k in "k * latency_ms/1000"
	LatencySurchargeBandMs  float64 // default 500ms
	ReliabilityWeight       float64 // default 1.0, tunable per source quality
}

// DefaultMarketContext fills in the documented default constants,
// leaving the lookup functions for the caller to supply.
func DefaultMarketContext() MarketContext {
	return MarketContext{
		CapitalAnnualRate:      0.05,
		LatencySurchargeK:      0.1,
		LatencySurchargeBandMs: 500,
		ReliabilityWeight:      1.0,
	}
}

// Score is the output of evaluating a job against a MarketContext.
type Score struct {
	Job job.Job

	PriceSpreadPnL  float64
	FundingPnL      float64
	FeeCost         float64
	SlippageCost    float64
	LatencyPenalty  float64
	CapitalTimeCost float64
	ExpectedPnL     float64

	ROIPct          float64
	AnnualizedROI   float64
	TimeCostSeconds float64
	RiskScore       float64 // [0,1]
	FinalScore      float64 // non-negative, higher is better
}
