package scoring

import (
	"math"
	"sort"

	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// legNotional splits a job's total notional across its legs in
// proportion to each leg's quantity over the summed quantity of all
// legs, since the Leg type only carries quantity, not notional. Two
// equal-quantity legs each get half.
func legNotional(j job.Job, leg job.Leg) float64 {
	totalQty := 0.0
	for _, l := range j.Legs {
		totalQty += l.Quantity
	}
	if totalQty == 0 {
		return 0
	}
	return j.Notional * (leg.Quantity / totalQty)
}

// assumedOrderType is the order type used to estimate fees/slippage at
// scoring time, before C6 has chosen an actual Maker/Taker mix per
// leg. Taker is the conservative (higher-fee, more-certain) estimate.
const assumedOrderType = OrderTaker

// fee computes the round-trip opportunity fee: the sum over legs of
// notional * fee_rate(venue, symbol, side, order_type). The sign of a rebate (negative rate) is preserved.
func fee(j job.Job, ctx MarketContext) float64 {
	if ctx.FeeRate == nil {
		return 0
	}
	total := 0.0
	for _, leg := range j.Legs {
		notional := legNotional(j, leg)
		rate := ctx.FeeRate(leg.Venue, j.Symbol, leg.Side, assumedOrderType)
		total += notional * rate
	}
	return total
}

// funding computes net opportunity funding across legs: long pays
// positive, short receives positive.
func funding(j job.Job, ctx MarketContext) float64 {
	if ctx.FundingFor == nil {
		return 0
	}
	total := 0.0
	for _, leg := range j.Legs {
		notional := legNotional(j, leg)
		snap := ctx.FundingFor(leg.Venue, j.Symbol)
		if snap.FundingCycleHours <= 0 {
			continue
		}
		legFunding := notional * snap.Rate * (ctx.HoldingHours / snap.FundingCycleHours)
		// Long (buy) pays funding when rate positive; short (sell)
		// receives it — so a short leg's contribution flips sign.
		if leg.Side == venue.SideSell {
			legFunding = -legFunding
		}
		total += legFunding
	}
	return total
}

// slippage estimates the volume-weighted execution cost versus
// top-of-book, falling back to a depth-proportional model when book
// depth is insufficient, plus a latency surcharge.
func slippage(j job.Job, ctx MarketContext) float64 {
	total := 0.0
	maxLatencyMs := 0.0

	for _, leg := range j.Legs {
		notional := legNotional(j, leg)

		var depth DepthSample
		if ctx.DepthFor != nil {
			depth = ctx.DepthFor(leg.Venue, j.Symbol)
		}

		available := depth.CumulativeBidDepth
		if leg.Side == venue.SideBuy {
			available = depth.CumulativeAskDepth
		}

		var legSlippageCost float64
		if available > 0 && available >= notional {
			// Sufficient depth: approximate volume-weighted slippage
			// as proportional to the fraction of depth consumed.
			legSlippageCost = notional * (notional / available) * 0.0005
		} else {
			ref := depth.ReferenceDepth
			if ref <= 0 {
				ref = notional // degrade to a fixed small bps cost
			}
			legSlippageCost = notional * (notional / ref) * 0.001
		}
		total += legSlippageCost

		if ctx.LatencyMsFor != nil {
			if l := ctx.LatencyMsFor(leg.Venue); l > maxLatencyMs {
				maxLatencyMs = l
			}
		}
	}

	band := ctx.LatencySurchargeBandMs
	if band <= 0 {
		band = 500
	}
	if maxLatencyMs > band {
		total += ctx.LatencySurchargeK * maxLatencyMs / 1000
	}
	return total
}

// capitalTimeCost is notional * (annual_rate/8760) * holding_hours.
func capitalTimeCost(j job.Job, ctx MarketContext) float64 {
	return j.Notional * (ctx.CapitalAnnualRate / 8760) * ctx.HoldingHours
}

// Score evaluates job against ctx and returns the full component
// breakdown.
func Score(j job.Job, ctx MarketContext) Score {
	priceSpreadPnL := j.Notional * j.ExpectedEdgeBps / 10000
	fundingPnL := funding(j, ctx)
	feeCost := fee(j, ctx)
	slipCost := slippage(j, ctx)
	capCost := capitalTimeCost(j, ctx)

	latencyPenalty := 0.0 // folded into slippage's surcharge term; kept as an explicit zeroed component so the identity below still sums cleanly
	expectedPnL := priceSpreadPnL + fundingPnL - feeCost - slipCost - latencyPenalty - capCost

	holdingSeconds := ctx.HoldingHours * 3600
	if holdingSeconds <= 0 {
		holdingSeconds = 1
	}

	roiPct := 0.0
	if j.Notional > 0 {
		roiPct = expectedPnL / j.Notional * 100
	}
	annualizedROI := roiPct * (365 * 24 * 3600 / holdingSeconds)

	riskScore := j.RiskScoreHint / 100
	if riskScore < 0 {
		riskScore = 0
	}
	if riskScore > 1 {
		riskScore = 1
	}

	reliability := ctx.ReliabilityWeight
	if reliability == 0 {
		reliability = 1
	}

	final := 0.0
	if expectedPnL > 0 {
		final = expectedPnL * reliability * (1 - riskScore) / math.Sqrt(holdingSeconds+1)
	}

	return Score{
		Job:             j,
		PriceSpreadPnL:  priceSpreadPnL,
		FundingPnL:      fundingPnL,
		FeeCost:         feeCost,
		SlippageCost:    slipCost,
		LatencyPenalty:  latencyPenalty,
		CapitalTimeCost: capCost,
		ExpectedPnL:     expectedPnL,
		ROIPct:          roiPct,
		AnnualizedROI:   annualizedROI,
		TimeCostSeconds: holdingSeconds,
		RiskScore:       riskScore,
		FinalScore:      final,
	}
}

// FilterExecutable keeps only scores meeting the minimum pnl, score
// and ROI bars.
func FilterExecutable(scores []Score, minPnL, minScore, minROI float64) []Score {
	out := make([]Score, 0, len(scores))
	for _, s := range scores {
		if s.ExpectedPnL < minPnL {
			continue
		}
		if s.FinalScore < minScore {
			continue
		}
		if s.ROIPct < minROI {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RankBy sorts a copy of scores descending by the given key extractor.
func RankBy(scores []Score, key func(Score) float64) []Score {
	out := make([]Score, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) > key(out[j])
	})
	return out
}
