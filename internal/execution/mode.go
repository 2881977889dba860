package execution

// LegContext is what mode selection needs to know about one leg's
// venue: its maker fee rate (negative is a rebate) and a normalized
// liquidity score in [0,100].
type LegContext struct {
	VenueID        string
	MakerFeeRate   float64
	LiquidityScore float64
}

// ModeDecision is the result of selecting a mode for one hedge: which
// mode to run, and — for HybridHedgeTaker — which leg is the
// immediate-cover hedge leg (Taker) versus the rebate leg (Maker).
type ModeDecision struct {
	Mode       Mode
	HedgeVenue string // Taker leg under HybridHedgeTaker; empty otherwise
	MakerVenue string // Maker leg under HybridHedgeTaker or DoubleMaker; empty under SafeTakerOnly
	Forced     bool
	Reason     string
}

// SelectMode runs mode selection in precedence order: forced
// degradation always wins; otherwise the configured mode is honored
// if its preconditions hold, and anything that doesn't qualify falls
// back to SafeTakerOnly.
func SelectMode(configured Mode, legA, legB LegContext, cfg Config, forcedDegraded bool) ModeDecision {
	if forcedDegraded {
		return ModeDecision{Mode: ModeSafeTakerOnly, Forced: true, Reason: "venue pair is degraded"}
	}

	if configured == ModeDoubleMakerOpportunistic &&
		legA.MakerFeeRate < 0 && legB.MakerFeeRate < 0 &&
		legA.LiquidityScore >= cfg.DoubleMakerLiquidityBar && legB.LiquidityScore >= cfg.DoubleMakerLiquidityBar {
		return ModeDecision{Mode: ModeDoubleMakerOpportunistic, MakerVenue: legA.VenueID + "," + legB.VenueID}
	}

	if configured == ModeHybridHedgeTaker {
		// Maker goes where the rebate is best: the leg with the lower
		// (more negative) maker fee rate is the rebate leg; the other
		// leg, whose maker rate is less favorable, takes immediately.
		hedge, maker := legA, legB
		if legB.MakerFeeRate > legA.MakerFeeRate {
			hedge, maker = legB, legA
		}
		return ModeDecision{Mode: ModeHybridHedgeTaker, HedgeVenue: hedge.VenueID, MakerVenue: maker.VenueID}
	}

	return ModeDecision{Mode: ModeSafeTakerOnly}
}
