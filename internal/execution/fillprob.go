package execution

import "math"

// FillProbabilityInputs are the observable at decision time that the
// fill-probability model combines into a rough [0,1] estimate for a
// Maker leg. The estimate is informational only and never blocks a
// Maker attempt. The engine does not call EstimateFillProbability, so
// no estimate is computed or logged during ExecuteHedge.
type FillProbabilityInputs struct {
	OffsetFromMidBps   float64 // how far the post-only price sits from mid
	NotionalOverDepth   float64 // notional / top-of-book depth, >0
	RecentPairFillRate float64 // MakerStats.Rates() fill-rate for this pair, [0,1]
}

// EstimateFillProbability blends the three inputs: a closer-to-mid
// offset and thinner relative size both raise the estimate, scaled by
// the pair's recent observed fill-rate as a prior.
func EstimateFillProbability(in FillProbabilityInputs) float64 {
	offsetFactor := 1.0 / (1.0 + in.OffsetFromMidBps/5.0)
	sizeFactor := 1.0 / (1.0 + in.NotionalOverDepth)
	prior := in.RecentPairFillRate
	if prior <= 0 {
		prior = 0.5 // no history yet, assume a neutral prior
	}
	p := 0.5*prior + 0.5*(offsetFactor*sizeFactor)
	return math.Max(0, math.Min(1, p))
}
