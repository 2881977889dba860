package risk

// Decision is Evaluate's outcome.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionWarn   Decision = "warn"
	DecisionReject Decision = "reject"
)

// DimensionScores is the per-dimension breakdown feeding safety_score.
type DimensionScores struct {
	Funding    float64
	Spread     float64
	Volatility float64
	Latency    float64
	Leverage   float64
}

// Verdict is the full result of Evaluate.
type Verdict struct {
	Decision     Decision
	SafetyScore  float64
	VolumeScore  float64
	FinalScore   float64
	Reason       string
	PerDimension DimensionScores

	// Hard marks a DecisionReject produced by one of the hard checks
	// (kill switches, auto_halt, daily loss, blacklists) — terminal and
	// never reconsidered. A DecisionReject with Hard false came from a
	// soft check (min edge, failure streak, final score) without
	// override and stays pending: it may pass on a later tick once
	// market conditions or the risk mode change.
	Hard bool
}

// Context carries the market and book-keeping state Evaluate needs
// beyond the job itself: everything a producer cannot know without
// consulting the rest of the control plane.
type Context struct {
	FundingMinutesToSettlement func(venueID, symbol string) float64
	SpreadBps                  func(venueID, symbol string) float64
	VolatilityStdev            func(venueID, symbol string) float64
	LatencyMsFor               func(venueID string) float64
	LiquidationDistancePct     func(venueID, symbol string) float64 // higher is safer

	TodayPnL          float64
	TodayVolume       float64
	Equity            float64
	ManualOverride    bool
}
