// Package job defines the Opportunity/HedgeJob and OpportunityScore
// types shared by C2 (scoring), C3 (capital), C4 (risk), C5
// (scheduler) and C6 (execution). The enumerated-option configurations
// are closed sum types instead of a dynamic attribute bag.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// StrategyType is a closed sum type over the three opportunity shapes.
type StrategyType string

const (
	StrategyWash           StrategyType = "wash"
	StrategyArbitrage      StrategyType = "arbitrage"
	StrategyHedgeRebalance StrategyType = "hedge-rebalance"
)

// Pool returns the capital pool a strategy type draws from.
func (s StrategyType) Pool() venue.Pool {
	switch s {
	case StrategyArbitrage:
		return venue.PoolArb
	default: // wash, hedge-rebalance
		return venue.PoolWash
	}
}

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Leg is one side of a multi-venue opportunity.
type Leg struct {
	Venue    string
	Side     venue.Side
	Quantity float64
}

// Job is an immutable-after-creation Opportunity/HedgeJob record.
type Job struct {
	ID              string
	Strategy        StrategyType
	Symbol          string
	Legs            []Leg
	Notional        float64
	ExpectedEdgeBps float64
	ExpectedPnL     float64

	RiskScoreHint      float64 // normalized [0,100], producer-supplied hint
	LatencyScoreHint   float64
	VolumeScoreHint    float64
	FundingScoreHint   float64
	LiquidityScoreHint float64

	Source    string
	SubmitTS  time.Time

	Status Status
}

// New constructs a job with a fresh globally-unique ID and validates
// its creation-time invariants: legs balance within tolerance,
// notional is positive, and every leg venue is in the registry.
func New(strategy StrategyType, symbol string, legs []Leg, notional float64, expectedEdgeBps float64, source string, submitTS time.Time, registry *venue.Registry) (Job, error) {
	j := Job{
		ID:              uuid.New().String(),
		Strategy:        strategy,
		Symbol:          symbol,
		Legs:            legs,
		Notional:        notional,
		ExpectedEdgeBps: expectedEdgeBps,
		Source:          source,
		SubmitTS:        submitTS,
		Status:          StatusPending,
	}
	if err := j.validate(registry); err != nil {
		return Job{}, err
	}
	return j, nil
}

const legBalanceTolerance = 1e-6

func (j Job) validate(registry *venue.Registry) error {
	if j.Notional <= 0 {
		return fmt.Errorf("notional must be positive, got %v", j.Notional)
	}
	if len(j.Legs) == 0 {
		return fmt.Errorf("job must have at least one leg")
	}

	sum := 0.0
	for _, leg := range j.Legs {
		if registry != nil {
			if _, ok := registry.Get(leg.Venue); !ok {
				return fmt.Errorf("leg venue %q is not in the venue registry", leg.Venue)
			}
		}
		switch leg.Side {
		case venue.SideBuy:
			sum += leg.Quantity
		case venue.SideSell:
			sum -= leg.Quantity
		default:
			return fmt.Errorf("leg has invalid side %q", leg.Side)
		}
	}
	if j.Strategy == StrategyArbitrage || j.Strategy == StrategyHedgeRebalance {
		if absf(sum) > legBalanceTolerance {
			return fmt.Errorf("legs do not balance within tolerance: sum=%v", sum)
		}
	}
	return nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Venues returns the distinct venue IDs touched by this job's legs.
func (j Job) Venues() []string {
	seen := make(map[string]struct{}, len(j.Legs))
	out := make([]string, 0, len(j.Legs))
	for _, leg := range j.Legs {
		if _, ok := seen[leg.Venue]; ok {
			continue
		}
		seen[leg.Venue] = struct{}{}
		out = append(out, leg.Venue)
	}
	return out
}

// Record is the terminal, immutable record of a finished job, kept in
// the scheduler's bounded ring.
type Record struct {
	Job        Job
	FinalState Status
	Reason     string
	FinishedAt time.Time
}
