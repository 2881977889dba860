// Package capital implements C3, the Capital Coordinator: per-venue
// three-pool budgets, two-phase soft-lock reservations, and release on
// completion. Grounded on the usual YAML-configured threshold
// struct shape (internal/ops/guards.go) and its per-key mutex idiom
// (internal/microstructure/venue_health.go), generalized here to
// per-venue capital pools with a defined cross-venue lock order.
package capital

import (
	"sync"
	"time"

	"github.com/sawpanic/hedgemesh/internal/venue"
)

// PoolState is one venue's budget/used/in-flight triple for a single
// pool. The core capital-safety invariant is
// used + in_flight <= budget, enforced on every mutation.
type PoolState struct {
	Budget   float64
	Used     float64
	InFlight float64
}

// VenueCapital aggregates a venue's three pools plus daily stats.
type VenueCapital struct {
	mu sync.Mutex

	VenueID         string
	Equity          float64
	Pools           map[venue.Pool]*PoolState
	RealizedPnLToday float64
	VolumeToday     float64
	FeesToday       float64
	SafeMode        bool
	SafeModePools   map[venue.Pool]bool
	LastUpdate      time.Time
}

func newVenueCapital(cfg venue.Config) *VenueCapital {
	vc := &VenueCapital{
		VenueID:       cfg.ID,
		Equity:        cfg.Equity,
		Pools:         make(map[venue.Pool]*PoolState),
		SafeMode:      cfg.SafeMode,
		SafeModePools: make(map[venue.Pool]bool),
		LastUpdate:    time.Now(),
	}
	for _, p := range cfg.SafeModePools {
		vc.SafeModePools[p] = true
	}
	vc.rebalance(cfg.Equity, cfg.PoolPct)
	return vc
}

// rebalance recomputes each pool's budget from equity * pct, holding
// used/in-flight exactly as they were. Caller must hold vc.mu.
func (vc *VenueCapital) rebalance(equity float64, pct map[venue.Pool]float64) {
	for _, p := range []venue.Pool{venue.PoolWash, venue.PoolArb, venue.PoolReserve} {
		ps, ok := vc.Pools[p]
		if !ok {
			ps = &PoolState{}
			vc.Pools[p] = ps
		}
		ps.Budget = equity * pct[p]
	}
}

// TotalInFlight sums in-flight across all three pools.
func (vc *VenueCapital) TotalInFlight() float64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.totalInFlightLocked()
}

func (vc *VenueCapital) totalInFlightLocked() float64 {
	total := 0.0
	for _, ps := range vc.Pools {
		total += ps.InFlight
	}
	return total
}

// TotalUsed sums used across all three pools.
func (vc *VenueCapital) TotalUsed() float64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	total := 0.0
	for _, ps := range vc.Pools {
		total += ps.Used
	}
	return total
}

// Utilization returns (used+in_flight)/equity as a fraction.
func (vc *VenueCapital) Utilization() float64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.Equity <= 0 {
		return 0
	}
	total := 0.0
	for _, ps := range vc.Pools {
		total += ps.Used + ps.InFlight
	}
	return total / vc.Equity
}

// Snapshot returns a copy of the pool state for observability.
func (vc *VenueCapital) Snapshot() map[venue.Pool]PoolState {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	out := make(map[venue.Pool]PoolState, len(vc.Pools))
	for p, ps := range vc.Pools {
		out[p] = *ps
	}
	return out
}
