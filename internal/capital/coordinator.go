package capital

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/hedgemesh/internal/errs"
	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// Config holds the operator-tunable caps.
type Config struct {
	MaxSinglePct float64 `yaml:"max_single_pct"` // default 0.10, share of the selected pool a single reservation may take
	MaxTotalPct  float64 `yaml:"max_total_pct"`  // default 0.30, share of equity total in-flight may reach
}

// DefaultConfig returns documented defaults.
func DefaultConfig() Config {
	return Config{MaxSinglePct: 0.10, MaxTotalPct: 0.30}
}

// Outcome describes how a reservation resolved, for Release.
type Outcome string

const (
	OutcomeFilled Outcome = "filled"
	OutcomeFailed Outcome = "failed"
)

// LegReservation is the soft-locked amount on one venue.
type LegReservation struct {
	VenueID string
	Pool    venue.Pool
	Amount  float64
}

// Reservation is the result of a successful two-phase Reserve call.
type Reservation struct {
	JobID string
	Legs  []LegReservation
}

// Coordinator is C3.
type Coordinator struct {
	cfg      Config
	registry *venue.Registry

	mu     sync.Mutex
	venues map[string]*VenueCapital
}

// New creates a capital coordinator bound to a venue registry.
func New(cfg Config, registry *venue.Registry) *Coordinator {
	return &Coordinator{cfg: cfg, registry: registry, venues: make(map[string]*VenueCapital)}
}

// ensureVenueLocked returns (creating if necessary) the VenueCapital
// for id. Caller must hold c.mu.
func (c *Coordinator) ensureVenueLocked(id string) (*VenueCapital, error) {
	if vc, ok := c.venues[id]; ok {
		return vc, nil
	}
	cfg, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("venue %s not registered", id)
	}
	vc := newVenueCapital(cfg)
	c.venues[id] = vc
	return vc, nil
}

// UpdateEquity recomputes id's pool budgets from the new equity,
// preserving used/in-flight.
func (c *Coordinator) UpdateEquity(id string, equity float64) error {
	c.mu.Lock()
	vc, err := c.ensureVenueLocked(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	cfg, _ := c.registry.Get(id)
	_ = c.registry.UpdateEquity(id, equity)

	vc.mu.Lock()
	vc.Equity = equity
	vc.rebalance(equity, cfg.PoolPct)
	vc.LastUpdate = time.Now()
	vc.mu.Unlock()
	return nil
}

// CanReserve is a pure check: it reports whether a reservation for job
// would currently succeed, without mutating any state. Reserve
// re-validates the same checks atomically, so a CanReserve=ok can
// still lose a race to a concurrent Reserve.
func (c *Coordinator) CanReserve(j job.Job) (bool, errs.Kind) {
	pool := j.Strategy.Pool()
	for _, legVenue := range j.Venues() {
		c.mu.Lock()
		vc, err := c.ensureVenueLocked(legVenue)
		c.mu.Unlock()
		if err != nil {
			return false, errs.KindNoVenueCapital
		}

		amount := legAmount(j, legVenue)
		ok, kind := checkVenue(vc, pool, amount, c.cfg)
		if !ok {
			return false, kind
		}
	}
	return true, ""
}

// legAmount returns the notional a job allocates against a given
// venue: the sum of that venue's leg notionals (a venue may appear on
// more than one leg in principle; in practice each leg is a distinct
// venue).
func legAmount(j job.Job, venueID string) float64 {
	total := 0.0
	totalQty := 0.0
	for _, l := range j.Legs {
		totalQty += l.Quantity
	}
	if totalQty == 0 {
		return 0
	}
	for _, l := range j.Legs {
		if l.Venue == venueID {
			total += j.Notional * (l.Quantity / totalQty)
		}
	}
	return total
}

// checkVenue runs every per-venue cap check against a candidate amount
// for pool. Caller must NOT hold vc.mu; it is acquired internally for
// a consistent read.
func checkVenue(vc *VenueCapital, pool venue.Pool, amount float64, cfg Config) (bool, errs.Kind) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return checkVenueUnlocked(vc, pool, amount, cfg)
}

// Reserve atomically soft-locks per-leg allocations across all venues
// of job. Venues are locked in sorted-ID order to prevent deadlock; if
// any venue fails its check, every lock already taken in this call is
// released and the amounts already soft-locked in this call are
// rolled back.
func (c *Coordinator) Reserve(j job.Job) (*Reservation, error) {
	pool := j.Strategy.Pool()
	venues := j.Venues()
	sort.Strings(venues)

	vcs := make([]*VenueCapital, len(venues))
	for i, id := range venues {
		c.mu.Lock()
		vc, err := c.ensureVenueLocked(id)
		c.mu.Unlock()
		if err != nil {
			return nil, errs.Wrap(errs.KindNoVenueCapital, "venue lookup failed", err)
		}
		vcs[i] = vc
	}

	for _, vc := range vcs {
		vc.mu.Lock()
	}
	defer func() {
		for _, vc := range vcs {
			vc.mu.Unlock()
		}
	}()

	locked := make([]LegReservation, 0, len(venues))
	for i, id := range venues {
		vc := vcs[i]
		amount := legAmount(j, id)

		if ok, kind := checkVenueUnlocked(vc, pool, amount, c.cfg); !ok {
			rollbackUnlocked(vcs, locked)
			return nil, errs.New(kind, fmt.Sprintf("reservation rejected for venue %s", id))
		}

		ps := vc.Pools[pool]
		ps.InFlight += amount
		locked = append(locked, LegReservation{VenueID: id, Pool: pool, Amount: amount})
	}

	return &Reservation{JobID: j.ID, Legs: locked}, nil
}

// checkVenueUnlocked is checkVenue's logic without acquiring vc.mu —
// used from Reserve, which already holds every venue's lock.
func checkVenueUnlocked(vc *VenueCapital, pool venue.Pool, amount float64, cfg Config) (bool, errs.Kind) {
	if vc.SafeMode && !vc.SafeModePools[pool] {
		return false, errs.KindPoolBlockedBySafeMode
	}
	ps, ok := vc.Pools[pool]
	if !ok || ps.Budget <= 0 {
		return false, errs.KindNoVenueCapital
	}
	if amount > ps.Budget*cfg.MaxSinglePct+1e-9 {
		return false, errs.KindSingleCapExceeded
	}
	if ps.Used+ps.InFlight+amount > ps.Budget+1e-9 {
		return false, errs.KindPoolExhausted
	}
	if vc.Equity > 0 {
		if vc.totalInFlightLocked()+amount > vc.Equity*cfg.MaxTotalPct+1e-9 {
			return false, errs.KindTotalInflightExceeded
		}
	}
	return true, ""
}

// rollbackUnlocked undoes every lock already taken in this Reserve
// call. Caller holds every vcs[i].mu.
func rollbackUnlocked(vcs []*VenueCapital, locked []LegReservation) {
	byVenue := make(map[string]*VenueCapital, len(vcs))
	for _, vc := range vcs {
		byVenue[vc.VenueID] = vc
	}
	for _, lr := range locked {
		vc := byVenue[lr.VenueID]
		ps := vc.Pools[lr.Pool]
		ps.InFlight -= lr.Amount
	}
}

// Release moves a reservation's soft-locked amounts out of in-flight:
// into used on OutcomeFilled, or simply released back to available on
// OutcomeFailed. Release is idempotent only in the sense the caller
// must guarantee exactly-once invocation per Reserve; calling it
// twice for the same reservation will double-subtract and is a caller
// bug, not something Release can detect after the fact.
func (c *Coordinator) Release(r *Reservation, outcome Outcome, pnl, volume, fees float64) {
	venues := make([]string, len(r.Legs))
	for i, lr := range r.Legs {
		venues[i] = lr.VenueID
	}
	sort.Strings(venues)

	c.mu.Lock()
	vcs := make(map[string]*VenueCapital, len(venues))
	for _, id := range venues {
		vc, err := c.ensureVenueLocked(id)
		if err != nil {
			continue
		}
		vcs[id] = vc
	}
	c.mu.Unlock()

	ordered := make([]*VenueCapital, 0, len(venues))
	for _, id := range venues {
		if vc, ok := vcs[id]; ok {
			ordered = append(ordered, vc)
		}
	}
	for _, vc := range ordered {
		vc.mu.Lock()
	}
	defer func() {
		for _, vc := range ordered {
			vc.mu.Unlock()
		}
	}()

	for _, lr := range r.Legs {
		vc, ok := vcs[lr.VenueID]
		if !ok {
			continue
		}
		ps := vc.Pools[lr.Pool]
		ps.InFlight -= lr.Amount
		if ps.InFlight < 0 {
			ps.InFlight = 0
		}
		if outcome == OutcomeFilled {
			ps.Used += lr.Amount
		}
	}

	if len(ordered) > 0 {
		primary := ordered[0]
		primary.RealizedPnLToday += pnl
		primary.VolumeToday += volume
		primary.FeesToday += fees
		primary.LastUpdate = time.Now()
	}
}

// Snapshot returns the current capital state for a venue, or false if
// unknown.
func (c *Coordinator) Snapshot(venueID string) (*VenueCapital, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vc, ok := c.venues[venueID]
	return vc, ok
}
