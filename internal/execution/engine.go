package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/supervisor"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// LegStatus is a leg's terminal outcome.
type LegStatus string

const (
	LegFilled    LegStatus = "filled"
	LegCancelled LegStatus = "cancelled"
	LegFailed    LegStatus = "failed"
)

// LegResult is one leg's outcome.
type LegResult struct {
	VenueID     string
	Side        venue.Side
	WasMaker    bool
	Status      LegStatus
	FilledPrice float64
	Fee         float64
}

// HedgeRequest is ExecuteHedge's input.
type HedgeRequest struct {
	BuyVenue  string
	SellVenue string
	Symbol    string
	Notional  float64
	BuyPrice  float64
	SellPrice float64

	ConfiguredMode Mode
	BuyLeg         LegContext
	SellLeg        LegContext

	ConfiguredWashMode bool // operator has this engine pinned to wash-only
	IsWashOpportunity  bool
	ExpectedPnL        float64
	MinExpectedPnL     *float64
}

// HedgeResult is ExecuteHedge's output.
type HedgeResult struct {
	Legs                 []LegResult
	ModeUsed             Mode
	TotalUnhedgedTime    time.Duration
	PeakUnhedgedNotional float64
	HadFallback          bool
	Success              bool
	Reason               string
}

// Engine is C6.
type Engine struct {
	cfg        Config
	adapter    Adapter
	supervisor *supervisor.Supervisor

	mu         sync.Mutex
	stats      map[string]*MakerStats
	degraded   map[string]*DegradationState
}

// New creates an execution engine bound to an exchange adapter and
// connection supervisor.
func New(cfg Config, adapter Adapter, sup *supervisor.Supervisor) *Engine {
	return &Engine{
		cfg:        cfg,
		adapter:    adapter,
		supervisor: sup,
		stats:      make(map[string]*MakerStats),
		degraded:   make(map[string]*DegradationState),
	}
}

func (e *Engine) statsFor(key string) *MakerStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[key]
	if !ok {
		s = newMakerStats(e.cfg.NWindow)
		e.stats[key] = s
	}
	return s
}

func (e *Engine) degradationFor(key string) *DegradationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.degraded[key]
	if !ok {
		d = &DegradationState{}
		e.degraded[key] = d
	}
	return d
}

// IsPairDegraded reports whether a venue pair is currently in its
// Taker-only cooldown window.
func (e *Engine) IsPairDegraded(venueA, venueB string) bool {
	return e.degradationFor(pairKey(venueA, venueB)).Active()
}

// ExecuteHedge is C6's entry point.
func (e *Engine) ExecuteHedge(ctx context.Context, req HedgeRequest) HedgeResult {
	if req.ConfiguredWashMode && !req.IsWashOpportunity {
		return HedgeResult{Success: false, Reason: "wash-only engine refuses a non-wash opportunity"}
	}
	if req.MinExpectedPnL != nil && req.ExpectedPnL < *req.MinExpectedPnL {
		return HedgeResult{Success: false, Reason: fmt.Sprintf("expected pnl %.4f below minimum %.4f", req.ExpectedPnL, *req.MinExpectedPnL)}
	}

	key := pairKey(req.BuyVenue, req.SellVenue)
	forced := e.supervisor.IsDegraded(req.BuyVenue) || e.supervisor.IsDegraded(req.SellVenue) || e.degradationFor(key).Active()
	decision := SelectMode(req.ConfiguredMode, req.BuyLeg, req.SellLeg, e.cfg, forced)

	var result HedgeResult
	switch decision.Mode {
	case ModeDoubleMakerOpportunistic:
		result = e.runDoubleMaker(ctx, req, key)
	case ModeHybridHedgeTaker:
		result = e.runHybrid(ctx, req, decision, key)
	default:
		result = e.runSafeTaker(ctx, req)
	}
	result.ModeUsed = decision.Mode
	return result
}

// runSafeTaker places both legs as Taker concurrently.
func (e *Engine) runSafeTaker(ctx context.Context, req HedgeRequest) HedgeResult {
	var buyResult, sellResult LegResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		buyResult = e.placeTaker(ctx, req.BuyVenue, req.Symbol, venue.SideBuy, req.Notional)
	}()
	go func() {
		defer wg.Done()
		sellResult = e.placeTaker(ctx, req.SellVenue, req.Symbol, venue.SideSell, req.Notional)
	}()
	wg.Wait()

	success := buyResult.Status == LegFilled && sellResult.Status == LegFilled
	return HedgeResult{Legs: []LegResult{buyResult, sellResult}, Success: success}
}

// runHybrid places the hedge leg as Taker immediately, then attempts
// the Maker leg under the unhedged-risk watchdog.
func (e *Engine) runHybrid(ctx context.Context, req HedgeRequest, decision ModeDecision, key string) HedgeResult {
	hedgeSide := venue.SideBuy
	if decision.HedgeVenue == req.SellVenue {
		hedgeSide = venue.SideSell
	}
	makerSide := venue.SideSell
	makerPrice := req.SellPrice
	if decision.MakerVenue == req.BuyVenue {
		makerSide = venue.SideBuy
		makerPrice = req.BuyPrice
	}

	hedgeResult := e.placeTaker(ctx, decision.HedgeVenue, req.Symbol, hedgeSide, req.Notional)
	hedgeStart := time.Now()
	if hedgeResult.Status != LegFilled {
		return HedgeResult{Legs: []LegResult{hedgeResult}, Success: false, Reason: "hedge leg failed to fill"}
	}

	makerResult, unhedgedTime, fellBack := e.watchMakerLeg(ctx, req, decision.MakerVenue, makerSide, makerPrice, key, hedgeStart)

	success := makerResult.Status == LegFilled
	return HedgeResult{
		Legs:                 []LegResult{hedgeResult, makerResult},
		TotalUnhedgedTime:    unhedgedTime,
		PeakUnhedgedNotional: req.Notional,
		HadFallback:          fellBack,
		Success:              success,
	}
}

// runDoubleMaker attempts both legs as Maker concurrently, each under
// its own watchdog window; a hedge is only unhedged if one leg
// outpaces the other, so we treat the slower leg as the "hedge" once
// the faster one fills.
func (e *Engine) runDoubleMaker(ctx context.Context, req HedgeRequest, key string) HedgeResult {
	type legOutcome struct {
		result      LegResult
		unhedgedDur time.Duration
		fellBack    bool
	}
	buyCh := make(chan legOutcome, 1)
	sellCh := make(chan legOutcome, 1)
	start := time.Now()

	go func() {
		r, d, fb := e.watchMakerLeg(ctx, req, req.BuyVenue, venue.SideBuy, req.BuyPrice, key, start)
		buyCh <- legOutcome{r, d, fb}
	}()
	go func() {
		r, d, fb := e.watchMakerLeg(ctx, req, req.SellVenue, venue.SideSell, req.SellPrice, key, start)
		sellCh <- legOutcome{r, d, fb}
	}()

	buyOut := <-buyCh
	sellOut := <-sellCh

	success := buyOut.result.Status == LegFilled && sellOut.result.Status == LegFilled
	unhedged := buyOut.unhedgedDur
	if sellOut.unhedgedDur > unhedged {
		unhedged = sellOut.unhedgedDur
	}
	return HedgeResult{
		Legs:                 []LegResult{buyOut.result, sellOut.result},
		TotalUnhedgedTime:    unhedged,
		PeakUnhedgedNotional: req.Notional,
		HadFallback:          buyOut.fellBack || sellOut.fellBack,
		Success:              success,
	}
}

// placeTaker places a plain market order and calls PollFill once; an
// order that poll does not report filled counts as a failed leg.
func (e *Engine) placeTaker(ctx context.Context, venueID, symbol string, side venue.Side, size float64) LegResult {
	ack, err := e.adapter.PlaceOrder(ctx, venueID, symbol, side, size, OrderSpec{Market: true})
	if err != nil {
		return LegResult{VenueID: venueID, Side: side, Status: LegFailed}
	}
	status, err := e.adapter.PollFill(ctx, venueID, ack.OrderID)
	if err != nil || !status.Filled {
		return LegResult{VenueID: venueID, Side: side, Status: LegFailed}
	}
	return LegResult{VenueID: venueID, Side: side, Status: LegFilled, FilledPrice: status.FilledPrice, Fee: status.Fee}
}

// watchMakerLeg places a post-only Maker order and enforces the
// unhedged-risk watchdog: if it is not filled before
// min(MAKER_TIMEOUT_MS, T_unhedged_max_ms), or the caller's notional
// already exceeds MAX_UNHEDGED_USD, it is cancelled and a Taker is
// issued immediately for the same size. The maker attempt (filled,
// fallback) is recorded into the pair's rolling stats, and a run of
// poor fills opens a cooldown degradation window for the pair.
func (e *Engine) watchMakerLeg(ctx context.Context, req HedgeRequest, venueID string, side venue.Side, price float64, key string, hedgeStart time.Time) (LegResult, time.Duration, bool) {
	ack, err := e.adapter.PlaceOrder(ctx, venueID, req.Symbol, side, req.Notional, OrderSpec{Market: false, Price: price})
	if err != nil {
		e.statsFor(key).Record(false, true, false)
		fallback := e.placeTaker(ctx, venueID, req.Symbol, side, req.Notional)
		return fallback, time.Since(hedgeStart), true
	}

	timeout := e.cfg.MakerTimeout
	if e.cfg.MaxUnhedgedMaxMs < timeout {
		timeout = e.cfg.MaxUnhedgedMaxMs
	}

	deadline := time.After(timeout)
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.fallbackLeg(ctx, req, venueID, ack.OrderID, side, key, hedgeStart)
		case <-deadline:
			return e.fallbackLeg(ctx, req, venueID, ack.OrderID, side, key, hedgeStart)
		case <-poll.C:
			if req.Notional > e.cfg.MaxUnhedgedUSD {
				return e.fallbackLeg(ctx, req, venueID, ack.OrderID, side, key, hedgeStart)
			}
			status, err := e.adapter.PollFill(ctx, venueID, ack.OrderID)
			if err == nil && status.Filled {
				e.statsFor(key).Record(true, false, false)
				e.recordHealthySample(key)
				return LegResult{VenueID: venueID, Side: side, WasMaker: true, Status: LegFilled, FilledPrice: status.FilledPrice, Fee: status.Fee}, time.Since(hedgeStart), false
			}
		}
	}
}

// fallbackLeg cancels the outstanding Maker order (best-effort; a late
// fill after cancellation is the adapter's problem to reconcile, not
// this engine's) and replaces it with an immediate Taker for the same
// size, recording the attempt as a fallback and checking whether the
// pair has now earned a degradation cooldown.
func (e *Engine) fallbackLeg(ctx context.Context, req HedgeRequest, venueID, orderID string, side venue.Side, key string, hedgeStart time.Time) (LegResult, time.Duration, bool) {
	if err := e.adapter.CancelOrder(ctx, venueID, orderID); err != nil {
		log.Warn().Str("venue", venueID).Str("order_id", orderID).Err(err).Msg("best-effort maker cancel failed")
	}
	stats := e.statsFor(key)
	stats.Record(false, true, true)
	e.maybeDegrade(key, stats)
	leg := e.placeTaker(ctx, venueID, req.Symbol, side, req.Notional)
	return leg, time.Since(hedgeStart), true
}

// recordHealthySample lets a degraded pair self-recover on its next
// healthy sample once the cooldown window has already elapsed.
func (e *Engine) recordHealthySample(key string) {
	e.degradationFor(key).Active()
}

// maybeDegrade opens a cooldown window once the rolling window shows
// a poor enough fill-rate or fallback-rate with enough samples.
func (e *Engine) maybeDegrade(key string, stats *MakerStats) {
	fillRate, fallbackRate, samples := stats.Rates()
	if samples < e.cfg.MinSamplesToDegrade {
		return
	}
	if fillRate < e.cfg.MinFillRate || fallbackRate > e.cfg.MaxFallbackRate {
		reason := fmt.Sprintf("fill_rate=%.2f fallback_rate=%.2f over %d samples", fillRate, fallbackRate, samples)
		e.degradationFor(key).open(reason, time.Duration(e.cfg.CooldownSeconds)*time.Second)
	}
}
