package risk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/job"
)

// Evaluator is C4. It holds mode state, kill switches, and the
// consecutive-failure streak that can trip auto_halt, all behind a
// single mutex — evaluations are read-mostly but state updates
// (RecordSuccess/RecordFailure/kill switches) must not race a Tick.
type Evaluator struct {
	mu sync.RWMutex

	mode    Mode
	presets map[Mode]Preset

	killSwitchGlobal bool
	killSwitchVenue  map[string]bool

	autoHalt            bool
	consecutiveFailures int

	fastMarketBlacklist   map[string]bool
	delayedVenueBlacklist map[string]bool
}

// New creates an evaluator from cfg.
func New(cfg Config) *Evaluator {
	mode := cfg.InitialMode
	if mode == "" {
		mode = ModeBalanced
	}
	e := &Evaluator{
		mode:                  mode,
		presets:               Presets(),
		killSwitchGlobal:      cfg.KillSwitch.Global,
		killSwitchVenue:       make(map[string]bool),
		fastMarketBlacklist:   make(map[string]bool),
		delayedVenueBlacklist: make(map[string]bool),
	}
	for _, v := range cfg.KillSwitch.Venues {
		e.killSwitchVenue[v] = true
	}
	for _, s := range cfg.FastMarketBlacklist {
		e.fastMarketBlacklist[s] = true
	}
	for _, v := range cfg.DelayedVenueBlacklist {
		e.delayedVenueBlacklist[v] = true
	}
	return e
}

// SetMode swaps the active preset. Per the scheduler's tick-boundary
// contract, callers invoke this between ticks, never mid-tick.
func (e *Evaluator) SetMode(mode Mode) error {
	if _, ok := Presets()[mode]; !ok {
		return fmt.Errorf("unknown risk mode %q", mode)
	}
	e.mu.Lock()
	e.mode = mode
	e.mu.Unlock()
	return nil
}

// Mode returns the currently active mode.
func (e *Evaluator) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetGlobalKillSwitch flips the global kill switch.
func (e *Evaluator) SetGlobalKillSwitch(on bool) {
	e.mu.Lock()
	e.killSwitchGlobal = on
	e.mu.Unlock()
}

// SetVenueKillSwitch flips a single venue's kill switch.
func (e *Evaluator) SetVenueKillSwitch(venueID string, on bool) {
	e.mu.Lock()
	if on {
		e.killSwitchVenue[venueID] = true
	} else {
		delete(e.killSwitchVenue, venueID)
	}
	e.mu.Unlock()
}

// RecordSuccess resets the consecutive-failure streak.
func (e *Evaluator) RecordSuccess() {
	e.mu.Lock()
	e.consecutiveFailures = 0
	e.mu.Unlock()
}

// RecordFailure bumps the consecutive-failure streak and trips
// auto_halt once it reaches the active mode's cap.
func (e *Evaluator) RecordFailure(reason string) {
	e.mu.Lock()
	e.consecutiveFailures++
	preset := e.presets[e.mode]
	tripped := e.consecutiveFailures >= preset.Thresholds.MaxConsecutiveFailures
	if tripped {
		e.autoHalt = true
	}
	e.mu.Unlock()
	if tripped {
		log.Warn().Str("reason", reason).Int("streak", e.consecutiveFailures).Msg("auto_halt tripped")
	}
}

// ResetAutoHalt clears auto_halt. Operator-only: nothing in this
// package calls it automatically.
func (e *Evaluator) ResetAutoHalt() {
	e.mu.Lock()
	e.autoHalt = false
	e.consecutiveFailures = 0
	e.mu.Unlock()
}

// AutoHalt reports whether auto_halt is currently set.
func (e *Evaluator) AutoHalt() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.autoHalt
}

// Evaluate runs every hard check, then soft checks, then the weighted
// scoring model, in precedence order — the first hard check that
// fires wins and nothing past it is evaluated.
func (e *Evaluator) Evaluate(j job.Job, ctx Context) Verdict {
	e.mu.RLock()
	mode := e.mode
	preset := e.presets[mode]
	killGlobal := e.killSwitchGlobal
	autoHalt := e.autoHalt
	venueKilled := make(map[string]bool, len(e.killSwitchVenue))
	for k, v := range e.killSwitchVenue {
		venueKilled[k] = v
	}
	fastBlacklisted := e.fastMarketBlacklist[j.Symbol]
	delayedBlacklisted := false
	for _, v := range j.Venues() {
		if e.delayedVenueBlacklist[v] {
			delayedBlacklisted = true
			break
		}
	}
	e.mu.RUnlock()

	// Hard check 1: kill switches.
	if killGlobal {
		return rejectVerdict("global kill switch engaged")
	}
	for _, v := range j.Venues() {
		if venueKilled[v] {
			return rejectVerdict(fmt.Sprintf("venue %s kill switch engaged", v))
		}
	}

	// Hard check 2: auto_halt without override.
	if autoHalt && !ctx.ManualOverride {
		return rejectVerdict("auto_halt is set")
	}

	// Hard check 3: daily loss triggers.
	if ctx.Equity > 0 && ctx.TodayPnL < -preset.Thresholds.DailyLossLimitPct*ctx.Equity {
		return rejectVerdict("daily loss limit (pct of equity) breached")
	}
	if preset.Thresholds.DailyLossLimitAbs > 0 && ctx.TodayPnL < -preset.Thresholds.DailyLossLimitAbs {
		return rejectVerdict("daily loss limit (absolute) breached")
	}

	// Hard check 4: blacklists.
	if fastBlacklisted {
		return rejectVerdict(fmt.Sprintf("symbol %s is fast-market blacklisted", j.Symbol))
	}
	if delayedBlacklisted {
		return rejectVerdict("a leg venue is delayed-venue blacklisted")
	}

	// Soft checks: overridable.
	softReasons := make([]string, 0, 2)
	if j.ExpectedEdgeBps < preset.Thresholds.MinEdgeBps {
		softReasons = append(softReasons, fmt.Sprintf("expected edge %.2fbps below mode minimum %.2fbps", j.ExpectedEdgeBps, preset.Thresholds.MinEdgeBps))
	}
	e.mu.RLock()
	failures := e.consecutiveFailures
	e.mu.RUnlock()
	if failures >= preset.Thresholds.MaxConsecutiveFailures {
		softReasons = append(softReasons, fmt.Sprintf("consecutive failure streak %d at or above cap %d", failures, preset.Thresholds.MaxConsecutiveFailures))
	}
	if len(softReasons) > 0 && !ctx.ManualOverride {
		return Verdict{Decision: DecisionReject, Reason: joinReasons(softReasons)}
	}

	dims := scoreDimensions(j, ctx, preset)
	safety := preset.Weights.Funding*dims.Funding +
		preset.Weights.Spread*dims.Spread +
		preset.Weights.Volatility*dims.Volatility +
		preset.Weights.Latency*dims.Latency +
		preset.Weights.Leverage*dims.Leverage

	volume := volumeScore(ctx, preset)
	final := preset.Thresholds.WeightSafety*safety + preset.Thresholds.WeightVolume*volume

	v := Verdict{
		SafetyScore:  safety,
		VolumeScore:  volume,
		FinalScore:   final,
		PerDimension: dims,
	}

	if final < preset.Thresholds.FinalScoreThreshold {
		if ctx.ManualOverride {
			v.Decision = DecisionWarn
			v.Reason = fmt.Sprintf("final score %.1f below mode threshold %.1f (overridden)", final, preset.Thresholds.FinalScoreThreshold)
			return v
		}
		v.Decision = DecisionReject
		v.Reason = fmt.Sprintf("final score %.1f below mode threshold %.1f", final, preset.Thresholds.FinalScoreThreshold)
		return v
	}

	if len(softReasons) > 0 {
		v.Decision = DecisionWarn
		v.Reason = joinReasons(softReasons) + " (overridden)"
		return v
	}

	v.Decision = DecisionAccept
	return v
}

func rejectVerdict(reason string) Verdict {
	return Verdict{Decision: DecisionReject, Reason: reason, Hard: true}
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
