// Package execution implements C6, the Execution Engine: per-leg
// Maker/Taker selection, concurrent or staggered order placement, an
// unhedged-risk watchdog that forces a Taker fallback once a timeout
// or notional cap is crossed, and a rolling per-venue-pair fill-rate
// tracker that opens a temporary Taker-only degradation window.
// Grounded on the precedence-ordered state machine and watchdog-timer
// idiom of internal/exits/logic.go, and the rolling-window per-pair
// stats shape of internal/microstructure/venue_health.go.
package execution

import "time"

// Mode selects how a hedge's two legs are routed.
type Mode string

const (
	// ModeSafeTakerOnly issues both legs as Taker, concurrently. No
	// unhedged window beyond dispatch jitter.
	ModeSafeTakerOnly Mode = "safe_taker_only"
	// ModeHybridHedgeTaker issues the hedge leg as Taker first, then
	// attempts the rebate leg as Maker post-only.
	ModeHybridHedgeTaker Mode = "hybrid_hedge_taker"
	// ModeDoubleMakerOpportunistic attempts both legs as Maker; only
	// selected when both venues offer a negative maker fee and pass
	// the configured liquidity bar.
	ModeDoubleMakerOpportunistic Mode = "double_maker_opportunistic"
)

// Config holds the operator-tunable execution thresholds.
type Config struct {
	MakerTimeout     time.Duration `yaml:"maker_timeout"`       // default from MAKER_TIMEOUT_MS
	MaxUnhedgedMaxMs time.Duration `yaml:"max_unhedged_max_ms"` // T_unhedged_max_ms ceiling
	MaxUnhedgedUSD   float64       `yaml:"max_unhedged_usd"`

	NWindow             int     `yaml:"n_window"`               // rolling maker-attempt window size, default 20
	MinFillRate         float64 `yaml:"min_fill_rate"`          // below this, degrade, default 0.50
	MaxFallbackRate     float64 `yaml:"max_fallback_rate"`      // above this, degrade, default 0.30
	MinSamplesToDegrade int     `yaml:"min_samples_to_degrade"` // default min(10, NWindow/2)
	CooldownSeconds     int     `yaml:"cooldown_seconds"`       // default 300

	DoubleMakerLiquidityBar float64 `yaml:"double_maker_liquidity_bar"` // min liquidity score [0,100] for both legs
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	cfg := Config{
		MakerTimeout:            2 * time.Second,
		MaxUnhedgedMaxMs:        5 * time.Second,
		MaxUnhedgedUSD:          5000,
		NWindow:                 20,
		MinFillRate:             0.50,
		MaxFallbackRate:         0.30,
		CooldownSeconds:         300,
		DoubleMakerLiquidityBar: 70,
	}
	cfg.MinSamplesToDegrade = minInt(10, cfg.NWindow/2)
	return cfg
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
