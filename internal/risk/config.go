// Package risk implements C4, the Risk Evaluator: a set of hard
// (non-overridable) and soft (overridable) checks plus a weighted
// per-dimension scoring model, gating every job before the scheduler
// will commit capital to it. Grounded on the usual precedence-ordered
// evaluation idiom (internal/exits/logic.go) and the mutex-guarded,
// YAML-configured threshold struct shape (internal/gates/policy_matrix.go).
package risk

import "time"

// Mode selects a preset triple of thresholds and dimension weights.
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeBalanced     Mode = "balanced"
	ModeAggressive   Mode = "aggressive"
)

// Weights holds the per-dimension safety-score weights. They are
// expected to sum to 1.0 but Evaluate does not enforce that — a
// misconfigured weight set just produces a differently-scaled score.
type Weights struct {
	Funding    float64
	Spread     float64
	Volatility float64
	Latency    float64
	Leverage   float64
}

// DefaultWeights is the documented 25/25/20/15/15 split.
func DefaultWeights() Weights {
	return Weights{Funding: 0.25, Spread: 0.25, Volatility: 0.20, Latency: 0.15, Leverage: 0.15}
}

// Thresholds is one mode's tunable limits.
type Thresholds struct {
	MinEdgeBps            float64
	MaxConsecutiveFailures int
	DailyLossLimitPct     float64 // fraction of equity, e.g. 0.05
	DailyLossLimitAbs     float64
	BlackoutMinutes       float64 // funding-settlement blackout window, default 10
	VolatilityMaxStdev    float64
	LatencyCapMs          float64
	FinalScoreThreshold   float64
	WeightSafety          float64 // w_safety in final_score = w_safety*safety + w_volume*volume
	WeightVolume          float64
	DailyVolumeTarget     float64
}

// Preset bundles a mode's weights and thresholds.
type Preset struct {
	Mode       Mode
	Weights    Weights
	Thresholds Thresholds
}

// Presets returns the three built-in mode presets. Conservative tightens
// every threshold and caps edge/score bars higher; aggressive loosens
// them. Balanced is the default operating mode.
func Presets() map[Mode]Preset {
	w := DefaultWeights()
	return map[Mode]Preset{
		ModeConservative: {
			Mode:    ModeConservative,
			Weights: w,
			Thresholds: Thresholds{
				MinEdgeBps:             8,
				MaxConsecutiveFailures: 3,
				DailyLossLimitPct:      0.02,
				DailyLossLimitAbs:      0,
				BlackoutMinutes:        15,
				VolatilityMaxStdev:     0.01,
				LatencyCapMs:           150,
				FinalScoreThreshold:    70,
				WeightSafety:           0.7,
				WeightVolume:           0.3,
				DailyVolumeTarget:      50000,
			},
		},
		ModeBalanced: {
			Mode:    ModeBalanced,
			Weights: w,
			Thresholds: Thresholds{
				MinEdgeBps:             4,
				MaxConsecutiveFailures: 5,
				DailyLossLimitPct:      0.05,
				DailyLossLimitAbs:      0,
				BlackoutMinutes:        10,
				VolatilityMaxStdev:     0.02,
				LatencyCapMs:           250,
				FinalScoreThreshold:    55,
				WeightSafety:           0.6,
				WeightVolume:           0.4,
				DailyVolumeTarget:      100000,
			},
		},
		ModeAggressive: {
			Mode:    ModeAggressive,
			Weights: w,
			Thresholds: Thresholds{
				MinEdgeBps:             2,
				MaxConsecutiveFailures: 8,
				DailyLossLimitPct:      0.10,
				DailyLossLimitAbs:      0,
				BlackoutMinutes:        5,
				VolatilityMaxStdev:     0.04,
				LatencyCapMs:           400,
				FinalScoreThreshold:    40,
				WeightSafety:           0.5,
				WeightVolume:           0.5,
				DailyVolumeTarget:      200000,
			},
		},
	}
}

// Config is the full operator-tunable risk configuration, loaded from
// YAML at startup.
type Config struct {
	InitialMode   Mode          `yaml:"initial_mode"`
	KillSwitch    KillSwitchCfg `yaml:"kill_switch"`
	FastMarketBlacklist []string `yaml:"fast_market_blacklist"`
	DelayedVenueBlacklist []string `yaml:"delayed_venue_blacklist"`
}

// KillSwitchCfg seeds the global and per-venue kill switches.
type KillSwitchCfg struct {
	Global bool     `yaml:"global"`
	Venues []string `yaml:"venues"`
}

// DefaultConfig returns a balanced-mode configuration with no kill
// switches engaged.
func DefaultConfig() Config {
	return Config{InitialMode: ModeBalanced}
}

func durationFromMinutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
