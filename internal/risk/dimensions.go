package risk

import (
	"math"

	"github.com/sawpanic/hedgemesh/internal/job"
)

// scoreDimensions computes the five per-dimension scores (each in
// [0,100], higher is safer) for a job under the active preset. Every
// lookup function in ctx is optional; a nil one scores that dimension
// at 100 (no information, assume safe) rather than zeroing it out,
// since an absent data feed should not itself sink a score.
func scoreDimensions(j job.Job, ctx Context, preset Preset) DimensionScores {
	return DimensionScores{
		Funding:    fundingScore(j, ctx, preset),
		Spread:     spreadScore(j, ctx),
		Volatility: volatilityScore(j, ctx, preset),
		Latency:    latencyScore(j, ctx, preset),
		Leverage:   leverageScore(j, ctx),
	}
}

// fundingScore penalizes proximity to a funding settlement: within the
// blackout window the dimension collapses toward 0.
func fundingScore(j job.Job, ctx Context, preset Preset) float64 {
	if ctx.FundingMinutesToSettlement == nil {
		return 100
	}
	worst := 100.0
	blackout := preset.Thresholds.BlackoutMinutes
	if blackout <= 0 {
		blackout = 10
	}
	for _, v := range j.Venues() {
		minutes := ctx.FundingMinutesToSettlement(v, j.Symbol)
		if minutes < 0 {
			minutes = -minutes
		}
		var score float64
		if minutes >= blackout {
			score = 100
		} else {
			score = 100 * (minutes / blackout)
		}
		if score < worst {
			worst = score
		}
	}
	return worst
}

// spreadScore rewards tighter spreads: 0bps -> 100, 100bps+ -> 0,
// linear in between.
func spreadScore(j job.Job, ctx Context) float64 {
	if ctx.SpreadBps == nil {
		return 100
	}
	worst := 100.0
	for _, v := range j.Venues() {
		bps := ctx.SpreadBps(v, j.Symbol)
		score := 100 - clamp(bps, 0, 100)
		if score < worst {
			worst = score
		}
	}
	return worst
}

// volatilityScore rewards rolling stdev below the mode's cap,
// collapsing linearly to 0 at 2x cap.
func volatilityScore(j job.Job, ctx Context, preset Preset) float64 {
	if ctx.VolatilityStdev == nil {
		return 100
	}
	cap := preset.Thresholds.VolatilityMaxStdev
	if cap <= 0 {
		return 100
	}
	worst := 100.0
	for _, v := range j.Venues() {
		stdev := ctx.VolatilityStdev(v, j.Symbol)
		ratio := stdev / cap
		score := 100 * clamp(2-ratio, 0, 1)
		if score < worst {
			worst = score
		}
	}
	return worst
}

// latencyScore rewards latency below the mode's cap, identical shape
// to volatilityScore.
func latencyScore(j job.Job, ctx Context, preset Preset) float64 {
	if ctx.LatencyMsFor == nil {
		return 100
	}
	cap := preset.Thresholds.LatencyCapMs
	if cap <= 0 {
		return 100
	}
	maxMs := 0.0
	for _, v := range j.Venues() {
		if ms := ctx.LatencyMsFor(v); ms > maxMs {
			maxMs = ms
		}
	}
	ratio := maxMs / cap
	return 100 * clamp(2-ratio, 0, 1)
}

// leverageScore rewards greater distance from liquidation.
func leverageScore(j job.Job, ctx Context) float64 {
	if ctx.LiquidationDistancePct == nil {
		return 100
	}
	worst := 100.0
	for _, v := range j.Venues() {
		distPct := ctx.LiquidationDistancePct(v, j.Symbol)
		score := clamp(distPct, 0, 100)
		if score < worst {
			worst = score
		}
	}
	return worst
}

// volumeScore reflects the job's contribution toward the configured
// daily volume target, capped at 100.
func volumeScore(ctx Context, preset Preset) float64 {
	if preset.Thresholds.DailyVolumeTarget <= 0 {
		return 100
	}
	pct := 100 * ctx.TodayVolume / preset.Thresholds.DailyVolumeTarget
	return clamp(pct, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
